package plan

import (
	"path/filepath"
	"testing"
	"time"

	clierr "github.com/yieldline/yieldctl/internal/errors"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	store, err := OpenStore(filepath.Join(dir, "plans.db"), filepath.Join(dir, "plans.lock"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func samplePlan() Plan {
	now := time.Now().UTC().Format(time.RFC3339)
	return Plan{
		PlanID:    NewPlanID(),
		Action:    ActionDeposit,
		Status:    StatusPlanned,
		WalletID:  "w-1",
		ChainID:   "eip155:8453",
		CreatedAt: now,
		UpdatedAt: now,
		Steps: []Step{
			{StepID: "s1", Type: StepApproval, Status: StepPending, ChainID: "eip155:8453"},
			{StepID: "s2", Type: StepSupply, Status: StepPending, ChainID: "eip155:8453"},
		},
	}
}

func TestSaveAndGetPreservesCursor(t *testing.T) {
	store := openTempStore(t)
	p := samplePlan()
	p.Status = StatusRunning
	p.Advance()
	if err := store.Save(p); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Get(p.PlanID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Cursor != 1 {
		t.Fatalf("cursor %d, want 1", got.Cursor)
	}
	if got.Steps[0].Status != StepConfirmed || got.Steps[1].Status != StepPending {
		t.Fatalf("step statuses lost: %+v", got.Steps)
	}
}

func TestGetUnknownPlanIsUsageError(t *testing.T) {
	store := openTempStore(t)
	if _, err := store.Get("plan_missing"); !clierr.HasCode(err, clierr.CodeUsage) {
		t.Fatalf("unknown plan should be a usage error, got %v", err)
	}
}

func TestSaveUpsertsInPlace(t *testing.T) {
	store := openTempStore(t)
	p := samplePlan()
	if err := store.Save(p); err != nil {
		t.Fatalf("Save: %v", err)
	}
	p.Status = StatusTimedOut
	if err := store.Save(p); err != nil {
		t.Fatalf("re-Save: %v", err)
	}
	got, err := store.Get(p.PlanID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusTimedOut {
		t.Fatalf("status %s, want timed_out", got.Status)
	}
	all, err := store.List("", 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("upsert duplicated the row: %d", len(all))
	}
}

func TestListFiltersByStatus(t *testing.T) {
	store := openTempStore(t)
	done := samplePlan()
	done.Status = StatusCompleted
	pending := samplePlan()
	if err := store.Save(done); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Save(pending); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := store.List(StatusCompleted, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 || got[0].PlanID != done.PlanID {
		t.Fatalf("status filter wrong: %+v", got)
	}
}
