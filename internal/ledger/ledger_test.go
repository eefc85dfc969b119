package ledger

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

const wallet = "0xAbC1111111111111111111111111111111111111"

func TestRecordAssignsIdentityAndNormalizes(t *testing.T) {
	store := newTestStore(t)
	e, err := store.Record(wallet, Entry{
		Action:      ActionDeposit,
		ProtocolID:  "Aave-V3",
		Chain:       "EIP155:8453",
		AssetSymbol: "usdc",
		HumanAmount: "100",
		RawAmount:   "100000000",
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if e.ID == "" || e.Timestamp == "" {
		t.Fatalf("id/timestamp not assigned: %+v", e)
	}
	if e.AssetSymbol != "USDC" || e.Chain != "eip155:8453" || e.ProtocolID != "aave-v3" {
		t.Fatalf("keys not normalized: %+v", e)
	}
}

func TestRecordedIdsAreUniqueWithinSameMillisecond(t *testing.T) {
	store := newTestStore(t)
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		e, err := store.Record(wallet, Entry{Action: ActionDeposit, RawAmount: "1"})
		if err != nil {
			t.Fatalf("Record: %v", err)
		}
		if seen[e.ID] {
			t.Fatalf("duplicate id %s", e.ID)
		}
		seen[e.ID] = true
	}
}

func TestLoadIsCaseInsensitiveOnWallet(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Record(wallet, Entry{Action: ActionDeposit, RawAmount: "5"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	entries, err := store.Load("0xabc1111111111111111111111111111111111111")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
}

func TestWalletsAreIsolated(t *testing.T) {
	store := newTestStore(t)
	other := "0x2222222222222222222222222222222222222222"
	if _, err := store.Record(wallet, Entry{Action: ActionDeposit, RawAmount: "7"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	entries, err := store.Load(other)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("wallet isolation broken: %+v", entries)
	}
}

func TestDocumentSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, err := store.Record(wallet, Entry{Action: ActionDeposit, RawAmount: "9"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	store.Close()

	reopened, err := NewStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	entries, err := reopened.Load(wallet)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(entries) != 1 || entries[0].RawAmount != "9" {
		t.Fatalf("entries lost across reopen: %+v", entries)
	}

	// no stray temp files after atomic rewrites
	matches, _ := filepath.Glob(filepath.Join(dir, "*.tmp"))
	if len(matches) != 0 {
		t.Fatalf("temp files left behind: %v", matches)
	}
	if _, err := os.Stat(filepath.Join(dir, "0xabc1111111111111111111111111111111111111.json")); err != nil {
		t.Fatalf("document missing: %v", err)
	}
}

func TestFilterNarrowsPosition(t *testing.T) {
	entries := []Entry{
		{AssetSymbol: "USDC", Chain: "eip155:1", ProtocolID: "aave-v3", Action: ActionDeposit, RawAmount: "1"},
		{AssetSymbol: "USDC", Chain: "eip155:8453", ProtocolID: "aave-v3", Action: ActionDeposit, RawAmount: "2"},
		{AssetSymbol: "DAI", Chain: "eip155:1", ProtocolID: "aave-v3", Action: ActionDeposit, RawAmount: "3"},
	}
	got := Filter(entries, "usdc", "EIP155:1", "AAVE-V3")
	if len(got) != 1 || got[0].RawAmount != "1" {
		t.Fatalf("filter wrong: %+v", got)
	}
	if len(Filter(entries, "", "", "")) != 3 {
		t.Fatal("empty selectors should match everything")
	}
}

func TestNetPrincipal(t *testing.T) {
	entries := []Entry{
		{Action: ActionDeposit, RawAmount: "1000"},
		{Action: ActionDeposit, RawAmount: "500"},
		{Action: ActionWithdraw, RawAmount: "300"},
		{Action: ActionDeposit, RawAmount: "garbage"},
	}
	if net := NetPrincipal(entries); net.Cmp(big.NewInt(1200)) != 0 {
		t.Fatalf("net %s, want 1200", net)
	}
}

func TestComputeEarningsThirtyDayDeposit(t *testing.T) {
	now := time.Now().UTC()
	entries := []Entry{{
		Action:    ActionDeposit,
		RawAmount: "1000",
		Timestamp: now.AddDate(0, 0, -30).Format(time.RFC3339Nano),
	}}
	got := ComputeEarnings(entries, big.NewInt(1010), now)
	if got.EarnedYieldRaw != "10" {
		t.Fatalf("earned %s, want 10", got.EarnedYieldRaw)
	}
	if got.EarnedYieldPercent < 0.999 || got.EarnedYieldPercent > 1.001 {
		t.Fatalf("percent %v, want ~1", got.EarnedYieldPercent)
	}
	if !got.APYKnown {
		t.Fatal("30-day window should produce an APY")
	}
	if got.APYPercent <= 0 || got.APYPercent > 20 {
		t.Fatalf("apy %v, want a small positive number", got.APYPercent)
	}
}

func TestComputeEarningsSuppressesAbsurdAPY(t *testing.T) {
	now := time.Now().UTC()
	entries := []Entry{{
		Action:    ActionDeposit,
		RawAmount: "1000",
		Timestamp: now.AddDate(0, 0, -1).Format(time.RFC3339Nano),
	}}
	// 100% gain in one day annualizes far past the ceiling
	got := ComputeEarnings(entries, big.NewInt(2000), now)
	if got.APYKnown {
		t.Fatalf("absurd extrapolation should be suppressed: %+v", got)
	}
	if got.EarnedYieldRaw != "1000" {
		t.Fatalf("earned %s", got.EarnedYieldRaw)
	}
}

func TestComputeEarningsSubDayWindowHasNoAPY(t *testing.T) {
	now := time.Now().UTC()
	entries := []Entry{{
		Action:    ActionDeposit,
		RawAmount: "1000",
		Timestamp: now.Add(-6 * time.Hour).Format(time.RFC3339Nano),
	}}
	got := ComputeEarnings(entries, big.NewInt(1001), now)
	if got.APYKnown {
		t.Fatal("sub-day window must not annualize")
	}
}

func TestComputeEarningsNegativeYieldSurfaced(t *testing.T) {
	now := time.Now().UTC()
	entries := []Entry{{
		Action:    ActionDeposit,
		RawAmount: "1000",
		Timestamp: now.AddDate(0, 0, -10).Format(time.RFC3339Nano),
	}}
	got := ComputeEarnings(entries, big.NewInt(990), now)
	if got.EarnedYieldRaw != "-10" {
		t.Fatalf("negative yield must be surfaced, got %s", got.EarnedYieldRaw)
	}
	if got.EarnedYieldPercent >= 0 {
		t.Fatalf("percent %v should be negative", got.EarnedYieldPercent)
	}
}

func TestComputeEarningsNoHistoryIsUnattributed(t *testing.T) {
	got := ComputeEarnings(nil, big.NewInt(500), time.Now().UTC())
	if !got.Unattributed || got.EarnedYieldRaw != "500" || got.APYKnown {
		t.Fatalf("no history should be unattributed: %+v", got)
	}
}

func TestComputeEarningsZeroNetPrincipal(t *testing.T) {
	now := time.Now().UTC()
	entries := []Entry{
		{Action: ActionDeposit, RawAmount: "1000", Timestamp: now.AddDate(0, 0, -5).Format(time.RFC3339Nano)},
		{Action: ActionWithdraw, RawAmount: "1000", Timestamp: now.AddDate(0, 0, -2).Format(time.RFC3339Nano)},
	}
	got := ComputeEarnings(entries, big.NewInt(3), now)
	if got.EarnedYieldPercent != 0 || got.APYKnown {
		t.Fatalf("non-positive principal must zero percentages: %+v", got)
	}
}
