package feedcache

import (
	"path/filepath"
	"testing"
	"time"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "feed.db"), filepath.Join(dir, "feed.lock"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestGetMissesOnEmptyStore(t *testing.T) {
	store := openTempStore(t)
	snap, err := store.Get("pools")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if snap.Hit {
		t.Fatal("empty store should miss")
	}
}

func TestSetThenGetRoundTrips(t *testing.T) {
	store := openTempStore(t)
	if err := store.Set("pools", []byte(`{"data":[]}`), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	snap, err := store.Get("pools")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !snap.Hit || snap.Stale {
		t.Fatalf("expected fresh hit, got %+v", snap)
	}
	if string(snap.Body) != `{"data":[]}` {
		t.Fatalf("body %q", snap.Body)
	}
}

func TestExpiredSnapshotIsStale(t *testing.T) {
	store := openTempStore(t)
	if err := store.Set("pools", []byte("old"), time.Second); err != nil {
		t.Fatalf("Set: %v", err)
	}
	_, err := store.db.Exec("UPDATE feed_snapshots SET fetched_at = fetched_at - 3600")
	if err != nil {
		t.Fatalf("age entry: %v", err)
	}
	snap, err := store.Get("pools")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !snap.Hit || !snap.Stale {
		t.Fatalf("expected stale hit, got %+v", snap)
	}
}

func TestPruneDropsExpired(t *testing.T) {
	store := openTempStore(t)
	if err := store.Set("pools", []byte("old"), time.Second); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, err := store.db.Exec("UPDATE feed_snapshots SET fetched_at = fetched_at - 3600"); err != nil {
		t.Fatalf("age entry: %v", err)
	}
	if err := store.Prune(); err != nil {
		t.Fatalf("Prune: %v", err)
	}
	snap, err := store.Get("pools")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if snap.Hit {
		t.Fatal("pruned entry should miss")
	}
}

func TestSetOverwrites(t *testing.T) {
	store := openTempStore(t)
	if err := store.Set("pools", []byte("first"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := store.Set("pools", []byte("second"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	snap, _ := store.Get("pools")
	if string(snap.Body) != "second" {
		t.Fatalf("body %q", snap.Body)
	}
}
