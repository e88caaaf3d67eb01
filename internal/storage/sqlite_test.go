//go:build sqlite

package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"chemsim/internal/model"
)

func TestSQLiteStoreRunRoundTrip(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "chemsim.db")

	store := NewSQLiteStore(dbPath)
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		if err := store.SaveRun(ctx, newRun(id, base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}

	updated := newRun("a", base)
	updated.Status = model.RunFailed
	updated.Error = "accuracy"
	if err := store.SaveRun(ctx, updated); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	loaded, ok, err := store.GetRun(ctx, "a")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if !ok {
		t.Fatal("expected run a")
	}
	if loaded.Status != model.RunFailed || loaded.Error != "accuracy" || loaded.Final["X"] != 10 {
		t.Fatalf("unexpected run loaded: %+v", loaded)
	}

	runs, err := store.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "c" || runs[1].ID != "b" {
		t.Fatalf("unexpected list: %+v", runs)
	}

	if err := store.DeleteRun(ctx, "b"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, err := store.GetRun(ctx, "b"); err != nil || ok {
		t.Fatalf("expected run b deleted, ok=%v err=%v", ok, err)
	}
}

func TestNewStoreSQLite(t *testing.T) {
	store, err := NewStore("sqlite", filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("new sqlite store: %v", err)
	}
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := CloseIfSupported(store); err != nil {
		t.Fatalf("close: %v", err)
	}
}
