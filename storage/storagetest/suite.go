// Package storagetest runs a common conformance suite against any
// storage.Repository implementation.
package storagetest

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/jmcleod/ironwallet/storage"
)

func record(t *testing.T, v any, version uint64) *storage.Record {
	t.Helper()
	rec, err := storage.NewRecord(v, version)
	if err != nil {
		t.Fatalf("NewRecord failed: %v", err)
	}
	return rec
}

// Run exercises repo. The repository must start empty.
func Run(t *testing.T, repo storage.Repository) {
	t.Helper()
	const ns = "wallet-1"

	t.Run("PutAndGet", func(t *testing.T) {
		if err := repo.Put(ns, "SETTING", "network", record(t, "mainnet", 1)); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		got, err := repo.Get(ns, "SETTING", "network")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		var network string
		if err := got.Decode(&network); err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		if network != "mainnet" || got.Version != 1 {
			t.Errorf("got %q@%d", network, got.Version)
		}
	})

	t.Run("GetNotFound", func(t *testing.T) {
		if _, err := repo.Get("no-such-namespace", "SETTING", "network"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound for missing namespace, got %v", err)
		}
		if _, err := repo.Get(ns, "SETTING", "missing"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound for missing record, got %v", err)
		}
	})

	t.Run("List", func(t *testing.T) {
		for _, id := range []string{"b", "a"} {
			if err := repo.Put(ns, "SITE", id, record(t, id, 1)); err != nil {
				t.Fatalf("Put failed: %v", err)
			}
		}
		ids, err := repo.List(ns, "SITE")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
			t.Errorf("unexpected ids %v", ids)
		}
		empty, err := repo.List("no-such-namespace", "SITE")
		if err != nil || len(empty) != 0 {
			t.Errorf("expected empty list, got %v, %v", empty, err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := repo.Delete(ns, "SITE", "a"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := repo.Get(ns, "SITE", "a"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected record to be gone, got %v", err)
		}
		if err := repo.Delete(ns, "SITE", "a"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound deleting twice, got %v", err)
		}
	})

	t.Run("PutCAS", func(t *testing.T) {
		if err := repo.PutCAS(ns, "WALLET", "current", 0, record(t, "v1", 1)); err != nil {
			t.Fatalf("create-only PutCAS failed: %v", err)
		}
		if err := repo.PutCAS(ns, "WALLET", "current", 0, record(t, "v1", 1)); !errors.Is(err, storage.ErrCASFailed) {
			t.Errorf("expected ErrCASFailed on second create, got %v", err)
		}
		if err := repo.PutCAS(ns, "WALLET", "current", 1, record(t, "v2", 2)); err != nil {
			t.Fatalf("PutCAS at matching version failed: %v", err)
		}
		if err := repo.PutCAS(ns, "WALLET", "current", 1, record(t, "v3", 3)); !errors.Is(err, storage.ErrCASFailed) {
			t.Errorf("expected ErrCASFailed on stale version, got %v", err)
		}
		if err := repo.PutCAS(ns, "WALLET", "absent", 5, record(t, "x", 6)); !errors.Is(err, storage.ErrCASFailed) {
			t.Errorf("expected ErrCASFailed for missing record with version, got %v", err)
		}
	})

	t.Run("BatchCommit", func(t *testing.T) {
		err := repo.Batch(ns, func(tx storage.BatchTx) error {
			if err := tx.Put("SITE", "x", record(t, "x", 1)); err != nil {
				return err
			}
			got, err := tx.Get("SITE", "x")
			if err != nil {
				return fmt.Errorf("read-your-writes failed: %w", err)
			}
			return tx.PutCAS("SITE", "x", got.Version, record(t, "x2", got.Version+1))
		})
		if err != nil {
			t.Fatalf("Batch failed: %v", err)
		}
		got, err := repo.Get(ns, "SITE", "x")
		if err != nil {
			t.Fatalf("Get after batch failed: %v", err)
		}
		if got.Version != 2 {
			t.Errorf("expected version 2, got %d", got.Version)
		}
	})

	t.Run("BatchRollback", func(t *testing.T) {
		boom := errors.New("boom")
		err := repo.Batch(ns, func(tx storage.BatchTx) error {
			if err := tx.Put("SITE", "rolled-back", record(t, "nope", 1)); err != nil {
				return err
			}
			if err := tx.Delete("SITE", "x"); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
		if _, err := repo.Get(ns, "SITE", "rolled-back"); !errors.Is(err, storage.ErrNotFound) {
			t.Error("write inside failed batch was not rolled back")
		}
		if _, err := repo.Get(ns, "SITE", "x"); err != nil {
			t.Error("delete inside failed batch was not rolled back")
		}
	})

	t.Run("ConcurrentIncrement", func(t *testing.T) {
		if err := repo.Put(ns, "COUNTER", "n", record(t, 0, 1)); err != nil {
			t.Fatal(err)
		}
		const workers = 16
		var wg sync.WaitGroup
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := repo.Batch(ns, func(tx storage.BatchTx) error {
					cur, err := tx.Get("COUNTER", "n")
					if err != nil {
						return err
					}
					var n int
					if err := cur.Decode(&n); err != nil {
						return err
					}
					next, err := storage.NewRecord(n+1, cur.Version+1)
					if err != nil {
						return err
					}
					return tx.PutCAS("COUNTER", "n", cur.Version, next)
				})
				if err != nil {
					t.Errorf("Batch failed: %v", err)
				}
			}()
		}
		wg.Wait()

		got, err := repo.Get(ns, "COUNTER", "n")
		if err != nil {
			t.Fatal(err)
		}
		var n int
		if err := got.Decode(&n); err != nil {
			t.Fatal(err)
		}
		if n != workers {
			t.Errorf("lost updates: counter = %d, want %d", n, workers)
		}
	})
}
