package bbolt

import (
	"path/filepath"
	"testing"

	"github.com/jmcleod/ironwallet/storage"
	"github.com/jmcleod/ironwallet/storage/storagetest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewRepositoryFromFile(filepath.Join(t.TempDir(), "wallet-test.db"), nil)
	if err != nil {
		t.Fatalf("could not open db: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBBoltRepository(t *testing.T) {
	storagetest.Run(t, newTestStore(t))
}

func TestBBoltPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	s, err := NewRepositoryFromFile(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	rec, _ := storage.NewRecord(map[string]string{"origin": "https://app.example"}, 1)
	if err := s.Put("w", "SITE", "https://app.example", rec); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = NewRepositoryFromFile(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	got, err := s.Get("w", "SITE", "https://app.example")
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	var site map[string]string
	if err := got.Decode(&site); err != nil {
		t.Fatal(err)
	}
	if site["origin"] != "https://app.example" {
		t.Errorf("unexpected record %v", site)
	}
}
