package store

import (
	"path/filepath"
	"testing"
	"time"

	"mdforge/internal/doccache"
)

func TestPutThenGetRoundTrips(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "fingerprints.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	fp := doccache.Fingerprint{
		Path:         "/api/auth.md",
		Keywords:     []string{"jwt", "auth", "token"},
		LastModified: time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC),
		ContentHash:  "deadbeef",
		Namespace:    "api",
	}
	s.Put(fp)

	got, ok := s.Get("/api/auth.md")
	if !ok {
		t.Fatal("expected Get to find the stored fingerprint")
	}
	if got.Namespace != fp.Namespace || got.ContentHash != fp.ContentHash {
		t.Errorf("got = %+v, want namespace/hash matching %+v", got, fp)
	}
	if len(got.Keywords) != 3 || got.Keywords[0] != "jwt" {
		t.Errorf("Keywords = %v", got.Keywords)
	}
	if !got.LastModified.Equal(fp.LastModified) {
		t.Errorf("LastModified = %v, want %v", got.LastModified, fp.LastModified)
	}
}

func TestGetMissReturnsFalse(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "fingerprints.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if _, ok := s.Get("/nope.md"); ok {
		t.Error("expected Get miss for unknown path")
	}
}

func TestPutOverwritesOnConflict(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "fingerprints.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	s.Put(doccache.Fingerprint{Path: "/x.md", Keywords: []string{"old"}, ContentHash: "h1", Namespace: "docs"})
	s.Put(doccache.Fingerprint{Path: "/x.md", Keywords: []string{"new"}, ContentHash: "h2", Namespace: "docs"})

	got, ok := s.Get("/x.md")
	if !ok {
		t.Fatal("expected fingerprint to be present")
	}
	if got.ContentHash != "h2" || len(got.Keywords) != 1 || got.Keywords[0] != "new" {
		t.Errorf("got = %+v, want overwritten content_hash=h2 keywords=[new]", got)
	}
}

func TestReopenPersistsAcrossConnections(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "fingerprints.db")

	s1, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	s1.Put(doccache.Fingerprint{Path: "/p.md", Keywords: []string{"a", "b"}, ContentHash: "h", Namespace: "docs"})
	if err := s1.Close(); err != nil {
		t.Fatal(err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	got, ok := s2.Get("/p.md")
	if !ok {
		t.Fatal("expected fingerprint to survive reopening the database file")
	}
	if got.ContentHash != "h" {
		t.Errorf("ContentHash = %q, want %q", got.ContentHash, "h")
	}
}
