package doccache

import (
	"testing"

	"mdforge/internal/address"
)

func TestCacheGetDocumentParsesOnDemand(t *testing.T) {
	t.Parallel()
	fr := newFakeReader()
	fr.WriteFile("/root/docs/x.md", "# Title\n\nBody.\n")

	c := New(fr, nil)
	doc, err := c.GetDocument("/x.md", "/root/docs/x.md")
	if err != nil {
		t.Fatalf("GetDocument error: %v", err)
	}
	if doc.Metadata.Title != "Title" {
		t.Errorf("title = %q", doc.Metadata.Title)
	}
}

func TestCacheConsistencyAfterMutation(t *testing.T) {
	t.Parallel()
	fr := newFakeReader()
	fr.WriteFile("/root/docs/x.md", "# Title\n\nOld body.\n")

	c := New(fr, nil)
	_, err := c.GetDocument("/x.md", "/root/docs/x.md")
	if err != nil {
		t.Fatal(err)
	}

	// simulate a mutation: write through, then invalidate before "returning"
	fr.WriteFile("/root/docs/x.md", "# Title\n\nNew body.\n")
	c.InvalidateDocument("/x.md")

	got, err := c.GetDocument("/x.md", "/root/docs/x.md")
	if err != nil {
		t.Fatal(err)
	}
	content := got.Content
	if !contains(content, "New body.") {
		t.Errorf("expected fresh content after invalidation, got %q", content)
	}
}

func TestCacheDocumentNotFound(t *testing.T) {
	t.Parallel()
	c := New(newFakeReader(), nil)
	if _, err := c.GetDocument("/missing.md", "/root/docs/missing.md"); err == nil {
		t.Fatal("expected error for missing document")
	}
}

func TestListDocumentFingerprintsUsesKeywordFunc(t *testing.T) {
	t.Parallel()
	fr := newFakeReader()
	fr.WriteFile("/root/docs/a.md", "# Alpha\n\nAbout alpha things.\n")

	calls := 0
	kw := func(doc *CachedDocument) []string {
		calls++
		return []string{"alpha"}
	}
	c := New(fr, kw)
	if _, err := c.GetDocument("/a.md", "/root/docs/a.md"); err != nil {
		t.Fatal(err)
	}

	fps := c.ListDocumentFingerprints()
	if len(fps) != 1 || fps[0].Keywords[0] != "alpha" {
		t.Fatalf("fingerprints = %+v", fps)
	}

	// second call should hit the per-path fingerprint cache, not recompute
	c.ListDocumentFingerprints()
	if calls != 1 {
		t.Errorf("keywordFn called %d times, want 1 (fingerprint should be cached)", calls)
	}
}

func TestCacheDestroyDropsEntries(t *testing.T) {
	t.Parallel()
	fr := newFakeReader()
	fr.WriteFile("/root/docs/a.md", "# A\n")
	c := New(fr, nil)
	if _, err := c.GetDocument("/a.md", "/root/docs/a.md"); err != nil {
		t.Fatal(err)
	}
	c.Destroy()
	if len(c.ListDocuments("")) != 0 {
		t.Error("expected no documents after Destroy")
	}
}

type fakeStore struct {
	entries map[string]Fingerprint
	puts    int
}

func newFakeStore() *fakeStore { return &fakeStore{entries: map[string]Fingerprint{}} }

func (s *fakeStore) Get(path string) (Fingerprint, bool) {
	fp, ok := s.entries[path]
	return fp, ok
}

func (s *fakeStore) Put(fp Fingerprint) {
	s.puts++
	s.entries[fp.Path] = fp
}

func TestFingerprintForReusesStoredKeywordsWhenHashMatches(t *testing.T) {
	t.Parallel()
	fr := newFakeReader()
	fr.WriteFile("/root/docs/a.md", "# Alpha\n\nBody.\n")

	c := New(fr, nil)
	doc, err := c.GetDocument("/a.md", "/root/docs/a.md")
	if err != nil {
		t.Fatal(err)
	}

	store := newFakeStore()
	store.entries["/a.md"] = Fingerprint{Path: "/a.md", Keywords: []string{"stored"}, ContentHash: doc.Metadata.ContentHash, Namespace: "docs"}
	c.store = store

	calls := 0
	c.keywordFn = func(*CachedDocument) []string { calls++; return []string{"recomputed"} }

	fp := c.fingerprintFor("/a.md")
	if fp.Keywords[0] != "stored" {
		t.Errorf("expected stored keywords to win when content hash matches, got %v", fp.Keywords)
	}
	if calls != 0 {
		t.Errorf("keywordFn should not run when the store's content hash matches, called %d times", calls)
	}
}

func TestFingerprintForRecomputesAndPersistsWhenHashStale(t *testing.T) {
	t.Parallel()
	fr := newFakeReader()
	fr.WriteFile("/root/docs/a.md", "# Alpha\n\nBody.\n")

	store := newFakeStore()
	store.entries["/a.md"] = Fingerprint{Path: "/a.md", Keywords: []string{"stale"}, ContentHash: "old-hash", Namespace: "docs"}

	c := NewWithStore(fr, func(*CachedDocument) []string { return []string{"fresh"} }, store)
	if _, err := c.GetDocument("/a.md", "/root/docs/a.md"); err != nil {
		t.Fatal(err)
	}

	fp := c.fingerprintFor("/a.md")
	if fp.Keywords[0] != "fresh" {
		t.Errorf("expected recomputed keywords when stored hash is stale, got %v", fp.Keywords)
	}
	if store.puts == 0 {
		t.Error("expected recomputed fingerprint to be persisted back to the store")
	}
}

func TestWarmLoadsEntireCorpusWithoutPriorAccess(t *testing.T) {
	t.Parallel()
	resolver := address.NewResolver("/workspace")
	fr := newFakeReader()
	fr.WriteFile(resolver.Resolve("/api/auth.md"), "# Auth\n\nBody.\n")
	fr.WriteFile(resolver.Resolve("/misc/cats.md"), "# Cats\n\nBody.\n")
	fr.WriteFile(resolver.Resolve("/coordinator/active.md"), "# Coordinator Active Tasks\n\n## Tasks\n\n")

	c := New(fr, nil)
	if errs := c.Warm(resolver); len(errs) != 0 {
		t.Fatalf("Warm errors: %v", errs)
	}

	docs := c.ListDocuments("")
	if len(docs) != 3 {
		t.Fatalf("expected 3 documents loaded by Warm, got %d: %+v", len(docs), docs)
	}
	fps := c.ListDocumentFingerprints()
	if len(fps) != 3 {
		t.Fatalf("expected 3 fingerprints after Warm, got %d", len(fps))
	}
}
