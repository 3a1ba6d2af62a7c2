package analysis

import (
	"strings"
	"testing"
	"time"

	"mdforge/internal/address"
	"mdforge/internal/doccache"
)

type fakeReader struct {
	files map[string]string
	mtime map[string]time.Time
}

func newFakeReader() *fakeReader {
	return &fakeReader{files: map[string]string{}, mtime: map[string]time.Time{}}
}

func (f *fakeReader) ReadFile(path string) (string, time.Time, error) {
	c, ok := f.files[path]
	if !ok {
		return "", time.Time{}, notFoundErr{}
	}
	return c, f.mtime[path], nil
}

func (f *fakeReader) WriteFile(path, content string) error {
	f.files[path] = content
	f.mtime[path] = time.Now()
	return nil
}

func (f *fakeReader) Exists(path string) bool {
	_, ok := f.files[path]
	return ok
}

func (f *fakeReader) Remove(path string) error {
	delete(f.files, path)
	delete(f.mtime, path)
	return nil
}

func (f *fakeReader) MkdirAll(path string) error { return nil }

func (f *fakeReader) ListMarkdown(root string) ([]string, error) {
	var out []string
	for path := range f.files {
		if strings.HasPrefix(path, root) && strings.HasSuffix(path, ".md") {
			out = append(out, path)
		}
	}
	return out, nil
}

type notFoundErr struct{}

func (notFoundErr) Error() string { return "not found" }

func TestExtractKeywordsPrefersFrontmatter(t *testing.T) {
	t.Parallel()
	content := "---\nkeywords:\n  - auth\n  - security\n---\n# Auth Doc\n\nBody text about tokens.\n"
	doc, err := doccache.Parse("/api/auth.md", content, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	kws := ExtractKeywords(doc)
	if len(kws) != 2 || kws[0] != "auth" || kws[1] != "security" {
		t.Fatalf("keywords = %v, want [auth security]", kws)
	}
}

func TestExtractKeywordsFallsBackToWeighted(t *testing.T) {
	t.Parallel()
	content := "# JWT Tokens\n\n## Overview\n\nJWT tokens provide **stateless** authentication for APIs.\n"
	doc, err := doccache.Parse("/api/jwt.md", content, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	kws := ExtractKeywords(doc)
	found := map[string]bool{}
	for _, k := range kws {
		found[k] = true
	}
	if !found["jwt"] || !found["tokens"] {
		t.Errorf("expected title words in keywords, got %v", kws)
	}
	if found["the"] || found["for"] {
		t.Errorf("expected stop words removed, got %v", kws)
	}
}

func TestComputeRelevanceBoundedAndOrdered(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	source := Profile{
		Title:     "JWT Authentication",
		Namespace: "api",
		Keywords:  []string{"jwt", "auth", "token"},
	}
	target := Profile{
		Title:        "JWT Authentication",
		Namespace:    "api",
		Keywords:     []string{"jwt", "auth", "token"},
		LastModified: now.Add(-1 * time.Hour),
	}

	res := ComputeRelevance(source, target, now)
	if res.Total > 1.0 {
		t.Errorf("relevance total = %v, want <= 1.0", res.Total)
	}
	if res.Total <= 0 {
		t.Errorf("expected strong relevance for identical profiles, got %v", res.Total)
	}
	for i := 1; i < len(res.Factors); i++ {
		if res.Factors[i].Score > res.Factors[i-1].Score {
			t.Errorf("factors not sorted descending: %+v", res.Factors)
		}
	}
	if len(res.Factors) > 3 {
		t.Errorf("expected at most 3 factors, got %d", len(res.Factors))
	}
}

func TestComputeRelevanceUnrelatedIsLow(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	source := Profile{Title: "Deploy Pipeline", Namespace: "ops", Keywords: []string{"ci", "deploy"}}
	target := Profile{
		Title:        "Cat Pictures",
		Namespace:    "fun",
		Keywords:     []string{"cats", "pictures"},
		LastModified: now.Add(-365 * 24 * time.Hour),
	}
	res := ComputeRelevance(source, target, now)
	if res.Total != 0 {
		t.Errorf("expected zero relevance for fully unrelated docs, got %v", res.Total)
	}
}

func setup(t *testing.T) (*doccache.Cache, *address.Resolver, *fakeReader) {
	t.Helper()
	fr := newFakeReader()
	resolver := address.NewResolver("/workspace")
	cache := doccache.New(fr, ExtractKeywords)
	return cache, resolver, fr
}

func TestClassifyReferencesAllStatuses(t *testing.T) {
	t.Parallel()
	cache, resolver, fr := setup(t)

	fr.WriteFile(resolver.Resolve("/api/auth.md"), "# Auth\n\n## Tokens\n\nBody.\n")
	fr.WriteFile(resolver.Resolve("/api/source.md"),
		"# Source\n\nSee @/api/auth.md#tokens and @/api/auth.md#missing and @/api/nope.md and @not-a-path-bad[oops.\n")

	doc, err := cache.GetDocument("/api/source.md", resolver.Resolve("/api/source.md"))
	if err != nil {
		t.Fatal(err)
	}

	refs := ClassifyReferences(cache, resolver, doc)
	byRaw := map[string]Reference{}
	for _, r := range refs {
		byRaw[r.Raw] = r
	}

	if r := byRaw["@/api/auth.md#tokens"]; r.Status != RefValid {
		t.Errorf("expected valid, got %+v", r)
	}
	if r := byRaw["@/api/auth.md#missing"]; r.Status != RefMissingSection {
		t.Errorf("expected missing_section, got %+v", r)
	}
	if r := byRaw["@/api/nope.md"]; r.Status != RefMissingDocument {
		t.Errorf("expected missing_document, got %+v", r)
	}
}

func TestClassifyReferencesDedup(t *testing.T) {
	t.Parallel()
	cache, resolver, fr := setup(t)
	fr.WriteFile(resolver.Resolve("/api/auth.md"), "# Auth\n\nBody.\n")
	fr.WriteFile(resolver.Resolve("/api/source.md"), "See @/api/auth.md and again @/api/auth.md.\n")

	doc, err := cache.GetDocument("/api/source.md", resolver.Resolve("/api/source.md"))
	if err != nil {
		t.Fatal(err)
	}
	refs := ClassifyReferences(cache, resolver, doc)
	if len(refs) != 1 {
		t.Fatalf("expected deduped to 1 reference, got %d: %+v", len(refs), refs)
	}
}

func TestFindRelatedDocumentsRanksByRelevance(t *testing.T) {
	t.Parallel()
	cache, resolver, fr := setup(t)

	fr.WriteFile(resolver.Resolve("/api/auth.md"), "# JWT Authentication\n\nAbout jwt auth tokens.\n")
	fr.WriteFile(resolver.Resolve("/api/authz.md"), "# JWT Authorization\n\nAbout jwt auth tokens scopes.\n")
	fr.WriteFile(resolver.Resolve("/misc/cats.md"), "# Cat Pictures\n\nFluffy cats doing cat things.\n")

	// Warm loads the whole on-disk corpus, the way cmd/mdforge does at
	// startup, so FindRelatedDocuments can see documents that were never
	// individually fetched.
	if errs := cache.Warm(resolver); len(errs) != 0 {
		t.Fatalf("Warm errors: %v", errs)
	}
	source, err := cache.GetDocument("/api/auth.md", resolver.Resolve("/api/auth.md"))
	if err != nil {
		t.Fatal(err)
	}

	related := FindRelatedDocuments(cache, resolver, source, time.Now())
	if len(related) == 0 {
		t.Fatal("expected at least one related document")
	}
	if related[0].Path != "/api/authz.md" {
		t.Errorf("expected authz.md to rank first, got %+v", related)
	}
	for _, r := range related {
		if r.Path == "/api/auth.md" {
			t.Error("source document should not appear in its own related list")
		}
	}
}
