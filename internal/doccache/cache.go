package doccache

import (
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"mdforge/internal/address"
	tcache "mdforge/internal/cache"
	"mdforge/internal/apperr"
)

// KeywordFunc extracts a document's keyword set for fingerprinting.
// Wired at construction time from internal/analysis so doccache never
// imports the analysis package back (it is imported by it).
type KeywordFunc func(doc *CachedDocument) []string

// FingerprintStore persists fingerprints across process restarts, the
// way internal/store's sqlite-backed implementation lets a cold-started
// cache reuse stored keywords for files whose content hash is unchanged
// (the files themselves are still read and parsed). Wired at
// construction time from internal/store so doccache never imports it
// back.
type FingerprintStore interface {
	Get(path string) (Fingerprint, bool)
	Put(fp Fingerprint)
}

const (
	defaultTOCDebounce = 150 * time.Millisecond
	statHintTTL        = 2 * time.Second
)

// Cache is the Document Cache component (§4.4). It owns every parsed
// CachedDocument and is the sole writer of that state; the Section Editor
// mutates only by calling through it.
type Cache struct {
	reader    FileReader
	keywordFn KeywordFunc
	store     FingerprintStore

	mu   sync.RWMutex
	docs map[string]*CachedDocument

	fpMu         sync.Mutex
	fingerprints map[string]*Fingerprint

	sf        singleflight.Group
	statHints *tcache.Cache[string] // path -> last-seen content hash, short TTL

	toc *tocDebouncer

	closed bool
}

// New constructs a Document Cache. reader defaults to OSFileReader when
// nil; keywordFn is optional (nil disables eager fingerprint keywords,
// ListDocumentFingerprints then returns empty keyword sets).
func New(reader FileReader, keywordFn KeywordFunc) *Cache {
	return NewWithStore(reader, keywordFn, nil)
}

// NewWithStore is New plus a FingerprintStore: fingerprintFor consults it
// before invoking keywordFn (reusing stored keywords when the content
// hash still matches) and writes every freshly computed fingerprint back
// to it, so a restarted process can answer ListDocumentFingerprints
// without re-deriving keywords for unchanged files.
func NewWithStore(reader FileReader, keywordFn KeywordFunc, store FingerprintStore) *Cache {
	if reader == nil {
		reader = OSFileReader{}
	}
	return &Cache{
		reader:       reader,
		keywordFn:    keywordFn,
		store:        store,
		docs:         make(map[string]*CachedDocument),
		fingerprints: make(map[string]*Fingerprint),
		statHints:    tcache.New[string](statHintTTL, 0),
		toc:          newTOCDebouncer(defaultTOCDebounce),
	}
}

// GetDocument returns the cached document at path, parsing it on demand
// and re-parsing if the file changed on disk since the last read.
func (c *Cache) GetDocument(path, physicalPath string) (*CachedDocument, error) {
	if doc := c.freshCached(path, physicalPath); doc != nil {
		return doc, nil
	}

	v, err, _ := c.sf.Do(path, func() (any, error) {
		return c.reload(path, physicalPath)
	})
	if err != nil {
		return nil, err
	}
	return v.(*CachedDocument), nil
}

// freshCached returns the in-memory document if present and its stat
// hint hasn't expired (avoiding a re-stat/re-hash on every hot read), or
// if a re-stat confirms the content hash is unchanged.
func (c *Cache) freshCached(path, physicalPath string) *CachedDocument {
	c.mu.RLock()
	cached, ok := c.docs[path]
	c.mu.RUnlock()
	if !ok {
		return nil
	}

	if _, hinted := c.statHints.Get(path); hinted {
		c.touch(path)
		return cached
	}

	content, modTime, err := c.reader.ReadFile(physicalPath)
	if err != nil {
		return nil
	}
	hash := contentHash(content)
	if hash != cached.Metadata.ContentHash {
		return nil
	}
	c.statHints.Set(path, hash)
	_ = modTime
	c.touch(path)
	return cached
}

func (c *Cache) touch(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d, ok := c.docs[path]; ok {
		d.Metadata.LastAccessed = time.Now()
	}
}

func (c *Cache) reload(path, physicalPath string) (*CachedDocument, error) {
	content, modTime, err := c.reader.ReadFile(physicalPath)
	if err != nil {
		return nil, apperr.Wrap(apperr.DocumentNotFound, path, err)
	}

	doc, err := Parse(path, content, modTime)
	if err != nil {
		return nil, apperr.Wrap(apperr.IOError, "parse failed", err)
	}

	c.mu.Lock()
	prev, existed := c.docs[path]
	gen := 1
	if existed {
		gen = prev.Metadata.CacheGeneration + 1
	}
	doc.Metadata.CacheGeneration = gen
	doc.Metadata.LastAccessed = time.Now()
	c.docs[path] = doc
	c.mu.Unlock()

	c.statHints.Set(path, doc.Metadata.ContentHash)
	c.invalidateFingerprint(path)
	c.scheduleTOCRegen(path)

	return doc, nil
}

// PutParsed installs an already-parsed document directly, so the next
// read is authoritative without a disk round-trip. The Section Editor
// does not call it: its commit invalidates the entry and re-reads the
// file instead (§4.4 consistency contract:
// "every successful mutation ... must call invalidate_document ... before
// returning; subsequent reads must observe the post-mutation state").
func (c *Cache) PutParsed(doc *CachedDocument) {
	c.mu.Lock()
	if prev, ok := c.docs[doc.Metadata.Path]; ok {
		doc.Metadata.CacheGeneration = prev.Metadata.CacheGeneration + 1
	} else {
		doc.Metadata.CacheGeneration = 1
	}
	doc.Metadata.LastAccessed = time.Now()
	c.docs[doc.Metadata.Path] = doc
	c.mu.Unlock()

	c.statHints.Set(doc.Metadata.Path, doc.Metadata.ContentHash)
	c.invalidateFingerprint(doc.Metadata.Path)
	c.scheduleTOCRegen(doc.Metadata.Path)
}

// InvalidateDocument drops the cached entry and any stat hint for path,
// forcing the next read to re-parse from disk.
func (c *Cache) InvalidateDocument(path string) {
	c.mu.Lock()
	delete(c.docs, path)
	c.mu.Unlock()
	c.statHints.Delete(path)
	c.invalidateFingerprint(path)
	c.toc.Cancel(path)
}

func (c *Cache) invalidateFingerprint(path string) {
	c.fpMu.Lock()
	delete(c.fingerprints, path)
	c.fpMu.Unlock()
}

func (c *Cache) scheduleTOCRegen(path string) {
	c.toc.Schedule(path, func() {
		c.mu.RLock()
		doc, ok := c.docs[path]
		c.mu.RUnlock()
		if !ok {
			return
		}
		toc := make([]string, 0, len(doc.Headings))
		for _, h := range doc.Headings {
			toc = append(toc, repeat("  ", h.Depth-1)+"- "+h.Title)
		}
		c.mu.Lock()
		if cur, ok := c.docs[path]; ok && cur.Metadata.CacheGeneration == doc.Metadata.CacheGeneration {
			cur.TOC = toc
		}
		c.mu.Unlock()
	})
}

func repeat(s string, n int) string {
	if n <= 0 {
		return ""
	}
	out := make([]byte, 0, len(s)*n)
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return string(out)
}

// GetSectionContent returns the raw content of one section by slug.
func (c *Cache) GetSectionContent(path, physicalPath, slug string) (string, error) {
	doc, err := c.GetDocument(path, physicalPath)
	if err != nil {
		return "", err
	}
	idx, ok := doc.HeadingByPath(slug)
	if !ok {
		return "", apperr.New(apperr.SectionNotFound, slug)
	}
	return doc.Section(idx), nil
}

// GetDocumentContent returns the full raw content of a document.
func (c *Cache) GetDocumentContent(path, physicalPath string) (string, error) {
	doc, err := c.GetDocument(path, physicalPath)
	if err != nil {
		return "", err
	}
	return doc.Content, nil
}

// ListDocuments returns summaries for every currently-cached document
// whose path is within scope (empty scope means all).
func (c *Cache) ListDocuments(scope string) []DocumentSummary {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]DocumentSummary, 0, len(c.docs))
	for _, d := range c.docs {
		if scope != "" && !pathInScope(d.Metadata.Path, scope) {
			continue
		}
		slug := d.Metadata.Path
		if addr, err := address.ParseDocument(d.Metadata.Path); err == nil {
			slug = addr.Slug
		}
		out = append(out, DocumentSummary{
			Path:         d.Metadata.Path,
			Title:        d.Metadata.Title,
			Slug:         slug,
			Namespace:    d.Metadata.Namespace,
			LastModified: d.Metadata.LastModified,
			SectionCount: len(d.Headings),
			WordCount:    d.Metadata.WordCount,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func pathInScope(path, scope string) bool {
	if len(path) < len(scope) {
		return false
	}
	return path[:len(scope)] == scope
}

// ListDocumentFingerprints returns (computing and caching on first use)
// the Fingerprint for every cached document.
func (c *Cache) ListDocumentFingerprints() []Fingerprint {
	c.mu.RLock()
	paths := make([]string, 0, len(c.docs))
	for p := range c.docs {
		paths = append(paths, p)
	}
	c.mu.RUnlock()

	out := make([]Fingerprint, 0, len(paths))
	for _, p := range paths {
		out = append(out, c.fingerprintFor(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func (c *Cache) fingerprintFor(path string) Fingerprint {
	c.fpMu.Lock()
	if fp, ok := c.fingerprints[path]; ok {
		c.fpMu.Unlock()
		return *fp
	}
	c.fpMu.Unlock()

	c.mu.RLock()
	doc, ok := c.docs[path]
	c.mu.RUnlock()
	if !ok {
		return Fingerprint{Path: path}
	}

	var keywords []string
	fromStore := false
	if c.store != nil {
		if stored, ok := c.store.Get(path); ok && stored.ContentHash == doc.Metadata.ContentHash {
			keywords = stored.Keywords
			fromStore = true
		}
	}
	if !fromStore && c.keywordFn != nil {
		keywords = c.keywordFn(doc)
	}
	fp := &Fingerprint{
		Path:         path,
		Keywords:     keywords,
		LastModified: doc.Metadata.LastModified,
		ContentHash:  doc.Metadata.ContentHash,
		Namespace:    doc.Metadata.Namespace,
	}
	if c.store != nil && !fromStore {
		c.store.Put(*fp)
	}

	c.fpMu.Lock()
	c.fingerprints[path] = fp
	c.fpMu.Unlock()

	c.mu.Lock()
	if d, ok := c.docs[path]; ok {
		d.Metadata.Keywords = keywords
		d.Metadata.FingerprintGenerated = true
	}
	c.mu.Unlock()

	return *fp
}

// Warm walks the workspace's docs, coordinator and archived roots and
// loads every markdown file it finds, so ListDocuments,
// ListDocumentFingerprints and the related-document filter see the full
// on-disk corpus rather than only documents some earlier request happened
// to touch. A file that fails to parse is skipped rather than aborting
// the whole scan; callers that care can inspect the returned errors.
func (c *Cache) Warm(resolver *address.Resolver) []error {
	var errs []error
	roots := []string{resolver.GetDocsRoot(), resolver.GetCoordinatorRoot(), resolver.GetArchivedRoot()}
	seen := map[string]bool{}
	for _, root := range roots {
		files, err := c.reader.ListMarkdown(root)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, physical := range files {
			if seen[physical] {
				continue
			}
			seen[physical] = true
			virtual, ok := resolver.Virtualize(physical)
			if !ok {
				continue
			}
			if _, err := c.GetDocument(virtual, physical); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errs
}

// Destroy cancels pending debounced work and drops all entries.
func (c *Cache) Destroy() {
	c.toc.Destroy()
	c.statHints.Stop()
	c.mu.Lock()
	c.docs = make(map[string]*CachedDocument)
	c.closed = true
	c.mu.Unlock()
}
