// Package editor implements the Section Editor component (spec.md
// §4.5): the authoritative mutator for cached documents. Every operation
// reads the current snapshot from the Document Cache, computes a new
// document body, writes it through to disk, and re-parses + installs the
// result back into the cache before returning, so the cache consistency
// contract in §4.4 always holds.
package editor

import (
	"strings"
	"sync"

	"mdforge/internal/address"
	"mdforge/internal/apperr"
	"mdforge/internal/doccache"
)

// Editor mutates documents addressed by virtual path, serializing writes
// per path the way spec.md §4.5/§5 requires ("the editor serializes
// writes per document path; concurrent reads are allowed against the
// previous cached snapshot until invalidation").
type Editor struct {
	cache    *doccache.Cache
	reader   doccache.FileReader
	resolver *address.Resolver

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(cache *doccache.Cache, reader doccache.FileReader, resolver *address.Resolver) *Editor {
	return &Editor{
		cache:    cache,
		reader:   reader,
		resolver: resolver,
		locks:    make(map[string]*sync.Mutex),
	}
}

func (e *Editor) lockFor(path string) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	l, ok := e.locks[path]
	if !ok {
		l = &sync.Mutex{}
		e.locks[path] = l
	}
	return l
}

// load fetches the current snapshot for path, re-parsing from disk if
// necessary.
func (e *Editor) load(path string) (*doccache.CachedDocument, error) {
	physical := e.resolver.Resolve(path)
	return e.cache.GetDocument(path, physical)
}

// commit writes newContent through to disk, re-parses it, and publishes
// the fresh document into the cache, invalidating the stale snapshot
// first as required by §4.4.
func (e *Editor) commit(path, newContent string) (*doccache.CachedDocument, error) {
	physical := e.resolver.Resolve(path)
	if err := e.reader.WriteFile(physical, newContent); err != nil {
		e.cache.InvalidateDocument(path)
		return nil, apperr.Wrap(apperr.IOError, "write failed", err)
	}

	e.cache.InvalidateDocument(path)

	fresh, err := e.cache.GetDocument(path, physical)
	if err != nil {
		return nil, err
	}
	return fresh, nil
}

func headingLine(depth int, title string) string {
	return strings.Repeat("#", depth) + " " + title
}

// findHeading looks up a heading by slug, case-sensitively (slugs are
// already normalized), returning SectionNotFound otherwise.
func findHeading(doc *doccache.CachedDocument, slug string) (doccache.Heading, error) {
	idx, ok := doc.HeadingByPath(slug)
	if !ok {
		return doccache.Heading{}, apperr.New(apperr.SectionNotFound, slug)
	}
	return doc.Headings[idx], nil
}

func ensureTrailingNewline(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}

// InsertBefore inserts a new heading (at the same depth as the target
// section) immediately before it.
func (e *Editor) InsertBefore(path, targetSlug, title, body string) (*doccache.CachedDocument, error) {
	l := e.lockFor(path)
	l.Lock()
	defer l.Unlock()

	doc, err := e.load(path)
	if err != nil {
		return nil, err
	}
	target, err := findHeading(doc, targetSlug)
	if err != nil {
		return nil, err
	}

	newSection := ensureTrailingNewline(headingLine(target.Depth, title)) + "\n" + ensureTrailingNewline(body)
	r := doc.Ranges[target.Index]
	newContent := doc.Content[:r.Start] + newSection + "\n" + doc.Content[r.Start:]
	return e.commit(path, newContent)
}

// InsertAfter inserts a new heading (same depth as the target) after the
// target's entire subtree.
func (e *Editor) InsertAfter(path, targetSlug, title, body string) (*doccache.CachedDocument, error) {
	l := e.lockFor(path)
	l.Lock()
	defer l.Unlock()

	doc, err := e.load(path)
	if err != nil {
		return nil, err
	}
	target, err := findHeading(doc, targetSlug)
	if err != nil {
		return nil, err
	}

	newSection := ensureTrailingNewline(headingLine(target.Depth, title)) + "\n" + ensureTrailingNewline(body)
	r := doc.Ranges[target.Index]
	newContent := doc.Content[:r.End] + "\n" + newSection + doc.Content[r.End:]
	return e.commit(path, newContent)
}

// AppendChild inserts a new heading one depth below parentSlug, as the
// last child within the parent's section (i.e. just before the parent's
// range ends).
func (e *Editor) AppendChild(path, parentSlug, title, body string) (*doccache.CachedDocument, error) {
	l := e.lockFor(path)
	l.Lock()
	defer l.Unlock()

	doc, err := e.load(path)
	if err != nil {
		return nil, err
	}
	parent, err := findHeading(doc, parentSlug)
	if err != nil {
		return nil, err
	}

	childDepth := parent.Depth + 1
	newSection := ensureTrailingNewline(headingLine(childDepth, title)) + "\n" + ensureTrailingNewline(body)
	r := doc.Ranges[parent.Index]
	insertAt := r.End
	prefix := doc.Content[:insertAt]
	if !strings.HasSuffix(prefix, "\n\n") {
		prefix = ensureTrailingNewline(prefix) + "\n"
	}
	newContent := prefix + newSection + doc.Content[insertAt:]
	return e.commit(path, newContent)
}

// Replace replaces a section's body, leaving its heading line and
// sub-tree boundaries intact.
func (e *Editor) Replace(path, slug, newBody string) (*doccache.CachedDocument, error) {
	l := e.lockFor(path)
	l.Lock()
	defer l.Unlock()

	doc, err := e.load(path)
	if err != nil {
		return nil, err
	}
	h, err := findHeading(doc, slug)
	if err != nil {
		return nil, err
	}

	r := doc.Ranges[h.Index]
	section := doc.Content[r.Start:r.End]
	lineEnd := strings.IndexByte(section, '\n')
	var headingPart, rest string
	if lineEnd == -1 {
		headingPart, rest = section, ""
	} else {
		headingPart, rest = section[:lineEnd+1], section[lineEnd+1:]
	}

	// Preserve trailing blank-line separation before the next heading,
	// and whatever immediate child sections already exist below newBody
	// is not representable here: Replace only touches the direct body
	// text preceding the first child heading (if any).
	firstChildOffset := len(rest)
	for _, child := range doc.Headings {
		if child.ParentIndex == h.Index {
			childRange := doc.Ranges[child.Index]
			firstChildOffset = childRange.Start - r.Start - len(headingPart)
			break
		}
	}
	if firstChildOffset < 0 || firstChildOffset > len(rest) {
		firstChildOffset = len(rest)
	}
	trailer := rest[firstChildOffset:]

	newSection := headingPart + ensureTrailingNewline(newBody) + trailer
	newContent := doc.Content[:r.Start] + newSection + doc.Content[r.End:]
	return e.commit(path, newContent)
}

// Rename changes a heading's title (and therefore its slug on the next
// parse). Referrers to the old slug are not rewritten — callers discover
// broken references via the analysis component.
func (e *Editor) Rename(path, slug, newTitle string) (*doccache.CachedDocument, error) {
	l := e.lockFor(path)
	l.Lock()
	defer l.Unlock()

	doc, err := e.load(path)
	if err != nil {
		return nil, err
	}
	h, err := findHeading(doc, slug)
	if err != nil {
		return nil, err
	}

	r := doc.Ranges[h.Index]
	section := doc.Content[r.Start:r.End]
	lineEnd := strings.IndexByte(section, '\n')
	if lineEnd == -1 {
		lineEnd = len(section)
	}
	newLine := headingLine(h.Depth, newTitle)
	newSection := newLine + section[lineEnd:]
	newContent := doc.Content[:r.Start] + newSection + doc.Content[r.End:]
	return e.commit(path, newContent)
}

// Delete removes a heading and its entire sub-tree.
func (e *Editor) Delete(path, slug string) (*doccache.CachedDocument, error) {
	l := e.lockFor(path)
	l.Lock()
	defer l.Unlock()

	doc, err := e.load(path)
	if err != nil {
		return nil, err
	}
	h, err := findHeading(doc, slug)
	if err != nil {
		return nil, err
	}

	r := doc.Ranges[h.Index]
	newContent := doc.Content[:r.Start] + doc.Content[r.End:]
	return e.commit(path, newContent)
}

// ArchiveDocument moves a document from path to archivedPath on disk,
// invalidating both cache entries so the next read of either virtual
// path is authoritative.
func (e *Editor) ArchiveDocument(path, archivedPath string) error {
	l := e.lockFor(path)
	l.Lock()
	defer l.Unlock()

	srcPhysical := e.resolver.Resolve(path)
	dstPhysical := e.resolver.Resolve(archivedPath)

	content, _, err := e.reader.ReadFile(srcPhysical)
	if err != nil {
		return apperr.Wrap(apperr.IOError, "read for archive failed", err)
	}
	if err := e.reader.MkdirAll(dstPhysical); err != nil {
		return apperr.Wrap(apperr.IOError, "mkdir for archive failed", err)
	}
	if err := e.reader.WriteFile(dstPhysical, content); err != nil {
		return apperr.Wrap(apperr.IOError, "write to archive failed", err)
	}
	if err := e.reader.Remove(srcPhysical); err != nil {
		return apperr.Wrap(apperr.IOError, "remove original after archive failed", err)
	}

	e.cache.InvalidateDocument(path)
	e.cache.InvalidateDocument(archivedPath)
	return nil
}

// Exists reports whether a document exists at the given virtual path.
func (e *Editor) Exists(path string) bool {
	return e.reader.Exists(e.resolver.Resolve(path))
}

// CreateDocument writes a brand-new document at path with the given raw
// content, failing if one already exists there.
func (e *Editor) CreateDocument(path, content string) (*doccache.CachedDocument, error) {
	l := e.lockFor(path)
	l.Lock()
	defer l.Unlock()

	physical := e.resolver.Resolve(path)
	if e.reader.Exists(physical) {
		return nil, apperr.New(apperr.ValidationError, "document already exists: "+path)
	}
	if err := e.reader.MkdirAll(physical); err != nil {
		return nil, apperr.Wrap(apperr.IOError, "mkdir failed", err)
	}
	return e.commit(path, content)
}

// titleHeadingSlug returns the slug of the document's H1, or "" if none
// exists.
func titleHeadingSlug(doc *doccache.CachedDocument) string {
	for _, h := range doc.Headings {
		if h.Depth == 1 {
			return h.Slug
		}
	}
	return ""
}

// FindTasksSection locates the document's "Tasks" H2 (case-insensitive),
// returning ok=false if none exists.
func FindTasksSection(doc *doccache.CachedDocument) (doccache.Heading, bool) {
	for _, h := range doc.Headings {
		if h.Depth == 2 && strings.EqualFold(strings.TrimSpace(h.Title), "tasks") {
			return h, true
		}
	}
	return doccache.Heading{}, false
}

// EnsureTasksSection returns the document's Tasks heading, auto-creating
// it as a depth-2 heading under the H1 title if absent. Fails with
// MissingDocumentTitle if the document has no H1.
func (e *Editor) EnsureTasksSection(path string) (doccache.Heading, error) {
	doc, err := e.load(path)
	if err != nil {
		return doccache.Heading{}, err
	}
	if h, ok := FindTasksSection(doc); ok {
		return h, nil
	}

	h1Slug := titleHeadingSlug(doc)
	if h1Slug == "" {
		return doccache.Heading{}, apperr.New(apperr.MissingDocumentTitle, path)
	}

	fresh, err := e.AppendChild(path, h1Slug, "Tasks", "")
	if err != nil {
		return doccache.Heading{}, err
	}
	h, ok := FindTasksSection(fresh)
	if !ok {
		return doccache.Heading{}, apperr.New(apperr.IOError, "tasks section missing after creation")
	}
	return h, nil
}
