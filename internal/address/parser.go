package address

import (
	"fmt"
	"path"
	"strings"

	"mdforge/internal/apperr"
)

// DocumentAddress identifies a document by its canonical virtual path.
// The invariant from spec.md §3 holds: path <-> (namespace, slug) is a
// total bijection after canonicalization.
type DocumentAddress struct {
	Path           string // canonical, leading '/', ends in .md
	Slug           string // file stem
	Namespace      string // dotted/joined parent directory chain, or "root"
	NormalizedPath string
	CacheKey       string // == Path
}

// SectionAddress identifies a section within a document by slug. Slugs
// may contain '/' to represent hierarchical headings.
type SectionAddress struct {
	Document DocumentAddress
	Slug     string
	FullPath string // "{document.Path}#{slug}"
}

// TaskAddress is a SectionAddress known (or assumed, pending validation
// against the parsed document) to address a task heading.
type TaskAddress struct {
	SectionAddress
	IsTask bool
}

const maxBatchSlugs = 10

// ParseDocument parses a document address from a user-supplied string.
//
//  1. empty/whitespace-only input is rejected
//  2. input not ending in ".md" is rejected
//  3. a leading "/" is prepended if missing
//  4. slug is the file stem; namespace is the parent directory chain
//     joined by "/", or the literal "root" if there is none
func ParseDocument(input string) (DocumentAddress, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return DocumentAddress{}, apperr.New(apperr.InvalidAddress, "empty path")
	}
	if !strings.HasSuffix(trimmed, ".md") {
		return DocumentAddress{}, apperr.New(apperr.InvalidAddress, "missing .md")
	}

	canon := trimmed
	if !strings.HasPrefix(canon, "/") {
		canon = "/" + canon
	}
	if err := rejectEscape(canon); err != nil {
		return DocumentAddress{}, err
	}

	base := path.Base(canon)
	slug := strings.TrimSuffix(base, ".md")
	if slug == "" {
		return DocumentAddress{}, apperr.New(apperr.InvalidAddress, "empty slug after #")
	}

	dir := strings.TrimSuffix(canon, base)
	dir = strings.Trim(dir, "/")
	namespace := "root"
	if dir != "" {
		namespace = dir
	}

	return DocumentAddress{
		Path:           canon,
		Slug:           slug,
		Namespace:      namespace,
		NormalizedPath: canon,
		CacheKey:       canon,
	}, nil
}

// ParseSection parses a section reference, accepting a bare slug, a
// "#slug" form, a fully-qualified "path.md#slug" form, or a hierarchical
// "a/b/c" slug. When the reference carries no document component,
// context (a document virtual path) is required.
func ParseSection(ref string, context string) (SectionAddress, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return SectionAddress{}, apperr.New(apperr.InvalidAddress, "empty path")
	}

	docPart, slugPart, hasHash := strings.Cut(ref, "#")

	var docInput string
	var slug string
	switch {
	case hasHash && docPart != "":
		// fully-qualified path.md#slug
		docInput = docPart
		slug = slugPart
	case hasHash:
		// "#slug"
		if context == "" {
			return SectionAddress{}, apperr.New(apperr.InvalidAddress, "document context required")
		}
		docInput = context
		slug = slugPart
	default:
		// bare slug or hierarchical slug, e.g. "a/b/c"
		if context == "" {
			return SectionAddress{}, apperr.New(apperr.InvalidAddress, "document context required")
		}
		docInput = context
		slug = ref
	}

	if slug == "" {
		return SectionAddress{}, apperr.New(apperr.InvalidAddress, "empty slug after #")
	}

	doc, err := ParseDocument(docInput)
	if err != nil {
		return SectionAddress{}, err
	}

	return SectionAddress{
		Document: doc,
		Slug:     slug,
		FullPath: fmt.Sprintf("%s#%s", doc.Path, slug),
	}, nil
}

// ParseTask parses a task reference identically to ParseSection, marking
// the result as a task address. Whether the slug truly addresses an H3
// under "Tasks" is validated later, against the parsed document.
func ParseTask(ref string, context string) (TaskAddress, error) {
	sec, err := ParseSection(ref, context)
	if err != nil {
		return TaskAddress{}, err
	}
	return TaskAddress{SectionAddress: sec, IsTask: true}, nil
}

// ParseTaskSlugs splits a comma-separated list of task slugs for the
// "multiple slugs" form accepted by view_subagent_task, enforcing the
// tool-level cap of 10 per call (§6).
func ParseTaskSlugs(refs string, context string) ([]TaskAddress, error) {
	parts := strings.Split(refs, ",")
	if len(parts) > maxBatchSlugs {
		return nil, apperr.New(apperr.InvalidAddress, "task count exceeds limit")
	}
	out := make([]TaskAddress, 0, len(parts))
	for _, p := range parts {
		ta, err := ParseTask(strings.TrimSpace(p), context)
		if err != nil {
			return nil, err
		}
		out = append(out, ta)
	}
	return out, nil
}
