// Package address implements the virtual-path model described in the
// spec's Path Resolver, Address Parser and Address Cache components:
// mapping namespaced virtual paths (docs/, coordinator/, archived/) to
// physical filesystem locations and parsing document/section/task
// addresses from user-supplied strings.
package address

import (
	"path"
	"strings"

	"mdforge/internal/apperr"
)

// Resolver maps virtual paths onto the physical workspace layout. It is
// pure and holds only the three root directories derived from the
// workspace root, mirroring the teacher's PathResolver-less but
// root-carrying LinearFS construction (internal/fs/linearfs.go), where
// roots are computed once and reused for every lookup.
type Resolver struct {
	workspaceRoot string
	docsRoot      string
	coordRoot     string
	archiveRoot   string
}

// NewResolver builds a Resolver rooted at workspaceRoot.
func NewResolver(workspaceRoot string) *Resolver {
	return &Resolver{
		workspaceRoot: workspaceRoot,
		docsRoot:      path.Join(workspaceRoot, "docs"),
		coordRoot:     path.Join(workspaceRoot, "coordinator"),
		archiveRoot:   path.Join(workspaceRoot, "archived"),
	}
}

func (r *Resolver) GetDocsRoot() string      { return r.docsRoot }
func (r *Resolver) GetCoordinatorRoot() string { return r.coordRoot }
func (r *Resolver) GetArchivedRoot() string  { return r.archiveRoot }

// IsCoordinatorPath reports whether a canonical virtual path lives under
// the coordinator namespace.
func (r *Resolver) IsCoordinatorPath(virtual string) bool {
	return strings.HasPrefix(canonicalize(virtual), "/coordinator/")
}

// IsArchivedPath reports whether a canonical virtual path lives under the
// archived namespace.
func (r *Resolver) IsArchivedPath(virtual string) bool {
	return strings.HasPrefix(canonicalize(virtual), "/archived/")
}

// Resolve maps a virtual path to its physical location. Consecutive
// slashes are collapsed here (Open Question D.1 in SPEC_FULL.md); the
// address parser, by contrast, preserves the caller's string verbatim so
// the path<->(namespace,slug) bijection holds on whatever the caller
// typed.
func (r *Resolver) Resolve(virtual string) string {
	v := collapseSlashes(canonicalize(virtual))

	switch {
	case strings.HasPrefix(v, "/coordinator/"):
		rest := strings.TrimPrefix(v, "/coordinator/")
		return path.Join(r.coordRoot, rest)
	case strings.HasPrefix(v, "/archived/"):
		rest := strings.TrimPrefix(v, "/archived/")
		return path.Join(r.archiveRoot, rest)
	default:
		return path.Join(r.docsRoot, strings.TrimPrefix(v, "/"))
	}
}

// Virtualize is the inverse of Resolve: given a physical path under one
// of the three roots, it returns the canonical virtual path. It reports
// false if the physical path falls outside every root.
func (r *Resolver) Virtualize(physical string) (string, bool) {
	if rest, ok := relTo(physical, r.coordRoot); ok {
		return path.Join("/coordinator", rest), true
	}
	if rest, ok := relTo(physical, r.archiveRoot); ok {
		return path.Join("/archived", rest), true
	}
	if rest, ok := relTo(physical, r.docsRoot); ok {
		return "/" + rest, true
	}
	return "", false
}

func relTo(physical, root string) (string, bool) {
	prefix := root + "/"
	if !strings.HasPrefix(physical, prefix) {
		return "", false
	}
	return strings.TrimPrefix(physical, prefix), true
}

// canonicalize prepends a leading slash if missing; it never collapses
// repeated slashes so callers who need the original string (the address
// parser) can ask for it untouched.
func canonicalize(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		return "/" + p
	}
	return p
}

func collapseSlashes(p string) string {
	var b strings.Builder
	b.Grow(len(p))
	prevSlash := false
	for _, r := range p {
		if r == '/' {
			if prevSlash {
				continue
			}
			prevSlash = true
		} else {
			prevSlash = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// rejectEscape returns an error if any path segment is "..", preventing a
// virtual path from escaping its base root.
func rejectEscape(virtual string) error {
	for _, seg := range strings.Split(virtual, "/") {
		if seg == ".." {
			return apperr.New(apperr.InvalidAddress, "path may not contain .. segments")
		}
	}
	return nil
}
