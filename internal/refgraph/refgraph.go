// Package refgraph implements the Reference Extractor & Loader
// component (spec.md §2 table, §9 design note): it finds @/path.md[#slug]
// references in a task or section body and recursively loads the
// referenced sections to a configuration-bounded depth, guarding against
// cycles with a visited set shared across one top-level load.
//
// Grounded on the teacher's internal/sync.Worker, which threads
// context.Context through every blocking collaborator call and fans out
// concurrent work with golang.org/x/sync/errgroup (internal/sync/worker.go
// syncAllTeams); here the "collaborator calls" are doccache.Cache.GetDocument
// lookups instead of Linear API requests.
package refgraph

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"mdforge/internal/address"
	"mdforge/internal/doccache"
)

var refRe = regexp.MustCompile(`@(/[^\s)]*[^\s).,;:!?]|[A-Za-z0-9_-]+(?:\.md)?(?:#[A-Za-z0-9/_-]+)?)`)

// ExtractRaw returns the raw @-reference strings found in body, in
// first-seen order, deduplicated.
func ExtractRaw(body string) []string {
	matches := refRe.FindAllString(body, -1)
	seen := make(map[string]bool, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

// Node is one loaded reference: the resolved document, the specific
// section content if a #slug was given (or the whole document body
// otherwise), and its own references loaded one level deeper, down to
// the configured bound.
type Node struct {
	Raw      string
	Path     string
	Slug     string
	Title    string
	Content  string
	Children []Node
}

// Loader resolves and recursively loads @-references.
type Loader struct {
	cache    *doccache.Cache
	resolver *address.Resolver
	maxDepth int
}

// New builds a Loader bounded to maxDepth levels of recursive loading
// (spec.md: "Depth is configuration-bounded"). A maxDepth of 0 or less
// is treated as 1 (always resolve the top-level references themselves).
func New(cache *doccache.Cache, resolver *address.Resolver, maxDepth int) *Loader {
	if maxDepth <= 0 {
		maxDepth = 1
	}
	return &Loader{cache: cache, resolver: resolver, maxDepth: maxDepth}
}

// Load resolves every @-reference in body (relative references resolve
// against sourceNamespace) and recursively loads their own references
// down to the configured depth. A single visited set is shared across
// the whole call so a cycle terminates quietly rather than looping or
// erroring (spec.md §9: "maintain a visited-set per top-level load to
// terminate on cycles without error").
func (l *Loader) Load(ctx context.Context, sourceNamespace, body string) ([]Node, error) {
	visited := &sync.Map{}
	return l.loadLevel(ctx, sourceNamespace, body, 1, visited)
}

func (l *Loader) loadLevel(ctx context.Context, sourceNamespace, body string, depth int, visited *sync.Map) ([]Node, error) {
	raws := ExtractRaw(body)
	if len(raws) == 0 {
		return nil, nil
	}

	nodes := make([]Node, len(raws))
	g, gctx := errgroup.WithContext(ctx)
	for i, raw := range raws {
		i, raw := i, raw
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			node, ok := l.resolveOne(sourceNamespace, raw)
			if !ok {
				return nil
			}
			key := node.Path + "#" + node.Slug
			if _, already := visited.LoadOrStore(key, true); already {
				return nil
			}
			if depth < l.maxDepth {
				children, err := l.loadLevel(gctx, node.namespace, node.Content, depth+1, visited)
				if err != nil {
					return err
				}
				node.Children = children
			}
			nodes[i] = node.Node
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		if n.Path != "" {
			out = append(out, n)
		}
	}
	return out, nil
}

// resolvedNode carries the resolved document's namespace alongside the
// public Node so recursive loads know what "relative" means one level
// deeper, without leaking the field onto the public type.
type resolvedNode struct {
	Node
	namespace string
}

func (l *Loader) resolveOne(sourceNamespace, raw string) (resolvedNode, bool) {
	body := strings.TrimPrefix(raw, "@")
	docPart, slugPart, hasSlug := strings.Cut(body, "#")

	var virtualPath string
	switch {
	case strings.HasPrefix(docPart, "/"):
		if !strings.HasSuffix(docPart, ".md") {
			return resolvedNode{}, false
		}
		virtualPath = docPart
	case docPart == "":
		return resolvedNode{}, false
	default:
		name := docPart
		if !strings.HasSuffix(name, ".md") {
			name += ".md"
		}
		if sourceNamespace == "root" {
			virtualPath = "/" + name
		} else {
			virtualPath = "/" + sourceNamespace + "/" + name
		}
	}

	physical := l.resolver.Resolve(virtualPath)
	doc, err := l.cache.GetDocument(virtualPath, physical)
	if err != nil {
		return resolvedNode{}, false
	}

	title := doc.Metadata.Title
	content := doc.Content
	if hasSlug {
		idx, ok := doc.HeadingByPath(slugPart)
		if !ok {
			return resolvedNode{}, false
		}
		title = doc.Headings[idx].Title
		content = sectionBody(doc, idx)
	}

	return resolvedNode{
		Node: Node{
			Raw:     raw,
			Path:    virtualPath,
			Slug:    slugPart,
			Title:   title,
			Content: content,
		},
		namespace: doc.Metadata.Namespace,
	}, true
}

func sectionBody(doc *doccache.CachedDocument, idx int) string {
	section := doc.Section(idx)
	nl := strings.IndexByte(section, '\n')
	if nl == -1 {
		return ""
	}
	return section[nl+1:]
}
