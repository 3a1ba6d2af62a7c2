package analysis

import (
	"regexp"
	"strings"

	"bitbucket.org/creachadair/stringset"

	"mdforge/internal/address"
	"mdforge/internal/doccache"
)

// ReferenceStatus classifies one @-reference found in a document's
// content (spec.md §4.7).
type ReferenceStatus string

const (
	RefValid           ReferenceStatus = "valid"
	RefMissingDocument ReferenceStatus = "missing_document"
	RefMissingSection  ReferenceStatus = "missing_section"
	RefMalformed       ReferenceStatus = "malformed"
)

// Reference is one classified @-reference.
type Reference struct {
	Raw          string
	Status       ReferenceStatus
	ResolvedPath string
	Slug         string
}

var refScanRe = regexp.MustCompile(`@(/[^\s)]*[^\s).,;:!?]|[A-Za-z0-9_-]+(?:\.md)?(?:#[A-Za-z0-9/_-]+)?)`)

// ClassifyReferences scans a document's content for @/path.md[#slug]
// (absolute) and @bare-name[.md][#slug] (namespace-relative) references,
// resolving each against the cache and deduplicating by reference
// string.
func ClassifyReferences(cache *doccache.Cache, resolver *address.Resolver, doc *doccache.CachedDocument) []Reference {
	matches := refScanRe.FindAllString(doc.Content, -1)
	seen := stringset.New()
	out := make([]Reference, 0, len(matches))
	for _, raw := range matches {
		if seen.Contains(raw) {
			continue
		}
		seen.Add(raw)
		out = append(out, classifyOne(cache, resolver, doc, raw))
	}
	return out
}

func classifyOne(cache *doccache.Cache, resolver *address.Resolver, sourceDoc *doccache.CachedDocument, raw string) Reference {
	body := strings.TrimPrefix(raw, "@")
	docPart, slugPart, hasSlug := strings.Cut(body, "#")

	var virtualPath string
	switch {
	case strings.HasPrefix(docPart, "/"):
		if !strings.HasSuffix(docPart, ".md") {
			return Reference{Raw: raw, Status: RefMalformed}
		}
		virtualPath = docPart
	case docPart == "":
		return Reference{Raw: raw, Status: RefMalformed}
	default:
		name := docPart
		if !strings.HasSuffix(name, ".md") {
			name += ".md"
		}
		if sourceDoc.Metadata.Namespace == "root" {
			virtualPath = "/" + name
		} else {
			virtualPath = "/" + sourceDoc.Metadata.Namespace + "/" + name
		}
	}

	physical := resolver.Resolve(virtualPath)
	target, err := cache.GetDocument(virtualPath, physical)
	if err != nil {
		return Reference{Raw: raw, Status: RefMissingDocument}
	}

	if hasSlug {
		if _, ok := target.HeadingByPath(slugPart); !ok {
			return Reference{Raw: raw, Status: RefMissingSection, ResolvedPath: virtualPath}
		}
		return Reference{Raw: raw, Status: RefValid, ResolvedPath: virtualPath, Slug: slugPart}
	}
	return Reference{Raw: raw, Status: RefValid, ResolvedPath: virtualPath}
}
