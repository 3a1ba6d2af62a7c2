package doccache

import (
	"crypto/sha256"
	"encoding/hex"
	"log"
	"regexp"
	"strings"
	"time"

	"mdforge/internal/address"
	"mdforge/internal/marshal"
)

var (
	headingLineRe = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)
	linkRe        = regexp.MustCompile(`\[[^\]]*\]\([^)]+\)`)
	codeBlockRe   = regexp.MustCompile("(?m)^```")
)

// contentHash computes a stable digest of a document's raw bytes,
// grounded on the sha256-based hashing the sibling mcp-md-index indexer
// uses to detect changed files (_examples/other_examples).
func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Parse turns raw markdown bytes into a CachedDocument. lastModified and
// path are supplied by the caller (the filesystem layer), everything else
// is derived from content.
func Parse(path, content string, lastModified time.Time) (*CachedDocument, error) {
	doc, err := marshal.Parse([]byte(content))
	if err != nil {
		// Malformed frontmatter is logged here and otherwise ignored
		// (SPEC_FULL D.2); we still parse the body as plain content.
		log.Printf("doccache: ignoring frontmatter of %s: %v", path, err)
		doc = &marshal.Document{Frontmatter: map[string]any{}, Body: content}
	}

	lines := strings.Split(content, "\n")
	headings := make([]Heading, 0, 8)
	ranges := make([]Range, 0, 8)
	slugger := newUniqueSlugger()

	// byte offset of the start of each line
	offsets := make([]int, len(lines)+1)
	pos := 0
	for i, l := range lines {
		offsets[i] = pos
		pos += len(l) + 1 // +1 for the newline we split on
	}
	offsets[len(lines)] = len(content)

	// ancestor stack holds heading indices in increasing depth order
	var stack []int

	for i, line := range lines {
		m := headingLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		depth := len(m[1])
		title := strings.TrimSpace(strings.TrimRight(m[2], "#"))
		title = strings.TrimSpace(title)

		for len(stack) > 0 && headings[stack[len(stack)-1]].Depth >= depth {
			stack = stack[:len(stack)-1]
		}
		parentIdx := -1
		if len(stack) > 0 {
			parentIdx = stack[len(stack)-1]
		}

		idx := len(headings)
		h := Heading{
			Slug:        slugger.next(title),
			Title:       title,
			Depth:       depth,
			Index:       idx,
			ParentIndex: parentIdx,
		}
		headings = append(headings, h)
		ranges = append(ranges, Range{Start: offsets[i]})
		stack = append(stack, idx)
	}

	// close out each heading's range at the next heading of
	// equal-or-lesser depth, or EOF
	for i := range headings {
		end := len(content)
		for j := i + 1; j < len(headings); j++ {
			if headings[j].Depth <= headings[i].Depth {
				end = ranges[j].Start
				break
			}
		}
		ranges[i].End = end
	}

	slugIndex := make(map[string]int, len(headings))
	toc := make([]string, 0, len(headings))
	for _, h := range headings {
		slugIndex[h.Slug] = h.Index
		toc = append(toc, strings.Repeat("  ", h.Depth-1)+"- "+h.Title)
	}

	title := documentTitle(doc.Frontmatter, headings)

	namespace := "root"
	if addr, err := address.ParseDocument(path); err == nil {
		namespace = addr.Namespace
	}

	return &CachedDocument{
		Metadata: Metadata{
			Path:           path,
			Title:          title,
			Namespace:      namespace,
			LastModified:   lastModified,
			ContentHash:    contentHash(content),
			WordCount:      countWords(doc.Body),
			LinkCount:      len(linkRe.FindAllString(content, -1)),
			CodeBlockCount: len(codeBlockRe.FindAllString(content, -1)) / 2,
		},
		Headings:    headings,
		Ranges:      ranges,
		TOC:         toc,
		SlugIndex:   slugIndex,
		Content:     content,
		Frontmatter: doc.Frontmatter,
	}, nil
}

func documentTitle(frontmatter map[string]any, headings []Heading) string {
	if t, ok := frontmatter["title"].(string); ok && t != "" {
		return t
	}
	for _, h := range headings {
		if h.Depth == 1 {
			return h.Title
		}
	}
	return ""
}

func countWords(body string) int {
	return len(strings.Fields(body))
}
