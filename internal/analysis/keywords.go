// Package analysis implements the Document Analysis component (spec.md
// §4.7): keyword extraction, multi-factor relevance scoring, broken
// reference classification, and the two-stage related-document filter.
package analysis

import (
	"regexp"
	"sort"
	"strings"

	"bitbucket.org/creachadair/stringset"

	"mdforge/internal/doccache"
)

const maxKeywords = 80

// stopWords is a static English stop-word list. No example repo in the
// retrieval pack ships an NLP/tokenizer library (golang.org/x/text only
// covers Unicode normalization, not stop-word removal), so this list is
// hand-maintained rather than sourced from a third-party dependency.
var stopWords = stringset.New(
	"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with",
	"is", "are", "was", "were", "be", "been", "being", "this", "that", "these", "those", "it", "its", "as", "from",
	"into", "over", "under", "about", "after", "before", "between", "during", "through", "not", "no", "so", "such",
	"can", "will", "would", "should", "could", "may", "might", "must", "do", "does", "did", "has", "have", "had",
	"you", "your", "we", "our", "they", "their", "he", "she", "his", "her", "i", "me", "my", "all", "any", "each",
)

var (
	wordRe     = regexp.MustCompile(`[A-Za-z0-9']+`)
	emphasisRe = regexp.MustCompile(`\*\*([^*]+)\*\*|\*([^*]+)\*`)
)

func tokenize(text string) []string {
	words := wordRe.FindAllString(strings.ToLower(text), -1)
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.Trim(w, "'")
		if len(w) < 2 || stopWords.Contains(w) {
			continue
		}
		out = append(out, w)
	}
	return out
}

// ExtractKeywords implements doccache.KeywordFunc. Stage 1 prefers a
// frontmatter "keywords" list; stage 2 falls back to weighted extraction
// from title, headings, emphasized spans, and body content.
func ExtractKeywords(doc *doccache.CachedDocument) []string {
	if kws, ok := frontmatterKeywords(doc); ok {
		return kws
	}
	return extractWeighted(doc)
}

func frontmatterKeywords(doc *doccache.CachedDocument) ([]string, bool) {
	raw, ok := doc.Frontmatter["keywords"]
	if !ok {
		return nil, false
	}
	list, ok := raw.([]any)
	if !ok || len(list) == 0 {
		return nil, false
	}

	seen := stringset.New()
	out := make([]string, 0, len(list))
	for _, v := range list {
		s, ok := v.(string)
		if !ok {
			continue
		}
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || seen.Contains(s) {
			continue
		}
		seen.Add(s)
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

// extractWeighted tokenizes title > headings > emphasis > content with
// decreasing weights, de-duplicating by keyword and capping the result.
func extractWeighted(doc *doccache.CachedDocument) []string {
	acc := make(map[string]float64)
	order := make([]string, 0, 64)

	add := func(text string, weight float64) {
		for _, w := range tokenize(text) {
			if _, ok := acc[w]; !ok {
				order = append(order, w)
			}
			acc[w] += weight
		}
	}

	add(doc.Metadata.Title, 4.0)
	for _, h := range doc.Headings {
		add(h.Title, 3.0)
	}
	for _, m := range emphasisRe.FindAllStringSubmatch(doc.Content, -1) {
		text := m[1]
		if text == "" {
			text = m[2]
		}
		add(text, 2.0)
	}
	add(doc.Content, 1.0)

	sort.Slice(order, func(i, j int) bool {
		if acc[order[i]] != acc[order[j]] {
			return acc[order[i]] > acc[order[j]]
		}
		return order[i] < order[j]
	})

	if len(order) > maxKeywords {
		order = order[:maxKeywords]
	}
	return order
}
