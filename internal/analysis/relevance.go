package analysis

import (
	"sort"
	"strings"
	"time"

	"bitbucket.org/creachadair/stringset"
	"github.com/dustin/go-humanize"
)

// Profile is the analyzable projection of a document used on both sides
// of relevance scoring (spec.md §4.7: "source keywords + title +
// namespace + content" vs "candidate title + content + namespace +
// last-modified + path").
type Profile struct {
	Path         string
	Title        string
	Namespace    string
	Keywords     []string
	LastModified time.Time
}

// Factor is one named contribution to a relevance score.
type Factor struct {
	Name  string
	Score float64
}

// RelevanceResult carries the total score, its top-3 contributing
// factors, and a human-readable explanation.
type RelevanceResult struct {
	Total       float64
	Factors     []Factor
	Explanation string
}

// ComputeRelevance sums the four scoring factors, capping the total at
// 1.0, and returns the sorted top-3 factors with an explanation string.
func ComputeRelevance(source, target Profile, now time.Time) RelevanceResult {
	factors := []Factor{
		{"keyword_overlap", keywordOverlap(source.Keywords, target.Keywords)},
		{"title_similarity", titleSimilarity(source.Title, target.Title)},
		{"namespace_affinity", namespaceAffinity(source.Namespace, target.Namespace)},
		{"recency_boost", recencyBoost(target.LastModified, now)},
	}

	total := 0.0
	for _, f := range factors {
		total += f.Score
	}
	if total > 1.0 {
		total = 1.0
	}

	sort.Slice(factors, func(i, j int) bool { return factors[i].Score > factors[j].Score })
	top := factors
	if len(top) > 3 {
		top = top[:3]
	}

	return RelevanceResult{
		Total:       total,
		Factors:     top,
		Explanation: explain(top, target, now),
	}
}

// keywordOverlap is a weighted Jaccard similarity over keyword sets,
// scaled into [0, 0.7].
func keywordOverlap(a, b []string) float64 {
	sa, sb := stringset.New(a...), stringset.New(b...)
	if sa.Len() == 0 || sb.Len() == 0 {
		return 0
	}
	union := sa.Union(sb)
	if union.Len() == 0 {
		return 0
	}
	jaccard := float64(sa.Intersect(sb).Len()) / float64(union.Len())
	return jaccard * 0.7
}

// titleSimilarity is token-set similarity scaled into [0, 0.3]; an exact
// (case/whitespace-insensitive) match scores the full 0.3.
func titleSimilarity(a, b string) float64 {
	ta, tb := strings.ToLower(strings.TrimSpace(a)), strings.ToLower(strings.TrimSpace(b))
	if ta == "" || tb == "" {
		return 0
	}
	if ta == tb {
		return 0.3
	}
	sa, sb := stringset.New(tokenize(a)...), stringset.New(tokenize(b)...)
	if sa.Len() == 0 || sb.Len() == 0 {
		return 0
	}
	union := sa.Union(sb)
	if union.Len() == 0 {
		return 0
	}
	return (float64(sa.Intersect(sb).Len()) / float64(union.Len())) * 0.3
}

// namespaceAffinity: same namespace 0.2, ancestor/descendant 0.15,
// sibling (shared parent) 0.1, otherwise 0.
func namespaceAffinity(a, b string) float64 {
	if a == b {
		return 0.2
	}
	if isAncestor(a, b) || isAncestor(b, a) {
		return 0.15
	}
	if parentOf(a) == parentOf(b) {
		return 0.1
	}
	return 0
}

func isAncestor(parent, child string) bool {
	if parent == "root" {
		return child != "root"
	}
	return strings.HasPrefix(child, parent+"/")
}

func parentOf(ns string) string {
	if ns == "root" {
		return "root"
	}
	idx := strings.LastIndex(ns, "/")
	if idx == -1 {
		return "root"
	}
	return ns[:idx]
}

// recencyBoost: <=7d 0.1, <=30d 0.05, <=90d 0.02, else 0.
func recencyBoost(lastModified, now time.Time) float64 {
	age := now.Sub(lastModified)
	switch {
	case age <= 7*24*time.Hour:
		return 0.1
	case age <= 30*24*time.Hour:
		return 0.05
	case age <= 90*24*time.Hour:
		return 0.02
	default:
		return 0
	}
}

// explain renders the top factors into a one-line, human-readable
// summary. The recency factor is rendered as a relative time (e.g. "3
// days ago") via humanize.RelTime rather than a raw duration, matching
// the "last modified" recency strings browse_documents verbose mode
// surfaces.
func explain(top []Factor, target Profile, now time.Time) string {
	var parts []string
	for _, f := range top {
		if f.Score <= 0 {
			continue
		}
		switch f.Name {
		case "keyword_overlap":
			parts = append(parts, "strong keyword overlap")
		case "title_similarity":
			parts = append(parts, "a similar title")
		case "namespace_affinity":
			parts = append(parts, "namespace proximity")
		case "recency_boost":
			parts = append(parts, "a recent edit ("+humanize.RelTime(target.LastModified, now, "ago", "from now")+")")
		}
	}
	if len(parts) == 0 {
		return "No strong relevance signals found."
	}
	joined := strings.Join(parts, ", ")
	capitalized := strings.ToUpper(joined[:1]) + joined[1:]
	return capitalized + " in " + target.Namespace
}
