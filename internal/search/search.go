// Package search implements the search_documents tool surface (spec.md
// §6): a linear scan over the cached document corpus for a fulltext or
// regex query, with optional surrounding context lines and truncation of
// over-long matches. Grounded on the teacher's internal/fs/search.go,
// whose ScopedSearchResultsNode.searchIssues does a case-insensitive
// substring match over each issue's identifier/title/description;
// generalized here from "does this issue match" to "which lines of this
// document match", line-oriented instead of whole-field, and with an
// added regex mode and match truncation neither issue search needed.
package search

import (
	"regexp"
	"strings"

	"mdforge/internal/apperr"
	"mdforge/internal/doccache"
)

// Type selects the match strategy.
type Type string

const (
	Fulltext Type = "fulltext"
	Regex    Type = "regex"
)

// Match is one matching line within a document.
type Match struct {
	Line      int
	MatchText string
	Context   []string
}

// DocumentResult collects every match within one document.
type DocumentResult struct {
	Path    string
	Matches []Match
}

// Result is the full search_documents response payload.
type Result struct {
	Query           string
	SearchType      Type
	Scope           string
	Results         []DocumentResult
	TotalMatches    int
	TotalDocuments  int
	Truncated       bool
}

// Options configures one search invocation; zero values are replaced by
// spec.md §6 defaults in Validate.
type Options struct {
	Query          string
	Type           Type
	Scope          string
	IncludeContext bool
	ContextLines   int
	MaxResults     int
	MaxMatchLength int
}

const (
	defaultMaxMatchLength = 80
	maxContextLines       = 10
	maxMaxMatchLength     = 500
	minMaxMatchLength     = 20
	defaultMaxResults     = 500
	maxMaxResults          = 500
)

// Validate applies defaults and checks the §6 parameter bounds,
// returning ValidationError/InvalidRegex on violation.
func (o *Options) Validate() error {
	if strings.TrimSpace(o.Query) == "" {
		return apperr.New(apperr.ValidationError, "query must not be empty")
	}
	if o.Type == "" {
		o.Type = Fulltext
	}
	if o.Type != Fulltext && o.Type != Regex {
		return apperr.New(apperr.ValidationError, "type must be fulltext or regex")
	}
	if o.Scope != "" && !strings.HasPrefix(o.Scope, "/") {
		return apperr.New(apperr.ValidationError, "scope must start with /")
	}
	if o.ContextLines < 0 || o.ContextLines > maxContextLines {
		return apperr.New(apperr.ValidationError, "context_lines must be between 0 and 10")
	}
	if o.MaxMatchLength == 0 {
		o.MaxMatchLength = defaultMaxMatchLength
	}
	if o.MaxMatchLength < minMaxMatchLength || o.MaxMatchLength > maxMaxMatchLength {
		return apperr.New(apperr.ValidationError, "max_match_length must be between 20 and 500")
	}
	if o.MaxResults == 0 {
		o.MaxResults = defaultMaxResults
	}
	if o.MaxResults < 0 || o.MaxResults > maxMaxResults {
		return apperr.New(apperr.ValidationError, "max_results must be between 1 and 500")
	}
	if o.Type == Regex {
		if _, err := regexp.Compile(o.Query); err != nil {
			return apperr.Wrap(apperr.InvalidRegex, "compiling search pattern", err)
		}
	}
	return nil
}

// Run scans every document cached under opts.Scope (or the whole corpus
// when Scope is empty) for lines matching opts.Query, collecting up to
// opts.MaxResults matches total across all documents.
func Run(cache *doccache.Cache, resolver interface {
	Resolve(string) string
}, opts Options) (Result, error) {
	if err := opts.Validate(); err != nil {
		return Result{}, err
	}

	var matcher func(line string) (string, bool)
	if opts.Type == Regex {
		re := regexp.MustCompile(opts.Query)
		matcher = func(line string) (string, bool) {
			loc := re.FindStringIndex(line)
			if loc == nil {
				return "", false
			}
			return line[loc[0]:loc[1]], true
		}
	} else {
		needle := strings.ToLower(opts.Query)
		matcher = func(line string) (string, bool) {
			idx := strings.Index(strings.ToLower(line), needle)
			if idx == -1 {
				return "", false
			}
			return line[idx : idx+len(opts.Query)], true
		}
	}

	summaries := cache.ListDocuments(opts.Scope)
	res := Result{Query: opts.Query, SearchType: opts.Type, Scope: opts.Scope, TotalDocuments: len(summaries)}

	total := 0
outer:
	for _, summary := range summaries {
		physical := resolver.Resolve(summary.Path)
		content, err := cache.GetDocumentContent(summary.Path, physical)
		if err != nil {
			continue
		}
		lines := strings.Split(content, "\n")
		var matches []Match
		for i, line := range lines {
			matchText, ok := matcher(line)
			if !ok {
				continue
			}
			matchText = truncate(matchText, opts.MaxMatchLength)
			m := Match{Line: i + 1, MatchText: matchText}
			if opts.IncludeContext {
				m.Context = contextAround(lines, i, opts.ContextLines)
			}
			matches = append(matches, m)
			total++
			if total >= opts.MaxResults {
				res.Truncated = true
				res.Results = append(res.Results, DocumentResult{Path: summary.Path, Matches: matches})
				break outer
			}
		}
		if len(matches) > 0 {
			res.Results = append(res.Results, DocumentResult{Path: summary.Path, Matches: matches})
		}
	}
	res.TotalMatches = total
	return res, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}

func contextAround(lines []string, i, n int) []string {
	if n <= 0 {
		return nil
	}
	start := i - n
	if start < 0 {
		start = 0
	}
	end := i + n + 1
	if end > len(lines) {
		end = len(lines)
	}
	return append([]string(nil), lines[start:end]...)
}
