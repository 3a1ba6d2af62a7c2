package task

import (
	"regexp"
	"strings"
)

// marker identifies which of the four markup flavors a metadata field was
// written with (spec.md §4.6: "- Label:", "* Label:", "**Label:**", or
// bare "Label:").
type marker int

const (
	markerDash marker = iota
	markerStar
	markerBold
	markerPlain
)

type fieldMatch struct {
	marker     marker
	value      string
	lineStart  int
	lineEnd    int
	foundLabel string
}

func fieldRegex(label string) *regexp.Regexp {
	escaped := regexp.QuoteMeta(label)
	pattern := `(?m)^(?:-\s+` + escaped + `:|\*\s+` + escaped + `:|\*\*` + escaped + `:\*\*|` + escaped + `:)[ \t]?(.*)$`
	return regexp.MustCompile(pattern)
}

// extractField returns the first line-start match of label in one of the
// four markup flavors. A bold-open-without-close ("**Label: value") does
// not match any branch and is correctly treated as absent.
func extractField(body, label string) (fieldMatch, bool) {
	re := fieldRegex(label)
	loc := re.FindStringSubmatchIndex(body)
	if loc == nil {
		return fieldMatch{}, false
	}
	full := body[loc[0]:loc[1]]

	var m marker
	switch {
	case strings.HasPrefix(full, "- "):
		m = markerDash
	case strings.HasPrefix(full, "* "):
		m = markerStar
	case strings.HasPrefix(full, "**"):
		m = markerBold
	default:
		m = markerPlain
	}

	value := ""
	if loc[2] != -1 {
		value = body[loc[2]:loc[3]]
	}

	return fieldMatch{
		marker:     m,
		value:      value,
		lineStart:  loc[0],
		lineEnd:    loc[1],
		foundLabel: label,
	}, true
}

func renderFieldLine(m marker, label, value string) string {
	switch m {
	case markerDash:
		return "- " + label + ": " + value
	case markerStar:
		return "* " + label + ": " + value
	case markerBold:
		return "**" + label + ":** " + value
	default:
		return label + ": " + value
	}
}

// setField writes label: value into body, preserving the existing
// marker style if the field is already present, or appending a new line
// with the "-" marker (the default for newly added metadata, spec.md
// §4.5) if absent.
func setField(body, label, value string) string {
	m, ok := extractField(body, label)
	if !ok {
		return appendLine(body, renderFieldLine(markerDash, label, value))
	}
	newLine := renderFieldLine(m.marker, label, value)
	return body[:m.lineStart] + newLine + body[m.lineEnd:]
}

// setStatusCompleted implements the completion-specific rule: preserve
// the existing Status marker if present, otherwise prepend a bold-format
// entry to the front of the body (spec.md §4.6 step 1).
func setStatusCompleted(body string) string {
	m, ok := extractField(body, "Status")
	if ok {
		newLine := renderFieldLine(m.marker, "Status", "completed")
		return body[:m.lineStart] + newLine + body[m.lineEnd:]
	}
	prefix := renderFieldLine(markerBold, "Status", "completed")
	if body == "" {
		return prefix + "\n"
	}
	return prefix + "\n" + body
}

func appendLine(body, line string) string {
	if body == "" {
		return line + "\n"
	}
	if strings.HasSuffix(body, "\n") {
		return body + line + "\n"
	}
	return body + "\n" + line + "\n"
}

var refRe = regexp.MustCompile(`@(/[^\s)]+|[A-Za-z0-9_-]+(?:\.md)?(?:#[A-Za-z0-9/_-]+)?)`)

// extractReferences returns the raw @-reference strings found in body, in
// first-seen order, deduplicated. This only backs the cheap HasReferences
// boolean list mode needs; resolving and loading the references themselves
// is internal/refgraph's job, driven from taskFromHeading in detail mode.
func extractReferences(body string) []string {
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
