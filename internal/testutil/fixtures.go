// Package testutil carries fixture builders for mdforge's package tests,
// adapted from the teacher's Linear-API fixture builders
// (internal/testutil/fixtures.go in the donor) to markdown documents:
// plain content strings and small content builders instead of GraphQL
// response maps.
package testutil

import "strings"

// FixtureDocument returns a minimal single-heading document.
func FixtureDocument(title, body string) string {
	return "# " + title + "\n\n" + body
}

// FixtureDocumentWithFrontmatter prepends a YAML frontmatter block
// ahead of the heading, for keyword-extraction and reference tests that
// need frontmatter-sourced keywords.
func FixtureDocumentWithFrontmatter(frontmatter, title, body string) string {
	return "---\n" + frontmatter + "---\n# " + title + "\n\n" + body
}

// FixtureTasksDocument returns a document with a Tasks section
// containing the given task bodies, each rendered as an H3 under
// "## Tasks". Each entry's Title is used as the heading text and Body
// as the section content (without the heading line).
func FixtureTasksDocument(title string, tasks ...FixtureTask) string {
	var b strings.Builder
	b.WriteString("# ")
	b.WriteString(title)
	b.WriteString("\n\n## Tasks\n\n")
	for _, t := range tasks {
		b.WriteString("### ")
		b.WriteString(t.Title)
		b.WriteString("\n\n")
		b.WriteString(t.Body)
		if !strings.HasSuffix(t.Body, "\n") {
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// FixtureTask is one entry for FixtureTasksDocument.
type FixtureTask struct {
	Title string
	Body  string
}

// FixtureCoordinatorDocument returns the default template
// ensureCoordinatorDocument creates on first use, for tests that need
// to seed /coordinator/active.md directly instead of exercising
// auto-creation.
func FixtureCoordinatorDocument(tasks ...FixtureTask) string {
	return FixtureTasksDocument("Coordinator Active Tasks", tasks...)
}

// FixtureTaskBody renders a task body from its metadata fields using
// the default "-" marker, the same shape setField produces for newly
// added fields.
func FixtureTaskBody(status, workflow, mainWorkflow string, extra ...string) string {
	var lines []string
	if status != "" {
		lines = append(lines, "- Status: "+status)
	}
	if workflow != "" {
		lines = append(lines, "- Workflow: "+workflow)
	}
	if mainWorkflow != "" {
		lines = append(lines, "- Main-Workflow: "+mainWorkflow)
	}
	lines = append(lines, extra...)
	return strings.Join(lines, "\n") + "\n"
}
