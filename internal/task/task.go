// Package task implements the Task Engine component (spec.md §4.6):
// task CRUD over a document's Tasks section, the completion lifecycle,
// and the sequential (coordinator) vs ad-hoc (subagent) operating modes.
package task

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"mdforge/internal/address"
	"mdforge/internal/apperr"
	"mdforge/internal/doccache"
	"mdforge/internal/editor"
	"mdforge/internal/refgraph"
)

// CoordinatorActivePath is the fixed document sequential operations act
// on.
const CoordinatorActivePath = "/coordinator/active.md"

// Clock abstracts wall-clock time so completion/archive timestamps are
// deterministic in tests, mirroring the injected Clock in the sibling
// mcp-md-index indexer (_examples/other_examples).
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Task is a flattened view of one H3 heading under a document's Tasks
// section. Content and ReferencedDocuments are populated only in detail
// mode; list mode omits them for response size (spec.md §4.6).
// ReferencedDocuments carries the bounded-depth loaded reference graph
// (spec.md §3: "loaded bounded graph"), not just the raw @-reference
// strings; HasReferences is the cheap boolean every mode gets, derived
// from the same raw scan without paying for any loading.
type Task struct {
	Slug                string
	Title               string
	Depth               int
	Status              string
	Workflow            string
	HasWorkflow         bool
	MainWorkflow        string
	HasMainWorkflow     bool
	Content             string
	WordCount           int
	HasReferences       bool
	ReferencedDocuments []refgraph.Node
}

// CompletionResult carries the outcome of CompleteTask.
type CompletionResult struct {
	Task          Task
	CompletedDate string
	Note          string
	NextTask      *Task
	Archived      bool
	ArchivedTo    string
}

// Engine wires the Task Engine to its collaborators: the Document Cache
// for reads, the Section Editor for mutations, the Path Resolver for
// virtual-to-physical translation, and the Reference Loader that detail
// mode uses to resolve @-references into loaded sections.
type Engine struct {
	cache    *doccache.Cache
	editor   *editor.Editor
	resolver *address.Resolver
	clock    Clock
	loader   *refgraph.Loader
}

func New(cache *doccache.Cache, ed *editor.Editor, resolver *address.Resolver, loader *refgraph.Loader) *Engine {
	return &Engine{cache: cache, editor: ed, resolver: resolver, clock: realClock{}, loader: loader}
}

// NewWithClock is the test-facing constructor, allowing a fake Clock so
// completion dates and archive filenames are deterministic.
func NewWithClock(cache *doccache.Cache, ed *editor.Editor, resolver *address.Resolver, loader *refgraph.Loader, clock Clock) *Engine {
	return &Engine{cache: cache, editor: ed, resolver: resolver, clock: clock, loader: loader}
}

func isTaskHeading(doc *doccache.CachedDocument, idx int) bool {
	h := doc.Headings[idx]
	if h.Depth != 3 || h.ParentIndex == -1 {
		return false
	}
	parent := doc.Headings[h.ParentIndex]
	return parent.Depth == 2 && strings.EqualFold(strings.TrimSpace(parent.Title), "tasks")
}

// taskHeadingIndices returns, in document order, the indices of every H3
// heading whose nearest H2 ancestor is titled "Tasks".
func taskHeadingIndices(doc *doccache.CachedDocument) []int {
	var out []int
	for i := range doc.Headings {
		if isTaskHeading(doc, i) {
			out = append(out, i)
		}
	}
	return out
}

// bodyOf returns a heading's section content with the heading line
// itself stripped off.
func bodyOf(doc *doccache.CachedDocument, idx int) string {
	section := doc.Section(idx)
	nl := strings.IndexByte(section, '\n')
	if nl == -1 {
		return ""
	}
	return section[nl+1:]
}

func mustIndex(doc *doccache.CachedDocument, slug string) int {
	idx, _ := doc.HeadingByPath(slug)
	return idx
}

// taskFromHeading builds the flattened Task view. In detail mode it also
// drives the reference loader over the task body; a loader failure (a
// broken reference, an I/O error on a collaborator read) degrades to an
// empty ReferencedDocuments rather than failing the whole lookup, since
// the task itself is still valid without its reference graph.
func (e *Engine) taskFromHeading(ctx context.Context, doc *doccache.CachedDocument, idx int, detail bool) Task {
	h := doc.Headings[idx]
	body := bodyOf(doc, idx)

	status := ""
	if m, ok := extractField(body, "Status"); ok {
		status = strings.TrimSpace(m.value)
	}
	workflow, hasWorkflow := "", false
	if m, ok := extractField(body, "Workflow"); ok {
		workflow = strings.TrimSpace(m.value)
		hasWorkflow = workflow != ""
	}
	mainWorkflow, hasMainWorkflow := "", false
	if m, ok := extractField(body, "Main-Workflow"); ok {
		mainWorkflow = strings.TrimSpace(m.value)
		hasMainWorkflow = mainWorkflow != ""
	}
	refs := extractReferences(body)

	t := Task{
		Slug:            h.Slug,
		Title:           h.Title,
		Depth:           h.Depth,
		Status:          status,
		Workflow:        workflow,
		HasWorkflow:     hasWorkflow,
		MainWorkflow:    mainWorkflow,
		HasMainWorkflow: hasMainWorkflow,
		WordCount:       len(strings.Fields(body)),
		HasReferences:   len(refs) > 0,
	}
	if detail {
		t.Content = body
		if e.loader != nil && len(refs) > 0 {
			if nodes, err := e.loader.Load(ctx, doc.Metadata.Namespace, body); err == nil {
				t.ReferencedDocuments = nodes
			}
		}
	}
	return t
}

func (e *Engine) getDocument(path string) (*doccache.CachedDocument, error) {
	physical := e.resolver.Resolve(path)
	return e.cache.GetDocument(path, physical)
}

// EnsureTasksSection returns (auto-creating if absent) the document's
// Tasks heading.
func (e *Engine) EnsureTasksSection(path string) (doccache.Heading, error) {
	return e.editor.EnsureTasksSection(path)
}

// CreateTask appends a new task under the document's Tasks section
// (auto-creating it if this is the first task), deriving its slug from
// title via the document-wide unique slugger.
func (e *Engine) CreateTask(ctx context.Context, path, title, body string) (Task, error) {
	tasksHeading, err := e.editor.EnsureTasksSection(path)
	if err != nil {
		return Task{}, err
	}
	doc, err := e.editor.AppendChild(path, tasksHeading.Slug, title, body)
	if err != nil {
		return Task{}, err
	}
	tasks := taskHeadingIndices(doc)
	if len(tasks) == 0 {
		return Task{}, apperr.New(apperr.IOError, "task not found immediately after creation")
	}
	return e.taskFromHeading(ctx, doc, tasks[len(tasks)-1], true), nil
}

// EditTask replaces a task's body, preserving its heading and slug.
func (e *Engine) EditTask(ctx context.Context, path, slug, newBody string) (Task, error) {
	doc, err := e.getDocument(path)
	if err != nil {
		return Task{}, err
	}
	idx, ok := doc.HeadingByPath(slug)
	if !ok || !isTaskHeading(doc, idx) {
		return Task{}, apperr.New(apperr.TaskNotFound, slug)
	}

	updated, err := e.editor.Replace(path, slug, newBody)
	if err != nil {
		return Task{}, err
	}
	newIdx, ok := updated.HeadingByPath(slug)
	if !ok {
		return Task{}, apperr.New(apperr.TaskNotFound, slug)
	}
	return e.taskFromHeading(ctx, updated, newIdx, true), nil
}

// ListTasks returns summaries (no Content/ReferencedDocuments) for every
// task in document order, optionally filtered by status.
func (e *Engine) ListTasks(path, statusFilter string) ([]Task, error) {
	doc, err := e.getDocument(path)
	if err != nil {
		return nil, err
	}
	var out []Task
	for _, idx := range taskHeadingIndices(doc) {
		t := e.taskFromHeading(context.Background(), doc, idx, false)
		if statusFilter != "" && !strings.EqualFold(t.Status, statusFilter) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// GetTask returns full detail for one task.
func (e *Engine) GetTask(ctx context.Context, path, slug string) (Task, error) {
	doc, err := e.getDocument(path)
	if err != nil {
		return Task{}, err
	}
	idx, ok := doc.HeadingByPath(slug)
	if !ok || !isTaskHeading(doc, idx) {
		return Task{}, apperr.New(apperr.TaskNotFound, slug)
	}
	return e.taskFromHeading(ctx, doc, idx, true), nil
}

// FindNextAvailableTask returns the first task in document order whose
// status is not "completed".
func (e *Engine) FindNextAvailableTask(doc *doccache.CachedDocument) (Task, bool) {
	for _, idx := range taskHeadingIndices(doc) {
		t := e.taskFromHeading(context.Background(), doc, idx, false)
		if !strings.EqualFold(t.Status, "completed") {
			return t, true
		}
	}
	return Task{}, false
}

// EnrichWithWorkflow extracts the Workflow field from a raw task body.
func EnrichWithWorkflow(taskBody string) (string, bool) {
	m, ok := extractField(taskBody, "Workflow")
	if !ok {
		return "", false
	}
	v := strings.TrimSpace(m.value)
	if v == "" {
		return "", false
	}
	return v, true
}

// EnrichWithMainWorkflow reads Main-Workflow from the first task under
// the document's Tasks section, located by document order rather than
// slug name (SPEC_FULL.md / spec.md §9 design note).
func EnrichWithMainWorkflow(doc *doccache.CachedDocument) (string, bool) {
	tasks := taskHeadingIndices(doc)
	if len(tasks) == 0 {
		return "", false
	}
	body := bodyOf(doc, tasks[0])
	m, ok := extractField(body, "Main-Workflow")
	if !ok {
		return "", false
	}
	v := strings.TrimSpace(m.value)
	if v == "" {
		return "", false
	}
	return v, true
}

// CompleteTask runs the completion lifecycle (spec.md §4.6): marks
// Status completed, appends Completed/Note lines, invalidates the cache
// via the editor's write-through, determines the next available task,
// and archives the document if it is an emptied coordinator document.
func (e *Engine) CompleteTask(ctx context.Context, path, slug, note string) (CompletionResult, error) {
	doc, err := e.getDocument(path)
	if err != nil {
		return CompletionResult{}, err
	}
	idx, ok := doc.HeadingByPath(slug)
	if !ok || !isTaskHeading(doc, idx) {
		return CompletionResult{}, apperr.New(apperr.TaskNotFound, slug)
	}

	body := bodyOf(doc, idx)
	body = setStatusCompleted(body)
	dateStr := e.clock.Now().UTC().Format("2006-01-02")
	body = appendLine(body, renderFieldLine(markerDash, "Completed", dateStr))
	body = appendLine(body, renderFieldLine(markerDash, "Note", note))

	updated, err := e.editor.Replace(path, slug, body)
	if err != nil {
		return CompletionResult{}, err
	}

	completedIdx, ok := updated.HeadingByPath(slug)
	if !ok {
		return CompletionResult{}, apperr.New(apperr.TaskNotFound, slug)
	}

	result := CompletionResult{
		Task:          e.taskFromHeading(ctx, updated, completedIdx, true),
		CompletedDate: dateStr,
		Note:          note,
	}

	next, hasNext := e.FindNextAvailableTask(updated)
	if hasNext {
		nextBody := bodyOf(updated, mustIndex(updated, next.Slug))
		if wf, ok := EnrichWithWorkflow(nextBody); ok {
			next.Workflow = wf
			next.HasWorkflow = true
		}
		result.NextTask = &next
	}

	if !hasNext && strings.EqualFold(updated.Metadata.Namespace, "coordinator") {
		archivedPath, err := e.archiveDocument(path, updated)
		if err != nil {
			return result, err
		}
		result.Archived = true
		result.ArchivedTo = archivedPath
	}

	return result, nil
}

// archiveDocument moves an emptied coordinator document under
// archived/{namespace}/{ISO-8601-compact}.md, retrying with a short
// uuid suffix on filename collision (spec.md §6: "collisions retry with
// a suffix") rather than a predictable numeric counter.
func (e *Engine) archiveDocument(path string, doc *doccache.CachedDocument) (string, error) {
	ns := doc.Metadata.Namespace
	base := e.clock.Now().UTC().Format("2006-01-02T15-04-05")

	for attempt := 0; attempt < 10; attempt++ {
		name := base
		if attempt > 0 {
			name = base + "-" + uuid.New().String()[:8]
		}
		archivedPath := "/archived/" + ns + "/" + name + ".md"
		if e.editor.Exists(archivedPath) {
			continue
		}
		if err := e.editor.ArchiveDocument(path, archivedPath); err != nil {
			return "", err
		}
		return archivedPath, nil
	}
	return "", apperr.New(apperr.IOError, "could not allocate archive filename")
}

// ensureCoordinatorDocument auto-creates /coordinator/active.md on first
// use (spec.md §6: "auto-creates /coordinator/active.md on first call").
func (e *Engine) ensureCoordinatorDocument() error {
	if e.editor.Exists(CoordinatorActivePath) {
		return nil
	}
	_, err := e.editor.CreateDocument(CoordinatorActivePath, "# Coordinator Active Tasks\n\n## Tasks\n\n")
	return err
}

// StartCoordinatorTask implements sequential mode's entry point: picks
// the next available task on /coordinator/active.md and injects both the
// main workflow (from the first task) and the task's own workflow.
func (e *Engine) StartCoordinatorTask() (Task, string, error) {
	if err := e.ensureCoordinatorDocument(); err != nil {
		return Task{}, "", err
	}
	doc, err := e.getDocument(CoordinatorActivePath)
	if err != nil {
		return Task{}, "", err
	}

	next, ok := e.FindNextAvailableTask(doc)
	if !ok {
		return Task{}, "", apperr.New(apperr.NoAvailableTasks, CoordinatorActivePath)
	}

	body := bodyOf(doc, mustIndex(doc, next.Slug))
	if wf, ok := EnrichWithWorkflow(body); ok {
		next.Workflow = wf
		next.HasWorkflow = true
	}
	mainWF, hasMain := EnrichWithMainWorkflow(doc)
	if hasMain {
		next.MainWorkflow = mainWF
		next.HasMainWorkflow = true
	}
	return next, mainWF, nil
}

// CompleteCoordinatorTask completes whichever task is currently next
// available on /coordinator/active.md (sequential mode has no explicit
// slug parameter). Only the task workflow, never the main workflow, is
// injected onto the returned next task (spec.md §4.6).
func (e *Engine) CompleteCoordinatorTask(ctx context.Context, note string) (CompletionResult, error) {
	doc, err := e.getDocument(CoordinatorActivePath)
	if err != nil {
		return CompletionResult{}, err
	}
	current, ok := e.FindNextAvailableTask(doc)
	if !ok {
		return CompletionResult{}, apperr.New(apperr.NoAvailableTasks, CoordinatorActivePath)
	}
	return e.CompleteTask(ctx, CoordinatorActivePath, current.Slug, note)
}
