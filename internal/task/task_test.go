package task

import (
	"context"
	"strings"
	"testing"
	"time"

	"mdforge/internal/address"
	"mdforge/internal/apperr"
	"mdforge/internal/doccache"
	"mdforge/internal/editor"
	"mdforge/internal/refgraph"
)

type fakeReader struct {
	files map[string]string
	mtime map[string]time.Time
}

func newFakeReader() *fakeReader {
	return &fakeReader{files: map[string]string{}, mtime: map[string]time.Time{}}
}

func (f *fakeReader) ReadFile(path string) (string, time.Time, error) {
	c, ok := f.files[path]
	if !ok {
		return "", time.Time{}, notFoundErr{}
	}
	return c, f.mtime[path], nil
}

func (f *fakeReader) WriteFile(path, content string) error {
	f.files[path] = content
	f.mtime[path] = time.Now()
	return nil
}

func (f *fakeReader) Exists(path string) bool {
	_, ok := f.files[path]
	return ok
}

func (f *fakeReader) Remove(path string) error {
	delete(f.files, path)
	delete(f.mtime, path)
	return nil
}

func (f *fakeReader) MkdirAll(path string) error { return nil }

func (f *fakeReader) ListMarkdown(root string) ([]string, error) {
	var out []string
	for path := range f.files {
		if strings.HasPrefix(path, root) && strings.HasSuffix(path, ".md") {
			out = append(out, path)
		}
	}
	return out, nil
}

type notFoundErr struct{}

func (notFoundErr) Error() string { return "not found" }

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func newTestEngine(t *testing.T, virtualPath, content string, clockTime time.Time) (*Engine, *fakeReader, *address.Resolver) {
	t.Helper()
	fr := newFakeReader()
	resolver := address.NewResolver("/workspace")
	if virtualPath != "" {
		fr.WriteFile(resolver.Resolve(virtualPath), content)
	}
	cache := doccache.New(fr, nil)
	ed := editor.New(cache, fr, resolver)
	eng := NewWithClock(cache, ed, resolver, refgraph.New(cache, resolver, 2), fixedClock{clockTime})
	return eng, fr, resolver
}

func TestCreateTaskAutoCreatesTasksSection(t *testing.T) {
	t.Parallel()
	eng, _, _ := newTestEngine(t, "/x.md", "# My Doc\n\nOverview.\n", time.Now())

	task, err := eng.CreateTask(context.Background(), "/x.md", "Task Title", "Status: pending\n")
	if err != nil {
		t.Fatalf("CreateTask error: %v", err)
	}
	if task.Title != "Task Title" || task.Depth != 3 {
		t.Errorf("task = %+v", task)
	}
}

func TestCreateTaskFailsWithoutH1(t *testing.T) {
	t.Parallel()
	eng, _, _ := newTestEngine(t, "/x.md", "Just text.\n", time.Now())

	_, err := eng.CreateTask(context.Background(), "/x.md", "Task", "body")
	if !apperr.Is(err, apperr.MissingDocumentTitle) {
		t.Fatalf("expected MissingDocumentTitle, got %v", err)
	}
}

func TestListTasksFiltersByStatus(t *testing.T) {
	t.Parallel()
	content := "# Doc\n\n## Tasks\n\n### A\n\n- Status: pending\n\n### B\n\n- Status: completed\n"
	eng, _, _ := newTestEngine(t, "/x.md", content, time.Now())

	all, err := eng.ListTasks("/x.md", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 tasks, got %d: %+v", len(all), all)
	}

	pending, err := eng.ListTasks("/x.md", "pending")
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].Title != "A" {
		t.Fatalf("expected only A pending, got %+v", pending)
	}
}

func TestGetTaskLoadsReferencedDocuments(t *testing.T) {
	t.Parallel()
	resolver := address.NewResolver("/workspace")
	fr := newFakeReader()
	fr.WriteFile(resolver.Resolve("/docs/auth.md"), "# Auth\n\n## Tokens\n\nToken details.\n")
	fr.WriteFile(resolver.Resolve("/docs/x.md"), "# Doc\n\n## Tasks\n\n### A\n\n- Status: pending\n\nSee @/docs/auth.md#tokens for details.\n")

	cache := doccache.New(fr, nil)
	ed := editor.New(cache, fr, resolver)
	eng := NewWithClock(cache, ed, resolver, refgraph.New(cache, resolver, 2), fixedClock{time.Now()})

	task, err := eng.GetTask(context.Background(), "/docs/x.md", "a")
	if err != nil {
		t.Fatalf("GetTask error: %v", err)
	}
	if !task.HasReferences {
		t.Error("expected HasReferences true")
	}
	if len(task.ReferencedDocuments) != 1 {
		t.Fatalf("expected 1 loaded reference, got %+v", task.ReferencedDocuments)
	}
	ref := task.ReferencedDocuments[0]
	if ref.Path != "/docs/auth.md" || ref.Slug != "tokens" || ref.Title != "Tokens" {
		t.Errorf("loaded reference = %+v", ref)
	}
}

func TestFindNextAvailableTaskSkipsCompleted(t *testing.T) {
	t.Parallel()
	content := "# Doc\n\n## Tasks\n\n### A\n\n- Status: completed\n\n### B\n\n- Status: pending\n"
	eng, _, _ := newTestEngine(t, "/x.md", content, time.Now())

	doc, err := eng.getDocument("/x.md")
	if err != nil {
		t.Fatal(err)
	}
	next, ok := eng.FindNextAvailableTask(doc)
	if !ok || next.Title != "B" {
		t.Fatalf("expected B as next available, got %+v ok=%v", next, ok)
	}
}

func TestCompleteTaskLifecycle(t *testing.T) {
	t.Parallel()
	content := "# Doc\n\n## Tasks\n\n### Only Task\n\n- Status: pending\n"
	clock := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	eng, _, _ := newTestEngine(t, "/docs/x.md", content, clock)

	res, err := eng.CompleteTask(context.Background(), "/docs/x.md", "only-task", "done deal")
	if err != nil {
		t.Fatalf("CompleteTask error: %v", err)
	}
	if res.Task.Status != "completed" {
		t.Errorf("status = %q, want completed", res.Task.Status)
	}
	if !containsStr(res.Task.Content, "Completed: 2026-03-15") {
		t.Errorf("expected Completed line, got %q", res.Task.Content)
	}
	if !containsStr(res.Task.Content, "Note: done deal") {
		t.Errorf("expected Note line, got %q", res.Task.Content)
	}
	if res.NextTask != nil {
		t.Errorf("expected no next task, got %+v", res.NextTask)
	}
	if res.Archived {
		t.Error("non-coordinator document should not be archived")
	}
}

func TestCompleteTaskPreservesMarkerStyle(t *testing.T) {
	t.Parallel()
	content := "# Doc\n\n## Tasks\n\n### Only Task\n\n**Status:** pending\n"
	eng, _, _ := newTestEngine(t, "/docs/x.md", content, time.Now())

	res, err := eng.CompleteTask(context.Background(), "/docs/x.md", "only-task", "note")
	if err != nil {
		t.Fatal(err)
	}
	if !containsStr(res.Task.Content, "**Status:** completed") {
		t.Errorf("expected bold marker preserved, got %q", res.Task.Content)
	}
}

func TestCompleteTaskArchivesEmptyCoordinatorDoc(t *testing.T) {
	t.Parallel()
	content := "# Coordinator Active Tasks\n\n## Tasks\n\n### Only Task\n\n- Status: pending\n"
	clock := time.Date(2026, 3, 15, 10, 30, 45, 0, time.UTC)
	eng, fr, resolver := newTestEngine(t, "/coordinator/active.md", content, clock)

	res, err := eng.CompleteTask(context.Background(), "/coordinator/active.md", "only-task", "all done")
	if err != nil {
		t.Fatalf("CompleteTask error: %v", err)
	}
	if !res.Archived {
		t.Fatal("expected archived=true")
	}
	want := "/archived/coordinator/2026-03-15T10-30-45.md"
	if res.ArchivedTo != want {
		t.Errorf("archived_to = %q, want %q", res.ArchivedTo, want)
	}
	if fr.Exists(resolver.Resolve("/coordinator/active.md")) {
		t.Error("expected original coordinator file removed after archive")
	}
	if !fr.Exists(resolver.Resolve(want)) {
		t.Error("expected archived file to exist")
	}
}

func TestStartAndCompleteCoordinatorTaskSequential(t *testing.T) {
	t.Parallel()
	content := "# Coordinator Active Tasks\n\n## Tasks\n\n### First\n\n- Status: pending\n- Main-Workflow: onboarding\n- Workflow: step-one\n\n### Second\n\n- Status: pending\n- Workflow: step-two\n"
	eng, _, _ := newTestEngine(t, "/coordinator/active.md", content, time.Now())

	task, mainWF, err := eng.StartCoordinatorTask()
	if err != nil {
		t.Fatalf("StartCoordinatorTask error: %v", err)
	}
	if task.Title != "First" || task.Workflow != "step-one" || mainWF != "onboarding" {
		t.Errorf("task = %+v, mainWF = %q", task, mainWF)
	}

	res, err := eng.CompleteCoordinatorTask(context.Background(), "first done")
	if err != nil {
		t.Fatalf("CompleteCoordinatorTask error: %v", err)
	}
	if res.NextTask == nil || res.NextTask.Title != "Second" {
		t.Fatalf("expected Second as next task, got %+v", res.NextTask)
	}
	if res.NextTask.Workflow != "step-two" {
		t.Errorf("next task workflow = %q", res.NextTask.Workflow)
	}
	if res.NextTask.MainWorkflow != "" {
		t.Error("completion must not inject main_workflow onto next task")
	}
}

func TestApplyBatchRejectsOverLimit(t *testing.T) {
	t.Parallel()
	eng, _, _ := newTestEngine(t, "/x.md", "# Doc\n\n## Tasks\n\n", time.Now())

	ops := make([]Op, MaxBatchOps+1)
	for i := range ops {
		ops[i] = Op{Kind: "list"}
	}
	_, err := eng.ApplyBatch(context.Background(), "/x.md", ops)
	if !apperr.Is(err, apperr.BatchTooLarge) {
		t.Fatalf("expected BatchTooLarge, got %v", err)
	}
}

func TestApplyBatchContinuesAfterError(t *testing.T) {
	t.Parallel()
	eng, _, _ := newTestEngine(t, "/x.md", "# Doc\n\n## Tasks\n\n### A\n\n- Status: pending\n", time.Now())

	ops := []Op{
		{Kind: "edit", Slug: "missing-slug", Body: "x"},
		{Kind: "list"},
	}
	results, err := eng.ApplyBatch(context.Background(), "/x.md", ops)
	if err != nil {
		t.Fatalf("ApplyBatch error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Error == "" {
		t.Error("expected error on first op")
	}
	if results[1].Error != "" {
		t.Errorf("second op should succeed, got error %q", results[1].Error)
	}
	if results[0].BatchID == "" || results[0].BatchID != results[1].BatchID {
		t.Errorf("expected both results to share a batch id, got %q and %q", results[0].BatchID, results[1].BatchID)
	}
}

func containsStr(hay, needle string) bool {
	return len(hay) >= len(needle) && (func() bool {
		for i := 0; i+len(needle) <= len(hay); i++ {
			if hay[i:i+len(needle)] == needle {
				return true
			}
		}
		return false
	})()
}
