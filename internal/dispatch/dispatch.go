// Package dispatch implements the tool dispatcher layer (spec.md §6):
// the thin surface a transport (cmd/mdforge's "serve" subcommand) calls
// by tool name, translating each request into calls against the Path
// Resolver, Document Cache, Section Editor, Task Engine, Analysis and
// Workflow Registry. Grounded on the teacher's internal/fs.LinearFS,
// which plays the same "entry point that wires every collaborator
// together behind named operations" role for FUSE syscalls; here the
// named operations are tool calls over stdio instead of inode ops.
package dispatch

import (
	"context"
	"log"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"mdforge/internal/address"
	"mdforge/internal/analysis"
	"mdforge/internal/doccache"
	"mdforge/internal/editor"
	"mdforge/internal/refgraph"
	"mdforge/internal/search"
	"mdforge/internal/task"
	"mdforge/internal/workflow"
)

// Clock abstracts wall-clock "now" for recency scoring and humanized
// relative timestamps, mirroring task.Clock.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Dispatcher wires every core collaborator behind the §6 tool surface.
type Dispatcher struct {
	cache     *doccache.Cache
	resolver  *address.Resolver
	editor    *editor.Editor
	tasks     *task.Engine
	workflows workflow.Registry
	batch     *address.BatchCache
	clock     Clock
}

func New(cache *doccache.Cache, resolver *address.Resolver, ed *editor.Editor, tasks *task.Engine, workflows workflow.Registry) *Dispatcher {
	return &Dispatcher{
		cache:     cache,
		resolver:  resolver,
		editor:    ed,
		tasks:     tasks,
		workflows: workflows,
		batch:     address.NewBatchCache(),
		clock:     realClock{},
	}
}

// ClearBatch delimits the end of a caller-defined batch (spec.md §4.2);
// the transport calls this between unrelated tool invocations.
func (d *Dispatcher) ClearBatch() { d.batch.ClearBatch() }

func (d *Dispatcher) parseDocument(input string) (address.DocumentAddress, error) {
	return address.ParseDocumentCached(d.batch, input)
}

// --- browse_documents ---------------------------------------------------

type BrowseDocumentsInput struct {
	Path           string `json:"path,omitempty"`
	Verbose        bool   `json:"verbose,omitempty"`
	LinkDepth      int    `json:"link_depth,omitempty"`
	IncludeRelated bool   `json:"include_related,omitempty"`
}

type DocumentListing struct {
	Path             string          `json:"path"`
	Title            string          `json:"title"`
	Slug             string          `json:"slug"`
	Namespace        string          `json:"namespace"`
	LastModified     time.Time       `json:"lastModified"`
	LastModifiedRel  string          `json:"lastModifiedRelative,omitempty"`
	SectionCount     int             `json:"section_count"`
	WordCount        int             `json:"word_count"`
	Sections         []SectionBrief  `json:"sections,omitempty"`
	Related          []RelatedBrief  `json:"related,omitempty"`
}

type SectionBrief struct {
	Slug  string `json:"slug"`
	Title string `json:"title"`
	Depth int    `json:"depth"`
}

type RelatedBrief struct {
	Path        string  `json:"path"`
	Relevance   float64 `json:"relevance"`
	Explanation string  `json:"explanation"`
}

type BrowseDocumentsOutput struct {
	Structure struct {
		Documents []DocumentListing `json:"documents"`
	} `json:"structure"`
}

// BrowseDocuments implements browse_documents. Verbose mode attaches the
// section outline plus a humanize.RelTime relative "last modified" string,
// measured against the dispatcher's Clock
// (SPEC_FULL.md §B: go-humanize backs browse_documents verbose mode);
// include_related additionally runs the related-document finder per
// listed document.
func (d *Dispatcher) BrowseDocuments(ctx context.Context, in BrowseDocumentsInput) (BrowseDocumentsOutput, error) {
	summaries := d.cache.ListDocuments(in.Path)
	now := d.clock.Now()

	out := BrowseDocumentsOutput{}
	for _, s := range summaries {
		entry := DocumentListing{
			Path:         s.Path,
			Title:        s.Title,
			Slug:         s.Slug,
			Namespace:    s.Namespace,
			LastModified: s.LastModified,
			SectionCount: s.SectionCount,
			WordCount:    s.WordCount,
		}
		if in.Verbose {
			entry.LastModifiedRel = humanize.RelTime(s.LastModified, now, "ago", "from now")
			physical := d.resolver.Resolve(s.Path)
			if doc, err := d.cache.GetDocument(s.Path, physical); err == nil {
				entry.Sections = make([]SectionBrief, 0, len(doc.Headings))
				for _, h := range doc.Headings {
					entry.Sections = append(entry.Sections, SectionBrief{Slug: h.Slug, Title: h.Title, Depth: h.Depth})
				}
				if in.IncludeRelated {
					for _, rd := range analysis.FindRelatedDocuments(d.cache, d.resolver, doc, now) {
						entry.Related = append(entry.Related, RelatedBrief{Path: rd.Path, Relevance: rd.Relevance.Total, Explanation: rd.Relevance.Explanation})
					}
				}
			}
		}
		out.Structure.Documents = append(out.Structure.Documents, entry)
	}
	return out, nil
}

// --- view_document --------------------------------------------------------

type ViewDocumentInput struct {
	Document string `json:"document"`
}

type DocumentLinks struct {
	Total    int `json:"total"`
	Internal int `json:"internal"`
	External int `json:"external"`
}

type DocumentDetail struct {
	Path          string          `json:"path"`
	Slug          string          `json:"slug"`
	Title         string          `json:"title"`
	Namespace     string          `json:"namespace"`
	DocumentLinks DocumentLinks   `json:"documentLinks"`
	LastModified  time.Time       `json:"lastModified"`
	WordCount     int             `json:"wordCount"`
	HeadingCount  int             `json:"headingCount"`
	Sections      []SectionBrief  `json:"sections"`
}

type ViewDocumentOutput struct {
	Documents []DocumentDetail `json:"documents"`
}

func (d *Dispatcher) ViewDocument(ctx context.Context, in ViewDocumentInput) (ViewDocumentOutput, error) {
	addr, err := d.parseDocument(in.Document)
	if err != nil {
		return ViewDocumentOutput{}, err
	}
	physical := d.resolver.Resolve(addr.Path)
	doc, err := d.cache.GetDocument(addr.Path, physical)
	if err != nil {
		return ViewDocumentOutput{}, err
	}

	links := countLinks(doc.Content)
	sections := make([]SectionBrief, 0, len(doc.Headings))
	for _, h := range doc.Headings {
		sections = append(sections, SectionBrief{Slug: h.Slug, Title: h.Title, Depth: h.Depth})
	}

	return ViewDocumentOutput{Documents: []DocumentDetail{{
		Path:          doc.Metadata.Path,
		Slug:          addr.Slug,
		Title:         doc.Metadata.Title,
		Namespace:     doc.Metadata.Namespace,
		DocumentLinks: links,
		LastModified:  doc.Metadata.LastModified,
		WordCount:     doc.Metadata.WordCount,
		HeadingCount:  len(doc.Headings),
		Sections:      sections,
	}}}, nil
}

var markdownLinkRe = regexp.MustCompile(`\[[^\]]*\]\(([^)\s]+)(?:\s+"[^"]*")?\)`)

func countLinks(content string) DocumentLinks {
	matches := markdownLinkRe.FindAllStringSubmatch(content, -1)
	links := DocumentLinks{Total: len(matches)}
	for _, m := range matches {
		target := m[1]
		if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
			links.External++
		} else {
			links.Internal++
		}
	}
	return links
}

// --- view_subagent_task / view_coordinator_task --------------------------

type ViewTaskInput struct {
	Slugs string `json:"slug,omitempty"`
}

type TaskView struct {
	Slug                string          `json:"slug"`
	Title               string          `json:"title"`
	Status              string          `json:"status"`
	WorkflowName        string          `json:"workflow_name,omitempty"`
	HasWorkflow         bool            `json:"has_workflow"`
	MainWorkflowName    string          `json:"main_workflow_name,omitempty"`
	Content             string          `json:"content,omitempty"`
	WordCount           int             `json:"word_count,omitempty"`
	Depth               int             `json:"depth,omitempty"`
	ReferencedDocuments []refgraph.Node `json:"referenced_documents,omitempty"`
}

type ViewSubagentTaskOutput struct {
	Tasks []TaskView `json:"tasks"`
}

// ViewSubagentTask implements view_subagent_task: an overview of every
// task when no slug is given, or full detail for up to 10 comma-separated
// slugs.
func (d *Dispatcher) ViewSubagentTask(ctx context.Context, document string, in ViewTaskInput) (ViewSubagentTaskOutput, error) {
	addr, err := d.parseDocument(document)
	if err != nil {
		return ViewSubagentTaskOutput{}, err
	}

	if in.Slugs == "" {
		ts, err := d.tasks.ListTasks(addr.Path, "")
		if err != nil {
			return ViewSubagentTaskOutput{}, err
		}
		return ViewSubagentTaskOutput{Tasks: toTaskViews(ts, false)}, nil
	}

	slugs, err := address.ParseTaskSlugs(in.Slugs, addr.Path)
	if err != nil {
		return ViewSubagentTaskOutput{}, err
	}
	out := make([]task.Task, 0, len(slugs))
	for _, s := range slugs {
		t, err := d.tasks.GetTask(ctx, addr.Path, s.Slug)
		if err != nil {
			return ViewSubagentTaskOutput{}, err
		}
		out = append(out, t)
	}
	return ViewSubagentTaskOutput{Tasks: toTaskViews(out, true)}, nil
}

func toTaskViews(ts []task.Task, detail bool) []TaskView {
	out := make([]TaskView, 0, len(ts))
	for _, t := range ts {
		v := TaskView{
			Slug:             t.Slug,
			Title:            t.Title,
			Status:           t.Status,
			WorkflowName:     t.Workflow,
			HasWorkflow:      t.HasWorkflow,
			MainWorkflowName: t.MainWorkflow,
			Depth:            t.Depth,
		}
		if detail {
			v.Content = t.Content
			v.WordCount = t.WordCount
			v.ReferencedDocuments = t.ReferencedDocuments
		}
		out = append(out, v)
	}
	return out
}

type CoordinatorTaskSummary struct {
	TotalTasks          int            `json:"total_tasks"`
	ByStatus            map[string]int `json:"by_status"`
	WithLinks           int            `json:"with_links"`
	WithReferences      int            `json:"with_references"`
	TasksWithWorkflows  int            `json:"tasks_with_workflows"`
	TasksWithMainWf     int            `json:"tasks_with_main_workflow"`
}

type ViewCoordinatorTaskOutput struct {
	Mode     string                 `json:"mode"`
	Document string                 `json:"document"`
	Tasks    []TaskView             `json:"tasks"`
	Summary  CoordinatorTaskSummary `json:"summary"`
}

func (d *Dispatcher) ViewCoordinatorTask(ctx context.Context, slug string) (ViewCoordinatorTaskOutput, error) {
	if slug != "" {
		t, err := d.tasks.GetTask(ctx, task.CoordinatorActivePath, slug)
		if err != nil {
			return ViewCoordinatorTaskOutput{}, err
		}
		return ViewCoordinatorTaskOutput{
			Mode:     "detail",
			Document: task.CoordinatorActivePath,
			Tasks:    toTaskViews([]task.Task{t}, true),
		}, nil
	}

	ts, err := d.tasks.ListTasks(task.CoordinatorActivePath, "")
	if err != nil {
		return ViewCoordinatorTaskOutput{}, err
	}
	summary := CoordinatorTaskSummary{TotalTasks: len(ts), ByStatus: map[string]int{}}
	for _, t := range ts {
		summary.ByStatus[t.Status]++
		if t.HasReferences {
			summary.WithReferences++
		}
		if t.HasWorkflow {
			summary.TasksWithWorkflows++
		}
		if t.HasMainWorkflow {
			summary.TasksWithMainWf++
		}
	}
	return ViewCoordinatorTaskOutput{
		Mode:     "overview",
		Document: task.CoordinatorActivePath,
		Tasks:    toTaskViews(ts, false),
		Summary:  summary,
	}, nil
}

// --- subagent_task / coordinator_task ------------------------------------

type BatchInput struct {
	Document   string    `json:"document,omitempty"`
	Operations []task.Op `json:"operations"`
}

type BatchOutput struct {
	OperationsCompleted int             `json:"operations_completed"`
	Results             []task.OpResult `json:"results"`
}

func (d *Dispatcher) SubagentTask(ctx context.Context, in BatchInput) (BatchOutput, error) {
	addr, err := d.parseDocument(in.Document)
	if err != nil {
		return BatchOutput{}, err
	}
	results, err := d.tasks.ApplyBatch(ctx, addr.Path, in.Operations)
	if err != nil {
		return BatchOutput{}, err
	}
	return BatchOutput{OperationsCompleted: len(results), Results: results}, nil
}

func (d *Dispatcher) CoordinatorTask(ctx context.Context, ops []task.Op) (BatchOutput, error) {
	results, err := d.tasks.ApplyBatch(ctx, task.CoordinatorActivePath, ops)
	if err != nil {
		return BatchOutput{}, err
	}
	return BatchOutput{OperationsCompleted: len(results), Results: results}, nil
}

// --- start_coordinator_task / complete_*_task ----------------------------

type StartCoordinatorTaskOutput struct {
	Mode     string     `json:"mode"`
	Document string     `json:"document"`
	Task     TaskView   `json:"task"`
}

func (d *Dispatcher) StartCoordinatorTask(ctx context.Context) (StartCoordinatorTaskOutput, error) {
	t, mainWF, err := d.tasks.StartCoordinatorTask()
	if err != nil {
		return StartCoordinatorTaskOutput{}, err
	}
	v := toTaskViews([]task.Task{t}, false)[0]
	_ = mainWF
	return StartCoordinatorTaskOutput{Mode: "sequential", Document: task.CoordinatorActivePath, Task: v}, nil
}

type CompletedTaskView struct {
	Slug          string `json:"slug"`
	Title         string `json:"title"`
	Note          string `json:"note"`
	CompletedDate string `json:"completed_date"`
}

type CompleteSubagentTaskInput struct {
	Document string `json:"document"`
	Slug     string `json:"slug"`
	Note     string `json:"note"`
}

type CompleteSubagentTaskOutput struct {
	CompletedTask CompletedTaskView `json:"completed_task"`
	Timestamp     time.Time         `json:"timestamp"`
}

func (d *Dispatcher) CompleteSubagentTask(ctx context.Context, in CompleteSubagentTaskInput) (CompleteSubagentTaskOutput, error) {
	addr, err := d.parseDocument(in.Document)
	if err != nil {
		return CompleteSubagentTaskOutput{}, err
	}
	res, err := d.tasks.CompleteTask(ctx, addr.Path, in.Slug, in.Note)
	if err != nil {
		return CompleteSubagentTaskOutput{}, err
	}
	return CompleteSubagentTaskOutput{
		CompletedTask: CompletedTaskView{Slug: res.Task.Slug, Title: res.Task.Title, Note: res.Note, CompletedDate: res.CompletedDate},
		Timestamp:     d.clock.Now(),
	}, nil
}

type WorkflowView struct {
	Name      string   `json:"name"`
	Description string `json:"description"`
	WhenToUse []string `json:"whenToUse"`
	Content   string   `json:"content,omitempty"`
}

type CompleteCoordinatorTaskInput struct {
	Note               string `json:"note"`
	ReturnNextTask     bool   `json:"return_next_task,omitempty"`
	IncludeFullWorkflow bool  `json:"include_full_workflow,omitempty"`
}

type CompleteCoordinatorTaskOutput struct {
	CompletedTask CompletedTaskView `json:"completed_task"`
	NextTask      *TaskView         `json:"next_task,omitempty"`
	NextWorkflow  *WorkflowView     `json:"next_task_workflow,omitempty"`
	Archived      bool              `json:"archived,omitempty"`
	ArchivedTo    string            `json:"archived_to,omitempty"`
}

func (d *Dispatcher) CompleteCoordinatorTask(ctx context.Context, in CompleteCoordinatorTaskInput) (CompleteCoordinatorTaskOutput, error) {
	res, err := d.tasks.CompleteCoordinatorTask(ctx, in.Note)
	if err != nil {
		return CompleteCoordinatorTaskOutput{}, err
	}
	out := CompleteCoordinatorTaskOutput{
		CompletedTask: CompletedTaskView{Slug: res.Task.Slug, Title: res.Task.Title, Note: res.Note, CompletedDate: res.CompletedDate},
		Archived:      res.Archived,
		ArchivedTo:    res.ArchivedTo,
	}
	if in.ReturnNextTask && res.NextTask != nil {
		v := toTaskViews([]task.Task{*res.NextTask}, false)[0]
		out.NextTask = &v
		if res.NextTask.HasWorkflow && d.workflows != nil {
			if p, ok := d.workflows.Lookup(res.NextTask.Workflow); ok {
				wv := WorkflowView{Name: p.Name, Description: p.Description, WhenToUse: p.WhenToUse}
				if in.IncludeFullWorkflow {
					wv.Content = p.Content
				}
				out.NextWorkflow = &wv
			} else {
				log.Printf("dispatch: task %s names unknown workflow %q; omitting it", res.NextTask.Slug, res.NextTask.Workflow)
			}
		}
	}
	return out, nil
}

// --- search_documents -----------------------------------------------------

type SearchDocumentsInput struct {
	Query          string `json:"query"`
	Type           string `json:"type,omitempty"`
	Scope          string `json:"scope,omitempty"`
	IncludeContext bool   `json:"include_context,omitempty"`
	ContextLines   int    `json:"context_lines,omitempty"`
	MaxResults     int    `json:"max_results,omitempty"`
	MaxMatchLength int    `json:"max_match_length,omitempty"`
}

func (d *Dispatcher) SearchDocuments(ctx context.Context, in SearchDocumentsInput) (search.Result, error) {
	return search.Run(d.cache, d.resolver, search.Options{
		Query:          in.Query,
		Type:           search.Type(in.Type),
		Scope:          in.Scope,
		IncludeContext: in.IncludeContext,
		ContextLines:   in.ContextLines,
		MaxResults:     in.MaxResults,
		MaxMatchLength: in.MaxMatchLength,
	})
}

// --- get_workflow / get_guide ---------------------------------------------

type GetWorkflowOutput struct {
	Prompt    *workflow.Prompt `json:"-"`
	Error     string           `json:"error,omitempty"`
	Available []string         `json:"available,omitempty"`
}

// GetWorkflow implements both get_workflow and get_guide: they share one
// registry, differing only in the tool-name prefix stripped before
// lookup (spec.md §6).
func (d *Dispatcher) GetWorkflow(name string) GetWorkflowOutput {
	stripped := workflow.StripToolPrefix(name)
	if p, ok := d.workflows.Lookup(stripped); ok {
		return GetWorkflowOutput{Prompt: &p}
	}
	names := make([]string, 0)
	for _, p := range d.workflows.List() {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return GetWorkflowOutput{Error: "unknown workflow: " + stripped, Available: names}
}
