package task

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"mdforge/internal/apperr"
)

// MaxBatchOps is the per-invocation operation limit shared by
// subagent_task and coordinator_task (spec.md §4.6/§6).
const MaxBatchOps = 100

// Op is one entry of a subagent_task/coordinator_task operations batch.
type Op struct {
	Kind         string // "create" | "edit" | "list" | "complete"
	Slug         string
	Title        string
	Body         string
	Note         string
	StatusFilter string
}

// OpResult carries the outcome of one batch entry; errors in one
// operation never abort the batch (spec.md §4.6). BatchID is shared by
// every result of one ApplyBatch call, letting a caller correlate log
// lines or audit records for operations that landed in the same
// subagent_task/coordinator_task request.
type OpResult struct {
	BatchID string
	Task    *Task
	Tasks   []Task
	Count   int
	Error   string
}

// ApplyBatch runs each operation against path in order, capturing
// per-item errors rather than aborting.
func (e *Engine) ApplyBatch(ctx context.Context, path string, ops []Op) ([]OpResult, error) {
	if len(ops) > MaxBatchOps {
		return nil, apperr.New(apperr.BatchTooLarge, fmt.Sprintf("%d operations exceeds the %d-operation limit", len(ops), MaxBatchOps))
	}

	batchID := uuid.New().String()
	results := make([]OpResult, 0, len(ops))
	for _, op := range ops {
		r := e.applyOne(ctx, path, op)
		r.BatchID = batchID
		results = append(results, r)
	}
	return results, nil
}

func (e *Engine) applyOne(ctx context.Context, path string, op Op) OpResult {
	switch op.Kind {
	case "create":
		t, err := e.CreateTask(ctx, path, op.Title, op.Body)
		if err != nil {
			return OpResult{Error: err.Error()}
		}
		return OpResult{Task: &t}
	case "edit":
		t, err := e.EditTask(ctx, path, op.Slug, op.Body)
		if err != nil {
			return OpResult{Error: err.Error()}
		}
		return OpResult{Task: &t}
	case "list":
		ts, err := e.ListTasks(path, op.StatusFilter)
		if err != nil {
			return OpResult{Error: err.Error()}
		}
		return OpResult{Tasks: ts, Count: len(ts)}
	case "complete":
		res, err := e.CompleteTask(ctx, path, op.Slug, op.Note)
		if err != nil {
			return OpResult{Error: err.Error()}
		}
		return OpResult{Task: &res.Task}
	default:
		return OpResult{Error: "unknown operation: " + op.Kind}
	}
}
