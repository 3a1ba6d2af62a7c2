package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"mdforge/internal/address"
	"mdforge/internal/analysis"
	"mdforge/internal/config"
	"mdforge/internal/dispatch"
	"mdforge/internal/doccache"
	"mdforge/internal/editor"
	"mdforge/internal/refgraph"
	"mdforge/internal/store"
	"mdforge/internal/task"
	"mdforge/internal/workflow"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the tool surface over stdio as newline-delimited JSON",
	Long:  `serve wires the workspace's document cache, task engine and search index together and reads one JSON request per line from stdin, writing one JSON response per line to stdout, until stdin closes or a signal arrives.`,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// request is one line of stdin: a tool name plus its raw argument object,
// whose shape varies per tool (dispatch.*Input types).
type request struct {
	ID        string          `json:"id,omitempty"`
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments"`
	EndBatch  bool            `json:"end_batch,omitempty"`
}

type response struct {
	ID     string `json:"id,omitempty"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	d, err := buildDispatcher(cfg)
	if err != nil {
		return fmt.Errorf("failed to build dispatcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	return serveLoop(ctx, d, os.Stdin, os.Stdout)
}

func buildDispatcher(cfg *config.Config) (*dispatch.Dispatcher, error) {
	resolver := address.NewResolver(cfg.Workspace)

	fingerprintStore, err := store.Open(cfg.Cache.StorePath)
	if err != nil {
		return nil, fmt.Errorf("opening fingerprint store: %w", err)
	}

	cache := doccache.NewWithStore(doccache.OSFileReader{}, analysis.ExtractKeywords, fingerprintStore)
	if errs := cache.Warm(resolver); len(errs) > 0 {
		fmt.Fprintf(os.Stderr, "warming cache: %d documents failed to parse\n", len(errs))
	}

	ed := editor.New(cache, doccache.OSFileReader{}, resolver)
	loader := refgraph.New(cache, resolver, cfg.Refs.LoadDepth)
	tasks := task.New(cache, ed, resolver, loader)

	workflowRegistry, err := workflow.LoadDir(resolver.Resolve("/workflows"))
	if err != nil {
		return nil, fmt.Errorf("loading workflow registry: %w", err)
	}

	return dispatch.New(cache, resolver, ed, tasks, workflowRegistry), nil
}

// serveLoop drives the stdio NDJSON request/response cycle: one decode,
// one dispatch, one encode per line, until ctx is cancelled or stdin
// returns io.EOF.
func serveLoop(ctx context.Context, d *dispatch.Dispatcher, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	enc := json.NewEncoder(out)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			enc.Encode(response{Error: fmt.Sprintf("invalid request: %v", err)})
			continue
		}

		result, err := dispatchTool(ctx, d, req)
		if req.EndBatch {
			d.ClearBatch()
		}
		if err != nil {
			enc.Encode(response{ID: req.ID, Error: err.Error()})
			continue
		}
		enc.Encode(response{ID: req.ID, Result: result})
	}
	return scanner.Err()
}

func dispatchTool(ctx context.Context, d *dispatch.Dispatcher, req request) (any, error) {
	switch req.Tool {
	case "browse_documents":
		var in dispatch.BrowseDocumentsInput
		if err := json.Unmarshal(req.Arguments, &in); err != nil {
			return nil, err
		}
		return d.BrowseDocuments(ctx, in)
	case "view_document":
		var in dispatch.ViewDocumentInput
		if err := json.Unmarshal(req.Arguments, &in); err != nil {
			return nil, err
		}
		return d.ViewDocument(ctx, in)
	case "view_subagent_task":
		var payload struct {
			Document string `json:"document"`
			dispatch.ViewTaskInput
		}
		if err := json.Unmarshal(req.Arguments, &payload); err != nil {
			return nil, err
		}
		return d.ViewSubagentTask(ctx, payload.Document, payload.ViewTaskInput)
	case "view_coordinator_task":
		var payload struct {
			Slug string `json:"slug"`
		}
		if err := json.Unmarshal(req.Arguments, &payload); err != nil {
			return nil, err
		}
		return d.ViewCoordinatorTask(ctx, payload.Slug)
	case "subagent_task":
		var in dispatch.BatchInput
		if err := json.Unmarshal(req.Arguments, &in); err != nil {
			return nil, err
		}
		return d.SubagentTask(ctx, in)
	case "coordinator_task":
		var payload struct {
			Operations []task.Op `json:"operations"`
		}
		if err := json.Unmarshal(req.Arguments, &payload); err != nil {
			return nil, err
		}
		return d.CoordinatorTask(ctx, payload.Operations)
	case "start_coordinator_task":
		return d.StartCoordinatorTask(ctx)
	case "complete_subagent_task":
		var in dispatch.CompleteSubagentTaskInput
		if err := json.Unmarshal(req.Arguments, &in); err != nil {
			return nil, err
		}
		return d.CompleteSubagentTask(ctx, in)
	case "complete_coordinator_task":
		var in dispatch.CompleteCoordinatorTaskInput
		if err := json.Unmarshal(req.Arguments, &in); err != nil {
			return nil, err
		}
		return d.CompleteCoordinatorTask(ctx, in)
	case "search_documents":
		var in dispatch.SearchDocumentsInput
		if err := json.Unmarshal(req.Arguments, &in); err != nil {
			return nil, err
		}
		return d.SearchDocuments(ctx, in)
	case "get_workflow", "get_guide":
		var payload struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(req.Arguments, &payload); err != nil {
			return nil, err
		}
		return d.GetWorkflow(payload.Name), nil
	default:
		return nil, fmt.Errorf("unknown tool: %s", req.Tool)
	}
}
