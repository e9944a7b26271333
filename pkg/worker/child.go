package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/quarrylabs/quarry/pkg/engine"
	"github.com/quarrylabs/quarry/pkg/models"
)

// TaskFunc executes one task inside a worker process.
type TaskFunc func(ctx context.Context, args json.RawMessage) (any, error)

// Registry maps task names to their implementations. It is assembled once at
// worker startup and read-only afterwards.
type Registry struct {
	tasks map[string]TaskFunc
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]TaskFunc)}
}

// Register binds a task name to its implementation.
func (r *Registry) Register(name string, fn TaskFunc) {
	r.tasks[name] = fn
}

// RegisterQuery binds the query task to an engine.
func (r *Registry) RegisterQuery(e engine.Engine) {
	r.Register(TaskQuery, func(ctx context.Context, args json.RawMessage) (any, error) {
		var qa QueryArgs
		if err := json.Unmarshal(args, &qa); err != nil {
			return nil, fmt.Errorf("decode query args: %w", err)
		}
		return e.Execute(ctx, qa.SQL, qa.Files)
	})
}

// Run is the worker process main loop: read a request, execute it, write the
// response, repeat until stdin closes. One task runs at a time; isolation
// between concurrent tasks comes from the pool running one process each.
func Run(r *Registry, in io.Reader, out io.Writer) error {
	dec := json.NewDecoder(in)
	enc := json.NewEncoder(out)
	ctx := context.Background()

	for {
		var req Request
		if err := dec.Decode(&req); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("decode request: %w", err)
		}

		resp := Response{ID: req.ID}
		fn, ok := r.tasks[req.Task]
		if !ok {
			resp.ErrorType = models.ErrTypeExecution
			resp.Error = fmt.Sprintf("unknown task %q", req.Task)
		} else if result, err := fn(ctx, req.Args); err != nil {
			resp.ErrorType = models.ErrTypeExecution
			resp.Error = err.Error()
		} else if raw, err := json.Marshal(result); err != nil {
			resp.ErrorType = models.ErrTypeExecution
			resp.Error = fmt.Sprintf("encode result: %v", err)
		} else {
			resp.Result = raw
		}

		if err := enc.Encode(&resp); err != nil {
			return fmt.Errorf("encode response: %w", err)
		}
	}
}
