package tasks

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// InlineRunner executes handlers synchronously in the caller's goroutine.
// Handler errors are logged and not returned, matching the pool.
type InlineRunner struct {
	registry *Registry
	log      *zap.Logger
}

func NewInlineRunner(registry *Registry, log *zap.Logger) *InlineRunner {
	return &InlineRunner{registry: registry, log: log.Named("tasks.inline")}
}

func (r *InlineRunner) Enqueue(ctx context.Context, name string, args ...any) error {
	h, ok := r.registry.Lookup(name)
	if !ok {
		return ErrNoHandler
	}
	if err := invoke(ctx, h, args); err != nil {
		r.log.Error("task failed", zap.String("task", name), zap.Error(err))
	}
	return nil
}

// Call is one recorded Enqueue.
type Call struct {
	Name string
	Args []any
}

// Recorder records enqueued tasks without running them.
type Recorder struct {
	mu    sync.Mutex
	calls []Call
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Enqueue(_ context.Context, name string, args ...any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Name: name, Args: args})
	return nil
}

func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Names returns the recorded task names in enqueue order.
func (r *Recorder) Names() []string {
	calls := r.Calls()
	names := make([]string, 0, len(calls))
	for _, c := range calls {
		names = append(names, c.Name)
	}
	return names
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}
