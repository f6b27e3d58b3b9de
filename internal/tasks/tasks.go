// Package tasks runs procurement side effects (document processing,
// purchase-order generation, notifications) outside the request that
// triggered them. Delivery is at-least-once with bounded retries; a task
// failure never undoes the state change that enqueued it.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

const (
	TaskGeneratePurchaseOrder = "purchase_order.generate"
	TaskProcessReceipt        = "receipt.process"
	TaskProcessProforma       = "proforma.process"
	TaskSendNotification      = "notification.send"
)

var (
	ErrStopped   = errors.New("task_runner_stopped")
	ErrNoHandler = errors.New("task_handler_not_registered")
	ErrBadArgs   = errors.New("invalid_task_args")
)

// Runner schedules a named task.
type Runner interface {
	Enqueue(ctx context.Context, name string, args ...any) error
}

// Handler executes one task invocation.
type Handler func(ctx context.Context, args ...any) error

// Registry maps task names to handlers. Handlers are registered at startup
// by the packages that own them.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

func (r *Registry) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Arg returns args[i] as T.
func Arg[T any](args []any, i int) (T, error) {
	var zero T
	if i < 0 || i >= len(args) {
		return zero, fmt.Errorf("%w: missing argument %d", ErrBadArgs, i)
	}
	v, ok := args[i].(T)
	if !ok {
		return zero, fmt.Errorf("%w: argument %d is %T", ErrBadArgs, i, args[i])
	}
	return v, nil
}
