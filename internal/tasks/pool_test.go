package tasks

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smallbiznis/procura/internal/config"
	"github.com/smallbiznis/procura/pkg/telemetry/correlation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestPool(t *testing.T, registry *Registry, maxAttempts int) *Pool {
	t.Helper()
	p := NewPool(config.TaskConfig{
		Workers:     2,
		MaxAttempts: maxAttempts,
		QueueSize:   8,
		Backoff:     time.Millisecond,
	}, registry, zap.NewNop(), nil)
	p.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = p.Stop(ctx)
	})
	return p
}

func TestPoolRunsHandlerWithCorrelation(t *testing.T) {
	registry := NewRegistry()
	got := make(chan string, 1)
	registry.Register(TaskSendNotification, func(ctx context.Context, args ...any) error {
		payload, err := Arg[NotificationArgs](args, 0)
		if err != nil {
			return err
		}
		got <- correlation.ExtractCorrelationID(ctx) + "/" + payload.Kind
		return nil
	})
	p := newTestPool(t, registry, 3)

	ctx := correlation.ContextWithCorrelationID(context.Background(), "cid-1")
	require.NoError(t, p.Enqueue(ctx, TaskSendNotification, NotificationArgs{RequestID: 1, Kind: "approved"}))

	select {
	case v := <-got:
		assert.Equal(t, "cid-1/approved", v)
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not run")
	}
}

func TestPoolRetriesUntilSuccess(t *testing.T) {
	registry := NewRegistry()
	var calls atomic.Int32
	done := make(chan struct{})
	registry.Register(TaskProcessReceipt, func(ctx context.Context, args ...any) error {
		if calls.Add(1) < 3 {
			return errors.New("extraction unavailable")
		}
		close(done)
		return nil
	})
	p := newTestPool(t, registry, 3)

	require.NoError(t, p.Enqueue(context.Background(), TaskProcessReceipt, DocumentArgs{RequestID: 1}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task was not retried")
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestPoolGivesUpAfterMaxAttempts(t *testing.T) {
	registry := NewRegistry()
	var calls atomic.Int32
	registry.Register(TaskProcessReceipt, func(ctx context.Context, args ...any) error {
		calls.Add(1)
		return errors.New("boom")
	})
	p := newTestPool(t, registry, 2)

	require.NoError(t, p.Enqueue(context.Background(), TaskProcessReceipt, DocumentArgs{RequestID: 1}))

	assert.Eventually(t, func() bool { return calls.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(2), calls.Load())
}

func TestPoolRecoversPanics(t *testing.T) {
	registry := NewRegistry()
	var calls atomic.Int32
	registry.Register(TaskGeneratePurchaseOrder, func(ctx context.Context, args ...any) error {
		calls.Add(1)
		panic("nil proforma")
	})
	p := newTestPool(t, registry, 1)

	require.NoError(t, p.Enqueue(context.Background(), TaskGeneratePurchaseOrder, PurchaseOrderArgs{RequestID: 1}))
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestPoolRejectsAfterStop(t *testing.T) {
	p := NewPool(config.TaskConfig{Workers: 1, MaxAttempts: 1, QueueSize: 1}, NewRegistry(), zap.NewNop(), nil)
	p.Start()
	require.NoError(t, p.Stop(context.Background()))

	err := p.Enqueue(context.Background(), TaskProcessReceipt)
	assert.ErrorIs(t, err, ErrStopped)
}

func TestArgTypeMismatch(t *testing.T) {
	_, err := Arg[DocumentArgs]([]any{"nope"}, 0)
	assert.ErrorIs(t, err, ErrBadArgs)

	_, err = Arg[DocumentArgs](nil, 0)
	assert.ErrorIs(t, err, ErrBadArgs)
}

func TestInlineRunnerSwallowsHandlerErrors(t *testing.T) {
	registry := NewRegistry()
	registry.Register(TaskSendNotification, func(ctx context.Context, args ...any) error {
		return errors.New("smtp down")
	})
	r := NewInlineRunner(registry, zap.NewNop())

	assert.NoError(t, r.Enqueue(context.Background(), TaskSendNotification))
	assert.ErrorIs(t, r.Enqueue(context.Background(), "unknown"), ErrNoHandler)
}

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	_ = r.Enqueue(context.Background(), TaskGeneratePurchaseOrder, PurchaseOrderArgs{RequestID: 7})
	_ = r.Enqueue(context.Background(), TaskSendNotification, NotificationArgs{RequestID: 7, Kind: "approved"})

	assert.Equal(t, []string{TaskGeneratePurchaseOrder, TaskSendNotification}, r.Names())
	r.Reset()
	assert.Empty(t, r.Calls())
}
