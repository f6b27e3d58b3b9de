package tasks

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/procura/internal/config"
	obsmetrics "github.com/smallbiznis/procura/internal/observability/metrics"
	"github.com/smallbiznis/procura/pkg/log/ctxlogger"
	"github.com/smallbiznis/procura/pkg/telemetry/correlation"
	"go.uber.org/zap"
)

type job struct {
	id      string
	name    string
	args    []any
	carrier correlation.Carrier
	attempt int
}

// Pool is a fixed set of workers draining an in-memory queue.
type Pool struct {
	registry    *Registry
	log         *zap.Logger
	metrics     *obsmetrics.TaskMetrics
	workers     int
	maxAttempts int
	backoff     time.Duration

	queue    chan job
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	retries  sync.WaitGroup
}

func NewPool(cfg config.TaskConfig, registry *Registry, log *zap.Logger, metrics *obsmetrics.TaskMetrics) *Pool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = 64
	}
	return &Pool{
		registry:    registry,
		log:         log.Named("tasks.pool"),
		metrics:     metrics,
		workers:     workers,
		maxAttempts: maxAttempts,
		backoff:     cfg.Backoff,
		queue:       make(chan job, size),
		stop:        make(chan struct{}),
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.work()
	}
	p.log.Info("task pool started", zap.Int("workers", p.workers))
}

// Stop stops accepting work and waits for in-flight tasks until ctx expires.
// Tasks still queued are dropped.
func (p *Pool) Stop(ctx context.Context) error {
	p.stopOnce.Do(func() { close(p.stop) })

	done := make(chan struct{})
	go func() {
		p.retries.Wait()
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.log.Info("task pool stopped", zap.Int("dropped", len(p.queue)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) Enqueue(ctx context.Context, name string, args ...any) error {
	j := job{
		id:      ulid.Make().String(),
		name:    name,
		args:    args,
		carrier: correlation.Capture(ctx),
		attempt: 1,
	}

	select {
	case <-p.stop:
		return ErrStopped
	default:
	}

	select {
	case p.queue <- j:
		p.metrics.SetQueueDepth(len(p.queue))
		ctxlogger.WithContext(ctx, p.log).Debug("task enqueued",
			zap.String("task", name),
			zap.String("task_id", j.id),
		)
		return nil
	case <-p.stop:
		return ErrStopped
	case <-ctx.Done():
		p.metrics.IncRun(name, obsmetrics.TaskOutcomeDropped)
		return ctx.Err()
	}
}

func (p *Pool) work() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stop:
			return
		case j := <-p.queue:
			p.metrics.SetQueueDepth(len(p.queue))
			p.run(j)
		}
	}
}

func (p *Pool) run(j job) {
	ctx := j.carrier.Restore(context.Background())
	ctx = ctxlogger.ContextWithTask(ctx, j.name)
	log := ctxlogger.WithContext(ctx, p.log).With(
		zap.String("task_id", j.id),
		zap.Int("attempt", j.attempt),
	)

	handler, ok := p.registry.Lookup(j.name)
	if !ok {
		p.metrics.IncRun(j.name, obsmetrics.TaskOutcomeNoHandler)
		log.Error("no handler registered", zap.Error(ErrNoHandler))
		return
	}

	start := time.Now()
	err := invoke(ctx, handler, j.args)
	p.metrics.ObserveDuration(j.name, time.Since(start))

	if err == nil {
		p.metrics.IncRun(j.name, obsmetrics.TaskOutcomeSuccess)
		log.Debug("task completed", zap.Duration("duration", time.Since(start)))
		return
	}

	if errors.Is(err, ErrBadArgs) || j.attempt >= p.maxAttempts {
		p.metrics.IncRun(j.name, obsmetrics.TaskOutcomeFailed)
		log.Error("task failed", zap.Error(err))
		return
	}

	p.metrics.IncRun(j.name, obsmetrics.TaskOutcomeRetry)
	log.Warn("task failed, retrying", zap.Error(err))
	p.retry(j)
}

func (p *Pool) retry(j job) {
	delay := p.backoff * time.Duration(j.attempt)
	j.attempt++

	p.retries.Add(1)
	go func() {
		defer p.retries.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-p.stop:
			return
		case <-timer.C:
		}

		select {
		case p.queue <- j:
		case <-p.stop:
		}
	}()
}

// invoke runs the handler and turns panics into errors.
func invoke(ctx context.Context, h Handler, args []any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v\n%s", r, debug.Stack())
		}
	}()
	return h(ctx, args...)
}
