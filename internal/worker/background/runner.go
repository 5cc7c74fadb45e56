// Package background runs post-response work (persisting the assistant turn,
// sending lead alerts) after the chat reply has been returned.
package background

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/botlode/brain/internal/observability/metrics"
	"github.com/botlode/brain/pkg/logging"
)

var (
	// ErrQueueFull is returned by Submit when every worker is busy and the buffer is full.
	ErrQueueFull = errors.New("background: queue full")
	// ErrStopped is returned by Submit after Shutdown began.
	ErrStopped = errors.New("background: runner stopped")
)

const (
	defaultWorkers     = 4
	defaultQueueSize   = 256
	defaultTaskTimeout = 30 * time.Second
)

// Task is one unit of fire-and-forget work.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Submitter accepts tasks. The turn pipeline depends on this, not on Runner.
type Submitter interface {
	Submit(ctx context.Context, task Task) error
}

type job struct {
	ctx  context.Context
	task Task
}

// Runner is a fixed pool of workers draining a buffered queue. Task contexts
// keep the submitter's values but not its cancellation, so a finished HTTP
// request does not abort its follow-up writes.
type Runner struct {
	workers     int
	taskTimeout time.Duration
	queue       chan job
	metrics     *metrics.ConversationMetrics
	logger      *logging.Logger

	mu      sync.RWMutex
	stopped bool
	started bool
	wg      sync.WaitGroup
}

// Option customizes a Runner.
type Option func(*Runner)

func WithWorkers(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.queue = make(chan job, n)
		}
	}
}

// WithTaskTimeout bounds each task; zero or negative disables the bound.
func WithTaskTimeout(d time.Duration) Option {
	return func(r *Runner) { r.taskTimeout = d }
}

func WithMetrics(m *metrics.ConversationMetrics) Option {
	return func(r *Runner) { r.metrics = m }
}

func NewRunner(logger *logging.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = logging.Default()
	}
	r := &Runner{
		workers:     defaultWorkers,
		taskTimeout: defaultTaskTimeout,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.queue == nil {
		r.queue = make(chan job, defaultQueueSize)
	}
	return r
}

// Start launches the workers. Calling it twice is a no-op.
func (r *Runner) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.stopped {
		return
	}
	r.started = true
	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.run(i + 1)
	}
}

// Submit enqueues task without blocking.
func (r *Runner) Submit(ctx context.Context, task Task) error {
	if task.Run == nil {
		return fmt.Errorf("background: task %q has no body", task.Name)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.stopped {
		r.metrics.ObserveBackgroundTask(task.Name, "dropped")
		return ErrStopped
	}
	select {
	case r.queue <- job{ctx: context.WithoutCancel(ctx), task: task}:
		return nil
	default:
		r.metrics.ObserveBackgroundTask(task.Name, "dropped")
		r.logger.Warn("background queue full, dropping task", "task", task.Name)
		return ErrQueueFull
	}
}

// Shutdown stops accepting tasks and waits for queued ones to drain or for
// ctx to expire.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if !r.stopped {
		r.stopped = true
		close(r.queue)
	}
	started := r.started
	r.mu.Unlock()

	if !started {
		// Nothing will drain the buffer; run what is left inline.
		for j := range r.queue {
			r.execute(j)
		}
		return nil
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("background: shutdown: %w", ctx.Err())
	}
}

func (r *Runner) run(workerID int) {
	defer r.wg.Done()
	for j := range r.queue {
		r.execute(j)
	}
	r.logger.Debug("background worker stopped", "worker_id", workerID)
}

func (r *Runner) execute(j job) {
	ctx := j.ctx
	if r.taskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.taskTimeout)
		defer cancel()
	}
	err := runTask(ctx, j.task)
	status := "ok"
	if err != nil {
		status = "error"
		r.logger.Error("background task failed", "task", j.task.Name, "error", err)
	}
	r.metrics.ObserveBackgroundTask(j.task.Name, status)
}

// runTask converts a panic into an error so one bad task cannot kill a worker.
func runTask(ctx context.Context, task Task) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("background: task %q panicked: %v", task.Name, p)
		}
	}()
	return task.Run(ctx)
}

// Inline runs every task synchronously inside Submit. It suits short-lived
// runtimes such as Lambda, where nothing may outlive the invocation.
type Inline struct {
	metrics *metrics.ConversationMetrics
	logger  *logging.Logger
}

func NewInline(m *metrics.ConversationMetrics, logger *logging.Logger) *Inline {
	if logger == nil {
		logger = logging.Default()
	}
	return &Inline{metrics: m, logger: logger}
}

// Submit runs task and logs its error; the error is not returned because the
// caller treats tasks as fire-and-forget.
func (i *Inline) Submit(ctx context.Context, task Task) error {
	if task.Run == nil {
		return fmt.Errorf("background: task %q has no body", task.Name)
	}
	status := "ok"
	if err := runTask(context.WithoutCancel(ctx), task); err != nil {
		status = "error"
		i.logger.Error("background task failed", "task", task.Name, "error", err)
	}
	i.metrics.ObserveBackgroundTask(task.Name, status)
	return nil
}

var (
	_ Submitter = (*Runner)(nil)
	_ Submitter = (*Inline)(nil)
)
