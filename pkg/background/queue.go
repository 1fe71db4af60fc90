// Package background runs fire-and-forget side effects (audit logs, usage
// records, timestamp touches) off the request path. Task failures are
// logged and counted, never propagated to the dispatching caller.
package background

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

type QueueOptions struct {
	Workers     int
	BufferSize  int
	TaskTimeout time.Duration
	Logger      *logrus.Entry
}

func (o *QueueOptions) setDefaults() {
	if o.Workers == 0 {
		o.Workers = 2
	}
	if o.BufferSize == 0 {
		o.BufferSize = 256
	}
	if o.TaskTimeout == 0 {
		o.TaskTimeout = 30 * time.Second
	}
	if o.Logger == nil {
		o.Logger = logrusNop()
	}
}

// Queue is a bounded worker pool. The task channel is never closed:
// shutdown flips a flag under the lock and signals workers to drain, so
// a Dispatch racing Shutdown drops the task instead of panicking.
type Queue struct {
	tasks   chan Task
	logger  *logrus.Entry
	timeout time.Duration

	mu      sync.RWMutex
	stopped bool

	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewQueue(opts QueueOptions) *Queue {
	opts.setDefaults()
	q := &Queue{
		tasks:   make(chan Task, opts.BufferSize),
		logger:  opts.Logger,
		timeout: opts.TaskTimeout,
		quit:    make(chan struct{}),
	}
	for i := 0; i < opts.Workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

// Dispatch enqueues a task without blocking. When the queue is stopped
// or the buffer is full the task is dropped and counted; callers must
// treat dispatch as best-effort.
func (q *Queue) Dispatch(task Task) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.stopped {
		getMetrics().droppedTotal.WithLabelValues(task.Name).Inc()
		return
	}
	select {
	case q.tasks <- task:
	default:
		getMetrics().droppedTotal.WithLabelValues(task.Name).Inc()
		q.logger.WithField("task", task.Name).Warn("background: queue full, task dropped")
	}
}

// Shutdown stops accepting tasks and waits for buffered and in-flight
// ones, bounded by the given context.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.stopOnce.Do(func() {
		q.mu.Lock()
		q.stopped = true
		q.mu.Unlock()
		close(q.quit)
	})

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		select {
		case task := <-q.tasks:
			q.run(task)
		case <-q.quit:
			// Stopped: drain whatever was buffered, then exit.
			for {
				select {
				case task := <-q.tasks:
					q.run(task)
				default:
					return
				}
			}
		}
	}
}

func (q *Queue) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			getMetrics().ranTotal.WithLabelValues(task.Name, "panic").Inc()
			q.logger.WithField("task", task.Name).Errorf("background: task panicked: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	start := time.Now()
	err := task.Run(ctx)
	elapsed := time.Since(start)

	result := "ok"
	if err != nil {
		result = "error"
		q.logger.WithError(err).WithField("task", task.Name).Warn("background: task failed")
	}
	getMetrics().ranTotal.WithLabelValues(task.Name, result).Inc()
	getMetrics().latency.WithLabelValues(task.Name, result).Observe(elapsed.Seconds())
}

// MergeDeadline bounds a detached values context by the task context's
// deadline, so persistence dispatched off the request path still honors
// the queue's task timeout.
func MergeDeadline(values, task context.Context) (context.Context, context.CancelFunc) {
	if deadline, ok := task.Deadline(); ok {
		return context.WithDeadline(values, deadline)
	}
	return context.WithCancel(values)
}

func logrusNop() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}
