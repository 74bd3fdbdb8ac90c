// Package worker runs detached background tasks on a fixed pool while keeping
// their completion and failures observable.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"Gamarr/shared/logger"
)

const (
	// DefaultWorkerCount is the default number of workers
	DefaultWorkerCount = 4

	// TaskChannelBufferSize is the buffer size for the task and error channels
	TaskChannelBufferSize = 100
)

var (
	ErrQueueFull   = errors.New("worker queue is full")
	ErrQueueClosed = errors.New("worker queue is closed")
)

type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// TaskError reports a failed task on the queue's error channel.
type TaskError struct {
	Task string
	Err  error
}

func (e TaskError) Error() string {
	return fmt.Sprintf("task %s failed: %v", e.Task, e.Err)
}

func (e TaskError) Unwrap() error {
	return e.Err
}

type Queue struct {
	tasks   chan Task
	errs    chan TaskError
	ctx     context.Context
	cancel  context.CancelFunc
	workers sync.WaitGroup
	pending sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	logger  *slog.Logger
}

// NewQueue starts workerCount workers. Tasks run with a context that is only
// cancelled by Close, never by the context of whoever submitted them.
func NewQueue(workerCount int, log *slog.Logger) *Queue {
	if workerCount <= 0 {
		workerCount = DefaultWorkerCount
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		tasks:  make(chan Task, TaskChannelBufferSize),
		errs:   make(chan TaskError, TaskChannelBufferSize),
		ctx:    ctx,
		cancel: cancel,
		logger: logger.Component(log, "worker"),
	}
	for range workerCount {
		q.workers.Add(1)
		go q.run()
	}
	return q
}

// Submit enqueues task without blocking.
func (q *Queue) Submit(task Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	q.pending.Add(1)
	select {
	case q.tasks <- task:
		return nil
	default:
		q.pending.Done()
		return ErrQueueFull
	}
}

// Errors exposes failed tasks. When nobody drains it, failures past the
// buffer are logged and dropped.
func (q *Queue) Errors() <-chan TaskError {
	return q.errs
}

// Wait blocks until every submitted task has finished.
func (q *Queue) Wait() {
	q.pending.Wait()
}

// Close stops accepting tasks, lets queued ones finish and stops the workers.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()

	q.workers.Wait()
	q.cancel()
}

func (q *Queue) run() {
	defer q.workers.Done()
	for task := range q.tasks {
		q.execute(task)
	}
}

func (q *Queue) execute(task Task) {
	defer q.pending.Done()
	defer func() {
		if r := recover(); r != nil {
			q.report(TaskError{Task: task.Name, Err: fmt.Errorf("panic: %v", r)})
		}
	}()

	if err := task.Run(q.ctx); err != nil {
		q.report(TaskError{Task: task.Name, Err: err})
	}
}

func (q *Queue) report(te TaskError) {
	q.logger.Error("background task failed", "task", te.Task, "error", te.Err)
	select {
	case q.errs <- te:
	default:
		q.logger.Warn("error channel full, dropping task error", "task", te.Task)
	}
}
