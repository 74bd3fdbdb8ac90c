// Package scheduler runs the periodic background jobs. Each job runs at most
// once at a time; a tick that arrives while the previous run is still going
// is skipped.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/robfig/cron/v3"

	"Gamarr/shared/logger"
)

var (
	ErrJobRunning    = errors.New("job already running")
	ErrUnknownJob    = errors.New("unknown job")
	ErrAlreadyLocked = errors.New("another scheduler instance is already running")
)

// JobFunc is the body of a scheduled job.
type JobFunc func(ctx context.Context) error

type job struct {
	name     string
	interval time.Duration
	spec     string
	fn       JobFunc
	running  atomic.Bool
}

type Scheduler struct {
	mu      sync.Mutex
	jobs    map[string]*job
	order   []*job
	cron    *cron.Cron
	lock    *flock.Flock
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	logger  *slog.Logger
}

// New creates a scheduler. When lockPath is set, Start takes an exclusive
// file lock so only one instance schedules jobs.
func New(lockPath string, log *slog.Logger) *Scheduler {
	s := &Scheduler{
		jobs:   make(map[string]*job),
		cron:   cron.New(),
		logger: logger.Component(log, "scheduler"),
	}
	if lockPath != "" {
		s.lock = flock.New(lockPath)
	}
	return s
}

// Every registers a job that runs at startup and then every interval.
func (s *Scheduler) Every(name string, interval time.Duration, fn JobFunc) error {
	if interval <= 0 {
		return fmt.Errorf("invalid interval %s for job %s", interval, name)
	}
	return s.add(&job{name: name, interval: interval, fn: fn})
}

// Cron registers a job driven by a standard five-field cron expression.
func (s *Scheduler) Cron(name, spec string, fn JobFunc) error {
	j := &job{name: name, spec: spec, fn: fn}
	if err := s.add(j); err != nil {
		return err
	}
	_, err := s.cron.AddFunc(spec, func() {
		s.run(s.baseContext(), j)
	})
	if err != nil {
		s.mu.Lock()
		delete(s.jobs, name)
		s.order = s.order[:len(s.order)-1]
		s.mu.Unlock()
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}
	return nil
}

func (s *Scheduler) add(j *job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("cannot add job %s after start", j.name)
	}
	if _, exists := s.jobs[j.name]; exists {
		return fmt.Errorf("job %s already registered", j.name)
	}
	s.jobs[j.name] = j
	s.order = append(s.order, j)
	return nil
}

func (s *Scheduler) baseContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

// Start acquires the lock and launches every job.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("scheduler already started")
	}

	if s.lock != nil {
		ok, err := s.lock.TryLock()
		if err != nil {
			return fmt.Errorf("failed to acquire scheduler lock: %w", err)
		}
		if !ok {
			return ErrAlreadyLocked
		}
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = true

	for _, j := range s.order {
		if j.interval > 0 {
			s.wg.Add(1)
			go s.loop(s.ctx, j)
		}
	}
	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.order))
	return nil
}

// Stop cancels running jobs, waits for them and releases the lock.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	<-s.cron.Stop().Done()
	s.wg.Wait()

	if s.lock != nil {
		if err := s.lock.Unlock(); err != nil {
			s.logger.Warn("failed to release scheduler lock", "error", err)
		}
	}
	s.logger.Info("scheduler stopped")
}

// Trigger runs a job immediately on the caller's goroutine.
func (s *Scheduler) Trigger(ctx context.Context, name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	if !s.run(ctx, j) {
		return ErrJobRunning
	}
	return nil
}

// Jobs returns the registered job names in registration order.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.order))
	for _, j := range s.order {
		names = append(names, j.name)
	}
	return names
}

func (s *Scheduler) loop(ctx context.Context, j *job) {
	defer s.wg.Done()

	s.run(ctx, j)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.run(ctx, j)
		}
	}
}

// run reports false when the job was skipped because it is already running.
func (s *Scheduler) run(ctx context.Context, j *job) (ran bool) {
	if !j.running.CompareAndSwap(false, true) {
		s.logger.Warn("skipping job, previous run still in progress", "job", j.name)
		return false
	}
	defer j.running.Store(false)
	ran = true

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job panicked", "job", j.name, "panic", r)
		}
	}()

	if err := j.fn(ctx); err != nil {
		s.logger.Error("job failed", "job", j.name, "duration", time.Since(start), "error", err)
		return ran
	}
	s.logger.Info("job finished", "job", j.name, "duration", time.Since(start))
	return ran
}
