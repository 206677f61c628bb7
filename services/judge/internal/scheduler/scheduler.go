// Package scheduler runs named recurring jobs in-process. Starting a job
// under a name that is already running replaces the previous instance.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrStopped = errors.New("scheduler: stopped")

// Job is one run of a recurring task.
type Job func(ctx context.Context) error

type entry struct {
	cancel context.CancelFunc
	done   chan struct{}
}

type Scheduler struct {
	log *zap.Logger

	mu      sync.Mutex
	jobs    map[string]*entry
	stopped bool
}

func New(log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{log: log, jobs: make(map[string]*entry)}
}

// StartSingleton runs job every interval under name, cancelling and waiting
// for any previous job of the same name first.
func (s *Scheduler) StartSingleton(name string, interval time.Duration, job Job) error {
	if name == "" || job == nil {
		return errors.New("scheduler: name and job are required")
	}
	if interval <= 0 {
		return fmt.Errorf("scheduler: invalid interval %s for %s", interval, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if prev, ok := s.jobs[name]; ok {
		prev.cancel()
		<-prev.done
		s.log.Info("scheduled job replaced", zap.String("job", name))
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &entry{cancel: cancel, done: make(chan struct{})}
	s.jobs[name] = e
	go s.loop(ctx, e, name, interval, job)
	s.log.Info("scheduled job started", zap.String("job", name), zap.Duration("interval", interval))
	return nil
}

func (s *Scheduler) loop(ctx context.Context, e *entry, name string, interval time.Duration, job Job) {
	defer close(e.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, name, job)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, name string, job Job) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("scheduled job panicked", zap.String("job", name), zap.Any("panic", r))
		}
	}()
	if err := job(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("scheduled job failed", zap.String("job", name), zap.Error(err))
	}
}

// Stop cancels every job, waits for in-flight runs, and rejects new ones.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	jobs := s.jobs
	s.jobs = make(map[string]*entry)
	s.mu.Unlock()

	for _, e := range jobs {
		e.cancel()
	}
	for _, e := range jobs {
		select {
		case <-e.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
