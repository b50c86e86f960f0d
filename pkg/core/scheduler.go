// Package core runs the pipeline heartbeat. A single scheduler ticks
// on a short interval, asks every registered job whether its window
// has come and runs due jobs on their own goroutines. The CAS lock in
// BaseJob keeps a job from overlapping itself; an overdue window
// collapses into a single run once the previous one finishes.
package core

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Job defines a scheduled task. ShouldFire is called on every
// heartbeat with the current wall-clock time and must be cheap; Run
// executes on its own goroutine.
type Job interface {
	Name() string
	ShouldFire(now time.Time) bool
	Run(ctx context.Context, now time.Time)
}

// BaseJob provides atomic running state to prevent re-entry.
type BaseJob struct {
	name    string
	running int32 // 1 if running, 0 otherwise
}

func NewBaseJob(name string) BaseJob {
	return BaseJob{name: name}
}

func (b *BaseJob) Name() string {
	return b.name
}

// TryLock attempts to set running to 1. Returns true if successful.
func (b *BaseJob) TryLock() bool {
	return atomic.CompareAndSwapInt32(&b.running, 0, 1)
}

func (b *BaseJob) Unlock() {
	atomic.StoreInt32(&b.running, 0)
}

func (b *BaseJob) busy() bool {
	return atomic.LoadInt32(&b.running) == 1
}

// Scheduler manages the central heartbeat and scheduled jobs.
type Scheduler struct {
	heartbeat  time.Duration
	drainGrace time.Duration
	jobs       []Job

	wg sync.WaitGroup
}

// NewScheduler creates a scheduler ticking at the given heartbeat. On
// shutdown, jobs still in flight get up to drainGrace to finish.
func NewScheduler(heartbeat, drainGrace time.Duration) *Scheduler {
	if heartbeat <= 0 {
		heartbeat = time.Second
	}
	if drainGrace <= 0 {
		drainGrace = 30 * time.Second
	}
	return &Scheduler{heartbeat: heartbeat, drainGrace: drainGrace}
}

// AddJob registers a job. Not safe to call after Start.
func (s *Scheduler) AddJob(j Job) {
	s.jobs = append(s.jobs, j)
}

// Start runs the main loop. It blocks until ctx is cancelled, then
// waits up to the drain grace for running jobs before returning.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	slog.Info("Scheduler started", "heartbeat", s.heartbeat, "jobs", len(s.jobs))

	for {
		select {
		case <-ctx.Done():
			s.drain()
			return
		case now := <-ticker.C:
			s.tick(ctx, now.UTC())
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	for _, job := range s.jobs {
		if job.ShouldFire(now) {
			s.wg.Add(1)
			go func(j Job) {
				defer s.wg.Done()
				j.Run(ctx, now)
			}(job)
		}
	}
}

// drain waits for in-flight jobs, bounded by the drain grace. Jobs
// see the cancelled context and wind down on their own; the wait here
// only keeps the process alive while they do.
func (s *Scheduler) drain() {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		slog.Info("Scheduler stopped")
	case <-time.After(s.drainGrace):
		slog.Warn("Scheduler stopped with jobs still running", "grace", s.drainGrace)
	}
}
