package core

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

// latchJob fires on every heartbeat and counts its runs.
type latchJob struct {
	BaseJob
	runs  int32
	fired chan struct{}
	hold  chan struct{} // when set, Run blocks until closed
}

func newLatchJob(name string) *latchJob {
	return &latchJob{
		BaseJob: NewBaseJob(name),
		fired:   make(chan struct{}, 16),
	}
}

func (j *latchJob) ShouldFire(now time.Time) bool {
	return !j.busy()
}

func (j *latchJob) Run(ctx context.Context, now time.Time) {
	if !j.TryLock() {
		return
	}
	defer j.Unlock()

	atomic.AddInt32(&j.runs, 1)
	select {
	case j.fired <- struct{}{}:
	default:
	}
	if j.hold != nil {
		<-j.hold
	}
}

func (j *latchJob) runCount() int32 {
	return atomic.LoadInt32(&j.runs)
}

func TestScheduler_RunsDueJobs(t *testing.T) {
	sched := NewScheduler(5*time.Millisecond, 100*time.Millisecond)
	job := newLatchJob("latch")
	sched.AddJob(job)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sched.Start(ctx)

	for i := 0; i < 2; i++ {
		select {
		case <-job.fired:
		case <-time.After(500 * time.Millisecond):
			t.Fatalf("job did not fire (round %d)", i+1)
		}
	}
}

func TestScheduler_NoOverlap(t *testing.T) {
	sched := NewScheduler(5*time.Millisecond, 100*time.Millisecond)
	job := newLatchJob("slow")
	job.hold = make(chan struct{})
	sched.AddJob(job)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sched.Start(ctx)

	select {
	case <-job.fired:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("job never started")
	}

	// Heartbeats keep coming while the job blocks; none may re-enter.
	time.Sleep(50 * time.Millisecond)
	if got := job.runCount(); got != 1 {
		t.Fatalf("runs = %d while job was held, want 1", got)
	}
	close(job.hold)
}

func TestScheduler_DrainWaitsForJobs(t *testing.T) {
	sched := NewScheduler(5*time.Millisecond, time.Second)
	job := newLatchJob("slow")
	job.hold = make(chan struct{})
	sched.AddJob(job)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		sched.Start(ctx)
		close(stopped)
	}()

	select {
	case <-job.fired:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("job never started")
	}

	cancel()
	select {
	case <-stopped:
		t.Fatal("scheduler returned while a job was still running")
	case <-time.After(30 * time.Millisecond):
	}

	close(job.hold)
	select {
	case <-stopped:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("scheduler did not stop after the job finished")
	}
}

func TestBaseJob_Lock(t *testing.T) {
	job := NewBaseJob("slow")

	if !job.TryLock() {
		t.Fatal("should lock when free")
	}
	if job.TryLock() {
		t.Fatal("should fail lock when busy")
	}
	job.Unlock()
	if !job.TryLock() {
		t.Fatal("should lock again after unlock")
	}
}
