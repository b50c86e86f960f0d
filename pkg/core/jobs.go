package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	dayLayout   = "2006-01-02"
	monthLayout = "2006-01"
)

// StateStore persists job cursors across restarts.
type StateStore interface {
	GetState(ctx context.Context, key string) (string, bool)
	SetState(ctx context.Context, key, val string) error
}

// IntervalJob fires on a fixed cadence, starting with the first
// heartbeat after boot. A window missed while the previous run was
// still going collapses into a single run.
type IntervalJob struct {
	BaseJob
	interval time.Duration
	action   func(context.Context, time.Time)

	last    time.Time
	haveRun bool
}

func NewIntervalJob(name string, interval time.Duration, action func(context.Context, time.Time)) *IntervalJob {
	if interval <= 0 {
		interval = time.Minute
	}
	return &IntervalJob{
		BaseJob:  NewBaseJob(name),
		interval: interval,
		action:   action,
	}
}

func (j *IntervalJob) ShouldFire(now time.Time) bool {
	if j.busy() {
		return false
	}
	if !j.haveRun {
		return true
	}
	return now.Sub(j.last) >= j.interval
}

func (j *IntervalJob) Run(ctx context.Context, now time.Time) {
	if !j.TryLock() {
		return
	}
	defer j.Unlock()

	j.last = now
	j.haveRun = true
	j.action(ctx, now)
}

// DailyJob fires once per UTC day at a fixed time. The fired day
// persists under the given state key, so a restart does not repeat a
// pull; a boot after the scheduled time catches up the same day.
type DailyJob struct {
	BaseJob
	at     int // minutes since midnight UTC
	action func(context.Context, time.Time)
	state  StateStore
	key    string

	loadOnce sync.Once
	lastDay  string
}

func NewDailyJob(name, at string, st StateStore, key string, action func(context.Context, time.Time)) (*DailyJob, error) {
	minutes, err := parseTimeOfDay(at)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", name, err)
	}
	return &DailyJob{
		BaseJob: NewBaseJob(name),
		at:      minutes,
		action:  action,
		state:   st,
		key:     key,
	}, nil
}

func (j *DailyJob) ShouldFire(now time.Time) bool {
	if j.busy() {
		return false
	}
	j.loadOnce.Do(j.load)

	u := now.UTC()
	if u.Format(dayLayout) == j.lastDay {
		return false
	}
	return minuteOfDay(u) >= j.at
}

func (j *DailyJob) Run(ctx context.Context, now time.Time) {
	if !j.TryLock() {
		return
	}
	defer j.Unlock()
	j.loadOnce.Do(j.load)

	day := now.UTC().Format(dayLayout)
	if day == j.lastDay {
		return
	}
	j.action(ctx, now)
	j.lastDay = day
	persistCursor(ctx, j.state, j.Name(), j.key, day)
}

func (j *DailyJob) load() {
	j.lastDay = loadCursor(j.state, j.key)
}

// MonthlyJob fires once per calendar month on a fixed UTC day and
// time. Cursor semantics match DailyJob; a boot later in the month
// catches up immediately.
type MonthlyJob struct {
	BaseJob
	day    int // day of month, 1-28
	at     int // minutes since midnight UTC
	action func(context.Context, time.Time)
	state  StateStore
	key    string

	loadOnce  sync.Once
	lastMonth string
}

func NewMonthlyJob(name string, day int, at string, st StateStore, key string, action func(context.Context, time.Time)) (*MonthlyJob, error) {
	if day < 1 || day > 28 {
		return nil, fmt.Errorf("job %s: day of month %d out of range 1-28", name, day)
	}
	minutes, err := parseTimeOfDay(at)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", name, err)
	}
	return &MonthlyJob{
		BaseJob: NewBaseJob(name),
		day:     day,
		at:      minutes,
		action:  action,
		state:   st,
		key:     key,
	}, nil
}

func (j *MonthlyJob) ShouldFire(now time.Time) bool {
	if j.busy() {
		return false
	}
	j.loadOnce.Do(j.load)

	u := now.UTC()
	if u.Format(monthLayout) == j.lastMonth {
		return false
	}
	switch {
	case u.Day() < j.day:
		return false
	case u.Day() > j.day:
		return true
	default:
		return minuteOfDay(u) >= j.at
	}
}

func (j *MonthlyJob) Run(ctx context.Context, now time.Time) {
	if !j.TryLock() {
		return
	}
	defer j.Unlock()
	j.loadOnce.Do(j.load)

	month := now.UTC().Format(monthLayout)
	if month == j.lastMonth {
		return
	}
	j.action(ctx, now)
	j.lastMonth = month
	persistCursor(ctx, j.state, j.Name(), j.key, month)
}

func (j *MonthlyJob) load() {
	j.lastMonth = loadCursor(j.state, j.key)
}

// parseTimeOfDay turns "HH:MM" into minutes since midnight. The empty
// string means midnight.
func parseTimeOfDay(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	return minuteOfDay(t), nil
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

func loadCursor(st StateStore, key string) string {
	if st == nil || key == "" {
		return ""
	}
	v, _ := st.GetState(context.Background(), key)
	return v
}

func persistCursor(ctx context.Context, st StateStore, job, key, val string) {
	if st == nil || key == "" {
		return
	}
	if err := st.SetState(context.WithoutCancel(ctx), key, val); err != nil {
		slog.Warn("Job cursor not persisted", "job", job, "error", err)
	}
}
