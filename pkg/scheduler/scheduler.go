// Package scheduler runs periodic background jobs such as the gateway sync
// that stamps the protocol's lastSync time.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/igorsilveira/clawnet/pkg/protocol"
	"github.com/igorsilveira/clawnet/pkg/telemetry"
)

type Job struct {
	Name string
	// Schedule is a duration, "@every <d>", one of @hourly/@daily/@weekly,
	// or a five-field cron expression.
	Schedule string
	// Immediate runs the job on the first tick instead of one interval in.
	Immediate bool
	Func      func(ctx context.Context) error
}

// Status is a point-in-time view of one job.
type Status struct {
	Name     string        `json:"name"`
	Schedule string        `json:"schedule"`
	Interval time.Duration `json:"interval,omitempty"`
	Next     time.Time     `json:"next"`
	LastRun  time.Time     `json:"lastRun,omitempty"`
	LastErr  string        `json:"lastError,omitempty"`
	Runs     int           `json:"runs"`
	Running  bool          `json:"running"`
}

type Scheduler struct {
	jobs     []*entry
	mu       sync.Mutex
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	tick     time.Duration
	now      func() time.Time
}

type entry struct {
	job      Job
	interval time.Duration
	cron     bool
	next     time.Time
	lastRun  time.Time
	lastErr  error
	runs     int
	busy     bool
}

func New() *Scheduler {
	return &Scheduler{
		stopCh: make(chan struct{}),
		tick:   time.Second,
		now:    time.Now,
	}
}

func (s *Scheduler) Add(job Job) error {
	if job.Func == nil {
		return fmt.Errorf("scheduler: job %q has no func", job.Name)
	}
	e := &entry{job: job}
	interval, err := parseSchedule(job.Schedule)
	switch {
	case err == nil && interval <= 0:
		return fmt.Errorf("scheduler: schedule %q must be positive", job.Schedule)
	case err == nil:
		e.interval = interval
	case gronx.New().IsValid(job.Schedule):
		e.cron = true
	default:
		return fmt.Errorf("scheduler: invalid schedule %q: %w", job.Schedule, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if job.Immediate {
		e.next = now
	} else if e.next, err = e.after(now); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	s.jobs = append(s.jobs, e)
	return nil
}

// after returns the first run time strictly after t.
func (e *entry) after(t time.Time) (time.Time, error) {
	if !e.cron {
		return t.Add(e.interval), nil
	}
	next, err := gronx.NextTickAfter(e.job.Schedule, t, false)
	if err != nil {
		return time.Time{}, fmt.Errorf("next tick for %q: %w", e.job.Schedule, err)
	}
	return next, nil
}

// Start blocks until ctx is done or Stop is called, then waits for running
// jobs to return.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	n := len(s.jobs)
	s.mu.Unlock()

	logger := telemetry.Component(telemetry.FromContext(ctx), "scheduler")
	logger.Info("scheduler started", slog.Int("jobs", n))

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	defer s.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.runDue(ctx, s.now(), logger)
		}
	}
}

func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// runDue launches every job whose time has come. A job still running from
// its previous tick is skipped rather than stacked.
func (s *Scheduler) runDue(ctx context.Context, now time.Time, logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.jobs {
		if now.Before(e.next) {
			continue
		}
		next, err := e.after(now)
		if err != nil {
			logger.Error("cannot reschedule job", slog.String("job", e.job.Name), slog.String("err", err.Error()))
			next = now.Add(time.Hour)
		}
		e.next = next
		if e.busy {
			logger.Warn("job still running, skipping", slog.String("job", e.job.Name))
			continue
		}
		e.busy = true

		s.wg.Add(1)
		go func(e *entry) {
			defer s.wg.Done()
			logger.Debug("running job", slog.String("job", e.job.Name))
			err := e.job.Func(ctx)

			s.mu.Lock()
			e.busy = false
			e.lastRun = s.now()
			e.lastErr = err
			e.runs++
			s.mu.Unlock()

			if err != nil {
				telemetry.Metrics.ErrorsTotal.WithLabelValues("scheduler").Inc()
				logger.Error("job failed",
					slog.String("job", e.job.Name),
					slog.String("err", err.Error()),
				)
			}
		}(e)
	}
}

func (s *Scheduler) Jobs() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Status, 0, len(s.jobs))
	for _, e := range s.jobs {
		st := Status{
			Name:     e.job.Name,
			Schedule: e.job.Schedule,
			Interval: e.interval,
			Next:     e.next,
			LastRun:  e.lastRun,
			Runs:     e.runs,
			Running:  e.busy,
		}
		if e.lastErr != nil {
			st.LastErr = e.lastErr.Error()
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

type Syncer interface {
	Sync(ctx context.Context) (protocol.NetworkStats, error)
}

// SyncJob pulls network stats from the gateway through the coordinator on
// schedule.
func SyncJob(c Syncer, schedule string) Job {
	return Job{
		Name:      "network-sync",
		Schedule:  schedule,
		Immediate: true,
		Func: func(ctx context.Context) error {
			_, err := c.Sync(ctx)
			return err
		},
	}
}

func parseSchedule(s string) (time.Duration, error) {
	switch s {
	case "@hourly":
		return time.Hour, nil
	case "@daily":
		return 24 * time.Hour, nil
	case "@weekly":
		return 7 * 24 * time.Hour, nil
	}

	if len(s) > 7 && s[:7] == "@every " {
		return time.ParseDuration(s[7:])
	}

	return time.ParseDuration(s)
}
