// Package scheduler runs named background jobs on cron or interval
// schedules. Each job runs at most one instance at a time; a tick that
// arrives while the previous run is still going is dropped.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// JobFunc is one unit of scheduled work.
type JobFunc func(ctx context.Context) error

// JobInfo is a snapshot of one registered job.
type JobInfo struct {
	Name     string    `json:"name"`
	Schedule string    `json:"schedule"`
	Paused   bool      `json:"paused"`
	Running  bool      `json:"running"`
	Runs     int64     `json:"runs"`
	Skipped  int64     `json:"skipped"`
	LastRun  time.Time `json:"last_run,omitempty"`
	LastErr  string    `json:"last_error,omitempty"`
	NextRun  time.Time `json:"next_run,omitempty"`
}

type entry struct {
	name     string
	schedule string
	fn       JobFunc
	cronID   cron.EntryID

	paused  bool
	running bool
	runs    int64
	skipped int64
	lastRun time.Time
	lastErr error
}

// Scheduler owns the job table and the cron runner.
type Scheduler struct {
	cron   *cron.Cron
	logger zerolog.Logger

	mu   sync.Mutex
	jobs map[string]*entry

	baseCtx context.Context
	cancel  context.CancelFunc
}

// New creates a stopped scheduler.
func New(logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithSeconds()),
		logger: logger,
		jobs:   make(map[string]*entry),
	}
}

// Start begins dispatching. Jobs may be added before or after Start.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.baseCtx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()
	s.cron.Start()
	s.logger.Info().Msg("scheduler started")
}

// Stop halts dispatching and waits for running jobs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info().Msg("scheduler stopped")
}

// AddInterval registers a job that runs every `every`.
func (s *Scheduler) AddInterval(name string, every time.Duration, fn JobFunc) error {
	return s.add(name, fmt.Sprintf("@every %s", every), fn)
}

// AddCron registers a job on a six-field cron expression.
func (s *Scheduler) AddCron(name, spec string, fn JobFunc) error {
	return s.add(name, spec, fn)
}

func (s *Scheduler) add(name, spec string, fn JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("scheduler: job %q already registered", name)
	}

	e := &entry{name: name, schedule: spec, fn: fn}
	id, err := s.cron.AddFunc(spec, func() { s.dispatch(e, false) })
	if err != nil {
		return fmt.Errorf("scheduler: job %q: %w", name, err)
	}
	e.cronID = id
	s.jobs[name] = e

	s.logger.Info().Str("job", name).Str("schedule", spec).Msg("job registered")
	return nil
}

// Remove unregisters a job. A running instance finishes undisturbed.
func (s *Scheduler) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("scheduler: job %q not found", name)
	}
	s.cron.Remove(e.cronID)
	delete(s.jobs, name)
	return nil
}

// Pause keeps the schedule but drops its ticks.
func (s *Scheduler) Pause(name string) error {
	return s.setPaused(name, true)
}

// Resume re-enables a paused job.
func (s *Scheduler) Resume(name string) error {
	return s.setPaused(name, false)
}

func (s *Scheduler) setPaused(name string, paused bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("scheduler: job %q not found", name)
	}
	e.paused = paused
	return nil
}

// RunNow triggers one immediate run, bypassing pause but not the
// single-instance guard. It blocks until the run finishes.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	e, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("scheduler: job %q not found", name)
	}
	s.dispatch(e, true)
	return nil
}

// dispatch runs one instance of the job unless one is already in flight.
func (s *Scheduler) dispatch(e *entry, force bool) {
	s.mu.Lock()
	if (e.paused && !force) || e.running {
		if e.running {
			e.skipped++
			s.logger.Debug().Str("job", e.name).Msg("tick dropped, previous run still going")
		}
		s.mu.Unlock()
		return
	}
	e.running = true
	e.runs++
	e.lastRun = time.Now().UTC()
	ctx := s.baseCtx
	s.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	err := e.fn(ctx)

	s.mu.Lock()
	e.running = false
	e.lastErr = err
	s.mu.Unlock()

	if err != nil {
		s.logger.Error().Err(err).Str("job", e.name).Msg("job failed")
	}
}

// List returns a snapshot of every job, sorted by name.
func (s *Scheduler) List() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobInfo, 0, len(s.jobs))
	for _, e := range s.jobs {
		info := JobInfo{
			Name:     e.name,
			Schedule: e.schedule,
			Paused:   e.paused,
			Running:  e.running,
			Runs:     e.runs,
			Skipped:  e.skipped,
			LastRun:  e.lastRun,
			NextRun:  s.cron.Entry(e.cronID).Next,
		}
		if e.lastErr != nil {
			info.LastErr = e.lastErr.Error()
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
