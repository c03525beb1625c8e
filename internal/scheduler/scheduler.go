// Package scheduler owns the daemon's run state. It registers the two daily
// wall-clock timers on a cron runner in the site's timezone and consumes
// manual, webhook and poller triggers from the trigger bus. A per-job mutex
// skips any trigger that would overlap a running instance of the same job.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pagesched/pagesched/internal/audit"
	"github.com/pagesched/pagesched/internal/domain"
)

// JobRunner is one schedulable job (cleanup, repeating-events).
type JobRunner interface {
	Run(ctx context.Context, source domain.TriggerSource) error
}

// TriggerBus is the source of externally requested runs.
type TriggerBus interface {
	Emit(ctx context.Context, req domain.TriggerRequest) error
	Channel() <-chan domain.TriggerRequest
}

// Config holds the wall-clock firing times, "HH:MM" in Location.
type Config struct {
	Location      *time.Location
	CleanupTime   string
	RepeatingTime string
}

// Status is a snapshot of the runtime for the status endpoint.
type Status struct {
	Running          bool     `json:"running"`
	ActiveTimerNames []string `json:"activeTimerNames"`
}

// Scheduler transitions between Stopped and Running. Start and Stop are
// idempotent.
type Scheduler struct {
	config Config
	bus    TriggerBus
	jobs   map[domain.JobName]JobRunner
	locks  map[domain.JobName]*sync.Mutex
	audit  audit.Logger

	cleanupSpec   string
	repeatingSpec string

	mu      sync.Mutex
	running bool
	cron    *cron.Cron
	cancel  context.CancelFunc
	done    chan struct{}

	clock func() time.Time
}

// New validates the configured firing times and builds a stopped scheduler.
// Cleanup is registered before repeating-events so the retention pass runs
// first each day.
func New(config Config, bus TriggerBus, cleanup, repeating JobRunner, auditLog audit.Logger) (*Scheduler, error) {
	cleanupSpec, err := cronSpec(config.CleanupTime)
	if err != nil {
		return nil, fmt.Errorf("cleanup time: %w", err)
	}
	repeatingSpec, err := cronSpec(config.RepeatingTime)
	if err != nil {
		return nil, fmt.Errorf("repeating time: %w", err)
	}
	if config.Location == nil {
		return nil, errors.New("scheduler: location is required")
	}

	return &Scheduler{
		config: config,
		bus:    bus,
		jobs: map[domain.JobName]JobRunner{
			domain.JobCleanup:         cleanup,
			domain.JobRepeatingEvents: repeating,
		},
		locks: map[domain.JobName]*sync.Mutex{
			domain.JobCleanup:         {},
			domain.JobRepeatingEvents: {},
		},
		audit:         auditLog,
		cleanupSpec:   cleanupSpec,
		repeatingSpec: repeatingSpec,
		clock:         time.Now,
	}, nil
}

// cronSpec converts a "HH:MM" wall-clock time to a daily cron expression.
func cronSpec(hhmm string) (string, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(hhmm, "%2d:%2d", &hour, &minute); err != nil {
		return "", fmt.Errorf("parse %q: %w", hhmm, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return "", fmt.Errorf("time %q out of range", hhmm)
	}
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}

// Start registers the daily timers and the trigger runner. Starting a running
// scheduler logs a warning and changes nothing.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		log.Println("scheduler: already running, start ignored")
		return nil
	}

	c := cron.New(cron.WithLocation(s.config.Location))

	if _, err := c.AddFunc(s.cleanupSpec, func() {
		s.execute(ctx, domain.TriggerRequest{
			Job:         domain.JobCleanup,
			Source:      domain.TriggerSourceSchedule,
			RequestedAt: s.clock(),
		})
	}); err != nil {
		return fmt.Errorf("register cleanup timer: %w", err)
	}
	if _, err := c.AddFunc(s.repeatingSpec, func() {
		s.execute(ctx, domain.TriggerRequest{
			Job:         domain.JobRepeatingEvents,
			Source:      domain.TriggerSourceSchedule,
			RequestedAt: s.clock(),
		})
	}); err != nil {
		return fmt.Errorf("register repeating-events timer: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cron = c
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	c.Start()
	go s.runLoop(runCtx, s.done)

	log.Printf("scheduler: started (cleanup %q, repeating-events %q, tz=%s)",
		s.cleanupSpec, s.repeatingSpec, s.config.Location)
	s.audit.Log(ctx, "scheduler_started", fmt.Sprintf("timezone=%s", s.config.Location), audit.System)
	return nil
}

// Stop halts the timers and the runner. Stopping a stopped scheduler is a
// no-op. A job mid-run finishes; only new triggers are refused.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		log.Println("scheduler: not running, stop ignored")
		return
	}

	cronCtx := s.cron.Stop()
	s.cancel()
	<-s.done
	<-cronCtx.Done()

	s.cron = nil
	s.cancel = nil
	s.done = nil
	s.running = false

	log.Println("scheduler: stopped")
	s.audit.Log(ctx, "scheduler_stopped", "", audit.System)
}

// Status reports whether the runtime is running and which timers are armed.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return Status{Running: false, ActiveTimerNames: []string{}}
	}
	return Status{
		Running:          true,
		ActiveTimerNames: []string{string(domain.JobCleanup), string(domain.JobRepeatingEvents)},
	}
}

// TriggerCleanup enqueues an out-of-schedule cleanup run.
func (s *Scheduler) TriggerCleanup(ctx context.Context, source domain.TriggerSource) error {
	return s.emit(ctx, domain.JobCleanup, source)
}

// TriggerRepeatingEvents enqueues an out-of-schedule materializer run.
func (s *Scheduler) TriggerRepeatingEvents(ctx context.Context, source domain.TriggerSource) error {
	return s.emit(ctx, domain.JobRepeatingEvents, source)
}

func (s *Scheduler) emit(ctx context.Context, job domain.JobName, source domain.TriggerSource) error {
	req := domain.TriggerRequest{Job: job, Source: source, RequestedAt: s.clock()}
	if err := s.bus.Emit(ctx, req); err != nil {
		return fmt.Errorf("enqueue %s trigger: %w", job, err)
	}
	log.Printf("scheduler: queued %s trigger (source=%s)", job, source)
	return nil
}

// runLoop is the single consumer of the trigger bus.
func (s *Scheduler) runLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-s.bus.Channel():
			s.execute(ctx, req)
		}
	}
}

// execute runs one job, skipping it if an instance is already in flight.
// Both the cron timers and the runner funnel through here, so the per-job
// lock is what keeps a daily run and a manual trigger from overlapping.
func (s *Scheduler) execute(ctx context.Context, req domain.TriggerRequest) {
	runner, ok := s.jobs[req.Job]
	if !ok {
		log.Printf("scheduler: unknown job %q ignored", req.Job)
		return
	}

	lock := s.locks[req.Job]
	if !lock.TryLock() {
		log.Printf("scheduler: %s already running, trigger skipped (source=%s)", req.Job, req.Source)
		s.audit.Log(ctx, "trigger_skipped_overlap",
			fmt.Sprintf("job=%s source=%s", req.Job, req.Source), audit.System)
		return
	}
	defer lock.Unlock()

	start := s.clock()
	if err := runner.Run(ctx, req.Source); err != nil {
		log.Printf("scheduler: %s failed after %s: %v", req.Job, time.Since(start).Round(time.Millisecond), err)
		return
	}
	log.Printf("scheduler: %s completed in %s (source=%s)", req.Job, time.Since(start).Round(time.Millisecond), req.Source)
}
