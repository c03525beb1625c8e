package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pagesched/pagesched/internal/audit"
	"github.com/pagesched/pagesched/internal/domain"
	"github.com/pagesched/pagesched/internal/trigger"
)

// mockJob records runs and can be made to block until released.
type mockJob struct {
	mu      sync.Mutex
	runs    int
	sources []domain.TriggerSource

	block   chan struct{} // when non-nil, Run waits on it
	started chan struct{} // when non-nil, Run signals entry
}

func (j *mockJob) Run(ctx context.Context, source domain.TriggerSource) error {
	j.mu.Lock()
	j.runs++
	j.sources = append(j.sources, source)
	block, started := j.block, j.started
	j.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if block != nil {
		<-block
	}
	return nil
}

func (j *mockJob) runCount() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.runs
}

func newTestScheduler(t *testing.T, cleanup, repeating JobRunner) (*Scheduler, *trigger.Bus) {
	t.Helper()
	loc, err := time.LoadLocation("Europe/London")
	if err != nil {
		t.Fatalf("load timezone: %v", err)
	}
	bus := trigger.NewBus(16)
	sched, err := New(Config{
		Location:      loc,
		CleanupTime:   "03:00",
		RepeatingTime: "03:10",
	}, bus, cleanup, repeating, audit.NewLogSink())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return sched, bus
}

func TestCronSpec(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "03:00", want: "0 3 * * *"},
		{in: "03:10", want: "10 3 * * *"},
		{in: "23:59", want: "59 23 * * *"},
		{in: "00:00", want: "0 0 * * *"},
		{in: "24:00", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "noon", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := cronSpec(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("cronSpec(%q) = %q, want error", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("cronSpec(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("cronSpec(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestScheduler_StartStopIdempotent(t *testing.T) {
	sched, _ := newTestScheduler(t, &mockJob{}, &mockJob{})
	ctx := context.Background()

	if st := sched.Status(); st.Running {
		t.Fatal("new scheduler reports running")
	}

	if err := sched.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := sched.Start(ctx); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	st := sched.Status()
	if !st.Running {
		t.Error("Status.Running = false after Start")
	}
	if len(st.ActiveTimerNames) != 2 ||
		st.ActiveTimerNames[0] != "cleanup" || st.ActiveTimerNames[1] != "repeating-events" {
		t.Errorf("ActiveTimerNames = %v", st.ActiveTimerNames)
	}

	sched.Stop(ctx)
	sched.Stop(ctx) // no-op

	st = sched.Status()
	if st.Running || len(st.ActiveTimerNames) != 0 {
		t.Errorf("status after stop = %+v", st)
	}
}

func TestScheduler_TriggerRunsJob(t *testing.T) {
	cleanup := &mockJob{}
	repeating := &mockJob{}
	sched, _ := newTestScheduler(t, cleanup, repeating)
	ctx := context.Background()

	if err := sched.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sched.Stop(ctx)

	if err := sched.TriggerCleanup(ctx, domain.TriggerSourceManual); err != nil {
		t.Fatalf("TriggerCleanup: %v", err)
	}
	if err := sched.TriggerRepeatingEvents(ctx, domain.TriggerSourceWebhook); err != nil {
		t.Fatalf("TriggerRepeatingEvents: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for cleanup.runCount() < 1 || repeating.runCount() < 1 {
		select {
		case <-deadline:
			t.Fatalf("jobs not run: cleanup=%d repeating=%d", cleanup.runCount(), repeating.runCount())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cleanup.mu.Lock()
	defer cleanup.mu.Unlock()
	if cleanup.sources[0] != domain.TriggerSourceManual {
		t.Errorf("cleanup source = %v, want manual", cleanup.sources[0])
	}
}

func TestScheduler_OverlappingTriggerSkipped(t *testing.T) {
	cleanup := &mockJob{
		block:   make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	sched, _ := newTestScheduler(t, cleanup, &mockJob{})
	ctx := context.Background()

	if err := sched.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := sched.TriggerCleanup(ctx, domain.TriggerSourceManual); err != nil {
		t.Fatalf("TriggerCleanup: %v", err)
	}

	// Wait until the first run holds the job lock.
	select {
	case <-cleanup.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first run never started")
	}

	// A concurrent execute for the same job must be skipped, not queued.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.execute(ctx, domain.TriggerRequest{
			Job:    domain.JobCleanup,
			Source: domain.TriggerSourceSchedule,
		})
	}()
	wg.Wait()

	if got := cleanup.runCount(); got != 1 {
		t.Errorf("run count during overlap = %d, want 1", got)
	}

	close(cleanup.block)
	sched.Stop(ctx)

	if got := cleanup.runCount(); got != 1 {
		t.Errorf("run count after stop = %d, want 1 (skipped trigger must not replay)", got)
	}
}

func TestScheduler_StopDrainsRunner(t *testing.T) {
	var runs atomic.Int64
	job := &mockJob{}
	sched, bus := newTestScheduler(t, job, &mockJob{})
	ctx := context.Background()

	if err := sched.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	sched.Stop(ctx)

	// The runner is gone; emits still succeed (buffered) but nothing runs.
	if err := bus.Emit(ctx, domain.TriggerRequest{Job: domain.JobCleanup, Source: domain.TriggerSourceManual}); err != nil {
		t.Fatalf("Emit after stop: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	runs.Store(int64(job.runCount()))
	if runs.Load() != 0 {
		t.Errorf("job ran %d times after Stop", runs.Load())
	}
}

func TestScheduler_InvalidTimes(t *testing.T) {
	loc := time.UTC
	bus := trigger.NewBus(1)
	_, err := New(Config{Location: loc, CleanupTime: "25:00", RepeatingTime: "03:10"},
		bus, &mockJob{}, &mockJob{}, audit.NewLogSink())
	if err == nil {
		t.Fatal("New accepted an out-of-range cleanup time")
	}

	_, err = New(Config{CleanupTime: "03:00", RepeatingTime: "03:10"},
		bus, &mockJob{}, &mockJob{}, audit.NewLogSink())
	if err == nil {
		t.Fatal("New accepted a nil location")
	}
}
