package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/harvestpipe/engine/pkg/job"
	"github.com/harvestpipe/engine/pkg/tenant"
)

type fakeJobStore struct {
	mu             sync.Mutex
	inProgress     bool
	createCalls    int
	createdOrdinal int64
}

func (f *fakeJobStore) HasInProgress(ctx context.Context, tenantID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inProgress, nil
}

func (f *fakeJobStore) Create(ctx context.Context, tenantID int64, platform string) (*job.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	f.createdOrdinal++
	return &job.Job{
		QueryID:  job.NewQueryID(tenantID, f.createdOrdinal),
		TenantID: tenantID,
		Platform: platform,
		Ordinal:  f.createdOrdinal,
		Status:   job.StatusPending,
	}, nil
}

type fakeExecutor struct{}

func (fakeExecutor) Run(ctx context.Context, t *tenant.Tenant, j *job.Job) error {
	return nil
}

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// #6: a tenant with a 1-minute frequency whose job takes 3 minutes should
// see exactly one enqueue for the long run, with the intervening missed
// ticks coalesced rather than queuing duplicates.
func TestSchedulerTickCoalescesMissedTicks(t *testing.T) {
	jobs := &fakeJobStore{}
	s := New(jobs, fakeExecutor{}, silentLogger())

	te := &tenant.Tenant{ID: 1, Schedule: tenant.Schedule{Enabled: true, FrequencyMinutes: 1}}
	base := time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)
	s.Register(te, base)

	// Tick 1 (t0+1m): no job in progress yet, enqueue the first run; the
	// fake then reports in_progress for the duration of its simulated
	// 3-minute stage 4.
	jobs.inProgress = false
	s.Tick(context.Background(), base.Add(1*time.Minute))
	if jobs.createCalls != 1 {
		t.Fatalf("after tick 1: createCalls = %d, want 1", jobs.createCalls)
	}
	jobs.inProgress = true

	// Ticks 2 and 3 land while the job is still in progress; they must not
	// enqueue a second job.
	s.Tick(context.Background(), base.Add(2*time.Minute))
	s.Tick(context.Background(), base.Add(3*time.Minute))
	if jobs.createCalls != 1 {
		t.Fatalf("after ticks 2-3: createCalls = %d, want 1 (coalesced)", jobs.createCalls)
	}

	// The job finishes; tick 4 observes no in_progress job and enqueues the
	// single catch-up run.
	jobs.inProgress = false
	s.Tick(context.Background(), base.Add(4*time.Minute))
	if jobs.createCalls != 2 {
		t.Fatalf("after tick 4: createCalls = %d, want 2", jobs.createCalls)
	}
}

func TestSchedulerPauseStopsTicking(t *testing.T) {
	jobs := &fakeJobStore{}
	s := New(jobs, fakeExecutor{}, silentLogger())

	te := &tenant.Tenant{ID: 2, Schedule: tenant.Schedule{Enabled: true, FrequencyMinutes: 1}}
	base := time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)
	s.Register(te, base)
	s.Pause(2)

	s.Tick(context.Background(), base.Add(5*time.Minute))
	if jobs.createCalls != 0 {
		t.Fatalf("createCalls = %d, want 0 while paused", jobs.createCalls)
	}

	s.Resume(2, base.Add(5*time.Minute))
	s.Tick(context.Background(), base.Add(6*time.Minute))
	if jobs.createCalls != 1 {
		t.Fatalf("createCalls = %d, want 1 after resume", jobs.createCalls)
	}
}

func TestSchedulerUpdateFrequencyReschedules(t *testing.T) {
	jobs := &fakeJobStore{}
	s := New(jobs, fakeExecutor{}, silentLogger())

	te := &tenant.Tenant{ID: 3, Schedule: tenant.Schedule{Enabled: true, FrequencyMinutes: 60}}
	base := time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)
	s.Register(te, base)

	// Not due yet under the original 60-minute frequency.
	s.Tick(context.Background(), base.Add(5*time.Minute))
	if jobs.createCalls != 0 {
		t.Fatalf("createCalls = %d, want 0 before frequency update", jobs.createCalls)
	}

	s.UpdateFrequency(3, 1, base.Add(5*time.Minute))
	s.Tick(context.Background(), base.Add(6*time.Minute))
	if jobs.createCalls != 1 {
		t.Fatalf("createCalls = %d, want 1 after frequency update makes it due", jobs.createCalls)
	}
}

func TestSchedulerUnregisterStopsTicking(t *testing.T) {
	jobs := &fakeJobStore{}
	s := New(jobs, fakeExecutor{}, silentLogger())

	te := &tenant.Tenant{ID: 4, Schedule: tenant.Schedule{Enabled: true, FrequencyMinutes: 1}}
	base := time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)
	s.Register(te, base)
	s.Unregister(4)

	s.Tick(context.Background(), base.Add(5*time.Minute))
	if jobs.createCalls != 0 {
		t.Fatalf("createCalls = %d, want 0 after unregister", jobs.createCalls)
	}
}
