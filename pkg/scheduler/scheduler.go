// Package scheduler implements the Scheduler (C6): a single process-wide
// registry of tenants with schedules enabled, ticked periodically, that
// enqueues a pipeline run per tenant when due and coalesces missed ticks.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/harvestpipe/engine/pkg/job"
	"github.com/harvestpipe/engine/pkg/lifecycle"
	"github.com/harvestpipe/engine/pkg/tenant"
)

// tickLockTTL bounds how long a won tick lock blocks a second replica from
// also enqueueing the same tenant's tick. It only needs to outlast the
// window in which two schedulers' clocks could both consider a tenant due,
// not the tenant's whole run.
const tickLockTTL = 30 * time.Second

// JobStore is the subset of job.Store the Scheduler needs.
type JobStore interface {
	HasInProgress(ctx context.Context, tenantID int64) (bool, error)
	Create(ctx context.Context, tenantID int64, platform string) (*job.Job, error)
}

// Executor runs a created job to completion. Satisfied by *pipeline.Executor.
type Executor interface {
	Run(ctx context.Context, t *tenant.Tenant, j *job.Job) error
}

// entry is one tenant's registration in the Scheduler's registry.
type entry struct {
	tenant  *tenant.Tenant
	paused  bool
	freq    time.Duration
	nextRun time.Time
}

// Scheduler ticks a registry of tenants and enqueues a pipeline run for each
// one whose schedule is due, skipping any tenant that already has a job
// in_progress. Missed ticks coalesce: a tenant's next-due time always
// advances by its frequency from "now", regardless of whether this tick
// actually enqueued a run, so a long-running job never produces a backlog
// of catch-up runs once it finishes.
type Scheduler struct {
	jobs     JobStore
	executor Executor
	logger   *slog.Logger
	tickLock lifecycle.TickLock

	mu      sync.Mutex
	entries map[int64]*entry
}

// New creates a Scheduler with an empty registry. The tick lock defaults to
// NoopTickLock; call WithTickLock to wire redis.
func New(jobs JobStore, executor Executor, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		jobs:     jobs,
		executor: executor,
		logger:   logger,
		tickLock: lifecycle.NoopTickLock{},
		entries:  make(map[int64]*entry),
	}
}

// WithTickLock sets the per-tenant tick lock and returns s for chaining at
// construction time. A nil lock leaves the existing lock (the Noop
// default) in place.
func (s *Scheduler) WithTickLock(lock lifecycle.TickLock) *Scheduler {
	if lock != nil {
		s.tickLock = lock
	}
	return s
}

// Register adds or replaces a tenant's schedule in the registry. A tenant
// with Schedule.Enabled false is registered but never ticks until resumed.
func (s *Scheduler) Register(t *tenant.Tenant, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	freq := time.Duration(t.Schedule.FrequencyMinutes) * time.Minute
	if freq <= 0 {
		freq = time.Hour
	}
	s.entries[t.ID] = &entry{
		tenant:  t,
		paused:  !t.Schedule.Enabled,
		freq:    freq,
		nextRun: now.Add(freq),
	}
}

// Unregister removes a tenant from the registry entirely.
func (s *Scheduler) Unregister(tenantID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, tenantID)
}

// Pause stops a tenant's schedule from ticking without losing its
// configured frequency.
func (s *Scheduler) Pause(tenantID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[tenantID]; ok {
		e.paused = true
	}
}

// Resume re-enables a paused tenant's schedule, due one frequency from now.
func (s *Scheduler) Resume(tenantID int64, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[tenantID]; ok {
		e.paused = false
		e.nextRun = now.Add(e.freq)
	}
}

// UpdateFrequency changes a tenant's tick interval, rescheduling its next
// run from now.
func (s *Scheduler) UpdateFrequency(tenantID int64, minutes int, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[tenantID]
	if !ok {
		return
	}
	freq := time.Duration(minutes) * time.Minute
	if freq <= 0 {
		freq = time.Hour
	}
	e.freq = freq
	e.nextRun = now.Add(freq)
}

// Run ticks the registry every quantum until ctx is cancelled, mirroring the
// shape of a periodic background worker loop: an immediate tick at start,
// then one every quantum.
func (s *Scheduler) Run(ctx context.Context, quantum time.Duration) {
	s.logger.Info("scheduler loop started", "quantum", quantum)
	ticker := time.NewTicker(quantum)
	defer ticker.Stop()

	s.Tick(ctx, time.Now())

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler loop stopped")
			return
		case now := <-ticker.C:
			s.Tick(ctx, now)
		}
	}
}

// Tick examines every registered tenant and enqueues a run for any tenant
// that is due, not paused, and has no job already in_progress. Each due
// tenant's nextRun always advances to now+freq, so a tick that finds a
// tenant still in_progress (a missed tick during a long-running job) is
// coalesced into the next check rather than queued up.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	due := s.dueTenants(now)
	for _, t := range due {
		s.maybeEnqueue(ctx, t)
	}
}

func (s *Scheduler) dueTenants(now time.Time) []*tenant.Tenant {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*tenant.Tenant
	for _, e := range s.entries {
		if e.paused || now.Before(e.nextRun) {
			continue
		}
		e.nextRun = now.Add(e.freq)
		due = append(due, e.tenant)
	}
	return due
}

func (s *Scheduler) maybeEnqueue(ctx context.Context, t *tenant.Tenant) {
	inProgress, err := s.jobs.HasInProgress(ctx, t.ID)
	if err != nil {
		s.logger.Error("checking in-progress status", "tenant_id", t.ID, "error", err)
		return
	}
	if inProgress {
		s.logger.Info("tick skipped, job already in progress", "tenant_id", t.ID)
		return
	}

	acquired, err := s.tickLock.AcquireTick(ctx, t.ID, tickLockTTL)
	if err != nil {
		s.logger.Error("acquiring tick lock", "tenant_id", t.ID, "error", err)
	} else if !acquired {
		s.logger.Info("tick skipped, another scheduler already claimed it", "tenant_id", t.ID)
		return
	}

	j, err := s.jobs.Create(ctx, t.ID, job.PlatformEmodal)
	if err != nil {
		s.logger.Error("creating scheduled job", "tenant_id", t.ID, "error", err)
		return
	}

	go func() {
		if err := s.executor.Run(ctx, t, j); err != nil {
			s.logger.Error("scheduled pipeline run failed",
				"tenant_id", t.ID, "query_id", j.QueryID, "error", err)
		}
	}()
}
