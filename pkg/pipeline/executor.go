// Package pipeline implements the Pipeline Executor (C5): the five-stage
// run that lists, filters, enriches, probes, and re-lists a tenant's
// containers and appointments against the upstream.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harvestpipe/engine/pkg/artifact"
	"github.com/harvestpipe/engine/pkg/job"
	"github.com/harvestpipe/engine/pkg/lifecycle"
	"github.com/harvestpipe/engine/pkg/tenant"
	"github.com/harvestpipe/engine/pkg/upstream"
)

// defaultTrucking is the hard-coded trucking company carried on every probe
// (see DESIGN.md's Open Question decision on trucking company configurability).
const defaultTrucking = "Harborline Drayage"

// ErrSkippedAlreadyInProgress is returned by Run when the tenant already has
// another job in_progress. The caller (Scheduler/Gateway) treats this as a
// coalesced tick, not a failure worth alarming on.
var ErrSkippedAlreadyInProgress = errors.New("skipped: tenant already has an in-progress job")

// Config carries the stage-4 checkpoint cadence knob.
type Config struct {
	CheckpointEvery int
}

// Executor runs the five-stage pipeline for one job at a time. It is safe
// for concurrent use across jobs for different tenants; within a tenant,
// Run enforces at-most-one-in-progress itself through JobStore.SetInProgress,
// which rejects a second promotion.
type Executor struct {
	upstream  UpstreamClient
	sessions  SessionManager
	artifacts *artifact.Store
	jobs      JobStore
	cfg       Config
	publisher lifecycle.Publisher
}

// NewExecutor wires an Executor from its collaborators. The lifecycle
// publisher defaults to a no-op; call WithPublisher to wire redis.
func NewExecutor(upstreamClient UpstreamClient, sessions SessionManager, artifacts *artifact.Store, jobs JobStore, cfg Config) *Executor {
	if cfg.CheckpointEvery <= 0 {
		cfg.CheckpointEvery = 5
	}
	return &Executor{upstream: upstreamClient, sessions: sessions, artifacts: artifacts, jobs: jobs, cfg: cfg, publisher: lifecycle.Noop{}}
}

// WithPublisher sets the lifecycle event publisher and returns e for
// chaining at construction time. A nil p leaves the existing publisher
// (the Noop default) in place.
func (e *Executor) WithPublisher(p lifecycle.Publisher) *Executor {
	if p != nil {
		e.publisher = p
	}
	return e
}

// runState tracks the mutable bookkeeping threaded through a single run.
type runState struct {
	anySuccess bool
	stats      job.SummaryStats
	started    time.Time
}

// Run executes the five stages for j against t, promoting the job to
// in_progress and finishing it as completed or failed. The caller (gateway
// or scheduler) is responsible for having created j in pending status.
func (e *Executor) Run(ctx context.Context, t *tenant.Tenant, j *job.Job) error {
	if err := e.jobs.SetInProgress(ctx, j.QueryID); err != nil {
		if errors.Is(err, job.ErrAlreadyInProgress) {
			msg := ErrSkippedAlreadyInProgress.Error()
			if ferr := e.jobs.Finish(ctx, j.QueryID, job.StatusFailed, nil, &msg); ferr != nil {
				return fmt.Errorf("finishing skipped job: %w", ferr)
			}
			return ErrSkippedAlreadyInProgress
		}
		return fmt.Errorf("promoting job to in_progress: %w", err)
	}
	e.publisher.Publish(ctx, lifecycle.Event{Type: lifecycle.EventStarted, TenantID: t.ID, QueryID: j.QueryID})

	if err := e.artifacts.EnsureJobDirs(t.ID, j.QueryID); err != nil {
		return e.fail(ctx, j, fmt.Errorf("preparing job directories: %w", err))
	}

	st := &runState{started: time.Now()}

	if cancelled, err := e.checkCancelled(ctx, t.ID, j.Ordinal); err != nil {
		return e.fail(ctx, j, err)
	} else if cancelled {
		return e.cancel(ctx, j)
	}

	if err := e.stage1ListItems(ctx, t, j, st); err != nil {
		return e.fail(ctx, j, err)
	}

	table, err := e.stage2Filter(t, j)
	if err != nil {
		return e.fail(ctx, j, err)
	}
	st.stats.TotalsList = table.listRowCount
	st.stats.TotalsFiltered = len(table.filtered.Rows)
	st.stats.TotalsImport, st.stats.TotalsExport = countByTradeType(table.filtered)

	bookingByItem, pregatePassedByItem, err := e.stage3BulkEnrich(ctx, t, j, st, table.filtered)
	if err != nil {
		return e.fail(ctx, j, err)
	}

	if cancelled, err := e.checkCancelled(ctx, t.ID, j.Ordinal); err != nil {
		return e.fail(ctx, j, err)
	} else if cancelled {
		return e.cancel(ctx, j)
	}

	if err := e.stage4ProbeItems(ctx, t, j, st, table.filtered, bookingByItem, pregatePassedByItem); err != nil {
		if err == errCancelledDuringStage4 {
			return e.cancel(ctx, j)
		}
		return e.fail(ctx, j, err)
	}

	appointmentCount, err := e.stage5ListAppointments(ctx, t, j, st)
	if err != nil {
		return e.fail(ctx, j, err)
	}
	st.stats.TotalAppointments = appointmentCount

	st.stats.DurationSeconds = time.Since(st.started).Seconds()
	if err := e.jobs.Finish(ctx, j.QueryID, job.StatusCompleted, &st.stats, nil); err != nil {
		return fmt.Errorf("finishing completed job: %w", err)
	}
	e.publisher.Publish(ctx, lifecycle.Event{Type: lifecycle.EventCompleted, TenantID: t.ID, QueryID: j.QueryID})
	return nil
}

func (e *Executor) fail(ctx context.Context, j *job.Job, cause error) error {
	msg := cause.Error()
	if ferr := e.jobs.Finish(ctx, j.QueryID, job.StatusFailed, nil, &msg); ferr != nil {
		return fmt.Errorf("finishing failed job (original cause: %v): %w", cause, ferr)
	}
	e.publisher.Publish(ctx, lifecycle.Event{Type: lifecycle.EventFailed, TenantID: j.TenantID, QueryID: j.QueryID})
	return cause
}

func (e *Executor) cancel(ctx context.Context, j *job.Job) error {
	msg := "cancelled by newer job"
	if err := e.jobs.Finish(ctx, j.QueryID, job.StatusFailed, nil, &msg); err != nil {
		return fmt.Errorf("finishing cancelled job: %w", err)
	}
	e.publisher.Publish(ctx, lifecycle.Event{Type: lifecycle.EventCancelled, TenantID: j.TenantID, QueryID: j.QueryID})
	return nil
}

func (e *Executor) checkCancelled(ctx context.Context, tenantID, ordinal int64) (bool, error) {
	newer, err := e.jobs.FindNewer(ctx, tenantID, ordinal)
	if err != nil {
		return false, fmt.Errorf("checking for newer job: %w", err)
	}
	return newer, nil
}

// callList runs a list_items/list_appointments-shaped call under the
// stage's recovery policy: SessionInvalid recovers and retries once;
// Transient re-ensures and retries once with a fresh session lookup. Total
// attempts: 2.
func (e *Executor) callList(ctx context.Context, t *tenant.Tenant, ordinal int64, st *runState, call func(session string, afterSuccess bool) (string, error)) (string, error) {
	session, err := e.sessions.Ensure(ctx, t, ordinal)
	if err != nil {
		return "", fmt.Errorf("ensuring session: %w", err)
	}

	result, cerr := call(session, st.anySuccess)
	if cerr == nil {
		st.anySuccess = true
		return result, nil
	}

	switch {
	case upstream.IsClass(cerr, upstream.SessionInvalid):
		newSession, rerr := e.sessions.Recover(ctx, t, ordinal)
		if rerr != nil {
			return "", fmt.Errorf("recovering session: %w", rerr)
		}
		result2, cerr2 := call(newSession, st.anySuccess)
		if cerr2 != nil {
			return "", fmt.Errorf("retrying after recovery: %w", cerr2)
		}
		st.anySuccess = true
		return result2, nil
	case upstream.IsClass(cerr, upstream.Transient):
		freshSession, serr := e.sessions.Ensure(ctx, t, ordinal)
		if serr != nil {
			return "", fmt.Errorf("re-ensuring session after transient error: %w", serr)
		}
		result2, cerr2 := call(freshSession, st.anySuccess)
		if cerr2 != nil {
			return "", fmt.Errorf("retrying after transient error: %w", cerr2)
		}
		st.anySuccess = true
		return result2, nil
	default:
		return "", fmt.Errorf("list call failed: %w", cerr)
	}
}

// callWithRecovery is callList's generic counterpart, used by stage 3's
// bulk-info call and stage 4's per-item probe: SessionInvalid recovers and
// retries once, Transient re-ensures and retries once. Total attempts: 2.
func callWithRecovery[T any](ctx context.Context, e *Executor, t *tenant.Tenant, ordinal int64, st *runState, call func(session string, afterSuccess bool) (T, error)) (T, error) {
	var zero T

	session, err := e.sessions.Ensure(ctx, t, ordinal)
	if err != nil {
		return zero, fmt.Errorf("ensuring session: %w", err)
	}

	result, cerr := call(session, st.anySuccess)
	if cerr == nil {
		st.anySuccess = true
		return result, nil
	}

	switch {
	case upstream.IsClass(cerr, upstream.SessionInvalid):
		newSession, rerr := e.sessions.Recover(ctx, t, ordinal)
		if rerr != nil {
			return zero, fmt.Errorf("recovering session: %w", rerr)
		}
		result2, cerr2 := call(newSession, st.anySuccess)
		if cerr2 != nil {
			return zero, fmt.Errorf("retrying after recovery: %w", cerr2)
		}
		st.anySuccess = true
		return result2, nil
	case upstream.IsClass(cerr, upstream.Transient):
		freshSession, serr := e.sessions.Ensure(ctx, t, ordinal)
		if serr != nil {
			return zero, fmt.Errorf("re-ensuring session after transient error: %w", serr)
		}
		result2, cerr2 := call(freshSession, st.anySuccess)
		if cerr2 != nil {
			return zero, fmt.Errorf("retrying after transient error: %w", cerr2)
		}
		st.anySuccess = true
		return result2, nil
	default:
		return zero, fmt.Errorf("call failed: %w", cerr)
	}
}
