package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/harvestpipe/engine/internal/db"
)

// ErrAlreadyInProgress is returned by SetInProgress when another job for the
// same tenant already holds status=in_progress — the at-most-one-in-flight
// invariant (spec.md §3).
var ErrAlreadyInProgress = db.ErrAlreadyInProgress

// Store is the Job Store (C4): durable job records, status transitions, and
// the find_newer lookup that drives cancellation.
type Store struct {
	q          *db.Queries
	clock      func() time.Time
	folderPath func(tenantID int64, queryID string) string
}

// NewStore creates a job Store backed by the given database executor.
// folderPath derives a job's on-disk directory from its tenant and query_id
// (satisfied by artifact.Store.JobFolder in production) — the Job Store
// never touches the filesystem itself, but folder_path is a NOT NULL column
// that must be known at insert time.
func NewStore(dbtx db.DBTX, folderPath func(tenantID int64, queryID string) string) *Store {
	return &Store{q: db.New(dbtx), clock: time.Now, folderPath: folderPath}
}

// Create inserts a new job in pending status. The query_id's embedded
// ordinal is the current unix-second clock reading; the Gateway/Scheduler
// never construct query_ids themselves.
func (s *Store) Create(ctx context.Context, tenantID int64, platform string) (*Job, error) {
	ordinal := s.clock().Unix()
	queryID := NewQueryID(tenantID, ordinal)
	folderPath := s.folderPath(tenantID, queryID)

	row, err := s.q.CreateJob(ctx, queryID, tenantID, platform, ordinal, folderPath)
	if err != nil {
		return nil, fmt.Errorf("creating job: %w", err)
	}
	return rowToJob(row)
}

// SetInProgress promotes a pending job to in_progress. Returns
// ErrAlreadyInProgress if another job for the tenant is already in flight.
func (s *Store) SetInProgress(ctx context.Context, queryID string) error {
	if err := s.q.SetInProgress(ctx, queryID); err != nil {
		if errors.Is(err, db.ErrAlreadyInProgress) {
			return ErrAlreadyInProgress
		}
		return fmt.Errorf("setting job in_progress: %w", err)
	}
	return nil
}

// Finish transitions a job to a terminal state with its final stats and/or
// error message. It is the only place a terminal error_message is written.
func (s *Store) Finish(ctx context.Context, queryID string, status Status, stats *SummaryStats, errMsg *string) error {
	if status != StatusCompleted && status != StatusFailed {
		return fmt.Errorf("finish: status %q is not terminal", status)
	}
	raw, err := MarshalSummaryStats(stats)
	if err != nil {
		return err
	}
	if err := s.q.Finish(ctx, queryID, string(status), raw, errMsg); err != nil {
		return fmt.Errorf("finishing job: %w", err)
	}
	return nil
}

// Get fetches a job by query_id.
func (s *Store) Get(ctx context.Context, queryID string) (*Job, error) {
	row, err := s.q.GetJob(ctx, queryID)
	if err != nil {
		return nil, fmt.Errorf("getting job %s: %w", queryID, err)
	}
	return rowToJob(row)
}

// Filter narrows List results to jobs matching a status, or all statuses
// when Status is empty.
type Filter struct {
	Status Status
}

// List returns a tenant's jobs newest-first, paginated by offset/limit.
func (s *Store) List(ctx context.Context, tenantID int64, filter Filter, limit, offset int) ([]*Job, error) {
	rows, err := s.q.ListJobs(ctx, tenantID, db.ListJobsFilter{Status: string(filter.Status)}, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	out := make([]*Job, 0, len(rows))
	for _, r := range rows {
		j, err := rowToJob(r)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, nil
}

// Count returns the total number of a tenant's jobs matching filter,
// ignoring pagination — used to compute total_pages for job listing.
func (s *Store) Count(ctx context.Context, tenantID int64, filter Filter) (int, error) {
	n, err := s.q.CountJobs(ctx, tenantID, db.ListJobsFilter{Status: string(filter.Status)})
	if err != nil {
		return 0, fmt.Errorf("counting jobs: %w", err)
	}
	return n, nil
}

// HasInProgress reports whether the tenant currently has a job in the
// in_progress state. The Scheduler consults this before creating a new job,
// so a missed tick never enqueues a duplicate while a catch-up run is still
// in flight.
func (s *Store) HasInProgress(ctx context.Context, tenantID int64) (bool, error) {
	has, err := s.q.HasInProgress(ctx, tenantID)
	if err != nil {
		return false, fmt.Errorf("checking for in-progress job: %w", err)
	}
	return has, nil
}

// FindNewer reports whether any job for the tenant has a strictly greater
// ordinal than the given one. This is the cancellation test consulted
// between stage-4 items and during the session manager's cancelable wait.
func (s *Store) FindNewer(ctx context.Context, tenantID, ordinal int64) (bool, error) {
	found, err := s.q.FindNewer(ctx, tenantID, ordinal)
	if err != nil {
		return false, fmt.Errorf("finding newer job: %w", err)
	}
	return found, nil
}

func rowToJob(r db.JobRow) (*Job, error) {
	j := &Job{
		QueryID:      r.QueryID,
		TenantID:     r.TenantID,
		Platform:     r.Platform,
		Ordinal:      r.Ordinal,
		Status:       Status(r.Status),
		FolderPath:   r.FolderPath,
		StartedAt:    r.StartedAt,
		CompletedAt:  r.CompletedAt,
		ErrorMessage: r.ErrorMessage,
		CreatedAt:    r.CreatedAt,
	}
	if len(r.SummaryStats) > 0 {
		var stats SummaryStats
		if err := json.Unmarshal(r.SummaryStats, &stats); err != nil {
			return nil, fmt.Errorf("unmarshaling summary stats for %s: %w", r.QueryID, err)
		}
		j.SummaryStats = &stats
	}
	return j, nil
}
