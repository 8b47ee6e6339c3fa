package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ErrAlreadyInProgress is returned by SetInProgress when another job for the
// same tenant already holds status=in_progress.
var ErrAlreadyInProgress = errors.New("another job for this tenant is already in_progress")

// JobRow is a row from the jobs table.
type JobRow struct {
	QueryID      string
	TenantID     int64
	Platform     string
	Ordinal      int64
	Status       string
	FolderPath   string
	StartedAt    *time.Time
	CompletedAt  *time.Time
	ErrorMessage *string
	SummaryStats json.RawMessage
	CreatedAt    time.Time
}

const jobColumns = `query_id, tenant_id, platform, ordinal, status, folder_path,
	started_at, completed_at, error_message, summary_stats, created_at`

func scanJob(row interface {
	Scan(dest ...any) error
}) (JobRow, error) {
	var j JobRow
	err := row.Scan(&j.QueryID, &j.TenantID, &j.Platform, &j.Ordinal, &j.Status,
		&j.FolderPath, &j.StartedAt, &j.CompletedAt, &j.ErrorMessage,
		&j.SummaryStats, &j.CreatedAt)
	return j, err
}

// CreateJob inserts a new job row with status=pending.
func (q *Queries) CreateJob(ctx context.Context, queryID string, tenantID int64, platform string, ordinal int64, folderPath string) (JobRow, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO jobs (query_id, tenant_id, platform, ordinal, status, folder_path)
		VALUES ($1, $2, $3, $4, 'pending', $5)
		RETURNING `+jobColumns,
		queryID, tenantID, platform, ordinal, folderPath)
	j, err := scanJob(row)
	if err != nil {
		return JobRow{}, fmt.Errorf("inserting job: %w", err)
	}
	return j, nil
}

// SetInProgress promotes a pending job to in_progress, enforcing that no
// other job for the same tenant already holds that status. Returns
// ErrAlreadyInProgress if the promotion is rejected.
func (q *Queries) SetInProgress(ctx context.Context, queryID string) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE jobs
		SET status = 'in_progress', started_at = now()
		WHERE query_id = $1
		  AND NOT EXISTS (
			SELECT 1 FROM jobs j2
			WHERE j2.tenant_id = jobs.tenant_id
			  AND j2.status = 'in_progress'
			  AND j2.query_id <> jobs.query_id
		  )`,
		queryID)
	if err != nil {
		return fmt.Errorf("promoting job to in_progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyInProgress
	}
	return nil
}

// Finish transitions a job to a terminal state (completed or failed).
func (q *Queries) Finish(ctx context.Context, queryID, status string, summaryStats json.RawMessage, errorMessage *string) error {
	_, err := q.db.Exec(ctx, `
		UPDATE jobs
		SET status = $2, completed_at = now(), summary_stats = $3, error_message = $4
		WHERE query_id = $1`,
		queryID, status, summaryStats, errorMessage)
	if err != nil {
		return fmt.Errorf("finishing job: %w", err)
	}
	return nil
}

// GetJob fetches a job by query_id.
func (q *Queries) GetJob(ctx context.Context, queryID string) (JobRow, error) {
	row := q.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE query_id = $1`, queryID)
	j, err := scanJob(row)
	if err != nil {
		return JobRow{}, fmt.Errorf("getting job: %w", err)
	}
	return j, nil
}

// ListJobsFilter narrows ListJobs results.
type ListJobsFilter struct {
	Status string // empty means no filter
}

// ListJobs returns a tenant's jobs newest-first, paginated by offset/limit.
func (q *Queries) ListJobs(ctx context.Context, tenantID int64, filter ListJobsFilter, limit, offset int) ([]JobRow, error) {
	var r pgx.Rows
	var err error

	if filter.Status != "" {
		r, err = q.db.Query(ctx, `
			SELECT `+jobColumns+` FROM jobs
			WHERE tenant_id = $1 AND status = $2
			ORDER BY ordinal DESC
			LIMIT $3 OFFSET $4`,
			tenantID, filter.Status, limit, offset)
	} else {
		r, err = q.db.Query(ctx, `
			SELECT `+jobColumns+` FROM jobs
			WHERE tenant_id = $1
			ORDER BY ordinal DESC
			LIMIT $2 OFFSET $3`,
			tenantID, limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	defer r.Close()

	var result []JobRow
	for r.Next() {
		j, serr := scanJob(r)
		if serr != nil {
			return nil, fmt.Errorf("scanning job row: %w", serr)
		}
		result = append(result, j)
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	return result, nil
}

// CountJobs returns the total number of a tenant's jobs matching filter,
// ignoring limit/offset — used to compute total_pages for job listing.
func (q *Queries) CountJobs(ctx context.Context, tenantID int64, filter ListJobsFilter) (int, error) {
	var count int
	var err error
	if filter.Status != "" {
		err = q.db.QueryRow(ctx,
			`SELECT count(*) FROM jobs WHERE tenant_id = $1 AND status = $2`,
			tenantID, filter.Status).Scan(&count)
	} else {
		err = q.db.QueryRow(ctx,
			`SELECT count(*) FROM jobs WHERE tenant_id = $1`, tenantID).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("counting jobs: %w", err)
	}
	return count, nil
}

// HasInProgress reports whether the tenant currently has a job in the
// in_progress state.
func (q *Queries) HasInProgress(ctx context.Context, tenantID int64) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM jobs WHERE tenant_id = $1 AND status = 'in_progress'
		)`, tenantID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking for in-progress job: %w", err)
	}
	return exists, nil
}

// FindNewer reports whether any job for the tenant has a strictly greater
// ordinal than the given one. Used by the cancellation rule: a job in
// recovery-wait or between stage-4 items checks this to detect that a
// newer trigger has superseded it.
func (q *Queries) FindNewer(ctx context.Context, tenantID, ordinal int64) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM jobs WHERE tenant_id = $1 AND ordinal > $2
		)`, tenantID, ordinal).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking for newer job: %w", err)
	}
	return exists, nil
}
