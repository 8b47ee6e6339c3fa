package pipeline

import (
	"context"

	"github.com/harvestpipe/engine/pkg/job"
	"github.com/harvestpipe/engine/pkg/tenant"
	"github.com/harvestpipe/engine/pkg/upstream"
)

// UpstreamClient is the subset of upstream.Client the executor calls
// directly. Declared here so tests can drive the pipeline with a fake.
type UpstreamClient interface {
	ListItems(ctx context.Context, session string, afterSuccess bool) (string, error)
	ListAppointments(ctx context.Context, session string, afterSuccess bool) (string, error)
	GetBulkInfo(ctx context.Context, session string, importIDs, exportIDs []string) ([]upstream.BulkInfoRecord, error)
	ProbeAppointments(ctx context.Context, session string, params upstream.ProbeParams, afterSuccess bool) (*upstream.ProbeResult, error)
	Download(ctx context.Context, url string) (*upstream.Downloaded, error)
}

// SessionManager is the subset of session.Manager the executor calls.
type SessionManager interface {
	Ensure(ctx context.Context, t *tenant.Tenant, jobOrdinal int64) (string, error)
	Recover(ctx context.Context, t *tenant.Tenant, jobOrdinal int64) (string, error)
}

// JobStore is the subset of job.Store the executor uses to drive a run's
// lifecycle and check for cancellation.
type JobStore interface {
	SetInProgress(ctx context.Context, queryID string) error
	Finish(ctx context.Context, queryID string, status job.Status, stats *job.SummaryStats, errMsg *string) error
	FindNewer(ctx context.Context, tenantID, ordinal int64) (bool, error)
}
