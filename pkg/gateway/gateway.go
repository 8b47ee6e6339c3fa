// Package gateway implements the Trigger Gateway (C7): accepts a manual
// trigger for a tenant, creates the job record, and spawns the pipeline run
// in the background, returning the job immediately.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/harvestpipe/engine/pkg/job"
	"github.com/harvestpipe/engine/pkg/pipeline"
	"github.com/harvestpipe/engine/pkg/tenant"
)

// JobStore is the subset of job.Store the gateway needs.
type JobStore interface {
	Create(ctx context.Context, tenantID int64, platform string) (*job.Job, error)
}

// Executor runs a created job to completion. Satisfied by *pipeline.Executor.
type Executor interface {
	Run(ctx context.Context, t *tenant.Tenant, j *job.Job) error
}

// Gateway triggers pipeline runs on demand.
type Gateway struct {
	jobs     JobStore
	executor Executor
	logger   *slog.Logger
}

// NewGateway creates a Trigger Gateway.
func NewGateway(jobs JobStore, executor Executor, logger *slog.Logger) *Gateway {
	return &Gateway{jobs: jobs, executor: executor, logger: logger}
}

// Trigger creates a pending job for t on platform and spawns its run in a
// background goroutine using runCtx (detached from any request context, so
// the run outlives the HTTP request that triggered it). It returns the
// created job immediately without waiting for the run to finish.
func (g *Gateway) Trigger(ctx context.Context, runCtx context.Context, t *tenant.Tenant, platform string) (*job.Job, error) {
	j, err := g.jobs.Create(ctx, t.ID, platform)
	if err != nil {
		return nil, fmt.Errorf("creating job: %w", err)
	}

	go func() {
		if err := g.executor.Run(runCtx, t, j); err != nil {
			if errors.Is(err, pipeline.ErrSkippedAlreadyInProgress) {
				g.logger.Info("job skipped, tenant already has one in progress",
					"tenant_id", t.ID, "query_id", j.QueryID)
				return
			}
			g.logger.Error("pipeline run failed",
				"tenant_id", t.ID, "query_id", j.QueryID, "error", err)
		}
	}()

	return j, nil
}
