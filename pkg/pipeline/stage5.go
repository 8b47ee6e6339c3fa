package pipeline

import (
	"context"
	"fmt"

	"github.com/harvestpipe/engine/pkg/job"
	"github.com/harvestpipe/engine/pkg/tenant"
)

// stage5ListAppointments is symmetric to stage 1 for the appointments
// listing: same recovery policy, writes all_appointments.xlsx and updates
// the tenant's master mirror. Returns the row count for summary_stats.
func (e *Executor) stage5ListAppointments(ctx context.Context, t *tenant.Tenant, j *job.Job, st *runState) (int, error) {
	downloadURL, err := e.callList(ctx, t, j.Ordinal, st, func(session string, afterSuccess bool) (string, error) {
		return e.upstream.ListAppointments(ctx, session, afterSuccess)
	})
	if err != nil {
		return 0, fmt.Errorf("stage 5 list_appointments: %w", err)
	}

	downloaded, derr := e.upstream.Download(ctx, downloadURL)
	if derr != nil {
		return 0, fmt.Errorf("stage 5 downloading listing: %w", derr)
	}

	path := e.artifacts.AllAppointmentsPath(t.ID, j.QueryID)
	if err := e.artifacts.WriteSpreadsheetBytes(path, downloaded.Bytes); err != nil {
		return 0, fmt.Errorf("stage 5 writing all_appointments.xlsx: %w", err)
	}
	if err := e.artifacts.MirrorAppointments(t.ID, j.QueryID); err != nil {
		return 0, fmt.Errorf("stage 5 updating master mirror: %w", err)
	}

	table, err := e.artifacts.ReadSpreadsheet(path)
	if err != nil {
		return 0, fmt.Errorf("stage 5 re-reading appointments for count: %w", err)
	}
	return len(table.Rows), nil
}
