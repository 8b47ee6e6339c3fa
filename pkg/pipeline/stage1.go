package pipeline

import (
	"context"
	"fmt"

	"github.com/harvestpipe/engine/pkg/job"
	"github.com/harvestpipe/engine/pkg/tenant"
)

// stage1ListItems lists the tenant's containers, downloads the resulting
// spreadsheet into the job's all_containers.xlsx, and overwrites the
// tenant's master mirror.
func (e *Executor) stage1ListItems(ctx context.Context, t *tenant.Tenant, j *job.Job, st *runState) error {
	downloadURL, err := e.callList(ctx, t, j.Ordinal, st, func(session string, afterSuccess bool) (string, error) {
		return e.upstream.ListItems(ctx, session, afterSuccess)
	})
	if err != nil {
		return fmt.Errorf("stage 1 list_items: %w", err)
	}

	downloaded, derr := e.upstream.Download(ctx, downloadURL)
	if derr != nil {
		return fmt.Errorf("stage 1 downloading listing: %w", derr)
	}

	path := e.artifacts.AllContainersPath(t.ID, j.QueryID)
	if err := e.artifacts.WriteSpreadsheetBytes(path, downloaded.Bytes); err != nil {
		return fmt.Errorf("stage 1 writing all_containers.xlsx: %w", err)
	}
	if err := e.artifacts.MirrorContainers(t.ID, j.QueryID); err != nil {
		return fmt.Errorf("stage 1 updating master mirror: %w", err)
	}
	return nil
}
