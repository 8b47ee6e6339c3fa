package pipeline

import (
	"context"
	"fmt"

	"github.com/harvestpipe/engine/pkg/artifact"
	"github.com/harvestpipe/engine/pkg/job"
	"github.com/harvestpipe/engine/pkg/tenant"
	"github.com/harvestpipe/engine/pkg/upstream"
)

// stage3BulkEnrich partitions the filtered table by Trade Type, calls
// get_bulk_info once for the whole batch, writes import timeline dates
// into the table in place, and returns the item_id -> booking_number and
// item_id -> pregate_passed maps stage 4 needs.
func (e *Executor) stage3BulkEnrich(ctx context.Context, t *tenant.Tenant, j *job.Job, st *runState, table *artifact.Table) (map[string]string, map[string]bool, error) {
	var importIDs, exportIDs []string
	for i := range table.Rows {
		id := table.Get(i, colContainerNumber)
		switch {
		case isImport(table.Get(i, colTradeType)):
			importIDs = append(importIDs, id)
		case isExport(table.Get(i, colTradeType)):
			exportIDs = append(exportIDs, id)
		}
	}

	records, err := callWithRecovery(ctx, e, t, j.Ordinal, st, func(session string, _ bool) ([]upstream.BulkInfoRecord, error) {
		return e.upstream.GetBulkInfo(ctx, session, importIDs, exportIDs)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("stage 3 get_bulk_info: %w", err)
	}

	bookingByItem := make(map[string]string)
	pregatePassedByItem := make(map[string]bool)
	recordByItem := make(map[string]upstream.BulkInfoRecord, len(records))
	for _, rec := range records {
		recordByItem[rec.ItemID] = rec
		if rec.BookingNumber != "" {
			bookingByItem[rec.ItemID] = rec.BookingNumber
		}
		pregatePassedByItem[rec.ItemID] = rec.PregatePassed
	}

	for i := range table.Rows {
		if !isImport(table.Get(i, colTradeType)) {
			continue
		}
		id := table.Get(i, colContainerNumber)
		rec, ok := recordByItem[id]
		if !ok {
			continue
		}
		for col, value := range extractTimelineDates(rec.Timeline) {
			table.Set(i, col, value)
		}
	}

	if err := e.artifacts.WriteSpreadsheet(e.artifacts.FilteredContainersPath(t.ID, j.QueryID), table); err != nil {
		return nil, nil, fmt.Errorf("stage 3 persisting filtered_containers.xlsx: %w", err)
	}

	return bookingByItem, pregatePassedByItem, nil
}
