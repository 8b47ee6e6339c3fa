package pipeline

import (
	"fmt"

	"github.com/harvestpipe/engine/pkg/artifact"
	"github.com/harvestpipe/engine/pkg/job"
	"github.com/harvestpipe/engine/pkg/tenant"
)

// stage2Result carries both the raw listing's row count (for summary_stats)
// and the filtered table that stages 3 and 4 continue to mutate.
type stage2Result struct {
	listRowCount int
	filtered     *artifact.Table
}

// stage2Filter loads all_containers.xlsx, retains rows passing the
// Holds/Pregate Ticket# predicate, appends the five output columns
// initialized to "N/A", and persists filtered_containers.xlsx.
func (e *Executor) stage2Filter(t *tenant.Tenant, j *job.Job) (*stage2Result, error) {
	raw, err := e.artifacts.ReadSpreadsheet(e.artifacts.AllContainersPath(t.ID, j.QueryID))
	if err != nil {
		return nil, fmt.Errorf("stage 2 reading all_containers.xlsx: %w", err)
	}

	filtered := &artifact.Table{Header: append([]string(nil), raw.Header...)}
	for i := range raw.Rows {
		if passesFilter(raw.Get(i, colHolds), raw.Get(i, colPregateTicket)) {
			filtered.Rows = append(filtered.Rows, append([]string(nil), raw.Rows[i]...))
		}
	}
	filtered.AppendColumns(naLiteral, appendedColumns...)

	if err := e.artifacts.WriteSpreadsheet(e.artifacts.FilteredContainersPath(t.ID, j.QueryID), filtered); err != nil {
		return nil, fmt.Errorf("stage 2 writing filtered_containers.xlsx: %w", err)
	}

	return &stage2Result{listRowCount: len(raw.Rows), filtered: filtered}, nil
}

// countByTradeType returns how many rows are imports and how many are
// exports, for summary_stats.
func countByTradeType(table *artifact.Table) (imports, exports int) {
	for i := range table.Rows {
		switch {
		case isImport(table.Get(i, colTradeType)):
			imports++
		case isExport(table.Get(i, colTradeType)):
			exports++
		}
	}
	return imports, exports
}
