// Package job implements the Job Store (C4): durable per-tenant pipeline run
// records, query_id generation, and the "newer job" lookup that drives
// cancellation.
package job

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// PlatformEmodal is the one upstream platform this engine currently drives.
// Platform is carried as an enumerated tag on every job for forward
// compatibility, even though only one value is implemented today.
const PlatformEmodal = "emodal"

// Status is a job's lifecycle state. It is monotonic: pending -> in_progress
// -> {completed|failed}; a job is never mutated after reaching a terminal
// state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// SummaryStats are the terminal counts recorded when a job finishes.
type SummaryStats struct {
	TotalsList        int     `json:"totals_list"`
	TotalsFiltered    int     `json:"totals_filtered"`
	TotalsImport      int     `json:"totals_import"`
	TotalsExport      int     `json:"totals_export"`
	ProbesOK          int     `json:"probes_ok"`
	ProbesFailed      int     `json:"probes_failed"`
	TotalAppointments int     `json:"total_appointments"`
	DurationSeconds   float64 `json:"duration_seconds"`
}

// Job is one pipeline run for one tenant on one upstream platform.
type Job struct {
	QueryID      string        `json:"query_id"`
	TenantID     int64         `json:"tenant_id"`
	Platform     string        `json:"platform"`
	Ordinal      int64         `json:"ordinal"` // the unix-second suffix embedded in QueryID
	Status       Status        `json:"status"`
	FolderPath   string        `json:"folder_path"`
	StartedAt    *time.Time    `json:"started_at,omitempty"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
	ErrorMessage *string       `json:"error_message,omitempty"`
	SummaryStats *SummaryStats `json:"summary_stats,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// NewQueryID builds a query_id of the form "q_{tenant_id}_{unix_seconds}".
// The unix-second timestamp is the job ordinal used by cancellation.
func NewQueryID(tenantID int64, ordinal int64) string {
	return fmt.Sprintf("q_%d_%d", tenantID, ordinal)
}

// ParseOrdinal extracts the ordinal embedded in a query_id. Parse failures
// are treated as "no ordinal" (ok=false) — callers must fall back to the
// safe "not newer" assumption per spec, never to a crash.
func ParseOrdinal(queryID string) (ordinal int64, ok bool) {
	parts := strings.Split(queryID, "_")
	if len(parts) != 3 || parts[0] != "q" {
		return 0, false
	}
	n, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// MarshalSummaryStats serializes stats for persistence, or returns nil for
// an unset summary (pending/in_progress jobs carry no stats yet).
func MarshalSummaryStats(s *SummaryStats) (json.RawMessage, error) {
	if s == nil {
		return nil, nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshaling summary stats: %w", err)
	}
	return b, nil
}
