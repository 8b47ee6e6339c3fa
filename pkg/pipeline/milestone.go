package pipeline

import (
	"strings"
	"time"

	"github.com/harvestpipe/engine/pkg/upstream"
)

// timelineColumns are the three appended columns stage 3 populates from an
// import row's bulk-info timeline. The other two appended columns
// (First Appointment Available Before/After) are filled by stage 4.
var timelineColumns = []string{colManifested, colDepartedTerminal, colEmptyReceived}

// candidateDateLayouts are the formats a bulk-info timeline date_iso value
// may arrive in; normalizeDate tries each in turn.
var candidateDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"01/02/2006 03:04 PM",
	"01/02/2006",
}

// extractTimelineDates reads a bulk-info timeline into the three timeline
// output columns, normalized to MM/DD/YYYY with any time-of-day stripped.
// A milestone absent from the timeline leaves its column at the literal
// "N/A" (the caller's default).
func extractTimelineDates(timeline []upstream.TimelineEntry) map[string]string {
	out := make(map[string]string, len(timelineColumns))
	for _, entry := range timeline {
		if entry.DateISO == "" {
			continue
		}
		for _, col := range timelineColumns {
			if !strings.EqualFold(strings.TrimSpace(entry.Milestone), col) {
				continue
			}
			if normalized, ok := normalizeDate(entry.DateISO); ok {
				out[col] = normalized
			}
		}
	}
	return out
}

// normalizeDate strips time-of-day (if present) and renders a date string
// as MM/DD/YYYY.
func normalizeDate(raw string) (string, bool) {
	for _, layout := range candidateDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format("01/02/2006"), true
		}
	}
	return "", false
}
