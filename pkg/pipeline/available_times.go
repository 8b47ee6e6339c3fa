package pipeline

import (
	"fmt"
	"strings"
	"time"
)

const availableTimeLayout = "01/02/2006 03:04 PM"

// earliestAvailableDate parses a list of human strings of the form
// "MM/DD/YYYY HH:MM AM/PM - HH:MM AM/PM" (the list is not assumed sorted)
// and returns the earliest one's date in MM/DD/YYYY form. Entries that fail
// to parse are skipped; if none parse, ok is false.
func earliestAvailableDate(availableTimes []string) (string, bool) {
	var earliest time.Time
	found := false

	for _, raw := range availableTimes {
		t, err := parseAvailableTimeStart(raw)
		if err != nil {
			continue
		}
		if !found || t.Before(earliest) {
			earliest = t
			found = true
		}
	}
	if !found {
		return "", false
	}
	return earliest.Format("01/02/2006"), true
}

// parseAvailableTimeStart extracts the start timestamp from one
// "MM/DD/YYYY HH:MM AM/PM - HH:MM AM/PM" entry.
func parseAvailableTimeStart(raw string) (time.Time, error) {
	parts := strings.SplitN(raw, "-", 2)
	datePart := strings.TrimSpace(parts[0])
	t, err := time.Parse(availableTimeLayout, datePart)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing available time %q: %w", raw, err)
	}
	return t, nil
}
