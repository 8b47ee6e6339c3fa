package pipeline

import (
	"testing"

	"github.com/harvestpipe/engine/pkg/upstream"
)

func TestMapTerminal(t *testing.T) {
	if got := mapTerminal("TTI"); got != "Total Terminals International" {
		t.Errorf("mapTerminal(TTI) = %q", got)
	}
	if got := mapTerminal("UNKNOWNCODE"); got != "UNKNOWNCODE" {
		t.Errorf("mapTerminal(unknown) = %q, want passthrough", got)
	}
}

func TestPassesFilter(t *testing.T) {
	tests := []struct {
		name          string
		holds         string
		pregateTicket string
		want          bool
	}{
		{"exact match", "NO", "N/A", true},
		{"case insensitive holds", "no", "n/a", true},
		{"substring pregate", "NO", "Ticket N/A pending", true},
		{"holds yes", "YES", "N/A", false},
		{"pregate has a value", "NO", "PG123456", false},
		{"holds whitespace", "  NO  ", "N/A", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := passesFilter(tc.holds, tc.pregateTicket); got != tc.want {
				t.Errorf("passesFilter(%q, %q) = %v, want %v", tc.holds, tc.pregateTicket, got, tc.want)
			}
		})
	}
}

func TestResolveTerminalCode(t *testing.T) {
	if got := resolveTerminalCode("TTI", "ORIG", "DEST", true); got != "TTI" {
		t.Errorf("expected CurrentLoc preference, got %q", got)
	}
	if got := resolveTerminalCode("", "ORIG", "DEST", true); got != "ORIG" {
		t.Errorf("expected Origin fallback for import, got %q", got)
	}
	if got := resolveTerminalCode("", "ORIG", "DEST", false); got != "DEST" {
		t.Errorf("expected Destination fallback for export, got %q", got)
	}
}

func TestExtractTimelineDates(t *testing.T) {
	timeline := []upstream.TimelineEntry{
		{Milestone: "Manifested", DateISO: "2026-01-15T08:00:00Z"},
		{Milestone: "Departed Terminal", DateISO: "01/20/2026"},
		{Milestone: "Unknown Stage", DateISO: "2026-01-25"},
	}
	got := extractTimelineDates(timeline)

	if got[colManifested] != "01/15/2026" {
		t.Errorf("Manifested = %q, want 01/15/2026", got[colManifested])
	}
	if got[colDepartedTerminal] != "01/20/2026" {
		t.Errorf("Departed Terminal = %q, want 01/20/2026", got[colDepartedTerminal])
	}
	if _, ok := got[colEmptyReceived]; ok {
		t.Errorf("Empty Received should be absent (no milestone in timeline)")
	}
}

func TestEarliestAvailableDate(t *testing.T) {
	times := []string{
		"01/20/2026 02:00 PM - 04:00 PM",
		"01/15/2026 08:00 AM - 10:00 AM",
		"01/18/2026 09:00 AM - 11:00 AM",
	}
	got, ok := earliestAvailableDate(times)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if got != "01/15/2026" {
		t.Errorf("earliest = %q, want 01/15/2026", got)
	}
}

func TestEarliestAvailableDateUnsorted(t *testing.T) {
	times := []string{
		"12/31/2026 02:00 PM - 04:00 PM",
		"01/01/2026 08:00 AM - 10:00 AM",
	}
	got, ok := earliestAvailableDate(times)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if got != "01/01/2026" {
		t.Errorf("earliest = %q, want 01/01/2026", got)
	}
}

func TestEarliestAvailableDateAllUnparseable(t *testing.T) {
	_, ok := earliestAvailableDate([]string{"garbage", ""})
	if ok {
		t.Fatal("expected ok=false for unparseable input")
	}
}

func TestEarliestAvailableDateEmpty(t *testing.T) {
	_, ok := earliestAvailableDate(nil)
	if ok {
		t.Fatal("expected ok=false for empty input")
	}
}
