package upstream

// TimelineEntry is one milestone/date pair in a bulk-info import timeline.
type TimelineEntry struct {
	Milestone string `json:"milestone"`
	DateISO   string `json:"date_iso,omitempty"`
}

// BulkInfoRecord is one item's enrichment from get_bulk_info. Imports carry
// Timeline and PregatePassed; exports carry BookingNumber.
type BulkInfoRecord struct {
	ItemID        string          `json:"item_id"`
	PregatePassed bool            `json:"pregate_passed,omitempty"`
	Timeline      []TimelineEntry `json:"timeline,omitempty"`
	BookingNumber string          `json:"booking_number,omitempty"`
}

// ProbeResult is the response from probe_appointments. For import probes
// AvailableTimes is populated; for export probes CalendarFound is set.
type ProbeResult struct {
	AvailableTimes []string `json:"available_times,omitempty"`
	CalendarFound  bool     `json:"calendar_found,omitempty"`
	ScreenshotURL  string   `json:"screenshot_url"`
}

// SessionResult is the response from acquire_session.
type SessionResult struct {
	SessionID string `json:"session_id"`
	Reused    bool   `json:"reused"`
}

// ProbeKind distinguishes import from export probes.
type ProbeKind string

const (
	ProbeImport ProbeKind = "import"
	ProbeExport ProbeKind = "export"
)

// ProbeParams carries every field the upstream's probe_appointments needs.
type ProbeParams struct {
	Kind            ProbeKind
	Terminal        string
	MoveType        string
	Trucking        string
	ItemIDOrBooking string
	Plate           string
	OwnChassis      bool
}

// Downloaded is the raw result of a Download call.
type Downloaded struct {
	Bytes       []byte
	ContentType string
}
