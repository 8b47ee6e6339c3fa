package job

import "testing"

func TestNewQueryID(t *testing.T) {
	got := NewQueryID(42, 1700000000)
	want := "q_42_1700000000"
	if got != want {
		t.Fatalf("NewQueryID = %q, want %q", got, want)
	}
}

func TestParseOrdinal(t *testing.T) {
	tests := []struct {
		name    string
		queryID string
		want    int64
		wantOK  bool
	}{
		{"valid", "q_42_1700000000", 1700000000, true},
		{"wrong prefix", "x_42_1700000000", 0, false},
		{"too few parts", "q_42", 0, false},
		{"too many parts", "q_42_1700000000_extra", 0, false},
		{"non-numeric ordinal", "q_42_abc", 0, false},
		{"empty", "", 0, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseOrdinal(tc.queryID)
			if ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tc.wantOK)
			}
			if ok && got != tc.want {
				t.Errorf("ordinal = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestMarshalSummaryStats(t *testing.T) {
	raw, err := MarshalSummaryStats(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if raw != nil {
		t.Fatalf("expected nil for nil stats, got %s", raw)
	}

	stats := &SummaryStats{TotalsList: 10, ProbesOK: 8, ProbesFailed: 2, TotalAppointments: 3}
	raw, err = MarshalSummaryStats(stats)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(raw) == 0 {
		t.Fatal("expected non-empty json")
	}
}
