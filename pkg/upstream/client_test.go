package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAcquireSessionSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"session_id":"sess-1","reused":false}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	result, err := c.AcquireSession(context.Background(), "user", "pass", "key")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.SessionID != "sess-1" {
		t.Errorf("SessionID = %q, want sess-1", result.SessionID)
	}
}

func TestAcquireSessionUnauthorizedIsAuthInvalid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"bad credentials"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	_, err := c.AcquireSession(context.Background(), "user", "pass", "key")
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsClass(err, AuthInvalid) {
		t.Errorf("expected AuthInvalid, got %v", err)
	}
}

func TestListItemsSessionExpiredBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"session expired"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	_, err := c.ListItems(context.Background(), "sess-1", false)
	if !IsClass(err, SessionInvalid) {
		t.Fatalf("expected SessionInvalid, got %v", err)
	}
}

func TestListItemsAfterSuccessUpgradesPlain400(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"unrecognized request"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)

	_, err := c.ListItems(context.Background(), "sess-1", false)
	if !IsClass(err, Permanent) {
		t.Fatalf("without afterSuccess, expected Permanent, got %v", err)
	}

	_, err = c.ListItems(context.Background(), "sess-1", true)
	if !IsClass(err, SessionInvalid) {
		t.Fatalf("with afterSuccess, expected SessionInvalid, got %v", err)
	}
}

func TestListItems5xxIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	_, err := c.ListItems(context.Background(), "sess-1", false)
	if !IsClass(err, Transient) {
		t.Fatalf("expected Transient, got %v", err)
	}
}

func TestGetBulkInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"records":[{"item_id":"A","pregate_passed":true,"timeline":[{"milestone":"Discharged","date_iso":"2026-01-01T00:00:00Z"}]},{"item_id":"B","booking_number":"BK1"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	records, err := c.GetBulkInfo(context.Background(), "sess-1", []string{"A"}, []string{"B"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[1].BookingNumber != "BK1" {
		t.Errorf("BookingNumber = %q, want BK1", records[1].BookingNumber)
	}
}

func TestProbeAppointmentsImport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"available_times":["01/02/2026 08:00 AM - 10:00 AM"],"screenshot_url":"http://x/shot.png"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	result, err := c.ProbeAppointments(context.Background(), "sess-1", ProbeParams{
		Kind:            ProbeImport,
		Terminal:        "TTI",
		MoveType:        "PICK FULL",
		Trucking:        "Acme Trucking",
		ItemIDOrBooking: "CONT1",
	}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.AvailableTimes) != 1 {
		t.Fatalf("expected 1 available time, got %d", len(result.AvailableTimes))
	}
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte("binary-data"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	d, err := c.Download(context.Background(), srv.URL+"/file")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(d.Bytes) != "binary-data" {
		t.Errorf("Bytes = %q, want binary-data", d.Bytes)
	}
}
