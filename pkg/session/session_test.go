package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/harvestpipe/engine/pkg/tenant"
	"github.com/harvestpipe/engine/pkg/upstream"
)

type fakeUpstream struct {
	activeSessions   []string
	acquireAttempts  int
	acquireErr       func(attempt int) error
	acquiredSession  string
}

func (f *fakeUpstream) ListActiveSessions(ctx context.Context, username string) ([]string, error) {
	return f.activeSessions, nil
}

func (f *fakeUpstream) AcquireSession(ctx context.Context, username, password, captchaAPIKey string) (*upstream.SessionResult, error) {
	f.acquireAttempts++
	if f.acquireErr != nil {
		if err := f.acquireErr(f.acquireAttempts); err != nil {
			return nil, err
		}
	}
	return &upstream.SessionResult{SessionID: f.acquiredSession}, nil
}

type fakeJobFinder struct {
	newer bool
}

func (f *fakeJobFinder) FindNewer(ctx context.Context, tenantID, ordinal int64) (bool, error) {
	return f.newer, nil
}

type fakeTenantUpdater struct {
	lastSessionID *string
}

func (f *fakeTenantUpdater) UpdateSessionID(ctx context.Context, tenantID int64, sessionID *string) error {
	f.lastSessionID = sessionID
	return nil
}

func authInvalid(attempt int) error {
	return &upstream.Error{Class: upstream.AuthInvalid, StatusCode: 401, Op: "acquire_session", Message: "bad creds"}
}

func TestEnsureReturnsExistingSession(t *testing.T) {
	up := &fakeUpstream{}
	jobs := &fakeJobFinder{}
	tenants := &fakeTenantUpdater{}
	m := NewManager(up, jobs, tenants, Config{MaxRetries: 3, RetryDelay: time.Minute})

	existing := "sess-existing"
	tn := &tenant.Tenant{ID: 1, SessionID: &existing, Credentials: tenant.Credentials{Username: "u"}}

	got, err := m.Ensure(context.Background(), tn, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != existing {
		t.Errorf("got %q, want %q", got, existing)
	}
	if up.acquireAttempts != 0 {
		t.Errorf("expected no acquisition call, got %d attempts", up.acquireAttempts)
	}
}

func TestEnsureAdoptsActiveSession(t *testing.T) {
	up := &fakeUpstream{activeSessions: []string{"sess-active"}}
	jobs := &fakeJobFinder{}
	tenants := &fakeTenantUpdater{}
	m := NewManager(up, jobs, tenants, Config{MaxRetries: 3, RetryDelay: time.Minute})

	tn := &tenant.Tenant{ID: 1, Credentials: tenant.Credentials{Username: "u"}}
	got, err := m.Ensure(context.Background(), tn, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "sess-active" {
		t.Errorf("got %q, want sess-active", got)
	}
	if tenants.lastSessionID == nil || *tenants.lastSessionID != "sess-active" {
		t.Errorf("expected persisted session sess-active, got %v", tenants.lastSessionID)
	}
}

func TestEnsureAcquiresFreshSession(t *testing.T) {
	up := &fakeUpstream{acquiredSession: "sess-new"}
	jobs := &fakeJobFinder{}
	tenants := &fakeTenantUpdater{}
	m := NewManager(up, jobs, tenants, Config{MaxRetries: 3, RetryDelay: time.Minute})

	tn := &tenant.Tenant{ID: 1, Credentials: tenant.Credentials{Username: "u"}}
	got, err := m.Ensure(context.Background(), tn, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "sess-new" {
		t.Errorf("got %q, want sess-new", got)
	}
}

func TestRecoverClearsThenReacquires(t *testing.T) {
	up := &fakeUpstream{acquiredSession: "sess-recovered"}
	jobs := &fakeJobFinder{}
	tenants := &fakeTenantUpdater{}
	m := NewManager(up, jobs, tenants, Config{MaxRetries: 3, RetryDelay: time.Minute})

	existing := "sess-old"
	tn := &tenant.Tenant{ID: 1, SessionID: &existing, Credentials: tenant.Credentials{Username: "u"}}

	got, err := m.Recover(context.Background(), tn, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "sess-recovered" {
		t.Errorf("got %q, want sess-recovered", got)
	}
}

func TestAcquireCancelledByNewerJobDuringBackoff(t *testing.T) {
	up := &fakeUpstream{acquireErr: authInvalid}
	jobs := &fakeJobFinder{newer: true}
	tenants := &fakeTenantUpdater{}
	m := NewManager(up, jobs, tenants, Config{MaxRetries: 3, RetryDelay: 5 * time.Second})
	m.pollQuantum = 20 * time.Millisecond // short quantum so the test doesn't sleep for real minutes

	tn := &tenant.Tenant{ID: 1, Credentials: tenant.Credentials{Username: "u"}}
	_, err := m.Ensure(context.Background(), tn, 100)
	if !errors.Is(err, ErrCancelledByNewerJob) {
		t.Fatalf("expected ErrCancelledByNewerJob, got %v", err)
	}
	if up.acquireAttempts != 1 {
		t.Errorf("expected exactly 1 acquire attempt before cancellation, got %d", up.acquireAttempts)
	}
}

func TestAcquireExhaustsRetriesOnPersistentAuthInvalid(t *testing.T) {
	up := &fakeUpstream{acquireErr: authInvalid}
	jobs := &fakeJobFinder{newer: false}
	tenants := &fakeTenantUpdater{}
	m := NewManager(up, jobs, tenants, Config{MaxRetries: 2, RetryDelay: 5 * time.Millisecond})
	m.pollQuantum = 1 * time.Millisecond

	tn := &tenant.Tenant{ID: 1, Credentials: tenant.Credentials{Username: "u"}}
	_, err := m.Ensure(context.Background(), tn, 100)
	if err == nil {
		t.Fatal("expected error")
	}
	if up.acquireAttempts != 2 {
		t.Errorf("expected 2 acquire attempts, got %d", up.acquireAttempts)
	}
}

func TestAcquirePermanentErrorFailsImmediately(t *testing.T) {
	up := &fakeUpstream{acquireErr: func(attempt int) error {
		return &upstream.Error{Class: upstream.Permanent, StatusCode: 403, Op: "acquire_session"}
	}}
	jobs := &fakeJobFinder{}
	tenants := &fakeTenantUpdater{}
	m := NewManager(up, jobs, tenants, Config{MaxRetries: 3, RetryDelay: time.Minute})

	tn := &tenant.Tenant{ID: 1, Credentials: tenant.Credentials{Username: "u"}}
	_, err := m.Ensure(context.Background(), tn, 100)
	if err == nil {
		t.Fatal("expected error")
	}
	if up.acquireAttempts != 1 {
		t.Errorf("expected exactly 1 attempt for a permanent error, got %d", up.acquireAttempts)
	}
}
