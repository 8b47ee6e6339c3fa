// Package session implements the Session Manager (C3): acquiring and
// recovering the upstream session a tenant uses for every authenticated
// call, including the cancelable backoff on repeated acquisition failures.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harvestpipe/engine/pkg/tenant"
	"github.com/harvestpipe/engine/pkg/upstream"
)

// ErrCancelledByNewerJob is returned when a newer job for the tenant is
// observed during the cancelable backoff between acquisition attempts.
var ErrCancelledByNewerJob = errors.New("cancelled by newer job")

// UpstreamClient is the subset of upstream.Client the Session Manager needs.
// Declared here so tests can supply a fake.
type UpstreamClient interface {
	ListActiveSessions(ctx context.Context, username string) ([]string, error)
	AcquireSession(ctx context.Context, username, password, captchaAPIKey string) (*upstream.SessionResult, error)
}

// JobFinder reports whether a newer job than ordinal exists for the tenant.
// Satisfied by *job.Store in production.
type JobFinder interface {
	FindNewer(ctx context.Context, tenantID, ordinal int64) (bool, error)
}

// TenantSessionUpdater persists the tenant's known session id. Satisfied by
// *tenant.Store in production.
type TenantSessionUpdater interface {
	UpdateSessionID(ctx context.Context, tenantID int64, sessionID *string) error
}

// Manager owns session acquisition and recovery for every tenant.
type Manager struct {
	upstream UpstreamClient
	jobs     JobFinder
	tenants  TenantSessionUpdater

	maxRetries  int
	retryDelay  time.Duration
	pollQuantum time.Duration // overridable in tests
}

// Config carries the retry policy knobs from configuration.
type Config struct {
	MaxRetries int
	RetryDelay time.Duration
}

// NewManager creates a Session Manager with the given retry policy.
func NewManager(upstreamClient UpstreamClient, jobs JobFinder, tenants TenantSessionUpdater, cfg Config) *Manager {
	return &Manager{
		upstream:    upstreamClient,
		jobs:        jobs,
		tenants:     tenants,
		maxRetries:  cfg.MaxRetries,
		retryDelay:  cfg.RetryDelay,
		pollQuantum: 60 * time.Second,
	}
}

// Ensure returns the tenant's known session_id without calling upstream if
// one is already set, otherwise acquires a new one.
func (m *Manager) Ensure(ctx context.Context, t *tenant.Tenant, jobOrdinal int64) (string, error) {
	if t.SessionID != nil && *t.SessionID != "" {
		return *t.SessionID, nil
	}
	return m.acquire(ctx, t, jobOrdinal)
}

// Recover unconditionally drops the tenant's current session (persisting
// null first) and acquires a fresh one.
func (m *Manager) Recover(ctx context.Context, t *tenant.Tenant, jobOrdinal int64) (string, error) {
	if err := m.tenants.UpdateSessionID(ctx, t.ID, nil); err != nil {
		return "", fmt.Errorf("clearing session before recovery: %w", err)
	}
	t.SessionID = nil
	return m.acquire(ctx, t, jobOrdinal)
}

// acquire runs the acquisition algorithm: adopt an active session if the
// upstream already has one for this username, otherwise log in fresh,
// retrying 401s under the cancelable backoff policy.
func (m *Manager) acquire(ctx context.Context, t *tenant.Tenant, jobOrdinal int64) (string, error) {
	active, err := m.upstream.ListActiveSessions(ctx, t.Credentials.Username)
	if err != nil {
		return "", fmt.Errorf("listing active sessions: %w", err)
	}
	if len(active) > 0 {
		return m.persist(ctx, t, active[0])
	}

	var lastErr error
	for attempt := 1; attempt <= m.maxRetries; attempt++ {
		result, err := m.upstream.AcquireSession(ctx, t.Credentials.Username, t.Credentials.Password, t.Credentials.CaptchaAPIKey)
		if err == nil {
			return m.persist(ctx, t, result.SessionID)
		}
		if !upstream.IsClass(err, upstream.AuthInvalid) {
			return "", fmt.Errorf("acquiring session: %w", err)
		}
		lastErr = err

		if attempt == m.maxRetries {
			break
		}
		if cancelled, werr := m.cancelableWait(ctx, t.ID, jobOrdinal); werr != nil {
			return "", werr
		} else if cancelled {
			return "", ErrCancelledByNewerJob
		}
	}
	return "", fmt.Errorf("acquiring session after %d attempts: %w", m.maxRetries, lastErr)
}

func (m *Manager) persist(ctx context.Context, t *tenant.Tenant, sessionID string) (string, error) {
	if err := m.tenants.UpdateSessionID(ctx, t.ID, &sessionID); err != nil {
		return "", fmt.Errorf("persisting session id: %w", err)
	}
	t.SessionID = &sessionID
	return sessionID, nil
}

// cancelableWait sleeps up to retryDelay in pollQuantum-sized steps,
// checking for a newer job between each step. Returns true if cancelled.
func (m *Manager) cancelableWait(ctx context.Context, tenantID, jobOrdinal int64) (bool, error) {
	deadline := time.Now().Add(m.retryDelay)
	ticker := time.NewTicker(m.pollQuantum)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
			newer, err := m.jobs.FindNewer(ctx, tenantID, jobOrdinal)
			if err != nil {
				return false, fmt.Errorf("checking for newer job during backoff: %w", err)
			}
			if newer {
				return true, nil
			}
			if time.Now().After(deadline) {
				return false, nil
			}
		}
	}
}
