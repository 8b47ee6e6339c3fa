package tenant

import (
	"context"
	"fmt"

	"github.com/harvestpipe/engine/internal/db"
)

// Store provides tenant lookups and the session-id mutation path.
type Store struct {
	q *db.Queries
}

// NewStore creates a tenant Store backed by the given database executor.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{q: db.New(dbtx)}
}

// Get fetches a tenant by id.
func (s *Store) Get(ctx context.Context, id int64) (*Tenant, error) {
	row, err := s.q.GetTenant(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting tenant %d: %w", id, err)
	}
	return rowToTenant(row), nil
}

// GetAuthTokenHash fetches the bcrypt hash of a tenant's bearer token. It
// reads the full tenant row and returns only the hash. Used by the auth
// middleware, which already has the tenant id from the URL path and only
// needs the hash to compare against.
func (s *Store) GetAuthTokenHash(ctx context.Context, tenantID int64) (string, error) {
	row, err := s.q.GetTenant(ctx, tenantID)
	if err != nil {
		return "", fmt.Errorf("getting auth token hash for tenant %d: %w", tenantID, err)
	}
	return row.AuthTokenHash, nil
}

// ListEnabled returns every tenant with schedule.enabled = true, used by the
// scheduler to seed its registry at startup.
func (s *Store) ListEnabled(ctx context.Context) ([]*Tenant, error) {
	rows, err := s.q.ListEnabledTenants(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing enabled tenants: %w", err)
	}
	out := make([]*Tenant, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToTenant(r))
	}
	return out, nil
}

// UpdateSessionID persists the tenant's known upstream session id. Pass nil
// to clear it (e.g. before acquiring a fresh session during recovery).
func (s *Store) UpdateSessionID(ctx context.Context, tenantID int64, sessionID *string) error {
	if err := s.q.UpdateSessionID(ctx, tenantID, sessionID); err != nil {
		return fmt.Errorf("updating session id for tenant %d: %w", tenantID, err)
	}
	return nil
}

// SetSchedule updates a tenant's schedule configuration.
func (s *Store) SetSchedule(ctx context.Context, tenantID int64, sched Schedule) error {
	if err := s.q.SetSchedule(ctx, tenantID, sched.Enabled, sched.FrequencyMinutes); err != nil {
		return fmt.Errorf("updating schedule for tenant %d: %w", tenantID, err)
	}
	return nil
}

func rowToTenant(r db.TenantRow) *Tenant {
	return &Tenant{
		ID:          r.ID,
		DisplayName: r.DisplayName,
		RootPath:    r.RootPath,
		Credentials: Credentials{
			Username:      r.UpstreamUsername,
			Password:      r.UpstreamPassword,
			CaptchaAPIKey: r.UpstreamCaptchaAPIKey,
		},
		Schedule: Schedule{
			Enabled:          r.ScheduleEnabled,
			FrequencyMinutes: r.ScheduleFrequencyMinutes,
		},
		SessionID: r.SessionID,
	}
}
