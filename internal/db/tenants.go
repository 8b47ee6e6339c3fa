package db

import (
	"context"
	"fmt"
	"time"
)

// TenantRow is a row from the tenants table.
type TenantRow struct {
	ID                      int64
	DisplayName             string
	AuthTokenHash           string
	RootPath                string
	UpstreamUsername        string
	UpstreamPassword        string
	UpstreamCaptchaAPIKey   string
	ScheduleEnabled         bool
	ScheduleFrequencyMinutes int
	SessionID               *string
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

const tenantColumns = `id, display_name, auth_token_hash, root_path, upstream_username,
	upstream_password, upstream_captcha_api_key, schedule_enabled,
	schedule_frequency_minutes, session_id, created_at, updated_at`

func scanTenant(row interface {
	Scan(dest ...any) error
}) (TenantRow, error) {
	var t TenantRow
	err := row.Scan(&t.ID, &t.DisplayName, &t.AuthTokenHash, &t.RootPath,
		&t.UpstreamUsername, &t.UpstreamPassword, &t.UpstreamCaptchaAPIKey,
		&t.ScheduleEnabled, &t.ScheduleFrequencyMinutes, &t.SessionID,
		&t.CreatedAt, &t.UpdatedAt)
	return t, err
}

// GetTenant fetches a tenant by id.
func (q *Queries) GetTenant(ctx context.Context, id int64) (TenantRow, error) {
	row := q.db.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id)
	t, err := scanTenant(row)
	if err != nil {
		return TenantRow{}, fmt.Errorf("scanning tenant: %w", err)
	}
	return t, nil
}

// ListEnabledTenants returns every tenant with schedule_enabled = true, used
// by the scheduler at startup to seed its registry.
func (q *Queries) ListEnabledTenants(ctx context.Context) ([]TenantRow, error) {
	rows, err := q.db.Query(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE schedule_enabled = true`)
	if err != nil {
		return nil, fmt.Errorf("querying enabled tenants: %w", err)
	}
	defer rows.Close()

	var out []TenantRow
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning tenant row: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListTenants returns all tenants.
func (q *Queries) ListTenants(ctx context.Context) ([]TenantRow, error) {
	rows, err := q.db.Query(ctx, `SELECT `+tenantColumns+` FROM tenants`)
	if err != nil {
		return nil, fmt.Errorf("querying tenants: %w", err)
	}
	defer rows.Close()

	var out []TenantRow
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning tenant row: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpdateSessionID sets (or clears, passing nil) the tenant's known upstream
// session id. This is the only mutation path for session_id (owned by the
// session manager).
func (q *Queries) UpdateSessionID(ctx context.Context, tenantID int64, sessionID *string) error {
	_, err := q.db.Exec(ctx,
		`UPDATE tenants SET session_id = $2, updated_at = now() WHERE id = $1`,
		tenantID, sessionID)
	if err != nil {
		return fmt.Errorf("updating tenant session id: %w", err)
	}
	return nil
}

// SetSchedule updates the enabled flag and/or frequency for a tenant.
func (q *Queries) SetSchedule(ctx context.Context, tenantID int64, enabled bool, frequencyMinutes int) error {
	_, err := q.db.Exec(ctx,
		`UPDATE tenants SET schedule_enabled = $2, schedule_frequency_minutes = $3, updated_at = now() WHERE id = $1`,
		tenantID, enabled, frequencyMinutes)
	if err != nil {
		return fmt.Errorf("updating tenant schedule: %w", err)
	}
	return nil
}
