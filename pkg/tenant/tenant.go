// Package tenant models the tenant record: identity, upstream credentials,
// schedule configuration, and the currently known upstream session id.
package tenant

import "context"

// Credentials are the tenant's long-lived upstream login.
type Credentials struct {
	Username      string
	Password      string
	CaptchaAPIKey string
}

// Schedule configures the recurring harvest frequency for a tenant.
type Schedule struct {
	Enabled          bool `json:"enabled"`
	FrequencyMinutes int  `json:"frequency_minutes"`
}

// Tenant is the identity, credentials, and schedule for one managed upstream
// account. SessionID is mutated only by the session manager.
type Tenant struct {
	ID          int64
	DisplayName string
	AuthToken   string // opaque local bearer token (hash is what's persisted)
	RootPath    string
	Credentials Credentials
	Schedule    Schedule
	SessionID   *string
}

type contextKey string

const tenantKey contextKey = "tenant"

// NewContext stores the tenant in the context.
func NewContext(ctx context.Context, t *Tenant) context.Context {
	return context.WithValue(ctx, tenantKey, t)
}

// FromContext extracts the tenant from the context, or nil if unset.
func FromContext(ctx context.Context) *Tenant {
	v, _ := ctx.Value(tenantKey).(*Tenant)
	return v
}
