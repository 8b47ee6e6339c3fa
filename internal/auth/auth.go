// Package auth implements the engine's minimal authN/Z slice: resolving a
// tenant handle from a bearer token, or recognizing the admin secret for
// cross-tenant routes. It is not a general identity system — that remains
// an external collaborator per spec.
package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/harvestpipe/engine/internal/httpx"
)

// TenantHashStore is the subset of tenant.Store auth needs.
type TenantHashStore interface {
	GetAuthTokenHash(ctx context.Context, tenantID int64) (string, error)
}

// Identity is the authenticated caller attached to a request's context.
type Identity struct {
	// IsAdmin is true when the request carried the admin secret. An admin
	// identity is not scoped to any single tenant.
	IsAdmin bool
	// TenantID is set for a tenant-scoped identity (IsAdmin false).
	TenantID int64
}

type contextKey string

const identityKey contextKey = "auth_identity"

// NewContext stores the identity in the context.
func NewContext(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext extracts the identity from the context, or the zero value if
// unset.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// HashToken bcrypt-hashes a bearer token for storage in
// tenants.auth_token_hash. Used by tenant provisioning, not by request
// handling (which compares against an existing hash).
func HashToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// ErrUnauthorized is returned by Authenticate when the bearer token matches
// neither the admin secret nor the tenant's stored hash.
var ErrUnauthorized = errUnauthorized{}

type errUnauthorized struct{}

func (errUnauthorized) Error() string { return "unauthorized" }

// Authenticate checks a bearer token against the admin secret and, failing
// that, the given tenant's stored bcrypt hash. It is the shared core of
// RequireTenant and of handlers that must resolve their tenant_id from
// something other than the URL path (e.g. a job's query_id) before they
// know which hash to check.
func Authenticate(ctx context.Context, tenants TenantHashStore, adminSecret string, tenantID int64, token string) (Identity, error) {
	if adminSecret != "" && subtle.ConstantTimeCompare([]byte(token), []byte(adminSecret)) == 1 {
		return Identity{IsAdmin: true, TenantID: tenantID}, nil
	}

	hash, err := tenants.GetAuthTokenHash(ctx, tenantID)
	if err != nil {
		return Identity{}, ErrUnauthorized
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) != nil {
		return Identity{}, ErrUnauthorized
	}

	return Identity{TenantID: tenantID}, nil
}

// BearerToken extracts the bearer token from a request's Authorization
// header, for handlers that need to call Authenticate directly.
func BearerToken(r *http.Request) (string, bool) {
	return bearerToken(r)
}

// RequireTenant authenticates a request against the {tenant_id} path
// parameter: either the admin secret (constant-time compared, grants
// cross-tenant access to the path's tenant) or a bearer token matching that
// tenant's stored bcrypt hash. Because every tenant-scoped route carries
// tenant_id in its path, the handler only ever has one candidate hash to
// check, so no global token-to-tenant lookup is needed.
func RequireTenant(tenants TenantHashStore, adminSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantIDStr := chi.URLParam(r, "tenant_id")
			tenantID, err := strconv.ParseInt(tenantIDStr, 10, 64)
			if err != nil {
				httpx.RespondError(w, http.StatusBadRequest, "invalid_tenant_id", "tenant_id must be an integer")
				return
			}

			token, ok := bearerToken(r)
			if !ok {
				httpx.RespondError(w, http.StatusUnauthorized, "unauthorized", "missing or malformed Authorization header")
				return
			}

			identity, err := Authenticate(r.Context(), tenants, adminSecret, tenantID, token)
			if err != nil {
				httpx.RespondError(w, http.StatusUnauthorized, "unauthorized", "invalid bearer token")
				return
			}

			ctx := NewContext(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin authenticates a request against the admin secret alone, for
// routes that have no single tenant in their path.
func RequireAdmin(adminSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok || adminSecret == "" || subtle.ConstantTimeCompare([]byte(token), []byte(adminSecret)) != 1 {
				httpx.RespondError(w, http.StatusUnauthorized, "unauthorized", "admin secret required")
				return
			}
			ctx := NewContext(r.Context(), Identity{IsAdmin: true})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(h, prefix))
	if token == "" {
		return "", false
	}
	return token, true
}
