package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

type fakeTenantHashStore struct {
	hashes map[int64]string
}

func (f *fakeTenantHashStore) GetAuthTokenHash(ctx context.Context, tenantID int64) (string, error) {
	h, ok := f.hashes[tenantID]
	if !ok {
		return "", errors.New("tenant not found")
	}
	return h, nil
}

func mustHash(t *testing.T, token string) string {
	t.Helper()
	h, err := HashToken(token)
	if err != nil {
		t.Fatalf("HashToken: %v", err)
	}
	return h
}

func withTenantIDParam(r *http.Request, tenantID string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("tenant_id", tenantID)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestRequireTenantAcceptsValidBearerToken(t *testing.T) {
	store := &fakeTenantHashStore{hashes: map[int64]string{7: mustHash(t, "secret-token")}}

	var gotIdentity Identity
	handler := RequireTenant(store, "admin-secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIdentity, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	r := httptest.NewRequest(http.MethodGet, "/api/v1/tenants/7/jobs", nil)
	r.Header.Set("Authorization", "Bearer secret-token")
	r = withTenantIDParam(r, "7")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if gotIdentity.IsAdmin || gotIdentity.TenantID != 7 {
		t.Fatalf("identity = %+v, want tenant 7 non-admin", gotIdentity)
	}
}

func TestRequireTenantRejectsWrongToken(t *testing.T) {
	store := &fakeTenantHashStore{hashes: map[int64]string{7: mustHash(t, "secret-token")}}
	handler := RequireTenant(store, "admin-secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	r := httptest.NewRequest(http.MethodGet, "/api/v1/tenants/7/jobs", nil)
	r.Header.Set("Authorization", "Bearer wrong-token")
	r = withTenantIDParam(r, "7")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestRequireTenantAcceptsAdminSecretForAnyTenant(t *testing.T) {
	store := &fakeTenantHashStore{hashes: map[int64]string{7: mustHash(t, "secret-token")}}

	var gotIdentity Identity
	handler := RequireTenant(store, "admin-secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIdentity, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	r := httptest.NewRequest(http.MethodGet, "/api/v1/tenants/7/jobs", nil)
	r.Header.Set("Authorization", "Bearer admin-secret")
	r = withTenantIDParam(r, "7")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !gotIdentity.IsAdmin {
		t.Fatalf("identity = %+v, want admin", gotIdentity)
	}
}

func TestRequireTenantRejectsMissingAuthHeader(t *testing.T) {
	store := &fakeTenantHashStore{}
	handler := RequireTenant(store, "admin-secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	r := httptest.NewRequest(http.MethodGet, "/api/v1/tenants/7/jobs", nil)
	r = withTenantIDParam(r, "7")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestRequireTenantRejectsUnknownTenant(t *testing.T) {
	store := &fakeTenantHashStore{hashes: map[int64]string{}}
	handler := RequireTenant(store, "admin-secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	r := httptest.NewRequest(http.MethodGet, "/api/v1/tenants/99/jobs", nil)
	r.Header.Set("Authorization", "Bearer secret-token")
	r = withTenantIDParam(r, "99")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestRequireAdminRejectsNonAdminToken(t *testing.T) {
	handler := RequireAdmin("admin-secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	r := httptest.NewRequest(http.MethodGet, "/api/v1/tenants", nil)
	r.Header.Set("Authorization", "Bearer not-the-secret")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}
