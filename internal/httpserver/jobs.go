package httpserver

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/harvestpipe/engine/internal/auth"
	"github.com/harvestpipe/engine/pkg/job"
)

// triggerJobResponse is the 202 body returned by handleTriggerJob.
type triggerJobResponse struct {
	QueryID string     `json:"query_id"`
	Status  job.Status `json:"status"`
}

func (s *Server) handleTriggerJob(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := parseTenantIDParam(w, r)
	if !ok {
		return
	}

	t, err := s.tenants.Get(r.Context(), tenantID)
	if err != nil {
		RespondError(w, http.StatusNotFound, "not_found", "tenant not found")
		return
	}

	j, err := s.gateway.Trigger(r.Context(), s.runCtx, t, job.PlatformEmodal)
	if err != nil {
		s.logger.Error("triggering job", "tenant_id", tenantID, "error", err)
		RespondError(w, http.StatusInternalServerError, "internal_error", "failed to trigger job")
		return
	}

	Respond(w, http.StatusAccepted, triggerJobResponse{QueryID: j.QueryID, Status: j.Status})
}

// handleGetJob is not tenant-scoped by path, so it authenticates manually:
// it resolves the job's tenant first, then checks the bearer token against
// that tenant (or the admin secret).
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	queryID := chi.URLParam(r, "query_id")

	j, err := s.jobs.Get(r.Context(), queryID)
	if err != nil {
		RespondError(w, http.StatusNotFound, "not_found", "job not found")
		return
	}

	if !s.authenticateForTenant(w, r, j.TenantID) {
		return
	}

	Respond(w, http.StatusOK, j)
}

func (s *Server) handleZipJob(w http.ResponseWriter, r *http.Request) {
	queryID := chi.URLParam(r, "query_id")

	j, err := s.jobs.Get(r.Context(), queryID)
	if err != nil {
		RespondError(w, http.StatusNotFound, "not_found", "job not found")
		return
	}

	if !s.authenticateForTenant(w, r, j.TenantID) {
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+queryID+`.zip"`)
	if err := s.artifacts.ZipJob(w, j.TenantID, queryID); err != nil {
		s.logger.Error("zipping job", "query_id", queryID, "error", err)
	}
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := parseTenantIDParam(w, r)
	if !ok {
		return
	}

	params, err := ParseOffsetParams(r)
	if err != nil {
		RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	filter := job.Filter{Status: job.Status(r.URL.Query().Get("status"))}

	jobs, err := s.jobs.List(r.Context(), tenantID, filter, params.PageSize, params.Offset)
	if err != nil {
		s.logger.Error("listing jobs", "tenant_id", tenantID, "error", err)
		RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list jobs")
		return
	}

	total, err := s.jobs.Count(r.Context(), tenantID, filter)
	if err != nil {
		s.logger.Error("counting jobs", "tenant_id", tenantID, "error", err)
		RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list jobs")
		return
	}

	Respond(w, http.StatusOK, NewOffsetPage(jobs, params, total))
}

// authenticateForTenant checks the request's bearer token against
// tenantID, writing a 401 response and returning false on failure.
func (s *Server) authenticateForTenant(w http.ResponseWriter, r *http.Request, tenantID int64) bool {
	token, ok := auth.BearerToken(r)
	if !ok {
		RespondError(w, http.StatusUnauthorized, "unauthorized", "missing or malformed Authorization header")
		return false
	}
	if _, err := auth.Authenticate(r.Context(), s.tenants, s.adminSecret, tenantID, token); err != nil {
		RespondError(w, http.StatusUnauthorized, "unauthorized", "invalid bearer token")
		return false
	}
	return true
}

func parseTenantIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "tenant_id"), 10, 64)
	if err != nil {
		RespondError(w, http.StatusBadRequest, "invalid_tenant_id", "tenant_id must be an integer")
		return 0, false
	}
	return id, true
}
