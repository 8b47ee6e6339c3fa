package httpserver

import (
	"net/http"
	"time"

	"github.com/harvestpipe/engine/pkg/tenant"
)

// scheduleUpdateRequest is the PUT /schedule body.
type scheduleUpdateRequest struct {
	Enabled          bool `json:"enabled"`
	FrequencyMinutes int  `json:"frequency_minutes" validate:"required,min=1"`
}

func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := parseTenantIDParam(w, r)
	if !ok {
		return
	}

	t, err := s.tenants.Get(r.Context(), tenantID)
	if err != nil {
		RespondError(w, http.StatusNotFound, "not_found", "tenant not found")
		return
	}

	Respond(w, http.StatusOK, t.Schedule)
}

func (s *Server) handleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := parseTenantIDParam(w, r)
	if !ok {
		return
	}

	var req scheduleUpdateRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}

	sched := tenant.Schedule{Enabled: req.Enabled, FrequencyMinutes: req.FrequencyMinutes}
	if err := s.tenants.SetSchedule(r.Context(), tenantID, sched); err != nil {
		s.logger.Error("updating schedule", "tenant_id", tenantID, "error", err)
		RespondError(w, http.StatusInternalServerError, "internal_error", "failed to update schedule")
		return
	}

	t, err := s.tenants.Get(r.Context(), tenantID)
	if err != nil {
		s.logger.Error("reloading tenant after schedule update", "tenant_id", tenantID, "error", err)
		RespondError(w, http.StatusInternalServerError, "internal_error", "failed to update schedule")
		return
	}
	s.scheduler.Register(t, time.Now())

	Respond(w, http.StatusOK, t.Schedule)
}

func (s *Server) handlePauseSchedule(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := parseTenantIDParam(w, r)
	if !ok {
		return
	}

	t, err := s.tenants.Get(r.Context(), tenantID)
	if err != nil {
		RespondError(w, http.StatusNotFound, "not_found", "tenant not found")
		return
	}

	sched := tenant.Schedule{Enabled: false, FrequencyMinutes: t.Schedule.FrequencyMinutes}
	if err := s.tenants.SetSchedule(r.Context(), tenantID, sched); err != nil {
		s.logger.Error("pausing schedule", "tenant_id", tenantID, "error", err)
		RespondError(w, http.StatusInternalServerError, "internal_error", "failed to pause schedule")
		return
	}
	s.scheduler.Pause(tenantID)

	Respond(w, http.StatusOK, sched)
}

func (s *Server) handleResumeSchedule(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := parseTenantIDParam(w, r)
	if !ok {
		return
	}

	t, err := s.tenants.Get(r.Context(), tenantID)
	if err != nil {
		RespondError(w, http.StatusNotFound, "not_found", "tenant not found")
		return
	}

	sched := tenant.Schedule{Enabled: true, FrequencyMinutes: t.Schedule.FrequencyMinutes}
	if err := s.tenants.SetSchedule(r.Context(), tenantID, sched); err != nil {
		s.logger.Error("resuming schedule", "tenant_id", tenantID, "error", err)
		RespondError(w, http.StatusInternalServerError, "internal_error", "failed to resume schedule")
		return
	}
	s.scheduler.Resume(tenantID, time.Now())

	Respond(w, http.StatusOK, sched)
}
