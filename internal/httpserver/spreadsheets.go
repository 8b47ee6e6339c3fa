package httpserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/harvestpipe/engine/pkg/job"
)

// spreadsheetKind names one of the five artifacts a tenant can ask about.
type spreadsheetKind string

const (
	kindLatestList         spreadsheetKind = "latest_list"
	kindLatestAppointments spreadsheetKind = "latest_appointments"
	kindJobList            spreadsheetKind = "job_list"
	kindJobFiltered        spreadsheetKind = "job_filtered"
	kindJobAppointments    spreadsheetKind = "job_appointments"
)

// spreadsheetDescriptor is the {filename, size, download_url} shape
// returned for a kind before the caller fetches the actual bytes.
type spreadsheetDescriptor struct {
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
	DownloadURL string `json:"download_url"`
}

// spreadsheetError carries the HTTP status a resolveSpreadsheetPath failure
// should be reported with, so callers don't have to re-derive it from the
// error string.
type spreadsheetError struct {
	status  int
	code    string
	message string
}

func (e *spreadsheetError) Error() string { return e.message }

// resolveSpreadsheetPath maps a (tenant, kind, query_id) triple to an
// on-disk path. job_* kinds require query_id and must own it: the job is
// looked up first and its tenant_id checked against the authenticated
// tenant, the same way handleGetJob/handleZipJob resolve ownership before
// touching the filesystem, so a query_id for a different tenant (or one
// with path-traversal characters) never reaches artifact.Store.
func (s *Server) resolveSpreadsheetPath(ctx context.Context, tenantID int64, kind spreadsheetKind, queryID string) (string, error) {
	switch kind {
	case kindLatestList:
		return s.artifacts.MasterContainersPath(tenantID), nil
	case kindLatestAppointments:
		return s.artifacts.MasterAppointmentsPath(tenantID), nil
	case kindJobList:
		if _, err := s.jobForTenant(ctx, tenantID, queryID); err != nil {
			return "", err
		}
		return s.artifacts.AllContainersPath(tenantID, queryID), nil
	case kindJobFiltered:
		if _, err := s.jobForTenant(ctx, tenantID, queryID); err != nil {
			return "", err
		}
		return s.artifacts.FilteredContainersPath(tenantID, queryID), nil
	case kindJobAppointments:
		if _, err := s.jobForTenant(ctx, tenantID, queryID); err != nil {
			return "", err
		}
		return s.artifacts.AllAppointmentsPath(tenantID, queryID), nil
	default:
		return "", &spreadsheetError{status: http.StatusBadRequest, code: "bad_request", message: fmt.Sprintf("unknown kind %q", kind)}
	}
}

// jobForTenant fetches queryID and verifies it belongs to tenantID. It
// returns the same 404 regardless of whether the job doesn't exist or
// belongs to a different tenant, so the response never discloses which
// query_ids exist for other tenants.
func (s *Server) jobForTenant(ctx context.Context, tenantID int64, queryID string) (*job.Job, error) {
	if queryID == "" {
		return nil, &spreadsheetError{status: http.StatusBadRequest, code: "bad_request", message: "query_id is required for this kind"}
	}
	j, err := s.jobs.Get(ctx, queryID)
	if err != nil || j.TenantID != tenantID {
		return nil, &spreadsheetError{status: http.StatusNotFound, code: "not_found", message: "job not found"}
	}
	return j, nil
}

// respondSpreadsheetError writes the status/code carried by a
// resolveSpreadsheetPath error, falling back to 400 for anything else.
func respondSpreadsheetError(w http.ResponseWriter, err error) {
	var se *spreadsheetError
	if errors.As(err, &se) {
		RespondError(w, se.status, se.code, se.message)
		return
	}
	RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
}

func (s *Server) handleSpreadsheetDescriptor(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := parseTenantIDParam(w, r)
	if !ok {
		return
	}

	kind := spreadsheetKind(r.URL.Query().Get("kind"))
	queryID := r.URL.Query().Get("query_id")

	path, err := s.resolveSpreadsheetPath(r.Context(), tenantID, kind, queryID)
	if err != nil {
		respondSpreadsheetError(w, err)
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		RespondError(w, http.StatusNotFound, "not_found", "spreadsheet not found")
		return
	}

	downloadURL := fmt.Sprintf("/api/v1/tenants/%d/spreadsheets/download?kind=%s", tenantID, kind)
	if queryID != "" {
		downloadURL += "&query_id=" + queryID
	}

	Respond(w, http.StatusOK, spreadsheetDescriptor{
		Filename:    filepath.Base(path),
		Size:        info.Size(),
		DownloadURL: downloadURL,
	})
}

func (s *Server) handleSpreadsheetDownload(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := parseTenantIDParam(w, r)
	if !ok {
		return
	}

	kind := spreadsheetKind(r.URL.Query().Get("kind"))
	queryID := r.URL.Query().Get("query_id")

	path, err := s.resolveSpreadsheetPath(r.Context(), tenantID, kind, queryID)
	if err != nil {
		respondSpreadsheetError(w, err)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		RespondError(w, http.StatusNotFound, "not_found", "spreadsheet not found")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(path)+`"`)
	if _, err := io.Copy(w, f); err != nil {
		s.logger.Error("streaming spreadsheet", "path", path, "error", err)
	}
}
