// Package upstream implements the Upstream Client (C1): a thin HTTP client
// over the upstream browser-automation backend, with typed error
// classification driving the pipeline's and session manager's retry and
// recovery decisions.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client calls the upstream browser-automation backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates an upstream Client with a uniform per-call timeout and
// TCP keep-alive enabled on the underlying transport.
func NewClient(baseURL string, timeout time.Duration) *Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout, Transport: transport},
	}
}

func (c *Client) url(path string) string {
	return c.baseURL + path
}

// doJSON performs a JSON request/response round trip and returns the
// classified upstream error on any non-2xx status or transport failure.
func (c *Client) doJSON(ctx context.Context, op, method, path string, session string, reqBody any, out any) *Error {
	var bodyReader io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return newError(op, Permanent, 0, fmt.Sprintf("marshaling request: %v", err))
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), bodyReader)
	if err != nil {
		return newError(op, Permanent, 0, fmt.Sprintf("building request: %v", err))
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if session != "" {
		req.Header.Set("X-Session-Id", session)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Any transport-level failure (timeout, refused, reset, DNS) is transient.
		return newError(op, Transient, 0, err.Error())
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return newError(op, Transient, resp.StatusCode, fmt.Sprintf("reading response: %v", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classify(op, resp.StatusCode, body)
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return newError(op, Permanent, resp.StatusCode, fmt.Sprintf("decoding response: %v", err))
		}
	}
	return nil
}

func classify(op string, statusCode int, body []byte) *Error {
	switch {
	case statusCode >= 500:
		return newError(op, Transient, statusCode, "server error")
	case statusCode == http.StatusBadRequest:
		if looksLikeSessionExpired(body) {
			return newError(op, SessionInvalid, statusCode, "session expired")
		}
		return newError(op, Permanent, statusCode, string(body))
	case statusCode == http.StatusUnauthorized:
		return newError(op, Permanent, statusCode, string(body))
	default:
		return newError(op, Permanent, statusCode, string(body))
	}
}

// upgradeIfAfterSuccess applies the spec's extra rule: a plain 400 from a
// list or probe call is treated as a session expiry when it follows a prior
// success in the run, even when the body doesn't say so explicitly.
func upgradeIfAfterSuccess(uerr *Error, afterSuccess bool) *Error {
	if afterSuccess && uerr.Class == Permanent && uerr.StatusCode == http.StatusBadRequest {
		uerr.Class = SessionInvalid
		uerr.Message = "session expired (400 after prior success)"
	}
	return uerr
}

func looksLikeSessionExpired(body []byte) bool {
	s := strings.ToLower(string(body))
	return strings.Contains(s, "session") &&
		(strings.Contains(s, "expired") || strings.Contains(s, "invalid") || strings.Contains(s, "not found"))
}

type listItemsResponse struct {
	DownloadURL string `json:"download_url"`
}

// ListItems returns the download URL for the current container listing.
// afterSuccess lets callers mark this call as occurring after a prior
// success elsewhere in the run, upgrading a bare 400 to SessionInvalid.
func (c *Client) ListItems(ctx context.Context, session string, afterSuccess bool) (string, error) {
	var out listItemsResponse
	if uerr := c.doJSON(ctx, "list_items", http.MethodGet, "/api/containers/list?session="+url.QueryEscape(session), session, nil, &out); uerr != nil {
		return "", upgradeIfAfterSuccess(uerr, afterSuccess)
	}
	return out.DownloadURL, nil
}

// ListAppointments returns the download URL for the current appointments
// listing. Same recovery policy and classification rules as ListItems.
func (c *Client) ListAppointments(ctx context.Context, session string, afterSuccess bool) (string, error) {
	var out listItemsResponse
	if uerr := c.doJSON(ctx, "list_appointments", http.MethodGet, "/api/appointments/list?session="+url.QueryEscape(session), session, nil, &out); uerr != nil {
		return "", upgradeIfAfterSuccess(uerr, afterSuccess)
	}
	return out.DownloadURL, nil
}

type bulkInfoRequest struct {
	ImportIDs []string `json:"import_ids"`
	ExportIDs []string `json:"export_ids"`
}

type bulkInfoResponse struct {
	Records []BulkInfoRecord `json:"records"`
}

// GetBulkInfo enriches a batch of import and export item ids in one call.
func (c *Client) GetBulkInfo(ctx context.Context, session string, importIDs, exportIDs []string) ([]BulkInfoRecord, error) {
	var out bulkInfoResponse
	req := bulkInfoRequest{ImportIDs: importIDs, ExportIDs: exportIDs}
	if uerr := c.doJSON(ctx, "get_bulk_info", http.MethodPost, "/api/containers/bulk-info", session, req, &out); uerr != nil {
		return nil, uerr
	}
	return out.Records, nil
}

type probeRequest struct {
	Kind            ProbeKind `json:"kind"`
	Terminal        string    `json:"terminal"`
	MoveType        string    `json:"move_type"`
	Trucking        string    `json:"trucking"`
	ItemIDOrBooking string    `json:"item_id_or_booking"`
	Plate           string    `json:"plate"`
	OwnChassis      bool      `json:"own_chassis"`
}

// ProbeAppointments checks appointment availability for a single item.
func (c *Client) ProbeAppointments(ctx context.Context, session string, params ProbeParams, afterSuccess bool) (*ProbeResult, error) {
	var out ProbeResult
	req := probeRequest{
		Kind:            params.Kind,
		Terminal:        params.Terminal,
		MoveType:        params.MoveType,
		Trucking:        params.Trucking,
		ItemIDOrBooking: params.ItemIDOrBooking,
		Plate:           params.Plate,
		OwnChassis:      params.OwnChassis,
	}
	if uerr := c.doJSON(ctx, "probe_appointments", http.MethodPost, "/api/appointments/probe", session, req, &out); uerr != nil {
		return nil, upgradeIfAfterSuccess(uerr, afterSuccess)
	}
	return &out, nil
}

type acquireSessionRequest struct {
	Username      string `json:"username"`
	Password      string `json:"password"`
	CaptchaAPIKey string `json:"captcha_api_key"`
}

// AcquireSession logs in with the tenant's credentials and returns a new
// session. A 401 response is classified AuthInvalid (never SessionInvalid),
// since there is no prior session to have invalidated.
func (c *Client) AcquireSession(ctx context.Context, username, password, captchaAPIKey string) (*SessionResult, error) {
	var out SessionResult
	req := acquireSessionRequest{Username: username, Password: password, CaptchaAPIKey: captchaAPIKey}
	if uerr := c.doJSON(ctx, "acquire_session", http.MethodPost, "/api/sessions/acquire", "", req, &out); uerr != nil {
		if uerr.StatusCode == http.StatusUnauthorized {
			uerr.Class = AuthInvalid
		}
		return nil, uerr
	}
	return &out, nil
}

type listActiveSessionsResponse struct {
	SessionIDs []string `json:"session_ids"`
}

// ListActiveSessions returns any sessions the upstream already considers
// live for the given username.
func (c *Client) ListActiveSessions(ctx context.Context, username string) ([]string, error) {
	var out listActiveSessionsResponse
	if uerr := c.doJSON(ctx, "list_active_sessions", http.MethodGet, "/api/sessions/active?username="+url.QueryEscape(username), "", nil, &out); uerr != nil {
		return nil, uerr
	}
	return out.SessionIDs, nil
}

// Download fetches raw bytes from a download URL returned by a list_* call.
// It sends no session header; the request carries only what downloadURL
// itself encodes.
func (c *Client) Download(ctx context.Context, downloadURL string) (*Downloaded, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, newError("download", Permanent, 0, fmt.Sprintf("building request: %v", err))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, newError("download", Transient, 0, err.Error())
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newError("download", Transient, resp.StatusCode, fmt.Sprintf("reading body: %v", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classify("download", resp.StatusCode, body)
	}

	return &Downloaded{Bytes: body, ContentType: resp.Header.Get("Content-Type")}, nil
}
