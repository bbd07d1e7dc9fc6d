package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/thoomar/attendance-timeoff-sub000/internal/application"
	"github.com/thoomar/attendance-timeoff-sub000/internal/domain/model"
	"github.com/thoomar/attendance-timeoff-sub000/internal/domain/port/driven"
)

// stateTTL bounds how long a consent flow may sit between the redirect to the
// provider and the callback.
const stateTTL = 10 * time.Minute

// maxPendingStates bounds the pending-state map so repeated connect hits that
// never come back through the callback cannot grow it without limit.
const maxPendingStates = 1000

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	tokens  *application.TokenService
	timeoff *application.TimeOffService
	logger  *slog.Logger

	// pendingStates tracks issued anti-CSRF state values until the provider
	// redirects back. Single-process deployment; no session layer.
	mu            sync.Mutex
	pendingStates map[string]pendingState
}

type pendingState struct {
	appUserID string
	issuedAt  time.Time
}

// NewHandler creates a Handler with all required dependencies. tokens may be
// nil when the CRM integration is not configured; its endpoints then answer
// 503.
func NewHandler(tokens *application.TokenService, timeoff *application.TimeOffService, logger *slog.Logger) *Handler {
	return &Handler{
		tokens:        tokens,
		timeoff:       timeoff,
		logger:        logger,
		pendingStates: make(map[string]pendingState),
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", h.Health)

	mux.HandleFunc("GET /api/v1/integrations/crm/connect", h.ConnectCRM)
	mux.HandleFunc("GET /api/v1/integrations/crm/callback", h.CRMCallback)
	mux.HandleFunc("GET /api/v1/integrations/crm/status", h.CRMStatus)
	mux.HandleFunc("DELETE /api/v1/integrations/crm/connection", h.DisconnectCRM)

	mux.HandleFunc("POST /api/v1/timeoff", h.SubmitTimeOff)
	mux.HandleFunc("GET /api/v1/timeoff", h.ListTimeOff)
	mux.HandleFunc("POST /api/v1/timeoff/{id}/approve", h.ApproveTimeOff)
	mux.HandleFunc("POST /api/v1/timeoff/{id}/reject", h.RejectTimeOff)
	mux.HandleFunc("POST /api/v1/timeoff/{id}/cancel", h.CancelTimeOff)

	return ApplyMiddleware(mux, logger)
}

// Health reports service liveness.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// ConnectCRM starts the consent flow: issue a state value bound to the user
// and redirect the browser to the provider's authorize endpoint.
func (h *Handler) ConnectCRM(w http.ResponseWriter, r *http.Request) {
	if h.tokens == nil {
		writeError(w, http.StatusServiceUnavailable, "crm integration not configured")
		return
	}

	appUserID := r.URL.Query().Get("user")
	if appUserID == "" {
		writeError(w, http.StatusBadRequest, "user query parameter is required")
		return
	}

	http.Redirect(w, r, h.tokens.AuthorizeURL(h.issueState(appUserID)), http.StatusFound)
}

// CRMCallback completes the consent flow with the authorization code the
// provider redirected back with. Any failure leaves no partial state: the
// state value is consumed, and exchange/identity errors mean nothing was
// persisted.
func (h *Handler) CRMCallback(w http.ResponseWriter, r *http.Request) {
	if h.tokens == nil {
		writeError(w, http.StatusServiceUnavailable, "crm integration not configured")
		return
	}

	q := r.URL.Query()
	if errCode := q.Get("error"); errCode != "" {
		writeError(w, http.StatusBadGateway, "provider denied authorization: "+errCode)
		return
	}

	state := q.Get("state")
	code := q.Get("code")
	if state == "" || code == "" {
		writeError(w, http.StatusBadRequest, "state and code query parameters are required")
		return
	}

	appUserID, ok := h.consumeState(state)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown or expired state")
		return
	}

	cred, err := h.tokens.Connect(r.Context(), appUserID, code)
	if err != nil {
		h.logger.Error("crm connect failed", "app_user", appUserID, "error", err)
		if driven.IsProviderError(err) {
			writeError(w, http.StatusBadGateway, "provider rejected the authorization")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, toConnectionStatus(cred))
}

// CRMStatus reports whether a user has an active CRM connection.
func (h *Handler) CRMStatus(w http.ResponseWriter, r *http.Request) {
	if h.tokens == nil {
		writeError(w, http.StatusServiceUnavailable, "crm integration not configured")
		return
	}

	appUserID := r.URL.Query().Get("user")
	if appUserID == "" {
		writeError(w, http.StatusBadRequest, "user query parameter is required")
		return
	}

	cred, err := h.tokens.Connection(r.Context(), appUserID)
	if err != nil {
		h.logger.Error("crm status lookup failed", "app_user", appUserID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, toConnectionStatus(cred))
}

// DisconnectCRM revokes a user's CRM connection.
func (h *Handler) DisconnectCRM(w http.ResponseWriter, r *http.Request) {
	if h.tokens == nil {
		writeError(w, http.StatusServiceUnavailable, "crm integration not configured")
		return
	}

	appUserID := r.URL.Query().Get("user")
	if appUserID == "" {
		writeError(w, http.StatusBadRequest, "user query parameter is required")
		return
	}

	err := h.tokens.Disconnect(r.Context(), appUserID)
	if errors.Is(err, application.ErrNoCredential) {
		writeError(w, http.StatusNotFound, "no active crm connection")
		return
	}
	if err != nil {
		h.logger.Error("crm disconnect failed", "app_user", appUserID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SubmitTimeOff creates a new pending time-off request.
func (h *Handler) SubmitTimeOff(w http.ResponseWriter, r *http.Request) {
	var body SubmitTimeOffRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	start, err := time.Parse("2006-01-02", body.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "start_date must be YYYY-MM-DD")
		return
	}
	end, err := time.Parse("2006-01-02", body.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "end_date must be YYYY-MM-DD")
		return
	}

	req, err := h.timeoff.Submit(r.Context(), body.EmployeeID, start, end, model.TimeOffType(body.Type), body.Note)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, toTimeOffResponse(*req))
}

// ListTimeOff lists requests filtered by employee or status.
func (h *Handler) ListTimeOff(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var (
		reqs []model.TimeOffRequest
		err  error
	)
	switch {
	case q.Get("employee") != "":
		reqs, err = h.timeoff.ListByEmployee(r.Context(), q.Get("employee"))
	case q.Get("status") != "":
		reqs, err = h.timeoff.ListByStatus(r.Context(), model.TimeOffStatus(q.Get("status")))
	default:
		reqs, err = h.timeoff.ListByStatus(r.Context(), model.TimeOffPending)
	}
	if err != nil {
		h.logger.Error("list time-off failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	out := make([]TimeOffResponse, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, toTimeOffResponse(req))
	}
	writeJSON(w, http.StatusOK, out)
}

// ApproveTimeOff approves a pending request.
func (h *Handler) ApproveTimeOff(w http.ResponseWriter, r *http.Request) {
	h.decideTimeOff(w, r, h.timeoff.Approve)
}

// RejectTimeOff rejects a pending request.
func (h *Handler) RejectTimeOff(w http.ResponseWriter, r *http.Request) {
	h.decideTimeOff(w, r, h.timeoff.Reject)
}

// CancelTimeOff lets an employee withdraw their own pending request.
func (h *Handler) CancelTimeOff(w http.ResponseWriter, r *http.Request) {
	var body CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req, err := h.timeoff.Cancel(r.Context(), r.PathValue("id"), body.EmployeeID)
	if err != nil {
		h.writeTimeOffError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTimeOffResponse(*req))
}

func (h *Handler) decideTimeOff(
	w http.ResponseWriter,
	r *http.Request,
	decide func(ctx context.Context, id, approverID, note string) (*model.TimeOffRequest, error),
) {
	var body DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req, err := decide(r.Context(), r.PathValue("id"), body.ApproverID, body.DecisionNote)
	if err != nil {
		h.writeTimeOffError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTimeOffResponse(*req))
}

// writeTimeOffError maps workflow errors to HTTP statuses.
func (h *Handler) writeTimeOffError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, application.ErrRequestNotFound):
		writeError(w, http.StatusNotFound, "time-off request not found")
	case errors.Is(err, application.ErrNotPending):
		writeError(w, http.StatusConflict, "time-off request is not pending")
	case errors.Is(err, application.ErrNotOwner):
		writeError(w, http.StatusForbidden, "not the owner of this request")
	default:
		h.logger.Error("time-off operation failed", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

// issueState mints a state value bound to the user. Expired entries are
// evicted first; past maxPendingStates the oldest pending flow is dropped,
// so an abandoned-connect burst displaces stale flows instead of growing
// the map.
func (h *Handler) issueState(appUserID string) string {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	h.evictExpiredLocked(now)

	if len(h.pendingStates) >= maxPendingStates {
		var oldest string
		var oldestAt time.Time
		for s, p := range h.pendingStates {
			if oldest == "" || p.issuedAt.Before(oldestAt) {
				oldest, oldestAt = s, p.issuedAt
			}
		}
		delete(h.pendingStates, oldest)
	}

	state := uuid.NewString()
	h.pendingStates[state] = pendingState{appUserID: appUserID, issuedAt: now}
	return state
}

// consumeState validates and removes a pending state value.
func (h *Handler) consumeState(state string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.evictExpiredLocked(time.Now())

	p, ok := h.pendingStates[state]
	if !ok {
		return "", false
	}
	delete(h.pendingStates, state)
	return p.appUserID, true
}

func (h *Handler) evictExpiredLocked(now time.Time) {
	for s, p := range h.pendingStates {
		if now.Sub(p.issuedAt) > stateTTL {
			delete(h.pendingStates, s)
		}
	}
}

func toConnectionStatus(cred *model.Credential) ConnectionStatusResponse {
	if cred == nil {
		return ConnectionStatusResponse{Connected: false}
	}
	return ConnectionStatusResponse{
		Connected:         true,
		ExternalAccountID: cred.ExternalAccountID,
		APIDomain:         cred.APIDomain,
		Scope:             cred.Scope,
		ExpiresAt:         cred.ExpiresAt.UTC().Format(time.RFC3339),
	}
}
