package httphandler

import (
	"encoding/json"
	"net/http"

	"github.com/thoomar/attendance-timeoff-sub000/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the health endpoint body.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// ConnectionStatusResponse describes a user's CRM connection.
type ConnectionStatusResponse struct {
	Connected         bool   `json:"connected"`
	ExternalAccountID string `json:"external_account_id,omitempty"`
	APIDomain         string `json:"api_domain,omitempty"`
	Scope             string `json:"scope,omitempty"`
	ExpiresAt         string `json:"expires_at,omitempty"`
}

// TimeOffResponse is the JSON representation of a time-off request.
type TimeOffResponse struct {
	ID           string `json:"id"`
	EmployeeID   string `json:"employee_id"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
	Type         string `json:"type"`
	Note         string `json:"note"`
	Status       string `json:"status"`
	ApproverID   string `json:"approver_id,omitempty"`
	DecisionNote string `json:"decision_note,omitempty"`
	Days         int    `json:"days"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

func toTimeOffResponse(req model.TimeOffRequest) TimeOffResponse {
	return TimeOffResponse{
		ID:           req.ID,
		EmployeeID:   req.EmployeeID,
		StartDate:    req.StartDate.UTC().Format("2006-01-02"),
		EndDate:      req.EndDate.UTC().Format("2006-01-02"),
		Type:         string(req.Type),
		Note:         req.Note,
		Status:       string(req.Status),
		ApproverID:   req.ApproverID,
		DecisionNote: req.DecisionNote,
		Days:         req.Days(),
		CreatedAt:    req.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		UpdatedAt:    req.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

// SubmitTimeOffRequest is the POST /api/v1/timeoff body.
type SubmitTimeOffRequest struct {
	EmployeeID string `json:"employee_id"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
	Type       string `json:"type"`
	Note       string `json:"note"`
}

// DecisionRequest is the approve/reject body.
type DecisionRequest struct {
	ApproverID   string `json:"approver_id"`
	DecisionNote string `json:"decision_note"`
}

// CancelRequest is the cancel body.
type CancelRequest struct {
	EmployeeID string `json:"employee_id"`
}
