package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/thoomar/attendance-timeoff-sub000/internal/domain/model"
	"github.com/thoomar/attendance-timeoff-sub000/internal/domain/port/driven"
)

// Validation and transition errors surfaced to the HTTP layer.
var (
	ErrRequestNotFound = errors.New("time-off request not found")
	ErrNotPending      = errors.New("time-off request is not pending")
	ErrNotOwner        = errors.New("time-off request belongs to another employee")
)

// TimeOffService orchestrates the request/approval workflow. Notifications
// and the CRM calendar push are best-effort side effects: their failures are
// logged and never fail the triggering operation.
type TimeOffService struct {
	store         driven.TimeOffStore
	notifier      driven.Notifier
	provider      driven.ProviderClient
	tokens        *TokenService
	approverEmail string
	now           func() time.Time
}

// NewTimeOffService creates a TimeOffService. notifier may be nil when email
// is not configured; tokens and provider may be nil when the CRM integration
// is not configured. approverEmail receives submission notices.
func NewTimeOffService(
	store driven.TimeOffStore,
	notifier driven.Notifier,
	provider driven.ProviderClient,
	tokens *TokenService,
	approverEmail string,
) *TimeOffService {
	return &TimeOffService{
		store:         store,
		notifier:      notifier,
		provider:      provider,
		tokens:        tokens,
		approverEmail: approverEmail,
		now:           time.Now,
	}
}

// Submit validates and stores a new pending request, then notifies the
// approver.
func (s *TimeOffService) Submit(ctx context.Context, employeeID string, start, end time.Time, reqType model.TimeOffType, note string) (*model.TimeOffRequest, error) {
	if employeeID == "" {
		return nil, errors.New("employee id is required")
	}
	if !model.ValidTimeOffType(reqType) {
		return nil, fmt.Errorf("unknown time-off type %q", reqType)
	}
	if end.Before(start) {
		return nil, errors.New("end date is before start date")
	}
	now := s.now()
	if start.Before(now.Truncate(24 * time.Hour)) {
		return nil, errors.New("start date is in the past")
	}

	req := model.TimeOffRequest{
		ID:         uuid.NewString(),
		EmployeeID: employeeID,
		StartDate:  start,
		EndDate:    end,
		Type:       reqType,
		Note:       note,
		Status:     model.TimeOffPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.store.Create(ctx, req); err != nil {
		return nil, err
	}

	s.notify(ctx, s.approverEmail,
		fmt.Sprintf("Time-off request from %s", employeeID),
		fmt.Sprintf("%s requested %d day(s) of %s from %s to %s.\n\n%s",
			employeeID, req.Days(), req.Type,
			req.StartDate.Format("2006-01-02"), req.EndDate.Format("2006-01-02"), req.Note),
	)

	slog.Info("time-off request submitted",
		"request", req.ID,
		"employee", employeeID,
		"days", req.Days(),
	)

	return &req, nil
}

// Approve transitions a pending request to approved, notifies the employee,
// and pushes the absence to the employee's CRM calendar when they have an
// active connection.
func (s *TimeOffService) Approve(ctx context.Context, id, approverID, decisionNote string) (*model.TimeOffRequest, error) {
	req, err := s.decide(ctx, id, approverID, decisionNote, model.TimeOffApproved)
	if err != nil {
		return nil, err
	}

	s.notify(ctx, req.EmployeeID,
		"Time-off request approved",
		fmt.Sprintf("Your %s request for %s to %s was approved by %s.\n\n%s",
			req.Type, req.StartDate.Format("2006-01-02"), req.EndDate.Format("2006-01-02"),
			approverID, req.DecisionNote),
	)

	s.pushAbsence(ctx, *req)

	return req, nil
}

// Reject transitions a pending request to rejected and notifies the employee.
func (s *TimeOffService) Reject(ctx context.Context, id, approverID, decisionNote string) (*model.TimeOffRequest, error) {
	req, err := s.decide(ctx, id, approverID, decisionNote, model.TimeOffRejected)
	if err != nil {
		return nil, err
	}

	s.notify(ctx, req.EmployeeID,
		"Time-off request rejected",
		fmt.Sprintf("Your %s request for %s to %s was rejected by %s.\n\n%s",
			req.Type, req.StartDate.Format("2006-01-02"), req.EndDate.Format("2006-01-02"),
			approverID, req.DecisionNote),
	)

	return req, nil
}

// Cancel lets the owning employee withdraw a still-pending request.
func (s *TimeOffService) Cancel(ctx context.Context, id, employeeID string) (*model.TimeOffRequest, error) {
	req, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, ErrRequestNotFound
	}
	if req.EmployeeID != employeeID {
		return nil, ErrNotOwner
	}
	if req.Status != model.TimeOffPending {
		return nil, ErrNotPending
	}

	req.Status = model.TimeOffCanceled
	req.UpdatedAt = s.now()
	if err := s.store.Update(ctx, *req); err != nil {
		return nil, err
	}

	slog.Info("time-off request canceled", "request", id, "employee", employeeID)

	return req, nil
}

// ListByEmployee returns all requests for an employee, newest first.
func (s *TimeOffService) ListByEmployee(ctx context.Context, employeeID string) ([]model.TimeOffRequest, error) {
	return s.store.ListByEmployee(ctx, employeeID)
}

// ListByStatus returns all requests in the given status, newest first.
func (s *TimeOffService) ListByStatus(ctx context.Context, status model.TimeOffStatus) ([]model.TimeOffRequest, error) {
	return s.store.ListByStatus(ctx, status)
}

// decide applies an approver decision to a pending request.
func (s *TimeOffService) decide(ctx context.Context, id, approverID, decisionNote string, status model.TimeOffStatus) (*model.TimeOffRequest, error) {
	if approverID == "" {
		return nil, errors.New("approver id is required")
	}

	req, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, ErrRequestNotFound
	}
	if req.Status != model.TimeOffPending {
		return nil, ErrNotPending
	}

	req.Status = status
	req.ApproverID = approverID
	req.DecisionNote = decisionNote
	req.UpdatedAt = s.now()

	if err := s.store.Update(ctx, *req); err != nil {
		return nil, err
	}

	slog.Info("time-off request decided",
		"request", id,
		"status", string(status),
		"approver", approverID,
	)

	return req, nil
}

// notify sends a best-effort email. Missing notifier or recipient skips
// silently; delivery failures are logged.
func (s *TimeOffService) notify(ctx context.Context, to, subject, body string) {
	if s.notifier == nil || to == "" {
		return
	}
	if err := s.notifier.Send(ctx, to, subject, body); err != nil {
		slog.Error("notification failed", "to", to, "subject", subject, "error", err)
	}
}

// pushAbsence mirrors an approved request onto the employee's CRM calendar.
// Employees without an active CRM connection are skipped; push failures are
// logged and the approval stands.
func (s *TimeOffService) pushAbsence(ctx context.Context, req model.TimeOffRequest) {
	if s.tokens == nil || s.provider == nil {
		return
	}

	token, err := s.tokens.ValidAccessToken(ctx, req.EmployeeID)
	if errors.Is(err, ErrNoCredential) {
		return
	}
	if err != nil {
		slog.Error("crm token unavailable for absence push", "request", req.ID, "employee", req.EmployeeID, "error", err)
		return
	}

	cred, err := s.tokens.Connection(ctx, req.EmployeeID)
	if err != nil || cred == nil {
		slog.Error("crm connection lookup failed for absence push", "request", req.ID, "employee", req.EmployeeID, "error", err)
		return
	}

	if err := s.provider.CreateAbsence(ctx, token, cred.APIDomain, req); err != nil {
		slog.Error("crm absence push failed", "request", req.ID, "employee", req.EmployeeID, "error", err)
		return
	}

	slog.Info("absence pushed to crm", "request", req.ID, "employee", req.EmployeeID)
}
