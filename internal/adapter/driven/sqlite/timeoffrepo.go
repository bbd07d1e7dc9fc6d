package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/thoomar/attendance-timeoff-sub000/internal/domain/model"
	"github.com/thoomar/attendance-timeoff-sub000/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.TimeOffStore = (*TimeOffRepo)(nil)

// TimeOffRepo is the SQLite implementation of the TimeOffStore port interface.
type TimeOffRepo struct {
	db *DB
}

// NewTimeOffRepo creates a new TimeOffRepo backed by the given DB.
func NewTimeOffRepo(db *DB) *TimeOffRepo {
	return &TimeOffRepo{db: db}
}

// Create inserts a new time-off request.
func (r *TimeOffRepo) Create(ctx context.Context, req model.TimeOffRequest) error {
	const query = `
		INSERT INTO time_off_requests (
			id, employee_id, start_date, end_date, type, note,
			status, approver_id, decision_note, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Writer.ExecContext(ctx, query,
		req.ID, req.EmployeeID,
		formatTime(req.StartDate), formatTime(req.EndDate),
		string(req.Type), req.Note,
		string(req.Status), req.ApproverID, req.DecisionNote,
		formatTime(req.CreatedAt), formatTime(req.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("create time-off request %s: %w", req.ID, err)
	}

	return nil
}

// GetByID retrieves a single request. Returns nil, nil if it does not exist.
func (r *TimeOffRepo) GetByID(ctx context.Context, id string) (*model.TimeOffRequest, error) {
	const query = `
		SELECT id, employee_id, start_date, end_date, type, note,
		       status, approver_id, decision_note, created_at, updated_at
		FROM time_off_requests
		WHERE id = ?
	`

	req, err := scanTimeOffRequest(r.db.Reader.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get time-off request %s: %w", id, err)
	}

	return req, nil
}

// Update replaces the mutable fields of an existing request.
func (r *TimeOffRepo) Update(ctx context.Context, req model.TimeOffRequest) error {
	const query = `
		UPDATE time_off_requests
		SET status = ?, approver_id = ?, decision_note = ?, updated_at = ?
		WHERE id = ?
	`

	res, err := r.db.Writer.ExecContext(ctx, query,
		string(req.Status), req.ApproverID, req.DecisionNote,
		formatTime(req.UpdatedAt), req.ID,
	)
	if err != nil {
		return fmt.Errorf("update time-off request %s: %w", req.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update time-off request %s: rows affected: %w", req.ID, err)
	}
	if affected == 0 {
		return fmt.Errorf("update time-off request %s: not found", req.ID)
	}

	return nil
}

// ListByEmployee returns all requests for an employee, newest first.
func (r *TimeOffRepo) ListByEmployee(ctx context.Context, employeeID string) ([]model.TimeOffRequest, error) {
	const query = `
		SELECT id, employee_id, start_date, end_date, type, note,
		       status, approver_id, decision_note, created_at, updated_at
		FROM time_off_requests
		WHERE employee_id = ?
		ORDER BY created_at DESC
	`

	return r.queryRequests(ctx, query, employeeID)
}

// ListByStatus returns all requests in the given status, newest first.
func (r *TimeOffRepo) ListByStatus(ctx context.Context, status model.TimeOffStatus) ([]model.TimeOffRequest, error) {
	const query = `
		SELECT id, employee_id, start_date, end_date, type, note,
		       status, approver_id, decision_note, created_at, updated_at
		FROM time_off_requests
		WHERE status = ?
		ORDER BY created_at DESC
	`

	return r.queryRequests(ctx, query, string(status))
}

func (r *TimeOffRepo) queryRequests(ctx context.Context, query string, args ...any) ([]model.TimeOffRequest, error) {
	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list time-off requests: %w", err)
	}
	defer rows.Close()

	var reqs []model.TimeOffRequest
	for rows.Next() {
		req, err := scanTimeOffRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan time-off request: %w", err)
		}
		reqs = append(reqs, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate time-off requests: %w", err)
	}

	if reqs == nil {
		reqs = []model.TimeOffRequest{}
	}

	return reqs, nil
}

func scanTimeOffRequest(s scanner) (*model.TimeOffRequest, error) {
	var req model.TimeOffRequest
	var reqType, status string
	var startDate, endDate, createdAt, updatedAt string

	if err := s.Scan(
		&req.ID, &req.EmployeeID, &startDate, &endDate, &reqType, &req.Note,
		&status, &req.ApproverID, &req.DecisionNote, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	req.Type = model.TimeOffType(reqType)
	req.Status = model.TimeOffStatus(status)

	for _, field := range []struct {
		dst *time.Time
		src string
	}{
		{&req.StartDate, startDate},
		{&req.EndDate, endDate},
		{&req.CreatedAt, createdAt},
		{&req.UpdatedAt, updatedAt},
	} {
		t, err := parseTime(field.src)
		if err != nil {
			return nil, err
		}
		*field.dst = t
	}

	return &req, nil
}
