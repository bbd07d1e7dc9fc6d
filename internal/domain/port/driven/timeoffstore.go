package driven

import (
	"context"

	"github.com/thoomar/attendance-timeoff-sub000/internal/domain/model"
)

// TimeOffStore defines the driven port for time-off request persistence.
type TimeOffStore interface {
	// Create inserts a new request. The caller assigns the id.
	Create(ctx context.Context, req model.TimeOffRequest) error

	// GetByID returns a single request. Returns (nil, nil) if it does not exist.
	GetByID(ctx context.Context, id string) (*model.TimeOffRequest, error)

	// Update replaces the mutable fields (status, approver, decision note,
	// updated-at) of an existing request.
	Update(ctx context.Context, req model.TimeOffRequest) error

	// ListByEmployee returns all requests for an employee, newest first.
	ListByEmployee(ctx context.Context, employeeID string) ([]model.TimeOffRequest, error)

	// ListByStatus returns all requests in the given status, newest first.
	ListByStatus(ctx context.Context, status model.TimeOffStatus) ([]model.TimeOffRequest, error)
}
