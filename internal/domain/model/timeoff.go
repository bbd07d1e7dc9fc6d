package model

import "time"

// TimeOffStatus is the lifecycle state of a time-off request.
type TimeOffStatus string

// Time-off request statuses.
const (
	TimeOffPending  TimeOffStatus = "pending"
	TimeOffApproved TimeOffStatus = "approved"
	TimeOffRejected TimeOffStatus = "rejected"
	TimeOffCanceled TimeOffStatus = "canceled"
)

// TimeOffType categorizes a time-off request.
type TimeOffType string

// Time-off request types.
const (
	TimeOffVacation TimeOffType = "vacation"
	TimeOffSick     TimeOffType = "sick"
	TimeOffPersonal TimeOffType = "personal"
)

// ValidTimeOffType reports whether t is one of the known request types.
func ValidTimeOffType(t TimeOffType) bool {
	switch t {
	case TimeOffVacation, TimeOffSick, TimeOffPersonal:
		return true
	}
	return false
}

// TimeOffRequest is an employee's request for a date range of absence.
// StartDate and EndDate are inclusive calendar dates (midnight UTC).
// EmployeeID doubles as the employee's email address for notifications.
type TimeOffRequest struct {
	ID           string
	EmployeeID   string
	StartDate    time.Time
	EndDate      time.Time
	Type         TimeOffType
	Note         string
	Status       TimeOffStatus
	ApproverID   string
	DecisionNote string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Days returns the number of calendar days the request covers, inclusive.
func (r *TimeOffRequest) Days() int {
	return int(r.EndDate.Sub(r.StartDate).Hours()/24) + 1
}
