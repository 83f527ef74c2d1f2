package attendance

import (
	"strings"
	"time"
)

type Status string

const (
	StatusPresent Status = "PRESENT"
	StatusAbsent  Status = "ABSENT"
)

func ParseStatus(value string) (Status, error) {
	switch Status(strings.ToUpper(strings.TrimSpace(value))) {
	case StatusPresent:
		return StatusPresent, nil
	case StatusAbsent:
		return StatusAbsent, nil
	default:
		return "", newError(KindInvalid, CodeInvalidStatus)
	}
}

type EventStatus string

const (
	EventDraft     EventStatus = "DRAFT"
	EventPending   EventStatus = "PENDING"
	EventApproved  EventStatus = "APPROVED"
	EventRejected  EventStatus = "REJECTED"
	EventCompleted EventStatus = "COMPLETED"
)

type Event struct {
	ID       int64
	Name     string
	Status   EventStatus
	ClubID   *int64
	StartsAt time.Time
	EndsAt   *time.Time
}

// AcceptsAttendance reports whether sessions may be opened for the event.
func (e Event) AcceptsAttendance() bool {
	return e.Status == EventApproved || e.Status == EventCompleted
}

type Student struct {
	ID         int64
	RollNo     string
	FirstName  string
	LastName   string
	Department string
}

func (s Student) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

// EventAccess describes how a user relates to an event.
type EventAccess struct {
	Organizer   bool
	Coordinator bool
	Advisor     bool
}

func (a EventAccess) Any() bool {
	return a.Organizer || a.Coordinator || a.Advisor
}

type Club struct {
	ID        int64
	Name      string
	AdvisorID *int64
}

type Session struct {
	ID                int64
	EventID           int64
	Label             string
	CreatedBy         int64
	CreatedAt         time.Time
	OpenAt            *time.Time
	CloseAt           *time.Time
	Locked            bool
	SubmittedBy       *int64
	SubmittedAt       *time.Time
	AttendanceCode    string
	OverdueNotifiedAt *time.Time
}

type Record struct {
	ID        int64
	SessionID *int64
	StudentID int64
	Status    Status
	RefCode   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type CreateSessionParams struct {
	EventID        int64
	Label          string
	CreatedBy      int64
	CreatedAt      time.Time
	OpenAt         *time.Time
	CloseAt        *time.Time
	AttendanceCode string
}

type CreateRecordParams struct {
	SessionID int64
	StudentID int64
	Status    Status
	RefCode   string
	CreatedAt time.Time
}

// Verification is the public view of a record looked up by reference code.
type Verification struct {
	RefCode      string    `json:"ref_code"`
	EventName    string    `json:"event_name"`
	SessionLabel string    `json:"session_label"`
	RollNo       string    `json:"roll_no"`
	StudentName  string    `json:"student_name"`
	Status       Status    `json:"status"`
	RecordedAt   time.Time `json:"recorded_at"`
}

type ExportRow struct {
	StudentID    int64
	RollNo       string
	Name         string
	Department   string
	Status       Status
	RecordedAt   time.Time
	SessionID    int64
	SessionLabel string
	RefCode      string
}
