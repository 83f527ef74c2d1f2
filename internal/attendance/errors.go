package attendance

import "errors"

type Kind string

const (
	KindInvalid   Kind = "invalid"
	KindNotFound  Kind = "not_found"
	KindForbidden Kind = "forbidden"
	KindState     Kind = "state"
	KindConflict  Kind = "conflict"
)

const (
	CodeInvalidStatus        = "invalid_status"
	CodeInvalidMinutes       = "invalid_minutes"
	CodeInvalidWindow        = "invalid_window"
	CodeInvalidLabel         = "invalid_label"
	CodeInvalidID            = "invalid_id"
	CodeEventNotFound        = "event_not_found"
	CodeSessionNotFound      = "session_not_found"
	CodeStudentNotFound      = "student_not_found"
	CodeClubNotFound         = "club_not_found"
	CodeUserNotFound         = "user_not_found"
	CodeReferenceNotFound    = "reference_not_found"
	CodeNoActiveSession      = "no_active_session"
	CodeForbidden            = "forbidden"
	CodeEventNotApproved     = "event_not_approved"
	CodeSessionLocked        = "session_locked"
	CodeSessionNotOpen       = "session_not_open"
	CodeStudentNotRegistered = "student_not_registered"
	CodeWindowClosed         = "attendance_window_closed"
	CodeAlreadyCoordinator   = "already_coordinator"
	CodeNotCoordinator       = "not_coordinator"
)

// Error is a handled, caller-visible failure. Anything else returned by the
// service is an infrastructure fault.
type Error struct {
	Kind Kind
	Code string
}

func (e *Error) Error() string {
	return e.Code
}

func newError(kind Kind, code string) *Error {
	return &Error{Kind: kind, Code: code}
}

func AsError(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// Storage sentinels, returned (possibly wrapped) by Store implementations.
var (
	ErrNotFound        = errors.New("not found")
	ErrUniqueViolation = errors.New("unique violation")
)

var ErrRefCodeExhausted = errors.New("reference code candidates exhausted")
