package attendance

import (
	"crypto/rand"
	"math/big"
	"time"
)

type State string

const (
	StatePendingOpen       State = "PENDING_OPEN"
	StateOpen              State = "OPEN"
	StateClosedUnsubmitted State = "CLOSED_UNSUBMITTED"
	StateLocked            State = "LOCKED"
)

const (
	MinExtendMinutes = 1
	MaxExtendMinutes = 24 * 60
)

func (s Session) IsOpen(now time.Time) bool {
	if s.Locked {
		return false
	}
	if s.OpenAt != nil && now.Before(*s.OpenAt) {
		return false
	}
	if s.CloseAt != nil && now.After(*s.CloseAt) {
		return false
	}
	return true
}

func (s Session) State(now time.Time) State {
	switch {
	case s.Locked:
		return StateLocked
	case s.OpenAt != nil && now.Before(*s.OpenAt):
		return StatePendingOpen
	case s.CloseAt != nil && now.After(*s.CloseAt):
		return StateClosedUnsubmitted
	default:
		return StateOpen
	}
}

// Submit returns the locked session. The receiver must currently be open.
func (s Session) Submit(actorID int64, now time.Time) (Session, error) {
	if s.Locked {
		return s, newError(KindState, CodeSessionLocked)
	}
	if !s.IsOpen(now) {
		return s, newError(KindState, CodeSessionNotOpen)
	}
	at := now
	s.Locked = true
	s.CloseAt = &at
	s.SubmittedBy = &actorID
	s.SubmittedAt = &at
	return s, nil
}

// Extend moves close_at to now+minutes. A closed, unsubmitted session opens again.
func (s Session) Extend(minutes int, now time.Time) (Session, error) {
	if minutes < MinExtendMinutes || minutes > MaxExtendMinutes {
		return s, newError(KindInvalid, CodeInvalidMinutes)
	}
	if s.Locked {
		return s, newError(KindState, CodeSessionLocked)
	}
	closeAt := now.Add(time.Duration(minutes) * time.Minute)
	s.CloseAt = &closeAt
	return s, nil
}

// ForceOpen makes an unlocked session open at now.
func (s Session) ForceOpen(now time.Time, fallback time.Duration) Session {
	if s.Locked {
		return s
	}
	if s.OpenAt == nil || now.Before(*s.OpenAt) {
		at := now
		s.OpenAt = &at
	}
	if s.CloseAt != nil && now.After(*s.CloseAt) {
		if fallback > 0 {
			closeAt := now.Add(fallback)
			s.CloseAt = &closeAt
		} else {
			s.CloseAt = nil
		}
	}
	return s
}

const (
	attendanceCodeLength   = 8
	attendanceCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// NewAttendanceCode returns a random session code without ambiguous characters.
func NewAttendanceCode() (string, error) {
	max := big.NewInt(int64(len(attendanceCodeAlphabet)))
	buf := make([]byte, attendanceCodeLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = attendanceCodeAlphabet[n.Int64()]
	}
	return string(buf), nil
}
