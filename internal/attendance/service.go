package attendance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/HarshaVardhanRao/StudentActivityCentre/internal/auth"
)

const maxLabelLength = 100

type Config struct {
	// DefaultSessionDuration sets close_at for sessions opened without one. Zero leaves it unset.
	DefaultSessionDuration time.Duration
	// ImplicitOpenLead and ImplicitOpenWindow bound the implicit open window
	// around an event's start: [starts_at-lead, starts_at+window].
	ImplicitOpenLead   time.Duration
	ImplicitOpenWindow time.Duration
	MaxSuffixAttempts  int
	// TxRetries bounds retries of a unit of work that hit a unique violation.
	TxRetries    int
	OverdueBatch int
}

type Service struct {
	store     Store
	cfg       Config
	publisher Publisher
	cache     VerificationCache
	metrics   Metrics
	now       func() time.Time
}

type Option func(*Service)

func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

func WithCache(c VerificationCache) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
	}
}

func WithMetrics(m Metrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(store Store, cfg Config, opts ...Option) *Service {
	if cfg.TxRetries <= 0 {
		cfg.TxRetries = 3
	}
	if cfg.OverdueBatch <= 0 {
		cfg.OverdueBatch = 100
	}
	s := &Service{
		store:     store,
		cfg:       cfg,
		publisher: nopPublisher{},
		metrics:   nopMetrics{},
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Principal loads the roles of userID.
func (s *Service) Principal(ctx context.Context, userID int64) (auth.Principal, error) {
	roles, err := s.store.GetUserRoles(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return auth.Principal{UserID: userID}, nil
		}
		return auth.Principal{}, fmt.Errorf("load roles: %w", err)
	}
	return auth.Principal{UserID: userID, Roles: roles}, nil
}

// Sessions

type OpenSessionParams struct {
	EventID   int64
	Label     string
	ForceOpen bool
	OpenAt    *time.Time
	CloseAt   *time.Time
}

func (s *Service) OpenSession(ctx context.Context, actor auth.Principal, params OpenSessionParams) (Session, error) {
	label, err := normalizeLabel(params.Label)
	if err != nil {
		return Session{}, err
	}
	if params.EventID <= 0 {
		return Session{}, newError(KindInvalid, CodeInvalidID)
	}
	if params.OpenAt != nil && params.CloseAt != nil && params.CloseAt.Before(*params.OpenAt) {
		return Session{}, newError(KindInvalid, CodeInvalidWindow)
	}

	var (
		session Session
		created bool
	)
	now := s.now()
	err = s.withRetry(ctx, func(q Queries) error {
		created = false
		event, err := s.loadEvent(ctx, q, params.EventID)
		if err != nil {
			return err
		}
		if err := s.authorize(ctx, q, actor, event, auth.ManageAttendance); err != nil {
			return err
		}
		if !event.AcceptsAttendance() {
			return newError(KindState, CodeEventNotApproved)
		}

		existing, err := q.FindActiveSession(ctx, event.ID, label)
		switch {
		case err == nil:
			session = existing
			if params.ForceOpen && !existing.IsOpen(now) {
				opened := existing.ForceOpen(now, s.cfg.DefaultSessionDuration)
				session, err = q.UpdateSessionWindow(ctx, existing.ID, opened.OpenAt, opened.CloseAt)
				if err != nil {
					return fmt.Errorf("force open session: %w", err)
				}
			}
			return nil
		case !errors.Is(err, ErrNotFound):
			return fmt.Errorf("find session: %w", err)
		}

		openAt := params.OpenAt
		if params.ForceOpen || openAt == nil {
			at := now
			openAt = &at
		}
		closeAt := params.CloseAt
		if closeAt == nil && s.cfg.DefaultSessionDuration > 0 {
			at := openAt.Add(s.cfg.DefaultSessionDuration)
			closeAt = &at
		}
		if closeAt != nil && !closeAt.After(*openAt) {
			return newError(KindInvalid, CodeInvalidWindow)
		}
		session, err = s.createSession(ctx, q, actor.UserID, event.ID, label, now, openAt, closeAt)
		if err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return Session{}, err
	}
	if created {
		s.metrics.SessionOpened(false)
		s.publish(ctx, sessionEvent(EventSessionOpened, now, actor.UserID, session))
	}
	return session, nil
}

// EnsureSession returns the active session for (event, label), creating one
// when now falls inside the implicit open window of the event.
func (s *Service) EnsureSession(ctx context.Context, actor auth.Principal, eventID int64, label string) (Session, error) {
	label, err := normalizeLabel(label)
	if err != nil {
		return Session{}, err
	}
	var (
		session Session
		created bool
	)
	now := s.now()
	err = s.withRetry(ctx, func(q Queries) error {
		created = false
		event, err := s.loadEvent(ctx, q, eventID)
		if err != nil {
			return err
		}
		if err := s.authorize(ctx, q, actor, event, auth.ManageAttendance); err != nil {
			return err
		}
		existing, err := q.FindActiveSession(ctx, event.ID, label)
		if err == nil {
			session = existing
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("find session: %w", err)
		}
		if !event.AcceptsAttendance() {
			return newError(KindState, CodeEventNotApproved)
		}
		windowStart := event.StartsAt.Add(-s.cfg.ImplicitOpenLead)
		windowEnd := event.StartsAt.Add(s.cfg.ImplicitOpenWindow)
		if s.cfg.ImplicitOpenWindow <= 0 || now.Before(windowStart) || now.After(windowEnd) {
			return newError(KindState, CodeWindowClosed)
		}
		openAt := now
		session, err = s.createSession(ctx, q, actor.UserID, event.ID, label, now, &openAt, &windowEnd)
		if err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return Session{}, err
	}
	if created {
		s.metrics.SessionOpened(true)
		s.publish(ctx, sessionEvent(EventSessionOpened, now, actor.UserID, session))
	}
	return session, nil
}

func (s *Service) createSession(ctx context.Context, q Queries, actorID, eventID int64, label string, now time.Time, openAt, closeAt *time.Time) (Session, error) {
	code, err := NewAttendanceCode()
	if err != nil {
		return Session{}, fmt.Errorf("attendance code: %w", err)
	}
	session, err := q.CreateSession(ctx, CreateSessionParams{
		EventID:        eventID,
		Label:          label,
		CreatedBy:      actorID,
		CreatedAt:      now,
		OpenAt:         openAt,
		CloseAt:        closeAt,
		AttendanceCode: code,
	})
	if err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

func (s *Service) GetSession(ctx context.Context, actor auth.Principal, sessionID int64) (Session, error) {
	session, err := s.loadSession(ctx, s.store, sessionID, false)
	if err != nil {
		return Session{}, err
	}
	event, err := s.loadEvent(ctx, s.store, session.EventID)
	if err != nil {
		return Session{}, err
	}
	if err := s.authorize(ctx, s.store, actor, event, auth.ManageAttendance); err != nil {
		return Session{}, err
	}
	return session, nil
}

func (s *Service) ListSessions(ctx context.Context, actor auth.Principal, eventID int64) ([]Session, error) {
	event, err := s.loadEvent(ctx, s.store, eventID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, s.store, actor, event, auth.ManageAttendance); err != nil {
		return nil, err
	}
	sessions, err := s.store.ListSessionsByEvent(ctx, event.ID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

func (s *Service) ExtendSession(ctx context.Context, actor auth.Principal, sessionID int64, minutes int) (Session, error) {
	if minutes < MinExtendMinutes || minutes > MaxExtendMinutes {
		return Session{}, newError(KindInvalid, CodeInvalidMinutes)
	}
	var session Session
	now := s.now()
	err := s.store.WithTx(ctx, func(q Queries) error {
		current, err := s.loadSession(ctx, q, sessionID, true)
		if err != nil {
			return err
		}
		event, err := s.loadEvent(ctx, q, current.EventID)
		if err != nil {
			return err
		}
		if err := s.authorize(ctx, q, actor, event, auth.ManageAttendance); err != nil {
			return err
		}
		extended, err := current.Extend(minutes, now)
		if err != nil {
			return err
		}
		session, err = q.UpdateSessionWindow(ctx, current.ID, extended.OpenAt, extended.CloseAt)
		if err != nil {
			return fmt.Errorf("extend session: %w", err)
		}
		return nil
	})
	if err != nil {
		return Session{}, err
	}
	s.metrics.SessionExtended()
	evt := sessionEvent(EventSessionExtended, now, actor.UserID, session)
	evt.Payload["minutes"] = minutes
	s.publish(ctx, evt)
	return session, nil
}

// SubmitSession locks an open session. Submitting a session that is not open,
// including one already submitted, is rejected without any change.
func (s *Service) SubmitSession(ctx context.Context, actor auth.Principal, sessionID int64) (Session, error) {
	var (
		session   Session
		organizer []int64
	)
	now := s.now()
	err := s.store.WithTx(ctx, func(q Queries) error {
		current, err := s.loadSession(ctx, q, sessionID, true)
		if err != nil {
			return err
		}
		event, err := s.loadEvent(ctx, q, current.EventID)
		if err != nil {
			return err
		}
		if err := s.authorize(ctx, q, actor, event, auth.ManageAttendance); err != nil {
			return err
		}
		if _, err := current.Submit(actor.UserID, now); err != nil {
			return err
		}
		session, err = q.SubmitSession(ctx, current.ID, actor.UserID, now)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return newError(KindState, CodeSessionLocked)
			}
			return fmt.Errorf("submit session: %w", err)
		}
		organizer, err = q.ListEventOrganizers(ctx, event.ID)
		if err != nil {
			return fmt.Errorf("list organizers: %w", err)
		}
		return nil
	})
	if err != nil {
		return Session{}, err
	}
	s.metrics.SessionSubmitted()
	evt := sessionEvent(EventSessionSubmitted, now, actor.UserID, session)
	evt.Payload["notify"] = organizer
	s.publish(ctx, evt)
	return session, nil
}

// Records

type RecordResult struct {
	Record  Record
	Created bool
}

// RecordStatus creates or updates the record of studentID in an open session.
func (s *Service) RecordStatus(ctx context.Context, actor auth.Principal, sessionID, studentID int64, status Status) (RecordResult, error) {
	return s.upsertRecord(ctx, actor, sessionID, studentID, status, false)
}

// SpotRegister registers a walk-in student for the session's event and records its status.
func (s *Service) SpotRegister(ctx context.Context, actor auth.Principal, sessionID, studentID int64, status Status) (RecordResult, error) {
	return s.upsertRecord(ctx, actor, sessionID, studentID, status, true)
}

func (s *Service) upsertRecord(ctx context.Context, actor auth.Principal, sessionID, studentID int64, status Status, spot bool) (RecordResult, error) {
	status, err := ParseStatus(string(status))
	if err != nil {
		return RecordResult{}, err
	}
	if studentID <= 0 {
		return RecordResult{}, newError(KindInvalid, CodeInvalidID)
	}
	var (
		result     RecordResult
		session    Session
		registered bool
		changed    bool
	)
	now := s.now()
	err = s.withRetry(ctx, func(q Queries) error {
		result, registered, changed = RecordResult{}, false, false
		var err error
		session, err = s.loadSession(ctx, q, sessionID, true)
		if err != nil {
			return err
		}
		event, err := s.loadEvent(ctx, q, session.EventID)
		if err != nil {
			return err
		}
		if err := s.authorize(ctx, q, actor, event, auth.ManageAttendance); err != nil {
			return err
		}
		if session.Locked {
			return newError(KindState, CodeSessionLocked)
		}
		if !session.IsOpen(now) {
			return newError(KindState, CodeSessionNotOpen)
		}
		student, err := q.GetStudent(ctx, studentID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return newError(KindNotFound, CodeStudentNotFound)
			}
			return fmt.Errorf("load student: %w", err)
		}
		ok, err := q.HasRegistration(ctx, event.ID, student.ID)
		if err != nil {
			return fmt.Errorf("check registration: %w", err)
		}
		if !ok {
			if !spot {
				return newError(KindState, CodeStudentNotRegistered)
			}
			if err := q.CreateRegistration(ctx, event.ID, student.ID, true, now); err != nil {
				return fmt.Errorf("spot registration: %w", err)
			}
			registered = true
		}

		existing, err := q.GetRecordForUpdate(ctx, session.ID, student.ID)
		if err == nil {
			result.Record = existing
			if existing.Status == status {
				return nil
			}
			result.Record, err = q.UpdateRecordStatus(ctx, existing.ID, status, now)
			if err != nil {
				return fmt.Errorf("update record: %w", err)
			}
			changed = true
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("load record: %w", err)
		}

		generator := RefCodeGenerator{
			Exists:            q.RefCodeExists,
			MaxSuffixAttempts: s.cfg.MaxSuffixAttempts,
			OnCollision:       s.metrics.RefCodeCollision,
		}
		code, err := generator.Generate(ctx, RefCodeInput{
			EventID:   event.ID,
			SessionID: session.ID,
			StudentID: student.ID,
			RollNo:    student.RollNo,
		})
		if err != nil {
			return fmt.Errorf("generate ref code: %w", err)
		}
		result.Record, err = q.CreateRecord(ctx, CreateRecordParams{
			SessionID: session.ID,
			StudentID: student.ID,
			Status:    status,
			RefCode:   code,
			CreatedAt: now,
		})
		if err != nil {
			return fmt.Errorf("create record: %w", err)
		}
		result.Created = true
		changed = true
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrRefCodeExhausted) {
			log.Printf("ref code exhausted for session %d student %d", sessionID, studentID)
		}
		return RecordResult{}, err
	}

	if changed {
		s.metrics.RecordSaved(result.Created)
		if !result.Created {
			s.invalidate(ctx, result.Record.RefCode)
		}
		events := make([]DomainEvent, 0, 2)
		if registered {
			evt := sessionEvent(EventSpotRegistration, now, actor.UserID, session)
			evt.Payload["student_id"] = studentID
			events = append(events, evt)
		}
		evt := sessionEvent(EventRecordRecorded, now, actor.UserID, session)
		evt.Payload["student_id"] = studentID
		evt.Payload["status"] = string(result.Record.Status)
		evt.Payload["ref_code"] = result.Record.RefCode
		evt.Payload["created"] = result.Created
		events = append(events, evt)
		s.publish(ctx, events...)
	}
	return result, nil
}

func (s *Service) ListRecords(ctx context.Context, actor auth.Principal, sessionID int64) ([]ExportRow, error) {
	session, err := s.loadSession(ctx, s.store, sessionID, false)
	if err != nil {
		return nil, err
	}
	event, err := s.loadEvent(ctx, s.store, session.EventID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, s.store, actor, event, auth.ManageAttendance); err != nil {
		return nil, err
	}
	return s.SessionRecords(ctx, sessionID)
}

// SessionRecords lists a session's records without an authorization check.
// It backs trusted service-to-service queries.
func (s *Service) SessionRecords(ctx context.Context, sessionID int64) ([]ExportRow, error) {
	session, err := s.loadSession(ctx, s.store, sessionID, false)
	if err != nil {
		return nil, err
	}
	rows, err := s.store.ListExportRows(ctx, session.EventID, &session.ID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return rows, nil
}

// Verification

// Verify resolves a reference code, ignoring case. It never fails for an
// unknown code; it returns a not_found Error instead.
func (s *Service) Verify(ctx context.Context, code string) (Verification, error) {
	code = NormalizeRefCode(code)
	if code == "" || len(code) > RefCodeMaxLen {
		s.metrics.Verification(false)
		return Verification{}, newError(KindNotFound, CodeReferenceNotFound)
	}
	if s.cache != nil {
		if cached, ok, err := s.cache.Get(ctx, code); err != nil {
			log.Printf("verification cache get %s: %v", code, err)
		} else if ok {
			s.metrics.Verification(true)
			return cached, nil
		}
	}
	v, err := s.store.FindVerification(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.metrics.Verification(false)
			return Verification{}, newError(KindNotFound, CodeReferenceNotFound)
		}
		return Verification{}, fmt.Errorf("find verification: %w", err)
	}
	s.metrics.Verification(true)
	if s.cache != nil {
		if err := s.cache.Set(ctx, v); err != nil {
			log.Printf("verification cache set %s: %v", code, err)
		}
	}
	return v, nil
}

// Export

func (s *Service) Export(ctx context.Context, actor auth.Principal, eventID int64, sessionID *int64) (Event, []ExportRow, error) {
	event, err := s.loadEvent(ctx, s.store, eventID)
	if err != nil {
		return Event{}, nil, err
	}
	if err := s.authorize(ctx, s.store, actor, event, auth.ExportAttendance); err != nil {
		return Event{}, nil, err
	}
	if sessionID != nil {
		session, err := s.loadSession(ctx, s.store, *sessionID, false)
		if err != nil {
			return Event{}, nil, err
		}
		if session.EventID != event.ID {
			return Event{}, nil, newError(KindNotFound, CodeSessionNotFound)
		}
	}
	rows, err := s.store.ListExportRows(ctx, event.ID, sessionID)
	if err != nil {
		return Event{}, nil, fmt.Errorf("export rows: %w", err)
	}
	return event, rows, nil
}

// Club coordinators

// AddClubCoordinator links userID to clubID and grants CLUB_COORDINATOR in the same transaction.
func (s *Service) AddClubCoordinator(ctx context.Context, actor auth.Principal, clubID, userID int64) error {
	if !auth.HasCapability(actor, auth.ManageClubs) {
		return newError(KindForbidden, CodeForbidden)
	}
	now := s.now()
	err := s.store.WithTx(ctx, func(q Queries) error {
		if err := s.checkClubAndUser(ctx, q, clubID, userID); err != nil {
			return err
		}
		added, err := q.AddClubCoordinator(ctx, clubID, userID)
		if err != nil {
			return fmt.Errorf("add coordinator: %w", err)
		}
		if !added {
			return newError(KindConflict, CodeAlreadyCoordinator)
		}
		if err := q.GrantRole(ctx, userID, auth.RoleClubCoordinator); err != nil {
			return fmt.Errorf("grant role: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	evt := newDomainEvent(EventClubCoordinatorAdded, now, actor.UserID)
	evt.Payload = map[string]any{"club_id": clubID, "user_id": userID}
	s.publish(ctx, evt)
	return nil
}

// RemoveClubCoordinator unlinks userID from clubID and revokes CLUB_COORDINATOR
// once the user coordinates no other club.
func (s *Service) RemoveClubCoordinator(ctx context.Context, actor auth.Principal, clubID, userID int64) error {
	if !auth.HasCapability(actor, auth.ManageClubs) {
		return newError(KindForbidden, CodeForbidden)
	}
	var revoked bool
	now := s.now()
	err := s.store.WithTx(ctx, func(q Queries) error {
		revoked = false
		if err := s.checkClubAndUser(ctx, q, clubID, userID); err != nil {
			return err
		}
		removed, err := q.RemoveClubCoordinator(ctx, clubID, userID)
		if err != nil {
			return fmt.Errorf("remove coordinator: %w", err)
		}
		if !removed {
			return newError(KindNotFound, CodeNotCoordinator)
		}
		remaining, err := q.CountCoordinatedClubs(ctx, userID)
		if err != nil {
			return fmt.Errorf("count coordinated clubs: %w", err)
		}
		if remaining == 0 {
			if err := q.RevokeRole(ctx, userID, auth.RoleClubCoordinator); err != nil {
				return fmt.Errorf("revoke role: %w", err)
			}
			revoked = true
		}
		return nil
	})
	if err != nil {
		return err
	}
	evt := newDomainEvent(EventClubCoordinatorRemoved, now, actor.UserID)
	evt.Payload = map[string]any{"club_id": clubID, "user_id": userID, "role_revoked": revoked}
	s.publish(ctx, evt)
	return nil
}

func (s *Service) checkClubAndUser(ctx context.Context, q Queries, clubID, userID int64) error {
	if _, err := q.GetClub(ctx, clubID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return newError(KindNotFound, CodeClubNotFound)
		}
		return fmt.Errorf("load club: %w", err)
	}
	exists, err := q.UserExists(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if !exists {
		return newError(KindNotFound, CodeUserNotFound)
	}
	return nil
}

// Overdue sessions

// NotifyOverdue reports sessions whose window has passed without a submit.
// Each session is reported once.
func (s *Service) NotifyOverdue(ctx context.Context) (int, error) {
	now := s.now()
	var events []DomainEvent
	err := s.store.WithTx(ctx, func(q Queries) error {
		events = events[:0]
		sessions, err := q.ListOverdueSessions(ctx, now, s.cfg.OverdueBatch)
		if err != nil {
			return fmt.Errorf("list overdue sessions: %w", err)
		}
		for _, session := range sessions {
			if err := q.MarkOverdueNotified(ctx, session.ID, now); err != nil {
				return fmt.Errorf("mark overdue %d: %w", session.ID, err)
			}
			organizers, err := q.ListEventOrganizers(ctx, session.EventID)
			if err != nil {
				return fmt.Errorf("list organizers: %w", err)
			}
			evt := sessionEvent(EventSessionOverdue, now, 0, session)
			evt.Payload["notify"] = organizers
			events = append(events, evt)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.publish(ctx, events...)
	return len(events), nil
}

// Helpers

func (s *Service) withRetry(ctx context.Context, fn func(Queries) error) error {
	var err error
	for attempt := 0; attempt < s.cfg.TxRetries; attempt++ {
		err = s.store.WithTx(ctx, fn)
		if err == nil || !errors.Is(err, ErrUniqueViolation) {
			return err
		}
		s.metrics.TxRetry()
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return err
}

// authorize lets admins through and otherwise requires a link to the event.
// The link itself implies the matching role for this event only.
func (s *Service) authorize(ctx context.Context, q Queries, actor auth.Principal, event Event, capability auth.Capability) error {
	if actor.IsAdmin() {
		return nil
	}
	access, err := q.GetEventAccess(ctx, event.ID, actor.UserID)
	if err != nil {
		return fmt.Errorf("event access: %w", err)
	}
	if !access.Any() || !auth.HasCapability(scopedPrincipal(actor, access), capability) {
		return newError(KindForbidden, CodeForbidden)
	}
	return nil
}

func scopedPrincipal(actor auth.Principal, access EventAccess) auth.Principal {
	roles := append([]auth.Role(nil), actor.Roles...)
	if access.Organizer {
		roles = auth.GrantRole(roles, auth.RoleEventOrganizer)
	}
	if access.Coordinator {
		roles = auth.GrantRole(roles, auth.RoleClubCoordinator)
	}
	if access.Advisor {
		roles = auth.GrantRole(roles, auth.RoleClubAdvisor)
	}
	return auth.Principal{UserID: actor.UserID, Roles: roles}
}

func (s *Service) loadEvent(ctx context.Context, q Queries, id int64) (Event, error) {
	if id <= 0 {
		return Event{}, newError(KindNotFound, CodeEventNotFound)
	}
	event, err := q.GetEvent(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Event{}, newError(KindNotFound, CodeEventNotFound)
		}
		return Event{}, fmt.Errorf("load event: %w", err)
	}
	return event, nil
}

func (s *Service) loadSession(ctx context.Context, q Queries, id int64, forUpdate bool) (Session, error) {
	if id <= 0 {
		return Session{}, newError(KindNotFound, CodeSessionNotFound)
	}
	var (
		session Session
		err     error
	)
	if forUpdate {
		session, err = q.GetSessionForUpdate(ctx, id)
	} else {
		session, err = q.GetSession(ctx, id)
	}
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Session{}, newError(KindNotFound, CodeSessionNotFound)
		}
		return Session{}, fmt.Errorf("load session: %w", err)
	}
	return session, nil
}

func (s *Service) publish(ctx context.Context, events ...DomainEvent) {
	if len(events) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		log.Printf("publish %d events: %v", len(events), err)
	}
}

func (s *Service) invalidate(ctx context.Context, code string) {
	if s.cache == nil || code == "" {
		return
	}
	if err := s.cache.Invalidate(ctx, code); err != nil {
		log.Printf("verification cache invalidate %s: %v", code, err)
	}
}

func sessionEvent(eventType EventType, now time.Time, actorID int64, session Session) DomainEvent {
	evt := newDomainEvent(eventType, now, actorID)
	evt.EventID = session.EventID
	evt.SessionID = session.ID
	evt.Payload = map[string]any{
		"label":           session.Label,
		"attendance_code": session.AttendanceCode,
	}
	return evt
}

func normalizeLabel(label string) (string, error) {
	label = strings.TrimSpace(label)
	if len(label) > maxLabelLength {
		return "", newError(KindInvalid, CodeInvalidLabel)
	}
	return label, nil
}
