// Package memstore is an in-memory attendance.Store for tests and local runs.
// It enforces the same unique constraints as the Postgres schema.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/HarshaVardhanRao/StudentActivityCentre/internal/attendance"
	"github.com/HarshaVardhanRao/StudentActivityCentre/internal/auth"
)

type user struct {
	student attendance.Student
	roles   []auth.Role
}

type registration struct {
	spot bool
	at   time.Time
}

type regKey struct{ eventID, studentID int64 }

type state struct {
	users         map[int64]user
	clubs         map[int64]attendance.Club
	coordinators  map[int64]map[int64]bool
	events        map[int64]attendance.Event
	organizers    map[int64]map[int64]bool
	registrations map[regKey]registration
	sessions      map[int64]attendance.Session
	records       map[int64]attendance.Record
	nextSessionID int64
	nextRecordID  int64
}

func newState() *state {
	return &state{
		users:         map[int64]user{},
		clubs:         map[int64]attendance.Club{},
		coordinators:  map[int64]map[int64]bool{},
		events:        map[int64]attendance.Event{},
		organizers:    map[int64]map[int64]bool{},
		registrations: map[regKey]registration{},
		sessions:      map[int64]attendance.Session{},
		records:       map[int64]attendance.Record{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.users {
		v.roles = append([]auth.Role(nil), v.roles...)
		c.users[k] = v
	}
	for k, v := range s.clubs {
		c.clubs[k] = v
	}
	for k, v := range s.coordinators {
		c.coordinators[k] = copySet(v)
	}
	for k, v := range s.events {
		c.events[k] = v
	}
	for k, v := range s.organizers {
		c.organizers[k] = copySet(v)
	}
	for k, v := range s.registrations {
		c.registrations[k] = v
	}
	for k, v := range s.sessions {
		c.sessions[k] = v
	}
	for k, v := range s.records {
		c.records[k] = v
	}
	c.nextSessionID = s.nextSessionID
	c.nextRecordID = s.nextRecordID
	return c
}

func copySet(m map[int64]bool) map[int64]bool {
	out := make(map[int64]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Store serializes every call. WithTx runs against a copy of the data that
// replaces the original only when fn succeeds.
type Store struct {
	mu sync.Mutex
	st *state

	// failCreateRecord makes the next n CreateRecord calls fail with a unique violation.
	failCreateRecord int
}

var _ attendance.Store = (*Store)(nil)

func New() *Store {
	return &Store{st: newState()}
}

func (s *Store) WithTx(ctx context.Context, fn func(attendance.Queries) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &queries{st: s.st.clone(), store: s}
	if err := fn(tx); err != nil {
		return err
	}
	s.st = tx.st
	return nil
}

func (s *Store) run(fn func(q *queries) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&queries{st: s.st, store: s})
}

// Seed helpers.

func (s *Store) AddUser(student attendance.Student, roles ...auth.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.users[student.ID] = user{student: student, roles: append([]auth.Role(nil), roles...)}
}

func (s *Store) AddClub(club attendance.Club, coordinators ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.clubs[club.ID] = club
	set := s.st.coordinators[club.ID]
	if set == nil {
		set = map[int64]bool{}
		s.st.coordinators[club.ID] = set
	}
	for _, id := range coordinators {
		set[id] = true
	}
}

func (s *Store) AddEvent(event attendance.Event, organizers ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.events[event.ID] = event
	set := s.st.organizers[event.ID]
	if set == nil {
		set = map[int64]bool{}
		s.st.organizers[event.ID] = set
	}
	for _, id := range organizers {
		set[id] = true
	}
}

func (s *Store) Register(eventID int64, studentIDs ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range studentIDs {
		s.st.registrations[regKey{eventID, id}] = registration{at: time.Now().UTC()}
	}
}

// PutRecord stores a record as-is, bypassing the service. Used to seed collisions.
func (s *Store) PutRecord(r attendance.Record) attendance.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.nextRecordID++
	r.ID = s.st.nextRecordID
	s.st.records[r.ID] = r
	return r
}

func (s *Store) Records() []attendance.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]attendance.Record, 0, len(s.st.records))
	for _, r := range s.st.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IsSpotRegistered reports whether the registration exists and came from a spot registration.
func (s *Store) IsSpotRegistered(eventID, studentID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.st.registrations[regKey{eventID, studentID}]
	return ok && reg.spot
}

func (s *Store) FailNextCreateRecord(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCreateRecord = n
}

// Queries outside a transaction.

func (s *Store) GetEvent(ctx context.Context, id int64) (ev attendance.Event, err error) {
	err = s.run(func(q *queries) error { ev, err = q.GetEvent(ctx, id); return err })
	return
}

func (s *Store) GetStudent(ctx context.Context, id int64) (st attendance.Student, err error) {
	err = s.run(func(q *queries) error { st, err = q.GetStudent(ctx, id); return err })
	return
}

func (s *Store) GetClub(ctx context.Context, id int64) (c attendance.Club, err error) {
	err = s.run(func(q *queries) error { c, err = q.GetClub(ctx, id); return err })
	return
}

func (s *Store) UserExists(ctx context.Context, id int64) (ok bool, err error) {
	err = s.run(func(q *queries) error { ok, err = q.UserExists(ctx, id); return err })
	return
}

func (s *Store) GetUserRoles(ctx context.Context, userID int64) (roles []auth.Role, err error) {
	err = s.run(func(q *queries) error { roles, err = q.GetUserRoles(ctx, userID); return err })
	return
}

func (s *Store) GetEventAccess(ctx context.Context, eventID, userID int64) (a attendance.EventAccess, err error) {
	err = s.run(func(q *queries) error { a, err = q.GetEventAccess(ctx, eventID, userID); return err })
	return
}

func (s *Store) ListEventOrganizers(ctx context.Context, eventID int64) (ids []int64, err error) {
	err = s.run(func(q *queries) error { ids, err = q.ListEventOrganizers(ctx, eventID); return err })
	return
}

func (s *Store) HasRegistration(ctx context.Context, eventID, studentID int64) (ok bool, err error) {
	err = s.run(func(q *queries) error { ok, err = q.HasRegistration(ctx, eventID, studentID); return err })
	return
}

func (s *Store) CreateRegistration(ctx context.Context, eventID, studentID int64, spot bool, at time.Time) error {
	return s.run(func(q *queries) error { return q.CreateRegistration(ctx, eventID, studentID, spot, at) })
}

func (s *Store) CreateSession(ctx context.Context, params attendance.CreateSessionParams) (sess attendance.Session, err error) {
	err = s.run(func(q *queries) error { sess, err = q.CreateSession(ctx, params); return err })
	return
}

func (s *Store) GetSession(ctx context.Context, id int64) (sess attendance.Session, err error) {
	err = s.run(func(q *queries) error { sess, err = q.GetSession(ctx, id); return err })
	return
}

func (s *Store) GetSessionForUpdate(ctx context.Context, id int64) (attendance.Session, error) {
	return s.GetSession(ctx, id)
}

func (s *Store) FindActiveSession(ctx context.Context, eventID int64, label string) (sess attendance.Session, err error) {
	err = s.run(func(q *queries) error { sess, err = q.FindActiveSession(ctx, eventID, label); return err })
	return
}

func (s *Store) ListSessionsByEvent(ctx context.Context, eventID int64) (out []attendance.Session, err error) {
	err = s.run(func(q *queries) error { out, err = q.ListSessionsByEvent(ctx, eventID); return err })
	return
}

func (s *Store) UpdateSessionWindow(ctx context.Context, id int64, openAt, closeAt *time.Time) (sess attendance.Session, err error) {
	err = s.run(func(q *queries) error { sess, err = q.UpdateSessionWindow(ctx, id, openAt, closeAt); return err })
	return
}

func (s *Store) SubmitSession(ctx context.Context, id, submittedBy int64, at time.Time) (sess attendance.Session, err error) {
	err = s.run(func(q *queries) error { sess, err = q.SubmitSession(ctx, id, submittedBy, at); return err })
	return
}

func (s *Store) ListOverdueSessions(ctx context.Context, now time.Time, limit int) (out []attendance.Session, err error) {
	err = s.run(func(q *queries) error { out, err = q.ListOverdueSessions(ctx, now, limit); return err })
	return
}

func (s *Store) MarkOverdueNotified(ctx context.Context, id int64, at time.Time) error {
	return s.run(func(q *queries) error { return q.MarkOverdueNotified(ctx, id, at) })
}

func (s *Store) GetRecordForUpdate(ctx context.Context, sessionID, studentID int64) (r attendance.Record, err error) {
	err = s.run(func(q *queries) error { r, err = q.GetRecordForUpdate(ctx, sessionID, studentID); return err })
	return
}

func (s *Store) CreateRecord(ctx context.Context, params attendance.CreateRecordParams) (r attendance.Record, err error) {
	err = s.run(func(q *queries) error { r, err = q.CreateRecord(ctx, params); return err })
	return
}

func (s *Store) UpdateRecordStatus(ctx context.Context, id int64, status attendance.Status, at time.Time) (r attendance.Record, err error) {
	err = s.run(func(q *queries) error { r, err = q.UpdateRecordStatus(ctx, id, status, at); return err })
	return
}

func (s *Store) RefCodeExists(ctx context.Context, code string, excludeRecordID int64) (ok bool, err error) {
	err = s.run(func(q *queries) error { ok, err = q.RefCodeExists(ctx, code, excludeRecordID); return err })
	return
}

func (s *Store) FindVerification(ctx context.Context, code string) (v attendance.Verification, err error) {
	err = s.run(func(q *queries) error { v, err = q.FindVerification(ctx, code); return err })
	return
}

func (s *Store) ListExportRows(ctx context.Context, eventID int64, sessionID *int64) (rows []attendance.ExportRow, err error) {
	err = s.run(func(q *queries) error { rows, err = q.ListExportRows(ctx, eventID, sessionID); return err })
	return
}

func (s *Store) AddClubCoordinator(ctx context.Context, clubID, userID int64) (ok bool, err error) {
	err = s.run(func(q *queries) error { ok, err = q.AddClubCoordinator(ctx, clubID, userID); return err })
	return
}

func (s *Store) RemoveClubCoordinator(ctx context.Context, clubID, userID int64) (ok bool, err error) {
	err = s.run(func(q *queries) error { ok, err = q.RemoveClubCoordinator(ctx, clubID, userID); return err })
	return
}

func (s *Store) CountCoordinatedClubs(ctx context.Context, userID int64) (n int, err error) {
	err = s.run(func(q *queries) error { n, err = q.CountCoordinatedClubs(ctx, userID); return err })
	return
}

func (s *Store) GrantRole(ctx context.Context, userID int64, role auth.Role) error {
	return s.run(func(q *queries) error { return q.GrantRole(ctx, userID, role) })
}

func (s *Store) RevokeRole(ctx context.Context, userID int64, role auth.Role) error {
	return s.run(func(q *queries) error { return q.RevokeRole(ctx, userID, role) })
}

// queries operates on a state without locking; the owning Store holds the lock.
type queries struct {
	st    *state
	store *Store
}

func (q *queries) GetEvent(_ context.Context, id int64) (attendance.Event, error) {
	ev, ok := q.st.events[id]
	if !ok {
		return attendance.Event{}, attendance.ErrNotFound
	}
	return ev, nil
}

func (q *queries) GetStudent(_ context.Context, id int64) (attendance.Student, error) {
	u, ok := q.st.users[id]
	if !ok {
		return attendance.Student{}, attendance.ErrNotFound
	}
	return u.student, nil
}

func (q *queries) GetClub(_ context.Context, id int64) (attendance.Club, error) {
	c, ok := q.st.clubs[id]
	if !ok {
		return attendance.Club{}, attendance.ErrNotFound
	}
	return c, nil
}

func (q *queries) UserExists(_ context.Context, id int64) (bool, error) {
	_, ok := q.st.users[id]
	return ok, nil
}

func (q *queries) GetUserRoles(_ context.Context, userID int64) ([]auth.Role, error) {
	u, ok := q.st.users[userID]
	if !ok {
		return nil, attendance.ErrNotFound
	}
	return append([]auth.Role(nil), u.roles...), nil
}

func (q *queries) GetEventAccess(_ context.Context, eventID, userID int64) (attendance.EventAccess, error) {
	var access attendance.EventAccess
	ev, ok := q.st.events[eventID]
	if !ok {
		return access, nil
	}
	access.Organizer = q.st.organizers[eventID][userID]
	if ev.ClubID != nil {
		access.Coordinator = q.st.coordinators[*ev.ClubID][userID]
		if club, ok := q.st.clubs[*ev.ClubID]; ok && club.AdvisorID != nil {
			access.Advisor = *club.AdvisorID == userID
		}
	}
	return access, nil
}

func (q *queries) ListEventOrganizers(_ context.Context, eventID int64) ([]int64, error) {
	return sortedKeys(q.st.organizers[eventID]), nil
}

func (q *queries) HasRegistration(_ context.Context, eventID, studentID int64) (bool, error) {
	_, ok := q.st.registrations[regKey{eventID, studentID}]
	return ok, nil
}

func (q *queries) CreateRegistration(_ context.Context, eventID, studentID int64, spot bool, at time.Time) error {
	key := regKey{eventID, studentID}
	if _, ok := q.st.registrations[key]; ok {
		return fmt.Errorf("registration %d/%d: %w", eventID, studentID, attendance.ErrUniqueViolation)
	}
	q.st.registrations[key] = registration{spot: spot, at: at}
	return nil
}

func (q *queries) CreateSession(_ context.Context, params attendance.CreateSessionParams) (attendance.Session, error) {
	for _, existing := range q.st.sessions {
		if existing.AttendanceCode == params.AttendanceCode {
			return attendance.Session{}, fmt.Errorf("attendance code: %w", attendance.ErrUniqueViolation)
		}
		if existing.EventID == params.EventID && existing.Label == params.Label && !existing.Locked {
			return attendance.Session{}, fmt.Errorf("active session label: %w", attendance.ErrUniqueViolation)
		}
	}
	q.st.nextSessionID++
	sess := attendance.Session{
		ID:             q.st.nextSessionID,
		EventID:        params.EventID,
		Label:          params.Label,
		CreatedBy:      params.CreatedBy,
		CreatedAt:      params.CreatedAt,
		OpenAt:         params.OpenAt,
		CloseAt:        params.CloseAt,
		AttendanceCode: params.AttendanceCode,
	}
	q.st.sessions[sess.ID] = sess
	return sess, nil
}

func (q *queries) GetSession(_ context.Context, id int64) (attendance.Session, error) {
	sess, ok := q.st.sessions[id]
	if !ok {
		return attendance.Session{}, attendance.ErrNotFound
	}
	return sess, nil
}

func (q *queries) GetSessionForUpdate(ctx context.Context, id int64) (attendance.Session, error) {
	return q.GetSession(ctx, id)
}

func (q *queries) FindActiveSession(_ context.Context, eventID int64, label string) (attendance.Session, error) {
	var (
		found attendance.Session
		ok    bool
	)
	for _, sess := range q.st.sessions {
		if sess.EventID != eventID || sess.Label != label || sess.Locked {
			continue
		}
		if !ok || sess.ID > found.ID {
			found, ok = sess, true
		}
	}
	if !ok {
		return attendance.Session{}, attendance.ErrNotFound
	}
	return found, nil
}

func (q *queries) ListSessionsByEvent(_ context.Context, eventID int64) ([]attendance.Session, error) {
	out := []attendance.Session{}
	for _, sess := range q.st.sessions {
		if sess.EventID == eventID {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (q *queries) UpdateSessionWindow(_ context.Context, id int64, openAt, closeAt *time.Time) (attendance.Session, error) {
	sess, ok := q.st.sessions[id]
	if !ok {
		return attendance.Session{}, attendance.ErrNotFound
	}
	sess.OpenAt = openAt
	sess.CloseAt = closeAt
	q.st.sessions[id] = sess
	return sess, nil
}

func (q *queries) SubmitSession(_ context.Context, id, submittedBy int64, at time.Time) (attendance.Session, error) {
	sess, ok := q.st.sessions[id]
	if !ok || sess.Locked {
		return attendance.Session{}, attendance.ErrNotFound
	}
	closeAt, submittedAt := at, at
	sess.Locked = true
	sess.CloseAt = &closeAt
	sess.SubmittedBy = &submittedBy
	sess.SubmittedAt = &submittedAt
	q.st.sessions[id] = sess
	return sess, nil
}

func (q *queries) ListOverdueSessions(_ context.Context, now time.Time, limit int) ([]attendance.Session, error) {
	var out []attendance.Session
	for _, sess := range q.st.sessions {
		if sess.Locked || sess.OverdueNotifiedAt != nil || sess.CloseAt == nil || !sess.CloseAt.Before(now) {
			continue
		}
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (q *queries) MarkOverdueNotified(_ context.Context, id int64, at time.Time) error {
	sess, ok := q.st.sessions[id]
	if !ok {
		return attendance.ErrNotFound
	}
	sess.OverdueNotifiedAt = &at
	q.st.sessions[id] = sess
	return nil
}

func (q *queries) GetRecordForUpdate(_ context.Context, sessionID, studentID int64) (attendance.Record, error) {
	for _, r := range q.st.records {
		if r.SessionID != nil && *r.SessionID == sessionID && r.StudentID == studentID {
			return r, nil
		}
	}
	return attendance.Record{}, attendance.ErrNotFound
}

func (q *queries) CreateRecord(_ context.Context, params attendance.CreateRecordParams) (attendance.Record, error) {
	if q.store.failCreateRecord > 0 {
		q.store.failCreateRecord--
		return attendance.Record{}, fmt.Errorf("ref code: %w", attendance.ErrUniqueViolation)
	}
	for _, r := range q.st.records {
		if strings.EqualFold(r.RefCode, params.RefCode) {
			return attendance.Record{}, fmt.Errorf("ref code: %w", attendance.ErrUniqueViolation)
		}
		if r.SessionID != nil && *r.SessionID == params.SessionID && r.StudentID == params.StudentID {
			return attendance.Record{}, fmt.Errorf("session student: %w", attendance.ErrUniqueViolation)
		}
	}
	q.st.nextRecordID++
	sessionID := params.SessionID
	r := attendance.Record{
		ID:        q.st.nextRecordID,
		SessionID: &sessionID,
		StudentID: params.StudentID,
		Status:    params.Status,
		RefCode:   params.RefCode,
		CreatedAt: params.CreatedAt,
		UpdatedAt: params.CreatedAt,
	}
	q.st.records[r.ID] = r
	return r, nil
}

func (q *queries) UpdateRecordStatus(_ context.Context, id int64, status attendance.Status, at time.Time) (attendance.Record, error) {
	r, ok := q.st.records[id]
	if !ok {
		return attendance.Record{}, attendance.ErrNotFound
	}
	r.Status = status
	r.UpdatedAt = at
	q.st.records[id] = r
	return r, nil
}

func (q *queries) RefCodeExists(_ context.Context, code string, excludeRecordID int64) (bool, error) {
	for _, r := range q.st.records {
		if r.ID != excludeRecordID && strings.EqualFold(r.RefCode, code) {
			return true, nil
		}
	}
	return false, nil
}

func (q *queries) FindVerification(_ context.Context, code string) (attendance.Verification, error) {
	for _, r := range q.st.records {
		if !strings.EqualFold(r.RefCode, code) {
			continue
		}
		v := attendance.Verification{
			RefCode:    r.RefCode,
			Status:     r.Status,
			RecordedAt: r.CreatedAt,
		}
		if u, ok := q.st.users[r.StudentID]; ok {
			v.RollNo = u.student.RollNo
			v.StudentName = u.student.FullName()
		}
		if r.SessionID != nil {
			sess := q.st.sessions[*r.SessionID]
			v.SessionLabel = sess.Label
			v.EventName = q.st.events[sess.EventID].Name
		}
		return v, nil
	}
	return attendance.Verification{}, attendance.ErrNotFound
}

func (q *queries) ListExportRows(_ context.Context, eventID int64, sessionID *int64) ([]attendance.ExportRow, error) {
	rows := []attendance.ExportRow{}
	for _, r := range q.st.records {
		if r.SessionID == nil {
			continue
		}
		sess, ok := q.st.sessions[*r.SessionID]
		if !ok || sess.EventID != eventID {
			continue
		}
		if sessionID != nil && sess.ID != *sessionID {
			continue
		}
		student := q.st.users[r.StudentID].student
		rows = append(rows, attendance.ExportRow{
			StudentID:    r.StudentID,
			RollNo:       student.RollNo,
			Name:         student.FullName(),
			Department:   student.Department,
			Status:       r.Status,
			RecordedAt:   r.CreatedAt,
			SessionID:    sess.ID,
			SessionLabel: sess.Label,
			RefCode:      r.RefCode,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].SessionID != rows[j].SessionID {
			return rows[i].SessionID < rows[j].SessionID
		}
		return rows[i].RollNo < rows[j].RollNo
	})
	return rows, nil
}

func (q *queries) AddClubCoordinator(_ context.Context, clubID, userID int64) (bool, error) {
	set := q.st.coordinators[clubID]
	if set == nil {
		set = map[int64]bool{}
		q.st.coordinators[clubID] = set
	}
	if set[userID] {
		return false, nil
	}
	set[userID] = true
	return true, nil
}

func (q *queries) RemoveClubCoordinator(_ context.Context, clubID, userID int64) (bool, error) {
	set := q.st.coordinators[clubID]
	if !set[userID] {
		return false, nil
	}
	delete(set, userID)
	return true, nil
}

func (q *queries) CountCoordinatedClubs(_ context.Context, userID int64) (int, error) {
	n := 0
	for _, set := range q.st.coordinators {
		if set[userID] {
			n++
		}
	}
	return n, nil
}

func (q *queries) GrantRole(_ context.Context, userID int64, role auth.Role) error {
	u, ok := q.st.users[userID]
	if !ok {
		return attendance.ErrNotFound
	}
	u.roles = auth.GrantRole(u.roles, role)
	q.st.users[userID] = u
	return nil
}

func (q *queries) RevokeRole(_ context.Context, userID int64, role auth.Role) error {
	u, ok := q.st.users[userID]
	if !ok {
		return attendance.ErrNotFound
	}
	u.roles = auth.RevokeRole(u.roles, role)
	q.st.users[userID] = u
	return nil
}

func sortedKeys(m map[int64]bool) []int64 {
	out := make([]int64, 0, len(m))
	for k, v := range m {
		if v {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
