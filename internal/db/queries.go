package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/HarshaVardhanRao/StudentActivityCentre/internal/attendance"
	"github.com/HarshaVardhanRao/StudentActivityCentre/internal/auth"
)

var _ attendance.Queries = (*Queries)(nil)

func (q *Queries) GetEvent(ctx context.Context, id int64) (attendance.Event, error) {
	var (
		event  attendance.Event
		status string
	)
	row := q.db.QueryRow(ctx, `
		SELECT id, name, status, club_id, starts_at, ends_at
		FROM events
		WHERE id = $1
	`, id)
	if err := row.Scan(&event.ID, &event.Name, &status, &event.ClubID, &event.StartsAt, &event.EndsAt); err != nil {
		return attendance.Event{}, mapErr(err)
	}
	event.Status = attendance.EventStatus(status)
	return event, nil
}

func (q *Queries) GetStudent(ctx context.Context, id int64) (attendance.Student, error) {
	var student attendance.Student
	row := q.db.QueryRow(ctx, `
		SELECT id, COALESCE(roll_no, ''), first_name, last_name, department
		FROM users
		WHERE id = $1
	`, id)
	err := row.Scan(&student.ID, &student.RollNo, &student.FirstName, &student.LastName, &student.Department)
	return student, mapErr(err)
}

func (q *Queries) GetClub(ctx context.Context, id int64) (attendance.Club, error) {
	var club attendance.Club
	row := q.db.QueryRow(ctx, `SELECT id, name, advisor_id FROM clubs WHERE id = $1`, id)
	err := row.Scan(&club.ID, &club.Name, &club.AdvisorID)
	return club, mapErr(err)
}

func (q *Queries) UserExists(ctx context.Context, id int64) (bool, error) {
	return q.exists(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id)
}

func (q *Queries) GetUserRoles(ctx context.Context, userID int64) ([]auth.Role, error) {
	ok, err := q.UserExists(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, attendance.ErrNotFound
	}
	rows, err := q.db.Query(ctx, `SELECT role FROM user_roles WHERE user_id = $1 ORDER BY role`, userID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	var roles []auth.Role
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, err
		}
		if role, ok := auth.ParseRole(value); ok {
			roles = append(roles, role)
		}
	}
	return roles, rows.Err()
}

func (q *Queries) GetEventAccess(ctx context.Context, eventID, userID int64) (attendance.EventAccess, error) {
	var access attendance.EventAccess
	row := q.db.QueryRow(ctx, `
		SELECT
			EXISTS (SELECT 1 FROM event_organizers WHERE event_id = $1 AND user_id = $2),
			EXISTS (
				SELECT 1 FROM events e
				JOIN club_coordinators cc ON cc.club_id = e.club_id
				WHERE e.id = $1 AND cc.user_id = $2
			),
			EXISTS (
				SELECT 1 FROM events e
				JOIN clubs c ON c.id = e.club_id
				WHERE e.id = $1 AND c.advisor_id = $2
			)
	`, eventID, userID)
	err := row.Scan(&access.Organizer, &access.Coordinator, &access.Advisor)
	return access, mapErr(err)
}

func (q *Queries) ListEventOrganizers(ctx context.Context, eventID int64) ([]int64, error) {
	rows, err := q.db.Query(ctx, `SELECT user_id FROM event_organizers WHERE event_id = $1 ORDER BY user_id`, eventID)
	if err != nil {
		return nil, mapErr(err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	return ids, mapErr(err)
}

func (q *Queries) HasRegistration(ctx context.Context, eventID, studentID int64) (bool, error) {
	return q.exists(ctx, `SELECT EXISTS (SELECT 1 FROM event_registrations WHERE event_id = $1 AND student_id = $2)`, eventID, studentID)
}

func (q *Queries) CreateRegistration(ctx context.Context, eventID, studentID int64, spot bool, at time.Time) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO event_registrations (event_id, student_id, status, spot, created_at)
		VALUES ($1, $2, 'REGISTERED', $3, $4)
	`, eventID, studentID, spot, at)
	return mapErr(err)
}

const sessionColumns = `id, event_id, label, created_by, created_at, open_at, close_at, locked,
	submitted_by, submitted_at, attendance_code, overdue_notified_at`

func scanSession(row pgx.Row) (attendance.Session, error) {
	var s attendance.Session
	err := row.Scan(
		&s.ID,
		&s.EventID,
		&s.Label,
		&s.CreatedBy,
		&s.CreatedAt,
		&s.OpenAt,
		&s.CloseAt,
		&s.Locked,
		&s.SubmittedBy,
		&s.SubmittedAt,
		&s.AttendanceCode,
		&s.OverdueNotifiedAt,
	)
	return s, mapErr(err)
}

func (q *Queries) listSessions(ctx context.Context, sql string, args ...any) ([]attendance.Session, error) {
	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	sessions := []attendance.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, mapErr(rows.Err())
}

func (q *Queries) CreateSession(ctx context.Context, params attendance.CreateSessionParams) (attendance.Session, error) {
	return scanSession(q.db.QueryRow(ctx, `
		INSERT INTO attendance_sessions (event_id, label, created_by, created_at, open_at, close_at, attendance_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+sessionColumns,
		params.EventID, params.Label, params.CreatedBy, params.CreatedAt, params.OpenAt, params.CloseAt, params.AttendanceCode))
}

func (q *Queries) GetSession(ctx context.Context, id int64) (attendance.Session, error) {
	return scanSession(q.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM attendance_sessions WHERE id = $1`, id))
}

func (q *Queries) GetSessionForUpdate(ctx context.Context, id int64) (attendance.Session, error) {
	return scanSession(q.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM attendance_sessions WHERE id = $1 FOR UPDATE`, id))
}

func (q *Queries) FindActiveSession(ctx context.Context, eventID int64, label string) (attendance.Session, error) {
	return scanSession(q.db.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM attendance_sessions
		WHERE event_id = $1 AND label = $2 AND NOT locked
		ORDER BY id DESC
		LIMIT 1
	`, eventID, label))
}

func (q *Queries) ListSessionsByEvent(ctx context.Context, eventID int64) ([]attendance.Session, error) {
	return q.listSessions(ctx, `
		SELECT `+sessionColumns+`
		FROM attendance_sessions
		WHERE event_id = $1
		ORDER BY created_at, id
	`, eventID)
}

func (q *Queries) UpdateSessionWindow(ctx context.Context, id int64, openAt, closeAt *time.Time) (attendance.Session, error) {
	return scanSession(q.db.QueryRow(ctx, `
		UPDATE attendance_sessions
		SET open_at = $2, close_at = $3
		WHERE id = $1
		RETURNING `+sessionColumns,
		id, openAt, closeAt))
}

// SubmitSession locks the session in one guarded statement. A session that
// is already locked yields attendance.ErrNotFound.
func (q *Queries) SubmitSession(ctx context.Context, id, submittedBy int64, at time.Time) (attendance.Session, error) {
	return scanSession(q.db.QueryRow(ctx, `
		UPDATE attendance_sessions
		SET locked = true, close_at = $3, submitted_by = $2, submitted_at = $3
		WHERE id = $1 AND NOT locked
		RETURNING `+sessionColumns,
		id, submittedBy, at))
}

func (q *Queries) ListOverdueSessions(ctx context.Context, now time.Time, limit int) ([]attendance.Session, error) {
	return q.listSessions(ctx, `
		SELECT `+sessionColumns+`
		FROM attendance_sessions
		WHERE NOT locked AND overdue_notified_at IS NULL AND close_at < $1
		ORDER BY id
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, now, limit)
}

func (q *Queries) MarkOverdueNotified(ctx context.Context, id int64, at time.Time) error {
	tag, err := q.db.Exec(ctx, `UPDATE attendance_sessions SET overdue_notified_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return attendance.ErrNotFound
	}
	return nil
}

const recordColumns = `id, session_id, student_id, status, ref_code, created_at, updated_at`

func scanRecord(row pgx.Row) (attendance.Record, error) {
	var (
		r      attendance.Record
		status string
	)
	if err := row.Scan(&r.ID, &r.SessionID, &r.StudentID, &status, &r.RefCode, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return attendance.Record{}, mapErr(err)
	}
	r.Status = attendance.Status(status)
	return r, nil
}

func (q *Queries) GetRecordForUpdate(ctx context.Context, sessionID, studentID int64) (attendance.Record, error) {
	return scanRecord(q.db.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM attendance_records
		WHERE session_id = $1 AND student_id = $2
		FOR UPDATE
	`, sessionID, studentID))
}

func (q *Queries) CreateRecord(ctx context.Context, params attendance.CreateRecordParams) (attendance.Record, error) {
	return scanRecord(q.db.QueryRow(ctx, `
		INSERT INTO attendance_records (session_id, student_id, status, ref_code, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING `+recordColumns,
		params.SessionID, params.StudentID, string(params.Status), params.RefCode, params.CreatedAt))
}

func (q *Queries) UpdateRecordStatus(ctx context.Context, id int64, status attendance.Status, at time.Time) (attendance.Record, error) {
	return scanRecord(q.db.QueryRow(ctx, `
		UPDATE attendance_records
		SET status = $2, updated_at = $3
		WHERE id = $1
		RETURNING `+recordColumns,
		id, string(status), at))
}

func (q *Queries) RefCodeExists(ctx context.Context, code string, excludeRecordID int64) (bool, error) {
	return q.exists(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM attendance_records
			WHERE upper(ref_code) = upper($1) AND id <> $2
		)
	`, code, excludeRecordID)
}

func (q *Queries) FindVerification(ctx context.Context, code string) (attendance.Verification, error) {
	var (
		v       attendance.Verification
		student attendance.Student
		status  string
	)
	row := q.db.QueryRow(ctx, `
		SELECT r.ref_code, COALESCE(e.name, ''), COALESCE(s.label, ''),
			COALESCE(u.roll_no, ''), u.first_name, u.last_name, r.status, r.created_at
		FROM attendance_records r
		JOIN users u ON u.id = r.student_id
		LEFT JOIN attendance_sessions s ON s.id = r.session_id
		LEFT JOIN events e ON e.id = s.event_id
		WHERE upper(r.ref_code) = upper($1)
	`, code)
	err := row.Scan(&v.RefCode, &v.EventName, &v.SessionLabel, &student.RollNo, &student.FirstName, &student.LastName, &status, &v.RecordedAt)
	if err != nil {
		return attendance.Verification{}, mapErr(err)
	}
	v.RollNo = student.RollNo
	v.StudentName = student.FullName()
	v.Status = attendance.Status(status)
	return v, nil
}

func (q *Queries) ListExportRows(ctx context.Context, eventID int64, sessionID *int64) ([]attendance.ExportRow, error) {
	rows, err := q.db.Query(ctx, `
		SELECT r.student_id, COALESCE(u.roll_no, ''), u.first_name, u.last_name, u.department,
			r.status, r.created_at, s.id, s.label, r.ref_code
		FROM attendance_records r
		JOIN attendance_sessions s ON s.id = r.session_id
		JOIN users u ON u.id = r.student_id
		WHERE s.event_id = $1 AND ($2::bigint IS NULL OR s.id = $2)
		ORDER BY s.id, u.roll_no
	`, eventID, sessionID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	out := []attendance.ExportRow{}
	for rows.Next() {
		var (
			row     attendance.ExportRow
			student attendance.Student
			status  string
		)
		if err := rows.Scan(&row.StudentID, &student.RollNo, &student.FirstName, &student.LastName, &student.Department,
			&status, &row.RecordedAt, &row.SessionID, &row.SessionLabel, &row.RefCode); err != nil {
			return nil, err
		}
		row.RollNo = student.RollNo
		row.Name = student.FullName()
		row.Department = student.Department
		row.Status = attendance.Status(status)
		out = append(out, row)
	}
	return out, mapErr(rows.Err())
}

func (q *Queries) AddClubCoordinator(ctx context.Context, clubID, userID int64) (bool, error) {
	tag, err := q.db.Exec(ctx, `
		INSERT INTO club_coordinators (club_id, user_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, clubID, userID)
	if err != nil {
		return false, mapErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (q *Queries) RemoveClubCoordinator(ctx context.Context, clubID, userID int64) (bool, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM club_coordinators WHERE club_id = $1 AND user_id = $2`, clubID, userID)
	if err != nil {
		return false, mapErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (q *Queries) CountCoordinatedClubs(ctx context.Context, userID int64) (int, error) {
	var n int
	err := q.db.QueryRow(ctx, `SELECT count(*) FROM club_coordinators WHERE user_id = $1`, userID).Scan(&n)
	return n, mapErr(err)
}

func (q *Queries) GrantRole(ctx context.Context, userID int64, role auth.Role) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO user_roles (user_id, role) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, userID, string(role))
	return mapErr(err)
}

func (q *Queries) RevokeRole(ctx context.Context, userID int64, role auth.Role) error {
	_, err := q.db.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role = $2`, userID, string(role))
	return mapErr(err)
}

func (q *Queries) exists(ctx context.Context, sql string, args ...any) (bool, error) {
	var ok bool
	err := q.db.QueryRow(ctx, sql, args...).Scan(&ok)
	return ok, mapErr(err)
}
