package db_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/HarshaVardhanRao/StudentActivityCentre/internal/attendance"
	"github.com/HarshaVardhanRao/StudentActivityCentre/internal/auth"
	"github.com/HarshaVardhanRao/StudentActivityCentre/internal/db"
)

type seed struct {
	organizerID int64
	studentID   int64
	walkInID    int64
	clubID      int64
	eventID     int64
}

func openTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("ATTENDANCE_TEST_DB")
	if url == "" {
		t.Skip("set ATTENDANCE_TEST_DB to run")
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, url, 4)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := db.Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pool
}

func insertUser(t *testing.T, pool *pgxpool.Pool, roll, first string, roles ...auth.Role) int64 {
	t.Helper()
	ctx := context.Background()
	var id int64
	err := pool.QueryRow(ctx, `
		INSERT INTO users (username, roll_no, first_name, last_name, department)
		VALUES ($1, NULLIF($2, ''), $3, 'Test', 'CSE')
		RETURNING id
	`, "u-"+uuid.NewString(), roll, first).Scan(&id)
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
	for _, role := range roles {
		if _, err := pool.Exec(ctx, `INSERT INTO user_roles (user_id, role) VALUES ($1, $2)`, id, string(role)); err != nil {
			t.Fatalf("insert role: %v", err)
		}
	}
	return id
}

func seedEvent(t *testing.T, pool *pgxpool.Pool) seed {
	t.Helper()
	ctx := context.Background()
	var s seed
	s.organizerID = insertUser(t, pool, "", "Org", auth.RoleEventOrganizer)
	s.studentID = insertUser(t, pool, "CS"+uuid.NewString()[:4], "Stu", auth.RoleStudent)
	s.walkInID = insertUser(t, pool, "", "Walk", auth.RoleStudent)

	if err := pool.QueryRow(ctx, `INSERT INTO clubs (name) VALUES ($1) RETURNING id`, "club-"+uuid.NewString()).Scan(&s.clubID); err != nil {
		t.Fatalf("insert club: %v", err)
	}
	err := pool.QueryRow(ctx, `
		INSERT INTO events (name, status, club_id, starts_at)
		VALUES ('Integration Fest', 'APPROVED', $1, now())
		RETURNING id
	`, s.clubID).Scan(&s.eventID)
	if err != nil {
		t.Fatalf("insert event: %v", err)
	}
	if _, err := pool.Exec(ctx, `INSERT INTO event_organizers (event_id, user_id) VALUES ($1, $2)`, s.eventID, s.organizerID); err != nil {
		t.Fatalf("insert organizer: %v", err)
	}
	if _, err := pool.Exec(ctx, `INSERT INTO event_registrations (event_id, student_id) VALUES ($1, $2)`, s.eventID, s.studentID); err != nil {
		t.Fatalf("insert registration: %v", err)
	}
	return s
}

func TestStoreAttendanceFlow(t *testing.T) {
	pool := openTestPool(t)
	s := seedEvent(t, pool)
	ctx := context.Background()
	svc := attendance.NewService(db.NewStore(pool), attendance.Config{DefaultSessionDuration: time.Hour})

	organizer, err := svc.Principal(ctx, s.organizerID)
	if err != nil {
		t.Fatalf("principal: %v", err)
	}
	session, err := svc.OpenSession(ctx, organizer, attendance.OpenSessionParams{EventID: s.eventID, Label: "Day 1", ForceOpen: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	created, err := svc.RecordStatus(ctx, organizer, session.ID, s.studentID, attendance.StatusPresent)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	updated, err := svc.RecordStatus(ctx, organizer, session.ID, s.studentID, attendance.StatusAbsent)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Created || updated.Record.ID != created.Record.ID || updated.Record.RefCode != created.Record.RefCode {
		t.Fatalf("expected update in place, got %+v", updated)
	}

	v, err := svc.Verify(ctx, strings.ToLower(created.Record.RefCode))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if v.EventName != "Integration Fest" || v.SessionLabel != "Day 1" || v.Status != attendance.StatusAbsent {
		t.Fatalf("unexpected verification %+v", v)
	}

	if _, err := svc.SpotRegister(ctx, organizer, session.ID, s.walkInID, attendance.StatusPresent); err != nil {
		t.Fatalf("spot: %v", err)
	}
	_, rows, err := svc.Export(ctx, organizer, s.eventID, &session.ID)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 export rows, got %d", len(rows))
	}

	if _, err := svc.SubmitSession(ctx, organizer, session.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	_, err = svc.SubmitSession(ctx, organizer, session.ID)
	if e, ok := attendance.AsError(err); !ok || e.Code != attendance.CodeSessionLocked {
		t.Fatalf("expected session_locked, got %v", err)
	}
}

func TestStoreMapsUniqueViolation(t *testing.T) {
	pool := openTestPool(t)
	s := seedEvent(t, pool)
	ctx := context.Background()
	store := db.NewStore(pool)

	err := store.CreateRegistration(ctx, s.eventID, s.studentID, false, time.Now())
	if !errors.Is(err, attendance.ErrUniqueViolation) {
		t.Fatalf("expected unique violation, got %v", err)
	}
	if _, err := store.GetEvent(ctx, -1); !errors.Is(err, attendance.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStoreCoordinatorRoles(t *testing.T) {
	pool := openTestPool(t)
	s := seedEvent(t, pool)
	ctx := context.Background()
	adminID := insertUser(t, pool, "", "Admin", auth.RoleAdmin)
	svc := attendance.NewService(db.NewStore(pool), attendance.Config{})

	admin, err := svc.Principal(ctx, adminID)
	if err != nil {
		t.Fatalf("principal: %v", err)
	}
	if err := svc.AddClubCoordinator(ctx, admin, s.clubID, s.walkInID); err != nil {
		t.Fatalf("add: %v", err)
	}
	p, err := svc.Principal(ctx, s.walkInID)
	if err != nil || !p.HasRole(auth.RoleClubCoordinator) {
		t.Fatalf("expected CLUB_COORDINATOR granted, got %+v (%v)", p, err)
	}
	if err := svc.RemoveClubCoordinator(ctx, admin, s.clubID, s.walkInID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	p, err = svc.Principal(ctx, s.walkInID)
	if err != nil || p.HasRole(auth.RoleClubCoordinator) {
		t.Fatalf("expected CLUB_COORDINATOR revoked, got %+v (%v)", p, err)
	}
}
