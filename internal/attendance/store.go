package attendance

import (
	"context"
	"time"

	"github.com/HarshaVardhanRao/StudentActivityCentre/internal/auth"
)

// Queries is the storage surface used by Service. Lookups return ErrNotFound
// when nothing matches and ErrUniqueViolation when a unique constraint fails.
type Queries interface {
	GetEvent(ctx context.Context, id int64) (Event, error)
	GetStudent(ctx context.Context, id int64) (Student, error)
	GetClub(ctx context.Context, id int64) (Club, error)
	UserExists(ctx context.Context, id int64) (bool, error)
	GetUserRoles(ctx context.Context, userID int64) ([]auth.Role, error)
	GetEventAccess(ctx context.Context, eventID, userID int64) (EventAccess, error)
	ListEventOrganizers(ctx context.Context, eventID int64) ([]int64, error)

	HasRegistration(ctx context.Context, eventID, studentID int64) (bool, error)
	CreateRegistration(ctx context.Context, eventID, studentID int64, spot bool, at time.Time) error

	CreateSession(ctx context.Context, params CreateSessionParams) (Session, error)
	GetSession(ctx context.Context, id int64) (Session, error)
	GetSessionForUpdate(ctx context.Context, id int64) (Session, error)
	FindActiveSession(ctx context.Context, eventID int64, label string) (Session, error)
	ListSessionsByEvent(ctx context.Context, eventID int64) ([]Session, error)
	UpdateSessionWindow(ctx context.Context, id int64, openAt, closeAt *time.Time) (Session, error)
	SubmitSession(ctx context.Context, id, submittedBy int64, at time.Time) (Session, error)
	ListOverdueSessions(ctx context.Context, now time.Time, limit int) ([]Session, error)
	MarkOverdueNotified(ctx context.Context, id int64, at time.Time) error

	GetRecordForUpdate(ctx context.Context, sessionID, studentID int64) (Record, error)
	CreateRecord(ctx context.Context, params CreateRecordParams) (Record, error)
	UpdateRecordStatus(ctx context.Context, id int64, status Status, at time.Time) (Record, error)
	RefCodeExists(ctx context.Context, code string, excludeRecordID int64) (bool, error)
	FindVerification(ctx context.Context, code string) (Verification, error)
	ListExportRows(ctx context.Context, eventID int64, sessionID *int64) ([]ExportRow, error)

	AddClubCoordinator(ctx context.Context, clubID, userID int64) (bool, error)
	RemoveClubCoordinator(ctx context.Context, clubID, userID int64) (bool, error)
	CountCoordinatedClubs(ctx context.Context, userID int64) (int, error)
	GrantRole(ctx context.Context, userID int64, role auth.Role) error
	RevokeRole(ctx context.Context, userID int64, role auth.Role) error
}

type Store interface {
	Queries
	// WithTx runs fn in one transaction, rolling back when fn fails.
	WithTx(ctx context.Context, fn func(Queries) error) error
}

// VerificationCache caches public lookups keyed by normalized reference code.
type VerificationCache interface {
	Get(ctx context.Context, code string) (Verification, bool, error)
	Set(ctx context.Context, v Verification) error
	Invalidate(ctx context.Context, code string) error
}

// Metrics receives counters from the service.
type Metrics interface {
	SessionOpened(implicit bool)
	SessionExtended()
	SessionSubmitted()
	RecordSaved(created bool)
	RefCodeCollision()
	Verification(found bool)
	TxRetry()
}

type nopMetrics struct{}

func (nopMetrics) SessionOpened(bool) {}
func (nopMetrics) SessionExtended() {}
func (nopMetrics) SessionSubmitted() {}
func (nopMetrics) RecordSaved(bool) {}
func (nopMetrics) RefCodeCollision() {}
func (nopMetrics) Verification(bool) {}
func (nopMetrics) TxRetry() {}
