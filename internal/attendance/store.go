package attendance

import (
	"context"
	"time"
)

// Store is the shared persistence layer for sessions, students and records.
// Implementations must enforce uniqueness of Student.RollNumber and of
// (Record.StudentID, Record.SessionID) atomically on insert, reporting
// violations as ErrConflict. Lookups that find nothing return ErrNotFound.
type Store interface {
	CreateSession(ctx context.Context, token string, createdAt, expiresAt time.Time) (Session, error)
	GetSession(ctx context.Context, id int64) (Session, error)
	ListSessions(ctx context.Context, limit int) ([]Session, error)

	StudentByRoll(ctx context.Context, roll string) (Student, error)
	CreateStudent(ctx context.Context, name, roll string, createdAt time.Time) (Student, error)

	RecordExists(ctx context.Context, studentID, sessionID int64) (bool, error)
	InsertRecord(ctx context.Context, studentID, sessionID int64, at time.Time) (Record, error)
	ListRecords(ctx context.Context, sessionID int64) ([]RecordView, error)

	InsertScanLog(ctx context.Context, entry ScanLog) error
	SessionTally(ctx context.Context, sessionID int64) (Tally, error)
	Ping(ctx context.Context) error
}

// Clock returns the current time; swapped out in tests.
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }
