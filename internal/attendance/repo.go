package attendance

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"campusattend/internal/store"
)

// Repository is the SQL-backed Store. Queries use $n placeholders in order
// of appearance so the same text runs on Postgres (pgx) and SQLite.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo over an open, migrated database.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateSession(ctx context.Context, token string, createdAt, expiresAt time.Time) (Session, error) {
	s := Session{Token: token, CreatedAt: createdAt, ExpiresAt: expiresAt}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_sessions (token, created_at, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id
	`, token, createdAt, expiresAt)
	if err := row.Scan(&s.ID); err != nil {
		return Session{}, err
	}
	return s, nil
}

func (r *Repository) GetSession(ctx context.Context, id int64) (Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, token, created_at, expires_at
		FROM attendance_sessions WHERE id = $1
	`, id)
	var s Session
	if err := row.Scan(&s.ID, &s.Token, &s.CreatedAt, &s.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrNotFound
		}
		return Session{}, err
	}
	s.CreatedAt, s.ExpiresAt = s.CreatedAt.UTC(), s.ExpiresAt.UTC()
	return s, nil
}

// ListSessions returns the most recent sessions first.
func (r *Repository) ListSessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, token, created_at, expires_at
		FROM attendance_sessions
		ORDER BY id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.Token, &s.CreatedAt, &s.ExpiresAt); err != nil {
			return nil, err
		}
		s.CreatedAt, s.ExpiresAt = s.CreatedAt.UTC(), s.ExpiresAt.UTC()
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r *Repository) StudentByRoll(ctx context.Context, roll string) (Student, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, roll_number, created_at
		FROM students WHERE roll_number = $1
	`, roll)
	var st Student
	if err := row.Scan(&st.ID, &st.Name, &st.RollNumber, &st.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Student{}, ErrNotFound
		}
		return Student{}, err
	}
	st.CreatedAt = st.CreatedAt.UTC()
	return st, nil
}

func (r *Repository) CreateStudent(ctx context.Context, name, roll string, createdAt time.Time) (Student, error) {
	st := Student{Name: name, RollNumber: roll, CreatedAt: createdAt}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO students (name, roll_number, created_at)
		VALUES ($1, $2, $3)
		RETURNING id
	`, name, roll, createdAt)
	if err := row.Scan(&st.ID); err != nil {
		if store.IsUniqueViolation(err) {
			return Student{}, ErrConflict
		}
		return Student{}, err
	}
	return st, nil
}

func (r *Repository) RecordExists(ctx context.Context, studentID, sessionID int64) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `
		SELECT 1 FROM attendance_records
		WHERE student_id = $1 AND session_id = $2
		LIMIT 1
	`, studentID, sessionID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// InsertRecord relies on UNIQUE (student_id, session_id); a violation is
// reported as ErrConflict.
func (r *Repository) InsertRecord(ctx context.Context, studentID, sessionID int64, at time.Time) (Record, error) {
	rec := Record{StudentID: studentID, SessionID: sessionID, Timestamp: at}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records (student_id, session_id, recorded_at)
		VALUES ($1, $2, $3)
		RETURNING id
	`, studentID, sessionID, at)
	if err := row.Scan(&rec.ID); err != nil {
		if store.IsUniqueViolation(err) {
			return Record{}, ErrConflict
		}
		return Record{}, err
	}
	return rec, nil
}

// ListRecords returns a session's records, oldest first.
func (r *Repository) ListRecords(ctx context.Context, sessionID int64) ([]RecordView, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ar.id, ar.student_id, ar.session_id, ar.recorded_at, s.roll_number, s.name
		FROM attendance_records ar
		JOIN students s ON s.id = ar.student_id
		WHERE ar.session_id = $1
		ORDER BY ar.recorded_at ASC, ar.id ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []RecordView
	for rows.Next() {
		var v RecordView
		if err := rows.Scan(&v.ID, &v.StudentID, &v.SessionID, &v.Timestamp, &v.RollNumber, &v.Name); err != nil {
			return nil, err
		}
		v.Timestamp = v.Timestamp.UTC()
		res = append(res, v)
	}
	return res, rows.Err()
}

// InsertScanLog is idempotent on the entry id so redelivered queue messages
// do not duplicate audit rows.
func (r *Repository) InsertScanLog(ctx context.Context, e ScanLog) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_scan_logs (id, session_id, roll_number, outcome, client_ip, attempted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, e.ID, e.SessionID, e.RollNumber, string(e.Outcome), e.ClientIP, e.AttemptedAt)
	return err
}

// SessionTally counts records and audited attempts per outcome. Attempts lag
// behind while scan logs wait on the queue.
func (r *Repository) SessionTally(ctx context.Context, sessionID int64) (Tally, error) {
	t := Tally{Attempts: map[Outcome]int{}}
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attendance_records WHERE session_id = $1`, sessionID,
	).Scan(&t.Present)
	if err != nil {
		return Tally{}, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT outcome, COUNT(*)
		FROM attendance_scan_logs
		WHERE session_id = $1
		GROUP BY outcome
	`, sessionID)
	if err != nil {
		return Tally{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			outcome string
			n       int
		)
		if err := rows.Scan(&outcome, &n); err != nil {
			return Tally{}, err
		}
		t.Attempts[Outcome(outcome)] = n
	}
	return t, rows.Err()
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
