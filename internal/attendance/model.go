package attendance

import "time"

// Session is a time-boxed check-in window identified by a secret token.
type Session struct {
	ID        int64     `json:"session_id"`
	Token     string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether now is strictly past the session expiry at second
// granularity. A session is still valid at exactly ExpiresAt.
func (s Session) Expired(now time.Time) bool {
	return now.UTC().Truncate(time.Second).After(s.ExpiresAt)
}

// Student is identified by a case-sensitive roll number.
type Student struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	RollNumber string    `json:"roll_number"`
	CreatedAt  time.Time `json:"created_at"`
}

// Record is one attendance event; unique per (StudentID, SessionID).
type Record struct {
	ID        int64     `json:"id"`
	StudentID int64     `json:"student_id"`
	SessionID int64     `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
}

// RecordView is a Record joined with the student it belongs to.
type RecordView struct {
	Record
	RollNumber string `json:"roll_number"`
	Name       string `json:"name"`
}

// ScanLog is an audit entry for a single redemption attempt.
type ScanLog struct {
	ID          string    `json:"id"`
	SessionID   int64     `json:"session_id"`
	RollNumber  string    `json:"roll_number"`
	Outcome     Outcome   `json:"outcome"`
	ClientIP    string    `json:"client_ip"`
	AttemptedAt time.Time `json:"attempted_at"`
}

// Tally counts a session's records and its audited redemption attempts.
type Tally struct {
	Present  int
	Attempts map[Outcome]int
}

// SessionStats is the live view of a session while its QR code is on screen.
type SessionStats struct {
	SessionID            int64           `json:"session_id"`
	Present              int             `json:"present"`
	Active               bool            `json:"active"`
	TimeRemainingSeconds int64           `json:"time_remaining_seconds"`
	ExpiresAt            time.Time       `json:"expires_at"`
	AttemptsByOutcome    map[Outcome]int `json:"attempts_by_outcome"`
}

// Outcome is the machine-readable result of a validation or redemption.
type Outcome string

const (
	OutcomeOK              Outcome = "ok"
	OutcomeRecorded        Outcome = "recorded"
	OutcomeAlreadyRecorded Outcome = "already_recorded"
	OutcomeNotFound        Outcome = "not_found"
	OutcomeTokenMismatch   Outcome = "token_mismatch"
	OutcomeExpired         Outcome = "expired"
	OutcomeInvalid         Outcome = "invalid"
	OutcomeError           Outcome = "error"
)

// Message returns the user-facing text for an outcome. Recorded is handled
// by the recorder since it names the student.
func (o Outcome) Message() string {
	switch o {
	case OutcomeOK:
		return "Session is valid."
	case OutcomeRecorded:
		return "Attendance recorded."
	case OutcomeAlreadyRecorded:
		return "Attendance already recorded."
	case OutcomeNotFound:
		return "Invalid session."
	case OutcomeTokenMismatch:
		return "Token mismatch."
	case OutcomeExpired:
		return "Session has expired."
	case OutcomeInvalid:
		return "Please provide your roll number."
	default:
		return "Service temporarily unavailable, please retry."
	}
}

// Err maps a rejection outcome to its sentinel error, or nil.
func (o Outcome) Err() error {
	switch o {
	case OutcomeNotFound:
		return ErrNotFound
	case OutcomeTokenMismatch:
		return ErrTokenMismatch
	case OutcomeExpired:
		return ErrExpired
	case OutcomeInvalid:
		return ErrInvalidInput
	case OutcomeError:
		return ErrStorageUnavailable
	}
	return nil
}
