package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"campusattend/internal/metrics"
)

const defaultStudentName = "Unknown"

// publishTimeout bounds the audit publish so a slow queue never holds up the
// student's response.
const publishTimeout = 250 * time.Millisecond

// Input limits, in characters.
const (
	MaxRollNumberLen = 64
	MaxNameLen       = 128
)

// RecordInput is a validated redemption request.
type RecordInput struct {
	SessionID  int64
	Token      string
	RollNumber string
	Name       string
	ClientIP   string
}

// RecordResult is what the student sees after a redemption attempt.
type RecordResult struct {
	Status  Outcome  `json:"status"`
	Message string   `json:"message"`
	Student *Student `json:"student,omitempty"`
}

// ScanSink receives an audit entry for every redemption attempt.
type ScanSink interface {
	PublishScan(ctx context.Context, entry ScanLog) error
}

// Recorder turns a valid session plus a student identity into exactly one
// attendance record.
type Recorder struct {
	store     Store
	validator *Validator
	sink      ScanSink
	now       Clock
	log       *zap.Logger
}

// RecorderOption customises a Recorder.
type RecorderOption func(*Recorder)

// WithRecorderClock overrides the time source.
func WithRecorderClock(c Clock) RecorderOption { return func(r *Recorder) { r.now = c } }

// WithScanSink publishes an audit entry for every attempt.
func WithScanSink(s ScanSink) RecorderOption { return func(r *Recorder) { r.sink = s } }

// NewRecorder builds a recorder.
func NewRecorder(store Store, validator *Validator, log *zap.Logger, opts ...RecorderOption) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Recorder{store: store, validator: validator, now: systemClock, log: log}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record redeems a session for a student. Rejections and the idempotent
// already-recorded case are reported through RecordResult.Status; the error
// is non-nil only when storage is unavailable.
func (r *Recorder) Record(ctx context.Context, in RecordInput) (res RecordResult, err error) {
	in.RollNumber = strings.TrimSpace(in.RollNumber)
	in.Name = strings.TrimSpace(in.Name)
	now := r.now().UTC()

	defer func() {
		status := res.Status
		if err != nil {
			status = OutcomeError
		}
		metrics.Redemptions.WithLabelValues(string(status)).Inc()
		r.publish(ctx, in, status, now)
	}()

	v, err := r.validator.Validate(ctx, in.SessionID, in.Token, now)
	if err != nil {
		return RecordResult{}, err
	}
	if !v.OK {
		r.log.Debug("redemption rejected", zap.Int64("session_id", in.SessionID), zap.Error(v.Reason.Err()))
		return reject(v.Reason), nil
	}
	if in.RollNumber == "" {
		return reject(OutcomeInvalid), nil
	}
	if !utf8.ValidString(in.RollNumber) || !utf8.ValidString(in.Name) {
		return RecordResult{Status: OutcomeInvalid, Message: "Roll number or name is not valid."}, nil
	}
	if utf8.RuneCountInString(in.RollNumber) > MaxRollNumberLen || utf8.RuneCountInString(in.Name) > MaxNameLen {
		return RecordResult{Status: OutcomeInvalid, Message: "Roll number or name is too long."}, nil
	}

	student, err := r.resolveStudent(ctx, in.RollNumber, in.Name, now)
	if err != nil {
		return RecordResult{}, err
	}

	exists, err := r.store.RecordExists(ctx, student.ID, in.SessionID)
	if err != nil {
		return RecordResult{}, unavailable("check record", err)
	}
	if exists {
		return already(student), nil
	}

	_, err = r.store.InsertRecord(ctx, student.ID, in.SessionID, now.Truncate(time.Second))
	if errors.Is(err, ErrConflict) {
		// Lost the race against a concurrent scan by the same student.
		return already(student), nil
	}
	if err != nil {
		return RecordResult{}, unavailable("insert record", err)
	}

	return RecordResult{
		Status:  OutcomeRecorded,
		Message: fmt.Sprintf("Attendance recorded. Thank you, %s!", student.Name),
		Student: &student,
	}, nil
}

// resolveStudent finds the student by roll number, creating it on first
// sight. A conflicting concurrent create means the row now exists.
func (r *Recorder) resolveStudent(ctx context.Context, roll, name string, now time.Time) (Student, error) {
	st, err := r.store.StudentByRoll(ctx, roll)
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Student{}, unavailable("find student", err)
	}

	if name == "" {
		name = defaultStudentName
	}
	st, err = r.store.CreateStudent(ctx, name, roll, now.Truncate(time.Second))
	if errors.Is(err, ErrConflict) {
		st, err = r.store.StudentByRoll(ctx, roll)
		if err != nil {
			return Student{}, unavailable("find student", err)
		}
		return st, nil
	}
	if err != nil {
		return Student{}, unavailable("create student", err)
	}
	r.log.Info("student auto-registered", zap.String("roll_number", roll), zap.Int64("student_id", st.ID))
	return st, nil
}

func (r *Recorder) publish(ctx context.Context, in RecordInput, status Outcome, at time.Time) {
	if r.sink == nil {
		return
	}
	entry := ScanLog{
		ID:          uuid.NewString(),
		SessionID:   in.SessionID,
		RollNumber:  in.RollNumber,
		Outcome:     status,
		ClientIP:    in.ClientIP,
		AttemptedAt: at.Truncate(time.Second),
	}
	// Detached from the request so a client hang-up still gets audited.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := r.sink.PublishScan(ctx, entry); err != nil {
		r.log.Warn("scan log publish failed", zap.Int64("session_id", in.SessionID), zap.Error(err))
	}
}

func reject(reason Outcome) RecordResult {
	return RecordResult{Status: reason, Message: reason.Message()}
}

func already(st Student) RecordResult {
	return RecordResult{Status: OutcomeAlreadyRecorded, Message: OutcomeAlreadyRecorded.Message(), Student: &st}
}
