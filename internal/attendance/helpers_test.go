package attendance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(at time.Time) *fakeClock { return &fakeClock{now: at} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(at time.Time) {
	c.mu.Lock()
	c.now = at
	c.mu.Unlock()
}

type stubEncoder struct {
	ref   string
	err   error
	calls int
	url   string
}

func (e *stubEncoder) Encode(_ context.Context, _ int64, url string) (string, error) {
	e.calls++
	e.url = url
	return e.ref, e.err
}

type countingSweeper struct {
	mu sync.Mutex
	n  int
}

func (s *countingSweeper) Trigger() {
	s.mu.Lock()
	s.n++
	s.mu.Unlock()
}

type captureSink struct {
	mu      sync.Mutex
	entries []ScanLog
	err     error
}

func (s *captureSink) PublishScan(_ context.Context, e ScanLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return s.err
}

func (s *captureSink) all() []ScanLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ScanLog(nil), s.entries...)
}

// storeSink persists audit entries synchronously, standing in for the queue
// and its consumer.
type storeSink struct {
	store Store
}

func (s storeSink) PublishScan(ctx context.Context, e ScanLog) error {
	return s.store.InsertScanLog(ctx, e)
}

// stallingSink blocks until its context gives up, like a publish against a
// Redis that accepted the connection but never answers.
type stallingSink struct {
	mu   sync.Mutex
	errs []error
}

func (s *stallingSink) PublishScan(ctx context.Context, _ ScanLog) error {
	<-ctx.Done()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, ctx.Err())
	return ctx.Err()
}

func (s *stallingSink) seen() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errs...)
}

// lateStudentStore loses every student insert to a writer that got there
// first: the row appears, but CreateStudent reports a conflict.
type lateStudentStore struct {
	*MemoryStore
}

func (s lateStudentStore) CreateStudent(ctx context.Context, name, roll string, at time.Time) (Student, error) {
	if _, err := s.MemoryStore.CreateStudent(ctx, "Other Writer", roll, at); err != nil {
		return Student{}, err
	}
	return Student{}, ErrConflict
}

// racyStore never sees an existing record, so every concurrent redemption
// reaches InsertRecord and has to rely on the uniqueness constraint.
type racyStore struct {
	*MemoryStore
}

func (racyStore) RecordExists(context.Context, int64, int64) (bool, error) { return false, nil }

// downStore fails every session lookup like an unreachable database.
type downStore struct {
	*MemoryStore
}

var errConnRefused = errors.New("dial tcp 127.0.0.1:5432: connection refused")

func (downStore) GetSession(context.Context, int64) (Session, error) {
	return Session{}, errConnRefused
}

type fixture struct {
	store    Store
	clock    *fakeClock
	issuer   *Issuer
	recorder *Recorder
	sink     *captureSink
}

func newFixture(t *testing.T, st Store) *fixture {
	t.Helper()
	clock := newFakeClock(t0)
	sink := &captureSink{}
	validator := NewValidator(st)
	return &fixture{
		store:    st,
		clock:    clock,
		sink:     sink,
		issuer:   NewIssuer(st, nil, "https://attend.example.edu", DefaultTTL, nil, WithIssuerClock(clock.Now)),
		recorder: NewRecorder(st, validator, nil, WithRecorderClock(clock.Now), WithScanSink(sink)),
	}
}

func (f *fixture) session(t *testing.T) Session {
	t.Helper()
	issued, err := f.issuer.CreateSession(context.Background())
	require.NoError(t, err)
	return issued.Session
}
