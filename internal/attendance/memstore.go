package attendance

import (
	"context"
	"sort"
	"sync"
	"time"
)

type recordKey struct {
	studentID int64
	sessionID int64
}

// MemoryStore is a mutex-guarded Store for development and tests. It enforces
// the same uniqueness rules as the SQL schema.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[int64]Session
	students map[string]Student
	records  map[recordKey]Record
	scans    []ScanLog
	nextID   int64
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[int64]Session),
		students: make(map[string]Student),
		records:  make(map[recordKey]Record),
	}
}

func (m *MemoryStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *MemoryStore) CreateSession(ctx context.Context, token string, createdAt, expiresAt time.Time) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Session{ID: m.id(), Token: token, CreatedAt: createdAt, ExpiresAt: expiresAt}
	m.sessions[s.ID] = s
	return s, nil
}

func (m *MemoryStore) GetSession(ctx context.Context, id int64) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryStore) ListSessions(ctx context.Context, limit int) ([]Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	out := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) StudentByRoll(ctx context.Context, roll string) (Student, error) {
	if err := ctx.Err(); err != nil {
		return Student{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.students[roll]
	if !ok {
		return Student{}, ErrNotFound
	}
	return st, nil
}

func (m *MemoryStore) CreateStudent(ctx context.Context, name, roll string, createdAt time.Time) (Student, error) {
	if err := ctx.Err(); err != nil {
		return Student{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.students[roll]; ok {
		return Student{}, ErrConflict
	}
	st := Student{ID: m.id(), Name: name, RollNumber: roll, CreatedAt: createdAt}
	m.students[roll] = st
	return st, nil
}

func (m *MemoryStore) RecordExists(ctx context.Context, studentID, sessionID int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[recordKey{studentID, sessionID}]
	return ok, nil
}

func (m *MemoryStore) InsertRecord(ctx context.Context, studentID, sessionID int64, at time.Time) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := recordKey{studentID, sessionID}
	if _, ok := m.records[key]; ok {
		return Record{}, ErrConflict
	}
	rec := Record{ID: m.id(), StudentID: studentID, SessionID: sessionID, Timestamp: at}
	m.records[key] = rec
	return rec, nil
}

func (m *MemoryStore) ListRecords(ctx context.Context, sessionID int64) ([]RecordView, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	byID := make(map[int64]Student, len(m.students))
	for _, st := range m.students {
		byID[st.ID] = st
	}
	var out []RecordView
	for _, rec := range m.records {
		if rec.SessionID != sessionID {
			continue
		}
		st := byID[rec.StudentID]
		out = append(out, RecordView{Record: rec, RollNumber: st.RollNumber, Name: st.Name})
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID < out[j].ID
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

func (m *MemoryStore) InsertScanLog(ctx context.Context, entry ScanLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.scans {
		if e.ID == entry.ID {
			return nil
		}
	}
	m.scans = append(m.scans, entry)
	return nil
}

// ScanLogs returns a copy of the audit entries written so far.
func (m *MemoryStore) ScanLogs() []ScanLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ScanLog(nil), m.scans...)
}

func (m *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

func (m *MemoryStore) SessionTally(ctx context.Context, sessionID int64) (Tally, error) {
	if err := ctx.Err(); err != nil {
		return Tally{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t := Tally{Attempts: map[Outcome]int{}}
	for key := range m.records {
		if key.sessionID == sessionID {
			t.Present++
		}
	}
	for _, e := range m.scans {
		if e.SessionID == sessionID {
			t.Attempts[e.Outcome]++
		}
	}
	return t, nil
}
