package attendance

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusattend/internal/store"
)

func newSQLiteRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := store.NewSQLite(context.Background(), filepath.Join(t.TempDir(), "attendance.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewRepository(db.Client)
}

func TestRepositorySessions(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()

	a, err := repo.CreateSession(ctx, "tok-a", t0, t0.Add(DefaultTTL))
	require.NoError(t, err)
	b, err := repo.CreateSession(ctx, "tok-b", t0.Add(time.Minute), t0.Add(time.Minute+DefaultTTL))
	require.NoError(t, err)
	assert.Greater(t, b.ID, a.ID, "ids are sequential")

	got, err := repo.GetSession(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "tok-a", got.Token)
	assert.True(t, got.CreatedAt.Equal(t0))
	assert.True(t, got.ExpiresAt.Equal(t0.Add(DefaultTTL)))

	_, err = repo.GetSession(ctx, b.ID+10)
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := repo.ListSessions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, b.ID, list[0].ID, "newest first")
}

func TestRepositoryUniqueness(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()

	sess, err := repo.CreateSession(ctx, "tok", t0, t0.Add(DefaultTTL))
	require.NoError(t, err)
	st, err := repo.CreateStudent(ctx, "Asha", "21BCS999", t0)
	require.NoError(t, err)

	_, err = repo.CreateStudent(ctx, "Asha again", "21BCS999", t0)
	assert.ErrorIs(t, err, ErrConflict)

	found, err := repo.StudentByRoll(ctx, "21BCS999")
	require.NoError(t, err)
	assert.Equal(t, st.ID, found.ID)
	_, err = repo.StudentByRoll(ctx, "21bcs999")
	assert.ErrorIs(t, err, ErrNotFound, "roll numbers are case-sensitive")

	exists, err := repo.RecordExists(ctx, st.ID, sess.ID)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = repo.InsertRecord(ctx, st.ID, sess.ID, t0.Add(time.Second))
	require.NoError(t, err)
	_, err = repo.InsertRecord(ctx, st.ID, sess.ID, t0.Add(2*time.Second))
	assert.ErrorIs(t, err, ErrConflict)

	exists, err = repo.RecordExists(ctx, st.ID, sess.ID)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRepositoryListRecordsOrdered(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()
	sess, err := repo.CreateSession(ctx, "tok", t0, t0.Add(DefaultTTL))
	require.NoError(t, err)

	late, err := repo.CreateStudent(ctx, "Late", "R2", t0)
	require.NoError(t, err)
	early, err := repo.CreateStudent(ctx, "Early", "R1", t0)
	require.NoError(t, err)

	_, err = repo.InsertRecord(ctx, late.ID, sess.ID, t0.Add(90*time.Second))
	require.NoError(t, err)
	_, err = repo.InsertRecord(ctx, early.ID, sess.ID, t0.Add(10*time.Second))
	require.NoError(t, err)

	records, err := repo.ListRecords(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "R1", records[0].RollNumber)
	assert.Equal(t, "Early", records[0].Name)
	assert.True(t, records[0].Timestamp.Equal(t0.Add(10*time.Second)))
	assert.Equal(t, "R2", records[1].RollNumber)

	other, err := repo.ListRecords(ctx, sess.ID+1)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestRepositoryScanLogIdempotent(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()
	entry := ScanLog{ID: "5f0c6f36-2d4e-4b7e-9f38-1c1c0c2b9a11", SessionID: 1, RollNumber: "R1", Outcome: OutcomeExpired, AttemptedAt: t0}

	require.NoError(t, repo.InsertScanLog(ctx, entry))
	require.NoError(t, repo.InsertScanLog(ctx, entry), "redelivery is a no-op")

	var n int
	require.NoError(t, repo.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attendance_scan_logs`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestRepositoryRecorderEndToEnd(t *testing.T) {
	repo := newSQLiteRepo(t)
	f := newFixture(t, repo)
	sess := f.session(t)

	res, err := f.recorder.Record(context.Background(), RecordInput{SessionID: sess.ID, Token: sess.Token, RollNumber: "21BCS999"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRecorded, res.Status)
	assert.Equal(t, "Attendance recorded. Thank you, Unknown!", res.Message)

	assertSingleRecordAfter(t, f, repo, sess)
}

func TestRepositoryConcurrentRedemption(t *testing.T) {
	repo := newSQLiteRepo(t)
	f := newFixture(t, repo)
	sess := f.session(t)
	assertSingleRecord(t, f, repo, sess, 20)
}

func assertSingleRecordAfter(t *testing.T, f *fixture, st Store, sess Session) {
	t.Helper()
	res, err := f.recorder.Record(context.Background(), RecordInput{SessionID: sess.ID, Token: sess.Token, RollNumber: "21BCS999"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyRecorded, res.Status)

	records, err := st.ListRecords(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestOpenMemoryAndUnknown(t *testing.T) {
	st, closeFn, err := Open(context.Background(), BackendMemory, "")
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &MemoryStore{}, st)

	_, _, err = Open(context.Background(), "cassandra", "")
	assert.Error(t, err)
}

func TestOpenSQLite(t *testing.T) {
	st, closeFn, err := Open(context.Background(), BackendSQLite, filepath.Join(t.TempDir(), "nested", "a.db"))
	require.NoError(t, err)
	defer closeFn()
	require.NoError(t, st.Ping(context.Background()))
}
