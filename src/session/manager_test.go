package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/username/folioimport/src/analysis"
	"github.com/username/folioimport/src/database"
	"github.com/username/folioimport/src/models"
)

func setupManager(t *testing.T) (*Manager, int64, string) {
	t.Helper()
	dir := t.TempDir()
	db := database.InitDB(filepath.Join(dir, "test.db"))
	t.Cleanup(func() { db.Close() })

	account := &models.BrokerAccount{Broker: "tastytrade", Name: "test account"}
	_, err := database.NewAccountStore(db).Save(account)
	require.NoError(t, err)

	source := filepath.Join(dir, "upload.csv")
	require.NoError(t, os.WriteFile(source, []byte("Date\n2024-06-01\n"), 0o644))
	return NewManager(db), account.ID, source
}

func testAnalysis() *models.DateAnalysis {
	return &models.DateAnalysis{
		MinDate:        models.NewDate(2024, time.June, 1),
		MaxDate:        models.NewDate(2024, time.June, 14),
		TotalMovements: 30,
	}
}

func testChunks() []models.ChunkInfo {
	return []models.ChunkInfo{
		{ChunkNumber: 1, StartDate: models.NewDate(2024, time.June, 1), EndDate: models.NewDate(2024, time.June, 7), EstimatedMovements: 20},
		{ChunkNumber: 2, StartDate: models.NewDate(2024, time.June, 8), EndDate: models.NewDate(2024, time.June, 14), EstimatedMovements: 10},
	}
}

func TestCreateSessionPersistsSessionAndChunks(t *testing.T) {
	m, accountID, source := setupManager(t)

	sess, err := m.CreateSession(accountID, "upload.csv", source, "hash123", testAnalysis(), testChunks())
	require.NoError(t, err)
	require.NotEmpty(t, sess.Token)
	require.Equal(t, models.PhaseChunkProcessing, sess.Phase)
	require.Equal(t, 2, sess.TotalChunks)

	loaded, err := m.GetByToken(sess.Token)
	require.NoError(t, err)
	require.Equal(t, sess.ID, loaded.ID)
	require.Equal(t, "hash123", loaded.FileContentHash)
	require.Equal(t, 30, loaded.TotalEstimatedMovements)

	chunks, err := m.ChunksFor(sess.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	require.Equal(t, models.ChunkPending, chunks[0].State)
	require.Equal(t, 20, chunks[0].EstimatedMovements)
}

func TestGetByTokenUnknownToken(t *testing.T) {
	m, _, _ := setupManager(t)
	_, err := m.GetByToken("no-such-token")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMarkChunkCompletedUpdatesCountersAtomically(t *testing.T) {
	m, accountID, source := setupManager(t)
	sess, err := m.CreateSession(accountID, "upload.csv", source, "h", testAnalysis(), testChunks())
	require.NoError(t, err)

	require.NoError(t, m.MarkChunkCompleted(sess.ID, 1, 18, 250))

	loaded, err := m.GetByToken(sess.Token)
	require.NoError(t, err)
	require.Equal(t, 18, loaded.ProcessedMovements)

	chunks, err := m.ChunksFor(sess.ID)
	require.NoError(t, err)
	require.Equal(t, models.ChunkCompleted, chunks[0].State)
	require.Equal(t, 18, chunks[0].ActualMovements)
	require.Equal(t, int64(250), chunks[0].DurationMs)
}

func TestMarkChunkCompletedIsIdempotent(t *testing.T) {
	m, accountID, source := setupManager(t)
	sess, err := m.CreateSession(accountID, "upload.csv", source, "h", testAnalysis(), testChunks())
	require.NoError(t, err)

	require.NoError(t, m.MarkChunkCompleted(sess.ID, 1, 18, 250))
	require.NoError(t, m.MarkChunkCompleted(sess.ID, 1, 18, 300))

	loaded, err := m.GetByToken(sess.Token)
	require.NoError(t, err)
	require.Equal(t, 18, loaded.ProcessedMovements, "a re-completed chunk must not double-count")
}

func TestMarkChunkFailedNeverRegressesCompleted(t *testing.T) {
	m, accountID, source := setupManager(t)
	sess, err := m.CreateSession(accountID, "upload.csv", source, "h", testAnalysis(), testChunks())
	require.NoError(t, err)

	require.NoError(t, m.MarkChunkCompleted(sess.ID, 1, 18, 250))
	require.NoError(t, m.MarkChunkFailed(sess.ID, 1))

	chunks, err := m.ChunksFor(sess.ID)
	require.NoError(t, err)
	require.Equal(t, models.ChunkCompleted, chunks[0].State)
}

func TestRemainingChunksEnumeratesNonCompleted(t *testing.T) {
	m, accountID, source := setupManager(t)
	sess, err := m.CreateSession(accountID, "upload.csv", source, "h", testAnalysis(), testChunks())
	require.NoError(t, err)

	require.NoError(t, m.MarkChunkCompleted(sess.ID, 1, 18, 250))
	require.NoError(t, m.MarkChunkFailed(sess.ID, 2))

	remaining, err := m.RemainingChunks(sess.ID)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	require.Equal(t, 2, remaining[0].ChunkNumber)
	require.Equal(t, models.ChunkFailed, remaining[0].State)
}

func TestSessionPhaseTransitions(t *testing.T) {
	m, accountID, source := setupManager(t)
	sess, err := m.CreateSession(accountID, "upload.csv", source, "h", testAnalysis(), testChunks())
	require.NoError(t, err)

	require.NoError(t, m.SetPhase(sess.ID, models.PhaseSnapshot1))
	require.NoError(t, m.SetPhase(sess.ID, models.PhaseSnapshot2))
	require.NoError(t, m.SetPhase(sess.ID, models.PhaseCompleted))

	loaded, err := m.GetByToken(sess.Token)
	require.NoError(t, err)
	require.Equal(t, models.PhaseCompleted, loaded.Phase)
	require.True(t, loaded.Phase.IsTerminal())
}

func TestFailRecordsReason(t *testing.T) {
	m, accountID, source := setupManager(t)
	sess, err := m.CreateSession(accountID, "upload.csv", source, "h", testAnalysis(), testChunks())
	require.NoError(t, err)

	require.NoError(t, m.Fail(sess.ID, "disk full"))
	loaded, err := m.GetByToken(sess.Token)
	require.NoError(t, err)
	require.Equal(t, models.PhaseFailed, loaded.Phase)
	require.Equal(t, "disk full", loaded.FailureReason)
}

func TestValidateSourceHash(t *testing.T) {
	m, accountID, source := setupManager(t)
	hash, err := analysis.HashFile(source)
	require.NoError(t, err)
	sess, err := m.CreateSession(accountID, "upload.csv", source, hash, testAnalysis(), testChunks())
	require.NoError(t, err)

	require.NoError(t, m.ValidateSourceHash(sess))

	require.NoError(t, os.WriteFile(source, []byte("Date\n2024-06-02\n"), 0o644))
	require.ErrorIs(t, m.ValidateSourceHash(sess), ErrSourceFileChanged)
}
