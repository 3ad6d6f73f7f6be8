// Package session owns the durable import-session records that make a
// multi-chunk import restartable after interruption. Only the Manager
// mutates session phase and chunk counters, always inside a single store
// transaction per mutation.
package session

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/username/folioimport/src/analysis"
	"github.com/username/folioimport/src/database"
	"github.com/username/folioimport/src/logger"
	"github.com/username/folioimport/src/models"
)

// ErrSourceFileChanged means a resumed session's source file no longer
// matches the stored content hash; resume must be refused.
var ErrSourceFileChanged = errors.New("source file changed since the import session was created")

// ErrSessionNotFound means no session exists for the given token.
var ErrSessionNotFound = errors.New("import session not found")

type Manager struct {
	db *sql.DB
}

func NewManager(db *sql.DB) *Manager { return &Manager{db: db} }

// CreateSession persists a new session together with all its chunk rows in
// one transaction, so a resume can always enumerate the full plan.
func (m *Manager) CreateSession(accountID int64, fileName, filePath, contentHash string, a *models.DateAnalysis, chunks []models.ChunkInfo) (*models.ImportSession, error) {
	session := &models.ImportSession{
		Token:                   uuid.NewString(),
		BrokerAccountID:         accountID,
		SourceFileName:          fileName,
		SourceFilePath:          filePath,
		FileContentHash:         contentHash,
		TotalChunks:             len(chunks),
		TotalEstimatedMovements: a.TotalMovements,
		RangeStart:              a.MinDate,
		RangeEnd:                a.MaxDate,
		Phase:                   models.PhaseChunkProcessing,
	}

	err := database.ExecuteInTransaction(m.db, func(tx *sql.Tx) error {
		result, err := tx.Exec(`
			INSERT INTO import_sessions (token, broker_account_id, source_file_name, source_file_path,
				file_content_hash, total_chunks, total_estimated_movements, range_start, range_end, phase)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			session.Token, session.BrokerAccountID, session.SourceFileName, session.SourceFilePath,
			session.FileContentHash, session.TotalChunks, session.TotalEstimatedMovements,
			session.RangeStart, session.RangeEnd, session.Phase)
		if err != nil {
			return fmt.Errorf("error inserting import session: %w", err)
		}
		sessionID, err := result.LastInsertId()
		if err != nil {
			return err
		}
		session.ID = sessionID

		stmt, err := tx.Prepare(`
			INSERT INTO import_session_chunks (session_id, chunk_number, start_date, end_date, estimated_movements, state)
			VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("error preparing chunk insert: %w", err)
		}
		defer stmt.Close()
		for _, chunk := range chunks {
			if _, err := stmt.Exec(session.ID, chunk.ChunkNumber, chunk.StartDate, chunk.EndDate,
				chunk.EstimatedMovements, models.ChunkPending); err != nil {
				return fmt.Errorf("error inserting chunk %d: %w", chunk.ChunkNumber, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.L.Info("Import session created",
		"token", session.Token, "accountID", accountID, "totalChunks", session.TotalChunks,
		"estimatedMovements", session.TotalEstimatedMovements)
	return session, nil
}

const sessionColumns = `id, token, broker_account_id, source_file_name, source_file_path,
	file_content_hash, total_chunks, total_estimated_movements, processed_movements,
	range_start, range_end, phase, failure_reason, created_at`

func scanSession(row interface{ Scan(...any) error }) (*models.ImportSession, error) {
	s := &models.ImportSession{}
	err := row.Scan(&s.ID, &s.Token, &s.BrokerAccountID, &s.SourceFileName, &s.SourceFilePath,
		&s.FileContentHash, &s.TotalChunks, &s.TotalEstimatedMovements, &s.ProcessedMovements,
		&s.RangeStart, &s.RangeEnd, &s.Phase, &s.FailureReason, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (m *Manager) GetByToken(token string) (*models.ImportSession, error) {
	s, err := scanSession(m.db.QueryRow(
		`SELECT `+sessionColumns+` FROM import_sessions WHERE token = ?`, token))
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error loading session %q: %w", token, err)
	}
	return s, nil
}

func (m *Manager) GetAll() ([]*models.ImportSession, error) {
	rows, err := m.db.Query(`SELECT ` + sessionColumns + ` FROM import_sessions ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("error querying sessions: %w", err)
	}
	defer rows.Close()
	var sessions []*models.ImportSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// ChunksFor returns all chunk rows for a session, ordered by chunk number.
func (m *Manager) ChunksFor(sessionID int64) ([]models.ImportSessionChunk, error) {
	rows, err := m.db.Query(`
		SELECT id, session_id, chunk_number, start_date, end_date, estimated_movements, state, actual_movements, duration_ms
		FROM import_session_chunks WHERE session_id = ? ORDER BY chunk_number ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("error querying chunks for session %d: %w", sessionID, err)
	}
	defer rows.Close()
	var chunks []models.ImportSessionChunk
	for rows.Next() {
		var c models.ImportSessionChunk
		if err := rows.Scan(&c.ID, &c.SessionID, &c.ChunkNumber, &c.StartDate, &c.EndDate,
			&c.EstimatedMovements, &c.State, &c.ActualMovements, &c.DurationMs); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// RemainingChunks returns the chunks a resume must re-process: everything
// not in the completed state.
func (m *Manager) RemainingChunks(sessionID int64) ([]models.ImportSessionChunk, error) {
	chunks, err := m.ChunksFor(sessionID)
	if err != nil {
		return nil, err
	}
	remaining := chunks[:0]
	for _, c := range chunks {
		if c.State != models.ChunkCompleted {
			remaining = append(remaining, c)
		}
	}
	return remaining, nil
}

// MarkChunkCompleted flips the chunk to completed and adds its movement
// count to the session total in one atomic transaction: a crash between the
// two writes must never be observable. A chunk already completed is left
// untouched (completed never regresses).
func (m *Manager) MarkChunkCompleted(sessionID int64, chunkNumber, actualMovements int, durationMs int64) error {
	return database.ExecuteInTransaction(m.db, func(tx *sql.Tx) error {
		result, err := tx.Exec(`
			UPDATE import_session_chunks
			SET state = ?, actual_movements = ?, duration_ms = ?
			WHERE session_id = ? AND chunk_number = ? AND state != ?`,
			models.ChunkCompleted, actualMovements, durationMs, sessionID, chunkNumber, models.ChunkCompleted)
		if err != nil {
			return fmt.Errorf("error completing chunk %d: %w", chunkNumber, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			// Already completed; do not double-count movements.
			return nil
		}
		if _, err := tx.Exec(`
			UPDATE import_sessions SET processed_movements = processed_movements + ? WHERE id = ?`,
			actualMovements, sessionID); err != nil {
			return fmt.Errorf("error updating session counters: %w", err)
		}
		return nil
	})
}

// MarkChunkFailed records a chunk failure; completed chunks never regress.
func (m *Manager) MarkChunkFailed(sessionID int64, chunkNumber int) error {
	return database.ExecuteInTransaction(m.db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			UPDATE import_session_chunks SET state = ?
			WHERE session_id = ? AND chunk_number = ? AND state != ?`,
			models.ChunkFailed, sessionID, chunkNumber, models.ChunkCompleted)
		if err != nil {
			return fmt.Errorf("error failing chunk %d: %w", chunkNumber, err)
		}
		return nil
	})
}

// SetPhase advances the session's durable phase marker.
func (m *Manager) SetPhase(sessionID int64, phase models.SessionPhase) error {
	_, err := m.db.Exec(`UPDATE import_sessions SET phase = ? WHERE id = ?`, phase, sessionID)
	if err != nil {
		return fmt.Errorf("error setting session %d phase %s: %w", sessionID, phase, err)
	}
	return nil
}

// Fail moves the session to the failed phase with a reason.
func (m *Manager) Fail(sessionID int64, reason string) error {
	_, err := m.db.Exec(`UPDATE import_sessions SET phase = ?, failure_reason = ? WHERE id = ?`,
		models.PhaseFailed, reason, sessionID)
	if err != nil {
		return fmt.Errorf("error failing session %d: %w", sessionID, err)
	}
	return nil
}

// Cancel moves the session to the cancelled phase. In-flight chunks stay
// pending/failed so a future resume retries them.
func (m *Manager) Cancel(sessionID int64) error {
	return m.SetPhase(sessionID, models.PhaseCancelled)
}

// ValidateSourceHash re-hashes the session's source file and refuses the
// resume when it no longer matches what the session was created from.
func (m *Manager) ValidateSourceHash(s *models.ImportSession) error {
	currentHash, err := analysis.HashFile(s.SourceFilePath)
	if err != nil {
		return fmt.Errorf("error hashing source file for resume: %w", err)
	}
	if currentHash != s.FileContentHash {
		logger.L.Warn("Resume refused: source file hash mismatch",
			"token", s.Token, "stored", s.FileContentHash, "current", currentHash)
		return ErrSourceFileChanged
	}
	return nil
}
