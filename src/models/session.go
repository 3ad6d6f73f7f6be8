package models

import "time"

// SessionPhase is the durable phase of an import session.
type SessionPhase string

const (
	PhaseChunkProcessing SessionPhase = "chunk_processing"
	// PhaseSnapshot1 means all chunks completed; broker financial snapshots
	// are being recomputed.
	PhaseSnapshot1 SessionPhase = "snapshot_phase_1"
	// PhaseSnapshot2 means broker financials completed; ticker snapshots are
	// being recomputed.
	PhaseSnapshot2     SessionPhase = "snapshot_phase_2"
	PhaseCompleted     SessionPhase = "completed"
	PhaseFailed        SessionPhase = "failed"
	PhaseCancelled     SessionPhase = "cancelled"
)

// IsTerminal reports whether no further phase transition is allowed.
func (p SessionPhase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseFailed || p == PhaseCancelled
}

// ChunkState is the durable state of one planned chunk.
type ChunkState string

const (
	ChunkPending   ChunkState = "pending"
	ChunkCompleted ChunkState = "completed"
	ChunkFailed    ChunkState = "failed"
)

// ImportSession is the durable record of one import attempt. A session and
// all its chunk rows are created atomically before any chunk processing, so
// a resume can enumerate exactly which chunks remain. Sessions are never
// deleted automatically.
type ImportSession struct {
	ID                      int64        `json:"id"`
	Token                   string       `json:"token"` // public UUID
	BrokerAccountID         int64        `json:"broker_account_id"`
	SourceFileName          string       `json:"source_file_name"`
	SourceFilePath          string       `json:"-"`
	FileContentHash         string       `json:"file_content_hash"`
	TotalChunks             int          `json:"total_chunks"`
	TotalEstimatedMovements int          `json:"total_estimated_movements"`
	ProcessedMovements      int          `json:"processed_movements"`
	RangeStart              Date         `json:"range_start"`
	RangeEnd                Date         `json:"range_end"`
	Phase                   SessionPhase `json:"phase"`
	FailureReason           string       `json:"failure_reason,omitempty"`
	CreatedAt               time.Time    `json:"created_at"`
}

// ImportSessionChunk is the durable per-chunk row. State moves pending →
// completed, pending → failed, or failed → completed on retry; it never
// regresses from completed.
type ImportSessionChunk struct {
	ID                 int64      `json:"id"`
	SessionID          int64      `json:"session_id"`
	ChunkNumber        int        `json:"chunk_number"`
	StartDate          Date       `json:"start_date"`
	EndDate            Date       `json:"end_date"`
	EstimatedMovements int        `json:"estimated_movements"`
	State              ChunkState `json:"state"`
	ActualMovements    int        `json:"actual_movements"`
	DurationMs         int64      `json:"duration_ms"`
}
