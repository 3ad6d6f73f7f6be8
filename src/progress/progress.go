// Package progress tracks live import progress for status polling. Trackers
// are safe for concurrent use: the import goroutine writes, HTTP handlers
// read.
package progress

import (
	"sync"
	"time"
)

type Phase string

const (
	PhaseNotStarted           Phase = "not_started"
	PhaseValidating           Phase = "validating"
	PhaseProcessingFile       Phase = "processing_file"
	PhaseProcessingData       Phase = "processing_data"
	PhaseSavingToDatabase     Phase = "saving_to_database"
	PhaseCalculatingSnapshots Phase = "calculating_snapshots"
	PhaseCompleted            Phase = "completed"
	PhaseCancelled            Phase = "cancelled"
	PhaseFailed               Phase = "failed"
)

// IsTerminal reports whether the phase ends a run. Terminal phases are
// sticky: only Reset moves the tracker out of one.
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseCancelled || p == PhaseFailed
}

// Snapshot is one observed state of the tracker, returned to pollers.
type Snapshot struct {
	Phase              Phase     `json:"phase"`
	Message            string    `json:"message,omitempty"`
	Percent            int       `json:"percent"`
	CurrentChunk       int       `json:"current_chunk,omitempty"`
	TotalChunks        int       `json:"total_chunks,omitempty"`
	ProcessedMovements int       `json:"processed_movements"`
	TotalMovements     int       `json:"total_movements"`
	EtaSeconds         int       `json:"eta_seconds,omitempty"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

func NewTracker() *Tracker {
	return &Tracker{snap: Snapshot{Phase: PhaseNotStarted}}
}

// Set moves the tracker to a new phase with a message. Updates after a
// terminal phase are dropped so late goroutine writes cannot overwrite a
// final state.
func (t *Tracker) Set(phase Phase, message string, percent int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.snap.Phase.IsTerminal() {
		return
	}
	if percent < t.snap.Percent && !phase.IsTerminal() {
		percent = t.snap.Percent
	}
	t.snap.Phase = phase
	t.snap.Message = message
	t.snap.Percent = percent
	if phase == PhaseCompleted {
		t.snap.Percent = 100
		t.snap.EtaSeconds = 0
	}
	t.snap.UpdatedAt = time.Now()
}

// Update adjusts counters without changing phase.
func (t *Tracker) Update(processed, total, percent, etaSeconds int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.snap.Phase.IsTerminal() {
		return
	}
	t.snap.ProcessedMovements = processed
	t.snap.TotalMovements = total
	if percent > t.snap.Percent {
		t.snap.Percent = percent
	}
	t.snap.EtaSeconds = etaSeconds
	t.snap.UpdatedAt = time.Now()
}

func (t *Tracker) SetChunk(current, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.snap.Phase.IsTerminal() {
		return
	}
	t.snap.CurrentChunk = current
	t.snap.TotalChunks = total
	t.snap.UpdatedAt = time.Now()
}

// Reset returns the tracker to the idle state for a fresh run.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap = Snapshot{Phase: PhaseNotStarted, UpdatedAt: time.Now()}
}

func (t *Tracker) Get() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap
}
