package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTrackerTerminalPhaseIsSticky(t *testing.T) {
	tr := NewTracker()
	tr.Set(PhaseProcessingData, "working", 40)
	tr.Set(PhaseCompleted, "done", 100)

	tr.Set(PhaseSavingToDatabase, "late goroutine write", 50)
	tr.Update(10, 20, 50, 0)
	tr.SetChunk(3, 5)

	snap := tr.Get()
	require.Equal(t, PhaseCompleted, snap.Phase)
	require.Equal(t, 100, snap.Percent)
	require.Zero(t, snap.CurrentChunk)
}

func TestTrackerPercentNeverRegresses(t *testing.T) {
	tr := NewTracker()
	tr.Set(PhaseProcessingData, "parsing", 40)
	tr.Set(PhaseSavingToDatabase, "saving", 20)
	require.Equal(t, 40, tr.Get().Percent)
}

func TestTrackerResetLeavesTerminalState(t *testing.T) {
	tr := NewTracker()
	tr.Set(PhaseFailed, "boom", 0)
	require.True(t, tr.Get().Phase.IsTerminal())

	tr.Reset()
	snap := tr.Get()
	require.Equal(t, PhaseNotStarted, snap.Phase)
	require.Zero(t, snap.Percent)

	tr.Set(PhaseValidating, "fresh run", 0)
	require.Equal(t, PhaseValidating, tr.Get().Phase)
}

func TestChunkTrackerComputesEta(t *testing.T) {
	tr := NewTracker()
	ct := NewChunkTracker(tr)
	ct.Begin(4, 400, 0)

	ct.StartChunk(1)
	ct.FinishChunk(1, 100, 2*time.Second)

	snap := tr.Get()
	require.Equal(t, 100, snap.ProcessedMovements)
	require.Equal(t, 400, snap.TotalMovements)
	require.Equal(t, 6, snap.EtaSeconds, "3 remaining chunks at 2s average")
	require.Equal(t, 25, snap.Percent)
}

func TestChunkTrackerResumeStartsFromProcessedCount(t *testing.T) {
	tr := NewTracker()
	ct := NewChunkTracker(tr)
	ct.Begin(4, 400, 200)

	snap := tr.Get()
	require.Equal(t, 200, snap.ProcessedMovements)
	require.Equal(t, 50, snap.Percent)
}

func TestChunkTrackerCapsPercentBelowCompletion(t *testing.T) {
	tr := NewTracker()
	ct := NewChunkTracker(tr)
	ct.Begin(1, 100, 0)
	ct.StartChunk(1)
	ct.FinishChunk(1, 100, time.Second)

	require.Equal(t, 99, tr.Get().Percent, "100 is reserved for the completed phase")
}
