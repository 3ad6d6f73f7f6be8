package progress

import (
	"fmt"
	"sync"
	"time"
)

// ChunkTracker layers chunk bookkeeping over a Tracker: which chunk is
// running, how many movements are done, and an ETA extrapolated from the
// average duration of finished chunks.
type ChunkTracker struct {
	tracker *Tracker

	mu          sync.Mutex
	totalChunks int
	totalMoves  int
	doneMoves   int
	durations   []time.Duration
}

func NewChunkTracker(t *Tracker) *ChunkTracker {
	return &ChunkTracker{tracker: t}
}

// Begin announces the chunk plan before the first chunk runs.
func (c *ChunkTracker) Begin(totalChunks, totalMovements, alreadyProcessed int) {
	c.mu.Lock()
	c.totalChunks = totalChunks
	c.totalMoves = totalMovements
	c.doneMoves = alreadyProcessed
	c.durations = c.durations[:0]
	c.mu.Unlock()
	c.tracker.SetChunk(0, totalChunks)
	c.tracker.Update(alreadyProcessed, totalMovements, c.percent(), 0)
}

// StartChunk marks chunkNumber as the one in flight.
func (c *ChunkTracker) StartChunk(chunkNumber int) {
	c.mu.Lock()
	total := c.totalChunks
	c.mu.Unlock()
	c.tracker.SetChunk(chunkNumber, total)
	c.tracker.Set(PhaseSavingToDatabase,
		fmt.Sprintf("processing chunk %d of %d", chunkNumber, total), c.percent())
}

// FinishChunk records one completed chunk and refreshes counters and ETA.
func (c *ChunkTracker) FinishChunk(chunkNumber, movements int, took time.Duration) {
	c.mu.Lock()
	c.doneMoves += movements
	c.durations = append(c.durations, took)
	done, total := c.doneMoves, c.totalMoves
	eta := c.etaLocked(chunkNumber)
	c.mu.Unlock()
	c.tracker.Update(done, total, c.percent(), int(eta.Seconds()))
}

// etaLocked is the average finished-chunk duration times remaining chunks.
func (c *ChunkTracker) etaLocked(lastChunk int) time.Duration {
	if len(c.durations) == 0 || c.totalChunks == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range c.durations {
		sum += d
	}
	avg := sum / time.Duration(len(c.durations))
	remaining := c.totalChunks - lastChunk
	if remaining < 0 {
		remaining = 0
	}
	return avg * time.Duration(remaining)
}

func (c *ChunkTracker) percent() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.totalMoves == 0 {
		return 0
	}
	p := c.doneMoves * 100 / c.totalMoves
	if p > 99 {
		// 100 is reserved for the completed phase.
		p = 99
	}
	return p
}
