package analysis

import (
	"github.com/username/folioimport/src/models"
)

// Planner partitions an analyzed date range into contiguous chunks sized so
// no chunk is estimated to exceed Ceiling movements. Window sizes adapt to
// local density: shrink toward a single day over spikes, extend toward
// MaxWindowDays through quiet periods.
type Planner struct {
	// Ceiling is the hard per-chunk movement cap (~2000 records ≈ 2 MB).
	Ceiling int
	// BaseWindowDays is the window proposed first.
	BaseWindowDays int
	// ShrinkWindowDays is the intermediate window tried when the base
	// window exceeds the ceiling, before falling back to a single day.
	ShrinkWindowDays int
	// MaxWindowDays caps extension during low-activity periods.
	MaxWindowDays int
}

// NewPlanner returns a planner with the production defaults.
func NewPlanner() *Planner {
	return &Planner{
		Ceiling:          2000,
		BaseWindowDays:   7,
		ShrinkWindowDays: 3,
		MaxWindowDays:    14,
	}
}

// Plan produces the chunk list for an analysis. Deterministic: the same
// analysis always yields an identical list. Chunks are contiguous,
// non-overlapping, and cover exactly [MinDate, MaxDate]; an analysis with
// zero movements yields no chunks.
func (p *Planner) Plan(a *models.DateAnalysis) []models.ChunkInfo {
	if a.TotalMovements == 0 {
		return nil
	}

	clip := func(d models.Date) models.Date {
		if d.After(a.MaxDate) {
			return a.MaxDate
		}
		return d
	}

	var chunks []models.ChunkInfo
	cursor := a.MinDate
	for number := 1; !cursor.After(a.MaxDate); number++ {
		end := clip(cursor.AddDays(p.BaseWindowDays - 1))
		count := a.MovementsBetween(cursor, end)

		if count > p.Ceiling {
			// Too dense: shrink to the intermediate window, then to a
			// single day. A single day is accepted whatever its count.
			end = clip(cursor.AddDays(p.ShrinkWindowDays - 1))
			count = a.MovementsBetween(cursor, end)
			if count > p.Ceiling {
				end = cursor
				count = a.MovementsBetween(cursor, end)
			}
		} else if count < p.Ceiling/4 && cursor.DaysUntil(end)+1 < p.MaxWindowDays {
			// Quiet: try the extended window, keeping it only if it stays
			// under the ceiling.
			extended := clip(cursor.AddDays(p.MaxWindowDays - 1))
			extendedCount := a.MovementsBetween(cursor, extended)
			if extendedCount <= p.Ceiling {
				end = extended
				count = extendedCount
			}
		}

		chunks = append(chunks, models.ChunkInfo{
			ChunkNumber:        number,
			StartDate:          cursor,
			EndDate:            end,
			EstimatedMovements: count,
		})
		cursor = end.AddDays(1)
	}
	return chunks
}

// PlanFixed partitions with a fixed window size and no adaptive behavior,
// for deterministic testing and debugging.
func (p *Planner) PlanFixed(a *models.DateAnalysis, windowDays int) []models.ChunkInfo {
	if a.TotalMovements == 0 || windowDays < 1 {
		return nil
	}
	var chunks []models.ChunkInfo
	cursor := a.MinDate
	for number := 1; !cursor.After(a.MaxDate); number++ {
		end := cursor.AddDays(windowDays - 1)
		if end.After(a.MaxDate) {
			end = a.MaxDate
		}
		chunks = append(chunks, models.ChunkInfo{
			ChunkNumber:        number,
			StartDate:          cursor,
			EndDate:            end,
			EstimatedMovements: a.MovementsBetween(cursor, end),
		})
		cursor = end.AddDays(1)
	}
	return chunks
}
