package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/username/folioimport/src/models"
)

func analysisOf(counts map[models.Date]int) *models.DateAnalysis {
	a := &models.DateAnalysis{PerDateCounts: counts}
	for d, c := range counts {
		if a.TotalMovements == 0 {
			a.MinDate, a.MaxDate = d, d
		}
		if d.Before(a.MinDate) {
			a.MinDate = d
		}
		if d.After(a.MaxDate) {
			a.MaxDate = d
		}
		a.TotalMovements += c
	}
	return a
}

func requireContiguous(t *testing.T, a *models.DateAnalysis, chunks []models.ChunkInfo) {
	t.Helper()
	require.NotEmpty(t, chunks)
	require.Equal(t, a.MinDate, chunks[0].StartDate)
	require.Equal(t, a.MaxDate, chunks[len(chunks)-1].EndDate)
	total := 0
	for i, c := range chunks {
		require.Equal(t, i+1, c.ChunkNumber)
		require.False(t, c.EndDate.Before(c.StartDate))
		if i > 0 {
			require.Equal(t, chunks[i-1].EndDate.AddDays(1), c.StartDate)
		}
		total += c.EstimatedMovements
	}
	require.Equal(t, a.TotalMovements, total)
}

func TestPlanEmptyAnalysisYieldsNoChunks(t *testing.T) {
	a := analysisOf(map[models.Date]int{})
	require.Nil(t, NewPlanner().Plan(a))
}

func TestPlanQuietRangeExtendsToMaxWindow(t *testing.T) {
	counts := map[models.Date]int{}
	start := models.NewDate(2024, time.March, 1)
	for i := 0; i < 28; i++ {
		counts[start.AddDays(i)] = 3
	}
	a := analysisOf(counts)

	chunks := NewPlanner().Plan(a)
	requireContiguous(t, a, chunks)
	require.Len(t, chunks, 2)
	require.Equal(t, 14, chunks[0].StartDate.DaysUntil(chunks[0].EndDate)+1)
	require.Equal(t, 42, chunks[0].EstimatedMovements)
}

func TestPlanSpikeDayShrinksToSingleDay(t *testing.T) {
	start := models.NewDate(2024, time.June, 1)
	counts := map[models.Date]int{}
	for i := 0; i < 14; i++ {
		counts[start.AddDays(i)] = 10
	}
	spike := start.AddDays(2)
	counts[spike] = 5000
	a := analysisOf(counts)

	chunks := NewPlanner().Plan(a)
	requireContiguous(t, a, chunks)

	var spikeChunk *models.ChunkInfo
	for i := range chunks {
		if !spike.Before(chunks[i].StartDate) && !spike.After(chunks[i].EndDate) {
			spikeChunk = &chunks[i]
		}
	}
	require.NotNil(t, spikeChunk)
	require.Equal(t, spikeChunk.StartDate, spikeChunk.EndDate, "spike day must land in a single-day chunk")
	require.Equal(t, 5000, spikeChunk.EstimatedMovements)
}

func TestPlanShrinksToIntermediateWindow(t *testing.T) {
	// 400/day: 7 days exceed 2000, 3 days (1200) fit.
	start := models.NewDate(2024, time.June, 1)
	counts := map[models.Date]int{}
	for i := 0; i < 9; i++ {
		counts[start.AddDays(i)] = 400
	}
	a := analysisOf(counts)

	chunks := NewPlanner().Plan(a)
	requireContiguous(t, a, chunks)
	require.Equal(t, 3, chunks[0].StartDate.DaysUntil(chunks[0].EndDate)+1)
	require.Equal(t, 1200, chunks[0].EstimatedMovements)
}

func TestPlanIsDeterministic(t *testing.T) {
	counts := map[models.Date]int{}
	start := models.NewDate(2023, time.January, 1)
	for i := 0; i < 90; i++ {
		counts[start.AddDays(i)] = (i%11)*7 + 1
	}
	a := analysisOf(counts)

	p := NewPlanner()
	first := p.Plan(a)
	second := p.Plan(a)
	require.Equal(t, first, second)
}

func TestPlanSingleDayRange(t *testing.T) {
	d := models.NewDate(2024, time.May, 10)
	a := analysisOf(map[models.Date]int{d: 12})

	chunks := NewPlanner().Plan(a)
	require.Len(t, chunks, 1)
	require.Equal(t, d, chunks[0].StartDate)
	require.Equal(t, d, chunks[0].EndDate)
	require.Equal(t, 12, chunks[0].EstimatedMovements)
}

func TestPlanFixedWindow(t *testing.T) {
	counts := map[models.Date]int{}
	start := models.NewDate(2024, time.April, 1)
	for i := 0; i < 10; i++ {
		counts[start.AddDays(i)] = 5
	}
	a := analysisOf(counts)

	chunks := NewPlanner().PlanFixed(a, 4)
	requireContiguous(t, a, chunks)
	require.Len(t, chunks, 3)
	require.Equal(t, 4, chunks[0].StartDate.DaysUntil(chunks[0].EndDate)+1)
	require.Equal(t, 2, chunks[2].StartDate.DaysUntil(chunks[2].EndDate)+1)
}
