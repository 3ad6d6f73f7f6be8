package models

import (
	"sort"
	"time"
)

// ImportMetadata aggregates what an import (or one chunk of it) touched, so
// downstream snapshot recomputation can be scoped to affected tickers and
// dates instead of the whole account history. Built fresh per chunk and
// merged into a whole-import summary.
type ImportMetadata struct {
	OldestMovement     time.Time
	AffectedAccountIDs map[int64]struct{}
	AffectedTickers    map[string]struct{}
	TotalMovements     int
}

func NewImportMetadata() *ImportMetadata {
	return &ImportMetadata{
		AffectedAccountIDs: make(map[int64]struct{}),
		AffectedTickers:    make(map[string]struct{}),
	}
}

// Observe records one persisted movement. An empty symbol (account-level
// cash) still counts toward totals and dates.
func (m *ImportMetadata) Observe(accountID int64, symbol string, at time.Time) {
	m.AffectedAccountIDs[accountID] = struct{}{}
	if symbol != "" {
		m.AffectedTickers[symbol] = struct{}{}
	}
	if m.OldestMovement.IsZero() || at.Before(m.OldestMovement) {
		m.OldestMovement = at
	}
	m.TotalMovements++
}

// Merge folds other into m: min of oldest dates, union of sets, sum of
// counts.
func (m *ImportMetadata) Merge(other *ImportMetadata) {
	if other == nil {
		return
	}
	for id := range other.AffectedAccountIDs {
		m.AffectedAccountIDs[id] = struct{}{}
	}
	for sym := range other.AffectedTickers {
		m.AffectedTickers[sym] = struct{}{}
	}
	if !other.OldestMovement.IsZero() &&
		(m.OldestMovement.IsZero() || other.OldestMovement.Before(m.OldestMovement)) {
		m.OldestMovement = other.OldestMovement
	}
	m.TotalMovements += other.TotalMovements
}

// TickerList returns the affected ticker symbols in sorted order.
func (m *ImportMetadata) TickerList() []string {
	symbols := make([]string, 0, len(m.AffectedTickers))
	for sym := range m.AffectedTickers {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	return symbols
}
