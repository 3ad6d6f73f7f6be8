package converter

import (
	"fmt"

	"github.com/username/folioimport/src/logger"
	"github.com/username/folioimport/src/models"
)

// detectStrikeAdjustments scans a sorted transaction set for the broker's
// special-dividend strike rewrite pattern: two option trade rows with the
// same timestamp, underlying, expiration, option type and quantity, both at
// zero value, one closing at strike X and one opening at strike Y != X. The
// pair is pure bookkeeping, so both legs are returned in the skip set and
// never converted into trades.
//
// The dividend amount is the strike drop X - Y.
func detectStrikeAdjustments(sorted []models.RawTransaction) ([]models.StrikeAdjustment, map[int]bool) {
	var adjustments []models.StrikeAdjustment
	legs := make(map[int]bool)

	for i := 0; i+1 < len(sorted); i++ {
		if legs[i] {
			continue
		}
		a, b := sorted[i], sorted[i+1]
		if !isAdjustmentPair(a, b) {
			continue
		}
		closing, opening := a, b
		if closing.TradeAction.IsOpening() {
			closing, opening = b, a
		}
		adj := models.StrikeAdjustment{
			Ticker:         closing.Underlying,
			OptionType:     closing.OptionType,
			Expiration:     closing.Expiration,
			OriginalStrike: closing.Strike,
			NewStrike:      opening.Strike,
			DividendAmount: closing.Strike.Sub(opening.Strike),
			DetectedAt:     closing.Timestamp,
		}
		adjustments = append(adjustments, adj)
		legs[i] = true
		legs[i+1] = true
		logger.L.Info("Strike adjustment detected",
			"ticker", adj.Ticker, "optionType", adj.OptionType, "expiration", adj.Expiration.String(),
			"from", adj.OriginalStrike.String(), "to", adj.NewStrike.String(),
			"dividend", adj.DividendAmount.String())
	}
	return adjustments, legs
}

func isAdjustmentPair(a, b models.RawTransaction) bool {
	if a.Class != models.ClassTrade || b.Class != models.ClassTrade {
		return false
	}
	if a.Instrument != models.InstrumentOption || b.Instrument != models.InstrumentOption {
		return false
	}
	if !a.Timestamp.Equal(b.Timestamp) {
		return false
	}
	if a.Underlying == "" || a.Underlying != b.Underlying {
		return false
	}
	if a.OptionType != b.OptionType || a.Expiration != b.Expiration {
		return false
	}
	if a.Quantity != b.Quantity {
		return false
	}
	if !a.Value.IsZero() || !b.Value.IsZero() {
		return false
	}
	if a.Strike.Equal(b.Strike) {
		return false
	}
	// Exactly one closing leg and one opening leg.
	return a.TradeAction.IsClosing() != b.TradeAction.IsClosing()
}

// applyStrikeAdjustments rewrites a trade's strike through every adjustment
// whose detection happened after the trade executed, in detection order.
// Chained adjustments (X -> Y, later Y -> Z) compose because each rewrite
// feeds the next match.
func applyStrikeAdjustments(trade *models.OptionTrade, adjustments []models.StrikeAdjustment) {
	for _, adj := range adjustments {
		if trade.Underlying != adj.Ticker || trade.OptionType != adj.OptionType || trade.Expiration != adj.Expiration {
			continue
		}
		if !trade.ExecutedAt.Time().Before(adj.DetectedAt) {
			continue
		}
		if !trade.Strike.Equal(adj.OriginalStrike) {
			continue
		}
		note := fmt.Sprintf("strike adjusted from %s to %s after special dividend of %s",
			adj.OriginalStrike.String(), adj.NewStrike.String(), adj.DividendAmount.String())
		trade.Strike = adj.NewStrike
		if trade.Notes != "" {
			trade.Notes += "; "
		}
		trade.Notes += note
	}
}
