// Package converter turns broker-neutral raw transactions into persisted
// domain record types: cash movements, stock trades, single-contract option
// trades, dividends and dividend taxes.
package converter

import (
	"fmt"

	"github.com/username/folioimport/src/logger"
	"github.com/username/folioimport/src/models"
)

// ConversionError records a transaction that could not be converted. These
// are collected, never fatal: one bad row must not sink an import.
type ConversionError struct {
	Line int
	Err  error
}

func (e ConversionError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

// ConversionResult is the outcome of converting a full transaction set.
type ConversionResult struct {
	Batch       *models.RecordBatch
	Adjustments []models.StrikeAdjustment
	Errors      []ConversionError
}

type Converter struct{}

func NewConverter() *Converter { return &Converter{} }

// Convert processes the whole transaction set in one pass: sorts it, detects
// special-dividend strike adjustments across the full set, then dispatches
// each transaction by class. Conversion always runs on the complete set, not
// per chunk, so adjustments detected in a late chunk still rewrite strikes
// of trades belonging to earlier chunks.
func (c *Converter) Convert(txs []models.RawTransaction, accountID int64) *ConversionResult {
	sorted := make([]models.RawTransaction, len(txs))
	copy(sorted, txs)
	models.SortTransactions(sorted)

	adjustments, adjustmentLegs := detectStrikeAdjustments(sorted)
	result := &ConversionResult{
		Batch:       &models.RecordBatch{},
		Adjustments: adjustments,
	}

	for i, tx := range sorted {
		if adjustmentLegs[i] {
			continue
		}
		var err error
		switch tx.Class {
		case models.ClassCashMovement:
			err = c.convertCashMovement(result, tx, accountID)
		case models.ClassTrade:
			err = c.convertTrade(result, tx, accountID, adjustments)
		case models.ClassReceiveDeliver:
			err = c.convertReceiveDeliver(result, tx, accountID)
		default:
			err = fmt.Errorf("unsupported transaction class %q", tx.Class)
		}
		if err != nil {
			result.Errors = append(result.Errors, ConversionError{Line: tx.LineNumber, Err: err})
		}
	}

	logger.L.Info("Conversion finished",
		"transactions", len(sorted), "records", result.Batch.Len(),
		"adjustments", len(adjustments), "errors", len(result.Errors))
	return result
}

// convertCashMovement handles the cash ledger. Dividend rows are split by
// sign: positive value becomes a per-ticker Dividend, negative becomes a
// DividendTax with the sign flipped. Neither ever persists as a generic
// cash movement. All other kinds map one to one.
func (c *Converter) convertCashMovement(result *ConversionResult, tx models.RawTransaction, accountID int64) error {
	if tx.CashKind == models.CashDividend {
		symbol := tx.Underlying
		if symbol == "" {
			symbol = tx.Symbol
		}
		if symbol == "" {
			return fmt.Errorf("dividend row has no ticker symbol")
		}
		stamp := models.NewDateStamp(tx.Timestamp)
		if tx.Value.IsNegative() {
			result.Batch.DividendTaxes = append(result.Batch.DividendTaxes, &models.DividendTax{
				AccountID:    accountID,
				Symbol:       symbol,
				Amount:       tx.Value.Neg(),
				CurrencyCode: tx.Currency,
				PaidAt:       stamp,
				SourceLine:   tx.LineNumber,
			})
			return nil
		}
		result.Batch.Dividends = append(result.Batch.Dividends, &models.Dividend{
			AccountID:    accountID,
			Symbol:       symbol,
			Amount:       tx.Value,
			CurrencyCode: tx.Currency,
			PaidAt:       stamp,
			SourceLine:   tx.LineNumber,
		})
		return nil
	}

	result.Batch.CashMovements = append(result.Batch.CashMovements, &models.CashMovement{
		AccountID:    accountID,
		Kind:         tx.CashKind,
		Amount:       tx.Value,
		CurrencyCode: tx.Currency,
		OccurredAt:   models.NewDateStamp(tx.Timestamp),
		Description:  tx.Description,
		SourceLine:   tx.LineNumber,
	})
	return nil
}

func (c *Converter) convertTrade(result *ConversionResult, tx models.RawTransaction, accountID int64, adjustments []models.StrikeAdjustment) error {
	switch tx.Instrument {
	case models.InstrumentOption:
		return c.convertOptionTrade(result, tx, accountID, adjustments)
	case models.InstrumentEquity:
		return c.convertStockTrade(result, tx, accountID)
	default:
		return fmt.Errorf("unsupported trade instrument %q", tx.Instrument)
	}
}

// convertOptionTrade expands an N-contract order into N single-contract
// trades so FIFO matching always links one contract to one contract. Value,
// commission and fees are divided evenly across the contracts.
func (c *Converter) convertOptionTrade(result *ConversionResult, tx models.RawTransaction, accountID int64, adjustments []models.StrikeAdjustment) error {
	if tx.Underlying == "" {
		return fmt.Errorf("option trade has no underlying symbol")
	}
	quantity := tx.Quantity
	if quantity <= 0 {
		return fmt.Errorf("option trade has non-positive quantity %d", quantity)
	}
	multiplier := tx.Multiplier
	if multiplier == 0 {
		multiplier = 100
	}

	premium := tx.Value.DivInt(quantity)
	commission := tx.Commission.DivInt(quantity)
	fees := tx.Fees.DivInt(quantity)
	stamp := models.NewDateStamp(tx.Timestamp)

	for i := 0; i < quantity; i++ {
		trade := &models.OptionTrade{
			AccountID:    accountID,
			Underlying:   tx.Underlying,
			OptionType:   tx.OptionType,
			Strike:       tx.Strike,
			Expiration:   tx.Expiration,
			Action:       tx.TradeAction,
			IsOpen:       tx.TradeAction.IsOpening(),
			Premium:      premium,
			NetPremium:   premium.Add(commission).Add(fees),
			Commission:   commission,
			Fees:         fees,
			Multiplier:   multiplier,
			CurrencyCode: tx.Currency,
			ExecutedAt:   stamp,
			SourceLine:   tx.LineNumber,
		}
		applyStrikeAdjustments(trade, adjustments)
		result.Batch.OptionTrades = append(result.Batch.OptionTrades, trade)
	}
	return nil
}

func (c *Converter) convertStockTrade(result *ConversionResult, tx models.RawTransaction, accountID int64) error {
	symbol := tx.Underlying
	if symbol == "" {
		symbol = tx.Symbol
	}
	if symbol == "" {
		return fmt.Errorf("equity trade has no symbol")
	}
	quantity := tx.Quantity
	if quantity <= 0 {
		return fmt.Errorf("equity trade has non-positive quantity %d", quantity)
	}

	buySell := "BUY"
	direction := models.DirectionLong
	if tx.TradeAction == models.Sell || tx.TradeAction == models.SellToClose || tx.TradeAction == models.SellToOpen {
		buySell = "SELL"
		direction = models.DirectionShort
	}

	result.Batch.StockTrades = append(result.Batch.StockTrades, &models.StockTrade{
		AccountID:    accountID,
		Symbol:       symbol,
		Direction:    direction,
		BuySell:      buySell,
		Quantity:     float64(quantity),
		Price:        tx.Value.Abs().DivInt(quantity),
		Commission:   tx.Commission,
		Fees:         tx.Fees,
		CurrencyCode: tx.Currency,
		ExecutedAt:   models.NewDateStamp(tx.Timestamp),
		SourceLine:   tx.LineNumber,
	})
	return nil
}

// convertReceiveDeliver handles position transfers and option lifecycle
// events. An ACAT equity transfer becomes a zero-price long opening trade so
// the position exists for later sells. Option assignment, exercise and
// expiration rows are skipped: the cash and share legs arrive as separate
// trade rows and the open option position is settled by FIFO linking.
func (c *Converter) convertReceiveDeliver(result *ConversionResult, tx models.RawTransaction, accountID int64) error {
	if tx.Instrument == models.InstrumentOption {
		logger.L.Debug("Skipping option receive/deliver row",
			"kind", tx.ReceiveDeliverKind, "symbol", tx.Symbol, "line", tx.LineNumber)
		return nil
	}
	if tx.ReceiveDeliverKind != models.ReceiveDeliverACAT {
		return fmt.Errorf("unsupported receive/deliver kind %q for instrument %q", tx.ReceiveDeliverKind, tx.Instrument)
	}
	symbol := tx.Underlying
	if symbol == "" {
		symbol = tx.Symbol
	}
	if symbol == "" {
		return fmt.Errorf("ACAT transfer has no symbol")
	}
	quantity := tx.Quantity
	if quantity <= 0 {
		return fmt.Errorf("ACAT transfer has non-positive quantity %d", quantity)
	}

	result.Batch.StockTrades = append(result.Batch.StockTrades, &models.StockTrade{
		AccountID:    accountID,
		Symbol:       symbol,
		Direction:    models.DirectionLong,
		BuySell:      "BUY",
		Quantity:     float64(quantity),
		Price:        models.Money{},
		CurrencyCode: tx.Currency,
		ExecutedAt:   models.NewDateStamp(tx.Timestamp),
		SourceLine:   tx.LineNumber,
	})
	return nil
}
