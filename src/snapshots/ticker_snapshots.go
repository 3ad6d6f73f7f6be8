// Package snapshots recomputes derived per-ticker and per-account aggregate
// rows after an import changes the underlying records. Snapshots are always
// recomputed from the persisted trades, never incrementally patched.
package snapshots

import (
	"database/sql"
	"fmt"

	"github.com/username/folioimport/src/database"
	"github.com/username/folioimport/src/logger"
	"github.com/username/folioimport/src/models"
)

// BatchRequest scopes one ticker snapshot recomputation.
type BatchRequest struct {
	AccountID   int64
	Symbols     []string
	StartDate   models.Date
	EndDate     models.Date
	ForceRecalc bool
}

// BatchResult reports how a batch recomputation went. Per-ticker failures
// are collected; Success means no ticker failed.
type BatchResult struct {
	Success    bool
	SavedCount int
	Errors     []string
}

type TickerSnapshotManager struct {
	db        *sql.DB
	tickers   *database.TickerStore
	stocks    *database.StockTradeStore
	options   *database.OptionTradeStore
	dividends *database.DividendStore
	divTaxes  *database.DividendTaxStore
}

func NewTickerSnapshotManager(db *sql.DB) *TickerSnapshotManager {
	return &TickerSnapshotManager{
		db:        db,
		tickers:   database.NewTickerStore(db),
		stocks:    database.NewStockTradeStore(db),
		options:   database.NewOptionTradeStore(db),
		dividends: database.NewDividendStore(db),
		divTaxes:  database.NewDividendTaxStore(db),
	}
}

// ProcessBatchedTickers recomputes one snapshot row per requested ticker,
// as of the request's end date. Unless ForceRecalc is set, an existing row
// for the same (account, ticker, as_of) is left alone.
func (m *TickerSnapshotManager) ProcessBatchedTickers(req BatchRequest) BatchResult {
	result := BatchResult{Success: true}
	for _, symbol := range req.Symbols {
		saved, err := m.recomputeTicker(req, symbol)
		if err != nil {
			result.Success = false
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", symbol, err))
			logger.L.Error("Ticker snapshot failed", "symbol", symbol, "accountID", req.AccountID, "error", err)
			continue
		}
		if saved {
			result.SavedCount++
		}
	}
	logger.L.Info("Ticker snapshots recomputed",
		"accountID", req.AccountID, "tickers", len(req.Symbols), "saved", result.SavedCount,
		"errors", len(result.Errors))
	return result
}

// ProcessImport recomputes snapshots for everything an import touched, from
// the oldest imported movement through the end of the imported range.
func (m *TickerSnapshotManager) ProcessImport(meta *models.ImportMetadata, endDate models.Date, force bool) BatchResult {
	if meta == nil || len(meta.AffectedAccountIDs) == 0 {
		return BatchResult{Success: true}
	}
	combined := BatchResult{Success: true}
	for accountID := range meta.AffectedAccountIDs {
		r := m.ProcessBatchedTickers(BatchRequest{
			AccountID:   accountID,
			Symbols:     meta.TickerList(),
			StartDate:   models.DateOf(meta.OldestMovement),
			EndDate:     endDate,
			ForceRecalc: force,
		})
		combined.SavedCount += r.SavedCount
		combined.Errors = append(combined.Errors, r.Errors...)
		if !r.Success {
			combined.Success = false
		}
	}
	return combined
}

func (m *TickerSnapshotManager) recomputeTicker(req BatchRequest, symbol string) (bool, error) {
	ticker, err := m.tickers.GetBySymbol(symbol)
	if err != nil {
		return false, err
	}
	if ticker == nil {
		// Nothing persisted under this symbol yet; nothing to snapshot.
		return false, nil
	}

	asOf, _ := req.EndDate.Value()
	if !req.ForceRecalc {
		var existing int
		err := m.db.QueryRow(`
			SELECT COUNT(1) FROM ticker_snapshots
			WHERE account_id = ? AND ticker_id = ? AND as_of = ?`,
			req.AccountID, ticker.ID, asOf).Scan(&existing)
		if err != nil {
			return false, err
		}
		if existing > 0 {
			return false, nil
		}
	}

	var sharesHeld float64
	stockTrades, err := m.stocks.GetForAccountRange(req.AccountID, req.StartDate, req.EndDate)
	if err != nil {
		return false, err
	}
	for _, t := range stockTrades {
		if t.TickerID != ticker.ID {
			continue
		}
		if t.BuySell == "BUY" {
			sharesHeld += t.Quantity
		} else {
			sharesHeld -= t.Quantity
		}
	}

	openContracts := 0
	netPremium := models.Money{}
	optionTrades, err := m.options.GetForAccountRange(req.AccountID, req.StartDate, req.EndDate)
	if err != nil {
		return false, err
	}
	for _, t := range optionTrades {
		if t.TickerID != ticker.ID {
			continue
		}
		if t.IsOpen {
			openContracts++
		}
		netPremium = netPremium.Add(t.NetPremium)
	}

	dividendsReceived := models.Money{}
	dividends, err := m.dividends.GetForAccountRange(req.AccountID, req.StartDate, req.EndDate)
	if err != nil {
		return false, err
	}
	for _, d := range dividends {
		if d.TickerID == ticker.ID {
			dividendsReceived = dividendsReceived.Add(d.Amount)
		}
	}

	taxPaid := models.Money{}
	taxes, err := m.divTaxes.GetForAccountRange(req.AccountID, req.StartDate, req.EndDate)
	if err != nil {
		return false, err
	}
	for _, t := range taxes {
		if t.TickerID == ticker.ID {
			taxPaid = taxPaid.Add(t.Amount)
		}
	}

	premiumVal, _ := netPremium.Value()
	dividendsVal, _ := dividendsReceived.Value()
	taxVal, _ := taxPaid.Value()
	_, err = m.db.Exec(`
		INSERT INTO ticker_snapshots (account_id, ticker_id, as_of, shares_held, open_contracts,
			net_option_premium, dividends_received, dividend_tax_paid)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, ticker_id, as_of) DO UPDATE SET
			shares_held = excluded.shares_held,
			open_contracts = excluded.open_contracts,
			net_option_premium = excluded.net_option_premium,
			dividends_received = excluded.dividends_received,
			dividend_tax_paid = excluded.dividend_tax_paid`,
		req.AccountID, ticker.ID, asOf, sharesHeld, openContracts, premiumVal, dividendsVal, taxVal)
	if err != nil {
		return false, fmt.Errorf("error upserting ticker snapshot: %w", err)
	}
	return true, nil
}
