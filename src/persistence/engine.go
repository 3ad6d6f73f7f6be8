// Package persistence writes converted record batches to the database. It
// owns get-or-create resolution of reference entities (currencies, tickers)
// and FIFO linking of closing option trades to their opening trades.
package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/patrickmn/go-cache"
	"github.com/username/folioimport/src/database"
	"github.com/username/folioimport/src/logger"
	"github.com/username/folioimport/src/models"
)

// PersistError records one record that failed to save. Collected, never
// fatal: remaining records still persist.
type PersistError struct {
	Kind string
	Line int
	Err  error
}

func (e PersistError) Error() string {
	return fmt.Sprintf("%s (line %d): %v", e.Kind, e.Line, e.Err)
}

// PersistResult summarizes one persistence pass.
type PersistResult struct {
	CashMovements   int
	OptionTrades    int
	StockTrades     int
	Dividends       int
	DividendTaxes   int
	LinkedCloses    int
	UnmatchedCloses int
	Errors          []PersistError
	Metadata        *models.ImportMetadata
}

// Saved is the total number of records written.
func (r *PersistResult) Saved() int {
	return r.CashMovements + r.OptionTrades + r.StockTrades + r.Dividends + r.DividendTaxes
}

// ProgressFunc reports records processed so far out of the batch total.
type ProgressFunc func(done, total int)

type Engine struct {
	currencies *database.CurrencyStore
	tickers    *database.TickerStore
	cash       *database.CashMovementStore
	options    *database.OptionTradeStore
	stocks     *database.StockTradeStore
	dividends  *database.DividendStore
	divTaxes   *database.DividendTaxStore

	// lookupCache memoizes currency and ticker IDs across chunks of one
	// import run so repeated symbols cost one query, not one per record.
	lookupCache *cache.Cache
}

func NewEngine(db *sql.DB) *Engine {
	return &Engine{
		currencies:  database.NewCurrencyStore(db),
		tickers:     database.NewTickerStore(db),
		cash:        database.NewCashMovementStore(db),
		options:     database.NewOptionTradeStore(db),
		stocks:      database.NewStockTradeStore(db),
		dividends:   database.NewDividendStore(db),
		divTaxes:    database.NewDividendTaxStore(db),
		lookupCache: cache.New(cache.NoExpiration, cache.NoExpiration),
	}
}

var currencySymbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
}

// Persist writes a batch in a fixed order: cash movements, option trades,
// stock trades, dividends, dividend taxes. Option trades must keep their
// batch order so FIFO matching sees opens before the closes that settle
// them. Cancellation is checked between records; on cancel a synthetic
// error is recorded and the partial result returned with ctx.Err().
func (e *Engine) Persist(ctx context.Context, batch *models.RecordBatch, accountID int64, onProgress ProgressFunc) (*PersistResult, error) {
	result := &PersistResult{Metadata: models.NewImportMetadata()}
	total := batch.Len()
	done := 0
	step := func() {
		done++
		if onProgress != nil {
			onProgress(done, total)
		}
	}
	cancelled := func() bool {
		if ctx.Err() == nil {
			return false
		}
		result.Errors = append(result.Errors, PersistError{Kind: "import", Err: fmt.Errorf("operation cancelled")})
		return true
	}

	for _, m := range batch.CashMovements {
		if cancelled() {
			return result, ctx.Err()
		}
		if err := e.saveCashMovement(m, accountID, result); err != nil {
			result.Errors = append(result.Errors, PersistError{Kind: "cash movement", Line: m.SourceLine, Err: err})
		}
		step()
	}
	for _, t := range batch.OptionTrades {
		if cancelled() {
			return result, ctx.Err()
		}
		if err := e.saveOptionTrade(t, accountID, result); err != nil {
			result.Errors = append(result.Errors, PersistError{Kind: "option trade", Line: t.SourceLine, Err: err})
		}
		step()
	}
	for _, t := range batch.StockTrades {
		if cancelled() {
			return result, ctx.Err()
		}
		if err := e.saveStockTrade(t, accountID, result); err != nil {
			result.Errors = append(result.Errors, PersistError{Kind: "stock trade", Line: t.SourceLine, Err: err})
		}
		step()
	}
	for _, d := range batch.Dividends {
		if cancelled() {
			return result, ctx.Err()
		}
		if err := e.saveDividend(d, accountID, result); err != nil {
			result.Errors = append(result.Errors, PersistError{Kind: "dividend", Line: d.SourceLine, Err: err})
		}
		step()
	}
	for _, d := range batch.DividendTaxes {
		if cancelled() {
			return result, ctx.Err()
		}
		if err := e.saveDividendTax(d, accountID, result); err != nil {
			result.Errors = append(result.Errors, PersistError{Kind: "dividend tax", Line: d.SourceLine, Err: err})
		}
		step()
	}

	logger.L.Info("Batch persisted",
		"accountID", accountID, "saved", result.Saved(), "linkedCloses", result.LinkedCloses,
		"unmatchedCloses", result.UnmatchedCloses, "errors", len(result.Errors))
	return result, nil
}

// resolveCurrencyID gets or creates the currency for a 3-letter code.
func (e *Engine) resolveCurrencyID(code string) (int64, error) {
	if code == "" {
		code = "USD"
	}
	key := "currency:" + code
	if id, found := e.lookupCache.Get(key); found {
		return id.(int64), nil
	}
	currency, err := e.currencies.GetByCode(code)
	if err != nil {
		return 0, err
	}
	if currency == nil {
		currency = &models.Currency{Code: code, Symbol: currencySymbols[code]}
		if _, err := e.currencies.Save(currency); err != nil {
			return 0, err
		}
		logger.L.Debug("Currency created", "code", code, "id", currency.ID)
	}
	e.lookupCache.Set(key, currency.ID, cache.NoExpiration)
	return currency.ID, nil
}

// resolveTickerID gets or creates the ticker for a symbol.
func (e *Engine) resolveTickerID(symbol string) (int64, error) {
	if symbol == "" {
		return 0, fmt.Errorf("empty ticker symbol")
	}
	key := "ticker:" + symbol
	if id, found := e.lookupCache.Get(key); found {
		return id.(int64), nil
	}
	ticker, err := e.tickers.GetBySymbol(symbol)
	if err != nil {
		return 0, err
	}
	if ticker == nil {
		ticker = &models.Ticker{Symbol: symbol}
		if _, err := e.tickers.Save(ticker); err != nil {
			return 0, err
		}
		logger.L.Debug("Ticker created", "symbol", symbol, "id", ticker.ID)
	}
	e.lookupCache.Set(key, ticker.ID, cache.NoExpiration)
	return ticker.ID, nil
}

func (e *Engine) saveCashMovement(m *models.CashMovement, accountID int64, result *PersistResult) error {
	currencyID, err := e.resolveCurrencyID(m.CurrencyCode)
	if err != nil {
		return err
	}
	m.AccountID = accountID
	m.CurrencyID = currencyID
	if _, err := e.cash.Save(m); err != nil {
		return err
	}
	result.CashMovements++
	result.Metadata.Observe(accountID, "", m.OccurredAt.Time())
	return nil
}

func (e *Engine) saveOptionTrade(t *models.OptionTrade, accountID int64, result *PersistResult) error {
	currencyID, err := e.resolveCurrencyID(t.CurrencyCode)
	if err != nil {
		return err
	}
	tickerID, err := e.resolveTickerID(t.Underlying)
	if err != nil {
		return err
	}
	t.AccountID = accountID
	t.CurrencyID = currencyID
	t.TickerID = tickerID
	if _, err := e.options.Save(t); err != nil {
		return err
	}
	result.OptionTrades++
	result.Metadata.Observe(accountID, t.Underlying, t.ExecutedAt.Time())

	if t.Action.IsClosing() {
		e.linkClosingTrade(t, accountID, result)
	}
	return nil
}

// linkClosingTrade FIFO-matches a just-saved closing trade to the oldest
// still-open trade of the same contract. A miss is not an error: the close
// may settle a position opened before the imported range.
func (e *Engine) linkClosingTrade(t *models.OptionTrade, accountID int64, result *PersistResult) {
	open, err := e.options.FindOldestOpen(accountID, t.Underlying, t.OptionType, t.Strike, t.Expiration)
	if err != nil {
		logger.L.Warn("FIFO lookup failed", "underlying", t.Underlying, "line", t.SourceLine, "error", err)
		result.UnmatchedCloses++
		return
	}
	if open == nil || open.ID == t.ID {
		logger.L.Warn("No open trade found for closing trade",
			"underlying", t.Underlying, "optionType", t.OptionType,
			"strike", t.Strike.String(), "expiration", t.Expiration.String(), "line", t.SourceLine)
		result.UnmatchedCloses++
		return
	}
	if err := e.options.LinkClose(t.ID, open.ID); err != nil {
		logger.L.Warn("FIFO link failed", "closeID", t.ID, "openID", open.ID, "error", err)
		result.UnmatchedCloses++
		return
	}
	t.ClosedWith = open.ID
	result.LinkedCloses++
}

func (e *Engine) saveStockTrade(t *models.StockTrade, accountID int64, result *PersistResult) error {
	currencyID, err := e.resolveCurrencyID(t.CurrencyCode)
	if err != nil {
		return err
	}
	tickerID, err := e.resolveTickerID(t.Symbol)
	if err != nil {
		return err
	}
	t.AccountID = accountID
	t.CurrencyID = currencyID
	t.TickerID = tickerID
	if _, err := e.stocks.Save(t); err != nil {
		return err
	}
	result.StockTrades++
	result.Metadata.Observe(accountID, t.Symbol, t.ExecutedAt.Time())
	return nil
}

func (e *Engine) saveDividend(d *models.Dividend, accountID int64, result *PersistResult) error {
	currencyID, err := e.resolveCurrencyID(d.CurrencyCode)
	if err != nil {
		return err
	}
	tickerID, err := e.resolveTickerID(d.Symbol)
	if err != nil {
		return err
	}
	d.AccountID = accountID
	d.CurrencyID = currencyID
	d.TickerID = tickerID
	if _, err := e.dividends.Save(d); err != nil {
		return err
	}
	result.Dividends++
	result.Metadata.Observe(accountID, d.Symbol, d.PaidAt.Time())
	return nil
}

func (e *Engine) saveDividendTax(d *models.DividendTax, accountID int64, result *PersistResult) error {
	currencyID, err := e.resolveCurrencyID(d.CurrencyCode)
	if err != nil {
		return err
	}
	tickerID, err := e.resolveTickerID(d.Symbol)
	if err != nil {
		return err
	}
	d.AccountID = accountID
	d.CurrencyID = currencyID
	d.TickerID = tickerID
	if _, err := e.divTaxes.Save(d); err != nil {
		return err
	}
	result.DividendTaxes++
	result.Metadata.Observe(accountID, d.Symbol, d.PaidAt.Time())
	return nil
}
