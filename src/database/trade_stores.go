package database

import (
	"database/sql"
	"fmt"

	"github.com/username/folioimport/src/models"
)

// StockTradeStore persists equity trades.
type StockTradeStore struct {
	db *sql.DB
}

func NewStockTradeStore(db *sql.DB) *StockTradeStore { return &StockTradeStore{db: db} }

func (s *StockTradeStore) Save(trade *models.StockTrade) (int64, error) {
	result, err := s.db.Exec(`
		INSERT INTO stock_trades (account_id, ticker_id, direction, buy_sell, quantity, price, commission, fees, currency_id, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		trade.AccountID, trade.TickerID, trade.Direction, trade.BuySell, trade.Quantity,
		trade.Price, trade.Commission, trade.Fees, trade.CurrencyID, trade.ExecutedAt)
	if err != nil {
		return 0, fmt.Errorf("error inserting stock trade (line %d): %w", trade.SourceLine, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	trade.ID = id
	return id, nil
}

func (s *StockTradeStore) GetByID(id int64) (*models.StockTrade, error) {
	row := s.db.QueryRow(`
		SELECT id, account_id, ticker_id, direction, buy_sell, quantity, price, commission, fees, currency_id, executed_at
		FROM stock_trades WHERE id = ?`, id)
	trade := &models.StockTrade{}
	err := row.Scan(&trade.ID, &trade.AccountID, &trade.TickerID, &trade.Direction, &trade.BuySell,
		&trade.Quantity, &trade.Price, &trade.Commission, &trade.Fees, &trade.CurrencyID, &trade.ExecutedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return trade, nil
}

// GetForAccountRange returns trades executed inside [start, end] inclusive.
func (s *StockTradeStore) GetForAccountRange(accountID int64, start, end models.Date) ([]*models.StockTrade, error) {
	rows, err := s.db.Query(`
		SELECT id, account_id, ticker_id, direction, buy_sell, quantity, price, commission, fees, currency_id, executed_at
		FROM stock_trades
		WHERE account_id = ? AND executed_at >= ? AND executed_at <= ?
		ORDER BY executed_at ASC, id ASC`,
		accountID, start.Time().Format(models.DateStampFormat), end.EndOfDay().Format(models.DateStampFormat))
	if err != nil {
		return nil, fmt.Errorf("error querying stock trades for account %d: %w", accountID, err)
	}
	defer rows.Close()
	var trades []*models.StockTrade
	for rows.Next() {
		trade := &models.StockTrade{}
		if err := rows.Scan(&trade.ID, &trade.AccountID, &trade.TickerID, &trade.Direction, &trade.BuySell,
			&trade.Quantity, &trade.Price, &trade.Commission, &trade.Fees, &trade.CurrencyID, &trade.ExecutedAt); err != nil {
			return nil, err
		}
		trades = append(trades, trade)
	}
	return trades, rows.Err()
}

// OptionTradeStore persists single-contract option trades and owns the two
// writes FIFO linking performs after creation.
type OptionTradeStore struct {
	db *sql.DB
}

func NewOptionTradeStore(db *sql.DB) *OptionTradeStore { return &OptionTradeStore{db: db} }

const optionTradeColumns = `id, account_id, ticker_id, underlying, option_type, strike, expiration, action,
		is_open, closed_with, premium, net_premium, commission, fees, multiplier, currency_id, executed_at, notes`

func (s *OptionTradeStore) Save(trade *models.OptionTrade) (int64, error) {
	result, err := s.db.Exec(`
		INSERT INTO option_trades (account_id, ticker_id, underlying, option_type, strike, expiration, action,
			is_open, closed_with, premium, net_premium, commission, fees, multiplier, currency_id, executed_at, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		trade.AccountID, trade.TickerID, trade.Underlying, trade.OptionType, trade.Strike, trade.Expiration,
		trade.Action, trade.IsOpen, trade.ClosedWith, trade.Premium, trade.NetPremium, trade.Commission,
		trade.Fees, trade.Multiplier, trade.CurrencyID, trade.ExecutedAt, trade.Notes)
	if err != nil {
		return 0, fmt.Errorf("error inserting option trade (line %d): %w", trade.SourceLine, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	trade.ID = id
	return id, nil
}

func (s *OptionTradeStore) scanOne(row *sql.Row) (*models.OptionTrade, error) {
	trade := &models.OptionTrade{}
	err := row.Scan(&trade.ID, &trade.AccountID, &trade.TickerID, &trade.Underlying, &trade.OptionType,
		&trade.Strike, &trade.Expiration, &trade.Action, &trade.IsOpen, &trade.ClosedWith,
		&trade.Premium, &trade.NetPremium, &trade.Commission, &trade.Fees, &trade.Multiplier,
		&trade.CurrencyID, &trade.ExecutedAt, &trade.Notes)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return trade, nil
}

func (s *OptionTradeStore) GetByID(id int64) (*models.OptionTrade, error) {
	return s.scanOne(s.db.QueryRow(
		`SELECT `+optionTradeColumns+` FROM option_trades WHERE id = ?`, id))
}

// FindOldestOpen returns the earliest still-open trade matching the closing
// trade's contract (underlying, strike, expiration, option type), or nil.
func (s *OptionTradeStore) FindOldestOpen(accountID int64, underlying string, optionType models.OptionType, strike models.Money, expiration models.Date) (*models.OptionTrade, error) {
	strikeVal, _ := strike.Value()
	expVal, _ := expiration.Value()
	return s.scanOne(s.db.QueryRow(`
		SELECT `+optionTradeColumns+` FROM option_trades
		WHERE account_id = ? AND underlying = ? AND option_type = ? AND strike = ? AND expiration = ?
			AND is_open = 1
		ORDER BY executed_at ASC, id ASC
		LIMIT 1`,
		accountID, underlying, optionType, strikeVal, expVal))
}

// LinkClose records a FIFO match in one transaction: the opening trade is no
// longer open and the closing trade references it. Either both writes land
// or neither does.
func (s *OptionTradeStore) LinkClose(closeID, openID int64) error {
	return ExecuteInTransaction(s.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`UPDATE option_trades SET is_open = 0 WHERE id = ?`, openID); err != nil {
			return fmt.Errorf("error closing opening trade %d: %w", openID, err)
		}
		if _, err := tx.Exec(`UPDATE option_trades SET closed_with = ? WHERE id = ?`, openID, closeID); err != nil {
			return fmt.Errorf("error linking closing trade %d: %w", closeID, err)
		}
		return nil
	})
}

// GetForAccountRange returns trades executed inside [start, end] inclusive.
func (s *OptionTradeStore) GetForAccountRange(accountID int64, start, end models.Date) ([]*models.OptionTrade, error) {
	rows, err := s.db.Query(`
		SELECT `+optionTradeColumns+` FROM option_trades
		WHERE account_id = ? AND executed_at >= ? AND executed_at <= ?
		ORDER BY executed_at ASC, id ASC`,
		accountID, start.Time().Format(models.DateStampFormat), end.EndOfDay().Format(models.DateStampFormat))
	if err != nil {
		return nil, fmt.Errorf("error querying option trades for account %d: %w", accountID, err)
	}
	defer rows.Close()
	var trades []*models.OptionTrade
	for rows.Next() {
		trade := &models.OptionTrade{}
		if err := rows.Scan(&trade.ID, &trade.AccountID, &trade.TickerID, &trade.Underlying, &trade.OptionType,
			&trade.Strike, &trade.Expiration, &trade.Action, &trade.IsOpen, &trade.ClosedWith,
			&trade.Premium, &trade.NetPremium, &trade.Commission, &trade.Fees, &trade.Multiplier,
			&trade.CurrencyID, &trade.ExecutedAt, &trade.Notes); err != nil {
			return nil, err
		}
		trades = append(trades, trade)
	}
	return trades, rows.Err()
}
