package database

import (
	"database/sql"
	"fmt"

	"github.com/username/folioimport/src/models"
)

// DividendStore persists per-ticker dividend payments.
type DividendStore struct {
	db *sql.DB
}

func NewDividendStore(db *sql.DB) *DividendStore { return &DividendStore{db: db} }

func (s *DividendStore) Save(d *models.Dividend) (int64, error) {
	result, err := s.db.Exec(`
		INSERT INTO dividends (account_id, ticker_id, amount, currency_id, paid_at)
		VALUES (?, ?, ?, ?, ?)`,
		d.AccountID, d.TickerID, d.Amount, d.CurrencyID, d.PaidAt)
	if err != nil {
		return 0, fmt.Errorf("error inserting dividend for %q: %w", d.Symbol, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	d.ID = id
	return id, nil
}

func (s *DividendStore) GetForAccountRange(accountID int64, start, end models.Date) ([]*models.Dividend, error) {
	rows, err := s.db.Query(`
		SELECT id, account_id, ticker_id, amount, currency_id, paid_at FROM dividends
		WHERE account_id = ? AND paid_at >= ? AND paid_at <= ?
		ORDER BY paid_at ASC, id ASC`,
		accountID, start.Time().Format(models.DateStampFormat), end.EndOfDay().Format(models.DateStampFormat))
	if err != nil {
		return nil, fmt.Errorf("error querying dividends for account %d: %w", accountID, err)
	}
	defer rows.Close()
	var dividends []*models.Dividend
	for rows.Next() {
		d := &models.Dividend{}
		if err := rows.Scan(&d.ID, &d.AccountID, &d.TickerID, &d.Amount, &d.CurrencyID, &d.PaidAt); err != nil {
			return nil, err
		}
		dividends = append(dividends, d)
	}
	return dividends, rows.Err()
}

// DividendTaxStore persists dividend withholding taxes.
type DividendTaxStore struct {
	db *sql.DB
}

func NewDividendTaxStore(db *sql.DB) *DividendTaxStore { return &DividendTaxStore{db: db} }

func (s *DividendTaxStore) Save(t *models.DividendTax) (int64, error) {
	result, err := s.db.Exec(`
		INSERT INTO dividend_taxes (account_id, ticker_id, amount, currency_id, paid_at)
		VALUES (?, ?, ?, ?, ?)`,
		t.AccountID, t.TickerID, t.Amount, t.CurrencyID, t.PaidAt)
	if err != nil {
		return 0, fmt.Errorf("error inserting dividend tax for %q: %w", t.Symbol, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	t.ID = id
	return id, nil
}

func (s *DividendTaxStore) GetForAccountRange(accountID int64, start, end models.Date) ([]*models.DividendTax, error) {
	rows, err := s.db.Query(`
		SELECT id, account_id, ticker_id, amount, currency_id, paid_at FROM dividend_taxes
		WHERE account_id = ? AND paid_at >= ? AND paid_at <= ?
		ORDER BY paid_at ASC, id ASC`,
		accountID, start.Time().Format(models.DateStampFormat), end.EndOfDay().Format(models.DateStampFormat))
	if err != nil {
		return nil, fmt.Errorf("error querying dividend taxes for account %d: %w", accountID, err)
	}
	defer rows.Close()
	var taxes []*models.DividendTax
	for rows.Next() {
		t := &models.DividendTax{}
		if err := rows.Scan(&t.ID, &t.AccountID, &t.TickerID, &t.Amount, &t.CurrencyID, &t.PaidAt); err != nil {
			return nil, err
		}
		taxes = append(taxes, t)
	}
	return taxes, rows.Err()
}

// CashMovementStore persists account-level cash events.
type CashMovementStore struct {
	db *sql.DB
}

func NewCashMovementStore(db *sql.DB) *CashMovementStore { return &CashMovementStore{db: db} }

func (s *CashMovementStore) Save(m *models.CashMovement) (int64, error) {
	result, err := s.db.Exec(`
		INSERT INTO cash_movements (account_id, kind, amount, currency_id, occurred_at, description)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.AccountID, m.Kind, m.Amount, m.CurrencyID, m.OccurredAt, m.Description)
	if err != nil {
		return 0, fmt.Errorf("error inserting cash movement (line %d): %w", m.SourceLine, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	m.ID = id
	return id, nil
}

func (s *CashMovementStore) GetForAccountRange(accountID int64, start, end models.Date) ([]*models.CashMovement, error) {
	rows, err := s.db.Query(`
		SELECT id, account_id, kind, amount, currency_id, occurred_at, description FROM cash_movements
		WHERE account_id = ? AND occurred_at >= ? AND occurred_at <= ?
		ORDER BY occurred_at ASC, id ASC`,
		accountID, start.Time().Format(models.DateStampFormat), end.EndOfDay().Format(models.DateStampFormat))
	if err != nil {
		return nil, fmt.Errorf("error querying cash movements for account %d: %w", accountID, err)
	}
	defer rows.Close()
	var movements []*models.CashMovement
	for rows.Next() {
		m := &models.CashMovement{}
		var description sql.NullString
		if err := rows.Scan(&m.ID, &m.AccountID, &m.Kind, &m.Amount, &m.CurrencyID, &m.OccurredAt, &description); err != nil {
			return nil, err
		}
		m.Description = description.String
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// ResetImportedData wipes every imported table inside one transaction, so a
// crash mid-wipe cannot leave the store partially cleared. Sessions are kept
// for audit.
func ResetImportedData(db *sql.DB) error {
	return ExecuteInTransaction(db, func(tx *sql.Tx) error {
		for _, table := range []string{
			"stock_trades", "option_trades", "dividends", "dividend_taxes",
			"cash_movements", "ticker_snapshots", "broker_financials",
		} {
			if _, err := tx.Exec("DELETE FROM " + table); err != nil {
				return fmt.Errorf("error wiping table %s: %w", table, err)
			}
		}
		return nil
	})
}
