package database

import (
	"database/sql"
	"fmt"

	"github.com/username/folioimport/src/models"
)

// AccountStore persists broker accounts.
type AccountStore struct {
	db *sql.DB
}

func NewAccountStore(db *sql.DB) *AccountStore { return &AccountStore{db: db} }

func (s *AccountStore) Save(account *models.BrokerAccount) (int64, error) {
	result, err := s.db.Exec(
		`INSERT INTO broker_accounts (broker, name, account_number) VALUES (?, ?, ?)`,
		account.Broker, account.Name, account.AccountNumber)
	if err != nil {
		return 0, fmt.Errorf("error inserting broker account %q: %w", account.Name, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	account.ID = id
	return id, nil
}

// GetByID returns nil when no account exists.
func (s *AccountStore) GetByID(id int64) (*models.BrokerAccount, error) {
	row := s.db.QueryRow(
		`SELECT id, broker, name, account_number, created_at FROM broker_accounts WHERE id = ?`, id)
	account := &models.BrokerAccount{}
	var accountNumber sql.NullString
	err := row.Scan(&account.ID, &account.Broker, &account.Name, &accountNumber, &account.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error scanning broker account %d: %w", id, err)
	}
	account.AccountNumber = accountNumber.String
	return account, nil
}

func (s *AccountStore) GetAll() ([]*models.BrokerAccount, error) {
	rows, err := s.db.Query(
		`SELECT id, broker, name, account_number, created_at FROM broker_accounts ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("error querying broker accounts: %w", err)
	}
	defer rows.Close()
	var accounts []*models.BrokerAccount
	for rows.Next() {
		account := &models.BrokerAccount{}
		var accountNumber sql.NullString
		if err := rows.Scan(&account.ID, &account.Broker, &account.Name, &accountNumber, &account.CreatedAt); err != nil {
			return nil, err
		}
		account.AccountNumber = accountNumber.String
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// CurrencyStore persists currencies, keyed by 3-letter code.
type CurrencyStore struct {
	db *sql.DB
}

func NewCurrencyStore(db *sql.DB) *CurrencyStore { return &CurrencyStore{db: db} }

func (s *CurrencyStore) Save(currency *models.Currency) (int64, error) {
	result, err := s.db.Exec(
		`INSERT INTO currencies (code, symbol) VALUES (?, ?)`, currency.Code, currency.Symbol)
	if err != nil {
		return 0, fmt.Errorf("error inserting currency %q: %w", currency.Code, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	currency.ID = id
	return id, nil
}

// GetByCode returns nil when no currency with this code exists.
func (s *CurrencyStore) GetByCode(code string) (*models.Currency, error) {
	row := s.db.QueryRow(`SELECT id, code, symbol FROM currencies WHERE code = ?`, code)
	currency := &models.Currency{}
	err := row.Scan(&currency.ID, &currency.Code, &currency.Symbol)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error scanning currency %q: %w", code, err)
	}
	return currency, nil
}

func (s *CurrencyStore) GetByID(id int64) (*models.Currency, error) {
	row := s.db.QueryRow(`SELECT id, code, symbol FROM currencies WHERE id = ?`, id)
	currency := &models.Currency{}
	err := row.Scan(&currency.ID, &currency.Code, &currency.Symbol)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return currency, nil
}

func (s *CurrencyStore) GetAll() ([]*models.Currency, error) {
	rows, err := s.db.Query(`SELECT id, code, symbol FROM currencies ORDER BY code ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var currencies []*models.Currency
	for rows.Next() {
		currency := &models.Currency{}
		if err := rows.Scan(&currency.ID, &currency.Code, &currency.Symbol); err != nil {
			return nil, err
		}
		currencies = append(currencies, currency)
	}
	return currencies, rows.Err()
}

// TickerStore persists tickers, keyed by symbol.
type TickerStore struct {
	db *sql.DB
}

func NewTickerStore(db *sql.DB) *TickerStore { return &TickerStore{db: db} }

func (s *TickerStore) Save(ticker *models.Ticker) (int64, error) {
	result, err := s.db.Exec(
		`INSERT INTO tickers (symbol, name) VALUES (?, ?)`, ticker.Symbol, ticker.Name)
	if err != nil {
		return 0, fmt.Errorf("error inserting ticker %q: %w", ticker.Symbol, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	ticker.ID = id
	return id, nil
}

// GetBySymbol returns nil when no ticker with this symbol exists.
func (s *TickerStore) GetBySymbol(symbol string) (*models.Ticker, error) {
	row := s.db.QueryRow(`SELECT id, symbol, name FROM tickers WHERE symbol = ?`, symbol)
	ticker := &models.Ticker{}
	var name sql.NullString
	err := row.Scan(&ticker.ID, &ticker.Symbol, &name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error scanning ticker %q: %w", symbol, err)
	}
	ticker.Name = name.String
	return ticker, nil
}

func (s *TickerStore) GetByID(id int64) (*models.Ticker, error) {
	row := s.db.QueryRow(`SELECT id, symbol, name FROM tickers WHERE id = ?`, id)
	ticker := &models.Ticker{}
	var name sql.NullString
	err := row.Scan(&ticker.ID, &ticker.Symbol, &name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ticker.Name = name.String
	return ticker, nil
}

func (s *TickerStore) GetAll() ([]*models.Ticker, error) {
	rows, err := s.db.Query(`SELECT id, symbol, name FROM tickers ORDER BY symbol ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tickers []*models.Ticker
	for rows.Next() {
		ticker := &models.Ticker{}
		var name sql.NullString
		if err := rows.Scan(&ticker.ID, &ticker.Symbol, &name); err != nil {
			return nil, err
		}
		ticker.Name = name.String
		tickers = append(tickers, ticker)
	}
	return tickers, rows.Err()
}
