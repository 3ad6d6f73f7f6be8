package database

import (
	"database/sql"
	stdlog "log"

	"github.com/username/folioimport/src/logger"
	_ "modernc.org/sqlite"
)

var DB *sql.DB

// InitDB opens (or creates) the sqlite database and ensures the schema.
func InitDB(databasePath string) *sql.DB {
	db, err := sql.Open("sqlite", databasePath)
	if err != nil {
		stdlog.Fatalf("failed to open database at %s: %v", databasePath, err)
	}

	// The import pipeline is strictly single-writer; one connection keeps
	// sqlite's locking out of the picture.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		stdlog.Fatalf("failed to enable foreign keys: %v", err)
	}

	DB = db

	logger.L.Info("Ensuring database schema", "databasePath", databasePath)
	if err := ensureSchema(db); err != nil {
		logger.L.Error("failed to create tables", "error", err)
		stdlog.Fatalf("failed to create tables: %v", err)
	}
	migrateDatabase(db)
	logger.L.Info("Database tables ensured/created.")
	return db
}

func ensureSchema(db *sql.DB) error {
	createTableStatement := `
	CREATE TABLE IF NOT EXISTS broker_accounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		broker TEXT NOT NULL,
		name TEXT NOT NULL,
		account_number TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS currencies (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		code TEXT NOT NULL UNIQUE,
		symbol TEXT NOT NULL DEFAULT '$'
	);

	CREATE TABLE IF NOT EXISTS tickers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL UNIQUE,
		name TEXT
	);

	CREATE TABLE IF NOT EXISTS stock_trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id INTEGER NOT NULL,
		ticker_id INTEGER NOT NULL,
		direction TEXT NOT NULL,
		buy_sell TEXT NOT NULL,
		quantity REAL NOT NULL,
		price TEXT NOT NULL,
		commission TEXT NOT NULL,
		fees TEXT NOT NULL,
		currency_id INTEGER NOT NULL,
		executed_at TEXT NOT NULL,
		FOREIGN KEY(account_id) REFERENCES broker_accounts(id),
		FOREIGN KEY(ticker_id) REFERENCES tickers(id),
		FOREIGN KEY(currency_id) REFERENCES currencies(id)
	);

	CREATE TABLE IF NOT EXISTS option_trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id INTEGER NOT NULL,
		ticker_id INTEGER NOT NULL,
		underlying TEXT NOT NULL,
		option_type TEXT NOT NULL,
		strike TEXT NOT NULL,
		expiration TEXT NOT NULL,
		action TEXT NOT NULL,
		is_open INTEGER NOT NULL DEFAULT 0,
		closed_with INTEGER NOT NULL DEFAULT 0,
		premium TEXT NOT NULL,
		net_premium TEXT NOT NULL,
		commission TEXT NOT NULL,
		fees TEXT NOT NULL,
		multiplier INTEGER NOT NULL DEFAULT 100,
		currency_id INTEGER NOT NULL,
		executed_at TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		FOREIGN KEY(account_id) REFERENCES broker_accounts(id),
		FOREIGN KEY(ticker_id) REFERENCES tickers(id),
		FOREIGN KEY(currency_id) REFERENCES currencies(id)
	);
	CREATE INDEX IF NOT EXISTS idx_option_trades_open
		ON option_trades(account_id, underlying, option_type, expiration, is_open);

	CREATE TABLE IF NOT EXISTS dividends (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id INTEGER NOT NULL,
		ticker_id INTEGER NOT NULL,
		amount TEXT NOT NULL,
		currency_id INTEGER NOT NULL,
		paid_at TEXT NOT NULL,
		FOREIGN KEY(account_id) REFERENCES broker_accounts(id),
		FOREIGN KEY(ticker_id) REFERENCES tickers(id),
		FOREIGN KEY(currency_id) REFERENCES currencies(id)
	);

	CREATE TABLE IF NOT EXISTS dividend_taxes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id INTEGER NOT NULL,
		ticker_id INTEGER NOT NULL,
		amount TEXT NOT NULL,
		currency_id INTEGER NOT NULL,
		paid_at TEXT NOT NULL,
		FOREIGN KEY(account_id) REFERENCES broker_accounts(id),
		FOREIGN KEY(ticker_id) REFERENCES tickers(id),
		FOREIGN KEY(currency_id) REFERENCES currencies(id)
	);

	CREATE TABLE IF NOT EXISTS cash_movements (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id INTEGER NOT NULL,
		kind TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency_id INTEGER NOT NULL,
		occurred_at TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		FOREIGN KEY(account_id) REFERENCES broker_accounts(id),
		FOREIGN KEY(currency_id) REFERENCES currencies(id)
	);

	CREATE TABLE IF NOT EXISTS import_sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		token TEXT NOT NULL UNIQUE,
		broker_account_id INTEGER NOT NULL,
		source_file_name TEXT NOT NULL,
		source_file_path TEXT NOT NULL,
		file_content_hash TEXT NOT NULL,
		total_chunks INTEGER NOT NULL,
		total_estimated_movements INTEGER NOT NULL,
		processed_movements INTEGER NOT NULL DEFAULT 0,
		range_start TEXT NOT NULL,
		range_end TEXT NOT NULL,
		phase TEXT NOT NULL,
		failure_reason TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(broker_account_id) REFERENCES broker_accounts(id)
	);

	CREATE TABLE IF NOT EXISTS import_session_chunks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER NOT NULL,
		chunk_number INTEGER NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		estimated_movements INTEGER NOT NULL,
		state TEXT NOT NULL DEFAULT 'pending',
		actual_movements INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY(session_id) REFERENCES import_sessions(id),
		UNIQUE(session_id, chunk_number)
	);

	CREATE TABLE IF NOT EXISTS ticker_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id INTEGER NOT NULL,
		ticker_id INTEGER NOT NULL,
		as_of TEXT NOT NULL,
		shares_held REAL NOT NULL DEFAULT 0,
		open_contracts INTEGER NOT NULL DEFAULT 0,
		net_option_premium TEXT NOT NULL DEFAULT '0',
		dividends_received TEXT NOT NULL DEFAULT '0',
		dividend_tax_paid TEXT NOT NULL DEFAULT '0',
		FOREIGN KEY(account_id) REFERENCES broker_accounts(id),
		FOREIGN KEY(ticker_id) REFERENCES tickers(id),
		UNIQUE(account_id, ticker_id, as_of)
	);

	CREATE TABLE IF NOT EXISTS broker_financials (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id INTEGER NOT NULL,
		as_of TEXT NOT NULL,
		deposits TEXT NOT NULL DEFAULT '0',
		withdrawals TEXT NOT NULL DEFAULT '0',
		fees TEXT NOT NULL DEFAULT '0',
		interest TEXT NOT NULL DEFAULT '0',
		dividends_net TEXT NOT NULL DEFAULT '0',
		FOREIGN KEY(account_id) REFERENCES broker_accounts(id),
		UNIQUE(account_id, as_of)
	);
	`
	_, err := db.Exec(createTableStatement)
	return err
}

// ExecuteInTransaction runs work inside a single database transaction,
// rolling back on error. This is the one primitive chunk-completion
// bookkeeping and table-wipe utilities are required to use.
func ExecuteInTransaction(db *sql.DB, work func(tx *sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	if err := work(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.L.Error("rollback failed after transaction error", "error", rbErr)
		}
		return err
	}
	return tx.Commit()
}
