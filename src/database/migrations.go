package database

import (
	"database/sql"

	"github.com/username/folioimport/src/logger"
)

// migrateDatabase adds columns introduced after the initial schema to
// databases created by earlier builds. Same PRAGMA-based approach as the
// CREATE IF NOT EXISTS schema itself: idempotent, no version table.
func migrateDatabase(db *sql.DB) {
	addColumnIfMissing(db, "option_trades", "notes", "TEXT NOT NULL DEFAULT ''")
	addColumnIfMissing(db, "import_session_chunks", "duration_ms", "INTEGER NOT NULL DEFAULT 0")
	addColumnIfMissing(db, "import_sessions", "failure_reason", "TEXT NOT NULL DEFAULT ''")
}

func addColumnIfMissing(db *sql.DB, table, column, definition string) {
	exists, err := columnExists(db, table, column)
	if err != nil {
		logger.L.Error("Error checking table schema", "table", table, "error", err)
		return
	}
	if exists {
		return
	}
	if _, err := db.Exec("ALTER TABLE " + table + " ADD COLUMN " + column + " " + definition); err != nil {
		logger.L.Error("Error adding column", "table", table, "column", column, "error", err)
		return
	}
	logger.L.Info("Added column", "table", table, "column", column)
}

func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var cid, pk int
		var name, dataType string
		var notnullVal int
		var dfltValue any
		if err := rows.Scan(&cid, &name, &dataType, &notnullVal, &dfltValue, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
