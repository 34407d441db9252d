package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/thatsimonsguy/automation-presence/internal/model"
)

// StartTransaction starts a new database transaction.
func StartTransaction(db *sql.DB) (*sql.Tx, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	return tx, nil
}

// CommitTransaction commits the given transaction.
func CommitTransaction(tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RollbackTransaction rolls back the given transaction.
func RollbackTransaction(tx *sql.Tx) {
	tx.Rollback()
}

func AppendHistoryWithTx(tx *sql.Tx, entry model.HistoryEntry) error {
	_, err := tx.Exec(`INSERT INTO history (timestamp, status) VALUES (?, ?)`,
		entry.Timestamp.UTC().Format(timestampLayout), entry.Status)
	if err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}
	return nil
}

// PruneHistory drops entries older than before and reports how many went.
func PruneHistory(db *sql.DB, before time.Time) (int64, error) {
	res, err := db.Exec(`DELETE FROM history WHERE timestamp < ?`, before.UTC().Format(timestampLayout))
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return n, nil
}
