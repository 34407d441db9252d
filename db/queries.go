package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/thatsimonsguy/automation-presence/internal/model"
)

// ListHistory returns up to limit master transitions, newest first. A limit
// of zero or less returns everything.
func ListHistory(db *sql.DB, limit int) ([]model.HistoryEntry, error) {
	query := `SELECT timestamp, status FROM history ORDER BY timestamp DESC, id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	entries := []model.HistoryEntry{}
	for rows.Next() {
		var ts string
		var entry model.HistoryEntry
		if err := rows.Scan(&ts, &entry.Status); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		entry.Timestamp, err = time.Parse(timestampLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("failed to parse history timestamp %q: %w", ts, err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// LastTransition returns the most recent master transition, or nil.
func LastTransition(db *sql.DB) (*model.HistoryEntry, error) {
	entries, err := ListHistory(db, 1)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}
