package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/thatsimonsguy/automation-presence/internal/model"
)

// HistoryStore records master transitions for the engine.
type HistoryStore struct {
	db *sql.DB
}

func NewHistoryStore(db *sql.DB) *HistoryStore {
	return &HistoryStore{db: db}
}

func (h *HistoryStore) AppendHistory(ctx context.Context, entry model.HistoryEntry) error {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("start transaction: %w", err)
	}
	if err := AppendHistoryWithTx(tx, entry); err != nil {
		RollbackTransaction(tx)
		return err
	}
	return CommitTransaction(tx)
}

func (h *HistoryStore) List(limit int) ([]model.HistoryEntry, error) {
	return ListHistory(h.db, limit)
}
