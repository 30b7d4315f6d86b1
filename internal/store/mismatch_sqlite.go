package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/orbitdesk/ackrelay/internal/models"
)

// Compile-time check that SQLiteStore implements MismatchRepo.
var _ MismatchRepo = (*SQLiteStore)(nil)

func (s *SQLiteStore) InsertMismatch(phoneNumber, waID string) error {
	if phoneNumber == "" || waID == "" {
		return models.ErrEmptyIdentifier
	}
	result, err := s.db.Exec(
		`INSERT OR IGNORE INTO identity_mismatches (phone_number, wa_id, created_at) VALUES (?, ?, ?)`,
		phoneNumber, waID, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert mismatch failed: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		slog.Debug("SQLiteStore.InsertMismatch: pair already known", "phoneNumber", phoneNumber, "waID", waID)
	}
	return nil
}

func (s *SQLiteStore) FindMismatch(form string) (*models.MismatchRecord, error) {
	var rec models.MismatchRecord
	err := s.db.QueryRow(
		`SELECT phone_number, wa_id, created_at FROM identity_mismatches
		 WHERE phone_number = ? OR wa_id = ?
		 LIMIT 1`,
		form, form,
	).Scan(&rec.PhoneNumber, &rec.WaID, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find mismatch failed: %w", err)
	}
	return &rec, nil
}
