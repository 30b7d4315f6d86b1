package store

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/orbitdesk/ackrelay/internal/models"
)

// Compile-time check that PostgresStore implements CorrelationRepo.
var _ CorrelationRepo = (*PostgresStore)(nil)

func (s *PostgresStore) InsertCorrelation(rec models.CorrelationRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	// ON CONFLICT DO NOTHING on both unique keys: a duplicate insert is a
	// benign no-op, the first write wins and the row is never mutated.
	result, err := s.db.Exec(
		`INSERT INTO message_correlations (hash, provider_message_id, channel_config_token, conversation_id, workspace_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT DO NOTHING`,
		rec.Hash, rec.ProviderMessageID, rec.ChannelConfigToken,
		nilIfEmpty(rec.ConversationID), nilIfEmpty(rec.WorkspaceID), rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert correlation failed: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		slog.Debug("PostgresStore.InsertCorrelation: duplicate ignored", "hash", rec.Hash, "providerMessageID", rec.ProviderMessageID)
	}
	return nil
}

func (s *PostgresStore) GetHashByProviderID(providerMessageID string) (string, error) {
	var hash string
	err := s.db.QueryRow(
		`SELECT hash FROM message_correlations WHERE provider_message_id = $1`,
		providerMessageID,
	).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", models.ErrCorrelationNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get hash by provider id failed: %w", err)
	}
	return hash, nil
}

func (s *PostgresStore) GetProviderIDByHash(hash string) (string, error) {
	var providerMessageID string
	err := s.db.QueryRow(
		`SELECT provider_message_id FROM message_correlations WHERE hash = $1`,
		hash,
	).Scan(&providerMessageID)
	if err == sql.ErrNoRows {
		return "", models.ErrCorrelationNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get provider id by hash failed: %w", err)
	}
	return providerMessageID, nil
}
