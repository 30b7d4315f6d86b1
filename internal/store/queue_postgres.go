package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/orbitdesk/ackrelay/internal/models"
	"github.com/orbitdesk/ackrelay/internal/util"
)

// Compile-time check that PostgresStore implements AckErrorQueue.
var _ AckErrorQueue = (*PostgresStore)(nil)

func (s *PostgresStore) EnqueueAckError(event models.AckErrorEvent, runAt time.Time) (string, error) {
	if err := event.Validate(); err != nil {
		return "", err
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal ack error event failed: %w", err)
	}

	// One pending decision per provider message id: the partial unique index
	// on non-terminal rows makes concurrent enqueues collapse into one row.
	id := util.GenerateEventID()
	now := time.Now()
	result, err := s.db.Exec(
		`INSERT INTO ack_error_queue (id, provider_message_id, payload_json, status, run_at, created_at, updated_at)
		 VALUES ($1, $2, $3, 'queued', $4, $5, $6)
		 ON CONFLICT (provider_message_id) WHERE status != 'done' DO NOTHING`,
		id, event.ProviderMessageID, string(payload), runAt, now, now,
	)
	if err != nil {
		return "", fmt.Errorf("enqueue ack error failed: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		var existingID string
		err := s.db.QueryRow(
			`SELECT id FROM ack_error_queue WHERE provider_message_id = $1 AND status != 'done'`,
			event.ProviderMessageID,
		).Scan(&existingID)
		if err == sql.ErrNoRows {
			return "", fmt.Errorf("ack error dedupe row vanished for %s", event.ProviderMessageID)
		}
		if err != nil {
			return "", fmt.Errorf("ack error dedupe lookup failed: %w", err)
		}
		slog.Debug("PostgresStore.EnqueueAckError: dedupe hit", "providerMessageID", event.ProviderMessageID, "existingID", existingID)
		return existingID, nil
	}
	slog.Debug("PostgresStore.EnqueueAckError", "id", id, "providerMessageID", event.ProviderMessageID, "runAt", runAt)
	return id, nil
}

func (s *PostgresStore) ClaimDueAckErrors(now time.Time, limit int) ([]AckErrorJob, error) {
	rows, err := s.db.Query(
		`UPDATE ack_error_queue SET status = 'claimed', claimed_at = $1, updated_at = $1
		 WHERE id IN (
		   SELECT id FROM ack_error_queue WHERE status = 'queued' AND run_at <= $1
		   ORDER BY run_at ASC LIMIT $2
		   FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, provider_message_id, payload_json, status, run_at, claimed_at, created_at, updated_at`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim due ack errors failed: %w", err)
	}
	defer rows.Close()

	var jobs []AckErrorJob
	for rows.Next() {
		j, err := scanAckErrorJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim ack errors iteration failed: %w", err)
	}
	return jobs, nil
}

func (s *PostgresStore) CompleteAckError(id string) error {
	now := time.Now()
	_, err := s.db.Exec(
		`UPDATE ack_error_queue SET status = 'done', updated_at = $1 WHERE id = $2`,
		now, id,
	)
	if err != nil {
		return fmt.Errorf("complete ack error failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) RequeueStaleAckErrors(staleBefore time.Time) (int, error) {
	now := time.Now()
	result, err := s.db.Exec(
		`UPDATE ack_error_queue SET status = 'queued', claimed_at = NULL, updated_at = $1
		 WHERE status = 'claimed' AND claimed_at < $2`,
		now, staleBefore,
	)
	if err != nil {
		return 0, fmt.Errorf("requeue stale ack errors failed: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		slog.Info("PostgresStore.RequeueStaleAckErrors", "requeued", n)
	}
	return int(n), nil
}
