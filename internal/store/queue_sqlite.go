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

// Compile-time check that SQLiteStore implements AckErrorQueue.
var _ AckErrorQueue = (*SQLiteStore)(nil)

func (s *SQLiteStore) EnqueueAckError(event models.AckErrorEvent, runAt time.Time) (string, error) {
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
		 VALUES (?, ?, ?, 'queued', ?, ?, ?)
		 ON CONFLICT (provider_message_id) WHERE status != 'done' DO NOTHING`,
		id, event.ProviderMessageID, string(payload), runAt, now, now,
	)
	if err != nil {
		return "", fmt.Errorf("enqueue ack error failed: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		var existingID string
		err := s.db.QueryRow(
			`SELECT id FROM ack_error_queue WHERE provider_message_id = ? AND status != 'done'`,
			event.ProviderMessageID,
		).Scan(&existingID)
		if err == sql.ErrNoRows {
			return "", fmt.Errorf("ack error dedupe row vanished for %s", event.ProviderMessageID)
		}
		if err != nil {
			return "", fmt.Errorf("ack error dedupe lookup failed: %w", err)
		}
		slog.Debug("SQLiteStore.EnqueueAckError: dedupe hit", "providerMessageID", event.ProviderMessageID, "existingID", existingID)
		return existingID, nil
	}
	slog.Debug("SQLiteStore.EnqueueAckError", "id", id, "providerMessageID", event.ProviderMessageID, "runAt", runAt)
	return id, nil
}

// ClaimDueAckErrors claims due events inside a transaction. SQLite has no
// FOR UPDATE SKIP LOCKED; the database-level write lock serializes
// claimants instead, which preserves the no-overlap guarantee.
func (s *SQLiteStore) ClaimDueAckErrors(now time.Time, limit int) ([]AckErrorJob, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin claim transaction failed: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(
		`SELECT id, provider_message_id, payload_json, status, run_at, claimed_at, created_at, updated_at
		 FROM ack_error_queue WHERE status = 'queued' AND run_at <= ?
		 ORDER BY run_at ASC LIMIT ?`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select due ack errors failed: %w", err)
	}

	var jobs []AckErrorJob
	for rows.Next() {
		j, err := scanAckErrorJob(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("claim ack errors iteration failed: %w", err)
	}
	rows.Close()

	for i := range jobs {
		claimedAt := now
		if _, err := tx.Exec(
			`UPDATE ack_error_queue SET status = 'claimed', claimed_at = ?, updated_at = ? WHERE id = ?`,
			claimedAt, now, jobs[i].ID,
		); err != nil {
			return nil, fmt.Errorf("mark ack error claimed failed: %w", err)
		}
		jobs[i].Status = AckErrorStatusClaimed
		jobs[i].ClaimedAt = &claimedAt
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim transaction failed: %w", err)
	}
	return jobs, nil
}

func (s *SQLiteStore) CompleteAckError(id string) error {
	now := time.Now()
	_, err := s.db.Exec(
		`UPDATE ack_error_queue SET status = 'done', updated_at = ? WHERE id = ?`,
		now, id,
	)
	if err != nil {
		return fmt.Errorf("complete ack error failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RequeueStaleAckErrors(staleBefore time.Time) (int, error) {
	now := time.Now()
	result, err := s.db.Exec(
		`UPDATE ack_error_queue SET status = 'queued', claimed_at = NULL, updated_at = ?
		 WHERE status = 'claimed' AND claimed_at < ?`,
		now, staleBefore,
	)
	if err != nil {
		return 0, fmt.Errorf("requeue stale ack errors failed: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		slog.Info("SQLiteStore.RequeueStaleAckErrors", "requeued", n)
	}
	return int(n), nil
}
