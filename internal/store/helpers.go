package store

import (
	"database/sql"
	"fmt"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// scanAckErrorJob scans an AckErrorJob from sql.Rows.
func scanAckErrorJob(rows *sql.Rows) (AckErrorJob, error) {
	var j AckErrorJob
	var claimedAt sql.NullTime
	err := rows.Scan(
		&j.ID, &j.ProviderMessageID, &j.PayloadJSON, &j.Status,
		&j.RunAt, &claimedAt, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return j, fmt.Errorf("scan ack error job failed: %w", err)
	}
	if claimedAt.Valid {
		j.ClaimedAt = &claimedAt.Time
	}
	return j, nil
}
