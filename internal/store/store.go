// Package store provides storage backends for ackrelay.
//
// It defines the repository interfaces for message correlation, identity
// mismatches and the delayed ack-error queue, with PostgreSQL and SQLite
// implementations plus an in-memory store for tests and local runs.
package store

import (
	"strings"
	"time"

	"github.com/orbitdesk/ackrelay/internal/models"
)

// Opts holds configuration options for store constructors.
type Opts struct {
	DSN string // database connection string
}

// Option defines a configuration option for store constructors.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType returns "postgres" for PostgreSQL-style connection strings
// and "sqlite" otherwise (file paths are treated as SQLite databases).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// CorrelationRepo persists the bidirectional mapping between activity hash
// and provider message id. Rows are append-only: inserts are idempotent on
// either unique key and there is no update or delete path.
type CorrelationRepo interface {
	// InsertCorrelation inserts a new correlation record. A duplicate-key
	// conflict is swallowed as success; the store only ever keeps the first
	// write for a given hash or provider message id.
	InsertCorrelation(rec models.CorrelationRecord) error

	// GetHashByProviderID returns the activity hash correlated with the given
	// provider message id, or models.ErrCorrelationNotFound.
	GetHashByProviderID(providerMessageID string) (string, error)

	// GetProviderIDByHash returns the provider message id correlated with the
	// given activity hash, or models.ErrCorrelationNotFound.
	GetProviderIDByHash(hash string) (string, error)
}

// MismatchRepo persists observed (phoneNumber, waId) identity pairs.
// The pair is symmetric; FindMismatch matches either column.
type MismatchRepo interface {
	// InsertMismatch records an observed identity pair. A duplicate pair is
	// swallowed as success.
	InsertMismatch(phoneNumber, waID string) error

	// FindMismatch looks up a pair by either of its forms. Returns nil when
	// no pair is known for the given form.
	FindMismatch(form string) (*models.MismatchRecord, error)
}

// AckErrorJobStatus represents the lifecycle state of a delayed ack-error event.
type AckErrorJobStatus string

const (
	AckErrorStatusQueued  AckErrorJobStatus = "queued"
	AckErrorStatusClaimed AckErrorJobStatus = "claimed"
	AckErrorStatusDone    AckErrorJobStatus = "done"
)

// AckErrorJob is a durable delay-queue row carrying one ack-error event.
// The event itself travels as JSON; the provider message id is duplicated
// into its own column for enqueue deduplication.
type AckErrorJob struct {
	ID                string            `json:"id"`
	ProviderMessageID string            `json:"provider_message_id"`
	PayloadJSON       string            `json:"payload_json"`
	Status            AckErrorJobStatus `json:"status"`
	RunAt             time.Time         `json:"run_at"`
	ClaimedAt         *time.Time        `json:"claimed_at"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// AckErrorQueue is the durable delay mechanism for delivery-error events.
// Events become claimable only once their run_at has passed, which enforces
// the deliberate delay between receiving an error ack and deciding on it.
type AckErrorQueue interface {
	// EnqueueAckError inserts a delayed ack-error event that becomes due at
	// runAt. If a non-terminal event for the same provider message id already
	// exists, the existing event id is returned instead of inserting a
	// duplicate.
	EnqueueAckError(event models.AckErrorEvent, runAt time.Time) (string, error)

	// ClaimDueAckErrors marks up to limit queued events whose run_at <= now
	// as claimed and returns them. A claimed event is not visible to other
	// claimants until requeued.
	ClaimDueAckErrors(now time.Time, limit int) ([]AckErrorJob, error)

	// CompleteAckError marks an event as done. Events are completed both
	// after a committed error and after an intentionally swallowed outcome;
	// there is no negative-ack-and-requeue loop for this event type.
	CompleteAckError(id string) error

	// RequeueStaleAckErrors resets events stuck in claimed state since before
	// staleBefore back to queued (crash recovery).
	RequeueStaleAckErrors(staleBefore time.Time) (int, error)
}

// Store bundles all repositories backed by a single database.
type Store interface {
	CorrelationRepo
	MismatchRepo
	AckErrorQueue
	Close() error
}
