package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/orbitdesk/ackrelay/internal/models"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "ackrelay_test.db")
	st, err := NewSQLiteStore(WithDSN(dsn))
	if err != nil {
		t.Fatalf("failed to open SQLite store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func testEvent(providerID string) models.AckErrorEvent {
	return models.AckErrorEvent{
		AckCode:            models.AckCodeError,
		ChannelConfigToken: "tok",
		ProviderMessageID:  providerID,
		Timestamp:          time.Now().UnixMilli(),
		PhoneNumber:        "553198765432",
	}
}

func TestDetectDSNType(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@localhost/db":   "postgres",
		"postgresql://u:p@localhost/db": "postgres",
		"host=localhost dbname=db":      "postgres",
		"/var/lib/ackrelay/ackrelay.db": "sqlite",
		"ackrelay.db":                   "sqlite",
	}
	for dsn, want := range cases {
		if got := DetectDSNType(dsn); got != want {
			t.Errorf("DetectDSNType(%q) = %q, want %q", dsn, got, want)
		}
	}
}

func TestSQLiteCorrelations(t *testing.T) {
	st := newTestSQLiteStore(t)

	rec := models.CorrelationRecord{
		Hash:               "hash-1",
		ProviderMessageID:  "wamid.ABC",
		ChannelConfigToken: "tok",
		CreatedAt:          time.Now().UnixMilli(),
	}
	if err := st.InsertCorrelation(rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Duplicate insert is a no-op.
	if err := st.InsertCorrelation(rec); err != nil {
		t.Fatalf("duplicate insert must succeed: %v", err)
	}

	hash, err := st.GetHashByProviderID("wamid.ABC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hash != "hash-1" {
		t.Errorf("expected hash-1, got %s", hash)
	}

	providerID, err := st.GetProviderIDByHash("hash-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if providerID != "wamid.ABC" {
		t.Errorf("expected wamid.ABC, got %s", providerID)
	}

	if _, err := st.GetHashByProviderID("wamid.MISSING"); !errors.Is(err, models.ErrCorrelationNotFound) {
		t.Errorf("expected ErrCorrelationNotFound, got %v", err)
	}
}

func TestSQLiteMismatches(t *testing.T) {
	st := newTestSQLiteStore(t)

	if err := st.InsertMismatch("553198765432", "5531998765432"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := st.InsertMismatch("553198765432", "5531998765432"); err != nil {
		t.Fatalf("duplicate insert must succeed: %v", err)
	}

	// Either form finds the pair.
	for _, form := range []string{"553198765432", "5531998765432"} {
		rec, err := st.FindMismatch(form)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec == nil {
			t.Fatalf("expected pair for form %s", form)
		}
		if rec.PhoneNumber != "553198765432" || rec.WaID != "5531998765432" {
			t.Errorf("unexpected pair: %+v", rec)
		}
	}

	rec, err := st.FindMismatch("5511900000000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec != nil {
		t.Errorf("expected nil for unknown form, got %+v", rec)
	}
}

func TestSQLiteAckErrorQueue(t *testing.T) {
	st := newTestSQLiteStore(t)
	now := time.Now()

	id, err := st.EnqueueAckError(testEvent("wamid.ERR1"), now.Add(-time.Second))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == "" {
		t.Fatal("expected a job id")
	}

	// A non-terminal duplicate returns the existing job id.
	dupID, err := st.EnqueueAckError(testEvent("wamid.ERR1"), now.Add(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dupID != id {
		t.Errorf("expected dedupe to return %s, got %s", id, dupID)
	}

	// Not-yet-due events are not claimable.
	if _, err := st.EnqueueAckError(testEvent("wamid.ERR2"), now.Add(time.Hour)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	jobs, err := st.ClaimDueAckErrors(now, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 due job, got %d", len(jobs))
	}
	if jobs[0].ID != id || jobs[0].Status != AckErrorStatusClaimed {
		t.Errorf("unexpected claimed job: %+v", jobs[0])
	}

	// A claimed job is invisible to further claimants.
	jobs, err = st.ClaimDueAckErrors(now, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("expected no claimable jobs, got %d", len(jobs))
	}

	// Claimed is still non-terminal: dedupe covers in-flight rows too.
	claimedDup, err := st.EnqueueAckError(testEvent("wamid.ERR1"), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claimedDup != id {
		t.Errorf("expected dedupe against claimed row to return %s, got %s", id, claimedDup)
	}

	if err := st.CompleteAckError(id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A completed event no longer blocks a fresh enqueue for the same id.
	newID, err := st.EnqueueAckError(testEvent("wamid.ERR1"), now.Add(-time.Second))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if newID == id {
		t.Error("expected a new job after completion, got the terminal one")
	}
}

func TestSQLiteRequeueStale(t *testing.T) {
	st := newTestSQLiteStore(t)
	now := time.Now()

	if _, err := st.EnqueueAckError(testEvent("wamid.ERR1"), now.Add(-time.Minute)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	jobs, err := st.ClaimDueAckErrors(now, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 claimed job, got %d", len(jobs))
	}

	n, err := st.RequeueStaleAckErrors(now.Add(time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 requeued job, got %d", n)
	}

	jobs, err = st.ClaimDueAckErrors(now, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(jobs) != 1 {
		t.Errorf("expected requeued job to be claimable again, got %d", len(jobs))
	}
}

func TestMemoryStoreQueueOrdering(t *testing.T) {
	st := NewMemoryStore()
	now := time.Now()

	if _, err := st.EnqueueAckError(testEvent("wamid.B"), now.Add(-time.Second)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := st.EnqueueAckError(testEvent("wamid.A"), now.Add(-2*time.Second)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	jobs, err := st.ClaimDueAckErrors(now, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ProviderMessageID != "wamid.A" {
		t.Errorf("expected earliest run_at first, got %+v", jobs)
	}
}

func TestPostgresStore(t *testing.T) {
	// Requires a running PostgreSQL instance; set DATABASE_URL to enable.
	connStr := getenvOrSkip(t, "DATABASE_URL")
	st, err := NewPostgresStore(WithDSN(connStr))
	if err != nil {
		t.Skipf("Postgres not available: %v", err)
	}
	defer st.Close()
	st.db.Exec("DELETE FROM ack_error_queue")
	st.db.Exec("DELETE FROM identity_mismatches")
	st.db.Exec("DELETE FROM message_correlations")

	rec := models.CorrelationRecord{
		Hash:               "pg-hash-1",
		ProviderMessageID:  "wamid.PG1",
		ChannelConfigToken: "tok",
		CreatedAt:          time.Now().UnixMilli(),
	}
	if err := st.InsertCorrelation(rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	hash, err := st.GetHashByProviderID("wamid.PG1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hash != "pg-hash-1" {
		t.Errorf("expected pg-hash-1, got %s", hash)
	}

	if err := st.InsertMismatch("553198765432", "5531998765432"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mm, err := st.FindMismatch("5531998765432")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mm == nil || mm.PhoneNumber != "553198765432" {
		t.Errorf("unexpected mismatch record: %+v", mm)
	}

	now := time.Now()
	id, err := st.EnqueueAckError(testEvent("wamid.PGERR"), now.Add(-time.Second))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	jobs, err := st.ClaimDueAckErrors(now, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != id {
		t.Fatalf("unexpected claim result: %+v", jobs)
	}
	if err := st.CompleteAckError(id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func getenvOrSkip(t *testing.T, key string) string {
	v := os.Getenv(key)
	if v == "" {
		t.Skipf("env %s not set", key)
	}
	return v
}
