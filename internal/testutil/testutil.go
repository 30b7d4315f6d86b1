// Package testutil provides common test utilities and helpers for ackrelay tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/orbitdesk/ackrelay/internal/ack"
	"github.com/orbitdesk/ackrelay/internal/api"
	"github.com/orbitdesk/ackrelay/internal/cache"
	"github.com/orbitdesk/ackrelay/internal/conversation"
	"github.com/orbitdesk/ackrelay/internal/correlation"
	"github.com/orbitdesk/ackrelay/internal/identity"
	"github.com/orbitdesk/ackrelay/internal/store"
	"github.com/orbitdesk/ackrelay/internal/telemetry"
)

// Env bundles a test API server with its in-memory dependencies so tests
// can seed state and inspect outcomes directly.
type Env struct {
	Server     *api.Server
	Store      *store.MemoryStore
	Conv       *conversation.MemoryService
	Correlator *correlation.Correlator
	Resolver   *identity.Resolver
	Updater    *ack.Updater
	Consumer   *ack.Consumer
}

// NewEnv creates a fully wired test environment on in-memory backends.
func NewEnv() *Env {
	st := store.NewMemoryStore()
	c := cache.NewMemory()
	conv := conversation.NewMemoryService()
	correlator := correlation.NewCorrelator(st, c)
	resolver := identity.NewResolver(st, c)
	updater := ack.NewUpdater(correlator, conv, st, 0)
	consumer := ack.NewConsumer(st, correlator, st, conv, telemetry.NopReporter{}, 0)

	return &Env{
		Server:     api.NewServer("", updater, resolver, conv),
		Store:      st,
		Conv:       conv,
		Correlator: correlator,
		Resolver:   resolver,
		Updater:    updater,
		Consumer:   consumer,
	}
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes a JSON response envelope and validates the status field.
func AssertJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}

	return response
}

// CreateHTTPRequest creates an HTTP request with an optional JSON body for testing.
func CreateHTTPRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(data)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, url, reqBody)
	req.Header.Set("Content-Type", "application/json")
	return req
}
