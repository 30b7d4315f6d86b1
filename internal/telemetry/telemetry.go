// Package telemetry provides fire-and-forget structured event capture for
// unresolved, stale and other edge-case situations.
//
// Reporters must never block or return errors into the caller: a lost
// telemetry event is always preferable to a stalled message pipeline.
package telemetry

import "log/slog"

// Event names emitted by the ack pipeline.
const (
	EventAckErrorUnresolvable  = "ack_error_unresolvable"
	EventAckErrorStaleDiscard  = "ack_error_stale_discarded"
	EventAckErrorPipelineError = "ack_error_pipeline_failure"
)

// Reporter captures structured telemetry events.
type Reporter interface {
	// Capture records an event with key-value attributes. It must not block
	// and must not panic or propagate failures.
	Capture(event string, attrs map[string]string)
}

// SlogReporter writes telemetry events to the structured log.
type SlogReporter struct{}

// Compile-time check that SlogReporter implements Reporter.
var _ Reporter = (*SlogReporter)(nil)

// NewSlogReporter creates a log-backed reporter.
func NewSlogReporter() *SlogReporter {
	return &SlogReporter{}
}

// Capture logs the event at warn level with its attributes.
func (r *SlogReporter) Capture(event string, attrs map[string]string) {
	args := make([]any, 0, len(attrs)*2+2)
	args = append(args, "event", event)
	for k, v := range attrs {
		args = append(args, k, v)
	}
	slog.Warn("telemetry event", args...)
}

// NopReporter discards all events.
type NopReporter struct{}

// Compile-time check that NopReporter implements Reporter.
var _ Reporter = (*NopReporter)(nil)

// Capture does nothing.
func (NopReporter) Capture(event string, attrs map[string]string) {}
