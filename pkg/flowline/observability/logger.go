// Package observability carries the runtime's structured logging,
// metrics, and tracing, with graceful no-op fallbacks so the core never
// requires an OTel SDK to be configured.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger returns a logger with session/event/agent context attached,
// or the no-op discard logger if base is nil.
func EnrichLogger(base *slog.Logger, sessionID, eventName string) *slog.Logger {
	if base == nil {
		return slog.New(slog.DiscardHandler)
	}
	return base.With("session_id", sessionID, "event", eventName)
}

// LogSessionStart logs the beginning of a workflow run.
func LogSessionStart(logger *slog.Logger, workflowName, sessionID string) {
	if logger == nil {
		return
	}
	logger.Info("session started", "workflow", workflowName, "session_id", sessionID)
}

// LogSessionComplete logs the end of a workflow run.
func LogSessionComplete(logger *slog.Logger, sessionID string, eventCount int, duration time.Duration) {
	if logger == nil {
		return
	}
	logger.Info("session complete", "session_id", sessionID, "events", eventCount, "duration", duration)
}

// LogSessionError logs a fatal run failure.
func LogSessionError(logger *slog.Logger, sessionID string, err error) {
	if logger == nil {
		return
	}
	logger.Error("session failed", "session_id", sessionID, "error", err)
}

// LogEventDispatched logs a single event reaching the dispatch loop.
func LogEventDispatched(logger *slog.Logger, sessionID, eventName string, emitted int) {
	if logger == nil {
		return
	}
	logger.Debug("event dispatched", "session_id", sessionID, "event", eventName, "emitted", emitted)
}

// LogAgentStarted logs an agent activation.
func LogAgentStarted(logger *slog.Logger, sessionID, agentName, triggerEvent string) {
	if logger == nil {
		return
	}
	logger.Info("agent started", "session_id", sessionID, "agent", agentName, "trigger", triggerEvent)
}

// LogAgentCompleted logs a successful agent invocation.
func LogAgentCompleted(logger *slog.Logger, sessionID, agentName string, duration time.Duration) {
	if logger == nil {
		return
	}
	logger.Info("agent completed", "session_id", sessionID, "agent", agentName, "duration", duration)
}

// LogAgentError logs a failed agent invocation.
func LogAgentError(logger *slog.Logger, sessionID, agentName string, err error) {
	if logger == nil {
		return
	}
	logger.Error("agent failed", "session_id", sessionID, "agent", agentName, "error", err)
}

// LogRendererPanic logs a recovered renderer panic. Renderer failures are
// never surfaced as events — they are pure observers — so a log line is
// the only record of the failure.
func LogRendererPanic(logger *slog.Logger, rendererName string, recovered any) {
	if logger == nil {
		return
	}
	logger.Warn("renderer panicked", "renderer", rendererName, "recovered", recovered)
}

// TimedOperation returns a closure that reports the elapsed time since
// TimedOperation was called.
func TimedOperation() func() time.Duration {
	start := time.Now()
	return func() time.Duration { return time.Since(start) }
}
