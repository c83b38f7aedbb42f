// Package httpbridge is a thin, replaceable adapter from net/http to a
// workflow.Workflow. It is explicitly not part of the invariant-bearing
// core: the dashboard, voice channel, and any other outer surface are
// expected to implement their own transport against workflow.Workflow
// directly, or wrap this one.
package httpbridge

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/flowline/runtime/pkg/flowline/event"
	"github.com/flowline/runtime/pkg/flowline/workflow"
)

// CORSConfig configures the allowed origins and methods for the bridge's
// responses.
type CORSConfig struct {
	Origins []string
	Methods []string
}

func (c CORSConfig) apply(w http.ResponseWriter) {
	if len(c.Origins) == 0 {
		return
	}
	for _, origin := range c.Origins {
		w.Header().Add("Access-Control-Allow-Origin", origin)
	}
	methods := c.Methods
	if len(methods) == 0 {
		methods = []string{http.MethodPost, http.MethodOptions}
	}
	for i, m := range methods {
		if i == 0 {
			w.Header().Set("Access-Control-Allow-Methods", m)
		} else {
			w.Header().Add("Access-Control-Allow-Methods", m)
		}
	}
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

type runRequest struct {
	Input     string `json:"input"`
	SessionID string `json:"sessionId"`
}

type streamedEvent struct {
	Name      string `json:"name"`
	Payload   any    `json:"payload"`
	Timestamp string `json:"timestamp"`
}

// New builds an http.Handler that accepts POST (or OPTIONS preflight)
// requests, runs wf once per request, and streams the resulting events
// back as a text/event-stream response. record controls whether the run
// is persisted to wf's configured Store.
func New[S any](wf *workflow.Workflow[S], cors CORSConfig, record bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cors.apply(w)

		switch r.Method {
		case http.MethodOptions:
			w.WriteHeader(http.StatusNoContent)
			return
		case http.MethodPost:
			handleRun(w, r, wf, record)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
}

func handleRun[S any](w http.ResponseWriter, r *http.Request, wf *workflow.Workflow[S], record bool) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	result, err := wf.Run(r.Context(), workflow.RunInput{
		Input:     req.Input,
		Record:    record,
		SessionID: req.SessionID,
	})
	if err != nil && result.Events == nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	flusher, canFlush := w.(http.Flusher)

	for _, e := range result.Events {
		writeSSE(w, e)
		if canFlush {
			flusher.Flush()
		}
	}

	writeFinal(w, result.SessionID, result.Terminated, err)
	if canFlush {
		flusher.Flush()
	}
}

func writeSSE(w http.ResponseWriter, e event.Event) {
	payload, marshalErr := json.Marshal(streamedEvent{
		Name:      e.Name,
		Payload:   e.Payload,
		Timestamp: e.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
	})
	if marshalErr != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Name, payload)
}

func writeFinal(w http.ResponseWriter, sessionID string, terminated bool, runErr error) {
	final := map[string]any{
		"sessionId":  sessionID,
		"terminated": terminated,
	}
	if runErr != nil {
		final["error"] = runErr.Error()
	}
	payload, marshalErr := json.Marshal(final)
	if marshalErr != nil {
		return
	}
	fmt.Fprintf(w, "event: run:complete\ndata: %s\n\n", payload)
}
