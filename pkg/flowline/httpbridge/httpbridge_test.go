package httpbridge_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowline/runtime/pkg/flowline/agent"
	"github.com/flowline/runtime/pkg/flowline/event"
	"github.com/flowline/runtime/pkg/flowline/handler"
	"github.com/flowline/runtime/pkg/flowline/httpbridge"
	"github.com/flowline/runtime/pkg/flowline/workflow"
)

type echoState struct {
	Turns int
}

func buildWorkflow(t *testing.T) *workflow.Workflow[echoState] {
	t.Helper()
	handlers := handler.NewRegistry[echoState](nil)
	require.NoError(t, handlers.Register(handler.Define(workflow.UserInput, func(p workflow.UserInputPayload, e event.Event, s echoState) (echoState, []event.Event) {
		s.Turns++
		return s, nil
	})))

	wf, err := workflow.New(workflow.Config[echoState]{
		Name:         "echo",
		InitialState: echoState{},
		Handlers:     handlers,
		Agents:       agent.NewRegistry[echoState](),
		Until:        func(s echoState) bool { return s.Turns >= 1 },
	})
	require.NoError(t, err)
	return wf
}

func TestHTTPBridge_PostRunsWorkflowAndStreamsEvents(t *testing.T) {
	wf := buildWorkflow(t)
	h := httpbridge.New(wf, httpbridge.CORSConfig{Origins: []string{"https://example.com"}}, false)

	req := httptest.NewRequest(http.MethodPost, "/run", strings.NewReader(`{"input":"hello"}`))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	resp := rec.Result()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "https://example.com", resp.Header.Get("Access-Control-Allow-Origin"))

	body := rec.Body.String()
	assert.Contains(t, body, "event: user:input")
	assert.Contains(t, body, "event: run:complete")
}

func TestHTTPBridge_OptionsPreflight(t *testing.T) {
	wf := buildWorkflow(t)
	h := httpbridge.New(wf, httpbridge.CORSConfig{Origins: []string{"*"}}, false)

	req := httptest.NewRequest(http.MethodOptions, "/run", nil)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Result().StatusCode)
}

func TestHTTPBridge_MethodNotAllowed(t *testing.T) {
	wf := buildWorkflow(t)
	h := httpbridge.New(wf, httpbridge.CORSConfig{}, false)

	req := httptest.NewRequest(http.MethodGet, "/run", nil)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Result().StatusCode)
}

func TestHTTPBridge_InvalidBody(t *testing.T) {
	wf := buildWorkflow(t)
	h := httpbridge.New(wf, httpbridge.CORSConfig{}, false)

	req := httptest.NewRequest(http.MethodPost, "/run", strings.NewReader(`not json`))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Result().StatusCode)
}
