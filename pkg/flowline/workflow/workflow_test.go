package workflow_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowline/runtime/pkg/flowline/agent"
	"github.com/flowline/runtime/pkg/flowline/event"
	"github.com/flowline/runtime/pkg/flowline/handler"
	"github.com/flowline/runtime/pkg/flowline/provider"
	"github.com/flowline/runtime/pkg/flowline/renderer"
	"github.com/flowline/runtime/pkg/flowline/store"
	"github.com/flowline/runtime/pkg/flowline/workflow"
)

type chatState struct {
	Turns     int
	LastReply string
	Done      bool
}

type summaryOutput struct {
	Summary string `json:"summary"`
}

type fakeProvider struct {
	result provider.QueryResult
	err    error
}

func (f *fakeProvider) Query(ctx context.Context, req provider.QueryRequest) (provider.QueryResult, error) {
	return f.result, f.err
}
func (f *fakeProvider) Stream(ctx context.Context, req provider.QueryRequest) (<-chan provider.StreamChunk, error) {
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan provider.StreamChunk, 1)
	ch <- provider.StreamChunk{
		Kind:  "stop",
		Event: provider.TextComplete.Create(provider.TextCompletePayload{FullText: f.result.Text}),
	}
	close(ch)
	return ch, nil
}
func (f *fakeProvider) Info() provider.ProviderInfo { return provider.ProviderInfo{Type: "fake"} }

func buildHandlers(t *testing.T) *handler.Registry[chatState] {
	t.Helper()
	reg := handler.NewRegistry[chatState](nil)
	require.NoError(t, reg.Register(handler.Define(workflow.UserInput, func(p workflow.UserInputPayload, e event.Event, s chatState) (chatState, []event.Event) {
		s.Turns++
		return s, nil
	})))
	require.NoError(t, reg.Register(handler.Define(event.Define[summaryOutput]("summary:ready"), func(p summaryOutput, e event.Event, s chatState) (chatState, []event.Event) {
		s.LastReply = p.Summary
		s.Done = true
		return s, nil
	})))
	return reg
}

func buildAgents(t *testing.T) *agent.Registry[chatState] {
	t.Helper()
	reg := agent.NewRegistry[chatState]()
	a, err := agent.New(agent.Config[chatState, summaryOutput]{
		Name:         "summarizer",
		ActivatesOn:  []string{"user:*"},
		OutputSchema: map[string]any{"type": "object"},
		Prompt: func(s chatState, e event.Event) agent.PromptParts {
			return agent.PromptParts{Messages: []provider.Message{{Role: "user", Content: "hi"}}}
		},
		OnOutput: func(out summaryOutput, trigger event.Event) []event.Event {
			return []event.Event{event.Define[summaryOutput]("summary:ready").Create(out)}
		},
	})
	require.NoError(t, err)
	require.NoError(t, reg.Register(a))
	return reg
}

func TestWorkflow_Run_EndToEnd(t *testing.T) {
	wf, err := workflow.New(workflow.Config[chatState]{
		Name:         "chat",
		InitialState: chatState{},
		Handlers:     buildHandlers(t),
		Agents:       buildAgents(t),
		Provider:     &fakeProvider{result: provider.QueryResult{Text: `{"summary":"done"}`}},
		Until:        func(s chatState) bool { return s.Done },
	})
	require.NoError(t, err)

	result, err := wf.Run(context.Background(), workflow.RunInput{Input: "hello"})
	require.NoError(t, err)

	assert.True(t, result.Terminated)
	assert.Equal(t, "done", result.State.LastReply)
	assert.Equal(t, 1, result.State.Turns)

	var names []string
	for _, e := range result.Events {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"user:input", "agent:started", "text:complete", "agent:completed", "summary:ready"}, names)

	require.NotNil(t, result.Tape)
	assert.Equal(t, result.State.LastReply, result.Tape.State().LastReply)
}

func TestWorkflow_Run_RecordsToStore(t *testing.T) {
	mem := store.NewMemoryStore()
	wf, err := workflow.New(workflow.Config[chatState]{
		Name:         "chat",
		InitialState: chatState{},
		Handlers:     buildHandlers(t),
		Agents:       buildAgents(t),
		Provider:     &fakeProvider{result: provider.QueryResult{Text: `{"summary":"done"}`}},
		Until:        func(s chatState) bool { return s.Done },
		Store:        mem,
	})
	require.NoError(t, err)

	result, err := wf.Run(context.Background(), workflow.RunInput{Input: "hello", Record: true})
	require.NoError(t, err)

	persisted, err := mem.Events(context.Background(), result.SessionID)
	require.NoError(t, err)
	assert.Equal(t, len(result.Events), len(persisted))

	tp, err := wf.Load(context.Background(), result.SessionID)
	require.NoError(t, err)
	assert.Equal(t, result.State.LastReply, tp.State().LastReply)
}

func TestWorkflow_Run_ProviderErrorSurfacesAsEvent(t *testing.T) {
	wf, err := workflow.New(workflow.Config[chatState]{
		Name:         "chat",
		InitialState: chatState{},
		Handlers:     buildHandlers(t),
		Agents:       buildAgents(t),
		Provider:     &fakeProvider{err: assert.AnError},
		Until:        func(s chatState) bool { return s.Turns >= 1 && !s.Done },
	})
	require.NoError(t, err)

	result, err := wf.Run(context.Background(), workflow.RunInput{Input: "hello"})
	require.NoError(t, err)

	var sawError bool
	for _, e := range result.Events {
		if e.Name == "error:occurred" {
			sawError = true
		}
	}
	assert.True(t, sawError)
	assert.False(t, result.State.Done)
}

func TestWorkflow_Run_RendererObservesEvents(t *testing.T) {
	renderers := renderer.NewRegistry[chatState](nil)
	var mu sync.Mutex
	var seen []string
	require.NoError(t, renderers.Register(renderer.New(renderer.Config[chatState]{
		Name: "recorder", Patterns: []string{"*"},
		Render: func(ctx context.Context, e event.Event, s chatState) {
			mu.Lock()
			seen = append(seen, e.Name)
			mu.Unlock()
		},
	})))

	wf, err := workflow.New(workflow.Config[chatState]{
		Name:         "chat",
		InitialState: chatState{},
		Handlers:     buildHandlers(t),
		Agents:       buildAgents(t),
		Renderers:    renderers,
		Provider:     &fakeProvider{result: provider.QueryResult{Text: `{"summary":"done"}`}},
		Until:        func(s chatState) bool { return s.Done },
	})
	require.NoError(t, err)

	_, err = wf.Run(context.Background(), workflow.RunInput{Input: "hello"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 5
	}, time.Second, 10*time.Millisecond)
}

func TestWorkflow_PauseBlocksLoopUntilResume(t *testing.T) {
	wf, err := workflow.New(workflow.Config[chatState]{
		Name:         "chat",
		InitialState: chatState{},
		Handlers:     buildHandlers(t),
		Agents:       buildAgents(t),
		Provider:     &fakeProvider{result: provider.QueryResult{Text: `{"summary":"done"}`}},
		Until:        func(s chatState) bool { return s.Done },
	})
	require.NoError(t, err)

	wf.Pause()

	done := make(chan struct{})
	go func() {
		_, _ = wf.Run(context.Background(), workflow.RunInput{Input: "hello"})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Run completed while paused")
	case <-time.After(50 * time.Millisecond):
	}

	wf.Resume()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run never completed after Resume")
	}
}

func TestWorkflow_Dispose_CancelsInFlightRun(t *testing.T) {
	wf, err := workflow.New(workflow.Config[chatState]{
		Name:         "chat",
		InitialState: chatState{},
		Handlers:     buildHandlers(t),
		Agents:       buildAgents(t),
		Provider:     &fakeProvider{result: provider.QueryResult{Text: `{"summary":"done"}`}},
		Until:        func(s chatState) bool { return s.Done },
	})
	require.NoError(t, err)

	wf.Pause()

	errCh := make(chan error, 1)
	go func() {
		_, runErr := wf.Run(context.Background(), workflow.RunInput{Input: "hello"})
		errCh <- runErr
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, wf.Dispose(context.Background()))

	select {
	case err := <-errCh:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run never returned after Dispose")
	}
}

func TestWorkflow_New_RequiresHandlers(t *testing.T) {
	_, err := workflow.New(workflow.Config[chatState]{Name: "chat"})
	require.Error(t, err)
}
