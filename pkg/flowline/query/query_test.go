package query_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowline/runtime/pkg/flowline/query"
)

func loaderFor(states map[string]*query.State) query.Loader {
	return func(ctx context.Context, sessionID string) (*query.State, error) {
		return states[sessionID], nil
	}
}

func TestRegisterBuiltins_Status(t *testing.T) {
	reg := query.NewRegistry()
	states := map[string]*query.State{
		"s1": {SessionID: "s1", Status: "running", Progress: 0.5, LastEvent: "agent:started",
			Variables: map[string]any{"turns": float64(2)}},
	}
	require.NoError(t, query.RegisterBuiltins(reg, loaderFor(states)))

	exec := query.NewExecutor(reg, loaderFor(states))

	status, err := exec.Execute(context.Background(), "s1", query.QueryStatus, nil)
	require.NoError(t, err)
	assert.Equal(t, "running", status)

	progress, err := exec.Execute(context.Background(), "s1", query.QueryProgress, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.5, progress)

	last, err := exec.Execute(context.Background(), "s1", query.QueryLastEvent, nil)
	require.NoError(t, err)
	assert.Equal(t, "agent:started", last)
}

func TestRegisterBuiltins_Variables_SingleAndAll(t *testing.T) {
	reg := query.NewRegistry()
	states := map[string]*query.State{
		"s1": {Variables: map[string]any{"turns": float64(2), "topic": "go"}},
	}
	require.NoError(t, query.RegisterBuiltins(reg, loaderFor(states)))
	exec := query.NewExecutor(reg, loaderFor(states))

	all, err := exec.Execute(context.Background(), "s1", query.QueryVariables, nil)
	require.NoError(t, err)
	assert.Equal(t, states["s1"].Variables, all)

	one, err := exec.Execute(context.Background(), "s1", query.QueryVariables, "topic")
	require.NoError(t, err)
	assert.Equal(t, "go", one)

	_, err = exec.Execute(context.Background(), "s1", query.QueryVariables, "missing")
	require.Error(t, err)
}

func TestRegisterBuiltins_UnknownSession(t *testing.T) {
	reg := query.NewRegistry()
	states := map[string]*query.State{}
	require.NoError(t, query.RegisterBuiltins(reg, loaderFor(states)))
	exec := query.NewExecutor(reg, loaderFor(states))

	_, err := exec.Execute(context.Background(), "missing", query.QueryStatus, nil)
	require.ErrorIs(t, err, query.ErrSessionNotFound)
}

func TestExecutor_UnknownQuery(t *testing.T) {
	reg := query.NewRegistry()
	exec := query.NewExecutor(reg, loaderFor(nil))

	_, err := exec.Execute(context.Background(), "s1", "bogus", nil)
	require.ErrorIs(t, err, query.ErrNotFound)
}

func TestRegistry_DuplicateNameRejected(t *testing.T) {
	reg := query.NewRegistry()
	noop := func(ctx context.Context, sessionID string, args any) (any, error) { return nil, nil }
	require.NoError(t, reg.Register("custom", noop))
	err := reg.Register("custom", noop)
	require.Error(t, err)
}

func TestRegisterBuiltins_PendingTask(t *testing.T) {
	reg := query.NewRegistry()
	states := map[string]*query.State{
		"s1": {PendingTask: &query.PendingTask{TaskID: "t1", Title: "approve output"}},
	}
	require.NoError(t, query.RegisterBuiltins(reg, loaderFor(states)))
	exec := query.NewExecutor(reg, loaderFor(states))

	task, err := exec.Execute(context.Background(), "s1", query.QueryPendingTask, nil)
	require.NoError(t, err)
	assert.Equal(t, states["s1"].PendingTask, task)
}
