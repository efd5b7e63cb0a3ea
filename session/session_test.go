package session_test

import (
	"context"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"

	"github.com/robostep/flowdebug/graph"
	"github.com/robostep/flowdebug/session"
	"github.com/robostep/flowdebug/types"
)

// stubExecutor replays scripted results per node id and records the order
// nodes were actually executed in.
type stubExecutor struct {
	t *testing.T

	results  map[string]*types.ExecutionResult
	failures map[string]error

	executed []string
}

func newStubExecutor(t *testing.T) *stubExecutor {
	return &stubExecutor{
		t:        t,
		results:  make(map[string]*types.ExecutionResult),
		failures: make(map[string]error),
	}
}

func (s *stubExecutor) Execute(ctx context.Context, node *types.NodeDefinition, globals types.Data) (*types.ExecutionResult, error) {
	s.executed = append(s.executed, node.ID)
	if err, exists := s.failures[node.ID]; exists {
		return nil, err
	}
	if result, exists := s.results[node.ID]; exists {
		return result, nil
	}
	return &types.ExecutionResult{Outcome: types.OutcomeSuccess}, nil
}

func (s *stubExecutor) countExecuted(nodeID string) int {
	n := 0
	for _, id := range s.executed {
		if id == nodeID {
			n++
		}
	}
	return n
}

func node(id, typ string, edges ...types.Edge) types.NodeDefinition {
	return types.NodeDefinition{ID: id, Type: typ, Label: id, Edges: edges}
}

func edge(outcome, to string) types.Edge {
	return types.Edge{Outcome: outcome, To: to}
}

// A --success--> B --success--> (end)
func linearFlow(t *testing.T) *graph.Flow {
	flow, err := graph.New([]types.NodeDefinition{
		node("A", "web.open", edge(types.OutcomeSuccess, "B")),
		node("B", "web.click"),
	})
	assert.Nil(t, err)
	return flow
}

func testOptions() *types.DebugOptions {
	return types.NewDebugOptions()
}

func TestStartPausedAtEntry(t *testing.T) {
	snap, ev, err := session.Start(linearFlow(t), nil, testOptions())
	assert.Nil(t, err)
	assert.Equal(t, types.StatePaused, snap.State)
	assert.Equal(t, "A", snap.CurrentNodeID)
	assert.False(t, snap.PausedAtBreakpoint)
	assert.NotEmpty(t, snap.SessionID)
	assert.Equal(t, []string{"A"}, snap.ExecutionOrder)
	assert.Equal(t, types.NodePending, snap.NodeExecutions["A"].Status)

	assert.Equal(t, types.EventStarted, ev.Type)
	assert.Equal(t, snap.SessionID, ev.SessionID)
}

func TestStepToCompletion(t *testing.T) {
	exec := newStubExecutor(t)
	snap, _, err := session.Start(linearFlow(t), nil, testOptions())
	assert.Nil(t, err)

	snap, ev, err := session.Step(context.Background(), snap, exec)
	assert.Nil(t, err)
	assert.Equal(t, types.StatePaused, snap.State)
	assert.Equal(t, "B", snap.CurrentNodeID)
	assert.Equal(t, types.EventPaused, ev.Type)
	assert.Equal(t, types.PauseReasonStep, ev.Reason)
	assert.Equal(t, types.NodeSuccess, snap.NodeExecutions["A"].Status)
	assert.Equal(t, types.NodePending, snap.NodeExecutions["B"].Status)

	snap, ev, err = session.Step(context.Background(), snap, exec)
	assert.Nil(t, err)
	assert.Equal(t, types.StateCompleted, snap.State)
	assert.Equal(t, types.EventCompleted, ev.Type)
	assert.Equal(t, []string{"A", "B"}, snap.ExecutionOrder)
	assert.Equal(t, []string{"A", "B"}, exec.executed)
}

func TestContinuePausesBeforeBreakpoint(t *testing.T) {
	exec := newStubExecutor(t)
	snap, _, err := session.Start(linearFlow(t), []string{"B"}, testOptions())
	assert.Nil(t, err)

	snap, ev, err := session.Continue(context.Background(), snap, exec)
	assert.Nil(t, err)
	assert.Equal(t, types.StatePaused, snap.State)
	assert.Equal(t, "B", snap.CurrentNodeID)
	assert.True(t, snap.PausedAtBreakpoint)
	assert.Equal(t, types.EventPaused, ev.Type)
	assert.Equal(t, types.PauseReasonBreakpoint, ev.Reason)

	// the breakpointed node did not run
	assert.Equal(t, types.NodeSuccess, snap.NodeExecutions["A"].Status)
	assert.Equal(t, types.NodePending, snap.NodeExecutions["B"].Status)
	assert.Equal(t, 0, exec.countExecuted("B"))

	// resuming executes the breakpointed node instead of pausing again
	snap, ev, err = session.Continue(context.Background(), snap, exec)
	assert.Nil(t, err)
	assert.Equal(t, types.StateCompleted, snap.State)
	assert.Equal(t, types.EventCompleted, ev.Type)
	assert.Equal(t, 1, exec.countExecuted("B"))
}

func TestStepIgnoresBreakpoints(t *testing.T) {
	exec := newStubExecutor(t)
	snap, _, err := session.Start(linearFlow(t), []string{"A", "B"}, testOptions())
	assert.Nil(t, err)
	assert.True(t, snap.PausedAtBreakpoint)

	// step always executes exactly one node, breakpoint or not
	snap, _, err = session.Step(context.Background(), snap, exec)
	assert.Nil(t, err)
	assert.Equal(t, []string{"A"}, exec.executed)
	assert.Equal(t, types.StatePaused, snap.State)
	assert.False(t, snap.PausedAtBreakpoint)
}

func TestEntryBreakpointRunsOnResume(t *testing.T) {
	exec := newStubExecutor(t)
	snap, _, err := session.Start(linearFlow(t), []string{"A"}, testOptions())
	assert.Nil(t, err)
	assert.True(t, snap.PausedAtBreakpoint)

	snap, _, err = session.Continue(context.Background(), snap, exec)
	assert.Nil(t, err)
	assert.Equal(t, types.StateCompleted, snap.State)
	assert.Equal(t, []string{"A", "B"}, exec.executed)
}

func TestErrorWithoutErrorEdgeFailsSession(t *testing.T) {
	exec := newStubExecutor(t)
	exec.results["A"] = &types.ExecutionResult{
		Outcome:      types.OutcomeError,
		ErrorMessage: "element not found",
	}

	flow, err := graph.New([]types.NodeDefinition{node("A", "web.click")})
	assert.Nil(t, err)
	snap, _, err := session.Start(flow, nil, testOptions())
	assert.Nil(t, err)

	snap, ev, err := session.Step(context.Background(), snap, exec)
	assert.Nil(t, err)
	assert.Equal(t, types.StateFailed, snap.State)
	assert.Equal(t, types.NodeError, snap.NodeExecutions["A"].Status)
	assert.Equal(t, "element not found", snap.NodeExecutions["A"].Error)
	assert.Equal(t, types.EventFailed, ev.Type)
	assert.Contains(t, ev.Error, "element not found")
}

func TestErrorEdgeRouting(t *testing.T) {
	exec := newStubExecutor(t)
	exec.results["A"] = &types.ExecutionResult{
		Outcome:      types.OutcomeError,
		ErrorMessage: "timeout",
	}

	flow, err := graph.New([]types.NodeDefinition{
		node("A", "web.click", edge(types.OutcomeSuccess, "B"), edge(types.OutcomeError, "H")),
		node("B", "web.read"),
		node("H", "notification.send"),
	})
	assert.Nil(t, err)

	snap, _, err := session.Start(flow, nil, testOptions())
	assert.Nil(t, err)
	snap, _, err = session.Continue(context.Background(), snap, exec)
	assert.Nil(t, err)

	// the error branch ran to completion; the node error stays recorded
	assert.Equal(t, types.StateCompleted, snap.State)
	assert.Equal(t, types.NodeError, snap.NodeExecutions["A"].Status)
	assert.Equal(t, types.NodeSuccess, snap.NodeExecutions["H"].Status)
	assert.Equal(t, []string{"A", "H"}, exec.executed)
	assert.Equal(t, []string{"A", "H"}, snap.ExecutionOrder)
}

func TestCustomOutcomeRouting(t *testing.T) {
	exec := newStubExecutor(t)
	exec.results["A"] = &types.ExecutionResult{Outcome: "empty"}

	flow, err := graph.New([]types.NodeDefinition{
		node("A", "excel.read", edge(types.OutcomeSuccess, "B"), edge("empty", "C")),
		node("B", "data.transform"),
		node("C", "notification.send"),
	})
	assert.Nil(t, err)

	snap, _, err := session.Start(flow, nil, testOptions())
	assert.Nil(t, err)
	snap, _, err = session.Continue(context.Background(), snap, exec)
	assert.Nil(t, err)

	assert.Equal(t, types.StateCompleted, snap.State)
	assert.Equal(t, []string{"A", "C"}, exec.executed)
	// a custom outcome is not an error; the record is a success
	assert.Equal(t, types.NodeSuccess, snap.NodeExecutions["A"].Status)
}

func TestCustomOutcomeWithoutEdgeCompletes(t *testing.T) {
	exec := newStubExecutor(t)
	exec.results["A"] = &types.ExecutionResult{Outcome: "skipped_rows"}

	flow, err := graph.New([]types.NodeDefinition{
		node("A", "excel.read", edge(types.OutcomeSuccess, "B")),
		node("B", "data.transform"),
	})
	assert.Nil(t, err)

	snap, _, err := session.Start(flow, nil, testOptions())
	assert.Nil(t, err)
	snap, _, err = session.Step(context.Background(), snap, exec)
	assert.Nil(t, err)
	assert.Equal(t, types.StateCompleted, snap.State)
}

func TestDivergenceSafeguard(t *testing.T) {
	exec := newStubExecutor(t)
	flow, err := graph.New([]types.NodeDefinition{
		node("A", "control.loop", edge(types.OutcomeSuccess, "A")),
	})
	assert.Nil(t, err)

	opts := testOptions()
	opts.MaxNodeVisits = 3

	snap, _, err := session.Start(flow, nil, opts)
	assert.Nil(t, err)
	snap, ev, err := session.Continue(context.Background(), snap, exec)
	assert.Nil(t, err)

	assert.Equal(t, types.StateFailed, snap.State)
	assert.Equal(t, 3, exec.countExecuted("A"))
	assert.Equal(t, types.EventFailed, ev.Type)
	assert.Contains(t, snap.LastError, "divergence detected")
}

func TestAdapterFailureFailsSession(t *testing.T) {
	exec := newStubExecutor(t)
	exec.failures["A"] = errors.New("engine process crashed")

	snap, _, err := session.Start(linearFlow(t), nil, testOptions())
	assert.Nil(t, err)
	snap, ev, err := session.Step(context.Background(), snap, exec)
	assert.Nil(t, err)

	// the session is never left Running; the failure lands on the node
	assert.Equal(t, types.StateFailed, snap.State)
	assert.Equal(t, types.NodeError, snap.NodeExecutions["A"].Status)
	assert.Contains(t, snap.NodeExecutions["A"].Error, "engine process crashed")
	assert.Equal(t, types.EventFailed, ev.Type)
}

func TestVariables(t *testing.T) {
	exec := newStubExecutor(t)
	exec.results["A"] = &types.ExecutionResult{
		Outcome:  types.OutcomeSuccess,
		Output:   "ok",
		Bindings: types.Data{"x": 1},
	}

	snap, _, err := session.Start(linearFlow(t), nil, testOptions())
	assert.Nil(t, err)

	// before A has executed, its local scope is empty
	assert.Empty(t, session.Variables(snap, "A"))
	assert.Empty(t, session.Variables(snap, ""))
	assert.Empty(t, session.Variables(snap, "no-such-node"))

	snap, _, err = session.Step(context.Background(), snap, exec)
	assert.Nil(t, err)

	locals := session.Variables(snap, "A")
	x, exists := locals.GetInt("x")
	assert.True(t, exists)
	assert.Equal(t, 1, x)

	globals := session.Variables(snap, "")
	x, exists = globals.GetInt("x")
	assert.True(t, exists)
	assert.Equal(t, 1, x)
}

func TestGlobalVariablesAccumulate(t *testing.T) {
	exec := newStubExecutor(t)
	exec.results["A"] = &types.ExecutionResult{Bindings: types.Data{"a": 1, "shared": "from-a"}}
	exec.results["B"] = &types.ExecutionResult{Bindings: types.Data{"b": 2, "shared": "from-b"}}

	snap, _, err := session.Start(linearFlow(t), nil, testOptions())
	assert.Nil(t, err)
	snap, _, err = session.Continue(context.Background(), snap, exec)
	assert.Nil(t, err)
	assert.Equal(t, types.StateCompleted, snap.State)

	globals := session.Variables(snap, "")
	a, _ := globals.GetInt("a")
	b, _ := globals.GetInt("b")
	shared, _ := globals.GetString("shared")
	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)
	// later completions overwrite, keys are never removed
	assert.Equal(t, "from-b", shared)
}

func TestUnknownBreakpointRejected(t *testing.T) {
	_, _, err := session.Start(linearFlow(t), []string{"Z"}, testOptions())
	assert.NotNil(t, err)
	assert.True(t, types.IsUnknownNode(err))
}

func TestTerminalSessionRejectsCommands(t *testing.T) {
	exec := newStubExecutor(t)
	snap, _, err := session.Start(linearFlow(t), nil, testOptions())
	assert.Nil(t, err)
	snap, _, err = session.Continue(context.Background(), snap, exec)
	assert.Nil(t, err)
	assert.Equal(t, types.StateCompleted, snap.State)

	_, _, err = session.Step(context.Background(), snap, exec)
	assert.True(t, types.IsSessionTerminated(err))
	_, _, err = session.Continue(context.Background(), snap, exec)
	assert.True(t, types.IsSessionTerminated(err))

	// the rejected commands executed nothing
	assert.Equal(t, []string{"A", "B"}, exec.executed)
}

func TestStopIsIdempotent(t *testing.T) {
	snap, _, err := session.Start(linearFlow(t), nil, testOptions())
	assert.Nil(t, err)

	stopped, ev, err := session.Stop(snap)
	assert.Nil(t, err)
	assert.Equal(t, types.StateStopped, stopped.State)
	assert.Equal(t, types.EventStopped, ev.Type)

	again, _, err := session.Stop(stopped)
	assert.Nil(t, err)
	assert.Equal(t, stopped, again)
}

func TestRoundTrip(t *testing.T) {
	exec := newStubExecutor(t)
	exec.results["A"] = &types.ExecutionResult{
		Output:   types.Data{"rows": 3},
		Bindings: types.Data{"rows": 3},
	}

	snap, _, err := session.Start(linearFlow(t), []string{"B"}, testOptions())
	assert.Nil(t, err)

	for {
		b, err := snap.Serialize()
		assert.Nil(t, err)
		loaded, err := session.Deserialize(b)
		assert.Nil(t, err)
		assert.Equal(t, snap, loaded)

		if snap.State.Terminal() {
			break
		}
		// keep stepping the *reloaded* snapshot: the session is fully
		// reconstructable from its serialized form alone
		snap, _, err = session.Step(context.Background(), loaded, exec)
		assert.Nil(t, err)
	}
	assert.Equal(t, types.StateCompleted, snap.State)
	assert.Equal(t, []string{"A", "B"}, snap.ExecutionOrder)
}

func TestDeterministicReplay(t *testing.T) {
	run := func() *session.Session {
		exec := newStubExecutor(t)
		exec.results["A"] = &types.ExecutionResult{Bindings: types.Data{"x": 1}}
		snap, _, err := session.Start(linearFlow(t), []string{"B"}, testOptions())
		assert.Nil(t, err)
		snap, _, err = session.Continue(context.Background(), snap, exec)
		assert.Nil(t, err)
		snap, _, err = session.Continue(context.Background(), snap, exec)
		assert.Nil(t, err)
		return snap
	}

	first := normalize(run())
	second := normalize(run())
	assert.Equal(t, first, second)
}

// normalize clears the per-run identifiers and timestamps so two replays of
// the same command sequence can be compared structurally.
func normalize(s *session.Session) *session.Session {
	s.SessionID = ""
	s.StartTime = 0
	for _, rec := range s.NodeExecutions {
		rec.StartTime = 0
		rec.EndTime = 0
	}
	return s
}

func TestDanglingEdgeFailsCallNotSession(t *testing.T) {
	exec := newStubExecutor(t)
	flow, err := graph.New([]types.NodeDefinition{
		node("A", "web.click", edge(types.OutcomeSuccess, "ghost")),
	})
	assert.Nil(t, err)

	prior, _, err := session.Start(flow, nil, testOptions())
	assert.Nil(t, err)
	before, err := prior.Serialize()
	assert.Nil(t, err)

	_, _, err = session.Step(context.Background(), prior, exec)
	assert.NotNil(t, err)
	assert.True(t, types.IsUnknownNode(err))
	assert.Equal(t, []string{"A"}, exec.executed)

	// the caller's snapshot is untouched and can be replayed
	after, err := prior.Serialize()
	assert.Nil(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, types.StatePaused, prior.State)
}

func TestMonotonicStatusAcrossCommands(t *testing.T) {
	exec := newStubExecutor(t)
	snap, _, err := session.Start(linearFlow(t), nil, testOptions())
	assert.Nil(t, err)

	snap, _, err = session.Step(context.Background(), snap, exec)
	assert.Nil(t, err)
	assert.Equal(t, types.NodeSuccess, snap.NodeExecutions["A"].Status)

	// later commands never revert a terminal record
	snap, _, err = session.Step(context.Background(), snap, exec)
	assert.Nil(t, err)
	assert.Equal(t, types.NodeSuccess, snap.NodeExecutions["A"].Status)
	assert.Equal(t, types.NodeSuccess, snap.NodeExecutions["B"].Status)

	_, _, err = session.Stop(snap)
	assert.Nil(t, err)
	assert.Equal(t, types.NodeSuccess, snap.NodeExecutions["A"].Status)
}
