package types

import "context"

// NodeExecution records one visit to a node during a debug session. The node
// type and label are copied from the graph at creation time so a persisted
// session stays interpretable without it. Timestamps are unix milliseconds,
// zero until set. On a cyclic revisit the session replaces the record with a
// fresh one; within its own lifetime a record never leaves a terminal status.
type NodeExecution struct {
	NodeID   string `json:"nodeId"`
	NodeType string `json:"nodeType"`
	Label    string `json:"label"`

	Status    NodeStatus `json:"status"`
	StartTime int64      `json:"startTime,omitempty"`
	EndTime   int64      `json:"endTime,omitempty"`

	Output    any    `json:"output,omitempty"`
	Error     string `json:"error,omitempty"`
	Variables Data   `json:"variables,omitempty"`
}

// ExecutionResult is what the node execution adapter reports back for a
// single node run.
type ExecutionResult struct {
	// Outcome selects the output edge: "success", "error" or a custom
	// outcome the node declares. Empty is treated as success.
	Outcome string
	// Output is the opaque result value recorded on the node.
	Output any
	// Bindings are the node's local output bindings; merged into the
	// session's global scope when the outcome is not an error.
	Bindings Data
	// ErrorMessage carries the failure description for an error outcome.
	ErrorMessage string
}

// NodeExecutor is the single capability the debugger depends on: run one
// node given the current global variables and report the outcome. It may be
// slow and it may fail; the session holds no locks across the call.
type NodeExecutor interface {
	Execute(ctx context.Context, node *NodeDefinition, globals Data) (*ExecutionResult, error)
}

// NodeExecutorFunc adapts a plain function to the NodeExecutor interface.
type NodeExecutorFunc func(ctx context.Context, node *NodeDefinition, globals Data) (*ExecutionResult, error)

func (f NodeExecutorFunc) Execute(ctx context.Context, node *NodeDefinition, globals Data) (*ExecutionResult, error) {
	return f(ctx, node, globals)
}

// NodeDefinition is one step of a compiled flow: a typed node with its
// configuration and named outcome edges. Edges keep declaration order; when
// a node declares the same outcome twice the first edge wins. An outcome
// with no edge ends the flow on that branch.
type NodeDefinition struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Label  string `json:"label,omitempty"`
	Config Data   `json:"config,omitempty"`
	Edges  []Edge `json:"edges,omitempty"`
}

// Edge routes one named outcome of a node to the next node.
type Edge struct {
	Outcome string `json:"outcome"`
	To      string `json:"to"`
}
