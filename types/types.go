package types

// SessionState is the lifecycle state of a debug session.
type SessionState int32

const (
	StateNone      SessionState = 0
	StateRunning   SessionState = 1
	StatePaused    SessionState = 2
	StateCompleted SessionState = 3
	StateFailed    SessionState = 4
	StateStopped   SessionState = 5
)

// Terminal reports whether the session accepts no further mutation.
func (s SessionState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateStopped
}

func (s SessionState) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateStopped:
		return "stopped"
	}
	return "none"
}

// NodeStatus is the execution status of a single node within a session.
type NodeStatus int32

const (
	NodePending NodeStatus = 0
	NodeRunning NodeStatus = 1
	NodeSuccess NodeStatus = 2
	NodeError   NodeStatus = 3
	NodeSkipped NodeStatus = 4
)

// Terminal reports whether the status is final for the current visit.
func (s NodeStatus) Terminal() bool {
	return s == NodeSuccess || s == NodeError || s == NodeSkipped
}

func (s NodeStatus) String() string {
	switch s {
	case NodeRunning:
		return "running"
	case NodeSuccess:
		return "success"
	case NodeError:
		return "error"
	case NodeSkipped:
		return "skipped"
	}
	return "pending"
}

// Outcome names understood by the edge router. Nodes may declare edges for
// additional custom outcomes; these two carry special terminal semantics.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)
