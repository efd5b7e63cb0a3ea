package types

import (
	"fmt"
)

var (
	_ error = &UnknownNodeError{}
	_ error = &SessionTerminatedError{}
	_ error = &NodeExecutionError{}
	_ error = &DivergenceError{}
)

// UnknownNodeError reports a node id that is not present in the flow graph.
// It is fatal to the offending call, not to the session.
type UnknownNodeError struct {
	NodeID string
}

func NewUnknownNodeError(nodeID string) error {
	return &UnknownNodeError{NodeID: nodeID}
}

func (e *UnknownNodeError) Error() string {
	return fmt.Sprintf("unknown node: %s", e.NodeID)
}

// SessionTerminatedError reports a command issued against a session that
// already reached Completed, Failed or Stopped. The snapshot is not mutated.
type SessionTerminatedError struct {
	SessionID string
	State     SessionState
}

func NewSessionTerminatedError(sessionID string, state SessionState) error {
	return &SessionTerminatedError{SessionID: sessionID, State: state}
}

func (e *SessionTerminatedError) Error() string {
	return fmt.Sprintf("session %s already terminated: %s", e.SessionID, e.State)
}

// NodeExecutionError reports a node that finished with an error outcome and
// no matching error edge. It is recorded on the node, not thrown mid-step.
type NodeExecutionError struct {
	NodeID  string
	Message string
}

func NewNodeExecutionError(nodeID, message string) error {
	return &NodeExecutionError{NodeID: nodeID, Message: message}
}

func (e *NodeExecutionError) Error() string {
	return fmt.Sprintf("node %s failed: %s", e.NodeID, e.Message)
}

// DivergenceError reports that a continue run exceeded the node-visit safety
// bound, which usually means the flow cycles without terminating.
type DivergenceError struct {
	Visits int
	Limit  int
}

func NewDivergenceError(visits, limit int) error {
	return &DivergenceError{Visits: visits, Limit: limit}
}

func (e *DivergenceError) Error() string {
	return fmt.Sprintf("divergence detected: %d node visits exceeded limit %d", e.Visits, e.Limit)
}

// IsUnknownNode reports whether err is, or wraps, an UnknownNodeError.
func IsUnknownNode(err error) bool {
	_, ok := findErr[*UnknownNodeError](err)
	return ok
}

// IsSessionTerminated reports whether err is, or wraps, a SessionTerminatedError.
func IsSessionTerminated(err error) bool {
	_, ok := findErr[*SessionTerminatedError](err)
	return ok
}

// IsDivergence reports whether err is, or wraps, a DivergenceError.
func IsDivergence(err error) bool {
	_, ok := findErr[*DivergenceError](err)
	return ok
}

func findErr[T error](err error) (T, bool) {
	for err != nil {
		if e, ok := err.(T); ok {
			return e, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	var zero T
	return zero, false
}
