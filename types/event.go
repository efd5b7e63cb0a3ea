package types

// EventType identifies the event a debug command emits alongside its snapshot.
type EventType string

const (
	// EventStarted indicates a session was created.
	EventStarted EventType = "started"

	// EventPaused indicates execution paused after a step or before a breakpoint.
	EventPaused EventType = "paused"

	// EventCompleted indicates the flow reached a terminal node successfully.
	EventCompleted EventType = "completed"

	// EventFailed indicates the flow failed with no recovery path.
	EventFailed EventType = "failed"

	// EventStopped indicates the session was stopped by the caller.
	EventStopped EventType = "stopped"
)

// Pause reasons carried by EventPaused.
const (
	PauseReasonStep       = "step"
	PauseReasonBreakpoint = "breakpoint"
)

// Event is the single notification emitted by a debug command. Every command
// is a pure function (snapshot, input) -> (snapshot, event); the event is the
// caller-facing summary of what the transition did.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId"`

	// NodeID is the node the event refers to: the node just executed for
	// paused/failed events, the entry node for started.
	NodeID string `json:"nodeId,omitempty"`

	// Reason qualifies a paused event: "step" or "breakpoint".
	Reason string `json:"reason,omitempty"`

	// Error carries the failure description for a failed event.
	Error string `json:"error,omitempty"`

	// Timestamp is unix milliseconds.
	Timestamp int64 `json:"timestamp"`
}
