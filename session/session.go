package session

import (
	"sort"
	"time"

	"github.com/juju/errors"

	"github.com/robostep/flowdebug/graph"
	"github.com/robostep/flowdebug/types"
	"github.com/robostep/flowdebug/utils"
)

/**
 * Session is the complete state of one debug run: position, breakpoints,
 * per-node execution records and the global variable scope, together with
 * the flow graph itself. Every command takes a prior session and returns a
 * new one, so the whole thing must survive a JSON round trip unchanged.
 * Nothing outside the snapshot is needed to resume it, which is what makes
 * stepping restartable after a crash.
 */
type Session struct {
	SessionID string             `json:"sessionId"`
	State     types.SessionState `json:"state"`

	// CurrentNodeID is the node about to execute while paused, or the node
	// that just finished once the session reaches a terminal state.
	CurrentNodeID string `json:"currentNodeId,omitempty"`

	// Breakpoints is fixed for the life of the session. Kept sorted so
	// serialized snapshots are byte-for-byte reproducible.
	Breakpoints []string `json:"breakpoints,omitempty"`

	// ExecutionOrder is the traversal discovered so far, append-only. A
	// cyclic flow may revisit nodes; a node never repeats as the last entry.
	ExecutionOrder []string `json:"executionOrder"`

	NodeExecutions  map[string]*types.NodeExecution `json:"nodeExecutions"`
	GlobalVariables types.Data                      `json:"globalVariables"`

	// StartTime is unix milliseconds at session creation.
	StartTime int64 `json:"startTime"`

	// PausedAtBreakpoint distinguishes a breakpoint pause from a step pause.
	PausedAtBreakpoint bool `json:"pausedAtBreakpoint"`

	// LastError is the failure that moved the session to Failed.
	LastError string `json:"lastError,omitempty"`

	// MaxNodeVisits bounds node visits per continue run; copied from the
	// options at start so a restored snapshot keeps enforcing it.
	MaxNodeVisits int `json:"maxNodeVisits"`

	Flow *graph.Flow `json:"flow"`
}

var nowMillis = func() int64 {
	return time.Now().UnixMilli()
}

// Serialize encodes the session as a single self-contained JSON document.
func (s *Session) Serialize() ([]byte, error) {
	b, err := utils.Serialize(s)
	return b, errors.Trace(err)
}

// Deserialize reconstructs a session from a serialized snapshot.
func Deserialize(b []byte) (*Session, error) {
	s := &Session{}
	if err := utils.Unserialize(b, s); err != nil {
		return nil, errors.Trace(err)
	}
	if s.NodeExecutions == nil {
		s.NodeExecutions = make(map[string]*types.NodeExecution)
	}
	if s.GlobalVariables == nil {
		s.GlobalVariables = make(types.Data)
	}
	return s, nil
}

// Clone deep-copies the session through its serialized form. Commands clone
// before mutating so a failed call never corrupts the caller's snapshot.
func (s *Session) Clone() (*Session, error) {
	b, err := s.Serialize()
	if err != nil {
		return nil, errors.Trace(err)
	}
	return Deserialize(b)
}

func (s *Session) hasBreakpoint(nodeID string) bool {
	i := sort.SearchStrings(s.Breakpoints, nodeID)
	return i < len(s.Breakpoints) && s.Breakpoints[i] == nodeID
}

// touch ensures a node has an execution record, creating a Pending one from
// the graph definition on first visit. A record left terminal by an earlier
// visit through a cycle is replaced by a fresh Pending record.
func (s *Session) touch(nodeID string) (*types.NodeExecution, error) {
	if rec, exists := s.NodeExecutions[nodeID]; exists && !rec.Status.Terminal() {
		return rec, nil
	}
	def, err := s.Flow.Resolve(nodeID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	rec := &types.NodeExecution{
		NodeID:   def.ID,
		NodeType: def.Type,
		Label:    nodeLabel(def),
		Status:   types.NodePending,
	}
	s.NodeExecutions[nodeID] = rec
	return rec, nil
}

// appendOrder records a node in the discovered traversal, skipping the
// append when the node already is the last entry.
func (s *Session) appendOrder(nodeID string) {
	if n := len(s.ExecutionOrder); n > 0 && s.ExecutionOrder[n-1] == nodeID {
		return
	}
	s.ExecutionOrder = append(s.ExecutionOrder, nodeID)
}

func nodeLabel(def *types.NodeDefinition) string {
	if def.Label != "" {
		return def.Label
	}
	return def.ID
}
