package session

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"

	"github.com/robostep/flowdebug/graph"
	"github.com/robostep/flowdebug/types"
)

/**
 * The command surface. Each command is a pure transition: it takes a prior
 * snapshot plus its input, and returns a brand-new snapshot plus one event.
 * The prior snapshot is never mutated, even on failure, so callers may retry
 * a command by replaying the same snapshot.
 */

// Start creates a new session over the flow, paused at its entry node.
// Breakpoint ids must exist in the flow.
func Start(flow *graph.Flow, breakpoints []string, opts *types.DebugOptions) (*Session, *types.Event, error) {
	if opts == nil {
		opts = types.NewDebugOptions()
	}

	bps := make([]string, 0, len(breakpoints))
	seen := make(map[string]bool, len(breakpoints))
	for _, nodeID := range breakpoints {
		if !flow.Has(nodeID) {
			return nil, nil, errors.Annotatef(types.NewUnknownNodeError(nodeID), "invalid breakpoint")
		}
		if !seen[nodeID] {
			seen[nodeID] = true
			bps = append(bps, nodeID)
		}
	}
	sort.Strings(bps)

	entry := flow.Entry()
	s := &Session{
		SessionID:       uuid.NewString(),
		State:           types.StatePaused,
		CurrentNodeID:   entry,
		Breakpoints:     bps,
		ExecutionOrder:  make([]string, 0, len(flow.Nodes)),
		NodeExecutions:  make(map[string]*types.NodeExecution),
		GlobalVariables: make(types.Data),
		StartTime:       nowMillis(),
		MaxNodeVisits:   opts.MaxNodeVisits,
		Flow:            flow,
	}
	s.PausedAtBreakpoint = s.hasBreakpoint(entry)
	s.appendOrder(entry)
	if _, err := s.touch(entry); err != nil {
		return nil, nil, errors.Trace(err)
	}

	log.Debugf("session %s started at node %s", s.SessionID, entry)
	return canonical(s, s.newEvent(types.EventStarted, entry))
}

// canonical round-trips the snapshot through its serialized form before
// handing it out. Adapter outputs and bindings arrive as arbitrary Go
// values; after this every value in the snapshot is in its JSON shape, so
// serializing and reloading a snapshot reproduces it exactly.
func canonical(s *Session, ev *types.Event) (*Session, *types.Event, error) {
	c, err := s.Clone()
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	return c, ev, nil
}

// Step executes exactly one node and pauses, regardless of breakpoints.
func Step(ctx context.Context, prior *Session, exec types.NodeExecutor) (*Session, *types.Event, error) {
	if prior.State.Terminal() {
		return nil, nil, errors.Trace(types.NewSessionTerminatedError(prior.SessionID, prior.State))
	}
	s, err := prior.Clone()
	if err != nil {
		return nil, nil, errors.Trace(err)
	}

	s.State = types.StateRunning
	if err := s.executeCurrent(ctx, exec); err != nil {
		return nil, nil, errors.Trace(err)
	}

	switch s.State {
	case types.StateRunning:
		// a step always pauses after one node
		s.State = types.StatePaused
		s.PausedAtBreakpoint = false
		return canonical(s, s.pausedEvent(types.PauseReasonStep))
	case types.StateCompleted:
		return canonical(s, s.newEvent(types.EventCompleted, s.CurrentNodeID))
	default:
		return canonical(s, s.failedEvent())
	}
}

// Continue resumes execution until the next breakpoint, a terminal outcome,
// or the node-visit safety bound.
func Continue(ctx context.Context, prior *Session, exec types.NodeExecutor) (*Session, *types.Event, error) {
	if prior.State.Terminal() {
		return nil, nil, errors.Trace(types.NewSessionTerminatedError(prior.SessionID, prior.State))
	}
	s, err := prior.Clone()
	if err != nil {
		return nil, nil, errors.Trace(err)
	}

	// when resuming from a breakpoint pause, the breakpointed node itself
	// runs first instead of re-triggering the same breakpoint
	resumed := s.PausedAtBreakpoint
	s.State = types.StateRunning
	s.PausedAtBreakpoint = false

	for visits := 0; ; {
		if s.hasBreakpoint(s.CurrentNodeID) && !resumed {
			s.State = types.StatePaused
			s.PausedAtBreakpoint = true
			log.Debugf("session %s paused at breakpoint %s", s.SessionID, s.CurrentNodeID)
			return canonical(s, s.pausedEvent(types.PauseReasonBreakpoint))
		}
		resumed = false

		if visits++; visits > s.MaxNodeVisits {
			s.failWith(types.NewDivergenceError(visits, s.MaxNodeVisits))
			return canonical(s, s.failedEvent())
		}

		if err := s.executeCurrent(ctx, exec); err != nil {
			return nil, nil, errors.Trace(err)
		}
		if s.State != types.StateRunning {
			if s.State == types.StateCompleted {
				return canonical(s, s.newEvent(types.EventCompleted, s.CurrentNodeID))
			}
			return canonical(s, s.failedEvent())
		}
	}
}

// Stop freezes a session. Stopping an already-terminal session is a no-op
// returning the snapshot unchanged, never an error.
func Stop(prior *Session) (*Session, *types.Event, error) {
	if prior.State.Terminal() {
		return prior, prior.newEvent(types.EventStopped, prior.CurrentNodeID), nil
	}
	s, err := prior.Clone()
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	s.State = types.StateStopped
	s.PausedAtBreakpoint = false
	log.Debugf("session %s stopped", s.SessionID)
	return canonical(s, s.newEvent(types.EventStopped, s.CurrentNodeID))
}

// Variables is the read-only inspection command: the node's local bindings
// when a node id is given (empty until the node has executed), the global
// scope otherwise. The returned map is a copy; the session is not mutated.
func Variables(s *Session, nodeID string) types.Data {
	if nodeID == "" {
		return cloneData(s.GlobalVariables)
	}
	rec, exists := s.NodeExecutions[nodeID]
	if !exists {
		return make(types.Data)
	}
	return cloneData(rec.Variables)
}

func cloneData(d types.Data) types.Data {
	clone := make(types.Data, len(d))
	clone.Merge(d)
	return clone
}

func (s *Session) newEvent(typ types.EventType, nodeID string) *types.Event {
	return &types.Event{
		Type:      typ,
		SessionID: s.SessionID,
		NodeID:    nodeID,
		Timestamp: nowMillis(),
	}
}

func (s *Session) pausedEvent(reason string) *types.Event {
	ev := s.newEvent(types.EventPaused, s.CurrentNodeID)
	ev.Reason = reason
	return ev
}

func (s *Session) failedEvent() *types.Event {
	ev := s.newEvent(types.EventFailed, s.CurrentNodeID)
	ev.Error = s.LastError
	return ev
}
