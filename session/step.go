package session

import (
	"context"
	"fmt"

	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"

	"github.com/robostep/flowdebug/types"
)

/**
 * executeCurrent runs the single node the session is positioned on and
 * advances the position along the edge its outcome selects:
 *
 *   - outcome routed to an edge: current moves to the target, state stays
 *     Running and the caller decides whether to pause,
 *   - no edge for a success outcome: the flow is done, Completed,
 *   - no edge for an error outcome: no recovery path, Failed,
 *   - adapter failure: synthetic error on the node, Failed.
 *
 * A node-level error with a matching error edge is data, not a failure:
 * execution continues along the error branch.
 */
func (s *Session) executeCurrent(ctx context.Context, exec types.NodeExecutor) error {
	nodeID := s.CurrentNodeID
	if nodeID == "" {
		return errors.BadRequestf("session %s has no current node", s.SessionID)
	}
	def, err := s.Flow.Resolve(nodeID)
	if err != nil {
		return errors.Trace(err)
	}
	rec, err := s.touch(nodeID)
	if err != nil {
		return errors.Trace(err)
	}

	rec.Status = types.NodeRunning
	rec.StartTime = nowMillis()
	s.appendOrder(nodeID)
	log.Debugf("session %s executing node %s (%s)", s.SessionID, nodeID, def.Type)

	result, execErr := exec.Execute(ctx, def, cloneData(s.GlobalVariables))
	rec.EndTime = nowMillis()

	if execErr != nil || result == nil {
		// the adapter itself broke; the session must not stay Running
		msg := "execution adapter returned no result"
		if execErr != nil {
			msg = fmt.Sprintf("execution adapter failed: %v", execErr)
		}
		rec.Status = types.NodeError
		rec.Error = msg
		s.failWith(types.NewNodeExecutionError(nodeID, msg))
		return nil
	}

	outcome := result.Outcome
	if outcome == "" {
		outcome = types.OutcomeSuccess
	}

	if outcome == types.OutcomeError {
		rec.Status = types.NodeError
		rec.Error = result.ErrorMessage
		if rec.Error == "" {
			rec.Error = "node reported an error outcome"
		}
	} else {
		rec.Status = types.NodeSuccess
		rec.Output = result.Output
		rec.Variables = cloneData(result.Bindings)
		s.GlobalVariables.Merge(result.Bindings)
	}

	next := s.Flow.Next(nodeID, outcome)
	if next == "" {
		if outcome == types.OutcomeError {
			s.failWith(types.NewNodeExecutionError(nodeID, rec.Error))
		} else {
			s.State = types.StateCompleted
		}
		return nil
	}

	s.CurrentNodeID = next
	if _, err := s.touch(next); err != nil {
		return errors.Trace(err)
	}
	s.appendOrder(next)
	return nil
}

func (s *Session) failWith(err error) {
	s.State = types.StateFailed
	s.LastError = err.Error()
	log.Debugf("session %s failed: %s", s.SessionID, s.LastError)
}
