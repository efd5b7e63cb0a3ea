package graph

import (
	"encoding/json"

	"github.com/juju/errors"

	"github.com/robostep/flowdebug/types"
)

/**
 * Flow is the immutable node/edge graph a debug session runs over. It is
 * built once from the compiled node list at session start and embedded in
 * every snapshot, so stepping needs no state beside the snapshot itself.
 *
 * Nodes keeps declaration order; the edge table is first-declared-wins per
 * outcome name. The debugger assumes the compiler already validated the
 * flow, so a dangling edge only surfaces as an unknown-node failure when it
 * is actually followed.
 */
type Flow struct {
	Nodes []types.NodeDefinition `json:"nodes"`

	index map[string]*types.NodeDefinition
	edges map[string]map[string]string
}

// New builds a Flow from a compiled node list.
func New(nodes []types.NodeDefinition) (*Flow, error) {
	if len(nodes) == 0 {
		return nil, errors.BadRequestf("flow has no nodes")
	}
	f := &Flow{Nodes: nodes}
	if err := f.buildIndex(); err != nil {
		return nil, errors.Trace(err)
	}
	return f, nil
}

func (f *Flow) buildIndex() error {
	f.index = make(map[string]*types.NodeDefinition, len(f.Nodes))
	f.edges = make(map[string]map[string]string, len(f.Nodes))

	for i := range f.Nodes {
		node := &f.Nodes[i]
		if node.ID == "" {
			return errors.BadRequestf("node #%d has empty id", i)
		}
		if _, exists := f.index[node.ID]; exists {
			return errors.AlreadyExistsf("node id: %s", node.ID)
		}
		f.index[node.ID] = node

		outgoing := make(map[string]string, len(node.Edges))
		for _, edge := range node.Edges {
			if _, exists := outgoing[edge.Outcome]; exists {
				// first declared edge wins
				continue
			}
			outgoing[edge.Outcome] = edge.To
		}
		f.edges[node.ID] = outgoing
	}
	return nil
}

// Resolve returns the definition for the given node id.
func (f *Flow) Resolve(nodeID string) (*types.NodeDefinition, error) {
	node, exists := f.index[nodeID]
	if !exists {
		return nil, errors.Trace(types.NewUnknownNodeError(nodeID))
	}
	return node, nil
}

// Has reports whether the node id exists in the flow.
func (f *Flow) Has(nodeID string) bool {
	_, exists := f.index[nodeID]
	return exists
}

// Next returns the target of the edge the node declares for the outcome.
// An empty id means the flow terminates on that branch.
func (f *Flow) Next(nodeID, outcome string) string {
	return f.edges[nodeID][outcome]
}

// Entry returns the id of the node execution starts at: the first declared
// node with no incoming edge. A fully cyclic flow has no such node; the
// first declared node is the entry then, by contract rather than by error.
func (f *Flow) Entry() string {
	incoming := make(map[string]bool, len(f.Nodes))
	for _, outgoing := range f.edges {
		for _, to := range outgoing {
			incoming[to] = true
		}
	}
	for i := range f.Nodes {
		if !incoming[f.Nodes[i].ID] {
			return f.Nodes[i].ID
		}
	}
	return f.Nodes[0].ID
}

// UnmarshalJSON rebuilds the lookup tables after decoding, so a Flow embedded
// in a persisted snapshot is usable immediately.
func (f *Flow) UnmarshalJSON(b []byte) error {
	var alias struct {
		Nodes []types.NodeDefinition `json:"nodes"`
	}
	if err := json.Unmarshal(b, &alias); err != nil {
		return errors.Trace(err)
	}
	f.Nodes = alias.Nodes
	return errors.Trace(f.buildIndex())
}
