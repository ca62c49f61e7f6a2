// Package flow models the conversation graph authored in the flow editor:
// typed nodes, directed edges and the pure lookups the interpreter needs.
package flow

import (
	"errors"
)

// NodeType is the behavior unit a node stands for.
type NodeType string

const (
	NodeSendMessage        NodeType = "send_message"
	NodeMenuButtons        NodeType = "menu_buttons"
	NodeIntegration        NodeType = "integration"
	NodeTransfer           NodeType = "transfer"
	NodeCollectInfo        NodeType = "collect_info"
	NodeExecuteWriteAction NodeType = "execute_write_action"
)

// Known reports whether t is one of the node types the engine can run.
func (t NodeType) Known() bool {
	switch t {
	case NodeSendMessage, NodeMenuButtons, NodeIntegration,
		NodeTransfer, NodeCollectInfo, NodeExecuteWriteAction:
		return true
	}
	return false
}

// ErrEmptyFlow is returned when a flow has no nodes to interpret.
var ErrEmptyFlow = errors.New("flow has no nodes")

// Node is one step of a flow. Data is node-type specific and decoded into a
// typed payload with Payload.
type Node struct {
	ID   string         `json:"id" yaml:"id"`
	Type NodeType       `json:"type" yaml:"type"`
	Data map[string]any `json:"data,omitempty" yaml:"data,omitempty"`
}

// Edge connects two nodes. For menu nodes the order of outgoing edges maps
// to the order of the buttons.
type Edge struct {
	ID           string `json:"id" yaml:"id"`
	Source       string `json:"source" yaml:"source"`
	Target       string `json:"target" yaml:"target"`
	SourceHandle string `json:"sourceHandle,omitempty" yaml:"sourceHandle,omitempty"`
}

// Viewport is editor metadata carried along with the graph.
type Viewport struct {
	X    float64 `json:"x" yaml:"x"`
	Y    float64 `json:"y" yaml:"y"`
	Zoom float64 `json:"zoom" yaml:"zoom"`
}

// Definition is an immutable flow graph.
type Definition struct {
	Nodes    []Node    `json:"nodes" yaml:"nodes"`
	Edges    []Edge    `json:"edges" yaml:"edges"`
	Viewport *Viewport `json:"viewport,omitempty" yaml:"viewport,omitempty"`
}

// NodeByID returns the node with the given id.
func (d *Definition) NodeByID(id string) (*Node, bool) {
	for i := range d.Nodes {
		if d.Nodes[i].ID == id {
			return &d.Nodes[i], true
		}
	}
	return nil, false
}

// OutgoingEdges returns the edges leaving nodeID in declaration order.
func (d *Definition) OutgoingEdges(nodeID string) []Edge {
	var out []Edge
	for _, e := range d.Edges {
		if e.Source == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// InitialNode returns the unique node without incoming edges. When no node
// or more than one node qualifies, the first declared node is used so that a
// malformed flow still has a start.
func (d *Definition) InitialNode() (*Node, error) {
	if len(d.Nodes) == 0 {
		return nil, ErrEmptyFlow
	}

	incoming := make(map[string]bool, len(d.Edges))
	for _, e := range d.Edges {
		incoming[e.Target] = true
	}

	var root *Node
	for i := range d.Nodes {
		if incoming[d.Nodes[i].ID] {
			continue
		}
		if root != nil {
			return &d.Nodes[0], nil
		}
		root = &d.Nodes[i]
	}
	if root == nil {
		return &d.Nodes[0], nil
	}
	return root, nil
}

// Next follows the first outgoing edge of nodeID.
func (d *Definition) Next(nodeID string) (*Node, bool) {
	edges := d.OutgoingEdges(nodeID)
	if len(edges) == 0 {
		return nil, false
	}
	return d.NodeByID(edges[0].Target)
}

// Branch follows the outgoing edge at index, as used by menu buttons.
func (d *Definition) Branch(nodeID string, index int) (*Node, bool) {
	edges := d.OutgoingEdges(nodeID)
	if index < 0 || index >= len(edges) {
		return nil, false
	}
	return d.NodeByID(edges[index].Target)
}
