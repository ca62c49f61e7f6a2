package flow

import (
	"fmt"
	"strings"
)

// InvalidFlowError lists every problem found in a flow definition.
type InvalidFlowError struct {
	Problems []string
}

func (e *InvalidFlowError) Error() string {
	return fmt.Sprintf("invalid flow: %s", strings.Join(e.Problems, "; "))
}

// Validate checks the structural invariants of the graph: at least one node,
// unique and known nodes, decodable payloads and edges between existing nodes.
// When integrationActions is given, integration nodes must name one of them.
func (d *Definition) Validate(integrationActions ...string) error {
	if len(d.Nodes) == 0 {
		return ErrEmptyFlow
	}
	known := make(map[string]bool, len(integrationActions))
	for _, a := range integrationActions {
		known[a] = true
	}

	var problems []string
	seen := make(map[string]bool, len(d.Nodes))
	for i := range d.Nodes {
		n := &d.Nodes[i]
		if n.ID == "" {
			problems = append(problems, fmt.Sprintf("node at index %d has no id", i))
			continue
		}
		if seen[n.ID] {
			problems = append(problems, fmt.Sprintf("duplicate node id %q", n.ID))
		}
		seen[n.ID] = true

		if !n.Type.Known() {
			problems = append(problems, fmt.Sprintf("node %s has unknown type %q", n.ID, n.Type))
			continue
		}
		p, err := n.Payload()
		if err != nil {
			problems = append(problems, err.Error())
			continue
		}
		if in, ok := p.(Integration); ok && len(known) > 0 && !known[in.Action] {
			problems = append(problems, fmt.Sprintf("node %s uses unknown integration action %q", n.ID, in.Action))
		}
	}

	for i, e := range d.Edges {
		if !seen[e.Source] {
			problems = append(problems, fmt.Sprintf("edge %d (%s) has unknown source %q", i, e.ID, e.Source))
		}
		if !seen[e.Target] {
			problems = append(problems, fmt.Sprintf("edge %d (%s) has unknown target %q", i, e.ID, e.Target))
		}
	}

	if len(problems) > 0 {
		return &InvalidFlowError{Problems: problems}
	}
	return nil
}

// DuplicateDisplayTexts returns display texts shared by more than one node.
// Such nodes cannot be told apart by the legacy text-matching resolution.
func (d *Definition) DuplicateDisplayTexts() map[string][]string {
	byText := make(map[string][]string)
	for i := range d.Nodes {
		p, err := d.Nodes[i].Payload()
		if err != nil {
			continue
		}
		text := p.DisplayText()
		if text == "" {
			continue
		}
		byText[text] = append(byText[text], d.Nodes[i].ID)
	}
	for text, ids := range byText {
		if len(ids) < 2 {
			delete(byText, text)
		}
	}
	return byText
}
