package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/capitalize-ai/support-flow/internal/flow"
)

func newGraphCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "graph <flow-file>",
		Short: "Export the flow graph as a Mermaid diagram",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := flow.LoadFile(args[0])
			if err != nil {
				return err
			}
			return writeMermaid(cmd.OutOrStdout(), def)
		},
	}
}

// writeMermaid prints the flow as graph TD. Menu edges are labelled with the
// button they belong to and the initial node is marked.
func writeMermaid(w io.Writer, def *flow.Definition) error {
	initial, err := def.InitialNode()
	if err != nil {
		return err
	}

	var b strings.Builder
	b.WriteString("graph TD\n")
	for i := range def.Nodes {
		n := &def.Nodes[i]
		label := string(n.Type)
		if p, err := n.Payload(); err == nil && p.DisplayText() != "" {
			label += ": " + p.DisplayText()
		}
		if n.ID == initial.ID {
			label = "start / " + label
		}
		fmt.Fprintf(&b, "    %s[\"%s\"]\n", mermaidID(n.ID), mermaidText(label))
	}

	for i := range def.Nodes {
		n := &def.Nodes[i]
		var buttons []string
		if p, err := n.Payload(); err == nil {
			if menu, ok := p.(flow.MenuButtons); ok {
				buttons = menu.Buttons
			}
		}
		for j, e := range def.OutgoingEdges(n.ID) {
			if j < len(buttons) {
				fmt.Fprintf(&b, "    %s -->|\"%s\"| %s\n", mermaidID(e.Source), mermaidText(buttons[j]), mermaidID(e.Target))
				continue
			}
			fmt.Fprintf(&b, "    %s --> %s\n", mermaidID(e.Source), mermaidID(e.Target))
		}
	}

	_, err = io.WriteString(w, b.String())
	return err
}

func mermaidID(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, id)
}

func mermaidText(s string) string {
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.ReplaceAll(s, "\n", " ")
}
