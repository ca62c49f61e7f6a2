package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/capitalize-ai/support-flow/internal/flow"
	"github.com/capitalize-ai/support-flow/internal/gateway"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <flow-file>",
		Short: "Check a flow file for consistency",
		Long:  `Parses the flow and reports unknown node types, malformed node data, duplicate ids and edges pointing at missing nodes.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := flow.LoadFile(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for text, ids := range def.DuplicateDisplayTexts() {
				fmt.Fprintf(out, "warning: nodes %v share the text %q\n", ids, text)
			}

			if err := def.Validate(gateway.Actions()...); err != nil {
				var invalid *flow.InvalidFlowError
				if errors.As(err, &invalid) {
					for _, p := range invalid.Problems {
						fmt.Fprintf(out, "error: %s\n", p)
					}
				}
				return fmt.Errorf("flow %s is invalid", args[0])
			}

			fmt.Fprintf(out, "flow is valid: %d nodes, %d edges\n", len(def.Nodes), len(def.Edges))
			return nil
		},
	}
}
