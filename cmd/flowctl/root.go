package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "flowctl",
		Short:         "Operate customer-support conversation flows",
		Long:          `flowctl checks flow files before they are deployed, prints their structure and runs them locally against in-memory stores.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newValidateCmd(), newGraphCmd(), newSimulateCmd())
	return root
}
