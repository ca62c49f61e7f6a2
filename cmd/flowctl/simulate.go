package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/capitalize-ai/support-flow/internal/catalog"
	"github.com/capitalize-ai/support-flow/internal/engine"
	"github.com/capitalize-ai/support-flow/internal/flow"
	"github.com/capitalize-ai/support-flow/internal/gateway"
	"github.com/capitalize-ai/support-flow/internal/model"
	"github.com/capitalize-ai/support-flow/internal/store/memory"
	"github.com/capitalize-ai/support-flow/pkg/logger"
)

const quitCommand = "/quit"

type simulateOptions struct {
	catalogFile string
	erpURL      string
	erpToken    string
	timeout     time.Duration
	verbose     bool
}

func newSimulateCmd() *cobra.Command {
	var opts simulateOptions
	cmd := &cobra.Command{
		Use:   "simulate <flow-file>",
		Short: "Run a conversation against the flow in the terminal",
		Long: `Starts a conversation on the flow and reads customer messages from stdin.
On menus, answer with the option number or its label. Type /quit to stop.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := flow.LoadFile(args[0])
			if err != nil {
				return err
			}
			if err := def.Validate(gateway.Actions()...); err != nil {
				return err
			}
			return simulate(cmd.Context(), def, opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.catalogFile, "catalog", "", "catalog file with write actions and system messages")
	cmd.Flags().StringVar(&opts.erpURL, "erp-url", "", "base URL of the ERP")
	cmd.Flags().StringVar(&opts.erpToken, "erp-token", "", "bearer token for the ERP")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "override ERP call timeouts")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "log engine activity to stderr")
	return cmd
}

func simulate(ctx context.Context, def *flow.Definition, opts simulateOptions, in io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	log := logger.NewNop()
	if opts.verbose {
		var err error
		if log, err = logger.NewDevelopment(); err != nil {
			return err
		}
	}

	cat, err := catalog.LoadFile(opts.catalogFile)
	if err != nil {
		return err
	}

	eng := engine.New(engine.Dependencies{
		Messages:  memory.NewMessageStore(),
		Variables: memory.NewVariableStore(),
		Positions: memory.NewPositionStore(),
		Gateway: gateway.New(gateway.Config{
			BaseURL:      opts.erpURL,
			Token:        opts.erpToken,
			QueryTimeout: opts.timeout,
			WriteTimeout: opts.timeout,
		}, log),
		WriteActions:   cat,
		SystemMessages: cat,
	}, log)

	const conversationID = "simulation"
	resp, err := eng.Start(ctx, conversationID, def)
	if err != nil {
		return err
	}
	printResponse(out, resp)

	scanner := bufio.NewScanner(in)
	for resp.Kind != model.KindTransfer {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		text := strings.TrimSpace(scanner.Text())
		if text == quitCommand {
			break
		}

		resp, err = eng.Advance(ctx, conversationID, def, text, nil)
		if errors.Is(err, engine.ErrConversationTransferred) {
			fmt.Fprintln(out, "[conversation is with an agent]")
			return nil
		}
		if err != nil {
			return err
		}
		printResponse(out, resp)
	}
	return scanner.Err()
}

func printResponse(w io.Writer, resp *model.BotResponse) {
	fmt.Fprintf(w, "bot: %s\n", resp.Content)
	for i, b := range resp.Buttons {
		fmt.Fprintf(w, "  %d. %s\n", i+1, b)
	}
	switch resp.Kind {
	case model.KindInputRequest:
		fmt.Fprintf(w, "  [expects %s]\n", resp.InputType)
	case model.KindTransfer:
		fmt.Fprintf(w, "  [transferred to queue %s]\n", resp.TransferQueue)
	case model.KindError:
		fmt.Fprintln(w, "  [error]")
	}
}
