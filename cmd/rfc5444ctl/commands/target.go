package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// errProtocolRequired is returned when a target subcommand is missing its
// required --protocol flag.
var errProtocolRequired = errors.New("--protocol flag is required")

func targetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "target",
		Short: "Inspect and control forwarding targets",
	}

	cmd.AddCommand(targetListCmd())
	cmd.AddCommand(targetFlushCmd())

	return cmd
}

func targetListCmd() *cobra.Command {
	var protocol string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the targets of a protocol",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if protocol == "" {
				return errProtocolRequired
			}

			targets, err := client.listTargets(context.Background(), protocol)
			if err != nil {
				return fmt.Errorf("list targets: %w", err)
			}

			out, err := formatTargets(targets, outputFormat)
			if err != nil {
				return fmt.Errorf("format targets: %w", err)
			}

			fmt.Print(out)
			return nil
		},
	}

	cmd.Flags().StringVar(&protocol, "protocol", "", "protocol name (required)")
	return cmd
}

func targetFlushCmd() *cobra.Command {
	var protocol string

	cmd := &cobra.Command{
		Use:   "flush <address>",
		Short: "Force an immediate aggregation flush for a target",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if protocol == "" {
				return errProtocolRequired
			}

			if err := client.flushTarget(context.Background(), protocol, args[0]); err != nil {
				return fmt.Errorf("flush target: %w", err)
			}

			fmt.Printf("Target %s flushed.\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&protocol, "protocol", "", "protocol name (required)")
	return cmd
}
