package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func protocolCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "protocol",
		Short: "Inspect registered protocols",
	}

	cmd.AddCommand(protocolListCmd())
	cmd.AddCommand(protocolShowCmd())

	return cmd
}

func protocolListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all registered protocols",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			protocols, err := client.listProtocols(context.Background())
			if err != nil {
				return fmt.Errorf("list protocols: %w", err)
			}

			out, err := formatProtocols(protocols, outputFormat)
			if err != nil {
				return fmt.Errorf("format protocols: %w", err)
			}

			fmt.Print(out)
			return nil
		},
	}
}

func protocolShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show details of a registered protocol",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			p, err := client.getProtocol(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("get protocol: %w", err)
			}

			out, err := formatProtocol(p, outputFormat)
			if err != nil {
				return fmt.Errorf("format protocol: %w", err)
			}

			fmt.Print(out)
			return nil
		},
	}
}
