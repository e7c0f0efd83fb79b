package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPingCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the configured storage is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			b, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer b.close()

			if err := b.ping(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", c.cfg.Storage)
			return nil
		},
	}
}
