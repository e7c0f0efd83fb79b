package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/metastates/pkg/logger"
	"github.com/dmitrymomot/metastates/pkg/states"
)

func newAddCmd(c *cli) *cobra.Command {
	var (
		status        string
		metadata      string
		discriminator string
	)

	cmd := &cobra.Command{
		Use:   "add <owner_kind> <owner_id> <state_type>",
		Short: "Record a new state for an owner",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			opts := []states.StateOption{states.WithDiscriminator(discriminator)}
			if status != "" {
				opts = append(opts, states.WithStatus(status))
			}
			if metadata != "" {
				var md map[string]any
				if err := json.Unmarshal([]byte(metadata), &md); err != nil {
					return fmt.Errorf("invalid --metadata: %w", err)
				}
				opts = append(opts, states.WithMetadata(md))
			}

			svc, cleanup, err := c.openService(ctx)
			defer cleanup()
			if err != nil {
				return err
			}

			owner := states.Owner{Kind: states.OwnerKind(args[0]), ID: args[1]}
			ctx = logger.ContextWithOwner(ctx, args[0], args[1])
			rec, err := svc.AddState(ctx, owner, args[2], opts...)
			if rec == nil {
				return err
			}
			if err != nil {
				c.log.WarnContext(ctx, "state added but callbacks failed", logger.Error(err))
			}
			return writeJSON(cmd.OutOrStdout(), viewOf(rec))
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "initial status (default \"pending\")")
	cmd.Flags().StringVar(&metadata, "metadata", "", "metadata as a JSON object")
	cmd.Flags().StringVar(&discriminator, "discriminator", "", "free-form sub-classification")
	return cmd
}
