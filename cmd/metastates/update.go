package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/metastates/pkg/logger"
	"github.com/dmitrymomot/metastates/pkg/states"
)

func newUpdateCmd(c *cli) *cobra.Command {
	var completedAt string

	cmd := &cobra.Command{
		Use:   "update <state_id> <status>",
		Short: "Change the status of a recorded state",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var opts []states.UpdateOption
			switch completedAt {
			case "":
			case "now":
				opts = append(opts, states.WithCompletedAt(time.Now()))
			default:
				at, err := time.Parse(time.RFC3339, completedAt)
				if err != nil {
					return fmt.Errorf("invalid --completed-at: %w", err)
				}
				opts = append(opts, states.WithCompletedAt(at))
			}

			svc, cleanup, err := c.openService(ctx)
			defer cleanup()
			if err != nil {
				return err
			}

			rec, err := svc.UpdateStatus(ctx, args[0], args[1], opts...)
			if rec == nil {
				return err
			}
			if err != nil {
				c.log.WarnContext(ctx, "status changed but callbacks failed", logger.Error(err))
			}
			return writeJSON(cmd.OutOrStdout(), viewOf(rec))
		},
	}

	cmd.Flags().StringVar(&completedAt, "completed-at", "", `completion time, RFC 3339 or "now"`)
	return cmd
}
