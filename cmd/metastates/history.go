package main

import (
	"github.com/spf13/cobra"

	"github.com/dmitrymomot/metastates/pkg/states"
)

func newHistoryCmd(c *cli) *cobra.Command {
	var stateType string

	cmd := &cobra.Command{
		Use:   "history <owner_kind> <owner_id>",
		Short: "List the recorded states of an owner, newest first",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			svc, cleanup, err := c.openService(ctx)
			defer cleanup()
			if err != nil {
				return err
			}

			owner := states.Owner{Kind: states.OwnerKind(args[0]), ID: args[1]}
			var recs []*states.Record
			if stateType != "" {
				recs, err = svc.States(ctx, owner, stateType)
			} else {
				recs, err = svc.History(ctx, owner)
			}
			if err != nil {
				return err
			}

			views := make([]recordView, 0, len(recs))
			for _, rec := range recs {
				views = append(views, viewOf(rec))
			}
			return writeJSON(cmd.OutOrStdout(), views)
		},
	}

	cmd.Flags().StringVar(&stateType, "type", "", "only this state type")
	return cmd
}
