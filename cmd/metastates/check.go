package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/metastates/pkg/config"
)

func newCheckCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "check [definitions.yaml]",
		Short: "Validate a state definitions file and print its summary",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := c.cfg.Definitions
			if len(args) == 1 {
				path = args[0]
			}

			defs, err := config.LoadDefinitions(path)
			if err != nil {
				return err
			}
			reg, err := defs.NewRegistry()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, kind := range reg.OwnerKinds() {
				fmt.Fprintf(out, "%s\n", kind)
				for _, st := range reg.StateTypes(kind) {
					line := fmt.Sprintf("  %s: %s", st, strings.Join(reg.Statuses(kind, st), ", "))
					if limit, ok := reg.LimitFor(kind, st); ok {
						line += fmt.Sprintf(" (limit %d)", limit)
					}
					if _, ok := reg.MetadataSchemaFor(kind, st); ok {
						line += " [schema]"
					}
					fmt.Fprintln(out, line)
				}
			}
			c.log.DebugContext(cmd.Context(), "definitions are valid", "path", path)
			return nil
		},
	}
}
