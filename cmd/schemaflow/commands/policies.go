package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newPoliciesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "policies",
		Short: "List the loaded destructive-operation policies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer app.close(ctx)

			policies := app.policy.ListPolicies()

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(policies)
			}

			fmt.Printf("%-24s  %-8s  %-8s  %s\n", "NAME", "SEVERITY", "ENABLED", "DESCRIPTION")
			for _, p := range policies {
				fmt.Printf("%-24s  %-8s  %-8t  %s\n", p.Name, p.Severity, p.Enabled, p.Description)
			}
			return nil
		},
	}
}
