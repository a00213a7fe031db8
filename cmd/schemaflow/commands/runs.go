package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/schemaflow/schemaflow/pkg/report"
)

func newRunsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect the run history",
	}

	cmd.AddCommand(newRunsListCommand())
	cmd.AddCommand(newRunsShowCommand())
	return cmd
}

func newRunsListCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent refresh runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer app.close(ctx)

			runs, err := app.store.ListRuns(ctx, limit)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(runs)
			}

			if len(runs) == 0 {
				fmt.Println("no runs recorded")
				return nil
			}

			fmt.Printf("%-36s  %-9s  %-20s  %-30s  %s\n", "RUN", "STATE", "STARTED", "TARGET", "STRATEGY")
			for _, r := range runs {
				state := string(r.State)
				if r.AbortedPhase != "" {
					state = fmt.Sprintf("%s@%s", r.State, r.AbortedPhase)
				}
				target := fmt.Sprintf("%s/%s", r.TargetHost, r.TargetSchema)
				fmt.Printf("%-36s  %-9s  %-20s  %-30s  %s\n",
					r.ID, state, r.StartedAt.Local().Format(time.DateTime), target, r.TransferStrategy)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")
	return cmd
}

func newRunsShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run with its phase results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer app.close(ctx)

			run, err := app.store.GetRun(ctx, args[0])
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(run)
			}

			printRun(run)
			return nil
		},
	}
}

func printRun(run *report.RunRecord) {
	fmt.Printf("Run %s: %s", run.ID, run.State)
	if run.AbortedPhase != "" {
		fmt.Printf(" (aborted at %s)", run.AbortedPhase)
	}
	if run.DryRun {
		fmt.Printf(" (dry-run)")
	}
	fmt.Println()

	fmt.Printf("  %s/%s -> %s/%s  mode=%s method=%s\n",
		run.SourceHost, run.SourceSchema, run.TargetHost, run.TargetSchema, run.Mode, run.Method)
	fmt.Printf("  started %s, completed %s\n",
		run.StartedAt.Local().Format(time.DateTime), run.CompletedAt.Local().Format(time.DateTime))
	if run.TransferStrategy != "" {
		fmt.Printf("  transfer strategy: %s\n", run.TransferStrategy)
	}

	for _, p := range run.Phases {
		fmt.Printf("  %-10s %-12s %s", p.Phase, p.Status, p.Duration.Round(timeRounding))
		if p.ObjectCount > 0 {
			fmt.Printf("  objects=%d", p.ObjectCount)
		}
		fmt.Println()
		if p.Diagnostics != "" {
			fmt.Printf("             %s\n", p.Diagnostics)
		}
	}
}
