package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/schemaflow/schemaflow/pkg/refresh"
	"github.com/schemaflow/schemaflow/pkg/telemetry"
)

// timeRounding trims duration noise in human-readable output.
const timeRounding = 10 * time.Millisecond

func newRefreshCommand() *cobra.Command {
	var (
		dryRun        bool
		mode          string
		method        string
		metricsListen string
	)

	cmd := &cobra.Command{
		Use:   "refresh <request>",
		Short: "Run a schema refresh",
		Long: `Refresh runs the named request preset from the config file through
the full phase sequence: preflight, export, transfer, drop, import,
validate. Mode and method can be overridden per invocation.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer app.close(ctx)

			req, err := app.cfg.Request(args[0])
			if err != nil {
				return err
			}
			req.DryRun = dryRun
			if mode != "" {
				req.Mode = refresh.OperationMode(mode)
			}
			if method != "" {
				req.Method = refresh.TransferMethod(method)
			}

			if metricsListen != "" {
				tel := app.cfg.Telemetry
				if tel == nil {
					tel = telemetry.DefaultConfig()
				}
				tel.Metrics.Enabled = true
				tel.Metrics.ListenAddress = metricsListen
				app.metrics, err = telemetry.NewMetrics(tel.Metrics)
				if err != nil {
					return err
				}
			}
			// Serve is a no-op when metrics are disabled.
			go func() {
				if err := app.metrics.Serve(ctx); err != nil {
					app.logger.WithError(err).Warn("metrics endpoint stopped")
				}
			}()

			orch, err := app.orchestratorFor(&req)
			if err != nil {
				return err
			}

			report, runErr := orch.Run(ctx, &req)
			printReport(report)

			if runErr != nil {
				return fmt.Errorf("refresh aborted at %s phase: %w", report.AbortedPhase, runErr)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "walk the phase plan without invoking anything")
	cmd.Flags().StringVar(&mode, "mode", "", "override the operation mode (full, export-only, import-only)")
	cmd.Flags().StringVar(&method, "method", "", "override the transfer method (direct, objectstore, hybrid)")
	cmd.Flags().StringVar(&metricsListen, "metrics-listen", "", "expose Prometheus metrics on this address for the run")

	return cmd
}

// printReport writes the run summary to stdout.
func printReport(report *refresh.RunReport) {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
		return
	}

	fmt.Printf("Run %s: %s", report.RunID, report.State)
	if report.DryRun {
		fmt.Printf(" (dry-run)")
	}
	fmt.Println()
	if report.TransferStrategy != "" {
		fmt.Printf("Transfer strategy: %s\n", report.TransferStrategy)
	}

	if report.DryRun {
		fmt.Println("Planned phases (nothing was invoked):")
		for _, p := range report.Phases {
			fmt.Printf("  %-10s would execute\n", p.Phase)
		}
		return
	}

	for _, p := range report.Phases {
		fmt.Printf("  %-10s %-12s %s", p.Phase, p.Status, p.Duration.Round(timeRounding))
		if p.Phase == refresh.PhaseValidate && p.Status.Advances() {
			fmt.Printf("  objects=%d", p.ObjectCount)
		}
		fmt.Println()
		if p.Status == refresh.StatusFatal && p.Diagnostics != "" {
			fmt.Printf("             %s\n", p.Diagnostics)
		}
	}
}
