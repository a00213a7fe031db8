package commands

import (
	"fmt"
	"path"

	"github.com/spf13/cobra"

	"github.com/schemaflow/schemaflow/pkg/dbtools"
	"github.com/schemaflow/schemaflow/pkg/refresh"
)

func newVerifyCommand() *cobra.Command {
	var (
		artifact bool
		atSource bool
	)

	cmd := &cobra.Command{
		Use:   "verify <request>",
		Short: "Verify the target schema (or the dump artifact) of a request",
		Long: `Verify runs the post-import validation query against the request's
target schema and prints the object count. With --artifact it instead
checks that the dump file is present and intact in the working
directory of the target host (or the source host with --source).`,
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

			if artifact {
				return verifyArtifact(cmd, app, &req, atSource)
			}
			return verifySchema(cmd, app, &req)
		},
	}

	cmd.Flags().BoolVar(&artifact, "artifact", false, "verify the dump artifact placement instead of the schema")
	cmd.Flags().BoolVar(&atSource, "source", false, "with --artifact, verify on the source host instead of the target")

	return cmd
}

// verifySchema runs the validation query and prints the object count.
func verifySchema(cmd *cobra.Command, app *app, req *refresh.RefreshRequest) error {
	ctx := cmd.Context()

	runner := dbtools.NewSSHRunner(app.dialer)
	creds := dbtools.NewEnvCredentialResolver()
	sqlRunner := dbtools.NewSQLRunner(runner, creds, app.cfg.Tools, app.logger)

	raw, count, err := sqlRunner.CountObjects(ctx, req)
	if err != nil {
		return fmt.Errorf("validation query failed: %w", err)
	}
	if raw.ExitStatus != 0 {
		return fmt.Errorf("validation query exited %d: %s", raw.ExitStatus, raw.Output)
	}

	fmt.Printf("schema %s on %s owns %d objects\n", req.TargetSchema, req.Target.Host, count)
	if count == 0 {
		return fmt.Errorf("schema %s owns no objects", req.TargetSchema)
	}
	return nil
}

// verifyArtifact checks the dump placement through the transfer strategy.
func verifyArtifact(cmd *cobra.Command, app *app, req *refresh.RefreshRequest, atSource bool) error {
	ctx := cmd.Context()

	strategy, err := app.transferFor(req.Method)
	if err != nil {
		return err
	}

	host := req.Target.Host
	if atSource {
		host = req.Source.Host
	}

	dump := &refresh.DumpArtifact{
		Name:       req.DumpName(),
		SourceHost: req.Source.Host,
		Location:   refresh.OnHost(host, path.Join(req.WorkDir, req.DumpName())),
	}

	ok, err := strategy.Verify(ctx, dump, host)
	if err != nil {
		return fmt.Errorf("verify %s on %s: %w", dump.Name, host, err)
	}
	if !ok {
		return fmt.Errorf("artifact %s is missing or incomplete on %s", dump.Name, host)
	}

	fmt.Printf("artifact %s present on %s\n", dump.Name, host)
	return nil
}
