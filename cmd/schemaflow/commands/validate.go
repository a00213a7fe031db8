package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/schemaflow/schemaflow/pkg/config"
)

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			fmt.Printf("%s is valid: %d request preset(s)", configPath, len(cfg.Requests))
			if cfg.ObjectStore != nil {
				fmt.Printf(", object store bucket %q", cfg.ObjectStore.Bucket)
			}
			fmt.Println()

			for name := range cfg.Requests {
				req, err := cfg.Request(name)
				if err != nil {
					return err
				}
				fmt.Printf("  %-20s %s/%s -> %s/%s (mode=%s method=%s)\n",
					name, req.Source.Host, req.SourceSchema,
					req.Target.Host, req.TargetSchema, req.Mode, req.Method)
			}
			return nil
		},
	}
}
