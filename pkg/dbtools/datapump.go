package dbtools

import (
	"context"
	"fmt"
	"strings"

	"github.com/schemaflow/schemaflow/pkg/refresh"
	"github.com/schemaflow/schemaflow/pkg/telemetry"
)

// Config locates the external tool binaries and the server-side
// directory alias the bulk engine writes dumps through. The alias must
// map to the request's working directory on each database host.
type Config struct {
	// ExportBinary is the bulk export tool (default: expdp).
	ExportBinary string `yaml:"export_binary"`

	// ImportBinary is the bulk import tool (default: impdp).
	ImportBinary string `yaml:"import_binary"`

	// SQLBinary is the SQL execution tool (default: sqlplus).
	SQLBinary string `yaml:"sql_binary"`

	// DirectoryAlias is the server-side directory object the dump files
	// are written to and read from (default: DATA_PUMP_DIR).
	DirectoryAlias string `yaml:"directory_alias"`

	// Compression enables dump compression at export time.
	Compression bool `yaml:"compression"`
}

// DefaultConfig returns the standard tool configuration.
func DefaultConfig() Config {
	return Config{
		ExportBinary:   "expdp",
		ImportBinary:   "impdp",
		SQLBinary:      "sqlplus",
		DirectoryAlias: "DATA_PUMP_DIR",
		Compression:    true,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.ExportBinary == "" {
		c.ExportBinary = def.ExportBinary
	}
	if c.ImportBinary == "" {
		c.ImportBinary = def.ImportBinary
	}
	if c.SQLBinary == "" {
		c.SQLBinary = def.SQLBinary
	}
	if c.DirectoryAlias == "" {
		c.DirectoryAlias = def.DirectoryAlias
	}
}

// DataPump drives the bulk export/import engine on the database hosts.
// It implements the export and import collaborator contracts: build the
// command line, run it remotely, hand back the raw exit status and
// captured text untouched.
type DataPump struct {
	runner CommandRunner
	creds  CredentialResolver
	config Config
	logger *telemetry.Logger
}

// NewDataPump creates the export/import collaborator.
func NewDataPump(runner CommandRunner, creds CredentialResolver, config Config, logger *telemetry.Logger) *DataPump {
	config.applyDefaults()
	return &DataPump{
		runner: runner,
		creds:  creds,
		config: config,
		logger: logger.NewComponentLogger("datapump"),
	}
}

// connectString builds the tool's connect argument. The result contains
// the resolved password and must never be logged.
func connectString(cred Credential, endpoint refresh.Endpoint) string {
	return fmt.Sprintf("%s/%s@//%s:%d/%s",
		cred.Username, cred.Password, endpoint.Host, endpoint.Port, endpoint.Service)
}

// Export runs the bulk export of the source schema into the working
// directory on the source host.
func (d *DataPump) Export(ctx context.Context, req *refresh.RefreshRequest, artifact *refresh.DumpArtifact) (refresh.RawResult, error) {
	cred, err := d.creds.Resolve(ctx, req.SourceCredentials)
	if err != nil {
		return refresh.RawResult{}, fmt.Errorf("resolve source credentials: %w", err)
	}

	args := []string{
		d.config.ExportBinary,
		connectString(cred, req.Source),
		fmt.Sprintf("schemas=%s", req.SourceSchema),
		fmt.Sprintf("directory=%s", d.config.DirectoryAlias),
		fmt.Sprintf("dumpfile=%s", artifact.Name),
		fmt.Sprintf("logfile=%s.explog", artifact.Name),
		fmt.Sprintf("parallel=%d", req.Parallelism),
	}
	if d.config.Compression {
		args = append(args, "compression=all")
	}

	d.logger.WithHost(req.Source.Host).Infof("exporting schema %s (parallel=%d)", req.SourceSchema, req.Parallelism)
	return d.runner.RunOnHost(ctx, req.Source.Host, strings.Join(args, " "))
}

// Import runs the bulk import on the target host, remapping the source
// schema onto the target schema.
func (d *DataPump) Import(ctx context.Context, req *refresh.RefreshRequest, artifact *refresh.DumpArtifact) (refresh.RawResult, error) {
	cred, err := d.creds.Resolve(ctx, req.TargetCredentials)
	if err != nil {
		return refresh.RawResult{}, fmt.Errorf("resolve target credentials: %w", err)
	}

	args := []string{
		d.config.ImportBinary,
		connectString(cred, req.Target),
		fmt.Sprintf("remap_schema=%s:%s", req.SourceSchema, req.TargetSchema),
		fmt.Sprintf("directory=%s", d.config.DirectoryAlias),
		fmt.Sprintf("dumpfile=%s", artifact.Name),
		fmt.Sprintf("logfile=%s.implog", artifact.Name),
		fmt.Sprintf("parallel=%d", req.Parallelism),
		"table_exists_action=replace",
	}

	d.logger.WithHost(req.Target.Host).Infof("importing schema %s as %s (parallel=%d)",
		req.SourceSchema, req.TargetSchema, req.Parallelism)
	return d.runner.RunOnHost(ctx, req.Target.Host, strings.Join(args, " "))
}
