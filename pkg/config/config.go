// Package config loads the schemaflow configuration file: tool paths,
// SSH access, the optional object store, run history storage, and
// telemetry settings, plus named refresh request presets.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/schemaflow/schemaflow/pkg/dbtools"
	"github.com/schemaflow/schemaflow/pkg/objectstore"
	"github.com/schemaflow/schemaflow/pkg/refresh"
	"github.com/schemaflow/schemaflow/pkg/telemetry"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "30s" or "5m".
type Duration time.Duration

// UnmarshalYAML parses either a duration string or an integer
// nanosecond count.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration value")
	}
	*d = Duration(n)
	return nil
}

// Std returns the standard library duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// SSHConfig is the host-independent SSH access template.
type SSHConfig struct {
	// User is the login used on every database host.
	User string `yaml:"user" validate:"required"`

	// PrivateKeyPath locates the key; empty falls back to default keys.
	PrivateKeyPath string `yaml:"private_key_path"`

	// KnownHostsPath locates the known_hosts file.
	KnownHostsPath string `yaml:"known_hosts_path"`

	// StrictHostKeyChecking rejects unknown host keys.
	StrictHostKeyChecking bool `yaml:"strict_host_key_checking"`

	// ConnectTimeout bounds connection establishment.
	ConnectTimeout Duration `yaml:"connect_timeout"`
}

// TransferConfig tunes the transfer strategies.
type TransferConfig struct {
	// SpoolDir is the control-node staging directory.
	SpoolDir string `yaml:"spool_dir"`

	// MaxAttempts bounds retries of transient transport failures.
	MaxAttempts int `yaml:"max_attempts"`

	// RetryBaseDelay is the first retry delay.
	RetryBaseDelay Duration `yaml:"retry_base_delay"`

	// RetryMaxDelay caps the exponential backoff.
	RetryMaxDelay Duration `yaml:"retry_max_delay"`
}

// EndpointPreset mirrors refresh.Endpoint for YAML decoding.
type EndpointPreset struct {
	Host     string `yaml:"host" validate:"required"`
	Port     int    `yaml:"port" validate:"required,min=1,max=65535"`
	Instance string `yaml:"instance" validate:"required"`
	Service  string `yaml:"service" validate:"required"`
}

// RequestPreset is a named refresh request as written in the config
// file. It converts to the domain request after decoding.
type RequestPreset struct {
	Source                EndpointPreset `yaml:"source" validate:"required"`
	Target                EndpointPreset `yaml:"target" validate:"required"`
	SourceSchema          string         `yaml:"source_schema" validate:"required"`
	TargetSchema          string         `yaml:"target_schema" validate:"required"`
	Mode                  string         `yaml:"mode"`
	Method                string         `yaml:"method"`
	Parallelism           int            `yaml:"parallelism"`
	WorkDir               string         `yaml:"work_dir" validate:"required"`
	ArtifactName          string         `yaml:"artifact_name"`
	SourceCredentials     string         `yaml:"source_credentials" validate:"required"`
	TargetCredentials     string         `yaml:"target_credentials" validate:"required"`
	Validate              bool           `yaml:"validate"`
	CleanupArtifact       bool           `yaml:"cleanup_artifact"`
	CleanupObject         bool           `yaml:"cleanup_object"`
	ObjectStoreSufficient bool           `yaml:"objectstore_sufficient"`
	PhaseTimeout          Duration       `yaml:"phase_timeout"`
}

// ToRequest converts the preset into a domain request, filling the
// defaults the file may omit.
func (p *RequestPreset) ToRequest() refresh.RefreshRequest {
	req := refresh.RefreshRequest{
		Source:                refresh.Endpoint(p.Source),
		Target:                refresh.Endpoint(p.Target),
		SourceSchema:          p.SourceSchema,
		TargetSchema:          p.TargetSchema,
		Mode:                  refresh.OperationMode(p.Mode),
		Method:                refresh.TransferMethod(p.Method),
		Parallelism:           p.Parallelism,
		WorkDir:               p.WorkDir,
		ArtifactName:          p.ArtifactName,
		SourceCredentials:     refresh.CredentialRef(p.SourceCredentials),
		TargetCredentials:     refresh.CredentialRef(p.TargetCredentials),
		Validate:              p.Validate,
		CleanupArtifact:       p.CleanupArtifact,
		CleanupObject:         p.CleanupObject,
		ObjectStoreSufficient: p.ObjectStoreSufficient,
		PhaseTimeout:          p.PhaseTimeout.Std(),
	}
	if req.Mode == "" {
		req.Mode = refresh.ModeFull
	}
	if req.Method == "" {
		req.Method = refresh.TransferDirect
	}
	if req.Parallelism == 0 {
		req.Parallelism = 1
	}
	return req
}

// ClassifierConfig extends the benign-outcome match tables. The built-in
// tables only recognize English-locale tool output; deployments whose
// tools emit localized diagnostics list their texts here.
type ClassifierConfig struct {
	// ExportBenign are extra texts marking a failed export as a benign
	// no-op (dump artifact already present).
	ExportBenign []string `yaml:"export_benign"`

	// DropBenign are extra texts marking a failed drop as a benign
	// no-op (schema already absent).
	DropBenign []string `yaml:"drop_benign"`
}

// Extended reports whether any extra match texts are configured.
func (c ClassifierConfig) Extended() bool {
	return len(c.ExportBenign) > 0 || len(c.DropBenign) > 0
}

// Config is the full application configuration.
type Config struct {
	// SSH configures access to the database hosts.
	SSH SSHConfig `yaml:"ssh" validate:"required"`

	// Tools configures the external export/import and SQL binaries.
	Tools dbtools.Config `yaml:"tools"`

	// ObjectStore configures the optional intermediary bucket. Nil when
	// only direct transfers are used.
	ObjectStore *objectstore.Config `yaml:"object_store,omitempty"`

	// Transfer tunes staging and retries.
	Transfer TransferConfig `yaml:"transfer"`

	// ReportPath is the SQLite run-history database location.
	ReportPath string `yaml:"report_path"`

	// PolicyPaths lists operator .rego policy files or directories.
	PolicyPaths []string `yaml:"policy_paths"`

	// MinFreeBytes is the working-directory space preflight requires.
	MinFreeBytes int64 `yaml:"min_free_bytes"`

	// Classifier extends the benign-outcome match tables.
	Classifier ClassifierConfig `yaml:"classifier"`

	// Telemetry configures logging, metrics, and tracing.
	Telemetry *telemetry.Config `yaml:"telemetry,omitempty"`

	// Requests are named refresh presets runnable by name.
	Requests map[string]RequestPreset `yaml:"requests,omitempty"`
}

// Default returns the configuration defaults applied before file values.
func Default() *Config {
	return &Config{
		SSH: SSHConfig{
			StrictHostKeyChecking: true,
			ConnectTimeout:        Duration(30 * time.Second),
		},
		Tools: dbtools.DefaultConfig(),
		Transfer: TransferConfig{
			SpoolDir:       os.TempDir(),
			MaxAttempts:    4,
			RetryBaseDelay: Duration(2 * time.Second),
			RetryMaxDelay:  Duration(30 * time.Second),
		},
		ReportPath:   "schemaflow-runs.db",
		MinFreeBytes: 1 << 30,
		Telemetry:    telemetry.DefaultConfig(),
	}
}

// Load reads and validates a configuration file on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration, including every request preset.
func (c *Config) Validate() error {
	v := validator.New()

	if err := v.Struct(c); err != nil {
		return err
	}
	if c.ObjectStore != nil {
		if err := v.Struct(c.ObjectStore); err != nil {
			return fmt.Errorf("object_store: %w", err)
		}
	}
	if c.Telemetry != nil {
		if err := c.Telemetry.Validate(); err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
	}

	for name := range c.Requests {
		preset := c.Requests[name]
		if err := v.Struct(&preset); err != nil {
			return fmt.Errorf("request %s: %w", name, err)
		}
		req := preset.ToRequest()
		if err := req.Mode.Validate(); err != nil {
			return fmt.Errorf("request %s: %w", name, err)
		}
		if err := req.Method.Validate(); err != nil {
			return fmt.Errorf("request %s: %w", name, err)
		}
	}
	return nil
}

// Request returns a named preset converted to a domain request.
func (c *Config) Request(name string) (refresh.RefreshRequest, error) {
	preset, ok := c.Requests[name]
	if !ok {
		return refresh.RefreshRequest{}, fmt.Errorf("unknown request preset: %s", name)
	}
	return preset.ToRequest(), nil
}
