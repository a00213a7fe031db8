package dbtools

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/schemaflow/schemaflow/pkg/refresh"
	"github.com/schemaflow/schemaflow/pkg/telemetry"
)

// SQLRunner drives the SQL execution facility against the target
// database: session termination, the destructive schema drop, and the
// post-import validation query.
type SQLRunner struct {
	runner CommandRunner
	creds  CredentialResolver
	config Config
	logger *telemetry.Logger
}

// NewSQLRunner creates the SQL collaborator.
func NewSQLRunner(runner CommandRunner, creds CredentialResolver, config Config, logger *telemetry.Logger) *SQLRunner {
	config.applyDefaults()
	return &SQLRunner{
		runner: runner,
		creds:  creds,
		config: config,
		logger: logger.NewComponentLogger("sqlrunner"),
	}
}

// runSQL executes a SQL script against the target over the external SQL
// tool. WHENEVER SQLERROR maps SQL failures onto the exit status the
// classifier inspects.
func (s *SQLRunner) runSQL(ctx context.Context, req *refresh.RefreshRequest, script string) (refresh.RawResult, error) {
	cred, err := s.creds.Resolve(ctx, req.TargetCredentials)
	if err != nil {
		return refresh.RawResult{}, fmt.Errorf("resolve target credentials: %w", err)
	}

	cmd := fmt.Sprintf("%s -S %s <<'SQLEOF'\nwhenever sqlerror exit sql.sqlcode\nset heading off feedback off\n%s\nexit\nSQLEOF",
		s.config.SQLBinary, connectString(cred, req.Target), script)

	return s.runner.RunOnHost(ctx, req.Target.Host, cmd)
}

// DropSchema drops the target schema with cascade.
func (s *SQLRunner) DropSchema(ctx context.Context, req *refresh.RefreshRequest) (refresh.RawResult, error) {
	s.logger.WithHost(req.Target.Host).Warnf("dropping schema %s", req.TargetSchema)
	script := fmt.Sprintf("drop user %s cascade;", req.TargetSchema)
	return s.runSQL(ctx, req, script)
}

// KillSessions terminates active sessions owned by the target schema so
// the drop does not block on open connections. Best-effort.
func (s *SQLRunner) KillSessions(ctx context.Context, req *refresh.RefreshRequest) (refresh.RawResult, error) {
	s.logger.WithHost(req.Target.Host).Infof("terminating sessions for schema %s", req.TargetSchema)
	script := fmt.Sprintf(`begin
  for s in (select sid, serial# from v$session where username = upper('%s')) loop
    execute immediate 'alter system kill session ''' || s.sid || ',' || s.serial# || ''' immediate';
  end loop;
end;
/`, req.TargetSchema)
	return s.runSQL(ctx, req, script)
}

// CountObjects runs the validation query counting objects owned by the
// target schema. The count is parsed from the query output; it is only
// meaningful when the raw result classifies as success.
func (s *SQLRunner) CountObjects(ctx context.Context, req *refresh.RefreshRequest) (refresh.RawResult, int, error) {
	script := fmt.Sprintf("select count(*) from dba_objects where owner = upper('%s');", req.TargetSchema)

	result, err := s.runSQL(ctx, req, script)
	if err != nil {
		return result, 0, err
	}
	if result.ExitStatus != 0 {
		return result, 0, nil
	}

	count, err := parseCount(result.Output)
	if err != nil {
		return result, 0, fmt.Errorf("parse validation output: %w", err)
	}
	return result, count, nil
}

var countPattern = regexp.MustCompile(`^\s*(\d+)\s*$`)

// parseCount extracts the single numeric value from the validation
// query output, tolerating banner and whitespace lines around it.
func parseCount(output string) (int, error) {
	for _, line := range strings.Split(output, "\n") {
		if m := countPattern.FindStringSubmatch(line); m != nil {
			return strconv.Atoi(m[1])
		}
	}
	return 0, fmt.Errorf("no count found in output %q", output)
}
