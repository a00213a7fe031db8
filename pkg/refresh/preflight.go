package refresh

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/schemaflow/schemaflow/pkg/telemetry"
)

// PreflightValidator runs every safety check before the orchestrator takes
// any destructive action. Checks are independent; all of them run and all
// failures are reported together.
type PreflightValidator struct {
	validate *validator.Validate
	probe    HostProbe
	policy   SafetyPolicy
	logger   *telemetry.Logger

	// minFreeBytes is the required free space at the working directory.
	minFreeBytes int64
}

// CheckResult is one preflight check outcome.
type CheckResult struct {
	// Name identifies the check.
	Name string `json:"name"`

	// Passed is the check verdict.
	Passed bool `json:"passed"`

	// Detail explains a failure; empty on pass.
	Detail string `json:"detail,omitempty"`
}

// DefaultMinFreeBytes requires 1 GiB free in the artifact working
// directory before export or import proceeds.
const DefaultMinFreeBytes = int64(1 << 30)

// NewPreflightValidator creates a preflight validator. A zero minFreeBytes
// selects DefaultMinFreeBytes.
func NewPreflightValidator(probe HostProbe, policy SafetyPolicy, minFreeBytes int64, logger *telemetry.Logger) *PreflightValidator {
	if minFreeBytes <= 0 {
		minFreeBytes = DefaultMinFreeBytes
	}
	return &PreflightValidator{
		validate:     validator.New(),
		probe:        probe,
		policy:       policy,
		minFreeBytes: minFreeBytes,
		logger:       logger.NewComponentLogger("preflight"),
	}
}

// Run executes every check. The returned PhaseResult is Fatal when any
// check failed; the per-check results are also returned for reporting.
func (p *PreflightValidator) Run(ctx context.Context, req *RefreshRequest) (PhaseResult, []CheckResult) {
	checks := []CheckResult{
		p.checkRequest(req),
	}

	// The source endpoint matters in every mode except import-only.
	if req.Mode != ModeImportOnly {
		checks = append(checks, p.checkReachable(ctx, "source-reachable", req.Source))
	}

	// The target endpoint matters in every mode except export-only, which
	// terminates before touching it. Destructive policy is consulted for
	// the same modes because drop/import only run against a target.
	if req.Mode != ModeExportOnly {
		checks = append(checks, p.checkReachable(ctx, "target-reachable", req.Target))
		checks = append(checks, p.checkPolicy(ctx, req))
	}

	checks = append(checks, p.checkFreeSpace(ctx, req))

	var failures []string
	for _, c := range checks {
		if c.Passed {
			p.logger.WithField("check", c.Name).Debug("preflight check passed")
			continue
		}
		p.logger.WithField("check", c.Name).Warnf("preflight check failed: %s", c.Detail)
		failures = append(failures, fmt.Sprintf("%s: %s", c.Name, c.Detail))
	}

	result := PhaseResult{Phase: PhasePreflight, Status: StatusSuccess}
	if len(failures) > 0 {
		result.Status = StatusFatal
		result.Diagnostics = strings.Join(failures, "; ")
	}
	return result, checks
}

// checkRequest validates required fields and bounded values on the request.
func (p *PreflightValidator) checkRequest(req *RefreshRequest) CheckResult {
	check := CheckResult{Name: "request-fields", Passed: true}

	if err := p.validate.Struct(req); err != nil {
		check.Passed = false
		check.Detail = err.Error()
		return check
	}
	if err := req.Mode.Validate(); err != nil {
		check.Passed = false
		check.Detail = err.Error()
		return check
	}
	if err := req.Method.Validate(); err != nil {
		check.Passed = false
		check.Detail = err.Error()
	}
	return check
}

func (p *PreflightValidator) checkReachable(ctx context.Context, name string, endpoint Endpoint) CheckResult {
	check := CheckResult{Name: name, Passed: true}
	if p.probe == nil {
		return check
	}
	if err := p.probe.Reachable(ctx, endpoint); err != nil {
		check.Passed = false
		check.Detail = fmt.Sprintf("%s unreachable: %v", endpoint.Address(), err)
	}
	return check
}

func (p *PreflightValidator) checkPolicy(ctx context.Context, req *RefreshRequest) CheckResult {
	check := CheckResult{Name: "destructive-policy", Passed: true}
	if p.policy == nil {
		return check
	}
	if err := p.policy.CheckDestructive(ctx, req); err != nil {
		check.Passed = false
		check.Detail = err.Error()
	}
	return check
}

func (p *PreflightValidator) checkFreeSpace(ctx context.Context, req *RefreshRequest) CheckResult {
	check := CheckResult{Name: "working-dir-space", Passed: true}
	if p.probe == nil {
		return check
	}

	// Export writes the dump on the source host; import reads it on the
	// target host. Check whichever hosts this mode touches.
	hosts := []string{}
	if req.Mode != ModeImportOnly {
		hosts = append(hosts, req.Source.Host)
	}
	if req.Mode != ModeExportOnly && !req.HostsEqual() {
		hosts = append(hosts, req.Target.Host)
	}

	for _, host := range hosts {
		free, err := p.probe.FreeSpace(ctx, host, req.WorkDir)
		if err != nil {
			check.Passed = false
			check.Detail = fmt.Sprintf("cannot determine free space on %s: %v", host, err)
			return check
		}
		if free < p.minFreeBytes {
			check.Passed = false
			check.Detail = fmt.Sprintf("%s has %d bytes free at %s, need %d", host, free, req.WorkDir, p.minFreeBytes)
			return check
		}
	}
	return check
}
