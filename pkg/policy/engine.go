package policy

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/rego"

	"github.com/schemaflow/schemaflow/pkg/refresh"
	"github.com/schemaflow/schemaflow/pkg/telemetry"
)

// Engine evaluates the loaded policies against a refresh request. It
// implements the safety check consulted before any destructive phase.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
	logger   *telemetry.Logger
}

// compiledPolicy pairs a policy with its prepared deny query.
type compiledPolicy struct {
	policy   Policy
	query    rego.PreparedEvalQuery
	compiled time.Time
}

// NewEngine creates a policy engine with the built-in policies loaded.
func NewEngine(logger *telemetry.Logger) (*Engine, error) {
	e := &Engine{
		policies: make(map[string]*compiledPolicy),
		logger:   logger.NewComponentLogger("policy"),
	}

	for _, p := range builtinPolicies() {
		if err := e.compileAndStore(context.Background(), p); err != nil {
			return nil, fmt.Errorf("failed to compile built-in policy %s: %w", p.Name, err)
		}
	}
	return e, nil
}

// LoadPolicies adds operator-supplied .rego policies from the given
// paths on top of the built-in set.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	policies, err := loadFromPaths(paths)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}

	for _, p := range policies {
		if err := e.compileAndStore(ctx, p); err != nil {
			return fmt.Errorf("failed to compile policy %s: %w", p.Name, err)
		}
	}

	e.logger.Infof("loaded %d operator policies", len(policies))
	return nil
}

// compileAndStore prepares the policy's deny query for repeated
// evaluation and registers it.
func (e *Engine) compileAndStore(ctx context.Context, p Policy) error {
	packageName := extractPackageName(p.Rego)
	query, err := rego.New(
		rego.Module(p.Name, p.Rego),
		rego.Query(fmt.Sprintf("data.%s.deny", packageName)),
	).PrepareForEval(ctx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.policies[p.Name] = &compiledPolicy{
		policy:   p,
		query:    query,
		compiled: time.Now(),
	}
	return nil
}

// Evaluate runs every enabled policy against the request.
func (e *Engine) Evaluate(ctx context.Context, req *refresh.RefreshRequest) (*Decision, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	input := inputFromRequest(req)
	decision := &Decision{Allowed: true, EvaluatedAt: time.Now()}

	for _, cp := range e.policies {
		if !cp.policy.Enabled {
			continue
		}

		results, err := cp.query.Eval(ctx, rego.EvalInput(input))
		if err != nil {
			e.logger.WithError(err).Errorf("policy %s evaluation failed", cp.policy.Name)
			decision.Warnings = append(decision.Warnings,
				fmt.Sprintf("policy %s evaluation failed: %v", cp.policy.Name, err))
			continue
		}

		for _, result := range results {
			for _, expr := range result.Expressions {
				denySet, ok := expr.Value.([]interface{})
				if !ok {
					continue
				}
				for _, d := range denySet {
					decision.Violations = append(decision.Violations, makeViolation(cp.policy, d))
				}
			}
		}
	}

	for i := range decision.Violations {
		if decision.Violations[i].Severity == SeverityError {
			decision.Allowed = false
			break
		}
	}
	return decision, nil
}

// CheckDestructive is the safety gate consulted before the drop phase.
// A blocking violation is returned as a policy-class error naming every
// matched rule.
func (e *Engine) CheckDestructive(ctx context.Context, req *refresh.RefreshRequest) error {
	decision, err := e.Evaluate(ctx, req)
	if err != nil {
		return refresh.NewPolicyError("policy evaluation failed", err)
	}
	if decision.Allowed {
		for i := range decision.Violations {
			e.logger.Warnf("policy warning: %s: %s",
				decision.Violations[i].Policy, decision.Violations[i].Message)
		}
		return nil
	}

	var msgs []string
	for i := range decision.Violations {
		if decision.Violations[i].Severity == SeverityError {
			msgs = append(msgs, fmt.Sprintf("%s: %s",
				decision.Violations[i].Policy, decision.Violations[i].Message))
		}
	}
	return refresh.NewPolicyError(strings.Join(msgs, "; "), nil)
}

// ListPolicies returns all registered policies.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.policies))
	for _, cp := range e.policies {
		policies = append(policies, cp.policy)
	}
	return policies
}

// makeViolation converts one deny result into a Violation. Rules may
// return a plain message string or an object with message/severity.
func makeViolation(p Policy, result interface{}) Violation {
	v := Violation{Policy: p.Name, Severity: p.Severity}

	switch r := result.(type) {
	case string:
		v.Message = r
	case map[string]interface{}:
		if msg, ok := r["message"].(string); ok {
			v.Message = msg
		}
		if sev, ok := r["severity"].(string); ok {
			v.Severity = Severity(sev)
		}
	default:
		v.Message = fmt.Sprintf("%v", result)
	}
	return v
}

// extractPackageName pulls the package path out of Rego source.
func extractPackageName(src string) string {
	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "package ") {
			parts := strings.Fields(trimmed)
			if len(parts) >= 2 {
				return parts[1]
			}
		}
	}
	return "schemaflow.policies"
}
