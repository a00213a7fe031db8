// Package policy guards the destructive phases of a refresh run with
// Rego rules: a built-in set protects system and production schemas,
// and operators can layer additional rules from .rego files.
package policy

import (
	"time"

	"github.com/schemaflow/schemaflow/pkg/refresh"
)

// Severity indicates how a policy violation is treated.
type Severity string

const (
	// SeverityWarning surfaces the violation but lets the run proceed.
	SeverityWarning Severity = "warning"

	// SeverityError blocks the destructive phase.
	SeverityError Severity = "error"
)

// Policy is one named Rego rule set.
type Policy struct {
	// Name identifies the policy.
	Name string

	// Description explains what the policy protects.
	Description string

	// Severity is the default severity of the policy's violations.
	Severity Severity

	// Enabled controls whether the policy is evaluated.
	Enabled bool

	// Rego is the policy source. Violations are collected from the
	// package's deny set.
	Rego string
}

// DecisionInput is the document handed to every policy evaluation.
type DecisionInput struct {
	SourceSchema string `json:"source_schema"`
	TargetSchema string `json:"target_schema"`
	SourceHost   string `json:"source_host"`
	TargetHost   string `json:"target_host"`
	Mode         string `json:"mode"`
	Method       string `json:"method"`
	DryRun       bool   `json:"dry_run"`
}

// inputFromRequest projects the request fields policies may inspect.
// Credential references are deliberately excluded.
func inputFromRequest(req *refresh.RefreshRequest) DecisionInput {
	return DecisionInput{
		SourceSchema: req.SourceSchema,
		TargetSchema: req.TargetSchema,
		SourceHost:   req.Source.Host,
		TargetHost:   req.Target.Host,
		Mode:         string(req.Mode),
		Method:       string(req.Method),
		DryRun:       req.DryRun,
	}
}

// Violation is one policy rule that matched the input.
type Violation struct {
	// Policy names the violated policy.
	Policy string

	// Severity is the effective severity.
	Severity Severity

	// Message is the rule's explanation.
	Message string
}

// Decision is the aggregate outcome of evaluating all policies.
type Decision struct {
	// Allowed is false when any error-severity violation matched.
	Allowed bool

	// Violations lists every matched rule.
	Violations []Violation

	// Warnings carries evaluation problems that did not block.
	Warnings []string

	// EvaluatedAt is when the decision was made.
	EvaluatedAt time.Time
}
