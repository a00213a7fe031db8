package policy

// builtinPolicies are always loaded. They encode the invariants that
// make an automated schema drop safe to expose as a self-service tool.
func builtinPolicies() []Policy {
	return []Policy{
		{
			Name:        "protected-schemas",
			Description: "Refuses to drop database-internal schemas",
			Severity:    SeverityError,
			Enabled:     true,
			Rego: `package schemaflow.policies.protected_schemas

import rego.v1

protected := {"SYS", "SYSTEM", "SYSAUX", "DBSNMP", "OUTLN", "AUDSYS", "XDB"}

deny contains msg if {
	upper(input.target_schema) in protected
	msg := sprintf("target schema %s is a database-internal schema and can never be dropped", [input.target_schema])
}
`,
		},
		{
			Name:        "production-naming",
			Description: "Refuses targets whose name marks them as production",
			Severity:    SeverityError,
			Enabled:     true,
			Rego: `package schemaflow.policies.production_naming

import rego.v1

deny contains msg if {
	endswith(upper(input.target_schema), "_PROD")
	msg := sprintf("target schema %s carries the production suffix", [input.target_schema])
}

deny contains msg if {
	startswith(upper(input.target_schema), "PROD_")
	msg := sprintf("target schema %s carries the production prefix", [input.target_schema])
}
`,
		},
		{
			Name:        "self-overwrite",
			Description: "Refuses runs that would drop the schema being exported",
			Severity:    SeverityError,
			Enabled:     true,
			Rego: `package schemaflow.policies.self_overwrite

import rego.v1

deny contains msg if {
	input.source_host == input.target_host
	upper(input.source_schema) == upper(input.target_schema)
	msg := sprintf("refresh would drop its own source schema %s on %s", [input.source_schema, input.source_host])
}
`,
		},
	}
}
