package refresh

import "strings"

// Classifier maps a raw external-tool result (exit status plus captured
// output) to a PhaseStatus. It is the single place that knows which
// diagnostic texts mark a failed invocation as a benign no-op, so repeated
// runs stay safe without retrying already-completed irreversible work.
//
// The match tables are substring sets against lowercased output. They are
// English-locale specific; deployments running the external tools in other
// locales must extend the tables.
type Classifier struct {
	// exportBenign marks export failures caused by the dump artifact
	// already existing from a prior partial run.
	exportBenign []string

	// dropBenign marks drop failures caused by the target schema or
	// principal already being absent.
	dropBenign []string
}

// NewClassifier returns a classifier with the default match tables.
func NewClassifier() *Classifier {
	return &Classifier{
		exportBenign: []string{
			"already exists",
			"ora-27038", // file exists at the dump destination
			"ora-31641", // unable to create dump file (duplicate)
		},
		dropBenign: []string{
			"does not exist",
			"ora-01918", // user does not exist
			"ora-04043", // object does not exist
		},
	}
}

// AddExportBenign appends extra benign-text matches for the export phase.
func (c *Classifier) AddExportBenign(substrings ...string) {
	c.exportBenign = append(c.exportBenign, lowered(substrings)...)
}

// AddDropBenign appends extra benign-text matches for the drop phase.
func (c *Classifier) AddDropBenign(substrings ...string) {
	c.dropBenign = append(c.dropBenign, lowered(substrings)...)
}

// Classify maps one raw result to a status.
//
// Exit status zero is always Success. A non-zero kill is always a benign
// no-op: session termination is best-effort and the absence of active
// sessions is not an error. Export and drop failures are benign when the
// captured text matches the phase's table. Everything else, including a
// non-zero status with empty output, is Fatal.
func (c *Classifier) Classify(phase Phase, exitStatus int, captured string) PhaseStatus {
	if exitStatus == 0 {
		return StatusSuccess
	}

	if phase == PhaseKill {
		return StatusBenignNoOp
	}

	// Fail safe: nothing to match against.
	if strings.TrimSpace(captured) == "" {
		return StatusFatal
	}

	text := strings.ToLower(captured)
	switch phase {
	case PhaseExport:
		if matchesAny(text, c.exportBenign) {
			return StatusBenignNoOp
		}
	case PhaseDrop:
		if matchesAny(text, c.dropBenign) {
			return StatusBenignNoOp
		}
	}

	return StatusFatal
}

func matchesAny(text string, substrings []string) bool {
	for _, s := range substrings {
		if strings.Contains(text, s) {
			return true
		}
	}
	return false
}

func lowered(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
