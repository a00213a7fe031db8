package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// loadFromPaths reads operator .rego policy files. Each path may be a
// file or a directory searched non-recursively. Policy names derive
// from the file name; operator policies always block at error severity.
func loadFromPaths(paths []string) ([]Policy, error) {
	var policies []Policy

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("policy path %s: %w", p, err)
		}

		if !info.IsDir() {
			policy, err := loadFile(p)
			if err != nil {
				return nil, err
			}
			policies = append(policies, policy)
			continue
		}

		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, fmt.Errorf("policy dir %s: %w", p, err)
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".rego") {
				continue
			}
			policy, err := loadFile(filepath.Join(p, entry.Name()))
			if err != nil {
				return nil, err
			}
			policies = append(policies, policy)
		}
	}

	return policies, nil
}

func loadFile(path string) (Policy, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy %s: %w", path, err)
	}

	name := strings.TrimSuffix(filepath.Base(path), ".rego")
	return Policy{
		Name:        name,
		Description: fmt.Sprintf("operator policy from %s", path),
		Severity:    SeverityError,
		Enabled:     true,
		Rego:        string(src),
	}, nil
}
