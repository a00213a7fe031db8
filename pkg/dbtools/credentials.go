package dbtools

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/schemaflow/schemaflow/pkg/refresh"
)

// Credential is a resolved database login. Values live only for the
// duration of one command build and are never logged.
type Credential struct {
	Username string
	Password string
}

// CredentialResolver turns an opaque credential reference into a usable
// login. The secrets store itself is an external collaborator.
type CredentialResolver interface {
	Resolve(ctx context.Context, ref refresh.CredentialRef) (Credential, error)
}

// EnvCredentialResolver resolves references of the form "env://PREFIX"
// against the environment variables PREFIX_USER and PREFIX_PASSWORD.
type EnvCredentialResolver struct{}

// NewEnvCredentialResolver creates the environment-backed resolver.
func NewEnvCredentialResolver() *EnvCredentialResolver {
	return &EnvCredentialResolver{}
}

// Resolve looks up the referenced login in the environment.
func (r *EnvCredentialResolver) Resolve(ctx context.Context, ref refresh.CredentialRef) (Credential, error) {
	raw := string(ref)
	prefix, ok := strings.CutPrefix(raw, "env://")
	if !ok {
		return Credential{}, fmt.Errorf("unsupported credential reference scheme")
	}

	user := os.Getenv(prefix + "_USER")
	pass := os.Getenv(prefix + "_PASSWORD")
	if user == "" || pass == "" {
		return Credential{}, fmt.Errorf("credential reference %s_USER/%s_PASSWORD not set", prefix, prefix)
	}
	return Credential{Username: user, Password: pass}, nil
}
