package secrets

import (
	"context"
	"fmt"

	"github.com/mcp-bridge/codexec/internal/mcpclient"
)

// TokenSource resolves a cached-or-fresh OAuth2 access token for spec,
// implemented by internal/oauthutil. Kept as an interface so secrets
// never imports oauthutil (oauthutil depends on secrets for token
// caching, not vice versa).
type TokenSource interface {
	Token(ctx context.Context, spec mcpclient.ServerSpec) (string, error)
}

// Resolver implements mcpclient.CredentialResolver, turning a
// ServerSpec's AuthSpec into the env vars Pool.Open injects before
// spawning the session. Grounded on the teacher's
// CredentialManager.GetCredentialsForTool.
type Resolver struct {
	Store  Store
	OAuth  TokenSource
}

// NewResolver builds a Resolver. oauth may be nil if no server in
// this deployment uses AuthOAuth2.
func NewResolver(store Store, oauth TokenSource) *Resolver {
	return &Resolver{Store: store, OAuth: oauth}
}

// Resolve returns the env vars to merge into spec.Env.
func (r *Resolver) Resolve(ctx context.Context, spec mcpclient.ServerSpec) (map[string]string, error) {
	env := map[string]string{}
	if spec.Auth == nil {
		return env, nil
	}

	switch spec.Auth.Type {
	case mcpclient.AuthNone, "":
		return env, nil

	case mcpclient.AuthAPIKey:
		if spec.Auth.EnvVar == "" {
			return env, nil
		}
		secret, ok, err := r.Store.Get(idFor(spec.Name, spec.Auth.EnvVar))
		if err != nil {
			return nil, fmt.Errorf("read credential for %s: %w", spec.Name, err)
		}
		if ok {
			env[spec.Auth.EnvVar] = secret
		}
		return env, nil

	case mcpclient.AuthOAuth2:
		if r.OAuth == nil {
			return nil, fmt.Errorf("server %s requires oauth2 but no token source is configured", spec.Name)
		}
		token, err := r.OAuth.Token(ctx, spec)
		if err != nil {
			return nil, fmt.Errorf("acquire oauth token for %s: %w", spec.Name, err)
		}
		envVar := spec.Auth.TokenEnvVar
		if envVar == "" {
			envVar = "OAUTH_TOKEN"
		}
		env[envVar] = token
		return env, nil

	default:
		return nil, fmt.Errorf("server %s: unknown auth type %q", spec.Name, spec.Auth.Type)
	}
}
