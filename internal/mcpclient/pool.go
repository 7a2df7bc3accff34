package mcpclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/mcp-bridge/codexec/internal/logger"
)

// CredentialResolver injects env vars derived from a ServerSpec's
// AuthSpec just before a session is spawned. Implemented by
// internal/secrets and internal/oauthutil; kept as an interface here
// so mcpclient never imports those packages.
type CredentialResolver interface {
	Resolve(ctx context.Context, spec ServerSpec) (map[string]string, error)
}

// Pool keeps at most one ClientSession alive per ServerSpec.Name,
// matching the teacher's DiscoveryEngine.activeServers map. Grounded
// on discovery.DiscoveryEngine's Add/Remove/ListActive lifecycle.
type Pool struct {
	mu         sync.Mutex
	sessions   map[string]ClientSession
	newSession func(ServerSpec) ClientSession
	creds      CredentialResolver
}

// NewPool builds an empty pool. creds may be nil for specs without
// AuthSpec.
func NewPool(creds CredentialResolver) *Pool {
	return &Pool{
		sessions:   make(map[string]ClientSession),
		newSession: func(spec ServerSpec) ClientSession { return NewStdioSession(spec) },
		creds:      creds,
	}
}

// Open returns the running session for spec, starting one if none
// exists yet. Idempotent: a second Open for the same spec.Name returns
// the already-running session without re-spawning.
func (p *Pool) Open(ctx context.Context, spec ServerSpec) (ClientSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.sessions[spec.Name]; ok {
		return existing, nil
	}

	if spec.Auth != nil && p.creds != nil {
		env, err := p.creds.Resolve(ctx, spec)
		if err != nil {
			return nil, fmt.Errorf("resolve credentials for %s: %w", spec.Name, err)
		}
		if spec.Env == nil {
			spec.Env = make(map[string]string, len(env))
		}
		for k, v := range env {
			spec.Env[k] = v
		}
	}

	session := p.newSession(spec)
	starter, ok := session.(interface{ Start(context.Context) error })
	if ok {
		if err := starter.Start(ctx); err != nil {
			return nil, err
		}
	}

	p.sessions[spec.Name] = session
	logger.AddLog("INFO", "opened MCP session", logger.F("server", spec.Name), logger.F("command", spec.Command))
	return session, nil
}

// Get returns the session for name if one is already open.
func (p *Pool) Get(name string) (ClientSession, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sessions[name]
	return s, ok
}

// Close stops and removes the session for name, if any.
func (p *Pool) Close(name string) error {
	p.mu.Lock()
	session, ok := p.sessions[name]
	delete(p.sessions, name)
	p.mu.Unlock()

	if !ok {
		return nil
	}
	logger.AddLog("INFO", "closing MCP session", logger.F("server", name))
	return session.Stop()
}

// CloseAll stops every open session. Called on process shutdown by the
// cmd/bridge and cmd/bridgectl mains; sessions stay open across
// RunPython calls.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	names := make([]string, 0, len(p.sessions))
	for name := range p.sessions {
		names = append(names, name)
	}
	p.mu.Unlock()

	for _, name := range names {
		p.Close(name)
	}
}

// Names returns the currently open session names.
func (p *Pool) Names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(p.sessions))
	for name := range p.sessions {
		names = append(names, name)
	}
	return names
}
