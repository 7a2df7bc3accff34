// Package config discovers downstream MCP server specs from
// servers.yaml and CLI-level preferences from .bridgerc.toml, the one
// collapsed discovery path this repo keeps (see DESIGN.md's Open
// Question note). Grounded on the teacher's
// internal/domain/profile.Store.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/mcp-bridge/codexec/internal/mcpclient"
)

// ServerEntry is one servers.yaml entry, pre-ServerSpec-conversion so
// the YAML tags stay close to the file format instead of ServerSpec's
// Go-idiomatic field names.
type ServerEntry struct {
	Name    string            `yaml:"name"`
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`
	Cwd     string            `yaml:"cwd"`
	Auth    *AuthEntry        `yaml:"auth"`
}

// AuthEntry is the YAML shape of mcpclient.AuthSpec.
type AuthEntry struct {
	Type         string   `yaml:"type"`
	EnvVar       string   `yaml:"env_var"`
	AuthURL      string   `yaml:"auth_url"`
	TokenURL     string   `yaml:"token_url"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Scopes       []string `yaml:"scopes"`
	TokenEnvVar  string   `yaml:"token_env_var"`
}

// ServersFile is the top-level servers.yaml document.
type ServersFile struct {
	Servers []ServerEntry `yaml:"servers"`
}

// ServerStore loads {name -> mcpclient.ServerSpec} from a servers.yaml
// file, matching bridge.Discoverer.
type ServerStore struct {
	Path string
}

// NewServerStore builds a store reading from path. An empty path
// defaults to "./servers.yaml".
func NewServerStore(path string) *ServerStore {
	if path == "" {
		path = "servers.yaml"
	}
	return &ServerStore{Path: path}
}

// Discover reads and parses the servers.yaml file on every call
// (matching the original source's discover_servers being a no-op
// cache-filling call rather than a long-lived watch); a missing file
// yields an empty set rather than an error, matching Store.Load's
// os.IsNotExist tolerance.
func (s *ServerStore) Discover(ctx context.Context) (map[string]mcpclient.ServerSpec, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]mcpclient.ServerSpec{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", s.Path, err)
	}

	var file ServersFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.Path, err)
	}

	specs := make(map[string]mcpclient.ServerSpec, len(file.Servers))
	for _, entry := range file.Servers {
		if entry.Name == "" {
			return nil, fmt.Errorf("%s: server entry missing 'name'", s.Path)
		}
		spec := mcpclient.ServerSpec{
			Name:    entry.Name,
			Command: entry.Command,
			Args:    entry.Args,
			Env:     entry.Env,
			Cwd:     entry.Cwd,
		}
		if entry.Cwd != "" && !filepath.IsAbs(entry.Cwd) {
			if abs, err := filepath.Abs(entry.Cwd); err == nil {
				spec.Cwd = abs
			}
		}
		if entry.Auth != nil {
			spec.Auth = &mcpclient.AuthSpec{
				Type:         mcpclient.AuthType(entry.Auth.Type),
				EnvVar:       entry.Auth.EnvVar,
				AuthURL:      entry.Auth.AuthURL,
				TokenURL:     entry.Auth.TokenURL,
				ClientID:     entry.Auth.ClientID,
				ClientSecret: entry.Auth.ClientSecret,
				Scopes:       entry.Auth.Scopes,
				TokenEnvVar:  entry.Auth.TokenEnvVar,
			}
		}
		specs[entry.Name] = spec
	}
	return specs, nil
}
