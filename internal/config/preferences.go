package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Preferences is the CLI-level preference layer read from
// .bridgerc.toml: default timeout, servers and output mode. Nothing in
// internal/cli loads it; the CLI's flags keep their own defaults.
// Kept disjoint from ServersFile's content per DESIGN.md's discovery
// Open Question note.
type Preferences struct {
	DefaultTimeout int      `toml:"default_timeout"`
	DefaultServers []string `toml:"default_servers"`
	OutputMode     string   `toml:"output_mode"`
}

// DefaultPreferences mirrors the bridge's own env-var defaults so a
// missing .bridgerc.toml behaves identically to one with no overrides.
func DefaultPreferences() Preferences {
	return Preferences{DefaultTimeout: 30, OutputMode: "compact"}
}

// LoadPreferences reads .bridgerc.toml from path, falling back to
// DefaultPreferences when the file does not exist.
func LoadPreferences(path string) (Preferences, error) {
	if path == "" {
		path = ".bridgerc.toml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultPreferences(), nil
		}
		return Preferences{}, fmt.Errorf("read %s: %w", path, err)
	}

	prefs := DefaultPreferences()
	if err := toml.Unmarshal(data, &prefs); err != nil {
		return Preferences{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return prefs, nil
}
