package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcp-bridge/codexec/internal/config"
)

func TestLoadPreferences_MissingFileReturnsDefaults(t *testing.T) {
	prefs, err := config.LoadPreferences(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, config.DefaultPreferences(), prefs)
}

func TestLoadPreferences_ParsesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".bridgerc.toml")
	contents := "default_timeout = 60\ndefault_servers = [\"fs\", \"search\"]\noutput_mode = \"toon\"\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	prefs, err := config.LoadPreferences(path)
	require.NoError(t, err)
	assert.Equal(t, 60, prefs.DefaultTimeout)
	assert.Equal(t, []string{"fs", "search"}, prefs.DefaultServers)
	assert.Equal(t, "toon", prefs.OutputMode)
}
