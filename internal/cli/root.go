package cli

import (
	"github.com/spf13/cobra"

	"github.com/mcp-bridge/codexec/internal/bridge"
)

var (
	jsonOutput bool
	timeoutFlag int
	serversFlag []string
)

// activeBridge is set by Execute before rootCmd.Execute runs, so every
// subcommand's Run closure can reach it without threading it through
// cobra's own argument passing.
var activeBridge *bridge.Bridge

var rootCmd = &cobra.Command{
	Use:   "bridgectl",
	Short: "Operate the code-execution MCP bridge from the command line",
	Long: `bridgectl runs Python snippets through the bridge's sandbox directly,
inspects the downstream server pool and tool catalog, calls the
run_python tool the way an agent would, and can run the bridge's own
stdio MCP server in the foreground.`,
}

// Execute runs the CLI against b, the fully-wired Bridge built by
// cmd/bridgectl's main.
func Execute(b *bridge.Bridge) error {
	activeBridge = b
	return rootCmd.Execute()
}

func formatter() *Formatter {
	if jsonOutput {
		return NewFormatter(FormatJSON)
	}
	return NewFormatter(FormatText)
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().IntVar(&timeoutFlag, "timeout", bridge.DefaultTimeout, "execution timeout in seconds")
	rootCmd.PersistentFlags().StringSliceVar(&serversFlag, "servers", nil, "MCP servers to mount for this execution")
}
