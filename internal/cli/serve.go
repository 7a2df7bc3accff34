package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mcp-bridge/codexec/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bridge's stdio MCP server in the foreground",
	Long: `serve delegates to the same internal/server.Server cmd/bridge runs,
speaking line-delimited JSON-RPC 2.0 on stdin/stdout until the agent
hosting this process closes the pipe.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if activeBridge == nil {
			return fmt.Errorf("bridge not initialized")
		}
		srv := server.New(activeBridge)
		return srv.Serve(os.Stdin, os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
