package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mcp-bridge/codexec/internal/bridge"
)

var callCmd = &cobra.Command{
	Use:   "call <tool> <args.json>",
	Short: "Call a tool the way an agent would, via tools/call argument shape",
	Long: `call reads a JSON object from args.json (code/servers/timeout for
run_python) and invokes the bridge exactly as tools/call would,
grounded on the teacher's "call <server>.<tool> args..." command but
adapted to this bridge's single run_python tool.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if activeBridge == nil {
			return fmt.Errorf("bridge not initialized")
		}

		toolName, argsPath := args[0], args[1]
		if toolName != "run_python" {
			resp := bridge.UnknownToolResponse(toolName)
			fmt.Println(formatter().FormatToolResponse(resp))
			os.Exit(1)
		}

		raw, err := os.ReadFile(argsPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, formatter().FormatError(err))
			os.Exit(1)
		}

		var parsed map[string]interface{}
		if err := json.Unmarshal(raw, &parsed); err != nil {
			fmt.Fprintln(os.Stderr, formatter().FormatError(fmt.Errorf("invalid JSON in %s: %w", argsPath, err)))
			os.Exit(1)
		}

		callArgs, err := bridge.ParseCallToolArgs(parsed)
		if err != nil {
			resp := bridge.ValidationErrorResponse(err)
			fmt.Println(formatter().FormatToolResponse(resp))
			os.Exit(1)
		}

		resp := activeBridge.RunPython(context.Background(), callArgs.Code, callArgs.Servers, callArgs.Timeout)
		fmt.Println(formatter().FormatToolResponse(resp))
		if resp.IsError {
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(callCmd)
}
