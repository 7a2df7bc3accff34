package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Run a Python snippet through the sandbox directly (no daemon)",
	Long: `run reads Python source from file, or from stdin when file is
omitted or "-", and executes it the same way the run_python tool
would, matching the teacher's --direct flag semantics: no outer
JSON-RPC transport, just the Bridge called in-process.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if activeBridge == nil {
			return fmt.Errorf("bridge not initialized")
		}

		var source []byte
		var err error
		if len(args) == 0 || args[0] == "-" {
			source, err = io.ReadAll(os.Stdin)
		} else {
			source, err = os.ReadFile(args[0])
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, formatter().FormatError(err))
			os.Exit(1)
		}

		resp := activeBridge.RunPython(context.Background(), string(source), serversFlag, timeoutFlag)
		fmt.Println(formatter().FormatToolResponse(resp))
		if resp.IsError {
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
