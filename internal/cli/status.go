package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

type statusRow struct {
	Server string `json:"server"`
	Tools  int    `json:"tools"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which downstream servers are open and their cached tool counts",
	Run: func(cmd *cobra.Command, args []string) {
		if activeBridge == nil {
			fmt.Fprintln(os.Stderr, formatter().FormatError(fmt.Errorf("bridge not initialized")))
			os.Exit(1)
		}

		names := activeBridge.Pool.Names()
		rows := make([]statusRow, 0, len(names))
		for _, name := range names {
			count := 0
			if entry, ok := activeBridge.Catalog.Snapshot(name); ok {
				count = len(entry.Tools)
			}
			rows = append(rows, statusRow{Server: name, Tools: count})
		}

		if jsonOutput {
			data, _ := json.MarshalIndent(rows, "", "  ")
			fmt.Println(string(data))
			return
		}

		color.Cyan("Bridge Status:")
		fmt.Printf("  Default timeout: %ds\n", timeoutFlag)
		fmt.Printf("  Open servers:    %d\n", len(rows))

		table := tablewriter.NewTable(os.Stdout,
			tablewriter.WithHeader([]string{"Server", "Cached Tools"}),
		)
		for _, row := range rows {
			table.Append([]string{row.Server, fmt.Sprintf("%d", row.Tools)})
		}
		table.Render()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
