// Package cli implements bridgectl, the operator-facing companion to
// the stdio MCP server: run code directly, inspect pool/catalog
// status, and call the run_python tool the same way an agent would.
// Grounded on the teacher's internal/cli/commands and internal/cli/output.
package cli

import (
	"encoding/json"
	"fmt"

	"github.com/fatih/color"

	"github.com/mcp-bridge/codexec/internal/bridge"
)

// OutputFormat selects how a Formatter renders a ToolResponse,
// grounded on output.OutputFormat (FormatText/FormatJSON/FormatRaw).
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
)

// Formatter renders a bridge.ToolResponse for terminal display,
// grounded on output.Formatter's text/JSON split and its use of
// fatih/color for the error path.
type Formatter struct {
	Format OutputFormat
}

func NewFormatter(format OutputFormat) *Formatter {
	return &Formatter{Format: format}
}

func (f *Formatter) FormatToolResponse(resp bridge.ToolResponse) string {
	if f.Format == FormatJSON {
		payload := map[string]interface{}{
			"text":              resp.Text,
			"structuredContent": resp.StructuredContent,
			"isError":           resp.IsError,
		}
		data, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return fmt.Sprintf("error formatting response: %v", err)
		}
		return string(data)
	}
	if resp.IsError {
		return color.RedString("Error: ") + resp.Text
	}
	return resp.Text
}

func (f *Formatter) FormatError(err error) string {
	if f.Format == FormatJSON {
		data, _ := json.MarshalIndent(map[string]string{"error": err.Error()}, "", "  ")
		return string(data)
	}
	return color.RedString("Error: ") + err.Error()
}
