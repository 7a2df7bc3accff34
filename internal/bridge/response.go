package bridge

import (
	"encoding/json"
	"os"
	"strings"
)

var noiseStreamTokens = map[string]bool{"()": true}

// ToolResponse is the Go analogue of the original source's
// CallToolResult: a single rendered text block plus a structured
// payload used by callers that want the parsed shape instead of text.
type ToolResponse struct {
	Text              string
	StructuredContent map[string]interface{}
	IsError           bool
}

func splitOutputLines(stream string) []string {
	if stream == "" {
		return nil
	}
	return strings.Split(strings.TrimRight(stream, "\n"), "\n")
}

func filterStreamLines(lines []string) []string {
	filtered := make([]string, 0, len(lines))
	for _, line := range lines {
		stripped := strings.TrimSpace(line)
		if stripped == "" || noiseStreamTokens[stripped] {
			continue
		}
		filtered = append(filtered, line)
	}
	return filtered
}

func isEmptyField(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []string:
		return len(v) == 0
	case []interface{}:
		return len(v) == 0
	case map[string]interface{}:
		return len(v) == 0
	default:
		return false
	}
}

type responseInputs struct {
	Status        string
	Summary       string
	ExitCode      *int
	Stdout        string
	Stderr        string
	Servers       []string
	Error         string
	TimeoutSecs   *int
}

// buildResponsePayload is the structured payload shared by compact and
// TOON rendering, grounded on _build_response_payload/_is_empty_field.
func buildResponsePayload(in responseInputs) map[string]interface{} {
	summaryLower := strings.ToLower(strings.TrimSpace(in.Summary))
	payload := map[string]interface{}{
		"status":  in.Status,
		"summary": in.Summary,
	}

	if in.ExitCode != nil {
		payload["exitCode"] = *in.ExitCode
	}
	if len(in.Servers) > 0 {
		payload["servers"] = in.Servers
	}

	stdoutLines := filterStreamLines(splitOutputLines(in.Stdout))
	if len(stdoutLines) > 0 {
		payload["stdout"] = stdoutLines
	}

	stderrLines := filterStreamLines(splitOutputLines(in.Stderr))
	if len(stderrLines) > 0 {
		payload["stderr"] = stderrLines
	}

	if in.Error != "" {
		payload["error"] = in.Error
	}
	if in.TimeoutSecs != nil {
		payload["timeoutSeconds"] = *in.TimeoutSecs
	}

	if strings.ToLower(in.Status) == "success" &&
		payload["stdout"] == nil && payload["stderr"] == nil &&
		summaryLower == "success" {
		payload["summary"] = "Success (no output)"
	}

	for key, value := range payload {
		if isEmptyField(value) {
			delete(payload, key)
		}
	}
	return payload
}

func buildCompactStructuredPayload(payload map[string]interface{}) map[string]interface{} {
	compact := map[string]interface{}{}
	status, _ := payload["status"].(string)
	exitCode, hasExitCode := payload["exitCode"]

	if status != "" && strings.ToLower(status) != "success" {
		compact["status"] = status
	}
	if hasExitCode && exitCode != 0 {
		compact["exitCode"] = exitCode
	}
	if v, ok := payload["stdout"]; ok {
		compact["stdout"] = v
	}
	if v, ok := payload["stderr"]; ok {
		compact["stderr"] = v
	}
	if v, ok := payload["servers"]; ok {
		compact["servers"] = v
	}
	if v, ok := payload["timeoutSeconds"]; ok {
		compact["timeoutSeconds"] = v
	}
	if v, ok := payload["error"]; ok {
		compact["error"] = v
	}

	summary, hasSummary := payload["summary"]
	if hasSummary {
		_, hasCompactStdout := compact["stdout"]
		if strings.ToLower(status) != "success" || !hasCompactStdout {
			compact["summary"] = summary
		}
	}

	if len(compact) == 0 {
		for _, key := range []string{"status", "summary"} {
			if v, ok := payload[key]; ok {
				compact[key] = v
			}
		}
	}
	return compact
}

func renderCompactOutput(payload map[string]interface{}) string {
	var lines []string

	var stdoutLines []string
	if v, ok := payload["stdout"].([]string); ok {
		stdoutLines = v
	}
	var stderrLines []string
	if v, ok := payload["stderr"].([]string); ok {
		stderrLines = v
	}

	if len(stdoutLines) > 0 {
		lines = append(lines, strings.Join(stdoutLines, "\n"))
	}
	if len(stderrLines) > 0 {
		lines = append(lines, "stderr:\n"+strings.Join(stderrLines, "\n"))
	}

	status, _ := payload["status"].(string)
	exitCode, hasExitCode := payload["exitCode"]
	errMsg, _ := payload["error"].(string)

	if len(lines) == 0 {
		if summary, ok := payload["summary"].(string); ok && summary != "" {
			lines = append(lines, summary)
		}
	}

	if errMsg != "" && (len(lines) == 0 || strings.ToLower(status) != "error") {
		lines = append(lines, "error: "+errMsg)
	}

	if hasExitCode && exitCode != 0 {
		lines = append([]string{formatExit(exitCode)}, lines...)
	}

	if status != "" && strings.ToLower(status) != "success" {
		lines = append([]string{"status: " + status}, lines...)
	}

	var nonEmpty []string
	for _, l := range lines {
		if l != "" {
			nonEmpty = append(nonEmpty, l)
		}
	}
	text := strings.TrimSpace(strings.Join(nonEmpty, "\n"))
	if text != "" {
		return text
	}
	if status != "" {
		return status
	}
	if summary, ok := payload["summary"].(string); ok && strings.TrimSpace(summary) != "" {
		return strings.TrimSpace(summary)
	}
	return "success"
}

func formatExit(exitCode interface{}) string {
	b, _ := json.Marshal(exitCode)
	return "exit: " + string(b)
}

// renderTOONBlock would emit a ```toon fenced block when a TOON
// encoder is available. No example repo in the pack carries a Go TOON
// encoder, so this always takes the JSON fallback path the original
// source itself falls back to when toon_format is not importable.
func renderTOONBlock(payload map[string]interface{}) string {
	b, _ := json.MarshalIndent(sortedPayload(payload), "", "  ")
	return "```json\n" + string(b) + "\n```"
}

// sortedPayload returns payload unchanged; Go's encoding/json already
// sorts map keys alphabetically when marshalling, matching the
// original's sort_keys=True fallback.
func sortedPayload(payload map[string]interface{}) map[string]interface{} {
	return payload
}

func outputMode() string {
	return strings.ToLower(strings.TrimSpace(os.Getenv("MCP_BRIDGE_OUTPUT_MODE")))
}

// buildToolResponse renders in compact text (default) or TOON format,
// grounded on _build_tool_response.
func buildToolResponse(in responseInputs) ToolResponse {
	payload := buildResponsePayload(in)
	status, _ := payload["status"].(string)
	if status == "" {
		status = "error"
	}
	isError := strings.ToLower(status) != "success"

	mode := outputMode()
	if mode == "" {
		mode = "compact"
	}

	if mode == "compact" {
		return ToolResponse{
			Text:              renderCompactOutput(payload),
			StructuredContent: buildCompactStructuredPayload(payload),
			IsError:           isError,
		}
	}

	return ToolResponse{
		Text:              renderTOONBlock(payload),
		StructuredContent: payload,
		IsError:           isError,
	}
}
