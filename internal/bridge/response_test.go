package bridge

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildToolResponse_SuccessNoOutputRewrite(t *testing.T) {
	os.Unsetenv("MCP_BRIDGE_OUTPUT_MODE")
	exitCode := 0
	resp := buildToolResponse(responseInputs{
		Status:   "success",
		Summary:  "Success",
		ExitCode: &exitCode,
	})
	assert.False(t, resp.IsError)
	assert.Equal(t, "Success (no output)", resp.StructuredContent["summary"])
	assert.Equal(t, "Success (no output)", resp.Text)
}

func TestBuildToolResponse_FiltersBlankAndNoiseLines(t *testing.T) {
	resp := buildToolResponse(responseInputs{
		Status:  "success",
		Summary: "Success",
		Stdout:  "hello\n\n()\nworld\n",
	})
	assert.Equal(t, "hello\nworld", resp.Text)
}

func TestBuildToolResponse_ErrorStatusIsMarkedAsError(t *testing.T) {
	resp := buildToolResponse(responseInputs{
		Status:  "error",
		Summary: "Sandbox error: boom",
		Error:   "boom",
	})
	assert.True(t, resp.IsError)
	assert.Contains(t, resp.Text, "status: error")
	assert.Contains(t, resp.Text, "boom")
}

func TestBuildToolResponse_TimeoutIncludesTimeoutSeconds(t *testing.T) {
	secs := 5
	resp := buildToolResponse(responseInputs{
		Status:      "timeout",
		Summary:     "Timeout: execution exceeded 5s",
		Servers:     []string{"fs"},
		Error:       "execution exceeded 5s",
		TimeoutSecs: &secs,
	})
	assert.True(t, resp.IsError)
	assert.Equal(t, 5, resp.StructuredContent["timeoutSeconds"])
	assert.Equal(t, []string{"fs"}, resp.StructuredContent["servers"])
}

func TestIsEmptyField(t *testing.T) {
	assert.True(t, isEmptyField(nil))
	assert.True(t, isEmptyField(""))
	assert.True(t, isEmptyField([]string{}))
	assert.False(t, isEmptyField("x"))
	assert.False(t, isEmptyField(0))
}

func TestBuildResponsePayload_OmitsEmptyFields(t *testing.T) {
	payload := buildResponsePayload(responseInputs{Status: "success", Summary: "Success"})
	_, hasStdout := payload["stdout"]
	_, hasStderr := payload["stderr"]
	_, hasServers := payload["servers"]
	assert.False(t, hasStdout)
	assert.False(t, hasStderr)
	assert.False(t, hasServers)
}
