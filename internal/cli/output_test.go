package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mcp-bridge/codexec/internal/bridge"
)

func TestFormatter_TextSuccess(t *testing.T) {
	f := NewFormatter(FormatText)
	out := f.FormatToolResponse(bridge.ToolResponse{Text: "Success (no output)"})
	assert.Equal(t, "Success (no output)", out)
}

func TestFormatter_TextError(t *testing.T) {
	f := NewFormatter(FormatText)
	out := f.FormatToolResponse(bridge.ToolResponse{Text: "boom", IsError: true})
	assert.Contains(t, out, "boom")
	assert.Contains(t, out, "Error")
}

func TestFormatter_JSON(t *testing.T) {
	f := NewFormatter(FormatJSON)
	out := f.FormatToolResponse(bridge.ToolResponse{Text: "ok"})
	assert.True(t, strings.Contains(out, `"text": "ok"`))
}

func TestFormatter_FormatError(t *testing.T) {
	f := NewFormatter(FormatText)
	out := f.FormatError(assertError{"bad"})
	assert.Contains(t, out, "bad")
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }
