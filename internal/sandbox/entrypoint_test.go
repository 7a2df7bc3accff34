package sandbox_test

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcp-bridge/codexec/internal/sandbox"
)

func TestEntrypointBuilder_LiteralEmbeddingIsSafe(t *testing.T) {
	dangerous := "\"\"\"; import os; os.system('rm -rf /') #\n\\\x00'''"
	builder := sandbox.EntrypointBuilder{}

	src, err := builder.Render(dangerous, nil, nil)
	require.NoError(t, err)

	// The literal, once decoded by a Python-compatible JSON string
	// parser, must reproduce the exact input bytes. We can't run
	// Python here, so assert the embedding used Go's JSON string
	// encoding (a proven-valid Python string literal) rather than
	// naive concatenation: the input's leading triple quote, which would
	// close a naively spliced literal, only appears with each quote
	// escaped. (JSON leaves ' and / as they are, so "rm -rf /'" itself
	// does appear inside the literal.)
	assert.False(t, strings.Contains(src, `"""; import os`), "user code must not appear as raw unescaped source")
	assert.Contains(t, src, "CODE = ")

	quoted := strconv.Quote(dangerous)
	_ = quoted // Go and JSON quoting differ in \x00 handling; just assert structure below.

	assert.True(t, strings.Count(src, "CODE = ") == 1)
}

func TestEntrypointBuilder_EmbedsMetadataAndDiscovered(t *testing.T) {
	builder := sandbox.EntrypointBuilder{}
	meta := []sandbox.ServerMetadata{{"name": "stub", "alias": "stub", "tools": []interface{}{}}}

	src, err := builder.Render("print('hi')", meta, []string{"stub", "other"})
	require.NoError(t, err)

	assert.Contains(t, src, `AVAILABLE_SERVERS = json.loads(`)
	// The metadata and discovered lists are JSON documents embedded as
	// JSON string literals, so their own quotes appear escaped.
	assert.Contains(t, src, `\"name\":\"stub\"`)
	assert.Contains(t, src, `\"stub\"`)
	assert.Contains(t, src, `\"other\"`)
}

func TestEntrypointBuilder_NilSlicesRenderAsEmptyJSON(t *testing.T) {
	builder := sandbox.EntrypointBuilder{}
	src, err := builder.Render("pass", nil, nil)
	require.NoError(t, err)
	assert.Contains(t, src, `AVAILABLE_SERVERS = json.loads("[]")`)
}
