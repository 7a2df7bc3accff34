package catalog_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcp-bridge/codexec/internal/catalog"
	"github.com/mcp-bridge/codexec/internal/mcpclient"
)

func stubTools() []mcpclient.RawTool {
	return []mcpclient.RawTool{
		{Name: "Echo Tool", Description: "echoes input"},
		{Name: "echo tool", Description: "a duplicate alias base"},
	}
}

func TestCatalog_EnsureIsIdempotentAndDeterministic(t *testing.T) {
	cat := catalog.New()
	listCalls := 0
	list := func() ([]mcpclient.RawTool, error) {
		listCalls++
		return stubTools(), nil
	}

	first, err := cat.Ensure("stub", "", list)
	require.NoError(t, err)
	second, err := cat.Ensure("stub", "", list)
	require.NoError(t, err)

	assert.Equal(t, 1, listCalls, "Ensure must not re-fetch once cached")
	assert.Equal(t, first.ServerAlias, second.ServerAlias)
	require.Len(t, first.Tools, 2)
	assert.Equal(t, "echo_tool", first.Tools[0].Alias)
	assert.Equal(t, "echo_tool_2", first.Tools[1].Alias)
}

func TestCatalog_IdentifierIndexResolvesCaseInsensitively(t *testing.T) {
	cat := catalog.New()
	_, err := cat.Ensure("stub", "", func() ([]mcpclient.RawTool, error) { return stubTools(), nil })
	require.NoError(t, err)

	docs, err := cat.Docs("stub", "ECHO_TOOL", catalog.DetailSummary)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Echo Tool", docs[0].Tool)

	docs, err = cat.Docs("stub", "Echo Tool", catalog.DetailSummary)
	require.NoError(t, err)
	assert.Equal(t, "echo_tool", docs[0].ToolAlias)
}

func TestCatalog_DocsUnknownToolErrors(t *testing.T) {
	cat := catalog.New()
	_, err := cat.Ensure("stub", "", func() ([]mcpclient.RawTool, error) { return stubTools(), nil })
	require.NoError(t, err)

	_, err = cat.Docs("stub", "nonexistent", catalog.DetailSummary)
	assert.Error(t, err)
}

func TestCatalog_SearchClampsLimitAndFiltersByAllowedServers(t *testing.T) {
	cat := catalog.New()
	_, err := cat.Ensure("stub", "", func() ([]mcpclient.RawTool, error) { return stubTools(), nil })
	require.NoError(t, err)
	_, err = cat.Ensure("other", "", func() ([]mcpclient.RawTool, error) {
		return []mcpclient.RawTool{{Name: "echo-other", Description: "echoes too"}}, nil
	})
	require.NoError(t, err)

	results := cat.Search("echo", []string{"stub"}, 0, catalog.DetailSummary)
	assert.LessOrEqual(t, len(results), 1)
	for _, r := range results {
		assert.Equal(t, "stub", r.Server)
	}

	results = cat.Search("echo", []string{"stub", "other"}, 100, catalog.DetailSummary)
	assert.LessOrEqual(t, len(results), 20)
}

func TestCatalog_EnsureRecordsCwd(t *testing.T) {
	cat := catalog.New()
	entry, err := cat.Ensure("stub", "/srv/stub", func() ([]mcpclient.RawTool, error) { return stubTools(), nil })
	require.NoError(t, err)
	assert.Equal(t, "/srv/stub", entry.Cwd)

	snap, ok := cat.Snapshot("stub")
	require.True(t, ok)
	assert.Equal(t, "/srv/stub", snap.Cwd)
}

func TestCatalog_SearchIsDeterministicAcrossServers(t *testing.T) {
	cat := catalog.New()
	_, err := cat.Ensure("alpha", "", func() ([]mcpclient.RawTool, error) {
		return []mcpclient.RawTool{{Name: "match-a", Description: "matches"}}, nil
	})
	require.NoError(t, err)
	_, err = cat.Ensure("beta", "", func() ([]mcpclient.RawTool, error) {
		return []mcpclient.RawTool{{Name: "match-b", Description: "matches"}}, nil
	})
	require.NoError(t, err)

	first := cat.Search("matches", []string{"alpha", "beta"}, 1, catalog.DetailSummary)
	require.Len(t, first, 1)
	for i := 0; i < 10; i++ {
		again := cat.Search("matches", []string{"alpha", "beta"}, 1, catalog.DetailSummary)
		require.Len(t, again, 1)
		assert.Equal(t, first[0].Server, again[0].Server, "repeated searches must return the same truncated subset")
	}
	assert.Equal(t, "alpha", first[0].Server, "registration order wins ties, matching insertion-ordered caches")
}

func TestCatalog_SearchRequiresAllTokens(t *testing.T) {
	cat := catalog.New()
	_, err := cat.Ensure("stub", "", func() ([]mcpclient.RawTool, error) { return stubTools(), nil })
	require.NoError(t, err)

	results := cat.Search("echo nonexistentterm", []string{"stub"}, 5, catalog.DetailSummary)
	assert.Empty(t, results)
}
