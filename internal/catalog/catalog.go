// Package catalog builds and serves the per-server tool descriptor
// cache: alias assignment, documentation lookup, and keyword search.
package catalog

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/mcp-bridge/codexec/internal/mcpclient"
)

// ToolDescriptor is one downstream tool, alias-resolved. Grounded on
// the original source's per-tool dict built in _ensure_server_metadata.
type ToolDescriptor struct {
	RawName     string
	Alias       string
	Description string
	InputSchema interface{}
	Keywords    string
}

// ServerCatalogEntry is the cached view of one server's tools.
type ServerCatalogEntry struct {
	ServerName  string
	ServerAlias string
	// Cwd is the server's configured working directory, already
	// resolved to an absolute path by config loading. Empty means the
	// bridge process' own working directory. Surfaced to sandboxed code
	// via describe_server/list_loaded_server_metadata.
	Cwd   string
	Tools []ToolDescriptor

	// IdentifierIndex maps lower-cased alias and lower-cased raw_name
	// to the matching descriptor.
	IdentifierIndex map[string]*ToolDescriptor
	KeywordBlob     string
}

type searchEntry struct {
	serverName  string
	serverAlias string
	descriptor  *ToolDescriptor
}

// Catalog is the per-bridge cache of ServerCatalogEntry, plus a lazily
// rebuilt flat search index. Grounded on the original source's
// MCPBridge._server_metadata_cache / _server_docs_cache /
// _search_index / _ensure_search_index.
type Catalog struct {
	mu sync.RWMutex

	entries       map[string]*ServerCatalogEntry
	entryOrder    []string
	serverAliases map[string]string
	usedAliases   map[string]bool

	searchIndex      []searchEntry
	searchIndexDirty bool
}

// New builds an empty catalog.
func New() *Catalog {
	return &Catalog{
		entries:       make(map[string]*ServerCatalogEntry),
		serverAliases: make(map[string]string),
		usedAliases:   make(map[string]bool),
	}
}

// aliasForServer assigns (or returns the already-assigned) alias for a
// server name, grounded on MCPBridge._alias_for.
func (c *Catalog) aliasForServer(name string) string {
	if alias, ok := c.serverAliases[name]; ok {
		return alias
	}
	base := sanitizeAlias(name, "server")
	alias := base
	suffix := 1
	for c.usedAliases[alias] {
		suffix++
		alias = fmt.Sprintf("%s_%d", base, suffix)
	}
	c.serverAliases[name] = alias
	c.usedAliases[alias] = true
	return alias
}

// sanitizeAlias mirrors the original source's _sanitize_identifier /
// the inline regex in _alias_for: replace non [a-z0-9_] with "_",
// lower-case, prefix "_" on a leading digit.
func sanitizeAlias(name, fallback string) string {
	lower := strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	for _, r := range lower {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	cleaned := b.String()
	if cleaned == "" || allUnderscores(cleaned) {
		cleaned = fallback
	}
	if len(cleaned) > 0 && unicode.IsDigit(rune(cleaned[0])) {
		cleaned = "_" + cleaned
	}
	return cleaned
}

func allUnderscores(s string) bool {
	for _, r := range s {
		if r != '_' {
			return false
		}
	}
	return true
}

// Ensure builds (or returns the cached) ServerCatalogEntry for name,
// calling listTools to fetch the raw tool list if not already cached.
// cwd is recorded on the entry as-is; it has no bearing on caching.
func (c *Catalog) Ensure(name, cwd string, listTools func() ([]mcpclient.RawTool, error)) (*ServerCatalogEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[name]; ok {
		return entry, nil
	}

	rawTools, err := listTools()
	if err != nil {
		return nil, fmt.Errorf("list tools for %s: %w", name, err)
	}

	alias := c.aliasForServer(name)
	aliasCounts := make(map[string]int)
	tools := make([]ToolDescriptor, 0, len(rawTools))
	index := make(map[string]*ToolDescriptor)

	for _, raw := range rawTools {
		rawName := raw.Name
		if rawName == "" {
			rawName = "tool"
		}
		base := sanitizeAlias(rawName, "tool")
		aliasCounts[base]++
		count := aliasCounts[base]
		toolAlias := base
		if count > 1 {
			toolAlias = fmt.Sprintf("%s_%d", base, count)
		}

		description := strings.TrimSpace(raw.Description)
		keywordSet := map[string]bool{
			strings.ToLower(name):        true,
			strings.ToLower(alias):       true,
			strings.ToLower(rawName):     true,
			strings.ToLower(toolAlias):   true,
			strings.ToLower(description): true,
		}
		delete(keywordSet, "")
		keywords := make([]string, 0, len(keywordSet))
		for k := range keywordSet {
			keywords = append(keywords, k)
		}
		sort.Strings(keywords)

		var schema interface{}
		if len(raw.InputSchema) > 0 {
			schema = raw.InputSchema
		}

		descriptor := ToolDescriptor{
			RawName:     rawName,
			Alias:       toolAlias,
			Description: description,
			InputSchema: schema,
			Keywords:    strings.Join(keywords, " "),
		}
		tools = append(tools, descriptor)
	}

	for i := range tools {
		for _, key := range []string{strings.ToLower(tools[i].Alias), strings.ToLower(tools[i].RawName)} {
			if _, taken := index[key]; !taken {
				index[key] = &tools[i]
			}
		}
	}

	entry := &ServerCatalogEntry{
		ServerName:      name,
		ServerAlias:     alias,
		Cwd:             cwd,
		Tools:           tools,
		IdentifierIndex: index,
	}
	c.entries[name] = entry
	c.entryOrder = append(c.entryOrder, name)
	c.searchIndexDirty = true
	return entry, nil
}

// Snapshot returns a deep copy of the cached entry for name, suitable
// for shipping into the sandbox. Returns (nil, false) if not cached.
func (c *Catalog) Snapshot(name string) (*ServerCatalogEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[name]
	if !ok {
		return nil, false
	}
	cp := *entry
	cp.Tools = append([]ToolDescriptor(nil), entry.Tools...)
	cp.IdentifierIndex = make(map[string]*ToolDescriptor, len(cp.Tools))
	for i := range cp.Tools {
		for _, key := range []string{strings.ToLower(cp.Tools[i].Alias), strings.ToLower(cp.Tools[i].RawName)} {
			if _, taken := cp.IdentifierIndex[key]; !taken {
				cp.IdentifierIndex[key] = &cp.Tools[i]
			}
		}
	}
	return &cp, true
}

// Detail controls how much of a descriptor Docs returns.
type Detail string

const (
	DetailSummary Detail = "summary"
	DetailFull    Detail = "full"
)

// NormaliseDetail mirrors _normalise_detail: anything other than
// "full" (case-insensitively) falls back to "summary".
func NormaliseDetail(value string) Detail {
	if strings.ToLower(value) == string(DetailFull) {
		return DetailFull
	}
	return DetailSummary
}

// ToolDoc is the rendered documentation shape handed back across the
// RPC boundary, grounded on _format_tool_doc.
type ToolDoc struct {
	Server      string      `json:"server"`
	ServerAlias string      `json:"serverAlias"`
	Tool        string      `json:"tool"`
	ToolAlias   string      `json:"toolAlias"`
	Description string      `json:"description,omitempty"`
	InputSchema interface{} `json:"inputSchema,omitempty"`
}

func formatToolDoc(serverName, serverAlias string, d *ToolDescriptor, detail Detail) ToolDoc {
	doc := ToolDoc{
		Server:      serverName,
		ServerAlias: serverAlias,
		Tool:        d.RawName,
		ToolAlias:   d.Alias,
		Description: d.Description,
	}
	if detail == DetailFull && d.InputSchema != nil {
		doc.InputSchema = d.InputSchema
	}
	return doc
}

// Docs returns one descriptor (if tool is non-empty) or all tools for
// name. Error if the server is not cached, or tool is given but
// unknown.
func (c *Catalog) Docs(name, tool string, detail Detail) ([]ToolDoc, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[name]
	if !ok {
		return nil, fmt.Errorf("documentation unavailable for server %s", name)
	}

	if tool != "" {
		match, ok := entry.IdentifierIndex[strings.ToLower(tool)]
		if !ok {
			return nil, fmt.Errorf("tool %q not found for server %s", tool, name)
		}
		return []ToolDoc{formatToolDoc(name, entry.ServerAlias, match, detail)}, nil
	}

	docs := make([]ToolDoc, 0, len(entry.Tools))
	for i := range entry.Tools {
		docs = append(docs, formatToolDoc(name, entry.ServerAlias, &entry.Tools[i], detail))
	}
	return docs, nil
}

func (c *Catalog) rebuildSearchIndexLocked() {
	if !c.searchIndexDirty {
		return
	}
	entries := make([]searchEntry, 0)
	for _, name := range c.entryOrder {
		entry := c.entries[name]
		for i := range entry.Tools {
			entries = append(entries, searchEntry{
				serverName:  name,
				serverAlias: entry.ServerAlias,
				descriptor:  &entry.Tools[i],
			})
		}
	}
	c.searchIndex = entries
	c.searchIndexDirty = false
}

// Search tokenises query by whitespace (lower-cased) and returns every
// descriptor, from a server in allowedServers, whose keyword blob
// contains every token as a substring, capped at min(max(limit,1),20).
func (c *Catalog) Search(query string, allowedServers []string, limit int, detail Detail) []ToolDoc {
	if strings.TrimSpace(query) == "" {
		return nil
	}

	c.mu.Lock()
	c.rebuildSearchIndexLocked()
	index := c.searchIndex
	c.mu.Unlock()

	tokens := strings.Fields(strings.ToLower(query))
	if len(tokens) == 0 {
		return nil
	}

	allowed := make(map[string]bool, len(allowedServers))
	for _, s := range allowedServers {
		allowed[s] = true
	}

	capped := limit
	if capped < 1 {
		capped = 1
	}
	if capped > 20 {
		capped = 20
	}

	matches := make([]ToolDoc, 0, capped)
	for _, entry := range index {
		if !allowed[entry.serverName] {
			continue
		}
		keywords := entry.descriptor.Keywords
		matchesAll := true
		for _, token := range tokens {
			if !strings.Contains(keywords, token) {
				matchesAll = false
				break
			}
		}
		if !matchesAll {
			continue
		}
		matches = append(matches, formatToolDoc(entry.serverName, entry.serverAlias, entry.descriptor, detail))
		if len(matches) >= capped {
			break
		}
	}
	return matches
}
