package mcpclient

// ServerSpec is an immutable description of a downstream MCP server,
// identified by Name (unique within the bridge). Produced by config
// discovery, consumed by the MCPClientPool.
type ServerSpec struct {
	Name    string
	Command string
	Args    []string
	Env     map[string]string
	Cwd     string // empty means "bridge process' own working directory"

	// Auth describes how credentials should be injected into Env before
	// the session is spawned. Nil means no authorization is configured.
	Auth *AuthSpec
}

// AuthType mirrors the teacher's registry.AuthType enum.
type AuthType string

const (
	AuthNone   AuthType = "none"
	AuthAPIKey AuthType = "api_key"
	AuthOAuth2 AuthType = "oauth2"
)

// AuthSpec describes how to obtain credentials for a ServerSpec.
type AuthSpec struct {
	Type   AuthType
	EnvVar string // single env var case, e.g. API key

	// OAuth fields, used when Type == AuthOAuth2.
	AuthURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	TokenEnvVar  string
}
