// Package oauthutil runs the PKCE OAuth2 authorization-code flow for
// downstream servers whose AuthSpec.Type is oauth2, grounded on the
// teacher's internal/domain/integration.OAuthHandler.
package oauthutil

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/mcp-bridge/codexec/internal/mcpclient"
	"github.com/mcp-bridge/codexec/internal/secrets"
)

// CallbackAddr is the loopback address the authorization-code flow
// listens on, matching the teacher's fixed local port.
const CallbackAddr = "127.0.0.1:6299"

// generatePKCE creates an RFC 7636 S256 code verifier/challenge pair.
func generatePKCE() (verifier, challenge string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}
	verifier = base64.RawURLEncoding.EncodeToString(b)
	h := sha256.Sum256([]byte(verifier))
	challenge = base64.RawURLEncoding.EncodeToString(h[:])
	return verifier, challenge, nil
}

// cachedGrant is the JSON shape persisted in a Store entry between
// Token calls, so a refresh token survives process restarts.
type cachedGrant struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	Expiry       time.Time `json:"expiry"`
}

// Handler runs the PKCE flow for a single ServerSpec's OAuth config
// and caches the resulting grant in Store, refreshing transparently
// via oauth2.TokenSource on subsequent calls.
type Handler struct {
	Store Store
}

// Store is the subset of secrets.Store oauthutil needs, named locally
// to avoid a hard package-level reference cycle, though it is always
// satisfied by a *secrets.FileKeychain/WindowsKeychain in practice.
type Store interface {
	Get(id string) (string, bool, error)
	Set(id, value string) error
}

// NewHandler builds a Handler backed by store.
func NewHandler(store Store) *Handler {
	return &Handler{Store: store}
}

func cacheKey(spec mcpclient.ServerSpec) string {
	return spec.Name + ":oauth_grant"
}

func (h *Handler) config(spec mcpclient.ServerSpec) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     spec.Auth.ClientID,
		ClientSecret: spec.Auth.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  spec.Auth.AuthURL,
			TokenURL: spec.Auth.TokenURL,
		},
		RedirectURL: "http://" + CallbackAddr + "/callback",
		Scopes:      spec.Auth.Scopes,
	}
}

// Token implements secrets.TokenSource: returns a cached, still-valid
// access token when one exists, refreshing it via oauth2.TokenSource
// when it has expired, and running the interactive PKCE flow from
// scratch when no grant is cached or the cached one cannot be decoded
// or refreshed.
func (h *Handler) Token(ctx context.Context, spec mcpclient.ServerSpec) (string, error) {
	if spec.Auth == nil || spec.Auth.Type != mcpclient.AuthOAuth2 {
		return "", fmt.Errorf("server %s is not configured for oauth2", spec.Name)
	}

	cfg := h.config(spec)

	if raw, ok, err := h.Store.Get(cacheKey(spec)); err == nil && ok {
		var grant cachedGrant
		if err := json.Unmarshal([]byte(raw), &grant); err == nil {
			token := &oauth2.Token{
				AccessToken:  grant.AccessToken,
				RefreshToken: grant.RefreshToken,
				Expiry:       grant.Expiry,
			}
			source := cfg.TokenSource(ctx, token)
			fresh, err := source.Token()
			if err == nil {
				h.saveGrant(spec, fresh)
				return fresh.AccessToken, nil
			}
		}
	}

	token, err := h.login(ctx, cfg)
	if err != nil {
		return "", err
	}
	h.saveGrant(spec, token)
	return token.AccessToken, nil
}

func (h *Handler) saveGrant(spec mcpclient.ServerSpec, token *oauth2.Token) {
	grant := cachedGrant{AccessToken: token.AccessToken, RefreshToken: token.RefreshToken, Expiry: token.Expiry}
	data, err := json.Marshal(grant)
	if err != nil {
		return
	}
	h.Store.Set(cacheKey(spec), string(data))
}

// login runs the interactive authorization-code flow once, grounded
// on OAuthHandler.Login: a loopback callback server plus a select
// across code/err/ctx-done/5-minute timeout.
func (h *Handler) login(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error) {
	verifier, challenge, err := generatePKCE()
	if err != nil {
		return nil, err
	}

	state := generateState()
	authURL := cfg.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
	fmt.Printf("Please log in at: %s\n", authURL)

	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)
	mux := http.NewServeMux()
	srv := &http.Server{Addr: CallbackAddr, Handler: mux}

	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if query.Get("state") != state {
			errChan <- fmt.Errorf("invalid oauth state")
			return
		}
		code := query.Get("code")
		if code == "" {
			errChan <- fmt.Errorf("no authorization code received")
			return
		}
		fmt.Fprintln(w, "Authentication successful! You can close this window.")
		codeChan <- code
	})

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()
	defer srv.Shutdown(ctx)

	select {
	case code := <-codeChan:
		return cfg.Exchange(ctx, code, oauth2.SetAuthURLParam("code_verifier", verifier))
	case err := <-errChan:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Minute):
		return nil, fmt.Errorf("oauth login timed out")
	}
}

func generateState() string {
	b := make([]byte, 16)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

var _ secrets.TokenSource = (*Handler)(nil)
