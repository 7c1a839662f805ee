// Package auth implements the Google authorization flow and the
// signed login session around it.
package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Endpoints outside the oauth2 package's scope.
const (
	userinfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
	revokeURL   = "https://oauth2.googleapis.com/revoke"
)

// CredentialsKey is the per-user option the OAuth token is stored
// under.
const CredentialsKey = "credentials"

// UserInfo is the subset of the Google userinfo response we keep.
type UserInfo struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Picture string `json:"picture"`
}

// Flow drives the authorization-code dance. One Flow serves the whole
// process; pending state tokens are tracked in memory, which is enough
// for a single local server.
type Flow struct {
	config *oauth2.Config
	log    *zap.Logger

	mu     sync.Mutex
	states map[string]struct{}
}

// NewFlow reads the client_secret.json at path and prepares a flow
// whose callback lands on redirectURL.
func NewFlow(path, redirectURL string, scopes []string, logger *zap.Logger) (*Flow, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read client secret file: %w", err)
	}
	cfg, err := google.ConfigFromJSON(raw, scopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse client secret file: %w", err)
	}
	cfg.RedirectURL = redirectURL
	return &Flow{
		config: cfg,
		log:    logger.Named("auth"),
		states: make(map[string]struct{}),
	}, nil
}

// AuthURL mints a state token and returns the Google consent page URL
// requesting offline access.
func (f *Flow) AuthURL() string {
	state := uuid.New().String()
	f.mu.Lock()
	f.states[state] = struct{}{}
	f.mu.Unlock()
	return f.config.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("include_granted_scopes", "true"))
}

// consumeState validates and burns a state token.
func (f *Flow) consumeState(state string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.states[state]; !ok {
		return false
	}
	delete(f.states, state)
	return true
}

// Exchange validates the callback's state and trades the code for a
// token.
func (f *Flow) Exchange(ctx context.Context, state, code string) (*oauth2.Token, error) {
	if !f.consumeState(state) {
		return nil, fmt.Errorf("unknown or replayed oauth state")
	}
	token, err := f.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	return token, nil
}

// Userinfo fetches the authenticated account's profile.
func (f *Flow) Userinfo(ctx context.Context, token *oauth2.Token) (*UserInfo, error) {
	client := f.config.Client(ctx, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, userinfoURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch userinfo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return nil, fmt.Errorf("userinfo returned status %d: %s", resp.StatusCode, raw)
	}

	var info UserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode userinfo: %w", err)
	}
	if info.Email == "" {
		return nil, fmt.Errorf("userinfo response carries no email; was the scope granted?")
	}
	return &info, nil
}

// Revoke invalidates the token at Google. Best effort: local state is
// cleared regardless, so failures are logged, not returned.
func (f *Flow) Revoke(ctx context.Context, token *oauth2.Token) {
	form := url.Values{"token": {token.AccessToken}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, revokeURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		f.log.Warn("Failed to revoke token", zap.Error(err))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		f.log.Warn("Token revocation rejected", zap.Int("status", resp.StatusCode))
	}
}

// TokenStore persists OAuth tokens between runs.
type TokenStore interface {
	Option(userID int64, key string, out any) (bool, error)
	SetOption(userID int64, key string, value any) error
}

// SaveToken stores the user's token.
func SaveToken(s TokenStore, userID int64, token *oauth2.Token) error {
	if err := s.SetOption(userID, CredentialsKey, token); err != nil {
		return fmt.Errorf("failed to persist credentials: %w", err)
	}
	return nil
}

// LoadToken restores the user's token; nil when the user never
// authorized (or revoked).
func LoadToken(s TokenStore, userID int64) (*oauth2.Token, error) {
	var token oauth2.Token
	found, err := s.Option(userID, CredentialsKey, &token)
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &token, nil
}

// ClearToken drops the user's stored token.
func ClearToken(s TokenStore, userID int64) error {
	return s.SetOption(userID, CredentialsKey, nil)
}

// persistingSource wraps a TokenSource and writes every refreshed
// token back to the store, mirroring the refresh callback of the
// original session-based flow.
type persistingSource struct {
	src    oauth2.TokenSource
	store  TokenStore
	userID int64
	log    *zap.Logger

	mu   sync.Mutex
	last *oauth2.Token
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	token, err := p.src.Token()
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	changed := p.last == nil || p.last.AccessToken != token.AccessToken
	p.last = token
	p.mu.Unlock()
	if changed {
		if err := SaveToken(p.store, p.userID, token); err != nil {
			p.log.Warn("Failed to persist refreshed token", zap.Error(err))
		}
	}
	return token, nil
}

// HTTPClient returns an http.Client that injects (and transparently
// refreshes) the user's OAuth token, persisting refreshed tokens, with
// base as the underlying transport.
func (f *Flow) HTTPClient(ctx context.Context, s TokenStore, userID int64, token *oauth2.Token, base http.RoundTripper) *http.Client {
	if base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Transport: base})
	}
	src := &persistingSource{
		src:    f.config.TokenSource(ctx, token),
		store:  s,
		userID: userID,
		log:    f.log,
		last:   token,
	}
	return oauth2.NewClient(ctx, src)
}
