package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mqtt-automations/internal/shared"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
)

// Scopes required by the bridge.
var Scopes = []string{
	spotifyauth.ScopeUserReadPrivate,
	spotifyauth.ScopePlaylistReadPrivate,
	spotifyauth.ScopePlaylistReadCollaborative,
	spotifyauth.ScopePlaylistModifyPublic,
	spotifyauth.ScopePlaylistModifyPrivate,
	spotifyauth.ScopeUserLibraryRead,
	spotifyauth.ScopeUserLibraryModify,
	spotifyauth.ScopeUserReadPlaybackState,
	spotifyauth.ScopeUserModifyPlaybackState,
	spotifyauth.ScopeUserReadCurrentlyPlaying,
}

// TokenData is the on-disk token file format.
type TokenData struct {
	Token *oauth2.Token `json:"token"`
}

// OAuthConfig builds the [oauth2.Config] for the configured Spotify application.
func OAuthConfig(cfg shared.SpotifyConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURI,
		Scopes:       Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyauth.AuthURL,
			TokenURL: spotifyauth.TokenURL,
		},
	}
}

// LoadToken reads a token file written by [SaveToken].
func LoadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: token file %s not found", shared.ErrNotAuthenticated, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var tokenData TokenData
	if err := json.Unmarshal(data, &tokenData); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	if tokenData.Token == nil || (tokenData.Token.AccessToken == "" && tokenData.Token.RefreshToken == "") {
		return nil, fmt.Errorf("%w: token file %s holds no token", shared.ErrNotAuthenticated, path)
	}

	return tokenData.Token, nil
}

// SaveToken writes token to path, replacing the file atomically.
func SaveToken(path string, token *oauth2.Token) error {
	data, err := json.MarshalIndent(TokenData{Token: token}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".token-*")
	if err != nil {
		return fmt.Errorf("failed to create token file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0600); err != nil {
		return fmt.Errorf("failed to set token file mode: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace token file: %w", err)
	}
	return nil
}

// refreshableTokenSource reports every new access token to callback so it can be persisted.
type refreshableTokenSource struct {
	source   oauth2.TokenSource
	callback func(*oauth2.Token)

	mu   sync.Mutex
	last string
}

func (s *refreshableTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.source.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	changed := token.AccessToken != s.last
	s.last = token.AccessToken
	s.mu.Unlock()

	if changed && s.callback != nil {
		s.callback(token)
	}
	return token, nil
}

// NewHTTPClient loads the token file and returns an HTTP client that refreshes the token
// when it expires and writes refreshed tokens back to the file.
func NewHTTPClient(ctx context.Context, cfg shared.SpotifyConfig, logger *log.Logger) (*http.Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: spotify client_id and client_secret", shared.ErrMissingCredentials)
	}

	token, err := LoadToken(cfg.TokenFile)
	if err != nil {
		return nil, err
	}

	source := &refreshableTokenSource{
		source: OAuthConfig(cfg).TokenSource(ctx, token),
		last:   token.AccessToken,
		callback: func(t *oauth2.Token) {
			if err := SaveToken(cfg.TokenFile, t); err != nil {
				logger.Warn("failed to persist refreshed token", "error", err)
				return
			}
			logger.Debug("persisted refreshed token", "expiry", t.Expiry)
		},
	}

	return oauth2.NewClient(ctx, source), nil
}
