package gmail

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
)

// AuthConfig locates the OAuth client secret and the cached token.
type AuthConfig struct {
	CredentialsFile string
	TokenFile       string
	// Prompt receives the consent URL and returns the authorization code.
	// Defaults to printing to stdout and reading a line from stdin.
	Prompt func(authURL string) (string, error)
}

// TokenSource returns a token source for read-only mail access. A cached
// token is reused; otherwise the browser consent flow runs once. Tokens
// refreshed later are written back to the token file.
func TokenSource(ctx context.Context, cfg AuthConfig, logger *log.Logger) (oauth2.TokenSource, error) {
	b, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret file: %w", err)
	}
	oauthConfig, err := google.ConfigFromJSON(b, gmail.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}

	tok, err := tokenFromFile(cfg.TokenFile)
	if err != nil {
		logger.Info("No usable cached token, starting consent flow", "token_file", cfg.TokenFile)
		tok, err = getTokenFromWeb(ctx, oauthConfig, cfg.Prompt)
		if err != nil {
			return nil, err
		}
		if err := saveToken(cfg.TokenFile, tok); err != nil {
			return nil, err
		}
		logger.Info("New token saved", "token_file", cfg.TokenFile)
	}

	return &persistingTokenSource{
		base:   oauthConfig.TokenSource(ctx, tok),
		path:   cfg.TokenFile,
		last:   tok.AccessToken,
		logger: logger,
	}, nil
}

// persistingTokenSource saves the token whenever the access token changes.
type persistingTokenSource struct {
	base   oauth2.TokenSource
	path   string
	logger *log.Logger

	mu   sync.Mutex
	last string
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := p.base.Token()
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.AccessToken != p.last {
		p.last = tok.AccessToken
		if err := saveToken(p.path, tok); err != nil {
			p.logger.Warn("Failed to persist refreshed token", "error", err)
		} else {
			p.logger.Info("Token refreshed successfully", "token_file", p.path)
		}
	}
	return tok, nil
}

func getTokenFromWeb(ctx context.Context, config *oauth2.Config, prompt func(string) (string, error)) (*oauth2.Token, error) {
	if prompt == nil {
		prompt = stdinPrompt
	}
	authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	authCode, err := prompt(authURL)
	if err != nil {
		return nil, fmt.Errorf("unable to read authorization code: %w", err)
	}
	tok, err := config.Exchange(ctx, authCode)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve token from web: %w", err)
	}
	return tok, nil
}

func stdinPrompt(authURL string) (string, error) {
	fmt.Printf("Go to the following link in your browser then type the "+
		"authorization code: \n%v\n", authURL)
	var authCode string
	if _, err := fmt.Scan(&authCode); err != nil {
		return "", err
	}
	return authCode, nil
}

func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return decodeToken(f)
}

func decodeToken(r io.Reader) (*oauth2.Token, error) {
	tok := &oauth2.Token{}
	if err := json.NewDecoder(r).Decode(tok); err != nil {
		return nil, err
	}
	// An expired token is still usable when it can be refreshed.
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, fmt.Errorf("token has neither access nor refresh token")
	}
	if !tok.Valid() && tok.RefreshToken == "" {
		return nil, fmt.Errorf("token expired")
	}
	return tok, nil
}

func saveToken(path string, token *oauth2.Token) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("unable to create token directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("unable to save oauth token: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}
