// Package google loads OAuth client secrets and cached tokens for the Gmail and Sheets adapters.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

// Scopes requested during consent: read mail, read/write spreadsheets.
var Scopes = []string{
	"https://www.googleapis.com/auth/gmail.readonly",
	"https://www.googleapis.com/auth/spreadsheets",
}

// ErrNoToken means the consent flow has not been run yet.
var ErrNoToken = errors.New("no oauth token found; run the auth command first")

type clientSecret struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	AuthURI      string   `json:"auth_uri"`
	TokenURI     string   `json:"token_uri"`
	RedirectURIs []string `json:"redirect_uris"`
}

// LoadOAuthConfig reads a client secret file downloaded from the Google Cloud console.
// Both "installed" and "web" application types are accepted.
func LoadOAuthConfig(path string) (*oauth2.Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credentials %s: %w", path, err)
	}

	var file struct {
		Installed *clientSecret `json:"installed"`
		Web       *clientSecret `json:"web"`
	}
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse credentials %s: %w", path, err)
	}

	secret := file.Installed
	if secret == nil {
		secret = file.Web
	}
	if secret == nil || secret.ClientID == "" {
		return nil, fmt.Errorf("credentials %s: missing installed or web client", path)
	}

	endpoint := endpoints.Google
	if secret.AuthURI != "" {
		endpoint.AuthURL = secret.AuthURI
	}
	if secret.TokenURI != "" {
		endpoint.TokenURL = secret.TokenURI
	}

	cfg := &oauth2.Config{
		ClientID:     secret.ClientID,
		ClientSecret: secret.ClientSecret,
		Endpoint:     endpoint,
		Scopes:       Scopes,
	}
	if len(secret.RedirectURIs) > 0 {
		cfg.RedirectURL = secret.RedirectURIs[0]
	}
	return cfg, nil
}

// LoadToken reads a cached token, returning ErrNoToken when the file is absent.
func LoadToken(path string) (*oauth2.Token, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoToken
		}
		return nil, fmt.Errorf("read token %s: %w", path, err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, fmt.Errorf("parse token %s: %w", path, err)
	}
	return &tok, nil
}

// SaveToken writes tok with owner-only permissions.
func SaveToken(path string, tok *oauth2.Token) error {
	raw, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create token dir: %w", err)
		}
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("write token %s: %w", path, err)
	}
	return nil
}

// HTTPClient returns a client that authorizes requests with the cached token and writes
// refreshed tokens back to tokenPath.
func HTTPClient(ctx context.Context, credentialsPath, tokenPath string) (*http.Client, error) {
	cfg, err := LoadOAuthConfig(credentialsPath)
	if err != nil {
		return nil, err
	}
	tok, err := LoadToken(tokenPath)
	if err != nil {
		return nil, err
	}
	ts := &savingTokenSource{
		base: cfg.TokenSource(ctx, tok),
		path: tokenPath,
		last: tok.AccessToken,
	}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(tok, ts)), nil
}

type savingTokenSource struct {
	base oauth2.TokenSource
	path string

	mu   sync.Mutex
	last string
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		// a failed write only costs another refresh next run
		_ = SaveToken(s.path, tok)
	}
	return tok, nil
}

// Authorize runs the installed-app consent flow on a loopback redirect. notify receives
// the consent URL to show the user; the call blocks until the browser is redirected back
// or ctx is done.
func Authorize(ctx context.Context, cfg *oauth2.Config, notify func(authURL string)) (*oauth2.Token, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listen for oauth redirect: %w", err)
	}
	defer listener.Close()

	flow := *cfg
	flow.RedirectURL = fmt.Sprintf("http://%s/", listener.Addr().String())

	state := oauth2.GenerateVerifier()
	verifier := oauth2.GenerateVerifier()

	type result struct {
		code string
		err  error
	}
	results := make(chan result, 1)

	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}
		res := result{code: q.Get("code")}
		if e := q.Get("error"); e != "" {
			res = result{err: fmt.Errorf("consent denied: %s", e)}
		}
		select {
		case results <- res:
		default:
		}
		_, _ = io.WriteString(w, "Authorization complete. You can close this tab.")
	})}
	go func() { _ = srv.Serve(listener) }()
	defer srv.Close()

	notify(flow.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.S256ChallengeOption(verifier)))

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-results:
		if res.err != nil {
			return nil, res.err
		}
		tok, err := flow.Exchange(ctx, res.code, oauth2.VerifierOption(verifier))
		if err != nil {
			return nil, fmt.Errorf("exchange code: %w", err)
		}
		return tok, nil
	}
}
