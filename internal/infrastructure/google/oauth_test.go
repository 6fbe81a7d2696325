package google

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const installedSecret = `{
  "installed": {
    "client_id": "client-123.apps.googleusercontent.com",
    "client_secret": "shh",
    "auth_uri": "https://accounts.google.com/o/oauth2/auth",
    "token_uri": "https://oauth2.googleapis.com/token",
    "redirect_uris": ["http://localhost"]
  }
}`

func TestLoadOAuthConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte(installedSecret), 0o600))

	cfg, err := LoadOAuthConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "client-123.apps.googleusercontent.com", cfg.ClientID)
	assert.Equal(t, "https://oauth2.googleapis.com/token", cfg.Endpoint.TokenURL)
	assert.Equal(t, Scopes, cfg.Scopes)
}

func TestLoadOAuthConfig_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"other": {}}`), 0o600))

	_, err := LoadOAuthConfig(path)
	assert.ErrorContains(t, err, "missing installed or web client")

	_, err = LoadOAuthConfig(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestTokenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token.json")

	_, err := LoadToken(path)
	assert.True(t, errors.Is(err, ErrNoToken))

	tok := &oauth2.Token{AccessToken: "at", RefreshToken: "rt", Expiry: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, SaveToken(path, tok))

	got, err := LoadToken(path)
	require.NoError(t, err)
	assert.Equal(t, "rt", got.RefreshToken)
	assert.True(t, tok.Expiry.Equal(got.Expiry))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

type staticSource struct{ tok *oauth2.Token }

func (s staticSource) Token() (*oauth2.Token, error) { return s.tok, nil }

func TestSavingTokenSource_WritesRefreshedToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	ts := &savingTokenSource{
		base: staticSource{tok: &oauth2.Token{AccessToken: "fresh", RefreshToken: "rt"}},
		path: path,
		last: "stale",
	}

	_, err := ts.Token()
	require.NoError(t, err)

	saved, err := LoadToken(path)
	require.NoError(t, err)
	assert.Equal(t, "fresh", saved.AccessToken)
}

func TestAuthorize_LoopbackFlow(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "the-code", r.PostForm.Get("code"))
		assert.NotEmpty(t, r.PostForm.Get("code_verifier"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at","token_type":"Bearer","refresh_token":"rt","expires_in":3600}`))
	}))
	defer tokenSrv.Close()

	cfg := &oauth2.Config{
		ClientID: "client",
		Endpoint: oauth2.Endpoint{AuthURL: "https://example.test/auth", TokenURL: tokenSrv.URL},
		Scopes:   Scopes,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tok, err := Authorize(ctx, cfg, func(authURL string) {
		u, err := url.Parse(authURL)
		require.NoError(t, err)
		q := u.Query()
		assert.Equal(t, "offline", q.Get("access_type"))

		callback := q.Get("redirect_uri") + "?code=the-code&state=" + url.QueryEscape(q.Get("state"))
		resp, err := http.Get(callback)
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
	require.NoError(t, err)
	assert.Equal(t, "at", tok.AccessToken)
	assert.Equal(t, "rt", tok.RefreshToken)
}
