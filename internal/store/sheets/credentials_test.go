package sheets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sheetsapi "google.golang.org/api/sheets/v4"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const installedSecret = `{"installed":{
  "client_id":"cid","client_secret":"shh",
  "auth_uri":"https://accounts.example.com/o/oauth2/auth",
  "token_uri":"https://accounts.example.com/token",
  "redirect_uris":["urn:ietf:wg:oauth:2.0:oob","http://localhost"]}}`

func TestLoadOAuthConfig(t *testing.T) {
	cfg, err := LoadOAuthConfig(writeFile(t, "client_secret.json", installedSecret))
	require.NoError(t, err)
	assert.Equal(t, "cid", cfg.ClientID)
	assert.Equal(t, "shh", cfg.ClientSecret)
	assert.Equal(t, "https://accounts.example.com/token", cfg.Endpoint.TokenURL)
	assert.Equal(t, "urn:ietf:wg:oauth:2.0:oob", cfg.RedirectURL)
	assert.Equal(t, []string{sheetsapi.SpreadsheetsScope}, cfg.Scopes)

	_, err = LoadOAuthConfig(writeFile(t, "empty.json", `{}`))
	assert.Error(t, err)
}

func TestLoadToken(t *testing.T) {
	tok, err := LoadToken(writeFile(t, "token.json", `{"access_token":"abc","token_type":"Bearer","refresh_token":"r"}`))
	require.NoError(t, err)
	assert.Equal(t, "abc", tok.AccessToken)

	_, err = LoadToken(writeFile(t, "bad.json", `{}`))
	assert.Error(t, err)
}

func TestNewHTTPClient_SignsRequests(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	client, err := NewHTTPClient(context.Background(),
		writeFile(t, "client_secret.json", installedSecret),
		writeFile(t, "token.json", `{"access_token":"abc","token_type":"Bearer","expiry":"2999-01-01T00:00:00Z"}`),
		srv.Client(),
	)
	require.NoError(t, err)

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "Bearer abc", auth)
}
