package sheets

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	sheetsapi "google.golang.org/api/sheets/v4"
)

// LoadOAuthConfig reads a client_secret.json downloaded from the Google API
// console. Installed-app and web clients are both accepted.
func LoadOAuthConfig(path string) (*oauth2.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read client secret: %w", err)
	}
	cfg, err := google.ConfigFromJSON(data, sheetsapi.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse client secret %s: %w", path, err)
	}
	return cfg, nil
}

// LoadToken reads a token previously saved by an authorization flow.
func LoadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read token: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("failed to parse token %s: %w", path, err)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, fmt.Errorf("token %s has neither access nor refresh token", path)
	}
	return &tok, nil
}

// NewHTTPClient returns a client that signs requests with the saved token and
// refreshes it when it expires. base is used for the refresh round trips and
// as the transport under the oauth2 layer; nil means http.DefaultClient.
func NewHTTPClient(ctx context.Context, secretPath, tokenPath string, base *http.Client) (*http.Client, error) {
	cfg, err := LoadOAuthConfig(secretPath)
	if err != nil {
		return nil, err
	}
	tok, err := LoadToken(tokenPath)
	if err != nil {
		return nil, err
	}
	if base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	}
	return cfg.Client(ctx, tok), nil
}
