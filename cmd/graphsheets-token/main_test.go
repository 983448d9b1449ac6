package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeysThenMint(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	require.NoError(t, run([]string{"keys", "--dir", dir, "--bits", "1024"}, &out))
	assert.Contains(t, out.String(), "jwt_private.pem")

	out.Reset()
	require.NoError(t, run([]string{
		"mint",
		"--key", filepath.Join(dir, "jwt_private.pem"),
		"--subject", "alice",
		"--audience", "graphsheets,admin",
	}, &out))
	signed := strings.TrimSpace(out.String())

	key, err := loadPrivateKey(filepath.Join(dir, "jwt_private.pem"))
	require.NoError(t, err)

	parsed, err := jwt.Parse(signed, func(*jwt.Token) (any, error) { return &key.PublicKey, nil },
		jwt.WithValidMethods([]string{"RS256"}))
	require.NoError(t, err)
	assert.Equal(t, "local-key", parsed.Header["kid"])

	claims := parsed.Claims.(jwt.MapClaims)
	assert.Equal(t, "alice", claims["sub"])
	assert.Equal(t, "https://localhost:9000", claims["iss"])
	aud, err := claims.GetAudience()
	require.NoError(t, err)
	assert.Equal(t, jwt.ClaimStrings{"graphsheets", "admin"}, aud)
}

func TestMint_Lifetime(t *testing.T) {
	_, publicPath, err := writeKeyPair(t.TempDir(), 1024)
	require.NoError(t, err)
	key, err := loadPrivateKey(strings.Replace(publicPath, "jwt_public.pem", "jwt_private.pem", 1))
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	signed, err := mint(key, mintOptions{Issuer: "https://issuer", Audience: []string{" graphsheets ", ""}, Subject: "bob", KeyID: "k1", Lifetime: 10 * time.Minute}, now)
	require.NoError(t, err)

	claims := jwt.MapClaims{}
	_, _, err = jwt.NewParser().ParseUnverified(signed, claims)
	require.NoError(t, err)
	exp, err := claims.GetExpirationTime()
	require.NoError(t, err)
	assert.Equal(t, now.Add(10*time.Minute).Unix(), exp.Unix())
	aud, err := claims.GetAudience()
	require.NoError(t, err)
	assert.Equal(t, jwt.ClaimStrings{"graphsheets"}, aud)
}

func TestRun_UnknownCommand(t *testing.T) {
	assert.Error(t, run(nil, &bytes.Buffer{}))
	assert.Error(t, run([]string{"sign"}, &bytes.Buffer{}))
	assert.Error(t, run([]string{"mint", "--key", filepath.Join(t.TempDir(), "missing.pem")}, &bytes.Buffer{}))
}
