// Command graphsheets-token creates a local RSA signing key and mints bearer
// tokens for exercising the server's OIDC authentication during development.
//
//	graphsheets-token keys --dir .auth
//	graphsheets-token mint --key .auth/jwt_private.pem --subject alice
package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: graphsheets-token <keys|mint> [flags]")
	}
	switch args[0] {
	case "keys":
		return runKeys(args[1:], out)
	case "mint":
		return runMint(args[1:], out)
	default:
		return fmt.Errorf("unknown command %q, want keys or mint", args[0])
	}
}

func runKeys(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("keys", pflag.ContinueOnError)
	dir := fs.String("dir", ".auth", "Output directory for keys")
	bits := fs.Int("bits", 2048, "RSA key size")
	if err := fs.Parse(args); err != nil {
		return err
	}

	privatePath, publicPath, err := writeKeyPair(*dir, *bits)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "wrote %s and %s\n", privatePath, publicPath)
	return err
}

func runMint(args []string, out io.Writer) error {
	username := "graphsheets-dev"
	if u, err := user.Current(); err == nil {
		username = u.Username
	}

	fs := pflag.NewFlagSet("mint", pflag.ContinueOnError)
	keyPath := fs.String("key", ".auth/jwt_private.pem", "Path to RSA private key (PEM)")
	opts := mintOptions{}
	fs.StringVar(&opts.Issuer, "issuer", "https://localhost:9000", "Token issuer")
	fs.StringSliceVar(&opts.Audience, "audience", []string{"graphsheets"}, "Token audience")
	fs.StringVar(&opts.Subject, "subject", username, "Token subject")
	fs.StringVar(&opts.KeyID, "kid", "local-key", "Key ID header")
	fs.DurationVar(&opts.Lifetime, "expires", time.Hour, "Token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	key, err := loadPrivateKey(*keyPath)
	if err != nil {
		return err
	}
	signed, err := mint(key, opts, time.Now())
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, signed)
	return err
}

type mintOptions struct {
	Issuer   string
	Audience []string
	Subject  string
	KeyID    string
	Lifetime time.Duration
}

func mint(key *rsa.PrivateKey, opts mintOptions, now time.Time) (string, error) {
	audience := make([]string, 0, len(opts.Audience))
	for _, a := range opts.Audience {
		if a = strings.TrimSpace(a); a != "" {
			audience = append(audience, a)
		}
	}

	claims := jwt.MapClaims{
		"iss": opts.Issuer,
		"sub": opts.Subject,
		"aud": audience,
		"iat": now.Unix(),
		"nbf": now.Add(-time.Minute).Unix(),
		"exp": now.Add(opts.Lifetime).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = opts.KeyID
	return token.SignedString(key)
}

func writeKeyPair(dir string, bits int) (string, string, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", "", fmt.Errorf("failed to create dir: %w", err)
	}
	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate key: %w", err)
	}
	publicBytes, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal public key: %w", err)
	}

	privatePath := filepath.Join(dir, "jwt_private.pem")
	publicPath := filepath.Join(dir, "jwt_public.pem")
	if err := writePEM(privatePath, "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(privateKey), 0o600); err != nil {
		return "", "", err
	}
	if err := writePEM(publicPath, "PUBLIC KEY", publicBytes, 0o644); err != nil {
		return "", "", err
	}
	return privatePath, publicPath, nil
}

func writePEM(path, pemType string, der []byte, perm os.FileMode) error {
	data := pem.EncodeToMemory(&pem.Block{Type: pemType, Bytes: der})
	if err := os.WriteFile(path, data, perm); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// loadPrivateKey accepts PKCS#1 and PKCS#8 encodings.
func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode private key pem")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("unsupported private key type %T", parsed)
	}
	return key, nil
}
