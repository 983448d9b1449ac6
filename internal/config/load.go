// Package config loads configuration from files, env vars, and flags, and validates it.
package config

import (
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "GSHEETS"

var defineFlagsOnce sync.Once

// Load loads configuration with the following precedence:
// 1. Explicit overrides (v.Set) for secrets read from files or the terminal
// 2. Command line flags
// 3. Environment variables
// 4. Config file
// 5. Default values
func Load() (*Config, error) {
	defineFlags()
	if !pflag.Parsed() {
		pflag.Parse()
	}
	return LoadFlags(pflag.CommandLine)
}

// LoadFlags runs Load against an already parsed flag set.
func LoadFlags(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// --- Config file ---
	cfgPath, _ := flags.GetString("config")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.SetConfigName("graphsheets")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/graphsheets/")
		v.AddConfigPath("$HOME/.graphsheets")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if cfgPath != "" {
			return nil, fmt.Errorf("failed to read config file %q: %w", cfgPath, err)
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// --- Environment variables ---
	// Env vars: GSHEETS_STORE_SHEETS_SPREADSHEET_ID
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	bindChangedFlagsToViper(v, flags)

	// --- Secure password input ---
	if v.GetString("store.database.password") == "" && v.GetString("store.database.password_file") != "" {
		pwd, err := readSecretFile(v.GetString("store.database.password_file"))
		if err != nil {
			return nil, fmt.Errorf("failed to read database password file: %w", err)
		}
		v.Set("store.database.password", pwd)
	}
	if v.GetString("store.database.password") == "" && v.GetBool("store.database.password_prompt") {
		pwd, err := promptPassword()
		if err != nil {
			return nil, fmt.Errorf("failed to read password: %w", err)
		}
		v.Set("store.database.password", pwd)
	}

	// --- Unmarshal (strict) ---
	var cfg Config
	if err := v.UnmarshalExact(
		&cfg,
		viper.DecodeHook(
			mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				stringToStringSliceHookFunc(","),
			),
		),
	); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// bindChangedFlagsToViper copies only explicitly-set flags into Viper,
// preserving precedence: flags > env > file > defaults.
func bindChangedFlagsToViper(v *viper.Viper, flags *pflag.FlagSet) {
	flags.Visit(func(f *pflag.Flag) {
		if f.Name == "config" || f.Name == "version" {
			return
		}

		switch f.Value.Type() {
		case "string":
			val, _ := flags.GetString(f.Name)
			v.Set(f.Name, val)
		case "int":
			val, _ := flags.GetInt(f.Name)
			v.Set(f.Name, val)
		case "bool":
			val, _ := flags.GetBool(f.Name)
			v.Set(f.Name, val)
		case "float64":
			val, _ := flags.GetFloat64(f.Name)
			v.Set(f.Name, val)
		case "duration":
			val, _ := flags.GetDuration(f.Name)
			v.Set(f.Name, val)
		case "stringSlice":
			val, _ := flags.GetStringSlice(f.Name)
			v.Set(f.Name, val)
		default:
			v.Set(f.Name, f.Value.String())
		}
	})
}

// defineFlags registers the command line flags on the global flag set.
func defineFlags() {
	defineFlagsOnce.Do(func() {
		DefineFlags(pflag.CommandLine)
	})
}

// DefineFlags defines all command line flags on fs using canonical snake_case keys.
func DefineFlags(fs *pflag.FlagSet) {
	fs.String("schema.path", "", "Path to the GraphQL SDL describing the object graph")

	// Store flags
	fs.String("store.backend", "", "Store backend (memory, sheets, mysql)")
	fs.Bool("store.migrate", false, "Create missing tables or sheets on startup")
	fs.String("store.sheets.spreadsheet_id", "", "Spreadsheet id backing the object graph")
	fs.String("store.sheets.client_secret_file", "", "Path to OAuth client secret JSON")
	fs.String("store.sheets.token_file", "", "Path to saved OAuth token JSON")
	fs.Float64("store.sheets.requests_per_second", 0, "Client-side rate limit for spreadsheet API calls")
	fs.Int("store.sheets.burst", 0, "Burst size for spreadsheet API calls")
	fs.Duration("store.sheets.request_timeout", 0, "Timeout for a single spreadsheet API call")

	fs.String("store.database.dsn", "", "Complete MySQL DSN (user:pass@tcp(host:port)/db)")
	fs.String("store.database.host", "", "Database host")
	fs.Int("store.database.port", 0, "Database port")
	fs.String("store.database.user", "", "Database user")
	fs.String("store.database.password", "", "Database password")
	fs.String("store.database.password_file", "", "Path to file containing database password (use @- for stdin)")
	fs.Bool("store.database.password_prompt", false, "Prompt for database password securely")
	fs.String("store.database.database", "", "Database name")
	fs.String("store.database.tls.mode", "", "TLS mode (off, skip-verify, verify-ca, verify-full)")
	fs.String("store.database.tls.ca_file", "", "Path to CA certificate for server verification")
	fs.Int("store.database.pool.max_open", 0, "Maximum open database connections")
	fs.Int("store.database.pool.max_idle", 0, "Maximum idle connections in pool")
	fs.Duration("store.database.connection_timeout", 0, "Max time to wait for database on startup (0 = fail immediately)")

	// Mutation flags
	fs.String("mutation.id_format", "", "Generated id format (uuid, sequence)")
	fs.Int("mutation.max_concurrency", 0, "Max sibling creates in flight per object (0 = unbounded)")

	// Server flags
	fs.Int("server.port", 0, "HTTP server port")
	fs.Bool("server.graphiql_enabled", false, "Enable GraphiQL UI for /graphql (dev only)")
	fs.Bool("server.auth.oidc_enabled", false, "Enable OIDC/JWKS authentication middleware")
	fs.String("server.auth.oidc_issuer_url", "", "OIDC issuer URL (for discovery and JWKS)")
	fs.String("server.auth.oidc_audience", "", "Expected JWT audience (client ID)")
	fs.Duration("server.auth.oidc_clock_skew", 0, "Allowed JWT clock skew (e.g. 2m)")
	fs.Bool("server.auth.oidc_skip_tls_verify", false, "Skip TLS verification for OIDC provider (dev only)")
	fs.String("server.auth.oidc_ca_file", "", "Extra CA bundle trusted for the OIDC provider")
	fs.Bool("server.rate_limit_enabled", false, "Enable global rate limiting for all HTTP endpoints")
	fs.Float64("server.rate_limit_rps", 0, "Global rate limit requests per second")
	fs.Int("server.rate_limit_burst", 0, "Global rate limit burst size")
	fs.Bool("server.cors_enabled", false, "Enable CORS (Cross-Origin Resource Sharing)")
	fs.StringSlice("server.cors_allowed_origins", nil, "Allowed CORS origins (comma-separated or repeated)")
	fs.Bool("server.cors_allow_credentials", false, "Allow credentials in CORS requests")
	fs.Duration("server.read_timeout", 0, "HTTP server read timeout")
	fs.Duration("server.write_timeout", 0, "HTTP server write timeout")
	fs.Duration("server.shutdown_timeout", 0, "HTTP server graceful shutdown timeout")

	// Observability flags
	fs.String("observability.service_name", "", "Service name for observability")
	fs.String("observability.environment", "", "Environment name (dev, staging, prod)")
	fs.Bool("observability.metrics_enabled", false, "Enable metrics collection")
	fs.Bool("observability.tracing_enabled", false, "Enable distributed tracing")
	fs.Float64("observability.trace_sample_ratio", 0, "Trace sampling ratio from 0.0 to 1.0")
	fs.String("observability.logging.level", "", "Log level (debug, info, warn, error)")
	fs.String("observability.logging.format", "", "Log format (json, text)")
	fs.Bool("observability.logging.exports_enabled", false, "Enable OTLP log export")
	fs.String("observability.otlp.endpoint", "", "OTLP endpoint for all signals (e.g., localhost:4317)")
	fs.String("observability.otlp.protocol", "", "OTLP protocol for all signals (grpc, http/protobuf)")
	fs.Bool("observability.otlp.insecure", false, "Use insecure connection (no TLS)")

	fs.StringP("config", "c", "", "Config file path")
}

// setDefaults sets default values (lowest precedence).
func setDefaults(v *viper.Viper) {
	v.SetDefault("schema.path", "schema.graphql")

	v.SetDefault("store.backend", BackendMemory)
	v.SetDefault("store.migrate", true)
	v.SetDefault("store.sheets.spreadsheet_id", "")
	v.SetDefault("store.sheets.client_secret_file", "client_secret.json")
	v.SetDefault("store.sheets.token_file", "token.json")
	v.SetDefault("store.sheets.api_base", "")
	v.SetDefault("store.sheets.query_base", "")
	v.SetDefault("store.sheets.requests_per_second", 5.0)
	v.SetDefault("store.sheets.burst", 10)
	v.SetDefault("store.sheets.request_timeout", 30*time.Second)

	v.SetDefault("store.database.dsn", "")
	v.SetDefault("store.database.host", "localhost")
	v.SetDefault("store.database.port", 4000)
	v.SetDefault("store.database.user", "graphsheets")
	v.SetDefault("store.database.password", "")
	v.SetDefault("store.database.password_file", "")
	v.SetDefault("store.database.password_prompt", false)
	v.SetDefault("store.database.database", "graphsheets")
	v.SetDefault("store.database.records_table", "")
	v.SetDefault("store.database.relationships_table", "")
	v.SetDefault("store.database.tls.mode", "")
	v.SetDefault("store.database.tls.ca_file", "")
	v.SetDefault("store.database.tls.cert_file", "")
	v.SetDefault("store.database.tls.key_file", "")
	v.SetDefault("store.database.tls.server_name", "")
	v.SetDefault("store.database.pool.max_open", 25)
	v.SetDefault("store.database.pool.max_idle", 5)
	v.SetDefault("store.database.pool.max_lifetime", 5*time.Minute)
	v.SetDefault("store.database.connection_timeout", 60*time.Second)
	v.SetDefault("store.database.connection_retry_interval", 2*time.Second)

	v.SetDefault("mutation.id_format", IDFormatUUID)
	v.SetDefault("mutation.max_concurrency", 0)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.graphiql_enabled", false)
	v.SetDefault("server.auth.oidc_enabled", false)
	v.SetDefault("server.auth.oidc_issuer_url", "")
	v.SetDefault("server.auth.oidc_audience", "")
	v.SetDefault("server.auth.oidc_clock_skew", 2*time.Minute)
	v.SetDefault("server.auth.oidc_skip_tls_verify", false)
	v.SetDefault("server.auth.oidc_ca_file", "")
	v.SetDefault("server.rate_limit_enabled", false)
	v.SetDefault("server.rate_limit_rps", 0.0)
	v.SetDefault("server.rate_limit_burst", 0)
	v.SetDefault("server.cors_enabled", false)
	v.SetDefault("server.cors_allowed_origins", []string{})
	v.SetDefault("server.cors_allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("server.cors_allowed_headers", []string{"Content-Type", "Authorization"})
	v.SetDefault("server.cors_expose_headers", []string{})
	v.SetDefault("server.cors_allow_credentials", false)
	v.SetDefault("server.cors_max_age", 86400)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.health_check_timeout", 2*time.Second)

	v.SetDefault("observability.service_name", "graphsheets")
	v.SetDefault("observability.service_version", "")
	v.SetDefault("observability.environment", "development")
	v.SetDefault("observability.metrics_enabled", true)
	v.SetDefault("observability.tracing_enabled", false)
	v.SetDefault("observability.trace_sample_ratio", 1.0)
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.logging.exports_enabled", false)
	v.SetDefault("observability.otlp.endpoint", "localhost:4317")
	v.SetDefault("observability.otlp.protocol", "grpc")
	v.SetDefault("observability.otlp.insecure", false)
	v.SetDefault("observability.otlp.tls_cert_file", "")
	v.SetDefault("observability.otlp.tls_client_cert_file", "")
	v.SetDefault("observability.otlp.tls_client_key_file", "")
	v.SetDefault("observability.otlp.timeout", 10*time.Second)
	v.SetDefault("observability.otlp.compression", "gzip")
	v.SetDefault("observability.otlp.retry_enabled", true)

	v.SetDefault("naming.plural_overrides", map[string]string{})
	v.SetDefault("naming.singular_overrides", map[string]string{})
}

// promptPassword prompts the user for a password without echoing to terminal.
func promptPassword() (string, error) {
	fmt.Print("Enter database password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(bytePassword), nil
}

// readSecretFile reads a trimmed secret; "@-" reads stdin.
func readSecretFile(path string) (string, error) {
	var data []byte
	var err error

	if path == "@-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func stringToStringSliceHookFunc(sep string) mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf([]string{}) {
			return data, nil
		}

		raw := strings.TrimSpace(data.(string))
		if raw == "" {
			return []string{}, nil
		}

		parts := strings.Split(raw, sep)
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	}
}
