package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

func (r *ValidationResult) errorf(field, hint, format string, args ...any) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Hint: hint})
}

func (r *ValidationResult) warn(field, message, hint string) {
	r.Warnings = append(r.Warnings, ValidationWarning{Field: field, Message: message, Hint: hint})
}

// Validate checks the configuration and returns fatal errors and warnings.
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}

	if strings.TrimSpace(c.Schema.Path) == "" {
		result.errorf("schema.path", "point schema.path at a .graphql SDL file", "schema path is required")
	}
	c.Store.validate(result)
	c.Mutation.validate(result)
	c.Server.validate(result)
	c.Observability.validate(result)
	validateOverrides(result, "naming.plural_overrides", c.Naming.PluralOverrides)
	validateOverrides(result, "naming.singular_overrides", c.Naming.SingularOverrides)

	return result
}

func (s *StoreConfig) validate(result *ValidationResult) {
	switch s.Backend {
	case BackendMemory:
		result.warn("store.backend", "memory backend keeps data only for the life of the process", "use sheets or mysql to persist data")
	case BackendSheets:
		s.Sheets.validate(result)
	case BackendMySQL:
		s.Database.validate(result)
	default:
		result.errorf("store.backend", "valid values are: memory, sheets, mysql", "invalid store backend %q", s.Backend)
	}
}

func (s *SheetsConfig) validate(result *ValidationResult) {
	if strings.TrimSpace(s.SpreadsheetID) == "" {
		result.errorf("store.sheets.spreadsheet_id", "copy the id from the spreadsheet URL", "spreadsheet id is required for the sheets backend")
	}
	if strings.TrimSpace(s.ClientSecretFile) == "" {
		result.errorf("store.sheets.client_secret_file", "", "client secret file is required for the sheets backend")
	}
	if strings.TrimSpace(s.TokenFile) == "" {
		result.errorf("store.sheets.token_file", "", "token file is required for the sheets backend")
	}
	if s.RequestsPerSecond < 0 {
		result.errorf("store.sheets.requests_per_second", "use 0 to disable client-side throttling", "requests_per_second cannot be negative")
	}
	if s.RequestsPerSecond > 0 && s.Burst <= 0 {
		result.errorf("store.sheets.burst", "", "burst must be greater than 0 when requests_per_second is set")
	}
	if s.RequestTimeout < 0 {
		result.errorf("store.sheets.request_timeout", "", "request_timeout cannot be negative")
	}
}

func (d *DatabaseConfig) validate(result *ValidationResult) {
	if d.ConnectionString != "" {
		if _, err := mysql.ParseDSN(d.ConnectionString); err != nil {
			result.errorf("store.database.dsn", "use user:pass@tcp(host:port)/db", "invalid DSN: %v", err)
		}
	} else {
		if d.Port < 1 || d.Port > 65535 {
			result.errorf("store.database.port", "", "port %d is out of valid range (1-65535)", d.Port)
		}
		if strings.TrimSpace(d.Database) == "" {
			result.errorf("store.database.database", "", "database name is required")
		}
	}

	validModes := map[string]bool{"": true, "off": true, "skip-verify": true, "verify-ca": true, "verify-full": true}
	if !validModes[d.TLS.Mode] {
		result.errorf("store.database.tls.mode", "valid values are: off, skip-verify, verify-ca, verify-full", "invalid TLS mode %q", d.TLS.Mode)
	}
	if (d.TLS.Mode == "verify-ca" || d.TLS.Mode == "verify-full") && d.TLS.CAFile == "" {
		result.warn("store.database.tls.ca_file", "no CA file configured", "system roots will be used for verification")
	}
	if (d.TLS.CertFile == "") != (d.TLS.KeyFile == "") {
		result.errorf("store.database.tls.cert_file", "", "cert_file and key_file must be set together")
	}

	if d.Pool.MaxOpen < 0 {
		result.errorf("store.database.pool.max_open", "", "max_open cannot be negative")
	}
	if d.Pool.MaxIdle < 0 {
		result.errorf("store.database.pool.max_idle", "", "max_idle cannot be negative")
	}
	if d.Pool.MaxIdle > d.Pool.MaxOpen && d.Pool.MaxOpen > 0 {
		result.warn("store.database.pool.max_idle", "max_idle is greater than max_open", "idle connections will be limited to max_open")
	}

	if d.ConnectionTimeout < 0 {
		result.errorf("store.database.connection_timeout", "", "connection_timeout cannot be negative")
	}
	if d.ConnectionRetryInterval < 0 {
		result.errorf("store.database.connection_retry_interval", "", "connection_retry_interval cannot be negative")
	}
	if d.ConnectionTimeout > 0 && d.ConnectionRetryInterval == 0 {
		result.errorf("store.database.connection_retry_interval",
			"set a retry interval such as 2s, or set connection_timeout to 0 to disable retries",
			"connection_retry_interval must be greater than 0 when connection_timeout is set")
	}
}

func (m *MutationConfig) validate(result *ValidationResult) {
	if m.IDFormat != IDFormatUUID && m.IDFormat != IDFormatSequence {
		result.errorf("mutation.id_format", "valid values are: uuid, sequence", "invalid id format %q", m.IDFormat)
	}
	if m.IDFormat == IDFormatSequence {
		result.warn("mutation.id_format", "sequence ids restart at 1 on every process start", "use uuid outside tests and demos")
	}
	if m.MaxConcurrency < 0 {
		result.errorf("mutation.max_concurrency", "use 0 for unbounded", "max_concurrency cannot be negative")
	}
}

func (s *ServerConfig) validate(result *ValidationResult) {
	if s.Port < 1 || s.Port > 65535 {
		result.errorf("server.port", "", "port %d is out of valid range (1-65535)", s.Port)
	}

	if s.RateLimitEnabled {
		if s.RateLimitRPS <= 0 {
			result.errorf("server.rate_limit_rps", "", "rate_limit_rps must be greater than 0 when rate limiting is enabled")
		}
		if s.RateLimitBurst <= 0 {
			result.errorf("server.rate_limit_burst", "", "rate_limit_burst must be greater than 0 when rate limiting is enabled")
		}
	} else if s.RateLimitRPS > 0 || s.RateLimitBurst > 0 {
		result.warn("server.rate_limit_enabled", "rate limit values are set but rate limiting is disabled", "enable server.rate_limit_enabled to apply rate limits")
	}

	if s.CORSEnabled {
		if len(s.CORSAllowedOrigins) == 0 {
			result.errorf("server.cors_allowed_origins", "set cors_allowed_origins or disable CORS", "CORS enabled but no allowed origins configured")
		}
		hasWildcard := false
		for _, origin := range s.CORSAllowedOrigins {
			if strings.TrimSpace(origin) == "*" {
				hasWildcard = true
				break
			}
		}
		if hasWildcard && s.CORSAllowCredentials {
			result.errorf("server.cors_allowed_origins", "use specific origins with credentials, or wildcard without credentials", "wildcard origin (*) cannot be used with credentials")
		}
		if hasWildcard {
			result.warn("server.cors_allowed_origins", "CORS wildcard origin enabled", "use specific origins in production for better security")
		}
	}

	if s.Auth.OIDCEnabled {
		if s.Auth.OIDCIssuerURL == "" {
			result.errorf("server.auth.oidc_issuer_url", "", "issuer URL is required when OIDC is enabled")
		}
		if s.Auth.OIDCAudience == "" {
			result.errorf("server.auth.oidc_audience", "", "audience is required when OIDC is enabled")
		}
		if s.Auth.OIDCSkipTLSVerify {
			result.warn("server.auth.oidc_skip_tls_verify", "OIDC provider TLS verification is disabled", "only use this against local development providers")
		}
	}

	for field, d := range map[string]time.Duration{
		"server.read_timeout":         s.ReadTimeout,
		"server.write_timeout":        s.WriteTimeout,
		"server.idle_timeout":         s.IdleTimeout,
		"server.shutdown_timeout":     s.ShutdownTimeout,
		"server.health_check_timeout": s.HealthCheckTimeout,
	} {
		if d < 0 {
			result.errorf(field, "", "timeout cannot be negative")
		}
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[o.Logging.Level] {
		result.errorf("observability.logging.level", "valid values are: debug, info, warn, error", "invalid log level %q", o.Logging.Level)
	}
	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[o.Logging.Format] {
		result.errorf("observability.logging.format", "valid values are: json, text", "invalid log format %q", o.Logging.Format)
	}
	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.errorf("observability.trace_sample_ratio", "", "trace_sample_ratio must be between 0.0 and 1.0")
	}

	o.OTLP.validate("observability.otlp", result)
	if o.Traces != nil {
		o.Traces.validate("observability.traces", result)
	}
	if o.Logs != nil {
		o.Logs.validate("observability.logs", result)
	}
	if o.Metrics != nil {
		o.Metrics.validate("observability.metrics", result)
	}
}

func (o *OTLPConfig) validate(prefix string, result *ValidationResult) {
	validProtocols := map[string]bool{"": true, "grpc": true, "http/protobuf": true}
	if !validProtocols[o.Protocol] {
		result.errorf(prefix+".protocol", "valid values are: grpc, http/protobuf", "invalid OTLP protocol %q", o.Protocol)
	}
	if o.Protocol == "http/protobuf" && !validOTLPEndpoint(o.Endpoint) {
		result.errorf(prefix+".endpoint", "use host:port or a full URL", "invalid OTLP endpoint %q for http/protobuf", o.Endpoint)
	}
	validCompressions := map[string]bool{"": true, "none": true, "gzip": true}
	if !validCompressions[o.Compression] {
		result.errorf(prefix+".compression", "valid values are: none, gzip", "invalid OTLP compression %q", o.Compression)
	}
}

func validOTLPEndpoint(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return false
		}
		return parsed.Host != ""
	}
	_, _, err := net.SplitHostPort(endpoint)
	return err == nil
}

func validateOverrides(result *ValidationResult, field string, overrides map[string]string) {
	for from, to := range overrides {
		if strings.TrimSpace(from) == "" {
			result.errorf(field, "", "override key cannot be empty")
			continue
		}
		if strings.TrimSpace(to) == "" {
			result.errorf(field, "", "override for %q cannot be empty", from)
		}
	}
}
