package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestInitMeterProvider(t *testing.T) {
	mp, err := InitMeterProvider(Config{
		ServiceName:    "graphsheets-test",
		ServiceVersion: "1.0.0",
		Environment:    "test",
	})
	require.NoError(t, err)
	require.NotNil(t, mp.provider)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	assert.NoError(t, mp.Shutdown(context.Background(), logger))
}

func TestParseOTLPProtocol(t *testing.T) {
	tests := []struct {
		in      string
		want    otlpProtocol
		wantErr bool
	}{
		{"", otlpProtocolGRPC, false},
		{"GRPC", otlpProtocolGRPC, false},
		{"http", otlpProtocolHTTP, false},
		{"http/protobuf", otlpProtocolHTTP, false},
		{"thrift", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseOTLPProtocol(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHTTPTraceOptions_EndpointURL(t *testing.T) {
	opts, err := httpTraceOptions(OTLPExporterConfig{Endpoint: "https://collector:4318", Insecure: true, Compression: "gzip"})
	require.NoError(t, err)
	assert.Len(t, opts, 3)

	opts, err = grpcLogOptions(OTLPExporterConfig{Endpoint: "collector:4317", Insecure: true, RetryEnabled: true})
	require.NoError(t, err)
	assert.Len(t, opts, 3)
}

func TestBuildTLSConfig_Errors(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.pem")
	require.NoError(t, os.WriteFile(garbage, []byte("not-a-cert"), 0o600))

	tests := []struct {
		name string
		cfg  OTLPExporterConfig
		want string
	}{
		{"missing CA file", OTLPExporterConfig{TLSCertFile: filepath.Join(dir, "absent.pem")}, "failed to read OTLP TLS CA file"},
		{"CA file not PEM", OTLPExporterConfig{TLSCertFile: garbage}, "failed to parse OTLP TLS CA file"},
		{"client cert without key", OTLPExporterConfig{TLSClientCertFile: garbage}, "OTLP TLS client cert and key must both be set"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildTLSConfig(tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func parentContext(traceID byte, sampled bool) context.Context {
	cfg := trace.SpanContextConfig{TraceID: trace.TraceID{traceID}, SpanID: trace.SpanID{traceID}, Remote: true}
	if sampled {
		cfg.TraceFlags = trace.FlagsSampled
	}
	return trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(cfg))
}

func TestTraceSamplerForRatio(t *testing.T) {
	tests := []struct {
		name   string
		ratio  float64
		parent context.Context
		want   sdktrace.SamplingDecision
	}{
		{"zero drops roots", 0, context.Background(), sdktrace.Drop},
		{"one keeps roots", 1, context.Background(), sdktrace.RecordAndSample},
		{"mid ratio follows sampled parent", 0.5, parentContext(3, true), sdktrace.RecordAndSample},
		{"mid ratio follows unsampled parent", 0.5, parentContext(5, false), sdktrace.Drop},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := traceSamplerForRatio(tt.ratio).ShouldSample(sdktrace.SamplingParameters{
				ParentContext: tt.parent,
				TraceID:       trace.TraceID{byte(10 + i)},
				Name:          "test",
			}).Decision
			assert.Equal(t, tt.want, got)
		})
	}
}
