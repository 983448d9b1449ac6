package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope for every instrument defined here.
const MeterName = "graphsheets"

// GraphQLMetrics holds custom metrics for GraphQL operations
type GraphQLMetrics struct {
	requestDuration metric.Float64Histogram
	requestCounter  metric.Int64Counter
	errorCounter    metric.Int64Counter
	activeRequests  metric.Int64UpDownCounter
	queryDepth      metric.Int64Histogram
}

// NewGraphQLMetrics creates the GraphQL request instruments on meter.
func NewGraphQLMetrics(meter metric.Meter) (*GraphQLMetrics, error) {
	requestDuration, err := meter.Float64Histogram(
		"graphql.request.duration",
		metric.WithDescription("Duration of GraphQL requests in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request duration histogram: %w", err)
	}
	requestCounter, err := meter.Int64Counter(
		"graphql.requests.total",
		metric.WithDescription("Total number of GraphQL requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}
	errorCounter, err := meter.Int64Counter(
		"graphql.errors.total",
		metric.WithDescription("Total number of GraphQL requests that returned errors"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create error counter: %w", err)
	}
	activeRequests, err := meter.Int64UpDownCounter(
		"graphql.requests.active",
		metric.WithDescription("Number of active GraphQL requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create active requests counter: %w", err)
	}
	queryDepth, err := meter.Int64Histogram(
		"graphql.query.depth",
		metric.WithDescription("Selection depth of GraphQL operations"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create query depth histogram: %w", err)
	}

	return &GraphQLMetrics{
		requestDuration: requestDuration,
		requestCounter:  requestCounter,
		errorCounter:    errorCounter,
		activeRequests:  activeRequests,
		queryDepth:      queryDepth,
	}, nil
}

// RecordRequest records a GraphQL request with its duration and outcome
func (m *GraphQLMetrics) RecordRequest(ctx context.Context, duration time.Duration, hasErrors bool, operationType string) {
	attrs := metric.WithAttributes(
		attribute.String("operation_type", operationType),
		attribute.Bool("has_errors", hasErrors),
	)
	m.requestDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	m.requestCounter.Add(ctx, 1, attrs)
	if hasErrors {
		m.errorCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("operation_type", operationType)))
	}
}

// RecordQueryDepth records the selection depth of an operation
func (m *GraphQLMetrics) RecordQueryDepth(ctx context.Context, depth int64, operationType string) {
	m.queryDepth.Record(ctx, depth, metric.WithAttributes(attribute.String("operation_type", operationType)))
}

// IncrementActiveRequests increments the active requests counter
func (m *GraphQLMetrics) IncrementActiveRequests(ctx context.Context) {
	m.activeRequests.Add(ctx, 1)
}

// DecrementActiveRequests decrements the active requests counter
func (m *GraphQLMetrics) DecrementActiveRequests(ctx context.Context) {
	m.activeRequests.Add(ctx, -1)
}

// StoreMetrics counts backing store calls and what they wrote.
type StoreMetrics struct {
	operations     metric.Int64Counter
	duration       metric.Float64Histogram
	edgesWritten   metric.Int64Counter
	recordsWritten metric.Int64Counter
	recordsSkipped metric.Int64Counter
}

// NewStoreMetrics creates the store instruments on meter.
func NewStoreMetrics(meter metric.Meter) (*StoreMetrics, error) {
	operations, err := meter.Int64Counter(
		"graphsheets.store.operations.total",
		metric.WithDescription("Backing store calls by operation and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create store operations counter: %w", err)
	}
	duration, err := meter.Float64Histogram(
		"graphsheets.store.operation.duration",
		metric.WithDescription("Duration of backing store calls in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create store duration histogram: %w", err)
	}
	edgesWritten, err := meter.Int64Counter(
		"graphsheets.store.edges.written",
		metric.WithDescription("Relationship edges appended to the edge index"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create edges written counter: %w", err)
	}
	recordsWritten, err := meter.Int64Counter(
		"graphsheets.store.records.written",
		metric.WithDescription("Records materialized by the store"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create records written counter: %w", err)
	}
	recordsSkipped, err := meter.Int64Counter(
		"graphsheets.store.records.skipped",
		metric.WithDescription("Record writes that did not materialize a row"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create records skipped counter: %w", err)
	}
	return &StoreMetrics{
		operations:     operations,
		duration:       duration,
		edgesWritten:   edgesWritten,
		recordsWritten: recordsWritten,
		recordsSkipped: recordsSkipped,
	}, nil
}

// RecordOperation records one store call. A nil receiver is a no-op.
func (m *StoreMetrics) RecordOperation(ctx context.Context, operation, typeName string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("type", typeName),
		attribute.String("outcome", outcome),
	)
	m.operations.Add(ctx, 1, attrs)
	m.duration.Record(ctx, float64(duration.Microseconds())/1000, attrs)
}

// RecordEdgesWritten adds n appended edges.
func (m *StoreMetrics) RecordEdgesWritten(ctx context.Context, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.edgesWritten.Add(ctx, int64(n))
}

// RecordRecordWrite counts a record write by whether it produced a row.
func (m *StoreMetrics) RecordRecordWrite(ctx context.Context, typeName string, created bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("type", typeName))
	if created {
		m.recordsWritten.Add(ctx, 1, attrs)
	} else {
		m.recordsSkipped.Add(ctx, 1, attrs)
	}
}

// AuthMetrics counts bearer token authentication outcomes.
type AuthMetrics struct {
	attempts  metric.Int64Counter
	failures  metric.Int64Counter
	successes metric.Int64Counter
}

// NewAuthMetrics creates the authentication instruments on meter.
func NewAuthMetrics(meter metric.Meter) (*AuthMetrics, error) {
	attempts, err := meter.Int64Counter(
		"security.auth.attempts.total",
		metric.WithDescription("Total number of authentication attempts"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth attempts counter: %w", err)
	}
	failures, err := meter.Int64Counter(
		"security.auth.failures.total",
		metric.WithDescription("Total number of authentication failures"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth failures counter: %w", err)
	}
	successes, err := meter.Int64Counter(
		"security.auth.successes.total",
		metric.WithDescription("Total number of successful authentications"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth successes counter: %w", err)
	}
	return &AuthMetrics{attempts: attempts, failures: failures, successes: successes}, nil
}

// RecordAuthAttempt records an authentication attempt
func (m *AuthMetrics) RecordAuthAttempt(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	m.attempts.Add(ctx, 1, metric.WithAttributes(attribute.String("endpoint", endpoint)))
}

// RecordAuthFailure records a failed authentication attempt
func (m *AuthMetrics) RecordAuthFailure(ctx context.Context, endpoint, reason string) {
	if m == nil {
		return
	}
	m.failures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("reason", reason),
	))
}

// RecordAuthSuccess records a successful authentication
func (m *AuthMetrics) RecordAuthSuccess(ctx context.Context, endpoint, issuer string) {
	if m == nil {
		return
	}
	m.successes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("issuer", issuer),
	))
}

// Metrics bundles every instrument set used by the server.
type Metrics struct {
	GraphQL *GraphQLMetrics
	Store   *StoreMetrics
	Auth    *AuthMetrics
}

// InitMetrics creates every instrument set on the global meter provider.
func InitMetrics(logger *slog.Logger) (*Metrics, error) {
	meter := otel.Meter(MeterName)
	gql, err := NewGraphQLMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GraphQL metrics: %w", err)
	}
	st, err := NewStoreMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store metrics: %w", err)
	}
	auth, err := NewAuthMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize auth metrics: %w", err)
	}
	logger.Info("custom metrics initialized")
	return &Metrics{GraphQL: gql, Store: st, Auth: auth}, nil
}

type graphQLMetricsContextKey struct{}

// ContextWithGraphQLMetrics stores GraphQL metrics in the provided context.
func ContextWithGraphQLMetrics(ctx context.Context, metrics *GraphQLMetrics) context.Context {
	return context.WithValue(ctx, graphQLMetricsContextKey{}, metrics)
}

// GraphQLMetricsFromContext retrieves GraphQL metrics from the context.
func GraphQLMetricsFromContext(ctx context.Context) *GraphQLMetrics {
	metrics, _ := ctx.Value(graphQLMetricsContextKey{}).(*GraphQLMetrics)
	return metrics
}
