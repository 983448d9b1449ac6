package middleware

import (
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/taras/graphsheets/internal/logging"
)

// GraphQLTracingMiddleware wraps GraphQL execution in a "graphql.execute" span
// carrying the operation shape, and adds trace ids to the request logger.
func GraphQLTracingMiddleware() func(http.Handler) http.Handler {
	tracer := otel.Tracer("graphsheets/graphql")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info := analyzeRequest(r)
			if info == nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx, span := tracer.Start(r.Context(), "graphql.execute", trace.WithAttributes(
				attribute.String("graphql.operation.type", info.OperationType),
				attribute.Int("graphql.document.depth", info.SelectionDepth),
				attribute.Int("graphql.document.fields", info.FieldCount),
				attribute.Int("graphql.document.variables", info.VariableCount),
				attribute.StringSlice("graphql.root_fields", info.RootFields),
			))
			defer span.End()
			if info.OperationName != "" {
				span.SetAttributes(attribute.String("graphql.operation.name", info.OperationName))
			}

			if sc := span.SpanContext(); sc.IsValid() {
				ctx = logging.WithLogger(ctx, logging.FromContext(ctx).WithFields(
					slog.String("trace_id", sc.TraceID().String()),
					slog.String("span_id", sc.SpanID().String()),
				))
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
