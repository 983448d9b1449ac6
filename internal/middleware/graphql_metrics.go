package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/taras/graphsheets/internal/observability"
)

// GraphQLMetricsMiddleware records request count, latency, error rate and
// selection depth per operation type. Only POST requests are measured; GET
// serves the GraphiQL page.
func GraphQLMetricsMiddleware(metrics *observability.GraphQLMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			ctx := observability.ContextWithGraphQLMetrics(r.Context(), metrics)
			metrics.IncrementActiveRequests(ctx)
			defer metrics.DecrementActiveRequests(ctx)

			start := time.Now()
			operationType := "unknown"
			if info := analyzeRequest(r); info != nil && info.OperationType != "" {
				operationType = info.OperationType
				metrics.RecordQueryDepth(ctx, int64(info.SelectionDepth), operationType)
			}

			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK, body: &bytes.Buffer{}}
			next.ServeHTTP(rec, r.WithContext(ctx))

			failed := rec.statusCode >= http.StatusBadRequest || hasGraphQLErrors(rec.body.Bytes())
			metrics.RecordRequest(ctx, time.Since(start), failed, operationType)
		})
	}
}

// hasGraphQLErrors reports whether a response body carries a non-empty errors array.
func hasGraphQLErrors(body []byte) bool {
	var payload struct {
		Errors []json.RawMessage `json:"errors"`
	}
	if json.Unmarshal(body, &payload) != nil {
		return false
	}
	return len(payload.Errors) > 0
}
