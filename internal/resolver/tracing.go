package resolver

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// resolverSpan wraps the span of one generated resolver call.
type resolverSpan struct {
	trace.Span
	outcome string
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, *resolverSpan) {
	ctx, span := otel.Tracer("graphsheets/resolver").Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, &resolverSpan{Span: span}
}

// noop marks a call that resolved to null without an error.
func (s *resolverSpan) noop() { s.outcome = "noop" }

func (s *resolverSpan) finish(err error) {
	outcome := s.outcome
	switch {
	case err != nil:
		outcome = "error"
		s.RecordError(err)
		s.SetStatus(codes.Error, err.Error())
	case outcome == "":
		outcome = "success"
	}
	s.SetAttributes(attribute.String("graphql.resolver.outcome", outcome))
	s.End()
}
