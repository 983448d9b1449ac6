package store

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/taras/graphsheets/internal/observability"
	"github.com/taras/graphsheets/internal/relationship"
)

// Instrumented wraps a Store with a span and metrics per call.
type Instrumented struct {
	next    Store
	metrics *observability.StoreMetrics
	tracer  trace.Tracer
	backend string
}

// Instrument decorates next. metrics may be nil.
func Instrument(next Store, backend string, metrics *observability.StoreMetrics) *Instrumented {
	return &Instrumented{
		next:    next,
		metrics: metrics,
		tracer:  otel.Tracer("graphsheets/store"),
		backend: backend,
	}
}

// Unwrap returns the decorated store.
func (s *Instrumented) Unwrap() Store { return s.next }

func (s *Instrumented) start(ctx context.Context, op, typeName string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	attrs = append(attrs,
		attribute.String("graphsheets.store.backend", s.backend),
		attribute.String("graphsheets.store.operation", op),
	)
	if typeName != "" {
		attrs = append(attrs, attribute.String("graphsheets.store.type", typeName))
	}
	ctx, span := s.tracer.Start(ctx, "store."+op, trace.WithAttributes(attrs...))
	return ctx, span, time.Now()
}

func (s *Instrumented) finish(ctx context.Context, span trace.Span, began time.Time, op, typeName string, err error) {
	s.metrics.RecordOperation(ctx, op, typeName, time.Since(began), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *Instrumented) WriteEdges(ctx context.Context, edges []relationship.Edge) ([]relationship.WrittenEdge, error) {
	ctx, span, began := s.start(ctx, "write_edges", "", attribute.Int("graphsheets.store.edges", len(edges)))
	written, err := s.next.WriteEdges(ctx, edges)
	if err == nil {
		s.metrics.RecordEdgesWritten(ctx, len(written))
	}
	s.finish(ctx, span, began, "write_edges", "", err)
	return written, err
}

func (s *Instrumented) WriteRecord(ctx context.Context, typeName string, record Record) (Record, error) {
	ctx, span, began := s.start(ctx, "write_record", typeName, attribute.String("graphsheets.store.id", record.ID()))
	written, err := s.next.WriteRecord(ctx, typeName, record)
	if err == nil {
		s.metrics.RecordRecordWrite(ctx, typeName, written != nil)
		span.SetAttributes(attribute.Bool("graphsheets.store.created", written != nil))
	}
	s.finish(ctx, span, began, "write_record", typeName, err)
	return written, err
}

func (s *Instrumented) FindRecord(ctx context.Context, typeName, id string) (Record, error) {
	ctx, span, began := s.start(ctx, "find_record", typeName, attribute.String("graphsheets.store.id", id))
	rec, err := s.next.FindRecord(ctx, typeName, id)
	s.finish(ctx, span, began, "find_record", typeName, err)
	return rec, err
}

func (s *Instrumented) FindRecords(ctx context.Context, typeName string, ids []string) ([]Record, error) {
	ctx, span, began := s.start(ctx, "find_records", typeName, attribute.Int("graphsheets.store.ids", len(ids)))
	recs, err := s.next.FindRecords(ctx, typeName, ids)
	s.finish(ctx, span, began, "find_records", typeName, err)
	return recs, err
}

func (s *Instrumented) FindAll(ctx context.Context, typeName string) ([]Record, error) {
	ctx, span, began := s.start(ctx, "find_all", typeName)
	recs, err := s.next.FindAll(ctx, typeName)
	if err == nil {
		span.SetAttributes(attribute.Int("graphsheets.store.rows", len(recs)))
	}
	s.finish(ctx, span, began, "find_all", typeName, err)
	return recs, err
}

func (s *Instrumented) Ping(ctx context.Context) error {
	ctx, span, began := s.start(ctx, "ping", "")
	err := s.next.Ping(ctx)
	s.finish(ctx, span, began, "ping", "", err)
	return err
}
