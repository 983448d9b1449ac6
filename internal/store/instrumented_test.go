package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/taras/graphsheets/internal/observability"
	"github.com/taras/graphsheets/internal/relationship"
	"github.com/taras/graphsheets/internal/store"
	"github.com/taras/graphsheets/internal/store/memstore"
)

type failingStore struct {
	store.Store
	err error
}

func (f failingStore) FindAll(context.Context, string) ([]store.Record, error) { return nil, f.err }

func counters(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					out[m.Name] += dp.Value
				}
			}
		}
	}
	return out
}

func newMetrics(t *testing.T) (*observability.StoreMetrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	m, err := observability.NewStoreMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test"))
	require.NoError(t, err)
	return m, reader
}

func TestInstrumented_PassesThroughAndCounts(t *testing.T) {
	metrics, reader := newMetrics(t)
	mem := memstore.New()
	s := store.Instrument(mem, "memory", metrics)
	assert.Same(t, mem, s.Unwrap())
	ctx := context.Background()

	written, err := s.WriteEdges(ctx, []relationship.Edge{
		{SourceType: "Person", SourceID: "1", Field: "father", TargetType: "Person", TargetID: "2"},
	})
	require.NoError(t, err)
	assert.Len(t, written, 1)

	rec, err := s.WriteRecord(ctx, "Person", store.Record{"id": "1", "name": "Lois"})
	require.NoError(t, err)
	assert.Equal(t, "Lois", rec["name"])

	dup, err := s.WriteRecord(ctx, "Person", store.Record{"id": "1"})
	require.NoError(t, err)
	assert.Nil(t, dup)

	found, err := s.FindRecord(ctx, "Person", "1")
	require.NoError(t, err)
	assert.Equal(t, "1", found.ID())

	all, err := s.FindAll(ctx, "Person")
	require.NoError(t, err)
	assert.Len(t, all, 1)

	some, err := s.FindRecords(ctx, "Person", []string{"1", "9"})
	require.NoError(t, err)
	assert.Len(t, some, 1)
	require.NoError(t, s.Ping(ctx))

	c := counters(t, reader)
	assert.Equal(t, int64(7), c["graphsheets.store.operations.total"])
	assert.Equal(t, int64(1), c["graphsheets.store.edges.written"])
	assert.Equal(t, int64(1), c["graphsheets.store.records.written"])
	assert.Equal(t, int64(1), c["graphsheets.store.records.skipped"])
}

func TestInstrumented_ReturnsErrorsUnchanged(t *testing.T) {
	boom := errors.New("sheet unavailable")
	s := store.Instrument(failingStore{Store: memstore.New(), err: boom}, "memory", nil)

	_, err := s.FindAll(context.Background(), "Person")
	assert.Same(t, boom, err)
}
