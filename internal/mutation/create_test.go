package mutation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taras/graphsheets/internal/formula"
	"github.com/taras/graphsheets/internal/idgen"
	"github.com/taras/graphsheets/internal/logging"
	"github.com/taras/graphsheets/internal/relationship"
	"github.com/taras/graphsheets/internal/schema/schematest"
	"github.com/taras/graphsheets/internal/store"
)

// recordingStore echoes every record back and remembers what it was asked to write.
type recordingStore struct {
	mu          sync.Mutex
	edgeBatches [][]relationship.Edge
	records     []FlatRecord

	writeRecord func(ctx context.Context, typeName string, rec store.Record) (store.Record, error)
	edgeErr     error
}

func (s *recordingStore) WriteEdges(_ context.Context, edges []relationship.Edge) ([]relationship.WrittenEdge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.edgeErr != nil {
		return nil, s.edgeErr
	}
	s.edgeBatches = append(s.edgeBatches, edges)
	out := make([]relationship.WrittenEdge, len(edges))
	for i, e := range edges {
		out[i] = relationship.WrittenEdge{Edge: e}
	}
	return out, nil
}

func (s *recordingStore) WriteRecord(ctx context.Context, typeName string, rec store.Record) (store.Record, error) {
	s.mu.Lock()
	s.records = append(s.records, FlatRecord{Type: typeName, Record: rec})
	hook := s.writeRecord
	s.mu.Unlock()
	if hook != nil {
		return hook(ctx, typeName, rec)
	}
	return rec, nil
}

func (s *recordingStore) FindRecord(context.Context, string, string) (store.Record, error) {
	return nil, nil
}

func (s *recordingStore) FindRecords(context.Context, string, []string) ([]store.Record, error) {
	return nil, nil
}

func (s *recordingStore) FindAll(context.Context, string) ([]store.Record, error) {
	return nil, nil
}

func (s *recordingStore) Ping(context.Context) error { return nil }

func (s *recordingStore) allEdges() []relationship.Edge {
	var out []relationship.Edge
	for _, batch := range s.edgeBatches {
		out = append(out, batch...)
	}
	return out
}

func newTestCreator(t *testing.T, sdl string, st store.Store, opts ...Option) *Creator {
	t.Helper()
	opts = append([]Option{WithLogger(logging.Discard())}, opts...)
	return NewCreator(schematest.Load(t, sdl), st, idgen.NewSequence(), opts...)
}

func TestCreate_SingleRecord(t *testing.T) {
	st := &recordingStore{}
	c := newTestCreator(t, schematest.Default, st)

	got, err := c.Create(context.Background(), "createPerson", map[string]any{"person": map[string]any{}})
	require.NoError(t, err)

	require.Len(t, st.records, 1)
	assert.Equal(t, "Person", st.records[0].Type)
	assert.Equal(t, store.Record{
		"id":        "1",
		"products":  formula.Relationship("Person", "1", "products", "Product"),
		"favourite": formula.Relationship("Person", "1", "favourite", "Product"),
		"father":    formula.Relationship("Person", "1", "father", "Person"),
	}, st.records[0].Record)
	assert.Empty(t, st.edgeBatches, "no edges means no edge write")
	assert.Equal(t, "1", got["id"])
}

func TestCreate_SingleReference(t *testing.T) {
	st := &recordingStore{}
	c := newTestCreator(t, schematest.Default, st)

	got, err := c.Create(context.Background(), "createPerson", map[string]any{
		"person": map[string]any{"father": map[string]any{}},
	})
	require.NoError(t, err)

	require.Len(t, st.records, 2)
	assert.Equal(t, "1", st.records[0].Record.ID())
	assert.Equal(t, "2", st.records[1].Record.ID())
	assert.Equal(t, []relationship.Edge{
		{SourceType: "Person", SourceID: "1", Field: "father", TargetType: "Person", TargetID: "2"},
	}, st.allEdges())

	father, ok := got["father"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "2", father["id"])
}

func TestCreate_ListReference(t *testing.T) {
	st := &recordingStore{}
	c := newTestCreator(t, schematest.Default, st)

	got, err := c.Create(context.Background(), "createPerson", map[string]any{
		"person": map[string]any{"products": []any{map[string]any{}, map[string]any{}}},
	})
	require.NoError(t, err)

	require.Len(t, st.edgeBatches, 1, "edges are written in one batch")
	assert.Equal(t, []relationship.Edge{
		{SourceType: "Person", SourceID: "1", Field: "products", TargetType: "Product", TargetID: "2"},
		{SourceType: "Person", SourceID: "1", Field: "products", TargetType: "Product", TargetID: "3"},
	}, st.allEdges())
	assert.Len(t, st.records, 3)

	products, ok := got["products"].([]any)
	require.True(t, ok)
	require.Len(t, products, 2)
	assert.Equal(t, "2", products[0].(map[string]any)["id"], "list order is kept")
	assert.Equal(t, "3", products[1].(map[string]any)["id"])
}

func TestCreate_DeepTreeWritesEachRecordAndEdgeOnce(t *testing.T) {
	st := &recordingStore{}
	c := newTestCreator(t, schematest.Default, st)

	_, err := c.Create(context.Background(), "createPerson", map[string]any{
		"person": map[string]any{
			"name": "peter",
			"products": []any{
				map[string]any{"title": "shoes", "owner": map[string]any{"name": "lois"}},
				map[string]any{"title": "hat"},
			},
			"father": map[string]any{"father": map[string]any{}},
		},
	})
	require.NoError(t, err)

	ids := map[string]int{}
	for _, r := range st.records {
		ids[r.Type+"/"+r.Record.ID()]++
	}
	assert.Len(t, st.records, 6)
	for key, n := range ids {
		assert.Equal(t, 1, n, key)
	}

	edges := st.allEdges()
	assert.Len(t, edges, 5)
	assert.Equal(t, relationship.Dedupe(edges), edges)
	require.Len(t, st.edgeBatches, 1, "nested calls reuse the root batch")
}

func TestCreate_ResponseMirrorsInput(t *testing.T) {
	st := &recordingStore{}
	c := newTestCreator(t, schematest.Create, st)

	got, err := c.Create(context.Background(), "createPerson", map[string]any{
		"person": map[string]any{
			"products": []any{map[string]any{"title": "shoes"}},
			"father":   map[string]any{"name": "peter griffin"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "1", got["id"])
	products := got["products"].([]any)
	assert.Equal(t, "2", products[0].(map[string]any)["id"])
	assert.Equal(t, "shoes", products[0].(map[string]any)["title"])
	father := got["father"].(map[string]any)
	assert.Equal(t, "3", father["id"])
	assert.Equal(t, "peter griffin", father["name"])
}

func TestCreate_NoRecordSkipsChildren(t *testing.T) {
	st := &recordingStore{
		writeRecord: func(_ context.Context, typeName string, rec store.Record) (store.Record, error) {
			return nil, nil
		},
	}
	c := newTestCreator(t, schematest.Default, st)

	got, err := c.Create(context.Background(), "createPerson", map[string]any{
		"person": map[string]any{"father": map[string]any{}, "products": []any{map[string]any{}}},
	})
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Len(t, st.records, 1, "only the root write is attempted")
	assert.Len(t, st.allEdges(), 2, "edges precede the root write")
}

func TestCreate_ChildNoRecordIsNull(t *testing.T) {
	st := &recordingStore{
		writeRecord: func(_ context.Context, typeName string, rec store.Record) (store.Record, error) {
			if typeName == "Product" {
				return nil, nil
			}
			return rec, nil
		},
	}
	c := newTestCreator(t, schematest.Default, st)

	got, err := c.Create(context.Background(), "createPerson", map[string]any{
		"person": map[string]any{"favourite": map[string]any{}, "products": []any{map[string]any{}}},
	})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Contains(t, got, "favourite")
	assert.Nil(t, got["favourite"])
	assert.Equal(t, []any{nil}, got["products"])
}

func TestCreate_StoreErrorPropagates(t *testing.T) {
	boom := errors.New("validation failed")

	t.Run("edge write", func(t *testing.T) {
		st := &recordingStore{edgeErr: boom}
		c := newTestCreator(t, schematest.Default, st)
		_, err := c.Create(context.Background(), "createPerson", map[string]any{
			"person": map[string]any{"father": map[string]any{}},
		})
		assert.ErrorIs(t, err, boom)
		assert.Empty(t, st.records)
	})

	t.Run("child record write", func(t *testing.T) {
		st := &recordingStore{
			writeRecord: func(_ context.Context, typeName string, rec store.Record) (store.Record, error) {
				if rec.ID() == "3" {
					return nil, boom
				}
				return rec, nil
			},
		}
		c := newTestCreator(t, schematest.Default, st)
		got, err := c.Create(context.Background(), "createPerson", map[string]any{
			"person": map[string]any{"products": []any{map[string]any{}, map[string]any{}}},
		})
		assert.Same(t, boom, err)
		assert.Nil(t, got)
		assert.Equal(t, "1", st.records[0].Record.ID(), "root stays written")
	})
}

func TestCreate_SiblingsResolveConcurrently(t *testing.T) {
	const siblings = 3
	var mu sync.Mutex
	inFlight := 0
	release := make(chan struct{})

	st := &recordingStore{
		writeRecord: func(ctx context.Context, typeName string, rec store.Record) (store.Record, error) {
			if typeName != "Product" {
				return rec, nil
			}
			mu.Lock()
			inFlight++
			if inFlight == siblings {
				close(release)
			}
			mu.Unlock()
			select {
			case <-release:
				return rec, nil
			case <-time.After(2 * time.Second):
				return nil, errors.New("siblings were not started together")
			}
		},
	}
	c := newTestCreator(t, schematest.Default, st)

	got, err := c.Create(context.Background(), "createPerson", map[string]any{
		"person": map[string]any{"products": []any{map[string]any{}, map[string]any{}, map[string]any{}}},
	})
	require.NoError(t, err)
	assert.Len(t, got["products"], siblings)
}

func TestCreate_MaxConcurrencyStillCompletes(t *testing.T) {
	st := &recordingStore{}
	c := newTestCreator(t, schematest.Default, st, WithMaxConcurrency(1))

	got, err := c.Create(context.Background(), "createPerson", map[string]any{
		"person": map[string]any{
			"products": []any{map[string]any{"owner": map[string]any{}}, map[string]any{}},
			"father":   map[string]any{},
		},
	})
	require.NoError(t, err)
	assert.Len(t, got["products"], 2)
	assert.Len(t, st.records, 5)
}

func TestCreate_Errors(t *testing.T) {
	st := &recordingStore{}
	c := newTestCreator(t, schematest.Default, st)

	_, err := c.Create(context.Background(), "createPerson", map[string]any{})
	assert.ErrorIs(t, err, ErrNoPayload)

	_, err = c.Create(context.Background(), "createPerson", map[string]any{"person": []any{}})
	var shape *InvalidPayloadShapeError
	assert.True(t, errors.As(err, &shape))

	_, err = c.Create(context.Background(), "createPerson", map[string]any{
		"person": map[string]any{"products": "shoes"},
	})
	assert.True(t, errors.As(err, &shape))
	assert.Equal(t, "products", shape.Field)
	assert.Empty(t, st.records)
}

func TestCreate_QuotedIDWritesNothing(t *testing.T) {
	st := &recordingStore{}
	c := newTestCreator(t, schematest.Default, st)

	got, err := c.Create(context.Background(), "createPerson", map[string]any{
		"person": map[string]any{"id": "o'brien", "father": map[string]any{}},
	})
	var invalid *InvalidIdentifierError
	require.True(t, errors.As(err, &invalid), "got %v", err)
	assert.Equal(t, "o'brien", invalid.ID)
	assert.Nil(t, got)
	assert.Empty(t, st.records)
	assert.Empty(t, st.allEdges())
}

func TestEdgeLedger_Claim(t *testing.T) {
	l := newEdgeLedger()
	a := relationship.Edge{SourceType: "A", SourceID: "1", Field: "f", TargetType: "B", TargetID: "2"}
	b := relationship.Edge{SourceType: "A", SourceID: "1", Field: "f", TargetType: "B", TargetID: "3"}

	assert.Equal(t, []relationship.Edge{a}, l.claim([]relationship.Edge{a}))
	assert.Equal(t, []relationship.Edge{b}, l.claim([]relationship.Edge{a, b}))
	assert.Empty(t, l.claim([]relationship.Edge{a, b}))
}
