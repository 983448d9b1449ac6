// Package memstore keeps records and the edge index in process memory.
//
// Reference fields are stored as relationship formulas and evaluated against
// the edge index on every read, the same way a spreadsheet recomputes them.
package memstore

import (
	"context"
	"strconv"
	"sync"

	"github.com/taras/graphsheets/internal/formula"
	"github.com/taras/graphsheets/internal/relationship"
	"github.com/taras/graphsheets/internal/store"
)

// Store is safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	tables map[string]*table
	edges  []relationship.WrittenEdge
}

type table struct {
	rows  []store.Record
	index map[string]int
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{tables: make(map[string]*table)}
}

// WriteEdges appends edges to the index. Row ids start at 2, leaving row 1
// for the header like the sheet layout does.
func (s *Store) WriteEdges(ctx context.Context, edges []relationship.Edge) ([]relationship.WrittenEdge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]relationship.WrittenEdge, len(edges))
	for i, e := range edges {
		w := relationship.WrittenEdge{Row: strconv.Itoa(len(s.edges) + 2), Edge: e}
		s.edges = append(s.edges, w)
		out[i] = w
	}
	return out, nil
}

// WriteRecord appends a row. A record whose id already exists for the type is
// not written and yields a nil record.
func (s *Store) WriteRecord(ctx context.Context, typeName string, record store.Record) (store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := record.ID()

	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[typeName]
	if !ok {
		t = &table{index: make(map[string]int)}
		s.tables[typeName] = t
	}
	if _, exists := t.index[id]; exists {
		return nil, nil
	}
	row := make(store.Record, len(record))
	for k, v := range record {
		row[k] = v
	}
	t.index[id] = len(t.rows)
	t.rows = append(t.rows, row)
	return s.evaluate(row), nil
}

func (s *Store) FindRecord(ctx context.Context, typeName, id string) (store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[typeName]
	if !ok {
		return nil, nil
	}
	i, ok := t.index[id]
	if !ok {
		return nil, nil
	}
	return s.evaluate(t.rows[i]), nil
}

// FindRecords returns the records that exist, in the order of ids.
func (s *Store) FindRecords(ctx context.Context, typeName string, ids []string) ([]store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[typeName]
	if !ok {
		return nil, nil
	}
	out := make([]store.Record, 0, len(ids))
	for _, id := range ids {
		if i, ok := t.index[id]; ok {
			out = append(out, s.evaluate(t.rows[i]))
		}
	}
	return out, nil
}

func (s *Store) FindAll(ctx context.Context, typeName string) ([]store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[typeName]
	if !ok {
		return nil, nil
	}
	out := make([]store.Record, len(t.rows))
	for i, row := range t.rows {
		out[i] = s.evaluate(row)
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

// Edges returns a copy of the edge index in write order.
func (s *Store) Edges() []relationship.WrittenEdge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]relationship.WrittenEdge(nil), s.edges...)
}

// Raw returns a stored row without evaluating its formulas.
func (s *Store) Raw(typeName, id string) store.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[typeName]
	if !ok {
		return nil
	}
	i, ok := t.index[id]
	if !ok {
		return nil
	}
	out := make(store.Record, len(t.rows[i]))
	for k, v := range t.rows[i] {
		out[k] = v
	}
	return out
}

// evaluate copies row with every relationship formula replaced by its
// comma-joined target ids. Callers hold the lock.
func (s *Store) evaluate(row store.Record) store.Record {
	out := make(store.Record, len(row))
	for k, v := range row {
		str, ok := v.(string)
		if !ok {
			out[k] = v
			continue
		}
		lookup, ok := formula.Parse(str)
		if !ok {
			out[k] = v
			continue
		}
		out[k] = store.JoinIDs(s.targets(lookup))
	}
	return out
}

func (s *Store) targets(l formula.Lookup) []string {
	var ids []string
	for _, e := range s.edges {
		if e.Slot() == l {
			ids = append(ids, e.TargetID)
		}
	}
	return ids
}
