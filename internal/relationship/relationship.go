// Package relationship defines the edges that represent references between
// stored objects, and the deduplication applied before a batch is written.
package relationship

import (
	"fmt"

	"github.com/taras/graphsheets/internal/formula"
)

// RowOrderFormula fills column A of every edge row.
const RowOrderFormula = "=row()"

// Edge is a directed link from one object's field to another object.
type Edge struct {
	SourceType string
	SourceID   string
	Field      string
	TargetType string
	TargetID   string
}

// Slot is the part of an edge a relationship formula selects on.
func (e Edge) Slot() formula.Lookup {
	return formula.Lookup{SourceType: e.SourceType, SourceID: e.SourceID, Field: e.Field, TargetType: e.TargetType}
}

// Row renders the edge in edge-sheet column order A..F.
func (e Edge) Row() []any {
	return []any{RowOrderFormula, e.SourceType, e.SourceID, e.Field, e.TargetType, e.TargetID}
}

func (e Edge) String() string {
	return fmt.Sprintf("(%s,%s,%s,%s,%s)", e.SourceType, e.SourceID, e.Field, e.TargetType, e.TargetID)
}

// WrittenEdge is a store acknowledgment of a persisted edge.
type WrittenEdge struct {
	// Row is the store-side row identifier, empty when the store has none.
	Row string
	Edge
}

// Dedupe drops edges equal to an earlier one on all five components,
// keeping the first occurrence and the original order.
func Dedupe(edges []Edge) []Edge {
	return DedupeBy(edges, func(e Edge) Edge { return e })
}

// DedupeBy keeps the first edge for each distinct key.
func DedupeBy[K comparable](edges []Edge, key func(Edge) K) []Edge {
	if len(edges) == 0 {
		return nil
	}
	seen := make(map[K]struct{}, len(edges))
	out := make([]Edge, 0, len(edges))
	for _, e := range edges {
		k := key(e)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, e)
	}
	return out
}

// FromRow parses an edge row (columns A..F) as returned by a store.
func FromRow(values []any) (WrittenEdge, error) {
	if len(values) < 6 {
		return WrittenEdge{}, fmt.Errorf("edge row has %d columns, want 6", len(values))
	}
	cell := func(i int) string {
		if values[i] == nil {
			return ""
		}
		return fmt.Sprint(values[i])
	}
	return WrittenEdge{
		Row: cell(0),
		Edge: Edge{
			SourceType: cell(1),
			SourceID:   cell(2),
			Field:      cell(3),
			TargetType: cell(4),
			TargetID:   cell(5),
		},
	}, nil
}
