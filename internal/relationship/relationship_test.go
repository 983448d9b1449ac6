package relationship

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDedupe_KeepsFirstInOrder(t *testing.T) {
	a := Edge{"Person", "1", "father", "Person", "2"}
	b := Edge{"Person", "1", "products", "Product", "3"}
	c := Edge{"Person", "1", "products", "Product", "4"}

	got := Dedupe([]Edge{a, b, a, c, b})
	assert.Equal(t, []Edge{a, b, c}, got)
}

func TestDedupe_Empty(t *testing.T) {
	assert.Empty(t, Dedupe(nil))
	assert.Empty(t, Dedupe([]Edge{}))
}

func TestDedupe_DistinctTargetsAreKept(t *testing.T) {
	edges := []Edge{
		{"Person", "chris", "sibling", "Person", "meg"},
		{"Person", "chris", "sibling", "Person", "ryan"},
	}
	assert.Equal(t, edges, Dedupe(edges))
}

func TestDedupeBy_SlotIgnoresTarget(t *testing.T) {
	edges := []Edge{
		{"Person", "chris", "sibling", "Person", "meg"},
		{"Person", "chris", "sibling", "Person", "ryan"},
	}
	got := DedupeBy(edges, Edge.Slot)
	require.Len(t, got, 1)
	assert.Equal(t, "meg", got[0].TargetID)
}

func TestEdgeRow(t *testing.T) {
	e := Edge{"Person", "1", "father", "Person", "2"}
	assert.Equal(t, []any{"=row()", "Person", "1", "father", "Person", "2"}, e.Row())
	assert.Equal(t, "(Person,1,father,Person,2)", e.String())
	assert.Equal(t, "Person", e.Slot().SourceType)
	assert.Equal(t, "father", e.Slot().Field)
}

func TestFromRow(t *testing.T) {
	w, err := FromRow([]any{"7", "Person", "1", "father", "Person", "2"})
	require.NoError(t, err)
	assert.Equal(t, "7", w.Row)
	assert.Equal(t, Edge{"Person", "1", "father", "Person", "2"}, w.Edge)

	_, err = FromRow([]any{"7", "Person"})
	assert.Error(t, err)
}
