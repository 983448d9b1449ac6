package mutation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taras/graphsheets/internal/relationship"
	"github.com/taras/graphsheets/internal/schema"
	"github.com/taras/graphsheets/internal/schema/schematest"
)

func TestExtract(t *testing.T) {
	s := schematest.Load(t, schematest.Default)

	tests := []struct {
		name   string
		person map[string]any
		want   []relationship.Edge
	}{
		{
			name:   "no references",
			person: map[string]any{"id": "1", "name": "peter"},
		},
		{
			name:   "shallow single reference",
			person: map[string]any{"id": "1", "father": map[string]any{"id": "2"}},
			want:   []relationship.Edge{{SourceType: "Person", SourceID: "1", Field: "father", TargetType: "Person", TargetID: "2"}},
		},
		{
			name:   "shallow list reference",
			person: map[string]any{"id": "1", "products": []any{map[string]any{"id": "2"}, map[string]any{"id": "3"}}},
			want: []relationship.Edge{
				{SourceType: "Person", SourceID: "1", Field: "products", TargetType: "Product", TargetID: "2"},
				{SourceType: "Person", SourceID: "1", Field: "products", TargetType: "Product", TargetID: "3"},
			},
		},
		{
			name: "deep single reference",
			person: map[string]any{"id": "1", "favourite": map[string]any{
				"id": "2", "owner": map[string]any{"id": "3"},
			}},
			want: []relationship.Edge{
				{SourceType: "Person", SourceID: "1", Field: "favourite", TargetType: "Product", TargetID: "2"},
				{SourceType: "Product", SourceID: "2", Field: "owner", TargetType: "Person", TargetID: "3"},
			},
		},
		{
			name: "deep list references interleave with their descendants",
			person: map[string]any{"id": "1", "products": []any{
				map[string]any{"id": "2", "owner": map[string]any{"id": "3"}},
				map[string]any{"id": "4", "owner": map[string]any{"id": "5"}},
			}},
			want: []relationship.Edge{
				{SourceType: "Person", SourceID: "1", Field: "products", TargetType: "Product", TargetID: "2"},
				{SourceType: "Product", SourceID: "2", Field: "owner", TargetType: "Person", TargetID: "3"},
				{SourceType: "Person", SourceID: "1", Field: "products", TargetType: "Product", TargetID: "4"},
				{SourceType: "Product", SourceID: "4", Field: "owner", TargetType: "Person", TargetID: "5"},
			},
		},
		{
			name: "siblings follow declaration order",
			person: map[string]any{
				"id":        "1",
				"father":    map[string]any{"id": "4"},
				"favourite": map[string]any{"id": "3"},
				"products":  []any{map[string]any{"id": "2"}},
			},
			want: []relationship.Edge{
				{SourceType: "Person", SourceID: "1", Field: "products", TargetType: "Product", TargetID: "2"},
				{SourceType: "Person", SourceID: "1", Field: "favourite", TargetType: "Product", TargetID: "3"},
				{SourceType: "Person", SourceID: "1", Field: "father", TargetType: "Person", TargetID: "4"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract(s, "createPerson", map[string]any{"person": tt.person})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtract_CountsEveryOccurrence(t *testing.T) {
	s := schematest.Load(t, schematest.Default)
	shared := map[string]any{"id": "9"}
	tree := map[string]any{"person": map[string]any{
		"id":       "1",
		"products": []any{shared, shared, shared},
	}}

	got, err := Extract(s, "createPerson", tree)
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Len(t, relationship.Dedupe(got), 1)
}

func TestExtract_Errors(t *testing.T) {
	s := schematest.Load(t, schematest.Default)

	_, err := Extract(s, "deletePerson", map[string]any{})
	assert.ErrorIs(t, err, schema.ErrUnknownMutation)

	_, err = Extract(s, "createPerson", map[string]any{"person": map[string]any{"id": "1", "father": "2"}})
	var shape *InvalidPayloadShapeError
	require.True(t, errors.As(err, &shape))
	assert.Equal(t, "Person", shape.Type)
	assert.Equal(t, "father", shape.Field)
	assert.Equal(t, "string", shape.Got)
}

func TestExtract_ScalarReturnTypeRejected(t *testing.T) {
	s := schematest.Load(t, `
type Person { id: ID! }
input PersonInput { id: ID }
type Query { persons: [Person] }
type Mutation { touch(person: PersonInput): Boolean }
`)
	_, err := Extract(s, "touch", map[string]any{"person": map[string]any{"id": "1"}})
	assert.ErrorIs(t, err, ErrNotObjectMutation)
}
