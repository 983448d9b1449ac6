package schema_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/taras/graphsheets/internal/schema"
	"github.com/taras/graphsheets/internal/schema/schematest"
)

func fieldNames(fields []schema.Field) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}

func TestFieldsOf_DeclarationOrderAndKinds(t *testing.T) {
	s := schematest.Load(t, schematest.Default)

	fields, err := s.FieldsOf("Person")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name", "products", "favourite", "father"}, fieldNames(fields))

	tests := []struct {
		name        string
		kind        schema.Kind
		cardinality schema.Cardinality
		target      string
		nonNull     bool
	}{
		{"id", schema.KindScalar, schema.Single, "ID", true},
		{"name", schema.KindScalar, schema.Single, "String", false},
		{"products", schema.KindReference, schema.List, "Product", false},
		{"favourite", schema.KindReference, schema.Single, "Product", false},
		{"father", schema.KindReference, schema.Single, "Person", false},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := fields[i]
			assert.Equal(t, tt.name, f.Name)
			assert.Equal(t, tt.kind, f.Kind)
			assert.Equal(t, tt.cardinality, f.Cardinality)
			assert.Equal(t, tt.target, f.Target)
			assert.Equal(t, tt.nonNull, f.NonNull)
		})
	}
}

func TestFieldsOf_InputTypeReferencesInputs(t *testing.T) {
	s := schematest.Load(t, schematest.Create)

	fields, err := s.FieldsOf("PersonInput")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "products", "name", "father"}, fieldNames(fields))

	assert.True(t, fields[1].IsReference())
	assert.True(t, fields[1].IsList())
	assert.Equal(t, "ProductInput", fields[1].Target)
	assert.True(t, fields[3].IsReference())
	assert.False(t, fields[3].IsList())
	assert.False(t, fields[2].IsReference())
}

func TestFieldsOf_ResolvesThroughWrappers(t *testing.T) {
	s := schematest.Load(t, `
enum Color { RED GREEN }
scalar Date
type Tag { id: ID! }
type Item {
  id: ID!
  tags: [Tag!]!
  primary: Tag!
  color: Color
  born: Date
}
type Query { items: [Item] }
`)
	fields, err := s.FieldsOf("Item")
	require.NoError(t, err)

	tags := fields[1]
	assert.Equal(t, schema.KindReference, tags.Kind)
	assert.Equal(t, schema.List, tags.Cardinality)
	assert.Equal(t, "Tag", tags.Target)
	assert.True(t, tags.NonNull)
	assert.True(t, tags.ElemNonNull)

	primary := fields[2]
	assert.Equal(t, schema.KindReference, primary.Kind)
	assert.Equal(t, schema.Single, primary.Cardinality)
	assert.True(t, primary.NonNull)

	assert.Equal(t, schema.KindScalar, fields[3].Kind, "enums are scalars")
	assert.Equal(t, schema.KindScalar, fields[4].Kind, "custom scalars are scalars")

	color, ok := s.Type("Color")
	require.True(t, ok)
	assert.Equal(t, schema.EnumType, color.Kind)
	assert.Equal(t, []string{"RED", "GREEN"}, color.EnumValues)
}

func TestArgumentsOf(t *testing.T) {
	s := schematest.Load(t, schematest.Default)

	args, err := s.ArgumentsOf("createPerson")
	require.NoError(t, err)
	require.Len(t, args, 1)
	assert.Equal(t, "person", args[0].Name)
	assert.Equal(t, "PersonInput", args[0].Target)
	assert.Equal(t, schema.Single, args[0].Cardinality)
	assert.True(t, args[0].IsReference())

	op, err := s.Mutation("createPerson")
	require.NoError(t, err)
	assert.Equal(t, "Person", op.Return.Target)
	assert.True(t, op.Return.IsReference())

	_, err = s.ArgumentsOf("deletePerson")
	assert.ErrorIs(t, err, schema.ErrUnknownMutation)
}

func TestQueriesAndObjectTypes(t *testing.T) {
	s := schematest.Load(t, schematest.Default)

	var names []string
	for _, op := range s.Queries() {
		names = append(names, op.Name)
	}
	assert.Equal(t, []string{"person", "persons", "product", "products"}, names)

	q, ok := s.Query("persons")
	require.True(t, ok)
	assert.True(t, q.Return.IsList())

	var objects []string
	for _, td := range s.ObjectTypes() {
		objects = append(objects, td.Name)
	}
	assert.Equal(t, []string{"Person", "Product"}, objects)
}

func TestFieldsOf_UnknownType(t *testing.T) {
	s := schematest.Load(t, schematest.Default)

	_, err := s.FieldsOf("Pet")
	var integrity *schema.IntegrityError
	require.True(t, errors.As(err, &integrity))
	assert.Equal(t, "Pet", integrity.Missing)
}

func TestParse_UndeclaredTypeIsIntegrityError(t *testing.T) {
	_, err := schema.Parse("broken.graphql", `
type Person { id: ID! pet: Pet }
type Query { persons: [Person] }
`)
	var integrity *schema.IntegrityError
	require.True(t, errors.As(err, &integrity))
	assert.Equal(t, "broken.graphql", integrity.Source)
}

func TestFromAST_UndeclaredFieldTarget(t *testing.T) {
	doc := &ast.Schema{
		Types: map[string]*ast.Definition{
			"ID": {Kind: ast.Scalar, Name: "ID", BuiltIn: true},
			"Person": {
				Kind: ast.Object,
				Name: "Person",
				Fields: ast.FieldList{
					{Name: "id", Type: ast.NonNullNamedType("ID", nil)},
					{Name: "pet", Type: ast.NamedType("Pet", nil)},
				},
			},
		},
	}

	_, err := schema.FromAST(doc)
	var integrity *schema.IntegrityError
	require.True(t, errors.As(err, &integrity))
	assert.Equal(t, "Person", integrity.Type)
	assert.Equal(t, "pet", integrity.Field)
	assert.Equal(t, "Pet", integrity.Missing)
	assert.Contains(t, integrity.Error(), `undeclared type "Pet"`)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.graphql")
	require.NoError(t, os.WriteFile(path, []byte(schematest.Create), 0o600))

	s, err := schema.LoadFile(path)
	require.NoError(t, err)
	_, err = s.Mutation("createPerson")
	assert.NoError(t, err)

	_, err = schema.LoadFile(filepath.Join(t.TempDir(), "missing.graphql"))
	assert.Error(t, err)
}
