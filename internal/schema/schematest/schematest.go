// Package schematest holds SDL fixtures shared by package tests.
package schematest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taras/graphsheets/internal/schema"
)

// Default is a schema with nested, self-referencing and list relationships.
const Default = `
type Person {
  id: ID!
  name: String
  products: [Product]
  favourite: Product
  father: Person
}

type Product {
  id: ID!
  title: String
  owner: Person
  alternative: Product
}

input ProductInput {
  id: ID
  title: String
  owner: PersonInput
  alternative: ProductInput
}

input PersonInput {
  id: ID
  name: String
  products: [ProductInput]
  favourite: ProductInput
  father: PersonInput
}

type Query {
  person(id: ID!): Person
  persons: [Person]
  product(id: ID!): Product
  products: [Product]
}

type Mutation {
  createPerson(person: PersonInput): Person
  createProduct(product: ProductInput): Product
}
`

// Create declares input fields in a different order from the object type so
// identifier assignment order can be observed.
const Create = `
type Person {
  id: ID!
  name: String
  products: [Product]
  father: Person
}

type Product {
  id: ID!
  title: String
}

type Query {
  persons: [Person]
}

input ProductInput {
  id: ID
  title: String
}

input PersonInput {
  id: ID
  products: [ProductInput]
  name: String
  father: PersonInput
}

type Mutation {
  createPerson(person: PersonInput): Person
  createProduct(product: ProductInput): Product
}
`

// Load parses sdl and fails the test on error.
func Load(t testing.TB, sdl string) *schema.Schema {
	t.Helper()
	s, err := schema.Parse("fixture.graphql", sdl)
	require.NoError(t, err)
	return s
}
