// Package schema turns a GraphQL SDL document into an immutable catalog of
// object types, input types, and root operations.
//
// Every field is classified once at load time as either a scalar or a
// reference (single or list) to another composite type, so the mutation
// engine never inspects raw SDL types while traversing payloads.
package schema

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
)

// Kind classifies a field's value.
type Kind int

const (
	// KindScalar fields hold a leaf value (built-in scalar, custom scalar or enum).
	KindScalar Kind = iota
	// KindReference fields hold one or more nested objects of a declared composite type.
	KindReference
)

func (k Kind) String() string {
	if k == KindReference {
		return "reference"
	}
	return "scalar"
}

// Cardinality tells whether a field holds one value or a list.
type Cardinality int

const (
	Single Cardinality = iota
	List
)

func (c Cardinality) String() string {
	if c == List {
		return "list"
	}
	return "single"
}

// TypeKind is the category of a named type in the catalog.
type TypeKind int

const (
	ObjectType TypeKind = iota
	InputType
	ScalarType
	EnumType
)

// Field describes a field of an object or input type, an operation argument,
// or an operation's return value.
type Field struct {
	Name        string
	Kind        Kind
	Cardinality Cardinality
	// Target is the underlying named type with any list and non-null wrappers removed.
	Target string
	// NonNull reports whether the outermost type was declared required.
	NonNull bool
	// ElemNonNull reports whether list elements were declared required.
	ElemNonNull bool
	Description string
}

// IsReference reports whether the field points at another composite type.
func (f Field) IsReference() bool { return f.Kind == KindReference }

// IsList reports whether the field holds a list.
func (f Field) IsList() bool { return f.Cardinality == List }

// TypeDef is a named type from the catalog.
type TypeDef struct {
	Name        string
	Kind        TypeKind
	Description string
	Fields      []Field
	EnumValues  []string
}

// Operation is a root Query or Mutation field.
type Operation struct {
	Name        string
	Description string
	Arguments   []Field
	Return      Field
}

// Schema is an immutable catalog built once before any mutation executes.
type Schema struct {
	types      map[string]*TypeDef
	typeNames  []string
	queries    []*Operation
	mutations  []*Operation
	mutationBy map[string]*Operation
	queryBy    map[string]*Operation
}

// Parse loads an SDL document and builds the catalog.
func Parse(name, sdl string) (*Schema, error) {
	doc, err := gqlparser.LoadSchema(&ast.Source{Name: name, Input: sdl})
	if err != nil {
		return nil, &IntegrityError{Source: name, Err: err}
	}
	return FromAST(doc)
}

// LoadFile reads and parses an SDL file.
func LoadFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", path, err)
	}
	return Parse(path, string(data))
}

// FromAST builds the catalog from an already-validated gqlparser schema.
func FromAST(doc *ast.Schema) (*Schema, error) {
	s := &Schema{
		types:      make(map[string]*TypeDef),
		mutationBy: make(map[string]*Operation),
		queryBy:    make(map[string]*Operation),
	}

	for name, def := range doc.Types {
		if def.BuiltIn && def.Kind != ast.Scalar {
			continue
		}
		if isRootType(doc, def) {
			continue
		}
		td := &TypeDef{Name: name, Description: def.Description}
		switch def.Kind {
		case ast.Object:
			td.Kind = ObjectType
		case ast.InputObject:
			td.Kind = InputType
		case ast.Scalar:
			td.Kind = ScalarType
		case ast.Enum:
			td.Kind = EnumType
			for _, v := range def.EnumValues {
				td.EnumValues = append(td.EnumValues, v.Name)
			}
		default:
			// interfaces and unions are not materialized as records
			continue
		}
		s.types[name] = td
		s.typeNames = append(s.typeNames, name)
	}
	sort.Strings(s.typeNames)

	for _, name := range s.typeNames {
		td := s.types[name]
		def := doc.Types[name]
		switch td.Kind {
		case ObjectType:
			for _, fd := range def.Fields {
				f, err := classify(doc, name, fd.Name, fd.Type, ast.Object)
				if err != nil {
					return nil, err
				}
				f.Description = fd.Description
				td.Fields = append(td.Fields, f)
			}
		case InputType:
			for _, fd := range def.Fields {
				f, err := classify(doc, name, fd.Name, fd.Type, ast.InputObject)
				if err != nil {
					return nil, err
				}
				f.Description = fd.Description
				td.Fields = append(td.Fields, f)
			}
		}
	}

	var err error
	if s.queries, err = operations(doc, doc.Query); err != nil {
		return nil, err
	}
	if s.mutations, err = operations(doc, doc.Mutation); err != nil {
		return nil, err
	}
	for _, op := range s.queries {
		s.queryBy[op.Name] = op
	}
	for _, op := range s.mutations {
		s.mutationBy[op.Name] = op
	}
	return s, nil
}

func isRootType(doc *ast.Schema, def *ast.Definition) bool {
	return (doc.Query != nil && def == doc.Query) ||
		(doc.Mutation != nil && def == doc.Mutation) ||
		(doc.Subscription != nil && def == doc.Subscription)
}

func operations(doc *ast.Schema, root *ast.Definition) ([]*Operation, error) {
	if root == nil {
		return nil, nil
	}
	ops := make([]*Operation, 0, len(root.Fields))
	for _, fd := range root.Fields {
		if strings.HasPrefix(fd.Name, "__") {
			continue
		}
		op := &Operation{Name: fd.Name, Description: fd.Description}
		for _, arg := range fd.Arguments {
			f, err := classify(doc, root.Name, fd.Name+"."+arg.Name, arg.Type, ast.InputObject)
			if err != nil {
				return nil, err
			}
			f.Name = arg.Name
			op.Arguments = append(op.Arguments, f)
		}
		ret, err := classify(doc, root.Name, fd.Name, fd.Type, ast.Object)
		if err != nil {
			return nil, err
		}
		op.Return = ret
		ops = append(ops, op)
	}
	return ops, nil
}

// classify resolves through list and non-null wrappers and decides whether the
// field references a composite type of the expected kind.
func classify(doc *ast.Schema, owner, name string, t *ast.Type, composite ast.DefinitionKind) (Field, error) {
	f := Field{Name: name, NonNull: t.NonNull}
	if t.Elem != nil {
		f.Cardinality = List
		f.ElemNonNull = t.Elem.NonNull
	}
	f.Target = t.Name()

	def, ok := doc.Types[f.Target]
	if !ok {
		return Field{}, &IntegrityError{Type: owner, Field: name, Missing: f.Target}
	}
	if def.Kind == composite {
		f.Kind = KindReference
	}
	return f, nil
}

// Types returns every catalogued named type sorted by name.
func (s *Schema) Types() []*TypeDef {
	out := make([]*TypeDef, 0, len(s.typeNames))
	for _, name := range s.typeNames {
		out = append(out, s.types[name])
	}
	return out
}

// Type looks up a named type.
func (s *Schema) Type(name string) (*TypeDef, bool) {
	td, ok := s.types[name]
	return td, ok
}

// ObjectTypes returns the object types sorted by name.
func (s *Schema) ObjectTypes() []*TypeDef {
	var out []*TypeDef
	for _, name := range s.typeNames {
		if td := s.types[name]; td.Kind == ObjectType {
			out = append(out, td)
		}
	}
	return out
}

// FieldsOf returns the declared fields of an object or input type in declaration order.
func (s *Schema) FieldsOf(typeName string) ([]Field, error) {
	td, ok := s.types[typeName]
	if !ok || (td.Kind != ObjectType && td.Kind != InputType) {
		return nil, &IntegrityError{Missing: typeName}
	}
	return td.Fields, nil
}

// ArgumentsOf returns the arguments of a mutation in declaration order.
func (s *Schema) ArgumentsOf(mutation string) ([]Field, error) {
	op, err := s.Mutation(mutation)
	if err != nil {
		return nil, err
	}
	return op.Arguments, nil
}

// Mutation looks up a declared mutation by name.
func (s *Schema) Mutation(name string) (*Operation, error) {
	op, ok := s.mutationBy[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMutation, name)
	}
	return op, nil
}

// Mutations returns the declared mutations in declaration order.
func (s *Schema) Mutations() []*Operation { return s.mutations }

// Queries returns the declared query fields in declaration order.
func (s *Schema) Queries() []*Operation { return s.queries }

// Query looks up a declared query field by name.
func (s *Schema) Query(name string) (*Operation, bool) {
	op, ok := s.queryBy[name]
	return op, ok
}
