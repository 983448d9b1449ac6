package resolver

import (
	"fmt"
	"strconv"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"

	"github.com/taras/graphsheets/internal/schema"
)

var builtinScalars = map[string]*graphql.Scalar{
	"ID":      graphql.ID,
	"String":  graphql.String,
	"Int":     graphql.Int,
	"Float":   graphql.Float,
	"Boolean": graphql.Boolean,
}

// namedOutput returns the executable type for a named schema type.
func (r *Resolver) namedOutput(name string) (graphql.Output, error) {
	if s, ok := builtinScalars[name]; ok {
		return s, nil
	}
	td, ok := r.schema.Type(name)
	if !ok {
		return nil, &schema.IntegrityError{Missing: name}
	}
	switch td.Kind {
	case schema.ObjectType:
		return r.objectType(td), nil
	case schema.EnumType:
		return r.enumType(td), nil
	case schema.ScalarType:
		return r.customScalar(td), nil
	}
	return nil, fmt.Errorf("type %s cannot be used as an output", name)
}

func (r *Resolver) namedInput(name string) (graphql.Input, error) {
	if s, ok := builtinScalars[name]; ok {
		return s, nil
	}
	td, ok := r.schema.Type(name)
	if !ok {
		return nil, &schema.IntegrityError{Missing: name}
	}
	switch td.Kind {
	case schema.InputType:
		return r.inputType(td), nil
	case schema.EnumType:
		return r.enumType(td), nil
	case schema.ScalarType:
		return r.customScalar(td), nil
	}
	return nil, fmt.Errorf("type %s cannot be used as an input", name)
}

// outputFor applies the list and non-null wrappers of f.
func (r *Resolver) outputFor(f schema.Field) (graphql.Output, error) {
	t, err := r.namedOutput(f.Target)
	if err != nil {
		return nil, err
	}
	if f.IsList() {
		if f.ElemNonNull {
			t = graphql.NewNonNull(t)
		}
		t = graphql.NewList(t)
	}
	if f.NonNull {
		t = graphql.NewNonNull(t)
	}
	return t, nil
}

func (r *Resolver) inputFor(f schema.Field) (graphql.Input, error) {
	t, err := r.namedInput(f.Target)
	if err != nil {
		return nil, err
	}
	if f.IsList() {
		if f.ElemNonNull {
			t = graphql.NewNonNull(t)
		}
		t = graphql.NewList(t)
	}
	if f.NonNull {
		t = graphql.NewNonNull(t)
	}
	return t, nil
}

// objectType builds an object type once. Fields are built lazily so types may
// reference each other, including themselves.
func (r *Resolver) objectType(td *schema.TypeDef) *graphql.Object {
	r.mu.RLock()
	cached, ok := r.objects[td.Name]
	r.mu.RUnlock()
	if ok {
		return cached
	}

	obj := graphql.NewObject(graphql.ObjectConfig{
		Name:        td.Name,
		Description: td.Description,
		Fields: graphql.FieldsThunk(func() graphql.Fields {
			return r.objectFields(td)
		}),
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.objects[td.Name]; ok {
		return cached
	}
	r.objects[td.Name] = obj
	return obj
}

func (r *Resolver) objectFields(td *schema.TypeDef) graphql.Fields {
	fields := graphql.Fields{}
	for _, f := range td.Fields {
		out, err := r.outputFor(f)
		if err != nil {
			r.buildErr(err)
			continue
		}
		field := &graphql.Field{Type: out, Description: f.Description}
		if f.IsReference() {
			field.Resolve = r.makeReferenceResolver(td.Name, f)
		}
		fields[f.Name] = field
	}
	return fields
}

func (r *Resolver) inputType(td *schema.TypeDef) *graphql.InputObject {
	r.mu.RLock()
	cached, ok := r.inputs[td.Name]
	r.mu.RUnlock()
	if ok {
		return cached
	}

	in := graphql.NewInputObject(graphql.InputObjectConfig{
		Name:        td.Name,
		Description: td.Description,
		Fields: graphql.InputObjectConfigFieldMapThunk(func() graphql.InputObjectConfigFieldMap {
			fields := graphql.InputObjectConfigFieldMap{}
			for _, f := range td.Fields {
				t, err := r.inputFor(f)
				if err != nil {
					r.buildErr(err)
					continue
				}
				fields[f.Name] = &graphql.InputObjectFieldConfig{Type: t, Description: f.Description}
			}
			return fields
		}),
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.inputs[td.Name]; ok {
		return cached
	}
	r.inputs[td.Name] = in
	return in
}

func (r *Resolver) enumType(td *schema.TypeDef) *graphql.Enum {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.enums[td.Name]; ok {
		return cached
	}
	values := graphql.EnumValueConfigMap{}
	for _, v := range td.EnumValues {
		values[v] = &graphql.EnumValueConfig{Value: v}
	}
	e := graphql.NewEnum(graphql.EnumConfig{
		Name:        td.Name,
		Description: td.Description,
		Values:      values,
	})
	r.enums[td.Name] = e
	return e
}

// customScalar passes values through unchanged; the store decides how to
// persist them.
func (r *Resolver) customScalar(td *schema.TypeDef) *graphql.Scalar {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.scalars[td.Name]; ok {
		return cached
	}
	identity := func(v any) any { return v }
	s := graphql.NewScalar(graphql.ScalarConfig{
		Name:         td.Name,
		Description:  td.Description,
		Serialize:    identity,
		ParseValue:   identity,
		ParseLiteral: literalValue,
	})
	r.scalars[td.Name] = s
	return s
}

func literalValue(v ast.Value) any {
	switch lit := v.(type) {
	case *ast.StringValue:
		return lit.Value
	case *ast.EnumValue:
		return lit.Value
	case *ast.BooleanValue:
		return lit.Value
	case *ast.IntValue:
		if n, err := strconv.ParseInt(lit.Value, 10, 64); err == nil {
			return n
		}
		return lit.Value
	case *ast.FloatValue:
		if f, err := strconv.ParseFloat(lit.Value, 64); err == nil {
			return f
		}
		return lit.Value
	case *ast.ListValue:
		out := make([]any, len(lit.Values))
		for i, item := range lit.Values {
			out[i] = literalValue(item)
		}
		return out
	case *ast.ObjectValue:
		out := make(map[string]any, len(lit.Fields))
		for _, f := range lit.Fields {
			out[f.Name.Value] = literalValue(f.Value)
		}
		return out
	}
	return nil
}
