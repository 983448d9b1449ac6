package mutation

import (
	"github.com/taras/graphsheets/internal/formula"
	"github.com/taras/graphsheets/internal/idgen"
	"github.com/taras/graphsheets/internal/schema"
)

// Inject returns a copy of args in which every object node carries an id.
//
// Supplied ids that are truthy are kept. Missing ids are generated depth
// first: a node's own id before any of its children, children in the input
// type's field declaration order, list elements in input order. Reference
// fields absent from the input stay absent. args is never modified.
//
// An id containing a quote fails with InvalidIdentifierError before any
// write happens.
func Inject(s *schema.Schema, mutationName string, args map[string]any, gen idgen.Generator) (map[string]any, error) {
	arguments, err := s.ArgumentsOf(mutationName)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(args))
	for _, arg := range arguments {
		v, ok := present(args, arg.Name)
		if !ok {
			continue
		}
		if !arg.IsReference() {
			out[arg.Name] = cloneValue(v)
			continue
		}
		injected, err := injectValue(s, mutationName, arg, v, gen)
		if err != nil {
			return nil, err
		}
		out[arg.Name] = injected
	}
	return out, nil
}

func injectValue(s *schema.Schema, owner string, f schema.Field, v any, gen idgen.Generator) (any, error) {
	if f.IsList() {
		items, ok := asList(v)
		if !ok {
			return nil, shapeError(owner, f, "a list of objects", v)
		}
		out := make([]any, len(items))
		for i, item := range items {
			if item == nil {
				continue
			}
			node, ok := asObject(item)
			if !ok {
				return nil, shapeError(owner, f, "a list of objects", item)
			}
			injected, err := injectNode(s, f.Target, node, gen)
			if err != nil {
				return nil, err
			}
			out[i] = injected
		}
		return out, nil
	}

	node, ok := asObject(v)
	if !ok {
		return nil, shapeError(owner, f, "an object", v)
	}
	return injectNode(s, f.Target, node, gen)
}

func injectNode(s *schema.Schema, typeName string, node map[string]any, gen idgen.Generator) (map[string]any, error) {
	fields, err := s.FieldsOf(typeName)
	if err != nil {
		return nil, err
	}

	out := make(map[string]any, len(node)+1)
	if id := node["id"]; truthy(id) {
		out["id"] = id
	} else {
		out["id"] = gen.GenerateID()
	}
	if id := idOf(out); !formula.ValidLiteral(id) {
		return nil, &InvalidIdentifierError{Type: typeName, ID: id}
	}

	for _, f := range fields {
		if f.Name == "id" {
			continue
		}
		v, ok := node[f.Name]
		if !ok {
			continue
		}
		if !f.IsReference() {
			out[f.Name] = cloneValue(v)
			continue
		}
		if v == nil {
			continue
		}
		injected, err := injectValue(s, typeName, f, v, gen)
		if err != nil {
			return nil, err
		}
		out[f.Name] = injected
	}
	return out, nil
}
