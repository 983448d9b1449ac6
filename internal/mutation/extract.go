package mutation

import (
	"errors"
	"fmt"

	"github.com/taras/graphsheets/internal/relationship"
	"github.com/taras/graphsheets/internal/schema"
)

// root is an object-valued mutation argument paired with the object type
// its records are stored as.
type root struct {
	arg    schema.Field
	output string
	value  any
}

// ErrNotObjectMutation is returned for mutations whose return type is not an object type.
var ErrNotObjectMutation = errors.New("mutation does not return an object type")

func roots(s *schema.Schema, mutationName string, tree map[string]any) ([]root, error) {
	op, err := s.Mutation(mutationName)
	if err != nil {
		return nil, err
	}
	if !op.Return.IsReference() {
		return nil, fmt.Errorf("%w: %s returns %s", ErrNotObjectMutation, mutationName, op.Return.Target)
	}
	var out []root
	for _, arg := range op.Arguments {
		if !arg.IsReference() {
			continue
		}
		v, ok := present(tree, arg.Name)
		if !ok {
			continue
		}
		out = append(out, root{arg: arg, output: op.Return.Target, value: v})
	}
	return out, nil
}

// Extract lists one edge per reference occurrence in an id-complete tree.
//
// Each parent edge precedes the edges of its descendants, siblings follow the
// object type's field declaration order and list elements keep input order.
func Extract(s *schema.Schema, mutationName string, tree map[string]any) ([]relationship.Edge, error) {
	rs, err := roots(s, mutationName, tree)
	if err != nil {
		return nil, err
	}
	var edges []relationship.Edge
	for _, r := range rs {
		err := eachNode(mutationName, r.arg, r.value, func(node map[string]any) error {
			found, err := extractNode(s, r.output, node)
			edges = append(edges, found...)
			return err
		})
		if err != nil {
			return nil, err
		}
	}
	return edges, nil
}

// eachNode applies fn to an argument value, or to every element when the argument is a list.
func eachNode(owner string, f schema.Field, v any, fn func(map[string]any) error) error {
	if f.IsList() {
		items, ok := asList(v)
		if !ok {
			return shapeError(owner, f, "a list of objects", v)
		}
		for _, item := range items {
			if item == nil {
				continue
			}
			node, ok := asObject(item)
			if !ok {
				return shapeError(owner, f, "a list of objects", item)
			}
			if err := fn(node); err != nil {
				return err
			}
		}
		return nil
	}
	node, ok := asObject(v)
	if !ok {
		return shapeError(owner, f, "an object", v)
	}
	return fn(node)
}

func extractNode(s *schema.Schema, typeName string, node map[string]any) ([]relationship.Edge, error) {
	fields, err := s.FieldsOf(typeName)
	if err != nil {
		return nil, err
	}
	sourceID := idOf(node)

	var edges []relationship.Edge
	for _, f := range fields {
		if !f.IsReference() {
			continue
		}
		v, ok := present(node, f.Name)
		if !ok {
			continue
		}
		err := eachNode(typeName, f, v, func(child map[string]any) error {
			edges = append(edges, relationship.Edge{
				SourceType: typeName,
				SourceID:   sourceID,
				Field:      f.Name,
				TargetType: f.Target,
				TargetID:   idOf(child),
			})
			nested, err := extractNode(s, f.Target, child)
			edges = append(edges, nested...)
			return err
		})
		if err != nil {
			return nil, err
		}
	}
	return edges, nil
}
