package mutation

import (
	"github.com/taras/graphsheets/internal/formula"
	"github.com/taras/graphsheets/internal/schema"
	"github.com/taras/graphsheets/internal/store"
)

// FlatRecord is the row written for one object of the tree.
type FlatRecord struct {
	Type   string
	Record store.Record
}

// Flatten produces one record per object node, parent before children.
//
// Scalars present in the input are copied. Every reference field declared on
// the object type becomes a relationship formula, whether or not the input
// carried a nested payload for it.
func Flatten(s *schema.Schema, mutationName string, tree map[string]any) ([]FlatRecord, error) {
	rs, err := roots(s, mutationName, tree)
	if err != nil {
		return nil, err
	}
	var out []FlatRecord
	for _, r := range rs {
		err := eachNode(mutationName, r.arg, r.value, func(node map[string]any) error {
			records, err := flattenNode(s, r.output, node)
			out = append(out, records...)
			return err
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func flattenNode(s *schema.Schema, typeName string, node map[string]any) ([]FlatRecord, error) {
	record, err := flatRecord(s, typeName, node)
	if err != nil {
		return nil, err
	}
	out := []FlatRecord{{Type: typeName, Record: record}}

	fields, _ := s.FieldsOf(typeName)
	for _, f := range fields {
		if !f.IsReference() {
			continue
		}
		v, ok := present(node, f.Name)
		if !ok {
			continue
		}
		err := eachNode(typeName, f, v, func(child map[string]any) error {
			nested, err := flattenNode(s, f.Target, child)
			out = append(out, nested...)
			return err
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// flatRecord builds the single row for node without descending into children.
func flatRecord(s *schema.Schema, typeName string, node map[string]any) (store.Record, error) {
	fields, err := s.FieldsOf(typeName)
	if err != nil {
		return nil, err
	}
	id := idOf(node)
	record := make(store.Record, len(fields))
	for _, f := range fields {
		if f.IsReference() {
			record[f.Name] = formula.Relationship(typeName, id, f.Name, f.Target)
			continue
		}
		if v, ok := node[f.Name]; ok {
			record[f.Name] = cloneValue(v)
		}
	}
	if _, ok := record["id"]; !ok {
		record["id"] = node["id"]
	}
	return record, nil
}
