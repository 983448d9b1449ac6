// Package store defines the backing store the mutation engine writes to and
// the read side of the GraphQL API loads from.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/taras/graphsheets/internal/relationship"
)

// Record is one flat row keyed by field name.
type Record map[string]any

// ID returns the record's identifier as a string, or "" when absent.
func (r Record) ID() string {
	if r == nil {
		return ""
	}
	switch id := r["id"].(type) {
	case nil:
		return ""
	case string:
		return id
	default:
		return fmt.Sprint(id)
	}
}

// ErrUnknownType is returned by stores that keep a fixed set of record types.
var ErrUnknownType = errors.New("unknown record type")

// Store persists flat records and the relationship edge index.
//
// WriteRecord returns a nil Record, and no error, when the write did not
// materialize a row (for example a duplicate id).
type Store interface {
	WriteEdges(ctx context.Context, edges []relationship.Edge) ([]relationship.WrittenEdge, error)
	WriteRecord(ctx context.Context, typeName string, record Record) (Record, error)
	FindRecord(ctx context.Context, typeName, id string) (Record, error)
	FindRecords(ctx context.Context, typeName string, ids []string) ([]Record, error)
	FindAll(ctx context.Context, typeName string) ([]Record, error)
	Ping(ctx context.Context) error
}

// SplitIDs splits an evaluated list reference into ids, dropping blanks.
func SplitIDs(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			ids = append(ids, p)
		}
	}
	return ids
}

// JoinIDs renders target ids the way an evaluated relationship formula does.
func JoinIDs(ids []string) string {
	return strings.Join(ids, ",")
}
