// Package idgen supplies identifiers for objects created without one.
package idgen

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator returns a value never returned before within the process.
type Generator interface {
	GenerateID() string
}

// Func adapts a function to Generator.
type Func func() string

func (f Func) GenerateID() string { return f() }

// UUID generates time-ordered UUIDs in canonical lower-case form.
type UUID struct{}

func (UUID) GenerateID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return strings.ToLower(id.String())
}

// Sequence yields "1", "2", "3", ... and is safe for concurrent use.
type Sequence struct {
	next atomic.Int64
}

// NewSequence starts a sequence at 1.
func NewSequence() *Sequence {
	return &Sequence{}
}

func (s *Sequence) GenerateID() string {
	return strconv.FormatInt(s.next.Add(1), 10)
}

// New returns the generator for a configured format.
func New(format string) (Generator, error) {
	switch strings.ToLower(format) {
	case "", "uuid":
		return UUID{}, nil
	case "sequence":
		return NewSequence(), nil
	default:
		return nil, fmt.Errorf("unknown id format %q", format)
	}
}
