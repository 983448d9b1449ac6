package mutation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/taras/graphsheets/internal/idgen"
	"github.com/taras/graphsheets/internal/logging"
	"github.com/taras/graphsheets/internal/relationship"
	"github.com/taras/graphsheets/internal/schema"
	"github.com/taras/graphsheets/internal/store"
)

// ErrNoPayload is returned when a create mutation is called without its object argument.
var ErrNoPayload = errors.New("no object argument supplied")

// Creator decomposes nested create payloads into edge and record writes and
// reassembles the response tree.
type Creator struct {
	schema         *schema.Schema
	store          store.Store
	ids            idgen.Generator
	logger         *logging.Logger
	tracer         trace.Tracer
	maxConcurrency int
}

// Option configures a Creator.
type Option func(*Creator)

// WithLogger sets the logger used for state transitions.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Creator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMaxConcurrency bounds how many sibling children one object resolves at
// once. Zero or less means unbounded.
func WithMaxConcurrency(n int) Option {
	return func(c *Creator) { c.maxConcurrency = n }
}

// NewCreator wires the engine to its collaborators.
func NewCreator(s *schema.Schema, st store.Store, ids idgen.Generator, opts ...Option) *Creator {
	c := &Creator{
		schema: s,
		store:  st,
		ids:    ids,
		logger: logging.FromContext(context.Background()),
		tracer: otel.Tracer("graphsheets/mutation"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Create runs a declared create mutation against the store.
//
// The result mirrors the object argument with ids added and nested objects
// replaced by their created forms. A nil result with a nil error means the
// store did not materialize the root record, and no child was attempted.
// Store errors are returned unchanged; rows written before the failure stay.
func (c *Creator) Create(ctx context.Context, mutationName string, args map[string]any) (result map[string]any, err error) {
	ctx, span := c.tracer.Start(ctx, "mutation.create", trace.WithAttributes(
		attribute.String("graphsheets.mutation", mutationName),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.Bool("graphsheets.mutation.created", result != nil))
		span.End()
	}()

	rs, err := roots(c.schema, mutationName, args)
	if err != nil {
		return nil, err
	}
	switch {
	case len(rs) == 0:
		return nil, fmt.Errorf("%s: %w", mutationName, ErrNoPayload)
	case len(rs) > 1:
		return nil, fmt.Errorf("%s: %d object arguments supplied, want 1", mutationName, len(rs))
	}
	r := rs[0]
	if r.arg.IsList() {
		return nil, shapeError(mutationName, r.arg, "an object", r.value)
	}
	node, ok := asObject(r.value)
	if !ok {
		return nil, shapeError(mutationName, r.arg, "an object", r.value)
	}

	return c.create(ctx, newEdgeLedger(), r.output, r.arg.Target, node)
}

// create handles one object: its own record plus a recursive call per nested payload.
func (c *Creator) create(ctx context.Context, ledger *edgeLedger, output, input string, original map[string]any) (map[string]any, error) {
	injected, err := injectNode(c.schema, input, original, c.ids)
	if err != nil {
		return nil, err
	}
	id := idOf(injected)
	logger := c.logger.WithFields("type", output, "id", id)
	logger.Debug("ids injected")

	edges, err := extractNode(c.schema, output, injected)
	if err != nil {
		return nil, err
	}
	edges = ledger.claim(relationship.Dedupe(edges))
	if len(edges) > 0 {
		if _, err := c.store.WriteEdges(ctx, edges); err != nil {
			return nil, err
		}
		logger.Debug("edges written", "count", len(edges))
	}

	record, err := flatRecord(c.schema, output, injected)
	if err != nil {
		return nil, err
	}
	written, err := c.store.WriteRecord(ctx, output, record)
	if err != nil {
		return nil, err
	}
	if written == nil {
		logger.Info("store created no record, skipping nested payloads")
		return nil, nil
	}
	logger.Debug("record written")

	children, err := c.resolveChildren(ctx, ledger, output, input, injected)
	if err != nil {
		return nil, err
	}

	result := make(map[string]any, len(written)+len(children))
	for k, v := range written {
		result[k] = v
	}
	for k, v := range children {
		result[k] = v
	}
	logger.Debug("children resolved", "fields", len(children))
	return result, nil
}

// resolveChildren starts every nested create before waiting on any of them.
// The first failure cancels the shared context and is returned.
func (c *Creator) resolveChildren(ctx context.Context, ledger *edgeLedger, output, input string, injected map[string]any) (map[string]any, error) {
	inputFields, err := c.schema.FieldsOf(input)
	if err != nil {
		return nil, err
	}
	outputFields, err := c.schema.FieldsOf(output)
	if err != nil {
		return nil, err
	}
	inputByName := make(map[string]schema.Field, len(inputFields))
	for _, f := range inputFields {
		inputByName[f.Name] = f
	}

	g, gctx := errgroup.WithContext(ctx)
	if c.maxConcurrency > 0 {
		g.SetLimit(c.maxConcurrency)
	}

	results := make(map[string]any)
	singles := make(map[string]*map[string]any)
	for _, of := range outputFields {
		if !of.IsReference() {
			continue
		}
		in, ok := inputByName[of.Name]
		if !ok || !in.IsReference() {
			continue
		}
		v, ok := present(injected, of.Name)
		if !ok {
			continue
		}

		if of.IsList() {
			items, _ := asList(v)
			slots := make([]any, len(items))
			results[of.Name] = slots
			for i, item := range items {
				child, ok := asObject(item)
				if !ok {
					continue
				}
				g.Go(func() error {
					created, err := c.create(gctx, ledger, of.Target, in.Target, child)
					if err != nil {
						return err
					}
					if created != nil {
						slots[i] = created
					}
					return nil
				})
			}
			continue
		}

		child, ok := asObject(v)
		if !ok {
			continue
		}
		slot := new(map[string]any)
		singles[of.Name] = slot
		g.Go(func() error {
			created, err := c.create(gctx, ledger, of.Target, in.Target, child)
			if err != nil {
				return err
			}
			*slot = created
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	for name, slot := range singles {
		if *slot != nil {
			results[name] = *slot
		} else {
			results[name] = nil
		}
	}
	return results, nil
}

// edgeLedger remembers the edges already written during one top-level call so
// nested calls do not append them to the index a second time.
type edgeLedger struct {
	mu      sync.Mutex
	written map[relationship.Edge]struct{}
}

func newEdgeLedger() *edgeLedger {
	return &edgeLedger{written: make(map[relationship.Edge]struct{})}
}

// claim returns the edges not seen before and marks them as written.
func (l *edgeLedger) claim(edges []relationship.Edge) []relationship.Edge {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := edges[:0:0]
	for _, e := range edges {
		if _, ok := l.written[e]; ok {
			continue
		}
		l.written[e] = struct{}{}
		out = append(out, e)
	}
	return out
}
