// Package resolver builds an executable GraphQL schema from a parsed SDL
// catalog. Create mutations run through the mutation engine; queries and
// reference fields read from the backing store.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/graphql-go/graphql"
	"go.opentelemetry.io/otel/attribute"

	"github.com/taras/graphsheets/internal/naming"
	"github.com/taras/graphsheets/internal/schema"
	"github.com/taras/graphsheets/internal/store"
)

// Creator runs a declared create mutation.
type Creator interface {
	Create(ctx context.Context, mutationName string, args map[string]any) (map[string]any, error)
}

// Resolver holds the collaborators shared by every generated resolver and
// caches the executable types built from the catalog.
type Resolver struct {
	schema  *schema.Schema
	store   store.Store
	creator Creator
	namer   *naming.Namer
	logger  *slog.Logger

	mu      sync.RWMutex
	objects map[string]*graphql.Object
	inputs  map[string]*graphql.InputObject
	enums   map[string]*graphql.Enum
	scalars map[string]*graphql.Scalar
	errs    []error
}

// NewResolver creates a resolver over the given catalog and collaborators.
func NewResolver(s *schema.Schema, st store.Store, creator Creator, namingConfig naming.Config, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		schema:  s,
		store:   st,
		creator: creator,
		namer:   naming.New(namingConfig, logger),
		logger:  logger,
		objects: make(map[string]*graphql.Object),
		inputs:  make(map[string]*graphql.InputObject),
		enums:   make(map[string]*graphql.Enum),
		scalars: make(map[string]*graphql.Scalar),
	}
}

func (r *Resolver) buildErr(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

// BuildGraphQLSchema constructs the executable schema. Every declared query is
// wired to a store read; every declared create mutation to the mutation engine.
// Other mutations are left out of the executable schema.
func (r *Resolver) BuildGraphQLSchema() (graphql.Schema, error) {
	r.namer.Reset()
	names := make(map[string]naming.Names)
	for _, td := range r.schema.ObjectTypes() {
		if naming.IsReservedSheet(td.Name) {
			r.logger.Warn("object type shares a reserved sheet name and is not queryable", slog.String("type", td.Name))
			continue
		}
		names[td.Name] = r.namer.Register(td.Name)
	}

	queryFields := graphql.Fields{}
	for _, op := range r.schema.Queries() {
		field, err := r.queryField(op, names)
		if err != nil {
			return graphql.Schema{}, err
		}
		queryFields[op.Name] = field
	}
	// If nothing is queryable, add a placeholder query to satisfy GraphQL requirements
	if len(queryFields) == 0 {
		queryFields["_schema"] = &graphql.Field{
			Type: graphql.String,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return "No queries declared", nil
			},
			Description: "Placeholder field when the schema declares no queries",
		}
	}

	mutationFields := graphql.Fields{}
	for _, op := range r.schema.Mutations() {
		field, ok, err := r.mutationField(op, names)
		if err != nil {
			return graphql.Schema{}, err
		}
		if !ok {
			r.logger.Warn("mutation is not a create mutation and is not exposed", slog.String("mutation", op.Name))
			continue
		}
		mutationFields[op.Name] = field
	}

	schemaConfig := graphql.SchemaConfig{
		Query: graphql.NewObject(graphql.ObjectConfig{Name: "Query", Fields: queryFields}),
	}
	if len(mutationFields) > 0 {
		schemaConfig.Mutation = graphql.NewObject(graphql.ObjectConfig{
			Name:   "Mutation",
			Fields: mutationFields,
		})
	}

	built, err := graphql.NewSchema(schemaConfig)
	if err != nil {
		return graphql.Schema{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.errs) > 0 {
		return graphql.Schema{}, errors.Join(r.errs...)
	}
	return built, nil
}

func (r *Resolver) arguments(op *schema.Operation) (graphql.FieldConfigArgument, error) {
	args := graphql.FieldConfigArgument{}
	for _, a := range op.Arguments {
		t, err := r.inputFor(a)
		if err != nil {
			return nil, fmt.Errorf("%s(%s): %w", op.Name, a.Name, err)
		}
		args[a.Name] = &graphql.ArgumentConfig{Type: t, Description: a.Description}
	}
	return args, nil
}

func (r *Resolver) queryField(op *schema.Operation, names map[string]naming.Names) (*graphql.Field, error) {
	out, err := r.outputFor(op.Return)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", op.Name, err)
	}
	args, err := r.arguments(op)
	if err != nil {
		return nil, err
	}
	field := &graphql.Field{Type: out, Args: args, Description: op.Description}

	if !op.Return.IsReference() {
		r.logger.Warn("query does not return an object type and resolves to null", slog.String("query", op.Name))
		return field, nil
	}

	target := op.Return.Target
	n, known := names[target]
	switch {
	case known && op.Return.IsList() && op.Name == n.Plural:
	case known && !op.Return.IsList() && op.Name == n.Singular:
	default:
		r.logger.Debug("query name does not follow type naming, wired by return type",
			slog.String("query", op.Name), slog.String("type", target))
	}

	if op.Return.IsList() {
		field.Resolve = r.makeListResolver(target)
	} else {
		field.Resolve = r.makeSingleResolver(target, op)
	}
	return field, nil
}

func (r *Resolver) mutationField(op *schema.Operation, names map[string]naming.Names) (*graphql.Field, bool, error) {
	if !op.Return.IsReference() || op.Return.IsList() {
		return nil, false, nil
	}
	n, known := names[op.Return.Target]
	if !(known && op.Name == n.Create) && !strings.HasPrefix(op.Name, "create") {
		return nil, false, nil
	}

	out, err := r.outputFor(op.Return)
	if err != nil {
		return nil, false, fmt.Errorf("mutation %s: %w", op.Name, err)
	}
	args, err := r.arguments(op)
	if err != nil {
		return nil, false, err
	}
	return &graphql.Field{
		Type:        out,
		Args:        args,
		Description: op.Description,
		Resolve:     r.makeCreateResolver(op),
	}, true, nil
}

// makeCreateResolver runs the mutation engine. A payload whose root record was
// not written resolves to null.
func (r *Resolver) makeCreateResolver(op *schema.Operation) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (result interface{}, err error) {
		ctx, span := startSpan(p.Context, "graphql.mutation.create",
			attribute.String("graphql.mutation.name", op.Name),
			attribute.String("graphql.mutation.type", op.Return.Target),
		)
		defer func() { span.finish(err) }()

		created, err := r.creator.Create(ctx, op.Name, p.Args)
		if err != nil {
			return nil, err
		}
		if created == nil {
			span.noop()
			return nil, nil
		}
		return created, nil
	}
}

// makeSingleResolver loads one record by the first argument, conventionally id.
func (r *Resolver) makeSingleResolver(typeName string, op *schema.Operation) graphql.FieldResolveFn {
	argName := "id"
	if _, ok := findArg(op, argName); !ok && len(op.Arguments) > 0 {
		argName = op.Arguments[0].Name
	}
	return func(p graphql.ResolveParams) (result interface{}, err error) {
		ctx, span := startSpan(p.Context, "graphql.query.single",
			attribute.String("graphql.query.name", op.Name),
			attribute.String("graphql.query.type", typeName),
		)
		defer func() { span.finish(err) }()

		id := idString(p.Args[argName])
		if id == "" {
			return nil, nil
		}
		rec, err := r.store.FindRecord(ctx, typeName, id)
		if err != nil || rec == nil {
			return nil, err
		}
		return map[string]any(rec), nil
	}
}

func (r *Resolver) makeListResolver(typeName string) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (result interface{}, err error) {
		ctx, span := startSpan(p.Context, "graphql.query.list",
			attribute.String("graphql.query.type", typeName),
		)
		defer func() { span.finish(err) }()

		recs, err := r.store.FindAll(ctx, typeName)
		if err != nil {
			return nil, err
		}
		span.SetAttributes(attribute.Int("graphql.query.rows", len(recs)))
		return recordsToList(recs), nil
	}
}

// makeReferenceResolver resolves a reference field of a record. Records read
// from the store hold the comma-joined target ids; records returned by a
// create mutation already hold the created objects.
func (r *Resolver) makeReferenceResolver(owner string, f schema.Field) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		source, ok := p.Source.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("invalid source type %T for %s.%s", p.Source, owner, f.Name)
		}

		switch v := source[f.Name].(type) {
		case nil:
			return nil, nil
		case map[string]any:
			if f.IsList() {
				return []any{v}, nil
			}
			return v, nil
		case []any:
			if f.IsList() {
				return v, nil
			}
			if len(v) == 0 {
				return nil, nil
			}
			return v[0], nil
		}

		ids := store.SplitIDs(idString(source[f.Name]))
		if len(ids) == 0 {
			return nil, nil
		}
		if !f.IsList() {
			rec, err := r.store.FindRecord(p.Context, f.Target, ids[0])
			if err != nil || rec == nil {
				return nil, err
			}
			return map[string]any(rec), nil
		}
		recs, err := r.store.FindRecords(p.Context, f.Target, ids)
		if err != nil {
			return nil, err
		}
		return recordsToList(recs), nil
	}
}

func findArg(op *schema.Operation, name string) (schema.Field, bool) {
	for _, a := range op.Arguments {
		if a.Name == name {
			return a, true
		}
	}
	return schema.Field{}, false
}

func idString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func recordsToList(recs []store.Record) []any {
	out := make([]any, len(recs))
	for i, rec := range recs {
		out[i] = map[string]any(rec)
	}
	return out
}
