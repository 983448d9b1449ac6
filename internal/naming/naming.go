package naming

import (
	"log/slog"
	"strings"
)

// Names are the root fields generated for one object type.
type Names struct {
	Type     string
	Singular string
	Plural   string
	Create   string
}

// Namer derives root field names for object types. It handles pluralization,
// reserved names, and collisions.
type Namer struct {
	config   Config
	logger   *slog.Logger
	resolver *CollisionResolver
}

// New creates a Namer with the given configuration
func New(cfg Config, logger *slog.Logger) *Namer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Namer{
		config:   cfg,
		logger:   logger,
		resolver: NewCollisionResolver(logger),
	}
}

// Default returns a Namer with default configuration
func Default() *Namer {
	return New(DefaultConfig(), nil)
}

// Reset clears the collision resolver state, allowing the namer to be reused
// for a new schema build.
func (n *Namer) Reset() {
	n.resolver = NewCollisionResolver(n.logger)
}

// Singular returns the single-record query name: the lower-cased type name.
// Example: "Person" -> "person"
func (n *Namer) Singular(typeName string) string {
	if override, ok := n.config.SingularOverrides[typeName]; ok {
		return override
	}
	return strings.ToLower(typeName)
}

// Plural returns the list query name.
// Example: "Person" -> "people", "Product" -> "products"
func (n *Namer) Plural(typeName string) string {
	return n.Pluralize(strings.ToLower(typeName))
}

// Create returns the create mutation name.
// Example: "Person" -> "createPerson"
func (n *Namer) Create(typeName string) string {
	return "create" + typeName
}

// Register derives and registers every root field name for typeName.
func (n *Namer) Register(typeName string) Names {
	return Names{
		Type:     typeName,
		Singular: n.register(n.Singular(typeName), "singular:"+typeName),
		Plural:   n.register(n.Plural(typeName), "plural:"+typeName),
		Create:   n.register(n.Create(typeName), "create:"+typeName),
	}
}

func (n *Namer) register(name, source string) string {
	if isReservedFieldName(name) {
		safe := strings.TrimLeft(name, "_")
		n.logger.Warn("GraphQL name conflicts with reserved prefix, renamed",
			slog.String("original", name),
			slog.String("renamed", safe),
		)
		name = safe
	}
	return n.resolver.Register(name, source)
}
