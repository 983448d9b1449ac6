package naming

import (
	"fmt"
	"log/slog"
)

// CollisionResolver tracks registered names and resolves collisions
// by applying numeric suffixes when duplicates are detected.
type CollisionResolver struct {
	seen   map[string]string // root field name → source type
	logger *slog.Logger
}

// NewCollisionResolver creates a new collision resolver.
func NewCollisionResolver(logger *slog.Logger) *CollisionResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &CollisionResolver{
		seen:   make(map[string]string),
		logger: logger,
	}
}

// Register records a root field name and returns the resolved name.
// If a collision occurs, applies a numeric suffix and logs a warning.
func (c *CollisionResolver) Register(name, source string) string {
	if existing, exists := c.seen[name]; exists {
		c.logger.Warn("naming collision detected, applying suffix",
			slog.String("name", name),
			slog.String("existing_source", existing),
			slog.String("new_source", source),
		)
		for i := 2; ; i++ {
			suffixed := fmt.Sprintf("%s%d", name, i)
			if _, taken := c.seen[suffixed]; !taken {
				c.seen[suffixed] = source
				return suffixed
			}
		}
	}
	c.seen[name] = source
	return name
}

// Exists reports whether a name has been registered.
func (c *CollisionResolver) Exists(name string) bool {
	_, ok := c.seen[name]
	return ok
}
