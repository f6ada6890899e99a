package catalog

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hugr-lab/geoquery/internal/recovery"
)

// Provider resolves the schema of a target (dataset.table, table name, ...).
// Schema returns (nil, nil) if the target doesn't exist.
// Implementations MUST be goroutine-safe.
type Provider interface {
	Schema(ctx context.Context, target string) (*Schema, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, target string) (*Schema, error)

func (f ProviderFunc) Schema(ctx context.Context, target string) (*Schema, error) {
	return f(ctx, target)
}

// Static is a fixed set of schemas keyed by target.
type Static map[string]*Schema

func (s Static) Schema(_ context.Context, target string) (*Schema, error) {
	return s[target], nil
}

// Cache builds each target's schema once and reuses it. Missing targets and
// failed lookups are not cached.
type Cache struct {
	provider Provider
	logger   *slog.Logger

	mu      sync.RWMutex
	schemas map[string]*Schema
}

// NewCache wraps a provider. A nil logger uses slog.Default().
func NewCache(p Provider, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		provider: p,
		logger:   logger,
		schemas:  make(map[string]*Schema),
	}
}

// Schema implements Provider.
func (c *Cache) Schema(ctx context.Context, target string) (*Schema, error) {
	c.mu.RLock()
	s, ok := c.schemas[target]
	c.mu.RUnlock()
	if ok {
		return s, nil
	}

	s, err := recovery.Call(c.logger, "catalog.Schema", func() (*Schema, error) {
		return c.provider.Schema(ctx, target)
	})
	if err != nil || s == nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if cached, ok := c.schemas[target]; ok {
		return cached, nil
	}
	c.schemas[target] = s
	c.logger.Debug("schema cached", "target", target, "fields", s.Len(), "geometry", s.Geometry())
	return s, nil
}

// Invalidate drops a cached schema so the next lookup rebuilds it.
func (c *Cache) Invalidate(target string) {
	c.mu.Lock()
	delete(c.schemas, target)
	c.mu.Unlock()
}
