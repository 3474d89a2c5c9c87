package store

import (
	"context"
	"log/slog"
	"time"

	"clubpos/models"
)

// JSONCache is the subset of rdx.Client the catalog cache needs.
type JSONCache interface {
	Key(parts ...string) string
	GetJSON(ctx context.Context, key string, v any) (bool, error)
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
}

// CachedCatalog reads reference data through a cache. Cache errors are
// logged and fall through to the backing catalog.
type CachedCatalog struct {
	Catalog
	cache JSONCache
	ttl   time.Duration
}

func NewCachedCatalog(c Catalog, cache JSONCache, ttl time.Duration) *CachedCatalog {
	return &CachedCatalog{Catalog: c, cache: cache, ttl: ttl}
}

func (c *CachedCatalog) FetchProducts(ctx context.Context) ([]models.Product, error) {
	return cached(ctx, c, "products", c.Catalog.FetchProducts)
}

func (c *CachedCatalog) FetchProductCategories(ctx context.Context) ([]models.ProductCategory, error) {
	return cached(ctx, c, "categories", c.Catalog.FetchProductCategories)
}

func (c *CachedCatalog) FetchTables(ctx context.Context) ([]models.Table, error) {
	return cached(ctx, c, "tables", c.Catalog.FetchTables)
}

func cached[T any](ctx context.Context, c *CachedCatalog, name string, load func(context.Context) ([]T, error)) ([]T, error) {
	key := c.cache.Key("catalog", name)

	var hit []T
	found, err := c.cache.GetJSON(ctx, key, &hit)
	if err != nil {
		slog.WarnContext(ctx, "catalog cache read failed", "key", key, "error", err)
	}
	if found {
		return hit, nil
	}

	fresh, err := load(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.cache.SetJSON(ctx, key, fresh, c.ttl); err != nil {
		slog.WarnContext(ctx, "catalog cache write failed", "key", key, "error", err)
	}
	return fresh, nil
}

// WithCatalog combines an order store with a separate catalog source.
func WithCatalog(o Orders, c Catalog) Store {
	return struct {
		Orders
		Catalog
	}{o, c}
}
