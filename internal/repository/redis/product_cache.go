package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agamenonmacondo/avashop-sub001/internal/domain"
	"github.com/agamenonmacondo/avashop-sub001/internal/repository"
)

const versionKey = "catalog:version"

// ProductCache is a read-through cache in front of a ProductRepository.
// Keys embed the catalog version, so bumping the version drops every entry
// at once and stale keys age out through their TTL.
type ProductCache struct {
	next   repository.ProductRepository
	client redis.Cmdable
	ttl    time.Duration
	logger *slog.Logger
}

// NewProductCache wraps next with a Redis cache.
func NewProductCache(next repository.ProductRepository, client redis.Cmdable, ttl time.Duration, logger *slog.Logger) *ProductCache {
	return &ProductCache{next: next, client: client, ttl: ttl, logger: logger}
}

type cachedList struct {
	Products []domain.Product `json:"products"`
	Total    int              `json:"total"`
}

func (c *ProductCache) version(ctx context.Context) (int64, error) {
	v, err := c.client.Get(ctx, versionKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

// load fills dst from key, calling fill on a miss. Redis failures degrade to
// the database.
func (c *ProductCache) load(ctx context.Context, key func(v int64) string, dst any, fill func() (any, error)) error {
	v, err := c.version(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "catalog cache unavailable", slog.String("error", err.Error()))
		return c.copyFrom(fill, dst)
	}
	k := key(v)

	data, err := c.client.Get(ctx, k).Bytes()
	switch {
	case err == nil:
		if jsonErr := json.Unmarshal(data, dst); jsonErr == nil {
			return nil
		}
	case !errors.Is(err, redis.Nil):
		c.logger.WarnContext(ctx, "catalog cache read failed", slog.String("key", k), slog.String("error", err.Error()))
	}

	val, err := fill()
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("marshal catalog entry: %w", err)
	}
	if err := c.client.Set(ctx, k, encoded, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "catalog cache write failed", slog.String("key", k), slog.String("error", err.Error()))
	}
	return json.Unmarshal(encoded, dst)
}

func (c *ProductCache) copyFrom(fill func() (any, error), dst any) error {
	val, err := fill()
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("marshal catalog entry: %w", err)
	}
	return json.Unmarshal(encoded, dst)
}

// Invalidate bumps the catalog version.
func (c *ProductCache) Invalidate(ctx context.Context) error {
	if err := c.client.Incr(ctx, versionKey).Err(); err != nil {
		return fmt.Errorf("bump catalog version: %w", err)
	}
	return nil
}

func (c *ProductCache) invalidate(ctx context.Context) {
	if err := c.Invalidate(ctx); err != nil {
		c.logger.WarnContext(ctx, "catalog cache invalidation failed", slog.String("error", err.Error()))
	}
}

// GetByID reads through the cache.
func (c *ProductCache) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := c.load(ctx,
		func(v int64) string { return "catalog:v" + strconv.FormatInt(v, 10) + ":id:" + id },
		&p,
		func() (any, error) { return c.next.GetByID(ctx, id) },
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetBySlug reads through the cache.
func (c *ProductCache) GetBySlug(ctx context.Context, slug string) (*domain.Product, error) {
	var p domain.Product
	err := c.load(ctx,
		func(v int64) string { return "catalog:v" + strconv.FormatInt(v, 10) + ":slug:" + slug },
		&p,
		func() (any, error) { return c.next.GetBySlug(ctx, slug) },
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// List reads through the cache.
func (c *ProductCache) List(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, int, error) {
	var out cachedList
	err := c.load(ctx,
		func(v int64) string {
			return fmt.Sprintf("catalog:v%d:list:%s:%t:%d:%d", v, filter.Category, filter.IncludeInactive, filter.Page, filter.PerPage)
		},
		&out,
		func() (any, error) {
			products, total, err := c.next.List(ctx, filter)
			if err != nil {
				return nil, err
			}
			return cachedList{Products: products, Total: total}, nil
		},
	)
	if err != nil {
		return nil, 0, err
	}
	return out.Products, out.Total, nil
}

// GetMany is not cached; checkout needs current stock.
func (c *ProductCache) GetMany(ctx context.Context, ids []string) ([]domain.Product, error) {
	return c.next.GetMany(ctx, ids)
}

// Create writes through and invalidates.
func (c *ProductCache) Create(ctx context.Context, p *domain.Product) error {
	if err := c.next.Create(ctx, p); err != nil {
		return err
	}
	c.invalidate(ctx)
	return nil
}

// Update writes through and invalidates.
func (c *ProductCache) Update(ctx context.Context, p *domain.Product) error {
	if err := c.next.Update(ctx, p); err != nil {
		return err
	}
	c.invalidate(ctx)
	return nil
}

// SetStock writes through and invalidates.
func (c *ProductCache) SetStock(ctx context.Context, id string, stock int) (*domain.Product, error) {
	p, err := c.next.SetStock(ctx, id, stock)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx)
	return p, nil
}
