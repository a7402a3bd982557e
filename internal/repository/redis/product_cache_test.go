package redis

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agamenonmacondo/avashop-sub001/internal/domain"
	apperrors "github.com/agamenonmacondo/avashop-sub001/pkg/errors"
)

// countingRepo is an in-memory ProductRepository that counts reads.
type countingRepo struct {
	products map[string]domain.Product
	reads    int
}

func (r *countingRepo) Create(_ context.Context, p *domain.Product) error {
	r.products[p.ID] = *p
	return nil
}

func (r *countingRepo) Update(_ context.Context, p *domain.Product) error {
	r.products[p.ID] = *p
	return nil
}

func (r *countingRepo) GetByID(_ context.Context, id string) (*domain.Product, error) {
	r.reads++
	p, ok := r.products[id]
	if !ok {
		return nil, apperrors.NotFound("product", id)
	}
	return &p, nil
}

func (r *countingRepo) GetBySlug(_ context.Context, slug string) (*domain.Product, error) {
	r.reads++
	for _, p := range r.products {
		if p.Slug == slug {
			return &p, nil
		}
	}
	return nil, apperrors.NotFound("product", slug)
}

func (r *countingRepo) GetMany(_ context.Context, ids []string) ([]domain.Product, error) {
	r.reads++
	var out []domain.Product
	for _, id := range ids {
		if p, ok := r.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *countingRepo) List(_ context.Context, _ domain.ProductFilter) ([]domain.Product, int, error) {
	r.reads++
	out := make([]domain.Product, 0, len(r.products))
	for _, p := range r.products {
		out = append(out, p)
	}
	return out, len(out), nil
}

func (r *countingRepo) SetStock(_ context.Context, id string, stock int) (*domain.Product, error) {
	p := r.products[id]
	p.Stock = stock
	r.products[id] = p
	return &p, nil
}

func setupCache(t *testing.T) (*ProductCache, *countingRepo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	repo := &countingRepo{products: map[string]domain.Product{
		"p1": {ID: "p1", Slug: "vela-lavanda", Name: "Vela lavanda", Price: 50000, Currency: "COP", Stock: 5, Active: true},
	}}
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewProductCache(repo, client, time.Minute, logger), repo, mr
}

func TestProductCache_GetByID_ReadsThrough(t *testing.T) {
	cache, repo, mr := setupCache(t)
	ctx := context.Background()

	p, err := cache.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Vela lavanda", p.Name)

	p, err = cache.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 5, p.Stock)
	assert.Equal(t, 1, repo.reads)
	assert.True(t, mr.Exists("catalog:v0:id:p1"))
}

func TestProductCache_NotFoundIsNotCached(t *testing.T) {
	cache, repo, _ := setupCache(t)

	_, err := cache.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = cache.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Equal(t, 2, repo.reads)
}

func TestProductCache_WriteBumpsVersion(t *testing.T) {
	cache, repo, mr := setupCache(t)
	ctx := context.Background()

	_, err := cache.GetByID(ctx, "p1")
	require.NoError(t, err)

	_, err = cache.SetStock(ctx, "p1", 9)
	require.NoError(t, err)

	v, err := mr.Get(versionKey)
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	p, err := cache.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 9, p.Stock)
	assert.Equal(t, 2, repo.reads)
}

func TestProductCache_List(t *testing.T) {
	cache, repo, _ := setupCache(t)
	ctx := context.Background()

	for range 2 {
		products, total, err := cache.List(ctx, domain.ProductFilter{Page: 1, PerPage: 20})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		assert.Len(t, products, 1)
	}
	assert.Equal(t, 1, repo.reads)
}

func TestProductCache_RedisDown_FallsBack(t *testing.T) {
	cache, repo, mr := setupCache(t)
	mr.Close()

	p, err := cache.GetBySlug(context.Background(), "vela-lavanda")
	require.NoError(t, err)
	assert.Equal(t, "p1", p.ID)
	assert.Equal(t, 1, repo.reads)
}

func TestProductCache_GetManyBypassesCache(t *testing.T) {
	cache, repo, _ := setupCache(t)

	for range 2 {
		_, err := cache.GetMany(context.Background(), []string{"p1"})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, repo.reads)
}
