package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/agamenonmacondo/avashop-sub001/internal/domain"
	"github.com/agamenonmacondo/avashop-sub001/internal/repository"
	apperrors "github.com/agamenonmacondo/avashop-sub001/pkg/errors"
	"github.com/agamenonmacondo/avashop-sub001/pkg/slug"
	"github.com/agamenonmacondo/avashop-sub001/pkg/validator"
)

// CatalogService implements product listing and administration.
type CatalogService struct {
	products repository.ProductRepository
	logger   *slog.Logger
}

// NewCatalogService creates a new catalog service. products is normally the
// cached repository.
func NewCatalogService(products repository.ProductRepository, logger *slog.Logger) *CatalogService {
	return &CatalogService{products: products, logger: logger}
}

// ProductInput holds the editable product fields.
type ProductInput struct {
	Name        string `json:"name" validate:"required,min=2,max=200"`
	Slug        string `json:"slug" validate:"omitempty,max=220"`
	Description string `json:"description" validate:"max=5000"`
	Price       int64  `json:"price" validate:"gt=0"`
	Currency    string `json:"currency" validate:"required,iso4217"`
	Stock       int    `json:"stock" validate:"min=0"`
	ImageURL    string `json:"image_url" validate:"omitempty,url,max=1000"`
	Category    string `json:"category" validate:"max=100"`
	Active      *bool  `json:"active"`
}

// ListProducts returns a page of the catalog.
func (s *CatalogService) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, int, error) {
	products, total, err := s.products.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	return products, total, nil
}

// GetProduct looks a product up by id or slug. Inactive products are only
// visible when includeInactive is set.
func (s *CatalogService) GetProduct(ctx context.Context, idOrSlug string, includeInactive bool) (*domain.Product, error) {
	var (
		p   *domain.Product
		err error
	)
	if _, parseErr := uuid.Parse(idOrSlug); parseErr == nil {
		p, err = s.products.GetByID(ctx, idOrSlug)
	} else {
		p, err = s.products.GetBySlug(ctx, idOrSlug)
	}
	if err != nil {
		return nil, err
	}
	if !p.Active && !includeInactive {
		return nil, apperrors.NotFound("product", idOrSlug)
	}
	return p, nil
}

// CreateProduct adds a product. The slug defaults to one derived from the
// name.
func (s *CatalogService) CreateProduct(ctx context.Context, in ProductInput) (*domain.Product, error) {
	if err := validator.Validate(in); err != nil {
		return nil, err
	}

	now := utcNow()
	p := &domain.Product{
		ID:          uuid.New().String(),
		Slug:        in.Slug,
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Price:       in.Price,
		Currency:    strings.ToUpper(in.Currency),
		Stock:       in.Stock,
		ImageURL:    in.ImageURL,
		Category:    in.Category,
		Active:      in.Active == nil || *in.Active,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if p.Slug == "" {
		p.Slug = slug.Generate(p.Name)
	}

	if err := s.products.Create(ctx, p); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "product created",
		slog.String("product_id", p.ID),
		slog.String("slug", p.Slug),
	)
	return p, nil
}

// UpdateProduct replaces the editable fields of product id. Stock is left
// untouched; use SetStock.
func (s *CatalogService) UpdateProduct(ctx context.Context, id string, in ProductInput) (*domain.Product, error) {
	if err := validator.Validate(in); err != nil {
		return nil, err
	}

	p, err := s.products.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	p.Name = strings.TrimSpace(in.Name)
	p.Description = in.Description
	p.Price = in.Price
	p.Currency = strings.ToUpper(in.Currency)
	p.ImageURL = in.ImageURL
	p.Category = in.Category
	if in.Slug != "" {
		p.Slug = in.Slug
	}
	if in.Active != nil {
		p.Active = *in.Active
	}
	p.UpdatedAt = utcNow()

	if err := s.products.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// SetStock sets the absolute stock of product id.
func (s *CatalogService) SetStock(ctx context.Context, id string, stock int) (*domain.Product, error) {
	if stock < 0 {
		return nil, apperrors.InvalidInput("stock must not be negative")
	}
	p, err := s.products.SetStock(ctx, id, stock)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "stock updated",
		slog.String("product_id", id),
		slog.Int("stock", p.Stock),
		slog.Int("reserved", p.Reserved),
	)
	return p, nil
}
