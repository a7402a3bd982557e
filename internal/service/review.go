package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agamenonmacondo/avashop-sub001/internal/domain"
	"github.com/agamenonmacondo/avashop-sub001/internal/mailer"
	"github.com/agamenonmacondo/avashop-sub001/internal/repository"
	apperrors "github.com/agamenonmacondo/avashop-sub001/pkg/errors"
	"github.com/agamenonmacondo/avashop-sub001/pkg/pagination"
	"github.com/agamenonmacondo/avashop-sub001/pkg/validator"
)

// ReviewConfig controls review invitations.
type ReviewConfig struct {
	StoreBaseURL string
	TokenTTL     time.Duration
}

// ReviewService issues single use review tokens and accepts reviews.
type ReviewService struct {
	store     repository.Store
	mailer    mailer.Mailer
	publisher EventPublisher
	cfg       ReviewConfig
	logger    *slog.Logger
	now       func() time.Time
	newToken  func() (string, error)
}

// NewReviewService creates a new review service.
func NewReviewService(
	store repository.Store,
	m mailer.Mailer,
	publisher EventPublisher,
	cfg ReviewConfig,
	logger *slog.Logger,
) *ReviewService {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 30 * 24 * time.Hour
	}
	cfg.StoreBaseURL = strings.TrimRight(cfg.StoreBaseURL, "/")
	return &ReviewService{
		store:     store,
		mailer:    m,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		now:       utcNow,
		newToken:  newReviewToken,
	}
}

// SubmitReviewInput is a review posted with its token.
type SubmitReviewInput struct {
	OrderID   string `json:"order_id" validate:"required,max=100"`
	ProductID string `json:"product_id" validate:"required,max=100"`
	Rating    int    `json:"rating" validate:"required,min=1,max=5"`
	Comment   string `json:"comment" validate:"max=2000"`
	Token     string `json:"token" validate:"required,max=200"`
}

// Submit redeems the token and stores the review in one transaction. Any
// failure leaves the token unused.
func (s *ReviewService) Submit(ctx context.Context, in SubmitReviewInput) (*domain.Review, error) {
	if err := validator.Validate(in); err != nil {
		reviewsSubmitted.WithLabelValues("invalid").Inc()
		return nil, err
	}

	now := s.now()
	var review *domain.Review
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		rr, err := tx.ReviewRequests().Consume(ctx, hashToken(in.Token), in.OrderID, now)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return apperrors.Unauthorized("invalid, expired or already used review token")
			}
			return err
		}

		order, err := tx.Orders().GetByID(ctx, in.OrderID)
		if err != nil {
			return err
		}
		if !order.HasProduct(in.ProductID) {
			return apperrors.InvalidInput("product is not part of this order")
		}

		review = &domain.Review{
			ID:        uuid.New().String(),
			ProductID: in.ProductID,
			OrderID:   in.OrderID,
			Email:     rr.Email,
			Rating:    in.Rating,
			Comment:   strings.TrimSpace(in.Comment),
			CreatedAt: now,
		}
		created, err := tx.Reviews().Create(ctx, review)
		if err != nil {
			return err
		}
		if !created {
			return apperrors.AlreadyExists("review", "product_id", in.ProductID)
		}
		return nil
	})
	if err != nil {
		reviewsSubmitted.WithLabelValues(submitResult(err)).Inc()
		return nil, err
	}

	reviewsSubmitted.WithLabelValues("created").Inc()
	s.logger.InfoContext(ctx, "review submitted",
		slog.String("review_id", review.ID),
		slog.String("order_id", review.OrderID),
		slog.String("product_id", review.ProductID),
		slog.Int("rating", review.Rating),
	)
	if err := s.publisher.PublishReviewSubmitted(ctx, review); err != nil {
		s.logger.WarnContext(ctx, "failed to publish review submitted event",
			slog.String("review_id", review.ID),
			slog.String("error", err.Error()),
		)
	}
	return review, nil
}

func submitResult(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrUnauthorized):
		return "bad_token"
	case errors.Is(err, apperrors.ErrAlreadyExists):
		return "duplicate"
	case errors.Is(err, apperrors.ErrNotFound), errors.Is(err, apperrors.ErrInvalidInput):
		return "invalid"
	}
	return "error"
}

// ProductReviews is a page of reviews with the product summary.
type ProductReviews struct {
	Reviews []domain.Review       `json:"reviews"`
	Summary *domain.ReviewSummary `json:"summary"`
	Total   int                   `json:"total"`
}

// ListForProduct returns a page of reviews of productID.
func (s *ReviewService) ListForProduct(ctx context.Context, productID string, params pagination.Params) (*ProductReviews, error) {
	params = params.Normalize()
	reviews, total, err := s.store.Reviews().ListByProduct(ctx, productID, params.Page, params.PerPage)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	summary, err := s.store.Reviews().Summary(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("review summary: %w", err)
	}
	return &ProductReviews{Reviews: reviews, Summary: summary, Total: total}, nil
}

// IssueReviewRequest creates a fresh token for an approved order, expiring
// earlier ones, and emails the review link.
func (s *ReviewService) IssueReviewRequest(ctx context.Context, orderID string) (*domain.ReviewRequest, error) {
	order, err := s.store.Orders().GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentStatus != domain.PaymentStatusApproved {
		return nil, apperrors.Conflict("reviews can only be requested for approved orders")
	}
	email := order.Email
	if email == "" && order.ShippingDetails != nil {
		email = order.ShippingDetails.Email
	}
	if email == "" {
		return nil, apperrors.InvalidInput("order has no email address")
	}

	token, err := s.newToken()
	if err != nil {
		return nil, fmt.Errorf("generate review token: %w", err)
	}

	now := s.now()
	rr := &domain.ReviewRequest{
		ID:        uuid.New().String(),
		OrderID:   order.ID,
		Email:     email,
		TokenHash: hashToken(token),
		ExpiresAt: now.Add(s.cfg.TokenTTL),
		CreatedAt: now,
	}
	err = s.store.InTx(ctx, func(tx repository.Store) error {
		if _, err := tx.ReviewRequests().ExpireOutstanding(ctx, order.ID, now); err != nil {
			return err
		}
		return tx.ReviewRequests().Create(ctx, rr)
	})
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(order.Items))
	for _, it := range order.Items {
		names = append(names, it.Name)
	}
	msg, err := mailer.ReviewRequestMessage(email, mailer.ReviewRequestData{
		OrderID:   order.ID,
		ReviewURL: s.reviewURL(order.ID, token),
		Products:  names,
	})
	if err != nil {
		return nil, err
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		return nil, apperrors.ServiceUnavailable(fmt.Sprintf("send review request email: %v", err))
	}

	s.logger.InfoContext(ctx, "review request issued",
		slog.String("order_id", order.ID),
		slog.String("request_id", rr.ID),
		slog.String("mailer", s.mailer.Name()),
	)
	if err := s.publisher.PublishReviewRequested(ctx, rr); err != nil {
		s.logger.WarnContext(ctx, "failed to publish review requested event",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
	}
	return rr, nil
}

// RequestForOrder issues the review request triggered by an approval event.
func (s *ReviewService) RequestForOrder(ctx context.Context, orderID string) error {
	_, err := s.IssueReviewRequest(ctx, orderID)
	return err
}

func (s *ReviewService) reviewURL(orderID, token string) string {
	q := url.Values{}
	q.Set("order", orderID)
	q.Set("token", token)
	return s.cfg.StoreBaseURL + "/reviews/new?" + q.Encode()
}
