package service

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/stretchr/testify/mock"

	"github.com/agamenonmacondo/avashop-sub001/internal/domain"
	"github.com/agamenonmacondo/avashop-sub001/internal/payment"
	apperrors "github.com/agamenonmacondo/avashop-sub001/pkg/errors"
)

// --- Mock Event Publisher ---

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishOrderPayment(ctx context.Context, o *domain.Order, previous string) error {
	args := m.Called(ctx, o, previous)
	return args.Error(0)
}

func (m *mockPublisher) PublishOrderStatusChanged(ctx context.Context, orderID, oldStatus, newStatus string) error {
	args := m.Called(ctx, orderID, oldStatus, newStatus)
	return args.Error(0)
}

func (m *mockPublisher) PublishReviewRequested(ctx context.Context, rr *domain.ReviewRequest) error {
	args := m.Called(ctx, rr)
	return args.Error(0)
}

func (m *mockPublisher) PublishReviewSubmitted(ctx context.Context, r *domain.Review) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

// newLenientPublisher accepts every publish.
func newLenientPublisher() *mockPublisher {
	p := new(mockPublisher)
	p.On("PublishOrderPayment", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	p.On("PublishOrderStatusChanged", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	p.On("PublishReviewRequested", mock.Anything, mock.Anything).Return(nil).Maybe()
	p.On("PublishReviewSubmitted", mock.Anything, mock.Anything).Return(nil).Maybe()
	return p
}

// --- Fake Payment Provider ---

type fakeProvider struct {
	name  string
	calls int
	err   error
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) CreateCheckout(_ context.Context, req payment.CheckoutRequest) (*domain.PaymentRedirect, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &domain.PaymentRedirect{
		Provider:    p.name,
		OrderID:     req.OrderID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		RedirectURL: "https://pay.example.com/" + req.OrderID,
	}, nil
}

func (p *fakeProvider) VerifyWebhook(http.Header, []byte) (bool, error) { return false, nil }

func (p *fakeProvider) ParseWebhook([]byte) (*domain.PaymentCallback, error) {
	return nil, apperrors.InvalidInput("not supported")
}

// --- Test Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type countingInvalidator struct{ n int }

func (c *countingInvalidator) Invalidate(context.Context) error {
	c.n++
	return nil
}
