package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/agamenonmacondo/avashop-sub001/internal/domain"
	"github.com/agamenonmacondo/avashop-sub001/internal/mailer"
	"github.com/agamenonmacondo/avashop-sub001/internal/repository/memory"
	apperrors "github.com/agamenonmacondo/avashop-sub001/pkg/errors"
	"github.com/agamenonmacondo/avashop-sub001/pkg/pagination"
)

// --- Mock Mailer ---

type mockMailer struct {
	mock.Mock
}

func (m *mockMailer) Name() string { return "mock" }

func (m *mockMailer) Send(ctx context.Context, msg mailer.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// --- Test Helpers ---

var reviewNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestReviewService(store *memory.Store, m *mockMailer, tokens ...string) *ReviewService {
	svc := NewReviewService(store, m, newLenientPublisher(), ReviewConfig{
		StoreBaseURL: "https://avashop.example/",
		TokenTTL:     24 * time.Hour,
	}, newTestLogger())
	svc.now = func() time.Time { return reviewNow }
	next := 0
	svc.newToken = func() (string, error) {
		tok := tokens[next]
		next++
		return tok, nil
	}
	return svc
}

func seedApprovedOrder(store *memory.Store, id string) {
	store.PutOrder(domain.Order{
		ID:            id,
		Email:         "ana@example.com",
		Amount:        50000,
		Currency:      "COP",
		Status:        domain.OrderStatusApproved,
		PaymentStatus: domain.PaymentStatusApproved,
	})
	store.AddItems(domain.OrderItem{
		OrderID: id, ProductID: "p1", Name: "Bolso", Quantity: 1, Price: 50000,
	})
}

func reviewInput(token string) SubmitReviewInput {
	return SubmitReviewInput{
		OrderID:   "AVA-BOLD-1",
		ProductID: "p1",
		Rating:    5,
		Comment:   "  Excelente  ",
		Token:     token,
	}
}

// --- IssueReviewRequest Tests ---

func TestIssueReviewRequest_SendsLink(t *testing.T) {
	store := memory.NewStore()
	seedApprovedOrder(store, "AVA-BOLD-1")
	m := new(mockMailer)
	m.On("Send", mock.Anything, mock.MatchedBy(func(msg mailer.Message) bool {
		return msg.To == "ana@example.com" &&
			strings.Contains(msg.Text, "https://avashop.example/reviews/new?order=AVA-BOLD-1&token=tok-1") &&
			strings.Contains(msg.HTML, "Bolso")
	})).Return(nil).Once()
	svc := newTestReviewService(store, m, "tok-1")

	rr, err := svc.IssueReviewRequest(context.Background(), "AVA-BOLD-1")

	require.NoError(t, err)
	assert.Equal(t, hashToken("tok-1"), rr.TokenHash)
	assert.Equal(t, reviewNow.Add(24*time.Hour), rr.ExpiresAt)
	m.AssertExpectations(t)
}

func TestIssueReviewRequest_ExpiresPreviousTokens(t *testing.T) {
	store := memory.NewStore()
	seedApprovedOrder(store, "AVA-BOLD-1")
	m := new(mockMailer)
	m.On("Send", mock.Anything, mock.Anything).Return(nil)
	svc := newTestReviewService(store, m, "tok-1", "tok-2")

	_, err := svc.IssueReviewRequest(context.Background(), "AVA-BOLD-1")
	require.NoError(t, err)
	_, err = svc.IssueReviewRequest(context.Background(), "AVA-BOLD-1")
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), reviewInput("tok-1"))
	assert.True(t, errors.Is(err, apperrors.ErrUnauthorized))

	_, err = svc.Submit(context.Background(), reviewInput("tok-2"))
	assert.NoError(t, err)
}

func TestIssueReviewRequest_RequiresApprovedOrder(t *testing.T) {
	store := memory.NewStore()
	store.PutOrder(domain.Order{
		ID: "AVA-BOLD-1", Email: "ana@example.com",
		Status: domain.OrderStatusPending, PaymentStatus: domain.PaymentStatusPending,
	})
	m := new(mockMailer)
	svc := newTestReviewService(store, m, "tok-1")

	_, err := svc.IssueReviewRequest(context.Background(), "AVA-BOLD-1")

	assert.True(t, errors.Is(err, apperrors.ErrConflict))
	m.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestIssueReviewRequest_FallsBackToShippingEmail(t *testing.T) {
	store := memory.NewStore()
	seedApprovedOrder(store, "AVA-BOLD-1")
	o, _ := store.Order("AVA-BOLD-1")
	o.Email = ""
	o.ShippingDetails = &domain.ShippingDetails{Email: "envios@example.com"}
	store.PutOrder(o)

	m := new(mockMailer)
	m.On("Send", mock.Anything, mock.MatchedBy(func(msg mailer.Message) bool {
		return msg.To == "envios@example.com"
	})).Return(nil).Once()
	svc := newTestReviewService(store, m, "tok-1")

	_, err := svc.IssueReviewRequest(context.Background(), "AVA-BOLD-1")

	require.NoError(t, err)
	m.AssertExpectations(t)
}

func TestIssueReviewRequest_MailerFailure(t *testing.T) {
	store := memory.NewStore()
	seedApprovedOrder(store, "AVA-BOLD-1")
	m := new(mockMailer)
	m.On("Send", mock.Anything, mock.Anything).Return(errors.New("smtp down"))
	svc := newTestReviewService(store, m, "tok-1")

	_, err := svc.IssueReviewRequest(context.Background(), "AVA-BOLD-1")

	assert.True(t, errors.Is(err, apperrors.ErrServiceUnavail))
}

func TestRequestForOrder_UnknownOrder(t *testing.T) {
	svc := newTestReviewService(memory.NewStore(), new(mockMailer), "tok-1")

	err := svc.RequestForOrder(context.Background(), "missing")

	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

// --- Submit Tests ---

func issued(t *testing.T, tokens ...string) (*ReviewService, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	seedApprovedOrder(store, "AVA-BOLD-1")
	m := new(mockMailer)
	m.On("Send", mock.Anything, mock.Anything).Return(nil)
	svc := newTestReviewService(store, m, tokens...)
	for range tokens {
		_, err := svc.IssueReviewRequest(context.Background(), "AVA-BOLD-1")
		require.NoError(t, err)
	}
	return svc, store
}

func TestSubmit_Success(t *testing.T) {
	svc, store := issued(t, "tok-1")

	review, err := svc.Submit(context.Background(), reviewInput("tok-1"))

	require.NoError(t, err)
	assert.Equal(t, "Excelente", review.Comment)
	assert.Equal(t, "ana@example.com", review.Email)
	assert.Len(t, store.ReviewList(), 1)
	assert.True(t, store.ReviewRequestList()[0].Used)
}

func TestSubmit_UsedTokenRejected(t *testing.T) {
	svc, _ := issued(t, "tok-1")

	_, err := svc.Submit(context.Background(), reviewInput("tok-1"))
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), reviewInput("tok-1"))
	assert.True(t, errors.Is(err, apperrors.ErrUnauthorized))
}

func TestSubmit_ExpiredToken(t *testing.T) {
	svc, _ := issued(t, "tok-1")
	svc.now = func() time.Time { return reviewNow.Add(25 * time.Hour) }

	_, err := svc.Submit(context.Background(), reviewInput("tok-1"))

	assert.True(t, errors.Is(err, apperrors.ErrUnauthorized))
}

func TestSubmit_TokenForOtherOrder(t *testing.T) {
	svc, store := issued(t, "tok-1")
	seedApprovedOrder(store, "AVA-BOLD-2")

	in := reviewInput("tok-1")
	in.OrderID = "AVA-BOLD-2"
	_, err := svc.Submit(context.Background(), in)

	assert.True(t, errors.Is(err, apperrors.ErrUnauthorized))
}

func TestSubmit_ProductNotInOrderKeepsToken(t *testing.T) {
	svc, store := issued(t, "tok-1")

	in := reviewInput("tok-1")
	in.ProductID = "p2"
	_, err := svc.Submit(context.Background(), in)

	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
	assert.False(t, store.ReviewRequestList()[0].Used)

	_, err = svc.Submit(context.Background(), reviewInput("tok-1"))
	assert.NoError(t, err)
}

func TestSubmit_DuplicateReview(t *testing.T) {
	svc, store := issued(t, "tok-1")

	_, err := svc.Submit(context.Background(), reviewInput("tok-1"))
	require.NoError(t, err)

	// A re-issued token still cannot review the same product twice.
	svc.newToken = func() (string, error) { return "tok-2", nil }
	_, err = svc.IssueReviewRequest(context.Background(), "AVA-BOLD-1")
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), reviewInput("tok-2"))
	assert.True(t, errors.Is(err, apperrors.ErrAlreadyExists))
	assert.Equal(t, 409, apperrors.HTTPStatus(err))
	assert.Len(t, store.ReviewList(), 1)
}

func TestSubmit_Validation(t *testing.T) {
	svc, _ := issued(t, "tok-1")

	in := reviewInput("tok-1")
	in.Rating = 6
	_, err := svc.Submit(context.Background(), in)
	assert.Error(t, err)
	assert.Equal(t, 400, apperrors.HTTPStatus(err))
}

// --- ListForProduct Tests ---

func TestListForProduct(t *testing.T) {
	svc, store := issued(t)
	store.PutReviews(
		domain.Review{ID: "r1", ProductID: "p1", OrderID: "o1", Rating: 5},
		domain.Review{ID: "r2", ProductID: "p1", OrderID: "o2", Rating: 4},
		domain.Review{ID: "r3", ProductID: "p2", OrderID: "o1", Rating: 1},
	)

	out, err := svc.ListForProduct(context.Background(), "p1", pagination.Params{})

	require.NoError(t, err)
	assert.Len(t, out.Reviews, 2)
	assert.Equal(t, 2, out.Total)
	assert.InDelta(t, 4.5, out.Summary.AverageRating, 0.001)
}
