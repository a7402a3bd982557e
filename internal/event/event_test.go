package event

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agamenonmacondo/avashop-sub001/internal/domain"
	pkgkafka "github.com/agamenonmacondo/avashop-sub001/pkg/kafka"
	"github.com/agamenonmacondo/avashop-sub001/pkg/logger"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type capturePublisher struct {
	topics []string
	events []*pkgkafka.Event
	err    error
}

func (c *capturePublisher) Publish(_ context.Context, topic string, e *pkgkafka.Event) error {
	c.topics = append(c.topics, topic)
	c.events = append(c.events, e)
	return c.err
}

type fakeRequester struct {
	orders []string
	err    error
}

func (f *fakeRequester) RequestForOrder(_ context.Context, orderID string) error {
	f.orders = append(f.orders, orderID)
	return f.err
}

// --- Producer ---

func TestProducer_PublishOrderPayment(t *testing.T) {
	pub := &capturePublisher{}
	p := NewProducer(pub, newTestLogger())
	ctx := logger.WithCorrelationID(context.Background(), "corr-1")

	o := &domain.Order{
		ID: "AVA-BOLD-1", Email: "ana@example.com", PaymentStatus: domain.PaymentStatusApproved,
		Status: domain.OrderStatusApproved, Amount: 100000, Currency: "COP", Provider: domain.ProviderBold,
	}
	require.NoError(t, p.PublishOrderPayment(ctx, o, domain.PaymentStatusPending))

	require.Len(t, pub.events, 1)
	assert.Equal(t, "avashop.order.approved", pub.topics[0])
	assert.Equal(t, TopicOrderApproved, pub.events[0].EventType)
	assert.Equal(t, "corr-1", pub.events[0].CorrelationID)

	var data OrderPaymentData
	require.NoError(t, pub.events[0].UnmarshalData(&data))
	assert.Equal(t, domain.PaymentStatusPending, data.PreviousStatus)
	assert.Equal(t, int64(100000), data.Amount)
}

func TestProducer_PublishError(t *testing.T) {
	pub := &capturePublisher{err: errors.New("broker down")}
	p := NewProducer(pub, newTestLogger())

	err := p.PublishReviewSubmitted(context.Background(), &domain.Review{ID: "r1"})
	assert.ErrorContains(t, err, "broker down")
	assert.Equal(t, TopicReviewSubmitted, pub.topics[0])
}

func TestOrderPaymentTopic(t *testing.T) {
	assert.Equal(t, TopicOrderDeclined, OrderPaymentTopic(domain.PaymentStatusDeclined))
	assert.Equal(t, "avashop.order.error", TopicOrderError)
}

// --- Review request consumer ---

func approvedEvent(t *testing.T, orderID string) *pkgkafka.Event {
	t.Helper()
	e, err := pkgkafka.NewEvent(TopicOrderApproved, orderID, AggregateTypeOrder, Source, OrderPaymentData{OrderID: orderID})
	require.NoError(t, err)
	return e
}

func TestReviewRequestHandler_Approved(t *testing.T) {
	req := &fakeRequester{}
	h := NewReviewRequestHandler(req, newTestLogger())

	require.NoError(t, h.Handle(context.Background(), approvedEvent(t, "AVA-BOLD-1")))
	assert.Equal(t, []string{"AVA-BOLD-1"}, req.orders)
}

func TestReviewRequestHandler_IgnoresOtherTypes(t *testing.T) {
	req := &fakeRequester{}
	h := NewReviewRequestHandler(req, newTestLogger())

	e, err := pkgkafka.NewEvent(TopicOrderDeclined, "o1", AggregateTypeOrder, Source, OrderPaymentData{OrderID: "o1"})
	require.NoError(t, err)
	require.NoError(t, h.Handle(context.Background(), e))
	assert.Empty(t, req.orders)
}

func TestReviewRequestHandler_PropagatesError(t *testing.T) {
	req := &fakeRequester{err: errors.New("smtp down")}
	h := NewReviewRequestHandler(req, newTestLogger())

	err := h.Handle(context.Background(), approvedEvent(t, "o1"))
	assert.ErrorContains(t, err, "smtp down")
}

func TestReviewRequestHandler_BadPayload(t *testing.T) {
	h := NewReviewRequestHandler(&fakeRequester{}, newTestLogger())
	e := approvedEvent(t, "o1")
	e.Data = []byte(`"not an object"`)

	assert.Error(t, h.Handle(context.Background(), e))
}
