package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// --- Fakes ---

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type fakeReader struct {
	mu        sync.Mutex
	pending   []kafka.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.pending) > 0 {
		msg := r.pending[0]
		r.pending = r.pending[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func mustEvent(t *testing.T) *Event {
	t.Helper()
	ev, err := NewEvent("order.approved", "AVA-BOLD-1700000000000", "order", "storefront",
		map[string]string{"email": "ana@example.com"})
	require.NoError(t, err)
	return ev
}

func (r *fakeReader) committedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

// --- Events ---

func TestTopic(t *testing.T) {
	assert.Equal(t, "avashop.order.approved", Topic("order", "approved"))
	assert.Equal(t, "avashop.dlq.avashop.order.approved", DLQTopic(Topic("order", "approved")))
}

func TestEvent_RoundTrip(t *testing.T) {
	ev := mustEvent(t).WithCorrelationID("corr-1").WithMetadata("provider", "bold")
	raw, err := ev.Marshal()
	require.NoError(t, err)

	got, err := UnmarshalEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, ev.EventID, got.EventID)
	assert.Equal(t, "bold", got.Metadata["provider"])

	var data map[string]string
	require.NoError(t, got.UnmarshalData(&data))
	assert.Equal(t, "ana@example.com", data["email"])
}

// --- Producer ---

func TestProducer_PublishKeysByAggregate(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{writer: w, logger: newTestLogger()}

	ev := mustEvent(t).WithCorrelationID("corr-9")
	require.NoError(t, p.Publish(context.Background(), Topic("order", "approved"), ev))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "AVA-BOLD-1700000000000", string(msg.Key))
	carrier := headerCarrier{headers: &msg.Headers}
	assert.Equal(t, "order.approved", carrier.Get("event_type"))
	assert.Equal(t, "corr-9", carrier.Get("correlation_id"))
}

func TestProducer_PublishError(t *testing.T) {
	p := &Producer{writer: &fakeWriter{err: errors.New("leader not available")}, logger: newTestLogger()}
	err := p.Publish(context.Background(), "t", mustEvent(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leader not available")
}

func TestPingBrokers_NoBrokers(t *testing.T) {
	assert.Error(t, PingBrokers(context.Background(), nil))
}

// --- Consumer ---

func runConsumer(t *testing.T, c *Consumer, r *fakeReader, want int) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()
	require.Eventually(t, func() bool { return r.committedCount() >= want }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestConsumer_HandlesAndCommits(t *testing.T) {
	raw, err := mustEvent(t).Marshal()
	require.NoError(t, err)
	r := &fakeReader{pending: []kafka.Message{{Topic: "t", Offset: 7, Value: raw}}}

	var handled []string
	c := &Consumer{reader: r, topic: "t", group: "g", logger: newTestLogger(), backoff: time.Millisecond,
		handler: func(_ context.Context, e *Event) error {
			handled = append(handled, e.AggregateID)
			return nil
		}}

	runConsumer(t, c, r, 1)
	assert.Equal(t, []string{"AVA-BOLD-1700000000000"}, handled)
	assert.Equal(t, []int64{7}, r.committed)
}

func TestConsumer_ParksPoisonMessages(t *testing.T) {
	raw, err := mustEvent(t).Marshal()
	require.NoError(t, err)
	r := &fakeReader{pending: []kafka.Message{
		{Topic: "t", Offset: 1, Value: []byte("not json")},
		{Topic: "t", Offset: 2, Value: raw},
	}}
	dlqWriter := &fakeWriter{}

	attempts := 0
	c := &Consumer{reader: r, topic: "t", group: "g", logger: newTestLogger(), backoff: time.Millisecond,
		dlq: &DLQProducer{writer: dlqWriter, logger: newTestLogger()},
		handler: func(context.Context, *Event) error {
			attempts++
			return errors.New("smtp unavailable")
		}}

	runConsumer(t, c, r, 2)
	assert.Equal(t, maxHandlerAttempts, attempts)
	require.Len(t, dlqWriter.msgs, 2)
	assert.Equal(t, DLQTopic("t"), dlqWriter.msgs[0].Topic)
	carrier := headerCarrier{headers: &dlqWriter.msgs[1].Headers}
	assert.Equal(t, "smtp unavailable", carrier.Get("dlq.error"))
	assert.Equal(t, "2", carrier.Get("dlq.original_offset"))
}

// --- Idempotency ---

func newRedisStore(t *testing.T) (*RedisIdempotencyStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisIdempotencyStore(client, "review-requests", time.Hour), mr
}

func TestRedisIdempotencyStore(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	seen, err := store.Contains(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, store.Add(ctx, "evt-1"))
	seen, err = store.Contains(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, seen)
	assert.True(t, mr.Exists("idem:review-requests:evt-1"))

	mr.FastForward(2 * time.Hour)
	seen, err = store.Contains(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestIdempotentHandler_SkipsDuplicates(t *testing.T) {
	store, _ := newRedisStore(t)
	calls := 0
	h := IdempotentHandler(store, "g", func(context.Context, *Event) error {
		calls++
		return nil
	}, newTestLogger())

	ev := mustEvent(t)
	require.NoError(t, h(context.Background(), ev))
	require.NoError(t, h(context.Background(), ev))
	assert.Equal(t, 1, calls)
}

func TestIdempotentHandler_DoesNotRecordFailures(t *testing.T) {
	store, _ := newRedisStore(t)
	fail := true
	calls := 0
	h := IdempotentHandler(store, "g", func(context.Context, *Event) error {
		calls++
		if fail {
			return errors.New("transient")
		}
		return nil
	}, newTestLogger())

	ev := mustEvent(t)
	require.Error(t, h(context.Background(), ev))
	fail = false
	require.NoError(t, h(context.Background(), ev))
	assert.Equal(t, 2, calls)
}
