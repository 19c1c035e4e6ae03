package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/utafrali/storefront/pkg/logger"
)

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

// fakeReader serves queued messages, then blocks until the context ends.
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
	done      chan struct{}
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	return &fakeReader{queue: msgs, done: make(chan struct{})}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
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
	if len(r.queue) == 0 {
		select {
		case <-r.done:
		default:
			close(r.done)
		}
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

type recordingDLQ struct {
	mu    sync.Mutex
	items []error
}

func (d *recordingDLQ) DeadLetter(_ context.Context, _ kafka.Message, cause error, _ string) error {
	d.mu.Lock()
	d.items = append(d.items, cause)
	d.mu.Unlock()
	return nil
}

func encode(t *testing.T, e *Event, offset int64) kafka.Message {
	t.Helper()
	b, err := e.Marshal()
	require.NoError(t, err)
	return kafka.Message{Topic: "ecommerce.order.created", Value: b, Offset: offset}
}

func runConsumer(t *testing.T, r *fakeReader, h Handler, dlq DeadLetterer) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	c := newConsumer(r, ConsumerConfig{Topic: "ecommerce.order.created", GroupID: "storefront", RetryDelay: time.Millisecond}, h, dlq, logger.Discard())

	errc := make(chan error, 1)
	go func() { errc <- c.Start(ctx) }()

	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not commit all messages")
	}
	cancel()
	require.NoError(t, <-errc)
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "ecommerce.cart.updated", Topic("cart", "updated"))
	assert.Equal(t, "ecommerce.dlq.ecommerce.order.created", DLQTopic("ecommerce.order.created"))
}

func TestNewEvent(t *testing.T) {
	e, err := NewEvent("review.changed", "p-1", "product", map[string]float64{"ratings": 4.5})
	require.NoError(t, err)
	assert.NotEmpty(t, e.EventID)
	assert.Equal(t, 1, e.Version)
	assert.WithinDuration(t, time.Now().UTC(), e.Timestamp, 2*time.Second)

	var payload map[string]float64
	require.NoError(t, e.UnmarshalData(&payload))
	assert.Equal(t, 4.5, payload["ratings"])

	_, err = NewEvent("x", "a", "b", make(chan int))
	assert.Error(t, err)
}

func TestUnmarshalEvent_RequiresType(t *testing.T) {
	_, err := UnmarshalEvent([]byte(`{"event_id":"1"}`))
	assert.ErrorContains(t, err, "missing event_type")

	_, err = UnmarshalEvent([]byte(`not json`))
	assert.Error(t, err)
}

func TestProducer_Publish_StampsEnvelopeAndHeaders(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	w := &fakeWriter{}
	p := newProducer(w, ProducerConfig{Source: "storefront"}, logger.Discard())

	e, err := NewEvent("cart.updated", "user-1", "cart", map[string]int{"items": 2})
	require.NoError(t, err)

	ctx := logger.WithCorrelationID(context.Background(), "corr-1")
	require.NoError(t, p.Publish(ctx, Topic("cart", "updated"), e))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "ecommerce.cart.updated", msg.Topic)
	assert.Equal(t, []byte("user-1"), msg.Key)

	var sent Event
	require.NoError(t, json.Unmarshal(msg.Value, &sent))
	assert.Equal(t, "storefront", sent.Source)
	assert.Equal(t, "corr-1", sent.CorrelationID)

	carrier := headerCarrier{headers: &msg.Headers}
	assert.Equal(t, "cart.updated", carrier.Get("event_type"))
	assert.Equal(t, "corr-1", carrier.Get("correlation_id"))
}

func TestProducer_Publish_WriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := newProducer(w, ProducerConfig{}, logger.Discard())

	e, err := NewEvent("cart.cleared", "user-1", "cart", struct{}{})
	require.NoError(t, err)

	err = p.Publish(context.Background(), "ecommerce.cart.cleared", e)
	assert.ErrorContains(t, err, "broker down")
}

func TestHeaderCarrier(t *testing.T) {
	headers := []kafka.Header{{Key: "a", Value: []byte("1")}}
	c := headerCarrier{headers: &headers}

	c.Set("a", "2")
	c.Set("b", "3")
	assert.Equal(t, "2", c.Get("a"))
	assert.Equal(t, "3", c.Get("b"))
	assert.Equal(t, "", c.Get("missing"))
	assert.ElementsMatch(t, []string{"a", "b"}, c.Keys())
}

func TestConsumer_HandlesAndCommits(t *testing.T) {
	e1, _ := NewEvent("order.created", "o-1", "order", map[string]string{"user_id": "u"})
	e2, _ := NewEvent("order.created", "o-2", "order", map[string]string{"user_id": "u"})
	r := newFakeReader(encode(t, e1, 10), encode(t, e2, 11))

	var mu sync.Mutex
	var seen []string
	runConsumer(t, r, func(_ context.Context, e *Event) error {
		mu.Lock()
		seen = append(seen, e.AggregateID)
		mu.Unlock()
		return nil
	}, nil)

	assert.Equal(t, []string{"o-1", "o-2"}, seen)
	assert.Equal(t, []int64{10, 11}, r.committed)
}

func TestConsumer_RetriesThenDeadLetters(t *testing.T) {
	e, _ := NewEvent("order.created", "o-1", "order", struct{}{})
	r := newFakeReader(encode(t, e, 5))
	dlq := &recordingDLQ{}

	calls := 0
	runConsumer(t, r, func(context.Context, *Event) error {
		calls++
		return errors.New("db down")
	}, dlq)

	assert.Equal(t, 3, calls)
	assert.Equal(t, []int64{5}, r.committed)
	require.Len(t, dlq.items, 1)
	assert.EqualError(t, dlq.items[0], "db down")
}

func TestConsumer_UndecodableMessageIsSkipped(t *testing.T) {
	r := newFakeReader(kafka.Message{Topic: "t", Value: []byte("garbage"), Offset: 1})
	dlq := &recordingDLQ{}

	runConsumer(t, r, func(context.Context, *Event) error {
		t.Error("handler must not run")
		return nil
	}, dlq)

	assert.Equal(t, []int64{1}, r.committed)
	assert.Len(t, dlq.items, 1)
}

func TestDLQProducer_AddsOriginHeaders(t *testing.T) {
	w := &fakeWriter{}
	d := &DLQProducer{writer: w, logger: logger.Discard()}

	msg := kafka.Message{Topic: "ecommerce.order.created", Partition: 2, Offset: 42, Value: []byte("{}")}
	require.NoError(t, d.DeadLetter(context.Background(), msg, errors.New("boom"), "storefront"))

	require.Len(t, w.msgs, 1)
	out := w.msgs[0]
	assert.Equal(t, "ecommerce.dlq.ecommerce.order.created", out.Topic)
	c := headerCarrier{headers: &out.Headers}
	assert.Equal(t, "2", c.Get("dlq.original_partition"))
	assert.Equal(t, "42", c.Get("dlq.original_offset"))
	assert.Equal(t, "storefront", c.Get("dlq.consumer_group"))
	assert.Equal(t, "boom", c.Get("dlq.error"))
}

func TestMemoryIdempotencyStore_Expires(t *testing.T) {
	s := NewMemoryIdempotencyStore(time.Minute)
	now := time.Now()
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, "evt-1"))
	ok, err := s.Contains(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	ok, err = s.Contains(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisIdempotencyStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := NewRedisIdempotencyStore(client, "processed:", time.Hour)
	ctx := context.Background()

	ok, err := s.Contains(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Add(ctx, "evt-1"))
	ok, err = s.Contains(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, time.Hour, mr.TTL("processed:evt-1"))
}

func TestIdempotentHandler(t *testing.T) {
	store := NewMemoryIdempotencyStore(time.Hour)
	calls := 0
	fail := true
	h := IdempotentHandler(store, func(context.Context, *Event) error {
		calls++
		if fail {
			return errors.New("transient")
		}
		return nil
	}, logger.Discard())

	e := &Event{EventID: "evt-1", EventType: "order.created"}
	ctx := context.Background()

	assert.Error(t, h(ctx, e))
	fail = false
	assert.NoError(t, h(ctx, e))
	assert.NoError(t, h(ctx, e))
	assert.Equal(t, 2, calls)

	assert.NoError(t, h(ctx, &Event{EventType: "order.created"}))
	assert.Equal(t, 3, calls)
}
