package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ackResult struct {
	tag     uint64
	acked   bool
	requeue bool
}

type fakeAcker struct {
	mu      sync.Mutex
	results []ackResult
	done    chan struct{}
}

func (a *fakeAcker) record(r ackResult) {
	a.mu.Lock()
	a.results = append(a.results, r)
	a.mu.Unlock()
	a.done <- struct{}{}
}

func (a *fakeAcker) Ack(tag uint64, multiple bool) error {
	a.record(ackResult{tag: tag, acked: true})
	return nil
}

func (a *fakeAcker) Nack(tag uint64, multiple, requeue bool) error {
	a.record(ackResult{tag: tag, requeue: requeue})
	return nil
}

func (a *fakeAcker) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

type fakeConsumeChannel struct {
	prefetch int
	queues   map[string]chan amqp.Delivery
}

func (c *fakeConsumeChannel) Qos(prefetchCount, prefetchSize int, global bool) error {
	c.prefetch = prefetchCount
	return nil
}

func (c *fakeConsumeChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	ch, ok := c.queues[queue]
	if !ok {
		return nil, errors.New("no such queue")
	}
	return ch, nil
}

type handlerFunc func(context.Context, amqp.Delivery) error

func (f handlerFunc) Handle(ctx context.Context, d amqp.Delivery) error { return f(ctx, d) }

func TestRouter_AckNackPolicy(t *testing.T) {
	q := make(chan amqp.Delivery)
	ch := &fakeConsumeChannel{queues: map[string]chan amqp.Delivery{"retry": q}}
	acker := &fakeAcker{done: make(chan struct{}, 8)}

	errTransient := errors.New("transient")
	r := NewRouter(ch, WithPrefetch(5), WithTimeout(time.Second))
	r.Register("retry", handlerFunc(func(_ context.Context, d amqp.Delivery) error {
		switch string(d.Body) {
		case "ok":
			return nil
		case "bad":
			return ErrMalformed
		default:
			return errTransient
		}
	}))
	require.NoError(t, r.Start(context.Background()))
	assert.Equal(t, 5, ch.prefetch)

	deliveries := []amqp.Delivery{
		{Acknowledger: acker, DeliveryTag: 1, Body: []byte("ok")},
		{Acknowledger: acker, DeliveryTag: 2, Body: []byte("fail")},
		{Acknowledger: acker, DeliveryTag: 3, Body: []byte("fail"), Redelivered: true},
		{Acknowledger: acker, DeliveryTag: 4, Body: []byte("bad")},
	}
	for _, d := range deliveries {
		q <- d
		<-acker.done
	}
	close(q)

	assert.Equal(t, []ackResult{
		{tag: 1, acked: true},
		{tag: 2, requeue: true},
		{tag: 3, requeue: false},
		{tag: 4, requeue: false},
	}, acker.results)
}

func TestRouter_UnknownQueue(t *testing.T) {
	r := NewRouter(&fakeConsumeChannel{})
	r.Register("missing", handlerFunc(func(context.Context, amqp.Delivery) error { return nil }))
	assert.Error(t, r.Start(context.Background()))
}

func TestJSONHandler_MalformedBody(t *testing.T) {
	h := JSONHandler[map[string]string]{HandleFunc: func(context.Context, map[string]string) error { return nil }}
	err := h.Handle(context.Background(), amqp.Delivery{Body: []byte("{not json")})
	assert.ErrorIs(t, err, ErrMalformed)
}

type fakeDeclareChannel struct {
	queues   []string
	bindings []string
}

func (c *fakeDeclareChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	c.queues = append(c.queues, name)
	return amqp.Queue{Name: name}, nil
}

func (c *fakeDeclareChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	c.bindings = append(c.bindings, exchange+"/"+key+"->"+name)
	return nil
}

func TestDeclareBoundQueue(t *testing.T) {
	ch := &fakeDeclareChannel{}
	require.NoError(t, DeclareBoundQueue(ch, "checkout.events", "checkout.settlement.retry", "settlement.failed"))

	assert.Equal(t, []string{"checkout.settlement.retry"}, ch.queues)
	assert.Equal(t, []string{"checkout.events/settlement.failed->checkout.settlement.retry"}, ch.bindings)
}
