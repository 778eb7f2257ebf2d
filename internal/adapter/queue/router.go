package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Xolta0/shopify/internal/logging"
	amqp "github.com/rabbitmq/amqp091-go"
)

// consumeChannel is the subset of *amqp.Channel the router needs.
type consumeChannel interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

// Router manages multiple consumers (one per registered queue) on a single AMQP channel.
type Router struct {
	ch            consumeChannel
	prefetch      int
	callTimeout   time.Duration
	requeueOnErr  bool
	registrations []registration
}

type registration struct {
	queueName   string
	handler     Handler
	consumerTag string
}

// --- Options ---

type RouterOption func(*Router)

func WithPrefetch(n int) RouterOption {
	return func(r *Router) {
		if n > 0 {
			r.prefetch = n
		}
	}
}

func WithTimeout(d time.Duration) RouterOption {
	return func(r *Router) {
		if d > 0 {
			r.callTimeout = d
		}
	}
}

func WithRequeue(b bool) RouterOption { return func(r *Router) { r.requeueOnErr = b } }

// NewRouter constructs a Router. Defaults: prefetch=10, timeout=30s, requeueOnErr=true.
func NewRouter(ch consumeChannel, opts ...RouterOption) *Router {
	r := &Router{
		ch:           ch,
		prefetch:     10,
		callTimeout:  30 * time.Second,
		requeueOnErr: true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register associates a queue with a handler. Call multiple times for multiple queues.
func (r *Router) Register(queueName string, h Handler) {
	r.registrations = append(r.registrations, registration{
		queueName:   queueName,
		handler:     h,
		consumerTag: "c_" + queueName,
	})
}

// Start begins consuming; non-blocking (spawns one goroutine per queue).
// Consumers stop when the channel closes. Handler contexts derive from ctx.
func (r *Router) Start(ctx context.Context) error {
	if err := r.ch.Qos(r.prefetch, 0, false); err != nil {
		return fmt.Errorf("qos: %w", err)
	}

	for _, reg := range r.registrations {
		deliveries, err := r.ch.Consume(
			reg.queueName,
			reg.consumerTag,
			false, // manual ack
			false, // exclusive
			false, // no-local
			false, // no-wait
			nil,
		)
		if err != nil {
			return fmt.Errorf("consume %s: %w", reg.queueName, err)
		}

		go r.run(ctx, reg, deliveries)
	}

	return nil
}

func (r *Router) run(ctx context.Context, reg registration, msgs <-chan amqp.Delivery) {
	log := logging.New("rmq-router").With("queue", reg.queueName, "tag", reg.consumerTag)
	for d := range msgs {
		callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
		err := reg.handler.Handle(callCtx, d)
		cancel()

		if err == nil {
			_ = d.Ack(false)
			continue
		}

		requeue := r.decideRequeue(d, err)
		log.Error("handler error", "rk", d.RoutingKey, "message_id", d.MessageId,
			"redelivered", d.Redelivered, "requeue", requeue, "err", err)
		_ = d.Nack(false, requeue)
	}
	log.Info("consumer stopped")
}

// decideRequeue requeues a failed delivery once. Malformed messages and
// second failures are dropped (or dead-lettered, if the queue has a DLX).
func (r *Router) decideRequeue(d amqp.Delivery, err error) bool {
	if !r.requeueOnErr || errors.Is(err, ErrMalformed) {
		return false
	}
	return !d.Redelivered
}
