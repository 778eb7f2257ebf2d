package queue

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

type declareChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// DeclareBoundQueue declares a durable queue and binds it to exchange for
// each routing key.
func DeclareBoundQueue(ch declareChannel, exchange, queue string, keys ...string) error {
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	for _, k := range keys {
		if err := ch.QueueBind(queue, k, exchange, false, nil); err != nil {
			return fmt.Errorf("bind %s to %s/%s: %w", queue, exchange, k, err)
		}
	}
	return nil
}
