package messaging

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// DefineTopic declares the topic exchange and the durable queue workers
// share, bound with the topic name as routing key.
func DefineTopic(ch *amqp.Channel, prefix string, topic Topic) error {
	name := getName(prefix, topic)
	if err := ch.ExchangeDeclare(
		name,    // name
		"topic", // type
		true,    // durable
		false,   // auto-delete
		false,   // internal
		false,   // noWait
		nil,     // arguments
	); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", name, err)
	}
	if _, err := ch.QueueDeclare(
		name,  // name of the queue
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // noWait
		nil,   // arguments
	); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", name, err)
	}
	if err := ch.QueueBind(name, name, name, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", name, err)
	}
	return nil
}

// Publish encodes data as JSON and publishes it persistently on topic.
func Publish[V any](ctx context.Context, conn *amqp.Connection, prefix string, topic Topic, data V) error {
	body, err := sonic.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	name := getName(prefix, topic)
	return ch.PublishWithContext(ctx,
		name,
		name,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    uuid.NewString(),
			Body:         body,
		},
	)
}

// Publisher announces batch jobs over RabbitMQ.
type Publisher struct {
	conn   *amqp.Connection
	prefix string
}

// NewPublisher declares the batch topic and returns a publisher for it
func NewPublisher(conn *amqp.Connection, prefix string) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()
	if err := DefineTopic(ch, prefix, BatchRequested); err != nil {
		return nil, err
	}
	return &Publisher{conn: conn, prefix: prefix}, nil
}

func (p *Publisher) PublishBatchRequested(ctx context.Context, jobID uuid.UUID) error {
	return Publish(ctx, p.conn, p.prefix, BatchRequested, BatchRequestedMessage{JobID: jobID})
}
