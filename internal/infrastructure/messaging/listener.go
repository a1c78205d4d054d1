package messaging

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Consume binds to the shared durable queue of topic and hands each decoded
// message to handle until ctx is done or the channel closes. Messages are
// acked on success. Undecodable messages and handler failures are rejected
// without requeue; pending jobs are still picked up by polling.
func Consume[V any](ctx context.Context, ch *amqp.Channel, prefix string, topic Topic, logger *zap.Logger, handle func(context.Context, V) error) error {
	if err := DefineTopic(ch, prefix, topic); err != nil {
		return err
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}
	name := getName(prefix, topic)
	msgs, err := ch.Consume(
		name,
		"",
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to consume %s: %w", name, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("delivery channel for %s closed", name)
			}
			dispatch(ctx, d, logger, handle)
		}
	}
}

func dispatch[V any](ctx context.Context, d amqp.Delivery, logger *zap.Logger, handle func(context.Context, V) error) {
	var msg V
	if err := sonic.Unmarshal(d.Body, &msg); err != nil {
		logger.Warn("dropping undecodable message",
			zap.String("routing_key", d.RoutingKey),
			zap.Error(err),
		)
		_ = d.Reject(false)
		return
	}
	if err := handle(ctx, msg); err != nil {
		logger.Error("message handler failed",
			zap.String("routing_key", d.RoutingKey),
			zap.String("message_id", d.MessageId),
			zap.Error(err),
		)
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}
