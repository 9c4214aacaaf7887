package events

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// StartAuthConsumer binds the auth queue to every routing key in handlers and
// dispatches deliveries until ctx ends.
func StartAuthConsumer(ctx context.Context, conn *amqp.Connection, handlers map[string]HandlerFunc, logger zerolog.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}

	if err := declareEventsExchange(ch); err != nil {
		ch.Close()
		return fmt.Errorf("exchange declare: %w", err)
	}

	_, err = ch.QueueDeclare(
		AuthQueue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		ch.Close()
		return fmt.Errorf("queue declare: %w", err)
	}

	for routingKey := range handlers {
		if err := ch.QueueBind(AuthQueue, routingKey, EventsExchange, false, nil); err != nil {
			ch.Close()
			return fmt.Errorf("queue bind %s: %w", routingKey, err)
		}
	}

	msgs, err := ch.Consume(
		AuthQueue,
		consumerTag,
		false, // autoAck
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		return fmt.Errorf("consume: %w", err)
	}

	go func() {
		defer ch.Close()
		for {
			select {
			case <-ctx.Done():
				logger.Info().Str("queue", AuthQueue).Msg("stopping auth consumer")
				return
			case msg, ok := <-msgs:
				if !ok {
					logger.Warn().Str("queue", AuthQueue).Msg("messages channel closed")
					return
				}
				dispatch(ctx, handlers, msg, logger)
			}
		}
	}()

	return nil
}

func dispatch(ctx context.Context, handlers map[string]HandlerFunc, msg amqp.Delivery, logger zerolog.Logger) {
	handle, ok := handlers[msg.RoutingKey]
	if !ok {
		logger.Warn().Str("routingKey", msg.RoutingKey).Msg("no handler for routing key")
		_ = msg.Nack(false, false)
		return
	}

	if err := handle(ctx, msg.Body); err != nil {
		logger.Error().Err(err).Str("routingKey", msg.RoutingKey).Msg("handle message error")
		_ = msg.Nack(false, false)
		return
	}
	_ = msg.Ack(false)
}
