package events

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	EventsExchange           = "uchef.events"
	AuthQueue                = "cart-service.auth"
	LoginSucceededRoutingKey = "auth.login.succeeded.v1"
	UserResolvedRoutingKey   = "auth.user.resolved.v1"
	LogoutRoutingKey         = "auth.logout.v1"
	consumerTag              = "cart-service"
)

func Dial(url string) (*amqp.Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	return conn, nil
}

func declareEventsExchange(ch *amqp.Channel) error {
	return ch.ExchangeDeclare(
		EventsExchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
}
