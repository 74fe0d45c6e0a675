package rabbitmq

import (
	"encoding/json"
	"fmt"

	"github.com/streadway/amqp"
)

// Publisher публикует сообщения в очередь уведомлений.
type Publisher struct {
	ch        *amqp.Channel
	queueName string
}

// NewPublisher создаёт публикатор для настроенной очереди.
func NewPublisher(ch *amqp.Channel, queueName string) *Publisher {
	return &Publisher{ch: ch, queueName: queueName}
}

// Publish сериализует сообщение в JSON и публикует его с персистентным
// режимом доставки.
func (p *Publisher) Publish(message any) error {
	const op = "rabbitmq.Publisher.Publish"
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = p.ch.Publish(
		notificationsExchange,
		p.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
