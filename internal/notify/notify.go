// Package notify отправляет push-уведомления участникам через брокер сообщений.
// Доставка до конечного устройства выполняется внешним подписчиком очереди.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const notificationsExchange = "notifications_fanout"

// Notification описывает содержимое уведомления.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url"`
}

// Message — формат сообщения, публикуемого в обменник уведомлений.
type Message struct {
	RecipientID string    `json:"recipient_id"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	URL         string    `json:"url"`
	SentAt      time.Time `json:"sent_at"`
}

// Notifier публикует уведомление для указанного получателя.
type Notifier interface {
	Notify(ctx context.Context, recipient uuid.UUID, n Notification) error
}

// AMQPNotifier публикует уведомления в fanout-обменник RabbitMQ.
type AMQPNotifier struct {
	conn *amqp.Connection
}

// Dial подключается к RabbitMQ по указанному адресу.
func Dial(url string) (*AMQPNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	return &AMQPNotifier{conn: conn}, nil
}

// Close закрывает соединение с брокером.
func (p *AMQPNotifier) Close() error {
	return p.conn.Close()
}

// Notify публикует уведомление. Канал открывается на каждую публикацию:
// уведомления редкие, а канал нельзя разделять между горутинами.
func (p *AMQPNotifier) Notify(ctx context.Context, recipient uuid.UUID, n Notification) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(notificationsExchange, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	body, err := json.Marshal(Message{
		RecipientID: recipient.String(),
		Title:       n.Title,
		Body:        n.Body,
		URL:         n.URL,
		SentAt:      time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	err = ch.PublishWithContext(ctx, notificationsExchange, "", false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	return nil
}
