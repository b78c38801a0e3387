package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/daybook/internal/model"

	"github.com/rabbitmq/amqp091-go"
	"github.com/sethvargo/go-retry"
)

// ReminderMessage is the body published for each fired reminder.
type ReminderMessage struct {
	Key       int32     `json:"key"`
	Kind      string    `json:"kind"`
	EntityID  string    `json:"entity_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	URL       string    `json:"url"`
	TriggerAt time.Time `json:"trigger_at"`
	FiredAt   time.Time `json:"fired_at"`
}

func NewReminderMessage(a model.Alarm, firedAt time.Time) ReminderMessage {
	p := PayloadFor(a)
	return ReminderMessage{
		Key:       a.Key,
		Kind:      string(a.Kind),
		EntityID:  a.EntityID,
		Title:     p.Title,
		Body:      p.Body,
		URL:       p.URL,
		TriggerAt: a.TriggerAt,
		FiredAt:   firedAt.UTC(),
	}
}

// AMQP publishes reminders to a topic exchange, routed by entity kind
// ("reminder.note", "reminder.schedule", "reminder.routine").
type AMQP struct {
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
	logger   *slog.Logger
}

// DialAMQP connects with exponential backoff and declares the exchange.
func DialAMQP(ctx context.Context, url, exchange string, attempts uint64, logger *slog.Logger) (*AMQP, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "amqp")

	var conn *amqp091.Connection
	backoff := retry.WithMaxRetries(attempts, retry.NewExponential(200*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		c, err := amqp091.Dial(url)
		if err != nil {
			logger.Warn("dial AMQP", "error", err)
			return retry.RetryableError(err)
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	return &AMQP{conn: conn, channel: channel, exchange: exchange, logger: logger}, nil
}

func routingKey(kind model.AlarmKind) string {
	return "reminder." + string(kind)
}

func (q *AMQP) Notify(ctx context.Context, a model.Alarm) error {
	body, err := json.Marshal(NewReminderMessage(a, time.Now()))
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = q.channel.PublishWithContext(ctx,
		q.exchange,
		routingKey(a.Kind),
		false, // mandatory
		false, // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			MessageId:    fmt.Sprintf("%d-%d", a.Key, a.TriggerAt.Unix()),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish reminder: %w", err)
	}

	q.logger.DebugContext(ctx, "published reminder", "key", a.Key, "routing_key", routingKey(a.Kind))
	return nil
}

func (q *AMQP) Close() error {
	if q.channel != nil {
		q.channel.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}
