package events

import (
	"chainwatch/internal/ports"
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel is the subset of *amqp.Channel used for publishing.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitPublisher sends batch events to a durable queue through the default exchange.
type RabbitPublisher struct {
	conn  *amqp.Connection
	chn   Channel
	queue string
}

// DialRabbitPublisher connects to url, opens a channel and declares the queue.
func DialRabbitPublisher(url, queue string) (*RabbitPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	chn, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("dial rabbitmq: open channel: %w", err)
	}
	if _, err := chn.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	); err != nil {
		_ = chn.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("dial rabbitmq: declare queue %q: %w", queue, err)
	}
	return &RabbitPublisher{conn: conn, chn: chn, queue: queue}, nil
}

// NewRabbitPublisherWithChannel allows injecting a test channel.
func NewRabbitPublisherWithChannel(chn Channel, queue string) *RabbitPublisher {
	return &RabbitPublisher{chn: chn, queue: queue}
}

func (p *RabbitPublisher) Publish(ctx context.Context, ev ports.BatchEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("rabbitmq publish: marshal event: %w", err)
	}
	err = p.chn.PublishWithContext(
		ctx,
		"",      // exchange
		p.queue, // routing key (queue name)
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Type:         string(ev.Type),
			MessageId:    fmt.Sprintf("%s-%d", ev.BatchID, ev.Version),
			Timestamp:    ev.At,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("rabbitmq publish batch_id=%s: %w", ev.BatchID, err)
	}
	return nil
}

func (p *RabbitPublisher) Close() error {
	if err := p.chn.Close(); err != nil {
		return err
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
