// Package notify publishes check-in events to RabbitMQ.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"ticketfy-checkin/models"
)

const QueueTicketRedeemed = "ticket.redeemed"

// Channel is the subset of *amqp.Channel the publisher uses.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publisher sends a TicketRedeemedEvent for every successful or already-done redemption.
type Publisher struct {
	mu     sync.Mutex
	ch     Channel
	conn   *amqp.Connection
	logger *slog.Logger
}

// Dial connects to the broker and declares the durable ticket.redeemed queue.
func Dial(url string, logger *slog.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: dial failed: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rabbitmq: channel open failed: %w", err)
	}
	p, err := NewPublisher(ch, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

func NewPublisher(ch Channel, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := ch.QueueDeclare(
		QueueTicketRedeemed, // name
		true,                // durable
		false,               // autoDelete
		false,               // exclusive
		false,               // noWait
		nil,                 // args
	); err != nil {
		return nil, fmt.Errorf("rabbitmq: queue declare failed: %w", err)
	}
	return &Publisher{ch: ch, logger: logger}, nil
}

// Record publishes the settlement if the ticket ended up checked in. Failed attempts
// are not published.
func (p *Publisher) Record(ctx context.Context, s models.Settlement) error {
	if s.Outcome != models.OutcomeSuccess && s.Outcome != models.OutcomeAlreadyDone {
		return nil
	}

	body, err := json.Marshal(models.TicketRedeemedEvent{
		EventID:    s.EventID,
		TicketID:   s.TicketID,
		Owner:      s.Owner,
		OwnerName:  s.OwnerName,
		Validator:  s.Validator,
		Outcome:    string(s.Outcome),
		TxHash:     s.TxHash,
		RedeemedAt: s.SettledAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("rabbitmq: marshal event failed: %w", err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.PublishWithContext(ctx,
		"",                  // default exchange
		QueueTicketRedeemed, // routing key = queue name
		false,               // mandatory
		false,               // immediate
		pub,
	); err != nil {
		return fmt.Errorf("rabbitmq: publish failed: %w", err)
	}
	p.logger.Debug("published ticket redeemed", "ticket", s.TicketID, "outcome", s.Outcome)
	return nil
}

func (p *Publisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Close()
}
