package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/septivank/solar-dashboard/internal/db"
	"go.uber.org/zap"
)

// EventCustomerRegistered is the type of events published on registration
const EventCustomerRegistered = "customer.registered"

type publishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher emits customer events to the events exchange
type Publisher struct {
	channel    publishChannel
	exchange   string
	routingKey string
	logger     *zap.Logger
	now        func() time.Time
}

// NewPublisher opens a channel and declares the events exchange
func NewPublisher(conn *Connection, exchange, routingKey string, logger *zap.Logger) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	return newPublisher(ch, exchange, routingKey, logger), nil
}

func newPublisher(ch publishChannel, exchange, routingKey string, logger *zap.Logger) *Publisher {
	return &Publisher{
		channel:    ch,
		exchange:   exchange,
		routingKey: routingKey,
		logger:     logger,
		now:        time.Now,
	}
}

// CustomerRegisteredEvent is the payload of a customer.registered event
type CustomerRegisteredEvent struct {
	EventID      string    `json:"event_id"`
	Type         string    `json:"type"`
	OccurredAt   time.Time `json:"occurred_at"`
	CustomerID   int64     `json:"customer_id"`
	Code         string    `json:"code"`
	Name         string    `json:"name"`
	Status       string    `json:"status"`
	RegisteredOn string    `json:"registered_on"`
}

// PublishCustomerRegistered announces a newly created customer
func (p *Publisher) PublishCustomerRegistered(ctx context.Context, c db.Customer) error {
	event := CustomerRegisteredEvent{
		EventID:      uuid.NewString(),
		Type:         EventCustomerRegistered,
		OccurredAt:   p.now().UTC(),
		CustomerID:   c.ID,
		Code:         c.Code,
		Name:         c.Name,
		Status:       c.Status,
		RegisteredOn: c.RegisteredOn.Format("2006-01-02"),
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,
		p.routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    event.EventID,
			Type:         event.Type,
			Timestamp:    event.OccurredAt,
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Type, err)
	}

	p.logger.Debug("published customer event",
		zap.String("event_id", event.EventID),
		zap.String("routing_key", p.routingKey),
		zap.String("code", c.Code),
	)
	return nil
}

// Close closes the publisher channel
func (p *Publisher) Close() error {
	if p.channel != nil {
		return p.channel.Close()
	}
	return nil
}
