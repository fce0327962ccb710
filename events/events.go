// Package events publishes domain events to RabbitMQ. The only event today
// is order.created, emitted after an order has been committed.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"

	"github.com/Skryldev/storefront/models"
)

// OrderCreatedType is the "type" field and AMQP message type of order events.
const OrderCreatedType = "order.created"

const publishTimeout = 5 * time.Second

// Publisher emits domain events. Implementations must be safe for
// concurrent use.
type Publisher interface {
	PublishOrderCreated(ctx context.Context, o *models.Order) error
	Close() error
}

// OrderCreated is the JSON body of an order.created message.
type OrderCreated struct {
	Type       string             `json:"type"`
	OrderID    int64              `json:"orderId"`
	UserID     int64              `json:"userId"`
	Status     string             `json:"status"`
	TotalPrice decimal.Decimal    `json:"totalPrice"`
	Items      []OrderCreatedItem `json:"items"`
	CreatedAt  time.Time          `json:"createdAt"`
}

type OrderCreatedItem struct {
	ProductID int64           `json:"productId"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// NewOrderCreated builds the event body for a persisted order.
func NewOrderCreated(o *models.Order) OrderCreated {
	ev := OrderCreated{
		Type:       OrderCreatedType,
		OrderID:    o.ID,
		UserID:     o.UserID,
		Status:     o.Status,
		TotalPrice: o.TotalPrice,
		Items:      make([]OrderCreatedItem, 0, len(o.Items)),
		CreatedAt:  o.CreatedAt,
	}
	for _, it := range o.Items {
		ev.Items = append(ev.Items, OrderCreatedItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     it.Price,
		})
	}
	return ev
}

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher sends events to a durable queue on the default exchange.
// A single channel is shared and guarded by a mutex; amqp channels are not
// safe for concurrent publishing.
type AMQPPublisher struct {
	conn   *amqp.Connection
	mu     sync.Mutex
	ch     channel
	queue  string
	logger *slog.Logger
}

// DialAMQP connects to url and declares queue as durable.
func DialAMQP(url, queue string, logger *slog.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("events: connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("events: open channel: %w", err)
	}
	_, err = ch.QueueDeclare(
		queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("events: declare queue %q: %w", queue, err)
	}
	p := newAMQPPublisher(ch, queue, logger)
	p.conn = conn
	return p, nil
}

func newAMQPPublisher(ch channel, queue string, logger *slog.Logger) *AMQPPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &AMQPPublisher{ch: ch, queue: queue, logger: logger}
}

// PublishOrderCreated sends a persistent order.created message. The call
// gives up after five seconds even if ctx allows longer.
func (p *AMQPPublisher) PublishOrderCreated(ctx context.Context, o *models.Order) error {
	body, err := json.Marshal(NewOrderCreated(o))
	if err != nil {
		return fmt.Errorf("events: marshal order %d: %w", o.ID, err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	p.mu.Lock()
	err = p.ch.PublishWithContext(ctx,
		"",      // exchange
		p.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Type:         OrderCreatedType,
			Timestamp:    o.CreatedAt,
			Body:         body,
		})
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("events: publish order %d: %w", o.ID, err)
	}

	p.logger.InfoContext(ctx, "events: order published",
		slog.Int64("order_id", o.ID),
		slog.String("queue", p.queue),
	)
	return nil
}

// Close closes the channel and then the connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Nop discards every event.
type Nop struct{}

func (Nop) PublishOrderCreated(context.Context, *models.Order) error { return nil }
func (Nop) Close() error                                             { return nil }

var (
	_ Publisher = (*AMQPPublisher)(nil)
	_ Publisher = Nop{}
)
