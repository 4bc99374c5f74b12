package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/utafrali/inventoryd/internal/domain"
	pkgkafka "github.com/utafrali/inventoryd/pkg/kafka"
)

// DefaultTopic is the Kafka topic the Reservation Engine publishes every
// outbound event to. A single topic keeps per-aggregate ordering (the
// message key is the reservation or product/store pair) without needing a
// topic-per-event-type fan-out.
const DefaultTopic = "inventory_events"

// AggregateTypeInventory identifies the inventory aggregate in the event
// envelope.
const AggregateTypeInventory = "inventory"

// SourceInventoryService is the envelope's source field.
const SourceInventoryService = "inventory_service"

// Event type constants published by the Reservation Engine.
const (
	EventReservationCreated   = "reservation_created"
	EventReservationConfirmed = "reservation_confirmed"
	EventReservationConsumed  = "reservation_consumed"
	EventReservationCancelled = "reservation_cancelled"
	EventReservationExpired   = "reservation_expired"
	EventStockUpdated         = "stock_updated"
)

// ReservationEventData is the payload shared by every reservation lifecycle
// event (created, confirmed, consumed, cancelled, expired).
type ReservationEventData struct {
	ReservationID string `json:"reservation_id"`
	OrderID       string `json:"order_id"`
	ProductID     string `json:"product_id"`
	StoreID       string `json:"store_id"`
	Quantity      int    `json:"quantity"`
	Status        string `json:"status"`
}

// StockUpdatedData is the payload for a stock_updated event, emitted
// whenever a direct stock adjustment changes an inventory row.
type StockUpdatedData struct {
	ProductID string `json:"product_id"`
	StoreID   string `json:"store_id"`
	Available int    `json:"available"`
	Reserved  int    `json:"reserved"`
	Total     int    `json:"total"`
}

// Producer publishes inventory domain events to Kafka. Publishing is
// fire-and-forget from the caller's perspective: every method returns an
// error for logging, but the engine never fails a reservation operation
// because an event failed to publish.
type Producer struct {
	kafka   *pkgkafka.Producer
	breaker *gobreaker.CircuitBreaker[struct{}]
	topic   string
	logger  *slog.Logger
}

// NewProducer creates a new event producer for the inventory service. The
// circuit breaker guards the Kafka broker ping used by readiness checks: a
// run of publish failures trips it so /health/ready reports degradation
// instead of dialing a down broker on every probe.
func NewProducer(kafka *pkgkafka.Producer, topic string, logger *slog.Logger) *Producer {
	if topic == "" {
		topic = DefaultTopic
	}
	settings := gobreaker.Settings{
		Name:        "kafka-producer",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("event producer circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	}

	return &Producer{
		kafka:   kafka,
		breaker: gobreaker.NewCircuitBreaker[struct{}](settings),
		topic:   topic,
		logger:  logger,
	}
}

func (p *Producer) publish(ctx context.Context, eventType, aggregateID string, data any) error {
	event, err := pkgkafka.NewEvent(eventType, aggregateID, AggregateTypeInventory, SourceInventoryService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", eventType, err)
	}

	_, err = p.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, p.kafka.Publish(ctx, p.topic, event)
	})
	if err != nil {
		return fmt.Errorf("publish %s event: %w", eventType, err)
	}
	return nil
}

// PublishReservationCreated publishes a reservation_created event.
func (p *Producer) PublishReservationCreated(ctx context.Context, r *domain.Reservation) error {
	return p.publishReservationEvent(ctx, EventReservationCreated, r)
}

// PublishReservationConfirmed publishes a reservation_confirmed event.
func (p *Producer) PublishReservationConfirmed(ctx context.Context, r *domain.Reservation) error {
	return p.publishReservationEvent(ctx, EventReservationConfirmed, r)
}

// PublishReservationConsumed publishes a reservation_consumed event.
func (p *Producer) PublishReservationConsumed(ctx context.Context, r *domain.Reservation) error {
	return p.publishReservationEvent(ctx, EventReservationConsumed, r)
}

// PublishReservationCancelled publishes a reservation_cancelled event.
func (p *Producer) PublishReservationCancelled(ctx context.Context, r *domain.Reservation) error {
	return p.publishReservationEvent(ctx, EventReservationCancelled, r)
}

// PublishReservationExpired publishes a reservation_expired event.
func (p *Producer) PublishReservationExpired(ctx context.Context, r *domain.Reservation) error {
	return p.publishReservationEvent(ctx, EventReservationExpired, r)
}

func (p *Producer) publishReservationEvent(ctx context.Context, eventType string, r *domain.Reservation) error {
	data := ReservationEventData{
		ReservationID: r.ID,
		OrderID:       r.OrderID,
		ProductID:     r.ProductID,
		StoreID:       r.StoreID,
		Quantity:      r.Quantity,
		Status:        r.Status,
	}

	if err := p.publish(ctx, eventType, r.ID, data); err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "published reservation event",
		slog.String("event_type", eventType),
		slog.String("reservation_id", r.ID),
		slog.String("order_id", r.OrderID),
	)
	return nil
}

// PublishStockUpdated publishes a stock_updated event for a direct
// inventory adjustment.
func (p *Producer) PublishStockUpdated(ctx context.Context, inv *domain.Inventory) error {
	data := StockUpdatedData{
		ProductID: inv.ProductID,
		StoreID:   inv.StoreID,
		Available: inv.Available,
		Reserved:  inv.Reserved,
		Total:     inv.Total,
	}

	aggregateID := inv.ProductID + ":" + inv.StoreID
	if err := p.publish(ctx, EventStockUpdated, aggregateID, data); err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "published stock_updated event",
		slog.String("product_id", inv.ProductID),
		slog.String("store_id", inv.StoreID),
		slog.Int("available", inv.Available),
	)
	return nil
}

// Ping reports Kafka broker health for the readiness probe, routed through
// the same breaker that guards publishing so a tripped breaker short-circuits
// the dial instead of blocking on a broker that is known to be down.
func (p *Producer) Ping(ctx context.Context) error {
	_, err := p.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, p.kafka.Ping(ctx)
	})
	return err
}
