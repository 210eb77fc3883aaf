package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	kafkaGo "github.com/segmentio/kafka-go"

	"github.com/agriconnect/agriconnect-api/config"
	"github.com/agriconnect/agriconnect-api/models"
)

// orderEventsTopic receives order lifecycle events
const orderEventsTopic = "agriconnect.order-events"

// Order lifecycle event types
const (
	EventOrderPlaced    = "order.placed"
	EventOrderDelivered = "order.delivered"
	EventOrderCancelled = "order.cancelled"
)

// OrderEvent is the wire format of an order lifecycle event
type OrderEvent struct {
	Type              string    `json:"type"`
	OrderID           uint      `json:"order_id"`
	ProductID         uint      `json:"product_id"`
	ConsumerID        uint      `json:"consumer_id"`
	FarmerID          uint      `json:"farmer_id"`
	Quantity          int       `json:"quantity"`
	TotalPrice        float64   `json:"total_price"`
	TransactionHash   string    `json:"transaction_hash,omitempty"`
	BlockchainOrderID string    `json:"blockchain_order_id,omitempty"`
	OccurredAt        time.Time `json:"occurred_at"`
}

// EventPublisherInterface publishes order lifecycle events. Publishing is
// best-effort: it happens inline on the request path and must never fail
// the request.
type EventPublisherInterface interface {
	PublishOrderEvent(ctx context.Context, eventType string, order *models.Order)
	Close() error
}

// KafkaEventPublisher writes order events to Kafka
type KafkaEventPublisher struct {
	writer *kafkaGo.Writer
}

var eventPublisherInstance EventPublisherInterface

// InitEventPublisher initializes the Kafka event publisher. Returns nil
// when no brokers are configured; events are then dropped silently.
func InitEventPublisher(cfg *config.Config) EventPublisherInterface {
	if cfg.KafkaBrokers == "" {
		log.Println("KAFKA_BROKERS not set, order events disabled")
		return nil
	}

	brokers := strings.Split(cfg.KafkaBrokers, ",")
	eventPublisherInstance = &KafkaEventPublisher{
		writer: &kafkaGo.Writer{
			Addr:         kafkaGo.TCP(brokers...),
			Topic:        orderEventsTopic,
			Balancer:     &kafkaGo.LeastBytes{},
			WriteTimeout: 5 * time.Second,
		},
	}
	return eventPublisherInstance
}

// GetEventPublisher returns the initialized event publisher instance
func GetEventPublisher() EventPublisherInterface {
	return eventPublisherInstance
}

// SetEventPublisher sets the event publisher instance (primarily for testing)
func SetEventPublisher(publisher EventPublisherInterface) {
	eventPublisherInstance = publisher
}

// PublishOrderEvent writes a single order event, logging on failure
func (p *KafkaEventPublisher) PublishOrderEvent(ctx context.Context, eventType string, order *models.Order) {
	event := OrderEvent{
		Type:            eventType,
		OrderID:         order.ID,
		ProductID:       order.ProductID,
		ConsumerID:      order.ConsumerID,
		FarmerID:        order.FarmerID,
		Quantity:        order.Quantity,
		TotalPrice:      order.TotalPrice,
		TransactionHash: order.TransactionHash,
		OccurredAt:      time.Now().UTC(),
	}
	if order.BlockchainOrderID != nil {
		event.BlockchainOrderID = *order.BlockchainOrderID
	}

	value, err := json.Marshal(event)
	if err != nil {
		log.Printf("warning: failed to encode order event: %v", err)
		return
	}

	msg := kafkaGo.Message{
		Key:   []byte(fmt.Sprintf("order-%d", order.ID)),
		Value: value,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		log.Printf("warning: failed to publish %s event for order %d: %v", eventType, order.ID, err)
	}
}

// Close shuts down the underlying Kafka writer
func (p *KafkaEventPublisher) Close() error {
	return p.writer.Close()
}

// publishOrderEvent publishes through the configured publisher, if any
func publishOrderEvent(ctx context.Context, eventType string, order *models.Order) {
	if publisher := GetEventPublisher(); publisher != nil {
		publisher.PublishOrderEvent(ctx, eventType, order)
	}
}
