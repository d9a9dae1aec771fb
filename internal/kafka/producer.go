package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"ms-reservations/internal/logger"
	"ms-reservations/internal/models"
)

// Topic names for the engine's domain events.
const (
	TopicReservationEvents = "reservation-events"
	TopicPaymentEvents     = "payment-events"
	TopicFraudAlerts       = "fraud-alerts"
)

type Producer struct {
	Writer *kafka.Writer
	Log    *logger.Logger
}

func NewProducer(brokers []string, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Balancer: &kafka.LeastBytes{},
	}
	return &Producer{Writer: writer, Log: log}
}

func (p *Producer) publish(topic, key string, payload interface{}) error {
	msgBytes, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	if p.Log != nil {
		p.Log.LogKafka("PUBLISH", topic, key)
	}

	return p.Writer.WriteMessages(context.Background(),
		kafka.Message{
			Topic: topic,
			Key:   []byte(key),
			Value: msgBytes,
		},
	)
}

func (p *Producer) PublishReservationCreated(r models.Reservation) error {
	return p.publish(TopicReservationEvents, r.Token, models.ReservationEvent{
		Type:        "reservation.created",
		Token:       r.Token,
		Reservation: &r,
		Timestamp:   time.Now(),
	})
}

func (p *Producer) PublishReservationConfirmed(r models.Reservation) error {
	return p.publish(TopicReservationEvents, r.Token, models.ReservationEvent{
		Type:        "reservation.confirmed",
		Token:       r.Token,
		Reservation: &r,
		Timestamp:   time.Now(),
	})
}

func (p *Producer) PublishReservationCancelled(r models.Reservation) error {
	return p.publish(TopicReservationEvents, r.Token, models.ReservationEvent{
		Type:        "reservation.cancelled",
		Token:       r.Token,
		Reservation: &r,
		Timestamp:   time.Now(),
	})
}

func (p *Producer) PublishPaymentStatusChanged(payment models.Payment) error {
	return p.publish(TopicPaymentEvents, payment.PaymentID, models.PaymentEvent{
		Type:      "payment." + string(payment.Status),
		PaymentID: payment.PaymentID,
		Payment:   &payment,
		Timestamp: time.Now(),
	})
}

func (p *Producer) PublishFraudBlocked(payment models.Payment) error {
	return p.publish(TopicFraudAlerts, payment.PaymentID, models.PaymentEvent{
		Type:      "payment.fraud_blocked",
		PaymentID: payment.PaymentID,
		Payment:   &payment,
		Timestamp: time.Now(),
	})
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
