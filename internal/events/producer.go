package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
)

const (
	OfferSubmittedTopic    = "offer.submitted"
	OfferSubmittedDLQTopic = "offer.submitted.dlq"
)

type OfferSubmittedEvent struct {
	OfferID       string    `json:"offer_id"`
	VehicleID     string    `json:"vehicle_id"`
	VehicleName   string    `json:"vehicle_name"`
	ColorName     string    `json:"color_name"`
	CustomerName  string    `json:"customer_name"`
	CustomerEmail string    `json:"customer_email"`
	Company       string    `json:"company,omitempty"`
	TotalPrice    float64   `json:"total_price"`
	SubmittedAt   time.Time `json:"submitted_at"`
	EventTime     time.Time `json:"event_time"`
}

func producerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Version = sarama.V2_6_0_0
	return config
}

type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *logrus.Logger
}

func NewKafkaPublisher(brokers string, logger *logrus.Logger) (*KafkaPublisher, error) {
	producer, err := sarama.NewSyncProducer(strings.Split(brokers, ","), producerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	return NewPublisher(producer, logger), nil
}

// NewPublisher wraps an existing producer.
func NewPublisher(producer sarama.SyncProducer, logger *logrus.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		producer: producer,
		topic:    OfferSubmittedTopic,
		logger:   logger,
	}
}

func (p *KafkaPublisher) PublishOfferSubmitted(event OfferSubmittedEvent) error {
	event.EventTime = time.Now().UTC()

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.OfferID),
		Value: sarama.ByteEncoder(data),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.logger.WithError(err).WithField("offer_id", event.OfferID).Error("Failed to send message to Kafka")
		return err
	}

	p.logger.WithFields(logrus.Fields{
		"topic":     p.topic,
		"partition": partition,
		"offset":    offset,
		"offer_id":  event.OfferID,
	}).Info("Event published to Kafka")

	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
