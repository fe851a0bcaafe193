package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
)

type OfferEventHandler interface {
	HandleOfferSubmitted(ctx context.Context, event OfferSubmittedEvent) error
	IsRetryable(err error) bool
}

type RetryPolicy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
	}
}

type ConsumerMetrics struct {
	Processed    int64 `json:"processed"`
	Succeeded    int64 `json:"succeeded"`
	Failed       int64 `json:"failed"`
	Retried      int64 `json:"retried"`
	DeadLettered int64 `json:"dead_lettered"`
}

type FailureMetadata struct {
	Attempts      int       `json:"attempts"`
	FailedAt      time.Time `json:"failed_at"`
	OriginalTopic string    `json:"original_topic"`
	ErrorMessage  string    `json:"error_message"`
}

// Processor handles a single offer event with retries and moves messages it
// cannot handle to the dead-letter topic.
type Processor struct {
	handler OfferEventHandler
	dlq     sarama.SyncProducer
	policy  RetryPolicy
	logger  *logrus.Logger

	processed    atomic.Int64
	succeeded    atomic.Int64
	failed       atomic.Int64
	retried      atomic.Int64
	deadLettered atomic.Int64
}

func NewProcessor(handler OfferEventHandler, dlq sarama.SyncProducer, policy RetryPolicy, logger *logrus.Logger) *Processor {
	return &Processor{
		handler: handler,
		dlq:     dlq,
		policy:  policy,
		logger:  logger,
	}
}

func (p *Processor) Metrics() ConsumerMetrics {
	return ConsumerMetrics{
		Processed:    p.processed.Load(),
		Succeeded:    p.succeeded.Load(),
		Failed:       p.failed.Load(),
		Retried:      p.retried.Load(),
		DeadLettered: p.deadLettered.Load(),
	}
}

// Process returns an error only when the message could neither be handled nor
// dead-lettered; the caller should not commit its offset in that case.
func (p *Processor) Process(ctx context.Context, message *sarama.ConsumerMessage) error {
	p.processed.Add(1)

	attempts, err := p.handleWithRetry(ctx, message)
	if err == nil {
		p.succeeded.Add(1)
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	p.failed.Add(1)
	p.logger.WithError(err).WithField("key", string(message.Key)).Error("Failed to process message after retries")

	if dlqErr := p.sendToDLQ(message, attempts, err); dlqErr != nil {
		p.logger.WithError(dlqErr).Error("Failed to send message to DLQ")
		return dlqErr
	}
	p.deadLettered.Add(1)
	return nil
}

func (p *Processor) handleWithRetry(ctx context.Context, message *sarama.ConsumerMessage) (int, error) {
	var event OfferSubmittedEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return 1, fmt.Errorf("failed to unmarshal offer submitted event: %w", err)
	}

	delay := p.policy.InitialDelay
	var err error
	attempt := 0
	for ; attempt <= p.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			p.logger.WithFields(logrus.Fields{
				"offer_id": event.OfferID,
				"attempt":  attempt,
				"delay":    delay,
			}).Info("Retrying offer event")

			if sleepErr := sleep(ctx, delay); sleepErr != nil {
				return attempt, sleepErr
			}
			p.retried.Add(1)

			delay *= 2
			if delay > p.policy.MaxDelay {
				delay = p.policy.MaxDelay
			}
		}

		err = p.handler.HandleOfferSubmitted(ctx, event)
		if err == nil {
			return attempt + 1, nil
		}
		if !p.handler.IsRetryable(err) {
			return attempt + 1, err
		}
		p.logger.WithError(err).WithField("attempt", attempt+1).Warn("Retryable error processing offer event")
	}

	return attempt, fmt.Errorf("exhausted retries for offer %s: %w", event.OfferID, err)
}

func (p *Processor) sendToDLQ(message *sarama.ConsumerMessage, attempts int, cause error) error {
	if p.dlq == nil {
		return errors.New("no dead-letter producer configured")
	}

	metadata, err := json.Marshal(FailureMetadata{
		Attempts:      attempts,
		FailedAt:      time.Now().UTC(),
		OriginalTopic: message.Topic,
		ErrorMessage:  cause.Error(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: OfferSubmittedDLQTopic,
		Key:   sarama.ByteEncoder(message.Key),
		Value: sarama.ByteEncoder(message.Value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("metadata"), Value: metadata},
			{Key: []byte("original_topic"), Value: []byte(message.Topic)},
			{Key: []byte("original_partition"), Value: []byte(strconv.Itoa(int(message.Partition)))},
			{Key: []byte("original_offset"), Value: []byte(strconv.FormatInt(message.Offset, 10))},
		},
	}

	partition, offset, err := p.dlq.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to send to DLQ: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"dlq_topic":     OfferSubmittedDLQTopic,
		"dlq_partition": partition,
		"dlq_offset":    offset,
		"original_key":  string(message.Key),
		"error":         cause.Error(),
	}).Warn("Message sent to dead letter queue")
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consumer reads offer events from a consumer group and feeds them to a Processor.
type Consumer struct {
	group     sarama.ConsumerGroup
	dlq       sarama.SyncProducer
	processor *Processor
	topics    []string
	logger    *logrus.Logger
}

func NewConsumer(brokers, groupID string, handler OfferEventHandler, policy RetryPolicy, logger *logrus.Logger) (*Consumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Version = sarama.V2_6_0_0

	addrs := strings.Split(brokers, ",")
	group, err := sarama.NewConsumerGroup(addrs, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	dlq, err := sarama.NewSyncProducer(addrs, producerConfig())
	if err != nil {
		group.Close()
		return nil, fmt.Errorf("failed to create producer for DLQ: %w", err)
	}

	return &Consumer{
		group:     group,
		dlq:       dlq,
		processor: NewProcessor(handler, dlq, policy, logger),
		topics:    []string{OfferSubmittedTopic},
		logger:    logger,
	}, nil
}

func (c *Consumer) Metrics() ConsumerMetrics { return c.processor.Metrics() }

// Start blocks until ctx is cancelled or the group fails.
func (c *Consumer) Start(ctx context.Context) error {
	handler := &groupHandler{processor: c.processor, logger: c.logger}
	for {
		if err := c.group.Consume(ctx, c.topics, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			c.logger.WithError(err).Error("Error consuming from Kafka")
			return err
		}
		if ctx.Err() != nil {
			c.logger.Info("Kafka consumer context cancelled")
			return nil
		}
	}
}

func (c *Consumer) Close() error {
	if err := c.dlq.Close(); err != nil {
		c.logger.WithError(err).Error("Failed to close DLQ producer")
	}
	return c.group.Close()
}

type groupHandler struct {
	processor *Processor
	logger    *logrus.Logger
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error {
	h.logger.Info("Kafka consumer group session setup")
	return nil
}

func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	h.logger.Info("Kafka consumer group session cleanup")
	return nil
}

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := h.processor.Process(session.Context(), message); err != nil {
				// Leave the offset uncommitted so the message is redelivered.
				return err
			}
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}
