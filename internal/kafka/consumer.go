package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/plugtrack/backend/internal/config"
	"github.com/plugtrack/backend/internal/utils"
	"go.uber.org/zap"
)

// MessageHandler is a function that processes a Kafka message
type MessageHandler func(msg *kafka.Message) error

// publisher is the part of Producer the consumer needs for dead-lettering
type publisher interface {
	Produce(topic string, message *Message) error
}

// Consumer provides functionality to consume messages from Kafka topics
type Consumer struct {
	consumer    *kafka.Consumer
	logger      *utils.Logger
	config      *config.KafkaConfig
	handlers    map[string][]MessageHandler
	dlqProducer publisher

	stopChannel chan struct{}
	stopOnce    sync.Once
	done        chan struct{}
	mu          sync.Mutex
	isRunning   bool
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg *config.KafkaConfig, logger *utils.Logger, dlqProducer *Producer) (*Consumer, error) {
	kafkaConfig := &kafka.ConfigMap{
		"bootstrap.servers":       cfg.Brokers,
		"group.id":                cfg.ConsumerGroup,
		"auto.offset.reset":       "latest",
		"enable.auto.commit":      true,
		"auto.commit.interval.ms": 5000,
	}

	if err := applySecurity(kafkaConfig, cfg); err != nil {
		return nil, err
	}

	consumer, err := kafka.NewConsumer(kafkaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka consumer: %w", err)
	}

	c := newConsumer(logger, nil)
	c.consumer = consumer
	c.config = cfg
	// A nil *Producer must not become a non-nil interface
	if dlqProducer != nil {
		c.dlqProducer = dlqProducer
	}
	return c, nil
}

func newConsumer(logger *utils.Logger, dlq publisher) *Consumer {
	return &Consumer{
		logger:      logger.Named("kafka_consumer"),
		handlers:    make(map[string][]MessageHandler),
		dlqProducer: dlq,
		stopChannel: make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// RegisterHandler registers a message handler for a specific topic
func (c *Consumer) RegisterHandler(topic string, handler MessageHandler) {
	c.handlers[topic] = append(c.handlers[topic], handler)
	c.logger.Info("Registered handler for topic", zap.String("topic", topic))
}

// Topics returns the topics handlers are registered for
func (c *Consumer) Topics() []string {
	topics := make([]string, 0, len(c.handlers))
	for topic := range c.handlers {
		topics = append(topics, topic)
	}
	return topics
}

// Start starts consuming messages from registered topics
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isRunning {
		return fmt.Errorf("consumer is already running")
	}

	topics := c.Topics()
	if len(topics) == 0 {
		return fmt.Errorf("no topics registered")
	}

	if err := c.consumer.SubscribeTopics(topics, nil); err != nil {
		return fmt.Errorf("failed to subscribe to topics: %w", err)
	}

	c.logger.Info("Subscribed to topics", zap.Strings("topics", topics))

	c.isRunning = true
	go c.consumeLoop(ctx)

	return nil
}

// consumeLoop runs the main consumption loop
func (c *Consumer) consumeLoop(ctx context.Context) {
	defer close(c.done)
	defer func() {
		c.mu.Lock()
		c.isRunning = false
		c.mu.Unlock()
		_ = c.consumer.Close()
	}()

	c.logger.Info("Starting Kafka consumer loop")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Context canceled, stopping consumer")
			return

		case <-c.stopChannel:
			c.logger.Info("Received stop signal, stopping consumer")
			return

		default:
			msg, err := c.consumer.ReadMessage(100 * time.Millisecond)
			if err != nil {
				// Ignore timeout errors
				if kerr, ok := err.(kafka.Error); ok && kerr.Code() == kafka.ErrTimedOut {
					continue
				}

				c.logger.Error("Error reading message from Kafka", zap.Error(err))
				continue
			}

			c.processMessage(msg)
		}
	}
}

// processMessage processes a Kafka message using registered handlers.
// A failing handler sends the message to <topic>.dlq.
func (c *Consumer) processMessage(msg *kafka.Message) {
	if msg == nil || msg.TopicPartition.Topic == nil {
		return
	}

	topic := *msg.TopicPartition.Topic
	handlers, ok := c.handlers[topic]
	if !ok || len(handlers) == 0 {
		c.logger.Warn("No handlers registered for topic", zap.String("topic", topic))
		return
	}

	c.logger.Debug("Processing message",
		zap.String("topic", topic),
		zap.Int32("partition", msg.TopicPartition.Partition),
		zap.Int64("offset", int64(msg.TopicPartition.Offset)),
		zap.Time("timestamp", msg.Timestamp),
	)

	for i, handler := range handlers {
		err := handler(msg)
		if err == nil {
			continue
		}

		c.logger.Error("Handler failed to process message",
			zap.String("topic", topic),
			zap.Int("handler_index", i),
			zap.Error(err),
		)

		if c.dlqProducer == nil {
			continue
		}

		dlqTopic := fmt.Sprintf("%s.dlq", topic)
		dlqMessage := &Message{
			Key:       string(msg.Key),
			Value:     msg.Value,
			Timestamp: time.Now(),
			Headers: map[string]string{
				"error":          err.Error(),
				"original_topic": topic,
			},
		}

		if err := c.dlqProducer.Produce(dlqTopic, dlqMessage); err != nil {
			c.logger.Error("Failed to send message to DLQ",
				zap.String("dlq_topic", dlqTopic),
				zap.Error(err),
			)
		}
	}
}

// Stop stops the consumer and waits for its loop to exit
func (c *Consumer) Stop() {
	c.mu.Lock()
	running := c.isRunning
	c.mu.Unlock()

	if running {
		c.stopOnce.Do(func() { close(c.stopChannel) })
		<-c.done
	}
	c.logger.Info("Kafka consumer stopped")
}
