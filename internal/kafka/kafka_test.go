package kafka

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/plugtrack/backend/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recordingPublisher struct {
	topics   []string
	messages []*Message
	err      error
}

func (p *recordingPublisher) Produce(topic string, message *Message) error {
	p.topics = append(p.topics, topic)
	p.messages = append(p.messages, message)
	return p.err
}

func testLogger(t *testing.T) *utils.Logger {
	return &utils.Logger{Logger: zaptest.NewLogger(t)}
}

func messageOn(topic string, value []byte) *kafka.Message {
	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic},
		Key:            []byte("plug-1"),
		Value:          value,
	}
}

func TestDecodeReadingsIngested(t *testing.T) {
	t.Run("Should decode a valid event", func(t *testing.T) {
		event, err := DecodeReadingsIngested([]byte(`{"deviceId":"plug-1","timestamp":"2024-05-01T10:00:00Z","count":3}`))
		require.NoError(t, err)
		assert.Equal(t, "plug-1", event.DeviceID)
		assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), event.Timestamp.UTC())
		assert.Equal(t, 3, event.Count)
	})

	t.Run("Should reject an event without device", func(t *testing.T) {
		_, err := DecodeReadingsIngested([]byte(`{"timestamp":"2024-05-01T10:00:00Z"}`))
		assert.Error(t, err)
	})

	t.Run("Should reject an event without timestamp", func(t *testing.T) {
		_, err := DecodeReadingsIngested([]byte(`{"deviceId":"plug-1"}`))
		assert.Error(t, err)
	})

	t.Run("Should reject malformed JSON", func(t *testing.T) {
		_, err := DecodeReadingsIngested([]byte(`{`))
		assert.Error(t, err)
	})
}

func TestDecodeRateChanged(t *testing.T) {
	t.Run("Should accept a default schedule change", func(t *testing.T) {
		event, err := DecodeRateChanged([]byte(`{"version":"v2"}`))
		require.NoError(t, err)
		assert.Empty(t, event.DeviceID)
		assert.Equal(t, "v2", event.Version)
	})

	t.Run("Should reject an event without version", func(t *testing.T) {
		_, err := DecodeRateChanged([]byte(`{"deviceId":"plug-1"}`))
		assert.Error(t, err)
	})
}

func TestToKafkaMessage(t *testing.T) {
	t.Run("Should pass raw bytes through", func(t *testing.T) {
		raw := []byte(`{"deviceId":"plug-1"}`)
		msg, err := toKafkaMessage("t", &Message{Key: "k", Value: raw})
		require.NoError(t, err)
		assert.Equal(t, raw, msg.Value)
		assert.Equal(t, []byte("k"), msg.Key)
		assert.Equal(t, "t", *msg.TopicPartition.Topic)
	})

	t.Run("Should JSON encode structured values", func(t *testing.T) {
		msg, err := toKafkaMessage("t", &Message{Value: RateChangedEvent{DeviceID: "plug-1", Version: "v1"}})
		require.NoError(t, err)
		assert.JSONEq(t, `{"deviceId":"plug-1","version":"v1"}`, string(msg.Value))
		assert.Nil(t, msg.Key)
	})

	t.Run("Should copy headers", func(t *testing.T) {
		msg, err := toKafkaMessage("t", &Message{Value: json.RawMessage(`1`), Headers: map[string]string{"a": "b"}})
		require.NoError(t, err)
		require.Len(t, msg.Headers, 1)
		assert.Equal(t, "a", msg.Headers[0].Key)
		assert.Equal(t, []byte("b"), msg.Headers[0].Value)
	})
}

func TestConsumer_ProcessMessage(t *testing.T) {
	t.Run("Should decode and dispatch to the typed handler", func(t *testing.T) {
		c := newConsumer(testLogger(t), nil)
		var got ReadingsIngestedEvent
		c.RegisterHandler(TopicReadingsIngested, readingsIngestedHandler(func(e ReadingsIngestedEvent) error {
			got = e
			return nil
		}))

		c.processMessage(messageOn(TopicReadingsIngested, []byte(`{"deviceId":"plug-1","timestamp":"2024-05-01T10:00:00Z"}`)))
		assert.Equal(t, "plug-1", got.DeviceID)
	})

	t.Run("Should dead-letter the raw payload when a handler fails", func(t *testing.T) {
		dlq := &recordingPublisher{}
		c := newConsumer(testLogger(t), dlq)
		c.RegisterHandler(TopicRateSchedules, rateChangedHandler(func(RateChangedEvent) error {
			return errors.New("boom")
		}))

		payload := []byte(`{"version":"v9"}`)
		c.processMessage(messageOn(TopicRateSchedules, payload))

		require.Len(t, dlq.messages, 1)
		assert.Equal(t, TopicRateSchedules+".dlq", dlq.topics[0])
		assert.Equal(t, payload, dlq.messages[0].Value)
		assert.Equal(t, "boom", dlq.messages[0].Headers["error"])
		assert.Equal(t, TopicRateSchedules, dlq.messages[0].Headers["original_topic"])
	})

	t.Run("Should dead-letter undecodable events", func(t *testing.T) {
		dlq := &recordingPublisher{}
		c := newConsumer(testLogger(t), dlq)
		called := false
		c.RegisterHandler(TopicReadingsIngested, readingsIngestedHandler(func(ReadingsIngestedEvent) error {
			called = true
			return nil
		}))

		c.processMessage(messageOn(TopicReadingsIngested, []byte(`not json`)))
		assert.False(t, called)
		assert.Len(t, dlq.messages, 1)
	})

	t.Run("Should ignore failures without a DLQ producer", func(t *testing.T) {
		c := newConsumer(testLogger(t), nil)
		c.RegisterHandler(TopicRateSchedules, func(*kafka.Message) error { return errors.New("boom") })

		assert.NotPanics(t, func() {
			c.processMessage(messageOn(TopicRateSchedules, []byte(`{}`)))
		})
	})

	t.Run("Should ignore topics without handlers", func(t *testing.T) {
		dlq := &recordingPublisher{}
		c := newConsumer(testLogger(t), dlq)
		c.processMessage(messageOn("other", []byte(`{}`)))
		assert.Empty(t, dlq.messages)
	})
}
