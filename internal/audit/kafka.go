package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/IBM/sarama"

	"collab-service/internal/collab"
)

const pendingBuffer = 1024

// NewProducerConfig returns the sarama settings used for the audit topic.
func NewProducerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = false
	config.Producer.Return.Errors = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Partitioner = sarama.NewHashPartitioner // same document, same partition
	config.Version = sarama.V2_0_0_0
	config.ClientID = "collab-service"
	config.Producer.MaxMessageBytes = 1000000
	config.Producer.Flush.MaxMessages = 1000
	return config
}

// KafkaAuditor publishes audit events as JSON, keyed by document id.
type KafkaAuditor struct {
	producer sarama.AsyncProducer
	topic    string
	logger   *slog.Logger

	pending chan *sarama.ProducerMessage
	mu      sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
}

// NewKafkaAuditor connects an async producer to brokers.
func NewKafkaAuditor(brokers []string, topic string, logger *slog.Logger) (*KafkaAuditor, error) {
	producer, err := sarama.NewAsyncProducer(brokers, NewProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return NewKafkaAuditorWithProducer(producer, topic, logger), nil
}

// NewKafkaAuditorWithProducer wraps an existing producer. The auditor owns it
// from here on and closes it in Close.
func NewKafkaAuditorWithProducer(producer sarama.AsyncProducer, topic string, logger *slog.Logger) *KafkaAuditor {
	if logger == nil {
		logger = slog.Default()
	}
	a := &KafkaAuditor{
		producer: producer,
		topic:    topic,
		logger:   logger,
		pending:  make(chan *sarama.ProducerMessage, pendingBuffer),
	}

	a.wg.Add(2)
	go a.forward()
	go a.drainErrors()
	return a
}

// Record queues evt for publishing. Events are dropped when the queue is full
// or the auditor is closed.
func (a *KafkaAuditor) Record(_ context.Context, evt collab.AuditEvent) {
	value, err := json.Marshal(evt)
	if err != nil {
		a.logger.Error("Failed to encode audit event", "action", evt.Action, "error", err)
		return
	}

	key := evt.DocumentID
	if key == "" {
		key = evt.UserID
	}
	msg := &sarama.ProducerMessage{
		Topic: a.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(value),
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.pending <- msg:
	default:
		a.logger.Warn("Audit queue full, dropping event", "action", evt.Action, "documentID", evt.DocumentID)
	}
}

func (a *KafkaAuditor) forward() {
	defer a.wg.Done()
	for msg := range a.pending {
		a.producer.Input() <- msg
	}
	a.producer.AsyncClose()
}

func (a *KafkaAuditor) drainErrors() {
	defer a.wg.Done()
	for perr := range a.producer.Errors() {
		a.logger.Error("Failed to publish audit event", "topic", perr.Msg.Topic, "error", perr.Err)
	}
}

// Close flushes queued events and shuts the producer down.
func (a *KafkaAuditor) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.pending)
	a.mu.Unlock()

	a.wg.Wait()
}
