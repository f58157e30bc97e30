package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// Message is one keyed payload for PublishBatch. Value is sent as is when it
// is []byte or string and JSON-encoded otherwise.
type Message struct {
	Key   []byte
	Value any
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes desk events. Messages are hashed by key so that every
// event for one instrument or row lands on the same partition.
type Producer struct {
	w   messageWriter
	now func() time.Time
}

// NewProducer creates a producer for the given brokers.
func NewProducer(cfg ProducerConfig) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: brokers are required")
	}
	cfg = cfg.withDefaults()
	comp, err := parseCompression(cfg.Compression)
	if err != nil {
		return nil, fmt.Errorf("kafka: %w", err)
	}

	initProducerMetrics()
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
			Compression:  comp,
			MaxAttempts:  cfg.MaxAttempts,
			WriteTimeout: cfg.WriteTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			BatchSize:    cfg.BatchSize,
			BatchBytes:   int64(cfg.BatchBytes),
			BatchTimeout: cfg.Linger,
			Async:        cfg.Async,
		},
		now: time.Now,
	}, nil
}

// Publish sends one message to topic.
func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value any) error {
	return p.PublishBatch(ctx, topic, []Message{{Key: key, Value: value}})
}

// PublishMessage sends a keyless payload. It lets the producer serve as the
// log collector's publisher.
func (p *Producer) PublishMessage(ctx context.Context, topic string, payload any) error {
	return p.Publish(ctx, topic, nil, payload)
}

// PublishBatch sends messages to topic in one write. All messages of a batch
// carry the same trace id.
func (p *Producer) PublishBatch(ctx context.Context, topic string, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}
	trace := TraceID(ctx)
	if trace == "" {
		trace = uuid.NewString()
	}

	start := p.now()
	out := make([]kafka.Message, len(messages))
	var size int
	for i, m := range messages {
		v, err := encode(m.Value)
		if err != nil {
			return fmt.Errorf("kafka: encode %s message: %w", topic, err)
		}
		out[i] = kafka.Message{
			Topic:   topic,
			Key:     m.Key,
			Value:   v,
			Time:    start,
			Headers: []kafka.Header{{Key: traceHeader, Value: []byte(trace)}},
		}
		size += len(v)
	}

	err := p.w.WriteMessages(ctx, out...)
	observePublish(topic, len(out), size, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("kafka: publish %d to %s: %w", len(out), topic, err)
	}
	return nil
}

func (p *Producer) Close() error {
	if p == nil || p.w == nil {
		return nil
	}
	return p.w.Close()
}

func encode(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return val, nil
	case string:
		return []byte(val), nil
	default:
		return json.Marshal(val)
	}
}

var (
	producerOnce     sync.Once
	producerMessages *prometheus.CounterVec
	producerBytes    *prometheus.CounterVec
	producerLatency  *prometheus.HistogramVec
)

func initProducerMetrics() {
	producerOnce.Do(func() {
		producerMessages = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "swingdesk_kafka_published_total",
			Help: "Messages published by topic and result.",
		}, []string{"topic", "result"})
		producerBytes = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "swingdesk_kafka_published_bytes_total",
			Help: "Payload bytes published by topic.",
		}, []string{"topic"})
		producerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "swingdesk_kafka_publish_seconds",
			Help:    "Time spent in one publish call.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"topic"})
	})
}

func observePublish(topic string, n, size int, d time.Duration, err error) {
	if producerMessages == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	producerMessages.WithLabelValues(topic, result).Add(float64(n))
	producerBytes.WithLabelValues(topic).Add(float64(size))
	producerLatency.WithLabelValues(topic).Observe(d.Seconds())
}
