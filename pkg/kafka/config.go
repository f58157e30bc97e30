package kafka

import (
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// Topics names the topics the desk publishes to and consumes from.
type Topics struct {
	Candidates  string
	Suggestions string
	Sync        string
	Outcomes    string
	Logs        string
	DLQ         string
}

// DefaultTopics returns the standard topic names under prefix.
func DefaultTopics(prefix string) Topics {
	if prefix == "" {
		prefix = "swingdesk"
	}
	return Topics{
		Candidates:  prefix + ".candidates",
		Suggestions: prefix + ".suggestions",
		Sync:        prefix + ".sync",
		Outcomes:    prefix + ".outcomes",
		Logs:        prefix + ".logs",
		DLQ:         prefix + ".outcomes.dlq",
	}
}

// WithDefaults fills every empty name from DefaultTopics(prefix).
func (t Topics) WithDefaults(prefix string) Topics {
	d := DefaultTopics(prefix)
	fill := func(dst *string, def string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = def
		}
	}
	fill(&t.Candidates, d.Candidates)
	fill(&t.Suggestions, d.Suggestions)
	fill(&t.Sync, d.Sync)
	fill(&t.Outcomes, d.Outcomes)
	fill(&t.Logs, d.Logs)
	fill(&t.DLQ, d.DLQ)
	return t
}

// ProducerConfig configures the writer behind Producer.
type ProducerConfig struct {
	Brokers      []string
	RequiredAcks int
	Compression  string
	MaxAttempts  int
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
	BatchSize    int
	BatchBytes   int
	Linger       time.Duration
	Async        bool
}

func (c ProducerConfig) withDefaults() ProducerConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.BatchBytes <= 0 {
		c.BatchBytes = 1 << 20
	}
	if c.Linger <= 0 {
		c.Linger = 50 * time.Millisecond
	}
	return c
}

// ConsumerConfig configures the group reader behind Consumer.
type ConsumerConfig struct {
	Brokers     []string
	GroupID     string
	StartOffset string
	Workers     int
	QueueSize   int
	RetryMax    int
	BackoffMin  time.Duration
	BackoffMax  time.Duration
	DLQTopic    string
	MinBytes    int
	MaxBytes    int
}

func (c ConsumerConfig) withDefaults() ConsumerConfig {
	if c.GroupID == "" {
		c.GroupID = "swingdesk-learning"
	}
	if c.StartOffset == "" {
		c.StartOffset = "earliest"
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.BackoffMin <= 0 {
		c.BackoffMin = 100 * time.Millisecond
	}
	if c.BackoffMax < c.BackoffMin {
		c.BackoffMax = c.BackoffMin
	}
	if c.MinBytes <= 0 {
		c.MinBytes = 1
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 10 << 20
	}
	return c
}

// startOffset maps the configured reset policy to a reader offset. It only
// applies when the group has no committed offset yet.
func startOffset(s string) (int64, error) {
	switch strings.ToLower(s) {
	case "", "earliest":
		return kafka.FirstOffset, nil
	case "latest":
		return kafka.LastOffset, nil
	default:
		return 0, fmt.Errorf("start offset must be 'earliest' or 'latest', got %q", s)
	}
}

func parseCompression(s string) (kafka.Compression, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return 0, nil
	case "gzip":
		return kafka.Gzip, nil
	case "snappy":
		return kafka.Snappy, nil
	case "lz4":
		return kafka.Lz4, nil
	case "zstd":
		return kafka.Zstd, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", s)
	}
}
