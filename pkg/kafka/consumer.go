package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"

	applogger "SwingDesk/pkg/logger"
)

// MessageHandler handles the messages of one topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type ConsumerOption func(*Consumer)

func WithConsumerLogger(l *applogger.Logger) ConsumerOption {
	return func(c *Consumer) {
		if l != nil {
			c.log = l
		}
	}
}

// WithConsumerHooks appends hooks run around every handled message.
func WithConsumerHooks(h ...Hook) ConsumerOption {
	return func(c *Consumer) {
		c.hooks = append(c.hooks, h...)
	}
}

// Consumer reads registered topics as one consumer group. Each topic gets
// cfg.Workers lanes and a partition always maps to the same lane, so the
// messages of a partition are handled and committed in order. Offsets are
// committed only after the handler succeeds or the message is dead-lettered,
// which makes delivery at-least-once.
type Consumer struct {
	cfg       ConsumerConfig
	offset    int64
	log       *applogger.Logger
	hooks     Hooks
	handlers  map[string]MessageHandler
	newReader func(topic string) messageReader
	readers   []messageReader
	dlq       messageWriter
	sleep     func(context.Context, time.Duration) error

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewConsumer(cfg ConsumerConfig, opts ...ConsumerOption) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: brokers are required")
	}
	cfg = cfg.withDefaults()
	offset, err := startOffset(cfg.StartOffset)
	if err != nil {
		return nil, fmt.Errorf("kafka: %w", err)
	}

	c := &Consumer{
		cfg:      cfg,
		offset:   offset,
		log:      applogger.Nop(),
		handlers: make(map[string]MessageHandler),
		sleep:    sleepCtx,
	}
	c.newReader = func(topic string) messageReader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:     c.cfg.Brokers,
			GroupID:     c.cfg.GroupID,
			Topic:       topic,
			MinBytes:    c.cfg.MinBytes,
			MaxBytes:    c.cfg.MaxBytes,
			StartOffset: c.offset,
		})
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Topic: cfg.DLQTopic, Balancer: &kafka.Hash{}}
	}
	for _, o := range opts {
		o(c)
	}
	initConsumerMetrics()
	return c, nil
}

// RegisterHandler adds h for its topic. A second handler for a topic is ignored.
func (c *Consumer) RegisterHandler(h MessageHandler) {
	if _, ok := c.handlers[h.Topic()]; ok {
		c.log.Warn("kafka.consumer.duplicate_handler", applogger.String("topic", h.Topic()))
		return
	}
	c.handlers[h.Topic()] = h
}

// Start opens one reader per registered topic and returns immediately.
func (c *Consumer) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	for topic, h := range c.handlers {
		r := c.newReader(topic)
		c.readers = append(c.readers, r)

		lanes := make([]chan kafka.Message, c.cfg.Workers)
		for i := range lanes {
			lanes[i] = make(chan kafka.Message, c.cfg.QueueSize)
			c.wg.Add(1)
			go c.work(ctx, r, h, lanes[i])
		}
		c.wg.Add(1)
		go c.fetch(ctx, topic, r, lanes)
	}
	c.log.Info("kafka.consumer.started",
		applogger.String("group", c.cfg.GroupID),
		applogger.Int("topics", len(c.handlers)),
		applogger.Int("workers", c.cfg.Workers))
	return nil
}

// Stop cancels in-flight handling and waits for the workers. Messages that
// were fetched but not committed are delivered again to the next member.
func (c *Consumer) Stop(ctx context.Context) error {
	var err error
	c.stopOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		done := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = fmt.Errorf("kafka: consumer stop: %w", ctx.Err())
		}
		for _, r := range c.readers {
			if cerr := r.Close(); cerr != nil {
				c.log.Warn("kafka.consumer.reader_close_failed", applogger.Error(cerr))
			}
		}
		if c.dlq != nil {
			if cerr := c.dlq.Close(); cerr != nil {
				c.log.Warn("kafka.consumer.dlq_close_failed", applogger.Error(cerr))
			}
		}
		c.log.Info("kafka.consumer.stopped")
	})
	return err
}

func (c *Consumer) fetch(ctx context.Context, topic string, r messageReader, lanes []chan kafka.Message) {
	defer c.wg.Done()
	defer func() {
		for _, l := range lanes {
			close(l)
		}
	}()
	for {
		km, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Warn("kafka.consumer.fetch_failed", applogger.String("topic", topic), applogger.Error(err))
			if c.sleep(ctx, c.cfg.BackoffMin) != nil {
				return
			}
			continue
		}
		select {
		case lanes[km.Partition%len(lanes)] <- km:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Consumer) work(ctx context.Context, r messageReader, h MessageHandler, lane <-chan kafka.Message) {
	defer c.wg.Done()
	for km := range lane {
		if ctx.Err() != nil {
			continue
		}
		c.process(ctx, r, h, km)
	}
}

func (c *Consumer) process(ctx context.Context, r messageReader, h MessageHandler, km kafka.Message) {
	start := time.Now()
	err := c.handle(WithTraceID(ctx, header(km, traceHeader)), h, km)
	if ctx.Err() != nil {
		// shutting down: leave the offset for the next member
		return
	}
	result := "ok"
	if err != nil {
		result = "dead_letter"
		c.deadLetter(ctx, km, err)
	}
	observeHandled(km.Topic, result, time.Since(start))

	if err := c.commit(ctx, r, km); err != nil {
		c.log.Error("kafka.consumer.commit_failed",
			applogger.String("topic", km.Topic),
			applogger.Int("partition", km.Partition),
			applogger.Int64("offset", km.Offset),
			applogger.Error(err))
	}
}

func (c *Consumer) handle(ctx context.Context, h MessageHandler, km kafka.Message) error {
	ctx, err := c.hooks.Before(ctx, km)
	if err != nil {
		c.hooks.After(ctx, km, err)
		return err
	}
	for attempt := 0; ; attempt++ {
		err = callHandler(ctx, h, km.Value)
		if err == nil || attempt >= c.cfg.RetryMax || ctx.Err() != nil {
			break
		}
		if c.sleep(ctx, backoff(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)) != nil {
			break
		}
	}
	c.hooks.After(ctx, km, err)
	return err
}

func callHandler(ctx context.Context, h MessageHandler, b []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("kafka: handler panic: %v", r)
		}
	}()
	return h.Handle(ctx, b)
}

// deadLetter copies a failed message to the DLQ topic with its origin and the
// last error in headers. Without a DLQ topic the message is logged and dropped.
func (c *Consumer) deadLetter(ctx context.Context, km kafka.Message, cause error) {
	fields := []applogger.Field{
		applogger.String("topic", km.Topic),
		applogger.Int("partition", km.Partition),
		applogger.Int64("offset", km.Offset),
		applogger.String("trace_id", header(km, traceHeader)),
		applogger.Error(cause),
	}
	if c.dlq == nil {
		c.log.Error("kafka.consumer.message_dropped", fields...)
		return
	}
	headers := append([]kafka.Header{
		{Key: "source_topic", Value: []byte(km.Topic)},
		{Key: "source_offset", Value: []byte(fmt.Sprint(km.Offset))},
		{Key: "error", Value: []byte(cause.Error())},
	}, km.Headers...)
	err := c.dlq.WriteMessages(ctx, kafka.Message{Key: km.Key, Value: km.Value, Headers: headers})
	if err != nil {
		c.log.Error("kafka.consumer.dlq_failed", append(fields, applogger.String("dlq_error", err.Error()))...)
		return
	}
	c.log.Warn("kafka.consumer.dead_lettered", fields...)
}

func (c *Consumer) commit(ctx context.Context, r messageReader, km kafka.Message) error {
	var err error
	for attempt := 0; attempt <= c.cfg.RetryMax; attempt++ {
		if err = r.CommitMessages(ctx, km); err == nil {
			return nil
		}
		if c.sleep(ctx, backoff(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)) != nil {
			break
		}
	}
	return err
}

// backoff doubles from lo per attempt, capped at hi, with up to 50% jitter.
func backoff(lo, hi time.Duration, attempt int) time.Duration {
	d := lo
	for i := 0; i < attempt && d < hi; i++ {
		d *= 2
	}
	if d > hi {
		d = hi
	}
	if half := int64(d / 2); half > 0 {
		d = time.Duration(half + rand.Int63n(half+1))
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var (
	consumerOnce     sync.Once
	consumerHandled  *prometheus.CounterVec
	consumerDuration *prometheus.HistogramVec
)

func initConsumerMetrics() {
	consumerOnce.Do(func() {
		consumerHandled = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "swingdesk_kafka_handled_total",
			Help: "Consumed messages by topic and result.",
		}, []string{"topic", "result"})
		consumerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "swingdesk_kafka_handle_seconds",
			Help:    "Handling time per message including retries.",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"})
	})
}

func observeHandled(topic, result string, d time.Duration) {
	if consumerHandled == nil {
		return
	}
	consumerHandled.WithLabelValues(topic, result).Inc()
	consumerDuration.WithLabelValues(topic).Observe(d.Seconds())
}
