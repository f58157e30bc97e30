package logger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type capturePublisher struct {
	mu      sync.Mutex
	topic   string
	batches [][]AggregatedLogEntry
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic = topic
	p.batches = append(p.batches, payload.([]AggregatedLogEntry))
	return nil
}

func (p *capturePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.batches)
}

func TestCollectorAggregatesDuplicateErrors(t *testing.T) {
	pub := &capturePublisher{}
	l := Nop()
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 2, Topic: "desk.logs", Publisher: pub})

	for i := 0; i < 3; i++ {
		l.Error("fetch failed", String("instrument", "ABC"), Error(errors.New("timeout")))
	}
	l.Warn("ignored without IncludeWarn")
	l.Error("fetch failed", String("instrument", "XYZ"), Error(errors.New("timeout")))

	deadline := time.Now().Add(2 * time.Second)
	for pub.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if pub.count() != 1 {
		t.Fatalf("expected one flushed batch, got %d", pub.count())
	}
	batch := pub.batches[0]
	if len(batch) != 2 || pub.topic != "desk.logs" {
		t.Fatalf("unexpected batch %+v", batch)
	}
	for _, e := range batch {
		if e.Fields["instrument"] == "ABC" && e.Count != 3 {
			t.Fatalf("expected ABC counted 3 times, got %d", e.Count)
		}
	}
	l.RemoveCollector()
}

func TestWithCarriesFields(t *testing.T) {
	l := Nop().With(String("run_id", "r1"), Float("score", 0.5))
	if l == nil {
		t.Fatalf("expected child logger")
	}
	l.Info("ok", Int("n", 1))
}
