package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"SwingDesk/internal/domain/models"
	domrepo "SwingDesk/internal/domain/repository"
	pkgkafka "SwingDesk/pkg/kafka"
	applogger "SwingDesk/pkg/logger"
)

// OutcomeEventsHandler consumes outcome events published by other
// processes and feeds them to the outcome tracker.
type OutcomeEventsHandler struct {
	topic   string
	ledger  domrepo.LedgerTx
	sink    domrepo.OutcomeSink
	metrics domrepo.Metrics
}

func NewOutcomeEventsHandler(topic string, ledger domrepo.LedgerTx, sink domrepo.OutcomeSink, metrics domrepo.Metrics) *OutcomeEventsHandler {
	return &OutcomeEventsHandler{topic: topic, ledger: ledger, sink: sink, metrics: metrics}
}

func (h *OutcomeEventsHandler) Topic() string { return h.topic }

// Handle decodes one event. Events for rows that no longer exist are dropped.
func (h *OutcomeEventsHandler) Handle(ctx context.Context, b []byte) error {
	var ev models.OutcomeEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		h.recordError("outcome_unmarshal")
		// poison message: retrying cannot help
		return nil
	}
	if !ev.At.IsZero() && h.metrics != nil {
		h.metrics.RecordLatency("outcome_event_lag", time.Since(ev.At).Seconds())
	}

	switch ev.Kind {
	case models.OutcomePositionClosed:
		p, err := h.ledger.GetPosition(ctx, ev.PositionID)
		if errors.Is(err, models.ErrPositionNotFound) {
			return nil
		}
		if err != nil {
			h.recordError("outcome_load")
			return fmt.Errorf("load position %d: %w", ev.PositionID, err)
		}
		return h.sink.PositionClosed(ctx, p)
	case models.OutcomeSuggestionSkipped:
		s, err := h.ledger.GetSuggestion(ctx, ev.SuggestionID)
		if errors.Is(err, models.ErrSuggestionNotFound) {
			return nil
		}
		if err != nil {
			h.recordError("outcome_load")
			return fmt.Errorf("load suggestion %d: %w", ev.SuggestionID, err)
		}
		return h.sink.SuggestionSkipped(ctx, s)
	default:
		h.recordError("outcome_kind")
		return nil
	}
}

func (h *OutcomeEventsHandler) recordError(kind string) {
	if h.metrics != nil {
		h.metrics.RecordError(kind)
	}
}

var _ pkgkafka.MessageHandler = (*OutcomeEventsHandler)(nil)

// NewOutcomeConsumerHook rejects empty events and logs failed deliveries
// with the trace id of the publishing pass.
func NewOutcomeConsumerHook(l *applogger.Logger) pkgkafka.Hook {
	if l == nil {
		l = applogger.Nop()
	}
	return pkgkafka.HookFuncs{
		BeforeFunc: func(ctx context.Context, km kafka.Message) (context.Context, error) {
			if len(km.Value) == 0 {
				return ctx, errors.New("empty outcome event")
			}
			return ctx, nil
		},
		AfterFunc: func(ctx context.Context, km kafka.Message, err error) {
			if err == nil {
				return
			}
			l.Warn("outcome.event_failed",
				applogger.String("topic", km.Topic),
				applogger.Int64("offset", km.Offset),
				applogger.String("trace_id", pkgkafka.TraceID(ctx)),
				applogger.Error(err))
		},
	}
}
