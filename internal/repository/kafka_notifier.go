package repository

import (
	"context"
	"strconv"
	"time"

	"SwingDesk/internal/domain/models"
	domrepo "SwingDesk/internal/domain/repository"
	pkgkafka "SwingDesk/pkg/kafka"
	applogger "SwingDesk/pkg/logger"
)

// KafkaNotifier implements Notifier on a Kafka producer.
type KafkaNotifier struct {
	producer *pkgkafka.Producer
	topics   pkgkafka.Topics
}

var _ domrepo.Notifier = (*KafkaNotifier)(nil)

// NewKafkaNotifier creates Kafka notifier.
func NewKafkaNotifier(producer *pkgkafka.Producer, topics pkgkafka.Topics) *KafkaNotifier {
	return &KafkaNotifier{producer: producer, topics: topics}
}

type candidateMessage struct {
	RunID          string              `json:"run_id"`
	Rank           int                 `json:"rank"`
	WeightsVersion int64               `json:"weights_version"`
	Candidate      models.Candidate    `json:"candidate"`
	Signals        []models.Projection `json:"signals"`
}

// NotifyCandidates publishes one message per candidate keyed by instrument.
func (n *KafkaNotifier) NotifyCandidates(ctx context.Context, res *models.ScreeningResult) error {
	if res == nil || len(res.Candidates) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(res.Candidates))
	for i := range res.Candidates {
		c := &res.Candidates[i]
		msgs[i] = pkgkafka.Message{
			Key: []byte(c.Instrument),
			Value: candidateMessage{
				RunID:          res.RunID,
				Rank:           i + 1,
				WeightsVersion: res.WeightsVersion,
				Candidate:      *c,
				Signals:        c.Projections(),
			},
		}
	}
	return n.producer.PublishBatch(ctx, n.topics.Candidates, msgs)
}

func (n *KafkaNotifier) NotifySuggestion(ctx context.Context, s *models.Suggestion) error {
	return n.producer.Publish(ctx, n.topics.Suggestions, []byte(s.Instrument), s)
}

func (n *KafkaNotifier) NotifySync(ctx context.Context, r *models.SyncResult) error {
	return n.producer.Publish(ctx, n.topics.Sync, []byte(r.RunID), r)
}

func (n *KafkaNotifier) Close() error {
	if n.producer != nil {
		return n.producer.Close()
	}
	return nil
}

// KafkaOutcomeSink publishes learning inputs as OutcomeEvents so that the
// outcome tracker can run in a separate consumer.
type KafkaOutcomeSink struct {
	producer *pkgkafka.Producer
	topic    string
}

var _ domrepo.OutcomeSink = (*KafkaOutcomeSink)(nil)

func NewKafkaOutcomeSink(producer *pkgkafka.Producer, topic string) *KafkaOutcomeSink {
	return &KafkaOutcomeSink{producer: producer, topic: topic}
}

func (k *KafkaOutcomeSink) PositionClosed(ctx context.Context, p *models.Position) error {
	ev := models.OutcomeEvent{Kind: models.OutcomePositionClosed, PositionID: p.ID, At: time.Now().UTC()}
	if p.SuggestionID != nil {
		ev.SuggestionID = *p.SuggestionID
	}
	return k.producer.Publish(ctx, k.topic, []byte(strconv.FormatInt(p.ID, 10)), ev)
}

func (k *KafkaOutcomeSink) SuggestionSkipped(ctx context.Context, s *models.Suggestion) error {
	ev := models.OutcomeEvent{Kind: models.OutcomeSuggestionSkipped, SuggestionID: s.ID, At: time.Now().UTC()}
	return k.producer.Publish(ctx, k.topic, []byte(strconv.FormatInt(s.ID, 10)), ev)
}

// LogNotifier writes notifications to the log. Used when Kafka is disabled.
type LogNotifier struct {
	l *applogger.Logger
}

var _ domrepo.Notifier = (*LogNotifier)(nil)

func NewLogNotifier(l *applogger.Logger) *LogNotifier {
	if l == nil {
		l = applogger.Nop()
	}
	return &LogNotifier{l: l}
}

func (n *LogNotifier) NotifyCandidates(_ context.Context, res *models.ScreeningResult) error {
	for i, c := range res.Candidates {
		n.l.Info("notify.candidate",
			applogger.String("run_id", res.RunID),
			applogger.Int("rank", i+1),
			applogger.String("instrument", c.Instrument),
			applogger.String("direction", string(c.Direction)),
			applogger.Float("score", c.CompositeScore),
			applogger.Float("risk_reward", c.RiskReward))
	}
	return nil
}

func (n *LogNotifier) NotifySuggestion(_ context.Context, s *models.Suggestion) error {
	n.l.Info("notify.suggestion",
		applogger.Int64("id", s.ID),
		applogger.String("instrument", s.Instrument),
		applogger.Int("qty", s.SuggestedQty))
	return nil
}

func (n *LogNotifier) NotifySync(_ context.Context, r *models.SyncResult) error {
	n.l.Info("notify.sync",
		applogger.String("run_id", r.RunID),
		applogger.Int("created", len(r.NewPositions)),
		applogger.Int("closed", len(r.ClosedPositions)),
		applogger.Float("fund_change", r.FundChange))
	return nil
}

func (n *LogNotifier) Close() error { return nil }
