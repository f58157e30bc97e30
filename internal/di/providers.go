package di

import (
	"context"
	"fmt"
	"time"

	domrepo "SwingDesk/internal/domain/repository"
	domsvc "SwingDesk/internal/domain/service"
	"SwingDesk/internal/handler/api"
	internalrepo "SwingDesk/internal/repository"
	"SwingDesk/internal/service/alpaca"
	"SwingDesk/internal/service/broker"
	"SwingDesk/internal/services/detectors"
	"SwingDesk/internal/usecase"
	"SwingDesk/pkg/cache"
	pkgch "SwingDesk/pkg/clickhouse"
	"SwingDesk/pkg/config"
	pkgkafka "SwingDesk/pkg/kafka"
	applogger "SwingDesk/pkg/logger"
	"SwingDesk/pkg/metrics"
	pkgpg "SwingDesk/pkg/postgres"
	"SwingDesk/pkg/server"
)

// MarketGateway bundles the external data sources chosen by market_data.provider.
type MarketGateway struct {
	Bars    domrepo.MarketData
	Quotes  domrepo.QuoteProvider
	Account domrepo.BrokerAccount
}

// ProvideLogger creates the application logger from the logging section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Output:  cfg.Logging.Output,
		Service: "swingdesk",
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() domrepo.Metrics {
	return metrics.New()
}

// ProvideLedger opens the Postgres ledger, or an in-memory one when Postgres is disabled.
func ProvideLedger(cfg *config.Config, l *applogger.Logger) (domrepo.LedgerStore, error) {
	if !cfg.Postgres.Enabled {
		l.Warn("postgres disabled, ledger is in-memory")
		return internalrepo.NewMemoryLedger(), nil
	}
	client, err := pkgpg.NewClient(context.Background(), pkgpg.Config{
		Host:           cfg.Postgres.Host,
		Port:           cfg.Postgres.Port,
		Database:       cfg.Postgres.Database,
		User:           cfg.Postgres.User,
		Password:       cfg.Postgres.Password,
		SSLMode:        cfg.Postgres.SSLMode,
		MaxConns:       cfg.Postgres.MaxConns,
		MinConns:       cfg.Postgres.MinConns,
		ConnectTimeout: cfg.Postgres.ConnectTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("postgres client: %w", err)
	}
	ledger := internalrepo.NewPostgresLedger(client)
	if cfg.Postgres.Migrate {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := ledger.Migrate(ctx); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("postgres schema: %w", err)
		}
	}
	return ledger, nil
}

// ProvideCache creates the Redis cache, or a memory cache when Redis is disabled.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	if !cfg.Redis.Enabled {
		return cache.NewMemoryCache(), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := cache.NewRedisCache(ctx, cache.RedisConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
		Prefix:   cfg.Redis.Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return c, nil
}

// ProvideStateStore keeps weights, balance and locks in the cache.
func ProvideStateStore(c cache.Service) domrepo.StateStore {
	return internalrepo.NewCacheStateStore(c)
}

// ProvideKafkaTopics resolves topic names from overrides and the prefix.
func ProvideKafkaTopics(cfg *config.Config) pkgkafka.Topics {
	t := cfg.Kafka.Topics
	return pkgkafka.Topics{
		Candidates:  t.Candidates,
		Suggestions: t.Suggestions,
		Sync:        t.Sync,
		Outcomes:    t.Outcomes,
		Logs:        t.Logs,
		DLQ:         t.DLQ,
	}.WithDefaults(cfg.Kafka.TopicPrefix)
}

// ProvideKafkaProducer creates a Kafka producer. It returns nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	p := cfg.Kafka.Producer
	producer, err := pkgkafka.NewProducer(pkgkafka.ProducerConfig{
		Brokers:      cfg.Kafka.Brokers,
		RequiredAcks: cfg.Kafka.RequiredAcks,
		Compression:  cfg.Kafka.Compression,
		MaxAttempts:  p.MaxAttempts,
		WriteTimeout: p.WriteTimeout,
		ReadTimeout:  p.ReadTimeout,
		BatchSize:    p.BatchSize,
		BatchBytes:   p.BatchBytes,
		Linger:       p.Linger,
		Async:        p.Async,
	})
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideNotifier publishes to Kafka when a producer exists, otherwise logs.
func ProvideNotifier(producer *pkgkafka.Producer, topics pkgkafka.Topics, l *applogger.Logger) domrepo.Notifier {
	if producer == nil {
		return internalrepo.NewLogNotifier(l)
	}
	return internalrepo.NewKafkaNotifier(producer, topics)
}

// ProvideClickHouseClient creates a ClickHouse client and its bar tables. It
// returns nil when ClickHouse is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	ch := cfg.ClickHouse
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := pkgch.NewClient(ctx, pkgch.Config{
		Host:             ch.Host,
		Port:             ch.Port,
		Database:         ch.Database,
		User:             ch.User,
		Password:         ch.Password,
		UseHTTP:          ch.UseHTTP,
		AsyncInsert:      ch.AsyncInsert,
		WaitForAsync:     ch.WaitForAsync,
		DialTimeout:      ch.DialTimeout,
		ReadTimeout:      ch.ReadTimeout,
		MaxExecutionTime: ch.MaxExecutionTime,
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	if err := client.Migrate(ctx, internalrepo.BarSchema(client.Database())...); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideMarketGateway selects the bar, quote and account sources.
func ProvideMarketGateway(cfg *config.Config, ch *pkgch.Client, l *applogger.Logger) *MarketGateway {
	var gw MarketGateway
	switch cfg.MarketData.Provider {
	case "alpaca":
		c := alpaca.NewClient(alpaca.Config{
			APIKey:    cfg.Alpaca.APIKey,
			APISecret: cfg.Alpaca.APISecret,
			BaseURL:   cfg.Alpaca.BaseURL,
			Feed:      cfg.Alpaca.Feed,
		}, l)
		gw = MarketGateway{Bars: c, Quotes: c, Account: c}
	default:
		c := broker.NewClient(broker.Config{
			BaseURL:     cfg.Broker.BaseURL,
			APIKey:      cfg.Broker.APIKey,
			AccessToken: cfg.Broker.AccessToken,
			Exchange:    cfg.Broker.Exchange,
			Timeout:     cfg.Broker.Timeout,
			Attempts:    cfg.Broker.Attempts,
			Backoff:     cfg.Broker.Backoff,
			Limits:      broker.RateLimits(cfg.Broker.HistoricalPerSec, cfg.Broker.QuotePerSec),
		}, l)
		gw = MarketGateway{Bars: c, Quotes: c, Account: c}
	}
	if cfg.MarketData.StoreBars && ch != nil {
		gw.Bars = internalrepo.NewReadThroughMarketData(internalrepo.NewCHBarStore(ch, l), gw.Bars, l)
	}
	return &gw
}

// ProvideDetectors builds the four built-in detectors on the screening timeframe.
func ProvideDetectors(cfg *config.Config) ([]domsvc.Detector, error) {
	tf := domrepo.NormalizeInterval(cfg.Screening.Interval).Timeframe()
	dets, err := detectors.New(detectors.AllIDs, tf)
	if err != nil {
		return nil, fmt.Errorf("detectors: %w", err)
	}
	return dets, nil
}

func ProvideSignalAggregator(dets []domsvc.Detector, cfg *config.Config, m domrepo.Metrics, l *applogger.Logger) *usecase.SignalAggregator {
	// below this no detector can fire and every instrument reports no signal
	if need := detectors.MinLookback(dets); cfg.Screening.MinBars < need {
		l.Warn("screening.min_bars_below_lookback",
			applogger.Int("min_bars", cfg.Screening.MinBars),
			applogger.Int("lookback", need))
	}
	return usecase.NewSignalAggregator(dets, cfg.Screening.MinRiskReward, m, l)
}

func ProvideWeightBook(cfg *config.Config, ledger domrepo.LedgerStore, state domrepo.StateStore, l *applogger.Logger) *usecase.WeightBook {
	return usecase.NewWeightBook(cfg.Screening.Weights, ledger, state, l)
}

func ProvideOutcomeTracker(cfg *config.Config, ledger domrepo.LedgerStore, agg *usecase.SignalAggregator, l *applogger.Logger) *usecase.OutcomeTracker {
	return usecase.NewOutcomeTracker(ledger, agg.DetectorIDs(), cfg.Learning.Alpha, l)
}

// ProvideOutcomeSink routes learning inputs through Kafka when enabled so a
// single consumer group owns the performance rows; otherwise the tracker is
// called inline.
func ProvideOutcomeSink(producer *pkgkafka.Producer, tracker *usecase.OutcomeTracker, topics pkgkafka.Topics) domrepo.OutcomeSink {
	if producer == nil {
		return tracker
	}
	return internalrepo.NewKafkaOutcomeSink(producer, topics.Outcomes)
}

func ProvideCandles(gw *MarketGateway) *usecase.CandlesUseCase {
	return usecase.NewCandlesUseCase(gw.Bars)
}

func ProvideScreening(
	cfg *config.Config,
	candles *usecase.CandlesUseCase,
	agg *usecase.SignalAggregator,
	weights *usecase.WeightBook,
	notifier domrepo.Notifier,
	m domrepo.Metrics,
	l *applogger.Logger,
) *usecase.ScreeningUseCase {
	return usecase.NewScreeningUseCase(usecase.ScreeningConfig{
		Universe:          cfg.Screening.Universe,
		Interval:          domrepo.NormalizeInterval(cfg.Screening.Interval),
		LookbackDays:      cfg.Screening.LookbackDays,
		MinBars:           cfg.Screening.MinBars,
		Workers:           cfg.Screening.Workers,
		InstrumentTimeout: cfg.Screening.InstrumentTimeout,
	}, candles, agg, weights, notifier, m, l)
}

func ProvideSuggestions(
	cfg *config.Config,
	ledger domrepo.LedgerStore,
	sink domrepo.OutcomeSink,
	notifier domrepo.Notifier,
	l *applogger.Logger,
) *usecase.SuggestionService {
	return usecase.NewSuggestionService(usecase.RiskConfig{
		FundSize:         cfg.Risk.FundSize,
		MaxRiskPerTrade:  cfg.Risk.MaxRiskPerTrade,
		MaxOpenPositions: cfg.Risk.MaxOpenPositions,
	}, ledger, sink, notifier, l)
}

func ProvidePositions(ledger domrepo.LedgerStore, sink domrepo.OutcomeSink, l *applogger.Logger) *usecase.PositionService {
	return usecase.NewPositionService(ledger, sink, l)
}

func ProvideCalibrator(
	cfg *config.Config,
	ledger domrepo.LedgerStore,
	state domrepo.StateStore,
	weights *usecase.WeightBook,
	m domrepo.Metrics,
	l *applogger.Logger,
) *usecase.Calibrator {
	return usecase.NewCalibrator(ledger, state, weights, m, cfg.Learning.LockTTL, l)
}

func ProvideReconciler(
	cfg *config.Config,
	gw *MarketGateway,
	ledger domrepo.LedgerStore,
	state domrepo.StateStore,
	sink domrepo.OutcomeSink,
	notifier domrepo.Notifier,
	m domrepo.Metrics,
	l *applogger.Logger,
) *usecase.Reconciler {
	return usecase.NewReconciler(usecase.ReconcileConfig{
		FundNoiseThreshold: cfg.Reconcile.FundNoiseThreshold,
		StopPct:            cfg.Reconcile.StopPct,
		TargetPct:          cfg.Reconcile.TargetPct,
		FetchTimeout:       cfg.Reconcile.FetchTimeout,
	}, gw.Account, gw.Quotes, ledger, state, sink, notifier, m, l)
}

// ProvideOutcomeConsumer creates the outcome-topic consumer. It returns nil when Kafka is disabled.
func ProvideOutcomeConsumer(cfg *config.Config, topics pkgkafka.Topics, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	c := cfg.Kafka.Consumer
	consumer, err := pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
		Brokers:     cfg.Kafka.Brokers,
		GroupID:     c.GroupID,
		StartOffset: c.StartOffset,
		Workers:     c.Workers,
		QueueSize:   c.QueueSize,
		RetryMax:    c.RetryMax,
		BackoffMin:  c.BackoffMin,
		BackoffMax:  c.BackoffMax,
		DLQTopic:    topics.DLQ,
		MinBytes:    c.MinBytes,
		MaxBytes:    c.MaxBytes,
	},
		pkgkafka.WithConsumerLogger(l),
		pkgkafka.WithConsumerHooks(usecase.NewOutcomeConsumerHook(l)),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideOutcomeEventsHandler feeds consumed outcome events to the tracker.
func ProvideOutcomeEventsHandler(topics pkgkafka.Topics, ledger domrepo.LedgerStore, tracker *usecase.OutcomeTracker, m domrepo.Metrics) *usecase.OutcomeEventsHandler {
	return usecase.NewOutcomeEventsHandler(topics.Outcomes, ledger, tracker, m)
}

func ProvideDeskHandler(
	l *applogger.Logger,
	screening *usecase.ScreeningUseCase,
	suggestions *usecase.SuggestionService,
	positions *usecase.PositionService,
	calibrator *usecase.Calibrator,
	reconciler *usecase.Reconciler,
	weights *usecase.WeightBook,
	ledger domrepo.LedgerStore,
) *api.DeskEchoHandler {
	return api.NewDeskEchoHandler(l, api.DeskServices{
		Screening:   screening,
		Suggestions: suggestions,
		Positions:   positions,
		Calibrator:  calibrator,
		Reconciler:  reconciler,
		Weights:     weights,
		Ledger:      ledger,
	})
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	handler *api.DeskEchoHandler,
	weights *usecase.WeightBook,
	screening *usecase.ScreeningUseCase,
	suggestions *usecase.SuggestionService,
	reconciler *usecase.Reconciler,
	consumer *pkgkafka.Consumer,
	outcomes *usecase.OutcomeEventsHandler,
	ledger domrepo.LedgerStore,
	state cache.Service,
	producer *pkgkafka.Producer,
	topics pkgkafka.Topics,
	notifier domrepo.Notifier,
	ch *pkgch.Client,
) *server.App {
	if producer != nil && cfg.Logging.Collect {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval: cfg.Logging.CollectInterval,
			Topic:        topics.Logs,
			IncludeWarn:  cfg.Logging.CollectWarn,
			Publisher:    producer,
		})
	}

	closers := []server.Closer{
		{Name: "ledger", Close: ledger.Close},
		{Name: "cache", Close: state.Close},
		// closes the Kafka producer when there is one
		{Name: "notifier", Close: notifier.Close},
	}
	if ch != nil {
		closers = append(closers, server.Closer{Name: "clickhouse", Close: ch.Close})
	}

	c := server.Components{
		Handler: handler,
		Warmup: func(ctx context.Context) error {
			_, err := weights.Load(ctx)
			return err
		},
		Jobs: []server.Job{
			{Name: "screen", Every: cfg.Screening.Every, Run: screenJob(cfg, screening, suggestions, l)},
			{Name: "sync", Every: cfg.Reconcile.Every, Run: func(ctx context.Context) error {
				_, err := reconciler.Sync(ctx)
				return err
			}},
		},
		Closers: closers,
	}
	if consumer != nil {
		c.Consumer = consumer
		c.Outcomes = outcomes
	}
	return server.New(cfg, l, c)
}

// screenJob expires stale suggestions, screens the configured universe and
// publishes the candidates.
func screenJob(cfg *config.Config, screening *usecase.ScreeningUseCase, suggestions *usecase.SuggestionService, l *applogger.Logger) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if days := cfg.Screening.ExpireAfterDays; days > 0 {
			n, err := suggestions.ExpireStale(ctx, time.Now().AddDate(0, 0, -days))
			if err != nil {
				l.Warn("expire stale suggestions failed", applogger.Error(err))
			} else if n > 0 {
				l.Info("stale suggestions expired", applogger.Int("count", n))
			}
		}
		res, err := screening.Run(ctx, usecase.ScreenParams{})
		if err != nil {
			return err
		}
		if len(res.Candidates) == 0 {
			return nil
		}
		_, err = suggestions.Publish(ctx, res.Candidates)
		return err
	}
}
