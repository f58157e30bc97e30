package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string           `yaml:"environment" default:"development"`
	Server      ServerConfig     `yaml:"server"`
	Logging     LoggingConfig    `yaml:"logging"`
	Metrics     MetricsConfig    `yaml:"metrics"`
	Postgres    PostgresConfig   `yaml:"postgres"`
	ClickHouse  ClickHouseConfig `yaml:"clickhouse"`
	Redis       RedisConfig      `yaml:"redis"`
	Kafka       KafkaConfig      `yaml:"kafka"`
	MarketData  MarketDataConfig `yaml:"market_data"`
	Broker      BrokerConfig     `yaml:"broker"`
	Alpaca      AlpacaConfig     `yaml:"alpaca"`
	Screening   ScreeningConfig  `yaml:"screening"`
	Learning    LearningConfig   `yaml:"learning"`
	Reconcile   ReconcileConfig  `yaml:"reconcile"`
	Risk        RiskConfig       `yaml:"risk"`
}

type ServerConfig struct {
	Host            string        `yaml:"host" default:"0.0.0.0"`
	Port            int           `yaml:"port" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"120s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	SlowRequest     time.Duration `yaml:"slow_request" default:"30s"`
	CORSOrigins     []string      `yaml:"cors_origins"`
}

type LoggingConfig struct {
	Level           string        `yaml:"level" default:"info"`
	Format          string        `yaml:"format" default:"json"`
	Output          string        `yaml:"output" default:"stdout"`
	Collect         bool          `yaml:"collect"`
	CollectWarn     bool          `yaml:"collect_warn"`
	CollectInterval time.Duration `yaml:"collect_interval" default:"30s"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled" default:"true"`
}

type PostgresConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Host           string        `yaml:"host" default:"localhost"`
	Port           int           `yaml:"port" default:"5432"`
	Database       string        `yaml:"database" default:"swingdesk"`
	User           string        `yaml:"user" default:"swingdesk"`
	Password       string        `yaml:"password"`
	SSLMode        string        `yaml:"ssl_mode" default:"disable"`
	MaxConns       int32         `yaml:"max_conns" default:"10"`
	MinConns       int32         `yaml:"min_conns" default:"1"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"5s"`
	Migrate        bool          `yaml:"migrate" default:"true"`
}

type ClickHouseConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Host             string        `yaml:"host" default:"localhost"`
	Port             int           `yaml:"port" default:"9000"`
	Database         string        `yaml:"database" default:"swingdesk"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	AsyncInsert      bool          `yaml:"async_insert"`
	WaitForAsync     bool          `yaml:"wait_for_async_insert"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host" default:"localhost"`
	Port     int    `yaml:"port" default:"6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size" default:"10"`
	Prefix   string `yaml:"prefix" default:"swingdesk"`
}

// KafkaTopics overrides single topic names. Empty names are derived from
// kafka.topic_prefix.
type KafkaTopics struct {
	Candidates  string `yaml:"candidates"`
	Suggestions string `yaml:"suggestions"`
	Sync        string `yaml:"sync"`
	Outcomes    string `yaml:"outcomes"`
	Logs        string `yaml:"logs"`
	DLQ         string `yaml:"dlq"`
}

type KafkaProducerConfig struct {
	MaxAttempts  int           `yaml:"max_attempts" default:"5"`
	Linger       time.Duration `yaml:"linger" default:"50ms"`
	BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
	BatchSize    int           `yaml:"batch_size" default:"100"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
	Async        bool          `yaml:"async"`
}

type KafkaConsumerConfig struct {
	GroupID     string        `yaml:"group_id" default:"swingdesk-learning"`
	StartOffset string        `yaml:"start_offset" default:"earliest"`
	Workers     int           `yaml:"workers" default:"2"`
	QueueSize   int           `yaml:"queue_size" default:"64"`
	RetryMax    int           `yaml:"retry_max" default:"3"`
	BackoffMin  time.Duration `yaml:"backoff_min" default:"100ms"`
	BackoffMax  time.Duration `yaml:"backoff_max" default:"5s"`
	MinBytes    int           `yaml:"min_bytes" default:"1"`
	MaxBytes    int           `yaml:"max_bytes" default:"10485760"`
}

type KafkaConfig struct {
	Enabled      bool                `yaml:"enabled"`
	Brokers      []string            `yaml:"brokers"`
	TopicPrefix  string              `yaml:"topic_prefix" default:"swingdesk"`
	Topics       KafkaTopics         `yaml:"topics"`
	RequiredAcks int                 `yaml:"required_acks" default:"-1"`
	Compression  string              `yaml:"compression" default:"snappy"`
	Producer     KafkaProducerConfig `yaml:"producer"`
	Consumer     KafkaConsumerConfig `yaml:"consumer"`
}

// MarketDataConfig selects the bar and quote source. With store_bars the
// provider is fronted by the ClickHouse bar store.
type MarketDataConfig struct {
	Provider  string `yaml:"provider" default:"broker"`
	StoreBars bool   `yaml:"store_bars"`
}

type BrokerConfig struct {
	BaseURL          string        `yaml:"base_url" default:"https://api.kite.trade"`
	APIKey           string        `yaml:"api_key"`
	AccessToken      string        `yaml:"access_token"`
	Exchange         string        `yaml:"exchange" default:"NSE"`
	Timeout          time.Duration `yaml:"timeout" default:"10s"`
	Attempts         int           `yaml:"attempts" default:"3"`
	Backoff          time.Duration `yaml:"backoff" default:"250ms"`
	HistoricalPerSec float64       `yaml:"historical_per_sec" default:"3"`
	QuotePerSec      float64       `yaml:"quote_per_sec" default:"1"`
}

type AlpacaConfig struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url" default:"https://paper-api.alpaca.markets"`
	Feed      string `yaml:"feed" default:"iex"`
}

type ScreeningConfig struct {
	Universe          []string           `yaml:"universe"`
	Interval          string             `yaml:"interval" default:"day"`
	LookbackDays      int                `yaml:"lookback_days" default:"180"`
	MinBars           int                `yaml:"min_bars" default:"60"`
	Workers           int                `yaml:"workers" default:"8"`
	InstrumentTimeout time.Duration      `yaml:"instrument_timeout" default:"15s"`
	MinRiskReward     float64            `yaml:"min_risk_reward" default:"2.0"`
	Weights           map[string]float64 `yaml:"weights"`
	Every             time.Duration      `yaml:"every"`
	ExpireAfterDays   int                `yaml:"expire_after_days" default:"3"`
}

type LearningConfig struct {
	Alpha   float64       `yaml:"alpha" default:"0.1"`
	LockTTL time.Duration `yaml:"lock_ttl" default:"5m"`
}

type ReconcileConfig struct {
	FundNoiseThreshold float64       `yaml:"fund_noise_threshold" default:"500"`
	StopPct            float64       `yaml:"stop_pct" default:"0.06"`
	TargetPct          float64       `yaml:"target_pct" default:"0.10"`
	FetchTimeout       time.Duration `yaml:"fetch_timeout" default:"20s"`
	Every              time.Duration `yaml:"every"`
}

type RiskConfig struct {
	FundSize         float64 `yaml:"fund_size" default:"100000"`
	MaxRiskPerTrade  float64 `yaml:"max_risk_per_trade_pct" default:"0.01"`
	MaxOpenPositions int     `yaml:"max_open_positions" default:"10"`
}

// Load reads and parses a YAML configuration file. Missing keys keep their
// defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	c, err := Parse(b)
	if err != nil {
		return nil, err
	}

	// Validate required fields
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return c, nil
}

// Parse decodes YAML over the defaults without validating.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads an optional .env file, the YAML config and then applies
// environment overrides.
func LoadWithEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	c, err := Parse(b)
	if err != nil {
		return nil, err
	}
	c.applyEnv(os.Getenv)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	set := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set("SWINGDESK_ENV", &c.Environment)
	set("BROKER_API_KEY", &c.Broker.APIKey)
	set("BROKER_ACCESS_TOKEN", &c.Broker.AccessToken)
	set("ALPACA_API_KEY", &c.Alpaca.APIKey)
	set("ALPACA_API_SECRET", &c.Alpaca.APISecret)
	set("MARKET_DATA_PROVIDER", &c.MarketData.Provider)
	set("POSTGRES_HOST", &c.Postgres.Host)
	set("POSTGRES_PASSWORD", &c.Postgres.Password)
	set("CLICKHOUSE_HOST", &c.ClickHouse.Host)
	set("CLICKHOUSE_PASSWORD", &c.ClickHouse.Password)
	set("REDIS_HOST", &c.Redis.Host)
	set("REDIS_PASSWORD", &c.Redis.Password)
	set("LOG_LEVEL", &c.Logging.Level)

	if v := getenv("UNIVERSE"); v != "" {
		c.Screening.Universe = splitList(v)
	}
	if v := getenv("CORS_ORIGINS"); v != "" {
		c.Server.CORSOrigins = splitList(v)
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
		c.Kafka.Enabled = true
	}
	if v := getenv("FUND_SIZE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Risk.FundSize = f
		}
	}
	if v := getenv("SERVER_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	switch c.MarketData.Provider {
	case "broker":
		if c.Broker.APIKey == "" || c.Broker.AccessToken == "" {
			return fmt.Errorf("broker.api_key and broker.access_token are required for provider 'broker'")
		}
	case "alpaca":
		if c.Alpaca.APIKey == "" || c.Alpaca.APISecret == "" {
			return fmt.Errorf("alpaca.api_key and alpaca.api_secret are required for provider 'alpaca'")
		}
	default:
		return fmt.Errorf("market_data.provider must be 'broker' or 'alpaca', got '%s'", c.MarketData.Provider)
	}
	if c.MarketData.StoreBars && !c.ClickHouse.Enabled {
		return fmt.Errorf("market_data.store_bars requires clickhouse.enabled")
	}
	if len(c.Screening.Universe) == 0 {
		return fmt.Errorf("screening.universe cannot be empty")
	}
	if c.Screening.MinRiskReward <= 0 {
		return fmt.Errorf("screening.min_risk_reward must be positive")
	}
	for k, w := range c.Screening.Weights {
		if w < 0.1 || w > 2.0 {
			return fmt.Errorf("screening.weights[%s] must be within [0.1, 2.0], got %v", k, w)
		}
	}
	if c.Learning.Alpha <= 0 || c.Learning.Alpha > 1 {
		return fmt.Errorf("learning.alpha must be in (0, 1]")
	}
	if c.Risk.FundSize <= 0 {
		return fmt.Errorf("risk.fund_size must be positive")
	}
	if c.Risk.MaxRiskPerTrade <= 0 || c.Risk.MaxRiskPerTrade >= 1 {
		return fmt.Errorf("risk.max_risk_per_trade_pct must be in (0, 1)")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	return nil
}
