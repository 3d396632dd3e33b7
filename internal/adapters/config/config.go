package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/thxForu/perp-futures/pkg/errors"
)

type Config struct {
	App           AppConfig
	Engine        EngineConfig
	Orders        OrderConfig
	Postgres      PostgresConfig
	ClickHouse    ClickHouseConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Metrics       MetricsConfig
	ErrorTracking ErrorTrackingConfig
	Workers       WorkerConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"perp-futures"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Debug    bool   `envconfig:"DEBUG" default:"false"`
}

// EngineConfig carries the protocol parameters, all in basis points except
// the price feed addressing. PriceScale is the power-of-ten multiplier used
// to convert decimal feed prices into fixed-point integers.
type EngineConfig struct {
	FeeRateBps           int64  `envconfig:"ENGINE_FEE_RATE_BPS" default:"8"`
	MaintenanceMarginBps int64  `envconfig:"ENGINE_MAINTENANCE_MARGIN_BPS" default:"50"`
	LiquidationFeeBps    int64  `envconfig:"ENGINE_LIQUIDATION_FEE_BPS" default:"100"`
	MaxDiscountBps       int64  `envconfig:"ENGINE_MAX_DISCOUNT_BPS" default:"200"`
	PairIndex            uint32 `envconfig:"ENGINE_PAIR_INDEX" default:"0"`
	PriceScale           int32  `envconfig:"ENGINE_PRICE_SCALE" default:"8"`
}

// OrderConfig bounds what the order book accepts.
type OrderConfig struct {
	MinSize     int64         `envconfig:"ORDER_MIN_SIZE" default:"100"`
	MaxSize     int64         `envconfig:"ORDER_MAX_SIZE" default:"1000000000"`
	MinLeverage int           `envconfig:"ORDER_MIN_LEVERAGE" default:"2"`
	MaxLeverage int           `envconfig:"ORDER_MAX_LEVERAGE" default:"150"`
	MaxExpiry   time.Duration `envconfig:"ORDER_MAX_EXPIRY" default:"720h"`
}

type PostgresConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" required:"true"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" required:"true"`
	Password string `envconfig:"POSTGRES_PASSWORD" required:"true"`
	Database string `envconfig:"POSTGRES_DB" required:"true"`
	SSLMode  string `envconfig:"POSTGRES_SSL_MODE" default:"disable"`
	MaxConns int    `envconfig:"POSTGRES_MAX_CONNS" default:"25"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

type ClickHouseConfig struct {
	Host     string `envconfig:"CLICKHOUSE_HOST" required:"true"`
	Port     int    `envconfig:"CLICKHOUSE_PORT" default:"9000"`
	User     string `envconfig:"CLICKHOUSE_USER" default:"default"`
	Password string `envconfig:"CLICKHOUSE_PASSWORD"`
	Database string `envconfig:"CLICKHOUSE_DB" default:"perp"`
}

type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" required:"true"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type KafkaConfig struct {
	Brokers []string `envconfig:"KAFKA_BROKERS" required:"true"`
	GroupID string   `envconfig:"KAFKA_GROUP_ID" default:"perp-futures"`
}

type MetricsConfig struct {
	Enabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
	Addr    string `envconfig:"METRICS_ADDR" default:":9100"`
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"true"`
	Provider    string `envconfig:"ERROR_TRACKING_PROVIDER" default:"sentry"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

// WorkerConfig contains intervals for the background loops. The liquidation
// scan runs hot; the order sweep can afford to be slower because expiry is
// also enforced at execution time.
type WorkerConfig struct {
	LiquidatorInterval    time.Duration `envconfig:"WORKER_LIQUIDATOR_INTERVAL" default:"1s"`
	LiquidatorRateLimit   int           `envconfig:"WORKER_LIQUIDATOR_RATE_LIMIT" default:"500"` // position checks per second
	OrderExecutorInterval time.Duration `envconfig:"WORKER_ORDER_EXECUTOR_INTERVAL" default:"2s"`
}

// Load reads configuration from environment variables
// It first tries to load .env file (useful for local development)
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not exists)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	return &cfg, nil
}
