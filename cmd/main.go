package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/thxForu/perp-futures/internal/adapters/clickhouse"
	"github.com/thxForu/perp-futures/internal/adapters/config"
	"github.com/thxForu/perp-futures/internal/adapters/errors/noop"
	"github.com/thxForu/perp-futures/internal/adapters/errors/sentry"
	"github.com/thxForu/perp-futures/internal/adapters/kafka"
	"github.com/thxForu/perp-futures/internal/adapters/postgres"
	"github.com/thxForu/perp-futures/internal/adapters/redis"
	"github.com/thxForu/perp-futures/internal/domain/access"
	"github.com/thxForu/perp-futures/internal/domain/ledger"
	"github.com/thxForu/perp-futures/internal/domain/liquidation"
	"github.com/thxForu/perp-futures/internal/domain/margin"
	"github.com/thxForu/perp-futures/internal/domain/orderbook"
	"github.com/thxForu/perp-futures/internal/domain/trading"
	"github.com/thxForu/perp-futures/internal/events"
	"github.com/thxForu/perp-futures/internal/metrics"
	chrepo "github.com/thxForu/perp-futures/internal/repository/clickhouse"
	pgrepo "github.com/thxForu/perp-futures/internal/repository/postgres"
	redisrepo "github.com/thxForu/perp-futures/internal/repository/redis"
	"github.com/thxForu/perp-futures/internal/workers"
	"github.com/thxForu/perp-futures/pkg/errors"
	"github.com/thxForu/perp-futures/pkg/logger"
	"github.com/thxForu/perp-futures/pkg/sequence"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	log := logger.Get()
	log.Infof("Starting %s in %s mode", cfg.App.Name, cfg.App.Env)

	errorTracker := initErrorTracker(cfg, log)
	logger.SetErrorTracker(errorTracker)

	db, err := initDatabases(cfg, log)
	if err != nil {
		log.Fatalf("Failed to initialize databases: %v", err)
	}
	defer db.Close()

	producer := kafka.NewProducer(kafka.ProducerConfig{Brokers: cfg.Kafka.Brokers})
	defer producer.Close()
	publisher := events.NewKafkaPublisher(producer)

	metrics.Init()

	core := initCore(cfg, db, publisher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler := initWorkers(cfg, core, db)
	if err := scheduler.Start(ctx); err != nil {
		log.Fatalf("Failed to start workers: %v", err)
	}
	defer scheduler.Stop()

	if cfg.Metrics.Enabled {
		startMetricsServer(cfg.Metrics.Addr, log)
	}

	log.Info("System initialized successfully")

	waitForShutdown(ctx, cancel, errorTracker, log)
}

// Database bundles the external storage connections
type Database struct {
	Postgres   *postgres.Client
	ClickHouse *clickhouse.Client
	Redis      *redis.Client
}

// Close closes all connections
func (d *Database) Close() {
	if d.Postgres != nil {
		_ = d.Postgres.Close()
	}
	if d.ClickHouse != nil {
		_ = d.ClickHouse.Close()
	}
	if d.Redis != nil {
		_ = d.Redis.Close()
	}
}

// Core bundles the in-memory engines
type Core struct {
	Ledger      *ledger.Ledger
	Margin      *margin.Book
	Trading     *trading.Engine
	Orders      *orderbook.Book
	Liquidation *liquidation.Engine
	ACL         *access.StaticController
}

// initErrorTracker initializes error tracking (Sentry or no-op)
func initErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return noop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment)
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return noop.New()
	}

	log.Info("Error tracking initialized (Sentry)")
	return tracker
}

// initDatabases initializes PostgreSQL, ClickHouse and Redis connections
func initDatabases(cfg *config.Config, log *logger.Logger) (*Database, error) {
	pgClient, err := postgres.NewClient(cfg.Postgres)
	if err != nil {
		return nil, errors.Wrap(err, "postgres")
	}

	chClient, err := clickhouse.NewClient(cfg.ClickHouse)
	if err != nil {
		return nil, errors.Wrap(err, "clickhouse")
	}

	redisClient, err := redis.NewClient(cfg.Redis)
	if err != nil {
		return nil, errors.Wrap(err, "redis")
	}

	log.Info("Databases initialized")
	return &Database{
		Postgres:   pgClient,
		ClickHouse: chClient,
		Redis:      redisClient,
	}, nil
}

// initCore wires the ledger, margin book, trading engine, order book and
// liquidation engine with their persistence collaborators
func initCore(cfg *config.Config, db *Database, publisher events.Publisher) *Core {
	positions := ledger.New()
	book := margin.NewBook(nil)
	acl := access.NewStaticController()

	history := pgrepo.NewTradeHistoryRepository(db.Postgres.DB())
	analytics := chrepo.NewLiquidationRepository(db.ClickHouse.Conn())

	engine := trading.NewEngine(
		trading.Config{FeeRateBps: cfg.Engine.FeeRateBps},
		positions, book, sequence.New(1), acl, publisher, history,
	)

	orders := orderbook.NewBook(
		orderbook.Limits{
			MinSize:     cfg.Orders.MinSize,
			MaxSize:     cfg.Orders.MaxSize,
			MinLeverage: cfg.Orders.MinLeverage,
			MaxLeverage: cfg.Orders.MaxLeverage,
			MaxExpiry:   cfg.Orders.MaxExpiry,
		},
		sequence.New(1), engine, book, acl, publisher,
	)

	liquidator := liquidation.NewEngine(
		liquidation.Params{
			MaintenanceMarginBps: cfg.Engine.MaintenanceMarginBps,
			LiquidationFeeBps:    cfg.Engine.LiquidationFeeBps,
			MaxDiscountBps:       cfg.Engine.MaxDiscountBps,
		},
		engine, positions, book, publisher, analytics,
	)

	return &Core{
		Ledger:      positions,
		Margin:      book,
		Trading:     engine,
		Orders:      orders,
		Liquidation: liquidator,
		ACL:         acl,
	}
}

// initWorkers registers the liquidation scan and order execution loops under
// freshly granted operator identities
func initWorkers(cfg *config.Config, core *Core, db *Database) *workers.Scheduler {
	prices := redisrepo.NewPriceFeed(db.Redis.Client(), cfg.Engine.PriceScale)

	liquidatorID := uuid.New()
	executorID := uuid.New()
	core.ACL.Grant(liquidatorID, access.RoleLiquidator)
	core.ACL.Grant(executorID, access.RoleExecutor)

	scheduler := workers.NewScheduler()
	scheduler.RegisterWorker(workers.NewLiquidatorWorker(
		liquidatorID,
		core.Liquidation,
		core.Ledger,
		prices,
		cfg.Engine.PairIndex,
		cfg.Workers.LiquidatorInterval,
		cfg.Workers.LiquidatorRateLimit,
	))
	scheduler.RegisterWorker(workers.NewOrderExecutorWorker(
		executorID,
		core.Orders,
		prices,
		cfg.Engine.PairIndex,
		cfg.Workers.OrderExecutorInterval,
	))
	return scheduler
}

// startMetricsServer exposes Prometheus metrics over HTTP
func startMetricsServer(addr string, log *logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Infow("metrics server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Metrics server error: %v", err)
		}
	}()
}

// waitForShutdown waits for shutdown signal and performs graceful shutdown
func waitForShutdown(ctx context.Context, cancel context.CancelFunc, errorTracker errors.Tracker, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	log.Info("Shutting down...")

	cancel()

	if errorTracker != nil {
		if err := errorTracker.Flush(ctx); err != nil {
			log.Warnf("Failed to flush error tracker: %v", err)
		}
	}

	log.Info("Shutdown complete")
}
