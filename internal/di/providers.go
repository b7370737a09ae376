package di

import (
	"context"
	"fmt"
	"time"

	"github.com/carmandale/SPY-tracker-sub000/internal/domain/models"
	"github.com/carmandale/SPY-tracker-sub000/internal/domain/repository"
	dservice "github.com/carmandale/SPY-tracker-sub000/internal/domain/service"
	"github.com/carmandale/SPY-tracker-sub000/internal/handler/api"
	internalrepo "github.com/carmandale/SPY-tracker-sub000/internal/repository"
	"github.com/carmandale/SPY-tracker-sub000/internal/scheduler"
	"github.com/carmandale/SPY-tracker-sub000/internal/service/forecast"
	"github.com/carmandale/SPY-tracker-sub000/internal/service/marketdata"
	"github.com/carmandale/SPY-tracker-sub000/internal/usecase"
	"github.com/carmandale/SPY-tracker-sub000/pkg/cache"
	pkgch "github.com/carmandale/SPY-tracker-sub000/pkg/clickhouse"
	"github.com/carmandale/SPY-tracker-sub000/pkg/config"
	xhttp "github.com/carmandale/SPY-tracker-sub000/pkg/http"
	pkgkafka "github.com/carmandale/SPY-tracker-sub000/pkg/kafka"
	"github.com/carmandale/SPY-tracker-sub000/pkg/logger"
	"github.com/carmandale/SPY-tracker-sub000/pkg/metrics"
	"github.com/carmandale/SPY-tracker-sub000/pkg/server"
	"github.com/carmandale/SPY-tracker-sub000/pkg/sqlite"
)

// ProvideLogger builds the application logger from config.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
}

// ProvideLocation resolves the market timezone.
func ProvideLocation(cfg *config.Config) *time.Location {
	return cfg.Location()
}

// ProvideMetrics creates the Prometheus metrics recorder.
func ProvideMetrics(cfg *config.Config) repository.Metrics {
	return metrics.New(cfg.Tracker.Symbol)
}

// ProvideSQLiteClient opens the record database.
func ProvideSQLiteClient(cfg *config.Config) (*sqlite.Client, error) {
	client, err := sqlite.NewClient(
		sqlite.WithPath(cfg.SQLite.Path),
		sqlite.WithBusyTimeout(cfg.SQLite.BusyTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite client: %w", err)
	}
	return client, nil
}

// ProvideRecordStore creates the prediction record store and its schema.
func ProvideRecordStore(client *sqlite.Client) (repository.RecordStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := internalrepo.NewSQLiteRecordStore(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("record store: %w", err)
	}
	return store, nil
}

// ProvideCache builds the calibration cache: memory-only by default, a
// memory-over-Redis layered cache when Redis is enabled.
func ProvideCache(cfg *config.Config, log *logger.Logger) cache.Service {
	if !cfg.Cache.Redis.Enabled {
		return cache.NewMemoryCache()
	}

	redisCache, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Cache.Redis.Addr),
		cache.WithRedisAuth(cfg.Cache.Redis.Password, cfg.Cache.Redis.DB),
		cache.WithRedisPrefix("tracker"),
	)
	if err != nil {
		log.Warn("redis unavailable, using memory cache", logger.Error(err))
		return cache.NewMemoryCache()
	}
	return cache.NewLayeredCache(redisCache)
}

// ProvideQuoteStream creates the live quote stream, or nil when no
// websocket endpoint is configured.
func ProvideQuoteStream(cfg *config.Config, log *logger.Logger) *marketdata.QuoteStream {
	if cfg.MarketData.WebSocketURL == "" {
		return nil
	}
	return marketdata.NewQuoteStream(marketdata.StreamConfig{
		URL:            cfg.MarketData.WebSocketURL,
		APIKey:         cfg.MarketData.APIKey,
		Symbol:         cfg.Tracker.Symbol,
		StaleAfter:     cfg.MarketData.StaleAfter,
		ReconnectDelay: cfg.MarketData.ReconnectDelay,
		PingInterval:   cfg.MarketData.PingInterval,
	}, log)
}

// ProvideMarketData creates the reference price provider client.
func ProvideMarketData(cfg *config.Config, stream *marketdata.QuoteStream, log *logger.Logger) dservice.MarketData {
	opts := []marketdata.Option{
		marketdata.WithHTTPClient(xhttp.NewClient(xhttp.WithTimeout(cfg.MarketData.Timeout))),
		marketdata.WithRetryMax(cfg.MarketData.RetryMax),
		marketdata.WithRateLimit(cfg.MarketData.RatePerSec, cfg.MarketData.RateBurst),
	}
	if stream != nil {
		opts = append(opts, marketdata.WithStream(stream))
	}
	return marketdata.New(cfg.MarketData.BaseURL, cfg.MarketData.APIKey, cfg.Tracker.Symbol, log, opts...)
}

// ProvideForecaster creates the forecasting service client.
func ProvideForecaster(cfg *config.Config, log *logger.Logger) dservice.Forecaster {
	return forecast.New(cfg.Forecast.ServiceURL, log,
		forecast.WithHTTPClient(xhttp.NewClient(xhttp.WithTimeout(cfg.Forecast.Timeout))))
}

// AuditComponents bundles the configured audit sink with whatever
// infrastructure it needs kept alive and closed.
type AuditComponents struct {
	Trail      repository.AuditTrail
	ClickHouse *pkgch.Client
	Consumer   *pkgkafka.Consumer
}

// ProvideAudit selects the audit sink. clickhouse writes events straight
// to the table; kafka publishes them and runs a consumer that lands them
// in ClickHouse; log keeps them in the structured log only.
func ProvideAudit(cfg *config.Config, m repository.Metrics, log *logger.Logger) (*AuditComponents, error) {
	switch cfg.Audit.Sink {
	case "clickhouse":
		client, err := provideClickHouse(cfg)
		if err != nil {
			return nil, err
		}
		trail, err := newClickHouseTrail(client)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return &AuditComponents{Trail: trail, ClickHouse: client}, nil

	case "kafka":
		producer, err := pkgkafka.NewProducer(
			pkgkafka.WithProducerBrokers(cfg.Kafka.Brokers),
			pkgkafka.WithProducerAcks(cfg.Kafka.RequiredAcks),
			pkgkafka.WithProducerCompression(cfg.Kafka.Compression),
			pkgkafka.WithProducerRetry(cfg.Kafka.Producer.MaxAttempts),
			pkgkafka.WithProducerTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
			pkgkafka.WithProducerBatch(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
			pkgkafka.WithProducerAsync(cfg.Kafka.Producer.Async),
		)
		if err != nil {
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		comps := &AuditComponents{Trail: internalrepo.NewKafkaAuditTrail(producer, cfg.Kafka.Topic)}

		// With ClickHouse also configured, consume the topic into the
		// durable table.
		if cfg.ClickHouse.Host != "" {
			client, err := provideClickHouse(cfg)
			if err != nil {
				log.Warn("clickhouse unavailable, capture events stay in kafka", logger.Error(err))
				return comps, nil
			}
			durable, err := newClickHouseTrail(client)
			if err != nil {
				_ = client.Close()
				return nil, err
			}
			consumer, err := pkgkafka.NewConsumer(log,
				pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
				pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
				pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
				pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
				pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
				pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
			)
			if err != nil {
				_ = client.Close()
				return nil, fmt.Errorf("kafka consumer: %w", err)
			}
			consumer.RegisterHandler(usecase.NewCaptureEventsHandler(cfg.Kafka.Topic, durable, m))
			comps.ClickHouse = client
			comps.Consumer = consumer
		}
		return comps, nil

	default:
		return &AuditComponents{Trail: internalrepo.NewLogAuditTrail(log)}, nil
	}
}

func provideClickHouse(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithAddress(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

func newClickHouseTrail(client *pkgch.Client) (repository.AuditTrail, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	trail, err := internalrepo.NewClickHouseAuditTrail(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("audit trail: %w", err)
	}
	return trail, nil
}

// ProvideCalibration creates the calibration aggregator.
func ProvideCalibration(store repository.RecordStore, c cache.Service, cfg *config.Config, m repository.Metrics, log *logger.Logger) *usecase.Calibration {
	return usecase.NewCalibration(store, c, cfg.Cache.TTL, m, log)
}

// ProvideScorer creates the close-of-day scorer.
func ProvideScorer(store repository.RecordStore, m repository.Metrics, cal *usecase.Calibration, log *logger.Logger) *usecase.Scorer {
	return usecase.NewScorer(store, m, cal, log)
}

// ProvideMorningForecast creates the morning forecast job.
func ProvideMorningForecast(store repository.RecordStore, md dservice.MarketData, fc dservice.Forecaster, m repository.Metrics, cfg *config.Config, log *logger.Logger) *usecase.MorningForecast {
	return usecase.NewMorningForecast(store, md, fc, m, cfg.Tracker.Symbol, cfg.Tracker.TickSize, log)
}

// ProvideCheckpointCapture creates the checkpoint capture job.
func ProvideCheckpointCapture(store repository.RecordStore, md dservice.MarketData, audit *AuditComponents, m repository.Metrics, log *logger.Logger) *usecase.CheckpointCapture {
	return usecase.NewCheckpointCapture(store, md, audit.Trail, m, log)
}

// ProvideSimulator creates the historical backfill runner.
func ProvideSimulator(store repository.RecordStore, md dservice.MarketData, fc dservice.Forecaster, sc *usecase.Scorer, m repository.Metrics, cfg *config.Config, log *logger.Logger) *usecase.Simulator {
	return usecase.NewSimulator(store, md, fc, sc, m, cfg.Tracker.Symbol, cfg.Tracker.TickSize, log)
}

// ProvideSuggestionEngine creates the suggestion engine.
func ProvideSuggestionEngine(store repository.RecordStore, cal *usecase.Calibration) *usecase.SuggestionEngine {
	return usecase.NewSuggestionEngine(store, cal, usecase.SuggestionParams{})
}

// ProvideScheduler builds the job table: the morning forecast, one
// capture per checkpoint and the close-of-day scorer.
func ProvideScheduler(
	cfg *config.Config,
	loc *time.Location,
	m repository.Metrics,
	log *logger.Logger,
	mf *usecase.MorningForecast,
	cc *usecase.CheckpointCapture,
	sc *usecase.Scorer,
) *scheduler.Scheduler {
	sched := scheduler.New(loc, cfg.Tracker.JobTimeout, scheduler.SystemClock{}, m, log)

	sched.Register(scheduler.Job{
		Name: "forecast",
		At:   cfg.ScheduleTime(cfg.Tracker.Schedule.Forecast),
		Run:  func(ctx context.Context, date models.Date, _ bool) error { return mf.Run(ctx, date) },
	})

	captures := []struct {
		name string
		at   string
		cp   models.Checkpoint
	}{
		{"capturePreMarket", cfg.Tracker.Schedule.PreMarket, models.CheckpointPreMarket},
		{"captureOpen", cfg.Tracker.Schedule.Open, models.CheckpointOpen},
		{"captureNoon", cfg.Tracker.Schedule.Noon, models.CheckpointNoon},
		{"captureMidAfternoon", cfg.Tracker.Schedule.MidAfternoon, models.CheckpointMidAfternoon},
		{"captureClose", cfg.Tracker.Schedule.Close, models.CheckpointClose},
	}
	for _, entry := range captures {
		cp := entry.cp
		sched.Register(scheduler.Job{
			Name: entry.name,
			At:   cfg.ScheduleTime(entry.at),
			Run: func(ctx context.Context, date models.Date, force bool) error {
				_, err := cc.Run(ctx, date, cp, force)
				return err
			},
		})
	}

	sched.Register(scheduler.Job{
		Name: "score",
		At:   cfg.ScheduleTime(cfg.Tracker.Schedule.Score),
		Run:  func(ctx context.Context, date models.Date, _ bool) error { return sc.Run(ctx, date) },
	})

	return sched
}

// ProvideHandler creates the tracker HTTP handler.
func ProvideHandler(
	log *logger.Logger,
	store repository.RecordStore,
	cal *usecase.Calibration,
	se *usecase.SuggestionEngine,
	sim *usecase.Simulator,
	sched *scheduler.Scheduler,
	loc *time.Location,
) xhttp.Handler {
	return api.NewTrackerHandler(log, store, cal, se, sim, sched, loc)
}

// ProvideHTTPServer creates the Echo server with routes registered.
func ProvideHTTPServer(cfg *config.Config, log *logger.Logger, handler xhttp.Handler) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(log, handler,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath),
	)
}

// ProvideApp assembles the application.
func ProvideApp(
	cfg *config.Config,
	log *logger.Logger,
	sqliteClient *sqlite.Client,
	audit *AuditComponents,
	stream *marketdata.QuoteStream,
	c cache.Service,
	sched *scheduler.Scheduler,
	httpServer *xhttp.Server,
) *server.App {
	return server.New(cfg, log, server.Components{
		SQLite:     sqliteClient,
		ClickHouse: audit.ClickHouse,
		AuditTrail: audit.Trail,
		Consumer:   audit.Consumer,
		Stream:     stream,
		Cache:      c,
		Scheduler:  sched,
		HTTPServer: httpServer,
	})
}
