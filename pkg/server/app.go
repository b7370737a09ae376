package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/carmandale/SPY-tracker-sub000/internal/domain/repository"
	"github.com/carmandale/SPY-tracker-sub000/internal/scheduler"
	"github.com/carmandale/SPY-tracker-sub000/internal/service/marketdata"
	"github.com/carmandale/SPY-tracker-sub000/pkg/cache"
	"github.com/carmandale/SPY-tracker-sub000/pkg/clickhouse"
	xhttp "github.com/carmandale/SPY-tracker-sub000/pkg/http"
	"github.com/carmandale/SPY-tracker-sub000/pkg/config"
	"github.com/carmandale/SPY-tracker-sub000/pkg/kafka"
	"github.com/carmandale/SPY-tracker-sub000/pkg/logger"
	"github.com/carmandale/SPY-tracker-sub000/pkg/sqlite"
)

// Components holds everything the app starts and stops. ClickHouse,
// Consumer and Stream are nil when the configuration does not use them.
type Components struct {
	SQLite     *sqlite.Client
	ClickHouse *clickhouse.Client
	AuditTrail repository.AuditTrail
	Consumer   *kafka.Consumer
	Stream     *marketdata.QuoteStream
	Cache      cache.Service
	Scheduler  *scheduler.Scheduler
	HTTPServer *xhttp.Server
}

// App wires the tracker's lifecycle: start the quote stream, the job
// scheduler, the audit consumer and the HTTP server, then block until a
// termination signal arrives.
type App struct {
	cfg   *config.Config
	log   *logger.Logger
	comps Components
}

func New(cfg *config.Config, log *logger.Logger, comps Components) *App {
	return &App{cfg: cfg, log: log.With("app"), comps: comps}
}

// Run starts all components and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	a.log.Info("starting",
		logger.String("environment", a.cfg.Environment),
		logger.String("symbol", a.cfg.Tracker.Symbol),
		logger.String("timezone", a.cfg.Tracker.Timezone),
		logger.String("audit_sink", a.cfg.Audit.Sink))

	if a.comps.Stream != nil {
		a.comps.Stream.Start()
	}
	if a.comps.Consumer != nil {
		if err := a.comps.Consumer.Start(); err != nil {
			return err
		}
	}
	a.comps.Scheduler.Start()
	if err := a.comps.HTTPServer.Start(); err != nil {
		return err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	a.log.Info("shutting down", logger.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	a.shutdown(ctx)

	a.log.Info("stopped")
	return nil
}

// shutdown stops components in reverse order of Start. The HTTP server
// goes first so no request arrives mid-teardown; the scheduler next so
// no job fires against closing clients.
func (a *App) shutdown(ctx context.Context) {
	if err := a.comps.HTTPServer.Stop(ctx); err != nil {
		a.log.Error("stop http server", logger.Error(err))
	}
	if err := a.comps.Scheduler.Stop(ctx); err != nil {
		a.log.Error("stop scheduler", logger.Error(err))
	}
	if a.comps.Consumer != nil {
		if err := a.comps.Consumer.Stop(ctx); err != nil {
			a.log.Error("stop consumer", logger.Error(err))
		}
	}
	if a.comps.Stream != nil {
		a.comps.Stream.Stop()
	}
	if err := a.comps.AuditTrail.Close(); err != nil {
		a.log.Error("close audit trail", logger.Error(err))
	}
	if a.comps.ClickHouse != nil {
		if err := a.comps.ClickHouse.Close(); err != nil {
			a.log.Error("close clickhouse", logger.Error(err))
		}
	}
	if err := a.comps.Cache.Close(); err != nil {
		a.log.Error("close cache", logger.Error(err))
	}
	if err := a.comps.SQLite.Close(); err != nil {
		a.log.Error("close sqlite", logger.Error(err))
	}
}
