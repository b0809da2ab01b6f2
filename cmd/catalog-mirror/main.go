package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appmirror "github.com/Parth18062003/E-Commerce-sub000/internal/application/mirror"
	"github.com/Parth18062003/E-Commerce-sub000/internal/bootstrap"
	"github.com/Parth18062003/E-Commerce-sub000/internal/config"
	domledger "github.com/Parth18062003/E-Commerce-sub000/internal/domain/ledger"
	dommirror "github.com/Parth18062003/E-Commerce-sub000/internal/domain/mirror"
	"github.com/Parth18062003/E-Commerce-sub000/internal/infrastructure/gormstore"
	"github.com/Parth18062003/E-Commerce-sub000/internal/infrastructure/memory"
	"github.com/Parth18062003/E-Commerce-sub000/internal/observability"
	httppresentation "github.com/Parth18062003/E-Commerce-sub000/internal/presentation/http"
	workerpresentation "github.com/Parth18062003/E-Commerce-sub000/internal/presentation/worker"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load("catalog-mirror")
	if err != nil {
		panic(err)
	}
	tel, err := bootstrap.NewTelemetry(cfg)
	if err != nil {
		panic(err)
	}
	defer tel.Shutdown(context.Background())
	systemLogger := tel.SystemLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, tel, systemLogger); err != nil {
		systemLogger.Error("service_exit", observability.F("error", err))
		tel.Shutdown(context.Background())
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, tel *bootstrap.Telemetry, systemLogger observability.Logger) error {
	repo, err := mirrorRepository(cfg)
	if err != nil {
		return err
	}

	events := bootstrap.NewEventChannel(cfg, domledger.DecodeEvent, tel.Logger())
	worker := appmirror.NewWorker(
		workerpresentation.Subscriber(events.Subscriber, tel.Logger(), map[string]string{"consumer": "catalog_mirror"}),
		repo,
		tel,
	)
	worker.Start()
	if err := events.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		events.Stop(stopCtx)
	}()

	handler := httppresentation.NewHandler(tel, httppresentation.WithMirror(worker))
	server := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: bootstrap.MetricsMux(handler.Router()),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return bootstrap.ServeHTTP(gctx, server, cfg.HTTP.ShutdownTimeout, systemLogger)
	})
	return g.Wait()
}

func mirrorRepository(cfg config.Config) (dommirror.Repository, error) {
	if cfg.Mirror.Driver != config.DriverMySQL {
		return memory.NewMirrorRepository(), nil
	}
	db, err := gormstore.OpenMySQL(cfg.Mirror.DSN)
	if err != nil {
		return nil, err
	}
	return gormstore.NewMirrorRepository(db), nil
}
