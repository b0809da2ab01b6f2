package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Parth18062003/E-Commerce-sub000/internal/application"
	appledger "github.com/Parth18062003/E-Commerce-sub000/internal/application/ledger"
	"github.com/Parth18062003/E-Commerce-sub000/internal/bootstrap"
	"github.com/Parth18062003/E-Commerce-sub000/internal/config"
	domledger "github.com/Parth18062003/E-Commerce-sub000/internal/domain/ledger"
	"github.com/Parth18062003/E-Commerce-sub000/internal/infrastructure/memory"
	"github.com/Parth18062003/E-Commerce-sub000/internal/infrastructure/sqlstore"
	"github.com/Parth18062003/E-Commerce-sub000/internal/observability"
	grpcpresentation "github.com/Parth18062003/E-Commerce-sub000/internal/presentation/grpc"
	httppresentation "github.com/Parth18062003/E-Commerce-sub000/internal/presentation/http"
	workerpresentation "github.com/Parth18062003/E-Commerce-sub000/internal/presentation/worker"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load("inventory-service")
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
	repo, closeRepo, err := ledgerRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeRepo()

	locker, closeLocker := bootstrap.NewLocker(cfg, "inventory:lock:")
	defer func() { _ = closeLocker() }()

	events := bootstrap.NewEventChannel(cfg, domledger.DecodeEvent, tel.Logger())

	notifier := appledger.NewNotifier(events.Publisher, cfg.Reservation.PublishTimeout, tel)
	service := appledger.NewService(repo, locker, notifier, appledger.Config{
		MaxWriteRetries: cfg.Reservation.MaxWriteRetries,
	}, tel)

	seedWorker := appledger.NewSeedWorker(
		workerpresentation.Subscriber(events.Subscriber, tel.Logger(), map[string]string{"consumer": "ledger_seed"}),
		application.UseCaseFunc[appledger.AddStockCommand, *domledger.Entry](service.SeedStock),
		tel,
	)
	seedWorker.Start()
	if err := events.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		events.Stop(stopCtx)
	}()

	handler := httppresentation.NewHandler(tel, httppresentation.WithLedger(service))
	server := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: bootstrap.MetricsMux(handler.Router()),
	}

	grpcServer, health := grpcpresentation.NewServer(grpcpresentation.NewGateway(service, tel.Logger()), tel)
	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return bootstrap.ServeHTTP(gctx, server, cfg.HTTP.ShutdownTimeout, systemLogger)
	})
	g.Go(func() error {
		systemLogger.Info("grpc_server_start", observability.F("addr", cfg.GRPC.Addr))
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		<-gctx.Done()
		health.Shutdown()
		grpcServer.GracefulStop()
		systemLogger.Info("grpc_server_stopped")
		return nil
	})
	return g.Wait()
}

func ledgerRepository(ctx context.Context, cfg config.Config) (domledger.Repository, func(), error) {
	if cfg.Store.Driver != config.DriverSQLite {
		return memory.NewLedgerRepository(), func() {}, nil
	}
	db, err := sqlstore.Open(ctx, cfg.Store.DSN)
	if err != nil {
		return nil, nil, err
	}
	return sqlstore.NewLedgerRepository(db), func() { _ = db.Close() }, nil
}
