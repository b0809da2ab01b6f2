package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	appcart "github.com/Parth18062003/E-Commerce-sub000/internal/application/cart"
	"github.com/Parth18062003/E-Commerce-sub000/internal/bootstrap"
	"github.com/Parth18062003/E-Commerce-sub000/internal/config"
	"github.com/Parth18062003/E-Commerce-sub000/internal/infrastructure/memory"
	"github.com/Parth18062003/E-Commerce-sub000/internal/observability"
	grpcpresentation "github.com/Parth18062003/E-Commerce-sub000/internal/presentation/grpc"
	httppresentation "github.com/Parth18062003/E-Commerce-sub000/internal/presentation/http"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load("cart-service")
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
	gateway, err := grpcpresentation.Dial(cfg.Gateway.Addr, cfg.Reservation.RPCTimeout, tel)
	if err != nil {
		return err
	}
	defer func() { _ = gateway.Close() }()

	locker, closeLocker := bootstrap.NewLocker(cfg, "cart:lock:")
	defer func() { _ = closeLocker() }()

	service := appcart.NewService(memory.NewCartRepository(), gateway, locker, tel)

	handler := httppresentation.NewHandler(tel, httppresentation.WithCart(service))
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
