// Package bootstrap assembles the infrastructure shared by the service
// entry points: telemetry, the event channel, per-key locking and the HTTP
// server lifecycle.
package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Parth18062003/E-Commerce-sub000/internal/config"
	domoutbox "github.com/Parth18062003/E-Commerce-sub000/internal/domain/outbox"
	"github.com/Parth18062003/E-Commerce-sub000/internal/infrastructure/kafka"
	"github.com/Parth18062003/E-Commerce-sub000/internal/infrastructure/lock"
	infraobs "github.com/Parth18062003/E-Commerce-sub000/internal/infrastructure/observability"
	"github.com/Parth18062003/E-Commerce-sub000/internal/infrastructure/observability/oteltrace"
	"github.com/Parth18062003/E-Commerce-sub000/internal/infrastructure/observability/prometrics"
	"github.com/Parth18062003/E-Commerce-sub000/internal/infrastructure/observability/zaplogger"
	"github.com/Parth18062003/E-Commerce-sub000/internal/infrastructure/outbox"
	"github.com/Parth18062003/E-Commerce-sub000/internal/observability"
	"github.com/Parth18062003/E-Commerce-sub000/internal/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Telemetry is the observability bundle of one process.
type Telemetry struct {
	observability.Observability
	Zap *zap.Logger

	shutdownTracer func(context.Context) error
}

// NewTelemetry builds the zap logger, the tracer provider and the
// Prometheus instruments registered on the default registry.
func NewTelemetry(cfg config.Config) (*Telemetry, error) {
	zl, err := logging.NewLogger(logging.Options{
		Service: cfg.Service.Name,
		Env:     cfg.Service.Env,
		Level:   cfg.Service.LogLevel,
		File:    cfg.Service.LogFile,
	})
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(zl)

	tp, err := oteltrace.InitProvider(cfg.Service.Name, cfg.Tracing.JaegerEndpoint)
	if err != nil {
		return nil, err
	}

	counters, histograms := infraobs.StandardInstruments(prometrics.New(prometheus.DefaultRegisterer, "", ""))
	tel := infraobs.New(
		oteltrace.New(cfg.Service.Name),
		zaplogger.New(zl),
		counters,
		histograms,
	)
	return &Telemetry{Observability: tel, Zap: zl, shutdownTracer: tp.Shutdown}, nil
}

// SystemLogger is the logger for process lifecycle records.
func (t *Telemetry) SystemLogger() observability.Logger {
	return zaplogger.New(logging.WithTrace(t.Zap, logging.SystemTraceID, logging.SystemSpanID))
}

func (t *Telemetry) Shutdown(ctx context.Context) {
	if t.shutdownTracer != nil {
		_ = t.shutdownTracer(ctx)
	}
	_ = t.Zap.Sync()
}

// Locker is the per-key lock shared by ledger and cart writers.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// NewLocker returns the redis locker when configured, the in-process one
// otherwise. The returned close func releases the redis client.
func NewLocker(cfg config.Config, prefix string) (Locker, func() error) {
	if cfg.Lock.Driver != config.DriverRedis {
		return lock.NewKeyedLocker(), func() error { return nil }
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Lock.RedisAddr})
	return lock.NewRedisLocker(client, prefix, cfg.Lock.TTL), client.Close
}

// EventChannel is the publish/subscribe pair of one process plus its
// lifecycle.
type EventChannel struct {
	Publisher  domoutbox.Publisher
	Subscriber domoutbox.Subscriber

	start func(ctx context.Context) error
	stop  func(ctx context.Context)
}

// NewEventChannel returns kafka publisher/consumer when configured, or the
// in-process bus. decode turns kafka payloads back into events.
func NewEventChannel(cfg config.Config, decode kafka.Decoder, logger observability.Logger) *EventChannel {
	if cfg.Broker.Driver == config.DriverKafka {
		pub := kafka.NewPublisher(cfg.Broker.Brokers, cfg.Broker.Topics)
		cons := kafka.NewConsumer(cfg.Broker.Brokers, cfg.Broker.GroupID, cfg.Broker.Topics, decode, logger,
			kafka.WithDeadLetterTopic(cfg.Broker.DeadLetterTopic))
		return &EventChannel{
			Publisher:  pub,
			Subscriber: cons,
			start:      cons.Start,
			stop: func(context.Context) {
				cons.Stop()
				if err := pub.Close(); err != nil {
					logger.Warn("kafka_writer_close_failed", observability.F("error", err))
				}
			},
		}
	}
	bus := outbox.NewBus(logger)
	return &EventChannel{
		Publisher:  bus,
		Subscriber: bus,
		start: func(ctx context.Context) error {
			bus.Start(ctx)
			return nil
		},
		stop: bus.Stop,
	}
}

// Start begins delivery; call it after every worker has subscribed.
func (c *EventChannel) Start(ctx context.Context) error { return c.start(ctx) }

func (c *EventChannel) Stop(ctx context.Context) { c.stop(ctx) }

// MetricsMux mounts /metrics beside the application routes.
func MetricsMux(app http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", app)
	return mux
}

// ServeHTTP runs srv until ctx ends, then shuts it down within timeout.
func ServeHTTP(ctx context.Context, srv *http.Server, timeout time.Duration, logger observability.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http_server_start", observability.F("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("http_server_error", observability.F("error", err))
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http_server_shutdown_error", observability.F("error", err))
		return err
	}
	logger.Info("http_server_stopped")
	return nil
}
