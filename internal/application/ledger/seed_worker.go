package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Parth18062003/E-Commerce-sub000/internal/application"
	domain "github.com/Parth18062003/E-Commerce-sub000/internal/domain/ledger"
	domoutbox "github.com/Parth18062003/E-Commerce-sub000/internal/domain/outbox"
	"github.com/Parth18062003/E-Commerce-sub000/internal/observability"
	"github.com/Parth18062003/E-Commerce-sub000/internal/observability/logctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const seedWorkerService = "ledger_seed_worker"

// SeedWorker creates ledger entries for products announced by the catalog.
type SeedWorker struct {
	subscriber domoutbox.Subscriber
	seed       application.UseCase[AddStockCommand, *domain.Entry]

	log          observability.Logger
	tracer       observability.Tracer
	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
}

func NewSeedWorker(
	subscriber domoutbox.Subscriber,
	seed application.UseCase[AddStockCommand, *domain.Entry],
	tel observability.Observability,
) *SeedWorker {
	tel = observability.OrNop(tel)
	m := tel.Metrics()
	return &SeedWorker{
		subscriber:   subscriber,
		seed:         seed,
		log:          tel.Logger().With(observability.F("service", seedWorkerService)),
		tracer:       tel.Tracer(),
		reqCounter:   m.Counter(observability.MUsecaseRequests),
		durHistogram: m.Histogram(observability.MUsecaseDuration),
	}
}

func (w *SeedWorker) Start() {
	if w.subscriber == nil || w.seed == nil {
		return
	}
	w.subscriber.Subscribe(domain.EventProductCreated, w.handleProductCreated)
}

// handleProductCreated creates an entry holding the positive sizes of every
// variant. Variants left without sizes are skipped, and variants that
// already have an entry count as done, so a redelivered event is a no-op.
// A failure on one variant does not stop the rest; the first error is
// returned so the delivery is retried.
func (w *SeedWorker) handleProductCreated(ctx context.Context, e domoutbox.Event) (err error) {
	const useCase = "ledger.worker.product_created"
	evt, ok := e.(domain.ProductCreatedEvent)
	if !ok {
		w.count(useCase, "ignored")
		return nil
	}

	ctx, span := w.tracer.Start(ctx, spanPrefix+"ProductCreated",
		attribute.String("use_case", useCase),
		attribute.String("product.id", evt.ProductID),
		attribute.Int("variants", len(evt.Variants)),
	)
	start := time.Now()
	logger := logctx.FromOr(ctx, w.log).With(
		observability.F("use_case", useCase),
		observability.F("product_id", evt.ProductID),
	)

	seeded, duplicate, skipped, failed := 0, 0, 0, 0
	defer func() {
		outcome, status := "success", "OK"
		if err != nil {
			outcome, status = "error", "SEED_FAILED"
			span.RecordError(err)
			span.SetStatus(codes.Error, status)
		} else {
			span.SetStatus(codes.Ok, status)
		}
		span.End()

		lat := time.Since(start).Seconds()
		w.observe(useCase, outcome, lat)
		logger.Info("use_case_done",
			observability.F("outcome", outcome),
			observability.F("status", status),
			observability.F("latency_seconds", lat),
			observability.F("variants_seeded", seeded),
			observability.F("variants_duplicate", duplicate),
			observability.F("variants_skipped", skipped),
			observability.F("variants_failed", failed),
		)
	}()

	var firstErr error
	for _, v := range evt.Variants {
		sizes := positiveSizes(v.SizeStockMap)
		if len(sizes) == 0 {
			skipped++
			continue
		}
		_, addErr := w.seed.Execute(ctx, AddStockCommand{
			ProductID:  evt.ProductID,
			VariantSKU: v.VariantSKU,
			Color:      v.Color,
			Sizes:      sizes,
		})
		if errors.Is(addErr, domain.ErrAlreadySeeded) {
			duplicate++
			continue
		}
		if addErr != nil {
			failed++
			logger.Warn("seed_variant_failed",
				observability.F("variant_sku", v.VariantSKU),
				observability.F("error", addErr.Error()),
			)
			if firstErr == nil {
				firstErr = fmt.Errorf("seed %s/%s: %w", evt.ProductID, v.VariantSKU, addErr)
			}
			continue
		}
		seeded++
	}
	return firstErr
}

func positiveSizes(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for size, qty := range in {
		if size != "" && qty > 0 {
			out[size] = qty
		}
	}
	return out
}

func (w *SeedWorker) count(useCase, outcome string) {
	w.reqCounter.Add(1,
		observability.L("use_case", useCase),
		observability.L("outcome", outcome),
	)
}

func (w *SeedWorker) observe(useCase, outcome string, latencySeconds float64) {
	w.count(useCase, outcome)
	w.durHistogram.Observe(latencySeconds, observability.L("use_case", useCase))
}
