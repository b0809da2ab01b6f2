// Package mirror keeps a downstream copy of ledger stock up to date from
// inventory change events.
package mirror

import (
	"context"
	"fmt"
	"time"

	domledger "github.com/Parth18062003/E-Commerce-sub000/internal/domain/ledger"
	dommirror "github.com/Parth18062003/E-Commerce-sub000/internal/domain/mirror"
	domoutbox "github.com/Parth18062003/E-Commerce-sub000/internal/domain/outbox"
	"github.com/Parth18062003/E-Commerce-sub000/internal/observability"
	"github.com/Parth18062003/E-Commerce-sub000/internal/observability/logctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	workerService = "catalog_mirror_worker"
	spanPrefix    = "UC."
	useCase       = "mirror.worker.inventory_changed"
)

// Worker applies inventory change events to the mirror repository.
type Worker struct {
	subscriber domoutbox.Subscriber
	repo       dommirror.Repository

	log          observability.Logger
	tracer       observability.Tracer
	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
}

func NewWorker(subscriber domoutbox.Subscriber, repo dommirror.Repository, tel observability.Observability) *Worker {
	tel = observability.OrNop(tel)
	m := tel.Metrics()
	return &Worker{
		subscriber:   subscriber,
		repo:         repo,
		log:          tel.Logger().With(observability.F("service", workerService)),
		tracer:       tel.Tracer(),
		reqCounter:   m.Counter(observability.MUsecaseRequests),
		durHistogram: m.Histogram(observability.MUsecaseDuration),
	}
}

func (w *Worker) Start() {
	if w.subscriber == nil || w.repo == nil {
		return
	}
	w.subscriber.Subscribe(domledger.EventInventoryChanged, w.Handle)
}

// Handle applies one change event. A tombstone removes every mirrored
// variant of the product; a snapshot replaces the variant's row unless a
// newer one is already stored.
func (w *Worker) Handle(ctx context.Context, e domoutbox.Event) (err error) {
	evt, ok := e.(domledger.ChangeEvent)
	if !ok {
		w.reqCounter.Add(1, observability.L("use_case", useCase), observability.L("outcome", "ignored"))
		return nil
	}

	ctx, span := w.tracer.Start(ctx, spanPrefix+"InventoryChanged",
		attribute.String("use_case", useCase),
		attribute.String("product.id", evt.ProductID),
		attribute.String("variant.sku", evt.SKU()),
		attribute.Bool("tombstone", evt.IsTombstone()),
	)
	start := time.Now()
	logger := logctx.FromOr(ctx, w.log).With(
		observability.F("use_case", useCase),
		observability.F("product_id", evt.ProductID),
		observability.F("variant_sku", evt.SKU()),
		observability.F("version", evt.Version),
	)

	outcome := "applied"
	var removed int
	defer func() {
		status := "OK"
		if err != nil {
			outcome, status = "error", "APPLY_FAILED"
			span.RecordError(err)
			span.SetStatus(codes.Error, status)
		} else {
			span.SetStatus(codes.Ok, status)
		}
		span.End()

		lat := time.Since(start).Seconds()
		w.reqCounter.Add(1, observability.L("use_case", useCase), observability.L("outcome", outcome))
		w.durHistogram.Observe(lat, observability.L("use_case", useCase))

		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", status),
			observability.F("latency_seconds", lat),
			observability.F("tombstone", evt.IsTombstone()),
		}
		if evt.IsTombstone() {
			fields = append(fields, observability.F("removed", removed))
		}
		if err != nil {
			fields = append(fields, observability.F("error", err.Error()))
			logger.Error("use_case_done", fields...)
			return
		}
		logger.Info("use_case_done", fields...)
	}()

	if evt.ProductID == "" {
		outcome = "invalid"
		return nil
	}

	if evt.IsTombstone() {
		removed, err = w.repo.DeleteProduct(ctx, evt.ProductID, evt.OccurredAt)
		if err != nil {
			return fmt.Errorf("mirror: delete product %s: %w", evt.ProductID, err)
		}
		outcome = "deleted"
		return nil
	}

	v := &dommirror.Variant{
		ProductID:  evt.ProductID,
		VariantSKU: evt.SKU(),
		Sizes:      evt.SizeStockMap,
		Reserved:   evt.Reserved,
		Available:  evt.Available,
		Version:    evt.Version,
		EventAt:    evt.OccurredAt,
		UpdatedAt:  time.Now().UTC(),
	}
	if v.Validate() != nil {
		outcome = "invalid"
		return nil
	}
	applied, err := w.repo.Apply(ctx, v)
	if err != nil {
		return fmt.Errorf("mirror: apply %s/%s: %w", v.ProductID, v.VariantSKU, err)
	}
	if !applied {
		outcome = "stale"
	}
	return nil
}

// ListByProduct exposes the mirrored variants for read endpoints.
func (w *Worker) ListByProduct(ctx context.Context, productID string) ([]*dommirror.Variant, error) {
	return w.repo.ListByProduct(ctx, productID)
}
