package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	domain "github.com/Parth18062003/E-Commerce-sub000/internal/domain/ledger"
	"github.com/Parth18062003/E-Commerce-sub000/internal/observability"
	"github.com/Parth18062003/E-Commerce-sub000/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	ledgerService     = "inventory-service"
	spanPrefix        = "UC."
	defaultMaxRetries = 5

	useCaseAddStock      = "ledger.add_stock"
	useCaseSeedStock     = "ledger.seed_stock"
	useCaseReduceStock   = "ledger.reduce_stock"
	useCaseReserveStock  = "ledger.reserve_stock"
	useCaseReleaseStock  = "ledger.release_reserved_stock"
	useCaseUpdateStock   = "ledger.update_stock_quantity"
	useCaseDeleteProduct = "ledger.delete_product"
)

// Locker serialises writers of one ledger key.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

type Config struct {
	// MaxWriteRetries bounds how often a write is re-read and re-validated
	// after losing a version race.
	MaxWriteRetries int
}

// AddStockCommand adds the listed per-size quantities to a variant,
// creating the ledger entry on first use.
type AddStockCommand struct {
	ProductID  string
	VariantSKU string
	Color      string
	Sizes      map[string]int
}

// StockCommand targets one size of one variant. Quantity is signed only for
// UpdateStockQuantity.
type StockCommand struct {
	ProductID  string
	VariantSKU string
	Size       string
	Quantity   int
}

func (c StockCommand) key() domain.Key {
	return domain.Key{ProductID: c.ProductID, VariantSKU: c.VariantSKU}
}

// Service is the reservation engine: every operation reads, validates and
// writes one ledger entry under its key lock with a version check, then
// announces the new snapshot.
type Service struct {
	repo     domain.Repository
	locker   Locker
	notifier *Notifier
	cfg      Config

	log    observability.Logger
	tracer observability.Tracer
	// RED metrics (supplied via DI; do not instantiate inside methods).
	reqCounter      observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram    observability.Histogram // usecase_duration_seconds{use_case}
	conflictCounter observability.Counter   // ledger_write_conflicts_total{operation}
}

func NewService(repo domain.Repository, locker Locker, notifier *Notifier, cfg Config, tel observability.Observability) *Service {
	tel = observability.OrNop(tel)
	if cfg.MaxWriteRetries <= 0 {
		cfg.MaxWriteRetries = defaultMaxRetries
	}
	m := tel.Metrics()
	return &Service{
		repo:            repo,
		locker:          locker,
		notifier:        notifier,
		cfg:             cfg,
		log:             tel.Logger().With(observability.F("service", ledgerService)),
		tracer:          tel.Tracer(),
		reqCounter:      m.Counter(observability.MUsecaseRequests),
		durHistogram:    m.Histogram(observability.MUsecaseDuration),
		conflictCounter: m.Counter(observability.MLedgerWriteConflicts),
	}
}

// AddStock increments (or creates) the listed sizes. Used for manual
// restocking.
func (s *Service) AddStock(ctx context.Context, cmd AddStockCommand) (*domain.Entry, error) {
	key := domain.Key{ProductID: cmd.ProductID, VariantSKU: cmd.VariantSKU}
	create := func() *domain.Entry { return domain.NewEntry(cmd.ProductID, cmd.VariantSKU, cmd.Color) }
	return s.execute(ctx, useCaseAddStock, "AddStock", key, "", sumSizes(cmd.Sizes), create, func(e *domain.Entry) error {
		if cmd.Color != "" {
			e.Color = cmd.Color
		}
		return e.AddStock(cmd.Sizes)
	})
}

// SeedStock creates the entry of a newly announced variant with its initial
// sizes. It never adds to an existing entry: a variant that already has one
// fails with ErrAlreadySeeded, so a redelivered seed event changes nothing.
func (s *Service) SeedStock(ctx context.Context, cmd AddStockCommand) (*domain.Entry, error) {
	key := domain.Key{ProductID: cmd.ProductID, VariantSKU: cmd.VariantSKU}
	create := func() *domain.Entry { return domain.NewEntry(cmd.ProductID, cmd.VariantSKU, cmd.Color) }
	return s.execute(ctx, useCaseSeedStock, "SeedStock", key, "", sumSizes(cmd.Sizes), create, func(e *domain.Entry) error {
		if e.Version > 0 {
			return domain.ErrAlreadySeeded
		}
		return e.AddStock(cmd.Sizes)
	})
}

func sumSizes(sizes map[string]int) int {
	n := 0
	for _, q := range sizes {
		n += q
	}
	return n
}

// ReduceStock removes stock independent of any reservation (write-off,
// fulfilled order).
func (s *Service) ReduceStock(ctx context.Context, cmd StockCommand) (*domain.Entry, error) {
	return s.execute(ctx, useCaseReduceStock, "ReduceStock", cmd.key(), cmd.Size, cmd.Quantity, nil, func(e *domain.Entry) error {
		return e.ReduceStock(cmd.Size, cmd.Quantity)
	})
}

// ReserveStock holds units behind a cart line.
//
// Availability is checked both against the size's raw quantity and against
// the variant's aggregate available quantity, since reservations are not
// tracked per size.
func (s *Service) ReserveStock(ctx context.Context, cmd StockCommand) (*domain.Entry, error) {
	return s.execute(ctx, useCaseReserveStock, "ReserveStock", cmd.key(), cmd.Size, cmd.Quantity, nil, func(e *domain.Entry) error {
		return e.Reserve(cmd.Size, cmd.Quantity)
	})
}

// ReleaseReservedStock returns previously reserved units.
func (s *Service) ReleaseReservedStock(ctx context.Context, cmd StockCommand) (*domain.Entry, error) {
	return s.execute(ctx, useCaseReleaseStock, "ReleaseReservedStock", cmd.key(), cmd.Size, cmd.Quantity, nil, func(e *domain.Entry) error {
		return e.Release(cmd.Quantity)
	})
}

// UpdateStockQuantity applies a signed change to one size.
func (s *Service) UpdateStockQuantity(ctx context.Context, cmd StockCommand) (*domain.Entry, error) {
	return s.execute(ctx, useCaseUpdateStock, "UpdateStockQuantity", cmd.key(), cmd.Size, cmd.Quantity, nil, func(e *domain.Entry) error {
		return e.UpdateStockQuantity(cmd.Size, cmd.Quantity)
	})
}

func (s *Service) GetEntry(ctx context.Context, key domain.Key) (*domain.Entry, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, key)
}

func (s *Service) ListByProduct(ctx context.Context, productID string) ([]*domain.Entry, error) {
	if productID == "" {
		return nil, fmt.Errorf("%w: product id is required", domain.ErrInvalidKey)
	}
	return s.repo.ListByProduct(ctx, productID)
}

// DeleteProduct removes every ledger entry of productID and publishes the
// tombstone. Deleting an unknown product is not an error.
//
// The key lock of every existing variant is held across the delete and the
// tombstone publish, so no snapshot of the product can be published after
// its tombstone.
func (s *Service) DeleteProduct(ctx context.Context, productID string) (removed int, err error) {
	ctx, finish := s.begin(ctx, useCaseDeleteProduct, "DeleteProduct",
		[]attribute.KeyValue{attribute.String("product.id", productID)},
		observability.F("product_id", productID))
	var publishErr error
	defer func() { finish(err, publishErr, observability.F("removed", removed)) }()

	if productID == "" {
		return 0, fmt.Errorf("%w: product id is required", domain.ErrInvalidKey)
	}
	entries, err := s.repo.ListByProduct(ctx, productID)
	if err != nil {
		return 0, fmt.Errorf("ledger: delete product: %w", err)
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, e.Key().String())
	}
	// Fixed order keeps two deletes of one product from deadlocking.
	sort.Strings(keys)
	for _, k := range keys {
		unlock, lockErr := s.locker.Lock(ctx, k)
		if lockErr != nil {
			return 0, fmt.Errorf("lock %s: %w", k, lockErr)
		}
		defer unlock()
	}

	removed, err = s.repo.DeleteByProduct(ctx, productID)
	if err != nil {
		return 0, fmt.Errorf("ledger: delete product: %w", err)
	}
	publishErr = s.notifier.ProductDeleted(ctx, productID)
	return removed, nil
}

// execute runs one single-entry operation. The snapshot is published while
// the key lock is still held, so snapshots of one key leave in version order.
func (s *Service) execute(
	ctx context.Context,
	useCase, spanName string,
	key domain.Key,
	size string,
	qty int,
	create func() *domain.Entry,
	apply func(*domain.Entry) error,
) (entry *domain.Entry, err error) {
	ctx, finish := s.begin(ctx, useCase, spanName,
		[]attribute.KeyValue{
			attribute.String("product.id", key.ProductID),
			attribute.String("variant.sku", key.VariantSKU),
			attribute.String("stock.size", size),
			attribute.Int("stock.quantity", qty),
		},
		observability.F("product_id", key.ProductID),
		observability.F("variant_sku", key.VariantSKU),
		observability.F("size", size),
		observability.F("quantity", qty),
	)
	var publishErr error
	defer func() {
		fields := []observability.Field{}
		if entry != nil {
			fields = append(fields,
				observability.F("total_quantity", entry.TotalQuantity),
				observability.F("reserved_quantity", entry.ReservedQuantity),
				observability.F("available_quantity", entry.AvailableQuantity),
				observability.F("version", entry.Version),
			)
		}
		finish(err, publishErr, fields...)
	}()

	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", useCase, err)
	}
	unlock, err := s.locker.Lock(ctx, key.String())
	if err != nil {
		return nil, fmt.Errorf("%s: lock %s: %w", useCase, key, err)
	}
	defer unlock()

	entry, err = s.mutate(ctx, useCase, key, create, apply)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", useCase, err)
	}
	publishErr = s.notifier.EntryChanged(ctx, entry)
	return entry.Clone(), nil
}

// mutate runs apply against the freshest stored entry until the write wins
// the version check or retries run out. The caller holds the key lock.
func (s *Service) mutate(
	ctx context.Context,
	op string,
	key domain.Key,
	create func() *domain.Entry,
	apply func(*domain.Entry) error,
) (*domain.Entry, error) {
	for attempt := 0; attempt < s.cfg.MaxWriteRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		current, err := s.repo.Get(ctx, key)
		if errors.Is(err, domain.ErrVariantNotFound) && create != nil {
			entry := create()
			if err := apply(entry); err != nil {
				return nil, err
			}
			if err := entry.Validate(); err != nil {
				return nil, err
			}
			err := s.repo.Create(ctx, entry)
			if errors.Is(err, domain.ErrAlreadyExists) {
				if _, getErr := s.repo.Get(ctx, key); errors.Is(getErr, domain.ErrVariantNotFound) {
					return nil, domain.ErrSKUInUse
				}
				s.conflictCounter.Add(1, observability.L("operation", op))
				continue
			}
			if err != nil {
				return nil, err
			}
			return entry, nil
		}
		if err != nil {
			return nil, err
		}

		expected := current.Version
		next := current.Clone()
		if err := apply(next); err != nil {
			return nil, err
		}
		if err := next.Validate(); err != nil {
			return nil, err
		}
		err = s.repo.Update(ctx, next, expected)
		if errors.Is(err, domain.ErrVersionConflict) {
			s.conflictCounter.Add(1, observability.L("operation", op))
			continue
		}
		if err != nil {
			return nil, err
		}
		return next, nil
	}
	return nil, domain.ErrConcurrentModification
}

// begin opens the span and returns the func that closes it, records RED
// metrics and writes the use_case_done log line.
func (s *Service) begin(
	ctx context.Context,
	useCase, spanName string,
	attrs []attribute.KeyValue,
	fields ...observability.Field,
) (context.Context, func(err, publishErr error, extra ...observability.Field)) {
	logger := logctx.FromOr(ctx, s.log).With(
		append([]observability.Field{observability.F("use_case", useCase)}, fields...)...,
	)
	ctx, span := s.tracer.Start(ctx, spanPrefix+spanName,
		append([]attribute.KeyValue{attribute.String("use_case", useCase)}, attrs...)...,
	)
	start := time.Now()

	return ctx, func(err, publishErr error, extra ...observability.Field) {
		outcome, statusText := "success", "OK"
		if err != nil {
			outcome, statusText = "error", statusFromError(err)
			if domain.IsBusinessError(err) {
				outcome = "rejected"
			}
		}

		if span != nil {
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, statusText)
			} else {
				span.SetStatus(codes.Ok, statusText)
			}
			if publishErr != nil {
				span.AddEvent("ledger.publish_failed",
					trace.WithAttributes(attribute.String("error", publishErr.Error())))
			}
			span.End()
		}

		latency := time.Since(start).Seconds()
		s.reqCounter.Add(1,
			observability.L("use_case", useCase),
			observability.L("outcome", outcome),
		)
		s.durHistogram.Observe(latency,
			observability.L("use_case", useCase),
		)

		out := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", statusText),
			observability.F("latency_seconds", latency),
		}
		out = append(out, observability.TraceFields(ctx)...)
		out = append(out, extra...)
		if publishErr != nil {
			out = append(out, observability.F("event_publish_error", publishErr.Error()))
		}
		if err != nil {
			out = append(out, observability.F("error", err.Error()))
		}

		switch {
		case err != nil && outcome == "error":
			logger.Error("use_case_done", out...)
		case publishErr != nil:
			logger.Warn("use_case_done", out...)
		default:
			logger.Info("use_case_done", out...)
		}
	}
}

func statusFromError(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidQuantity):
		return "INVALID_QUANTITY"
	case errors.Is(err, domain.ErrInvalidKey):
		return "INVALID_KEY"
	case errors.Is(err, domain.ErrSizeNotFound):
		return "SIZE_NOT_FOUND"
	case errors.Is(err, domain.ErrVariantNotFound):
		return "VARIANT_NOT_FOUND"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "INSUFFICIENT_STOCK"
	case errors.Is(err, domain.ErrNoReservationToRelease):
		return "NO_RESERVATION"
	case errors.Is(err, domain.ErrConcurrentModification):
		return "WRITE_CONFLICT"
	case errors.Is(err, domain.ErrSKUInUse):
		return "SKU_IN_USE"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "CONTEXT_CANCELED"
	default:
		return "INTERNAL"
	}
}
