package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/Parth18062003/E-Commerce-sub000/internal/domain/cart"
	domledger "github.com/Parth18062003/E-Commerce-sub000/internal/domain/ledger"
	"github.com/Parth18062003/E-Commerce-sub000/internal/observability"
	"github.com/Parth18062003/E-Commerce-sub000/internal/observability/logctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	cartService = "cart-service"
	spanPrefix  = "UC."
)

// StockRequest names the stock a cart line holds.
type StockRequest struct {
	ProductID  string
	VariantSKU string
	Size       string
	Quantity   int
}

// ReservationResult is the gateway's answer. A returned error instead means
// the outcome is unknown.
type ReservationResult struct {
	Success      bool
	Message      string
	Reason       string
	AvailableQty int
	ReservedQty  int
}

// Reserver is the synchronous reservation gateway as seen by the cart.
type Reserver interface {
	Reserve(ctx context.Context, req StockRequest) (ReservationResult, error)
	Release(ctx context.Context, req StockRequest) (ReservationResult, error)
}

// Locker serialises operations on one cart.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

type ItemCommand struct {
	CartID     string
	UserID     string
	ProductID  string
	VariantSKU string
	Size       string
	Quantity   int
}

func (c ItemCommand) line() domain.LineKey {
	return domain.LineKey{ProductID: c.ProductID, VariantSKU: c.VariantSKU, Size: c.Size}
}

// Service runs the cart workflow. Reservation failures abort the cart
// change; release failures are logged and the change goes through.
type Service struct {
	repo     domain.Repository
	reserver Reserver
	locker   Locker

	log          observability.Logger
	tracer       observability.Tracer
	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
}

func NewService(repo domain.Repository, reserver Reserver, locker Locker, tel observability.Observability) *Service {
	tel = observability.OrNop(tel)
	m := tel.Metrics()
	return &Service{
		repo:         repo,
		reserver:     reserver,
		locker:       locker,
		log:          tel.Logger().With(observability.F("service", cartService)),
		tracer:       tel.Tracer(),
		reqCounter:   m.Counter(observability.MUsecaseRequests),
		durHistogram: m.Histogram(observability.MUsecaseDuration),
	}
}

func (s *Service) Get(ctx context.Context, cartID string) (*domain.Cart, error) {
	return s.repo.Get(ctx, cartID)
}

// AddItem reserves cmd.Quantity more units and then adds them to the line.
// A cart is created when cmd.CartID is empty or unknown.
func (s *Service) AddItem(ctx context.Context, cmd ItemCommand) (c *domain.Cart, err error) {
	ctx, finish := s.begin(ctx, "cart.add_item", "AddItem", cmd)
	defer func() { finish(err) }()

	if cmd.Quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}
	if cmd.CartID == "" {
		cmd.CartID = uuid.NewString()
	}
	unlock, err := s.locker.Lock(ctx, cmd.CartID)
	if err != nil {
		return nil, fmt.Errorf("cart: lock: %w", err)
	}
	defer unlock()

	c, err = s.repo.Get(ctx, cmd.CartID)
	if errors.Is(err, domain.ErrNotFound) {
		c, err = domain.New(cmd.CartID, cmd.UserID), nil
	}
	if err != nil {
		return nil, err
	}

	line := cmd.line()
	next := c.Quantity(line) + cmd.Quantity
	if err := s.reserve(ctx, line, cmd.Quantity); err != nil {
		return nil, err
	}
	if err := c.SetQuantity(line, next); err != nil {
		s.compensate(ctx, line, cmd.Quantity)
		return nil, err
	}
	if err := s.repo.Save(ctx, c); err != nil {
		s.compensate(ctx, line, cmd.Quantity)
		return nil, fmt.Errorf("cart: save: %w", err)
	}
	return c, nil
}

// UpdateItemQuantity sets an existing line to cmd.Quantity, reserving an
// increase up front and releasing a decrease after the cart is saved.
func (s *Service) UpdateItemQuantity(ctx context.Context, cmd ItemCommand) (c *domain.Cart, err error) {
	ctx, finish := s.begin(ctx, "cart.update_item_quantity", "UpdateItemQuantity", cmd)
	defer func() { finish(err) }()

	if cmd.Quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}
	unlock, err := s.locker.Lock(ctx, cmd.CartID)
	if err != nil {
		return nil, fmt.Errorf("cart: lock: %w", err)
	}
	defer unlock()

	c, err = s.repo.Get(ctx, cmd.CartID)
	if err != nil {
		return nil, err
	}
	line := cmd.line()
	current := c.Quantity(line)
	if current == 0 {
		return nil, domain.ErrItemNotFound
	}
	delta := cmd.Quantity - current
	if delta == 0 {
		return c, nil
	}
	if delta > 0 {
		if err := s.reserve(ctx, line, delta); err != nil {
			return nil, err
		}
	}
	if err := c.SetQuantity(line, cmd.Quantity); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, c); err != nil {
		if delta > 0 {
			s.compensate(ctx, line, delta)
		}
		return nil, fmt.Errorf("cart: save: %w", err)
	}
	if delta < 0 {
		s.release(ctx, line, -delta)
	}
	return c, nil
}

// RemoveItem drops the line and releases everything it held.
func (s *Service) RemoveItem(ctx context.Context, cmd ItemCommand) (c *domain.Cart, err error) {
	ctx, finish := s.begin(ctx, "cart.remove_item", "RemoveItem", cmd)
	defer func() { finish(err) }()

	unlock, err := s.locker.Lock(ctx, cmd.CartID)
	if err != nil {
		return nil, fmt.Errorf("cart: lock: %w", err)
	}
	defer unlock()

	c, err = s.repo.Get(ctx, cmd.CartID)
	if err != nil {
		return nil, err
	}
	line := cmd.line()
	held := c.Quantity(line)
	if err := c.Remove(line); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, c); err != nil {
		return nil, fmt.Errorf("cart: save: %w", err)
	}
	s.release(ctx, line, held)
	return c, nil
}

func (s *Service) reserve(ctx context.Context, line domain.LineKey, qty int) error {
	res, err := s.reserver.Reserve(ctx, stockRequest(line, qty))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrReservationUnknown, err)
	}
	if res.Success {
		return nil
	}
	if res.Reason == domledger.ReasonInsufficientStock {
		return fmt.Errorf("%w: %s", domain.ErrInsufficientStock, res.Message)
	}
	return fmt.Errorf("%w: %s", domain.ErrReservationFailed, res.Message)
}

// release is best effort; the cart change has already been saved.
func (s *Service) release(ctx context.Context, line domain.LineKey, qty int) {
	if qty <= 0 {
		return
	}
	res, err := s.reserver.Release(ctx, stockRequest(line, qty))
	if err == nil && res.Success {
		return
	}
	fields := []observability.Field{
		observability.F("product_id", line.ProductID),
		observability.F("variant_sku", line.VariantSKU),
		observability.F("size", line.Size),
		observability.F("quantity", qty),
	}
	if err != nil {
		fields = append(fields, observability.F("error", err.Error()))
	} else {
		fields = append(fields,
			observability.F("reason", res.Reason),
			observability.F("message", res.Message),
		)
	}
	logctx.FromOr(ctx, s.log).Warn("stock_release_failed", fields...)
}

// compensate gives back a reservation whose cart change could not be saved.
func (s *Service) compensate(ctx context.Context, line domain.LineKey, qty int) {
	s.release(context.WithoutCancel(ctx), line, qty)
}

func stockRequest(line domain.LineKey, qty int) StockRequest {
	return StockRequest{
		ProductID:  line.ProductID,
		VariantSKU: line.VariantSKU,
		Size:       line.Size,
		Quantity:   qty,
	}
}

func (s *Service) begin(ctx context.Context, useCase, spanName string, cmd ItemCommand) (context.Context, func(error)) {
	logger := logctx.FromOr(ctx, s.log).With(
		observability.F("use_case", useCase),
		observability.F("cart_id", cmd.CartID),
		observability.F("product_id", cmd.ProductID),
		observability.F("variant_sku", cmd.VariantSKU),
		observability.F("size", cmd.Size),
		observability.F("quantity", cmd.Quantity),
	)
	ctx, span := s.tracer.Start(ctx, spanPrefix+spanName,
		attribute.String("use_case", useCase),
		attribute.String("cart.id", cmd.CartID),
		attribute.String("product.id", cmd.ProductID),
		attribute.String("variant.sku", cmd.VariantSKU),
	)
	start := time.Now()

	return ctx, func(err error) {
		outcome, status := "success", "OK"
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrInsufficientStock):
			outcome, status = "rejected", "INSUFFICIENT_STOCK"
		case errors.Is(err, domain.ErrReservationUnknown):
			outcome, status = "error", "RESERVATION_UNKNOWN"
		case errors.Is(err, domain.ErrInvalidQuantity),
			errors.Is(err, domain.ErrItemNotFound),
			errors.Is(err, domain.ErrNotFound),
			errors.Is(err, domain.ErrReservationFailed):
			outcome, status = "rejected", "REJECTED"
		default:
			outcome, status = "error", "INTERNAL"
		}

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, status)
		} else {
			span.SetStatus(codes.Ok, status)
		}
		span.End()

		lat := time.Since(start).Seconds()
		s.reqCounter.Add(1, observability.L("use_case", useCase), observability.L("outcome", outcome))
		s.durHistogram.Observe(lat, observability.L("use_case", useCase))

		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", status),
			observability.F("latency_seconds", lat),
		}
		fields = append(fields, observability.TraceFields(ctx)...)
		if err != nil {
			fields = append(fields, observability.F("error", err.Error()))
		}
		if outcome == "error" {
			logger.Error("use_case_done", fields...)
			return
		}
		logger.Info("use_case_done", fields...)
	}
}
