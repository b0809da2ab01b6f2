package cart

import (
	"context"
	"errors"
	"sync"
	"testing"

	domain "github.com/Parth18062003/E-Commerce-sub000/internal/domain/cart"
	domledger "github.com/Parth18062003/E-Commerce-sub000/internal/domain/ledger"
	"github.com/Parth18062003/E-Commerce-sub000/internal/infrastructure/lock"
	"github.com/Parth18062003/E-Commerce-sub000/internal/infrastructure/memory"
)

// stubReserver holds a single pool of stock and records every call.
type stubReserver struct {
	mu         sync.Mutex
	available  int
	reserved   int
	reserveErr error
	releaseErr error
	reserves   []StockRequest
	releases   []StockRequest
}

func (r *stubReserver) Reserve(_ context.Context, req StockRequest) (ReservationResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reserves = append(r.reserves, req)
	if r.reserveErr != nil {
		return ReservationResult{}, r.reserveErr
	}
	if req.Quantity > r.available {
		return ReservationResult{Message: "not enough stock", Reason: domledger.ReasonInsufficientStock}, nil
	}
	r.available -= req.Quantity
	r.reserved += req.Quantity
	return ReservationResult{Success: true, AvailableQty: r.available, ReservedQty: r.reserved}, nil
}

func (r *stubReserver) Release(_ context.Context, req StockRequest) (ReservationResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.releases = append(r.releases, req)
	if r.releaseErr != nil {
		return ReservationResult{}, r.releaseErr
	}
	r.available += req.Quantity
	r.reserved -= req.Quantity
	return ReservationResult{Success: true, AvailableQty: r.available, ReservedQty: r.reserved}, nil
}

type failingSaveRepo struct {
	*memory.CartRepository
	err error
}

func (r *failingSaveRepo) Save(ctx context.Context, c *domain.Cart) error {
	if r.err != nil {
		return r.err
	}
	return r.CartRepository.Save(ctx, c)
}

func newService(repo domain.Repository, reserver Reserver) *Service {
	if repo == nil {
		repo = memory.NewCartRepository()
	}
	return NewService(repo, reserver, lock.NewKeyedLocker(), nil)
}

func item(cartID string, qty int) ItemCommand {
	return ItemCommand{CartID: cartID, UserID: "u1", ProductID: "p1", VariantSKU: "sku-1", Size: "M", Quantity: qty}
}

func TestAddItem_ReservesAndCreatesCart(t *testing.T) {
	res := &stubReserver{available: 5}
	svc := newService(nil, res)
	ctx := context.Background()

	c, err := svc.AddItem(ctx, item("", 2))
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if c.ID == "" {
		t.Fatal("cart id must be generated")
	}
	c, err = svc.AddItem(ctx, item(c.ID, 1))
	if err != nil {
		t.Fatalf("AddItem again: %v", err)
	}
	line := domain.LineKey{ProductID: "p1", VariantSKU: "sku-1", Size: "M"}
	if got := c.Quantity(line); got != 3 {
		t.Fatalf("line quantity = %d, want 3", got)
	}
	if res.reserved != 3 || len(res.reserves) != 2 || res.reserves[1].Quantity != 1 {
		t.Fatalf("reservations = %+v (reserved %d)", res.reserves, res.reserved)
	}

	stored, err := svc.Get(ctx, c.ID)
	if err != nil || stored.Quantity(line) != 3 {
		t.Fatalf("stored cart = %+v, %v", stored, err)
	}
}

func TestAddItem_RefusedReservationLeavesCartUnchanged(t *testing.T) {
	res := &stubReserver{available: 1}
	svc := newService(nil, res)
	ctx := context.Background()

	c, err := svc.AddItem(ctx, item("c1", 1))
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	_, err = svc.AddItem(ctx, item(c.ID, 1))
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("err = %v, want ErrInsufficientStock", err)
	}
	stored, _ := svc.Get(ctx, c.ID)
	if got := stored.Quantity(domain.LineKey{ProductID: "p1", VariantSKU: "sku-1", Size: "M"}); got != 1 {
		t.Fatalf("line quantity = %d, want 1", got)
	}
}

func TestAddItem_UnknownOutcomeAborts(t *testing.T) {
	res := &stubReserver{available: 5, reserveErr: context.DeadlineExceeded}
	svc := newService(nil, res)

	_, err := svc.AddItem(context.Background(), item("c1", 1))
	if !errors.Is(err, domain.ErrReservationUnknown) {
		t.Fatalf("err = %v, want ErrReservationUnknown", err)
	}
	if _, err := svc.Get(context.Background(), "c1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("cart must not be saved: %v", err)
	}
}

func TestAddItem_SaveFailureReleasesReservation(t *testing.T) {
	res := &stubReserver{available: 5}
	repo := &failingSaveRepo{CartRepository: memory.NewCartRepository(), err: errors.New("disk full")}
	svc := newService(repo, res)

	if _, err := svc.AddItem(context.Background(), item("c1", 2)); err == nil {
		t.Fatal("expected save error")
	}
	if res.reserved != 0 || len(res.releases) != 1 || res.releases[0].Quantity != 2 {
		t.Fatalf("compensation missing: reserved=%d releases=%+v", res.reserved, res.releases)
	}
}

func TestUpdateItemQuantity(t *testing.T) {
	res := &stubReserver{available: 10}
	svc := newService(nil, res)
	ctx := context.Background()
	if _, err := svc.AddItem(ctx, item("c1", 3)); err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	if _, err := svc.UpdateItemQuantity(ctx, item("c1", 5)); err != nil {
		t.Fatalf("increase: %v", err)
	}
	if res.reserved != 5 {
		t.Fatalf("reserved = %d, want 5", res.reserved)
	}

	if _, err := svc.UpdateItemQuantity(ctx, item("c1", 1)); err != nil {
		t.Fatalf("decrease: %v", err)
	}
	if res.reserved != 1 || res.releases[len(res.releases)-1].Quantity != 4 {
		t.Fatalf("reserved = %d releases = %+v", res.reserved, res.releases)
	}

	if _, err := svc.UpdateItemQuantity(ctx, item("c1", 0)); !errors.Is(err, domain.ErrInvalidQuantity) {
		t.Fatalf("zero: err = %v", err)
	}
	missing := item("c1", 2)
	missing.Size = "XL"
	if _, err := svc.UpdateItemQuantity(ctx, missing); !errors.Is(err, domain.ErrItemNotFound) {
		t.Fatalf("missing line: err = %v", err)
	}
	if _, err := svc.UpdateItemQuantity(ctx, item("c404", 2)); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing cart: err = %v", err)
	}
}

func TestRemoveItem_ReleaseFailureDoesNotBlock(t *testing.T) {
	res := &stubReserver{available: 10}
	svc := newService(nil, res)
	ctx := context.Background()
	if _, err := svc.AddItem(ctx, item("c1", 3)); err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	res.releaseErr = errors.New("gateway down")
	c, err := svc.RemoveItem(ctx, item("c1", 0))
	if err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}
	if len(c.Items) != 0 {
		t.Fatalf("items = %+v, want none", c.Items)
	}
	if len(res.releases) != 1 || res.releases[0].Quantity != 3 {
		t.Fatalf("releases = %+v", res.releases)
	}

	if _, err := svc.RemoveItem(ctx, item("c1", 0)); !errors.Is(err, domain.ErrItemNotFound) {
		t.Fatalf("second remove: err = %v", err)
	}
}
