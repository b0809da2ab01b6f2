package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/Parth18062003/E-Commerce-sub000/internal/application"
	domain "github.com/Parth18062003/E-Commerce-sub000/internal/domain/ledger"
	domoutbox "github.com/Parth18062003/E-Commerce-sub000/internal/domain/outbox"
)

type captureSubscriber struct {
	handlers map[string]domoutbox.Handler
}

func (s *captureSubscriber) Subscribe(eventName string, h domoutbox.Handler) {
	if s.handlers == nil {
		s.handlers = make(map[string]domoutbox.Handler)
	}
	s.handlers[eventName] = h
}

func TestSeedWorker_SeedsPositiveSizes(t *testing.T) {
	f := newFixture(t, nil)
	sub := &captureSubscriber{}
	tel, _ := newTelemetry(t)
	NewSeedWorker(sub, application.UseCaseFunc[AddStockCommand, *domain.Entry](f.svc.SeedStock), tel).Start()

	h, ok := sub.handlers[domain.EventProductCreated]
	if !ok {
		t.Fatal("seed worker did not subscribe to product.created")
	}

	evt := domain.NewProductCreatedEvent("p1", []domain.VariantStock{
		{VariantSKU: "a", Color: "red", SizeStockMap: map[string]int{"M": 4, "L": 0}},
		{VariantSKU: "b", Color: "blue", SizeStockMap: map[string]int{"S": 0}},
	})
	if err := h(context.Background(), evt); err != nil {
		t.Fatalf("handle: %v", err)
	}

	entries, err := f.svc.ListByProduct(context.Background(), "p1")
	if err != nil {
		t.Fatalf("ListByProduct: %v", err)
	}
	if len(entries) != 1 || entries[0].VariantSKU != "a" {
		t.Fatalf("entries = %+v, want only variant a", entries)
	}
	if entries[0].TotalQuantity != 4 {
		t.Fatalf("total = %d, want 4", entries[0].TotalQuantity)
	}
	if _, ok := entries[0].SizeQuantity("L"); ok {
		t.Fatal("zero-quantity size must not be seeded")
	}
}

func TestSeedWorker_ContinuesPastFailedVariant(t *testing.T) {
	boom := errors.New("store unavailable")
	var seen []string
	seed := application.UseCaseFunc[AddStockCommand, *domain.Entry](func(_ context.Context, cmd AddStockCommand) (*domain.Entry, error) {
		seen = append(seen, cmd.VariantSKU)
		if cmd.VariantSKU == "a" {
			return nil, boom
		}
		return domain.NewEntry(cmd.ProductID, cmd.VariantSKU, cmd.Color), nil
	})
	sub := &captureSubscriber{}
	NewSeedWorker(sub, seed, nil).Start()

	evt := domain.NewProductCreatedEvent("p1", []domain.VariantStock{
		{VariantSKU: "a", SizeStockMap: map[string]int{"M": 1}},
		{VariantSKU: "b", SizeStockMap: map[string]int{"M": 1}},
	})
	err := sub.handlers[domain.EventProductCreated](context.Background(), evt)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped store error", err)
	}
	if len(seen) != 2 {
		t.Fatalf("variants attempted = %v, want both", seen)
	}
}

func TestSeedWorker_IgnoresOtherEvents(t *testing.T) {
	sub := &captureSubscriber{}
	called := false
	seed := application.UseCaseFunc[AddStockCommand, *domain.Entry](func(context.Context, AddStockCommand) (*domain.Entry, error) {
		called = true
		return nil, nil
	})
	NewSeedWorker(sub, seed, nil).Start()

	if err := sub.handlers[domain.EventProductCreated](context.Background(), domain.NewTombstone("p1")); err != nil {
		t.Fatalf("err = %v", err)
	}
	if called {
		t.Fatal("seeding must not run for foreign events")
	}
}

func TestSeedWorker_RedeliveryDoesNotAddStockTwice(t *testing.T) {
	f := newFixture(t, nil)
	sub := &captureSubscriber{}
	NewSeedWorker(sub, application.UseCaseFunc[AddStockCommand, *domain.Entry](f.svc.SeedStock), nil).Start()
	h := sub.handlers[domain.EventProductCreated]

	evt := domain.NewProductCreatedEvent("p1", []domain.VariantStock{
		{VariantSKU: "a", SizeStockMap: map[string]int{"M": 10}},
	})
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := h(ctx, evt); err != nil {
			t.Fatalf("delivery %d: %v", i+1, err)
		}
	}

	e, err := f.svc.GetEntry(ctx, domain.Key{ProductID: "p1", VariantSKU: "a"})
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if e.TotalQuantity != 10 || e.Version != 1 {
		t.Fatalf("after duplicate delivery total=%d version=%d, want 10 and 1", e.TotalQuantity, e.Version)
	}
	if n := len(f.pub.changes()); n != 1 {
		t.Fatalf("change events = %d, want 1", n)
	}
}

func TestSeedWorker_RetryAfterPartialFailureSeedsOnlyTheRest(t *testing.T) {
	f := newFixture(t, nil)
	failB := true
	seed := application.UseCaseFunc[AddStockCommand, *domain.Entry](func(ctx context.Context, cmd AddStockCommand) (*domain.Entry, error) {
		if cmd.VariantSKU == "b" && failB {
			return nil, errors.New("store unavailable")
		}
		return f.svc.SeedStock(ctx, cmd)
	})
	sub := &captureSubscriber{}
	NewSeedWorker(sub, seed, nil).Start()
	h := sub.handlers[domain.EventProductCreated]

	evt := domain.NewProductCreatedEvent("p1", []domain.VariantStock{
		{VariantSKU: "a", SizeStockMap: map[string]int{"M": 3}},
		{VariantSKU: "b", SizeStockMap: map[string]int{"L": 5}},
	})
	ctx := context.Background()
	if err := h(ctx, evt); err == nil {
		t.Fatal("first delivery should report the failed variant")
	}
	failB = false
	if err := h(ctx, evt); err != nil {
		t.Fatalf("redelivery: %v", err)
	}

	entries, err := f.svc.ListByProduct(ctx, "p1")
	if err != nil {
		t.Fatalf("ListByProduct: %v", err)
	}
	got := map[string]int{}
	for _, e := range entries {
		got[e.VariantSKU] = e.TotalQuantity
	}
	if got["a"] != 3 || got["b"] != 5 {
		t.Fatalf("totals = %v, want a=3 b=5", got)
	}
}
