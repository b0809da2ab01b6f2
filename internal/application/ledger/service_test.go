package ledger

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	domain "github.com/Parth18062003/E-Commerce-sub000/internal/domain/ledger"
	dommirror "github.com/Parth18062003/E-Commerce-sub000/internal/domain/mirror"
	domoutbox "github.com/Parth18062003/E-Commerce-sub000/internal/domain/outbox"
	"github.com/Parth18062003/E-Commerce-sub000/internal/infrastructure/lock"
	"github.com/Parth18062003/E-Commerce-sub000/internal/infrastructure/memory"
	infraobs "github.com/Parth18062003/E-Commerce-sub000/internal/infrastructure/observability"
	"github.com/Parth18062003/E-Commerce-sub000/internal/infrastructure/observability/prometrics"
	"github.com/Parth18062003/E-Commerce-sub000/internal/infrastructure/observability/zaplogger"
	"github.com/Parth18062003/E-Commerce-sub000/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domoutbox.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e domoutbox.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) changes() []domain.ChangeEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.ChangeEvent
	for _, e := range p.events {
		if ce, ok := e.(domain.ChangeEvent); ok {
			out = append(out, ce)
		}
	}
	return out
}

func newTelemetry(t *testing.T) (observability.Observability, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	counters, histograms := infraobs.StandardInstruments(prometrics.New(reg, "", ""))
	return infraobs.New(nil, zaplogger.New(zaptest.NewLogger(t)), counters, histograms), reg
}

type fixture struct {
	svc  *Service
	repo *memory.LedgerRepository
	pub  *recordingPublisher
	reg  *prometheus.Registry
}

func newFixture(t *testing.T, repo domain.Repository) fixture {
	t.Helper()
	mem := memory.NewLedgerRepository()
	if repo == nil {
		repo = mem
	}
	tel, reg := newTelemetry(t)
	pub := &recordingPublisher{}
	svc := NewService(repo, lock.NewKeyedLocker(), NewNotifier(pub, 0, tel), Config{}, tel)
	return fixture{svc: svc, repo: mem, pub: pub, reg: reg}
}

func stock(productID, sku, size string, qty int) StockCommand {
	return StockCommand{ProductID: productID, VariantSKU: sku, Size: size, Quantity: qty}
}

func TestAddStock_CreatesEntryAndPublishesSnapshot(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	e, err := f.svc.AddStock(ctx, AddStockCommand{
		ProductID: "p1", VariantSKU: "sku-1", Color: "blue",
		Sizes: map[string]int{"M": 3, "L": 2},
	})
	if err != nil {
		t.Fatalf("AddStock: %v", err)
	}
	if e.TotalQuantity != 5 || e.AvailableQuantity != 5 || e.ReservedQuantity != 0 {
		t.Fatalf("unexpected totals: %+v", e)
	}
	if e.Version != 1 {
		t.Fatalf("version = %d, want 1", e.Version)
	}

	changes := f.pub.changes()
	if len(changes) != 1 {
		t.Fatalf("published %d events, want 1", len(changes))
	}
	got := changes[0]
	if got.SKU() != "sku-1" || got.SizeStockMap["M"] != 3 || got.SizeStockMap["L"] != 2 || got.Version != 1 {
		t.Fatalf("unexpected event: %+v", got)
	}
}

func TestReserveAndRelease_Scenario(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	if _, err := f.svc.AddStock(ctx, AddStockCommand{ProductID: "p1", VariantSKU: "sku-1", Sizes: map[string]int{"M": 5}}); err != nil {
		t.Fatalf("AddStock: %v", err)
	}

	e, err := f.svc.ReserveStock(ctx, stock("p1", "sku-1", "M", 3))
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if e.ReservedQuantity != 3 || e.AvailableQuantity != 2 {
		t.Fatalf("after reserve: %+v", e)
	}

	if _, err := f.svc.ReserveStock(ctx, stock("p1", "sku-1", "M", 3)); !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("second reserve err = %v, want ErrInsufficientStock", err)
	}

	e, err = f.svc.ReleaseReservedStock(ctx, stock("p1", "sku-1", "M", 3))
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if e.ReservedQuantity != 0 || e.AvailableQuantity != 5 {
		t.Fatalf("after release: %+v", e)
	}
	if e.Version != 3 {
		t.Fatalf("version = %d, want 3", e.Version)
	}

	if len(f.pub.changes()) != 3 {
		t.Fatalf("published %d events, want 3 (failed reserve must not publish)", len(f.pub.changes()))
	}
}

func TestOperations_OnMissingVariant(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	ops := map[string]func() error{
		"reduce": func() error {
			_, err := f.svc.ReduceStock(ctx, stock("p1", "nope", "M", 1))
			return err
		},
		"reserve": func() error {
			_, err := f.svc.ReserveStock(ctx, stock("p1", "nope", "M", 1))
			return err
		},
		"release": func() error {
			_, err := f.svc.ReleaseReservedStock(ctx, stock("p1", "nope", "M", 1))
			return err
		},
		"update": func() error {
			_, err := f.svc.UpdateStockQuantity(ctx, stock("p1", "nope", "M", 1))
			return err
		},
		"get": func() error {
			_, err := f.svc.GetEntry(ctx, domain.Key{ProductID: "p1", VariantSKU: "nope"})
			return err
		},
	}
	for name, op := range ops {
		if err := op(); !errors.Is(err, domain.ErrVariantNotFound) {
			t.Errorf("%s: err = %v, want ErrVariantNotFound", name, err)
		}
	}
	if _, err := f.svc.ReserveStock(ctx, stock("", "sku", "M", 1)); !errors.Is(err, domain.ErrInvalidKey) {
		t.Errorf("empty product: err = %v, want ErrInvalidKey", err)
	}
}

func TestPublishFailure_DoesNotRollBackWrite(t *testing.T) {
	f := newFixture(t, nil)
	f.pub.err = errors.New("broker down")
	ctx := context.Background()

	if _, err := f.svc.AddStock(ctx, AddStockCommand{ProductID: "p1", VariantSKU: "sku-1", Sizes: map[string]int{"M": 5}}); err != nil {
		t.Fatalf("AddStock must succeed despite publish failure: %v", err)
	}
	e, err := f.svc.GetEntry(ctx, domain.Key{ProductID: "p1", VariantSKU: "sku-1"})
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if e.TotalQuantity != 5 {
		t.Fatalf("total = %d, want 5", e.TotalQuantity)
	}

	expected := `
# HELP external_requests_total Calls made to external peers such as the broker.
# TYPE external_requests_total counter
external_requests_total{endpoint="inventory.changed",outcome="error",peer="broker"} 1
`
	if err := testutil.GatherAndCompare(f.reg, strings.NewReader(expected), "external_requests_total"); err != nil {
		t.Fatal(err)
	}
}

func TestConcurrentReservations_NeverOversell(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	const stockUnits = 10
	if _, err := f.svc.AddStock(ctx, AddStockCommand{ProductID: "p1", VariantSKU: "sku-1", Sizes: map[string]int{"M": stockUnits}}); err != nil {
		t.Fatalf("AddStock: %v", err)
	}

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int64
		refused   atomic.Int64
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.ReserveStock(ctx, stock("p1", "sku-1", "M", 1))
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				refused.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded.Load() != stockUnits || refused.Load() != 40 {
		t.Fatalf("succeeded=%d refused=%d, want %d/40", succeeded.Load(), refused.Load(), stockUnits)
	}
	e, _ := f.svc.GetEntry(ctx, domain.Key{ProductID: "p1", VariantSKU: "sku-1"})
	if e.ReservedQuantity != stockUnits || e.AvailableQuantity != 0 {
		t.Fatalf("final entry: %+v", e)
	}
	if err := e.Validate(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}

// conflictingRepo loses the version race a fixed number of times.
type conflictingRepo struct {
	*memory.LedgerRepository
	conflicts atomic.Int64
}

func (r *conflictingRepo) Update(ctx context.Context, e *domain.Entry, expected int64) error {
	if r.conflicts.Add(-1) >= 0 {
		return domain.ErrVersionConflict
	}
	return r.LedgerRepository.Update(ctx, e, expected)
}

func TestWriteConflicts_RetriedThenExhausted(t *testing.T) {
	repo := &conflictingRepo{LedgerRepository: memory.NewLedgerRepository()}
	f := newFixture(t, repo)
	ctx := context.Background()
	if _, err := f.svc.AddStock(ctx, AddStockCommand{ProductID: "p1", VariantSKU: "sku-1", Sizes: map[string]int{"M": 5}}); err != nil {
		t.Fatalf("AddStock: %v", err)
	}

	repo.conflicts.Store(2)
	if _, err := f.svc.ReserveStock(ctx, stock("p1", "sku-1", "M", 1)); err != nil {
		t.Fatalf("reserve after 2 conflicts: %v", err)
	}

	repo.conflicts.Store(defaultMaxRetries)
	_, err := f.svc.ReserveStock(ctx, stock("p1", "sku-1", "M", 1))
	if !errors.Is(err, domain.ErrConcurrentModification) {
		t.Fatalf("err = %v, want ErrConcurrentModification", err)
	}

	expected := `
# HELP ledger_write_conflicts_total Ledger writes rejected by the version check.
# TYPE ledger_write_conflicts_total counter
ledger_write_conflicts_total{operation="ledger.reserve_stock"} 7
`
	if err := testutil.GatherAndCompare(f.reg, strings.NewReader(expected), "ledger_write_conflicts_total"); err != nil {
		t.Fatal(err)
	}
}

func TestAddStock_SKUOwnedByAnotherProduct(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	if _, err := f.svc.AddStock(ctx, AddStockCommand{ProductID: "p1", VariantSKU: "sku-1", Sizes: map[string]int{"M": 1}}); err != nil {
		t.Fatalf("AddStock: %v", err)
	}
	_, err := f.svc.AddStock(ctx, AddStockCommand{ProductID: "p2", VariantSKU: "sku-1", Sizes: map[string]int{"M": 1}})
	if !errors.Is(err, domain.ErrSKUInUse) {
		t.Fatalf("err = %v, want ErrSKUInUse", err)
	}
}

func TestDeleteProduct_RemovesEntriesAndPublishesTombstone(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	for _, sku := range []string{"a", "b"} {
		if _, err := f.svc.AddStock(ctx, AddStockCommand{ProductID: "p1", VariantSKU: sku, Sizes: map[string]int{"M": 1}}); err != nil {
			t.Fatalf("AddStock %s: %v", sku, err)
		}
	}
	if _, err := f.svc.AddStock(ctx, AddStockCommand{ProductID: "p2", VariantSKU: "c", Sizes: map[string]int{"M": 1}}); err != nil {
		t.Fatalf("AddStock c: %v", err)
	}

	removed, err := f.svc.DeleteProduct(ctx, "p1")
	if err != nil {
		t.Fatalf("DeleteProduct: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	left, _ := f.svc.ListByProduct(ctx, "p1")
	if len(left) != 0 {
		t.Fatalf("entries left: %d", len(left))
	}
	other, _ := f.svc.ListByProduct(ctx, "p2")
	if len(other) != 1 {
		t.Fatalf("p2 entries = %d, want 1", len(other))
	}

	changes := f.pub.changes()
	last := changes[len(changes)-1]
	if !last.IsTombstone() || last.ProductID != "p1" {
		t.Fatalf("last event is not the p1 tombstone: %+v", last)
	}
}

func TestSeedStock_LeavesExistingEntryAlone(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if _, err := f.svc.AddStock(ctx, AddStockCommand{ProductID: "p1", VariantSKU: "sku", Sizes: map[string]int{"M": 2}}); err != nil {
		t.Fatalf("AddStock: %v", err)
	}
	_, err := f.svc.SeedStock(ctx, AddStockCommand{ProductID: "p1", VariantSKU: "sku", Sizes: map[string]int{"M": 7}})
	if !errors.Is(err, domain.ErrAlreadySeeded) {
		t.Fatalf("err = %v, want ErrAlreadySeeded", err)
	}
	e, _ := f.svc.GetEntry(ctx, domain.Key{ProductID: "p1", VariantSKU: "sku"})
	if e.TotalQuantity != 2 || e.Version != 1 {
		t.Fatalf("entry = total %d version %d, want untouched", e.TotalQuantity, e.Version)
	}
}

// gatedRepo parks the first armed Update right after it commits, before the
// service gets to publish.
type gatedRepo struct {
	*memory.LedgerRepository
	armed     atomic.Bool
	committed chan struct{}
	release   chan struct{}
}

func (r *gatedRepo) Update(ctx context.Context, e *domain.Entry, expectedVersion int64) error {
	if err := r.LedgerRepository.Update(ctx, e, expectedVersion); err != nil {
		return err
	}
	if r.armed.CompareAndSwap(true, false) {
		close(r.committed)
		<-r.release
	}
	return nil
}

func applyToMirror(t *testing.T, repo *memory.MirrorRepository, events []domain.ChangeEvent) {
	t.Helper()
	ctx := context.Background()
	for _, evt := range events {
		var err error
		if evt.IsTombstone() {
			_, err = repo.DeleteProduct(ctx, evt.ProductID, evt.OccurredAt)
		} else {
			_, err = repo.Apply(ctx, &dommirror.Variant{
				ProductID:  evt.ProductID,
				VariantSKU: evt.SKU(),
				Sizes:      evt.SizeStockMap,
				Reserved:   evt.Reserved,
				Available:  evt.Available,
				Version:    evt.Version,
				EventAt:    evt.OccurredAt,
			})
		}
		if err != nil {
			t.Fatalf("apply %+v: %v", evt, err)
		}
	}
}

func TestDeleteProduct_WaitsForInFlightWriteAndMirrorStaysDeleted(t *testing.T) {
	repo := &gatedRepo{
		LedgerRepository: memory.NewLedgerRepository(),
		committed:        make(chan struct{}),
		release:          make(chan struct{}),
	}
	f := newFixture(t, repo)
	ctx := context.Background()

	if _, err := f.svc.AddStock(ctx, AddStockCommand{ProductID: "p1", VariantSKU: "sku", Sizes: map[string]int{"M": 10}}); err != nil {
		t.Fatalf("AddStock: %v", err)
	}
	repo.armed.Store(true)

	reserveDone := make(chan error, 1)
	go func() {
		_, err := f.svc.ReserveStock(ctx, stock("p1", "sku", "M", 5))
		reserveDone <- err
	}()
	<-repo.committed

	deleteDone := make(chan error, 1)
	go func() {
		_, err := f.svc.DeleteProduct(ctx, "p1")
		deleteDone <- err
	}()
	select {
	case err := <-deleteDone:
		t.Fatalf("delete finished while a write to the product was unpublished: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(repo.release)
	if err := <-reserveDone; err != nil {
		t.Fatalf("ReserveStock: %v", err)
	}
	if err := <-deleteDone; err != nil {
		t.Fatalf("DeleteProduct: %v", err)
	}

	events := f.pub.changes()
	if len(events) != 3 || !events[2].IsTombstone() {
		t.Fatalf("events = %+v, want add, reserve, tombstone", events)
	}
	if events[1].OccurredAt.After(events[2].OccurredAt) {
		t.Fatalf("snapshot at %v is later than tombstone at %v", events[1].OccurredAt, events[2].OccurredAt)
	}

	inOrder := memory.NewMirrorRepository()
	applyToMirror(t, inOrder, events)
	reversed := memory.NewMirrorRepository()
	applyToMirror(t, reversed, []domain.ChangeEvent{events[2], events[1], events[0]})

	for name, m := range map[string]*memory.MirrorRepository{"in order": inOrder, "reversed": reversed} {
		rows, err := m.ListByProduct(ctx, "p1")
		if err != nil {
			t.Fatalf("%s: ListByProduct: %v", name, err)
		}
		if len(rows) != 0 {
			t.Fatalf("%s: mirror rows for p1 = %+v, want none", name, rows)
		}
	}
}

func TestChangeEvent_StampedWithWriteTime(t *testing.T) {
	f := newFixture(t, nil)
	e, err := f.svc.AddStock(context.Background(), AddStockCommand{ProductID: "p1", VariantSKU: "sku", Sizes: map[string]int{"M": 1}})
	if err != nil {
		t.Fatalf("AddStock: %v", err)
	}
	events := f.pub.changes()
	if len(events) != 1 || !events[0].OccurredAt.Equal(e.UpdatedAt) {
		t.Fatalf("occurredAt = %v, want entry write time %v", events[0].OccurredAt, e.UpdatedAt)
	}
}

func TestAddStock_LogsUnitsAdded(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	reg := prometheus.NewRegistry()
	counters, histograms := infraobs.StandardInstruments(prometrics.New(reg, "", ""))
	tel := infraobs.New(nil, zaplogger.New(zap.New(core)), counters, histograms)
	svc := NewService(memory.NewLedgerRepository(), lock.NewKeyedLocker(), NewNotifier(&recordingPublisher{}, 0, tel), Config{}, tel)

	if _, err := svc.AddStock(context.Background(), AddStockCommand{
		ProductID: "p1", VariantSKU: "sku-1", Sizes: map[string]int{"M": 4, "L": 6},
	}); err != nil {
		t.Fatalf("AddStock: %v", err)
	}

	done := logs.FilterMessage("use_case_done").AllUntimed()
	if len(done) != 1 {
		t.Fatalf("use_case_done entries = %d, want 1", len(done))
	}
	if got := done[0].ContextMap()["quantity"]; got != int64(10) {
		t.Fatalf("quantity = %v (%T), want 10 units", got, got)
	}
}
