package memory

import (
	"context"
	"sort"
	"sync"

	domain "github.com/Parth18062003/E-Commerce-sub000/internal/domain/ledger"
)

type LedgerRepository struct {
	mu      sync.RWMutex
	entries map[domain.Key]*domain.Entry
	ids     map[string]domain.Key
}

func NewLedgerRepository() *LedgerRepository {
	return &LedgerRepository{
		entries: make(map[domain.Key]*domain.Entry),
		ids:     make(map[string]domain.Key),
	}
}

func (r *LedgerRepository) Get(ctx context.Context, key domain.Key) (*domain.Entry, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[key]
	if !ok {
		return nil, domain.ErrVariantNotFound
	}
	return e.Clone(), nil
}

func (r *LedgerRepository) ListByProduct(ctx context.Context, productID string) ([]*domain.Entry, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Entry
	for k, e := range r.entries {
		if k.ProductID == productID {
			out = append(out, e.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VariantSKU < out[j].VariantSKU })
	return out, nil
}

func (r *LedgerRepository) Create(ctx context.Context, e *domain.Entry) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.ids[e.ID]; taken {
		return domain.ErrAlreadyExists
	}
	e.Version = 1
	r.entries[e.Key()] = e.Clone()
	r.ids[e.ID] = e.Key()
	return nil
}

func (r *LedgerRepository) Update(ctx context.Context, e *domain.Entry, expectedVersion int64) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.entries[e.Key()]
	if !ok {
		return domain.ErrVariantNotFound
	}
	if cur.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	e.Version = expectedVersion + 1
	r.entries[e.Key()] = e.Clone()
	return nil
}

func (r *LedgerRepository) DeleteByProduct(ctx context.Context, productID string) (int, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for k, e := range r.entries {
		if k.ProductID != productID {
			continue
		}
		delete(r.entries, k)
		delete(r.ids, e.ID)
		n++
	}
	return n, nil
}
