package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	domain "github.com/Parth18062003/E-Commerce-sub000/internal/domain/mirror"
)

type mirrorKey struct{ productID, sku string }

type MirrorRepository struct {
	mu         sync.RWMutex
	variants   map[mirrorKey]*domain.Variant
	tombstones map[string]time.Time
}

func NewMirrorRepository() *MirrorRepository {
	return &MirrorRepository{
		variants:   make(map[mirrorKey]*domain.Variant),
		tombstones: make(map[string]time.Time),
	}
}

func (r *MirrorRepository) Apply(ctx context.Context, v *domain.Variant) (bool, error) {
	_ = ctx
	if err := v.Validate(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if deletedAt, ok := r.tombstones[v.ProductID]; ok && !v.EventAt.After(deletedAt) {
		return false, nil
	}
	k := mirrorKey{v.ProductID, v.VariantSKU}
	if !v.Supersedes(r.variants[k]) {
		return false, nil
	}
	stored := v.Clone()
	stored.UpdatedAt = time.Now().UTC()
	r.variants[k] = stored
	return true, nil
}

func (r *MirrorRepository) DeleteProduct(ctx context.Context, productID string, at time.Time) (int, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.tombstones[productID]; !ok || at.After(prev) {
		r.tombstones[productID] = at
	}
	n := 0
	for k := range r.variants {
		if k.productID == productID {
			delete(r.variants, k)
			n++
		}
	}
	return n, nil
}

func (r *MirrorRepository) ListByProduct(ctx context.Context, productID string) ([]*domain.Variant, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Variant
	for k, v := range r.variants {
		if k.productID == productID {
			out = append(out, v.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VariantSKU < out[j].VariantSKU })
	return out, nil
}
