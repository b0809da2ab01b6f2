package memory

import (
	"context"
	"fmt"
	"sync"

	domain "github.com/Parth18062003/E-Commerce-sub000/internal/domain/cart"
)

type CartRepository struct {
	mu    sync.RWMutex
	carts map[string]*domain.Cart
}

func NewCartRepository() *CartRepository {
	return &CartRepository{carts: make(map[string]*domain.Cart)}
}

func (r *CartRepository) Get(ctx context.Context, id string) (*domain.Cart, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.carts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c.Clone(), nil
}

func (r *CartRepository) Save(ctx context.Context, c *domain.Cart) error {
	_ = ctx
	if c == nil || c.ID == "" {
		return fmt.Errorf("cart repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.carts[c.ID] = c.Clone()
	return nil
}
