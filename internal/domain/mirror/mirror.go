// Package mirror models a downstream service's eventually consistent copy of
// ledger stock.
package mirror

import (
	"context"
	"errors"
	"time"
)

var ErrInvalidSnapshot = errors.New("mirror: invalid snapshot")

// Variant is the mirrored stock of one product variant.
type Variant struct {
	ProductID  string
	VariantSKU string
	Sizes      map[string]int
	Reserved   int
	Available  int
	// Version and EventAt come from the change event that last wrote the row.
	Version   int64
	EventAt   time.Time
	UpdatedAt time.Time
}

func (v *Variant) Validate() error {
	if v == nil || v.ProductID == "" || v.VariantSKU == "" {
		return ErrInvalidSnapshot
	}
	return nil
}

// Supersedes reports whether v is newer than existing. Higher versions win;
// equal versions fall back to the event time.
func (v *Variant) Supersedes(existing *Variant) bool {
	if existing == nil {
		return true
	}
	if v.Version != existing.Version {
		return v.Version > existing.Version
	}
	return v.EventAt.After(existing.EventAt)
}

func (v *Variant) Clone() *Variant {
	if v == nil {
		return nil
	}
	c := *v
	c.Sizes = make(map[string]int, len(v.Sizes))
	for k, q := range v.Sizes {
		c.Sizes[k] = q
	}
	return &c
}

// Repository persists mirrored variants. Implementations apply snapshots
// atomically: a snapshot that does not supersede the stored row, or that
// predates the product's last deletion, is dropped.
type Repository interface {
	Apply(ctx context.Context, v *Variant) (applied bool, err error)
	DeleteProduct(ctx context.Context, productID string, at time.Time) (removed int, err error)
	ListByProduct(ctx context.Context, productID string) ([]*Variant, error)
}
