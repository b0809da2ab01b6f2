package ledger

import "context"

// Repository stores ledger entries. It performs no stock computation.
type Repository interface {
	Get(ctx context.Context, key Key) (*Entry, error)
	ListByProduct(ctx context.Context, productID string) ([]*Entry, error)
	// Create inserts a new entry with version 1.
	Create(ctx context.Context, e *Entry) error
	// Update writes e only when the stored version equals expectedVersion,
	// then sets e.Version to expectedVersion+1.
	Update(ctx context.Context, e *Entry, expectedVersion int64) error
	// DeleteByProduct removes every entry of the product and reports how many went.
	DeleteByProduct(ctx context.Context, productID string) (int, error)
}
