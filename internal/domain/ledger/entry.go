package ledger

import (
	"fmt"
	"sort"
	"time"
)

// SizeStock is the physical stock held for one size of a variant.
type SizeStock struct {
	Size     string `json:"size"`
	Quantity int    `json:"quantity"`
}

// Entry is the authoritative stock record for one product variant.
//
// TotalQuantity and AvailableQuantity are derived from Sizes and
// ReservedQuantity; every mutator recomputes them before returning.
// ReservedQuantity is tracked for the variant as a whole, not per size.
type Entry struct {
	ID                string
	ProductID         string
	VariantSKU        string
	Color             string
	Sizes             []SizeStock
	TotalQuantity     int
	ReservedQuantity  int
	AvailableQuantity int
	// Version increases by one on every persisted write and backs the
	// compare-and-swap in repositories.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Key identifies a ledger entry.
type Key struct {
	ProductID  string
	VariantSKU string
}

func (k Key) String() string { return k.ProductID + "|" + k.VariantSKU }

func (k Key) Validate() error {
	if k.ProductID == "" {
		return fmt.Errorf("%w: product id is required", ErrInvalidKey)
	}
	if k.VariantSKU == "" {
		return fmt.Errorf("%w: variant sku is required", ErrInvalidKey)
	}
	return nil
}

// NewEntry returns an empty entry for the variant. The id equals the SKU.
func NewEntry(productID, variantSKU, color string) *Entry {
	now := time.Now().UTC()
	return &Entry{
		ID:         variantSKU,
		ProductID:  productID,
		VariantSKU: variantSKU,
		Color:      color,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (e *Entry) Key() Key { return Key{ProductID: e.ProductID, VariantSKU: e.VariantSKU} }

// AddStock increments each listed size, creating missing sizes in sorted
// order. All quantities are checked before anything changes.
func (e *Entry) AddStock(deltas map[string]int) error {
	if len(deltas) == 0 {
		return fmt.Errorf("%w: no sizes given", ErrInvalidQuantity)
	}
	for size, qty := range deltas {
		if size == "" {
			return fmt.Errorf("%w: size is required", ErrInvalidQuantity)
		}
		if qty <= 0 {
			return fmt.Errorf("%w: size %q quantity %d", ErrInvalidQuantity, size, qty)
		}
	}

	var added []string
	for size, qty := range deltas {
		if i := e.sizeIndex(size); i >= 0 {
			e.Sizes[i].Quantity += qty
			continue
		}
		added = append(added, size)
	}
	sort.Strings(added)
	for _, size := range added {
		e.Sizes = append(e.Sizes, SizeStock{Size: size, Quantity: deltas[size]})
	}
	e.recompute()
	return nil
}

// ReduceStock removes qty units of size from physical stock. The write is
// refused when it would leave fewer units than are reserved.
func (e *Entry) ReduceStock(size string, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, qty)
	}
	return e.adjust(size, -qty)
}

// Reserve holds qty units against size. The size must physically hold qty
// units and the variant must have qty units available in aggregate.
func (e *Entry) Reserve(size string, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, qty)
	}
	i := e.sizeIndex(size)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrSizeNotFound, size)
	}
	if e.Sizes[i].Quantity < qty {
		return fmt.Errorf("%w: size %q holds %d, requested %d", ErrInsufficientStock, size, e.Sizes[i].Quantity, qty)
	}
	if e.AvailableQuantity < qty {
		return fmt.Errorf("%w: available %d, requested %d", ErrInsufficientStock, e.AvailableQuantity, qty)
	}
	e.ReservedQuantity += qty
	e.recompute()
	return nil
}

// Release returns qty previously reserved units to the available pool.
func (e *Entry) Release(qty int) error {
	if qty <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, qty)
	}
	if e.ReservedQuantity-qty < 0 {
		return fmt.Errorf("%w: reserved %d, release requested %d", ErrNoReservationToRelease, e.ReservedQuantity, qty)
	}
	e.ReservedQuantity -= qty
	e.recompute()
	return nil
}

// UpdateStockQuantity applies a signed change to one size's raw quantity.
func (e *Entry) UpdateStockQuantity(size string, delta int) error {
	if delta == 0 {
		return fmt.Errorf("%w: change must be non-zero", ErrInvalidQuantity)
	}
	return e.adjust(size, delta)
}

func (e *Entry) adjust(size string, delta int) error {
	i := e.sizeIndex(size)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrSizeNotFound, size)
	}
	next := e.Sizes[i].Quantity + delta
	if next < 0 {
		return fmt.Errorf("%w: size %q holds %d, change %d", ErrInsufficientStock, size, e.Sizes[i].Quantity, delta)
	}
	if e.TotalQuantity+delta < e.ReservedQuantity {
		return fmt.Errorf("%w: %d units reserved, total would drop to %d", ErrInsufficientStock, e.ReservedQuantity, e.TotalQuantity+delta)
	}
	e.Sizes[i].Quantity = next
	e.recompute()
	return nil
}

// Snapshot returns the current size -> quantity map.
func (e *Entry) Snapshot() map[string]int {
	out := make(map[string]int, len(e.Sizes))
	for _, s := range e.Sizes {
		out[s.Size] = s.Quantity
	}
	return out
}

// SizeQuantity reports the raw quantity of size and whether it exists.
func (e *Entry) SizeQuantity(size string) (int, bool) {
	if i := e.sizeIndex(size); i >= 0 {
		return e.Sizes[i].Quantity, true
	}
	return 0, false
}

// Validate checks the ledger invariants.
func (e *Entry) Validate() error {
	seen := make(map[string]struct{}, len(e.Sizes))
	total := 0
	for _, s := range e.Sizes {
		if _, dup := seen[s.Size]; dup {
			return fmt.Errorf("%w: duplicate size %q", ErrInvariantViolated, s.Size)
		}
		seen[s.Size] = struct{}{}
		if s.Quantity < 0 {
			return fmt.Errorf("%w: size %q is negative", ErrInvariantViolated, s.Size)
		}
		total += s.Quantity
	}
	switch {
	case total != e.TotalQuantity:
		return fmt.Errorf("%w: total %d != sum of sizes %d", ErrInvariantViolated, e.TotalQuantity, total)
	case e.ReservedQuantity < 0 || e.ReservedQuantity > e.TotalQuantity:
		return fmt.Errorf("%w: reserved %d outside [0, %d]", ErrInvariantViolated, e.ReservedQuantity, e.TotalQuantity)
	case e.AvailableQuantity != e.TotalQuantity-e.ReservedQuantity:
		return fmt.Errorf("%w: available %d != total - reserved", ErrInvariantViolated, e.AvailableQuantity)
	}
	return nil
}

// Clone returns a deep copy.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	c := *e
	c.Sizes = append([]SizeStock(nil), e.Sizes...)
	return &c
}

func (e *Entry) sizeIndex(size string) int {
	for i := range e.Sizes {
		if e.Sizes[i].Size == size {
			return i
		}
	}
	return -1
}

func (e *Entry) recompute() {
	total := 0
	for _, s := range e.Sizes {
		total += s.Quantity
	}
	e.TotalQuantity = total
	e.AvailableQuantity = total - e.ReservedQuantity
	e.UpdatedAt = time.Now().UTC()
}
