package cart

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("cart: not found")
	ErrItemNotFound    = errors.New("cart: item not found")
	ErrInvalidQuantity = errors.New("cart: quantity must be greater than zero")
	// ErrInsufficientStock is the user-visible outcome of a refused reservation.
	ErrInsufficientStock = errors.New("cart: insufficient stock")
	// ErrReservationFailed covers refusals other than stock shortage.
	ErrReservationFailed = errors.New("cart: reservation failed")
	// ErrReservationUnknown means the gateway never acknowledged the call.
	ErrReservationUnknown = errors.New("cart: reservation outcome unknown")
)

// LineKey identifies a cart line.
type LineKey struct {
	ProductID  string
	VariantSKU string
	Size       string
}

type Item struct {
	LineKey
	Quantity int
}

type Cart struct {
	ID        string
	UserID    string
	Items     []Item
	CreatedAt time.Time
	UpdatedAt time.Time
}

func New(id, userID string) *Cart {
	now := time.Now().UTC()
	return &Cart{ID: id, UserID: userID, CreatedAt: now, UpdatedAt: now}
}

// Quantity returns the quantity held on the line, zero when absent.
func (c *Cart) Quantity(k LineKey) int {
	if i := c.index(k); i >= 0 {
		return c.Items[i].Quantity
	}
	return 0
}

// SetQuantity sets the line quantity, adding the line when needed.
func (c *Cart) SetQuantity(k LineKey, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if i := c.index(k); i >= 0 {
		c.Items[i].Quantity = qty
	} else {
		c.Items = append(c.Items, Item{LineKey: k, Quantity: qty})
	}
	c.touch()
	return nil
}

func (c *Cart) Remove(k LineKey) error {
	i := c.index(k)
	if i < 0 {
		return ErrItemNotFound
	}
	c.Items = append(c.Items[:i], c.Items[i+1:]...)
	c.touch()
	return nil
}

func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Items = append([]Item(nil), c.Items...)
	return &cp
}

func (c *Cart) index(k LineKey) int {
	for i := range c.Items {
		if c.Items[i].LineKey == k {
			return i
		}
	}
	return -1
}

func (c *Cart) touch() {
	c.UpdatedAt = time.Now().UTC()
}

type Repository interface {
	Get(ctx context.Context, id string) (*Cart, error)
	Save(ctx context.Context, c *Cart) error
}
