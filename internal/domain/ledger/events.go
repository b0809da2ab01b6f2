package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Parth18062003/E-Commerce-sub000/internal/domain/outbox"
	"github.com/google/uuid"
)

const (
	EventInventoryChanged = "inventory.changed"
	EventProductCreated   = "product.created"
)

// ChangeEvent carries the full per-size snapshot of one ledger entry after a
// write. A nil SizeStockMap with an empty VariantSKU is a tombstone: every
// entry of the product was deleted.
type ChangeEvent struct {
	EventID      string         `json:"eventId"`
	ProductID    string         `json:"productId"`
	VariantSKU   *string        `json:"variantSku"`
	SizeStockMap map[string]int `json:"sizeStockMap"`
	Reserved     int            `json:"reservedQuantity"`
	Available    int            `json:"availableQuantity"`
	Version      int64          `json:"version"`
	OccurredAt   time.Time      `json:"occurredAt"`
}

func (ChangeEvent) EventName() string { return EventInventoryChanged }

func (e ChangeEvent) PartitionKey() string { return e.ProductID }

func (e ChangeEvent) ID() string { return e.EventID }

// IsTombstone reports whether the event deletes the whole product.
func (e ChangeEvent) IsTombstone() bool {
	return (e.VariantSKU == nil || *e.VariantSKU == "") && e.SizeStockMap == nil
}

// SKU returns the variant sku or "" for tombstones.
func (e ChangeEvent) SKU() string {
	if e.VariantSKU == nil {
		return ""
	}
	return *e.VariantSKU
}

// NewChangeEvent snapshots entry. OccurredAt is the entry's write time, not
// the publish time, so a snapshot committed before a product deletion always
// predates its tombstone.
func NewChangeEvent(entry *Entry) ChangeEvent {
	sku := entry.VariantSKU
	at := entry.UpdatedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return ChangeEvent{
		EventID:      uuid.NewString(),
		ProductID:    entry.ProductID,
		VariantSKU:   &sku,
		SizeStockMap: entry.Snapshot(),
		Reserved:     entry.ReservedQuantity,
		Available:    entry.AvailableQuantity,
		Version:      entry.Version,
		OccurredAt:   at,
	}
}

// NewTombstone announces deletion of every entry of productID.
func NewTombstone(productID string) ChangeEvent {
	return ChangeEvent{
		EventID:    uuid.NewString(),
		ProductID:  productID,
		OccurredAt: time.Now().UTC(),
	}
}

// VariantStock is the initial stock of one variant in a seed event.
type VariantStock struct {
	VariantSKU   string         `json:"variantSku"`
	Color        string         `json:"color"`
	SizeStockMap map[string]int `json:"sizeStockMap"`
}

// ProductCreatedEvent is published by the catalog when a product is created
// and seeds the ledger.
type ProductCreatedEvent struct {
	EventID    string         `json:"eventId"`
	ProductID  string         `json:"productId"`
	Variants   []VariantStock `json:"variants"`
	OccurredAt time.Time      `json:"occurredAt"`
}

func (ProductCreatedEvent) EventName() string { return EventProductCreated }

func (e ProductCreatedEvent) PartitionKey() string { return e.ProductID }

func (e ProductCreatedEvent) ID() string { return e.EventID }

func NewProductCreatedEvent(productID string, variants []VariantStock) ProductCreatedEvent {
	return ProductCreatedEvent{
		EventID:    uuid.NewString(),
		ProductID:  productID,
		Variants:   variants,
		OccurredAt: time.Now().UTC(),
	}
}

// decoders maps event names to their wire decoders.
var decoders = map[string]func([]byte) (outbox.Event, error){
	EventInventoryChanged: func(b []byte) (outbox.Event, error) {
		var e ChangeEvent
		err := json.Unmarshal(b, &e)
		return e, err
	},
	EventProductCreated: func(b []byte) (outbox.Event, error) {
		var e ProductCreatedEvent
		err := json.Unmarshal(b, &e)
		return e, err
	},
}

// DecodeEvent decodes a JSON payload of the named event.
func DecodeEvent(name string, payload []byte) (outbox.Event, error) {
	dec, ok := decoders[name]
	if !ok {
		return nil, fmt.Errorf("ledger: unknown event %q", name)
	}
	e, err := dec(payload)
	if err != nil {
		return nil, fmt.Errorf("ledger: decode %s: %w", name, err)
	}
	return e, nil
}
