package gormstore

import (
	"encoding/json"
	"time"

	domain "github.com/Parth18062003/E-Commerce-sub000/internal/domain/mirror"
)

// MirrorVariantModel maps the mirror_variant table.
type MirrorVariantModel struct {
	ProductID  string `gorm:"primaryKey;size:64"`
	VariantSKU string `gorm:"primaryKey;size:64"`
	SizesJSON  string `gorm:"type:text"`
	Reserved   int
	Available  int
	Version    int64
	EventAt    time.Time `gorm:"precision:6"`
	UpdatedAt  time.Time
}

func (MirrorVariantModel) TableName() string { return "mirror_variant" }

// ProductTombstoneModel records when a product was last deleted.
type ProductTombstoneModel struct {
	ProductID string    `gorm:"primaryKey;size:64"`
	DeletedAt time.Time `gorm:"precision:6"`
}

func (ProductTombstoneModel) TableName() string { return "mirror_product_tombstone" }

func toModel(v *domain.Variant) (*MirrorVariantModel, error) {
	b, err := json.Marshal(v.Sizes)
	if err != nil {
		return nil, err
	}
	return &MirrorVariantModel{
		ProductID:  v.ProductID,
		VariantSKU: v.VariantSKU,
		SizesJSON:  string(b),
		Reserved:   v.Reserved,
		Available:  v.Available,
		Version:    v.Version,
		EventAt:    v.EventAt,
	}, nil
}

func toDomain(m *MirrorVariantModel) (*domain.Variant, error) {
	sizes := map[string]int{}
	if m.SizesJSON != "" {
		if err := json.Unmarshal([]byte(m.SizesJSON), &sizes); err != nil {
			return nil, err
		}
	}
	return &domain.Variant{
		ProductID:  m.ProductID,
		VariantSKU: m.VariantSKU,
		Sizes:      sizes,
		Reserved:   m.Reserved,
		Available:  m.Available,
		Version:    m.Version,
		EventAt:    m.EventAt,
		UpdatedAt:  m.UpdatedAt,
	}, nil
}
