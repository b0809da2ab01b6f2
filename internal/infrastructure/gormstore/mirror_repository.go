package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/Parth18062003/E-Commerce-sub000/internal/domain/mirror"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// MirrorRepository is the GORM implementation of mirror.Repository.
type MirrorRepository struct {
	db *gorm.DB
}

// OpenMySQL connects to dsn and migrates the mirror tables.
func OpenMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("gormstore: open: %w", err)
	}
	if err := db.AutoMigrate(&MirrorVariantModel{}, &ProductTombstoneModel{}); err != nil {
		return nil, fmt.Errorf("gormstore: migrate: %w", err)
	}
	return db, nil
}

func NewMirrorRepository(db *gorm.DB) *MirrorRepository {
	return &MirrorRepository{db: db}
}

// Apply locks the stored row (and the product tombstone) for the duration of
// the comparison so concurrent consumers cannot interleave.
func (r *MirrorRepository) Apply(ctx context.Context, v *domain.Variant) (bool, error) {
	if err := v.Validate(); err != nil {
		return false, err
	}
	applied := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tomb ProductTombstoneModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("product_id = ?", v.ProductID).First(&tomb).Error
		switch {
		case err == nil:
			if !v.EventAt.After(tomb.DeletedAt) {
				return nil
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		var existing MirrorVariantModel
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("product_id = ? AND variant_sku = ?", v.ProductID, v.VariantSKU).
			First(&existing).Error
		var current *domain.Variant
		switch {
		case err == nil:
			if current, err = toDomain(&existing); err != nil {
				return err
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}
		if !v.Supersedes(current) {
			return nil
		}

		model, err := toModel(v)
		if err != nil {
			return err
		}
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(model).Error; err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("gormstore: apply %s/%s: %w", v.ProductID, v.VariantSKU, err)
	}
	return applied, nil
}

func (r *MirrorRepository) DeleteProduct(ctx context.Context, productID string, at time.Time) (int, error) {
	removed := 0
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("product_id = ?", productID).Delete(&MirrorVariantModel{})
		if res.Error != nil {
			return res.Error
		}
		removed = int(res.RowsAffected)

		// Keep the latest deletion time only.
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "product_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"deleted_at": gorm.Expr("GREATEST(deleted_at, VALUES(deleted_at))"),
			}),
		}).Create(&ProductTombstoneModel{ProductID: productID, DeletedAt: at}).Error
	})
	if err != nil {
		return 0, fmt.Errorf("gormstore: delete %s: %w", productID, err)
	}
	return removed, nil
}

func (r *MirrorRepository) ListByProduct(ctx context.Context, productID string) ([]*domain.Variant, error) {
	var models []MirrorVariantModel
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("variant_sku").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("gormstore: list %s: %w", productID, err)
	}
	out := make([]*domain.Variant, 0, len(models))
	for i := range models {
		v, err := toDomain(&models[i])
		if err != nil {
			return nil, fmt.Errorf("gormstore: decode %s/%s: %w", models[i].ProductID, models[i].VariantSKU, err)
		}
		out = append(out, v)
	}
	return out, nil
}
