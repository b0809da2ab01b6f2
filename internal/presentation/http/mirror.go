package httppresentation

import (
	"context"
	"net/http"
	"time"

	dommirror "github.com/Parth18062003/E-Commerce-sub000/internal/domain/mirror"
)

type MirrorReader interface {
	ListByProduct(ctx context.Context, productID string) ([]*dommirror.Variant, error)
}

func (h *Handler) mirrorRoutes(mux *http.ServeMux) {
	h.muxHandle(mux, http.MethodGet, "/catalog/{productId}/stock", h.handleMirroredStock)
}

type mirroredVariantDTO struct {
	VariantSKU   string         `json:"variantSku"`
	SizeStockMap map[string]int `json:"sizeStockMap"`
	Reserved     int            `json:"reservedQuantity"`
	Available    int            `json:"availableQuantity"`
	Version      int64          `json:"version"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

type mirroredStockResponse struct {
	ProductID string               `json:"productId"`
	Variants  []mirroredVariantDTO `json:"variants"`
}

func (h *Handler) handleMirroredStock(w http.ResponseWriter, r *http.Request) {
	productID := r.PathValue("productId")
	variants, err := h.mirror.ListByProduct(r.Context(), productID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := mirroredStockResponse{ProductID: productID, Variants: make([]mirroredVariantDTO, 0, len(variants))}
	for _, v := range variants {
		out.Variants = append(out.Variants, mirroredVariantDTO{
			VariantSKU:   v.VariantSKU,
			SizeStockMap: v.Sizes,
			Reserved:     v.Reserved,
			Available:    v.Available,
			Version:      v.Version,
			UpdatedAt:    v.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
