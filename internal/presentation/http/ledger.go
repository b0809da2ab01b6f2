package httppresentation

import (
	"context"
	"net/http"
	"time"

	appledger "github.com/Parth18062003/E-Commerce-sub000/internal/application/ledger"
	domledger "github.com/Parth18062003/E-Commerce-sub000/internal/domain/ledger"
)

// LedgerService is the reservation engine as used by the management routes.
type LedgerService interface {
	AddStock(ctx context.Context, cmd appledger.AddStockCommand) (*domledger.Entry, error)
	ReduceStock(ctx context.Context, cmd appledger.StockCommand) (*domledger.Entry, error)
	ReserveStock(ctx context.Context, cmd appledger.StockCommand) (*domledger.Entry, error)
	ReleaseReservedStock(ctx context.Context, cmd appledger.StockCommand) (*domledger.Entry, error)
	UpdateStockQuantity(ctx context.Context, cmd appledger.StockCommand) (*domledger.Entry, error)
	GetEntry(ctx context.Context, key domledger.Key) (*domledger.Entry, error)
	ListByProduct(ctx context.Context, productID string) ([]*domledger.Entry, error)
	DeleteProduct(ctx context.Context, productID string) (int, error)
}

func (h *Handler) ledgerRoutes(mux *http.ServeMux) {
	h.muxHandle(mux, http.MethodPost, "/inventory", h.handleAddInventory)
	h.muxHandle(mux, http.MethodPost, "/inventory/stock/add", h.handleAddStock)
	h.muxHandle(mux, http.MethodPost, "/inventory/stock/reduce", h.stockCommand(h.ledgerReduce))
	h.muxHandle(mux, http.MethodPost, "/inventory/stock/reserve", h.stockCommand(h.ledgerReserve))
	h.muxHandle(mux, http.MethodPost, "/inventory/stock/release", h.stockCommand(h.ledgerRelease))
	h.muxHandle(mux, http.MethodPatch, "/inventory/stock", h.stockCommand(h.ledgerUpdate))
	h.muxHandle(mux, http.MethodGet, "/inventory/{productId}", h.handleListInventory)
	h.muxHandle(mux, http.MethodGet, "/inventory/{productId}/{variantSku}", h.handleGetInventory)
	h.muxHandle(mux, http.MethodDelete, "/inventory/{productId}", h.handleDeleteProduct)
}

type sizeStockDTO struct {
	Size     string `json:"size"`
	Quantity int    `json:"quantity"`
}

type entryResponse struct {
	ID                string         `json:"id"`
	ProductID         string         `json:"productId"`
	VariantSKU        string         `json:"variantSku"`
	Color             string         `json:"color"`
	Sizes             []sizeStockDTO `json:"sizes"`
	TotalQuantity     int            `json:"totalQuantity"`
	ReservedQuantity  int            `json:"reservedQuantity"`
	AvailableQuantity int            `json:"availableQuantity"`
	Version           int64          `json:"version"`
	UpdatedAt         time.Time      `json:"updatedAt"`
}

func toEntryResponse(e *domledger.Entry) entryResponse {
	sizes := make([]sizeStockDTO, 0, len(e.Sizes))
	for _, s := range e.Sizes {
		sizes = append(sizes, sizeStockDTO{Size: s.Size, Quantity: s.Quantity})
	}
	return entryResponse{
		ID:                e.ID,
		ProductID:         e.ProductID,
		VariantSKU:        e.VariantSKU,
		Color:             e.Color,
		Sizes:             sizes,
		TotalQuantity:     e.TotalQuantity,
		ReservedQuantity:  e.ReservedQuantity,
		AvailableQuantity: e.AvailableQuantity,
		Version:           e.Version,
		UpdatedAt:         e.UpdatedAt,
	}
}

type addInventoryRequest struct {
	ProductID  string         `json:"productId"`
	VariantSKU string         `json:"variantSku"`
	Color      string         `json:"color"`
	Sizes      map[string]int `json:"sizeStockMap"`
}

func (h *Handler) handleAddInventory(w http.ResponseWriter, r *http.Request) {
	var req addInventoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	entry, err := h.ledger.AddStock(r.Context(), appledger.AddStockCommand{
		ProductID:  req.ProductID,
		VariantSKU: req.VariantSKU,
		Color:      req.Color,
		Sizes:      req.Sizes,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryResponse(entry))
}

type stockRequest struct {
	ProductID  string `json:"productId"`
	VariantSKU string `json:"variantSku"`
	Size       string `json:"size"`
	Quantity   int    `json:"quantity"`
}

func (req stockRequest) command() appledger.StockCommand {
	return appledger.StockCommand{
		ProductID:  req.ProductID,
		VariantSKU: req.VariantSKU,
		Size:       req.Size,
		Quantity:   req.Quantity,
	}
}

func (h *Handler) handleAddStock(w http.ResponseWriter, r *http.Request) {
	var req stockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	entry, err := h.ledger.AddStock(r.Context(), appledger.AddStockCommand{
		ProductID:  req.ProductID,
		VariantSKU: req.VariantSKU,
		Sizes:      map[string]int{req.Size: req.Quantity},
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryResponse(entry))
}

type stockOp func(ctx context.Context, cmd appledger.StockCommand) (*domledger.Entry, error)

func (h *Handler) ledgerReduce(ctx context.Context, cmd appledger.StockCommand) (*domledger.Entry, error) {
	return h.ledger.ReduceStock(ctx, cmd)
}

func (h *Handler) ledgerReserve(ctx context.Context, cmd appledger.StockCommand) (*domledger.Entry, error) {
	return h.ledger.ReserveStock(ctx, cmd)
}

func (h *Handler) ledgerRelease(ctx context.Context, cmd appledger.StockCommand) (*domledger.Entry, error) {
	return h.ledger.ReleaseReservedStock(ctx, cmd)
}

func (h *Handler) ledgerUpdate(ctx context.Context, cmd appledger.StockCommand) (*domledger.Entry, error) {
	return h.ledger.UpdateStockQuantity(ctx, cmd)
}

func (h *Handler) stockCommand(op stockOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req stockRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		entry, err := op(r.Context(), req.command())
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toEntryResponse(entry))
	}
}

func (h *Handler) handleGetInventory(w http.ResponseWriter, r *http.Request) {
	entry, err := h.ledger.GetEntry(r.Context(), domledger.Key{
		ProductID:  r.PathValue("productId"),
		VariantSKU: r.PathValue("variantSku"),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryResponse(entry))
}

func (h *Handler) handleListInventory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.ledger.ListByProduct(r.Context(), r.PathValue("productId"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryResponse(e))
	}
	writeJSON(w, http.StatusOK, out)
}

type deleteProductResponse struct {
	ProductID string `json:"productId"`
	Removed   int    `json:"removed"`
}

func (h *Handler) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	productID := r.PathValue("productId")
	removed, err := h.ledger.DeleteProduct(r.Context(), productID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteProductResponse{ProductID: productID, Removed: removed})
}
