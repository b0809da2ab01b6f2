package httppresentation

import (
	"context"
	"net/http"
	"time"

	appcart "github.com/Parth18062003/E-Commerce-sub000/internal/application/cart"
	domcart "github.com/Parth18062003/E-Commerce-sub000/internal/domain/cart"
)

type CartService interface {
	Get(ctx context.Context, cartID string) (*domcart.Cart, error)
	AddItem(ctx context.Context, cmd appcart.ItemCommand) (*domcart.Cart, error)
	UpdateItemQuantity(ctx context.Context, cmd appcart.ItemCommand) (*domcart.Cart, error)
	RemoveItem(ctx context.Context, cmd appcart.ItemCommand) (*domcart.Cart, error)
}

func (h *Handler) cartRoutes(mux *http.ServeMux) {
	h.muxHandle(mux, http.MethodPost, "/carts/items", h.cartItem(h.cart.AddItem, http.StatusCreated))
	h.muxHandle(mux, http.MethodGet, "/carts/{cartId}", h.handleGetCart)
	h.muxHandle(mux, http.MethodPut, "/carts/{cartId}/items", h.cartItem(h.cart.UpdateItemQuantity, http.StatusOK))
	h.muxHandle(mux, http.MethodDelete, "/carts/{cartId}/items", h.cartItem(h.cart.RemoveItem, http.StatusOK))
}

type cartItemRequest struct {
	CartID     string `json:"cartId"`
	UserID     string `json:"userId"`
	ProductID  string `json:"productId"`
	VariantSKU string `json:"variantSku"`
	Size       string `json:"size"`
	Quantity   int    `json:"quantity"`
}

type cartItemDTO struct {
	ProductID  string `json:"productId"`
	VariantSKU string `json:"variantSku"`
	Size       string `json:"size"`
	Quantity   int    `json:"quantity"`
}

type cartResponse struct {
	ID        string        `json:"id"`
	UserID    string        `json:"userId"`
	Items     []cartItemDTO `json:"items"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

func toCartResponse(c *domcart.Cart) cartResponse {
	items := make([]cartItemDTO, 0, len(c.Items))
	for _, it := range c.Items {
		items = append(items, cartItemDTO{
			ProductID:  it.ProductID,
			VariantSKU: it.VariantSKU,
			Size:       it.Size,
			Quantity:   it.Quantity,
		})
	}
	return cartResponse{ID: c.ID, UserID: c.UserID, Items: items, UpdatedAt: c.UpdatedAt}
}

func (h *Handler) cartItem(op func(context.Context, appcart.ItemCommand) (*domcart.Cart, error), okStatus int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req cartItemRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if id := r.PathValue("cartId"); id != "" {
			req.CartID = id
		}
		c, err := op(r.Context(), appcart.ItemCommand{
			CartID:     req.CartID,
			UserID:     req.UserID,
			ProductID:  req.ProductID,
			VariantSKU: req.VariantSKU,
			Size:       req.Size,
			Quantity:   req.Quantity,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, okStatus, toCartResponse(c))
	}
}

func (h *Handler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.cart.Get(r.Context(), r.PathValue("cartId"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}
