package httppresentation

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	appcart "github.com/Parth18062003/E-Commerce-sub000/internal/application/cart"
	appledger "github.com/Parth18062003/E-Commerce-sub000/internal/application/ledger"
	appmirror "github.com/Parth18062003/E-Commerce-sub000/internal/application/mirror"
	domledger "github.com/Parth18062003/E-Commerce-sub000/internal/domain/ledger"
	"github.com/Parth18062003/E-Commerce-sub000/internal/infrastructure/lock"
	"github.com/Parth18062003/E-Commerce-sub000/internal/infrastructure/memory"
	infraobs "github.com/Parth18062003/E-Commerce-sub000/internal/infrastructure/observability"
	"github.com/Parth18062003/E-Commerce-sub000/internal/infrastructure/observability/prometrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func newLedgerRouter(t *testing.T) (http.Handler, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	counters, histograms := infraobs.StandardInstruments(prometrics.New(reg, "", ""))
	tel := infraobs.New(nil, nil, counters, histograms)
	svc := appledger.NewService(memory.NewLedgerRepository(), lock.NewKeyedLocker(), nil, appledger.Config{}, tel)
	return NewHandler(tel, WithLedger(svc)).Router(), reg
}

func TestLedgerRoutes(t *testing.T) {
	h, reg := newLedgerRouter(t)

	rec := do(t, h, http.MethodPost, "/inventory", map[string]any{
		"productId": "p1", "variantSku": "sku-1", "color": "red",
		"sizeStockMap": map[string]int{"M": 5, "L": 1},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d body = %s", rec.Code, rec.Body)
	}
	created := decode[entryResponse](t, rec)
	if created.ID != "sku-1" || created.TotalQuantity != 6 || created.Version != 1 {
		t.Fatalf("created = %+v", created)
	}

	stock := func(size string, qty int) stockRequest {
		return stockRequest{ProductID: "p1", VariantSKU: "sku-1", Size: size, Quantity: qty}
	}

	rec = do(t, h, http.MethodPost, "/inventory/stock/reserve", stock("M", 4))
	if rec.Code != http.StatusOK {
		t.Fatalf("reserve status = %d body = %s", rec.Code, rec.Body)
	}
	if got := decode[entryResponse](t, rec); got.ReservedQuantity != 4 || got.AvailableQuantity != 2 {
		t.Fatalf("after reserve = %+v", got)
	}

	rec = do(t, h, http.MethodPost, "/inventory/stock/reserve", stock("M", 3))
	if rec.Code != http.StatusConflict {
		t.Fatalf("over-reserve status = %d", rec.Code)
	}
	if got := decode[errorResponse](t, rec); got.Reason != domledger.ReasonInsufficientStock {
		t.Fatalf("over-reserve body = %+v", got)
	}

	rec = do(t, h, http.MethodPost, "/inventory/stock/release", stock("M", 4))
	if rec.Code != http.StatusOK {
		t.Fatalf("release status = %d body = %s", rec.Code, rec.Body)
	}
	rec = do(t, h, http.MethodPost, "/inventory/stock/add", stock("S", 2))
	if got := decode[entryResponse](t, rec); got.TotalQuantity != 8 {
		t.Fatalf("after add = %+v", got)
	}
	rec = do(t, h, http.MethodPost, "/inventory/stock/reduce", stock("L", 1))
	if got := decode[entryResponse](t, rec); got.TotalQuantity != 7 {
		t.Fatalf("after reduce = %+v", got)
	}
	rec = do(t, h, http.MethodPatch, "/inventory/stock", stock("M", -2))
	if got := decode[entryResponse](t, rec); got.TotalQuantity != 5 {
		t.Fatalf("after update = %+v", got)
	}

	rec = do(t, h, http.MethodGet, "/inventory/p1/sku-1", nil)
	if got := decode[entryResponse](t, rec); got.Version != 6 || len(got.Sizes) != 3 {
		t.Fatalf("get = %+v", got)
	}
	rec = do(t, h, http.MethodGet, "/inventory/p1", nil)
	if got := decode[[]entryResponse](t, rec); len(got) != 1 {
		t.Fatalf("list = %+v", got)
	}

	rec = do(t, h, http.MethodDelete, "/inventory/p1", nil)
	if got := decode[deleteProductResponse](t, rec); got.Removed != 1 {
		t.Fatalf("delete = %+v", got)
	}
	rec = do(t, h, http.MethodGet, "/inventory/p1/sku-1", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d", rec.Code)
	}

	expected := `
# HELP http_requests_total Total number of HTTP requests.
# TYPE http_requests_total counter
http_requests_total{method="DELETE",route="/inventory/{productId}",status="200"} 1
http_requests_total{method="GET",route="/inventory/{productId}",status="200"} 1
http_requests_total{method="GET",route="/inventory/{productId}/{variantSku}",status="200"} 1
http_requests_total{method="GET",route="/inventory/{productId}/{variantSku}",status="404"} 1
http_requests_total{method="PATCH",route="/inventory/stock",status="200"} 1
http_requests_total{method="POST",route="/inventory",status="201"} 1
http_requests_total{method="POST",route="/inventory/stock/add",status="200"} 1
http_requests_total{method="POST",route="/inventory/stock/reduce",status="200"} 1
http_requests_total{method="POST",route="/inventory/stock/release",status="200"} 1
http_requests_total{method="POST",route="/inventory/stock/reserve",status="200"} 1
http_requests_total{method="POST",route="/inventory/stock/reserve",status="409"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "http_requests_total"); err != nil {
		t.Fatal(err)
	}
}

func TestLedgerRoutes_BadInput(t *testing.T) {
	h, _ := newLedgerRouter(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{name: "unknown field", method: http.MethodPost, path: "/inventory/stock/reserve", body: map[string]any{"sku": "x"}, status: http.StatusBadRequest},
		{name: "missing product", method: http.MethodPost, path: "/inventory/stock/reserve", body: stockRequest{VariantSKU: "x", Size: "M", Quantity: 1}, status: http.StatusBadRequest},
		{name: "unknown variant", method: http.MethodPost, path: "/inventory/stock/reserve", body: stockRequest{ProductID: "p", VariantSKU: "x", Size: "M", Quantity: 1}, status: http.StatusNotFound},
		{name: "non-positive stock", method: http.MethodPost, path: "/inventory", body: addInventoryRequest{ProductID: "p", VariantSKU: "x", Sizes: map[string]int{"M": 0}}, status: http.StatusBadRequest},
		{name: "wrong method", method: http.MethodPut, path: "/inventory/stock/reserve", status: http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, tt.body)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.status, rec.Body)
			}
		})
	}
}

type stubReserver struct{ available int }

func (r *stubReserver) Reserve(_ context.Context, req appcart.StockRequest) (appcart.ReservationResult, error) {
	if req.Quantity > r.available {
		return appcart.ReservationResult{Reason: domledger.ReasonInsufficientStock, Message: "not enough"}, nil
	}
	r.available -= req.Quantity
	return appcart.ReservationResult{Success: true}, nil
}

func (r *stubReserver) Release(_ context.Context, req appcart.StockRequest) (appcart.ReservationResult, error) {
	r.available += req.Quantity
	return appcart.ReservationResult{Success: true}, nil
}

func TestCartRoutes(t *testing.T) {
	res := &stubReserver{available: 3}
	carts := appcart.NewService(memory.NewCartRepository(), res, lock.NewKeyedLocker(), nil)
	h := NewHandler(nil, WithCart(carts)).Router()

	line := map[string]any{"userId": "u1", "productId": "p1", "variantSku": "sku-1", "size": "M"}
	withQty := func(q int) map[string]any {
		m := map[string]any{"quantity": q}
		for k, v := range line {
			m[k] = v
		}
		return m
	}

	rec := do(t, h, http.MethodPost, "/carts/items", withQty(2))
	if rec.Code != http.StatusCreated {
		t.Fatalf("add status = %d body = %s", rec.Code, rec.Body)
	}
	c := decode[cartResponse](t, rec)
	if c.ID == "" || len(c.Items) != 1 || c.Items[0].Quantity != 2 {
		t.Fatalf("cart = %+v", c)
	}

	rec = do(t, h, http.MethodPut, "/carts/"+c.ID+"/items", withQty(5))
	if rec.Code != http.StatusConflict {
		t.Fatalf("over-reserve status = %d body = %s", rec.Code, rec.Body)
	}

	rec = do(t, h, http.MethodDelete, "/carts/"+c.ID+"/items", line)
	if rec.Code != http.StatusOK {
		t.Fatalf("remove status = %d body = %s", rec.Code, rec.Body)
	}
	if res.available != 3 {
		t.Fatalf("available = %d, want 3", res.available)
	}

	if rec := do(t, h, http.MethodGet, "/carts/missing", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("missing cart status = %d", rec.Code)
	}
}

func TestMirrorRoute(t *testing.T) {
	worker := appmirror.NewWorker(nil, memory.NewMirrorRepository(), nil)
	sku := "sku-1"
	evt := domledger.ChangeEvent{
		EventID: "e1", ProductID: "p1", VariantSKU: &sku,
		SizeStockMap: map[string]int{"M": 2}, Available: 2, Version: 1,
	}
	if err := worker.Handle(context.Background(), evt); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	h := NewHandler(nil, WithMirror(worker)).Router()

	rec := do(t, h, http.MethodGet, "/catalog/p1/stock", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decode[mirroredStockResponse](t, rec)
	if len(got.Variants) != 1 || got.Variants[0].SizeStockMap["M"] != 2 {
		t.Fatalf("mirror = %+v", got)
	}

	if rec := do(t, h, http.MethodGet, "/health", nil); rec.Body.String() != "ok" {
		t.Fatalf("health = %q", rec.Body.String())
	}
}
