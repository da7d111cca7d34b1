package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/stockd/internal/domain"
	"github.com/vladislavdragonenkov/stockd/internal/metrics"
	"github.com/vladislavdragonenkov/stockd/internal/service/inventory"
	"github.com/vladislavdragonenkov/stockd/internal/service/txn"
	"github.com/vladislavdragonenkov/stockd/internal/storage/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testAPI struct {
	router *gin.Engine
	svc    *inventory.Service
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store := memory.NewStore()
	m := metrics.NewInventoryMetricsWithRegisterer(prometheus.NewRegistry())
	orch := txn.NewOrchestrator(store, txn.WithMetrics(m), txn.WithMaxDelay(time.Microsecond))
	svc := inventory.NewService(orch, store.Products(), store.Ledger(), store.Catalog(), inventory.WithMetrics(m))
	return &testAPI{router: NewRouter(NewHandler(svc, nil), "stockd-test"), svc: svc}
}

func (a *testAPI) seed(t *testing.T, id string, qty int64) {
	t.Helper()
	ctx := context.Background()
	_, err := a.svc.SyncProduct(ctx, inventory.ProductInfo{ID: id, Name: "Product " + id})
	require.NoError(t, err)
	if qty > 0 {
		_, err = a.svc.UpdateStock(ctx, id, qty, inventory.MutationOptions{Reason: "seed"})
		require.NoError(t, err)
	}
}

func (a *testAPI) do(t *testing.T, method, path string, body any, headers ...string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded), rec.Body.String())
	}
	return rec, decoded
}

func TestListProducts(t *testing.T) {
	api := newTestAPI(t)
	api.seed(t, "a", 0)
	api.seed(t, "b", 5)
	api.seed(t, "c", 50)

	rec, body := api.do(t, http.MethodGet, "/inventory?limit=2&offset=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	products := body["products"].([]any)
	require.Len(t, products, 2)
	first := products[0].(map[string]any)
	assert.Equal(t, "b", first["id"])
	assert.Equal(t, string(domain.StockStatusLowStock), first["status"])

	rec, _ = api.do(t, http.MethodGet, "/inventory?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSetStock(t *testing.T) {
	api := newTestAPI(t)
	api.seed(t, "a", 10)

	rec, body := api.do(t, http.MethodPut, "/inventory/a", gin.H{"stockQuantity": 4, "reason": "stocktake"}, ActorHeader, "alice")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	entry := body["entry"].(map[string]any)
	assert.Equal(t, "adjustment", entry["transactionType"])
	assert.Equal(t, "alice", entry["actorId"])
	assert.EqualValues(t, 10, entry["previousQuantity"])
	assert.EqualValues(t, 4, body["product"].(map[string]any)["stockQuantity"])

	rec, body = api.do(t, http.MethodPut, "/inventory/a", gin.H{"stockQuantity": 4})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, body, "entry")

	rec, body = api.do(t, http.MethodPut, "/inventory/a", gin.H{"stockQuantity": -2})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.EqualValues(t, 4, body["previousQuantity"])
	assert.EqualValues(t, -2, body["attemptedQuantity"])

	rec, body = api.do(t, http.MethodPut, "/inventory/a", gin.H{"reason": "no quantity"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation failed", body["error"])

	rec, _ = api.do(t, http.MethodPut, "/inventory/missing", gin.H{"stockQuantity": 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetStock_DefaultActor(t *testing.T) {
	api := newTestAPI(t)
	api.seed(t, "a", 1)

	_, body := api.do(t, http.MethodPut, "/inventory/a", gin.H{"stockQuantity": 2})
	assert.Equal(t, defaultActorID, body["entry"].(map[string]any)["actorId"])
}

func TestValidateStock(t *testing.T) {
	api := newTestAPI(t)
	api.seed(t, "a", 3)

	rec, body := api.do(t, http.MethodPost, "/inventory/validate", gin.H{
		"items": []gin.H{{"id": "a", "quantity": 1000}, {"id": "ghost", "quantity": 1}},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["valid"])
	out := body["outOfStockItems"].([]any)
	require.Len(t, out, 2)
	first := out[0].(map[string]any)
	assert.Equal(t, "a", first["id"])
	assert.EqualValues(t, 1000, first["requested"])
	assert.EqualValues(t, 3, first["available"])

	rec, body = api.do(t, http.MethodPost, "/inventory/validate", gin.H{"items": []gin.H{{"id": "a", "quantity": 3}}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["valid"])

	rec, body = api.do(t, http.MethodPost, "/inventory/validate", gin.H{"items": []gin.H{{"id": "a", "quantity": 0}}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["fields"], "validateRequest.Items[0].Quantity")

	rec, _ = api.do(t, http.MethodPost, "/inventory/validate", gin.H{"items": []gin.H{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLowStock(t *testing.T) {
	api := newTestAPI(t)
	api.seed(t, "a", 0)
	api.seed(t, "b", 8)
	api.seed(t, "c", 20)

	rec, body := api.do(t, http.MethodGet, "/inventory/low-stock", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 10, body["threshold"])
	assert.EqualValues(t, 1, body["lowStockCount"])
	assert.EqualValues(t, 1, body["outOfStockCount"])

	_, body = api.do(t, http.MethodGet, "/inventory/low-stock?threshold=25", nil)
	assert.EqualValues(t, 2, body["lowStockCount"])

	rec, _ = api.do(t, http.MethodGet, "/inventory/low-stock?threshold=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistory(t *testing.T) {
	api := newTestAPI(t)
	api.seed(t, "a", 5)
	_, err := api.svc.UpdateStock(context.Background(), "a", -2, inventory.MutationOptions{})
	require.NoError(t, err)

	rec, body := api.do(t, http.MethodGet, "/inventory/a/history?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := body["entries"].([]any)
	require.Len(t, entries, 1)
	assert.EqualValues(t, 3, entries[0].(map[string]any)["newQuantity"])

	rec, _ = api.do(t, http.MethodGet, "/inventory/missing/history", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReservations(t *testing.T) {
	api := newTestAPI(t)
	api.seed(t, "a", 5)

	rec, body := api.do(t, http.MethodPost, "/inventory/reservations", gin.H{
		"orderId":        "o-1",
		"items":          []gin.H{{"id": "a", "quantity": 2}},
		"timeoutMinutes": 15,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "o-1", body["orderId"])
	require.Len(t, body["entries"].([]any), 1)

	rec, body = api.do(t, http.MethodPost, "/inventory/reservations", gin.H{
		"orderId": "o-2",
		"items":   []gin.H{{"id": "a", "quantity": 10}},
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.EqualValues(t, 3, body["available"])

	rec, _ = api.do(t, http.MethodGet, "/inventory/reservations/expired", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = api.do(t, http.MethodDelete, "/inventory/reservations/o-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["released"])

	rec, body = api.do(t, http.MethodDelete, "/inventory/reservations/o-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, body["released"])

	rec, _ = api.do(t, http.MethodDelete, "/inventory/reservations/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = api.do(t, http.MethodPost, "/inventory/reservations", gin.H{"items": []gin.H{{"id": "a", "quantity": 1}}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.NewValidationError("x", "bad"), http.StatusBadRequest},
		{domain.ProductNotFound("p"), http.StatusNotFound},
		{&domain.InsufficientStockError{ProductID: "p"}, http.StatusConflict},
		{&domain.RetryExhaustedError{Operation: "update stock", Attempts: 5, Last: domain.ErrConcurrencyConflict}, http.StatusServiceUnavailable},
		{&domain.AdjustmentError{Err: domain.ProductNotFound("p")}, http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}
