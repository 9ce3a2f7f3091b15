package http

import (
	"bytes"
	"encoding/json"
	nethttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/sales/internal/domain"
	httpH "github.com/vladislavdragonenkov/sales/internal/http/handlers"
	"github.com/vladislavdragonenkov/sales/internal/metrics"
	"github.com/vladislavdragonenkov/sales/internal/service/events"
	"github.com/vladislavdragonenkov/sales/internal/service/sales"
	"github.com/vladislavdragonenkov/sales/internal/storage/memory"
)

type envelope struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Data    json.RawMessage     `json:"data"`
	Errors  []domain.FieldError `json:"errors"`
}

type saleDTO struct {
	ID          string `json:"id"`
	TotalAmount string `json:"totalAmount"`
	Customer    string `json:"customer"`
	IsCancelled bool   `json:"isCancelled"`
	Items       []struct {
		ID          string `json:"id"`
		Discount    string `json:"discount"`
		TotalAmount string `json:"totalAmount"`
		IsCancelled bool   `json:"isCancelled"`
	} `json:"items"`
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	entry := log.NewEntry(logger)

	timeline := memory.NewTimelineRepository()
	svc := sales.NewService(memory.NewSaleRepository(),
		sales.WithEventSink(events.NewTimelineSink(timeline)),
		sales.WithTimeline(timeline),
		sales.WithLogger(entry),
	)
	return NewRouter(RouterConfig{
		SaleHandler:    httpH.NewSaleHandler(svc, entry),
		Idempotency:    memory.NewIdempotencyRepository(),
		IdempotencyTTL: time.Hour,
		Metrics:        metrics.NewHTTPMetricsWithRegisterer(prometheus.NewRegistry()),
		CORSOrigins:    []string{"http://localhost:3000"},
		Logger:         entry,
	})
}

func do(t *testing.T, r *gin.Engine, method, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func createBody(qty int) map[string]any {
	return map[string]any{
		"saleNumber": "S-1",
		"date":       "2025-06-01T10:00:00Z",
		"customer":   "ACME",
		"branch":     "Downtown",
		"items": []map[string]any{
			{"productId": "p-1", "productName": "Beer", "quantity": qty, "unitPrice": "10.00"},
		},
	}
}

func decodeSale(t *testing.T, env envelope) saleDTO {
	t.Helper()
	var sale saleDTO
	require.NoError(t, json.Unmarshal(env.Data, &sale))
	return sale
}

func TestRouter_SaleLifecycle(t *testing.T) {
	r := newTestRouter(t)

	rec, env := do(t, r, nethttp.MethodPost, "/api/sales", createBody(10), nil)
	require.Equal(t, nethttp.StatusCreated, rec.Code, rec.Body.String())
	assert.True(t, env.Success)
	assert.Equal(t, "Sale created successfully", env.Message)
	sale := decodeSale(t, env)
	assert.Equal(t, "80.00", sale.TotalAmount)
	assert.Equal(t, "0.20", sale.Items[0].Discount)
	assert.Equal(t, "/api/sales/"+sale.ID, rec.Header().Get("Location"))

	rec, env = do(t, r, nethttp.MethodGet, "/api/sales/"+sale.ID, nil, nil)
	require.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Equal(t, "Sale retrieved successfully", env.Message)

	rec, env = do(t, r, nethttp.MethodGet, "/api/sales?page=1&pageSize=5&search=acm&orderBy=customer", nil, nil)
	require.Equal(t, nethttp.StatusOK, rec.Code)
	var page struct {
		Items       []saleDTO `json:"items"`
		TotalCount  int       `json:"totalCount"`
		CurrentPage int       `json:"currentPage"`
		TotalPages  int       `json:"totalPages"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Equal(t, 1, page.TotalCount)
	assert.Equal(t, 1, page.TotalPages)
	assert.Equal(t, 1, page.CurrentPage)

	update := map[string]any{
		"customer": "Globex",
		"branch":   "Uptown",
		"items": []map[string]any{
			{"id": sale.Items[0].ID, "productId": "p-1", "productName": "Beer", "quantity": 12, "unitPrice": 10, "discount": 0, "totalAmount": 120},
		},
	}
	rec, env = do(t, r, nethttp.MethodPut, "/api/sales/"+sale.ID, update, nil)
	require.Equal(t, nethttp.StatusOK, rec.Code, rec.Body.String())
	updated := decodeSale(t, env)
	assert.Equal(t, "Globex", updated.Customer)
	assert.Equal(t, "120.00", updated.Items[0].TotalAmount)
	assert.Equal(t, "80.00", updated.TotalAmount, "update keeps the header total")

	rec, env = do(t, r, nethttp.MethodPost, "/api/sales/"+sale.ID+"/items/"+sale.Items[0].ID+"/cancel", nil, nil)
	require.Equal(t, nethttp.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Item cancelled successfully", env.Message)

	rec, env = do(t, r, nethttp.MethodPost, "/api/sales/"+sale.ID+"/cancel", map[string]string{"cancellationReason": "returned"}, nil)
	require.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Equal(t, "Sale cancelled successfully", env.Message)

	rec, env = do(t, r, nethttp.MethodPost, "/api/sales/"+sale.ID+"/cancel", map[string]string{"cancellationReason": "again"}, nil)
	require.Equal(t, nethttp.StatusUnprocessableEntity, rec.Code)
	assert.False(t, env.Success)
	assert.Equal(t, "Sale is already cancelled", env.Message)

	rec, env = do(t, r, nethttp.MethodPut, "/api/sales/"+sale.ID, update, nil)
	require.Equal(t, nethttp.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "Cannot update a cancelled sale", env.Message)

	rec, env = do(t, r, nethttp.MethodGet, "/api/sales/"+sale.ID+"/timeline", nil, nil)
	require.Equal(t, nethttp.StatusOK, rec.Code)
	var timeline []struct {
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &timeline))
	require.Len(t, timeline, 4)
	assert.Equal(t, "sale.created", timeline[0].Type)
	assert.Equal(t, "sale.cancelled", timeline[3].Type)

	rec, env = do(t, r, nethttp.MethodDelete, "/api/sales/"+sale.ID, nil, nil)
	require.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Equal(t, "Sale deleted successfully", env.Message)

	rec, env = do(t, r, nethttp.MethodGet, "/api/sales/"+sale.ID, nil, nil)
	require.Equal(t, nethttp.StatusNotFound, rec.Code)
	assert.Equal(t, "Sale with ID "+sale.ID+" not found", env.Message)
}

func TestRouter_ValidationErrors(t *testing.T) {
	r := newTestRouter(t)

	rec, env := do(t, r, nethttp.MethodPost, "/api/sales", createBody(21), nil)
	require.Equal(t, nethttp.StatusBadRequest, rec.Code)
	assert.Equal(t, "Validation Failed", env.Message)
	require.Len(t, env.Errors, 1)
	assert.Equal(t, domain.FieldError{Field: "items[0].quantity", Message: "Quantity cannot be greater than 20"}, env.Errors[0])

	rec, env = do(t, r, nethttp.MethodPost, "/api/sales", "{broken", nil)
	require.Equal(t, nethttp.StatusBadRequest, rec.Code)
	require.Len(t, env.Errors, 1)
	assert.Equal(t, "body", env.Errors[0].Field)

	rec, env = do(t, r, nethttp.MethodGet, "/api/sales?page=0&pageSize=500", nil, nil)
	require.Equal(t, nethttp.StatusBadRequest, rec.Code)
	assert.Len(t, env.Errors, 2)

	rec, _ = do(t, r, nethttp.MethodGet, "/api/sales?startDate=2025-02-01&endDate=2025-01-01", nil, nil)
	require.Equal(t, nethttp.StatusBadRequest, rec.Code)

	rec, env = do(t, r, nethttp.MethodGet, "/api/unknown", nil, nil)
	require.Equal(t, nethttp.StatusNotFound, rec.Code)
	assert.Equal(t, "Resource not found", env.Message)
}

func TestRouter_IdempotentCreate(t *testing.T) {
	r := newTestRouter(t)
	headers := map[string]string{"Idempotency-Key": "create-1"}

	first, firstEnv := do(t, r, nethttp.MethodPost, "/api/sales", createBody(2), headers)
	require.Equal(t, nethttp.StatusCreated, first.Code)

	second, secondEnv := do(t, r, nethttp.MethodPost, "/api/sales", createBody(2), headers)
	require.Equal(t, nethttp.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, decodeSale(t, firstEnv).ID, decodeSale(t, secondEnv).ID)

	conflict, _ := do(t, r, nethttp.MethodPost, "/api/sales", createBody(3), headers)
	require.Equal(t, nethttp.StatusConflict, conflict.Code)

	rec, env := do(t, r, nethttp.MethodGet, "/api/sales", nil, nil)
	require.Equal(t, nethttp.StatusOK, rec.Code)
	var page struct {
		TotalCount int `json:"totalCount"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Equal(t, 1, page.TotalCount, "replayed request must not create a second sale")
}

func TestRouter_CORSPreflight(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(nethttp.MethodOptions, "/api/sales", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", nethttp.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Idempotency-Key")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, nethttp.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}
