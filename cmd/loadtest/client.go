package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const idempotencyHeader = "Idempotency-Key"

// salesClient — минимальный клиент REST API продаж.
type salesClient struct {
	baseURL string
	http    *http.Client
	col     *collector
}

func newSalesClient(baseURL string, timeout time.Duration, col *collector) *salesClient {
	return &salesClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		col:     col,
	}
}

type createItem struct {
	ProductID   string  `json:"productId"`
	ProductName string  `json:"productName"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
}

type createRequest struct {
	SaleNumber string       `json:"saleNumber"`
	Date       time.Time    `json:"date"`
	Customer   string       `json:"customer"`
	Branch     string       `json:"branch"`
	Items      []createItem `json:"items"`
}

type createdSale struct {
	ID    string `json:"id"`
	Items []struct {
		ID string `json:"id"`
	} `json:"items"`
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// statusError — ответ API с неуспешным кодом.
type statusError struct {
	status  int
	message string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.status, e.message)
}

func (c *salesClient) CreateSale(ctx context.Context, req createRequest, key string) (createdSale, error) {
	var sale createdSale
	err := c.do(ctx, "CreateSale", http.MethodPost, "/api/sales", req, key, http.StatusCreated, &sale)
	return sale, err
}

func (c *salesClient) CancelSale(ctx context.Context, saleID, reason string) error {
	path := "/api/sales/" + url.PathEscape(saleID) + "/cancel"
	body := map[string]string{"cancellationReason": reason}
	return c.do(ctx, "CancelSale", http.MethodPost, path, body, "", http.StatusOK, nil)
}

func (c *salesClient) CancelItem(ctx context.Context, saleID, itemID string) error {
	path := "/api/sales/" + url.PathEscape(saleID) + "/items/" + url.PathEscape(itemID) + "/cancel"
	return c.do(ctx, "CancelItem", http.MethodPost, path, nil, "", http.StatusOK, nil)
}

func (c *salesClient) do(ctx context.Context, method, httpMethod, path string, body any, key string, want int, out any) (err error) {
	start := time.Now()
	status := "transport_error"
	defer func() {
		c.col.record(method, time.Since(start), status, err == nil)
	}()

	var reader io.Reader
	if body != nil {
		raw, mErr := json.Marshal(body)
		if mErr != nil {
			return fmt.Errorf("encode request: %w", mErr)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, httpMethod, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	status = strconv.Itoa(resp.StatusCode)

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode != want || !env.Success {
		return &statusError{status: resp.StatusCode, message: env.Message}
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}
