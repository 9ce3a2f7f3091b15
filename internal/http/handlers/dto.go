package handlers

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/sales/internal/domain"
	"github.com/vladislavdragonenkov/sales/internal/service/sales"
)

// Денежные поля в ответах отдаются строками с фиксированной точностью.

type createSaleItemRequest struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
}

type createSaleRequest struct {
	SaleNumber string                  `json:"saleNumber"`
	Date       time.Time               `json:"date"`
	Customer   string                  `json:"customer"`
	Branch     string                  `json:"branch"`
	Items      []createSaleItemRequest `json:"items"`
}

func (r createSaleRequest) toCommand() sales.CreateSaleCommand {
	items := make([]sales.CreateItem, 0, len(r.Items))
	for _, item := range r.Items {
		items = append(items, sales.CreateItem{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
	}
	return sales.CreateSaleCommand{
		SaleNumber: r.SaleNumber,
		Date:       r.Date,
		Customer:   r.Customer,
		Branch:     r.Branch,
		Items:      items,
	}
}

type updateSaleItemRequest struct {
	ID          string          `json:"id"`
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Discount    decimal.Decimal `json:"discount"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
}

type updateSaleRequest struct {
	Customer string                  `json:"customer"`
	Branch   string                  `json:"branch"`
	Items    []updateSaleItemRequest `json:"items"`
}

func (r updateSaleRequest) toCommand(id string) sales.UpdateSaleCommand {
	items := make([]sales.UpdateItem, 0, len(r.Items))
	for _, item := range r.Items {
		items = append(items, sales.UpdateItem{
			ID:          item.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Discount:    item.Discount,
			TotalAmount: item.TotalAmount,
		})
	}
	return sales.UpdateSaleCommand{ID: id, Customer: r.Customer, Branch: r.Branch, Items: items}
}

type cancelSaleRequest struct {
	CancellationReason string `json:"cancellationReason"`
}

type saleItemResponse struct {
	ID          string `json:"id"`
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unitPrice"`
	Discount    string `json:"discount"`
	TotalAmount string `json:"totalAmount"`
	IsCancelled bool   `json:"isCancelled"`
}

type saleResponse struct {
	ID                 string             `json:"id"`
	SaleNumber         string             `json:"saleNumber"`
	Date               time.Time          `json:"date"`
	Customer           string             `json:"customer"`
	Branch             string             `json:"branch"`
	TotalAmount        string             `json:"totalAmount"`
	IsCancelled        bool               `json:"isCancelled"`
	CancelledAt        *time.Time         `json:"cancelledAt,omitempty"`
	CancellationReason string             `json:"cancellationReason,omitempty"`
	Items              []saleItemResponse `json:"items"`
	CreatedAt          time.Time          `json:"createdAt"`
	UpdatedAt          time.Time          `json:"updatedAt"`
}

func money(d decimal.Decimal) string {
	return d.StringFixed(domain.CurrencyPrecision)
}

func toSaleResponse(sale domain.Sale) saleResponse {
	items := make([]saleItemResponse, 0, len(sale.Items))
	for _, item := range sale.Items {
		items = append(items, saleItemResponse{
			ID:          item.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   money(item.UnitPrice),
			Discount:    money(item.Discount),
			TotalAmount: money(item.TotalAmount),
			IsCancelled: item.IsCancelled,
		})
	}
	return saleResponse{
		ID:                 sale.ID,
		SaleNumber:         sale.SaleNumber,
		Date:               sale.Date,
		Customer:           sale.Customer,
		Branch:             sale.Branch,
		TotalAmount:        money(sale.TotalAmount),
		IsCancelled:        sale.IsCancelled,
		CancelledAt:        sale.CancelledAt,
		CancellationReason: sale.CancellationReason,
		Items:              items,
		CreatedAt:          sale.CreatedAt,
		UpdatedAt:          sale.UpdatedAt,
	}
}

type salePageResponse struct {
	Items       []saleResponse `json:"items"`
	TotalCount  int            `json:"totalCount"`
	CurrentPage int            `json:"currentPage"`
	TotalPages  int            `json:"totalPages"`
}

func toSalePageResponse(page domain.Page) salePageResponse {
	items := make([]saleResponse, 0, len(page.Items))
	for _, sale := range page.Items {
		items = append(items, toSaleResponse(sale))
	}
	return salePageResponse{
		Items:       items,
		TotalCount:  page.TotalCount,
		CurrentPage: page.Page,
		TotalPages:  page.TotalPages,
	}
}

type timelineEventResponse struct {
	Type     string    `json:"type"`
	Detail   string    `json:"detail"`
	Occurred time.Time `json:"occurred"`
}

func toTimelineResponse(events []domain.TimelineEvent) []timelineEventResponse {
	out := make([]timelineEventResponse, 0, len(events))
	for _, ev := range events {
		out = append(out, timelineEventResponse{
			Type:     string(ev.Type),
			Detail:   ev.Detail,
			Occurred: ev.Occurred,
		})
	}
	return out
}
