package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType — тип доменного события продажи.
type EventType string

const (
	EventSaleCreated   EventType = "sale.created"
	EventSaleModified  EventType = "sale.modified"
	EventSaleCancelled EventType = "sale.cancelled"
	EventItemCancelled EventType = "sale.item_cancelled"
)

// AggregateTypeSale используется как aggregate_type в outbox.
const AggregateTypeSale = "sale"

// CancelledItem — данные отменённой позиции в событии ItemCancelled.
type CancelledItem struct {
	ItemID    string          `json:"itemId"`
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// SaleEvent — событие жизненного цикла продажи.
type SaleEvent struct {
	Type        EventType       `json:"type"`
	SaleID      string          `json:"saleId"`
	SaleNumber  string          `json:"saleNumber"`
	Customer    string          `json:"customer,omitempty"`
	Branch      string          `json:"branch,omitempty"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Reason      string          `json:"reason,omitempty"`
	Item        *CancelledItem  `json:"item,omitempty"`
	OccurredAt  time.Time       `json:"occurredAt"`
}

func headerEvent(t EventType, sale Sale, at time.Time) SaleEvent {
	return SaleEvent{
		Type:        t,
		SaleID:      sale.ID,
		SaleNumber:  sale.SaleNumber,
		Customer:    sale.Customer,
		Branch:      sale.Branch,
		TotalAmount: sale.TotalAmount,
		OccurredAt:  at,
	}
}

// NewSaleCreated строит событие создания продажи.
func NewSaleCreated(sale Sale, at time.Time) SaleEvent {
	return headerEvent(EventSaleCreated, sale, at)
}

// NewSaleModified строит событие изменения продажи.
func NewSaleModified(sale Sale, at time.Time) SaleEvent {
	return headerEvent(EventSaleModified, sale, at)
}

// NewSaleCancelled строит событие отмены продажи с причиной.
func NewSaleCancelled(sale Sale, reason string, at time.Time) SaleEvent {
	ev := headerEvent(EventSaleCancelled, sale, at)
	ev.Reason = reason
	return ev
}

// NewItemCancelled строит событие отмены позиции.
func NewItemCancelled(sale Sale, item SaleItem, at time.Time) SaleEvent {
	return SaleEvent{
		Type:        EventItemCancelled,
		SaleID:      sale.ID,
		SaleNumber:  sale.SaleNumber,
		TotalAmount: sale.TotalAmount,
		Item: &CancelledItem{
			ItemID:    item.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		},
		OccurredAt: at,
	}
}
