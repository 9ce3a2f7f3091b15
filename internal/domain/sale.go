package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SaleItem представляет одну позицию продажи.
type SaleItem struct {
	ID          string
	SaleID      string
	ProductID   string
	ProductName string
	// Количество единиц товара, при создании 1..20.
	Quantity int
	// Цена за единицу в валюте продажи.
	UnitPrice decimal.Decimal
	// Доля скидки в диапазоне 0..1.
	Discount decimal.Decimal
	// TotalAmount = Quantity * UnitPrice * (1 - Discount).
	TotalAmount decimal.Decimal
	IsCancelled bool
}

// Sale агрегирует заголовок продажи и её позиции.
type Sale struct {
	ID          string
	SaleNumber  string
	Date        time.Time
	Customer    string
	Branch      string
	Items       []SaleItem
	TotalAmount decimal.Decimal
	IsCancelled bool
	// CancelledAt и CancellationReason заполняются при отмене продажи.
	CancelledAt        *time.Time
	CancellationReason string
	// Version используется хранилищем для optimistic locking.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FindItem возвращает индекс позиции по идентификатору или -1.
func (s *Sale) FindItem(itemID string) int {
	for i := range s.Items {
		if s.Items[i].ID == itemID {
			return i
		}
	}
	return -1
}

// Cancel переводит продажу в терминальное состояние Cancelled.
// Повторная отмена отклоняется, UpdatedAt при этом не меняется.
func (s *Sale) Cancel(reason string, now time.Time) error {
	if s.IsCancelled {
		return ErrSaleAlreadyCancelled
	}
	s.IsCancelled = true
	s.CancellationReason = reason
	cancelledAt := now
	s.CancelledAt = &cancelledAt
	s.UpdatedAt = now
	return nil
}

// CancelItem отменяет позицию продажи. Порядок проверок: продажа отменена,
// позиция существует, позиция уже отменена. Сумма продажи не пересчитывается.
func (s *Sale) CancelItem(itemID string, now time.Time) (SaleItem, error) {
	if s.IsCancelled {
		return SaleItem{}, ErrCannotCancelItemFromCancelledSale
	}
	idx := s.FindItem(itemID)
	if idx < 0 {
		return SaleItem{}, ErrItemNotFound
	}
	if s.Items[idx].IsCancelled {
		return SaleItem{}, ErrItemAlreadyCancelled
	}
	s.Items[idx].IsCancelled = true
	s.UpdatedAt = now
	return s.Items[idx], nil
}

// ReplaceDetails целиком заменяет клиента, филиал и набор позиций.
// Скидки и итоговая сумма не пересчитываются: суммы позиций берутся как есть.
func (s *Sale) ReplaceDetails(customer, branch string, items []SaleItem, now time.Time) error {
	if s.IsCancelled {
		return ErrCannotUpdateCancelledSale
	}
	replaced := make([]SaleItem, len(items))
	for i, item := range items {
		item.SaleID = s.ID
		replaced[i] = item
	}
	s.Customer = customer
	s.Branch = branch
	s.Items = replaced
	s.UpdatedAt = now
	return nil
}

// Clone возвращает глубокую копию продажи, чтобы хранилища не делили срез позиций.
func (s Sale) Clone() Sale {
	out := s
	if s.Items != nil {
		out.Items = make([]SaleItem, len(s.Items))
		copy(out.Items, s.Items)
	}
	if s.CancelledAt != nil {
		at := *s.CancelledAt
		out.CancelledAt = &at
	}
	return out
}
