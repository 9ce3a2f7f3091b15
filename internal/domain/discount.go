package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CurrencyPrecision — количество знаков после запятой для денежных сумм.
const CurrencyPrecision = 2

var (
	discountNone   = decimal.Zero
	discountTier10 = decimal.RequireFromString("0.10")
	discountTier20 = decimal.RequireFromString("0.20")
)

// ComputeItemDiscount возвращает долю скидки по количеству товара:
// 10..20 -> 0.20, 4..9 -> 0.10, 1..3 -> 0.
// Количество вне 1..20 отсекается валидацией до вызова.
func ComputeItemDiscount(quantity int) decimal.Decimal {
	switch {
	case quantity >= 10 && quantity <= 20:
		return discountTier20
	case quantity >= 4 && quantity <= 9:
		return discountTier10
	default:
		return discountNone
	}
}

// ComputeItemTotal считает quantity * unitPrice * (1 - discount) с округлением
// только итогового значения.
func ComputeItemTotal(item SaleItem) decimal.Decimal {
	factor := decimal.NewFromInt(1).Sub(item.Discount)
	return decimal.NewFromInt(int64(item.Quantity)).
		Mul(item.UnitPrice).
		Mul(factor).
		Round(CurrencyPrecision)
}

// SumItems складывает TotalAmount всех позиций.
func SumItems(items []SaleItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.TotalAmount)
	}
	return total
}

// ApplyDiscounts проставляет скидку и сумму каждой позиции и пересчитывает
// итог продажи. Повторный вызов даёт тот же результат.
func (s *Sale) ApplyDiscounts(now time.Time) {
	for i := range s.Items {
		s.Items[i].Discount = ComputeItemDiscount(s.Items[i].Quantity)
		s.Items[i].TotalAmount = ComputeItemTotal(s.Items[i])
	}
	s.TotalAmount = SumItems(s.Items)
	s.UpdatedAt = now
}
