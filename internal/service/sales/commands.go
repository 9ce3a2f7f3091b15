package sales

import (
	"time"

	"github.com/shopspring/decimal"
)

// Сообщения об успешном выполнении операций.
const (
	MsgSaleCreated   = "Sale created successfully"
	MsgSaleRetrieved = "Sale retrieved successfully"
	MsgSalesListed   = "Sales retrieved successfully"
	MsgSaleUpdated   = "Sale updated successfully"
	MsgSaleDeleted   = "Sale deleted successfully"
	MsgSaleCancelled = "Sale cancelled successfully"
	MsgItemCancelled = "Item cancelled successfully"
	MsgTimeline      = "Sale timeline retrieved successfully"
)

// CreateItem — позиция в запросе на создание продажи.
type CreateItem struct {
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
}

// CreateSaleCommand — запрос на создание продажи. Скидки и суммы считает сервис.
type CreateSaleCommand struct {
	SaleNumber string
	Date       time.Time
	Customer   string
	Branch     string
	Items      []CreateItem
}

// UpdateItem — позиция в запросе на изменение. Discount и TotalAmount
// передаются клиентом и сохраняются без пересчёта.
type UpdateItem struct {
	ID          string
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
	Discount    decimal.Decimal
	TotalAmount decimal.Decimal
}

// UpdateSaleCommand заменяет клиента, филиал и весь набор позиций.
type UpdateSaleCommand struct {
	ID       string
	Customer string
	Branch   string
	Items    []UpdateItem
}

// CancelSaleCommand отменяет продажу целиком.
type CancelSaleCommand struct {
	ID     string
	Reason string
}

// CancelItemCommand отменяет одну позицию продажи.
type CancelItemCommand struct {
	SaleID string
	ItemID string
}

// OperationResult — итог операции без полезной нагрузки.
type OperationResult struct {
	Success bool
	Message string
}
