package domain

import "time"

const (
	// DefaultPageSize используется, если размер страницы не передан.
	DefaultPageSize = 10
	// MaxPageSize — верхняя граница размера страницы.
	MaxPageSize = 100
)

// Ключи сортировки, поддерживаемые хранилищами.
const (
	OrderByDate        = "date"
	OrderBySaleNumber  = "saleNumber"
	OrderByCustomer    = "customer"
	OrderByBranch      = "branch"
	OrderByTotalAmount = "totalAmount"
	OrderByCreatedAt   = "createdAt"
)

// ListFilter описывает запрос страницы продаж.
type ListFilter struct {
	Page        int
	PageSize    int
	SearchTerm  string
	OrderBy     string
	Ascending   bool
	StartDate   *time.Time
	EndDate     *time.Time
	IsCancelled *bool
}

// DefaultListFilter возвращает первую страницу по 10 записей по возрастанию даты.
func DefaultListFilter() ListFilter {
	return ListFilter{Page: 1, PageSize: DefaultPageSize, Ascending: true}
}

// Offset возвращает смещение первой записи страницы.
func (f ListFilter) Offset() int {
	if f.Page <= 1 {
		return 0
	}
	return (f.Page - 1) * f.PageSize
}

// NormalizedOrderBy приводит неизвестный ключ сортировки к OrderByDate.
func (f ListFilter) NormalizedOrderBy() string {
	switch f.OrderBy {
	case OrderBySaleNumber, OrderByCustomer, OrderByBranch, OrderByTotalAmount, OrderByCreatedAt:
		return f.OrderBy
	default:
		return OrderByDate
	}
}

// Page — страница результатов.
type Page struct {
	Items      []Sale
	TotalCount int
	Page       int
	TotalPages int
}

// TotalPages = ceil(totalCount / pageSize).
func TotalPages(totalCount, pageSize int) int {
	if pageSize <= 0 || totalCount <= 0 {
		return 0
	}
	return (totalCount + pageSize - 1) / pageSize
}
