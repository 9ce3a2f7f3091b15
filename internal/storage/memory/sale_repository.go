package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/sales/internal/domain"
)

// saleRepositoryInMemory — in-memory реализация SaleRepository для разработки и тестов.
type saleRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Sale
	clock domain.Clock
}

// NewSaleRepository возвращает in-memory репозиторий продаж.
func NewSaleRepository() domain.SaleRepository {
	return NewSaleRepositoryWithClock(domain.SystemClock{})
}

// NewSaleRepositoryWithClock позволяет зафиксировать время в тестах.
func NewSaleRepositoryWithClock(clock domain.Clock) domain.SaleRepository {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &saleRepositoryInMemory{
		items: make(map[string]domain.Sale),
		clock: clock,
	}
}

// Create сохраняет новую продажу, назначая идентификаторы и первую версию.
func (r *saleRepositoryInMemory) Create(_ context.Context, sale domain.Sale) (domain.Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sale.ID == "" {
		sale.ID = uuid.NewString()
	}
	if _, exists := r.items[sale.ID]; exists {
		return domain.Sale{}, domain.ErrSaleAlreadyExists
	}

	if r.itemIDTaken(sale) {
		return domain.Sale{}, domain.ErrItemIDTaken
	}

	now := r.clock.Now()
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = now
	}
	if sale.UpdatedAt.IsZero() {
		sale.UpdatedAt = sale.CreatedAt
	}
	assignItemIDs(&sale)
	sale.Version = 1

	// Храним копию, чтобы вызывающий код не мутировал состояние репозитория.
	r.items[sale.ID] = sale.Clone()
	return sale.Clone(), nil
}

// Get возвращает продажу или ошибку отсутствия.
func (r *saleRepositoryInMemory) Get(_ context.Context, id string) (domain.Sale, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sale, ok := r.items[id]
	if !ok {
		return domain.Sale{}, domain.SaleNotFound(id)
	}
	return sale.Clone(), nil
}

// Update перезаписывает продажу, проверяя версию (optimistic locking).
func (r *saleRepositoryInMemory) Update(_ context.Context, sale domain.Sale) (domain.Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[sale.ID]
	if !ok {
		return domain.Sale{}, domain.SaleNotFound(sale.ID)
	}
	if current.Version != sale.Version {
		return domain.Sale{}, domain.ErrSaleVersionConflict
	}
	if r.itemIDTaken(sale) {
		return domain.Sale{}, domain.ErrItemIDTaken
	}

	sale.CreatedAt = current.CreatedAt
	assignItemIDs(&sale)
	sale.Version++
	r.items[sale.ID] = sale.Clone()
	return sale.Clone(), nil
}

// Delete удаляет продажу вместе с позициями.
func (r *saleRepositoryInMemory) Delete(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return false, nil
	}
	delete(r.items, id)
	return true, nil
}

// List фильтрует, сортирует и режет на страницы копию данных.
func (r *saleRepositoryInMemory) List(_ context.Context, filter domain.ListFilter) ([]domain.Sale, int, error) {
	r.mu.RLock()
	matched := make([]domain.Sale, 0, len(r.items))
	for _, sale := range r.items {
		if matchesFilter(sale, filter) {
			matched = append(matched, sale.Clone())
		}
	}
	r.mu.RUnlock()

	sortSales(matched, filter.NormalizedOrderBy(), filter.Ascending)

	total := len(matched)
	offset := filter.Offset()
	if offset >= total {
		return []domain.Sale{}, total, nil
	}
	end := total
	if filter.PageSize > 0 && offset+filter.PageSize < total {
		end = offset + filter.PageSize
	}
	return matched[offset:end], total, nil
}

// itemIDTaken повторяет первичный ключ sale_items: ID позиции уникален среди всех продаж.
// Вызывается под r.mu.
func (r *saleRepositoryInMemory) itemIDTaken(sale domain.Sale) bool {
	ids := make(map[string]struct{}, len(sale.Items))
	for _, item := range sale.Items {
		if item.ID == "" {
			continue
		}
		if _, dup := ids[item.ID]; dup {
			return true
		}
		ids[item.ID] = struct{}{}
	}
	if len(ids) == 0 {
		return false
	}
	for id, other := range r.items {
		if id == sale.ID {
			continue
		}
		for _, item := range other.Items {
			if _, clash := ids[item.ID]; clash {
				return true
			}
		}
	}
	return false
}

func assignItemIDs(sale *domain.Sale) {
	for i := range sale.Items {
		if sale.Items[i].ID == "" {
			sale.Items[i].ID = uuid.NewString()
		}
		sale.Items[i].SaleID = sale.ID
	}
}

func matchesFilter(sale domain.Sale, filter domain.ListFilter) bool {
	if term := strings.ToLower(strings.TrimSpace(filter.SearchTerm)); term != "" {
		if !strings.Contains(strings.ToLower(sale.SaleNumber), term) &&
			!strings.Contains(strings.ToLower(sale.Customer), term) &&
			!strings.Contains(strings.ToLower(sale.Branch), term) {
			return false
		}
	}
	if filter.StartDate != nil && sale.Date.Before(*filter.StartDate) {
		return false
	}
	if filter.EndDate != nil && sale.Date.After(*filter.EndDate) {
		return false
	}
	if filter.IsCancelled != nil && sale.IsCancelled != *filter.IsCancelled {
		return false
	}
	return true
}

func sortSales(sales []domain.Sale, orderBy string, ascending bool) {
	less := func(a, b domain.Sale) int {
		switch orderBy {
		case domain.OrderBySaleNumber:
			return strings.Compare(a.SaleNumber, b.SaleNumber)
		case domain.OrderByCustomer:
			return strings.Compare(a.Customer, b.Customer)
		case domain.OrderByBranch:
			return strings.Compare(a.Branch, b.Branch)
		case domain.OrderByTotalAmount:
			return a.TotalAmount.Cmp(b.TotalAmount)
		case domain.OrderByCreatedAt:
			return compareTime(a.CreatedAt, b.CreatedAt)
		default:
			return compareTime(a.Date, b.Date)
		}
	}

	sort.SliceStable(sales, func(i, j int) bool {
		c := less(sales[i], sales[j])
		if c == 0 {
			// Стабильный порядок при равных ключах.
			c = strings.Compare(sales[i].ID, sales[j].ID)
		}
		if ascending {
			return c < 0
		}
		return c > 0
	})
}

func compareTime(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	default:
		return 0
	}
}

var _ domain.SaleRepository = (*saleRepositoryInMemory)(nil)
