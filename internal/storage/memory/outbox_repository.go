package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/sales/internal/domain"
)

// Статусы записей outbox.
const (
	OutboxStatusPending = "pending"
	OutboxStatusSent    = "sent"
	OutboxStatusFailed  = "failed"
)

const defaultOutboxBatch = 100

type saleOutboxEntry struct {
	msg       domain.OutboxMessage
	status    string
	attempts  int
	updatedAt time.Time
}

// OutboxRepository держит события продаж до отправки relay-воркером.
// Отправленные записи удаляются через PurgeSent.
type OutboxRepository struct {
	mu      sync.RWMutex
	entries map[string]*saleOutboxEntry
	clock   domain.Clock
}

// NewOutboxRepository создаёт in-memory outbox на системных часах.
func NewOutboxRepository() *OutboxRepository {
	return NewOutboxRepositoryWithClock(domain.SystemClock{})
}

// NewOutboxRepositoryWithClock нужен тестам retention.
func NewOutboxRepositoryWithClock(clock domain.Clock) *OutboxRepository {
	return &OutboxRepository{entries: make(map[string]*saleOutboxEntry), clock: clock}
}

// Enqueue ставит событие продажи в очередь. Пустой AggregateType считается продажей.
func (r *OutboxRepository) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	now := r.clock.Now()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.AggregateType == "" {
		msg.AggregateType = domain.AggregateTypeSale
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[msg.ID] = &saleOutboxEntry{msg: msg, status: OutboxStatusPending, updatedAt: now}
	return msg, nil
}

// PullPending отдаёт до limit ожидающих событий продаж в порядке постановки.
func (r *OutboxRepository) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = defaultOutboxBatch
	}
	pending := r.pendingSales()
	return pending[:min(limit, len(pending))], nil
}

func (r *OutboxRepository) Stats(_ context.Context) (domain.OutboxStats, error) {
	pending := r.pendingSales()
	if len(pending) == 0 {
		return domain.OutboxStats{}, nil
	}
	return domain.OutboxStats{PendingCount: len(pending), OldestPendingAt: pending[0].CreatedAt}, nil
}

func (r *OutboxRepository) MarkSent(_ context.Context, id string) error {
	return r.setStatus(id, OutboxStatusSent)
}

func (r *OutboxRepository) MarkFailed(_ context.Context, id string) error {
	return r.setStatus(id, OutboxStatusFailed)
}

// PurgeSent удаляет до limit отправленных записей, обновлённых не позже before.
// Failed-записи остаются: их содержимое уже ушло в DLQ, но полезно для разбора.
func (r *OutboxRepository) PurgeSent(_ context.Context, before time.Time, limit int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []*saleOutboxEntry
	for _, entry := range r.entries {
		if entry.status == OutboxStatusSent && !entry.updatedAt.After(before) {
			expired = append(expired, entry)
		}
	}
	slices.SortFunc(expired, func(a, b *saleOutboxEntry) int { return a.updatedAt.Compare(b.updatedAt) })
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}
	for _, entry := range expired {
		delete(r.entries, entry.msg.ID)
	}
	return len(expired), nil
}

// Status возвращает статус записи, для тестов.
func (r *OutboxRepository) Status(id string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[id]
	if !ok {
		return "", false
	}
	return entry.status, true
}

// Len возвращает число хранимых записей в любом статусе.
func (r *OutboxRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *OutboxRepository) setStatus(id, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok {
		return domain.ErrOutboxPublish
	}
	entry.status = status
	entry.attempts++
	entry.updatedAt = r.clock.Now()
	return nil
}

func (r *OutboxRepository) pendingSales() []domain.OutboxMessage {
	r.mu.RLock()
	pending := make([]domain.OutboxMessage, 0, len(r.entries))
	for _, entry := range r.entries {
		if entry.status == OutboxStatusPending && entry.msg.AggregateType == domain.AggregateTypeSale {
			pending = append(pending, entry.msg)
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(pending, func(a, b domain.OutboxMessage) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return pending
}

var _ domain.OutboxRepository = (*OutboxRepository)(nil)
