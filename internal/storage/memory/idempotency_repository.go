package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/sales/internal/domain"
)

// defaultIdempotencyTTL совпадает со сроком PostgreSQL-реализации.
const defaultIdempotencyTTL = 24 * time.Hour

// saleRequestLog запоминает ответы на POST /api/sales, повторённые с тем же Idempotency-Key.
type saleRequestLog struct {
	mu      sync.RWMutex
	records map[string]domain.IdempotencyRecord
	clock   domain.Clock
}

func NewIdempotencyRepository() domain.IdempotencyRepository {
	return NewIdempotencyRepositoryWithClock(domain.SystemClock{})
}

// NewIdempotencyRepositoryWithClock нужен тестам истечения ключей.
func NewIdempotencyRepositoryWithClock(clock domain.Clock) domain.IdempotencyRepository {
	return &saleRequestLog{records: make(map[string]domain.IdempotencyRecord), clock: clock}
}

// CreateProcessing занимает ключ. Действующий ключ с тем же хэшем означает повтор,
// с другим хэшем означает чужой запрос под тем же ключом. Истёкший ключ занимается заново.
func (l *saleRequestLog) CreateProcessing(_ context.Context, key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	key, requestHash = strings.TrimSpace(key), strings.TrimSpace(requestHash)
	switch {
	case key == "":
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	case requestHash == "":
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyRequestHashRequired
	}

	now := l.clock.Now()
	if ttlAt.IsZero() {
		ttlAt = now.Add(defaultIdempotencyTTL)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if held, ok := l.records[key]; ok && !held.Expired(now) {
		if held.RequestHash != requestHash {
			return copyRecord(held), domain.ErrIdempotencyHashMismatch
		}
		return copyRecord(held), domain.ErrIdempotencyKeyAlreadyExists
	}

	record := domain.IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		Status:      domain.IdempotencyStatusProcessing,
		TTLAt:       ttlAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	l.records[key] = record
	return copyRecord(record), nil
}

func (l *saleRequestLog) Get(_ context.Context, key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	record, ok := l.records[key]
	if !ok {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	return copyRecord(record), nil
}

func (l *saleRequestLog) MarkDone(_ context.Context, key string, responseBody []byte, httpStatus int) error {
	return l.finish(key, domain.IdempotencyStatusDone, responseBody, httpStatus)
}

func (l *saleRequestLog) MarkFailed(_ context.Context, key string, responseBody []byte, httpStatus int) error {
	return l.finish(key, domain.IdempotencyStatusFailed, responseBody, httpStatus)
}

// DeleteExpired удаляет до limit записей с TTLAt <= before, самые старые первыми.
func (l *saleRequestLog) DeleteExpired(_ context.Context, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = l.clock.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var expired []domain.IdempotencyRecord
	for _, record := range l.records {
		if record.Expired(before) {
			expired = append(expired, record)
		}
	}
	slices.SortFunc(expired, func(a, b domain.IdempotencyRecord) int { return a.TTLAt.Compare(b.TTLAt) })
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}
	for _, record := range expired {
		delete(l.records, record.Key)
	}
	return len(expired), nil
}

func (l *saleRequestLog) finish(key string, status domain.IdempotencyStatus, responseBody []byte, httpStatus int) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	record, ok := l.records[key]
	if !ok {
		return domain.ErrIdempotencyKeyNotFound
	}
	record.Status = status
	record.ResponseBody = slices.Clone(responseBody)
	record.HTTPStatus = httpStatus
	record.UpdatedAt = l.clock.Now()
	l.records[key] = record
	return nil
}

func copyRecord(src domain.IdempotencyRecord) domain.IdempotencyRecord {
	dst := src
	dst.ResponseBody = slices.Clone(src.ResponseBody)
	return dst
}

var _ domain.IdempotencyRepository = (*saleRequestLog)(nil)
