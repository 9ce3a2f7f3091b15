package domain

import (
	"context"
	"time"
)

// SaleRepository описывает требования к хранилищу продаж.
type SaleRepository interface {
	// Get возвращает продажу вместе с позициями или ошибку ErrSaleNotFound.
	Get(ctx context.Context, id string) (Sale, error)
	// Create сохраняет новую продажу, проставляя ID, временные метки и версию.
	Create(ctx context.Context, sale Sale) (Sale, error)
	// Update сохраняет изменения с учётом optimistic locking по Version.
	Update(ctx context.Context, sale Sale) (Sale, error)
	// Delete физически удаляет продажу и её позиции. false, если записи нет.
	Delete(ctx context.Context, id string) (bool, error)
	// List возвращает страницу продаж и общее количество подходящих записей.
	List(ctx context.Context, filter ListFilter) ([]Sale, int, error)
}

// EventSink принимает доменные события. Ошибки публикации не влияют на
// результат операции, которая их породила.
type EventSink interface {
	Publish(ctx context.Context, event SaleEvent) error
}

// OutboxPublisher публикует события из outbox в брокер.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, msg OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
	// PurgeSent удаляет отправленные записи старше before, не больше limit за вызов.
	PurgeSent(ctx context.Context, before time.Time, limit int) (int, error)
}

// TimelineRepository хранит журнал событий по продаже.
type TimelineRepository interface {
	Append(ctx context.Context, event TimelineEvent) error
	List(ctx context.Context, saleID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}

// OutboxStats описывает текущее состояние backlog outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
