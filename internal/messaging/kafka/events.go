package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/sales/internal/domain"
)

const (
	// TopicSaleEvents — события жизненного цикла продаж из outbox.
	TopicSaleEvents = "sales.events"
	// TopicDeadLetterQueue — сообщения, которые не удалось опубликовать или обработать.
	TopicDeadLetterQueue = "sales.dlq"
)

// Заголовки Kafka для retry и DLQ.
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
	HeaderEventType     = "x-event-type"
)

var errInvalidEnvelope = errors.New("invalid sale event envelope")

// Envelope — формат сообщения в топике sales.events.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregateType"`
	SaleID        string          `json:"saleId"`
	EventType     string          `json:"eventType"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"publishedAt"`
}

// NewEnvelope оборачивает outbox-сообщение для публикации.
func NewEnvelope(msg domain.OutboxMessage, at time.Time) Envelope {
	return Envelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		SaleID:        msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       json.RawMessage(msg.Payload),
		PublishedAt:   at.UTC(),
	}
}

// Key возвращает ключ партиционирования. События одной продажи идут в одну партицию,
// поэтому их порядок сохраняется.
func (e Envelope) Key() string {
	if e.SaleID != "" {
		return e.SaleID
	}
	return e.ID
}

// DecodeEnvelope разбирает сообщение из sales.events.
func DecodeEnvelope(value []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(value, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", errInvalidEnvelope, err)
	}
	if env.EventType == "" || len(env.Payload) == 0 {
		return Envelope{}, fmt.Errorf("%w: event type and payload are required", errInvalidEnvelope)
	}
	return env, nil
}

// SaleEvent декодирует полезную нагрузку в доменное событие.
func (e Envelope) SaleEvent() (domain.SaleEvent, error) {
	var event domain.SaleEvent
	if err := json.Unmarshal(e.Payload, &event); err != nil {
		return domain.SaleEvent{}, fmt.Errorf("%w: decode payload: %v", errInvalidEnvelope, err)
	}
	switch event.Type {
	case domain.EventSaleCreated, domain.EventSaleModified, domain.EventSaleCancelled, domain.EventItemCancelled:
	default:
		return domain.SaleEvent{}, fmt.Errorf("%w: unknown event type %q", errInvalidEnvelope, event.Type)
	}
	return event, nil
}

// ConsumerDeadLetter — сообщение, которое consumer не смог обработать.
type ConsumerDeadLetter struct {
	OriginalTopic     string    `json:"originalTopic"`
	OriginalPartition int32     `json:"originalPartition"`
	OriginalOffset    int64     `json:"originalOffset"`
	OriginalKey       string    `json:"originalKey"`
	OriginalValue     string    `json:"originalValue"`
	ErrorMessage      string    `json:"errorMessage"`
	FailedAt          time.Time `json:"failedAt"`
	RetryCount        int       `json:"retryCount"`
}
