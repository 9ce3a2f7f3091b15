// Package events содержит реализации domain.EventSink: журнал, timeline,
// outbox для relay в Kafka и их объединение.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/sales/internal/domain"
	"github.com/vladislavdragonenkov/sales/internal/metrics"
)

// LoggingSink пишет каждое событие в лог.
type LoggingSink struct {
	logger *log.Entry
}

func NewLoggingSink(logger *log.Entry) *LoggingSink {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &LoggingSink{logger: logger.WithField("component", "event-log")}
}

func (s *LoggingSink) Publish(_ context.Context, event domain.SaleEvent) error {
	fields := log.Fields{
		"event_type":  event.Type,
		"sale_id":     event.SaleID,
		"sale_number": event.SaleNumber,
	}
	if event.Item != nil {
		fields["item_id"] = event.Item.ItemID
	}
	s.logger.WithFields(fields).Info("event published")
	return nil
}

// TimelineSink превращает события в записи журнала продажи.
type TimelineSink struct {
	repo domain.TimelineRepository
}

func NewTimelineSink(repo domain.TimelineRepository) *TimelineSink {
	return &TimelineSink{repo: repo}
}

func (s *TimelineSink) Publish(ctx context.Context, event domain.SaleEvent) error {
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	err := s.repo.Append(ctx, domain.TimelineEvent{
		SaleID:   event.SaleID,
		Type:     event.Type,
		Detail:   Describe(event),
		Occurred: occurred,
	})
	if err != nil {
		return fmt.Errorf("append timeline event: %w", err)
	}
	return nil
}

// Describe формирует человекочитаемое описание события для timeline.
func Describe(event domain.SaleEvent) string {
	switch event.Type {
	case domain.EventSaleCreated:
		return fmt.Sprintf("sale %s created for %s at %s, total %s",
			event.SaleNumber, event.Customer, event.Branch, event.TotalAmount.StringFixed(domain.CurrencyPrecision))
	case domain.EventSaleModified:
		return fmt.Sprintf("sale %s modified", event.SaleNumber)
	case domain.EventSaleCancelled:
		return fmt.Sprintf("sale %s cancelled: %s", event.SaleNumber, event.Reason)
	case domain.EventItemCancelled:
		if event.Item == nil {
			return fmt.Sprintf("item of sale %s cancelled", event.SaleNumber)
		}
		return fmt.Sprintf("item %s (product %s, qty %d) cancelled",
			event.Item.ItemID, event.Item.ProductID, event.Item.Quantity)
	default:
		return string(event.Type)
	}
}

// OutboxSink сериализует событие в JSON и кладёт его в outbox после того, как
// изменение продажи уже сохранено. Запись идёт отдельно от транзакции продажи,
// поэтому падение между ними теряет событие. Доставку at-least-once из outbox
// в брокер обеспечивает outbox.Worker.
type OutboxSink struct {
	repo domain.OutboxRepository
}

func NewOutboxSink(repo domain.OutboxRepository) *OutboxSink {
	return &OutboxSink{repo: repo}
}

func (s *OutboxSink) Publish(ctx context.Context, event domain.SaleEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal sale event: %w", err)
	}
	_, err = s.repo.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: domain.AggregateTypeSale,
		AggregateID:   event.SaleID,
		EventType:     string(event.Type),
		Payload:       payload,
		CreatedAt:     event.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("enqueue sale event: %w", err)
	}
	return nil
}

// FanOut передаёт событие всем приёмникам. Сбой одного приёмника не мешает
// остальным; ошибки объединяются через errors.Join.
type FanOut struct {
	sinks   []domain.EventSink
	metrics *metrics.SalesMetrics
}

func NewFanOut(m *metrics.SalesMetrics, sinks ...domain.EventSink) *FanOut {
	filtered := make([]domain.EventSink, 0, len(sinks))
	for _, sink := range sinks {
		if sink != nil {
			filtered = append(filtered, sink)
		}
	}
	return &FanOut{sinks: filtered, metrics: m}
}

func (f *FanOut) Publish(ctx context.Context, event domain.SaleEvent) error {
	var errs []error
	for _, sink := range f.sinks {
		if err := sink.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	err := errors.Join(errs...)

	status := "ok"
	if err != nil {
		status = "error"
	}
	f.metrics.RecordEventPublished(string(event.Type), status)
	return err
}

// Discard игнорирует события.
type Discard struct{}

func (Discard) Publish(context.Context, domain.SaleEvent) error { return nil }
