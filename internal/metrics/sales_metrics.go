package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SalesMetrics собирает бизнес-метрики по продажам.
// Все методы безопасны для nil-получателя, чтобы сервис работал и без метрик.
type SalesMetrics struct {
	created        prometheus.Counter
	cancelled      prometheus.Counter
	itemsCancelled prometheus.Counter
	deleted        prometheus.Counter

	rejections *prometheus.CounterVec
	amount     prometheus.Histogram
	duration   *prometheus.HistogramVec

	eventsPublished *prometheus.CounterVec
	auditConsumed   *prometheus.CounterVec
}

// NewSalesMetrics регистрирует метрики в глобальном реестре Prometheus.
func NewSalesMetrics() *SalesMetrics {
	return NewSalesMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewSalesMetricsWithRegisterer регистрирует метрики в переданном реестре.
func NewSalesMetricsWithRegisterer(registerer prometheus.Registerer) *SalesMetrics {
	return &SalesMetrics{
		created: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sales_created_total",
			Help: "Total number of sales created",
		}), "sales_created_total"),
		cancelled: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sales_cancelled_total",
			Help: "Total number of sales cancelled",
		}), "sales_cancelled_total"),
		itemsCancelled: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sales_items_cancelled_total",
			Help: "Total number of sale items cancelled",
		}), "sales_items_cancelled_total"),
		deleted: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sales_deleted_total",
			Help: "Total number of sales deleted",
		}), "sales_deleted_total"),
		rejections: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sales_operation_rejections_total",
			Help: "Total number of rejected sale operations by reason",
		}, []string{"operation", "reason"}), "sales_operation_rejections_total"),
		amount: register(registerer, prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sales_amount",
			Help:    "Total amount of created sales",
			Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 50000},
		}), "sales_amount"),
		duration: register(registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sales_operation_duration_seconds",
			Help:    "Duration of sale operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}, []string{"operation"}), "sales_operation_duration_seconds"),
		eventsPublished: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sales_events_published_total",
			Help: "Total number of sale events handed to sinks by status",
		}, []string{"event_type", "status"}), "sales_events_published_total"),
		auditConsumed: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sales_audit_events_consumed_total",
			Help: "Total number of sale events observed by the audit consumer",
		}, []string{"event_type"}), "sales_audit_events_consumed_total"),
	}
}

// RecordCreated учитывает созданную продажу и её сумму.
func (m *SalesMetrics) RecordCreated(totalAmount float64) {
	if m == nil {
		return
	}
	m.created.Inc()
	m.amount.Observe(totalAmount)
}

func (m *SalesMetrics) RecordCancelled() {
	if m == nil {
		return
	}
	m.cancelled.Inc()
}

func (m *SalesMetrics) RecordItemCancelled() {
	if m == nil {
		return
	}
	m.itemsCancelled.Inc()
}

func (m *SalesMetrics) RecordDeleted() {
	if m == nil {
		return
	}
	m.deleted.Inc()
}

// RecordRejection учитывает отказ операции, reason содержит класс ошибки (validation, not_found, ...).
func (m *SalesMetrics) RecordRejection(operation, reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(operation, reason).Inc()
}

// ObserveOperation записывает длительность операции сервиса.
func (m *SalesMetrics) ObserveOperation(operation string, duration time.Duration) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordEventPublished учитывает попытку публикации события; status = ok|error.
func (m *SalesMetrics) RecordEventPublished(eventType, status string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(eventType, status).Inc()
}

// RecordAuditEvent учитывает событие, прочитанное audit-консьюмером.
func (m *SalesMetrics) RecordAuditEvent(eventType string) {
	if m == nil {
		return
	}
	m.auditConsumed.WithLabelValues(eventType).Inc()
}
