package kafka

import (
	"context"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/sales/internal/metrics"
)

// NewAuditHandler строит обработчик для топика sales.events: считает события
// по типу и пишет их в лог. Нераспознанное сообщение возвращает ошибку, после
// исчерпания попыток consumer отправит его в DLQ.
func NewAuditHandler(m *metrics.SalesMetrics, logger *log.Entry) MessageHandler {
	if logger == nil {
		logger = log.WithField("component", "sales-audit")
	}
	return func(_ context.Context, message *sarama.ConsumerMessage) error {
		env, err := DecodeEnvelope(message.Value)
		if err != nil {
			return err
		}
		event, err := env.SaleEvent()
		if err != nil {
			return err
		}

		m.RecordAuditEvent(string(event.Type))
		logger.WithFields(log.Fields{
			"event_type":  event.Type,
			"sale_id":     event.SaleID,
			"sale_number": event.SaleNumber,
			"partition":   message.Partition,
			"offset":      message.Offset,
		}).Info("sale event audited")
		return nil
	}
}
