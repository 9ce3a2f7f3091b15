package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/sales/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/sales/internal/metrics"
)

// initKafkaProducer создаёт producer, если заданы брокеры.
// Без брокеров возвращает nil, nil: сервис работает без шины событий.
func initKafkaProducer(brokers []string, logger *log.Entry) (*kafka.Producer, error) {
	if len(brokers) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokers)
	if err != nil {
		return nil, err
	}

	logger.WithField("brokers", brokers).Info("kafka producer initialized")
	return producer, nil
}

// startAuditConsumer подписывает аудит на топик событий продаж.
// Без группы или брокеров аудит выключен.
func startAuditConsumer(ctx context.Context, cfg Config, producer *kafka.Producer, m *metrics.SalesMetrics, logger *log.Entry) (*kafka.Consumer, error) {
	if cfg.AuditConsumerGroup == "" || len(cfg.KafkaBrokers) == 0 {
		return nil, nil
	}

	consumer, err := kafka.NewConsumer(
		cfg.KafkaBrokers,
		cfg.AuditConsumerGroup,
		[]string{cfg.KafkaTopic},
		kafka.NewAuditHandler(m, logger),
		kafka.WithDLQ(producer),
		kafka.WithConsumerLogger(logger.WithField("component", "audit-consumer")),
	)
	if err != nil {
		return nil, fmt.Errorf("create audit consumer: %w", err)
	}
	if err := consumer.Start(ctx); err != nil {
		_ = consumer.Stop()
		return nil, fmt.Errorf("start audit consumer: %w", err)
	}
	return consumer, nil
}

// closeKafkaProducer закрывает producer, если он был создан.
func closeKafkaProducer(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}

func stopAuditConsumer(consumer *kafka.Consumer, logger *log.Entry) {
	if consumer == nil {
		return
	}
	if err := consumer.Stop(); err != nil {
		logger.WithError(err).Warn("failed to stop audit consumer")
	}
}
