package app

import (
	"time"

	"github.com/vladislavdragonenkov/sales/internal/cache"
	"github.com/vladislavdragonenkov/sales/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/sales/internal/service/idempotency"
	"github.com/vladislavdragonenkov/sales/internal/service/outbox"
)

// StorageDriver выбирает реализацию хранилища.
type StorageDriver string

const (
	StorageDriverMemory   StorageDriver = "memory"
	StorageDriverPostgres StorageDriver = "postgres"
)

// DefaultIdempotencyTTL — сколько живёт сохранённый ответ на Idempotency-Key.
const DefaultIdempotencyTTL = 24 * time.Hour

// Config описывает настройки запуска сервиса продаж.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       StorageDriver
	PostgresDSN         string
	PostgresAutoMigrate bool

	// Кэш выключен, пока RedisAddr пустой.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	// Без брокеров события не попадают в outbox и relay не запускается.
	KafkaBrokers       []string
	KafkaTopic         string
	AuditConsumerGroup string

	OutboxPollInterval  time.Duration
	OutboxBatchSize     int
	OutboxMaxAttempts   int
	OutboxRetryDelay    time.Duration
	OutboxSentRetention time.Duration // отправленные записи удаляются по истечении срока

	IdempotencyTTL              time.Duration
	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int

	CORSOrigins []string
}

// DefaultConfig возвращает конфигурацию для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:                    ":8080",
		GRPCAddr:                    ":50051",
		MetricsAddr:                 ":9090",
		StorageDriver:               StorageDriverMemory,
		PostgresAutoMigrate:         true,
		CacheTTL:                    cache.DefaultTTL,
		KafkaTopic:                  kafka.TopicSaleEvents,
		OutboxPollInterval:          outbox.DefaultPollInterval,
		OutboxBatchSize:             outbox.DefaultBatchSize,
		OutboxMaxAttempts:           outbox.DefaultMaxAttempts,
		OutboxRetryDelay:            outbox.DefaultRetryBaseDelay,
		OutboxSentRetention:         outbox.DefaultSentRetention,
		IdempotencyTTL:              DefaultIdempotencyTTL,
		IdempotencyCleanupInterval:  idempotency.DefaultCleanupInterval,
		IdempotencyCleanupBatchSize: idempotency.DefaultCleanupBatchSize,
	}
}

func (c Config) outboxConfig() outbox.Config {
	return outbox.Config{
		PollInterval:   c.OutboxPollInterval,
		BatchSize:      c.OutboxBatchSize,
		MaxAttempts:    c.OutboxMaxAttempts,
		RetryBaseDelay: c.OutboxRetryDelay,
		SentRetention:  c.OutboxSentRetention,
	}
}
