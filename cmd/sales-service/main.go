package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/sales/internal/app"
)

const (
	envHTTPAddr                    = "SALES_HTTP_ADDR"
	envGRPCAddr                    = "SALES_GRPC_ADDR"
	envMetricsAddr                 = "SALES_METRICS_ADDR"
	envStorageDriver               = "SALES_STORAGE_DRIVER"
	envPostgresDSN                 = "SALES_POSTGRES_DSN"
	envPostgresAutoMigrate         = "SALES_POSTGRES_AUTO_MIGRATE"
	envRedisAddr                   = "SALES_REDIS_ADDR"
	envRedisPassword               = "SALES_REDIS_PASSWORD"
	envRedisDB                     = "SALES_REDIS_DB"
	envCacheTTL                    = "SALES_CACHE_TTL"
	envKafkaBrokers                = "SALES_KAFKA_BROKERS"
	envKafkaTopic                  = "SALES_KAFKA_TOPIC"
	envAuditConsumerGroup          = "SALES_AUDIT_CONSUMER_GROUP"
	envOutboxPollInterval          = "SALES_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize             = "SALES_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts           = "SALES_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay            = "SALES_OUTBOX_RETRY_DELAY"
	envOutboxSentRetention         = "SALES_OUTBOX_SENT_RETENTION"
	envIdempotencyTTL              = "SALES_IDEMPOTENCY_TTL"
	envIdempotencyCleanupInterval  = "SALES_IDEMPOTENCY_CLEANUP_INTERVAL"
	envIdempotencyCleanupBatchSize = "SALES_IDEMPOTENCY_CLEANUP_BATCH_SIZE"
	envCORSOrigins                 = "SALES_CORS_ORIGINS"
	envLogLevel                    = "SALES_LOG_LEVEL"
)

type envLookup func(key string) (string, bool)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(lookup envLookup) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	raw, ok := lookup(envLogLevel)
	if !ok || strings.TrimSpace(raw) == "" {
		return
	}
	level, err := log.ParseLevel(strings.TrimSpace(raw))
	if err != nil {
		log.WithError(err).Warnf("invalid %s, using info", envLogLevel)
		return
	}
	log.SetLevel(level)
}

// readConfigFromEnv собирает конфигурацию из окружения. Некорректные значения
// не останавливают запуск: остаётся значение по умолчанию, а причина попадает в warnings.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string
	warn := func(key string, err error) {
		warnings = append(warnings, fmt.Sprintf("%s: %v", key, err))
	}

	readString(lookup, envHTTPAddr, &cfg.HTTPAddr)
	readString(lookup, envGRPCAddr, &cfg.GRPCAddr)
	readString(lookup, envMetricsAddr, &cfg.MetricsAddr)
	readString(lookup, envPostgresDSN, &cfg.PostgresDSN)
	readString(lookup, envRedisAddr, &cfg.RedisAddr)
	readString(lookup, envKafkaTopic, &cfg.KafkaTopic)
	readString(lookup, envAuditConsumerGroup, &cfg.AuditConsumerGroup)

	if v, ok := lookup(envStorageDriver); ok && strings.TrimSpace(v) != "" {
		cfg.StorageDriver = app.StorageDriver(strings.ToLower(strings.TrimSpace(v)))
	}
	// Пароль не триммится: пробелы могут быть его частью.
	if v, ok := lookup(envRedisPassword); ok {
		cfg.RedisPassword = v
	}
	if v, ok := lookup(envKafkaBrokers); ok {
		cfg.KafkaBrokers = splitList(v)
	}
	if v, ok := lookup(envCORSOrigins); ok {
		cfg.CORSOrigins = splitList(v)
	}

	if v, ok := lookupNonEmpty(lookup, envPostgresAutoMigrate); ok {
		if parsed, err := parseBool(v); err != nil {
			warn(envPostgresAutoMigrate, err)
		} else {
			cfg.PostgresAutoMigrate = parsed
		}
	}

	intFields := []struct {
		key   string
		dst   *int
		parse func(string) (int, error)
	}{
		{envRedisDB, &cfg.RedisDB, parseNonNegativeInt},
		{envOutboxBatchSize, &cfg.OutboxBatchSize, parsePositiveInt},
		{envOutboxMaxAttempts, &cfg.OutboxMaxAttempts, parsePositiveInt},
		{envIdempotencyCleanupBatchSize, &cfg.IdempotencyCleanupBatchSize, parsePositiveInt},
	}
	for _, f := range intFields {
		v, ok := lookupNonEmpty(lookup, f.key)
		if !ok {
			continue
		}
		parsed, err := f.parse(v)
		if err != nil {
			warn(f.key, err)
			continue
		}
		*f.dst = parsed
	}

	durationFields := []struct {
		key   string
		dst   *time.Duration
		parse func(string) (time.Duration, error)
	}{
		{envCacheTTL, &cfg.CacheTTL, parsePositiveDuration},
		{envOutboxPollInterval, &cfg.OutboxPollInterval, parsePositiveDuration},
		{envOutboxRetryDelay, &cfg.OutboxRetryDelay, parseNonNegativeDuration},
		{envOutboxSentRetention, &cfg.OutboxSentRetention, parsePositiveDuration},
		{envIdempotencyTTL, &cfg.IdempotencyTTL, parsePositiveDuration},
		{envIdempotencyCleanupInterval, &cfg.IdempotencyCleanupInterval, parsePositiveDuration},
	}
	for _, f := range durationFields {
		v, ok := lookupNonEmpty(lookup, f.key)
		if !ok {
			continue
		}
		parsed, err := f.parse(v)
		if err != nil {
			warn(f.key, err)
			continue
		}
		*f.dst = parsed
	}

	return cfg, warnings
}

func readString(lookup envLookup, key string, dst *string) {
	if v, ok := lookupNonEmpty(lookup, key); ok {
		*dst = v
	}
}

func lookupNonEmpty(lookup envLookup, key string) (string, bool) {
	v, ok := lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

// splitList разбирает список через запятую, пропуская пустые элементы.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid int value %q", raw)
	}
	if !valid(value) {
		return 0, fmt.Errorf("value %d %s", value, rule)
	}
	return value, nil
}

func parsePositiveInt(raw string) (int, error) {
	return parseInt(raw, func(v int) bool { return v > 0 }, "must be > 0")
}

func parseNonNegativeInt(raw string) (int, error) {
	return parseInt(raw, func(v int) bool { return v >= 0 }, "must be >= 0")
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration value %q", raw)
	}
	if !valid(value) {
		return 0, fmt.Errorf("value %s %s", value, rule)
	}
	return value, nil
}

func parsePositiveDuration(raw string) (time.Duration, error) {
	return parseDuration(raw, func(v time.Duration) bool { return v > 0 }, "must be > 0")
}

func parseNonNegativeDuration(raw string) (time.Duration, error) {
	return parseDuration(raw, func(v time.Duration) bool { return v >= 0 }, "must be >= 0")
}

func main() {
	setupLogger(os.LookupEnv)
	cfg, warnings := readConfigFromEnv(os.LookupEnv)
	for _, w := range warnings {
		log.Warnf("invalid config value, using default: %s", w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"http_addr":      cfg.HTTPAddr,
		"grpc_addr":      cfg.GRPCAddr,
		"metrics_addr":   cfg.MetricsAddr,
		"storage_driver": cfg.StorageDriver,
		"kafka_enabled":  len(cfg.KafkaBrokers) > 0,
		"cache_enabled":  cfg.RedisAddr != "",
	}).Info("запускаем sales-service")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("sales-service остановлен")
}
