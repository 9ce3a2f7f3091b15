package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/vladislavdragonenkov/sales/internal/cache"
	"github.com/vladislavdragonenkov/sales/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/sales/internal/health"
	salesHTTP "github.com/vladislavdragonenkov/sales/internal/http"
	"github.com/vladislavdragonenkov/sales/internal/http/handlers"
	"github.com/vladislavdragonenkov/sales/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/sales/internal/metrics"
	"github.com/vladislavdragonenkov/sales/internal/service/events"
	"github.com/vladislavdragonenkov/sales/internal/service/idempotency"
	"github.com/vladislavdragonenkov/sales/internal/service/outbox"
	"github.com/vladislavdragonenkov/sales/internal/service/sales"
	"github.com/vladislavdragonenkov/sales/internal/version"
)

const shutdownTimeout = 5 * time.Second

func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	logger.Info(version.String())

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if deps.closeFn != nil {
		defer func() {
			if err := deps.closeFn(); err != nil {
				logger.WithError(err).Warn("failed to close storage")
			}
		}()
	}

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	healthHandler.RegisterChecker("storage", deps.storageChecker)

	saleRepo := deps.repo
	if redisClient := connectCache(ctx, cfg, logger); redisClient != nil {
		defer func() { _ = redisClient.Close() }()
		saleRepo = cache.NewSaleRepository(saleRepo, redisClient, cfg.CacheTTL, logger)
		healthHandler.RegisterChecker("cache", healthcheck.NewOptionalChecker("cache", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}))
	}

	kafkaProducer, err := initKafkaProducer(cfg.KafkaBrokers, logger)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
	}
	defer closeKafkaProducer(kafkaProducer, logger)

	salesMetrics := metrics.NewSalesMetrics()
	sink := newEventSink(salesMetrics, deps, kafkaProducer != nil, logger)
	saleService := sales.NewService(saleRepo,
		sales.WithEventSink(sink),
		sales.WithTimeline(deps.timelineRepo),
		sales.WithMetrics(salesMetrics),
		sales.WithLogger(logger.WithField("layer", "service")),
	)

	httpServer := salesHTTP.NewServer(cfg.HTTPAddr, salesHTTP.RouterConfig{
		SaleHandler:    handlers.NewSaleHandler(saleService, logger.WithField("layer", "http")),
		Idempotency:    deps.idempotencyRepo,
		IdempotencyTTL: cfg.IdempotencyTTL,
		Metrics:        metrics.NewHTTPMetrics(),
		CORSOrigins:    cfg.CORSOrigins,
		Logger:         logger.WithField("layer", "http"),
	})

	httpLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return err
	}
	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		_ = httpLis.Close()
		return err
	}

	workersCtx, cancelWorkers := context.WithCancel(ctx)
	workersDone := startWorkers(workersCtx, cfg, deps, kafkaProducer, logger)
	defer shutdownWorkers(cancelWorkers, workersDone, logger)

	auditConsumer, err := startAuditConsumer(workersCtx, cfg, kafkaProducer, salesMetrics, logger)
	if err != nil {
		logger.WithError(err).Warn("audit consumer is disabled")
	}
	defer stopAuditConsumer(auditConsumer, logger)

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)
	grpcServer, healthServer := newGRPCServer(logger)

	errCh := make(chan error, 2)
	go func() {
		logger.Infof("REST API listening on %s", httpLis.Addr())
		errCh <- httpServer.HTTP.Serve(httpLis)
	}()
	go func() {
		logger.Infof("gRPC server listening on %s", grpcLis.Addr())
		errCh <- grpcServer.Serve(grpcLis)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping servers")
		runErr = ctx.Err()
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, grpc.ErrServerStopped) {
			runErr = err
		}
	}

	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	shutdownHTTP(httpServer.HTTP, logger)
	stopGRPC(grpcServer, logger)
	shutdownHTTP(metricsSrv, logger)
	return runErr
}

// newEventSink собирает получателей событий продаж. Outbox подключается только
// вместе с relay: без брокера его некому разгружать.
func newEventSink(m *metrics.SalesMetrics, deps runtimeDependencies, relayEnabled bool, logger *log.Entry) domain.EventSink {
	sinks := []domain.EventSink{
		events.NewLoggingSink(logger.WithField("component", "events")),
		events.NewTimelineSink(deps.timelineRepo),
	}
	if relayEnabled {
		sinks = append(sinks, events.NewOutboxSink(deps.outboxRepo))
	} else {
		logger.Info("kafka is not configured, sale events are not written to outbox")
	}
	return events.NewFanOut(m, sinks...)
}

// connectCache поднимает Redis, если он настроен. Недоступный кэш не мешает старту.
func connectCache(ctx context.Context, cfg Config, logger *log.Entry) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	client, err := cache.Connect(ctx, cache.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		logger.WithError(err).Warn("redis is unavailable, continuing without cache")
		return nil
	}
	logger.WithField("addr", cfg.RedisAddr).Info("sale cache enabled")
	return client
}

// startWorkers запускает relay outbox и очистку ключей идемпотентности.
// Канал закрывается, когда оба воркера вышли.
func startWorkers(ctx context.Context, cfg Config, deps runtimeDependencies, producer *kafka.Producer, logger *log.Entry) <-chan struct{} {
	var wg sync.WaitGroup

	if producer != nil {
		worker := outbox.NewWorker(
			deps.outboxRepo,
			kafka.NewOutboxPublisher(producer, cfg.KafkaTopic),
			cfg.outboxConfig(),
			outbox.WithDLQPublisher(kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue)),
			outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker.Run(ctx)
		}()
	} else {
		logger.Info("kafka is not configured, outbox relay is disabled")
	}

	cleanup := idempotency.NewCleanupWorker(deps.idempotencyRepo,
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
		idempotency.WithClock(domain.SystemClock{}),
		idempotency.WithLogger(logger.WithField("component", "idempotency-cleanup")),
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		cleanup.Run(ctx)
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}

// shutdownWorkers отменяет воркеры и ждёт их не дольше shutdownTimeout.
func shutdownWorkers(cancel context.CancelFunc, done <-chan struct{}, logger *log.Entry) {
	if cancel != nil {
		cancel()
	}
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		logger.Warn("background workers did not stop in time")
	}
}

// newGRPCServer поднимает служебный gRPC: health, reflection и метрики.
func newGRPCServer(logger *log.Entry) (*grpc.Server, *health.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()))

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	reflection.Register(grpcServer)
	grpcMetrics.InitializeMetrics(grpcServer)
	return grpcServer, healthServer
}

func stopGRPC(srv *grpc.Server, logger *log.Entry) {
	stopped := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(shutdownTimeout):
		logger.Warn("grpc graceful stop timed out, forcing stop")
		srv.Stop()
	}
}

// startMetricsServer запускает /metrics и health-эндпоинты.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("metrics available at %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
