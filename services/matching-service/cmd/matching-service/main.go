package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/md-rashed-zaman/apptmatch/libs/auth"
	"github.com/md-rashed-zaman/apptmatch/libs/config"
	"github.com/md-rashed-zaman/apptmatch/libs/db"
	"github.com/md-rashed-zaman/apptmatch/libs/grpcx"
	"github.com/md-rashed-zaman/apptmatch/libs/httpx"
	"github.com/md-rashed-zaman/apptmatch/libs/kafkax"
	otelx "github.com/md-rashed-zaman/apptmatch/libs/otel"
	"github.com/md-rashed-zaman/apptmatch/libs/runtime"
	"github.com/md-rashed-zaman/apptmatch/services/matching-service/internal/busysync"
	"github.com/md-rashed-zaman/apptmatch/services/matching-service/internal/cache"
	"github.com/md-rashed-zaman/apptmatch/services/matching-service/internal/consumer"
	"github.com/md-rashed-zaman/apptmatch/services/matching-service/internal/handlers"
	"github.com/md-rashed-zaman/apptmatch/services/matching-service/internal/inbox"
	"github.com/md-rashed-zaman/apptmatch/services/matching-service/internal/planner"
	"github.com/md-rashed-zaman/apptmatch/services/matching-service/internal/retention"
	"github.com/md-rashed-zaman/apptmatch/services/matching-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const maxBodyBytes = 1 << 20

func main() {
	if err := config.LoadDotEnv(); err != nil {
		panic(err)
	}

	service := config.String("SERVICE_NAME", "matching-service")
	port, err := config.Port("PORT", "8090")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9090")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service, config.String("LOG_LEVEL", "info"))

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed; tracing disabled", "err", err)
		otelShutdown = func(context.Context) error { return nil }
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL, db.PoolConfig{})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()
	if config.String("DB_AUTO_MIGRATE", "true") != "false" {
		if err := storage.Migrate(ctx, pool, logger); err != nil {
			logger.Error("db migration failed", "err", err)
			panic(err)
		}
	}

	workers, err := config.Int("PLANNER_WORKERS", 4)
	if err != nil {
		panic(err)
	}
	cacheTTL, err := config.Duration("TEMPLATE_CACHE_TTL", 10*time.Minute)
	if err != nil {
		panic(err)
	}
	ratePerMinute, err := config.Int("RATE_LIMIT_PER_MINUTE", 600)
	if err != nil {
		panic(err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: config.String("REDIS_ADDR", "localhost:6379")})
	defer func() { _ = rdb.Close() }()

	repo := storage.NewRepository(pool)
	templates := cache.NewTemplates(rdb, repo, cacheTTL, logger)
	matchPlanner := planner.New(logger, planner.Config{Workers: workers})

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "redis", Check: cache.ReadyCheck(rdb)},
	}

	busyRetention, err := config.Duration("BUSY_DAY_RETENTION", 30*24*time.Hour)
	if err != nil {
		panic(err)
	}
	inboxRetention, err := config.Duration("INBOX_RETENTION", 7*24*time.Hour)
	if err != nil {
		panic(err)
	}
	inboxRepo := inbox.NewRepository(pool)
	pruner, err := retention.New(logger, config.String("RETENTION_SCHEDULE", "@every 1h"),
		retention.Task{Name: "busy_days", Keep: busyRetention, Run: repo.DeleteBusyDaysBefore},
		retention.Task{Name: "inbox_events", Keep: inboxRetention, Run: inboxRepo.DeleteBefore},
	)
	if err != nil {
		panic(err)
	}
	pruner.Start()

	brokers := config.String("KAFKA_BROKERS", "")
	if strings.TrimSpace(brokers) != "" {
		busyTopic := config.String("KAFKA_BUSY_TOPIC", busysync.Topic)
		busyConsumer := consumer.New(logger, consumer.Config{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", service),
			Topic:   busyTopic,
		}, busysync.NewHandler(inboxRepo, repo, logger))
		go busyConsumer.Run(ctx)
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers, busyTopic)})
	} else {
		logger.Warn("KAFKA_BROKERS not set; busy-day sync disabled")
	}

	availability := handlers.NewAvailabilityHandler(templates, repo, matchPlanner, logger)
	templateHandler := handlers.NewTemplateHandler(templates, logger)

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.HandleFunc("/api/v1/availability/match", availability.Match)
	mux.HandleFunc("/api/v1/availability", availability.Availability)
	var templateRoute http.Handler = templateHandler
	if secret := config.String("AUTH_HS256_SECRET", ""); secret != "" {
		templateRoute = auth.RequireBearer(secret, http.MethodPut)(templateHandler)
	} else {
		logger.Warn("AUTH_HS256_SECRET not set; template writes are unauthenticated")
	}
	mux.Handle("/api/v1/providers/template", templateRoute)
	registerOpenAPI(mux)

	var limiter httpx.Limiter = httpx.NewRedisLimiter(rdb, ratePerMinute, time.Minute, "matching:ratelimit:")
	if config.String("RATE_LIMIT_BACKEND", "redis") == "memory" {
		limiter = httpx.NewMemoryLimiter(ratePerMinute, time.Minute)
	}
	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger, httpx.AccessLogOptions{Slow: 2 * time.Second, Quiet: []string{"/healthz", "/readyz"}}),
		httpx.WithRecover(logger),
		httpx.WithCORS(httpx.CORSPolicy{AllowedOrigins: config.List("CORS_ALLOWED_ORIGINS")}),
		httpx.WithRateLimit(limiter, logger, true),
		httpx.WithBodyLimit(maxBodyBytes),
		httpx.WithTimeout(15*time.Second),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "matching")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer, healthServer := grpcx.NewServer(logger, service)
	lis, err := net.Listen("tcp", ":"+grpcPort)
	if err != nil {
		logger.Error("grpc listen failed", "err", err)
		panic(err)
	}

	go func() {
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()
	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "err", err)
		}
	}()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(service, healthpb.HealthCheckResponse_SERVING)

	<-ctx.Done()
	healthServer.Shutdown()
	_ = runtime.Shutdown(logger, 10*time.Second,
		runtime.Stopper{Name: "http", Stop: srv.Shutdown},
		runtime.Stopper{Name: "grpc", Stop: func(ctx context.Context) error { return stopGRPC(ctx, grpcServer) }},
		runtime.Stopper{Name: "retention", Stop: func(context.Context) error { pruner.Stop(); return nil }},
		runtime.Stopper{Name: "otel", Stop: otelShutdown},
	)
}

// stopGRPC waits for in-flight RPCs until ctx expires, then forces the stop.
func stopGRPC(ctx context.Context, srv *grpc.Server) error {
	done := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		srv.Stop()
		return fmt.Errorf("graceful stop: %w", ctx.Err())
	}
}
