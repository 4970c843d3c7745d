package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	medportalv1 "medportal/backend/internal/api/medportal/v1"
	"medportal/backend/internal/availability"
	"medportal/backend/internal/config"
	"medportal/backend/internal/observability/metrics"
	"medportal/backend/internal/observability/tracing"
	"medportal/backend/internal/service/booking"
	"medportal/backend/internal/store"
	"medportal/backend/internal/store/memory"
	"medportal/backend/internal/store/postgres"
	"medportal/backend/internal/store/rediscache"
	grpcTransport "medportal/backend/internal/transport/grpc"
	"medportal/backend/internal/transport/ops"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).With(
		slog.String("service", "medportal-server"),
	)
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)})).With(
		slog.String("service", "medportal-server"),
	)
	slog.SetDefault(log)

	log.Info("starting",
		slog.String("grpc_addr", cfg.GRPCAddr()),
		slog.String("ops_addr", cfg.OpsAddr),
		slog.String("store_driver", cfg.StoreDriver),
		slog.String("clinic_timezone", cfg.ClinicLocation.String()),
		slog.String("log_level", cfg.LogLevel),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	flushTraces := func(context.Context) error { return nil }
	if cfg.OTelEndpoint != "" {
		flush, err := tracing.Setup(ctx, cfg.OTelServiceName, cfg.OTelEndpoint)
		if err != nil {
			log.Warn("tracing setup failed; spans are dropped", slog.Any("err", err), slog.String("otel_endpoint", cfg.OTelEndpoint))
		} else {
			flushTraces = flush
			log.Info("tracing enabled", slog.String("otel_endpoint", cfg.OTelEndpoint))
		}
	}

	checks := map[string]ops.Check{}
	var repo store.ScheduleRepository
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		log.Warn("using in-memory store; bookings are lost on restart")
		repo = memory.New()
	default:
		log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
		db, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.PoolConfig{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: cfg.DBConnMaxLifetime,
			ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		})
		if err != nil {
			args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
			log.Error("database connection failed", args...)
			os.Exit(1)
		}
		defer func() {
			if err := postgres.Close(db); err != nil {
				log.Warn("database close failed", slog.Any("err", err))
			}
		}()
		checks["postgres"] = db.PingContext
		repo = postgres.NewScheduleRepo(db)
	}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer func() {
			if err := client.Close(); err != nil {
				log.Warn("redis close failed", slog.Any("err", err))
			}
		}()
		if err := client.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable; shift reads fall back to the store", slog.Any("err", err), slog.String("redis_addr", cfg.RedisAddr))
		}
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		repo = rediscache.NewShiftCache(repo, client, cfg.RedisShiftTTL, log)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	coord := booking.NewCoordinator(repo, booking.Config{
		Policy: availability.Policy{
			MinDuration: cfg.MinDuration,
			MaxDuration: cfg.MaxDuration,
		},
		ReserveTimeout:      cfg.ReserveTimeout,
		ReadRetryMaxElapsed: cfg.ReadRetryMaxElapsed,
		SlotGranularity:     cfg.SlotGranularity,
		SlotDuration:        cfg.SlotDuration,
	}, metrics.NewBookingMetrics(reg), log)

	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(defaultRequestTimeoutInterceptor(cfg.GRPCRequestTimeout)),
	)
	medportalv1.RegisterSchedulingServiceServer(grpcServer, grpcTransport.NewSchedulingServer(coord, cfg.ClinicLocation, log))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(medportalv1.ServiceName, healthpb.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", cfg.GRPCAddr())
	if err != nil {
		log.Error("grpc listen failed", slog.Any("err", err), slog.String("grpc_addr", cfg.GRPCAddr()))
		os.Exit(1)
	}

	opsServer := &http.Server{
		Addr: cfg.OpsAddr,
		Handler: ops.NewRouter(ops.Config{
			Gatherer: reg,
			Checks:   checks,
			Logger:   log,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- grpcServer.Serve(lis)
	}()
	go func() {
		if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	log.Info("servers started", slog.String("grpc_addr", cfg.GRPCAddr()), slog.String("ops_addr", cfg.OpsAddr))

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Error("server stopped with error", slog.Any("err", err))
			healthServer.Shutdown()
			shutdown(log, grpcServer, opsServer, flushTraces, cfg.ShutdownTimeout)
			os.Exit(1)
		}
	}
	healthServer.Shutdown()
	shutdown(log, grpcServer, opsServer, flushTraces, cfg.ShutdownTimeout)
}

func defaultRequestTimeoutInterceptor(timeout time.Duration) grpc.UnaryServerInterceptor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := ctx.Deadline(); ok {
			return handler(ctx, req)
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		return handler(ctx, req)
	}
}

func shutdown(log *slog.Logger, s *grpc.Server, opsServer *http.Server, flushTraces func(context.Context) error, timeout time.Duration) {
	log.Info("shutting down servers", slog.Duration("timeout", timeout))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := opsServer.Shutdown(ctx); err != nil {
		log.Warn("ops server shutdown failed", slog.Any("err", err))
	}

	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		log.Info("grpc server stopped")
	case <-ctx.Done():
		log.Warn("grpc graceful shutdown timed out; forcing stop")
		s.Stop()
	}

	if err := flushTraces(ctx); err != nil {
		log.Warn("trace flush failed", slog.Any("err", err))
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// databaseLogArgs logs where the database lives without leaking credentials.
func databaseLogArgs(databaseURL string) []any {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return []any{slog.String("db_url", "invalid")}
	}
	name := strings.TrimPrefix(u.Path, "/")
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "default"
	}
	if host == "" {
		host = "unknown"
	}
	if name == "" {
		name = "unknown"
	}
	return []any{
		slog.String("db_host", host),
		slog.String("db_port", port),
		slog.String("db_name", name),
	}
}
