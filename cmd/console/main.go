package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/xela07ax/spaceai-audit-explorer/internal/connectors"
	"github.com/xela07ax/spaceai-audit-explorer/internal/console/handler"
	"github.com/xela07ax/spaceai-audit-explorer/internal/console/server"
	"github.com/xela07ax/spaceai-audit-explorer/internal/explorer"
	"github.com/xela07ax/spaceai-audit-explorer/internal/infra"
	"github.com/xela07ax/spaceai-audit-explorer/internal/infra/auth"
	"github.com/xela07ax/spaceai-audit-explorer/internal/repository/postgres"
)

const serviceName = "audit-explorer"

func main() {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	// Контекст для управления жизненным циклом фоновых горутин
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Метрики
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := explorer.NewMetrics(reg)

	// 3. Источник коллекции
	src, closeSrc, err := buildSource(appCtx, cfg, metrics, logger)
	if err != nil {
		logger.Fatal("failed to init source", zap.Error(err))
	}
	defer closeSrc()

	x := explorer.New(src, explorer.Options{
		MockMode:     cfg.Explorer.MockMode,
		FallbackSize: cfg.Explorer.FallbackSize,
		MockSize:     cfg.Explorer.MockSize,
		FetchTimeout: cfg.Explorer.FetchTimeout,
	}, metrics, logger)

	// 4. gRPC health-check: NOT_SERVING до первого снимка
	healthSrv := health.NewServer()
	healthSrv.SetServingStatus(serviceName, healthpb.HealthCheckResponse_NOT_SERVING)

	var grpcSrv *grpc.Server
	if cfg.Server.GRPCPort > 0 {
		grpcSrv = grpc.NewServer()
		healthpb.RegisterHealthServer(grpcSrv, healthSrv)

		go func() {
			addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.GRPCPort))
			lis, err := net.Listen("tcp", addr)
			if err != nil {
				logger.Fatal("failed to listen gRPC", zap.Error(err))
			}
			logger.Info("gRPC health server started", zap.String("addr", addr))
			if err := grpcSrv.Serve(lis); err != nil {
				logger.Error("gRPC server stopped", zap.Error(err))
			}
		}()
	}

	// 5. Первая загрузка. Отказ источника закрывается симулятором, так что ошибка тут только при отмене
	if _, err := x.Refresh(appCtx); err != nil {
		logger.Fatal("initial refresh failed", zap.Error(err))
	}
	healthSrv.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)

	// 6. Сигнал обновления от seed-утилиты
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		go explorer.ListenRefresh(appCtx, rdb, logger, infra.RedisChanAuditRefresh,
			func(ctx context.Context, payload string) {
				if _, err := x.Refresh(ctx); err != nil {
					logger.Warn("signalled refresh aborted", zap.String("payload", payload), zap.Error(err))
				}
			})
	}

	// 7. HTTP Server
	validator, err := buildValidator(cfg.Auth)
	if err != nil {
		logger.Fatal("failed to init auth", zap.Error(err))
	}
	if validator == nil {
		logger.Warn("auth public key is not configured, explorer API is open")
	}

	console := server.NewConsoleServer(cfg.Server, logger, validator,
		handler.NewExplorerHandler(x, logger),
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      console,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 8. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("audit explorer started", zap.String("addr", srv.Addr), zap.String("source", cfg.Explorer.Source))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	<-stop // Ждем сигнал
	logger.Info("audit explorer stopping...")
	healthSrv.Shutdown()
	cancel()

	// Даем 5 секунд на завершение запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	logger.Info("audit explorer exited properly")
}

// buildSource возвращает nil для режима mock: обозреватель тогда всегда синтезирует события.
func buildSource(ctx context.Context, cfg *infra.Config, metrics *explorer.Metrics, logger *zap.Logger) (explorer.Source, func(), error) {
	noop := func() {}

	switch cfg.Explorer.Source {
	case infra.SourceMock:
		return nil, noop, nil

	case infra.SourceAPI:
		api := connectors.NewLogsAPI(cfg.Explorer.LogsAPIURL, logger,
			connectors.WithRejectHook(func(n int) { metrics.MalformedRecords.Add(float64(n)) }))
		safe := connectors.NewReliabilityWrapper(api, connectors.ReliabilityOptions{
			CBMaxRequests: cfg.Reliability.CBMaxRequests,
			CBInterval:    cfg.Reliability.CBInterval,
			CBTimeout:     cfg.Reliability.CBTimeout,
			RateLimit:     cfg.Reliability.RateLimit,
			RateBurst:     cfg.Reliability.RateBurst,
			RetryAttempts: cfg.Reliability.RetryAttempts,
			CallTimeout:   cfg.Explorer.FetchTimeout,
			StateGauge:    metrics.SourceBreakerState,
		}, logger)
		return safe, noop, nil

	case infra.SourcePostgres:
		repo, err := postgres.NewAuditRepo(ctx, cfg.Database.URL, postgres.Options{
			MaxConns: cfg.Database.MaxConns,
			MinConns: cfg.Database.MinConns,
		}, logger)
		if err != nil {
			return nil, noop, err
		}
		return repo, repo.Close, nil
	}
	return nil, noop, fmt.Errorf("unknown source %q", cfg.Explorer.Source)
}

func buildValidator(cfg infra.AuthConfig) (auth.TokenValidator, error) {
	if len(cfg.PublicKey) == 0 {
		return nil, nil
	}
	pub, err := auth.ParseRSAPublicKey(cfg.PublicKey)
	if err != nil {
		return nil, err
	}
	return auth.NewBaseValidator(pub, cfg.Issuer), nil
}
