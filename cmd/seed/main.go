// seed наполняет audit_events синтетическим потоком и сигналит консоли перечитать коллекцию.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-audit-explorer/internal/audit"
	"github.com/xela07ax/spaceai-audit-explorer/internal/infra"
	"github.com/xela07ax/spaceai-audit-explorer/internal/repository/postgres"
	"github.com/xela07ax/spaceai-audit-explorer/internal/simulator"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	logger = logger.Named("seed")

	if cfg.Database.URL == "" {
		logger.Fatal("database.url is required (DATABASE_URL)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Хранилище
	repo, err := postgres.NewAuditRepo(ctx, cfg.Database.URL, postgres.Options{
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	}, logger)
	if err != nil {
		logger.Fatal("database unreachable", zap.Error(err))
	}
	defer repo.Close()

	if err := repo.EnsureSchema(ctx); err != nil {
		logger.Fatal("schema", zap.Error(err))
	}

	// 2. Генерация и пакетная запись
	sim := simulator.New(simulator.WithUUIDs())
	events := sim.Generate(cfg.Seed.Count, time.Now())

	writer := audit.NewAgentFS(repo, audit.AgentFSOptions{BatchSize: cfg.Seed.BatchSize}, logger)
	writer.Start()
	for _, e := range events {
		if ctx.Err() != nil {
			break
		}
		writer.Log(e)
	}
	writer.Stop() // drain: дописываем остаток буфера

	written, dropped, failed := writer.Stats()
	logger.Info("seed finished",
		zap.Int("generated", len(events)),
		zap.Int64("written", written),
		zap.Int64("dropped", dropped),
		zap.Int64("failed", failed))

	if written == 0 {
		return
	}

	// 3. Сигнал консоли
	if cfg.Redis.Addr == "" {
		logger.Info("redis.addr is empty, console will pick up new events on next refresh")
		return
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	pubCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	receivers, err := rdb.Publish(pubCtx, infra.RedisChanAuditRefresh, "seed").Result()
	if err != nil {
		logger.Warn("failed to publish refresh signal", zap.Error(err))
		return
	}
	logger.Info("refresh signal published", zap.Int64("receivers", receivers))
}
