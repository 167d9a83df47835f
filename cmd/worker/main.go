package main

import (
	"context"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"campusattend/internal/attendance"
	"campusattend/internal/config"
	"campusattend/internal/janitor"
	"campusattend/internal/logger"
	"campusattend/internal/queue"
	"campusattend/internal/store"
)

// Worker persists scan audit logs from the queue and sweeps stale QR artifacts.
func main() {
	cfg := config.Load()
	log := logger.Init(cfg.Env, cfg.LogLevel, cfg.LogFormat)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := attendance.Open(ctx, cfg.StoreBackend, cfg.StoreDSN())
	if err != nil {
		log.Fatal("store open failed", zap.Error(err))
	}
	defer closeStore()

	g, ctx := errgroup.WithContext(ctx)

	if cfg.QueueBackend == "memory" {
		log.Warn("QUEUE_BACKEND=memory: scan logs are persisted by the api process, worker only runs the janitor")
	} else {
		redisClient := store.NewRedis(cfg.RedisAddr)
		defer redisClient.Close()
		if !redisClient.Healthy(ctx) {
			log.Warn("redis not reachable yet, consumer will keep retrying", zap.String("addr", cfg.RedisAddr))
		}
		q := queue.NewRedisList(redisClient.Client, queue.DefaultKey)
		g.Go(func() error {
			backlog, _ := q.Depth(ctx)
			log.Info("scan log consumer started", zap.Int64("backlog", backlog))
			return queue.PersistScanLogs(ctx, q, st, log.Named("scanlogs"))
		})
	}

	jan := janitor.New(cfg.ArtifactDir, cfg.ArtifactRetention, log.Named("janitor"))
	sched, err := jan.Schedule(cfg.JanitorSchedule)
	if err != nil {
		log.Fatal("janitor schedule failed", zap.Error(err))
	}
	g.Go(func() error {
		<-ctx.Done()
		<-sched.Stop().Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("worker stopped with error", zap.Error(err))
		return
	}
	log.Info("worker stopped")
}
