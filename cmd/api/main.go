package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"campusattend/internal/attendance"
	"campusattend/internal/cloudinary"
	"campusattend/internal/config"
	"campusattend/internal/handler"
	"campusattend/internal/httpmiddleware"
	"campusattend/internal/janitor"
	"campusattend/internal/logger"
	"campusattend/internal/qr"
	"campusattend/internal/queue"
	"campusattend/internal/store"
)

func main() {
	cfg := config.Load()
	log := logger.Init(cfg.Env, cfg.LogLevel, cfg.LogFormat)
	defer logger.Sync()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, log); err != nil {
		log.Fatal("http server failed", zap.Error(err))
	}
}

func runHTTP(cfg config.App, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := attendance.Open(ctx, cfg.StoreBackend, cfg.StoreDSN())
	if err != nil {
		return err
	}
	defer closeStore()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	health := map[string]handler.HealthCheck{}

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		mem := queue.NewLocal(256)
		q = mem
		// No separate worker can reach an in-process queue.
		go func() { _ = queue.PersistScanLogs(ctx, mem, st, log.Named("scanlogs")) }()
	} else {
		q = queue.NewRedisList(redisClient.Client, queue.DefaultKey)
		health["redis"] = redisClient.Healthy
	}

	var limiter httpmiddleware.Limiter
	if cfg.RateLimitBackend == "redis" {
		limiter = httpmiddleware.NewRedisWindow(redisClient.Client, cfg.RateLimitPerMin)
		health["redis"] = redisClient.Healthy
	} else {
		limiter = httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	}

	var uploader qr.Uploader
	if cfg.CloudinaryEnabled() {
		uploader = cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		log.Info("cloudinary configured", zap.String("cloud", cfg.CloudinaryCloudName))
	}

	var encoder attendance.Encoder
	renderer, err := qr.NewRenderer(cfg.ArtifactDir, cfg.PublicBaseURL+handler.ArtifactPath, cfg.QRSize, uploader, log.Named("qr"))
	if err != nil {
		log.Warn("qr rendering disabled, sessions will carry links only", zap.Error(err))
	} else {
		encoder = renderer
	}

	jan := janitor.New(cfg.ArtifactDir, cfg.ArtifactRetention, log.Named("janitor"))
	issuer := attendance.NewIssuer(st, encoder, cfg.PublicBaseURL, cfg.SessionTTL, log.Named("issuer"),
		attendance.WithSweeper(jan))
	validator := attendance.NewValidator(st)
	recorder := attendance.NewRecorder(st, validator, log.Named("recorder"),
		attendance.WithScanSink(queue.ScanPublisher{Q: q}))

	h := handler.New(st, issuer, validator, recorder, handler.AuthConfig{
		SigningKey:  cfg.JWTSigningKey,
		Issuer:      cfg.JWTIssuer,
		TTL:         cfg.AccessTTL,
		StaffAPIKey: cfg.StaffAPIKey,
	}, health, log)
	if cfg.StaffAPIKey == "" {
		log.Warn("STAFF_API_KEY not set, staff tokens cannot be issued")
	}

	r := handler.NewRouter(h, handler.RouterConfig{
		Limiter:     limiter,
		ArtifactDir: cfg.ArtifactDir,
		Log:         log.Named("http"),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("addr", srv.Addr), zap.String("store", cfg.StoreBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down server")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server forced shutdown", zap.Error(err))
	}
	log.Info("server exited")
	return nil
}
