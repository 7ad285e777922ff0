package main

import (
	"context"
	"crypto/rand"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sifan077/PowerLink/config"
	"github.com/sifan077/PowerLink/internal/app/cache"
	appmodel "github.com/sifan077/PowerLink/internal/app/model"
	apprepository "github.com/sifan077/PowerLink/internal/app/repository"
	appserver "github.com/sifan077/PowerLink/internal/app/server"
	appservice "github.com/sifan077/PowerLink/internal/app/service"
	httpUtil "github.com/sifan077/PowerLink/internal/http/util"
	"github.com/sifan077/PowerLink/internal/http/middleware"
	"github.com/sifan077/PowerLink/internal/infra/logger"
	infraNATS "github.com/sifan077/PowerLink/internal/infra/nats"
	infraPostgres "github.com/sifan077/PowerLink/internal/infra/postgres"
	infraPrometheus "github.com/sifan077/PowerLink/internal/infra/prometheus"
	infraRedis "github.com/sifan077/PowerLink/internal/infra/redis"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.L().Fatal("Failed to load config", zap.Error(err))
	}

	log := logger.MustInit(logger.FromConfig(cfg))
	defer func() { _ = logger.Sync() }()

	log.Info("Configuration loaded successfully",
		zap.String("env", cfg.Server.Env),
		zap.String("addr", cfg.Server.Addr),
		zap.String("postgres_host", cfg.Postgres.Host),
		zap.Int("postgres_port", cfg.Postgres.Port),
		zap.String("postgres_db", cfg.Postgres.Database),
		zap.String("redis_host", cfg.Redis.Host),
		zap.Int("redis_port", cfg.Redis.Port),
		zap.Bool("cache_enabled", cfg.Cache.Enabled),
		zap.Bool("nats_enabled", cfg.NATS.Enabled),
	)

	pool, err := infraPostgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal("Failed to connect to Postgres", zap.Error(err))
	}
	defer pool.Close()
	log.Info("Connected to Postgres successfully")

	gormDB, err := infraPostgres.NewGorm(pool)
	if err != nil {
		log.Fatal("Failed to open GORM connection", zap.Error(err))
	}
	if err := infraPostgres.AutoMigrate(ctx, gormDB, &appmodel.User{}, &appmodel.Link{}); err != nil {
		log.Fatal("Failed to run database migrations", zap.Error(err))
	}

	// Redis backs the cache, the rate limiter and token revocation. All three
	// degrade instead of failing, so an unreachable server is not fatal.
	redisClient := infraRedis.NewClient(cfg.Redis)
	defer redisClient.Close()
	if err := infraRedis.Ping(ctx, redisClient); err != nil {
		log.Warn("Redis unreachable, continuing without cache", zap.Error(err))
	} else {
		log.Info("Connected to Redis successfully")
	}

	var linkCache cache.Cache = cache.Nop{}
	if cfg.Cache.Enabled {
		linkCache = cache.NewRedisCache(redisClient, cache.RedisOptions{
			KeyPrefix: cfg.Cache.KeyPrefix,
			OpTimeout: cfg.Cache.OpTimeout,
		})
	}

	linkRepo := apprepository.NewLinkRepository(gormDB)
	userRepo := apprepository.NewUserRepository(gormDB)

	clickQueue := appservice.ClickQueueOptions{
		Workers: cfg.Links.ClickWorkers,
		Size:    cfg.Links.ClickQueueSize,
		Timeout: cfg.Links.ClickTimeout,
	}
	asyncClicks := appservice.NewAsyncClickRecorder(linkRepo, log, clickQueue)
	var clicks appservice.ClickRecorder = asyncClicks
	var closeClicks []func()
	var consumers sync.WaitGroup

	if cfg.NATS.Enabled {
		natsConn, js, err := infraNATS.Connect(cfg.NATS)
		if err != nil {
			log.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		defer natsConn.Drain()

		if err := infraNATS.EnsureStream(js, infraNATS.StreamConfig{
			Stream:   appmodel.ClickStreamName,
			Subject:  appmodel.ClickStreamSubject,
			Durable:  appmodel.ClickConsumerName,
			MaxBytes: appmodel.ClickStreamMaxBytes,
		}); err != nil {
			log.Fatal("Failed to prepare click stream", zap.Error(err))
		}
		log.Info("Connected to NATS successfully", zap.String("url", infraNATS.URL(cfg.NATS)))

		publisher := appservice.NewClickPublisher(js, asyncClicks, log, appservice.ClickQueueOptions{
			Workers: cfg.Links.ClickWorkers,
			Size:    cfg.Links.ClickQueueSize,
		})
		clicks = publisher
		closeClicks = append(closeClicks, publisher.Close)

		consumer := appservice.NewClickConsumer(js, linkRepo, log)
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			if err := consumer.Run(ctx); err != nil {
				log.Error("Click consumer stopped unexpectedly", zap.Error(err))
			}
		}()
	}
	// The publisher falls back to the async recorder, so drain it last.
	closeClicks = append(closeClicks, asyncClicks.Close)

	secret := []byte(cfg.Auth.JWTSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		_, _ = rand.Read(secret)
		log.Warn("auth.jwt_secret not set, using a random secret; tokens will not survive a restart")
	}
	tokens := httpUtil.NewTokenSigner(secret, cfg.Auth.TokenTTL, cfg.Auth.Issuer)
	revoked := appservice.NewRedisRevocationStore(redisClient, cfg.Cache.KeyPrefix, cfg.Cache.OpTimeout)

	linkService := appservice.NewLinkService(linkRepo, linkCache, clicks, log, appservice.LinkOptions{
		DefaultCodeLength: cfg.Links.DefaultCodeLength,
		MaxCodeLength:     cfg.Links.MaxCodeLength,
		MaxAttempts:       cfg.Links.MaxAttempts,
		MaxInsertRetries:  cfg.Links.MaxInsertRetries,
		CacheTTL:          cfg.Cache.LinkTTL,
	})
	authService := appservice.NewAuthService(userRepo, tokens, revoked, log, 0)

	var rateLimit *middleware.RateLimitConfig
	if cfg.RateLimit.Enabled {
		rateLimit = &middleware.RateLimitConfig{
			MaxRequests: cfg.RateLimit.MaxRequests,
			Window:      cfg.RateLimit.Window,
			KeyPrefix:   cfg.Cache.KeyPrefix + "ratelimit",
		}
	}

	if cfg.Prometheus.Enabled {
		promServer := infraPrometheus.NewServer(cfg.Prometheus)
		go func() {
			log.Info("Starting Prometheus metrics server", zap.String("addr", promServer.Addr))
			if err := promServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Prometheus metrics server stopped unexpectedly", zap.Error(err))
			}
		}()
		defer func() {
			if err := promServer.Close(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn("Failed to close Prometheus server", zap.Error(err))
			}
		}()
	} else {
		log.Info("Prometheus metrics server disabled")
	}

	server := appserver.New(appserver.Dependencies{
		Logger:       log,
		Postgres:     pool,
		Redis:        redisClient,
		LinkService:  linkService,
		AuthService:  authService,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		RateLimit:    rateLimit,
	})

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", zap.String("addr", cfg.Server.Addr))
		serveErr <- server.Listen(cfg.Server.Addr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			log.Error("Fiber server exited", zap.Error(err))
		}
		stop()
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("Fiber shutdown did not complete cleanly", zap.Error(err))
	}

	consumers.Wait()
	drainClicks(shutdownCtx, log, closeClicks)
	log.Info("Server stopped")
}

// drainClicks closes the click queues in order, giving up when ctx ends.
func drainClicks(ctx context.Context, log *zap.Logger, closers []func()) {
	done := make(chan struct{})
	go func() {
		for _, closeQueue := range closers {
			closeQueue()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		log.Warn("Timed out waiting for click recording", zap.Error(ctx.Err()))
	}
}
