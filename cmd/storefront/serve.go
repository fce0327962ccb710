package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/Skryldev/storefront/api"
	"github.com/Skryldev/storefront/cache"
	"github.com/Skryldev/storefront/config"
	"github.com/Skryldev/storefront/db"
	"github.com/Skryldev/storefront/events"
	"github.com/Skryldev/storefront/identity"
	"github.com/Skryldev/storefront/metrics"
	"github.com/Skryldev/storefront/repo"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			level, _ := cfg.Level()
			return serve(cmd.Context(), cfg, newLogger(level))
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	m := metrics.New()

	poolCfg := cfg.DB.PoolConfig()
	poolCfg.Hooks = []db.Hook{
		db.NewLogHook(db.LogHookConfig{
			Logger:             logger,
			SlowQueryThreshold: cfg.DB.SlowQuery,
			LogArgs:            cfg.DB.LogArgs,
		}),
		db.NewMetricsHook(m),
	}
	store, err := db.OpenWithDriver(cfg.DB.Driver, cfg.DB.DriverOptions(), poolCfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	if cfg.DB.AutoMigrate {
		if err := migrateOnStartup(store, &cfg.DB); err != nil {
			return err
		}
		logger.Info("storefront: schema up to date")
	}

	productCache, limiter, closeRedis := setupRedis(ctx, cfg, logger)
	defer closeRedis()

	publisher := setupEvents(cfg, logger)
	defer publisher.Close()

	users := repo.NewUserRepo(store)
	ids, err := identity.NewService(users, identity.Options{
		Secret:   []byte(cfg.SecretKey),
		TokenTTL: cfg.TokenTTL,
		HashCost: cfg.HashCost,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	if level, _ := cfg.Level(); level > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.Deps{
		Store:        store,
		Categories:   repo.NewCategoryRepo(store),
		Products:     repo.NewProductRepo(store),
		Orders:       repo.NewOrderRepo(store),
		Identity:     ids,
		ProductCache: productCache,
		AuthLimiter:  limiter,
		Events:       publisher,
		Metrics:      m,
		Logger:       logger,

		TrustedProxies: cfg.Proxies(),
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("storefront: listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("storefront: shutting down", slog.Duration("timeout", cfg.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// setupRedis connects the product cache and the auth limiter. Without
// REDIS_ADDR, or when Redis is unreachable, both fall back to no-ops.
func setupRedis(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*cache.Products, cache.Limiter, func()) {
	r := cfg.Redis
	if r.Addr == "" {
		logger.Info("storefront: redis not configured; caching and rate limiting disabled")
		return cache.NewProducts(cache.Nop{}, r.CacheTTL, logger), cache.Nop{}, func() {}
	}

	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	client, err := cache.Dial(dialCtx, r.Addr, r.Password, r.DB)
	if err != nil {
		logger.Warn("storefront: redis unavailable; caching and rate limiting disabled", slog.Any("error", err))
		return cache.NewProducts(cache.Nop{}, r.CacheTTL, logger), cache.Nop{}, func() {}
	}

	products := cache.NewProducts(cache.NewRedis(client), r.CacheTTL, logger)
	limiter := cache.NewRedisLimiter(client, "rate_limit:", r.RateLimitCount, r.RateLimitWindow)
	return products, limiter, func() { _ = client.Close() }
}

// setupEvents connects the order event publisher, or returns a no-op one
// when RabbitMQ is not configured or not reachable.
func setupEvents(cfg *config.Config, logger *slog.Logger) events.Publisher {
	if cfg.RabbitMQURL == "" {
		return events.Nop{}
	}
	p, err := events.DialAMQP(cfg.RabbitMQURL, cfg.RabbitMQQueue, logger)
	if err != nil {
		logger.Warn("storefront: rabbitmq unavailable; order events disabled", slog.Any("error", err))
		return events.Nop{}
	}
	return p
}
