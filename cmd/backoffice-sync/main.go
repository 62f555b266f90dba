package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/Checker-Finance/backoffice/internal/api"
	"github.com/Checker-Finance/backoffice/internal/apiclient"
	"github.com/Checker-Finance/backoffice/internal/auth"
	"github.com/Checker-Finance/backoffice/internal/backoffice"
	"github.com/Checker-Finance/backoffice/internal/config"
	"github.com/Checker-Finance/backoffice/internal/jobs"
	"github.com/Checker-Finance/backoffice/internal/publisher"
	"github.com/Checker-Finance/backoffice/internal/rate"
	internalsecrets "github.com/Checker-Finance/backoffice/internal/secrets"
	"github.com/Checker-Finance/backoffice/internal/session"
	"github.com/Checker-Finance/backoffice/internal/store"
	"github.com/Checker-Finance/backoffice/pkg/logger"
	"github.com/Checker-Finance/backoffice/pkg/secrets"
	"github.com/Checker-Finance/backoffice/pkg/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Load configuration ---
	cfg := config.Load()

	logger.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	defer logger.Sync()
	logg := logger.S()
	logg.Infof("starting [%s]...", cfg.ServiceName)
	if cfg.DatabaseURL != "" {
		logg.Info("connection to DSN: ", utils.MaskDSN(cfg.DatabaseURL))
	}

	// --- Session store ---
	sessions, closeSessions, err := openSessionStore(cfg)
	if err != nil {
		logg.Fatalw("failed to open session store", "backend", cfg.SessionBackend, "error", err)
	}
	defer closeSessions()

	// --- Rate limiter ---
	var clientOpts []apiclient.Option
	if cfg.RateLimitRPS > 0 {
		clientOpts = append(clientOpts, apiclient.WithRateLimiter(rate.NewManager(rate.Config{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
		})))
	}

	// --- Back-office API client ---
	relogin := auth.NewRelogin(logg.Desugar())
	clientOpts = append(clientOpts,
		apiclient.WithLogger(logg.Desugar()),
		apiclient.WithRedirect(auth.RedirectFunc(relogin)),
	)
	apiClient, err := apiclient.New(apiclient.Config{
		BaseURL: cfg.APIBaseURL,
		Timeout: cfg.APITimeout,
	}, sessions, clientOpts...)
	if err != nil {
		logg.Fatalw("failed to create API client", "error", err)
	}
	authSvc := auth.NewService(apiClient, logg.Desugar())
	bo := backoffice.New(apiClient, cfg.PageSize, logg.Desugar())

	// --- Agent credentials (env or AWS Secrets Manager, cached in-memory) ---
	resolver, err := newResolver(ctx, cfg)
	if err != nil {
		logg.Fatalw("failed to create credentials provider", "source", cfg.CredentialsSource, "error", err)
	}
	stopCleaner := make(chan struct{})
	go resolver.StartCleaner(cfg.CleanupFreq, stopCleaner)

	login := func(ctx context.Context) error {
		creds, err := resolver.Resolve(ctx)
		if err != nil {
			return err
		}
		if _, err := authSvc.Login(ctx, creds.Username, creds.Password); err != nil {
			if apiclient.IsUnauthorized(err) {
				resolver.Invalidate()
			}
			return err
		}
		return nil
	}

	restored, err := authSvc.Restore(ctx)
	if err != nil {
		logg.Warnw("failed to restore session", "error", err)
	}
	if !restored {
		if err := login(ctx); err != nil {
			logg.Warnw("initial login failed; will retry on next sync", "error", err)
			relogin.Redirect(ctx, "initial_login_failed")
		}
	}

	// --- Store (Redis + Postgres hybrid) ---
	st, err := store.NewHybrid(ctx, store.Options{
		RedisAddr:     cfg.RedisAddr,
		RedisDB:       cfg.RedisDB,
		RedisPassword: cfg.RedisPass,
		PGURL:         cfg.DatabaseURL,
		PGPool: store.PGPoolConfig{
			MaxConns:          int32(cfg.PGMaxConns),
			MinConns:          int32(cfg.PGMinConns),
			MaxConnLifetime:   cfg.PGMaxConnLifetime,
			MaxConnIdleTime:   cfg.PGMaxConnIdleTime,
			HealthCheckPeriod: cfg.PGHealthCheckPeriod,
		},
		TTL: cfg.SnapshotTTL,
	}, logg.Desugar())
	if err != nil {
		logg.Fatalw("failed to init store", "error", err)
	}

	// --- Publisher ---
	pub, err := publisher.New(publisher.Config{
		Bus:      cfg.EventBus,
		NATSURL:  cfg.NATSURL,
		AMQPURL:  cfg.AMQPURL,
		Exchange: cfg.AMQPExchange,
		Service:  cfg.ServiceName,
	}, logg.Desugar())
	if err != nil {
		logg.Fatalw("failed to init publisher", "bus", cfg.EventBus, "error", err)
	}

	// --- Collection sync ---
	syncer := jobs.NewCollectionSync(logg.Desugar(), bo, st, pub, cfg.ServiceName, cfg.SyncInterval, cfg.SyncCollections).
		WithRelogin(relogin, login)
	go syncer.Start(ctx)

	// --- Fiber HTTP Server ---
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
		BodyLimit:    cfg.HTTPBodyLimit,
	})
	api.RegisterRoutes(app, st, relogin, api.NewSyncHandler(logg.Desugar(), st, syncer))

	go func() {
		logg.Infof("HTTP API listening on :%d", cfg.Port)
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logg.Fatalw("fiber.listen_failed", "error", err)
		}
	}()

	// --- Main process stays alive until interrupted ---
	logg.Infow(fmt.Sprintf("[%s] running", cfg.ServiceName),
		"api", cfg.APIBaseURL,
		"env", cfg.Env,
		"session", cfg.SessionBackend,
		"bus", cfg.EventBus,
		"sync_interval", cfg.SyncInterval,
		"collections", cfg.SyncCollections)

	<-ctx.Done()
	logg.Infof("shutting down [%s]...", cfg.ServiceName)

	close(stopCleaner)
	syncer.Stop()

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logg.Warnw("fiber shutdown error", "error", err)
	}
	if err := pub.Close(); err != nil {
		logg.Warnw("publisher close error", "error", err)
	}
	if err := st.Close(); err != nil {
		logg.Warnw("store close error", "error", err)
	}
	logg.Info("shutdown complete")
}

func openSessionStore(cfg *config.Config) (session.Store, func(), error) {
	switch cfg.SessionBackend {
	case "", "memory":
		return session.NewMemoryStore(), func() {}, nil
	case "bolt":
		s, err := session.OpenBoltStore(cfg.SessionPath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			DB:       cfg.RedisDB,
			Password: cfg.RedisPass,
		})
		return session.NewRedisStore(rdb, cfg.SessionPrefix), func() { _ = rdb.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown session backend %q", cfg.SessionBackend)
	}
}

func newResolver(ctx context.Context, cfg *config.Config) (*internalsecrets.Resolver, error) {
	name := internalsecrets.SecretName(cfg.Env, cfg.CredentialsProfile)

	var provider secrets.Provider
	switch cfg.CredentialsSource {
	case "", "env":
		provider = secrets.NewStaticProvider(name, map[string]string{
			"username": cfg.Username,
			"password": cfg.Password,
		})
	case "aws":
		p, err := secrets.NewAWSProvider(ctx, cfg.AWSRegion)
		if err != nil {
			return nil, err
		}
		provider = p
	default:
		return nil, fmt.Errorf("unknown credentials source %q", cfg.CredentialsSource)
	}
	return internalsecrets.NewResolver(logger.L(), provider, cfg.Env, cfg.CredentialsProfile, cfg.CacheTTL), nil
}
