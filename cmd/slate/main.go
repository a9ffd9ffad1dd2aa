package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/slateboards/slate/pkg/api"
	"github.com/slateboards/slate/pkg/apikeys"
	"github.com/slateboards/slate/pkg/boards"
	"github.com/slateboards/slate/pkg/config"
	"github.com/slateboards/slate/pkg/identity"
	"github.com/slateboards/slate/pkg/middleware"
	"github.com/slateboards/slate/pkg/observability"
	"github.com/slateboards/slate/pkg/orgs"
	"github.com/slateboards/slate/pkg/perm"
	"github.com/slateboards/slate/pkg/ratelimit"
	"github.com/slateboards/slate/pkg/storage"
	"github.com/slateboards/slate/pkg/tenancy"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		os.Stderr.WriteString("invalid configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, os.Stdout)
	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		logger.WithError(err).Error("failed to open database")
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)

	if err := db.Ping(); err != nil {
		logger.WithError(err).Error("failed to ping database")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := tenancy.RunMigrations(ctx, db); err != nil {
		logger.WithError(err).Error("failed to run migrations")
		os.Exit(1)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	objects, err := storage.NewS3Store(ctx, cfg.Objects)
	if err != nil {
		logger.WithError(err).Error("failed to initialize object storage")
		os.Exit(1)
	}

	orgService := orgs.NewPostgresService(db)
	resolver := identity.NewResolver(db, identity.NewStaticProvider(), orgService, metrics)
	checker := perm.NewChecker(db, cfg.Tenancy.DemoOrgID)
	limiter := ratelimit.NewLimiter(redisClient, "slate:ratelimit", metrics)
	keyStore := apikeys.NewStore(db)
	requestStore := perm.NewRequestStore(db)
	schemeStore := perm.NewSchemeStore(db)
	boardService := boards.NewService(db, orgService, checker, limiter, objects, metrics)

	if cfg.Tenancy.DemoOrgID != "" {
		if _, err := orgService.EnsureOrganization(ctx, cfg.Tenancy.DemoOrgID, "Demo Workspace"); err != nil {
			logger.WithError(err).Warn("failed to seed demo organization")
		}
	}

	server := api.NewServer(api.Deps{
		Boards:   boardService,
		Orgs:     orgService,
		Checker:  checker,
		Schemes:  schemeStore,
		Requests: requestStore,
		Keys:     keyStore,
		Auth:     middleware.NewAuthMiddleware(keyStore, metrics),
		Tenant:   middleware.NewTenantMiddleware(resolver, orgService, cfg.Tenancy.AutoProvisionOrgs),
		Health:   observability.NewHealthHandler(db, redisClient),
		Logger:   logger,
	})

	scheduler := cron.New()
	scheduler.AddFunc("30 0 * * *", func() {
		n, err := orgService.ResetAICallCounters(context.Background(), time.Now())
		if err != nil {
			logger.WithError(err).Error("failed to reset AI call counters")
			return
		}
		if n > 0 {
			logger.WithField("organizations", n).Info("reset AI call counters")
		}
	})
	scheduler.AddFunc("0 1 * * *", func() {
		n, err := requestStore.ExpirePending(context.Background())
		if err != nil {
			logger.WithError(err).Error("failed to expire membership requests")
			return
		}
		if n > 0 {
			logger.WithField("requests", n).Info("expired stale membership requests")
		}
	})
	scheduler.AddFunc("15 1 * * *", func() {
		n, err := tenancy.PurgeAbandonedUploads(context.Background(), db, time.Hour)
		if err != nil {
			logger.WithError(err).Error("failed to purge abandoned uploads")
			return
		}
		if n > 0 {
			logger.WithField("attachments", n).Info("purged abandoned attachment uploads")
		}
	})
	scheduler.AddFunc("0 2 * * *", func() {
		n, err := keyStore.DeleteExpired(context.Background(), 7*24*time.Hour)
		if err != nil {
			logger.WithError(err).Error("failed to delete expired api keys")
			return
		}
		if n > 0 {
			logger.WithField("keys", n).Info("deleted expired api keys")
		}
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.WithField("addr", httpServer.Addr).Info("starting server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		scheduler.Start()
		<-gctx.Done()
		scheduler.Stop()
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("server exited with error")
		os.Exit(1)
	}
	logger.Info("server stopped")
}
