package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nazrul121/customer-billing/cmd/billing/cli"
	"github.com/nazrul121/customer-billing/internal/app"
	"github.com/nazrul121/customer-billing/internal/audit"
	audithttp "github.com/nazrul121/customer-billing/internal/audit/http"
	"github.com/nazrul121/customer-billing/internal/billing"
	"github.com/nazrul121/customer-billing/internal/catalog"
	"github.com/nazrul121/customer-billing/internal/customers"
	"github.com/nazrul121/customer-billing/internal/dashboard"
	"github.com/nazrul121/customer-billing/internal/ledger"
	"github.com/nazrul121/customer-billing/internal/observability"
	"github.com/nazrul121/customer-billing/internal/platform/cache"
	"github.com/nazrul121/customer-billing/internal/platform/db"
	"github.com/nazrul121/customer-billing/internal/rbac"
	"github.com/nazrul121/customer-billing/internal/shared"
	"github.com/nazrul121/customer-billing/internal/subscriptions"
	"github.com/nazrul121/customer-billing/jobs"
	"github.com/nazrul121/customer-billing/migrations"
)

const usage = `usage:
  billing [serve]                          run the HTTP API
  billing migrate                          apply the SQL schema
  billing jobs trigger <job> [-month M]    enqueue ledger:integrity or idempotency:cleanup
  billing jobs stats                       print default queue depth
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	args := os.Args[1:]
	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "serve":
		err = serve(ctx, cfg, logger)
	case "migrate":
		err = migrate(ctx, cfg)
	case "jobs":
		os.Exit(runJobs(ctx, cfg, args))
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Error(cmd, slog.Any("error", err))
		os.Exit(1)
	}
}

func openPool(ctx context.Context, cfg *app.Config) (*pgxpool.Pool, error) {
	return db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns, MinConns: cfg.PGMinConns})
}

func migrate(ctx context.Context, cfg *app.Config) error {
	pool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	return migrations.Apply(ctx, pool)
}

func runJobs(ctx context.Context, cfg *app.Config, args []string) int {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
	jobsCLI := cli.NewJobsCLI(cfg.RedisAddr)
	defer func() { _ = jobsCLI.Close() }()

	switch args[0] {
	case "trigger":
		fs := flag.NewFlagSet("trigger", flag.ContinueOnError)
		month := fs.String("month", "", "restrict ledger:integrity to one YYYY-MM month")
		if len(args) < 2 {
			fmt.Fprint(os.Stderr, usage)
			return 2
		}
		if err := fs.Parse(args[2:]); err != nil {
			return 2
		}
		return jobsCLI.TriggerCommand(ctx, cli.TriggerOptions{Name: args[1], Month: *month, Stdout: os.Stdout, Stderr: os.Stderr})
	case "stats":
		return jobsCLI.StatsCommand(os.Stdout, os.Stderr)
	}
	fmt.Fprint(os.Stderr, usage)
	return 2
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	dbpool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer dbpool.Close()
	if err := migrations.Apply(ctx, dbpool); err != nil {
		return err
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	rbacMiddleware := rbac.Middleware{Logger: logger, UserHeader: cfg.AuthUserHeader, RoleHeader: cfg.AuthRoleHeader}

	ledgerCache := ledger.NewCache(redisClient, cfg.LedgerCacheTTL)
	if err := ledgerCache.ListenForInvalidation(ctx); err != nil {
		logger.Warn("ledger cache invalidation listener", slog.Any("error", err))
	}
	ledgerService := ledger.NewService(ledger.NewRepository(dbpool), ledgerCache, logger)

	billingService := billing.NewService(billing.NewRepository(dbpool), ledger.NewPoster(),
		billing.WithAudit(shared.NewAuditLogger(dbpool)),
		billing.WithObserver(metrics),
		billing.WithInvalidator(ledgerService),
		billing.WithLogger(logger),
	)

	customerService := customers.NewService(customers.NewRepository(dbpool))
	catalogService := catalog.NewManager(catalog.NewRepository(dbpool))
	subscriptionService := subscriptions.NewService(subscriptions.NewRepository(dbpool), catalogService, customerService, billingService, logger)
	dashboardService := dashboard.NewService(catalogService, customerService)

	inspector := asynq.NewInspector(cache.AsynqOpt(cfg.RedisAddr))
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:               logger,
		Config:               cfg,
		RBACMiddleware:       rbacMiddleware,
		BillingHandler:       billing.NewHandler(logger, billingService, rbacMiddleware),
		LedgerHandler:        ledger.NewHandler(logger, ledgerService, rbacMiddleware),
		CustomersHandler:     customers.NewHandler(logger, customerService, rbacMiddleware),
		CatalogHandler:       catalog.NewHandler(logger, catalogService, rbacMiddleware),
		SubscriptionsHandler: subscriptions.NewHandler(logger, subscriptionService, rbacMiddleware),
		DashboardHandler:     dashboard.NewHandler(logger, dashboardService, rbacMiddleware),
		AuditHandler:         audithttp.NewHandler(logger, audit.NewService(audit.NewRepository(dbpool)), rbacMiddleware),
		JobHandler:           jobs.NewHandler(inspector, logger),
		Metrics:              metrics,
		DB:                   dbpool,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
