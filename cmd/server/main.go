package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	authhandler "prismid/internal/auth/handler"
	authservice "prismid/internal/auth/service"
	authstore "prismid/internal/auth/store"
	jwttoken "prismid/internal/jwt_token"
	personnelcache "prismid/internal/personnel/cache"
	personnelhandler "prismid/internal/personnel/handler"
	personnelmetrics "prismid/internal/personnel/metrics"
	personnelservice "prismid/internal/personnel/service"
	personnelstore "prismid/internal/personnel/store/personnel"
	"prismid/internal/platform/config"
	"prismid/internal/platform/database"
	"prismid/internal/platform/httpserver"
	"prismid/internal/platform/logger"
	platformmetrics "prismid/internal/platform/metrics"
	"prismid/internal/platform/redis"
	rolehandler "prismid/internal/role/handler"
	roleservice "prismid/internal/role/service"
	assignmentstore "prismid/internal/role/store/assignment"
	rolestore "prismid/internal/role/store/role"
	taxonomyhandler "prismid/internal/taxonomy/handler"
	taxonomyservice "prismid/internal/taxonomy/service"
	taxonomystore "prismid/internal/taxonomy/store"
	httptransport "prismid/internal/transport/http"
	"prismid/pkg/audit"
	audithandler "prismid/pkg/audit/handler"
	auditmemory "prismid/pkg/audit/store/memory"
	auditpostgres "prismid/pkg/audit/store/postgres"
	"prismid/pkg/identity"
	"prismid/pkg/platform/tx"
)

// assignmentStore joins the two views of the assignment relation: the
// personnel engine assigns and migrates, the role service cascades purges.
type assignmentStore interface {
	personnelservice.AssignmentStore
	roleservice.AssignmentCascader
}

// main wires dependencies and keeps the server lifecycle small. Business
// logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage. Without DATABASE_URL everything runs in memory, which keeps
	// local development and demos free of infrastructure.
	var (
		db           *sql.DB
		txRunner     tx.Runner = tx.NoopRunner{}
		records      personnelservice.Store
		assignments  assignmentStore
		roles        roleservice.Store
		taxonomies   taxonomyservice.Store
		accounts     authservice.AccountStore
		auditStore   audit.Store
		healthChecks []httptransport.HealthCheck
	)

	if cfg.DatabaseURL != "" {
		var err error
		db, err = database.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("database setup failed", slog.Any("error", err))
			os.Exit(1)
		}
		defer db.Close()

		txRunner = tx.NewSQLRunner(db)
		records = personnelstore.NewPostgres(db)
		assignments = assignmentstore.NewPostgres(db)
		roles = rolestore.NewPostgres(db)
		taxonomies = taxonomystore.NewPostgres(db)
		accounts = authstore.NewPostgres(db)
		auditStore = auditpostgres.New(db)
		healthChecks = append(healthChecks, httptransport.HealthCheck{
			Name:  "database",
			Check: db.PingContext,
		})
	} else {
		log.Warn("DATABASE_URL not set, using in-memory stores")
		records = personnelstore.NewInMemory()
		assignments = assignmentstore.NewInMemory()
		roles = rolestore.NewInMemory()
		taxonomies = taxonomystore.NewInMemory()
		accounts = authstore.NewInMemory()
		auditStore = auditmemory.NewInMemoryStore()
	}

	// Redis warning cache is optional; the sweep degrades gracefully
	// without it.
	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		log.Error("redis setup failed", slog.Any("error", err))
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		healthChecks = append(healthChecks, httptransport.HealthCheck{
			Name:  "redis",
			Check: redisClient.Health,
		})
	}

	// Bootstrap superadmin so a fresh deployment can be administered.
	if seeded, err := authstore.SeedBootstrapAdmin(ctx, accounts, cfg.SeedAdminUsername, cfg.SeedAdminPassword); err != nil {
		log.Error("admin seeding failed", slog.Any("error", err))
		os.Exit(1)
	} else if seeded != nil {
		log.Info("seeded bootstrap superadmin", slog.String("username", seeded.Username))
	}

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)
	httpMetrics := platformmetrics.New()

	authSvc := authservice.New(accounts, jwtService, auditStore,
		authservice.WithLogger(log),
		authservice.WithTokenTTL(cfg.TokenTTL),
	)

	codec := identity.NewCodec(cfg.IDSalt)

	personnelOpts := []personnelservice.Option{
		personnelservice.WithLogger(log),
		personnelservice.WithMetrics(personnelmetrics.New()),
		personnelservice.WithTxRunner(txRunner),
		personnelservice.WithWarningSpan(time.Duration(cfg.WarningSpanDays) * 24 * time.Hour),
		personnelservice.WithSweepConcurrency(cfg.SweepConcurrency),
	}
	var warningReader personnelhandler.WarningReader
	if redisClient != nil {
		warningCache := personnelcache.NewWarningCache(redisClient)
		personnelOpts = append(personnelOpts, personnelservice.WithWarningCache(warningCache))
		warningReader = warningCache
	}
	personnelSvc := personnelservice.New(records, assignments, roles, codec, auditStore, personnelOpts...)

	roleSvc := roleservice.New(roles, assignments, auditStore,
		roleservice.WithLogger(log),
		roleservice.WithTxRunner(txRunner),
	)
	taxonomySvc := taxonomyservice.New(taxonomies, auditStore,
		taxonomyservice.WithLogger(log),
		taxonomyservice.WithTxRunner(txRunner),
	)

	router := httptransport.NewRouter(httptransport.Dependencies{
		Logger:       log,
		Metrics:      httpMetrics,
		Auth:         authSvc,
		AuthHandler:  authhandler.New(authSvc, log),
		Personnel:    personnelhandler.New(personnelSvc, warningReader, log),
		Roles:        rolehandler.New(roleSvc, log),
		Taxonomy:     taxonomyhandler.New(taxonomySvc, log),
		Audit:        audithandler.New(auditStore, log),
		HealthChecks: healthChecks,
	})

	srv := httpserver.New(cfg.Addr, router)

	go func() {
		log.Info("starting prismid", slog.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", slog.Any("error", err))
		os.Exit(1)
	}
	log.Info("server stopped")
}
