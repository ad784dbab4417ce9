package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/GoPolymarket/fundgate/internal/config"
	"github.com/GoPolymarket/fundgate/internal/handler"
	"github.com/GoPolymarket/fundgate/internal/ledger"
	"github.com/GoPolymarket/fundgate/internal/middleware"
	"github.com/GoPolymarket/fundgate/internal/model"
	"github.com/GoPolymarket/fundgate/internal/oracle"
	"github.com/GoPolymarket/fundgate/internal/pkg/logger"
	"github.com/GoPolymarket/fundgate/internal/repository"
	"github.com/GoPolymarket/fundgate/internal/service"
	"github.com/GoPolymarket/fundgate/internal/venue"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type journal interface {
	ledger.Journal
	ledger.JournalReader
}

type cleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

type cleanupJob struct {
	name      string
	repo      cleaner
	retention time.Duration
}

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Initialize Logger
	logger.Init(cfg.Log.Level)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Initialize Persistence
	var db *sqlx.DB
	if cfg.Database.DSN != "" && cfg.Database.Driver == "postgres" {
		db, err = repository.NewDB(cfg)
		if err == nil {
			logger.Info("✅ Connected to PostgreSQL")
		} else {
			logger.Error("⚠️ Failed to connect to DB, falling back to memory", "error", err)
			db = nil
		}
	}

	var redisClient *repository.RedisClient
	if cfg.Redis.Addr != "" {
		redisClient, err = repository.NewRedisClient(cfg)
		if err == nil {
			logger.Info("✅ Connected to Redis")
		} else {
			logger.Error("⚠️ Failed to connect to Redis, falling back", "error", err)
			redisClient = nil
		}
	}

	var store ledger.Store = ledger.NewMemoryStore()
	if cfg.Ledger.Store == "sql" {
		gdb, err := repository.NewGormDB(cfg)
		if err != nil {
			log.Fatalf("Failed to open ledger database: %v", err)
		}
		sqlStore, err := repository.NewSQLLedgerStore(ctx, gdb)
		if err != nil {
			log.Fatalf("Failed to load ledger: %v", err)
		}
		count, _ := sqlStore.Count(ctx)
		logger.Info("ledger loaded", "driver", cfg.Database.Driver, "records", count)
		store = sqlStore
	}

	var batchJournal journal
	var cleanups []cleanupJob
	if db != nil {
		pgJournal := repository.NewPostgresJournalRepo(db)
		batchJournal = pgJournal
		cleanups = append(cleanups, cleanupJob{"journal", pgJournal, days(cfg.Database.JournalRetentionDays)})
	} else {
		batchJournal = repository.NewMemoryJournal(cfg.Ledger.JournalBuffer)
	}

	idemTTL := time.Duration(cfg.Redis.IdempotencyTTLSeconds) * time.Second
	var idempotencyStore middleware.IdempotencyStore
	switch {
	case redisClient != nil:
		idempotencyStore = repository.NewRedisIdempotencyStore(redisClient, idemTTL)
	case db != nil:
		pgIdem := repository.NewPostgresIdempotencyStore(db, time.Duration(cfg.Database.IdempotencyLockSeconds)*time.Second)
		idempotencyStore = pgIdem
		cleanups = append(cleanups, cleanupJob{"idempotency", pgIdem, time.Duration(cfg.Database.IdempotencyRetentionHours) * time.Hour})
	default:
		idempotencyStore = middleware.NewInMemIdempotencyStore(idemTTL)
	}

	// Audit Persistence (Redis > Postgres > Local File)
	var auditRepo service.AuditRepo
	switch {
	case redisClient != nil:
		auditRepo = repository.NewRedisAuditRepo(redisClient, cfg.Redis.AuditListKey, cfg.Redis.AuditListMax)
	case db != nil:
		pgAudit := repository.NewPostgresAuditRepo(db)
		auditRepo = pgAudit
		cleanups = append(cleanups, cleanupJob{"audit", pgAudit, days(cfg.Database.JournalRetentionDays)})
	}

	// 4. Initialize Core Services
	var principalRepo *repository.PostgresPrincipalRepo
	var principalLookup service.PrincipalRepo
	var principalStore handler.PrincipalStore
	if db != nil {
		principalRepo = repository.NewPostgresPrincipalRepo(db)
		principalLookup = principalRepo
		principalStore = principalRepo
	}
	registry, err := service.NewPrincipalRegistry(cfg, principalLookup)
	if err != nil {
		log.Fatalf("Failed to load principals: %v", err)
	}

	auditSvc, err := service.NewAuditService("./logs", auditRepo)
	if err != nil {
		log.Fatalf("Failed to initialize audit service: %v", err)
	}

	router := venue.NewRateVenue(cfg.Venue.Name, cfg.Venue.FeeBps)
	if err := router.LoadRates(cfg.Venue.Rates); err != nil {
		log.Fatalf("Failed to load venue rates: %v", err)
	}

	engine := ledger.NewEngine(store, ledger.Options{
		Venues:                       []venue.Venue{router},
		Oracle:                       oracle.NewValidator(cfg.Ledger.OracleMaxAgeSeconds, cfg.Ledger.MaxConfidenceBps),
		MaxActiveDca:                 uint16(cfg.Ledger.MaxActiveDca),
		DefaultRebalanceThresholdBps: cfg.Ledger.DefaultRebalanceThresholdBps,
		Journal:                      batchJournal,
	})

	var oracleProgram model.Key
	if cfg.Oracle.ProgramID != "" {
		oracleProgram, err = model.ParseKey(cfg.Oracle.ProgramID)
		if err != nil {
			log.Fatalf("Invalid oracle program id: %v", err)
		}
	}

	// Oracle Price Feed
	var feed *oracle.Feed
	if cfg.Oracle.FeedURL != "" {
		if oracleProgram.IsZero() {
			log.Fatalf("oracle.program_id is required with oracle.feed_url")
		}
		feeds := make([]model.Key, 0, len(cfg.Oracle.Feeds))
		for _, raw := range cfg.Oracle.Feeds {
			k, err := model.ParseKey(raw)
			if err != nil {
				log.Fatalf("Invalid oracle feed: %v", err)
			}
			feeds = append(feeds, k)
		}
		feed = oracle.NewFeed(cfg.Oracle.FeedURL, oracleProgram, engine)
		feed.Subscribe(feeds)
		feed.Start()
	}

	cleanupDone := make(chan struct{})
	go func() {
		defer close(cleanupDone)
		runCleanup(ctx, time.Duration(cfg.Database.CleanupIntervalMinutes)*time.Minute, cleanups)
	}()

	// 5. Initialize Handlers
	batchHandler := handler.NewBatchHandler(engine, batchJournal)
	fundHandler := handler.NewFundHandler(engine)
	orderHandler := handler.NewOrderHandler(engine)
	auditHandler := handler.NewAuditHandler(auditSvc)
	adminHandler := handler.NewAdminHandler(engine, oracleProgram)
	principalHandler := handler.NewPrincipalHandler(registry, principalStore)

	// 6. Setup Router
	r := gin.Default()

	// Global Middleware
	r.Use(middleware.ErrorHandler())
	if cfg.Metrics.Enabled {
		r.Use(middleware.MetricsMiddleware())
	}
	r.Use(middleware.ReadOnlyMiddleware(cfg.Server.ReadOnly))
	r.Use(middleware.AuditMiddleware(auditSvc, "/health", cfg.Metrics.Path))

	r.GET("/health", func(c *gin.Context) {
		status := gin.H{"status": "ok", "service": "fundgate", "slot_time": engine.Now()}
		if redisClient != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
			defer cancel()
			if err := redisClient.Ping(ctx); err != nil {
				// stores fail open, so the ledger keeps serving
				status["status"] = "degraded"
				status["redis"] = err.Error()
			}
		}
		c.JSON(http.StatusOK, status)
	})

	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	// The inner ErrorHandler renders before the audit and idempotency
	// middleware capture the response.
	v1 := r.Group("/v1")
	admin := v1.Group("/admin")
	admin.Use(middleware.AdminMiddleware(cfg), middleware.ErrorHandler())
	{
		admin.POST("/prices", adminHandler.PostPrice)
		admin.POST("/credits", adminHandler.Credit)
		admin.GET("/principals", principalHandler.List)
		admin.POST("/principals", principalHandler.Create)
		admin.DELETE("/principals/:id", principalHandler.Delete)
	}

	api := v1.Group("")
	api.Use(middleware.AuthMiddleware(cfg, registry))
	api.Use(middleware.RateLimitMiddleware(registry))
	api.Use(middleware.IdempotencyMiddleware(idempotencyStore))
	api.Use(middleware.ErrorHandler())
	{
		api.GET("/operations", batchHandler.Operations)
		api.POST("/batches", batchHandler.Submit)
		api.GET("/batches", batchHandler.List)
		api.GET("/funds", fundHandler.List)
		api.GET("/funds/:fund", fundHandler.Get)
		api.GET("/funds/:fund/nav", fundHandler.NAV)
		api.GET("/funds/:fund/shares/:owner", fundHandler.Shares)
		api.GET("/funds/:fund/orders", fundHandler.Orders)
		api.GET("/orders/limit/:key", orderHandler.Limit)
		api.GET("/orders/dca/:key", orderHandler.Dca)
		api.GET("/audit", auditHandler.List)
	}

	// 7. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Info("🚀 FundGate started", "port", cfg.Server.Port, "store", cfg.Ledger.Store, "read_only", cfg.Server.ReadOnly)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server listen failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("🛑 Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}
	if feed != nil {
		feed.Stop()
	}
	<-cleanupDone
	auditSvc.Close()
	if redisClient != nil {
		redisClient.Close()
	}
	if db != nil {
		db.Close()
	}

	logger.Info("Server exiting")
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}

// runCleanup prunes expired rows every interval until ctx is done.
func runCleanup(ctx context.Context, interval time.Duration, jobs []cleanupJob) {
	if len(jobs) == 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, job := range jobs {
				if job.retention <= 0 {
					continue
				}
				if err := job.repo.Cleanup(ctx, job.retention); err != nil {
					logger.Error("cleanup failed", "job", job.name, "error", err)
				}
			}
		}
	}
}
