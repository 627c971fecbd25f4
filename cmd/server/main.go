package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tradeops/riskgate/internal/audit"
	"github.com/tradeops/riskgate/internal/config"
	"github.com/tradeops/riskgate/internal/controls"
	"github.com/tradeops/riskgate/internal/crypto"
	"github.com/tradeops/riskgate/internal/guard"
	"github.com/tradeops/riskgate/internal/handler"
	"github.com/tradeops/riskgate/internal/middleware"
	"github.com/tradeops/riskgate/internal/model"
	"github.com/tradeops/riskgate/internal/pkg/logger"
	"github.com/tradeops/riskgate/internal/policy"
	"github.com/tradeops/riskgate/internal/repository"
	"github.com/tradeops/riskgate/internal/risk"
	"github.com/tradeops/riskgate/internal/service"
	"github.com/tradeops/riskgate/internal/vault"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.Init(cfg.Server.LogLevel)

	if cfg.Crypto.EncryptionKey == "" {
		log.Fatal("crypto.encryption_key must be set (RISKGATE_CRYPTO_ENCRYPTION_KEY)")
	}
	if cfg.Crypto.SigningKey == "" {
		log.Fatal("crypto.signing_key must be set (RISKGATE_CRYPTO_SIGNING_KEY)")
	}

	// 2. Initialize Persistence (Postgres > Memory)
	var (
		secretRepo     vault.SecretRepo
		assignmentRepo guard.AssignmentRepo
		riskRepo       risk.StateRepo
		auditRepo      audit.Repo
		controlRepo    controls.Repo
		pgIdemStore    *repository.PostgresIdempotencyStore
		pgRiskRepo     *repository.PostgresRiskRepo
	)
	if cfg.Database.DSN != "" {
		db, err := repository.NewDB(cfg)
		if err != nil {
			log.Fatalf("Failed to connect to PostgreSQL: %v", err)
		}
		logger.Info("Connected to PostgreSQL")
		secretRepo = repository.NewPostgresSecretRepo(db)
		assignmentRepo = repository.NewPostgresAssignmentRepo(db)
		pgRiskRepo = repository.NewPostgresRiskRepo(db)
		riskRepo = pgRiskRepo
		auditRepo = repository.NewPostgresAuditRepo(db)
		controlRepo = repository.NewPostgresControlRepo(db)
		pgIdemStore = repository.NewPostgresIdempotencyStore(db)
	} else {
		logger.Warn("No database configured, running with in-memory stores")
		secretRepo = repository.NewMemorySecretRepo()
		assignmentRepo = repository.NewMemoryAssignmentRepo()
		riskRepo = repository.NewMemoryRiskRepo()
		auditRepo = repository.NewMemoryAuditRepo()
		controlRepo = repository.NewMemoryControlRepo()
	}

	// Idempotency store (Redis > Postgres > Memory)
	var idemStore middleware.IdempotencyStore
	if cfg.Redis.Addr != "" {
		redisClient, err := repository.NewRedisClient(cfg)
		if err == nil {
			logger.Info("Connected to Redis")
			idemStore = repository.NewRedisIdempotencyStore(redisClient,
				time.Duration(cfg.Redis.IdempotencyTTLSeconds)*time.Second)
		} else {
			logger.Error("Failed to connect to Redis, falling back", "error", err)
		}
	}
	if idemStore == nil && pgIdemStore != nil {
		idemStore = pgIdemStore
	}
	if idemStore == nil {
		idemStore = middleware.NewInMemIdempotencyStore()
	}

	// 3. Initialize Core Services
	ledger, err := audit.NewLedger(auditRepo, cfg.Crypto.SigningKey)
	if err != nil {
		log.Fatalf("Failed to initialize audit ledger: %v", err)
	}

	keyring, err := crypto.NewKeyring(cfg.Crypto.EncryptionKey)
	if err != nil {
		log.Fatalf("Failed to initialize keyring: %v", err)
	}

	tradingControls := controls.NewTradingControls(controlRepo, ledger, cfg.Controls.TradingEnabledDefault)
	segGuard := guard.NewSegregationGuard(assignmentRepo, ledger, cfg.StrategyByID)

	profileFor := func(userID string) model.RiskProfile {
		for _, u := range cfg.Users {
			if u.ID == userID {
				return cfg.ProfileByName(u.RiskProfile)
			}
		}
		return cfg.ProfileByName("")
	}
	riskAgg := risk.NewAggregator(riskRepo, profileFor)

	opTimeout := time.Duration(cfg.Crypto.OpTimeoutMs) * time.Millisecond
	credVault := vault.NewCredentialVault(secretRepo, keyring, segGuard, ledger, opTimeout)

	engine := policy.NewEngine(cfg.StrategyByID, tradingControls, segGuard, riskAgg, ledger)

	submitter := service.NewPaperSubmitter()
	executionSvc := service.NewExecutionService(credVault, segGuard, tradingControls, riskAgg, ledger,
		submitter, cfg.Execution.Mode, time.Duration(cfg.Execution.SubmitTimeoutMs)*time.Millisecond)
	securitySvc := service.NewSecurityService(cfg.Users, secretRepo, credVault, ledger)

	// 4. Initialize Handlers
	checkHandler := handler.NewCheckHandler(engine)
	credHandler := handler.NewCredentialHandler(credVault)
	execHandler := handler.NewExecutionHandler(executionSvc, riskAgg)
	auditHandler := handler.NewAuditHandler(ledger)
	adminHandler := handler.NewAdminHandler(securitySvc, tradingControls, segGuard)

	// 5. Setup Router
	r := gin.Default()

	r.Use(middleware.ErrorHandler())
	r.Use(middleware.MetricsMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "service": "riskgate"})
	})
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	v1 := r.Group("/v1")
	v1.Use(middleware.AuthMiddleware(cfg))
	v1.Use(middleware.RateLimitMiddleware(cfg))
	{
		v1.POST("/execution/pretrade/:exchange/check", checkHandler.Pretrade)
		v1.POST("/execution/exit/:exchange/check", checkHandler.Exit)
		v1.POST("/execution/prepare", execHandler.Prepare)
		v1.POST("/execution/:exchange/test-order",
			middleware.IdempotencyMiddleware(idemStore), execHandler.TestOrder)

		v1.PUT("/credentials", credHandler.Upsert)
		v1.GET("/credentials", credHandler.List)
		v1.DELETE("/credentials/:exchange", credHandler.Delete)

		v1.GET("/risk/:exchange", execHandler.RiskSnapshot)
		v1.POST("/risk/:exchange/outcome",
			middleware.IdempotencyMiddleware(idemStore), execHandler.RecordOutcome)

		v1.GET("/audit/me", auditHandler.Mine)
	}

	admin := r.Group("/v1/admin")
	admin.Use(middleware.AdminMiddleware(cfg))
	{
		admin.GET("/audit/export", auditHandler.Export)
		admin.GET("/security/posture", adminHandler.Posture)
		admin.POST("/strategy/assignments", adminHandler.Assign)
		admin.GET("/strategy/assignments", adminHandler.ListAssignments)
		admin.GET("/controls/trading", adminHandler.GetTrading)

		// Kill-switch and key rotation need the second secret.
		secured := admin.Group("")
		secured.Use(middleware.AdminSecretMiddleware(cfg))
		{
			secured.PUT("/controls/trading", adminHandler.SetTrading)
			secured.POST("/security/rotate", adminHandler.Rotate)
		}
	}

	// 6. Background retention cleanup
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	if pgRiskRepo != nil || pgIdemStore != nil {
		go runCleanup(cleanupCtx, cfg, pgRiskRepo, pgIdemStore)
	}

	// 7. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Info("RiskGate started", "port", cfg.Server.Port, "mode", cfg.Execution.Mode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server listen failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cleanupCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}
	logger.Info("Server exiting")
}

func runCleanup(ctx context.Context, cfg *config.Config, riskRepo *repository.PostgresRiskRepo, idemStore *repository.PostgresIdempotencyStore) {
	interval := time.Duration(cfg.Database.CleanupIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if riskRepo != nil {
				retention := time.Duration(cfg.Database.RiskRetentionDays) * 24 * time.Hour
				if err := riskRepo.Cleanup(ctx, retention); err != nil {
					logger.Error("risk state cleanup failed", "error", err)
				}
			}
			if idemStore != nil {
				retention := time.Duration(cfg.Database.IdempotencyRetentionHours) * time.Hour
				if err := idemStore.Cleanup(ctx, retention); err != nil {
					logger.Error("idempotency cleanup failed", "error", err)
				}
			}
		}
	}
}
