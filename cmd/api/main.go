package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "formflow/api/swagger" // swagger docs
	"formflow/internal/auth"
	"formflow/internal/config"
	"formflow/internal/database"
	"formflow/internal/events"
	"formflow/internal/handler"
	"formflow/internal/logger"
	"formflow/internal/middleware"
	"formflow/internal/repository"
	"formflow/internal/service"
	"formflow/internal/storage"
	"formflow/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// @title           FormFlow API
// @version         1.0
// @description     Form submissions with department analytics, signing and sequential approval workflows.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zapLogger, err := logger.New(cfg.LogLevel, cfg.Release())
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	if err := run(cfg, zapLogger); err != nil {
		zapLogger.Fatal("Server stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, zapLogger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, mode, err := database.Connect(ctx, cfg.DSN(), cfg.DBConnectRetries, cfg.DemoFallback, zapLogger)
	if err != nil {
		return err
	}
	if err := database.SeedReferenceData(ctx, db); err != nil {
		return err
	}
	zapLogger.Info("Database ready", zap.String("mode", string(mode)))

	chain, err := config.LoadWorkflowChain(cfg.WorkflowFile)
	if err != nil {
		return err
	}

	blobs := storage.Disabled()
	switch {
	case cfg.MinioEndpoint != "":
		store, err := storage.NewMinioStore(ctx, storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		}, zapLogger)
		if err != nil {
			return err
		}
		blobs = store
	case mode == database.ModeDemo:
		blobs = storage.NewMemoryStore()
	default:
		zapLogger.Warn("MINIO_ENDPOINT not set, PDF attachments are disabled")
	}

	// Set up WebSocket Hub
	wsHub := websocket.NewHub(zapLogger)
	go wsHub.Run(ctx)

	publishers := []events.Publisher{wsHub}
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := events.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic, zapLogger)
		if err != nil {
			return err
		}
		defer producer.Close()
		publishers = append(publishers, producer)
	}
	publisher := events.Multi(publishers...)

	// Set up dependencies (Repository -> Service -> Handler)
	txManager := repository.NewTransactionManager(db)
	userRepo := repository.NewUserRepository(db)
	tokenRepo := repository.NewRefreshTokenRepository(db)
	formRepo := repository.NewFormRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	workflowRepo := repository.NewWorkflowRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.AccessTTL)

	userService := service.NewUserService(userRepo, formRepo, tokenRepo, auditRepo, txManager)
	authService := service.NewAuthService(db, userRepo, formRepo, tokenRepo, auditRepo, txManager, tokens, cfg.RefreshTTL)
	formService := service.NewFormService(formRepo)
	workflowService := service.NewWorkflowService(submissionRepo, workflowRepo, userRepo, formRepo, formService, auditRepo, txManager, chain, publisher, zapLogger)
	submissionService := service.NewSubmissionService(db, submissionRepo, userRepo, formRepo, workflowRepo, formService, workflowService, auditRepo, txManager, publisher, zapLogger)
	signingService := service.NewSigningService(submissionRepo, workflowRepo, authService, formService, workflowService, auditRepo, txManager, blobs, publisher, zapLogger)
	analyticsService := service.NewAnalyticsService(submissionRepo, formService, time.Local)
	auditService := service.NewAuditService(auditRepo)

	authn := middleware.NewAuthenticator(tokens, userRepo, cfg.CookieSecure, cfg.RefreshTTL)

	// Initialize Handlers
	userHandler := handler.NewUserHandler(userService, authService, authn)
	formHandler := handler.NewFormHandler(formService, submissionService, analyticsService, authn, zapLogger)
	submissionHandler := handler.NewSubmissionHandler(submissionService, workflowService, signingService, authn, zapLogger)
	auditHandler := handler.NewAuditHandler(auditService, authn)
	adminHandler := handler.NewAdminHandler(authService, submissionService, authn)
	healthHandler := handler.NewHealthHandler(db, mode, cfg.HealthTimeout)

	if cfg.Release() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RequestLogger(zapLogger), gin.Recovery())

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, authn)
	})

	root := router.Group("")
	healthHandler.RegisterRoutes(root)
	userHandler.RegisterRoutes(root)
	formHandler.RegisterRoutes(root)
	submissionHandler.RegisterRoutes(root)
	auditHandler.RegisterRoutes(root)
	adminHandler.RegisterRoutes(root)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zapLogger.Info("Server listening", zap.String("port", cfg.Port))
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

	zapLogger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
