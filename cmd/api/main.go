package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "arcana/api/swagger" // swagger docs
	"arcana/internal/config"
	"arcana/internal/database"
	"arcana/internal/handler"
	"arcana/internal/media"
	"arcana/internal/metrics"
	"arcana/internal/middleware"
	"arcana/internal/model"
	"arcana/internal/repository"
	"arcana/internal/service"
	"arcana/internal/websocket"
	"arcana/internal/workflow"
	"arcana/pkg/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// @title           Arcana Approval API
// @version         1.0
// @description     Multi-level approval workflow for client registration, freebies and listing fees.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	configPath := flag.String("config", os.Getenv("ARCANA_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	db, err := database.NewConnection(cfg.Database, log)
	if err != nil {
		log.Fatal("Database connection failed", zap.Error(err))
	}

	secret := []byte(cfg.JWT.Secret)
	if len(secret) == 0 {
		log.Warn("jwt.secret is empty, using a development secret")
		secret = []byte("arcana-development-secret")
	}

	var recorder *metrics.Recorder
	if cfg.Metrics.Enabled {
		recorder = metrics.New(cfg.Metrics.Prefix, prometheus.DefaultRegisterer)
	}

	wsHub := websocket.NewHub(log)
	done := make(chan struct{})
	go wsHub.Run(done)

	// Repositories
	txManager := repository.NewTransactionManager(db)
	userRepo := repository.NewUserRepository(db)
	requestRepo := repository.NewRequestRepository(db)
	approverRepo := repository.NewApproverRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	clientRepo := repository.NewClientRepository(db)
	freebieRepo := repository.NewFreebieRepository(db)
	feeRepo := repository.NewListingFeeRepository(db)

	// Workflow
	projector, err := workflow.NewProjector(workflow.DefaultStatusTable, map[model.SubjectType]workflow.StatusWriter{
		model.SubjectClient:         clientRepo,
		model.SubjectFreebieRequest: freebieRepo,
		model.SubjectListingFee:     feeRepo,
	})
	if err != nil {
		log.Fatal("Invalid status table", zap.Error(err))
	}
	engine := workflow.NewEngine(txManager, requestRepo, auditRepo, workflow.NewChainResolver(approverRepo), projector, log,
		workflow.WithPublisher(wsHub),
		workflow.WithMetrics(recorder),
	)

	uploader := media.NewLocalStorage(cfg.Media.BaseDir, cfg.Media.BaseURL, log)

	// Services
	userService := service.NewUserService(userRepo, service.TokenConfig{Secret: secret, Issuer: cfg.JWT.Issuer, TTL: cfg.JWT.TTL})
	clientService := service.NewClientService(txManager, clientRepo, engine, log)
	freebieService := service.NewFreebieService(txManager, freebieRepo, clientRepo, auditRepo, engine, projector, uploader, recorder, log)
	feeService := service.NewListingFeeService(txManager, feeRepo, clientRepo, engine, log)
	approvalService := service.NewApprovalService(requestRepo, engine)
	approverService := service.NewApproverService(txManager, approverRepo, userRepo, auditRepo, log)
	auditService := service.NewAuditService(auditRepo)

	if cfg.Admin.Password != "" {
		created, err := userService.EnsureAdmin(context.Background(), cfg.Admin.Fullname, cfg.Admin.Username, cfg.Admin.Password)
		if err != nil {
			log.Fatal("Failed to seed administrator", zap.Error(err))
		}
		if created {
			log.Info("Administrator created", zap.String("username", cfg.Admin.Username))
		}
	}

	// Handlers
	auth := middleware.NewAuth(secret, cfg.Server.Mode == gin.ReleaseMode)
	handlers := []interface{ RegisterRoutes(*gin.RouterGroup) }{
		handler.NewUserHandler(userService, auth),
		handler.NewClientHandler(clientService, auth),
		handler.NewFreebieHandler(freebieService, auth),
		handler.NewListingFeeHandler(feeService, auth),
		handler.NewApprovalHandler(approvalService, auth),
		handler.NewApproverHandler(approverService, auth),
		handler.NewAuditHandler(auditService, auth),
	}

	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(log))
	if recorder != nil {
		router.Use(recorder.Middleware())
	}

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.Server.AllowedOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK", "time": time.Now().Format(time.RFC3339)})
	})
	if recorder != nil {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
	router.Static("/uploads", cfg.Media.BaseDir)
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, secret)
	})

	for _, h := range handlers {
		h.RegisterRoutes(router.Group(""))
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	close(done)

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info("Server exited")
}
