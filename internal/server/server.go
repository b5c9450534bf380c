package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/autopress/autopress/internal/config"
	"github.com/autopress/autopress/internal/models"
	"github.com/autopress/autopress/internal/service"
	"github.com/autopress/autopress/internal/service/deliverer"
	"github.com/autopress/autopress/internal/service/deliverer/fileexport"
	"github.com/autopress/autopress/internal/service/generator"
	"github.com/autopress/autopress/internal/service/handoff"
)

type Server struct {
	Config *config.Config
	DB     *gorm.DB
	Router *gin.Engine
	Logger *zap.Logger
	Server *http.Server

	// Services
	Ledger    *service.PairLedger
	Dedup     *service.DedupEngine
	Runs      *service.RunService
	Delivery  *service.DeliveryService
	Planner   *service.Planner
	Scheduler *service.Scheduler
	Retry     *service.RetryScheduler
	Stats     *service.StatsService
	Auth      *service.AuthService
	Registry  *deliverer.Registry
}

func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	// Set gin mode
	gin.SetMode(cfg.Server.Mode)

	// Initialize database
	db, err := service.NewDatabase(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Initialize services
	registry := deliverer.NewRegistry(logger)
	if err := registerPlatforms(registry, cfg, logger); err != nil {
		return nil, err
	}

	ledger := service.NewPairLedger(db, logger, cfg.Planner.LockTTL)
	dedup := service.NewDedupEngine(db, ledger, logger, &cfg.Dedup)
	runs := service.NewRunService(db, logger)
	delivery := service.NewDeliveryService(db, logger, &cfg.Retry)
	gen := generator.NewTemplate("")
	signer := handoff.NewSigner(cfg.Executor.SigningKey, cfg.Executor.ResultTimeout)
	packager := handoff.NewPackager(cfg.Executor.WorkDir, signer, logger)
	executor := handoff.NewLocalExecutor(registry, logger)

	planner := service.NewPlanner(cfg, logger, ledger, dedup, runs, delivery, gen, registry, packager, executor)
	scheduler := service.NewScheduler(&cfg.Planner, logger, planner, runs)
	retry := service.NewRetryScheduler(&cfg.Retry, logger, delivery, registry)
	stats := service.NewStatsService(db, logger)
	auth := service.NewAuthService(logger, cfg.Server.TOTPSecret)

	// Create router
	router := gin.New()

	srv := &Server{
		Config:    cfg,
		DB:        db,
		Router:    router,
		Logger:    logger,
		Ledger:    ledger,
		Dedup:     dedup,
		Runs:      runs,
		Delivery:  delivery,
		Planner:   planner,
		Scheduler: scheduler,
		Retry:     retry,
		Stats:     stats,
		Auth:      auth,
		Registry:  registry,
	}

	// Setup middleware and routes
	srv.setupMiddleware()
	srv.setupRoutes()

	return srv, nil
}

// registerPlatforms wires one deliverer per enabled platform from config.
func registerPlatforms(registry *deliverer.Registry, cfg *config.Config, logger *zap.Logger) error {
	for name, platform := range cfg.Platforms {
		if !platform.Enabled {
			continue
		}
		outDir := platform.OutputDir
		if outDir == "" {
			outDir = "exports"
		}
		if err := registry.Register(fileexport.New(name, outDir, logger)); err != nil {
			return fmt.Errorf("register platform %s: %w", name, err)
		}
		if len(platform.Credentials) > 0 {
			registry.SetCredentials(name, deliverer.Credentials(platform.Credentials))
		}
	}
	return nil
}

func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.Router.Use(gin.Recovery())

	// Request ID middleware
	s.Router.Use(func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-ID", id)
		c.Set("request_id", id)
		c.Next()
	})

	// Logger middleware
	s.Router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	}))

	// CORS middleware
	s.Router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Auth-Token")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})
}

func (s *Server) setupRoutes() {
	// Health check
	s.Router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Unix(),
		})
	})

	// API routes
	api := s.Router.Group("/api/v1")
	{
		runs := api.Group("/runs")
		{
			runs.GET("", s.handleListRuns)
			runs.GET("/:run_id", s.handleGetRun)
			runs.POST("", s.Auth.RequireToken(), s.handleSubmitRun)
		}

		deliveries := api.Group("/deliveries")
		{
			deliveries.GET("", s.handleListDeliveries)
			deliveries.POST("/retry", s.Auth.RequireToken(), s.handleRetrySweep)
		}

		stats := api.Group("/stats")
		{
			stats.GET("/runs", s.handleRunStats)
			stats.GET("/platforms", s.handlePlatformStats)
		}
	}
}

func (s *Server) handleListRuns(c *gin.Context) {
	var runs []models.Run
	q := s.DB.Order("run_date desc, run_id desc").Limit(100)
	if status := c.Query("status"); status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Find(&runs).Error; err != nil {
		s.Logger.Error("Failed to list runs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list runs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) handleGetRun(c *gin.Context) {
	runID := c.Param("run_id")
	run, err := s.Runs.Get(runID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
			return
		}
		s.Logger.Error("Failed to get run", zap.String("run_id", runID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get run"})
		return
	}

	var articles []models.Article
	if err := s.DB.Where("run_id = ?", runID).Order("id asc").Find(&articles).Error; err != nil {
		s.Logger.Error("Failed to get run articles", zap.String("run_id", runID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get run"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"run": run, "articles": articles})
}

type submitRunRequest struct {
	RunID string `json:"run_id"`
	Date  string `json:"date"`
	Count int    `json:"count"`
}

func (s *Server) handleSubmitRun(c *gin.Context) {
	var req submitRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	runDate := time.Now().UTC().Truncate(24 * time.Hour)
	if req.Date != "" {
		parsed, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid date, expected YYYY-MM-DD"})
			return
		}
		runDate = parsed
	}
	runID := req.RunID
	if runID == "" {
		runID = service.DailyRunID(runDate)
	}

	run, err := s.Planner.Plan(c.Request.Context(), runID, runDate, req.Count)
	if err != nil {
		if errors.Is(err, service.ErrDuplicateRun) {
			c.JSON(http.StatusConflict, gin.H{"error": "Run already exists", "run": run})
			return
		}
		s.Logger.Error("Run submission failed", zap.String("run_id", runID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Run submission failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"run": run})
}

func (s *Server) handleListDeliveries(c *gin.Context) {
	logs, err := s.Delivery.ListByStatus(c.Query("status"), 200)
	if err != nil {
		s.Logger.Error("Failed to list deliveries", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list deliveries"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deliveries": logs})
}

func (s *Server) handleRetrySweep(c *gin.Context) {
	n := s.Retry.Sweep(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"redriven": n})
}

func (s *Server) handleRunStats(c *gin.Context) {
	stats, err := s.Stats.RunStatsRange(30)
	if err != nil {
		s.Logger.Error("Failed to get run stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get stats"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

func (s *Server) handlePlatformStats(c *gin.Context) {
	stats, err := s.Stats.PlatformStatsRange(30)
	if err != nil {
		s.Logger.Error("Failed to get platform stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get stats"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

func (s *Server) Start(ctx context.Context) error {
	// Start background workers
	if err := s.Scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	s.Retry.Start(ctx)
	if s.Config.Stats.Enabled {
		s.Stats.Start(ctx, s.Config.Stats.Interval)
	}

	addr := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port)

	s.Server = &http.Server{
		Addr:    addr,
		Handler: s.Router,
	}

	s.Logger.Info("Starting HTTP server", zap.String("addr", addr))

	if s.Config.Server.CertFile != "" && s.Config.Server.KeyFile != "" {
		return s.Server.ListenAndServeTLS(s.Config.Server.CertFile, s.Config.Server.KeyFile)
	}

	return s.Server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	// Stop background workers first
	s.Scheduler.Stop()
	s.Retry.Stop()
	if s.Config.Stats.Enabled {
		s.Stats.Stop()
	}

	if s.Server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	return s.Server.Shutdown(shutdownCtx)
}
