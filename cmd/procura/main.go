package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/bitfantasy/procura/internal/config"
	"github.com/bitfantasy/procura/internal/middleware"
	"github.com/bitfantasy/procura/internal/procurement/entity"
	"github.com/bitfantasy/procura/internal/procurement/handler"
	"github.com/bitfantasy/procura/internal/procurement/repository"
	"github.com/bitfantasy/procura/internal/procurement/service"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// 加载 .env 文件
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	zapLogger, err := initLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting procura service",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
	)

	// 初始化数据库
	db, err := initDatabase(cfg.Database)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}

	// 自动迁移
	if err := db.AutoMigrate(
		&entity.BOM{},
		&entity.BOMItem{},
		&entity.Supplier{},
		&entity.Part{},
		&entity.SupplierPart{},
		&entity.PurchaseOrder{},
		&entity.POItem{},
		&entity.ApprovalRequest{},
		&entity.ProcessingTask{},
	); err != nil {
		zapLogger.Warn("AutoMigrate warning", zap.Error(err))
	}

	// 部分索引无法用 gorm 标签表达
	migrationSQL := []string{
		"CREATE INDEX IF NOT EXISTS idx_bom_items_bom_status ON bom_items(bom_id, status)",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_pos_bom_supplier ON purchase_orders(bom_id, supplier_id) WHERE bom_id IS NOT NULL AND status NOT IN ('cancelled')",
		"CREATE INDEX IF NOT EXISTS idx_tasks_bom_status ON processing_tasks(bom_id, status)",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_tasks_one_active ON processing_tasks(bom_id) WHERE status IN ('queued', 'running')",
		"CREATE INDEX IF NOT EXISTS idx_approvals_entity ON approval_requests(entity_type, entity_id)",
	}
	for _, sql := range migrationSQL {
		if err := db.Exec(sql).Error; err != nil {
			zapLogger.Warn("Migration SQL warning", zap.String("sql", sql), zap.Error(err))
		}
	}

	// 初始化 Redis
	rdb := initRedis(cfg.Redis)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		zapLogger.Warn("Redis unavailable, distributed lock and status cache disabled", zap.Error(err))
		rdb = nil
	}

	// 初始化仓储、服务、处理器
	repos := repository.NewRepositories(db)
	services := service.NewServices(repos, db, rdb, cfg, zapLogger)
	handlers := handler.NewHandlers(services)

	// 初始化 Gin
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(zapLogger))
	router.Use(middleware.CORS())
	router.Use(middleware.RequestID())
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	registerRoutes(router, handlers, cfg)

	// 启动服务器
	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:     router,
		ReadTimeout: cfg.Server.ReadTimeout,
		// SSE 长连接需要禁用写超时
		WriteTimeout: 0,
	}

	go func() {
		zapLogger.Info("Server listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("Server exited")
}

func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config

	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch cfg.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}

	return zapCfg.Build()
}

func initDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	gormConfig := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	}

	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return db, nil
}

func initRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func registerRoutes(r *gin.Engine, h *handler.Handlers, cfg *config.Config) {
	// 健康检查
	r.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/health/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// 版本信息
	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    Version,
			"build_time": BuildTime,
		})
	})

	// API v1
	v1 := r.Group("/api/v1")
	{
		// SSE 实时推送（需要认证，支持 query param token）
		sseGroup := v1.Group("/sse")
		sseGroup.Use(middleware.JWTAuth(cfg.JWT.Secret))
		{
			sseGroup.GET("/events", h.SSE.Stream)
		}

		// 需要认证的接口
		authorized := v1.Group("")
		authorized.Use(middleware.JWTAuth(cfg.JWT.Secret))
		{
			// BOM 管理与流水线
			boms := authorized.Group("/boms")
			{
				boms.POST("/upload", h.BOM.Upload)
				boms.GET("", h.BOM.List)
				boms.GET("/:id", h.BOM.Get)
				boms.DELETE("/:id", h.BOM.Delete)
				boms.GET("/:id/status", h.BOM.GetStatus)
				boms.GET("/:id/items", h.BOM.ListItems)
				boms.POST("/:id/process", h.BOM.Process)
				boms.GET("/:id/tasks", h.BOM.ListTasks)
				boms.GET("/:id/review-queue", h.Review.Queue)
				boms.POST("/:id/generate-pos", h.PO.Generate)
			}

			// BOM 行项
			bomItems := authorized.Group("/bom-items")
			{
				bomItems.PUT("/:id", h.BOM.UpdateItem)
				bomItems.POST("/:id/resolve", h.Review.Resolve)
			}

			// 处理任务
			tasks := authorized.Group("/tasks")
			{
				tasks.GET("/:id", h.Task.Get)
				tasks.POST("/:id/cancel", h.Task.Cancel)
			}

			// 采购订单
			pos := authorized.Group("/purchase-orders")
			{
				pos.GET("", h.PO.List)
				pos.POST("", h.PO.Create)
				pos.GET("/:id", h.PO.Get)
				pos.DELETE("/:id", h.PO.Delete)
				pos.POST("/:id/submit", h.PO.Submit)
				// 审批与发出是最终生效的流转，限定采购审批角色/权限
				pos.POST("/:id/approve", middleware.RequireRole("po_approver"), h.PO.Approve)
				pos.POST("/:id/send", middleware.RequirePermission("po:send"), h.PO.Send)
				pos.POST("/:id/acknowledge", h.PO.Acknowledge)
				pos.POST("/:id/ship", h.PO.Ship)
				pos.POST("/:id/receive", h.PO.Receive)
				pos.POST("/:id/cancel", h.PO.Cancel)
			}

			// 供应商目录
			suppliers := authorized.Group("/suppliers")
			{
				suppliers.GET("", h.Supplier.List)
				suppliers.POST("", h.Supplier.Create)
				suppliers.GET("/:id", h.Supplier.Get)
				suppliers.PUT("/:id", h.Supplier.Update)
			}
			authorized.POST("/parts", h.Supplier.CreatePart)
			authorized.POST("/supplier-parts", h.Supplier.CreateSupplierPart)

			// 审批记录
			approvals := authorized.Group("/approvals")
			{
				approvals.GET("", h.Approval.List)
				approvals.GET("/:id", h.Approval.Get)
			}
		}
	}
}
