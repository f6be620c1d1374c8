package main

// @title LicenseGate API
// @version 1.0.0
// @description 软件授权密钥生命周期管理服务 API 文档
// @contact.name API Support
// @contact.email support@example.com
// @BasePath /
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description 使用格式：Bearer {token}
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
// @description 经销商 API 密钥

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"licensegate/backend/internal/auth"
	"licensegate/backend/internal/config"
	"licensegate/backend/internal/domain"
	"licensegate/backend/internal/health"
	"licensegate/backend/internal/logger"
	"licensegate/backend/internal/monitoring"
	"licensegate/backend/internal/pool"
	"licensegate/backend/internal/service"
	"licensegate/backend/internal/storage"
	"licensegate/backend/internal/storage/hybrid"
	"licensegate/backend/internal/storage/memory"
	"licensegate/backend/internal/storage/postgres"
	httptransport "licensegate/backend/internal/transport/http"
	"licensegate/backend/internal/websocket"

	_ "licensegate/backend/docs" // Swagger docs
)

const version = "1.0.0"

// main 启动授权服务的 HTTP API 与全部后台任务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 设置 Gin 模式（基于开发环境标志）
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// 初始化日志系统
	log, err := logger.New(&cfg.Log)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	log.Info("starting licensegate server",
		zap.String("version", version),
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)

	// 初始化存储层。混合存储同时充当事件的 Redis 发布端。
	var (
		store      storage.Store
		eventSinks []service.EventSink
	)
	if cfg.Database.Type != "" && cfg.Database.DSN != "" {
		hybridStore, err := hybrid.NewStoreWithType(
			cfg.Database.Type,
			cfg.Database.DSN,
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
		)
		if err != nil {
			panic(fmt.Sprintf("failed to initialize hybrid storage: %v", err))
		}
		store = hybridStore
		eventSinks = append(eventSinks, hybridStore)
		log.Info("using hybrid storage",
			zap.String("type", cfg.Database.Type),
			zap.String("redis_address", cfg.Redis.Address),
		)
	} else {
		store = memory.NewStore()
		log.Info("using memory storage (development mode)")
	}
	defer store.Close()

	// 存活/就绪探针
	probes := health.NewChecker(store, log)

	// PostgreSQL 下额外建一个 pgx 连接池，就绪探针直接探池
	var pgClient *postgres.Client
	if cfg.Database.Type == "postgres" && cfg.Database.DSN != "" {
		pgClient, err = postgres.New(&cfg.Database, log)
		if err != nil {
			log.Warn("pgx pool unavailable, readiness probe falls back to store ping", zap.Error(err))
		} else {
			probes.AddDatabasePool(pgClient)
			defer pgClient.Close()
		}
	}

	// 初始化认证
	jwtManager := auth.NewJWTManager(&cfg.JWT)
	authService := auth.NewAuthService(store, jwtManager)

	log.Info("JWT configuration",
		zap.String("issuer", cfg.JWT.Issuer),
		zap.Duration("access_expiry", cfg.JWT.AccessExpiry),
		zap.Duration("refresh_expiry", cfg.JWT.RefreshExpiry),
	)

	// 事件分发：协程池异步投递到 WebSocket 与 Redis
	workerPool := pool.NewWorkerPool(4, 256, log)
	wsHub := websocket.NewHub(cfg.CORS.AllowedOrigins, jwtManager, log)
	eventSinks = append(eventSinks, wsHub)
	events := service.NewEvents(workerPool, log, eventSinks...)

	// 初始化服务层
	planService := service.NewPlanService(store)
	licenseService := service.NewLicenseService(store, planService, events, log)
	resellerService := service.NewResellerService(store, planService, events, log, cfg.License.ResellerDefaultQuota)
	adminService := service.NewAdminService(store, licenseService, log)

	// 初始化监控系统
	metrics := monitoring.NewMetrics()

	envName := "production"
	if cfg.Log.Development {
		envName = "development"
	}
	healthChecker := monitoring.NewHealthChecker(store, log, version, envName)

	alertManager := monitoring.NewAlertManager(log)
	alertManager.AddReceiver(monitoring.NewLogAlertReceiver(log))
	alertManager.AddRule(monitoring.HighMemoryUsageRule(512.0)) // 512MB
	alertManager.AddRule(monitoring.StorageHealthRule(store))
	alertManager.AddRule(monitoring.ResellerQuotaRule(store, 0.1))

	log.Info("monitoring system initialized")

	// 创建默认管理员用户（仅用于开发测试）
	if cfg.Log.Development {
		createDefaultAdmin(store, log)
	}

	// 创建 HTTP 服务器
	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:          cfg,
		AuthService:     authService,
		JWTManager:      jwtManager,
		LicenseService:  licenseService,
		PlanService:     planService,
		ResellerService: resellerService,
		AdminService:    adminService,
		AlertManager:    alertManager,
		HealthChecker:   healthChecker,
		Probes:          probes,
		Metrics:         metrics,
		WebSocketHub:    wsHub,
		Store:           store,
		Logger:          log,
	})

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// 信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	// 事件协程池
	workerPool.Start(groupCtx)
	defer workerPool.Stop()

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// WebSocket Hub goroutine
	group.Go(func() error {
		log.Info("starting WebSocket hub")
		wsHub.Run(groupCtx)
		return nil
	})

	// 过期密钥扫描 goroutine
	group.Go(func() error {
		adminService.StartExpirySweeper(groupCtx, cfg.License.SweepInterval)
		return nil
	})

	// 告警巡检 goroutine
	group.Go(func() error {
		alertManager.StartMonitoring(groupCtx, 1*time.Minute)
		return nil
	})

	// 定期健康检查 goroutine
	group.Go(func() error {
		healthChecker.StartPeriodicHealthCheck(groupCtx, 30*time.Second)
		return nil
	})

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}

		log.Info("server stopped")
		return nil
	})

	// 等待所有 goroutine 完成
	if err := group.Wait(); err != nil && err != context.Canceled {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}

// createDefaultAdmin 创建默认管理员用户（仅用于开发测试）
func createDefaultAdmin(store storage.Store, log *zap.Logger) {
	email := "admin@licensegate.local"
	password := "Admin123456!"

	// 检查管理员是否已存在
	if _, err := store.GetUserByEmail(email); err == nil {
		log.Info("default admin already exists, skipping", zap.String("email", email))
		return
	}

	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		log.Error("failed to hash default admin password", zap.Error(err))
		return
	}

	now := time.Now()
	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     "admin",
		PasswordHash: hashedPassword,
		Role:         domain.RoleSuper,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := store.CreateUser(user); err != nil {
		log.Error("failed to create default admin", zap.Error(err))
		return
	}

	log.Warn("default admin user created (development only)",
		zap.String("email", email),
		zap.String("password", password),
		zap.String("role", string(domain.RoleSuper)),
	)
}
