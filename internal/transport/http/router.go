package httptransport

import (
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"licensegate/backend/internal/auth"
	"licensegate/backend/internal/config"
	"licensegate/backend/internal/health"
	"licensegate/backend/internal/middleware"
	"licensegate/backend/internal/monitoring"
	"licensegate/backend/internal/service"
	"licensegate/backend/internal/storage"
	"licensegate/backend/internal/websocket"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config          *config.Config
	AuthService     *auth.AuthService
	JWTManager      *auth.JWTManager
	LicenseService  *service.LicenseService
	PlanService     *service.PlanService
	ResellerService *service.ResellerService
	AdminService    *service.AdminService
	AlertManager    *monitoring.AlertManager
	HealthChecker   *monitoring.HealthChecker
	Probes          *health.Checker
	Metrics         *monitoring.Metrics
	WebSocketHub    *websocket.Hub
	Store           storage.Store
	Logger          *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()

	mm := middleware.NewMonitoringMiddleware(deps.Metrics, deps.Logger)

	// 全局中间件：panic 恢复、请求日志、安全头、指标、请求体上限
	router.Use(mm.PanicRecovery())
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(mm.HTTPMetrics())
	router.Use(middleware.BodySizeLimit(middleware.DefaultBodyLimit))

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins: deps.Config.CORS.AllowedOrigins,
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", "X-API-Key"},
		ExposeHeaders: []string{
			"Content-Length",
			"Retry-After",
		},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	// 如果允许所有来源，则需清空凭证支持。
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	// 创建处理器
	clientHandler := NewClientHandler(deps.LicenseService, deps.Metrics, deps.Logger)
	authHandler := NewAuthHandler(deps.AuthService, deps.Store, deps.Metrics, deps.Config.JWT.AccessExpiry, deps.Logger)
	licenseHandler := NewLicenseHandler(deps.LicenseService, deps.Metrics, deps.Logger)
	resellerHandler := NewResellerHandler(deps.ResellerService, deps.AdminService, deps.Metrics, deps.Logger)
	adminHandler := NewAdminHandler(
		deps.AdminService,
		deps.LicenseService,
		deps.PlanService,
		deps.ResellerService,
		deps.AlertManager,
		deps.HealthChecker,
		deps.Metrics,
		deps.Logger,
	)

	// 创建中间件
	jwtAuth := middleware.NewJWTAuth(deps.JWTManager, deps.Store, deps.Logger)
	adminAuth := middleware.NewAdminAuth(deps.AuthService)
	resellerAuth := middleware.NewResellerAuth(deps.ResellerService, deps.Logger)

	// 心跳走单独的令牌桶，配额来自配置
	heartbeatLimiter := middleware.NewIPRateLimiter(deps.Config.License.HeartbeatPerMinute)

	// Swagger 文档
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Prometheus 指标
	router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))

	// 健康检查与探针
	router.GET("/health", func(c *gin.Context) {
		report := deps.HealthChecker.CheckHealth()
		status := 200
		if report.Status == monitoring.HealthStatusUnhealthy {
			status = 503
		}
		c.JSON(status, report)
	})
	router.GET("/health/live", gin.WrapF(deps.Probes.LiveEndpoint))
	router.GET("/health/ready", gin.WrapF(deps.Probes.ReadyEndpoint))

	// V1 API
	v1 := router.Group("/v1")
	{
		// ========== Client Routes（激活 SDK 的公开端点） ==========
		clientRoutes := v1.Group("/client")
		clientRoutes.Use(middleware.BodySizeLimit(middleware.SmallBodyLimit))
		clientRoutes.Use(middleware.ValidateContentType("application/json"))
		clientRoutes.Use(middleware.DistributedRateLimit(deps.Store, "client", 120, time.Minute, deps.Logger))
		clientRoutes.Use(mm.RateLimitMetrics("client"))
		{
			clientRoutes.POST("/activate", clientHandler.Activate)
			clientRoutes.POST("/heartbeat", heartbeatLimiter.Middleware(), clientHandler.Heartbeat)
			clientRoutes.POST("/deactivate", clientHandler.Deactivate)
			clientRoutes.POST("/check", clientHandler.Check)
		}

		// ========== Auth Routes ==========
		authRoutes := v1.Group("/auth")
		authRoutes.Use(middleware.DistributedRateLimit(deps.Store, "auth", 30, time.Minute, deps.Logger))
		{
			authRoutes.POST("/register", authHandler.Register)
			authRoutes.POST("/login", authHandler.Login)
			authRoutes.POST("/refresh", authHandler.Refresh)
			authRoutes.POST("/logout", jwtAuth.RequireAuth(), authHandler.Logout)
			authRoutes.GET("/me", jwtAuth.RequireAuth(), authHandler.Me)
			authRoutes.PUT("/password", jwtAuth.RequireAuth(), authHandler.ChangePassword)
		}

		// ========== License Routes（用户名下的授权） ==========
		licenseRoutes := v1.Group("/licenses")
		licenseRoutes.Use(jwtAuth.RequireAuth())
		{
			licenseRoutes.POST("/claim", licenseHandler.Claim)
			licenseRoutes.GET("", licenseHandler.List)
		}

		// ========== Reseller Routes（API 密钥认证） ==========
		resellerRoutes := v1.Group("/reseller")
		resellerRoutes.Use(resellerAuth.RequireAPIKey())
		{
			resellerRoutes.POST("/keys", resellerHandler.IssueKey)
			resellerRoutes.GET("/keys", resellerHandler.ListKeys)
			resellerRoutes.GET("/stats", resellerHandler.Stats)
		}

		// ========== Admin Routes ==========
		adminRoutes := v1.Group("/admin")
		adminRoutes.Use(jwtAuth.RequireAuth())
		adminRoutes.Use(adminAuth.RequireAdmin())
		adminRoutes.Use(mm.SystemMetrics(time.Now()))
		{
			// 套餐管理
			adminRoutes.POST("/plans", adminHandler.CreatePlan)
			adminRoutes.GET("/plans", adminHandler.ListPlans)
			adminRoutes.PATCH("/plans/:id/active", adminHandler.SetPlanActive)

			// 密钥管理
			adminRoutes.POST("/keys", adminHandler.IssueKeys)
			adminRoutes.GET("/keys", adminHandler.ListKeys)
			adminRoutes.GET("/keys/:id", adminHandler.GetKey)
			adminRoutes.POST("/keys/:id/revoke", adminHandler.RevokeKey)
			adminRoutes.POST("/keys/:id/reissue", adminHandler.ReissueKey)

			// 经销商管理
			adminRoutes.POST("/resellers", adminHandler.CreateReseller)
			adminRoutes.GET("/resellers", adminHandler.ListResellers)
			adminRoutes.GET("/resellers/:id", adminHandler.GetReseller)
			adminRoutes.GET("/resellers/:id/keys", adminHandler.GetResellerKeys)
			adminRoutes.POST("/resellers/:id/approve", adminHandler.ApproveReseller)
			adminRoutes.POST("/resellers/:id/suspend", adminHandler.SuspendReseller)
			adminRoutes.PUT("/resellers/:id/quota", adminHandler.SetResellerQuota)

			// 系统运维
			adminRoutes.GET("/statistics", adminHandler.GetStatistics)
			adminRoutes.GET("/alerts", adminHandler.GetAlerts)
			adminRoutes.GET("/health", adminHandler.GetHealthReport)
		}

		// ========== WebSocket 事件流（连接内部自带管理员认证） ==========
		if deps.WebSocketHub != nil {
			v1.GET("/admin/ws", websocket.HandleWebSocket(deps.WebSocketHub))
		}
	}

	return router
}
