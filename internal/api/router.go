// internal/api/router.go
package api

import (
	"time"

	"github.com/Corphon/DeepDetect/internal/auth"
	"github.com/Corphon/DeepDetect/internal/config"
	"github.com/Corphon/DeepDetect/internal/di"
	"github.com/Corphon/DeepDetect/internal/services"
	"github.com/Corphon/DeepDetect/internal/storage"
	"github.com/Corphon/DeepDetect/internal/utils"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RouterConfig 路由相关配置
type RouterConfig struct {
	CORSOrigins []string
}

// SetupRouter 从依赖注入容器取出服务并配置HTTP路由
func SetupRouter(container *di.Container) (*gin.Engine, error) {
	cfg, err := di.Resolve[*config.AppConfig](container, di.ServiceConfig)
	if err != nil {
		return nil, err
	}
	scanService, err := di.Resolve[*services.ScanService](container, di.ServiceScan)
	if err != nil {
		return nil, err
	}
	userService, err := di.Resolve[*services.UserService](container, di.ServiceUser)
	if err != nil {
		return nil, err
	}
	tokens, err := di.Resolve[*auth.Issuer](container, di.ServiceTokens)
	if err != nil {
		return nil, err
	}
	llmService, err := di.Resolve[*services.LLMService](container, di.ServiceLLM)
	if err != nil {
		return nil, err
	}
	gateway, err := di.Resolve[*services.ClassificationGateway](container, di.ServiceGateway)
	if err != nil {
		return nil, err
	}
	database, err := di.Resolve[*storage.Database](container, di.ServiceDatabase)
	if err != nil {
		return nil, err
	}
	metrics, err := di.Resolve[*utils.MetricsCollector](container, di.ServiceMetrics)
	if err != nil {
		return nil, err
	}
	hub, err := di.Resolve[*ScanHub](container, di.ServiceScanHub)
	if err != nil {
		return nil, err
	}

	// 可选服务
	limiter, _ := container.Get(di.ServiceRateLimiter).(*RateLimiter)
	cacheName := ""
	if cache, ok := container.Get(di.ServiceHistory).(storage.HistoryCache); ok {
		cacheName = cache.Name()
	}

	handler := NewHandler(HandlerConfig{
		ScanService:    scanService,
		UserService:    userService,
		LLMService:     llmService,
		Gateway:        gateway,
		Database:       database,
		Hub:            hub,
		Metrics:        metrics,
		CacheName:      cacheName,
		MaxUploadBytes: int64(cfg.MaxUploadMB) << 20,
	})

	return NewRouter(handler, tokens, limiter, RouterConfig{CORSOrigins: cfg.CORSOrigins}), nil
}

// NewRouter 注册所有路由
func NewRouter(handler *Handler, tokens TokenParser, limiter *RateLimiter, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(AccessLogMiddleware(handler.metrics))
	r.Use(cors.New(corsConfig(cfg.CORSOrigins)))
	r.Use(AuthMiddleware(tokens))

	r.GET("/", handler.Index)

	// WebSocket 支持
	r.GET("/ws/scans/:userId", RequireSameUser("userId"), handler.ScanWebSocket)

	// ===============================
	// API路由组
	// ===============================
	api := r.Group("/api")
	{
		api.GET("/health", handler.GetHealth)
		api.GET("/llm/status", handler.GetLLMStatus)
		api.GET("/metrics", handler.GetMetrics)

		// 扫描
		scanGroup := api.Group("/scan")
		{
			scanGroup.POST("/detect", RateLimitMiddleware(limiter), handler.DetectScan)
			scanGroup.GET("/history/:userId", RequireSameUser("userId"), handler.GetScanHistory)
		}

		// 账户
		authGroup := api.Group("/auth")
		authGroup.Use(RateLimitMiddleware(limiter))
		{
			authGroup.POST("/register", handler.Register)
			authGroup.POST("/login", handler.Login)
		}

		// 存储管理
		api.POST("/storage/reconnect", RequireAuthentication(), handler.ReconnectStorage)
	}

	r.NoRoute(handler.NotFound)

	return r
}

// corsConfig 未配置来源时允许所有来源（不携带凭据）
func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", requestIDHeader},
		ExposeHeaders: []string{"Content-Length", requestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}
