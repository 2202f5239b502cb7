// internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Corphon/DeepDetect/internal/api"
	"github.com/Corphon/DeepDetect/internal/auth"
	"github.com/Corphon/DeepDetect/internal/config"
	"github.com/Corphon/DeepDetect/internal/di"
	"github.com/Corphon/DeepDetect/internal/services"
	"github.com/Corphon/DeepDetect/internal/storage"
	"github.com/Corphon/DeepDetect/internal/utils"
	"github.com/gin-gonic/gin"
)

const (
	shutdownTimeout   = 30 * time.Second
	readHeaderTimeout = 10 * time.Second
	cachePingTimeout  = 3 * time.Second
)

// App 持有进程级的资源，负责启动和优雅关闭
type App struct {
	config    *config.AppConfig
	container *di.Container
	database  *storage.Database
	cache     storage.HistoryCache
	hub       *api.ScanHub
	limiter   *api.RateLimiter
	server    *http.Server
	addr      net.Addr

	stopChan chan os.Signal
	ctx      context.Context
	cancel   context.CancelFunc

	mu          sync.Mutex
	cleanupOnce sync.Once
}

var (
	instance   *App
	instanceMu sync.Mutex
)

// GetApp 返回全局应用实例
func GetApp() *App {
	instanceMu.Lock()
	defer instanceMu.Unlock()

	if instance == nil {
		instance = &App{
			container: di.GetContainer(),
			stopChan:  make(chan os.Signal, 1),
		}
	}
	return instance
}

// InitServices 使用当前配置初始化全局应用的所有服务
func InitServices() error {
	return GetApp().Initialize(config.GetCurrentConfig())
}

// Initialize 按依赖顺序创建服务并注册到容器
func (a *App) Initialize(cfg *config.AppConfig) error {
	if cfg == nil {
		return errors.New("配置不能为空")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := utils.InitLogger(cfg.LogDir, cfg.LogLevel, cfg.DebugMode); err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	logger := utils.GetLogger()

	if cfg.DebugMode {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	a.config = cfg
	a.ctx, a.cancel = context.WithCancel(context.Background())
	metrics := utils.GetMetricsCollector()

	// 1. 存储：连接失败只会进入离线模式
	a.database = storage.Open(a.ctx, cfg.DatabaseDSN, cfg.DebugMode)
	go a.database.Monitor(a.ctx, storage.DefaultMonitorInterval)

	// 2. 历史缓存
	cache, err := storage.NewHistoryCache(cfg.RedisURL, storage.DefaultHistoryTTL)
	if err != nil {
		logger.Warn("历史缓存初始化失败，使用进程内缓存", map[string]interface{}{"error": err.Error()})
		cache, _ = storage.NewHistoryCache("", storage.DefaultHistoryTTL)
	}
	if pinger, ok := cache.(interface{ Ping(context.Context) error }); ok {
		ctx, cancel := context.WithTimeout(a.ctx, cachePingTimeout)
		if err := pinger.Ping(ctx); err != nil {
			logger.Warn("Redis 暂不可用，历史查询将直接读取数据库", map[string]interface{}{"error": err.Error()})
		}
		cancel()
	}
	a.cache = cache

	// 3. 分类网关
	llmService := services.NewLLMService(cfg)
	gateway := services.NewClassificationGateway(llmService, metrics)

	// 4. 扫描服务
	scanStore := storage.NewScanStore(a.database)
	scanService := services.NewScanService(
		gateway,
		services.NewSimulator(nil),
		services.NewPersistenceAdapter(a.database.State(), scanStore),
		services.NewHistoryQuery(a.database.State(), scanStore, cache),
		metrics,
	)

	// 5. 账户与令牌
	tokenConfig, generated, err := auth.NewTokenConfig(cfg.AuthSecret, auth.DefaultExpiration)
	if err != nil {
		return fmt.Errorf("初始化令牌配置失败: %w", err)
	}
	if generated {
		logger.Warn("未设置 AUTH_SECRET_KEY，已生成临时密钥，重启后已签发的令牌将失效", nil)
	}
	tokens := auth.NewIssuer(tokenConfig)
	userService := services.NewUserService(a.database.State(), storage.NewAccountStore(a.database), tokens)

	// 6. 实时推送
	a.hub = api.NewScanHub(metrics)
	go a.hub.Run(a.ctx)
	scanService.SetEventPublisher(a.hub)

	// 7. 限流
	a.limiter = api.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute)
	a.limiter.StartCleanup(a.ctx)

	if a.container == nil {
		a.container = di.GetContainer()
	}
	a.container.Register(di.ServiceConfig, cfg)
	a.container.Register(di.ServiceMetrics, metrics)
	a.container.Register(di.ServiceDatabase, a.database)
	a.container.Register(di.ServiceHistory, cache)
	a.container.Register(di.ServiceLLM, llmService)
	a.container.Register(di.ServiceGateway, gateway)
	a.container.Register(di.ServiceScan, scanService)
	a.container.Register(di.ServiceTokens, tokens)
	a.container.Register(di.ServiceUser, userService)
	a.container.Register(di.ServiceScanHub, a.hub)
	a.container.Register(di.ServiceRateLimiter, a.limiter)

	logger.Info("服务初始化完成", map[string]interface{}{
		"storage":       a.database.State().String(),
		"storage_drv":   a.database.Driver(),
		"llm_provider":  llmService.GetProviderName(),
		"llm_ready":     llmService.IsReady(),
		"history_cache": cache.Name(),
		"services":      len(a.container.GetNames()),
	})
	return nil
}

// Run 启动HTTP服务并阻塞，直到收到 SIGINT/SIGTERM。SIGHUP 触发存储重连。
func (a *App) Run() error {
	if a.config == nil {
		return errors.New("应用尚未初始化")
	}

	router, err := api.SetupRouter(a.container)
	if err != nil {
		return fmt.Errorf("设置路由失败: %w", err)
	}

	listener, err := net.Listen("tcp", ":"+a.config.Port)
	if err != nil {
		return fmt.Errorf("监听端口 %s 失败: %w", a.config.Port, err)
	}

	a.mu.Lock()
	a.addr = listener.Addr()
	a.server = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	server := a.server
	a.mu.Unlock()

	serveErr := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	logger := utils.GetLogger()
	logger.Info("服务器已启动", map[string]interface{}{"addr": listener.Addr().String()})

	signal.Notify(a.stopChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		select {
		case err := <-serveErr:
			a.Cleanup()
			return fmt.Errorf("服务器异常退出: %w", err)

		case sig := <-a.stopChan:
			if sig == syscall.SIGHUP {
				a.reconnectStorage()
				continue
			}
			logger.Info("收到退出信号，正在关闭服务器", map[string]interface{}{"signal": sig.String()})
			return a.shutdown(server)
		}
	}
}

// Addr 服务实际监听的地址，Run 之前为 nil
func (a *App) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.addr
}

func (a *App) reconnectStorage() {
	ctx, cancel := context.WithTimeout(a.ctx, storage.DefaultPingTimeout*2)
	defer cancel()

	if err := a.database.Reconnect(ctx); err != nil {
		utils.GetLogger().Warn("SIGHUP 重连存储失败", map[string]interface{}{"error": err.Error()})
		return
	}
	utils.GetLogger().Info("SIGHUP 重连存储成功", map[string]interface{}{
		"storage": a.database.State().String(),
	})
}

func (a *App) shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := server.Shutdown(ctx)
	a.Cleanup()
	if err != nil {
		return fmt.Errorf("服务器强制关闭: %w", err)
	}

	utils.GetLogger().Info("服务器优雅关闭完成", nil)
	return nil
}

// Cleanup 停止后台任务并释放连接，可重复调用
func (a *App) Cleanup() {
	a.cleanupOnce.Do(func() {
		signal.Stop(a.stopChan)

		if a.cancel != nil {
			a.cancel()
		}
		if a.database != nil {
			if err := a.database.Close(); err != nil {
				utils.GetLogger().Warn("关闭数据库失败", map[string]interface{}{"error": err.Error()})
			}
		}
		if closer, ok := a.cache.(io.Closer); ok {
			closer.Close()
		}
	})
}

// GetConfig 返回应用配置
func (a *App) GetConfig() *config.AppConfig {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.config
}

// IsDebugMode 是否处于调试模式
func (a *App) IsDebugMode() bool {
	cfg := a.GetConfig()
	return cfg != nil && cfg.DebugMode
}
