// internal/api/handlers.go
package api

import (
	"github.com/Corphon/DeepDetect/internal/services"
	"github.com/Corphon/DeepDetect/internal/storage"
	"github.com/Corphon/DeepDetect/internal/utils"
)

// HandlerConfig 处理器依赖
type HandlerConfig struct {
	ScanService *services.ScanService
	UserService *services.UserService
	LLMService  *services.LLMService
	Gateway     *services.ClassificationGateway
	Database    *storage.Database
	Hub         *ScanHub
	Metrics     *utils.MetricsCollector
	CacheName   string

	// 上传请求体上限（字节）
	MaxUploadBytes int64
}

// Handler 处理API请求
type Handler struct {
	scanService *services.ScanService
	userService *services.UserService
	llmService  *services.LLMService
	gateway     *services.ClassificationGateway
	database    *storage.Database
	hub         *ScanHub
	metrics     *utils.MetricsCollector
	cacheName   string

	maxUploadBytes int64
	response       *ResponseHelper
}

const defaultMaxUploadBytes = 20 << 20

// NewHandler 创建API处理器
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Metrics == nil {
		cfg.Metrics = utils.GetMetricsCollector()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if cfg.Hub == nil {
		cfg.Hub = NewScanHub(cfg.Metrics)
	}
	if cfg.LLMService == nil {
		cfg.LLMService = services.NewEmptyLLMService()
	}

	return &Handler{
		scanService:    cfg.ScanService,
		userService:    cfg.UserService,
		llmService:     cfg.LLMService,
		gateway:        cfg.Gateway,
		database:       cfg.Database,
		hub:            cfg.Hub,
		metrics:        cfg.Metrics,
		cacheName:      cfg.CacheName,
		maxUploadBytes: cfg.MaxUploadBytes,
		response:       NewResponseHelper(),
	}
}

// Hub 返回扫描事件中心
func (h *Handler) Hub() *ScanHub {
	return h.hub
}
