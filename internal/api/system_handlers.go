// internal/api/system_handlers.go
package api

import (
	"net/http"
	"time"

	"github.com/Corphon/DeepDetect/internal/errors"
	"github.com/Corphon/DeepDetect/internal/utils"
	"github.com/gin-gonic/gin"
)

// Index GET /
func (h *Handler) Index(c *gin.Context) {
	c.String(http.StatusOK, "DeepDetect AI API is running...")
}

// NotFound 未注册的路径统一返回错误信封
func (h *Handler) NotFound(c *gin.Context) {
	h.response.AppError(c, errors.NewNotFoundError("Endpoint not found", nil))
}

// GetHealth GET /api/health
func (h *Handler) GetHealth(c *gin.Context) {
	storageState, driver := "offline", ""
	if h.database != nil {
		storageState = h.database.State().String()
		driver = h.database.Driver()
	}

	gatewayAvailable := h.gateway != nil && h.gateway.Available()

	h.response.Success(c, gin.H{
		"status":            "ok",
		"storage":           storageState,
		"storage_driver":    driver,
		"gateway_available": gatewayAvailable,
		"llm_provider":      h.llmService.GetProviderName(),
		"history_cache":     h.cacheName,
		"websocket":         h.hub.GetStatus(),
		"time":              time.Now().UTC(),
	})
}

// GetLLMStatus GET /api/llm/status
func (h *Handler) GetLLMStatus(c *gin.Context) {
	h.response.Success(c, h.llmService.Status())
}

// GetMetrics GET /api/metrics
func (h *Handler) GetMetrics(c *gin.Context) {
	h.response.Success(c, h.metrics.GetMetrics())
}

// ReconnectStorage POST /api/storage/reconnect
func (h *Handler) ReconnectStorage(c *gin.Context) {
	if h.database == nil {
		h.response.Error(c, http.StatusServiceUnavailable, ErrorReconnectFailed, "Storage is not configured")
		return
	}

	userID, _ := GetUserFromContext(c)
	if err := h.database.Reconnect(c.Request.Context()); err != nil {
		utils.GetLogger().Warn("手动重连数据库失败", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
		h.response.Error(c, http.StatusServiceUnavailable, ErrorReconnectFailed, "Storage reconnect failed")
		return
	}

	utils.GetLogger().Info("数据库已手动重连", map[string]interface{}{"user_id": userID})
	h.response.Success(c, gin.H{"storage": h.database.State().String()}, "Storage reconnected")
}
