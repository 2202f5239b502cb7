// internal/api/response_helpers.go
package api

import (
	stderrors "errors"
	"net/http"
	"strings"
	"time"

	"github.com/Corphon/DeepDetect/internal/errors"
	"github.com/Corphon/DeepDetect/internal/utils"
	"github.com/gin-gonic/gin"
)

// APIResponse 标准响应格式
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
}

// APIError 标准错误格式
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ResponseHelper 响应助手类
type ResponseHelper struct{}

// NewResponseHelper 创建响应助手
func NewResponseHelper() *ResponseHelper {
	return &ResponseHelper{}
}

// Success 成功响应
func (rh *ResponseHelper) Success(c *gin.Context, data interface{}, message ...string) {
	response := &APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: rh.getRequestID(c),
	}

	if len(message) > 0 {
		response.Message = message[0]
	}

	c.JSON(http.StatusOK, response)
}

// Raw 直接输出数据，不包装信封（扫描结果和历史记录的既有格式）
func (rh *ResponseHelper) Raw(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, data)
}

// sanitizeErrorMessage 过滤可能包含敏感信息的错误消息
func sanitizeErrorMessage(message string) string {
	lower := strings.ToLower(message)
	for _, pattern := range []string{"api_key", "apikey", "secret", "password=", "token="} {
		if strings.Contains(lower, pattern) {
			return "An internal error occurred"
		}
	}
	return message
}

// Error 错误响应
func (rh *ResponseHelper) Error(c *gin.Context, statusCode int, errorCode, message string, details ...string) {
	apiError := &APIError{
		Code:    errorCode,
		Message: sanitizeErrorMessage(message),
	}

	if len(details) > 0 {
		apiError.Details = sanitizeErrorMessage(details[0])
	}

	c.JSON(statusCode, &APIResponse{
		Success:   false,
		Error:     apiError,
		Timestamp: time.Now(),
		RequestID: rh.getRequestID(c),
	})
}

// BadRequest 400错误响应
func (rh *ResponseHelper) BadRequest(c *gin.Context, code, message string, details ...string) {
	rh.Error(c, http.StatusBadRequest, code, message, details...)
}

// Unauthorized 401错误响应
func (rh *ResponseHelper) Unauthorized(c *gin.Context, code, message string) {
	rh.Error(c, http.StatusUnauthorized, code, message)
}

// InternalError 500错误响应
func (rh *ResponseHelper) InternalError(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusInternalServerError, ErrorInternalError, message, details...)
}

// AppError 按错误类型映射HTTP状态码。原始错误只写日志，不返回给客户端。
func (rh *ResponseHelper) AppError(c *gin.Context, err error) {
	status := statusForError(err)

	code, message := ErrorInternalError, "Server error"
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		code, message = appErr.Code, appErr.Message
	}

	fields := map[string]interface{}{
		"request_id": rh.getRequestID(c),
		"path":       c.FullPath(),
		"status":     status,
		"error":      err.Error(),
	}
	if status >= http.StatusInternalServerError {
		utils.GetLogger().Error("请求处理失败", fields)
	} else {
		utils.GetLogger().Debug("请求被拒绝", fields)
	}

	rh.Error(c, status, code, message)
}

func statusForError(err error) int {
	switch errors.TypeOf(err) {
	case errors.ErrorTypeValidation:
		return http.StatusBadRequest
	case errors.ErrorTypeUnauthorized:
		return http.StatusUnauthorized
	case errors.ErrorTypeForbidden:
		return http.StatusForbidden
	case errors.ErrorTypeNotFound:
		return http.StatusNotFound
	case errors.ErrorTypeConflict:
		return http.StatusConflict
	case errors.ErrorTypeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// getRequestID 获取请求ID
func (rh *ResponseHelper) getRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}
