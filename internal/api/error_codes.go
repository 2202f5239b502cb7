// internal/api/error_codes.go
package api

// API错误代码常量，业务错误的代码来自 errors.AppError.Code
const (
	// 通用错误
	ErrorBadRequest    = "BAD_REQUEST"
	ErrorInternalError = "INTERNAL_ERROR"
	ErrorRateLimited   = "RATE_LIMIT_EXCEEDED"

	// 扫描相关错误
	ErrorInvalidScanForm = "INVALID_SCAN_FORM"
	ErrorFileTooLarge    = "FILE_TOO_LARGE"
	ErrorFileUnreadable  = "FILE_UNREADABLE"

	// 存储相关错误
	ErrorReconnectFailed = "RECONNECT_FAILED"

	// 认证相关错误
	ErrorInvalidToken = "INVALID_TOKEN"
	ErrorAuthRequired = "AUTH_REQUIRED"
)
