// internal/api/auth_middleware.go
package api

import (
	"strings"

	"github.com/Corphon/DeepDetect/internal/auth"
	"github.com/Corphon/DeepDetect/internal/errors"
	"github.com/Corphon/DeepDetect/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	userIDKey            = "user_id"
	userAuthenticatedKey = "user_authenticated"
)

// TokenParser 校验访问令牌
type TokenParser interface {
	ParseToken(tokenString string) (*auth.Token, error)
}

// AuthMiddleware 解析 Bearer 令牌。没有令牌按访客处理，令牌无效直接返回 401。
func AuthMiddleware(tokens TokenParser) gin.HandlerFunc {
	response := NewResponseHelper()
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		// 浏览器的 WebSocket 握手无法设置请求头，允许通过查询参数传递令牌
		if header == "" && websocket.IsWebSocketUpgrade(c.Request) && c.Query("token") != "" {
			header = "Bearer " + c.Query("token")
		}
		if header == "" || tokens == nil {
			c.Set(userAuthenticatedKey, false)
			c.Next()
			return
		}

		if !strings.HasPrefix(header, "Bearer ") {
			response.Unauthorized(c, ErrorInvalidToken, "Invalid authorization header")
			c.Abort()
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		parsed, err := tokens.ParseToken(token)
		if err != nil {
			utils.GetLogger().Debug("令牌校验失败", map[string]interface{}{
				"request_id": c.GetString(requestIDKey),
				"error":      err.Error(),
			})
			response.Unauthorized(c, ErrorInvalidToken, "Invalid or expired token")
			c.Abort()
			return
		}

		c.Set(userIDKey, parsed.UserID)
		c.Set(userAuthenticatedKey, true)
		c.Next()
	}
}

// GetUserFromContext 返回已认证的用户ID
func GetUserFromContext(c *gin.Context) (string, bool) {
	userID := c.GetString(userIDKey)
	if userID == "" {
		return "", false
	}
	return userID, c.GetBool(userAuthenticatedKey)
}

// RequireAuthentication 仅允许持有有效令牌的请求
func RequireAuthentication() gin.HandlerFunc {
	response := NewResponseHelper()
	return func(c *gin.Context) {
		if _, ok := GetUserFromContext(c); !ok {
			response.Unauthorized(c, ErrorAuthRequired, "Authentication required")
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireSameUser 已认证用户只能访问自己的数据，访客不受限制
func RequireSameUser(param string) gin.HandlerFunc {
	response := NewResponseHelper()
	return func(c *gin.Context) {
		authUserID, ok := GetUserFromContext(c)
		if ok && c.Param(param) != authUserID {
			response.AppError(c, errors.NewForbiddenError("Access denied: Cannot access other users' data", nil))
			c.Abort()
			return
		}
		c.Next()
	}
}
