// internal/api/auth_handlers.go
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register POST /api/auth/register
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.response.BadRequest(c, ErrorBadRequest, "Invalid request body")
		return
	}

	session, err := h.userService.Register(c.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		h.response.AppError(c, err)
		return
	}

	h.response.Raw(c, http.StatusCreated, session)
}

// Login POST /api/auth/login
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.response.BadRequest(c, ErrorBadRequest, "Invalid request body")
		return
	}

	session, err := h.userService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.response.AppError(c, err)
		return
	}

	h.response.Raw(c, http.StatusOK, session)
}
