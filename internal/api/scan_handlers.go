// internal/api/scan_handlers.go
package api

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/Corphon/DeepDetect/internal/services"
	"github.com/Corphon/DeepDetect/internal/utils"
	"github.com/gin-gonic/gin"
)

// detectRequest 检测请求的表单字段，同时支持 multipart 和 JSON
type detectRequest struct {
	UserID   string `form:"userId" json:"userId"`
	FileType string `form:"fileType" json:"fileType"`
	Title    string `form:"title" json:"title"`
	Author   string `form:"author" json:"author"`
	Language string `form:"language" json:"language"`
	Text     string `form:"text" json:"text"`
}

// DetectScan POST /api/scan/detect
func (h *Handler) DetectScan(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)

	var req detectRequest
	if err := c.ShouldBind(&req); err != nil {
		// 空的 JSON 请求体按空表单处理
		if !(c.ContentType() == gin.MIMEJSON && errors.Is(err, io.EOF)) {
			h.rejectBody(c, err)
			return
		}
	}

	file, err := h.readUpload(c)
	if err != nil {
		h.rejectBody(c, err)
		return
	}

	form := services.ScanForm{
		UserID:   req.UserID,
		FileType: req.FileType,
		Title:    req.Title,
		Author:   req.Author,
		Language: req.Language,
		Text:     req.Text,
	}
	// 已认证用户以令牌中的身份为准
	if userID, ok := GetUserFromContext(c); ok {
		form.UserID = userID
	}

	result, err := h.scanService.Detect(c.Request.Context(), services.NormalizeScanRequest(form, file))
	if err != nil {
		h.response.AppError(c, err)
		return
	}

	h.response.Raw(c, http.StatusOK, result)
}

// readUpload 读取可选的 file 字段，没有文件时返回 nil
func (h *Handler) readUpload(c *gin.Context) (*services.UploadedFile, error) {
	if c.ContentType() != gin.MIMEMultipartPOSTForm {
		return nil, nil
	}

	header, err := c.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, err
	}
	return readMultipartFile(header)
}

func readMultipartFile(header *multipart.FileHeader) (*services.UploadedFile, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}

	mediaType := header.Header.Get("Content-Type")
	if mediaType == "" || mediaType == "application/octet-stream" {
		mediaType = http.DetectContentType(data)
	}

	return &services.UploadedFile{
		Name:      header.Filename,
		MediaType: mediaType,
		Data:      data,
	}, nil
}

func (h *Handler) rejectBody(c *gin.Context, err error) {
	utils.GetLogger().Warn("无法解析检测请求", map[string]interface{}{
		"request_id": c.GetString(requestIDKey),
		"error":      err.Error(),
	})

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		h.response.BadRequest(c, ErrorFileTooLarge, "Upload exceeds the size limit")
		return
	}
	h.response.BadRequest(c, ErrorInvalidScanForm, "Invalid scan request body")
}

// GetScanHistory GET /api/scan/history/:userId
func (h *Handler) GetScanHistory(c *gin.Context) {
	history, err := h.scanService.History(c.Request.Context(), c.Param("userId"))
	if err != nil {
		h.response.AppError(c, err)
		return
	}

	h.response.Raw(c, http.StatusOK, history)
}
