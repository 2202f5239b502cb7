// internal/services/normalizer.go
package services

import (
	"strings"
	"unicode/utf8"

	"github.com/Corphon/DeepDetect/internal/models"
	"github.com/microcosm-cc/bluemonday"
)

const (
	DefaultTitle    = "Untitled"
	DefaultAuthor   = "Anonymous"
	DefaultLanguage = "English"

	TextSampleName = "Text Sample"
	MediaScanName  = "Media Scan"

	// MaxUserIDLength 与 scan_results.user_id 列宽一致
	MaxUserIDLength = 255
)

// 元数据只保留纯文本
var metadataPolicy = bluemonday.StrictPolicy()

// ScanForm 检测请求的表单字段
type ScanForm struct {
	UserID   string
	FileType string
	Title    string
	Author   string
	Language string
	Text     string
}

// UploadedFile 上传的文件
type UploadedFile struct {
	Name      string
	MediaType string
	Data      []byte
}

// NormalizeScanRequest 将表单与上传内容转换为 ScanRequest。纯函数，不会失败；
// 既没有文件也没有文本的请求同样放行，由后续步骤处理。
func NormalizeScanRequest(form ScanForm, file *UploadedFile) models.ScanRequest {
	hasFile := file != nil && len(file.Data) > 0
	hasText := strings.TrimSpace(form.Text) != ""

	fileType, ok := models.ParseFileType(form.FileType)
	if !ok {
		if hasText && !hasFile {
			fileType = models.FileTypeText
		} else {
			fileType = models.FileTypeUpload
		}
	}

	req := models.ScanRequest{
		UserID:   truncateRunes(strings.TrimSpace(form.UserID), MaxUserIDLength),
		FileType: fileType,
		Title:    cleanMetadata(form.Title, DefaultTitle),
		Author:   cleanMetadata(form.Author, DefaultAuthor),
		Language: cleanMetadata(form.Language, DefaultLanguage),
		Text:     form.Text,
	}

	switch {
	case hasFile && file.Name != "":
		req.FileName = file.Name
	case hasText:
		req.FileName = TextSampleName
	default:
		req.FileName = MediaScanName
	}

	if hasFile {
		req.Payload = &models.Payload{
			Data:      file.Data,
			MediaType: file.MediaType,
			FileName:  file.Name,
		}
	}

	return req
}

func cleanMetadata(value, fallback string) string {
	cleaned := strings.TrimSpace(metadataPolicy.Sanitize(value))
	if cleaned == "" {
		return fallback
	}
	return cleaned
}

// truncateRunes 按字符截断，不会切开多字节字符
func truncateRunes(value string, limit int) string {
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	runes := []rune(value)
	return string(runes[:limit])
}
