// internal/llm/providers/google/google.go
package google

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Corphon/DeepDetect/internal/llm"
	"github.com/tidwall/gjson"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "gemini-1.5-flash"
)

func init() {
	llm.Register("google", func() llm.Provider {
		return &Provider{
			models: []string{
				"gemini-1.5-flash",
				"gemini-1.5-pro",
				"gemini-2.0-flash",
				"gemini-2.5-flash",
			},
			baseURL: defaultBaseURL,
		}
	})
}

type Provider struct {
	apiKey       string
	baseURL      string
	client       *http.Client
	defaultModel string
	models       []string
}

func (p *Provider) Initialize(config map[string]string) error {
	apiKey := config["api_key"]
	if apiKey == "" {
		return fmt.Errorf("google: %w", llm.ErrMissingAPIKey)
	}

	p.apiKey = apiKey
	// 不设置超时，由调用方的 context 决定
	p.client = &http.Client{}

	p.defaultModel = defaultModel
	if model := config["default_model"]; model != "" {
		p.defaultModel = model
	}

	if baseURL := config["base_url"]; baseURL != "" {
		p.baseURL = strings.TrimRight(baseURL, "/")
	}
	if p.baseURL == "" {
		p.baseURL = defaultBaseURL
	}

	return nil
}

func (p *Provider) GetName() string {
	return "google gemini"
}

func (p *Provider) GetSupportedModels() []string {
	return p.models
}

func (p *Provider) DefaultModel() string {
	if p.defaultModel == "" {
		return defaultModel
	}
	return p.defaultModel
}

// 构建 generateContent 请求体，附件以 inlineData 形式发送
func (p *Provider) buildRequestBody(req llm.CompletionRequest) map[string]interface{} {
	parts := []map[string]interface{}{
		{"text": req.Prompt},
	}
	for _, att := range req.Attachments {
		parts = append(parts, map[string]interface{}{
			"inlineData": map[string]string{
				"mimeType": att.MediaType,
				"data":     base64.StdEncoding.EncodeToString(att.Data),
			},
		})
	}

	generationConfig := map[string]interface{}{
		"temperature": req.Temperature,
	}
	if req.MaxTokens > 0 {
		generationConfig["maxOutputTokens"] = req.MaxTokens
	}
	if req.JSONOutput {
		generationConfig["responseMimeType"] = "application/json"
	}

	body := map[string]interface{}{
		"contents": []map[string]interface{}{
			{"role": "user", "parts": parts},
		},
		"generationConfig": generationConfig,
	}

	if req.SystemPrompt != "" {
		body["systemInstruction"] = map[string]interface{}{
			"parts": []map[string]string{{"text": req.SystemPrompt}},
		}
	}
	return body
}

func (p *Provider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.DefaultModel()
	}

	jsonData, err := json.Marshal(p.buildRequestBody(req))
	if err != nil {
		return nil, err
	}

	// Gemini API 的 URL 结构: models/{model}:generateContent
	// 密钥放在请求头中，避免出现在 *url.Error 等错误信息里
	apiURL := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, model)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Goog-Api-Key", p.apiKey)

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		message := gjson.GetBytes(body, "error.message").String()
		if message == "" {
			message = string(body)
		}
		return nil, &llm.APIError{Provider: p.GetName(), StatusCode: httpResp.StatusCode, Message: message}
	}

	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("google gemini 响应不是有效的JSON")
	}

	// 拼接第一个候选的所有文本片段
	var text strings.Builder
	for _, part := range gjson.GetBytes(body, "candidates.0.content.parts.#.text").Array() {
		text.WriteString(part.String())
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("google gemini: %w", llm.ErrEmptyResponse)
	}

	usage := gjson.GetBytes(body, "usageMetadata")
	return &llm.CompletionResponse{
		Text:         text.String(),
		FinishReason: gjson.GetBytes(body, "candidates.0.finishReason").String(),
		TokensUsed:   int(usage.Get("totalTokenCount").Int()),
		PromptTokens: int(usage.Get("promptTokenCount").Int()),
		OutputTokens: int(usage.Get("candidatesTokenCount").Int()),
		ModelName:    model,
		ProviderName: p.GetName(),
	}, nil
}
