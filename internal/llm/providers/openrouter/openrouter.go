// internal/llm/providers/openrouter/openrouter.go
package openrouter

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
	defaultBaseURL = "https://openrouter.ai/api/v1"
	defaultModel   = "google/gemini-2.0-flash-001"
	defaultAppName = "DeepDetect"
)

func init() {
	llm.Register("openrouter", func() llm.Provider {
		return &Provider{
			models: []string{
				"google/gemini-2.0-flash-001",
				"anthropic/claude-3.5-sonnet",
				"openai/gpt-4o-mini",
				"qwen/qwen-2.5-vl-72b-instruct",
			},
			baseURL: defaultBaseURL,
		}
	})
}

// Provider OpenAI 兼容的 chat/completions 接口，base_url 可指向其他兼容服务
type Provider struct {
	apiKey       string
	baseURL      string
	client       *http.Client
	defaultModel string
	models       []string
	httpReferer  string
	appName      string
}

func (p *Provider) Initialize(config map[string]string) error {
	apiKey := config["api_key"]
	if apiKey == "" {
		return fmt.Errorf("openrouter: %w", llm.ErrMissingAPIKey)
	}

	p.apiKey = apiKey
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

	p.appName = defaultAppName
	if appName := config["app_name"]; appName != "" {
		p.appName = appName
	}
	p.httpReferer = config["http_referer"]

	return nil
}

func (p *Provider) GetName() string {
	return "OpenRouter"
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

// 图片附件以 data URL 的 image_url 片段发送
func (p *Provider) buildRequestBody(model string, req llm.CompletionRequest) map[string]interface{} {
	var content interface{} = req.Prompt
	if len(req.Attachments) > 0 {
		parts := []map[string]interface{}{
			{"type": "text", "text": req.Prompt},
		}
		for _, att := range req.Attachments {
			parts = append(parts, map[string]interface{}{
				"type": "image_url",
				"image_url": map[string]string{
					"url": fmt.Sprintf("data:%s;base64,%s", att.MediaType, base64.StdEncoding.EncodeToString(att.Data)),
				},
			})
		}
		content = parts
	}

	messages := []map[string]interface{}{}
	if req.SystemPrompt != "" {
		messages = append(messages, map[string]interface{}{"role": "system", "content": req.SystemPrompt})
	}
	messages = append(messages, map[string]interface{}{"role": "user", "content": content})

	body := map[string]interface{}{
		"model":       model,
		"messages":    messages,
		"temperature": req.Temperature,
	}
	if req.MaxTokens > 0 {
		body["max_tokens"] = req.MaxTokens
	}
	if req.JSONOutput {
		body["response_format"] = map[string]string{"type": "json_object"}
	}
	return body
}

func (p *Provider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.DefaultModel()
	}

	jsonData, err := json.Marshal(p.buildRequestBody(model, req))
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("X-Title", p.appName)
	if p.httpReferer != "" {
		httpReq.Header.Set("HTTP-Referer", p.httpReferer)
	}

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
		return nil, fmt.Errorf("openrouter 响应不是有效的JSON")
	}

	text := gjson.GetBytes(body, "choices.0.message.content").String()
	if text == "" {
		return nil, fmt.Errorf("openrouter: %w", llm.ErrEmptyResponse)
	}

	usage := gjson.GetBytes(body, "usage")
	respModel := gjson.GetBytes(body, "model").String()
	if respModel == "" {
		respModel = model
	}
	return &llm.CompletionResponse{
		Text:         text,
		FinishReason: gjson.GetBytes(body, "choices.0.finish_reason").String(),
		TokensUsed:   int(usage.Get("total_tokens").Int()),
		PromptTokens: int(usage.Get("prompt_tokens").Int()),
		OutputTokens: int(usage.Get("completion_tokens").Int()),
		ModelName:    respModel,
		ProviderName: p.GetName(),
	}, nil
}
