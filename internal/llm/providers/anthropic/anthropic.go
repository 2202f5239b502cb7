// internal/llm/providers/anthropic/anthropic.go
package anthropic

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
	defaultBaseURL    = "https://api.anthropic.com"
	defaultAPIVersion = "2023-06-01"
	defaultModel      = "claude-3-5-sonnet-latest"
	defaultMaxTokens  = 1024
)

func init() {
	llm.Register("anthropic", func() llm.Provider {
		return &Provider{
			models: []string{
				"claude-3-5-sonnet-latest",
				"claude-3-7-sonnet-latest",
				"claude-sonnet-4-0",
			},
			baseURL:    defaultBaseURL,
			apiVersion: defaultAPIVersion,
		}
	})
}

type Provider struct {
	apiKey       string
	baseURL      string
	apiVersion   string
	client       *http.Client
	defaultModel string
	models       []string
}

func (p *Provider) Initialize(config map[string]string) error {
	apiKey := config["api_key"]
	if apiKey == "" {
		return fmt.Errorf("anthropic: %w", llm.ErrMissingAPIKey)
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

	if apiVersion := config["api_version"]; apiVersion != "" {
		p.apiVersion = apiVersion
	}
	if p.apiVersion == "" {
		p.apiVersion = defaultAPIVersion
	}

	return nil
}

func (p *Provider) GetName() string {
	return "Anthropic Claude"
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

// 图片以 base64 image block 形式放在文本之前
func (p *Provider) buildRequestBody(model string, req llm.CompletionRequest) map[string]interface{} {
	content := make([]map[string]interface{}, 0, len(req.Attachments)+1)
	for _, att := range req.Attachments {
		content = append(content, map[string]interface{}{
			"type": "image",
			"source": map[string]string{
				"type":       "base64",
				"media_type": att.MediaType,
				"data":       base64.StdEncoding.EncodeToString(att.Data),
			},
		})
	}
	content = append(content, map[string]interface{}{
		"type": "text",
		"text": req.Prompt,
	})

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	body := map[string]interface{}{
		"model":       model,
		"messages":    []map[string]interface{}{{"role": "user", "content": content}},
		"max_tokens":  maxTokens,
		"temperature": req.Temperature,
	}
	if req.SystemPrompt != "" {
		body["system"] = req.SystemPrompt
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

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Api-Key", p.apiKey)
	httpReq.Header.Set("Anthropic-Version", p.apiVersion)

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
		return nil, fmt.Errorf("anthropic 响应不是有效的JSON")
	}

	var text strings.Builder
	gjson.GetBytes(body, "content").ForEach(func(_, block gjson.Result) bool {
		if block.Get("type").String() == "text" {
			text.WriteString(block.Get("text").String())
		}
		return true
	})
	if text.Len() == 0 {
		return nil, fmt.Errorf("anthropic: %w", llm.ErrEmptyResponse)
	}

	input := int(gjson.GetBytes(body, "usage.input_tokens").Int())
	output := int(gjson.GetBytes(body, "usage.output_tokens").Int())
	return &llm.CompletionResponse{
		Text:         text.String(),
		FinishReason: gjson.GetBytes(body, "stop_reason").String(),
		TokensUsed:   input + output,
		PromptTokens: input,
		OutputTokens: output,
		ModelName:    model,
		ProviderName: p.GetName(),
	}, nil
}
