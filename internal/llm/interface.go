// internal/llm/interface.go
package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// 错误定义
var (
	ErrUnknownProvider = errors.New("未知的AI提供者")
	ErrMissingAPIKey   = errors.New("API密钥未提供")
	// ErrEmptyResponse 服务端返回成功但没有任何文本
	ErrEmptyResponse = errors.New("提供者未返回任何结果")
)

// Attachment 随请求发送的内联二进制内容（图片等）
type Attachment struct {
	MediaType string
	Data      []byte
}

// 请求参数标准化
type CompletionRequest struct {
	Prompt       string       `json:"prompt"`
	SystemPrompt string       `json:"system_prompt,omitempty"`
	Attachments  []Attachment `json:"-"`
	MaxTokens    int          `json:"max_tokens,omitempty"`
	Temperature  float32      `json:"temperature,omitempty"`
	Model        string       `json:"model,omitempty"`
	// JSONOutput 要求提供者直接输出 JSON（支持时）
	JSONOutput bool `json:"json_output,omitempty"`
}

// 响应结构标准化
type CompletionResponse struct {
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason,omitempty"`
	TokensUsed   int    `json:"tokens_used,omitempty"`
	PromptTokens int    `json:"prompt_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
	ModelName    string `json:"model_name,omitempty"`
	ProviderName string `json:"provider_name,omitempty"`
}

// APIError 提供者返回的非 2xx 响应
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API错误(%d): %s", e.Provider, e.StatusCode, e.Message)
}

// Provider 定义所有LLM提供者必须实现的接口
type Provider interface {
	// 初始化提供者，传入配置（api_key, default_model, base_url）
	Initialize(config map[string]string) error

	GetName() string

	GetSupportedModels() []string

	// 未指定模型时使用的模型
	DefaultModel() string

	// 单次同步调用，不做重试
	CompleteText(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// ProviderFactory 提供者工厂
type ProviderFactory func() Provider

// Registry 提供者注册表
type Registry struct {
	mu        sync.RWMutex
	providers map[string]ProviderFactory
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]ProviderFactory)}
}

// 全局注册表，提供者在 init 中注册
var DefaultRegistry = NewRegistry()

// Register 注册一个新的LLM提供者
func (r *Registry) Register(name string, factory ProviderFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = factory
}

// GetProvider 获取指定名称的已初始化提供者实例
func (r *Registry) GetProvider(name string, config map[string]string) (Provider, error) {
	r.mu.RLock()
	factory, exists := r.providers[name]
	r.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}

	provider := factory()
	if err := provider.Initialize(config); err != nil {
		return nil, err
	}
	return provider, nil
}

// ListProviders 返回所有已注册的提供者名称（已排序）
func (r *Registry) ListProviders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SupportedModels 获取指定提供商支持的模型列表
func (r *Registry) SupportedModels(name string) []string {
	r.mu.RLock()
	factory, exists := r.providers[name]
	r.mu.RUnlock()
	if !exists {
		return []string{}
	}
	return factory().GetSupportedModels()
}

func Register(name string, factory ProviderFactory) {
	DefaultRegistry.Register(name, factory)
}

func GetProvider(name string, config map[string]string) (Provider, error) {
	return DefaultRegistry.GetProvider(name, config)
}

func ListProviders() []string {
	return DefaultRegistry.ListProviders()
}

func GetSupportedModelsForProvider(name string) []string {
	return DefaultRegistry.SupportedModels(name)
}
