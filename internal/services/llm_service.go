// internal/services/llm_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Corphon/DeepDetect/internal/config"
	"github.com/Corphon/DeepDetect/internal/llm"
)

// ErrLLMNotReady 未配置或初始化失败
var ErrLLMNotReady = errors.New("LLM服务未就绪")

// LLMService 持有当前的分类服务提供者及其就绪状态
type LLMService struct {
	provider     llm.Provider
	providerName string
	isReady      bool
	readyState   string
	defaultModel string

	providerMutex sync.RWMutex
}

// LLMStatus /api/llm/status 的返回体
type LLMStatus struct {
	Provider        string   `json:"provider"`
	Model           string   `json:"model"`
	Ready           bool     `json:"ready"`
	State           string   `json:"state"`
	SupportedModels []string `json:"supported_models"`
}

// NewLLMService 根据配置创建服务。缺少凭据不是错误，返回未就绪的服务。
func NewLLMService(cfg *config.AppConfig) *LLMService {
	service := createBaseLLMService()
	if cfg == nil {
		service.readyState = "Failed to retrieve configuration"
		return service
	}

	service.providerName = cfg.LLMProvider
	if cfg.LLMProvider == "" {
		service.readyState = "LLM provider not configured"
		return service
	}
	if !cfg.HasLLMCredential() {
		service.readyState = "API key not configured"
		return service
	}

	provider, err := llm.GetProvider(cfg.LLMProvider, cfg.LLMConfig)
	if err != nil {
		service.readyState = fmt.Sprintf("Initialization failed: %v", err)
		return service
	}

	service.setProvider(cfg.LLMProvider, provider)
	return service
}

// NewLLMServiceWithProvider 直接使用给定的提供者（测试中使用）
func NewLLMServiceWithProvider(name string, provider llm.Provider) *LLMService {
	service := createBaseLLMService()
	service.setProvider(name, provider)
	return service
}

// NewEmptyLLMService 创建一个空的LLM服务实例作为后备方案
func NewEmptyLLMService() *LLMService {
	service := createBaseLLMService()
	service.providerName = "empty"
	service.readyState = "Standby mode: configure an API key to enable classification"
	return service
}

func createBaseLLMService() *LLMService {
	return &LLMService{readyState: "Uninitialized"}
}

func (s *LLMService) setProvider(name string, provider llm.Provider) {
	s.providerMutex.Lock()
	defer s.providerMutex.Unlock()

	s.provider = provider
	s.providerName = name
	s.defaultModel = provider.DefaultModel()
	s.isReady = true
	s.readyState = "Ready"
}

// IsReady 返回服务是否已就绪
func (s *LLMService) IsReady() bool {
	if s == nil {
		return false
	}
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	return s.provider != nil && s.isReady
}

// GetReadyState 返回服务就绪状态描述
func (s *LLMService) GetReadyState() string {
	if s == nil {
		return "LLM服务实例未初始化"
	}
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	return s.readyState
}

func (s *LLMService) GetProviderName() string {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	return s.providerName
}

func (s *LLMService) GetDefaultModel() string {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	return s.defaultModel
}

// Status 汇总提供者状态
func (s *LLMService) Status() LLMStatus {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()

	status := LLMStatus{
		Provider:        s.providerName,
		Model:           s.defaultModel,
		Ready:           s.provider != nil && s.isReady,
		State:           s.readyState,
		SupportedModels: []string{},
	}
	if s.provider != nil {
		status.SupportedModels = s.provider.GetSupportedModels()
	} else if s.providerName != "" {
		status.SupportedModels = llm.GetSupportedModelsForProvider(s.providerName)
	}
	return status
}

// Complete 发起一次补全调用
func (s *LLMService) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	s.providerMutex.RLock()
	provider := s.provider
	ready := s.isReady
	s.providerMutex.RUnlock()

	if provider == nil || !ready {
		return nil, ErrLLMNotReady
	}
	return provider.CompleteText(ctx, req)
}

// SanitizeLLMJSONResponse 移除LLM响应中的Markdown代码块或反引号，确保可以解析为JSON
func SanitizeLLMJSONResponse(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" {
		return cleaned
	}

	// 代码块不在开头时，取第一个代码块的内容
	if !strings.HasPrefix(cleaned, "```") {
		if start := strings.Index(cleaned, "```"); start != -1 {
			cleaned = cleaned[start:]
		}
	}

	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimSpace(cleaned)
		lower := strings.ToLower(cleaned)
		if strings.HasPrefix(lower, "json") {
			cleaned = strings.TrimSpace(cleaned[4:])
		}
		if idx := strings.Index(cleaned, "```"); idx != -1 {
			cleaned = cleaned[:idx]
		}
	}

	cleaned = strings.TrimSpace(cleaned)
	cleaned = strings.Trim(cleaned, "`")
	return strings.TrimSpace(cleaned)
}
