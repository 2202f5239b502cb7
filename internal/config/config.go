// internal/config/config.go
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

// 当前配置的单例实例
var (
	currentConfig *AppConfig
	configMutex   sync.RWMutex
)

// AppConfig 包含应用程序的所有配置
type AppConfig struct {
	// 基础配置
	Port      string `json:"port"`
	LogDir    string `json:"log_dir"`
	LogLevel  string `json:"log_level"`
	DebugMode bool   `json:"debug_mode"`

	// 上传限制 (MB)
	MaxUploadMB int `json:"max_upload_mb"`

	// 检测和认证接口每分钟的请求上限
	RateLimitPerMinute int `json:"rate_limit_per_minute"`

	// CORS 允许的来源，空表示允许所有
	CORSOrigins []string `json:"cors_origins"`

	// LLM相关配置
	LLMProvider string            `json:"llm_provider"`
	LLMConfig   map[string]string `json:"-"`

	// 存储
	DatabaseDSN string `json:"-"`
	RedisURL    string `json:"-"`

	// 认证
	AuthSecret string `json:"-"`
}

// providerKeyEnv 各提供商对应的API密钥环境变量
var providerKeyEnv = map[string]string{
	"google":     "GEMINI_API_KEY",
	"anthropic":  "ANTHROPIC_API_KEY",
	"openrouter": "OPENROUTER_API_KEY",
}

// Load 从环境变量加载配置
func Load() (*AppConfig, error) {
	// 尝试加载.env文件（可选）
	_ = godotenv.Load()

	provider := strings.ToLower(getEnv("LLM_PROVIDER", "google"))

	cfg := &AppConfig{
		Port:               getEnv("PORT", "5002"),
		LogDir:             getEnv("LOG_DIR", ""),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DebugMode:          getEnvBool("DEBUG_MODE", false),
		MaxUploadMB:        getEnvInt("MAX_UPLOAD_MB", 20),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		CORSOrigins:        splitList(getEnv("CORS_ORIGINS", "")),
		LLMProvider:        provider,
		LLMConfig:          map[string]string{},
		DatabaseDSN:        getEnv("DATABASE_DSN", ""),
		RedisURL:           getEnv("REDIS_URL", ""),
		AuthSecret:         getEnv("AUTH_SECRET_KEY", ""),
	}

	if envKey, ok := providerKeyEnv[provider]; ok {
		cfg.LLMConfig["api_key"] = getEnv(envKey, "")
	}
	if model := getEnv("LLM_MODEL", ""); model != "" {
		cfg.LLMConfig["default_model"] = model
	}
	if baseURL := getEnv("LLM_BASE_URL", ""); baseURL != "" {
		cfg.LLMConfig["base_url"] = baseURL
	}

	// 缺少密钥只记录警告，检测功能会退回到模拟结果
	if !cfg.HasLLMCredential() {
		log.Printf("警告: 未设置 %s 提供商的API密钥，检测将使用模拟结果", provider)
	}
	if cfg.DatabaseDSN == "" {
		log.Println("警告: 未设置 DATABASE_DSN，服务将以离线模式运行，扫描结果不会被保存")
	}

	return cfg, nil
}

// HasLLMCredential 是否配置了分类服务的凭据
func (c *AppConfig) HasLLMCredential() bool {
	return c != nil && c.LLMProvider != "" && c.LLMConfig["api_key"] != ""
}

// InitConfig 初始化全局配置
func InitConfig() error {
	cfg, err := Load()
	if err != nil {
		return err
	}

	SetCurrentConfig(cfg)
	return nil
}

// SetCurrentConfig 替换当前配置（测试中也会使用）
func SetCurrentConfig(cfg *AppConfig) {
	configMutex.Lock()
	defer configMutex.Unlock()
	currentConfig = cfg
}

// GetCurrentConfig 返回当前配置的副本
func GetCurrentConfig() *AppConfig {
	configMutex.RLock()
	defer configMutex.RUnlock()

	if currentConfig == nil {
		// 紧急情况，返回一个基本配置
		cfg, _ := Load()
		return cfg
	}

	configCopy := *currentConfig
	configCopy.LLMConfig = make(map[string]string, len(currentConfig.LLMConfig))
	for k, v := range currentConfig.LLMConfig {
		configCopy.LLMConfig[k] = v
	}
	configCopy.CORSOrigins = append([]string(nil), currentConfig.CORSOrigins...)
	return &configCopy
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvBool 获取布尔类型环境变量
func getEnvBool(key string, defaultValue bool) bool {
	value := strings.ToLower(os.Getenv(key))
	if value == "" {
		return defaultValue
	}

	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt 获取整数类型环境变量，解析失败时使用默认值
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		log.Printf("警告: 环境变量 %s=%q 不是有效的正整数，使用默认值 %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
