package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/admi-n/auditgpt/src/internal/ai/client"
)

// AIClient 定义所有 AI 客户端必须实现的接口
type AIClient interface {
	Analyze(ctx context.Context, req client.Request) (string, error)
	GetName() string
	Close() error
}

// AIClientConfig 单个模型层级的配置
type AIClientConfig struct {
	Provider       string
	APIKey         string
	BaseURL        string
	Model          string
	Timeout        time.Duration
	Proxy          string
	Temperature    float64
	ThinkingBudget int
}

// NewAIClient 根据 provider 创建对应的 AI 客户端
func NewAIClient(cfg AIClientConfig) (AIClient, error) {
	ccfg := client.Config{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		Timeout:     cfg.Timeout,
		Proxy:       cfg.Proxy,
		Temperature: cfg.Temperature,
	}

	switch normalizeProvider(cfg.Provider) {
	case "gemini":
		return client.NewGeminiClient(ccfg)
	case "chatgpt5", "openai", "gpt4":
		ccfg.JSONMode = client.JSONModeSchema
		return client.NewOpenAIClient(ccfg)
	case "deepseek":
		if ccfg.BaseURL == "" {
			ccfg.BaseURL = "https://api.deepseek.com/v1"
		}
		if ccfg.Model == "" {
			ccfg.Model = "deepseek-chat"
		}
		ccfg.JSONMode = client.JSONModeObject
		return client.NewOpenAIClient(ccfg)
	case "local-llm", "ollama":
		return client.NewOllamaClient(ccfg)
	default:
		return nil, fmt.Errorf("unsupported AI provider: %s (supported: %s)", cfg.Provider, strings.Join(Providers, ", "))
	}
}

// Providers 支持的 provider 名称
var Providers = []string{"gemini", "chatgpt5", "openai", "gpt4", "deepseek", "local-llm", "ollama"}

// ValidateProvider 验证提供商名称是否有效
func ValidateProvider(provider string) error {
	p := normalizeProvider(provider)
	for _, v := range Providers {
		if v == p {
			return nil
		}
	}
	return fmt.Errorf("invalid provider '%s', must be one of: %s", provider, strings.Join(Providers, ", "))
}

// RequiresAPIKey 本地模型之外的 provider 都需要 key
func RequiresAPIKey(provider string) bool {
	switch normalizeProvider(provider) {
	case "local-llm", "ollama":
		return false
	default:
		return true
	}
}

func normalizeProvider(p string) string {
	return strings.ToLower(strings.TrimSpace(p))
}
