package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/admi-n/auditgpt/src/internal"
)

// OllamaClient 本地 LLM 客户端（Ollama /api/chat）
type OllamaClient struct {
	baseURL     string
	model       string
	temperature float64
	httpClient  *http.Client
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
}

type ollamaRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Format   any            `json:"format,omitempty"`
	Options  *ollamaOptions `json:"options,omitempty"`
}

type ollamaResponse struct {
	Model   string  `json:"model"`
	Message Message `json:"message"`
	Done    bool    `json:"done"`
	Error   string  `json:"error,omitempty"`
}

// NewOllamaClient 创建本地 LLM 客户端，不需要 API key
func NewOllamaClient(cfg Config) (*OllamaClient, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "qwen2.5-coder"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}

	httpClient, err := internal.NewHTTPClient(cfg.Proxy, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	return &OllamaClient{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		httpClient:  httpClient,
	}, nil
}

// Analyze 发送审计请求
func (c *OllamaClient) Analyze(ctx context.Context, req Request) (string, error) {
	body := ollamaRequest{
		Model:    c.model,
		Messages: messages(req),
		Stream:   false,
	}
	if req.Schema != nil {
		body.Format = req.Schema.JSONSchema()
	}
	if c.temperature > 0 {
		body.Options = &ollamaOptions{Temperature: c.temperature}
	}

	var resp ollamaResponse
	if err := postJSON(ctx, c.httpClient, c.baseURL+"/api/chat", nil, body, &resp); err != nil {
		return "", fmt.Errorf("Ollama API error (%s): %w", c.model, err)
	}
	if resp.Error != "" {
		return "", fmt.Errorf("Ollama API error: %s", resp.Error)
	}
	return resp.Message.Content, nil
}

// GetName 返回客户端名称
func (c *OllamaClient) GetName() string {
	return fmt.Sprintf("Local LLM (%s)", c.model)
}

// Close 清理资源
func (c *OllamaClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
