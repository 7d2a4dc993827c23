package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/admi-n/auditgpt/src/internal"
)

const (
	JSONModeSchema = "json_schema"
	JSONModeObject = "json_object"
)

// OpenAIClient OpenAI 兼容的 chat completions 客户端（OpenAI、DeepSeek 等）
type OpenAIClient struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	jsonMode    string
	httpClient  *http.Client
}

type jsonSchemaFormat struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

type responseFormat struct {
	Type       string            `json:"type"`
	JSONSchema *jsonSchemaFormat `json:"json_schema,omitempty"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	ID      string    `json:"id"`
	Model   string    `json:"model"`
	Choices []Choice  `json:"choices"`
	Usage   Usage     `json:"usage"`
	Error   *APIError `json:"error,omitempty"`
}

// NewOpenAIClient 创建 OpenAI 兼容客户端
func NewOpenAIClient(cfg Config) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4-turbo"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.JSONMode == "" {
		cfg.JSONMode = JSONModeSchema
	}

	httpClient, err := internal.NewHTTPClient(cfg.Proxy, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	return &OpenAIClient{
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		jsonMode:    cfg.JSONMode,
		httpClient:  httpClient,
	}, nil
}

// Analyze 发送审计请求
func (c *OpenAIClient) Analyze(ctx context.Context, req Request) (string, error) {
	body := chatRequest{
		Model:       c.model,
		Messages:    messages(req),
		Temperature: c.temperature,
	}
	if req.Schema != nil {
		switch c.jsonMode {
		case JSONModeObject:
			// json_object 模式不接受 schema，字段说明放进 system prompt
			body.Messages[0].Content += "\n\nJSON FIELDS:\n" + req.Schema.Describe()
			body.ResponseFormat = &responseFormat{Type: JSONModeObject}
		default:
			body.ResponseFormat = &responseFormat{
				Type: JSONModeSchema,
				JSONSchema: &jsonSchemaFormat{
					Name:   "audit_report",
					Strict: true,
					Schema: req.Schema.JSONSchema(),
				},
			}
		}
	}

	var resp chatResponse
	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}
	if err := postJSON(ctx, c.httpClient, c.baseURL+"/chat/completions", headers, body, &resp); err != nil {
		return "", fmt.Errorf("OpenAI API error (%s): %w", c.model, err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("OpenAI API error: %s (type: %s)", resp.Error.Message, resp.Error.Type)
	}

	zerolog.Ctx(ctx).Debug().
		Str("model", c.model).
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Int("total_tokens", resp.Usage.TotalTokens).
		Msg("token usage")

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

// GetName 返回客户端名称
func (c *OpenAIClient) GetName() string {
	return fmt.Sprintf("OpenAI-compatible (%s)", c.model)
}

// Close 清理资源
func (c *OpenAIClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
