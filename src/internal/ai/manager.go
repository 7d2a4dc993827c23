package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/admi-n/auditgpt/src/internal"
	"github.com/admi-n/auditgpt/src/internal/ai/client"
	"github.com/admi-n/auditgpt/src/internal/ai/parser"
	"github.com/admi-n/auditgpt/src/internal/report"
	"github.com/admi-n/auditgpt/src/strategy/prompts"
)

// MissingKeyMessage 未配置引擎凭证时的提示
const MissingKeyMessage = "API Key missing. Please check your environment configuration."

// Tier 一个模型层级：主模型或备用模型
type Tier struct {
	Client         AIClient
	ThinkingBudget int
}

// ManagerConfig 审计引擎配置
type ManagerConfig struct {
	Primary        AIClientConfig
	Secondary      *AIClientConfig // 为空时不做降级
	RequestsPerMin int
	Network        string
	PromptTemplate string
}

// Manager 审计引擎：两级模型请求、JSON 提取与结构校验
type Manager struct {
	primary   *Tier
	secondary *Tier
	configErr error
	limiter   *rate.Limiter
	network   string
	template  string
	logger    zerolog.Logger
	now       func() time.Time
}

// Option 可选项
type Option func(*Manager)

// WithLogger 设置日志
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithClock 替换时钟，测试用
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager 根据配置创建引擎。
// 缺少凭证不会在这里报错，由 Preflight 在任务开始时报告。
func NewManager(cfg ManagerConfig, opts ...Option) (*Manager, error) {
	if cfg.Primary.Provider == "" {
		return nil, fmt.Errorf("%w: primary provider is required", internal.ErrConfiguration)
	}

	var tiers [2]*Tier
	var configErr error
	for i, tc := range []*AIClientConfig{&cfg.Primary, cfg.Secondary} {
		if tc == nil || tc.Provider == "" {
			continue
		}
		if err := ValidateProvider(tc.Provider); err != nil {
			return nil, fmt.Errorf("%w: %v", internal.ErrConfiguration, err)
		}
		if RequiresAPIKey(tc.Provider) && strings.TrimSpace(tc.APIKey) == "" {
			// 备用层缺少凭证时仅关闭降级
			if i == 0 {
				configErr = fmt.Errorf("%w: %s", internal.ErrConfiguration, MissingKeyMessage)
			}
			continue
		}
		c, err := NewAIClient(*tc)
		if err != nil {
			return nil, fmt.Errorf("failed to create AI client: %w", err)
		}
		tiers[i] = &Tier{Client: c, ThinkingBudget: tc.ThinkingBudget}
	}

	m := newManager(tiers[0], tiers[1], cfg.RequestsPerMin, opts...)
	m.configErr = configErr
	if cfg.Network != "" {
		m.network = cfg.Network
	}
	m.template = cfg.PromptTemplate
	return m, nil
}

// NewManagerWithTiers 直接使用已构造的客户端
func NewManagerWithTiers(primary, secondary *Tier, requestsPerMin int, opts ...Option) *Manager {
	return newManager(primary, secondary, requestsPerMin, opts...)
}

func newManager(primary, secondary *Tier, requestsPerMin int, opts ...Option) *Manager {
	if requestsPerMin <= 0 {
		requestsPerMin = 20
	}
	m := &Manager{
		primary:   primary,
		secondary: secondary,
		limiter:   rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMin)), requestsPerMin),
		network:   report.DefaultNetwork,
		logger:    zerolog.Nop(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Preflight 检查引擎凭证是否已配置
func (m *Manager) Preflight() error {
	if m.configErr != nil {
		return m.configErr
	}
	if m.primary == nil {
		return fmt.Errorf("%w: %s", internal.ErrConfiguration, MissingKeyMessage)
	}
	return nil
}

// EngineName 主模型名称，用于任务日志
func (m *Manager) EngineName() string {
	if m.primary == nil {
		return "unconfigured"
	}
	return m.primary.Client.GetName()
}

// Audit 对源码执行一次审计。主模型失败时降级到备用模型，仅此一次重试。
func (m *Manager) Audit(ctx context.Context, source, name string, progress internal.Progress) (*report.AuditReport, error) {
	if err := m.Preflight(); err != nil {
		return nil, err
	}
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	userPrompt, err := prompts.BuildAuditPrompt(m.template, name, source)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", internal.ErrConfiguration, err)
	}
	req := client.Request{
		SystemPrompt: prompts.SystemPrompt(),
		UserPrompt:   userPrompt,
		Schema:       parser.ReportSchema,
	}

	start := m.now()
	text, err := m.request(ctx, m.primary, req)
	if err != nil {
		m.logger.Warn().Err(err).Str("engine", m.primary.Client.GetName()).Msg("primary model failed, falling back")
		if m.secondary == nil {
			return nil, fmt.Errorf("%w: %v", internal.ErrEngineUnavailable, err)
		}
		progress.Report(internal.LogWarning,
			fmt.Sprintf("Primary engine unavailable, falling back to %s...", m.secondary.Client.GetName()))
		text, err = m.request(ctx, m.secondary, req)
		if err != nil {
			m.logger.Error().Err(err).Str("engine", m.secondary.Client.GetName()).Msg("secondary model failed")
			return nil, fmt.Errorf("%w: %v", internal.ErrEngineUnavailable, err)
		}
	}

	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: AI Analysis failed to generate output", internal.ErrMalformedResponse)
	}

	result, err := parser.Parse(text, name)
	if err != nil {
		m.logger.Error().Err(err).Int("raw_bytes", len(text)).Msg("failed to parse model output")
		return nil, err
	}
	result.Network = m.network
	result.AuditDate = m.now().UTC().Format(time.RFC3339)

	m.logger.Info().
		Str("contract", result.ContractName).
		Int("score", result.OverallScore).
		Int("findings", len(result.Vulnerabilities)).
		Dur("duration", m.now().Sub(start)).
		Msg("audit completed")
	return result, nil
}

func (m *Manager) request(ctx context.Context, tier *Tier, req client.Request) (string, error) {
	req.ThinkingBudget = tier.ThinkingBudget
	text, err := tier.Client.Analyze(ctx, req)
	if err != nil {
		return "", err
	}
	return text, nil
}

// Close 释放所有客户端
func (m *Manager) Close() error {
	var errs []error
	for _, t := range []*Tier{m.primary, m.secondary} {
		if t != nil {
			if err := t.Client.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
