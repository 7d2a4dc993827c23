package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/admi-n/auditgpt/src/internal"
	"github.com/admi-n/auditgpt/src/internal/ai"
	"github.com/admi-n/auditgpt/src/internal/download"
	"github.com/admi-n/auditgpt/src/internal/report"
)

// EnvPrefix 环境变量前缀，例如 AUDITGPT_SERVER_ADDR
const EnvPrefix = "AUDITGPT"

// ProviderSettings 单个模型层级
type ProviderSettings struct {
	Provider       string        `mapstructure:"provider"`
	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url"`
	Model          string        `mapstructure:"model"`
	ThinkingBudget int           `mapstructure:"thinking_budget"`
	Temperature    float64       `mapstructure:"temperature"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// EngineSettings 审计引擎
type EngineSettings struct {
	Primary        ProviderSettings `mapstructure:"primary"`
	Secondary      ProviderSettings `mapstructure:"secondary"`
	RequestsPerMin int              `mapstructure:"requests_per_min"`
	Template       string           `mapstructure:"template"`
	Network        string           `mapstructure:"network"`
}

// ExplorerSettings 区块浏览器
type ExplorerSettings struct {
	APIKey    string        `mapstructure:"api_key"`
	BaseURL   string        `mapstructure:"base_url"`
	ChainID   string        `mapstructure:"chain_id"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit"`
}

// CacheSettings 源码缓存，driver 为空时不启用
type CacheSettings struct {
	Driver string        `mapstructure:"driver"`
	DSN    string        `mapstructure:"dsn"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type ServerSettings struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	Pacing          time.Duration `mapstructure:"pacing"`
}

type MonitorSettings struct {
	Interval time.Duration `mapstructure:"interval"`
	Symbol   string        `mapstructure:"symbol"`
}

type LogSettings struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type OutputSettings struct {
	Dir    string `mapstructure:"dir"`
	Format string `mapstructure:"format"`
}

// Settings 全局配置
type Settings struct {
	Proxy    string           `mapstructure:"proxy"`
	Engine   EngineSettings   `mapstructure:"engine"`
	Explorer ExplorerSettings `mapstructure:"explorer"`
	Cache    CacheSettings    `mapstructure:"cache"`
	Server   ServerSettings   `mapstructure:"server"`
	Monitor  MonitorSettings  `mapstructure:"monitor"`
	Log      LogSettings      `mapstructure:"log"`
	Output   OutputSettings   `mapstructure:"output"`
}

// SearchPaths settings.yaml 的默认搜索目录
var SearchPaths = []string{"config", ".", "src/config"}

func setDefaults(v *viper.Viper) {
	v.SetDefault("proxy", "")

	v.SetDefault("engine.primary.provider", "gemini")
	v.SetDefault("engine.primary.api_key", "")
	v.SetDefault("engine.primary.base_url", "")
	v.SetDefault("engine.primary.model", "gemini-3-pro-preview")
	v.SetDefault("engine.primary.thinking_budget", 32768)
	v.SetDefault("engine.primary.temperature", 0.0)
	v.SetDefault("engine.primary.timeout", 5*time.Minute)
	v.SetDefault("engine.secondary.provider", "gemini")
	v.SetDefault("engine.secondary.api_key", "")
	v.SetDefault("engine.secondary.base_url", "")
	v.SetDefault("engine.secondary.model", "gemini-2.5-flash")
	v.SetDefault("engine.secondary.thinking_budget", 0)
	v.SetDefault("engine.secondary.temperature", 0.0)
	v.SetDefault("engine.secondary.timeout", 5*time.Minute)
	v.SetDefault("engine.requests_per_min", 20)
	v.SetDefault("engine.template", "default")
	v.SetDefault("engine.network", report.DefaultNetwork)

	v.SetDefault("explorer.api_key", "")
	v.SetDefault("explorer.base_url", "https://api.etherscan.io/v2")
	v.SetDefault("explorer.chain_id", download.PolygonChainID)
	v.SetDefault("explorer.timeout", 20*time.Second)
	v.SetDefault("explorer.rate_limit", 5.0)

	v.SetDefault("cache.driver", "")
	v.SetDefault("cache.dsn", "")
	v.SetDefault("cache.ttl", 24*time.Hour)

	v.SetDefault("server.addr", "127.0.0.1:8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.pacing", 400*time.Millisecond)

	v.SetDefault("monitor.interval", 2*time.Second)
	v.SetDefault("monitor.symbol", "MATIC")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("output.dir", "reports")
	v.SetDefault("output.format", "table")
}

func bindEnv(v *viper.Viper) error {
	// 两个层级共用同一把引擎凭证
	for _, key := range []string{"engine.primary.api_key", "engine.secondary.api_key"} {
		if err := v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), "API_KEY", "GEMINI_API_KEY"); err != nil {
			return err
		}
	}
	return v.BindEnv("explorer.api_key", EnvPrefix+"_EXPLORER_API_KEY", "POLYGONSCAN_API_KEY", "ETHERSCAN_API_KEY")
}

// Load 读取配置：默认值 < settings.yaml < 环境变量。
// path 为空时在 SearchPaths 中查找 settings.yaml，找不到不算错误。
func Load(path string) (*Settings, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("failed to bind env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("settings")
		v.SetConfigType("yaml")
		for _, p := range SearchPaths {
			v.AddConfigPath(p)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate 检查取值范围
func (s *Settings) Validate() error {
	if err := ai.ValidateProvider(s.Engine.Primary.Provider); err != nil {
		return fmt.Errorf("%w: engine.primary: %v", internal.ErrConfiguration, err)
	}
	if s.Engine.Secondary.Provider != "" {
		if err := ai.ValidateProvider(s.Engine.Secondary.Provider); err != nil {
			return fmt.Errorf("%w: engine.secondary: %v", internal.ErrConfiguration, err)
		}
	}
	if s.Cache.Driver != "" {
		if _, err := download.DialectForDriver(s.Cache.Driver); err != nil {
			return err
		}
		if s.Cache.DSN == "" {
			return fmt.Errorf("%w: cache.dsn is required when cache.driver is set", internal.ErrConfiguration)
		}
	}
	if _, err := report.NewGenerator(s.Output.Format); err != nil {
		return fmt.Errorf("%w: output.format: %v", internal.ErrConfiguration, err)
	}
	if s.Proxy != "" {
		if err := internal.ValidateProxyURL(s.Proxy); err != nil {
			return fmt.Errorf("%w: proxy: %v", internal.ErrConfiguration, err)
		}
	}
	return nil
}

// ManagerConfig 转换为审计引擎配置
func (s *Settings) ManagerConfig() ai.ManagerConfig {
	cfg := ai.ManagerConfig{
		Primary:        s.Engine.Primary.clientConfig(s.Proxy),
		RequestsPerMin: s.Engine.RequestsPerMin,
		Network:        s.Engine.Network,
		PromptTemplate: s.Engine.Template,
	}
	if s.Engine.Secondary.Provider != "" {
		sec := s.Engine.Secondary.clientConfig(s.Proxy)
		cfg.Secondary = &sec
	}
	return cfg
}

// EtherscanConfig 转换为浏览器客户端配置
func (s *Settings) EtherscanConfig() download.EtherscanConfig {
	return download.EtherscanConfig{
		APIKey:  s.Explorer.APIKey,
		BaseURL: s.Explorer.BaseURL,
		ChainID: s.Explorer.ChainID,
		Proxy:   s.Proxy,
		Timeout: s.Explorer.Timeout,
	}
}

func (p ProviderSettings) clientConfig(proxy string) ai.AIClientConfig {
	return ai.AIClientConfig{
		Provider:       p.Provider,
		APIKey:         p.APIKey,
		BaseURL:        p.BaseURL,
		Model:          p.Model,
		Timeout:        p.Timeout,
		Proxy:          proxy,
		Temperature:    p.Temperature,
		ThinkingBudget: p.ThinkingBudget,
	}
}
