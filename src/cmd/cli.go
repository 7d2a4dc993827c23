package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/admi-n/auditgpt/src/config"
	"github.com/admi-n/auditgpt/src/internal"
	"github.com/admi-n/auditgpt/src/internal/handler"
	"github.com/admi-n/auditgpt/src/internal/logger"
	"github.com/admi-n/auditgpt/src/internal/report"
)

// Version 构建时通过 -ldflags 注入
var Version = "dev"

// GlobalOptions 所有子命令共享的选项
type GlobalOptions struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string
	Proxy      string
}

// AuditOptions audit 子命令选项
type AuditOptions struct {
	Address  string
	APIKey   string
	File     string
	Source   string // "-" 表示从 stdin 读取
	Format   string
	Output   string
	Save     bool
	Template string
	Provider string
	Model    string
}

// ServeOptions serve 子命令选项
type ServeOptions struct {
	Addr string
}

// MonitorOptions monitor 子命令选项
type MonitorOptions struct {
	Contracts []string // name=0x...
	Duration  time.Duration
	Interval  time.Duration
	Seed      int64
}

// app 命令执行期间的共享状态
type app struct {
	opts     GlobalOptions
	settings *config.Settings
	logger   zerolog.Logger
}

// load 读取配置并创建 logger；命令行参数优先于配置文件
func (a *app) load() error {
	s, err := config.Load(a.opts.ConfigPath)
	if err != nil {
		return err
	}
	if a.opts.Proxy != "" {
		if err := internal.ValidateProxyURL(a.opts.Proxy); err != nil {
			return fmt.Errorf("%w: --proxy: %v", internal.ErrConfiguration, err)
		}
		s.Proxy = a.opts.Proxy
	}
	if a.opts.LogLevel != "" {
		s.Log.Level = a.opts.LogLevel
	}
	if a.opts.LogFormat != "" {
		s.Log.Format = a.opts.LogFormat
	}

	l, err := logger.New(s.Log.Level, s.Log.Format, os.Stderr)
	if err != nil {
		return fmt.Errorf("%w: %v", internal.ErrConfiguration, err)
	}
	a.settings = s
	a.logger = l
	return nil
}

// NewRootCommand 构建命令树
func NewRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "auditgpt",
		Short:         "🔍 AuditGPT - 基于大模型的 Solidity 智能合约审计工具",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.load()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.opts.ConfigPath, "config", "c", "", "配置文件路径（默认在 config/、./、src/config/ 中查找 settings.yaml）")
	pf.StringVar(&a.opts.LogLevel, "log-level", "", "日志级别: debug|info|warn|error")
	pf.StringVar(&a.opts.LogFormat, "log-format", "", "日志格式: console|json")
	pf.StringVar(&a.opts.Proxy, "proxy", "", "可选 HTTP 代理，例如 http://127.0.0.1:7897（浏览器与模型请求均生效）")

	root.AddCommand(newAuditCommand(a), newServeCommand(a), newMonitorCommand(a), newVersionCommand())
	return root
}

func newAuditCommand(a *app) *cobra.Command {
	opts := &AuditOptions{}
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "审计单个合约（链上地址或本地源码）",
		Example: `  auditgpt audit --address 0x5FbDB2315678afecb367f032d93F642f64180aa3
  auditgpt audit --file contracts/Vault.sol --format markdown --output reports/vault.md
  cat Vault.sol | auditgpt audit --source - --format json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.Validate(); err != nil {
				return err
			}
			return ExecuteAudit(cmd.Context(), a, opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.Address, "address", "a", "", "合约地址（ADDRESS 模式）")
	f.StringVar(&opts.APIKey, "api-key", "", "可选的区块浏览器 API Key（34 位字母数字）")
	f.StringVarP(&opts.File, "file", "f", "", "本地 Solidity 源码文件（SOURCE 模式）")
	f.StringVar(&opts.Source, "source", "", "直接传入源码，\"-\" 表示从 stdin 读取（SOURCE 模式）")
	f.StringVar(&opts.Format, "format", "", "报告格式: "+strings.Join(report.Formats, "|"))
	f.StringVarP(&opts.Output, "output", "o", "", "报告写入指定文件")
	f.BoolVar(&opts.Save, "save", false, "报告保存到配置的 output.dir")
	f.StringVar(&opts.Template, "template", "", "提示词模板名称（strategy/prompts/audit/<name>.tmpl）")
	f.StringVar(&opts.Provider, "provider", "", "覆盖主模型 provider")
	f.StringVar(&opts.Model, "model", "", "覆盖主模型名称")
	cmd.MarkFlagsMutuallyExclusive("address", "file", "source")
	return cmd
}

func newServeCommand(a *app) *cobra.Command {
	opts := &ServeOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "启动 HTTP API（审计任务 + 合约监控模拟）",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ExecuteServe(cmd.Context(), a, opts)
		},
	}
	cmd.Flags().StringVar(&opts.Addr, "addr", "", "监听地址，默认取配置 server.addr")
	return cmd
}

func newMonitorCommand(a *app) *cobra.Command {
	opts := &MonitorOptions{}
	cmd := &cobra.Command{
		Use:     "monitor",
		Short:   "终端中运行合约监控模拟",
		Example: `  auditgpt monitor --contract Vault=0x5FbDB2315678afecb367f032d93F642f64180aa3 --duration 30s`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(opts.Contracts) == 0 {
				return errors.New("at least one --contract name=0x... is required")
			}
			return ExecuteMonitor(cmd.Context(), a, opts, cmd.OutOrStdout())
		},
	}
	f := cmd.Flags()
	f.StringArrayVar(&opts.Contracts, "contract", nil, "监控的合约，格式 name=0x...，可重复")
	f.DurationVar(&opts.Duration, "duration", 0, "运行时长，0 表示直到 Ctrl+C")
	f.DurationVar(&opts.Interval, "interval", 0, "采样间隔，默认取配置 monitor.interval")
	f.Int64Var(&opts.Seed, "seed", 0, "随机种子，0 表示使用当前时间")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "显示版本",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "auditgpt %s\n", Version)
		},
	}
}

// Validate 检查 audit 选项的一致性
func (o *AuditOptions) Validate() error {
	set := 0
	for _, v := range []string{o.Address, o.File, o.Source} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return errors.New("exactly one of --address, --file or --source is required")
	}
	if o.APIKey != "" && o.Address == "" {
		return errors.New("--api-key only applies to --address")
	}
	if o.Format != "" {
		if _, err := report.NewGenerator(o.Format); err != nil {
			return err
		}
	}
	return nil
}

// Mode 根据选项推断输入模式
func (o *AuditOptions) Mode() handler.Mode {
	if o.Address != "" {
		return handler.ModeAddress
	}
	return handler.ModeSource
}

// parseContractFlag 解析 name=0x...
func parseContractFlag(s string) (name, address string, err error) {
	name, address, ok := strings.Cut(s, "=")
	name, address = strings.TrimSpace(name), strings.TrimSpace(address)
	if !ok || name == "" || address == "" {
		return "", "", fmt.Errorf("invalid --contract %q, expected name=0x...", s)
	}
	return name, address, nil
}
