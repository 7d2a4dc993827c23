package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/admi-n/auditgpt/src/config"
	"github.com/admi-n/auditgpt/src/internal"
	"github.com/admi-n/auditgpt/src/internal/ai"
	"github.com/admi-n/auditgpt/src/internal/download"
	"github.com/admi-n/auditgpt/src/internal/handler"
	"github.com/admi-n/auditgpt/src/internal/monitor"
	"github.com/admi-n/auditgpt/src/internal/report"
	"github.com/admi-n/auditgpt/src/internal/report/renderers"
	"github.com/admi-n/auditgpt/src/internal/server"
	"github.com/admi-n/auditgpt/src/strategy/prompts"
)

// Run 执行根命令，供 main 调用
func Run() error {
	return NewRootCommand().ExecuteContext(context.Background())
}

// PrintFatal 打印错误并退出
func PrintFatal(err error) {
	fmt.Fprintf(os.Stderr, "❌ %v\n", err)
	os.Exit(1)
}

// buildOrchestrator 组装源码提供者、审计引擎与编排器，返回的 cleanup 释放全部资源
func buildOrchestrator(ctx context.Context, s *config.Settings, logger zerolog.Logger, opts ...handler.Option) (*handler.Orchestrator, func(), error) {
	if _, err := prompts.LoadTemplate("audit", s.Engine.Template); err != nil {
		if names, lerr := prompts.ListTemplates("audit"); lerr == nil {
			return nil, nil, fmt.Errorf("%w: %v (available: %s)", internal.ErrConfiguration, err, strings.Join(names, ", "))
		}
		return nil, nil, fmt.Errorf("%w: %v", internal.ErrConfiguration, err)
	}

	explorer, err := download.NewEtherscanClient(s.EtherscanConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("创建浏览器客户端失败: %w", err)
	}

	cache, closeCache, err := config.OpenCache(ctx, s.Cache)
	if err != nil {
		explorer.Close()
		return nil, nil, fmt.Errorf("初始化源码缓存失败: %w", err)
	}

	dlOpts := []download.Option{download.WithRateLimit(s.Explorer.RateLimit), download.WithLogger(logger)}
	if cache != nil {
		dlOpts = append(dlOpts, download.WithCache(cache))
		logger.Info().Str("driver", s.Cache.Driver).Dur("ttl", s.Cache.TTL).Msg("source cache enabled")
	}
	provider := download.NewDownloader(explorer, dlOpts...)

	engine, err := ai.NewManager(s.ManagerConfig(), ai.WithLogger(logger))
	if err != nil {
		explorer.Close()
		closeCache()
		return nil, nil, fmt.Errorf("创建审计引擎失败: %w", err)
	}
	if err := engine.Preflight(); err != nil {
		logger.Warn().Err(err).Msg("audit engine is not configured, jobs will fail until API_KEY is set")
	}

	cleanup := func() {
		if err := engine.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close audit engine")
		}
		explorer.Close()
		if err := closeCache(); err != nil {
			logger.Warn().Err(err).Msg("failed to close source cache")
		}
	}
	return handler.NewOrchestrator(provider, engine, opts...), cleanup, nil
}

// ExecuteAudit 运行一次审计任务并输出报告
func ExecuteAudit(ctx context.Context, a *app, opts *AuditOptions, stdin io.Reader, out io.Writer) error {
	s := a.settings
	if opts.Provider != "" {
		s.Engine.Primary.Provider = opts.Provider
	}
	if opts.Model != "" {
		s.Engine.Primary.Model = opts.Model
	}
	if opts.Template != "" {
		s.Engine.Template = opts.Template
	}

	req := handler.Request{Mode: opts.Mode(), Credential: opts.APIKey}
	switch {
	case opts.Address != "":
		req.Input = opts.Address
	case opts.File != "":
		data, err := os.ReadFile(opts.File)
		if err != nil {
			return fmt.Errorf("读取源码文件失败: %w", err)
		}
		req.Input = string(data)
	case opts.Source == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return fmt.Errorf("读取 stdin 失败: %w", err)
		}
		req.Input = string(data)
	default:
		req.Input = opts.Source
	}

	format := opts.Format
	if format == "" {
		format = s.Output.Format
	}
	gen, err := report.NewGenerator(format)
	if err != nil {
		return err
	}

	printer := &logPrinter{out: out}
	orch, cleanup, err := buildOrchestrator(ctx, s, a.logger,
		handler.WithObserver(printer.observe), handler.WithPacing(s.Server.Pacing))
	if err != nil {
		return err
	}
	defer cleanup()

	rep, err := orch.Run(ctx, req)
	if err != nil {
		return err
	}

	if opts.Output != "" {
		path, err := report.NewReporter(gen, report.NewFileTarget(opts.Output)).GenerateAndSave(rep)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "📄 报告已保存: %s\n", path)
		return nil
	}

	content, err := gen.Generate(rep)
	if err != nil {
		return err
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, content)

	if opts.Save {
		path, err := report.NewReporter(gen, report.NewFileStorage(s.Output.Dir)).GenerateAndSave(rep)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "📄 报告已保存: %s\n", path)
	}
	return nil
}

// ExecuteServe 启动 HTTP API 与监控模拟器，收到 SIGINT/SIGTERM 后优雅退出
func ExecuteServe(ctx context.Context, a *app, opts *ServeOptions) error {
	s := a.settings
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch, cleanup, err := buildOrchestrator(ctx, s, a.logger,
		handler.WithLogger(a.logger), handler.WithPacing(s.Server.Pacing))
	if err != nil {
		return err
	}
	defer cleanup()

	sim := monitor.NewSimulator(
		monitor.WithInterval(s.Monitor.Interval),
		monitor.WithSymbol(s.Monitor.Symbol),
		monitor.WithLogger(a.logger),
	)

	addr := opts.Addr
	if addr == "" {
		addr = s.Server.Addr
	}
	api := server.NewWebAPI(server.Config{
		Addr:            addr,
		ShutdownTimeout: s.Server.ShutdownTimeout,
		Dependencies: server.Dependencies{
			Jobs:    orch,
			Monitor: sim,
			Logger:  a.logger,
		},
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return api.Run(gctx) })
	g.Go(func() error { return sim.Run(gctx) })
	return g.Wait()
}

// ExecuteMonitor 在终端中运行监控模拟，结束时打印汇总表
func ExecuteMonitor(ctx context.Context, a *app, opts *MonitorOptions, out io.Writer) error {
	s := a.settings
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	interval := opts.Interval
	if interval <= 0 {
		interval = s.Monitor.Interval
	}
	simOpts := []monitor.Option{
		monitor.WithInterval(interval),
		monitor.WithSymbol(s.Monitor.Symbol),
		monitor.WithLogger(a.logger),
	}
	if opts.Seed != 0 {
		simOpts = append(simOpts, monitor.WithSeed(opts.Seed))
	}
	sim := monitor.NewSimulator(simOpts...)

	for _, entry := range opts.Contracts {
		name, address, err := parseContractFlag(entry)
		if err != nil {
			return err
		}
		if _, err := sim.Add(address, name); err != nil {
			return err
		}
	}

	fmt.Fprintf(out, "📡 正在监控 %d 个合约，采样间隔 %s（Ctrl+C 结束）\n", len(opts.Contracts), interval)
	runMonitorLoop(ctx, sim, interval, out)
	fmt.Fprintln(out)
	fmt.Fprintln(out, monitorSummary(sim.Contracts()))
	return nil
}

func runMonitorLoop(ctx context.Context, sim *monitor.Simulator, interval time.Duration, out io.Writer) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	seen := map[string]bool{}
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			sim.Tick(now)
			seen = printNewEvents(out, sim.Feed(), seen)
		}
	}
}

// printNewEvents 按时间正序打印尚未输出的事件，返回当前 feed 的 id 集合
func printNewEvents(out io.Writer, feed []monitor.Event, seen map[string]bool) map[string]bool {
	next := make(map[string]bool, len(feed))
	for _, e := range slices.Backward(feed) {
		next[e.ID] = true
		if seen[e.ID] {
			continue
		}
		fmt.Fprintf(out, "[%s] %s %-12s %-11s %s (%s)\n",
			e.Timestamp.Format(time.TimeOnly), renderers.SeverityIcon(string(e.Severity)),
			e.ContractName, e.Type, e.Message, shortHash(e.Hash))
	}
	return next
}

func monitorSummary(contracts []monitor.Contract) string {
	t := renderers.NewTable(renderers.ASCII, "Monitoring Summary")
	t.Header("Name", "Address", "Status", "Txs", "Volume", "Last Gas")
	for _, c := range contracts {
		t.Row(c.Name, c.Address, string(c.Status), c.Stats.TxCount, fmt.Sprintf("%.2f", c.Stats.Volume), c.Stats.LastGas)
	}
	return t.String()
}

func shortHash(h string) string {
	if len(h) <= 14 {
		return h
	}
	return h[:10] + "…" + h[len(h)-4:]
}

var logIcons = map[internal.LogKind]string{
	internal.LogInfo:    "ℹ️ ",
	internal.LogProcess: "⏳",
	internal.LogSuccess: "✅",
	internal.LogWarning: "⚠️ ",
	internal.LogError:   "❌",
}

// logPrinter 把任务日志增量打印到终端
type logPrinter struct {
	out     io.Writer
	printed int
}

func (p *logPrinter) observe(s handler.Snapshot) {
	if len(s.Log) < p.printed {
		p.printed = 0
	}
	for _, e := range s.Log[p.printed:] {
		fmt.Fprintf(p.out, "[%s] %s %s\n", e.Timestamp.Format(time.TimeOnly), logIcons[e.Kind], e.Message)
	}
	p.printed = len(s.Log)
}
