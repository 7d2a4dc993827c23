package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/admi-n/auditgpt/src/internal"
	"github.com/admi-n/auditgpt/src/internal/download"
	"github.com/admi-n/auditgpt/src/internal/report"
)

// ErrJobRunning 已有任务在执行
var ErrJobRunning = errors.New("an audit job is already running")

// MinSourceLength 粘贴源码的最小长度（去除首尾空白后的字符数）
const MinSourceLength = 50

const (
	UploadedContractName = "Uploaded Contract"

	msgInvalidAddress = "Invalid Polygon Address Format"
	msgInvalidAPIKey  = "Invalid API Key format. It must be 34 alphanumeric characters."
	msgSourceTooShort = "Source code is too short or empty."
)

// SourceProvider 按地址获取已验证合约源码
type SourceProvider interface {
	FetchSource(ctx context.Context, address, credential string, progress internal.Progress) (*internal.Contract, error)
}

// AuditEngine 审计引擎
type AuditEngine interface {
	Preflight() error
	EngineName() string
	Audit(ctx context.Context, source, name string, progress internal.Progress) (*report.AuditReport, error)
}

// Request 一次审计任务的输入
type Request struct {
	Mode       Mode   `json:"mode"`
	Input      string `json:"input"`
	Credential string `json:"apiKey,omitempty"`
}

// Orchestrator 单任务状态机。同一时间只运行一个任务，任务一旦开始不可取消
type Orchestrator struct {
	provider SourceProvider
	engine   AuditEngine

	mu  sync.RWMutex
	job *job

	observer func(Snapshot)
	pacing   time.Duration
	now      func() time.Time
	logger   zerolog.Logger
}

// Option 可选项
type Option func(*Orchestrator)

// WithObserver 每次状态变化后收到快照
func WithObserver(fn func(Snapshot)) Option {
	return func(o *Orchestrator) { o.observer = fn }
}

// WithPacing 结果阶段之间的展示间隔
func WithPacing(d time.Duration) Option {
	return func(o *Orchestrator) { o.pacing = d }
}

// WithClock 替换时钟
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithLogger 任务日志同时写入 zerolog
func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// NewOrchestrator 创建编排器
func NewOrchestrator(provider SourceProvider, engine AuditEngine, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		provider: provider,
		engine:   engine,
		job:      newJob(),
		pacing:   400 * time.Millisecond,
		now:      time.Now,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Validate 检查输入，不修改任何状态
func Validate(req Request) error {
	switch req.Mode {
	case ModeAddress:
		if !download.IsValidAddress(strings.TrimSpace(req.Input)) {
			return internal.NewValidationError("input", msgInvalidAddress)
		}
		if key := strings.TrimSpace(req.Credential); key != "" && !download.IsValidAPIKey(key) {
			return internal.NewValidationError("apiKey", msgInvalidAPIKey)
		}
	case ModeSource:
		if utf8.RuneCountInString(strings.TrimSpace(req.Input)) < MinSourceLength {
			return internal.NewValidationError("input", msgSourceTooShort)
		}
	default:
		return internal.NewValidationError("mode", fmt.Sprintf("Unsupported input mode %q", req.Mode))
	}
	return nil
}

// Start 校验输入并在后台启动任务，返回的 channel 在任务结束时关闭。
// 任务在脱离调用方取消的 context 上运行。
func (o *Orchestrator) Start(ctx context.Context, req Request) (<-chan struct{}, error) {
	o.mu.Lock()
	if o.job.state == StateProcessing {
		o.mu.Unlock()
		return nil, ErrJobRunning
	}

	if err := Validate(req); err != nil {
		o.appendLocked(internal.LogError, err.Error())
		snap := o.job.snapshot()
		o.mu.Unlock()
		o.notify(snap)
		return nil, err
	}

	req.Credential = strings.TrimSpace(req.Credential)
	if req.Mode == ModeAddress {
		req.Input = strings.TrimSpace(req.Input)
	}

	j := newJob()
	j.id = uuid.NewString()
	j.mode = req.Mode
	j.input = req.Input
	j.credential = req.Credential
	j.state = StateProcessing
	j.startedAt = o.now()
	o.job = j

	target := "Manual Source Code"
	if req.Mode == ModeAddress {
		target = req.Input
	}
	o.appendLocked(internal.LogProcess, "Initializing Job: "+target)
	snap := o.job.snapshot()
	o.mu.Unlock()
	o.notify(snap)

	done := make(chan struct{})
	runCtx := context.WithoutCancel(ctx)
	go func() {
		defer close(done)
		o.run(runCtx, req)
	}()
	return done, nil
}

// Run 启动任务并等待结束
func (o *Orchestrator) Run(ctx context.Context, req Request) (*report.AuditReport, error) {
	done, err := o.Start(ctx, req)
	if err != nil {
		return nil, err
	}
	<-done

	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.job.state == StateResults {
		return o.job.result.Clone(), nil
	}
	return nil, o.job.err
}

// Snapshot 当前任务的深拷贝
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.job.snapshot()
}

// Reset 回到空闲状态，任务执行中时拒绝
func (o *Orchestrator) Reset() error {
	o.mu.Lock()
	if o.job.state == StateProcessing {
		o.mu.Unlock()
		return ErrJobRunning
	}
	o.job = newJob()
	snap := o.job.snapshot()
	o.mu.Unlock()
	o.notify(snap)
	return nil
}

func (o *Orchestrator) run(ctx context.Context, req Request) {
	ctx = o.logger.WithContext(ctx)
	if err := o.pipeline(ctx, req); err != nil {
		o.fail(err)
	}
}

func (o *Orchestrator) pipeline(ctx context.Context, req Request) error {
	if err := o.engine.Preflight(); err != nil {
		return err
	}

	o.setPhases(StatusProcessing, PhaseFetch)

	var source, name string
	if req.Mode == ModeAddress {
		o.log(internal.LogInfo, "Phase 1: Retrieving on-chain data...")
		if o.provider == nil {
			return fmt.Errorf("%w: no source provider configured", internal.ErrConfiguration)
		}
		c, err := o.provider.FetchSource(ctx, req.Input, req.Credential, o.log)
		if err != nil {
			return err
		}
		source, name = c.Code, c.Name
		o.update(func(j *job) {
			j.setPhase(PhaseFetch, StatusCompleted)
			j.setPhase(PhaseStaticAnalysis, StatusProcessing)
		})
	} else {
		source, name = req.Input, UploadedContractName
		o.update(func(j *job) {
			j.setPhase(PhaseFetch, StatusCompleted)
			j.setPhase(PhaseStaticAnalysis, StatusProcessing)
		})
		o.log(internal.LogInfo, "Phase 1: Using provided source code input.")
	}

	o.log(internal.LogInfo, fmt.Sprintf("Phase 2: Initializing Analysis Engine (%s)...", o.engine.EngineName()))
	o.log(internal.LogInfo, fmt.Sprintf("Analyzing %d bytes of source code...", len(source)))

	// 四个分析阶段由同一次请求完成
	o.setPhases(StatusProcessing, PhaseStaticAnalysis, PhaseGasAnalysis, PhaseEconomicAnalysis, PhaseUpgradeAnalysis)

	rep, err := o.engine.Audit(ctx, source, name, o.log)
	if err != nil {
		return err
	}
	if req.Mode == ModeAddress {
		rep.ContractAddress = req.Input
	} else {
		rep.ContractAddress = report.SourceInputAddress
	}

	o.complete(fmt.Sprintf("Static Analysis Complete: %d findings", len(rep.Vulnerabilities)), PhaseStaticAnalysis)
	o.pause()
	o.complete(fmt.Sprintf("Gas Profiling Complete: %d optimizations found", len(rep.GasAnalysis)), PhaseGasAnalysis)
	o.pause()
	o.complete(fmt.Sprintf("Economic Modeling Complete: %d vectors analyzed", len(rep.EconomicAnalysis)), PhaseEconomicAnalysis)
	o.pause()
	o.update(func(j *job) {
		j.setPhase(PhaseUpgradeAnalysis, StatusCompleted)
		j.setPhase(PhaseReportGeneration, StatusProcessing)
		o.appendJob(j, internal.LogSuccess,
			fmt.Sprintf("Upgradeability Check Complete: %d items reviewed", len(rep.UpgradeabilityAnalysis)))
	})
	o.pause()
	o.complete("Audit Report Generated Successfully", PhaseReportGeneration)

	o.update(func(j *job) {
		j.result = rep
		j.state = StateResults
		j.finishedAt = o.now()
	})
	return nil
}

// fail 一次性写入错误日志、ERROR 状态，并把未完成阶段标记为 FAILED
func (o *Orchestrator) fail(err error) {
	o.update(func(j *job) {
		o.appendJob(j, internal.LogError, err.Error())
		for _, p := range Phases {
			j.setPhase(p, StatusFailed)
		}
		j.state = StateError
		j.err = err
		j.finishedAt = o.now()
	})
}

func (o *Orchestrator) complete(msg string, p Phase) {
	o.update(func(j *job) {
		j.setPhase(p, StatusCompleted)
		o.appendJob(j, internal.LogSuccess, msg)
	})
}

func (o *Orchestrator) setPhases(to PhaseStatus, phases ...Phase) {
	o.update(func(j *job) {
		for _, p := range phases {
			j.setPhase(p, to)
		}
	})
}

// log 追加任务日志，同时作为 internal.Progress 交给下游
func (o *Orchestrator) log(kind internal.LogKind, msg string) {
	o.update(func(j *job) { o.appendJob(j, kind, msg) })
}

func (o *Orchestrator) update(fn func(j *job)) {
	o.mu.Lock()
	fn(o.job)
	snap := o.job.snapshot()
	o.mu.Unlock()
	o.notify(snap)
}

func (o *Orchestrator) appendLocked(kind internal.LogKind, msg string) {
	o.appendJob(o.job, kind, msg)
}

func (o *Orchestrator) appendJob(j *job, kind internal.LogKind, msg string) {
	j.log = append(j.log, LogEntry{Timestamp: o.now(), Message: msg, Kind: kind})

	var ev *zerolog.Event
	switch kind {
	case internal.LogError:
		ev = o.logger.Error()
	case internal.LogWarning:
		ev = o.logger.Warn()
	default:
		ev = o.logger.Info()
	}
	ev.Str("job", j.id).Str("kind", string(kind)).Msg(msg)
}

func (o *Orchestrator) notify(s Snapshot) {
	if o.observer != nil {
		o.observer(s)
	}
}

func (o *Orchestrator) pause() {
	if o.pacing > 0 {
		time.Sleep(o.pacing)
	}
}
