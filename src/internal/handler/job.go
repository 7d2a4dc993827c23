package handler

import (
	"time"

	"github.com/admi-n/auditgpt/src/internal"
	"github.com/admi-n/auditgpt/src/internal/report"
)

// Mode 输入模式
type Mode string

const (
	ModeAddress Mode = "ADDRESS"
	ModeSource  Mode = "SOURCE"
)

// State 任务状态
type State string

const (
	StateIdle       State = "IDLE"
	StateProcessing State = "PROCESSING"
	StateResults    State = "RESULTS"
	StateError      State = "ERROR"
)

// PhaseStatus 阶段状态
type PhaseStatus string

const (
	StatusPending    PhaseStatus = "PENDING"
	StatusProcessing PhaseStatus = "PROCESSING"
	StatusCompleted  PhaseStatus = "COMPLETED"
	StatusFailed     PhaseStatus = "FAILED"
)

// Phase 流水线阶段
type Phase string

const (
	PhaseFetch            Phase = "fetch"
	PhaseStaticAnalysis   Phase = "static-analysis"
	PhaseGasAnalysis      Phase = "gas-analysis"
	PhaseEconomicAnalysis Phase = "economic-analysis"
	PhaseUpgradeAnalysis  Phase = "upgrade-analysis"
	PhaseReportGeneration Phase = "report-generation"
)

// Phases 固定顺序
var Phases = []Phase{
	PhaseFetch,
	PhaseStaticAnalysis,
	PhaseGasAnalysis,
	PhaseEconomicAnalysis,
	PhaseUpgradeAnalysis,
	PhaseReportGeneration,
}

// canTransition 阶段状态只能前进：PENDING→PROCESSING→{COMPLETED|FAILED}，或 PENDING→FAILED
func canTransition(from, to PhaseStatus) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing || to == StatusFailed
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed
	default:
		return false
	}
}

// LogEntry 任务日志条目，写入后不再修改
type LogEntry struct {
	Timestamp time.Time        `json:"timestamp"`
	Message   string           `json:"message"`
	Kind      internal.LogKind `json:"type"`
}

// PhaseEntry 快照中的阶段状态
type PhaseEntry struct {
	Phase  Phase       `json:"phase"`
	Status PhaseStatus `json:"status"`
}

// Snapshot 任务的只读深拷贝，不包含用户凭证
type Snapshot struct {
	ID         string              `json:"id,omitempty"`
	Mode       Mode                `json:"mode,omitempty"`
	Input      string              `json:"input,omitempty"`
	State      State               `json:"state"`
	Phases     []PhaseEntry        `json:"phases"`
	Log        []LogEntry          `json:"log"`
	Result     *report.AuditReport `json:"result"`
	StartedAt  *time.Time          `json:"startedAt,omitempty"`
	FinishedAt *time.Time          `json:"finishedAt,omitempty"`
}

// PhaseStatus 查询某阶段状态
func (s Snapshot) PhaseStatus(p Phase) PhaseStatus {
	for _, e := range s.Phases {
		if e.Phase == p {
			return e.Status
		}
	}
	return ""
}

type job struct {
	id         string
	mode       Mode
	input      string
	credential string
	phases     map[Phase]PhaseStatus
	log        []LogEntry
	result     *report.AuditReport
	state      State
	err        error
	startedAt  time.Time
	finishedAt time.Time
}

func newJob() *job {
	j := &job{state: StateIdle, phases: make(map[Phase]PhaseStatus, len(Phases))}
	for _, p := range Phases {
		j.phases[p] = StatusPending
	}
	return j
}

// setPhase 非法迁移直接忽略
func (j *job) setPhase(p Phase, to PhaseStatus) bool {
	if !canTransition(j.phases[p], to) {
		return false
	}
	j.phases[p] = to
	return true
}

func (j *job) snapshot() Snapshot {
	s := Snapshot{
		ID:     j.id,
		Mode:   j.mode,
		Input:  j.input,
		State:  j.state,
		Phases: make([]PhaseEntry, 0, len(Phases)),
		Log:    append([]LogEntry{}, j.log...),
		Result: j.result.Clone(),
	}
	for _, p := range Phases {
		s.Phases = append(s.Phases, PhaseEntry{Phase: p, Status: j.phases[p]})
	}
	if !j.startedAt.IsZero() {
		t := j.startedAt
		s.StartedAt = &t
	}
	if !j.finishedAt.IsZero() {
		t := j.finishedAt
		s.FinishedAt = &t
	}
	return s
}
