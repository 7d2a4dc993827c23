package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admi-n/auditgpt/src/internal"
	"github.com/admi-n/auditgpt/src/internal/report"
)

const (
	validAddr  = "0x5fbdb2315678afecb367f032d93f642f64180aa3"
	validKey   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ12345678"
	longSource = "pragma solidity ^0.8.20;\ncontract Vault { mapping(address => uint) balances; }"
)

type fakeProvider struct {
	contract *internal.Contract
	err      error
	calls    int
	gotKey   string
}

func (f *fakeProvider) FetchSource(_ context.Context, address, credential string, progress internal.Progress) (*internal.Contract, error) {
	f.calls++
	f.gotKey = credential
	progress.Report(internal.LogProcess, "Querying block explorer...")
	if f.err != nil {
		return nil, f.err
	}
	c := *f.contract
	c.Address = address
	return &c, nil
}

type fakeEngine struct {
	preflightErr error
	report       *report.AuditReport
	err          error
	gotSource    string
	gotName      string
	block        chan struct{}
}

func (f *fakeEngine) Preflight() error   { return f.preflightErr }
func (f *fakeEngine) EngineName() string { return "Gemini (gemini-3-pro-preview)" }

func (f *fakeEngine) Audit(_ context.Context, source, name string, _ internal.Progress) (*report.AuditReport, error) {
	if f.block != nil {
		<-f.block
	}
	f.gotSource, f.gotName = source, name
	if f.err != nil {
		return nil, f.err
	}
	r := *f.report
	return &r, nil
}

func sampleReport() *report.AuditReport {
	return &report.AuditReport{
		ContractName:           "Vault",
		Network:                report.DefaultNetwork,
		OverallScore:           70,
		Summary:                "ok",
		Vulnerabilities:        []report.Vulnerability{{ID: "SWC-107", Severity: report.SeverityHigh}},
		GasAnalysis:            []report.GasOptimization{{}, {}},
		EconomicAnalysis:       []report.EconomicRisk{},
		UpgradeabilityAnalysis: []report.UpgradeabilityFinding{{}},
	}
}

type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) observe(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

// completionOrder 各阶段第一次出现 COMPLETED 的顺序
func (r *recorder) completionOrder() []Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := map[Phase]bool{}
	var order []Phase
	for _, s := range r.snaps {
		for _, p := range s.Phases {
			if p.Status == StatusCompleted && !seen[p.Phase] {
				seen[p.Phase] = true
				order = append(order, p.Phase)
			}
		}
	}
	return order
}

func newTestOrchestrator(p SourceProvider, e AuditEngine, rec *recorder) *Orchestrator {
	opts := []Option{WithPacing(0)}
	if rec != nil {
		opts = append(opts, WithObserver(rec.observe))
	}
	return NewOrchestrator(p, e, opts...)
}

func messages(s Snapshot) []string {
	out := make([]string, 0, len(s.Log))
	for _, e := range s.Log {
		out = append(out, e.Message)
	}
	return out
}

func TestRunAddressModeSucceeds(t *testing.T) {
	provider := &fakeProvider{contract: &internal.Contract{Name: "Vault", Code: "contract Vault {}"}}
	engine := &fakeEngine{report: sampleReport()}
	rec := &recorder{}
	o := newTestOrchestrator(provider, engine, rec)

	rep, err := o.Run(context.Background(), Request{Mode: ModeAddress, Input: " " + validAddr + " ", Credential: validKey})
	require.NoError(t, err)
	assert.Equal(t, validAddr, rep.ContractAddress)
	assert.Equal(t, validKey, provider.gotKey)
	assert.Equal(t, "contract Vault {}", engine.gotSource)
	assert.Equal(t, "Vault", engine.gotName)

	snap := o.Snapshot()
	assert.Equal(t, StateResults, snap.State)
	for _, p := range snap.Phases {
		assert.Equal(t, StatusCompleted, p.Status, p.Phase)
	}
	want := []Phase{PhaseFetch, PhaseStaticAnalysis, PhaseGasAnalysis, PhaseEconomicAnalysis, PhaseUpgradeAnalysis, PhaseReportGeneration}
	if diff := cmp.Diff(want, rec.completionOrder()); diff != "" {
		t.Errorf("completion order mismatch (-want +got):\n%s", diff)
	}

	msgs := messages(snap)
	assert.Equal(t, "Initializing Job: "+validAddr, msgs[0])
	assert.Equal(t, internal.LogProcess, snap.Log[0].Kind)
	assert.Contains(t, msgs, "Phase 1: Retrieving on-chain data...")
	assert.Contains(t, msgs, "Querying block explorer...")
	assert.Contains(t, msgs, "Phase 2: Initializing Analysis Engine (Gemini (gemini-3-pro-preview))...")
	assert.Contains(t, msgs, "Analyzing 17 bytes of source code...")
	assert.Contains(t, msgs, "Static Analysis Complete: 1 findings")
	assert.Contains(t, msgs, "Gas Profiling Complete: 2 optimizations found")
	assert.Contains(t, msgs, "Economic Modeling Complete: 0 vectors analyzed")
	assert.Contains(t, msgs, "Upgradeability Check Complete: 1 items reviewed")
	assert.Equal(t, "Audit Report Generated Successfully", msgs[len(msgs)-1])
	assert.NotNil(t, snap.Result)
	assert.NotNil(t, snap.FinishedAt)
	assert.NotEmpty(t, snap.ID)
}

func TestRunSourceModeSucceeds(t *testing.T) {
	provider := &fakeProvider{}
	engine := &fakeEngine{report: sampleReport()}
	o := newTestOrchestrator(provider, engine, nil)

	rep, err := o.Run(context.Background(), Request{Mode: ModeSource, Input: longSource})
	require.NoError(t, err)
	assert.Equal(t, report.SourceInputAddress, rep.ContractAddress)
	assert.Equal(t, 0, provider.calls)
	assert.Equal(t, UploadedContractName, engine.gotName)
	assert.Equal(t, longSource, engine.gotSource)

	snap := o.Snapshot()
	assert.Equal(t, StateResults, snap.State)
	assert.Equal(t, "Initializing Job: Manual Source Code", snap.Log[0].Message)
	assert.Contains(t, messages(snap), "Phase 1: Using provided source code input.")
}

func TestObserverSeesStatusFanOut(t *testing.T) {
	rec := &recorder{}
	o := newTestOrchestrator(nil, &fakeEngine{report: sampleReport()}, rec)
	_, err := o.Run(context.Background(), Request{Mode: ModeSource, Input: longSource})
	require.NoError(t, err)

	found := false
	for _, s := range rec.snaps {
		if s.PhaseStatus(PhaseStaticAnalysis) == StatusProcessing &&
			s.PhaseStatus(PhaseGasAnalysis) == StatusProcessing &&
			s.PhaseStatus(PhaseEconomicAnalysis) == StatusProcessing &&
			s.PhaseStatus(PhaseUpgradeAnalysis) == StatusProcessing &&
			s.PhaseStatus(PhaseReportGeneration) == StatusPending {
			found = true
		}
	}
	assert.True(t, found, "four analysis phases should be PROCESSING together")
}

func TestValidationFailuresDoNotMutate(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		msg  string
	}{
		{"bad address", Request{Mode: ModeAddress, Input: "0x123"}, msgInvalidAddress},
		{"empty address", Request{Mode: ModeAddress, Input: "  "}, msgInvalidAddress},
		{"short key", Request{Mode: ModeAddress, Input: validAddr, Credential: "short"}, msgInvalidAPIKey},
		{"long key", Request{Mode: ModeAddress, Input: validAddr, Credential: validKey + "9"}, msgInvalidAPIKey},
		{"short source", Request{Mode: ModeSource, Input: "   contract A {}   "}, msgSourceTooShort},
		{"empty source", Request{Mode: ModeSource, Input: ""}, msgSourceTooShort},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &fakeProvider{}
			o := newTestOrchestrator(provider, &fakeEngine{report: sampleReport()}, nil)
			before := o.Snapshot()

			done, err := o.Start(context.Background(), tt.req)
			require.Error(t, err)
			assert.Nil(t, done)
			assert.True(t, errors.Is(err, internal.ErrValidation))

			after := o.Snapshot()
			assert.Equal(t, before.State, after.State)
			assert.Equal(t, before.Phases, after.Phases)
			require.Len(t, after.Log, 1)
			assert.Equal(t, internal.LogError, after.Log[0].Kind)
			assert.Equal(t, tt.msg, after.Log[0].Message)
			assert.Equal(t, 0, provider.calls)
		})
	}
}

func TestSourceLengthBoundary(t *testing.T) {
	o := newTestOrchestrator(nil, &fakeEngine{report: sampleReport()}, nil)
	exactly := strings.Repeat("a", MinSourceLength)

	_, err := o.Run(context.Background(), Request{Mode: ModeSource, Input: "  " + exactly + "  "})
	require.NoError(t, err)

	err = Validate(Request{Mode: ModeSource, Input: exactly[1:]})
	assert.ErrorIs(t, err, internal.ErrValidation)
}

func TestEngineFailureMarksPhasesFailed(t *testing.T) {
	engineErr := fmt.Errorf("%w: model not found", internal.ErrEngineUnavailable)
	o := newTestOrchestrator(&fakeProvider{contract: &internal.Contract{Name: "Vault", Code: "c"}},
		&fakeEngine{err: engineErr}, nil)

	_, err := o.Run(context.Background(), Request{Mode: ModeAddress, Input: validAddr})
	require.ErrorIs(t, err, internal.ErrEngineUnavailable)

	snap := o.Snapshot()
	assert.Equal(t, StateError, snap.State)
	assert.Equal(t, StatusCompleted, snap.PhaseStatus(PhaseFetch))
	for _, p := range Phases[1:] {
		assert.Equal(t, StatusFailed, snap.PhaseStatus(p), p)
	}
	assert.Nil(t, snap.Result)

	var errs []LogEntry
	for _, e := range snap.Log {
		if e.Kind == internal.LogError {
			errs = append(errs, e)
		}
	}
	require.Len(t, errs, 1)
	assert.Equal(t, engineErr.Error(), errs[0].Message)
}

func TestFetchFailure(t *testing.T) {
	fetchErr := fmt.Errorf("%w: Contract source code not verified on explorer", internal.ErrSourceNotFound)
	engine := &fakeEngine{report: sampleReport()}
	o := newTestOrchestrator(&fakeProvider{err: fetchErr}, engine, nil)

	_, err := o.Run(context.Background(), Request{Mode: ModeAddress, Input: validAddr})
	require.ErrorIs(t, err, internal.ErrSourceNotFound)

	snap := o.Snapshot()
	assert.Equal(t, StateError, snap.State)
	for _, p := range Phases {
		assert.Equal(t, StatusFailed, snap.PhaseStatus(p), p)
	}
	assert.Empty(t, engine.gotSource)
}

func TestPreflightFailsBeforeAnyPhase(t *testing.T) {
	provider := &fakeProvider{}
	rec := &recorder{}
	o := newTestOrchestrator(provider, &fakeEngine{preflightErr: fmt.Errorf("%w: API Key missing", internal.ErrConfiguration)}, rec)

	_, err := o.Run(context.Background(), Request{Mode: ModeAddress, Input: validAddr})
	require.ErrorIs(t, err, internal.ErrConfiguration)
	assert.Equal(t, 0, provider.calls)
	for _, s := range rec.snaps {
		assert.NotEqual(t, StatusProcessing, s.PhaseStatus(PhaseFetch))
	}
	assert.Equal(t, StateError, o.Snapshot().State)
}

func TestReentryRejectedWithoutMutation(t *testing.T) {
	engine := &fakeEngine{report: sampleReport(), block: make(chan struct{})}
	o := newTestOrchestrator(nil, engine, nil)

	done, err := o.Start(context.Background(), Request{Mode: ModeSource, Input: longSource})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return o.Snapshot().PhaseStatus(PhaseUpgradeAnalysis) == StatusProcessing
	}, time.Second, time.Millisecond)
	before := o.Snapshot()

	_, err = o.Start(context.Background(), Request{Mode: ModeAddress, Input: "bogus"})
	assert.ErrorIs(t, err, ErrJobRunning)
	assert.ErrorIs(t, o.Reset(), ErrJobRunning)
	assert.Equal(t, before, o.Snapshot())

	close(engine.block)
	<-done
	assert.Equal(t, StateResults, o.Snapshot().State)
	require.NoError(t, o.Reset())
	assert.Equal(t, StateIdle, o.Snapshot().State)
	assert.Empty(t, o.Snapshot().Log)
}

func TestStartIgnoresCallerCancellation(t *testing.T) {
	engine := &fakeEngine{report: sampleReport(), block: make(chan struct{})}
	o := newTestOrchestrator(nil, engine, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done, err := o.Start(ctx, Request{Mode: ModeSource, Input: longSource})
	require.NoError(t, err)
	cancel()
	close(engine.block)
	<-done
	assert.Equal(t, StateResults, o.Snapshot().State)
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	o := newTestOrchestrator(nil, &fakeEngine{report: sampleReport()}, nil)
	_, err := o.Run(context.Background(), Request{Mode: ModeSource, Input: longSource, Credential: validKey})
	require.NoError(t, err)

	s := o.Snapshot()
	s.Result.Vulnerabilities[0].ID = "mutated"
	s.Log[0].Message = "mutated"
	s.Phases[0].Status = StatusFailed

	fresh := o.Snapshot()
	assert.Equal(t, "SWC-107", fresh.Result.Vulnerabilities[0].ID)
	assert.NotEqual(t, "mutated", fresh.Log[0].Message)
	assert.Equal(t, StatusCompleted, fresh.Phases[0].Status)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, canTransition(StatusPending, StatusProcessing))
	assert.True(t, canTransition(StatusPending, StatusFailed))
	assert.True(t, canTransition(StatusProcessing, StatusCompleted))
	assert.False(t, canTransition(StatusCompleted, StatusFailed))
	assert.False(t, canTransition(StatusFailed, StatusProcessing))
	assert.False(t, canTransition(StatusProcessing, StatusPending))
	assert.False(t, canTransition(StatusPending, StatusCompleted))
}
