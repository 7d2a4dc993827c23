package monitor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admi-n/auditgpt/src/internal"
	"github.com/admi-n/auditgpt/src/internal/report"
)

const (
	addrA = "0x5fbdb2315678afecb367f032d93f642f64180aa3"
	addrB = "0xe7f1725e7734ce288f8367e1bb143e90bb3f0512"
)

func TestAddValidation(t *testing.T) {
	s := NewSimulator(WithSeed(1))

	_, err := s.Add("0x123", "Vault")
	assert.ErrorIs(t, err, internal.ErrValidation)

	_, err = s.Add(addrA, "  ")
	assert.ErrorIs(t, err, internal.ErrValidation)

	c, err := s.Add(addrA, "Vault")
	require.NoError(t, err)
	assert.Equal(t, "0x5FbDB2315678afecb367f032d93F642f64180aa3", c.Address)
	assert.Equal(t, StatusActive, c.Status)
	assert.Empty(t, c.Events)

	_, err = s.Add("0x5FbDB2315678afecb367f032d93F642f64180aa3", "Again")
	assert.ErrorIs(t, err, internal.ErrValidation)
	assert.Len(t, s.Contracts(), 1)
}

func TestToggleAndRemove(t *testing.T) {
	s := NewSimulator(WithSeed(1))
	_, err := s.Add(addrA, "Vault")
	require.NoError(t, err)

	c, ok := s.Toggle(addrA)
	require.True(t, ok)
	assert.Equal(t, StatusPaused, c.Status)
	c, _ = s.Toggle(addrA)
	assert.Equal(t, StatusActive, c.Status)

	_, ok = s.Toggle(addrB)
	assert.False(t, ok)

	assert.True(t, s.Remove(addrA))
	assert.False(t, s.Remove(addrA))
	assert.Empty(t, s.Contracts())
}

func TestTickCapsChartAndEvents(t *testing.T) {
	s := NewSimulator(WithSeed(42))
	_, err := s.Add(addrA, "Vault")
	require.NoError(t, err)

	start := time.Unix(1700000000, 0)
	for i := 0; i < 400; i++ {
		s.Tick(start.Add(time.Duration(i) * time.Second))
	}

	chart := s.Chart()
	require.Len(t, chart, MaxChartPoints)
	assert.Equal(t, start.Add(399*time.Second), chart[len(chart)-1].Time)
	for _, p := range chart {
		assert.GreaterOrEqual(t, p.Gas, 50)
		assert.Less(t, p.Gas, 250)
		assert.GreaterOrEqual(t, p.Txs, 0)
		assert.Less(t, p.Txs, 20)
	}

	c := s.Contracts()[0]
	require.Len(t, c.Events, MaxEvents)
	assert.Greater(t, c.Stats.TxCount, MaxEvents)
	for i := 1; i < len(c.Events); i++ {
		assert.False(t, c.Events[i].Timestamp.After(c.Events[i-1].Timestamp), "events must be newest first")
	}
	for _, e := range c.Events {
		assert.Len(t, e.Hash, 66)
		assert.True(t, strings.HasPrefix(e.Hash, "0x"))
		assert.NotEmpty(t, e.ID)
		switch e.Type {
		case EventTransaction:
			assert.Equal(t, report.SeverityInfo, e.Severity)
			assert.Contains(t, e.Message, "Transfer of ")
			assert.True(t, strings.HasSuffix(e.Message, " MATIC"))
		case EventGasSpike:
			assert.Equal(t, report.SeverityMedium, e.Severity)
			assert.Contains(t, e.Message, "Gas Usage Spike:")
		case EventAlert:
			assert.Equal(t, report.SeverityHigh, e.Severity)
			assert.Contains(t, alertMessages, e.Message)
		default:
			t.Fatalf("unexpected event type %q", e.Type)
		}
	}
}

func TestPausedContractsStayQuiet(t *testing.T) {
	s := NewSimulator(WithSeed(7))
	_, err := s.Add(addrA, "Vault")
	require.NoError(t, err)
	s.Toggle(addrA)

	for i := 0; i < 100; i++ {
		s.Tick(time.Unix(int64(i), 0))
	}
	c := s.Contracts()[0]
	assert.Empty(t, c.Events)
	assert.Zero(t, c.Stats.TxCount)
	assert.Len(t, s.Chart(), MaxChartPoints)
}

func TestSeededRunsAreDeterministic(t *testing.T) {
	run := func() []Event {
		s := NewSimulator(WithSeed(99))
		_, err := s.Add(addrA, "Vault")
		require.NoError(t, err)
		for i := 0; i < 30; i++ {
			s.Tick(time.Unix(int64(i), 0))
		}
		return s.Contracts()[0].Events
	}
	a, b := run(), run()
	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i].Hash, b[i].Hash)
		assert.Equal(t, a[i].Message, b[i].Message)
	}
}

func TestFeedMergesNewestFirst(t *testing.T) {
	s := NewSimulator(WithSeed(3))
	_, err := s.Add(addrA, "Vault")
	require.NoError(t, err)
	_, err = s.Add(addrB, "Router")
	require.NoError(t, err)

	assert.NotNil(t, s.Feed())
	assert.Empty(t, s.Feed())

	for i := 0; i < 60; i++ {
		s.Tick(time.Unix(int64(i), 0))
	}
	feed := s.Feed()
	require.NotEmpty(t, feed)
	names := map[string]bool{}
	for i, e := range feed {
		names[e.ContractName] = true
		if i > 0 {
			assert.False(t, e.Timestamp.After(feed[i-1].Timestamp))
		}
	}
	assert.True(t, names["Vault"])
	assert.True(t, names["Router"])

	total := 0
	for _, c := range s.Contracts() {
		total += len(c.Events)
		for _, e := range c.Events {
			assert.Empty(t, e.ContractName)
		}
	}
	assert.Len(t, feed, total)
}

func TestAlertConfig(t *testing.T) {
	s := NewSimulator()
	assert.Equal(t, DefaultAlertConfig(), s.AlertConfig())

	cfg := AlertConfig{Email: "ops@example.com", GasThreshold: 500}
	s.SetAlertConfig(cfg)
	assert.Equal(t, cfg, s.AlertConfig())
}

func TestRunStopsOnCancel(t *testing.T) {
	s := NewSimulator(WithSeed(5), WithInterval(5*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return len(s.Chart()) >= 2 }, time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("simulator did not stop")
	}
}
