package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admi-n/auditgpt/src/internal"
	"github.com/admi-n/auditgpt/src/internal/handler"
	"github.com/admi-n/auditgpt/src/internal/monitor"
)

func TestAuditOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    AuditOptions
		wantErr bool
	}{
		{"address", AuditOptions{Address: "0x5FbDB2315678afecb367f032d93F642f64180aa3"}, false},
		{"file", AuditOptions{File: "Vault.sol", Format: "markdown"}, false},
		{"nothing", AuditOptions{}, true},
		{"two inputs", AuditOptions{Address: "0x1", File: "a.sol"}, true},
		{"key without address", AuditOptions{Source: "-", APIKey: "k"}, true},
		{"bad format", AuditOptions{Source: "-", Format: "pdf"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	assert.Equal(t, handler.ModeAddress, (&AuditOptions{Address: "0x1"}).Mode())
	assert.Equal(t, handler.ModeSource, (&AuditOptions{File: "a.sol"}).Mode())
}

func TestParseContractFlag(t *testing.T) {
	name, addr, err := parseContractFlag(" Vault = 0xabc ")
	require.NoError(t, err)
	assert.Equal(t, "Vault", name)
	assert.Equal(t, "0xabc", addr)

	for _, bad := range []string{"Vault", "=0xabc", "Vault="} {
		_, _, err := parseContractFlag(bad)
		assert.Error(t, err, bad)
	}
}

func TestVersionCommandSkipsConfig(t *testing.T) {
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version", "--config", filepath.Join(t.TempDir(), "missing.yaml")})
	require.NoError(t, root.Execute())
	assert.Equal(t, "auditgpt dev\n", out.String())
}

func TestAuditRejectsShortSourceWithoutEngine(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")

	path := filepath.Join(t.TempDir(), "Tiny.sol")
	require.NoError(t, os.WriteFile(path, []byte("contract A {}"), 0o644))

	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"audit", "--file", path, "--log-level", "error"})
	err := root.Execute()
	require.ErrorIs(t, err, internal.ErrValidation)
	assert.Contains(t, out.String(), "Source code is too short or empty.")
}

func TestLogPrinterPrintsIncrementally(t *testing.T) {
	var out bytes.Buffer
	p := &logPrinter{out: &out}
	ts := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	p.observe(handler.Snapshot{Log: []handler.LogEntry{{Timestamp: ts, Message: "one", Kind: internal.LogProcess}}})
	p.observe(handler.Snapshot{Log: []handler.LogEntry{
		{Timestamp: ts, Message: "one", Kind: internal.LogProcess},
		{Timestamp: ts, Message: "two", Kind: internal.LogSuccess},
	}})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "[12:00:00] ⏳ one", lines[0])
	assert.Equal(t, "[12:00:00] ✅ two", lines[1])
}

func TestPrintNewEventsAndSummary(t *testing.T) {
	sim := monitor.NewSimulator(monitor.WithSeed(21))
	_, err := sim.Add("0x5FbDB2315678afecb367f032d93F642f64180aa3", "Vault")
	require.NoError(t, err)
	for i := 0; i < 30; i++ {
		sim.Tick(time.Unix(int64(i), 0))
	}

	var out bytes.Buffer
	feed := sim.Feed()
	seen := printNewEvents(&out, feed, map[string]bool{})
	assert.Len(t, seen, len(feed))
	assert.Equal(t, len(feed), strings.Count(out.String(), "\n"))

	out.Reset()
	printNewEvents(&out, feed, seen)
	assert.Empty(t, out.String())

	summary := monitorSummary(sim.Contracts())
	assert.Contains(t, summary, "Vault")
	assert.Contains(t, summary, "0x5FbDB2315678afecb367f032d93F642f64180aa3")
}
