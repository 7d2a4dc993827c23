package prompts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildAuditPromptDefault(t *testing.T) {
	t.Chdir(t.TempDir())

	p, err := BuildAuditPrompt("", "Vault", "contract Vault {}")
	require.NoError(t, err)
	assert.Equal(t, "AUDIT TARGET SOURCE CODE (Vault):\n\ncontract Vault {}\n", p)

	p, err = BuildAuditPrompt("", "", "x")
	require.NoError(t, err)
	assert.Contains(t, p, "(Unknown)")
}

func TestLocalTemplateOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "strategy", "prompts", "audit"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "strategy", "prompts", "audit", "terse.tmpl"),
		[]byte("{{.ContractName}}|{{.SourceCode}}"), 0o644))

	p, err := BuildAuditPrompt("terse", "Token", "code")
	require.NoError(t, err)
	assert.Equal(t, "Token|code", p)

	names, err := ListTemplates("audit")
	require.NoError(t, err)
	assert.Equal(t, []string{"default", "economic", "terse"}, names)
}

func TestLoadTemplateErrors(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := LoadTemplate("audit", "missing")
	assert.Error(t, err)
	_, err = LoadTemplate("audit", "../secrets")
	assert.Error(t, err)

	_, err = BuildPrompt("{{.Nope", nil)
	assert.Error(t, err)
}

func TestSystemPrompt(t *testing.T) {
	sp := SystemPrompt()
	assert.Contains(t, sp, "SWC-107")
	assert.Contains(t, sp, "UPGRADEABILITY & PROXY ANALYSIS")
}
