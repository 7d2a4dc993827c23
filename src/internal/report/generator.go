package report

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/admi-n/auditgpt/src/internal/report/renderers"
)

// Generator 报告生成器接口
type Generator interface {
	Generate(r *AuditReport) (string, error)
	Extension() string
}

// Formats 支持的输出格式
var Formats = []string{"table", "markdown", "json", "yaml"}

// NewGenerator 根据格式名创建生成器
func NewGenerator(format string) (Generator, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "markdown", "md":
		return NewMarkdownGenerator(), nil
	case "json":
		return &JSONGenerator{Indent: "  "}, nil
	case "yaml", "yml":
		return &YAMLGenerator{}, nil
	case "table", "":
		return &TableGenerator{}, nil
	default:
		return nil, fmt.Errorf("unsupported report format %q (supported: %s)", format, strings.Join(Formats, ", "))
	}
}

// MarkdownGenerator markdown格式报告生成器
type MarkdownGenerator struct {
	md *renderers.MarkdownRenderer
}

// NewMarkdownGenerator 创建markdown报告生成器
func NewMarkdownGenerator() *MarkdownGenerator {
	return &MarkdownGenerator{md: renderers.NewMarkdownRenderer()}
}

func (g *MarkdownGenerator) Extension() string { return "md" }

// Generate 生成markdown格式报告
func (g *MarkdownGenerator) Generate(r *AuditReport) (string, error) {
	if r == nil {
		return "", fmt.Errorf("report is nil")
	}
	var b strings.Builder

	fmt.Fprintf(&b, "# AuditGPT Security Report: %s\n\n", r.ContractName)
	fmt.Fprintf(&b, "- **Address**: `%s`\n", r.ContractAddress)
	fmt.Fprintf(&b, "- **Network**: %s\n", r.Network)
	fmt.Fprintf(&b, "- **Audit Date**: %s\n", r.AuditDate)
	fmt.Fprintf(&b, "- **Security Score**: %d/100 (%s)\n\n", r.OverallScore, ScoreLabel(r.OverallScore))

	b.WriteString("## Executive Summary\n\n")
	b.WriteString(r.Summary + "\n\n")

	counts := r.SeverityCounts()
	t := renderers.NewTable(renderers.Markdown, "")
	t.Header("Severity", "Findings")
	for _, s := range Severities {
		t.Row(string(s), counts[s])
	}
	b.WriteString(t.String() + "\n\n")

	b.WriteString("## Vulnerabilities\n\n")
	if len(r.Vulnerabilities) == 0 {
		b.WriteString("No vulnerabilities reported.\n\n")
	}
	for i, v := range sortedVulnerabilities(r.Vulnerabilities) {
		b.WriteString(g.md.RenderFinding(renderers.Finding{
			Index:       i + 1,
			ID:          v.ID,
			Title:       v.Title,
			Severity:    string(v.Severity),
			Confidence:  string(v.Confidence),
			LineNumber:  v.LineNumber,
			Description: v.Description,
			Impact:      v.Impact,
			Remediation: v.Remediation,
			CodeFix:     v.CodeFix,
		}))
	}

	if len(r.GasAnalysis) > 0 {
		b.WriteString("## Gas Optimization\n\n")
		for _, gas := range r.GasAnalysis {
			fmt.Fprintf(&b, "### %s (%s)\n\n%s\n\n", gas.Category, gas.PotentialSavings, gas.Description)
			if strings.TrimSpace(gas.CodeSnippet) != "" {
				b.WriteString(g.md.CodeBlock("solidity", gas.CodeSnippet))
			}
		}
	}

	if len(r.EconomicAnalysis) > 0 {
		b.WriteString("## Economic Security\n\n")
		t := renderers.NewTable(renderers.Markdown, "")
		t.Header("Vector", "Risk", "Scenario", "Mitigation")
		for _, e := range r.EconomicAnalysis {
			t.Row(e.Vector, string(e.RiskLevel), e.Scenario, e.Mitigation)
		}
		b.WriteString(t.String() + "\n\n")
	}

	if len(r.UpgradeabilityAnalysis) > 0 {
		b.WriteString("## Upgradeability & Proxy\n\n")
		t := renderers.NewTable(renderers.Markdown, "")
		t.Header("Type", "Severity", "Description", "Recommendation")
		for _, u := range r.UpgradeabilityAnalysis {
			t.Row(u.Type, string(u.Severity), u.Description, u.Recommendation)
		}
		b.WriteString(t.String() + "\n\n")
	}

	if len(r.FormalVerificationSuggestions) > 0 {
		b.WriteString("## Formal Verification Suggestions\n\n")
		b.WriteString(g.md.Bullets(r.FormalVerificationSuggestions))
	}

	return b.String(), nil
}

// JSONGenerator JSON 导出
type JSONGenerator struct {
	Indent string
}

func (g *JSONGenerator) Extension() string { return "json" }

// Generate 生成 JSON
func (g *JSONGenerator) Generate(r *AuditReport) (string, error) {
	data, err := json.MarshalIndent(r, "", g.Indent)
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	return string(data), nil
}

// YAMLGenerator YAML 导出
type YAMLGenerator struct{}

func (g *YAMLGenerator) Extension() string { return "yaml" }

// Generate 生成 YAML
func (g *YAMLGenerator) Generate(r *AuditReport) (string, error) {
	data, err := yaml.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	return string(data), nil
}

// TableGenerator 终端表格输出
type TableGenerator struct{}

func (g *TableGenerator) Extension() string { return "txt" }

// Generate 生成终端表格
func (g *TableGenerator) Generate(r *AuditReport) (string, error) {
	if r == nil {
		return "", fmt.Errorf("report is nil")
	}
	var b strings.Builder

	head := renderers.NewTable(renderers.ASCII, "AuditGPT Report")
	head.Row("Contract", r.ContractName)
	head.Row("Address", r.ContractAddress)
	head.Row("Network", r.Network)
	head.Row("Audit Date", r.AuditDate)
	head.Row("Score", fmt.Sprintf("%d/100 (%s)", r.OverallScore, ScoreLabel(r.OverallScore)))
	head.Row("Summary", r.Summary)
	head.WrapColumn(2, 80)
	b.WriteString(head.String() + "\n\n")

	vulns := renderers.NewTable(renderers.ASCII, "Vulnerabilities")
	vulns.Header("#", "Severity", "ID", "Title", "Line", "Confidence")
	for i, v := range sortedVulnerabilities(r.Vulnerabilities) {
		vulns.Row(i+1, renderers.SeverityIcon(string(v.Severity))+" "+string(v.Severity), v.ID, v.Title, v.LineNumber, string(v.Confidence))
	}
	vulns.WrapColumn(4, 50)
	counts := r.SeverityCounts()
	vulns.Footer("", "Total", len(r.Vulnerabilities),
		fmt.Sprintf("High %d / Medium %d / Low %d / Info %d",
			counts[SeverityHigh], counts[SeverityMedium], counts[SeverityLow], counts[SeverityInfo]), "", "")
	b.WriteString(vulns.String() + "\n")

	if len(r.GasAnalysis) > 0 {
		gas := renderers.NewTable(renderers.ASCII, "Gas Optimization")
		gas.Header("Category", "Savings", "Description")
		for _, opt := range r.GasAnalysis {
			gas.Row(opt.Category, opt.PotentialSavings, opt.Description)
		}
		gas.WrapColumn(3, 60)
		b.WriteString("\n" + gas.String() + "\n")
	}
	if len(r.EconomicAnalysis) > 0 {
		eco := renderers.NewTable(renderers.ASCII, "Economic Security")
		eco.Header("Vector", "Risk", "Mitigation")
		for _, e := range r.EconomicAnalysis {
			eco.Row(e.Vector, string(e.RiskLevel), e.Mitigation)
		}
		eco.WrapColumn(3, 60)
		b.WriteString("\n" + eco.String() + "\n")
	}
	if len(r.UpgradeabilityAnalysis) > 0 {
		up := renderers.NewTable(renderers.ASCII, "Upgradeability")
		up.Header("Type", "Severity", "Recommendation")
		for _, u := range r.UpgradeabilityAnalysis {
			up.Row(u.Type, string(u.Severity), u.Recommendation)
		}
		up.WrapColumn(3, 60)
		b.WriteString("\n" + up.String() + "\n")
	}
	return b.String(), nil
}

// sortedVulnerabilities 按严重等级降序，同级保持原顺序
func sortedVulnerabilities(in []Vulnerability) []Vulnerability {
	out := append([]Vulnerability{}, in...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Severity.Rank() > out[j].Severity.Rank()
	})
	return out
}
