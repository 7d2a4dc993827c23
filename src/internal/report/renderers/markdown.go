package renderers

import (
	"fmt"
	"strings"
)

// MarkdownRenderer markdown 片段渲染器
type MarkdownRenderer struct{}

// NewMarkdownRenderer 创建markdown渲染器
func NewMarkdownRenderer() *MarkdownRenderer {
	return &MarkdownRenderer{}
}

// Finding 单条发现的渲染输入
type Finding struct {
	Index       int
	ID          string
	Title       string
	Severity    string
	Confidence  string
	LineNumber  int
	Description string
	Impact      string
	Remediation string
	CodeFix     string
}

// RenderFinding 渲染单个漏洞
func (r *MarkdownRenderer) RenderFinding(f Finding) string {
	var b strings.Builder
	fmt.Fprintf(&b, "### %d. %s **[%s]** %s", f.Index, SeverityIcon(f.Severity), f.Severity, f.Title)
	if f.ID != "" {
		fmt.Fprintf(&b, " (`%s`)", f.ID)
	}
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "- **Confidence**: %s\n", f.Confidence)
	if f.LineNumber > 0 {
		fmt.Fprintf(&b, "- **Line**: %d\n", f.LineNumber)
	}
	b.WriteString("\n")
	writeField(&b, "Description", f.Description)
	writeField(&b, "Impact", f.Impact)
	writeField(&b, "Remediation", f.Remediation)
	if strings.TrimSpace(f.CodeFix) != "" {
		b.WriteString(r.CodeBlock("solidity", f.CodeFix))
	}
	return b.String()
}

// CodeBlock 渲染代码块
func (r *MarkdownRenderer) CodeBlock(lang, code string) string {
	return fmt.Sprintf("```%s\n%s\n```\n\n", lang, strings.TrimRight(code, "\n"))
}

// Bullets 渲染列表
func (r *MarkdownRenderer) Bullets(items []string) string {
	var b strings.Builder
	for _, it := range items {
		fmt.Fprintf(&b, "- %s\n", it)
	}
	b.WriteString("\n")
	return b.String()
}

func writeField(b *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	fmt.Fprintf(b, "**%s**: %s\n\n", label, value)
}

// SeverityIcon 获取严重等级对应的图标
func SeverityIcon(severity string) string {
	switch severity {
	case "High":
		return "🔴"
	case "Medium":
		return "🟠"
	case "Low":
		return "🟡"
	default:
		return "⚪"
	}
}
