package parser

import "strings"

// Schema 审计报告的结构约束，同时用于构造各 provider 的 responseSchema
type Schema struct {
	Type        string
	Description string
	Enum        []string
	Properties  map[string]*Schema
	Order       []string // 属性输出顺序
	Required    []string
	Items       *Schema
}

var severityEnum = []string{"High", "Medium", "Low", "Info"}

func str(desc string) *Schema { return &Schema{Type: "string", Description: desc} }

func object(order []string, props map[string]*Schema) *Schema {
	return &Schema{Type: "object", Properties: props, Order: order, Required: order}
}

// ReportSchema 审计结果的 JSON 结构
var ReportSchema = object(
	[]string{"contractName", "overallScore", "summary", "vulnerabilities", "gasAnalysis",
		"economicAnalysis", "upgradeabilityAnalysis", "formalVerificationSuggestions"},
	map[string]*Schema{
		"contractName": str(""),
		"overallScore": {Type: "number", Description: "0-100 Security Score"},
		"summary":      str("Professional executive summary of findings."),
		"vulnerabilities": {Type: "array", Items: object(
			[]string{"id", "title", "severity", "description", "lineNumber", "remediation", "codeFix", "impact", "confidence"},
			map[string]*Schema{
				"id":          str("SWC ID or Slither Detector Name"),
				"title":       str(""),
				"severity":    {Type: "string", Enum: severityEnum},
				"description": str(""),
				"lineNumber":  {Type: "integer"},
				"remediation": str(""),
				"codeFix":     str(""),
				"impact":      str("What happens if exploited?"),
				"confidence":  {Type: "string", Enum: []string{"High", "Medium", "Low"}},
			})},
		"gasAnalysis": {Type: "array", Items: object(
			[]string{"category", "description", "potentialSavings", "codeSnippet"},
			map[string]*Schema{
				"category":         str(""),
				"description":      str(""),
				"potentialSavings": str(""),
				"codeSnippet":      str(""),
			})},
		"economicAnalysis": {Type: "array", Items: object(
			[]string{"vector", "riskLevel", "scenario", "mitigation"},
			map[string]*Schema{
				"vector":     str(""),
				"riskLevel":  {Type: "string", Enum: severityEnum},
				"scenario":   str(""),
				"mitigation": str(""),
			})},
		"upgradeabilityAnalysis": {Type: "array", Items: object(
			[]string{"type", "severity", "description", "recommendation"},
			map[string]*Schema{
				"type":           str("Type of upgrade issue e.g. Storage Collision"),
				"severity":       {Type: "string", Enum: severityEnum},
				"description":    str(""),
				"recommendation": str(""),
			})},
		"formalVerificationSuggestions": {Type: "array", Items: str("")},
	},
)

// GeminiSchema 渲染为 Gemini responseSchema（类型名大写）
func (s *Schema) GeminiSchema() map[string]any {
	return s.render(strings.ToUpper, false)
}

// JSONSchema 渲染为标准 JSON Schema，供 OpenAI 兼容接口与 Ollama 使用
func (s *Schema) JSONSchema() map[string]any {
	return s.render(strings.ToLower, true)
}

func (s *Schema) render(typeCase func(string) string, strict bool) map[string]any {
	out := map[string]any{"type": typeCase(s.Type)}
	if s.Description != "" {
		out["description"] = s.Description
	}
	if len(s.Enum) > 0 {
		out["enum"] = append([]string{}, s.Enum...)
	}
	if s.Items != nil {
		out["items"] = s.Items.render(typeCase, strict)
	}
	if len(s.Properties) > 0 {
		props := make(map[string]any, len(s.Properties))
		for name, p := range s.Properties {
			props[name] = p.render(typeCase, strict)
		}
		out["properties"] = props
		if len(s.Order) > 0 && !strict {
			out["propertyOrdering"] = append([]string{}, s.Order...)
		}
		if strict {
			out["additionalProperties"] = false
		}
	}
	if len(s.Required) > 0 {
		out["required"] = append([]string{}, s.Required...)
	}
	return out
}

// Describe 生成给不支持结构化输出的模型看的字段说明
func (s *Schema) Describe() string {
	var b strings.Builder
	s.describe(&b, "", 0)
	return b.String()
}

func (s *Schema) describe(b *strings.Builder, name string, depth int) {
	indent := strings.Repeat("  ", depth)
	if name != "" {
		b.WriteString(indent + "- " + name + ": " + s.Type)
		if len(s.Enum) > 0 {
			b.WriteString(" (" + strings.Join(s.Enum, "|") + ")")
		}
		if s.Description != "" {
			b.WriteString(" - " + s.Description)
		}
		b.WriteString("\n")
	}
	child := s
	if s.Items != nil {
		child = s.Items
	}
	for _, p := range child.Order {
		next := depth + 1
		if name == "" {
			next = depth
		}
		child.Properties[p].describe(b, p, next)
	}
}
