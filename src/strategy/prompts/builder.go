package prompts

import (
	"fmt"
	"strings"
	"text/template"
)

// AuditVariables 用户提示模板可用的变量
type AuditVariables struct {
	ContractName string
	SourceCode   string
}

// BuildPrompt 使用模板和变量构建最终的 prompt
func BuildPrompt(templateContent string, vars any) (string, error) {
	tmpl, err := template.New("prompt").Option("missingkey=error").Parse(templateContent)
	if err != nil {
		return "", fmt.Errorf("failed to parse prompt template: %w", err)
	}

	var result strings.Builder
	if err := tmpl.Execute(&result, vars); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}
	return result.String(), nil
}

// BuildAuditPrompt 构建审计用户提示。templateName 为空时使用默认模板
func BuildAuditPrompt(templateName, contractName, source string) (string, error) {
	if contractName == "" {
		contractName = "Unknown"
	}
	content, err := LoadTemplate(auditMode, templateName)
	if err != nil {
		return "", err
	}
	return BuildPrompt(content, AuditVariables{ContractName: contractName, SourceCode: source})
}
