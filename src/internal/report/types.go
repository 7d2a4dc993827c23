package report

import "strings"

// Severity 漏洞严重等级
type Severity string

const (
	SeverityHigh   Severity = "High"
	SeverityMedium Severity = "Medium"
	SeverityLow    Severity = "Low"
	SeverityInfo   Severity = "Info"
)

// Severities 按严重程度从高到低排列
var Severities = []Severity{SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo}

// NormalizeSeverity 大小写不敏感地归一化严重等级；Critical 视为 High，未知值视为 Info
func NormalizeSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical", "high":
		return SeverityHigh
	case "medium":
		return SeverityMedium
	case "low":
		return SeverityLow
	default:
		return SeverityInfo
	}
}

// Rank 用于排序，数值越大越严重
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 4
	case SeverityMedium:
		return 3
	case SeverityLow:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// Confidence 检出置信度
type Confidence string

const (
	ConfidenceHigh   Confidence = "High"
	ConfidenceMedium Confidence = "Medium"
	ConfidenceLow    Confidence = "Low"
)

// NormalizeConfidence 未知值视为 Low
func NormalizeConfidence(s string) Confidence {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return ConfidenceHigh
	case "medium":
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// SourceInputAddress 粘贴源码模式下的合约地址占位
const SourceInputAddress = "N/A (Source Input)"

// DefaultNetwork 默认网络标签
const DefaultNetwork = "Polygon PoS"

// AuditReport 一次审计的完整结果
type AuditReport struct {
	ContractName                  string                  `json:"contractName" yaml:"contractName"`
	ContractAddress               string                  `json:"contractAddress" yaml:"contractAddress"`
	Network                       string                  `json:"network" yaml:"network"`
	AuditDate                     string                  `json:"auditDate" yaml:"auditDate"`
	OverallScore                  int                     `json:"overallScore" yaml:"overallScore"`
	Summary                       string                  `json:"summary" yaml:"summary"`
	Vulnerabilities               []Vulnerability         `json:"vulnerabilities" yaml:"vulnerabilities"`
	GasAnalysis                   []GasOptimization       `json:"gasAnalysis" yaml:"gasAnalysis"`
	EconomicAnalysis              []EconomicRisk          `json:"economicAnalysis" yaml:"economicAnalysis"`
	UpgradeabilityAnalysis        []UpgradeabilityFinding `json:"upgradeabilityAnalysis" yaml:"upgradeabilityAnalysis"`
	FormalVerificationSuggestions []string                `json:"formalVerificationSuggestions" yaml:"formalVerificationSuggestions"`
}

// Vulnerability 安全漏洞
type Vulnerability struct {
	ID          string     `json:"id" yaml:"id"`
	Title       string     `json:"title" yaml:"title"`
	Severity    Severity   `json:"severity" yaml:"severity"`
	Description string     `json:"description" yaml:"description"`
	LineNumber  int        `json:"lineNumber" yaml:"lineNumber"`
	Remediation string     `json:"remediation" yaml:"remediation"`
	CodeFix     string     `json:"codeFix" yaml:"codeFix"`
	Impact      string     `json:"impact" yaml:"impact"`
	Confidence  Confidence `json:"confidence" yaml:"confidence"`
}

// GasOptimization gas 优化建议
type GasOptimization struct {
	Category         string `json:"category" yaml:"category"`
	Description      string `json:"description" yaml:"description"`
	PotentialSavings string `json:"potentialSavings" yaml:"potentialSavings"`
	CodeSnippet      string `json:"codeSnippet" yaml:"codeSnippet"`
}

// EconomicRisk 经济攻击向量
type EconomicRisk struct {
	Vector     string   `json:"vector" yaml:"vector"`
	RiskLevel  Severity `json:"riskLevel" yaml:"riskLevel"`
	Scenario   string   `json:"scenario" yaml:"scenario"`
	Mitigation string   `json:"mitigation" yaml:"mitigation"`
}

// UpgradeabilityFinding 可升级性 / 代理模式检查项
type UpgradeabilityFinding struct {
	Type           string   `json:"type" yaml:"type"`
	Severity       Severity `json:"severity" yaml:"severity"`
	Description    string   `json:"description" yaml:"description"`
	Recommendation string   `json:"recommendation" yaml:"recommendation"`
}

// SeverityCounts 按严重等级统计漏洞数量
func (r *AuditReport) SeverityCounts() map[Severity]int {
	counts := make(map[Severity]int, len(Severities))
	for _, s := range Severities {
		counts[s] = 0
	}
	if r == nil {
		return counts
	}
	for _, v := range r.Vulnerabilities {
		counts[v.Severity]++
	}
	return counts
}

// Clone 深拷贝，供快照使用
func (r *AuditReport) Clone() *AuditReport {
	if r == nil {
		return nil
	}
	c := *r
	c.Vulnerabilities = append([]Vulnerability{}, r.Vulnerabilities...)
	c.GasAnalysis = append([]GasOptimization{}, r.GasAnalysis...)
	c.EconomicAnalysis = append([]EconomicRisk{}, r.EconomicAnalysis...)
	c.UpgradeabilityAnalysis = append([]UpgradeabilityFinding{}, r.UpgradeabilityAnalysis...)
	c.FormalVerificationSuggestions = append([]string{}, r.FormalVerificationSuggestions...)
	return &c
}

// ScoreLabel 根据总分给出等级文字
func ScoreLabel(score int) string {
	switch {
	case score >= 90:
		return "Excellent"
	case score >= 75:
		return "Good"
	case score >= 50:
		return "Fair"
	default:
		return "Poor"
	}
}
