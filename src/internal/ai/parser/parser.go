package parser

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/admi-n/auditgpt/src/internal"
	"github.com/admi-n/auditgpt/src/internal/report"
)

// DefaultContractName 模型与调用方都未给出名称时使用
const DefaultContractName = "SmartContract"

// rawReport 模型输出的宽松形态，缺失字段与 null 需要区分
type rawReport struct {
	ContractName                  string                   `json:"contractName"`
	OverallScore                  *float64                 `json:"overallScore"`
	Summary                       *string                  `json:"summary"`
	Vulnerabilities               []rawVulnerability       `json:"vulnerabilities"`
	GasAnalysis                   []report.GasOptimization `json:"gasAnalysis"`
	EconomicAnalysis              []rawEconomic            `json:"economicAnalysis"`
	UpgradeabilityAnalysis        []rawUpgrade             `json:"upgradeabilityAnalysis"`
	FormalVerificationSuggestions []string                 `json:"formalVerificationSuggestions"`
}

type rawVulnerability struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Severity    string  `json:"severity"`
	Description string  `json:"description"`
	LineNumber  float64 `json:"lineNumber"`
	Remediation string  `json:"remediation"`
	CodeFix     string  `json:"codeFix"`
	Impact      string  `json:"impact"`
	Confidence  string  `json:"confidence"`
}

type rawEconomic struct {
	Vector     string `json:"vector"`
	RiskLevel  string `json:"riskLevel"`
	Scenario   string `json:"scenario"`
	Mitigation string `json:"mitigation"`
}

type rawUpgrade struct {
	Type           string `json:"type"`
	Severity       string `json:"severity"`
	Description    string `json:"description"`
	Recommendation string `json:"recommendation"`
}

// Parse 将模型输出解析为审计报告。
// 地址、网络与日期由调用方填写。
func Parse(raw, fallbackName string) (*report.AuditReport, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%w: empty response", internal.ErrMalformedResponse)
	}

	var data rawReport
	if err := json.Unmarshal([]byte(Extract(raw)), &data); err != nil {
		return nil, fmt.Errorf("%w: Failed to parse AI Analysis results. The model output was not valid JSON: %v",
			internal.ErrMalformedResponse, err)
	}
	if data.OverallScore == nil {
		return nil, fmt.Errorf("%w: missing overallScore", internal.ErrMalformedResponse)
	}
	if data.Summary == nil {
		return nil, fmt.Errorf("%w: missing summary", internal.ErrMalformedResponse)
	}

	name := strings.TrimSpace(data.ContractName)
	if name == "" {
		name = strings.TrimSpace(fallbackName)
	}
	if name == "" {
		name = DefaultContractName
	}

	r := &report.AuditReport{
		ContractName:                  name,
		OverallScore:                  clampScore(*data.OverallScore),
		Summary:                       *data.Summary,
		Vulnerabilities:               make([]report.Vulnerability, 0, len(data.Vulnerabilities)),
		GasAnalysis:                   make([]report.GasOptimization, 0, len(data.GasAnalysis)),
		EconomicAnalysis:              make([]report.EconomicRisk, 0, len(data.EconomicAnalysis)),
		UpgradeabilityAnalysis:        make([]report.UpgradeabilityFinding, 0, len(data.UpgradeabilityAnalysis)),
		FormalVerificationSuggestions: make([]string, 0, len(data.FormalVerificationSuggestions)),
	}
	for _, v := range data.Vulnerabilities {
		r.Vulnerabilities = append(r.Vulnerabilities, report.Vulnerability{
			ID:          v.ID,
			Title:       v.Title,
			Severity:    report.NormalizeSeverity(v.Severity),
			Description: v.Description,
			LineNumber:  clampLine(v.LineNumber),
			Remediation: v.Remediation,
			CodeFix:     v.CodeFix,
			Impact:      v.Impact,
			Confidence:  report.NormalizeConfidence(v.Confidence),
		})
	}
	r.GasAnalysis = append(r.GasAnalysis, data.GasAnalysis...)
	for _, e := range data.EconomicAnalysis {
		r.EconomicAnalysis = append(r.EconomicAnalysis, report.EconomicRisk{
			Vector:     e.Vector,
			RiskLevel:  report.NormalizeSeverity(e.RiskLevel),
			Scenario:   e.Scenario,
			Mitigation: e.Mitigation,
		})
	}
	for _, u := range data.UpgradeabilityAnalysis {
		r.UpgradeabilityAnalysis = append(r.UpgradeabilityAnalysis, report.UpgradeabilityFinding{
			Type:           u.Type,
			Severity:       report.NormalizeSeverity(u.Severity),
			Description:    u.Description,
			Recommendation: u.Recommendation,
		})
	}
	r.FormalVerificationSuggestions = append(r.FormalVerificationSuggestions, data.FormalVerificationSuggestions...)
	return r, nil
}

// clampLine 行号截断为 [0, MaxInt32] 内的整数
func clampLine(v float64) int {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(v)
}

func clampScore(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	return int(math.Round(math.Max(0, math.Min(100, v))))
}
