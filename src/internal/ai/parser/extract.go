package parser

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	jsonFence   = regexp.MustCompile("(?i)```json\\s*([\\s\\S]*?)\\s*```")
	jsonOpener  = regexp.MustCompile("(?i)```json\\s*")
	anyFence    = regexp.MustCompile("```[ \\t]*\\r?\\n?([\\s\\S]*?)```")
	fenceMarker = "```"
)

// Extract 从模型输出中取出 JSON 文本。
// 候选顺序：```json 代码块；内容以 { 开头的裸代码块；第一个 { 到最后一个 }；原文。
// 返回第一个合法 JSON 的候选，都不合法时返回第一个候选。
// 其他语言的代码块（例如 codeFix 中的 ```solidity）不会被当作结果。
func Extract(raw string) string {
	candidates := extractCandidates(strings.TrimSpace(raw))
	for _, c := range candidates {
		if json.Valid([]byte(c)) {
			return c
		}
	}
	return candidates[0]
}

func extractCandidates(text string) []string {
	var out []string
	if m := jsonFence.FindStringSubmatch(text); len(m) > 1 {
		out = append(out, strings.TrimSpace(m[1]))
	}
	// 代码块内的字符串值本身含有 ``` 时，懒惰匹配会提前截断
	if loc := jsonOpener.FindStringIndex(text); loc != nil {
		if end := strings.LastIndex(text, fenceMarker); end > loc[1] {
			out = append(out, strings.TrimSpace(text[loc[1]:end]))
		}
	}
	for _, m := range anyFence.FindAllStringSubmatch(text, -1) {
		if body := strings.TrimSpace(m[1]); strings.HasPrefix(body, "{") {
			out = append(out, body)
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		out = append(out, text[start:end+1])
	}
	return append(out, text)
}
