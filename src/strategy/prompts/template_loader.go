package prompts

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	auditMode       = "audit"
	defaultTemplate = "default"
)

//go:embed audit/*.tmpl
var builtin embed.FS

// TemplateDir 本地模板目录，同名文件覆盖内置模板
var TemplateDir = filepath.Join("strategy", "prompts")

// LoadTemplate 加载指定模式下的 prompt 模板，优先读取本地目录
func LoadTemplate(mode, name string) (string, error) {
	if name == "" {
		name = defaultTemplate
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return "", fmt.Errorf("invalid template name %q", name)
	}

	templatePath := filepath.Join(TemplateDir, mode, name+".tmpl")
	content, err := os.ReadFile(templatePath)
	if err == nil {
		return string(content), nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("failed to load template %s: %w", templatePath, err)
	}

	content, err = builtin.ReadFile(mode + "/" + name + ".tmpl")
	if err != nil {
		return "", fmt.Errorf("template %s/%s not found", mode, name)
	}
	return string(content), nil
}

// ListTemplates 列出内置与本地的全部模板名称
func ListTemplates(mode string) ([]string, error) {
	seen := map[string]bool{}

	entries, err := fs.ReadDir(builtin, mode)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read builtin templates: %w", err)
	}
	local, err := os.ReadDir(filepath.Join(TemplateDir, mode))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read prompts directory: %w", err)
	}
	entries = append(entries, local...)

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".tmpl") {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".tmpl")
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no templates found for mode %s", mode)
	}
	sort.Strings(names)
	return names, nil
}
