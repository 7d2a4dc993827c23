package report

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

// Storage 报告存储接口
type Storage interface {
	Save(r *AuditReport, content, ext string) (string, error)
}

// FileStorage 文件存储实现；Path 非空时写入指定文件，否则在 OutputDir 下按时间生成文件名
type FileStorage struct {
	OutputDir string
	Path      string
	now       func() time.Time
}

// NewFileStorage 创建文件存储
func NewFileStorage(outputDir string) *FileStorage {
	return &FileStorage{OutputDir: outputDir, now: time.Now}
}

// NewFileTarget 写入指定文件
func NewFileTarget(path string) *FileStorage {
	return &FileStorage{Path: path, now: time.Now}
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Save 保存报告到文件
func (s *FileStorage) Save(r *AuditReport, content, ext string) (string, error) {
	path := s.Path
	if path == "" {
		if err := os.MkdirAll(s.OutputDir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create output directory: %w", err)
		}
		name := unsafeName.ReplaceAllString(r.ContractName, "_")
		if name == "" {
			name = "contract"
		}
		path = filepath.Join(s.OutputDir, fmt.Sprintf("audit_%s_%d.%s", name, s.clock().Unix(), ext))
	} else if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write report file: %w", err)
	}
	return path, nil
}

func (s *FileStorage) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}
