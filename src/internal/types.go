package internal

// Contract 待审计合约的源码信息
type Contract struct {
	Address        string
	Name           string
	Code           string
	Compiler       string
	ChainID        string
	Proxy          bool
	Implementation string
}

// Bytes 源码字节数
func (c *Contract) Bytes() int {
	if c == nil {
		return 0
	}
	return len(c.Code)
}

// LogKind 日志条目类型
type LogKind string

const (
	LogInfo    LogKind = "info"
	LogProcess LogKind = "process"
	LogSuccess LogKind = "success"
	LogWarning LogKind = "warning"
	LogError   LogKind = "error"
)

// Progress 长耗时步骤向任务日志汇报进度
type Progress func(kind LogKind, msg string)

// Report 安全调用进度回调，nil 时忽略
func (p Progress) Report(kind LogKind, msg string) {
	if p != nil {
		p(kind, msg)
	}
}
