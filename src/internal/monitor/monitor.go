package monitor

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/admi-n/auditgpt/src/internal"
	"github.com/admi-n/auditgpt/src/internal/download"
	"github.com/admi-n/auditgpt/src/internal/report"
)

const (
	DefaultInterval = 2 * time.Second
	MaxEvents       = 50
	MaxChartPoints  = 20
	DefaultSymbol   = "MATIC"
)

// EventType 监控事件类型
type EventType string

const (
	EventTransaction EventType = "TRANSACTION"
	EventGasSpike    EventType = "GAS_SPIKE"
	EventAlert       EventType = "ALERT"
)

// 出现概率 3:1:1
var eventWeights = []EventType{EventTransaction, EventTransaction, EventTransaction, EventGasSpike, EventAlert}

var alertMessages = []string{
	"Suspicious reentrancy pattern detected",
	"Large withdrawal exceeding threshold",
	"Privileged role calling sensitive function",
	"Flash loan interaction detected",
}

// Status 合约监控状态
type Status string

const (
	StatusActive Status = "active"
	StatusPaused Status = "paused"
)

// Event 模拟的链上事件
type Event struct {
	ID           string          `json:"id"`
	Timestamp    time.Time       `json:"timestamp"`
	Type         EventType       `json:"type"`
	Severity     report.Severity `json:"severity"`
	Message      string          `json:"message"`
	Hash         string          `json:"hash"`
	Value        float64         `json:"value"`
	ContractName string          `json:"contractName,omitempty"`
}

// Stats 合约统计
type Stats struct {
	TxCount int     `json:"txCount"`
	Volume  float64 `json:"volume"`
	LastGas int     `json:"lastGas"`
}

// Contract 被监控的合约
type Contract struct {
	Address string  `json:"address"`
	Name    string  `json:"name"`
	Status  Status  `json:"status"`
	Events  []Event `json:"events"`
	Stats   Stats   `json:"stats"`
}

// ChartPoint 网络活动图表的一个采样点
type ChartPoint struct {
	Time time.Time `json:"time"`
	Gas  int       `json:"gas"`
	Txs  int       `json:"txs"`
}

// AlertConfig 告警配置，仅保存
type AlertConfig struct {
	Email            string  `json:"email" yaml:"email"`
	SlackWebhook     string  `json:"slackWebhook" yaml:"slackWebhook"`
	DiscordWebhook   string  `json:"discordWebhook" yaml:"discordWebhook"`
	MinTransfer      float64 `json:"minEthTransfer" yaml:"minEthTransfer"`
	GasThreshold     int     `json:"gasThreshold" yaml:"gasThreshold"`
	DetectFlashLoans bool    `json:"detectFlashLoans" yaml:"detectFlashLoans"`
}

// DefaultAlertConfig 默认告警配置
func DefaultAlertConfig() AlertConfig {
	return AlertConfig{MinTransfer: 10, GasThreshold: 300, DetectFlashLoans: true}
}

// Simulator 合约监控模拟器，事件全部随机生成
type Simulator struct {
	mu        sync.RWMutex
	contracts []*Contract
	chart     []ChartPoint
	alerts    AlertConfig

	rng      *rand.Rand
	interval time.Duration
	symbol   string
	now      func() time.Time
	logger   zerolog.Logger
}

// Option 可选项
type Option func(*Simulator)

// WithSeed 固定随机种子
func WithSeed(seed int64) Option {
	return func(s *Simulator) { s.rng = rand.New(rand.NewSource(seed)) }
}

// WithInterval 采样间隔
func WithInterval(d time.Duration) Option {
	return func(s *Simulator) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithSymbol 转账事件显示的代币符号
func WithSymbol(sym string) Option {
	return func(s *Simulator) { s.symbol = sym }
}

func WithClock(now func() time.Time) Option {
	return func(s *Simulator) { s.now = now }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Simulator) { s.logger = l }
}

// NewSimulator 创建模拟器
func NewSimulator(opts ...Option) *Simulator {
	s := &Simulator{
		alerts:   DefaultAlertConfig(),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		interval: DefaultInterval,
		symbol:   DefaultSymbol,
		now:      time.Now,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add 添加监控合约，地址统一为 checksum 格式
func (s *Simulator) Add(address, name string) (Contract, error) {
	address = strings.TrimSpace(address)
	name = strings.TrimSpace(name)
	if !download.IsValidAddress(address) {
		return Contract{}, internal.NewValidationError("address", "Invalid Polygon Address Format")
	}
	if name == "" {
		return Contract{}, internal.NewValidationError("name", "Contract name is required")
	}
	address = download.ChecksumAddress(address)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.find(address) != nil {
		return Contract{}, internal.NewValidationError("address", fmt.Sprintf("Contract %s is already monitored", address))
	}
	c := &Contract{Address: address, Name: name, Status: StatusActive, Events: []Event{}}
	s.contracts = append(s.contracts, c)
	s.logger.Info().Str("address", address).Str("name", name).Msg("monitoring contract")
	return c.clone(), nil
}

// Remove 移除合约，不存在时返回 false
func (s *Simulator) Remove(address string) bool {
	key := normalize(address)
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.contracts {
		if c.Address == key {
			s.contracts = append(s.contracts[:i], s.contracts[i+1:]...)
			return true
		}
	}
	return false
}

// Toggle 在 active/paused 之间切换
func (s *Simulator) Toggle(address string) (Contract, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.find(normalize(address))
	if c == nil {
		return Contract{}, false
	}
	if c.Status == StatusActive {
		c.Status = StatusPaused
	} else {
		c.Status = StatusActive
	}
	return c.clone(), true
}

// Contracts 全部合约的拷贝
func (s *Simulator) Contracts() []Contract {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Contract, 0, len(s.contracts))
	for _, c := range s.contracts {
		out = append(out, c.clone())
	}
	return out
}

// Feed 合并所有合约事件，按时间倒序
func (s *Simulator) Feed() []Event {
	s.mu.RLock()
	var out []Event
	for _, c := range s.contracts {
		for _, e := range c.Events {
			e.ContractName = c.Name
			out = append(out, e)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if out == nil {
		out = []Event{}
	}
	return out
}

// Chart 图表数据
func (s *Simulator) Chart() []ChartPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ChartPoint{}, s.chart...)
}

func (s *Simulator) AlertConfig() AlertConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.alerts
}

func (s *Simulator) SetAlertConfig(cfg AlertConfig) {
	s.mu.Lock()
	s.alerts = cfg
	s.mu.Unlock()
}

// Tick 生成一个采样点，并以 30% 概率为每个活跃合约生成一条事件
func (s *Simulator) Tick(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.chart = append(s.chart, ChartPoint{
		Time: now,
		Gas:  s.rng.Intn(200) + 50,
		Txs:  s.rng.Intn(20),
	})
	if len(s.chart) > MaxChartPoints {
		s.chart = append([]ChartPoint{}, s.chart[len(s.chart)-MaxChartPoints:]...)
	}

	for _, c := range s.contracts {
		if c.Status == StatusPaused {
			continue
		}
		if s.rng.Float64() <= 0.7 {
			continue
		}
		ev := s.event(now)
		c.Events = append([]Event{ev}, c.Events...)
		if len(c.Events) > MaxEvents {
			c.Events = c.Events[:MaxEvents]
		}
		c.Stats.TxCount++
		c.Stats.Volume += ev.Value
		c.Stats.LastGas = s.rng.Intn(100)

		if ev.Type == EventAlert {
			s.logger.Warn().Str("address", c.Address).Str("hash", ev.Hash).Msg(ev.Message)
		}
	}
}

// Run 按间隔调用 Tick，直到 ctx 结束
func (s *Simulator) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.logger.Info().Dur("interval", s.interval).Msg("monitor simulator started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("monitor simulator stopped")
			return nil
		case <-ticker.C:
			s.Tick(s.now())
		}
	}
}

func (s *Simulator) event(now time.Time) Event {
	ev := Event{
		ID:        uuid.NewString(),
		Timestamp: now,
		Type:      eventWeights[s.rng.Intn(len(eventWeights))],
		Severity:  report.SeverityInfo,
		Value:     float64(s.rng.Intn(10000)) / 100,
	}
	switch ev.Type {
	case EventGasSpike:
		ev.Severity = report.SeverityMedium
		ev.Message = fmt.Sprintf("Gas Usage Spike: %d Gwei detected", s.rng.Intn(500)+100)
	case EventAlert:
		ev.Severity = report.SeverityHigh
		ev.Message = alertMessages[s.rng.Intn(len(alertMessages))]
	default:
		ev.Message = fmt.Sprintf("Transfer of %.2f %s", s.rng.Float64()*5, s.symbol)
	}

	seed := make([]byte, 32)
	s.rng.Read(seed)
	ev.Hash = crypto.Keccak256Hash(seed).Hex()
	return ev
}

func (s *Simulator) find(address string) *Contract {
	for _, c := range s.contracts {
		if c.Address == address {
			return c
		}
	}
	return nil
}

func normalize(address string) string {
	address = strings.TrimSpace(address)
	if common.IsHexAddress(address) {
		return common.HexToAddress(address).Hex()
	}
	return address
}

func (c *Contract) clone() Contract {
	cp := *c
	cp.Events = append([]Event{}, c.Events...)
	return cp
}
