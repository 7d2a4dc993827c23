package download

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/admi-n/auditgpt/src/internal"
)

// PolygonChainID Polygon PoS 主网
const PolygonChainID = "137"

// EtherscanConfig Etherscan v2 兼容接口配置
type EtherscanConfig struct {
	APIKey  string
	BaseURL string
	ChainID string
	Proxy   string
	Timeout time.Duration
}

// EtherscanResponse Etherscan API 响应结构；出错时 result 是字符串
type EtherscanResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// SourceRecord getsourcecode 返回的单条记录
type SourceRecord struct {
	SourceCode      string `json:"SourceCode"`
	ABI             string `json:"ABI"`
	ContractName    string `json:"ContractName"`
	CompilerVersion string `json:"CompilerVersion"`
	Proxy           string `json:"Proxy"`
	Implementation  string `json:"Implementation"`
}

// EtherscanClient 区块浏览器源码接口
type EtherscanClient struct {
	cfg        EtherscanConfig
	httpClient *http.Client
}

// NewEtherscanClient 创建浏览器客户端
func NewEtherscanClient(cfg EtherscanConfig) (*EtherscanClient, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.etherscan.io/v2"
	}
	if cfg.ChainID == "" {
		cfg.ChainID = PolygonChainID
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Second
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid explorer base URL: %w", err)
	}
	hc, err := internal.NewHTTPClient(cfg.Proxy, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	return &EtherscanClient{cfg: cfg, httpClient: hc}, nil
}

// ChainID 当前查询的链
func (c *EtherscanClient) ChainID() string { return c.cfg.ChainID }

// GetContractSource 获取已验证合约源码。apiKey 非空时覆盖配置中的 key
func (c *EtherscanClient) GetContractSource(ctx context.Context, address, apiKey string) (*internal.Contract, error) {
	u, _ := url.Parse(strings.TrimRight(c.cfg.BaseURL, "/"))
	u.Path = strings.TrimRight(u.Path, "/") + "/api"

	key := strings.TrimSpace(apiKey)
	if key == "" {
		key = strings.TrimSpace(c.cfg.APIKey)
	}
	q := url.Values{}
	q.Set("chainid", c.cfg.ChainID)
	q.Set("module", "contract")
	q.Set("action", "getsourcecode")
	q.Set("address", address)
	if key != "" {
		q.Set("apikey", key)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", internal.ErrUpstreamFetch, err)
	}
	req.Header.Set("User-Agent", "auditgpt/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: explorer request failed: %v", internal.ErrUpstreamFetch, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read explorer response: %v", internal.ErrUpstreamFetch, err)
	}
	if resp.StatusCode != http.StatusOK {
		snippet := string(body)
		if len(snippet) > 1024 {
			snippet = snippet[:1024]
		}
		return nil, fmt.Errorf("%w: explorer returned status %d: %s", internal.ErrUpstreamFetch, resp.StatusCode, snippet)
	}

	var er EtherscanResponse
	if err := json.Unmarshal(body, &er); err != nil {
		return nil, fmt.Errorf("%w: failed to decode explorer response: %v", internal.ErrUpstreamFetch, err)
	}
	if er.Status != "1" {
		var detail string
		if json.Unmarshal(er.Result, &detail) != nil || detail == "" {
			detail = er.Message
		}
		return nil, fmt.Errorf("%w: Explorer API Error: %s", internal.ErrUpstreamFetch, detail)
	}

	var records []SourceRecord
	if err := json.Unmarshal(er.Result, &records); err != nil {
		return nil, fmt.Errorf("%w: unexpected explorer result: %v", internal.ErrUpstreamFetch, err)
	}
	if len(records) == 0 || strings.TrimSpace(records[0].SourceCode) == "" {
		return nil, fmt.Errorf("%w: Contract source code not verified on explorer", internal.ErrSourceNotFound)
	}

	rec := records[0]
	code, err := FlattenSource(rec.SourceCode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", internal.ErrUpstreamFetch, err)
	}
	return &internal.Contract{
		Address:        address,
		Name:           rec.ContractName,
		Code:           code,
		Compiler:       rec.CompilerVersion,
		ChainID:        c.cfg.ChainID,
		Proxy:          rec.Proxy == "1",
		Implementation: rec.Implementation,
	}, nil
}

// Close 清理资源
func (c *EtherscanClient) Close() {
	c.httpClient.CloseIdleConnections()
}

type standardJSONInput struct {
	Sources map[string]struct {
		Content string `json:"content"`
	} `json:"sources"`
}

// FlattenSource 把 standard-json 多文件源码展开成单个文本，按路径排序并加文件头。
// 单文件源码原样返回。
func FlattenSource(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") {
		return raw, nil
	}
	// Etherscan 用双层花括号包裹 standard-json
	if strings.HasPrefix(trimmed, "{{") && strings.HasSuffix(trimmed, "}}") {
		trimmed = trimmed[1 : len(trimmed)-1]
	}

	var input standardJSONInput
	if err := json.Unmarshal([]byte(trimmed), &input); err != nil || len(input.Sources) == 0 {
		// 旧格式：{"File.sol": {"content": ...}}
		var legacy map[string]struct {
			Content string `json:"content"`
		}
		if lerr := json.Unmarshal([]byte(trimmed), &legacy); lerr != nil || len(legacy) == 0 {
			if err != nil {
				return "", fmt.Errorf("failed to decode multi-file source: %w", err)
			}
			return "", fmt.Errorf("multi-file source has no files")
		}
		input.Sources = legacy
	}

	paths := make([]string, 0, len(input.Sources))
	for p := range input.Sources {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var sb strings.Builder
	for i, p := range paths {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("// File: " + p + "\n")
		sb.WriteString(input.Sources[p].Content)
	}
	return sb.String(), nil
}
