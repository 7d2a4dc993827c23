package internal

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ProxyManager 出站 HTTP 代理管理器，explorer 与 LLM 客户端共用
type ProxyManager struct {
	proxyURL *url.URL
}

// NewProxyManager 创建代理管理器，空字符串表示直连
func NewProxyManager(proxyURL string) (*ProxyManager, error) {
	proxyURL = strings.TrimSpace(proxyURL)
	if proxyURL == "" {
		return &ProxyManager{}, nil
	}
	if err := ValidateProxyURL(proxyURL); err != nil {
		return nil, err
	}
	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy URL: %w", err)
	}
	return &ProxyManager{proxyURL: u}, nil
}

// HTTPClient 创建带超时（及代理）的客户端
func (pm *ProxyManager) HTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		TLSHandshakeTimeout: 10 * time.Second,
		IdleConnTimeout:     30 * time.Second,
		MaxIdleConns:        10,
	}
	if pm != nil && pm.proxyURL != nil {
		transport.Proxy = http.ProxyURL(pm.proxyURL)
	} else {
		transport.Proxy = http.ProxyFromEnvironment
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// Enabled 是否配置了代理
func (pm *ProxyManager) Enabled() bool {
	return pm != nil && pm.proxyURL != nil
}

// URL 代理地址，未配置时为空
func (pm *ProxyManager) URL() string {
	if !pm.Enabled() {
		return ""
	}
	return pm.proxyURL.String()
}

// ValidateProxyURL 校验代理 URL 格式
func ValidateProxyURL(proxyURL string) error {
	if strings.TrimSpace(proxyURL) == "" {
		return nil
	}
	u, err := url.Parse(proxyURL)
	if err != nil {
		return fmt.Errorf("invalid proxy URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "socks5" {
		return fmt.Errorf("unsupported proxy scheme: %s (supported: http, https, socks5)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("proxy host cannot be empty")
	}
	return nil
}

// NewHTTPClient 便捷函数：按代理配置创建客户端
func NewHTTPClient(proxyURL string, timeout time.Duration) (*http.Client, error) {
	pm, err := NewProxyManager(proxyURL)
	if err != nil {
		return nil, err
	}
	return pm.HTTPClient(timeout), nil
}
