package download

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/admi-n/auditgpt/src/internal"
)

// Explorer 区块浏览器源码接口
type Explorer interface {
	GetContractSource(ctx context.Context, address, apiKey string) (*internal.Contract, error)
	ChainID() string
}

// Downloader 合约源码提供者：缓存、限速、浏览器查询
type Downloader struct {
	explorer Explorer
	cache    SourceCache
	limiter  *rate.Limiter
	logger   zerolog.Logger
}

// Option Downloader 可选项
type Option func(*Downloader)

// WithCache 启用源码缓存
func WithCache(c SourceCache) Option {
	return func(d *Downloader) { d.cache = c }
}

// WithRateLimit 每秒请求数上限
func WithRateLimit(rps float64) Option {
	return func(d *Downloader) {
		if rps > 0 {
			d.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithLogger 设置日志
func WithLogger(l zerolog.Logger) Option {
	return func(d *Downloader) { d.logger = l }
}

// NewDownloader 创建源码提供者
func NewDownloader(explorer Explorer, opts ...Option) *Downloader {
	d := &Downloader{
		explorer: explorer,
		limiter:  rate.NewLimiter(rate.Limit(5), 1),
		logger:   zerolog.Nop(),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// FetchSource 获取已验证合约源码。credential 为用户提供的浏览器 key，可为空
func (d *Downloader) FetchSource(ctx context.Context, address, credential string, progress internal.Progress) (*internal.Contract, error) {
	chainID := d.explorer.ChainID()

	if d.cache != nil {
		c, ok, err := d.cache.Get(ctx, chainID, address)
		if err != nil {
			d.logger.Warn().Err(err).Str("address", address).Msg("source cache lookup failed")
		} else if ok {
			progress.Report(internal.LogInfo, fmt.Sprintf("Loaded cached source for %s (%d bytes)", address, c.Bytes()))
			c.Address = address
			return c, nil
		}
	}

	if err := d.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limit wait failed: %v", internal.ErrUpstreamFetch, err)
	}

	progress.Report(internal.LogProcess, fmt.Sprintf("Querying block explorer (chain %s) for %s...", chainID, address))
	c, err := d.explorer.GetContractSource(ctx, address, credential)
	if err != nil {
		d.logger.Error().Err(err).Str("address", address).Msg("explorer fetch failed")
		return nil, err
	}

	name := c.Name
	if name == "" {
		name = "Unknown Contract"
		c.Name = name
	}
	progress.Report(internal.LogSuccess, fmt.Sprintf("Source code retrieved: %s (%d bytes)", name, c.Bytes()))
	if c.Proxy && c.Implementation != "" {
		progress.Report(internal.LogWarning,
			fmt.Sprintf("Proxy contract detected. Implementation at %s is not included in this audit.", c.Implementation))
	}

	if d.cache != nil {
		if err := d.cache.Put(ctx, c); err != nil {
			d.logger.Warn().Err(err).Str("address", address).Msg("source cache write failed")
		}
	}
	return c, nil
}
