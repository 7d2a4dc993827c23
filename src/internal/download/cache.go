package download

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/admi-n/auditgpt/src/internal"
)

// SourceCache 合约源码缓存，只缓存源码，不缓存审计结果
type SourceCache interface {
	Get(ctx context.Context, chainID, address string) (*internal.Contract, bool, error)
	Put(ctx context.Context, c *internal.Contract) error
}

// Dialect SQL 方言
type Dialect string

const (
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "postgres"
)

// DialectForDriver 根据 database/sql 驱动名判断方言
func DialectForDriver(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "mysql":
		return DialectMySQL, nil
	case "pgx", "postgres", "postgresql":
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("%w: unsupported cache driver %q", internal.ErrConfiguration, driver)
	}
}

// SQLCache 基于 contract_sources 表的缓存，支持 MySQL 与 PostgreSQL
type SQLCache struct {
	db      *sql.DB
	dialect Dialect
	ttl     time.Duration
	now     func() time.Time
}

// NewSQLCache 创建缓存；ttl<=0 表示永不过期
func NewSQLCache(db *sql.DB, dialect Dialect, ttl time.Duration) (*SQLCache, error) {
	if db == nil {
		return nil, fmt.Errorf("NewSQLCache: db is nil")
	}
	return &SQLCache{db: db, dialect: dialect, ttl: ttl, now: time.Now}, nil
}

// EnsureSchema 建表
func (c *SQLCache) EnsureSchema(ctx context.Context) error {
	boolType, textType := "TINYINT(1)", "LONGTEXT"
	if c.dialect == DialectPostgres {
		boolType, textType = "BOOLEAN", "TEXT"
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS contract_sources (
	chain_id VARCHAR(16) NOT NULL,
	address VARCHAR(42) NOT NULL,
	name VARCHAR(255) NOT NULL,
	compiler VARCHAR(128) NOT NULL,
	is_proxy %s NOT NULL,
	implementation VARCHAR(42) NOT NULL,
	source %s NOT NULL,
	fetched_at TIMESTAMP NOT NULL,
	PRIMARY KEY (chain_id, address)
)`, boolType, textType)
	if _, err := c.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("EnsureSchema: %w", err)
	}
	return nil
}

// Get 读取缓存，未命中或已过期返回 false
func (c *SQLCache) Get(ctx context.Context, chainID, address string) (*internal.Contract, bool, error) {
	query := c.rebind("SELECT name, compiler, is_proxy, implementation, source, fetched_at FROM contract_sources WHERE chain_id = ? AND address = ?")

	contract := &internal.Contract{Address: address, ChainID: chainID}
	var fetchedAt time.Time
	err := c.db.QueryRowContext(ctx, query, chainID, ChecksumAddress(address)).
		Scan(&contract.Name, &contract.Compiler, &contract.Proxy, &contract.Implementation, &contract.Code, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("source cache lookup: %w", err)
	}
	if c.ttl > 0 && c.now().Sub(fetchedAt) > c.ttl {
		return nil, false, nil
	}
	return contract, true, nil
}

// Put 写入或覆盖缓存
func (c *SQLCache) Put(ctx context.Context, contract *internal.Contract) error {
	var query string
	switch c.dialect {
	case DialectPostgres:
		query = `INSERT INTO contract_sources (chain_id, address, name, compiler, is_proxy, implementation, source, fetched_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (chain_id, address) DO UPDATE SET
		name = EXCLUDED.name,
		compiler = EXCLUDED.compiler,
		is_proxy = EXCLUDED.is_proxy,
		implementation = EXCLUDED.implementation,
		source = EXCLUDED.source,
		fetched_at = EXCLUDED.fetched_at`
	default:
		query = `INSERT INTO contract_sources (chain_id, address, name, compiler, is_proxy, implementation, source, fetched_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE
		name = VALUES(name),
		compiler = VALUES(compiler),
		is_proxy = VALUES(is_proxy),
		implementation = VALUES(implementation),
		source = VALUES(source),
		fetched_at = VALUES(fetched_at)`
	}

	_, err := c.db.ExecContext(ctx, query,
		contract.ChainID,
		ChecksumAddress(contract.Address),
		contract.Name,
		contract.Compiler,
		contract.Proxy,
		contract.Implementation,
		contract.Code,
		c.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("source cache write: %w", err)
	}
	return nil
}

// rebind 把 ? 占位符换成 PostgreSQL 的 $n
func (c *SQLCache) rebind(query string) string {
	if c.dialect != DialectPostgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&sb, "$%d", n)
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
