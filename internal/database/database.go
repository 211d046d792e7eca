// Package database provides the connection provider and schema manager for the
// catalog's PostgreSQL database.
package database

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/shufersal-scraper/internal/catalog"
)

var validIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Pool is the subset of *pgxpool.Pool used by the stores. pgxmock pools
// satisfy it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Config carries credentials and pool limits. Credentials are opaque strings
// supplied by the caller.
type Config struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaintenanceDB   string
	MaxConns        int32
	ConnectTimeout  time.Duration
	MaxConnIdleTime time.Duration
}

type connectFunc func(ctx context.Context, cfg *pgxpool.Config) (Pool, error)

// Provider opens scoped connection pools. A pool acquires a connection per
// statement, and idle connections are closed after MaxConnIdleTime.
type Provider struct {
	cfg     Config
	connect connectFunc
}

// NewProvider returns a Provider backed by pgxpool.
func NewProvider(cfg Config) *Provider {
	return &Provider{cfg: cfg, connect: connectPool}
}

func connectPool(ctx context.Context, cfg *pgxpool.Config) (Pool, error) {
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	return pool, nil
}

// Database returns the configured catalog database name.
func (p *Provider) Database() string {
	return p.cfg.Database
}

// MaintenanceDatabase returns the database used for CREATE/DROP DATABASE.
func (p *Provider) MaintenanceDatabase() string {
	if p.cfg.MaintenanceDB == "" {
		return "postgres"
	}
	return p.cfg.MaintenanceDB
}

// Open connects to dbName and verifies the connection. Failures are returned
// as *catalog.ConnectionError.
func (p *Provider) Open(ctx context.Context, dbName string) (Pool, error) {
	poolCfg, err := p.poolConfig(dbName)
	if err != nil {
		return nil, &catalog.ConnectionError{Database: dbName, Err: err}
	}
	pool, err := p.connect(ctx, poolCfg)
	if err != nil {
		return nil, &catalog.ConnectionError{Database: dbName, Err: err}
	}
	pingCtx, cancel := context.WithTimeout(ctx, p.connectTimeout())
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, &catalog.ConnectionError{Database: dbName, Err: fmt.Errorf("ping: %w", err)}
	}
	return pool, nil
}

// WithPool opens dbName, runs fn, and closes the pool on every exit path.
func (p *Provider) WithPool(ctx context.Context, dbName string, fn func(Pool) error) error {
	pool, err := p.Open(ctx, dbName)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(pool)
}

// CheckConnection verifies the server is reachable with the credentials.
func (p *Provider) CheckConnection(ctx context.Context) error {
	return p.WithPool(ctx, p.MaintenanceDatabase(), func(Pool) error { return nil })
}

func (p *Provider) poolConfig(dbName string) (*pgxpool.Config, error) {
	if !validIdentifier.MatchString(dbName) {
		return nil, fmt.Errorf("invalid database name %q", dbName)
	}
	host := p.cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := p.cfg.Port
	if port == 0 {
		port = 5432
	}
	dsn := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(p.cfg.User, p.cfg.Password),
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   "/" + dbName,
	}
	if p.cfg.SSLMode != "" {
		dsn.RawQuery = url.Values{"sslmode": {p.cfg.SSLMode}}.Encode()
	}
	poolCfg, err := pgxpool.ParseConfig(dsn.String())
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if p.cfg.MaxConns > 0 {
		poolCfg.MaxConns = p.cfg.MaxConns
	}
	poolCfg.MinConns = 0
	if p.cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = p.cfg.MaxConnIdleTime
	}
	poolCfg.ConnConfig.ConnectTimeout = p.connectTimeout()
	return poolCfg, nil
}

func (p *Provider) connectTimeout() time.Duration {
	if p.cfg.ConnectTimeout > 0 {
		return p.cfg.ConnectTimeout
	}
	return 5 * time.Second
}
