package clickhouse

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
)

type ClientOption func(*clientConfig)

type clientConfig struct {
	host            string
	port            int
	database        string
	user            string
	password        string
	useHTTP         bool
	asyncInsert     bool
	waitAsync       bool
	maxOpen         int
	maxIdle         int
	connMaxLifetime time.Duration
	dialTimeout     time.Duration
	readTimeout     time.Duration
	maxExecTime     time.Duration
}

func WithHost(host string) ClientOption { return func(c *clientConfig) { c.host = host } }

func WithPort(port int) ClientOption { return func(c *clientConfig) { c.port = port } }

func WithDatabase(db string) ClientOption { return func(c *clientConfig) { c.database = db } }

func WithCredentials(user, password string) ClientOption {
	return func(c *clientConfig) { c.user, c.password = user, password }
}

func WithMaxConnections(open, idle int) ClientOption {
	return func(c *clientConfig) { c.maxOpen, c.maxIdle = open, idle }
}

// WithTimeouts sets the dial and read timeouts. Writes are bounded by the
// caller's context.
func WithTimeouts(dial, read time.Duration) ClientOption {
	return func(c *clientConfig) { c.dialTimeout, c.readTimeout = dial, read }
}

// WithHTTP talks to the HTTP interface instead of the native protocol.
func WithHTTP(on bool) ClientOption { return func(c *clientConfig) { c.useHTTP = on } }

// WithAsyncInsert turns on server-side insert buffering; wait makes the
// insert return only once the buffer is flushed.
func WithAsyncInsert(on, wait bool) ClientOption {
	return func(c *clientConfig) { c.asyncInsert, c.waitAsync = on, wait }
}

func WithMaxExecutionTime(d time.Duration) ClientOption {
	return func(c *clientConfig) { c.maxExecTime = d }
}

// Client owns the ClickHouse pool behind the scenario archive.
type Client struct {
	db       *sql.DB
	database string
}

// NewClient opens the pool and pings it.
func NewClient(opts ...ClientOption) (*Client, error) {
	cfg := &clientConfig{
		port:            9000,
		database:        "riskgraph",
		user:            "default",
		maxOpen:         10,
		maxIdle:         5,
		connMaxLifetime: 5 * time.Minute,
		dialTimeout:     5 * time.Second,
		readTimeout:     10 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.host == "" {
		return nil, fmt.Errorf("host is required")
	}

	db := ch.OpenDB(cfg.options())
	db.SetMaxOpenConns(cfg.maxOpen)
	db.SetMaxIdleConns(cfg.maxIdle)
	db.SetConnMaxLifetime(cfg.connMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	return &Client{db: db, database: cfg.database}, nil
}

func (c *clientConfig) options() *ch.Options {
	o := &ch.Options{
		Addr: []string{net.JoinHostPort(c.host, strconv.Itoa(c.port))},
		Auth: ch.Auth{Database: c.database, Username: c.user, Password: c.password},
		ClientInfo: ch.ClientInfo{Products: []struct{ Name, Version string }{
			{Name: "riskgraph", Version: "1"},
		}},
		DialTimeout:     c.dialTimeout,
		ReadTimeout:     c.readTimeout,
		MaxOpenConns:    c.maxOpen,
		MaxIdleConns:    c.maxIdle,
		ConnMaxLifetime: c.connMaxLifetime,
		Compression:     &ch.Compression{Method: ch.CompressionLZ4},
		Settings:        ch.Settings{},
	}
	if c.useHTTP {
		o.Protocol = ch.HTTP
		o.Compression = &ch.Compression{Method: ch.CompressionGZIP}
	}
	if c.maxExecTime > 0 {
		o.Settings["max_execution_time"] = int(c.maxExecTime.Seconds())
	}
	if c.asyncInsert {
		o.Settings["async_insert"] = 1
		if c.waitAsync {
			o.Settings["wait_for_async_insert"] = 1
		}
	}
	return o
}

// DB is the database/sql handle the archive writes through.
func (c *Client) DB() *sql.DB { return c.db }

func (c *Client) Database() string { return c.database }

func (c *Client) Health(ctx context.Context) error { return c.db.PingContext(ctx) }

func (c *Client) Close() error { return c.db.Close() }

// InitSchema applies stmts, or the archive schema when none are given.
// Every statement is idempotent.
func (c *Client) InitSchema(ctx context.Context, stmts ...string) error {
	if len(stmts) == 0 {
		stmts = Schema(c.database)
	}
	for _, stmt := range stmts {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}
