package memgraph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// ErrUnavailable is returned when the server cannot be reached at construction.
var ErrUnavailable = errors.New("memgraph unavailable")

// DefaultBatchSize is the number of rows sent in one UNWIND statement.
const DefaultBatchSize = 2000

// TxFunc is a unit of work run inside a managed transaction.
type TxFunc func(tx neo4j.ManagedTransaction) (any, error)

// Client wraps a bolt driver bound to one database.
type Client struct {
	driver    neo4j.DriverWithContext
	database  string
	batchSize int
}

// NewClient creates the driver and verifies connectivity.
func NewClient(ctx context.Context, opts ...ClientOption) (*Client, error) {
	cfg := &ClientConfig{
		URI:                   "bolt://localhost:7687",
		MaxConnectionPoolSize: 50,
		ConnectTimeout:        10 * time.Second,
		BatchSize:             DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	auth := neo4j.NoAuth()
	if cfg.User != "" {
		auth = neo4j.BasicAuth(cfg.User, cfg.Password, "")
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth, func(c *neo4j.Config) {
		c.MaxConnectionPoolSize = cfg.MaxConnectionPoolSize
		c.SocketConnectTimeout = cfg.ConnectTimeout
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create driver: %v", ErrUnavailable, err)
	}

	vctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := driver.VerifyConnectivity(vctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, cfg.URI, err)
	}

	return &Client{driver: driver, database: cfg.Database, batchSize: cfg.BatchSize}, nil
}

// Driver returns the underlying driver.
func (c *Client) Driver() neo4j.DriverWithContext {
	return c.driver
}

func (c *Client) BatchSize() int {
	return c.batchSize
}

// Read runs fn in a read transaction.
func (c *Client) Read(ctx context.Context, fn TxFunc) (any, error) {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: c.database,
		AccessMode:   neo4j.AccessModeRead,
	})
	defer session.Close(ctx)
	return session.ExecuteRead(ctx, neo4j.ManagedTransactionWork(fn))
}

// Write runs fn in a write transaction. The driver may retry fn on
// transient failures, so fn must not leak side effects outside tx.
func (c *Client) Write(ctx context.Context, fn TxFunc) (any, error) {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: c.database,
		AccessMode:   neo4j.AccessModeWrite,
	})
	defer session.Close(ctx)
	return session.ExecuteWrite(ctx, neo4j.ManagedTransactionWork(fn))
}

// Health performs health check.
func (c *Client) Health(ctx context.Context) error {
	return c.driver.VerifyConnectivity(ctx)
}

// Close closes the driver and its pool.
func (c *Client) Close(ctx context.Context) error {
	if c.driver != nil {
		return c.driver.Close(ctx)
	}
	return nil
}
