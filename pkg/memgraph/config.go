package memgraph

import "time"

// ClientOption configures Client.
type ClientOption func(*ClientConfig)

// ClientConfig holds bolt connection settings.
type ClientConfig struct {
	URI                   string
	User                  string
	Password              string
	Database              string
	MaxConnectionPoolSize int
	ConnectTimeout        time.Duration
	BatchSize             int
}

// WithURI sets the bolt URI, e.g. bolt://localhost:7687.
func WithURI(uri string) ClientOption {
	return func(c *ClientConfig) {
		c.URI = uri
	}
}

// WithCredentials sets basic auth. Empty user means no auth.
func WithCredentials(user, password string) ClientOption {
	return func(c *ClientConfig) {
		c.User = user
		c.Password = password
	}
}

// WithDatabase selects a database name. Memgraph community ignores it.
func WithDatabase(db string) ClientOption {
	return func(c *ClientConfig) {
		c.Database = db
	}
}

// WithPoolSize sets the maximum number of pooled connections.
func WithPoolSize(n int) ClientOption {
	return func(c *ClientConfig) {
		if n > 0 {
			c.MaxConnectionPoolSize = n
		}
	}
}

// WithConnectTimeout sets the socket connect timeout.
func WithConnectTimeout(d time.Duration) ClientOption {
	return func(c *ClientConfig) {
		if d > 0 {
			c.ConnectTimeout = d
		}
	}
}

// WithBatchSize sets the row count of one UNWIND write.
func WithBatchSize(n int) ClientOption {
	return func(c *ClientConfig) {
		if n > 0 {
			c.BatchSize = n
		}
	}
}
