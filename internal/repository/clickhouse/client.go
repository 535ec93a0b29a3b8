package clickhouse

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"github.com/amarkanday/experimentation-platform/internal/config"
)

const (
	dialTimeout      = 5 * time.Second
	maxExecutionTime = 60
)

// Client wraps the ClickHouse connection used by the event archive
type Client struct {
	connection driver.Conn
	log        *zap.Logger
}

// NewClient opens and verifies a ClickHouse connection
func NewClient(ctx context.Context, cfg config.ClickHouse, log *zap.Logger) (*Client, error) {
	log.Info("Connecting to ClickHouse",
		zap.String("host", cfg.Host),
		zap.String("port", cfg.Port),
		zap.String("database", cfg.Database),
		zap.Bool("use_tls", cfg.UseTLS))

	connection, err := clickhouse.Open(options(cfg))
	if err != nil {
		log.Error("Failed to connect to ClickHouse", zap.Error(err))
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := connection.Ping(ctx); err != nil {
		log.Error("Failed to ping ClickHouse", zap.Error(err))
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	log.Info("ClickHouse connection established")

	return &Client{connection: connection, log: log}, nil
}

func options(cfg config.ClickHouse) *clickhouse.Options {
	var tlsConfig *tls.Config
	if cfg.UseTLS {
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	return &clickhouse.Options{
		Addr: []string{net.JoinHostPort(cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": maxExecutionTime,
		},
		TLS:              tlsConfig,
		DialTimeout:      dialTimeout,
		MaxOpenConns:     cfg.MaxOpenConns,
		MaxIdleConns:     cfg.MaxIdleConns,
		ConnMaxLifetime:  time.Duration(cfg.ConnMaxLifetime) * time.Second,
		ConnOpenStrategy: clickhouse.ConnOpenInOrder,
		BlockBufferSize:  10,
	}
}

// Conn returns the underlying ClickHouse connection
func (c *Client) Conn() driver.Conn {
	return c.connection
}

// Close closes the ClickHouse connection
func (c *Client) Close() error {
	if err := c.connection.Close(); err != nil {
		c.log.Error("Error closing ClickHouse connection", zap.Error(err))
		return err
	}
	c.log.Info("ClickHouse connection closed")
	return nil
}
