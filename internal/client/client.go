// Package client submits jobs to a master and waits for the aggregated result.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"go.uber.org/zap"

	"yqhp/freq-engine/pkg/protocol"
	"yqhp/freq-engine/pkg/types"
)

// ErrEmptyResponse is returned when the master closes the connection without
// sending a result.
var ErrEmptyResponse = errors.New("empty response from master")

// Config holds client configuration.
type Config struct {
	// MasterAddress is the master's client endpoint.
	MasterAddress string

	// DialTimeout bounds connection setup.
	DialTimeout time.Duration

	// ResponseTimeout bounds the whole exchange. Zero waits until the master
	// answers or ctx is done.
	ResponseTimeout time.Duration
}

// DefaultConfig returns a default client configuration.
func DefaultConfig() *Config {
	return &Config{
		MasterAddress: "localhost:5000",
		DialTimeout:   5 * time.Second,
	}
}

// Client submits one job per connection. It never retries.
type Client struct {
	config *Config
	log    *zap.Logger
}

// New creates a client.
func New(config *Config, log *zap.Logger) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		config: config,
		log:    log.Named("client"),
	}
}

// Submit sends job and returns the master's aggregated result.
func (c *Client) Submit(ctx context.Context, job *types.Job) (*types.AggregateResult, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}

	dialer := net.Dialer{Timeout: c.config.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.config.MasterAddress)
	if err != nil {
		return nil, fmt.Errorf("connect to master %s: %w", c.config.MasterAddress, err)
	}
	defer conn.Close()

	if c.config.ResponseTimeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(c.config.ResponseTimeout)); err != nil {
			return nil, fmt.Errorf("set deadline: %w", err)
		}
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	c.log.Debug("Submitting job",
		zap.String("master", c.config.MasterAddress),
		zap.Int("documents", len(job.Documents)),
		zap.Int("keywords", len(job.Keywords)))

	if err := protocol.NewEncoder(conn).Encode(job); err != nil {
		return nil, c.wrap(ctx, "send job", err)
	}

	line, err := protocol.NewDecoder(conn).ReadLine()
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, protocol.ErrEmptyLine) {
			return nil, ErrEmptyResponse
		}
		return nil, c.wrap(ctx, "read result", err)
	}

	var result types.AggregateResult
	if err := protocol.Unmarshal(line, &result); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return &result, nil
}

// wrap prefers the context error when cancellation caused the failure.
func (c *Client) wrap(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", op, ctxErr)
	}
	return fmt.Errorf("%s: %w", op, err)
}
