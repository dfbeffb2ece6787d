// Package client reads the master's status API.
package client

import (
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"

	"yqhp/freq-engine/api/rest"
)

// Client queries one master's status API.
type Client struct {
	baseURL string
	timeout time.Duration
	agent   *fiber.Client
}

// New creates a client for baseURL, e.g. "http://localhost:8080".
// A scheme-less address gets "http://".
func New(baseURL string, timeout time.Duration) *Client {
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		agent:   fiber.AcquireClient(),
	}
}

// Health calls GET /api/v1/health.
func (c *Client) Health() (*rest.HealthResponse, error) {
	var resp rest.HealthResponse
	if err := c.get("/api/v1/health", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Slaves calls GET /api/v1/slaves.
func (c *Client) Slaves() (*rest.SlaveListResponse, error) {
	var resp rest.SlaveListResponse
	if err := c.get("/api/v1/slaves", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stats calls GET /api/v1/stats.
func (c *Client) Stats() (*rest.StatsResponse, error) {
	var resp rest.StatsResponse
	if err := c.get("/api/v1/stats", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Close releases the underlying fasthttp client.
func (c *Client) Close() {
	fiber.ReleaseClient(c.agent)
}

func (c *Client) get(path string, out any) error {
	url := c.baseURL + path
	req := c.agent.Get(url)
	req.Timeout(c.timeout)

	statusCode, body, errs := req.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("GET %s: %v", url, errs[0])
	}

	if statusCode != fiber.StatusOK {
		var errResp rest.ErrorResponse
		if sonic.Unmarshal(body, &errResp) == nil && errResp.Message != "" {
			return fmt.Errorf("GET %s: status %d: %s", url, statusCode, errResp.Message)
		}
		return fmt.Errorf("GET %s: status %d", url, statusCode)
	}

	if err := sonic.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
