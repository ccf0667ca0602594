package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/genc-murat/weatherstation/internal/core/models"
)

const maxResponseSize = 16 << 20

// Client queries a station's read-only JSON endpoint. Each call opens its
// own connection, since the server closes it after one response.
type Client struct {
	Addr    string
	Timeout time.Duration

	dialer net.Dialer
}

func New(addr string, timeout time.Duration) *Client {
	return &Client{Addr: addr, Timeout: timeout}
}

// Get sends one request for path and returns the response body.
func (c *Client) Get(ctx context.Context, path string) ([]byte, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	conn, err := c.dialer.DialContext(ctx, "tcp", c.Addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.Addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	if _, err := fmt.Fprintf(conn, "GET %s HTTP/1.1\r\nHost: %s\r\nConnection: close\r\n\r\n", path, c.Addr); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %q", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// Current returns the latest sample, or nil when the station has none yet.
func (c *Client) Current(ctx context.Context) (*models.Sample, error) {
	body, err := c.Get(ctx, "/")
	if err != nil {
		return nil, err
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, fmt.Errorf("decode current: %w", err)
	}
	if len(probe) == 0 {
		return nil, nil
	}

	var s models.Sample
	if err := json.Unmarshal(body, &s); err != nil {
		return nil, fmt.Errorf("decode current: %w", err)
	}
	return &s, nil
}

func (c *Client) LastHour(ctx context.Context) ([]models.Sample, error) {
	return c.list(ctx, "/LastHour")
}

func (c *Client) LastDay(ctx context.Context) ([]models.Sample, error) {
	return c.list(ctx, "/LastDay")
}

func (c *Client) LastMonth(ctx context.Context) ([]models.Sample, error) {
	return c.list(ctx, "/LastMonth")
}

func (c *Client) list(ctx context.Context, path string) ([]models.Sample, error) {
	body, err := c.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	var out []models.Sample
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return out, nil
}
