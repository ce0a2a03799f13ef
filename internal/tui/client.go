// Package tui is a terminal view of a running viewer. It polls the HTTP
// surface and draws a summary of the current frame.
package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/420247jake/the-mind/internal/api"
	"github.com/420247jake/the-mind/internal/scene"
	pkgerrors "github.com/420247jake/the-mind/pkg/errors"
)

// Client reads frames and health from a viewer.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the viewer at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Frame fetches the current frame.
func (c *Client) Frame(ctx context.Context) (scene.Frame, error) {
	var f scene.Frame
	err := c.get(ctx, "/api/frame", &f)
	return f, err
}

// Health fetches the viewer health.
func (c *Client) Health(ctx context.Context) (api.HealthResponse, error) {
	var h api.HealthResponse
	err := c.get(ctx, "/healthz", &h)
	return h, err
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return pkgerrors.NewUnavailableError("viewer", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e pkgerrors.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Message != "" {
			return fmt.Errorf("%s: %s (%d)", path, e.Message, resp.StatusCode)
		}
		return fmt.Errorf("%s: unexpected status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", path, err)
	}
	return nil
}
