// Package registry talks to the remote subscription registry that mirrors
// push subscriptions server-side.
//
// All calls are best-effort from the engine's point of view: failures are
// reported to the caller but never retried here (spec'd as
// caller-retryable), so the client carries no retry policy.
package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/innospot/runtime/internal/types"
)

// Client mirrors subscriptions to the remote registry
type Client struct {
	http    *resty.Client
	baseURL string
}

// unsubscribePayload is the DELETE body identifying the row to remove
type unsubscribePayload struct {
	Endpoint string `json:"endpoint"`
	UserID   string `json:"user_id,omitempty"`
}

// New creates a registry client rooted at baseURL
// (e.g. "https://api.innospot.app/api/notifications")
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	http := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", "innospot-runtime/1.0").
		SetHeader("Content-Type", "application/json")

	return &Client{http: http, baseURL: baseURL}
}

// Upsert registers or refreshes the subscription, including its
// preference snapshot
func (c *Client) Upsert(ctx context.Context, sub types.Subscription) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(sub).
		Post(c.baseURL + "/subscribe")
	if err != nil {
		return fmt.Errorf("registry: upsert: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("registry: upsert: unexpected status %s", resp.Status())
	}
	return nil
}

// Remove deletes the subscription row for this endpoint
func (c *Client) Remove(ctx context.Context, endpoint, userID string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(unsubscribePayload{Endpoint: endpoint, UserID: userID}).
		Delete(c.baseURL + "/unsubscribe")
	if err != nil {
		return fmt.Errorf("registry: remove: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("registry: remove: unexpected status %s", resp.Status())
	}
	return nil
}
