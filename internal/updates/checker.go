// Package updates polls the deployed background-script artifact and
// nudges the lifecycle manager when its content changes.
package updates

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/innospot/runtime/internal/config"
	"github.com/innospot/runtime/internal/lifecycle"
	"github.com/innospot/runtime/internal/logging"
	"github.com/innospot/runtime/internal/monitoring"
)

// Checker periodically fetches the worker script and compares its
// SHA-256 digest against the last observed one. A changed artifact
// triggers a platform update check, which surfaces through the normal
// waiting-worker flow.
type Checker struct {
	mu sync.Mutex

	log       *logging.Logger
	cfg       config.WorkerConfig
	lifecycle *lifecycle.Manager
	metrics   *monitoring.Metrics
	client    *retryablehttp.Client

	lastDigest [sha256.Size]byte
	seen       bool
	cancel     context.CancelFunc
}

// NewChecker creates a checker. An empty artifact URL disables it.
func NewChecker(cfg config.WorkerConfig, mgr *lifecycle.Manager, log *logging.Logger) *Checker {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 1 * time.Second
	client.RetryWaitMax = 30 * time.Second
	client.HTTPClient.Timeout = 30 * time.Second
	client.Logger = nil

	return &Checker{
		log:       log,
		cfg:       cfg,
		lifecycle: mgr,
		client:    client,
	}
}

// WithMetrics adds metrics tracking to the checker
func (c *Checker) WithMetrics(metrics *monitoring.Metrics) *Checker {
	c.metrics = metrics
	return c
}

// Start begins periodic polling. It returns immediately; polling runs
// until Stop or ctx cancellation.
func (c *Checker) Start(ctx context.Context) {
	if c.cfg.ArtifactURL == "" || c.cfg.UpdateCheckInterval <= 0 {
		c.log.Info("artifact polling disabled")
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	go c.loop(runCtx)
}

// Stop halts polling
func (c *Checker) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (c *Checker) loop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.UpdateCheckInterval)
	defer ticker.Stop()

	// Prime the baseline digest so the first tick compares against the
	// currently deployed artifact instead of reporting a spurious change.
	c.CheckOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.CheckOnce(ctx)
		}
	}
}

// CheckOnce fetches the artifact and reports whether its digest changed
// since the previous observation. The first observation establishes the
// baseline and never reports a change.
func (c *Checker) CheckOnce(ctx context.Context) bool {
	digest, err := c.fetchDigest(ctx)
	if err != nil {
		c.log.Warn("artifact fetch failed", zap.Error(err))
		c.recordCheck("error")
		return false
	}

	c.mu.Lock()
	changed := c.seen && digest != c.lastDigest
	c.lastDigest = digest
	c.seen = true
	c.mu.Unlock()

	if !changed {
		c.recordCheck("unchanged")
		return false
	}

	c.log.Info("worker artifact changed")
	c.recordCheck("changed")
	if err := c.lifecycle.CheckForUpdates(ctx); err != nil {
		c.log.Warn("platform update check failed", zap.Error(err))
	}
	return true
}

func (c *Checker) fetchDigest(ctx context.Context) ([sha256.Size]byte, error) {
	var digest [sha256.Size]byte

	req, err := retryablehttp.NewRequestWithContext(ctx, "GET", c.cfg.ArtifactURL, nil)
	if err != nil {
		return digest, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return digest, err
	}
	defer resp.Body.Close()

	// A 404 or an index fallback page must not become the baseline
	if resp.StatusCode != http.StatusOK {
		return digest, fmt.Errorf("artifact fetch: unexpected status %d", resp.StatusCode)
	}

	h := sha256.New()
	if _, err := io.Copy(h, resp.Body); err != nil {
		return digest, err
	}
	copy(digest[:], h.Sum(nil))
	return digest, nil
}

func (c *Checker) recordCheck(result string) {
	if c.metrics != nil {
		c.metrics.UpdateChecks.WithLabelValues(result).Inc()
	}
}
