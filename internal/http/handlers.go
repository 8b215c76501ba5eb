// Package http exposes the runtime over REST for the UI shell.
package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/innospot/runtime/internal/lifecycle"
	"github.com/innospot/runtime/internal/loading"
	"github.com/innospot/runtime/internal/notify"
	"github.com/innospot/runtime/internal/storage"
	"github.com/innospot/runtime/internal/types"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	lifecycle *lifecycle.Manager
	scheduler *loading.Scheduler
	engine    *notify.Engine
}

// NewHandlers creates a new handler set
func NewHandlers(mgr *lifecycle.Manager, sched *loading.Scheduler, engine *notify.Engine) *Handlers {
	return &Handlers{
		lifecycle: mgr,
		scheduler: sched,
		engine:    engine,
	}
}

// Root handles the service banner
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "InnoSpot Runtime Agent",
		"version": "1.0.0",
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	info := h.lifecycle.AppInfo()
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"runtime": gin.H{
			"online":           info.IsOnline,
			"update_available": info.UpdateAvailable,
		},
		"loading":    gin.H{"phase": h.scheduler.State().Phase},
		"subscribed": h.engine.IsSubscribed(),
	})
}

// RuntimeInfo returns the app runtime state snapshot
func (h *Handlers) RuntimeInfo(c *gin.Context) {
	c.JSON(http.StatusOK, h.lifecycle.AppInfo())
}

// ShowInstallPrompt consumes the pending install prompt
func (h *Handlers) ShowInstallPrompt(c *gin.Context) {
	accepted := h.lifecycle.ShowInstallPrompt(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"accepted": accepted})
}

// UpdateWorker activates a waiting background script and reloads
func (h *Handlers) UpdateWorker(c *gin.Context) {
	err := h.lifecycle.UpdateWorker(c.Request.Context())
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"updated": true})
	case errors.Is(err, lifecycle.ErrNoUpdate):
		c.JSON(http.StatusConflict, gin.H{"error": "no update waiting"})
	case errors.Is(err, lifecycle.ErrControlTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "control transfer timed out"})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	}
}

// RegisterSync registers the background data sync tag
func (h *Handlers) RegisterSync(c *gin.Context) {
	if err := h.lifecycle.RegisterSync(c.Request.Context(), lifecycle.SyncTag); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tag": lifecycle.SyncTag})
}

// LoadingStrategy returns the derived strategy and its input signals
func (h *Handlers) LoadingStrategy(c *gin.Context) {
	network, device := h.scheduler.Signals()
	c.JSON(http.StatusOK, gin.H{
		"strategy":        h.scheduler.Strategy(),
		"network":         network,
		"device":          device,
		"should_optimize": h.scheduler.ShouldOptimizeNow(),
	})
}

// StartLoading begins (or retries) the loading simulation
func (h *Handlers) StartLoading(c *gin.Context) {
	if err := h.scheduler.Start(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, h.scheduler.State())
}

// LoadingState returns the loading-simulation snapshot
func (h *Handlers) LoadingState(c *gin.Context) {
	c.JSON(http.StatusOK, h.scheduler.State())
}

// GetPreferences returns the persisted preference record
func (h *Handlers) GetPreferences(c *gin.Context) {
	prefs, err := h.engine.Preferences(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, prefs)
}

// PatchPreferences merges a partial update into the preference record
func (h *Handlers) PatchPreferences(c *gin.Context) {
	var patch types.PreferencesPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if patch.Frequency != nil && !patch.Frequency.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown frequency"})
		return
	}

	prefs, err := h.engine.UpdatePreferences(c.Request.Context(), patch)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, prefs)
	case errors.Is(err, storage.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "preferences changed concurrently"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// RequestPermission runs the permission request flow
func (h *Handlers) RequestPermission(c *gin.Context) {
	state, err := h.engine.RequestPermission(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"state":      state,
		"subscribed": h.engine.IsSubscribed(),
	})
}

// Subscribe creates a push subscription
func (h *Handlers) Subscribe(c *gin.Context) {
	if !h.engine.Subscribe(c.Request.Context()) {
		c.JSON(http.StatusBadGateway, gin.H{"subscribed": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"subscribed":   true,
		"subscription": h.engine.Subscription(),
	})
}

// Unsubscribe tears down the push subscription
func (h *Handlers) Unsubscribe(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": h.engine.Unsubscribe(c.Request.Context())})
}

// ShowNotification delivers a notification through the filters
func (h *Handlers) ShowNotification(c *gin.Context) {
	n, ok := bindNotification(c)
	if !ok {
		return
	}

	shown, err := h.engine.Show(c.Request.Context(), n)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"shown": shown})
}

// QueueNotification appends a notification to the durable queue
func (h *Handlers) QueueNotification(c *gin.Context) {
	n, ok := bindNotification(c)
	if !ok {
		return
	}

	if err := h.engine.Queue(c.Request.Context(), n); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"queued": true})
}

// ProcessQueue drains the notification queue
func (h *Handlers) ProcessQueue(c *gin.Context) {
	shown, err := h.engine.ProcessQueue(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"shown": shown})
}

// ActiveNotifications lists currently displayed notifications
func (h *Handlers) ActiveNotifications(c *gin.Context) {
	active, err := h.engine.ActiveNotifications(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	if active == nil {
		active = []types.Notification{}
	}
	c.JSON(http.StatusOK, gin.H{"notifications": active})
}

// ClearNotifications closes every displayed notification
func (h *Handlers) ClearNotifications(c *gin.Context) {
	if err := h.engine.ClearAll(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cleared": true})
}

func bindNotification(c *gin.Context) (types.Notification, bool) {
	var n types.Notification
	if err := c.ShouldBindJSON(&n); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return n, false
	}
	if n.Title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
		return n, false
	}
	return n, true
}
