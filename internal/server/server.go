// Package server wires the runtime components behind the HTTP surface.
package server

import (
	"context"
	"net"
	stdhttp "net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/innospot/runtime/internal/config"
	"github.com/innospot/runtime/internal/events"
	"github.com/innospot/runtime/internal/http"
	"github.com/innospot/runtime/internal/lifecycle"
	"github.com/innospot/runtime/internal/loading"
	"github.com/innospot/runtime/internal/logging"
	"github.com/innospot/runtime/internal/middleware"
	"github.com/innospot/runtime/internal/monitoring"
	"github.com/innospot/runtime/internal/notify"
	"github.com/innospot/runtime/internal/platform/bridge"
	"github.com/innospot/runtime/internal/registry"
	"github.com/innospot/runtime/internal/storage"
	"github.com/innospot/runtime/internal/updates"
	"github.com/innospot/runtime/internal/ws"
)

// Server owns every runtime component and the HTTP surface over them
type Server struct {
	log     *logging.Logger
	cfg     *config.Config
	router  *gin.Engine
	httpSrv *stdhttp.Server

	metrics   *monitoring.Metrics
	bus       *events.Bus
	store     *storage.Store
	bridge    *bridge.Bridge
	lifecycle *lifecycle.Manager
	scheduler *loading.Scheduler
	engine    *notify.Engine
	checker   *updates.Checker
}

// New builds the component graph. Components attach to the platform
// lazily; the bridge serves calls once a page shim connects.
func New(cfg *config.Config, log *logging.Logger) (*Server, error) {
	metrics := monitoring.NewMetrics()
	bus := events.NewBus()

	store, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: cfg.Storage.BusyTimeout,
	}, log.Component("storage"))
	if err != nil {
		return nil, err
	}

	host := bridge.New(log.Component("bridge"), 15*time.Second)

	mgr := lifecycle.NewManager(host, bus, cfg.Worker, log.Component("lifecycle")).
		WithMetrics(metrics)
	sched := loading.NewScheduler(host, bus, cfg.Loading, log.Component("loading")).
		WithMetrics(metrics)
	reg := registry.New(cfg.Push.RegistryURL, 10*time.Second)
	engine := notify.NewEngine(host, bus, store, reg, cfg.Push, log.Component("notify")).
		WithMetrics(metrics)
	checker := updates.NewChecker(cfg.Worker, mgr, log.Component("updates")).
		WithMetrics(metrics)

	s := &Server{
		log:       log,
		cfg:       cfg,
		metrics:   metrics,
		bus:       bus,
		store:     store,
		bridge:    host,
		lifecycle: mgr,
		scheduler: sched,
		engine:    engine,
		checker:   checker,
	}
	s.router = s.buildRouter()
	return s, nil
}

func (s *Server) buildRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	router.Use(middleware.RateLimit(s.cfg.RateLimit))
	router.Use(monitoring.Middleware(s.metrics))

	handlers := http.NewHandlers(s.lifecycle, s.scheduler, s.engine)
	wsHandler := ws.NewHandler(s.bus, s.bridge, s.log.Component("ws"))

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)

	// App lifecycle
	router.GET("/runtime/info", handlers.RuntimeInfo)
	router.POST("/runtime/install-prompt", handlers.ShowInstallPrompt)
	router.POST("/runtime/update", handlers.UpdateWorker)
	router.POST("/runtime/sync", handlers.RegisterSync)

	// Adaptive loading
	router.GET("/loading/strategy", handlers.LoadingStrategy)
	router.POST("/loading/start", handlers.StartLoading)
	router.GET("/loading/state", handlers.LoadingState)

	// Notifications
	router.GET("/notifications/preferences", handlers.GetPreferences)
	router.PATCH("/notifications/preferences", handlers.PatchPreferences)
	router.POST("/notifications/permission", handlers.RequestPermission)
	router.POST("/notifications/subscribe", handlers.Subscribe)
	router.DELETE("/notifications/subscription", handlers.Unsubscribe)
	router.POST("/notifications", handlers.ShowNotification)
	router.POST("/notifications/queue", handlers.QueueNotification)
	router.POST("/notifications/queue/process", handlers.ProcessQueue)
	router.GET("/notifications/active", handlers.ActiveNotifications)
	router.DELETE("/notifications", handlers.ClearNotifications)

	// WebSocket surfaces
	router.GET("/stream", wsHandler.HandleStream)
	router.GET("/bridge", wsHandler.HandleBridge)

	// Prometheus
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(
		s.metrics.Registry(),
		promhttp.HandlerOpts{},
	)))

	return router
}

// Start initializes the components and begins serving. It returns once
// the listener is bound; serving continues until Shutdown.
func (s *Server) Start(ctx context.Context) error {
	if err := s.lifecycle.Init(ctx); err != nil {
		return err
	}
	s.scheduler.Init(ctx)
	if err := s.engine.Init(ctx); err != nil {
		return err
	}
	s.checker.Start(ctx)

	addr := net.JoinHostPort(s.cfg.Server.Host, s.cfg.Server.Port)
	s.httpSrv = &stdhttp.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	s.log.Info("runtime agent listening", zap.String("addr", addr))
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && err != stdhttp.ErrServerClosed {
			s.log.Error("http server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Shutdown stops serving and tears the components down in reverse
// dependency order
func (s *Server) Shutdown(ctx context.Context) error {
	var firstErr error
	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			firstErr = err
		}
	}

	s.checker.Stop()
	s.engine.Close()
	s.scheduler.Close()
	s.lifecycle.Close()
	s.bus.Close()

	if err := s.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Router exposes the gin engine, for tests
func (s *Server) Router() *gin.Engine {
	return s.router
}
