// Package server assembles the engine: routes, middleware, background
// workers, and the process lifecycle.
package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/riskline/riskline/internal/alerts"
	"github.com/riskline/riskline/internal/config"
	"github.com/riskline/riskline/internal/feature"
	"github.com/riskline/riskline/internal/health"
	"github.com/riskline/riskline/internal/idgen"
	"github.com/riskline/riskline/internal/ingest"
	"github.com/riskline/riskline/internal/logging"
	"github.com/riskline/riskline/internal/metrics"
	"github.com/riskline/riskline/internal/ratelimit"
	"github.com/riskline/riskline/internal/realtime"
	"github.com/riskline/riskline/internal/scoring"
	"github.com/riskline/riskline/internal/security"
	"github.com/riskline/riskline/internal/validation"
)

// version is reported by the health and info endpoints.
const version = "0.1.0"

// HTTP server and lifecycle timing.
const (
	readTimeout       = 10 * time.Second
	readHeaderTimeout = 5 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 60 * time.Second
	healthTimeout     = 5 * time.Second
	drainDelay        = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server ties the feature store, scorer, and transports together behind
// one HTTP listener.
type Server struct {
	cfg          *config.Config
	store        *feature.Store
	scorer       *scoring.Scorer
	sweeper      *feature.Sweeper
	notifier     *alerts.Notifier
	consumer     *ingest.Consumer
	publisher    *ingest.Publisher
	realtimeHub  *realtime.Hub
	rateLimiter  *ratelimit.Limiter
	checks       *health.Registry
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	clock        func() time.Time // test override, nil in production
	startedAt    time.Time
	cancelRunCtx context.CancelFunc // stops the workers Run started

	// Probe state for /health/live and /health/ready.
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option adjusts a Server during New.
type Option func(*Server)

// WithLogger replaces the default JSON logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithClock pins the engine time source for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.clock = now
	}
}

// New builds a server from cfg. Optional subsystems (alerting, Kafka
// ingest, score publishing) come up only when configured.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}

	// Options run before any subsystem is built so that every component
	// sees the final logger and clock.
	for _, opt := range opts {
		opt(s)
	}

	// Feature store: all per-user engine state lives here
	storeOpts := []feature.Option{
		feature.WithLogger(logging.Component(s.logger, "store")),
	}
	if s.clock != nil {
		storeOpts = append(storeOpts, feature.WithClock(s.clock))
	}
	store, err := feature.New(cfg.EngineConfig(), storeOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create feature store: %w", err)
	}
	s.store = store

	// Scorer is pure and shared by the API and Kafka paths. Zero
	// steepness in config means unset, not a flat sigmoid.
	s.scorer = scoring.NewScorer(cfg.Weights).WithOffset(cfg.SigmoidOffset)
	if cfg.SigmoidSteepness > 0 {
		s.scorer = s.scorer.WithSteepness(cfg.SigmoidSteepness)
	}

	s.sweeper = feature.NewSweeper(store, cfg.SweepInterval, logging.Component(s.logger, "sweeper"))

	// Alert notifier (enabled when a webhook URL is configured)
	if cfg.AlertsEnabled() {
		notifier, err := alerts.New(alerts.Config{
			URL:           cfg.AlertWebhookURL,
			Secret:        cfg.WebhookSecret,
			Threshold:     cfg.AlertThreshold,
			ModelVersion:  scoring.ModelVersion,
			AllowLoopback: cfg.IsDevelopment(),
		}, logging.Component(s.logger, "alerts"))
		if err != nil {
			return nil, fmt.Errorf("failed to configure alerting: %w", err)
		}
		s.notifier = notifier
		s.logger.Info("high-risk alerting enabled", "threshold", cfg.AlertThreshold)
	}

	// Kafka ingest (enabled when brokers are configured)
	if cfg.IngestEnabled() {
		consumer, err := ingest.NewConsumer(ingest.Config{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			Group:   cfg.KafkaGroup,
		}, s, logging.Component(s.logger, "ingest"))
		if err != nil {
			return nil, fmt.Errorf("failed to configure kafka ingest: %w", err)
		}
		s.consumer = consumer
		s.logger.Info("kafka ingest enabled",
			"brokers", cfg.KafkaBrokers,
			"topic", cfg.KafkaTopic,
			"group", cfg.KafkaGroup,
		)

		if cfg.KafkaScoresTopic != "" {
			publisher, err := ingest.NewPublisher(cfg.KafkaBrokers, cfg.KafkaScoresTopic,
				logging.Component(s.logger, "publish"))
			if err != nil {
				return nil, fmt.Errorf("failed to configure score publishing: %w", err)
			}
			s.publisher = publisher
			s.logger.Info("score publishing enabled", "topic", cfg.KafkaScoresTopic)
		}
	}

	s.realtimeHub = realtime.NewHub(logging.Component(s.logger, "realtime"))

	s.checks = health.NewRegistry()
	s.registerHealthChecks()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.startedAt = time.Now()
	s.healthy.Store(true)

	return s, nil
}

// now returns the current engine time, honoring an injected test clock.
func (s *Server) now() time.Time {
	if s.clock != nil {
		return s.clock()
	}
	return time.Now().UTC()
}

func (s *Server) registerHealthChecks() {
	// The store itself: a stats query exercises the map lock and proves
	// the engine is answering.
	s.checks.Register("engine", func(ctx context.Context) health.Status {
		st := s.store.Stats()
		return health.Status{
			Healthy: true,
			Detail:  fmt.Sprintf("%d users tracked", st.Users),
		}
	})

	if s.consumer != nil {
		s.checks.Register("kafka", func(ctx context.Context) health.Status {
			if err := s.consumer.Ping(ctx); err != nil {
				return health.Status{Healthy: false, Detail: err.Error()}
			}
			return health.Status{Healthy: true}
		})
	}
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	rlCfg := ratelimit.DefaultConfig()
	if s.cfg.RateLimitRPS > 0 {
		rlCfg.RequestsPerSecond = s.cfg.RateLimitRPS
		rlCfg.BurstSize = s.cfg.RateLimitRPS * 3 / 2
	}
	s.rateLimiter = ratelimit.New(rlCfg)

	// Recovery sits outermost; the cheap screens run before any
	// per-request bookkeeping.
	s.router.Use(
		s.recoveryMiddleware(),
		security.HeadersMiddleware(),
		security.CORSMiddleware([]string{"*"}), // review tooling runs on other origins
		validation.RequestSizeMiddleware(validation.MaxRequestSize),
		s.rateLimiter.Middleware(),
		metrics.Middleware(),
		s.requestIDMiddleware(),
		s.loggingMiddleware(),
	)
}

// recoveryMiddleware turns a handler panic into a 500 with the standard
// error envelope instead of a dropped connection.
func (s *Server) recoveryMiddleware() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"path", c.Request.URL.Path,
			"panic", recovered,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	})
}

// requestIDMiddleware tags every request with an ID, honoring one supplied
// upstream (load balancer, gateway) and minting one otherwise. The ID rides
// the request context into every log line and is echoed back to the caller.
func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = idgen.Hex(16)
		}

		ctx := logging.WithRequestID(c.Request.Context(), id)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-ID", id)

		c.Next()
	}
}

// loggingMiddleware writes one line per request after the handler runs.
// Server faults log as errors and client mistakes as warnings, so a noisy
// integration cannot bury a real outage.
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path // captured before handlers can rewrite it

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
		}

		logger := logging.L(c.Request.Context())
		emit := logger.Info
		switch {
		case status >= 500:
			emit = logger.Error
			attrs = append(attrs, "client_ip", c.ClientIP())
		case status >= 400:
			emit = logger.Warn
		}
		emit("request completed", attrs...)
	}
}

// requireAdmin guards operational endpoints with the X-Admin-Secret header.
func (s *Server) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.AdminSecret == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "admin_disabled",
				"message": "No admin secret configured",
			})
			return
		}
		provided := c.GetHeader("X-Admin-Secret")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(s.cfg.AdminSecret)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Operational surface
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())
	s.router.GET("/api", s.infoHandler)

	// WebSocket score stream
	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})

	v1 := s.router.Group("/v1")
	// Screens :id URL params on every v1 route, a no-op where absent.
	v1.Use(validation.UserParamMiddleware())

	// Scoring: the hot path
	v1.POST("/score", s.scoreHandler)

	// Read endpoints for review tooling
	v1.GET("/users", s.listUsersHandler)
	v1.GET("/users/:id/features", s.userFeaturesHandler)
	v1.GET("/stats", s.statsHandler)

	// Operator endpoints behind X-Admin-Secret.
	admin := v1.Group("/admin")
	admin.Use(s.requireAdmin())
	{
		admin.POST("/reclaim", s.reclaimHandler)
		admin.GET("/config", s.engineConfigHandler)
	}
}

// -----------------------------------------------------------------------------
// Health Handlers
// -----------------------------------------------------------------------------

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	healthy, statuses := s.checks.CheckAll(ctx)

	resp := HealthResponse{
		Status:    "healthy",
		Version:   version,
		Checks:    statuses,
		Timestamp: s.now().Format(time.RFC3339),
	}
	code := http.StatusOK
	if !healthy {
		resp.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, resp)
}

func (s *Server) livenessHandler(c *gin.Context) {
	if s.healthy.Load() {
		c.JSON(http.StatusOK, gin.H{"status": "alive"})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if s.ready.Load() {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":          "Riskline",
		"description":   "Real-time transaction fraud risk scoring",
		"version":       version,
		"model_version": scoring.ModelVersion,
	})
}

// -----------------------------------------------------------------------------
// Run / Shutdown
// -----------------------------------------------------------------------------

// Run starts the listener and every background worker, then blocks until
// a termination signal lands, ctx ends, or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"env", s.cfg.Env,
		)
		err := s.httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	go s.sweeper.Start(runCtx)
	go s.realtimeHub.Run(runCtx)
	if s.consumer != nil {
		s.consumer.Start(runCtx)
	}

	// Readiness flips shortly after the listener binds.
	readyTimer := time.AfterFunc(100*time.Millisecond, func() {
		s.ready.Store(true)
		s.logger.Info("server ready")
	})
	defer readyTimer.Stop()

	select {
	case err := <-serveErr:
		return fmt.Errorf("http listener: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown requested")
	}

	return s.Shutdown()
}

// Shutdown drains traffic, then retires the workers: the sources of new
// work first, the sinks that deliver results last.
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Readiness already reports unready; give load balancers a window to
	// notice before the listener closes.
	time.Sleep(drainDelay)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("http shutdown error", "error", err)
			return err
		}
	}

	s.sweeper.Stop()
	s.logger.Info("sweeper stopped")

	if s.consumer != nil {
		s.consumer.Stop()
		s.logger.Info("kafka consumer stopped")
	}

	// In-flight alert deliveries get the rest of the shutdown window.
	if err := s.notifier.Drain(ctx); err != nil {
		s.logger.Warn("alert deliveries still in flight at shutdown", "error", err)
	}

	s.publisher.Close()

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	s.logger.Info("server stopped")
	return nil
}

// Router exposes the handler tree to tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Store returns the feature store, for tests and load tooling.
func (s *Server) Store() *feature.Store {
	return s.store
}

