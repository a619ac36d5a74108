// Package server exposes the HTTP API over Gin: OTP and coupon issuance,
// delivery and flight sequence triggers, calendar artifacts, the webhook
// inbox, and debugging endpoints.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/kbukum/signalhub/internal/artifact"
	"github.com/kbukum/signalhub/internal/calendar"
	"github.com/kbukum/signalhub/internal/delivery"
	"github.com/kbukum/signalhub/internal/flight"
	"github.com/kbukum/signalhub/internal/inbox"
	"github.com/kbukum/signalhub/internal/kvstore"
	"github.com/kbukum/signalhub/internal/logger"
	"github.com/kbukum/signalhub/internal/notify"
)

// Deps are the wired service dependencies behind the HTTP handlers.
type Deps struct {
	Store    kvstore.Store
	Issuer   *artifact.Issuer
	Notifier notify.Notifier
	// Templates maps notification intents to provider template IDs.
	Templates notify.Templates
	Delivery  *delivery.Service
	Flight    *flight.Service
	Calendar  *calendar.Service
	// Inbox is nil when webhook storage is disabled.
	Inbox *inbox.Store

	// Version is reported by the welcome and health endpoints.
	Version string
	// Development enables debug behavior such as echoing issued OTP codes.
	Development bool
}

// Server is the HTTP server for the service.
type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	cfg        Config
	deps       Deps
	log        *logger.Logger
}

// New creates the server, applies the middleware stack, and registers all
// routes.
func New(cfg Config, deps Deps, log *logger.Logger) *Server {
	cfg.ApplyDefaults()

	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	// h2c keeps HTTP/2 available without TLS termination in front.
	h2s := &http2.Server{
		MaxConcurrentStreams: 250,
		IdleTimeout:          120 * time.Second,
	}
	handler := h2c.NewHandler(engine, h2s)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.IdleTimeout) * time.Second,
	}

	s := &Server{
		httpServer: httpServer,
		engine:     engine,
		cfg:        cfg,
		deps:       deps,
		log:        log.WithComponent("server"),
	}
	s.applyMiddleware()
	s.registerRoutes()
	return s
}

// Engine returns the underlying Gin engine. Tests drive it through httptest.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

func (s *Server) applyMiddleware() {
	s.engine.Use(Recovery(s.log))
	s.engine.Use(RequestID())
	s.engine.Use(CORS(s.cfg.CORS))
	s.engine.Use(RequestLogger(s.log))
}

func (s *Server) registerRoutes() {
	s.engine.GET("/", s.handleWelcome)
	s.engine.GET("/health", s.handleHealth)

	auth := s.engine.Group("/auth")
	auth.POST("/otp", s.handleGenerateOTP)
	auth.POST("/verify", s.handleVerifyOTP)
	auth.POST("/cleanup", s.handleCleanupOTPs)

	s.engine.POST("/delivery", s.handleDelivery)

	coupon := s.engine.Group("/coupon")
	coupon.POST("/request", s.handleRequestCoupon)
	coupon.POST("/validate", s.handleValidateCoupon)

	s.engine.POST("/flight-update", s.handleFlightUpdate)

	s.engine.POST("/calendar-data", s.handleCalendarData)
	s.engine.GET("/calendar/:file", s.handleCalendarICS)

	s.engine.POST("/webhooks/onesignal", RateLimit(s.cfg.WebhookRateLimit), s.handleWebhook)
	s.engine.GET("/webhooks/health", s.handleWebhookHealth)
	s.engine.GET("/messages/:app_id/:external_id", s.handleListMessages)
	s.engine.DELETE("/messages/:app_id/:external_id", s.handleDeleteMessages)

	s.engine.GET("/dashboard/keys", s.handleDashboardKeys)
}

// Start binds the port and begins serving. It returns once the listener is
// bound so the caller knows the port is ready; serving continues in a goroutine.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("server failed to bind %s: %w", s.httpServer.Addr, err)
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("Server error", logger.ErrorFields("serve", err))
		}
	}()

	s.log.Info("HTTP server started", logger.Fields("addr", s.httpServer.Addr))
	return nil
}

// Stop gracefully shuts down the server with a 5-second deadline.
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("Shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	return nil
}

func (s *Server) handleWelcome(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Welcome to the SignalHub API Server!",
		"version": s.deps.Version,
		"status":  "running",
		"endpoints": gin.H{
			"/":                                "This welcome message",
			"/auth/otp":                        "POST - Generate OTP",
			"/auth/verify":                     "POST - Verify OTP",
			"/delivery":                        "POST - Start delivery tracking",
			"/coupon/request":                  "POST - Generate coupon code",
			"/coupon/validate":                 "POST - Validate coupon code",
			"/flight-update":                   "POST - Start flight update Live Activity",
			"/calendar-data":                   "POST - Generate Google Calendar URL and ICS file",
			"/calendar/{id}.ics":               "GET - Download ICS calendar file",
			"/webhooks/onesignal":              "POST - Receive provider webhook events",
			"/messages/{app_id}/{external_id}": "GET - Retrieve user's notification inbox",
			"/webhooks/health":                 "GET - Check webhook system health",
			"/dashboard/keys":                  "GET - Inspect store keys",
		},
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"version": s.deps.Version,
	})
}

// requestBaseURL reconstructs the externally visible base URL so generated
// links point back at this deployment.
func requestBaseURL(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + c.Request.Host
}
