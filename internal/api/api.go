// Package api serves the read-only status surface: health, per-symbol order state and metrics.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rrctrade/RRC-Automation2/internal/engine"
	"github.com/rrctrade/RRC-Automation2/internal/metrics"
)

const RequestIDHeaderKey = "X-Request-ID"

// StatusSource is satisfied by *engine.Board.
type StatusSource interface {
	All() []engine.Snapshot
	Get(symbol string) (engine.Snapshot, bool)
}

// Handler serves the status routes.
type Handler struct {
	source  StatusSource
	log     zerolog.Logger
	mode    string
	started time.Time
}

func NewHandler(source StatusSource, mode string, log zerolog.Logger) *Handler {
	return &Handler{
		source:  source,
		log:     log.With().Str("component", "api").Logger(),
		mode:    mode,
		started: time.Now().UTC(),
	}
}

// Routes builds the gin engine.
func (h *Handler) Routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(h.requestID(), h.accessLog(), gin.Recovery())

	router.GET("/healthz", h.Health)
	router.GET("/orders", h.Orders)
	router.GET("/orders/:symbol", h.Order)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	return router
}

// Serve starts the status listener in the background.
func (h *Handler) Serve(addr string) *http.Server {
	srv := &http.Server{Addr: addr, Handler: h.Routes(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.log.Error().Err(err).Str("addr", addr).Msg("status api stopped")
		}
	}()
	return srv
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "OK",
		"mode":    h.mode,
		"symbols": len(h.source.All()),
		"since":   h.started.Format(time.RFC3339),
	})
}

// Orders lists every symbol's snapshot.
func (h *Handler) Orders(c *gin.Context) {
	c.JSON(http.StatusOK, h.source.All())
}

// Order returns one symbol's snapshot.
func (h *Handler) Order(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
	snap, ok := h.source.Get(symbol)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown symbol", "symbol": symbol})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *Handler) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeaderKey)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeaderKey, id)
		c.Next()
	}
}

func (h *Handler) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("request_id", c.Writer.Header().Get(RequestIDHeaderKey)).
			Msg("http")
	}
}
