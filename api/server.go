// Package api exposes a read-only status view of the running engine
// over HTTP. Grounded on the teacher's api/server.go (gin.Engine,
// corsMiddleware, setupRoutes, Start/Shutdown shape) but drastically
// trimmed: there is no order-placement, trader-management, or
// authentication surface here, since the engine has no multi-tenant
// concept and no HTTP-reachable way to send an order is a deliberate
// design property (SPEC_FULL §4.12), not an oversight.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"hedgegrid/internal/scheduler"
	"hedgegrid/logger"
	"hedgegrid/store"
)

// Server is the read-only status API server.
type Server struct {
	router     *gin.Engine
	scheduler  *scheduler.Scheduler
	store      *store.Store
	httpServer *http.Server
	port       int
}

// NewServer builds a status API server. scheduler and st may be used
// concurrently with the scheduler's own tick loop; every handler here
// only reads.
func NewServer(sched *scheduler.Scheduler, st *store.Store, port int) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), corsMiddleware())

	s := &Server{router: router, scheduler: sched, store: st, port: port}
	s.setupRoutes()
	return s
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.handleHealthz)
	s.router.GET("/symbols", s.handleSymbols)
	s.router.GET("/symbols/:symbol", s.handleSymbol)
	s.router.GET("/events", s.handleEvents)
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleSymbols lists every admitted symbol's in-process snapshot.
// Only the scheduler is consulted: symbols the store knows about but the
// scheduler has not admitted are not listed.
func (s *Server) handleSymbols(c *gin.Context) {
	out := make([]scheduler.Snapshot, 0, len(s.scheduler.Symbols()))
	for _, sym := range s.scheduler.Symbols() {
		if snap, ok := s.scheduler.Snapshot(sym); ok {
			out = append(out, snap)
		}
	}
	c.JSON(http.StatusOK, gin.H{"symbols": out})
}

func (s *Server) handleSymbol(c *gin.Context) {
	symbol := c.Param("symbol")
	snap, ok := s.scheduler.Snapshot(symbol)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("%s is not admitted", symbol)})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// handleEvents returns the most recent auto-reduce trigger history from
// the persistence layer (SPEC_FULL §4.11), bounded by an optional
// ?limit= query param.
func (s *Server) handleEvents(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := parsePositiveInt(raw); err == nil {
			limit = n
		}
	}
	events, err := s.store.RecentAutoReduceEvents(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func parsePositiveInt(s string) (int, error) {
	n := 0
	if s == "" {
		return 0, fmt.Errorf("empty")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("not a number: %s", s)
		}
		n = n*10 + int(r-'0')
	}
	if n <= 0 {
		return 0, fmt.Errorf("not positive: %s", s)
	}
	return n, nil
}

// Start runs the HTTP server until it's shut down. Grounded on the
// teacher's Start/Shutdown split, trimmed of the request-log banner.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	logger.Infof("status api: listening on %s", addr)
	s.httpServer = &http.Server{Addr: addr, Handler: s.router}
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
