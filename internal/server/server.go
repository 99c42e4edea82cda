package server

import (
	"context"
	"net/http"
	"time"

	bcd "github.com/cognitedata/bridge-carousel/integrations/bridge_cams_to_display"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const shutdownTimeout = 5 * time.Second

// Sessions is implemented by the session registry.
type Sessions interface {
	Snapshot() []bcd.SessionStatus
	Remove(id string) error
}

// Server is the single HTTP listener of the process. Requests that do not match one of the
// service routes are handed to the proxy router.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	sessions   Sessions
	started    time.Time
}

func New(address, moduleName string, sessions Sessions, socket http.Handler, proxy http.Handler) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())

	s := &Server{
		engine:   engine,
		sessions: sessions,
		started:  time.Now(),
		httpServer: &http.Server{
			Addr:              address,
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
	engine.GET("/healthz", s.handleHealth)
	engine.GET("/api/sessions", s.handleListSessions)
	engine.DELETE("/api/sessions/:id", s.handleDeleteSession)
	engine.GET("/"+moduleName+"/socket", gin.WrapH(socket))
	engine.NoRoute(gin.WrapH(proxy))
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"uptime":    time.Since(s.started).Round(time.Second).String(),
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": s.sessions.Snapshot()})
}

func (s *Server) handleDeleteSession(c *gin.Context) {
	id := c.Param("id")
	err := s.sessions.Remove(id)
	if errors.Is(err, bcd.ErrUnknownSession) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session_not_found", "message": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "message": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		}).Debug("http request")
	}
}

// Start serves until ctx is cancelled, then shuts the listener down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Infof("Starting HTTP server on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- errors.Wrap(err, "http server failed")
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}
	return s.Shutdown()
}

func (s *Server) Shutdown() error {
	log.Info("Shutting down HTTP server...")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "http server shutdown failed")
	}
	log.Info("HTTP server stopped")
	return nil
}
