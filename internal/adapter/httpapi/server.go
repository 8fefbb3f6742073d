// Package httpapi serves the probe journal over HTTP.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"jsonrest/internal/journal"
)

// StateFunc reports the in-memory state of a target.
type StateFunc func(target string) (up, known bool)

// Router builds the gin engine.
//
//	GET /healthz        liveness, 503 when the journal does not answer
//	GET /probes         latest entry per target
//	GET /probes/:name   recent entries, ?limit=N
func Router(store journal.Store, state StateFunc, log *slog.Logger) *gin.Engine {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	r := gin.New()
	r.Use(gin.Recovery(), accessLog(log))

	r.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			log.Warn("journal health check failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "journal": "down"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "journal": "up"})
	})

	r.GET("/probes", func(c *gin.Context) {
		latest, err := store.Latest(c.Request.Context())
		if err != nil {
			internalError(c, log, err)
			return
		}
		if latest == nil {
			latest = []journal.Entry{}
		}
		c.JSON(http.StatusOK, gin.H{"probes": latest})
	})

	r.GET("/probes/:name", func(c *gin.Context) {
		name := c.Param("name")
		limit := 0
		if v := c.Query("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			limit = n
		}
		entries, err := store.Recent(c.Request.Context(), name, limit)
		if err != nil {
			internalError(c, log, err)
			return
		}
		if len(entries) == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": journal.ErrNotFound.Error(), "target": name})
			return
		}
		body := gin.H{"target": name, "entries": entries}
		if state != nil {
			if up, known := state(name); known {
				body["up"] = up
			}
		}
		c.JSON(http.StatusOK, body)
	})

	return r
}

func internalError(c *gin.Context, log *slog.Logger, err error) {
	log.Error("journal query failed", "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "journal unavailable"})
}

func accessLog(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("http request served",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

// Server runs the router until its context ends.
type Server struct {
	srv *http.Server
	log *slog.Logger
}

// NewServer binds handler to addr.
func NewServer(addr string, handler http.Handler, log *slog.Logger) *Server {
	return &Server{
		srv: &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second},
		log: log,
	}
}

// Run serves until ctx is done, then shuts down within five seconds.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("status server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}
