package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pmr-run/pmr/internal/auth"
	"github.com/pmr-run/pmr/internal/errdef"
	"github.com/pmr-run/pmr/internal/manager"
)

// Router exposes the supervisor over HTTP. Every route under /api requires
// a bearer token minted by the auth service; /metrics rides behind the
// same middleware.
type Router struct {
	mgr  *manager.Manager
	auth *auth.Service
	log  *slog.Logger
	reg  *prometheus.Registry
}

func NewRouter(mgr *manager.Manager, authSvc *auth.Service, log *slog.Logger, reg *prometheus.Registry) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{mgr: mgr, auth: authSvc, log: log, reg: reg}
}

// Handler returns the gin-powered http.Handler.
func (r *Router) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	g := gin.New()
	g.Use(gin.Recovery())

	api := g.Group("/api", r.bearerAuth())
	api.GET("/processes", r.handleList)
	api.POST("/processes", r.handleStart)
	api.GET("/processes/:name", r.handleStatus)
	api.PUT("/processes/:name/stop", r.handleStop)
	api.PUT("/processes/:name/restart", r.handleRestart)
	api.DELETE("/processes/:name", r.handleDelete)
	api.GET("/processes/:name/logs", r.handleLogs)

	if r.reg != nil {
		g.GET("/metrics", r.bearerAuth(), gin.WrapH(promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})))
	}
	return g
}

// bearerAuth rejects requests without a valid Authorization: Bearer token.
func (r *Router) bearerAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			writeError(c, errdef.New(errdef.KindAuth, "missing bearer token"))
			c.Abort()
			return
		}
		if _, err := r.auth.Validate(c.Request.Context(), parts[1]); err != nil {
			writeError(c, err)
			c.Abort()
			return
		}
		c.Next()
	}
}

type startRequest struct {
	Name    string            `json:"name"`
	Command string            `json:"command"`
	Args    []string          `json:"args"`
	Env     map[string]string `json:"env"`
	WorkDir string            `json:"workdir"`
	LogDir  string            `json:"log_dir"`
}

func (r *Router) handleStart(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"kind": "bad_request", "message": "invalid JSON: " + err.Error()}})
		return
	}
	if req.Name == manager.DaemonName {
		writeError(c, errdef.StateConflict("name %q is reserved", manager.DaemonName))
		return
	}
	if !isSafeAbsPath(req.WorkDir) || !isSafeAbsPath(req.LogDir) {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"kind": "bad_request", "message": "workdir and log_dir must be absolute paths without traversal"}})
		return
	}
	rec, err := r.mgr.Start(c.Request.Context(), manager.StartSpec{
		Name:    req.Name,
		Command: req.Command,
		Args:    req.Args,
		Env:     req.Env,
		WorkDir: req.WorkDir,
		LogDir:  req.LogDir,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (r *Router) handleList(c *gin.Context) {
	recs, err := r.mgr.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, recs)
}

func (r *Router) handleStatus(c *gin.Context) {
	rec, err := r.mgr.Status(c.Request.Context(), c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (r *Router) handleStop(c *gin.Context) {
	rec, err := r.mgr.Stop(c.Request.Context(), c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (r *Router) handleRestart(c *gin.Context) {
	rec, err := r.mgr.Restart(c.Request.Context(), c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (r *Router) handleDelete(c *gin.Context) {
	if err := r.mgr.Delete(c.Request.Context(), c.Param("name")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (r *Router) handleLogs(c *gin.Context) {
	n := 0
	if raw := c.Query("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"kind": "bad_request", "message": "n must be a non-negative integer"}})
			return
		}
		n = parsed
	}
	rotated := c.Query("rotated") == "true"
	lines, err := r.mgr.Logs(c.Request.Context(), c.Param("name"), n, rotated)
	if err != nil {
		writeError(c, err)
		return
	}
	body := strings.Join(lines, "\n")
	if body != "" {
		body += "\n"
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(body))
}

// Serve runs the HTTP server until ctx is cancelled, then drains in-flight
// requests within the grace window.
func Serve(ctx context.Context, addr string, handler http.Handler, grace time.Duration, log *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	log.Info("control plane listening", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		_ = srv.Close()
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
