package feedhttp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chartfeed/internal/backfill"
	"chartfeed/internal/logger"
	"chartfeed/internal/market"
	"chartfeed/internal/store/journal"
)

// Server exposes the candle cache, backfill controls and diagnostics over
// HTTP for the dashboard frontend.
type Server struct {
	addr   string
	router *gin.Engine
}

type ServerConfig struct {
	Addr        string
	Cache       *market.SeriesCache
	Coordinator *backfill.Coordinator
	Journal     *journal.Store
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Cache == nil || cfg.Coordinator == nil {
		return nil, errors.New("feed http server requires cache and coordinator")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9980"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := NewRouter(cfg.Cache, cfg.Coordinator, cfg.Journal)
	api.Register(router.Group("/api"))
	router.GET("/chart", api.handleChart)

	// The coordinator's notices feed the dashboard's banner/toast layer.
	cfg.Coordinator.SetObserver(api.notices)

	return &Server{addr: cfg.Addr, router: router}, nil
}

func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery
		client := c.ClientIP()
		c.Next()
		dur := time.Since(start)
		status := c.Writer.Status()
		fullPath := path
		if query != "" {
			fullPath = path + "?" + query
		}
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s", method, fullPath, status, client, dur)
	}
}
