// Package httpapi exposes the decision engine over HTTP.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"optiq/internal/decision"
	"optiq/internal/logger"
	"optiq/internal/monitor"
	"optiq/internal/notifier"
	"optiq/internal/observer"
	"optiq/internal/store"
	"optiq/internal/store/auditlog"
)

// Server 提供决策引擎的 HTTP 接口。
type Server struct {
	addr   string
	router *gin.Engine
}

// ServerConfig 描述 HTTP 服务依赖。
type ServerConfig struct {
	Addr    string
	Orch    *decision.Orchestrator
	Ledger  *observer.Ledger
	Tuner   *observer.Tuner
	Store   store.Store
	Audit   *auditlog.AuditStore
	Monitor *monitor.Monitor
	Notify  notifier.TextNotifier
}

// NewServer 构建 HTTP server。
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Orch == nil || cfg.Ledger == nil {
		return nil, errors.New("http server requires orchestrator and ledger")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9885"
	}
	if cfg.Notify == nil {
		cfg.Notify = notifier.Nop{}
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	api := newRouter(cfg)
	api.register(router.Group("/api"))

	return &Server{addr: cfg.Addr, router: router}, nil
}

// requestLogger 记录接口调用，便于追踪外部扫描器的请求节奏。
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

// Addr 返回监听地址。
func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Start 启动 HTTP 服务，直到 ctx 取消或出现错误。
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
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Handler 暴露底层 handler（测试用）。
func (s *Server) Handler() http.Handler {
	return s.router
}
