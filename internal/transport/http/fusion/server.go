package fusionhttp

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"bagbot/internal/logger"
)

// Server 提供 /api/fusion HTTP 服务（融合调用 + 统计 + 审计查询）。
type Server struct {
	addr            string
	router          *gin.Engine
	readTimeout     time.Duration
	shutdownTimeout time.Duration
}

// ServerConfig 描述 HTTP 服务依赖。Decisions/History/Metrics 可为空，对应路由返回 503 或不注册。
type ServerConfig struct {
	Addr            string
	AllowReset      bool
	ReadTimeout     time.Duration
	ShutdownTimeout time.Duration
	Fusion          Fuser
	Decisions       DecisionReader
	History         HistoryReader
	Health          HealthFunc
	MetricsPath     string
	Metrics         http.Handler
}

// HealthFunc 返回附加的健康信息（例如 publisher 熔断状态）。
type HealthFunc func() map[string]any

// NewServer 构建 HTTP server。
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Fusion == nil {
		return nil, errors.New("fusion http server requires a fusion service")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9992"
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	router := newEngine()

	router.GET("/healthz", func(c *gin.Context) {
		body := gin.H{"status": "ok"}
		if cfg.Health != nil {
			for k, v := range cfg.Health() {
				body[k] = v
			}
		}
		c.JSON(http.StatusOK, body)
	})
	if cfg.Metrics != nil {
		path := cfg.MetricsPath
		if !strings.HasPrefix(path, "/") {
			path = "/metrics"
		}
		router.GET(path, gin.WrapH(cfg.Metrics))
	}
	NewRouter(cfg.Fusion, cfg.Decisions, cfg.History, cfg.AllowReset).Register(router.Group("/api/fusion"))

	return &Server{
		addr:            cfg.Addr,
		router:          router,
		readTimeout:     cfg.ReadTimeout,
		shutdownTimeout: cfg.ShutdownTimeout,
	}, nil
}

func newEngine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())
	return router
}

// requestLogger 记录每次调用，便于排查上游调用频率与耗时。
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if q := c.Request.URL.RawQuery; q != "" {
			path += "?" + q
		}
		c.Next()
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s", c.Request.Method, path, c.Writer.Status(), c.ClientIP(), time.Since(start))
	}
}

// Addr 返回监听地址。
func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Handler 暴露路由，供 httptest 使用。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start 启动 HTTP 服务，直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router, ReadHeaderTimeout: s.readTimeout, ReadTimeout: s.readTimeout}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Infof("fusion http 监听 %s", s.addr)

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
