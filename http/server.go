// Package http 提供HTTP服务器功能
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Server HTTP服务器
type Server struct {
	server  *http.Server
	config  ServerConfig
	handler http.Handler
	logger  *zap.Logger
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port           int
	Timeout        time.Duration
	AllowedOrigins []string
	MaxUploadBytes int64
}

// DefaultServerConfig 默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:           8501,
		Timeout:        30 * time.Second,
		AllowedOrigins: []string{"*"},
		MaxUploadBytes: 10 << 20,
	}
}

// NewServer 创建HTTP服务器
func NewServer(config ServerConfig, app *App, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if app.Logger == nil {
		app.Logger = logger
	}

	mux := http.NewServeMux()
	RegisterHandlers(mux, app)
	RegisterPageRoutes(mux, app)

	// 创建中间件链
	chain := Chain(
		RecoveryMiddleware(logger),                   // 1. 恢复中间件（最先执行，捕获panic）
		LoggerMiddleware(logger),                     // 2. 日志中间件
		SecurityHeadersMiddleware,                    // 3. 安全头中间件
		CORSMiddleware(config.AllowedOrigins),        // 4. CORS中间件
		RequestSizeMiddleware(config.MaxUploadBytes), // 5. 上传大小限制
		TimeoutMiddleware(config.Timeout),            // 6. 超时中间件
	)

	// Long-lived routes skip the size and timeout limits.
	streaming := Chain(RecoveryMiddleware(logger), LoggerMiddleware(logger))

	root := http.NewServeMux()
	if app.Hub != nil {
		root.Handle("GET /api/ws", streaming(app.Hub))
	}
	if app.Metrics != nil {
		root.Handle("GET /metrics", streaming(app.Metrics.Handler()))
	}
	root.Handle("/", chain(mux))

	return &Server{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", config.Port),
			Handler:           root,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		config:  config,
		handler: root,
		logger:  logger,
	}
}

// Start 启动服务器
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server",
		zap.String("addr", s.Addr()),
		zap.String("websocket", "ws://localhost"+s.Addr()+"/api/ws"))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop 停止服务器
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	s.logger.Info("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// Addr 返回服务器地址
func (s *Server) Addr() string {
	return s.server.Addr
}

// Handler returns the fully wrapped handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}
