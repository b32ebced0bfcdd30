package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hashbid/config"
	"hashbid/logger"
)

// SetupRoutes 设置路由
func SetupRoutes(r *gin.Engine, hub *WebSocketHub, p Providers) {
	a := &api{Providers: p}

	// Prometheus metrics 端点
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/status", a.getStatus)
		apiGroup.GET("/orders", a.getOrders)
		apiGroup.GET("/mutations", a.getMutations)
		apiGroup.GET("/events", a.getEvents)
		apiGroup.GET("/events/stats", a.getEventStats)
		apiGroup.GET("/logs", a.getLogs)
		apiGroup.GET("/logs/stats", a.getLogStats)
	}

	// WebSocket 路由
	r.GET("/ws", hub.handleWebSocket(p.Logs))
}

// WebServer Web服务器
type WebServer struct {
	server *http.Server
	hub    *WebSocketHub
	cfg    config.WebConfig
}

// NewWebServer 创建Web服务器，未启用时返回 nil
func NewWebServer(cfg config.WebConfig, logLevel string, hub *WebSocketHub, p Providers) *WebServer {
	if !cfg.Enabled {
		return nil
	}

	debug := logLevel == "debug" || logLevel == "DEBUG"
	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), GinLoggerMiddleware(debug))
	SetupRoutes(r, hub, p)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &WebServer{server: server, hub: hub, cfg: cfg}
}

// Start 启动Web服务器和 WebSocket 中心
func (ws *WebServer) Start(ctx context.Context) error {
	if ws == nil {
		return nil
	}

	go ws.hub.Run(ctx)

	go func() {
		logger.Info("🌐 Web服务器启动在 http://%s:%d", ws.cfg.Host, ws.cfg.Port)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("❌ Web服务器启动失败: %v", err)
		}
	}()

	// 等待context取消
	go func() {
		<-ctx.Done()
		ws.Stop()
	}()

	return nil
}

// Stop 停止Web服务器
func (ws *WebServer) Stop() {
	if ws == nil || ws.server == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := ws.server.Shutdown(ctx); err != nil {
		logger.Error("❌ Web服务器关闭失败: %v", err)
	} else {
		logger.Info("✅ Web服务器已关闭")
	}
}
