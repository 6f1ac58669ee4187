// Package server 是 HTTP 边界：路由、校验、调度、状态码映射。
// 状态码约定：请求本身格式不对才是 4xx；目标执行失败是载荷属性，
// 照样 200 返回。只有没被预料到的故障才以 500 出现，且消息已脱敏。
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"example.com/BoltServer/cmd/version"
	"example.com/BoltServer/pkg/catalog"
	"example.com/BoltServer/pkg/config"
	"example.com/BoltServer/pkg/dispatcher"
	"example.com/BoltServer/pkg/executor"
	"example.com/BoltServer/pkg/filecache"
	"example.com/BoltServer/pkg/probe"
	"example.com/BoltServer/pkg/schema"
	"example.com/BoltServer/pkg/transport"
	"example.com/BoltServer/pkg/transport/sshx"
	"example.com/BoltServer/pkg/transport/winrmx"
	"example.com/BoltServer/utils"
)

// 错误响应的 kind 取值
const (
	KindNotFound    = "boltserver/not-found"
	KindSchemaError = "boltserver/schema-error"
	KindServerError = "boltserver/server-error"
)

// registeredActions 每个传输协议上注册的动作集合
// 启动时固定下来；未注册的 {transport}/{action} 在校验之前就被拒绝
var registeredActions = map[string]struct{}{
	"run_task":               {},
	"run_command":            {},
	"run_script":             {},
	"upload_file":            {},
	"check_node_connections": {},
}

// errorBody 4xx/5xx 的统一响应体
type errorBody struct {
	Msg     string `json:"msg"`
	Kind    string `json:"kind"`
	Details any    `json:"details,omitempty"`
}

// Server 组装好的 HTTP 服务
type Server struct {
	cfg        *config.Config
	engine     *gin.Engine
	registry   *transport.Registry
	validator  *schema.Validator
	dispatcher *dispatcher.Dispatcher
	catalog    *catalog.Catalog
	httpServer *http.Server
}

// Option 调整构造行为，主要给测试替换传输协议用
type Option func(*Server)

// WithRegistry 替换传输协议注册表
func WithRegistry(r *transport.Registry) Option {
	return func(s *Server) { s.registry = r }
}

// New 组装整条处理链
// Router -> Validator -> Dispatcher -> (Registry x Executor) -> Sanitizer
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:       cfg,
		validator: schema.NewValidator(),
		catalog:   catalog.New(cfg.EnvironmentsDir, cfg.ProjectsDir),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.registry == nil {
		timeout := time.Duration(cfg.ConnectTimeout) * time.Second
		registry, err := transport.NewRegistry(sshx.New(timeout), winrmx.New(timeout))
		if err != nil {
			return nil, err
		}
		s.registry = registry
	}

	files, err := filecache.New(cfg.CacheDir, cfg.FileServer)
	if err != nil {
		return nil, err
	}
	exec := executor.New(s.registry, files, &probe.Prober{ICMP: cfg.ICMPProbe})
	s.dispatcher = dispatcher.New(exec, cfg.Concurrency)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(requestLog())
	engine.Use(gin.CustomRecovery(recoveryHandler))
	engine.Use(cors.Default())
	s.engine = engine
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	// 调度核心入口；transport/action 是否注册在 handler 里检查，
	// 这样未知路由和未知动作走同一个 not-found 出口
	s.engine.POST("/:transport/:action", s.handleAction)

	// 静态目录协作层
	s.engine.GET("/tasks", s.handleListTasks)
	s.engine.GET("/tasks/:module/:task", s.handleGetTask)
	s.engine.GET("/plans", s.handleListPlans)
	s.engine.GET("/plans/:module/:plan", s.handleGetPlan)
	s.engine.GET("/project_tasks", s.handleProjectListTasks)
	s.engine.GET("/project_tasks/:module/:task", s.handleProjectGetTask)
	s.engine.GET("/project_plans", s.handleProjectListPlans)
	s.engine.GET("/project_plans/:module/:plan", s.handleProjectGetPlan)
	s.engine.GET("/project_file_metadatas/:module/*path", s.handleFileMetadata)

	s.engine.GET("/admin/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": version.Version})
	})

	s.engine.NoRoute(func(c *gin.Context) {
		notFound(c, fmt.Sprintf("route %s %s not found", c.Request.Method, c.Request.URL.Path))
	})
}

// Engine 暴露给测试和嵌入场景
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Dispatcher 暴露给 MCP 入口复用同一条调度链
func (s *Server) Dispatcher() *dispatcher.Dispatcher {
	return s.dispatcher
}

// Catalog 暴露给 MCP 入口复用目录层
func (s *Server) Catalog() *catalog.Catalog {
	return s.catalog
}

// Start 阻塞运行直到 Shutdown 或监听失败
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // 多目标请求可能要等很久，写超时交给调用方的超时控制
	}
	utils.Logger.Info("boltserver listening", "addr", addr, "transports", s.registry.Names())
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown 优雅退出
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func notFound(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusNotFound, errorBody{Msg: msg, Kind: KindNotFound})
}

// recoveryHandler 处理链里逃出来的 panic：细节进日志，响应只给通用消息
func recoveryHandler(c *gin.Context, err any) {
	utils.Logger.Error("unhandled fault in request handler",
		"request_id", requestID(c), "path", c.Request.URL.Path, "panic", fmt.Sprint(err))
	c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody{
		Msg:  "boltserver encountered an unexpected error",
		Kind: KindServerError,
	})
}
