package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"example.com/BoltServer/pkg/catalog"
	"example.com/BoltServer/pkg/schema"
	"example.com/BoltServer/utils"
)

// handleAction 调度核心入口：POST /{transport}/{action}
func (s *Server) handleAction(c *gin.Context) {
	transportName := c.Param("transport")
	action := c.Param("action")

	// 路由检查先于一切：没注册的组合连 schema 都不存在，无从校验
	if _, ok := s.registry.Get(transportName); !ok {
		notFound(c, fmt.Sprintf("transport %q not found", transportName))
		return
	}
	if _, ok := registeredActions[action]; !ok {
		notFound(c, fmt.Sprintf("action %q not found for transport %q", action, transportName))
		return
	}

	raw, err := c.GetRawData()
	if err != nil {
		schemaError(c, schema.Violations{{Path: "", Message: "failed to read request body"}})
		return
	}
	body := map[string]any{}
	if err := json.Unmarshal(raw, &body); err != nil {
		schemaError(c, schema.Violations{{Path: "", Message: "request body must be a JSON object"}})
		return
	}

	req, violations := s.validator.Decode(transportName, action, body)
	if len(violations) > 0 {
		schemaError(c, violations)
		return
	}

	log := utils.Logger.WithRequest(requestID(c))
	log.Info("dispatching", "transport", transportName, "action", action, "targets", len(req.Targets))

	resultSet := s.dispatcher.Dispatch(c.Request.Context(), req)
	log.Info("dispatch complete", "status", resultSet.Status)

	// 单数 target 的请求解包成裸 Outcome；目标失败不改变 HTTP 状态码
	if req.Single {
		c.JSON(http.StatusOK, resultSet.Outcomes[0])
		return
	}
	c.JSON(http.StatusOK, resultSet)
}

func schemaError(c *gin.Context, violations schema.Violations) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{
		Msg:     "request validation failed",
		Kind:    KindSchemaError,
		Details: violations,
	})
}

// ---------- 目录协作层 ----------

func (s *Server) environment(c *gin.Context) string {
	return c.DefaultQuery("environment", "production")
}

func (s *Server) handleListTasks(c *gin.Context) {
	entries, err := s.catalog.ListTasks(s.environment(c))
	s.replyCatalog(c, entries, err)
}

func (s *Server) handleListPlans(c *gin.Context) {
	entries, err := s.catalog.ListPlans(s.environment(c))
	s.replyCatalog(c, entries, err)
}

func (s *Server) handleGetTask(c *gin.Context) {
	detail, err := s.catalog.GetTask(s.environment(c), c.Param("module"), c.Param("task"))
	s.replyCatalog(c, detail, err)
}

func (s *Server) handleGetPlan(c *gin.Context) {
	detail, err := s.catalog.GetPlan(s.environment(c), c.Param("module"), c.Param("plan"))
	s.replyCatalog(c, detail, err)
}

// 项目作用域变体：同样的清单，额外计算 allowed

func (s *Server) project(c *gin.Context) (*catalog.Project, bool) {
	name := c.Query("versioned_project")
	if name == "" {
		schemaError(c, schema.Violations{{Path: "versioned_project", Message: "is required"}})
		return nil, false
	}
	p, err := s.catalog.LoadProject(name)
	if err != nil {
		s.replyCatalog(c, nil, err)
		return nil, false
	}
	return p, true
}

func (s *Server) handleProjectListTasks(c *gin.Context) {
	p, ok := s.project(c)
	if !ok {
		return
	}
	entries, err := s.catalog.ListTasks(s.environment(c))
	if err != nil {
		s.replyCatalog(c, nil, err)
		return
	}
	s.replyCatalog(c, catalog.WithAllowed(entries, p.TaskAllowed), nil)
}

func (s *Server) handleProjectListPlans(c *gin.Context) {
	p, ok := s.project(c)
	if !ok {
		return
	}
	entries, err := s.catalog.ListPlans(s.environment(c))
	if err != nil {
		s.replyCatalog(c, nil, err)
		return
	}
	s.replyCatalog(c, catalog.WithAllowed(entries, p.PlanAllowed), nil)
}

func (s *Server) handleProjectGetTask(c *gin.Context) {
	p, ok := s.project(c)
	if !ok {
		return
	}
	detail, err := s.catalog.GetTask(s.environment(c), c.Param("module"), c.Param("task"))
	if err != nil {
		s.replyCatalog(c, nil, err)
		return
	}
	detail["allowed"] = p.TaskAllowed(detail["name"].(string))
	s.replyCatalog(c, detail, nil)
}

func (s *Server) handleProjectGetPlan(c *gin.Context) {
	p, ok := s.project(c)
	if !ok {
		return
	}
	detail, err := s.catalog.GetPlan(s.environment(c), c.Param("module"), c.Param("plan"))
	if err != nil {
		s.replyCatalog(c, nil, err)
		return
	}
	detail["allowed"] = p.PlanAllowed(detail["name"].(string))
	s.replyCatalog(c, detail, nil)
}

func (s *Server) handleFileMetadata(c *gin.Context) {
	rel := strings.TrimPrefix(c.Param("path"), "/")
	metas, err := s.catalog.FileMetadata(s.environment(c), c.Param("module"), rel)
	s.replyCatalog(c, metas, err)
}

// replyCatalog 目录层错误到状态码的映射
func (s *Server) replyCatalog(c *gin.Context, payload any, err error) {
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			notFound(c, err.Error())
			return
		}
		utils.Logger.Error("catalog lookup failed", "request_id", requestID(c), "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody{
			Msg:  "boltserver encountered an unexpected error",
			Kind: KindServerError,
		})
		return
	}
	c.JSON(http.StatusOK, payload)
}
