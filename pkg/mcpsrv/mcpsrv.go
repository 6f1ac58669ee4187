// Package mcpsrv 把调度操作作为 MCP 工具暴露出去，
// 让代理类客户端可以直接下发命令和连通性检查，不经过 HTTP 层。
package mcpsrv

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"example.com/BoltServer/cmd/version"
	"example.com/BoltServer/pkg/catalog"
	"example.com/BoltServer/pkg/dispatcher"
	"example.com/BoltServer/pkg/models"
)

// handler 持有工具处理函数共享的依赖
type handler struct {
	dispatcher *dispatcher.Dispatcher
	catalog    *catalog.Catalog
}

// NewServer 创建注册了全部工具的 MCP 服务
func NewServer(d *dispatcher.Dispatcher, cat *catalog.Catalog) *mcp.Server {
	h := &handler{dispatcher: d, catalog: cat}

	s := mcp.NewServer(&mcp.Implementation{Name: "boltserver", Version: version.Version}, nil)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "bolt_run_command",
		Description: "Run a shell command on one or more remote nodes over ssh or winrm and return per-node results.",
	}, h.runCommand)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "bolt_check_nodes",
		Description: "Check connectivity to one or more remote nodes without running any workload.",
	}, h.checkNodes)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "bolt_list_tasks",
		Description: "List the tasks available in an environment's module tree.",
	}, h.listTasks)

	return s
}

type nodeParams struct {
	Transport      string   `json:"transport" jsonschema:"Transport protocol, ssh or winrm."`
	Hostnames      []string `json:"hostnames" jsonschema:"Remote hostnames to act on."`
	User           string   `json:"user" jsonschema:"Login user."`
	Password       string   `json:"password,omitempty" jsonschema:"Password credential. Exactly one of password or private_key_content."`
	PrivateKey     string   `json:"private_key_content,omitempty" jsonschema:"Private key content credential (ssh only)."`
	Port           int      `json:"port,omitempty" jsonschema:"Port; transport default when omitted."`
	ConnectTimeout int      `json:"connect_timeout,omitempty" jsonschema:"Connection timeout in seconds."`
}

type runCommandParams struct {
	nodeParams
	Command string `json:"command" jsonschema:"Shell command to run."`
}

type listTasksParams struct {
	Environment string `json:"environment,omitempty" jsonschema:"Environment name. Default: production."`
}

func (h *handler) runCommand(ctx context.Context, req *mcp.CallToolRequest, params runCommandParams) (*mcp.CallToolResult, any, error) {
	if params.Command == "" {
		return errorResult("command is required")
	}
	execReq, err := params.nodeParams.toRequest(models.Command(params.Command))
	if err != nil {
		return errorResult(err.Error())
	}
	return resultSetResult(h.dispatcher.Dispatch(ctx, execReq))
}

func (h *handler) checkNodes(ctx context.Context, req *mcp.CallToolRequest, params nodeParams) (*mcp.CallToolResult, any, error) {
	execReq, err := params.toRequest(models.ConnCheck{})
	if err != nil {
		return errorResult(err.Error())
	}
	return resultSetResult(h.dispatcher.Dispatch(ctx, execReq))
}

func (h *handler) listTasks(ctx context.Context, req *mcp.CallToolRequest, params listTasksParams) (*mcp.CallToolResult, any, error) {
	env := params.Environment
	if env == "" {
		env = "production"
	}
	entries, err := h.catalog.ListTasks(env)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to list tasks: %v", err))
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return textResult(strings.Join(names, "\n"))
}

// toRequest 把工具参数转成和 HTTP 层一样的 ExecutionRequest
// MCP 参数结构比 HTTP 宽松，这里做同等的凭据互斥检查
func (p nodeParams) toRequest(work models.WorkItem) (models.ExecutionRequest, error) {
	if len(p.Hostnames) == 0 {
		return models.ExecutionRequest{}, fmt.Errorf("hostnames must not be empty")
	}
	if p.Transport != "ssh" && p.Transport != "winrm" {
		return models.ExecutionRequest{}, fmt.Errorf("unknown transport %q", p.Transport)
	}

	var cred models.Credential
	switch {
	case p.Password != "" && p.PrivateKey != "":
		return models.ExecutionRequest{}, fmt.Errorf("cannot specify both password and private_key_content")
	case p.Password != "":
		cred = models.Password(p.Password)
	case p.PrivateKey != "":
		if p.Transport == "winrm" {
			return models.ExecutionRequest{}, fmt.Errorf("winrm only supports password auth")
		}
		cred = models.PrivateKey(p.PrivateKey)
	default:
		return models.ExecutionRequest{}, fmt.Errorf("one of password or private_key_content is required")
	}

	targets := make([]models.Target, len(p.Hostnames))
	for i, host := range p.Hostnames {
		targets[i] = models.Target{
			Hostname:       host,
			User:           p.User,
			Port:           p.Port,
			Cred:           cred,
			Transport:      p.Transport,
			HostKeyCheck:   true,
			SSL:            p.Transport == "winrm",
			SSLVerify:      p.Transport == "winrm",
			ConnectTimeout: time.Duration(p.ConnectTimeout) * time.Second,
		}
	}
	return models.ExecutionRequest{
		Targets: targets,
		Single:  len(targets) == 1,
		Work:    work,
	}, nil
}

func resultSetResult(rs models.ResultSet) (*mcp.CallToolResult, any, error) {
	encoded, err := json.MarshalIndent(rs, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("failed to encode result: %v", err))
	}
	return textResult(string(encoded))
}

func textResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil, nil
}

func errorResult(msg string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
	}, nil, nil
}
