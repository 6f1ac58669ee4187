package cmd

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"example.com/BoltServer/pkg/config"
	"example.com/BoltServer/pkg/mcpsrv"
	"example.com/BoltServer/pkg/server"
)

type MCPOptions struct {
	ConfigPath string
}

func NewCmdMCP() *cobra.Command {
	o := &MCPOptions{}
	cmd := &cobra.Command{
		Use:   "mcp [flags]",
		Short: "以 MCP stdio 模式运行, 把调度能力暴露为工具",
		Long: `以 MCP stdio 模式运行。
不监听 HTTP 端口, 而是通过标准输入输出和 MCP 客户端通信,
把命令执行/连通性检查/任务目录作为工具暴露出去。`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&o.ConfigPath, "config", "c", "", "配置文件路径 (yaml)")
	return cmd
}

func (o *MCPOptions) Run(ctx context.Context) error {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return err
	}
	// 日志走 stderr, 不会污染 stdio 传输

	srv, err := server.New(cfg)
	if err != nil {
		return err
	}

	return mcpsrv.NewServer(srv.Dispatcher(), srv.Catalog()).Run(ctx, &mcp.StdioTransport{})
}
