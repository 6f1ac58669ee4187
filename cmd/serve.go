package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"example.com/BoltServer/pkg/config"
	"example.com/BoltServer/pkg/server"
	"example.com/BoltServer/utils"
)

type ServeOptions struct {
	ConfigPath string
}

func NewCmdServe() *cobra.Command {
	o := &ServeOptions{}
	cmd := &cobra.Command{
		Use:   "serve [flags]",
		Short: "启动 HTTP 调度服务",
		Long: `启动 HTTP 调度服务。
POST /{transport}/{action} 接收执行请求, GET /tasks 等路由提供目录查询。
收到 SIGINT/SIGTERM 时优雅退出, 已经在途的请求有 30 秒时间收尾。`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.Run()
		},
	}
	cmd.Flags().StringVarP(&o.ConfigPath, "config", "c", "", "配置文件路径 (yaml)")
	return cmd
}

func (o *ServeOptions) Run() error {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return err
	}
	utils.Logger.SetLogLevel(cfg.LogLevel)

	srv, err := server.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		utils.Logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
