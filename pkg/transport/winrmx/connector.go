// Package winrmx 是 WinRM 传输协议实现，面向 Windows 目标。
// 协议本身交给 github.com/masterzen/winrm，这里同样只做
// 连接生命周期、投递和结果整形。只支持密码认证。
package winrmx

import (
	"context"
	"fmt"
	"time"

	"github.com/masterzen/winrm"

	"example.com/BoltServer/pkg/models"
	"example.com/BoltServer/pkg/transport"
)

const (
	defaultPortHTTP  = 5985
	defaultPortHTTPS = 5986
)

// Transport 实现 transport.Transport
type Transport struct {
	// DefaultTimeout 目标没带 connect-timeout 时的连接超时
	DefaultTimeout time.Duration
}

// New 构造 WinRM 传输
func New(defaultTimeout time.Duration) *Transport {
	if defaultTimeout <= 0 {
		defaultTimeout = 15 * time.Second
	}
	return &Transport{DefaultTimeout: defaultTimeout}
}

func (t *Transport) Name() string { return "winrm" }

// Connect 建立 WinRM 会话
// winrm.NewClient 只是构造，不碰网络；这里主动开一个 shell
// 完成认证往返，让"连不上/认证被拒"在连接阶段暴露出来，
// check_node_connections 依赖这一点。
func (t *Transport) Connect(ctx context.Context, target models.Target) (transport.Session, error) {
	password, ok := target.Cred.(models.Password)
	if !ok {
		return nil, fmt.Errorf("winrm requires a password credential")
	}

	timeout := target.ConnectTimeout
	if timeout <= 0 {
		timeout = t.DefaultTimeout
	}

	port := target.Port
	if port == 0 {
		if target.SSL {
			port = defaultPortHTTPS
		} else {
			port = defaultPortHTTP
		}
	}

	endpoint := winrm.NewEndpoint(
		target.Hostname,
		port,
		target.SSL,
		!target.SSLVerify, // insecure: 跳过证书校验
		nil, nil, nil,
		timeout,
	)
	client, err := winrm.NewClient(endpoint, target.User, string(password))
	if err != nil {
		return nil, fmt.Errorf("failed to build winrm client: %w", err)
	}

	shell, err := client.CreateShell()
	if err != nil {
		return nil, fmt.Errorf("winrm negotiation with %s failed: %w", target.Addr(port), err)
	}
	return newSession(client, shell), nil
}
