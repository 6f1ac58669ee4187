// Package sshx 是 SSH 传输协议实现。
// 加密握手完全交给 golang.org/x/crypto/ssh，这里只负责
// 连接生命周期、请求投递和结果收集。
package sshx

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"example.com/BoltServer/pkg/models"
	"example.com/BoltServer/pkg/transport"
)

const defaultPort = 22

// Transport 实现 transport.Transport
type Transport struct {
	// KnownHostsPath 指纹库路径；为空时用 ~/.ssh/known_hosts
	KnownHostsPath string
	// DefaultTimeout 目标没带 connect-timeout 时的连接超时
	DefaultTimeout time.Duration
}

// New 构造 SSH 传输
func New(defaultTimeout time.Duration) *Transport {
	if defaultTimeout <= 0 {
		defaultTimeout = 15 * time.Second
	}
	return &Transport{DefaultTimeout: defaultTimeout}
}

func (t *Transport) Name() string { return "ssh" }

// Connect 建立 SSH 会话
// 先拨 TCP (带超时)，再在上面完成 SSH 握手，和直接 ssh.Dial 相比
// 可以把"网络不通"和"握手/认证失败"区分开
func (t *Transport) Connect(ctx context.Context, target models.Target) (transport.Session, error) {
	cfg, err := t.buildClientConfig(target)
	if err != nil {
		return nil, err
	}

	addr := target.Addr(defaultPort)
	dialer := &net.Dialer{Timeout: cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	ncc, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s failed: %w", addr, err)
	}
	return newSession(ssh.NewClient(ncc, chans, reqs)), nil
}

// buildClientConfig 由 Target 的凭据构建 ssh.ClientConfig
func (t *Transport) buildClientConfig(target models.Target) (*ssh.ClientConfig, error) {
	var auth ssh.AuthMethod
	switch cred := target.Cred.(type) {
	case models.Password:
		auth = ssh.Password(string(cred))
	case models.PrivateKey:
		signer, err := ssh.ParsePrivateKey([]byte(cred))
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		auth = ssh.PublicKeys(signer)
	default:
		return nil, fmt.Errorf("ssh requires a password or private key credential")
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if target.HostKeyCheck {
		callback, err := t.knownHostsCallback()
		if err != nil {
			return nil, err
		}
		hostKeyCallback = callback
	}

	timeout := target.ConnectTimeout
	if timeout <= 0 {
		timeout = t.DefaultTimeout
	}

	return &ssh.ClientConfig{
		User:            target.User,
		Auth:            []ssh.AuthMethod{auth},
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}, nil
}

func (t *Transport) knownHostsCallback() (ssh.HostKeyCallback, error) {
	path := t.KnownHostsPath
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot locate known_hosts: %w", err)
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}
	callback, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("host key verification unavailable (%s): %w", path, err)
	}
	return callback, nil
}
