// Package transport 定义传输协议的公共契约和静态注册表。
// 每种协议负责：建立连接、投递工作单元、捕获输出和退出码，
// 并把协议层的失败转成普通 error 返回，绝不向上层抛 panic。
package transport

import (
	"context"
	"fmt"
	"io"
	"os"

	"example.com/BoltServer/pkg/models"
)

// ExecResult 一次远程执行捕获到的输出和退出信号
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Session 一条已经建立的到某个 Target 的会话
// 同一 Session 只被一个目标的 worker 持有，无需并发安全
type Session interface {
	// RunCommand 执行命令；stdin 可以为 nil。
	// 远端命令退出码非零不算 error，体现在 ExecResult.ExitCode 里；
	// error 只表示传输层故障。
	RunCommand(ctx context.Context, cmd string, stdin io.Reader) (*ExecResult, error)

	// Upload 把 src 的内容写到远端路径，父目录不存在时创建
	Upload(ctx context.Context, src io.Reader, remotePath string, mode os.FileMode) error

	// InvokeFile 执行远端的一个文件，注入环境变量，stdin 可以为 nil。
	// 怎样设置环境变量、怎样保证可执行，由各协议自己决定。
	InvokeFile(ctx context.Context, remotePath string, env map[string]string, stdin io.Reader) (*ExecResult, error)

	// TempDir 返回一个本次会话专用的远端临时目录路径 (不负责创建)
	TempDir() string

	// Join 按远端系统的习惯拼接路径
	Join(elem ...string) string

	Close() error
}

// Transport 一种可以连到 Target 并在上面干活的协议实现
type Transport interface {
	Name() string
	// Connect 建立到目标的会话。认证失败、主机不可达、指纹不匹配、
	// 协议协商失败等都以 error 返回。
	Connect(ctx context.Context, target models.Target) (Session, error)
}

// Registry 传输协议名到实现的静态映射
// 启动时填充完毕，之后只读，可被所有请求并发使用
type Registry struct {
	transports map[string]Transport
}

// NewRegistry 注册给定的协议实现；重名在启动时就报错，而不是等到请求时才发现
func NewRegistry(transports ...Transport) (*Registry, error) {
	r := &Registry{transports: make(map[string]Transport, len(transports))}
	for _, t := range transports {
		if t.Name() == "" {
			return nil, fmt.Errorf("transport with empty name")
		}
		if _, dup := r.transports[t.Name()]; dup {
			return nil, fmt.Errorf("duplicate transport %q", t.Name())
		}
		r.transports[t.Name()] = t
	}
	return r, nil
}

// Get 按名字取协议实现
func (r *Registry) Get(name string) (Transport, bool) {
	t, ok := r.transports[name]
	return t, ok
}

// Names 已注册的协议名 (顺序不定)
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.transports))
	for name := range r.transports {
		names = append(names, name)
	}
	return names
}
