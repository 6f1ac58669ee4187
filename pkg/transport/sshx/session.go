package sshx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"example.com/BoltServer/pkg/transport"
)

// session 包装一个已连接的 ssh.Client
// sftp 客户端按需建立，只有需要传文件的工作单元才会用到
type session struct {
	client *ssh.Client
	sftpc  *sftp.Client
}

func newSession(client *ssh.Client) *session {
	return &session{client: client}
}

func (s *session) Close() error {
	if s.sftpc != nil {
		s.sftpc.Close()
	}
	return s.client.Close()
}

// RunCommand 在新的 ssh 会话里执行命令，等待结束或上下文取消。
// 取消时对远端发 SIGKILL，尽量不留孤儿进程。
func (s *session) RunCommand(ctx context.Context, cmd string, stdin io.Reader) (*transport.ExecResult, error) {
	sess, err := s.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to open ssh session: %w", err)
	}
	defer sess.Close()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr
	if stdin != nil {
		sess.Stdin = stdin
	}

	if err := sess.Start(cmd); err != nil {
		return nil, fmt.Errorf("failed to start command: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- sess.Wait() }()

	select {
	case err := <-done:
		result := &transport.ExecResult{Stdout: stdout.String(), Stderr: stderr.String()}
		if err != nil {
			var exitErr *ssh.ExitError
			if errors.As(err, &exitErr) {
				// 远端正常退出但退出码非零：这是执行结果，不是传输层故障
				result.ExitCode = exitErr.ExitStatus()
				return result, nil
			}
			return nil, fmt.Errorf("command did not complete: %w", err)
		}
		return result, nil
	case <-ctx.Done():
		sess.Signal(ssh.SIGKILL)
		return nil, ctx.Err()
	}
}

// InvokeFile 保证文件可执行后运行它，env 以 K='v' 前缀形式注入
func (s *session) InvokeFile(ctx context.Context, remotePath string, env map[string]string, stdin io.Reader) (*transport.ExecResult, error) {
	var b strings.Builder
	b.WriteString("chmod +x ")
	b.WriteString(shellQuote(remotePath))
	b.WriteString(" && ")
	// 排序让生成的命令可复现，方便排查
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(shellQuote(env[k]))
		b.WriteByte(' ')
	}
	b.WriteString(shellQuote(remotePath))
	return s.RunCommand(ctx, b.String(), stdin)
}

// Upload 通过 sftp 写远端文件，父目录自动创建
func (s *session) Upload(ctx context.Context, src io.Reader, remotePath string, mode os.FileMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	client, err := s.sftpClient()
	if err != nil {
		return err
	}
	if dir := path.Dir(remotePath); dir != "." && dir != "/" {
		if err := client.MkdirAll(dir); err != nil {
			return fmt.Errorf("failed to create remote dir %s: %w", dir, err)
		}
	}
	f, err := client.Create(remotePath)
	if err != nil {
		return fmt.Errorf("failed to create remote file %s: %w", remotePath, err)
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		return fmt.Errorf("failed to write remote file %s: %w", remotePath, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close remote file %s: %w", remotePath, err)
	}
	if err := client.Chmod(remotePath, mode); err != nil {
		return fmt.Errorf("failed to chmod remote file %s: %w", remotePath, err)
	}
	return nil
}

func (s *session) sftpClient() (*sftp.Client, error) {
	if s.sftpc != nil {
		return s.sftpc, nil
	}
	client, err := sftp.NewClient(s.client)
	if err != nil {
		return nil, fmt.Errorf("failed to open sftp subsystem: %w", err)
	}
	s.sftpc = client
	return client, nil
}

func (s *session) TempDir() string {
	return "/tmp/boltserver-" + uuid.NewString()[:8]
}

func (s *session) Join(elem ...string) string {
	return path.Join(elem...)
}

// shellQuote 单引号包裹，内部的单引号转义成 '"'"'
func shellQuote(value string) string {
	if value == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(value, "'", `'"'"'`) + "'"
}
