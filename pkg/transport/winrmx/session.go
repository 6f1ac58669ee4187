package winrmx

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/masterzen/winrm"

	"example.com/BoltServer/pkg/transport"
)

// cmd.exe 单行上限 8191 字符，base64 分块留足余量
const uploadChunkSize = 4000

type session struct {
	client *winrm.Client
	shell  *winrm.Shell
}

func newSession(client *winrm.Client, shell *winrm.Shell) *session {
	return &session{client: client, shell: shell}
}

func (s *session) Close() error {
	if s.shell != nil {
		return s.shell.Close()
	}
	return nil
}

// RunCommand 通过 winrm 执行命令并收集输出
func (s *session) RunCommand(ctx context.Context, cmd string, stdin io.Reader) (*transport.ExecResult, error) {
	var stdout, stderr bytes.Buffer
	if stdin == nil {
		stdin = strings.NewReader("")
	}
	exitCode, err := s.client.RunWithContextWithInput(ctx, cmd, &stdout, &stderr, stdin)
	if err != nil {
		return nil, fmt.Errorf("winrm command failed: %w", err)
	}
	return &transport.ExecResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode,
	}, nil
}

// InvokeFile 用 powershell 运行远端文件，env 注入为 $env: 变量
func (s *session) InvokeFile(ctx context.Context, remotePath string, env map[string]string, stdin io.Reader) (*transport.ExecResult, error) {
	var b strings.Builder
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "$env:%s=%s; ", k, psQuote(env[k]))
	}
	fmt.Fprintf(&b, "& %s; exit $LASTEXITCODE", psQuote(remotePath))
	return s.RunCommand(ctx, powershell(b.String()), stdin)
}

// Upload 分块 base64 追加到临时文件，最后用 powershell 一次性解码落盘。
// WinRM 没有文件传输子协议，这是通用的笨办法，小文件(任务实现)足够了。
func (s *session) Upload(ctx context.Context, src io.Reader, remotePath string, _ os.FileMode) error {
	content, err := io.ReadAll(src)
	if err != nil {
		return fmt.Errorf("failed to read upload source: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(content)

	stage := s.Join(`C:\Windows\Temp`, "boltserver-stage-"+uuid.NewString()[:8]+".b64")
	for off := 0; off < len(encoded); off += uploadChunkSize {
		end := off + uploadChunkSize
		if end > len(encoded) {
			end = len(encoded)
		}
		chunk := encoded[off:end]
		result, err := s.RunCommand(ctx, fmt.Sprintf(`echo %s >> "%s"`, chunk, stage), nil)
		if err != nil {
			return err
		}
		if result.ExitCode != 0 {
			return fmt.Errorf("staging upload chunk failed: %s", result.Stderr)
		}
	}

	decode := fmt.Sprintf(
		"$raw = (Get-Content %s) -join ''; "+
			"$bytes = [Convert]::FromBase64String($raw); "+
			"New-Item -ItemType Directory -Force -Path (Split-Path %s) | Out-Null; "+
			"[IO.File]::WriteAllBytes(%s, $bytes); "+
			"Remove-Item %s",
		psQuote(stage), psQuote(remotePath), psQuote(remotePath), psQuote(stage),
	)
	result, err := s.RunCommand(ctx, powershell(decode), nil)
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("decoding upload failed: %s", result.Stderr)
	}
	return nil
}

func (s *session) TempDir() string {
	return s.Join(`C:\Windows\Temp`, "boltserver-"+uuid.NewString()[:8])
}

func (s *session) Join(elem ...string) string {
	return strings.Join(elem, `\`)
}

func powershell(script string) string {
	return "powershell.exe -NonInteractive -NoProfile -Command \"" +
		strings.ReplaceAll(script, `"`, "`\"") + "\""
}

// psQuote PowerShell 单引号字符串，内部单引号翻倍
func psQuote(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}
