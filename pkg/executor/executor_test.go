package executor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/BoltServer/pkg/filecache"
	"example.com/BoltServer/pkg/models"
	"example.com/BoltServer/pkg/transport"
)

// recordingTransport / recordingSession 记录会话上发生的所有调用
type recordingTransport struct {
	session *recordingSession
}

func (r *recordingTransport) Name() string { return "ssh" }

func (r *recordingTransport) Connect(ctx context.Context, target models.Target) (transport.Session, error) {
	return r.session, nil
}

type recordingSession struct {
	uploads   map[string][]byte // remotePath -> content
	invoked   string
	env       map[string]string
	stdin     []byte
	result    transport.ExecResult
	cmdResult transport.ExecResult
}

func newRecordingSession() *recordingSession {
	return &recordingSession{uploads: map[string][]byte{}}
}

func (s *recordingSession) RunCommand(ctx context.Context, cmd string, stdin io.Reader) (*transport.ExecResult, error) {
	out := s.cmdResult
	return &out, nil
}

func (s *recordingSession) Upload(ctx context.Context, src io.Reader, remotePath string, mode os.FileMode) error {
	data, err := io.ReadAll(src)
	if err != nil {
		return err
	}
	s.uploads[remotePath] = data
	return nil
}

func (s *recordingSession) InvokeFile(ctx context.Context, remotePath string, env map[string]string, stdin io.Reader) (*transport.ExecResult, error) {
	s.invoked = remotePath
	s.env = env
	if stdin != nil {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, err
		}
		s.stdin = data
	}
	out := s.result
	return &out, nil
}

func (s *recordingSession) TempDir() string            { return "/tmp/job" }
func (s *recordingSession) Join(elem ...string) string { return path.Join(elem...) }
func (s *recordingSession) Close() error               { return nil }

// seedCache 把文件按 <dir>/<sha256>/<name> 的布局预放进缓存目录
func seedCache(t *testing.T, content []byte, name string) (*filecache.Cache, models.FileRef) {
	t.Helper()
	dir := t.TempDir()
	sum := sha256.Sum256(content)
	sha := hex.EncodeToString(sum[:])
	require.NoError(t, os.MkdirAll(filepath.Join(dir, sha), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, sha, name), content, 0o600))

	c, err := filecache.New(dir, "")
	require.NoError(t, err)
	return c, models.FileRef{Filename: name, SHA256: sha}
}

func newExecutor(t *testing.T, sess *recordingSession, files *filecache.Cache) *Executor {
	t.Helper()
	registry, err := transport.NewRegistry(&recordingTransport{session: sess})
	require.NoError(t, err)
	return New(registry, files, nil)
}

func target() models.Target {
	return models.Target{Hostname: "node1", User: "root", Cred: models.Password("x"), Transport: "ssh"}
}

func TestRunTaskJSONOutput(t *testing.T) {
	files, ref := seedCache(t, []byte("#!/bin/sh\necho json"), "status.sh")
	sess := newRecordingSession()
	sess.result = transport.ExecResult{Stdout: `{"installed": true, "version": "1.1.1"}`}
	e := newExecutor(t, sess, files)

	out := e.Run(context.Background(), target(), models.Task{
		Name:  "package::status",
		Files: []models.FileRef{ref},
	}, map[string]any{"name": "openssl", "retries": float64(3)})

	assert.Equal(t, models.StatusSuccess, out.Status)
	// stdout 是 JSON 对象时直接作为结果值
	assert.Equal(t, true, out.Value["installed"])
	assert.Equal(t, "1.1.1", out.Value["version"])

	// 首个文件是入口, 上传到会话临时目录
	assert.Equal(t, "/tmp/job/status.sh", sess.invoked)
	assert.Contains(t, sess.uploads, "/tmp/job/status.sh")

	// 参数两路传入: PT_ 环境变量 (字符串原样, 其他 JSON) + stdin JSON
	assert.Equal(t, "openssl", sess.env["PT_name"])
	assert.Equal(t, "3", sess.env["PT_retries"])
	assert.JSONEq(t, `{"name": "openssl", "retries": 3}`, string(sess.stdin))
}

func TestRunTaskPlainOutput(t *testing.T) {
	files, ref := seedCache(t, []byte("x"), "noisy.sh")
	sess := newRecordingSession()
	sess.result = transport.ExecResult{Stdout: "plain text, not json"}
	e := newExecutor(t, sess, files)

	out := e.Run(context.Background(), target(), models.Task{Name: "t", Files: []models.FileRef{ref}}, nil)
	assert.Equal(t, models.StatusSuccess, out.Status)
	assert.Equal(t, "plain text, not json", out.Value["_output"])
}

func TestRunTaskNonZeroExit(t *testing.T) {
	files, ref := seedCache(t, []byte("x"), "fail.sh")
	sess := newRecordingSession()
	sess.result = transport.ExecResult{Stdout: "partial", Stderr: "boom", ExitCode: 1}
	e := newExecutor(t, sess, files)

	out := e.Run(context.Background(), target(), models.Task{Name: "t", Files: []models.FileRef{ref}}, nil)
	assert.Equal(t, models.StatusFailure, out.Status)
	assert.Equal(t, KindTaskError, models.ErrorKind(out.Value))
	// 任务自己的输出保留给调用方
	assert.Equal(t, "partial", out.Value["_output"])
}

func TestRunTaskWithoutFiles(t *testing.T) {
	sess := newRecordingSession()
	e := newExecutor(t, sess, nil)

	out := e.Run(context.Background(), target(), models.Task{Name: "empty"}, nil)
	assert.Equal(t, models.StatusFailure, out.Status)
	assert.Equal(t, KindTaskError, models.ErrorKind(out.Value))
}

func TestRunCommandNonZeroExit(t *testing.T) {
	sess := newRecordingSession()
	sess.cmdResult = transport.ExecResult{Stdout: "", Stderr: "no such file", ExitCode: 2}
	e := newExecutor(t, sess, nil)

	out := e.Run(context.Background(), target(), models.Command("ls /nope"), nil)
	assert.Equal(t, models.StatusFailure, out.Status)
	assert.Equal(t, KindRunFailure, models.ErrorKind(out.Value))
	assert.Equal(t, "no such file", out.Value["stderr"])
	assert.Equal(t, 2, out.Value["exit_code"])
}

func TestUploadFile(t *testing.T) {
	content := []byte("config contents")
	files, ref := seedCache(t, content, "app.conf")
	sess := newRecordingSession()
	e := newExecutor(t, sess, files)

	out := e.Run(context.Background(), target(), models.Upload{File: ref, Destination: "/etc/app.conf"}, nil)
	assert.Equal(t, models.StatusSuccess, out.Status)
	assert.Equal(t, "/etc/app.conf", out.Value["path"])
	assert.Equal(t, "uploaded", out.Value["status"])
	assert.Equal(t, content, sess.uploads["/etc/app.conf"])
}

func TestConnCheck(t *testing.T) {
	sess := newRecordingSession()
	e := newExecutor(t, sess, nil)

	out := e.Run(context.Background(), target(), models.ConnCheck{}, nil)
	assert.Equal(t, models.StatusSuccess, out.Status)
	assert.Equal(t, true, out.Value["connected"])
}

func TestUnregisteredTransport(t *testing.T) {
	sess := newRecordingSession()
	e := newExecutor(t, sess, nil)

	tgt := target()
	tgt.Transport = "telnet"
	out := e.Run(context.Background(), tgt, models.Command("true"), nil)
	assert.Equal(t, models.StatusFailure, out.Status)
	assert.Equal(t, KindInternalError, models.ErrorKind(out.Value))
}
