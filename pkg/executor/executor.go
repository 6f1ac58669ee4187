// Package executor 在单个目标上执行一个工作单元并产出 Outcome。
// 这里是故障恢复边界：传输层和执行层的一切失败都在这里收敛成
// failure Outcome，绝不把 error 或 panic 漏给调度器。
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"example.com/BoltServer/pkg/filecache"
	"example.com/BoltServer/pkg/models"
	"example.com/BoltServer/pkg/probe"
	"example.com/BoltServer/pkg/transport"
)

// 错误类别，出现在 failure Outcome 的 value._error.kind 里
const (
	KindConnectError  = "boltserver/connect-error"
	KindFileError     = "boltserver/file-error"
	KindRunFailure    = "boltserver/run-failure"
	KindTaskError     = "boltserver/task-error"
	KindInternalError = "boltserver/internal-error"
)

// Executor 对传输协议多态：注册表里有什么协议，就能在什么协议上执行
type Executor struct {
	registry *transport.Registry
	files    *filecache.Cache
	prober   *probe.Prober
}

// New 构造执行器
func New(registry *transport.Registry, files *filecache.Cache, prober *probe.Prober) *Executor {
	if prober == nil {
		prober = &probe.Prober{}
	}
	return &Executor{registry: registry, files: files, prober: prober}
}

// Run 在一个目标上执行工作单元，永远返回 Outcome 而不是 error
func (e *Executor) Run(ctx context.Context, target models.Target, work models.WorkItem, params map[string]any) models.Outcome {
	tr, ok := e.registry.Get(target.Transport)
	if !ok {
		// 路由层已经挡掉未知协议，走到这里属于程序缺陷
		return failure(target, KindInternalError, fmt.Sprintf("transport %q not registered", target.Transport))
	}

	// 连通性检查不投递工作单元，单独一条路径
	if _, isCheck := work.(models.ConnCheck); isCheck {
		return e.prober.Check(ctx, tr, target)
	}

	sess, err := tr.Connect(ctx, target)
	if err != nil {
		return failure(target, KindConnectError, err.Error())
	}
	defer sess.Close()

	switch w := work.(type) {
	case models.Command:
		return e.runCommand(ctx, target, sess, string(w))
	case models.Script:
		return e.runScript(ctx, target, sess, w, params)
	case models.Task:
		return e.runTask(ctx, target, sess, w, params)
	case models.Upload:
		return e.uploadFile(ctx, target, sess, w)
	default:
		return failure(target, KindInternalError, fmt.Sprintf("unsupported work item %T", work))
	}
}

func (e *Executor) runCommand(ctx context.Context, target models.Target, sess transport.Session, cmd string) models.Outcome {
	result, err := sess.RunCommand(ctx, cmd, nil)
	if err != nil {
		return failure(target, KindRunFailure, err.Error())
	}
	return outcomeFromResult(target, result, KindRunFailure)
}

func (e *Executor) runScript(ctx context.Context, target models.Target, sess transport.Session, script models.Script, params map[string]any) models.Outcome {
	local, err := e.files.Fetch(ctx, script.File)
	if err != nil {
		return failure(target, KindFileError, err.Error())
	}
	remote := sess.Join(sess.TempDir(), filepath.Base(script.File.Filename))
	if err := uploadLocal(ctx, sess, local, remote); err != nil {
		return failure(target, KindFileError, err.Error())
	}
	result, err := sess.InvokeFile(ctx, remote, paramEnv(params), nil)
	if err != nil {
		return failure(target, KindRunFailure, err.Error())
	}
	return outcomeFromResult(target, result, KindRunFailure)
}

// runTask 任务执行：取回全部实现文件 -> 上传 -> 执行首个文件。
// 参数通过 PT_<name> 环境变量和 stdin 上的 JSON 两路传入。
func (e *Executor) runTask(ctx context.Context, target models.Target, sess transport.Session, task models.Task, params map[string]any) models.Outcome {
	if len(task.Files) == 0 {
		return failure(target, KindTaskError, fmt.Sprintf("task %q has no implementation files", task.Name))
	}

	// 文件取回走缓存，可以放心并行
	locals := make([]string, len(task.Files))
	g, gctx := errgroup.WithContext(ctx)
	for i, ref := range task.Files {
		g.Go(func() error {
			local, err := e.files.Fetch(gctx, ref)
			if err != nil {
				return err
			}
			locals[i] = local
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return failure(target, KindFileError, err.Error())
	}

	dir := sess.TempDir()
	remotes := make([]string, len(task.Files))
	for i, ref := range task.Files {
		remotes[i] = sess.Join(dir, filepath.Base(ref.Filename))
		if err := uploadLocal(ctx, sess, locals[i], remotes[i]); err != nil {
			return failure(target, KindFileError, err.Error())
		}
	}

	stdin, err := json.Marshal(nonNil(params))
	if err != nil {
		return failure(target, KindInternalError, err.Error())
	}
	result, err := sess.InvokeFile(ctx, remotes[0], paramEnv(params), bytes.NewReader(stdin))
	if err != nil {
		return failure(target, KindRunFailure, err.Error())
	}

	// 任务约定：stdout 是 JSON 对象时直接作为结果值
	value := map[string]any{}
	if err := json.Unmarshal([]byte(result.Stdout), &value); err != nil {
		value = map[string]any{"_output": result.Stdout}
	}
	if result.ExitCode != 0 {
		value["_error"] = map[string]any{
			"kind": KindTaskError,
			"msg":  fmt.Sprintf("task %q exited with code %d: %s", task.Name, result.ExitCode, result.Stderr),
		}
		return models.Outcome{Target: target.Hostname, Status: models.StatusFailure, Value: value}
	}
	return models.Outcome{Target: target.Hostname, Status: models.StatusSuccess, Value: value}
}

func (e *Executor) uploadFile(ctx context.Context, target models.Target, sess transport.Session, up models.Upload) models.Outcome {
	local, err := e.files.Fetch(ctx, up.File)
	if err != nil {
		return failure(target, KindFileError, err.Error())
	}
	if err := uploadLocal(ctx, sess, local, up.Destination); err != nil {
		return failure(target, KindFileError, err.Error())
	}
	return models.Outcome{
		Target: target.Hostname,
		Status: models.StatusSuccess,
		Value: map[string]any{
			"path":   up.Destination,
			"status": "uploaded",
		},
	}
}

func uploadLocal(ctx context.Context, sess transport.Session, local, remote string) error {
	f, err := os.Open(local)
	if err != nil {
		return err
	}
	defer f.Close()
	return sess.Upload(ctx, f, remote, 0o700)
}

// paramEnv 把参数转成 PT_ 前缀的环境变量
// 字符串原样传，其他类型传 JSON 编码
func paramEnv(params map[string]any) map[string]string {
	env := make(map[string]string, len(params))
	for k, v := range params {
		if s, ok := v.(string); ok {
			env["PT_"+k] = s
			continue
		}
		encoded, err := json.Marshal(v)
		if err != nil {
			continue
		}
		env["PT_"+k] = string(encoded)
	}
	return env
}

func nonNil(params map[string]any) map[string]any {
	if params == nil {
		return map[string]any{}
	}
	return params
}

// outcomeFromResult 命令/脚本的通用结果整形：退出码非零归为 failure，
// 但 value 保留工作单元自己的输出，这是调用方关心的数据
func outcomeFromResult(target models.Target, result *transport.ExecResult, kind string) models.Outcome {
	value := map[string]any{
		"stdout":    result.Stdout,
		"stderr":    result.Stderr,
		"exit_code": result.ExitCode,
	}
	if result.ExitCode != 0 {
		value["_error"] = map[string]any{
			"kind": kind,
			"msg":  fmt.Sprintf("command exited with code %d", result.ExitCode),
		}
		return models.Outcome{Target: target.Hostname, Status: models.StatusFailure, Value: value}
	}
	return models.Outcome{Target: target.Hostname, Status: models.StatusSuccess, Value: value}
}

func failure(target models.Target, kind, msg string) models.Outcome {
	return models.Outcome{
		Target: target.Hostname,
		Status: models.StatusFailure,
		Value:  models.ErrorValue(kind, msg),
	}
}
