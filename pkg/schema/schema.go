// Package schema 在任何网络动作发生之前对请求体做完整校验。
// 校验不会在第一个错误处停下：一次响应里要报告所有的问题，
// 所以每条规则都把违规追加到同一个列表里，最后统一返回。
package schema

import (
	"fmt"
	"math"
	"time"

	"example.com/BoltServer/pkg/models"
)

// Violation 一条校验违规：属性路径 + 面向人的说明
type Violation struct {
	Path    string `json:"path"`
	Message string `json:"msg"`
}

// Violations 本次请求的全部违规
type Violations []Violation

func (vs Violations) Error() string {
	if len(vs) == 0 {
		return "no violations"
	}
	return fmt.Sprintf("%d schema violation(s), first: %s: %s", len(vs), vs[0].Path, vs[0].Message)
}

func (vs *Violations) add(path, format string, args ...any) {
	*vs = append(*vs, Violation{Path: path, Message: fmt.Sprintf(format, args...)})
}

// AuthRule 传输协议对认证字段的要求
type AuthRule int

const (
	// AuthPasswordOrKey password 与 private-key-content 二选一，必须恰好一个
	AuthPasswordOrKey AuthRule = iota
	// AuthPasswordOnly 只接受 password (WinRM 没有私钥登录)
	AuthPasswordOnly
)

// TargetRules 某个传输协议下 Target 字段的形状约束
type TargetRules struct {
	Auth         AuthRule
	RequireUser  bool
	HostKeyCheck bool // 是否接受 host-key-check 选项
	SSLOptions   bool // 是否接受 ssl / ssl-verify 选项
	DefaultSSL   bool
}

// Validator 持有按传输协议注册的 Target 规则。
// 启动时构造一次，之后只读，可以被任意多个请求并发使用。
type Validator struct {
	rules map[string]TargetRules
}

// NewValidator 注册内置的 ssh / winrm 规则
func NewValidator() *Validator {
	return &Validator{
		rules: map[string]TargetRules{
			"ssh": {
				Auth:         AuthPasswordOrKey,
				RequireUser:  true,
				HostKeyCheck: true,
			},
			"winrm": {
				Auth:        AuthPasswordOnly,
				RequireUser: true,
				SSLOptions:  true,
				DefaultSSL:  true,
			},
		},
	}
}

// Decode 对原始请求体做校验并构造类型化的 ExecutionRequest。
// 返回的 Violations 非空时请求必须被拒绝，此时 ExecutionRequest 不可用。
func (v *Validator) Decode(transport, action string, body map[string]any) (models.ExecutionRequest, Violations) {
	var vs Violations
	req := models.ExecutionRequest{}

	rules, ok := v.rules[transport]
	if !ok {
		// 路由层应当先挡掉未知传输协议，这里只是兜底
		vs.add("transport", "unknown transport %q", transport)
		return req, vs
	}

	req.Targets, req.Single = v.decodeTargets(transport, rules, body, &vs)
	req.Work = decodeWork(action, body, &vs)
	req.Parameters = decodeParameters(body, &vs)

	if len(vs) > 0 {
		return models.ExecutionRequest{}, vs
	}
	return req, nil
}

// decodeTargets 处理 target/targets 互斥规则并逐个解码
func (v *Validator) decodeTargets(transport string, rules TargetRules, body map[string]any, vs *Violations) ([]models.Target, bool) {
	rawSingle, hasSingle := body["target"]
	rawMulti, hasMulti := body["targets"]

	switch {
	case hasSingle && hasMulti:
		vs.add("", "request cannot specify both 'target' and 'targets'")
		return nil, false
	case !hasSingle && !hasMulti:
		vs.add("", "request must specify one of 'target' or 'targets'")
		return nil, false
	case hasSingle:
		obj, ok := rawSingle.(map[string]any)
		if !ok {
			vs.add("target", "must be an object")
			return nil, true
		}
		return []models.Target{v.decodeTarget(transport, rules, "target", obj, vs)}, true
	default:
		list, ok := rawMulti.([]any)
		if !ok {
			vs.add("targets", "must be an array of objects")
			return nil, false
		}
		if len(list) == 0 {
			vs.add("targets", "must not be empty")
			return nil, false
		}
		targets := make([]models.Target, 0, len(list))
		for i, raw := range list {
			path := fmt.Sprintf("targets/%d", i)
			obj, ok := raw.(map[string]any)
			if !ok {
				vs.add(path, "must be an object")
				continue
			}
			targets = append(targets, v.decodeTarget(transport, rules, path, obj, vs))
		}
		return targets, false
	}
}

func (v *Validator) decodeTarget(transport string, rules TargetRules, path string, obj map[string]any, vs *Violations) models.Target {
	t := models.Target{
		Transport:    transport,
		HostKeyCheck: true,
		SSL:          rules.DefaultSSL,
		SSLVerify:    rules.DefaultSSL,
	}

	t.Hostname = stringField(obj, path, "hostname", true, vs)
	t.User = stringField(obj, path, "user", rules.RequireUser, vs)
	t.Port = intField(obj, path, "port", vs)
	if secs := intField(obj, path, "connect-timeout", vs); secs > 0 {
		t.ConnectTimeout = time.Duration(secs) * time.Second
	}

	t.Cred = decodeCredential(rules.Auth, path, obj, vs)

	if rules.HostKeyCheck {
		t.HostKeyCheck = boolField(obj, path, "host-key-check", true, vs)
	}
	if rules.SSLOptions {
		t.SSL = boolField(obj, path, "ssl", rules.DefaultSSL, vs)
		t.SSLVerify = boolField(obj, path, "ssl-verify", rules.DefaultSSL, vs)
	}
	return t
}

// decodeCredential 凭据互斥检查：不能两个都给，也不能一个都不给
func decodeCredential(rule AuthRule, path string, obj map[string]any, vs *Violations) models.Credential {
	password, hasPassword := obj["password"]
	key, hasKey := obj["private-key-content"]

	if rule == AuthPasswordOnly {
		if hasKey {
			vs.add(path+"/private-key-content", "not supported by this transport, use 'password'")
		}
		if !hasPassword {
			vs.add(path+"/password", "is required")
			return nil
		}
		s, ok := password.(string)
		if !ok {
			vs.add(path+"/password", "must be a string")
			return nil
		}
		return models.Password(s)
	}

	switch {
	case hasPassword && hasKey:
		vs.add(path, "cannot specify both 'password' and 'private-key-content'")
		return nil
	case !hasPassword && !hasKey:
		vs.add(path, "must specify one of 'password' or 'private-key-content'")
		return nil
	case hasPassword:
		s, ok := password.(string)
		if !ok {
			vs.add(path+"/password", "must be a string")
			return nil
		}
		return models.Password(s)
	default:
		s, ok := key.(string)
		if !ok {
			vs.add(path+"/private-key-content", "must be a string")
			return nil
		}
		return models.PrivateKey(s)
	}
}

// decodeWork 按 action 解析工作单元字段
func decodeWork(action string, body map[string]any, vs *Violations) models.WorkItem {
	switch action {
	case "run_command":
		cmd := stringField(body, "", "command", true, vs)
		return models.Command(cmd)
	case "run_script":
		obj := objectField(body, "", "script", vs)
		if obj == nil {
			return nil
		}
		return models.Script{File: decodeFileRef("script", obj, vs)}
	case "run_task":
		obj := objectField(body, "", "task", vs)
		if obj == nil {
			return nil
		}
		return decodeTask(obj, vs)
	case "upload_file":
		obj := objectField(body, "", "file", vs)
		dest := stringField(body, "", "destination", true, vs)
		if obj == nil {
			return nil
		}
		return models.Upload{File: decodeFileRef("file", obj, vs), Destination: dest}
	case "check_node_connections":
		return models.ConnCheck{}
	default:
		// 路由层保证 action 已注册；这里同样只兜底
		vs.add("", "unknown action %q", action)
		return nil
	}
}

func decodeTask(obj map[string]any, vs *Violations) models.WorkItem {
	task := models.Task{
		Name: stringField(obj, "task", "name", true, vs),
	}
	if meta, ok := obj["metadata"]; ok {
		m, ok := meta.(map[string]any)
		if !ok {
			vs.add("task/metadata", "must be an object")
		} else {
			task.Metadata = m
		}
	}
	rawFiles, ok := obj["files"]
	if !ok {
		vs.add("task/files", "is required")
		return task
	}
	list, ok := rawFiles.([]any)
	if !ok || len(list) == 0 {
		vs.add("task/files", "must be a non-empty array")
		return task
	}
	for i, raw := range list {
		path := fmt.Sprintf("task/files/%d", i)
		f, ok := raw.(map[string]any)
		if !ok {
			vs.add(path, "must be an object")
			continue
		}
		task.Files = append(task.Files, decodeFileRef(path, f, vs))
	}
	return task
}

func decodeFileRef(path string, obj map[string]any, vs *Violations) models.FileRef {
	ref := models.FileRef{
		Filename: stringField(obj, path, "filename", true, vs),
		SHA256:   stringField(obj, path, "sha256", true, vs),
	}
	uri := objectField(obj, path, "uri", vs)
	if uri == nil {
		return ref
	}
	ref.URI.Path = stringField(uri, path+"/uri", "path", true, vs)
	if rawParams, ok := uri["params"]; ok {
		params, ok := rawParams.(map[string]any)
		if !ok {
			vs.add(path+"/uri/params", "must be an object")
			return ref
		}
		ref.URI.Params = make(map[string]string, len(params))
		for k, val := range params {
			s, ok := val.(string)
			if !ok {
				vs.add(path+"/uri/params/"+k, "must be a string")
				continue
			}
			ref.URI.Params[k] = s
		}
	}
	return ref
}

func decodeParameters(body map[string]any, vs *Violations) map[string]any {
	raw, ok := body["parameters"]
	if !ok {
		return nil
	}
	params, ok := raw.(map[string]any)
	if !ok {
		vs.add("parameters", "must be an object")
		return nil
	}
	return params
}

// ---------- 基础类型检查 ----------
// JSON 解码进 map[string]any 之后数字统一是 float64，
// 整数字段要求小数部分为零；字符串形式的数字一律拒绝。

func stringField(obj map[string]any, base, name string, required bool, vs *Violations) string {
	path := joinPath(base, name)
	raw, ok := obj[name]
	if !ok {
		if required {
			vs.add(path, "is required")
		}
		return ""
	}
	s, ok := raw.(string)
	if !ok {
		vs.add(path, "must be a string")
		return ""
	}
	if required && s == "" {
		vs.add(path, "must not be empty")
	}
	return s
}

func intField(obj map[string]any, base, name string, vs *Violations) int {
	path := joinPath(base, name)
	raw, ok := obj[name]
	if !ok {
		return 0
	}
	f, ok := raw.(float64)
	if !ok || f != math.Trunc(f) {
		vs.add(path, "must be an integer")
		return 0
	}
	return int(f)
}

func objectField(obj map[string]any, base, name string, vs *Violations) map[string]any {
	path := joinPath(base, name)
	raw, ok := obj[name]
	if !ok {
		vs.add(path, "is required")
		return nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		vs.add(path, "must be an object")
		return nil
	}
	return m
}

func boolField(obj map[string]any, base, name string, def bool, vs *Violations) bool {
	path := joinPath(base, name)
	raw, ok := obj[name]
	if !ok {
		return def
	}
	b, ok := raw.(bool)
	if !ok {
		vs.add(path, "must be a boolean")
		return def
	}
	return b
}

func joinPath(base, name string) string {
	if base == "" {
		return name
	}
	return base + "/" + name
}
