package schema

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/BoltServer/pkg/models"
)

func decodeBody(t *testing.T, raw string) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &body))
	return body
}

func violationPaths(vs Violations) []string {
	paths := make([]string, len(vs))
	for i, v := range vs {
		paths[i] = v.Path
	}
	return paths
}

func TestDecodeValidSingleTarget(t *testing.T) {
	v := NewValidator()
	body := decodeBody(t, `{
		"target": {"hostname": "node1.example.com", "user": "root", "password": "secret", "port": 2222},
		"command": "uptime"
	}`)

	req, vs := v.Decode("ssh", "run_command", body)
	require.Empty(t, vs)

	require.Len(t, req.Targets, 1)
	assert.True(t, req.Single)
	target := req.Targets[0]
	assert.Equal(t, "node1.example.com", target.Hostname)
	assert.Equal(t, "root", target.User)
	assert.Equal(t, 2222, target.Port)
	assert.Equal(t, models.Password("secret"), target.Cred)
	assert.True(t, target.HostKeyCheck)
	assert.Equal(t, models.Command("uptime"), req.Work)
}

func TestDecodeMultipleTargets(t *testing.T) {
	v := NewValidator()
	body := decodeBody(t, `{
		"targets": [
			{"hostname": "a", "user": "root", "password": "x"},
			{"hostname": "b", "user": "root", "private-key-content": "-----BEGIN KEY-----"}
		],
		"command": "hostname"
	}`)

	req, vs := v.Decode("ssh", "run_command", body)
	require.Empty(t, vs)
	require.Len(t, req.Targets, 2)
	assert.False(t, req.Single)
	assert.Equal(t, models.Password("x"), req.Targets[0].Cred)
	assert.Equal(t, models.PrivateKey("-----BEGIN KEY-----"), req.Targets[1].Cred)
}

func TestDecodeTargetAndTargetsMutuallyExclusive(t *testing.T) {
	v := NewValidator()
	body := decodeBody(t, `{
		"target": {"hostname": "a", "user": "root", "password": "x"},
		"targets": [{"hostname": "b", "user": "root", "password": "x"}],
		"command": "true"
	}`)

	_, vs := v.Decode("ssh", "run_command", body)
	require.Len(t, vs, 1)
	assert.Contains(t, vs[0].Message, "both 'target' and 'targets'")
}

func TestDecodeNeitherTargetNorTargets(t *testing.T) {
	v := NewValidator()
	body := decodeBody(t, `{"command": "true"}`)

	_, vs := v.Decode("ssh", "run_command", body)
	require.Len(t, vs, 1)
	assert.Contains(t, vs[0].Message, "one of 'target' or 'targets'")
}

func TestDecodeCredentialExclusivity(t *testing.T) {
	v := NewValidator()
	body := decodeBody(t, `{
		"target": {"hostname": "a", "user": "root", "password": "x", "private-key-content": "y"},
		"command": "true"
	}`)

	_, vs := v.Decode("ssh", "run_command", body)
	require.Len(t, vs, 1)
	assert.Equal(t, "target", vs[0].Path)
	assert.Contains(t, vs[0].Message, "both 'password' and 'private-key-content'")
}

func TestDecodePortAsStringIsRejected(t *testing.T) {
	v := NewValidator()
	body := decodeBody(t, `{
		"target": {"hostname": "a", "user": "root", "password": "x", "port": "2222"},
		"command": "true"
	}`)

	_, vs := v.Decode("ssh", "run_command", body)
	require.Len(t, vs, 1)
	assert.Equal(t, "target/port", vs[0].Path)
	assert.Equal(t, "must be an integer", vs[0].Message)
}

func TestDecodeFractionalPortIsRejected(t *testing.T) {
	v := NewValidator()
	body := decodeBody(t, `{
		"target": {"hostname": "a", "user": "root", "password": "x", "port": 22.5},
		"command": "true"
	}`)

	_, vs := v.Decode("ssh", "run_command", body)
	require.Len(t, vs, 1)
	assert.Equal(t, "target/port", vs[0].Path)
}

func TestDecodeCollectsAllViolations(t *testing.T) {
	// 一次请求里所有的问题要一起报告，不能在第一个错误处停下
	v := NewValidator()
	body := decodeBody(t, `{
		"targets": [
			{"user": "root", "password": "x", "port": "22"},
			{"hostname": "b", "user": "root"}
		]
	}`)

	_, vs := v.Decode("ssh", "run_command", body)
	paths := violationPaths(vs)
	assert.Contains(t, paths, "targets/0/hostname")
	assert.Contains(t, paths, "targets/0/port")
	assert.Contains(t, paths, "targets/1")
	assert.Contains(t, paths, "command")
	assert.GreaterOrEqual(t, len(vs), 4)
}

func TestDecodeWinRMRejectsPrivateKey(t *testing.T) {
	v := NewValidator()
	body := decodeBody(t, `{
		"target": {"hostname": "win1", "user": "admin", "private-key-content": "k"},
		"command": "ipconfig"
	}`)

	_, vs := v.Decode("winrm", "run_command", body)
	paths := violationPaths(vs)
	assert.Contains(t, paths, "target/private-key-content")
	assert.Contains(t, paths, "target/password")
}

func TestDecodeWinRMDefaults(t *testing.T) {
	v := NewValidator()
	body := decodeBody(t, `{
		"target": {"hostname": "win1", "user": "admin", "password": "p"},
		"command": "ipconfig"
	}`)

	req, vs := v.Decode("winrm", "run_command", body)
	require.Empty(t, vs)
	target := req.Targets[0]
	assert.True(t, target.SSL)
	assert.True(t, target.SSLVerify)

	body["target"].(map[string]any)["ssl"] = false
	req, vs = v.Decode("winrm", "run_command", body)
	require.Empty(t, vs)
	assert.False(t, req.Targets[0].SSL)
}

func TestDecodeHostKeyCheckToggle(t *testing.T) {
	v := NewValidator()
	body := decodeBody(t, `{
		"target": {"hostname": "a", "user": "root", "password": "x", "host-key-check": false},
		"command": "true"
	}`)

	req, vs := v.Decode("ssh", "run_command", body)
	require.Empty(t, vs)
	assert.False(t, req.Targets[0].HostKeyCheck)
}

func TestDecodeConnectTimeout(t *testing.T) {
	v := NewValidator()
	body := decodeBody(t, `{
		"target": {"hostname": "a", "user": "root", "password": "x", "connect-timeout": 5},
		"command": "true"
	}`)

	req, vs := v.Decode("ssh", "run_command", body)
	require.Empty(t, vs)
	assert.Equal(t, 5*time.Second, req.Targets[0].ConnectTimeout)
}

func TestDecodeRunTask(t *testing.T) {
	v := NewValidator()
	body := decodeBody(t, `{
		"target": {"hostname": "a", "user": "root", "password": "x"},
		"task": {
			"name": "package::status",
			"metadata": {"description": "query package state"},
			"files": [
				{"filename": "status.sh", "sha256": "abc123", "uri": {"path": "/package/tasks/status.sh", "params": {"environment": "production"}}}
			]
		},
		"parameters": {"name": "openssl"}
	}`)

	req, vs := v.Decode("ssh", "run_task", body)
	require.Empty(t, vs)

	task, ok := req.Work.(models.Task)
	require.True(t, ok)
	assert.Equal(t, "package::status", task.Name)
	require.Len(t, task.Files, 1)
	assert.Equal(t, "status.sh", task.Files[0].Filename)
	assert.Equal(t, "abc123", task.Files[0].SHA256)
	assert.Equal(t, "/package/tasks/status.sh", task.Files[0].URI.Path)
	assert.Equal(t, "production", task.Files[0].URI.Params["environment"])
	assert.Equal(t, "openssl", req.Parameters["name"])
}

func TestDecodeRunTaskRequiresFiles(t *testing.T) {
	v := NewValidator()
	body := decodeBody(t, `{
		"target": {"hostname": "a", "user": "root", "password": "x"},
		"task": {"name": "t"}
	}`)

	_, vs := v.Decode("ssh", "run_task", body)
	assert.Contains(t, violationPaths(vs), "task/files")
}

func TestDecodeUploadFile(t *testing.T) {
	v := NewValidator()
	body := decodeBody(t, `{
		"target": {"hostname": "a", "user": "root", "password": "x"},
		"file": {"filename": "app.conf", "sha256": "def", "uri": {"path": "/files/app.conf"}},
		"destination": "/etc/app.conf"
	}`)

	req, vs := v.Decode("ssh", "upload_file", body)
	require.Empty(t, vs)
	up, ok := req.Work.(models.Upload)
	require.True(t, ok)
	assert.Equal(t, "/etc/app.conf", up.Destination)
	assert.Equal(t, "app.conf", up.File.Filename)
}

func TestDecodeCheckNodeConnections(t *testing.T) {
	v := NewValidator()
	body := decodeBody(t, `{
		"targets": [{"hostname": "a", "user": "root", "password": "x"}]
	}`)

	req, vs := v.Decode("ssh", "check_node_connections", body)
	require.Empty(t, vs)
	_, ok := req.Work.(models.ConnCheck)
	assert.True(t, ok)
}

func TestDecodeEmptyTargetsArray(t *testing.T) {
	v := NewValidator()
	body := decodeBody(t, `{"targets": [], "command": "true"}`)

	_, vs := v.Decode("ssh", "run_command", body)
	assert.Contains(t, violationPaths(vs), "targets")
}
