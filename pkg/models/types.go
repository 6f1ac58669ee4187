package models

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Credential 是认证方式的标签联合
// 一个 Target 要么用密码登录，要么用私钥内容登录，二者互斥
type Credential interface {
	credential()
}

// Password 密码认证
type Password string

// PrivateKey 私钥内容认证 (注意是私钥文本本身，不是文件路径)
type PrivateKey string

func (Password) credential()   {}
func (PrivateKey) credential() {}

// Target 描述一个要操作的远程节点
// 构造完成后不再修改；进入连接流程之前已经通过了完整校验
type Target struct {
	Hostname  string
	User      string
	Port      int // 0 表示使用传输协议的默认端口
	Cred      Credential
	Transport string

	// SSH 专属选项
	HostKeyCheck bool // 是否校验远程主机指纹 (默认开启)

	// WinRM 专属选项
	SSL       bool // 走 HTTPS 端点 (默认开启)
	SSLVerify bool // 是否校验服务端证书

	// 连接超时；0 表示用服务端默认值
	ConnectTimeout time.Duration
}

// Addr 返回 host:port 形式的连接地址
// defaultPort 由传输协议提供 (ssh 22, winrm 5985/5986)
func (t Target) Addr(defaultPort int) string {
	port := t.Port
	if port == 0 {
		port = defaultPort
	}
	return net.JoinHostPort(t.Hostname, strconv.Itoa(port))
}

// FileURI 任务文件的取回地址，Path 相对于文件服务器，Params 作为查询参数附加
type FileURI struct {
	Path   string            `json:"path"`
	Params map[string]string `json:"params,omitempty"`
}

// FileRef 描述任务携带的一个文件：文件名、内容校验和、取回方式
type FileRef struct {
	Filename string  `json:"filename"`
	SHA256   string  `json:"sha256"`
	URI      FileURI `json:"uri"`
}

// WorkItem 是要在远端执行的工作单元的标签联合:
// 任务(Task)、字面命令(Command)、脚本(Script)、文件上传(Upload)、连通性检查(ConnCheck)
type WorkItem interface {
	workItem()
}

// Command 直接执行的命令字符串
type Command string

// Script 脚本引用：取回后上传执行
type Script struct {
	File FileRef
}

// Task 任务描述符：元数据 + 一组实现文件，首个文件是入口
type Task struct {
	Name     string
	Metadata map[string]any
	Files    []FileRef
}

// Upload 把一个文件放到目标节点的指定路径
type Upload struct {
	File        FileRef
	Destination string
}

// ConnCheck 只做连接建立，不投递任何工作，作为轻量可达性探测
type ConnCheck struct{}

func (Command) workItem()   {}
func (Script) workItem()    {}
func (Task) workItem()      {}
func (Upload) workItem()    {}
func (ConnCheck) workItem() {}

// ExecutionRequest 一次通过了校验的执行请求
type ExecutionRequest struct {
	Targets []Target
	// Single 表示请求体用的是单数的 target 字段
	// 响应时需要解包成单个 Outcome 而不是 ResultSet
	Single     bool
	Work       WorkItem
	Parameters map[string]any
}

// Status 单个节点或整个请求的执行结果分类
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Outcome 在一个 Target 上执行 WorkItem 的结果
type Outcome struct {
	Target string         `json:"target"`
	Status Status         `json:"status"`
	Value  map[string]any `json:"value"`
}

// ErrorValue 构造 failure Outcome 的 value 载荷
// kind 用于区分错误类别，msg 面向人类阅读
func ErrorValue(kind, msg string) map[string]any {
	return map[string]any{
		"_error": map[string]any{
			"kind": kind,
			"msg":  msg,
		},
	}
}

// ErrorKind 取出 failure value 里的错误类别；不是错误结构时返回空串
func ErrorKind(value map[string]any) string {
	inner, ok := value["_error"].(map[string]any)
	if !ok {
		return ""
	}
	kind, _ := inner["kind"].(string)
	return kind
}

// ResultSet 多目标请求的聚合结果
// Outcomes 的顺序与请求中目标的顺序一一对应
type ResultSet struct {
	Status   Status    `json:"status"`
	Outcomes []Outcome `json:"result_set"`
}

// AggregateStatus 聚合规则：全部 success 才算 success
func AggregateStatus(outcomes []Outcome) Status {
	for _, o := range outcomes {
		if o.Status != StatusSuccess {
			return StatusFailure
		}
	}
	return StatusSuccess
}

// NewResultSet 由逐目标结果构造聚合结果
func NewResultSet(outcomes []Outcome) ResultSet {
	return ResultSet{
		Status:   AggregateStatus(outcomes),
		Outcomes: outcomes,
	}
}

func (t Target) String() string {
	if t.User == "" {
		return t.Hostname
	}
	return fmt.Sprintf("%s@%s", t.User, t.Hostname)
}
