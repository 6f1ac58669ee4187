package dispatcher

import (
	"regexp"
	"strings"

	"example.com/BoltServer/pkg/executor"
	"example.com/BoltServer/pkg/models"
)

// 内部故障出境时统一换成这句话，细节只进日志
const scrubbedMessage = "an unexpected error occurred while processing the request"

// 粗看像 Go 运行时痕迹的文本：goroutine 转储、源码位置、runtime 报错
var tracePattern = regexp.MustCompile(`goroutine \d+|\.go:\d+|runtime error`)

// Scrub 剥掉 failure Outcome 里的内部诊断细节。
// 对每个 Outcome 无条件执行，不是可选项也不允许按路由关掉：
// 内部类别的错误、或消息里带着堆栈痕迹的，整个 value 换成中性结构。
// 工作单元自己报告的错误 (任务/命令的输出) 是调用方关心的数据，原样保留。
func Scrub(o models.Outcome) models.Outcome {
	if o.Status != models.StatusFailure {
		return o
	}
	kind := models.ErrorKind(o.Value)
	if kind == "" {
		return o
	}

	if kind == executor.KindInternalError {
		o.Value = models.ErrorValue(executor.KindInternalError, scrubbedMessage)
		return o
	}

	inner, _ := o.Value["_error"].(map[string]any)
	msg, _ := inner["msg"].(string)
	if tracePattern.MatchString(msg) || strings.Contains(msg, "\n\t") {
		o.Value = models.ErrorValue(kind, scrubbedMessage)
	}
	return o
}
