// Package probe 实现 check_node_connections 动作：
// 只做连接建立这一步，不投递任何工作单元，作为轻量的可达性探测。
package probe

import (
	"context"
	"time"

	ping "github.com/prometheus-community/pro-bing"

	"example.com/BoltServer/pkg/models"
	"example.com/BoltServer/pkg/transport"
)

// Prober 连通性探测器
type Prober struct {
	// ICMP 开启时先打一发 ICMP 作为参考信息。
	// ICMP 不通不算失败 (很多网络丢 ICMP)，传输层连接成功与否才是结论。
	ICMP bool
}

// Check 对单个目标做连接检查
// 两次对同一批可达目标执行应当得到同样的分类结果
func (p *Prober) Check(ctx context.Context, tr transport.Transport, target models.Target) models.Outcome {
	value := map[string]any{}

	if p.ICMP {
		value["icmp"] = p.icmpProbe(ctx, target.Hostname)
	}

	sess, err := tr.Connect(ctx, target)
	if err != nil {
		failure := models.ErrorValue("boltserver/connect-error", err.Error())
		for k, v := range value {
			failure[k] = v
		}
		return models.Outcome{
			Target: target.Hostname,
			Status: models.StatusFailure,
			Value:  failure,
		}
	}
	sess.Close()

	value["connected"] = true
	return models.Outcome{
		Target: target.Hostname,
		Status: models.StatusSuccess,
		Value:  value,
	}
}

// icmpProbe 单发非特权 ICMP，结果只作为附加诊断信息
func (p *Prober) icmpProbe(ctx context.Context, host string) map[string]any {
	pinger, err := ping.NewPinger(host)
	if err != nil {
		return map[string]any{"reachable": false, "error": err.Error()}
	}
	pinger.SetPrivileged(false)
	pinger.Count = 1
	pinger.Timeout = 2 * time.Second

	if err := pinger.RunWithContext(ctx); err != nil {
		return map[string]any{"reachable": false, "error": err.Error()}
	}
	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		return map[string]any{"reachable": false}
	}
	return map[string]any{
		"reachable": true,
		"rtt_ms":    float64(stats.AvgRtt) / float64(time.Millisecond),
	}
}
