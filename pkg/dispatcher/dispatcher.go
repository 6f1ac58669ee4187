// Package dispatcher 把一个请求的目标集合扇出给执行器并收拢结果。
// 并发模型：每个目标一个 worker，写入各自预留的结果槽位，互不共享
// 可变状态；Dispatch 是汇合点，等所有槽位就绪后做聚合。
package dispatcher

import (
	"context"
	"fmt"

	"example.com/BoltServer/pkg/executor"
	"example.com/BoltServer/pkg/models"
	pkgutils "example.com/BoltServer/pkg/utils"
	"example.com/BoltServer/utils"
)

// Dispatcher 扇出/汇合调度器
type Dispatcher struct {
	exec *executor.Executor
	// 同时在途的传输会话上限；目标数由调用方决定，可能很大
	concurrency uint
}

// New 构造调度器
func New(exec *executor.Executor, concurrency uint) *Dispatcher {
	return &Dispatcher{exec: exec, concurrency: concurrency}
}

// Dispatch 并发处理全部目标并返回聚合结果。
// 保证:
//   - 返回的 Outcome 顺序与请求目标顺序一致，与完成先后无关
//   - 一个目标的失败 (包括 panic) 不影响其他目标
//   - 所有 Outcome 都过一遍 Scrub，这是出境前的强制环节
func (d *Dispatcher) Dispatch(ctx context.Context, req models.ExecutionRequest) models.ResultSet {
	outcomes := make([]models.Outcome, len(req.Targets))

	pool := pkgutils.NewWorkerPool(d.concurrency, pkgutils.WithPanicHandler(func(r any) {
		// 槽位内的 recover 已经兜住了执行 panic，触发这里说明连兜底都炸了
		utils.Logger.Error("worker panic escaped slot recovery", "panic", fmt.Sprint(r))
	}))

	for i, target := range req.Targets {
		pool.Execute(func() {
			defer func() {
				if r := recover(); r != nil {
					utils.Logger.Error("execution panicked",
						"target", target.Hostname, "panic", fmt.Sprint(r))
					outcomes[i] = models.Outcome{
						Target: target.Hostname,
						Status: models.StatusFailure,
						Value:  models.ErrorValue(executor.KindInternalError, fmt.Sprint(r)),
					}
				}
			}()
			outcomes[i] = d.exec.Run(ctx, target, req.Work, req.Parameters)
		})
	}
	pool.Wait()

	for i := range outcomes {
		outcomes[i] = Scrub(outcomes[i])
	}
	return models.NewResultSet(outcomes)
}
