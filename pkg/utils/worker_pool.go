package utils

import "sync"

// WorkerPool 限制并发任务数量
// 调度器用它约束同时在途的传输会话数，避免几千个目标一起拨号
type WorkerPool interface {
	Execute(task func())
	Wait()
}

type defaultWorkerPool struct {
	limit        chan struct{}
	wg           sync.WaitGroup
	panicHandler func(any)
}

type Option func(*defaultWorkerPool)

// WithPanicHandler 设置兜底的 panic 处理
// 正常情况下任务自己应该 recover；这里只是最后一道防线
func WithPanicHandler(handler func(any)) Option {
	return func(wp *defaultWorkerPool) {
		wp.panicHandler = handler
	}
}

// NewWorkerPool 创建并发上限为 maxConcurrent 的工作池
func NewWorkerPool(maxConcurrent uint, options ...Option) WorkerPool {
	if maxConcurrent == 0 {
		maxConcurrent = 100
	}
	wp := &defaultWorkerPool{
		limit: make(chan struct{}, maxConcurrent),
	}
	for _, option := range options {
		option(wp)
	}
	return wp
}

// Execute 提交一个任务；超过并发上限时阻塞等待许可
func (wp *defaultWorkerPool) Execute(task func()) {
	wp.wg.Go(func() {
		wp.limit <- struct{}{}
		defer func() { <-wp.limit }()
		if wp.panicHandler != nil {
			defer func() {
				if r := recover(); r != nil {
					wp.panicHandler(r)
				}
			}()
		}
		task()
	})
}

// Wait 等待所有已提交任务完成
func (wp *defaultWorkerPool) Wait() {
	wp.wg.Wait()
}
