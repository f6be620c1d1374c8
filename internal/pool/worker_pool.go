package pool

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// WorkerPool 固定大小的协程池
//
// 承载事件投递这类不在请求路径上的后台任务，限制并发协程
// 数量。任务 panic 只记日志，不影响其他任务执行。
type WorkerPool struct {
	maxWorkers int
	taskQueue  chan func()
	log        *zap.Logger
	wg         sync.WaitGroup
}

// NewWorkerPool 创建协程池，maxWorkers 为协程数，queueSize 为队列容量。
func NewWorkerPool(maxWorkers, queueSize int, log *zap.Logger) *WorkerPool {
	return &WorkerPool{
		maxWorkers: maxWorkers,
		taskQueue:  make(chan func(), queueSize),
		log:        log,
	}
}

// Start 启动全部工作协程，ctx 取消时退出。
func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.maxWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

// Submit 提交任务，队列满时阻塞。
func (p *WorkerPool) Submit(task func()) {
	p.taskQueue <- task
}

// TrySubmit 尝试提交任务，队列满时立即返回 false。
//
// 请求路径上只允许用这个方法：宁可丢任务也不阻塞请求。
func (p *WorkerPool) TrySubmit(task func()) bool {
	select {
	case p.taskQueue <- task:
		return true
	default:
		return false
	}
}

// Stop 关闭队列并等待存量任务执行完毕。
func (p *WorkerPool) Stop() {
	close(p.taskQueue)
	p.wg.Wait()
}

func (p *WorkerPool) worker(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-p.taskQueue:
			if !ok {
				return
			}
			p.run(task)
		}
	}
}

func (p *WorkerPool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("worker task panicked", zap.Any("panic", r))
		}
	}()
	task()
}
