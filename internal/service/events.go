package service

import (
	"go.uber.org/zap"

	"licensegate/backend/internal/domain"
	"licensegate/backend/internal/pool"
)

// EventSink 授权事件的投递目标（WebSocket 广播、Redis 发布等）。
type EventSink interface {
	PublishLicenseEvent(event *domain.LicenseEvent) error
}

// EventPublisher 供业务服务发布授权生命周期事件。
type EventPublisher interface {
	Publish(event *domain.LicenseEvent)
}

// Events 异步事件分发器。
//
// 事件投递不在请求路径上执行：任务提交到协程池后立即返回，
// 队列满时丢弃事件并记录日志，绝不阻塞激活/校验请求。
type Events struct {
	pool  *pool.WorkerPool
	sinks []EventSink
	log   *zap.Logger
}

// NewEvents 创建事件分发器。
func NewEvents(workerPool *pool.WorkerPool, log *zap.Logger, sinks ...EventSink) *Events {
	return &Events{
		pool:  workerPool,
		sinks: sinks,
		log:   log,
	}
}

// Publish 异步发布事件到所有投递目标。
func (e *Events) Publish(event *domain.LicenseEvent) {
	if len(e.sinks) == 0 {
		return
	}

	ok := e.pool.TrySubmit(func() {
		for _, sink := range e.sinks {
			if err := sink.PublishLicenseEvent(event); err != nil {
				e.log.Warn("failed to publish license event",
					zap.String("type", string(event.Type)),
					zap.String("key_id", event.KeyID),
					zap.Error(err),
				)
			}
		}
	})
	if !ok {
		e.log.Warn("event queue full, dropping license event",
			zap.String("type", string(event.Type)),
			zap.String("key_id", event.KeyID),
		)
	}
}

// nopEvents 空实现，未配置事件分发时使用。
type nopEvents struct{}

func (nopEvents) Publish(*domain.LicenseEvent) {}

// NopEvents 返回不做任何投递的事件发布器。
func NopEvents() EventPublisher {
	return nopEvents{}
}
