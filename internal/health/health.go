// Package health 提供 Kubernetes 风格的存活/就绪探针。
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"

	"licensegate/backend/internal/storage"
	"licensegate/backend/internal/storage/postgres"
)

// Checker 探针处理器
//
// liveness 只要求进程活着；readiness 要求数据库和缓存可用，
// 不就绪的实例会被负载均衡摘除。
type Checker struct {
	health healthcheck.Handler
	store  storage.Store
	logger *zap.Logger
}

// NewChecker 创建探针处理器
func NewChecker(store storage.Store, logger *zap.Logger) *Checker {
	c := &Checker{
		health: healthcheck.NewHandler(),
		store:  store,
		logger: logger,
	}

	c.addChecks()

	return c
}

func (c *Checker) addChecks() {
	// 协程数失控视为进程异常
	c.health.AddLivenessCheck("goroutine-count", healthcheck.GoroutineCountCheck(1000))

	c.health.AddReadinessCheck("storage", func() error {
		return c.store.Health()
	})

	c.health.AddReadinessCheck("cache", func() error {
		_, err := c.store.GetRateLimit("health_check")
		return err
	})
}

// AddDatabasePool 追加 pgx 连接池的就绪检查。
func (c *Checker) AddDatabasePool(client *postgres.Client) {
	c.health.AddReadinessCheck("database-pool", PoolHealthCheck(client))
}

// Handler 返回探针的 HTTP 处理器（/live 和 /ready）。
func (c *Checker) Handler() http.Handler {
	return c.health
}

// LiveEndpoint 存活探针端点
func (c *Checker) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	c.health.LiveEndpoint(w, r)
}

// ReadyEndpoint 就绪探针端点
func (c *Checker) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	c.health.ReadyEndpoint(w, r)
}

// PoolHealthCheck pgx 连接池健康检查
func PoolHealthCheck(client *postgres.Client) healthcheck.Check {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		return client.Ping(ctx)
	}
}
