package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestSize     *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// 密钥指标
	KeysIssued  *prometheus.CounterVec
	KeysRevoked prometheus.Counter
	KeysClaimed prometheus.Counter
	KeysExpired prometheus.Counter
	KeysActive  prometheus.Gauge

	// 激活指标
	ActivationsTotal   prometheus.Counter
	ActivationsDenied  *prometheus.CounterVec
	DeactivationsTotal prometheus.Counter
	DevicesActive      prometheus.Gauge
	HeartbeatsTotal    *prometheus.CounterVec

	// 经销商指标
	ResellerKeysIssued  *prometheus.CounterVec
	ResellerQuotaDenied prometheus.Counter

	// 用户指标
	UsersRegistered prometheus.Counter
	UsersActive     prometheus.Gauge

	// 系统指标
	SystemUptime        prometheus.Gauge
	DatabaseConnections prometheus.Gauge
	RedisConnections    prometheus.Gauge
	MemoryUsage         prometheus.Gauge

	// 错误指标
	ErrorsTotal *prometheus.CounterVec
	PanicsTotal prometheus.Counter

	// 限流指标
	RateLimitBlocks *prometheus.CounterVec
}

// NewMetrics 创建监控指标
func NewMetrics() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "licensegate_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "licensegate_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		HTTPRequestSize: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "licensegate_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "endpoint"},
		),

		HTTPResponseSize: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "licensegate_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "endpoint"},
		),

		KeysIssued: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "licensegate_keys_issued_total",
				Help: "Total number of license keys issued",
			},
			[]string{"source"}, // admin / reseller
		),

		KeysRevoked: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "licensegate_keys_revoked_total",
				Help: "Total number of license keys revoked",
			},
		),

		KeysClaimed: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "licensegate_keys_claimed_total",
				Help: "Total number of license keys claimed by users",
			},
		),

		KeysExpired: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "licensegate_keys_expired_total",
				Help: "Total number of license keys swept as expired",
			},
		),

		KeysActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "licensegate_keys_active",
				Help: "Number of currently active license keys",
			},
		),

		ActivationsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "licensegate_activations_total",
				Help: "Total number of successful device activations",
			},
		),

		ActivationsDenied: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "licensegate_activations_denied_total",
				Help: "Total number of denied activation attempts",
			},
			[]string{"reason"}, // device_limit / expired / revoked / not_found / invalid_format
		),

		DeactivationsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "licensegate_deactivations_total",
				Help: "Total number of device deactivations",
			},
		),

		DevicesActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "licensegate_devices_active",
				Help: "Number of currently active device activations",
			},
		),

		HeartbeatsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "licensegate_heartbeats_total",
				Help: "Total number of heartbeat checks",
			},
			[]string{"result"}, // ok / expired / revoked / not_activated
		),

		ResellerKeysIssued: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "licensegate_reseller_keys_issued_total",
				Help: "Total number of keys issued by resellers",
			},
			[]string{"reseller_id"},
		),

		ResellerQuotaDenied: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "licensegate_reseller_quota_denied_total",
				Help: "Total number of reseller issuances denied by quota",
			},
		),

		UsersRegistered: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "licensegate_users_registered_total",
				Help: "Total number of users registered",
			},
		),

		UsersActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "licensegate_users_active",
				Help: "Number of active users",
			},
		),

		SystemUptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "licensegate_system_uptime_seconds",
				Help: "System uptime in seconds",
			},
		),

		DatabaseConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "licensegate_database_connections",
				Help: "Number of database connections",
			},
		),

		RedisConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "licensegate_redis_connections",
				Help: "Number of Redis connections",
			},
		),

		MemoryUsage: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "licensegate_memory_usage_bytes",
				Help: "Memory usage in bytes",
			},
		),

		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "licensegate_errors_total",
				Help: "Total number of errors",
			},
			[]string{"type", "component"},
		),

		PanicsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "licensegate_panics_total",
				Help: "Total number of panics",
			},
		),

		RateLimitBlocks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "licensegate_rate_limit_blocks_total",
				Help: "Total number of rate limit blocks",
			},
			[]string{"scope"},
		),
	}
}

// RecordHTTPRequest 记录 HTTP 请求指标
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration, requestSize, responseSize int64) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	m.HTTPRequestSize.WithLabelValues(method, endpoint).Observe(float64(requestSize))
	m.HTTPResponseSize.WithLabelValues(method, endpoint).Observe(float64(responseSize))
}

// RecordKeyIssued 记录密钥签发，source 为 admin 或 reseller
func (m *Metrics) RecordKeyIssued(source string) {
	m.KeysIssued.WithLabelValues(source).Inc()
}

// RecordKeyRevoked 记录密钥吊销
func (m *Metrics) RecordKeyRevoked() {
	m.KeysRevoked.Inc()
}

// RecordKeyClaimed 记录密钥认领
func (m *Metrics) RecordKeyClaimed() {
	m.KeysClaimed.Inc()
}

// RecordKeysExpired 记录过期扫描刷新的密钥数
func (m *Metrics) RecordKeysExpired(count int) {
	m.KeysExpired.Add(float64(count))
}

// RecordActivation 记录设备激活成功
func (m *Metrics) RecordActivation() {
	m.ActivationsTotal.Inc()
}

// RecordActivationDenied 记录激活被拒绝
func (m *Metrics) RecordActivationDenied(reason string) {
	m.ActivationsDenied.WithLabelValues(reason).Inc()
}

// RecordDeactivation 记录设备解绑
func (m *Metrics) RecordDeactivation() {
	m.DeactivationsTotal.Inc()
}

// RecordHeartbeat 记录心跳结果
func (m *Metrics) RecordHeartbeat(result string) {
	m.HeartbeatsTotal.WithLabelValues(result).Inc()
}

// RecordResellerKeyIssued 记录经销商签发
func (m *Metrics) RecordResellerKeyIssued(resellerID string) {
	m.ResellerKeysIssued.WithLabelValues(resellerID).Inc()
}

// RecordResellerQuotaDenied 记录配额拒绝
func (m *Metrics) RecordResellerQuotaDenied() {
	m.ResellerQuotaDenied.Inc()
}

// RecordUserRegistered 记录用户注册
func (m *Metrics) RecordUserRegistered() {
	m.UsersRegistered.Inc()
}

// RecordError 记录错误
func (m *Metrics) RecordError(errorType, component string) {
	m.ErrorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordPanic 记录 panic
func (m *Metrics) RecordPanic() {
	m.PanicsTotal.Inc()
}

// RecordRateLimitBlock 记录限流阻止
func (m *Metrics) RecordRateLimitBlock(scope string) {
	m.RateLimitBlocks.WithLabelValues(scope).Inc()
}

// UpdateKeysActive 更新活跃密钥数
func (m *Metrics) UpdateKeysActive(count int) {
	m.KeysActive.Set(float64(count))
}

// UpdateDevicesActive 更新活跃设备数
func (m *Metrics) UpdateDevicesActive(count int) {
	m.DevicesActive.Set(float64(count))
}

// UpdateUsersActive 更新活跃用户数
func (m *Metrics) UpdateUsersActive(count int) {
	m.UsersActive.Set(float64(count))
}

// UpdateSystemUptime 更新系统运行时间
func (m *Metrics) UpdateSystemUptime(uptime time.Duration) {
	m.SystemUptime.Set(uptime.Seconds())
}

// UpdateDatabaseConnections 更新数据库连接数
func (m *Metrics) UpdateDatabaseConnections(count int) {
	m.DatabaseConnections.Set(float64(count))
}

// UpdateRedisConnections 更新 Redis 连接数
func (m *Metrics) UpdateRedisConnections(count int) {
	m.RedisConnections.Set(float64(count))
}

// UpdateMemoryUsage 更新内存使用量
func (m *Metrics) UpdateMemoryUsage(bytes int64) {
	m.MemoryUsage.Set(float64(bytes))
}

// HTTPHandler 返回 Prometheus HTTP 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.Handler()
}
