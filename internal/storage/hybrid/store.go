package hybrid

import (
	"fmt"
	"time"

	"licensegate/backend/internal/domain"
	"licensegate/backend/internal/storage/postgres"
	"licensegate/backend/internal/storage/redis"
)

// Store 混合存储实现，结合 PostgreSQL 和 Redis
//
// 数据库是唯一事实来源，Redis 只承担热点读缓存、限流、会话
// 和事件发布。缓存写失败不阻断主流程。
type Store struct {
	postgres *postgres.Store
	redis    *redis.Cache
}

// 密钥缓存时长。密钥状态变更路径都会主动失效缓存，
// TTL 只兜底进程外的数据修改。
const licenseKeyCacheTTL = 10 * time.Minute

// NewStore 创建混合存储实例 (PostgreSQL)
func NewStore(postgresDSN, redisAddr, redisPassword string, redisDB int) (*Store, error) {
	return NewStoreWithType("postgres", postgresDSN, redisAddr, redisPassword, redisDB)
}

// NewStoreWithType 创建混合存储实例（指定数据库类型）
func NewStoreWithType(dbType, dsn, redisAddr, redisPassword string, redisDB int) (*Store, error) {
	var dbStore *postgres.Store
	var err error

	// 根据数据库类型创建存储
	switch dbType {
	case "mysql":
		dbStore, err = postgres.NewMySQLStore(dsn)
	case "postgres", "postgresql":
		dbStore, err = postgres.NewStore(dsn)
	default:
		return nil, fmt.Errorf("unsupported database type: %s (supported: mysql, postgres)", dbType)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// 初始化 Redis
	redisCache, err := redis.NewCache(redisAddr, redisPassword, redisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	return &Store{
		postgres: dbStore,
		redis:    redisCache,
	}, nil
}

// ========== LicenseKey Repository ==========

// SaveLicenseKey 保存授权密钥
func (s *Store) SaveLicenseKey(key *domain.LicenseKey) error {
	if err := s.postgres.SaveLicenseKey(key); err != nil {
		return err
	}

	// 缓存失败不影响主流程
	s.redis.CacheLicenseKey(key, licenseKeyCacheTTL)
	return nil
}

// GetLicenseKeyByID 根据 ID 获取授权密钥
func (s *Store) GetLicenseKeyByID(id string) (*domain.LicenseKey, error) {
	// ID 查询不走缓存（缓存以密钥字符串为键）
	return s.postgres.GetLicenseKeyByID(id)
}

// GetLicenseKeyByKey 根据密钥字符串获取授权密钥
//
// 校验/心跳是最热的读路径，优先命中 Redis。
func (s *Store) GetLicenseKeyByKey(key string) (*domain.LicenseKey, error) {
	if cached, err := s.redis.GetCachedLicenseKey(key); err == nil {
		return cached, nil
	}

	record, err := s.postgres.GetLicenseKeyByKey(key)
	if err != nil {
		return nil, err
	}

	s.redis.CacheLicenseKey(record, licenseKeyCacheTTL)
	return record, nil
}

// KeyExists 判断密钥字符串是否已存在
func (s *Store) KeyExists(key string) (bool, error) {
	return s.postgres.KeyExists(key)
}

// ListLicenseKeysByUserID 返回指定用户的全部密钥
func (s *Store) ListLicenseKeysByUserID(userID string) ([]domain.LicenseKey, error) {
	// 列表查询不缓存
	return s.postgres.ListLicenseKeysByUserID(userID)
}

// ListLicenseKeysByResellerID 返回指定经销商签发的全部密钥
func (s *Store) ListLicenseKeysByResellerID(resellerID string) ([]domain.LicenseKey, error) {
	return s.postgres.ListLicenseKeysByResellerID(resellerID)
}

// ListLicenseKeys 分页返回密钥列表
func (s *Store) ListLicenseKeys(page, pageSize int, status *domain.KeyStatus) ([]domain.LicenseKey, int, error) {
	return s.postgres.ListLicenseKeys(page, pageSize, status)
}

// UpdateLicenseKeyStatus 更新密钥的缓存状态
func (s *Store) UpdateLicenseKeyStatus(id string, status domain.KeyStatus, revokedAt *time.Time) error {
	if err := s.postgres.UpdateLicenseKeyStatus(id, status, revokedAt); err != nil {
		return err
	}

	// 状态变更必须立即失效缓存，吊销不能等 TTL
	if key, err := s.postgres.GetLicenseKeyByID(id); err == nil {
		s.redis.DeleteCachedLicenseKey(key.Key)
	}
	return nil
}

// ClaimLicenseKey 原子认领密钥
func (s *Store) ClaimLicenseKey(key, userID string) error {
	if err := s.postgres.ClaimLicenseKey(key, userID); err != nil {
		return err
	}

	s.redis.DeleteCachedLicenseKey(key)
	return nil
}

// MarkExpiredKeys 刷新过期密钥的缓存状态
func (s *Store) MarkExpiredKeys(now time.Time) (int, error) {
	// 过期判定以 expires_at 为准，缓存中的旧状态由惰性派生兜底
	return s.postgres.MarkExpiredKeys(now)
}

// ========== Activation Repository ==========

// CreateActivationIfBelowLimit 在配额范围内创建激活记录
func (s *Store) CreateActivationIfBelowLimit(activation *domain.Activation, maxDevices int) error {
	// 配额检查必须走数据库事务，不经过缓存
	return s.postgres.CreateActivationIfBelowLimit(activation, maxDevices)
}

// GetActiveActivation 获取指定 (key, hwid) 的 ACTIVE 激活记录
func (s *Store) GetActiveActivation(licenseKeyID, hwid string) (*domain.Activation, error) {
	return s.postgres.GetActiveActivation(licenseKeyID, hwid)
}

// CountActiveActivations 统计密钥当前占用的槽位数
func (s *Store) CountActiveActivations(licenseKeyID string) (int, error) {
	return s.postgres.CountActiveActivations(licenseKeyID)
}

// TouchActivation 刷新激活记录的心跳时间
func (s *Store) TouchActivation(id, ipAddress string, seenAt time.Time) error {
	return s.postgres.TouchActivation(id, ipAddress, seenAt)
}

// DeactivateActivation 软下线激活记录
func (s *Store) DeactivateActivation(licenseKeyID, hwid string, at time.Time) error {
	return s.postgres.DeactivateActivation(licenseKeyID, hwid, at)
}

// ListActivations 返回密钥的全部激活记录
func (s *Store) ListActivations(licenseKeyID string) ([]domain.Activation, error) {
	return s.postgres.ListActivations(licenseKeyID)
}

// ========== Plan Repository ==========

// SavePlan 保存套餐
func (s *Store) SavePlan(plan *domain.Plan) error {
	return s.postgres.SavePlan(plan)
}

// GetPlan 根据 ID 获取套餐
func (s *Store) GetPlan(id string) (*domain.Plan, error) {
	// 套餐由服务层的本地缓存承担热点读，这里直读数据库
	return s.postgres.GetPlan(id)
}

// ListPlans 返回全部套餐
func (s *Store) ListPlans() ([]domain.Plan, error) {
	return s.postgres.ListPlans()
}

// ========== Reseller Repository ==========

// CreateReseller 创建经销商
func (s *Store) CreateReseller(reseller *domain.Reseller) error {
	return s.postgres.CreateReseller(reseller)
}

// GetReseller 根据 ID 获取经销商
func (s *Store) GetReseller(id string) (*domain.Reseller, error) {
	return s.postgres.GetReseller(id)
}

// GetResellerByAPIKeyHash 根据 API 密钥哈希获取经销商
//
// 经销商 API 的每个请求都要认证，哈希到 ID 的映射走缓存。
func (s *Store) GetResellerByAPIKeyHash(hash string) (*domain.Reseller, error) {
	if resellerID, err := s.redis.GetCachedResellerByHash(hash); err == nil {
		return s.postgres.GetReseller(resellerID)
	}

	reseller, err := s.postgres.GetResellerByAPIKeyHash(hash)
	if err != nil {
		return nil, err
	}

	s.redis.CacheResellerByHash(hash, reseller.ID, time.Hour)
	return reseller, nil
}

// ListResellers 返回全部经销商
func (s *Store) ListResellers() ([]domain.Reseller, error) {
	return s.postgres.ListResellers()
}

// UpdateReseller 更新经销商信息
func (s *Store) UpdateReseller(reseller *domain.Reseller) error {
	if err := s.postgres.UpdateReseller(reseller); err != nil {
		return err
	}

	// 停用/换钥后立即失效认证缓存
	s.redis.DeleteCachedReseller(reseller.APIKeyHash)
	return nil
}

// IssueLicenseKey 经销商签发密钥
func (s *Store) IssueLicenseKey(resellerID string, key *domain.LicenseKey) error {
	// 配额消耗必须走数据库事务
	return s.postgres.IssueLicenseKey(resellerID, key)
}

// CountKeysByReseller 统计经销商实际签发的密钥数量
func (s *Store) CountKeysByReseller(resellerID string) (int, error) {
	return s.postgres.CountKeysByReseller(resellerID)
}

// ========== User Repository ==========

// CreateUser 创建新用户
func (s *Store) CreateUser(user *domain.User) error {
	return s.postgres.CreateUser(user)
}

// GetUserByID 根据ID获取用户
// 注意：不使用Redis缓存，因为PasswordHash字段有json:"-"标签，缓存后会丢失
func (s *Store) GetUserByID(id string) (*domain.User, error) {
	return s.postgres.GetUserByID(id)
}

// GetUserByEmail 根据邮箱获取用户
func (s *Store) GetUserByEmail(email string) (*domain.User, error) {
	return s.postgres.GetUserByEmail(email)
}

// GetUserByUsername 根据用户名获取用户
func (s *Store) GetUserByUsername(username string) (*domain.User, error) {
	return s.postgres.GetUserByUsername(username)
}

// UpdateUser 更新用户信息
func (s *Store) UpdateUser(user *domain.User) error {
	return s.postgres.UpdateUser(user)
}

// UpdateLastLogin 更新用户最后登录时间
func (s *Store) UpdateLastLogin(userID string) error {
	return s.postgres.UpdateLastLogin(userID)
}

// ========== Admin Repository ==========

// GetSystemStatistics 获取系统统计信息
func (s *Store) GetSystemStatistics(now time.Time) (*domain.SystemStatistics, error) {
	// 先尝试从 Redis 获取
	if stats, err := s.redis.GetCachedStatistics(); err == nil {
		return stats, nil
	}

	stats, err := s.postgres.GetSystemStatistics(now)
	if err != nil {
		return nil, err
	}

	// 缓存到 Redis（5分钟过期）
	s.redis.CacheStatistics(stats, 5*time.Minute)
	return stats, nil
}

// ========== JWT 黑名单 ==========

// AddToBlacklist 将 JWT 添加到黑名单
func (s *Store) AddToBlacklist(jti string, ttl time.Duration) error {
	return s.redis.AddToBlacklist(jti, ttl)
}

// IsBlacklisted 检查 JWT 是否在黑名单中
func (s *Store) IsBlacklisted(jti string) (bool, error) {
	return s.redis.IsBlacklisted(jti)
}

// ========== 限流 ==========

// IncrementRateLimit 增加限流计数
func (s *Store) IncrementRateLimit(key string, window time.Duration) (int64, error) {
	return s.redis.IncrementRateLimit(key, window)
}

// GetRateLimit 获取限流计数
func (s *Store) GetRateLimit(key string) (int64, error) {
	return s.redis.GetRateLimit(key)
}

// ========== 会话管理 ==========

// CacheSession 缓存用户会话
func (s *Store) CacheSession(sessionID string, userID string, ttl time.Duration) error {
	return s.redis.CacheSession(sessionID, userID, ttl)
}

// GetCachedSession 获取缓存的会话
func (s *Store) GetCachedSession(sessionID string) (string, error) {
	return s.redis.GetCachedSession(sessionID)
}

// DeleteCachedSession 删除缓存的会话
func (s *Store) DeleteCachedSession(sessionID string) error {
	return s.redis.DeleteCachedSession(sessionID)
}

// ========== 事件发布 ==========

// PublishLicenseEvent 发布授权事件通知
func (s *Store) PublishLicenseEvent(event *domain.LicenseEvent) error {
	return s.redis.PublishLicenseEvent(event)
}

// ========== 工具方法 ==========

// Close 关闭存储连接
func (s *Store) Close() error {
	if err := s.postgres.Close(); err != nil {
		return err
	}
	return s.redis.Close()
}

// Health 健康检查
func (s *Store) Health() error {
	if err := s.postgres.Health(); err != nil {
		return err
	}
	return s.redis.Ping()
}
