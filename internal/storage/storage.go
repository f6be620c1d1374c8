package storage

import (
	"errors"
	"time"

	"licensegate/backend/internal/domain"
)

var (
	// ErrKeyNotFound 授权密钥未找到错误
	ErrKeyNotFound = errors.New("license key not found")
	// ErrKeyExists 密钥字符串冲突错误（生成碰撞时重试）
	ErrKeyExists = errors.New("license key already exists")
	// ErrKeyAlreadyClaimed 密钥已被其他用户认领错误
	ErrKeyAlreadyClaimed = errors.New("license key already claimed")
	// ErrActivationNotFound 激活记录未找到错误
	ErrActivationNotFound = errors.New("activation not found")
	// ErrDeviceLimitReached 设备配额已满错误
	ErrDeviceLimitReached = errors.New("device limit reached")
	// ErrPlanNotFound 套餐未找到错误
	ErrPlanNotFound = errors.New("plan not found")
	// ErrResellerNotFound 经销商未找到错误
	ErrResellerNotFound = errors.New("reseller not found")
	// ErrQuotaExceeded 经销商配额耗尽错误
	ErrQuotaExceeded = errors.New("reseller quota exceeded")
	// ErrUserNotFound 用户未找到错误
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailExists 邮箱已存在错误
	ErrEmailExists = errors.New("email already exists")
)

// LicenseKeyRepository 定义授权密钥数据存取操作。
type LicenseKeyRepository interface {
	SaveLicenseKey(key *domain.LicenseKey) error
	GetLicenseKeyByID(id string) (*domain.LicenseKey, error)
	GetLicenseKeyByKey(key string) (*domain.LicenseKey, error)
	KeyExists(key string) (bool, error)
	ListLicenseKeysByUserID(userID string) ([]domain.LicenseKey, error)     // 按创建时间倒序
	ListLicenseKeysByResellerID(resellerID string) ([]domain.LicenseKey, error)
	ListLicenseKeys(page, pageSize int, status *domain.KeyStatus) ([]domain.LicenseKey, int, error)
	UpdateLicenseKeyStatus(id string, status domain.KeyStatus, revokedAt *time.Time) error
	ClaimLicenseKey(key, userID string) error          // 原子认领：仅当 ownerUserId 为空时成功
	MarkExpiredKeys(now time.Time) (int, error)        // 刷新缓存状态，返回更新数量
}

// ActivationRepository 定义设备激活数据存取操作。
//
// CreateActivationIfBelowLimit 是设备配额的事务边界：检查当前
// ACTIVE 数量并插入新记录必须对同一密钥上的并发调用原子生效，
// 配额满时不产生任何写入。
type ActivationRepository interface {
	CreateActivationIfBelowLimit(activation *domain.Activation, maxDevices int) error
	GetActiveActivation(licenseKeyID, hwid string) (*domain.Activation, error)
	CountActiveActivations(licenseKeyID string) (int, error)
	TouchActivation(id, ipAddress string, seenAt time.Time) error
	DeactivateActivation(licenseKeyID, hwid string, at time.Time) error // 幂等
	ListActivations(licenseKeyID string) ([]domain.Activation, error)
}

// PlanRepository 定义套餐目录数据存取操作。
type PlanRepository interface {
	SavePlan(plan *domain.Plan) error
	GetPlan(id string) (*domain.Plan, error)
	ListPlans() ([]domain.Plan, error)
}

// ResellerRepository 定义经销商数据存取操作。
//
// IssueLicenseKey 是配额消耗的事务边界：quotaUsed 的条件自增与
// 密钥创建必须同生共死，任何一步失败都不留下半个结果。
type ResellerRepository interface {
	CreateReseller(reseller *domain.Reseller) error
	GetReseller(id string) (*domain.Reseller, error)
	GetResellerByAPIKeyHash(hash string) (*domain.Reseller, error)
	ListResellers() ([]domain.Reseller, error)
	UpdateReseller(reseller *domain.Reseller) error
	IssueLicenseKey(resellerID string, key *domain.LicenseKey) error
	CountKeysByReseller(resellerID string) (int, error)
}

// UserRepository 定义用户数据存取操作。
type UserRepository interface {
	CreateUser(user *domain.User) error
	GetUserByID(id string) (*domain.User, error)
	GetUserByEmail(email string) (*domain.User, error)
	GetUserByUsername(username string) (*domain.User, error)
	UpdateUser(user *domain.User) error
	UpdateLastLogin(userID string) error
}

// AdminRepository 定义管理后台聚合统计操作。
type AdminRepository interface {
	GetSystemStatistics(now time.Time) (*domain.SystemStatistics, error)
}

// RateLimitRepository 定义限流操作。
type RateLimitRepository interface {
	IncrementRateLimit(key string, window time.Duration) (int64, error)
	GetRateLimit(key string) (int64, error)
}

// SessionRepository 定义会话管理操作。
type SessionRepository interface {
	CacheSession(sessionID string, userID string, ttl time.Duration) error
	GetCachedSession(sessionID string) (string, error)
	DeleteCachedSession(sessionID string) error
}

// BlacklistRepository 定义 JWT 黑名单操作。
type BlacklistRepository interface {
	AddToBlacklist(jti string, ttl time.Duration) error
	IsBlacklisted(jti string) (bool, error)
}

// Store 定义完整的存储接口。
type Store interface {
	LicenseKeyRepository
	ActivationRepository
	PlanRepository
	ResellerRepository
	UserRepository
	AdminRepository
	RateLimitRepository
	SessionRepository
	BlacklistRepository

	// 工具方法
	Close() error
	Health() error
}
