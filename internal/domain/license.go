package domain

import "time"

// KeyStatus 授权密钥状态
type KeyStatus string

const (
	KeyStatusActive  KeyStatus = "ACTIVE"  // 正常可用
	KeyStatusRevoked KeyStatus = "REVOKED" // 已被管理员吊销
	KeyStatusExpired KeyStatus = "EXPIRED" // 已过期
)

// LicenseKey 授权密钥实体
//
// key 字符串签发后不可变；expiresAt 在签发时一次性计算，
// 为 nil 当且仅当套餐为 LIFETIME（nil 是永久授权的终态语义，
// 不代表"尚未计算"）。Status 字段是缓存值，任何判定都必须以
// EffectiveStatus 的派生结果为准。
type LicenseKey struct {
	ID                 string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Key                string     `json:"key" gorm:"uniqueIndex;type:varchar(32);not null"`
	PlanID             string     `json:"planId" gorm:"type:varchar(36);index;not null"`
	OwnerUserID        *string    `json:"ownerUserId,omitempty" gorm:"type:varchar(36);index"` // 未认领/经销商签发的密钥为 nil
	IssuedByResellerID *string    `json:"issuedByResellerId,omitempty" gorm:"type:varchar(36);index"`
	Status             KeyStatus  `json:"status" gorm:"type:varchar(20);default:'ACTIVE';index"` // 缓存状态
	CreatedAt          time.Time  `json:"createdAt"`
	ExpiresAt          *time.Time `json:"expiresAt,omitempty"` // nil 当且仅当永久授权
	RevokedAt          *time.Time `json:"revokedAt,omitempty"`
}

// EffectiveStatus 根据吊销标记和过期时间派生当前真实状态
//
// 过期判定在调用时惰性执行，不依赖后台任务刷新缓存字段。
func (k *LicenseKey) EffectiveStatus(now time.Time) KeyStatus {
	if k.Status == KeyStatusRevoked {
		return KeyStatusRevoked
	}
	if k.ExpiresAt != nil && now.After(*k.ExpiresAt) {
		return KeyStatusExpired
	}
	return KeyStatusActive
}

// IsUsable 判断密钥当前是否可用于激活/心跳
func (k *LicenseKey) IsUsable(now time.Time) bool {
	return k.EffectiveStatus(now) == KeyStatusActive
}
