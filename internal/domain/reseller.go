package domain

import "time"

// ResellerStatus 经销商账户状态
type ResellerStatus string

const (
	ResellerStatusPending   ResellerStatus = "PENDING"   // 待审核，不能签发密钥
	ResellerStatusApproved  ResellerStatus = "APPROVED"  // 已批准
	ResellerStatusSuspended ResellerStatus = "SUSPENDED" // 已停用
)

// Reseller 经销商实体
//
// API 密钥仅保存 SHA-256 哈希，明文只在创建时返回一次。
// QuotaUsed 单调不减，与密钥签发在同一事务内原子更新，
// 任何时刻都满足 QuotaUsed <= Quota。
type Reseller struct {
	ID           string         `json:"id" gorm:"primaryKey;type:varchar(36)"`
	BusinessName string         `json:"businessName" gorm:"type:varchar(200);not null"`
	ContactEmail string         `json:"contactEmail" gorm:"type:varchar(255)"`
	APIKeyHash   string         `json:"-" gorm:"type:varchar(64);uniqueIndex;not null"` // 不返回给前端
	KeyPrefix    string         `json:"keyPrefix" gorm:"type:varchar(12)"` // 明文前缀，便于后台识别
	Status       ResellerStatus `json:"status" gorm:"type:varchar(20);default:'PENDING';index"`
	Quota        int            `json:"quota"`     // 可签发密钥总数
	QuotaUsed    int            `json:"quotaUsed"` // 已消耗配额
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// CanIssue 判断经销商当前是否具备签发资格（不含配额判断）
func (r *Reseller) CanIssue() bool {
	return r.Status == ResellerStatusApproved
}

// QuotaRemaining 剩余配额
func (r *Reseller) QuotaRemaining() int {
	remaining := r.Quota - r.QuotaUsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ResellerStats 经销商用量统计
type ResellerStats struct {
	Issued    int `json:"issued"`    // 实际签发的密钥数
	Quota     int `json:"quota"`     // 配额总数
	QuotaUsed int `json:"quotaUsed"` // 已消耗配额
	Remaining int `json:"remaining"` // 剩余配额
}
