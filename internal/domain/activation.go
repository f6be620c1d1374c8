package domain

import "time"

// ActivationStatus 激活记录状态
type ActivationStatus string

const (
	ActivationStatusActive      ActivationStatus = "ACTIVE"      // 设备占用一个配额槽位
	ActivationStatusDeactivated ActivationStatus = "DEACTIVATED" // 已解绑，槽位释放，记录保留审计
)

// Activation 设备激活记录实体
//
// 一条记录表示密钥与设备（HWID）的一次绑定。同一 (licenseKeyId, hwid)
// 组合在 ACTIVE 状态下唯一；重复激活是幂等刷新而不是新占槽位。
// 解绑采用软下线，记录永不物理删除。
type Activation struct {
	ID            string           `json:"id" gorm:"primaryKey;type:varchar(36)"`
	LicenseKeyID  string           `json:"licenseKeyId" gorm:"type:varchar(36);index:idx_activation_key_hwid;not null"`
	HWID          string           `json:"hwid" gorm:"column:hwid;type:varchar(128);index:idx_activation_key_hwid;not null"` // 设备指纹，对本服务不透明
	DeviceName    string           `json:"deviceName,omitempty" gorm:"type:varchar(100)"`
	Status        ActivationStatus `json:"status" gorm:"type:varchar(20);default:'ACTIVE';index"`
	ActivatedAt   time.Time        `json:"activatedAt"`
	LastSeenAt    time.Time        `json:"lastSeenAt"` // 由心跳刷新
	LastSeenIP    string           `json:"lastSeenIp,omitempty" gorm:"type:varchar(45)"` // 审计用途
	DeactivatedAt *time.Time       `json:"deactivatedAt,omitempty"`
}

// IsActive 判断激活记录是否占用槽位
func (a *Activation) IsActive() bool {
	return a.Status == ActivationStatusActive
}
