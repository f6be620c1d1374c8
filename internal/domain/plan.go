package domain

import "time"

// DurationType 授权时长策略类型
type DurationType string

const (
	DurationDays     DurationType = "DAYS"     // 固定天数
	DurationMonths   DurationType = "MONTHS"   // 固定自然月数
	DurationLifetime DurationType = "LIFETIME" // 永久授权，永不过期
)

// Plan 授权套餐实体
//
// 套餐定义了该套餐下签发的密钥的时长策略和设备数量上限，
// 属于只读目录数据，签发后的密钥不随套餐修改而变化。
type Plan struct {
	ID            string       `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name          string       `json:"name" gorm:"type:varchar(100);not null"`
	DurationType  DurationType `json:"durationType" gorm:"type:varchar(20);not null"`
	DurationValue int          `json:"durationValue"` // 天数或月数，LIFETIME 时忽略
	MaxDevices    int          `json:"maxDevices" gorm:"not null"` // 最大可绑定设备数，>= 1
	IsActive      bool         `json:"isActive" gorm:"default:true"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// IsLifetime 判断套餐是否为永久授权
func (p *Plan) IsLifetime() bool {
	return p.DurationType == DurationLifetime
}
