package domain

import "time"

// LicenseEventType 授权事件类型
type LicenseEventType string

const (
	EventKeyIssued         LicenseEventType = "key.issued"
	EventKeyRevoked        LicenseEventType = "key.revoked"
	EventKeyClaimed        LicenseEventType = "key.claimed"
	EventKeyExpired        LicenseEventType = "key.expired"
	EventDeviceActivated   LicenseEventType = "device.activated"
	EventDeviceDeactivated LicenseEventType = "device.deactivated"
)

// LicenseEvent 授权生命周期事件
//
// 用于后台实时事件流和审计推送，密钥只携带掩码后的前缀。
type LicenseEvent struct {
	Type       LicenseEventType `json:"type"`
	KeyID      string           `json:"keyId"`
	KeyPrefix  string           `json:"keyPrefix,omitempty"` // 密钥前 5 位，避免泄漏完整密钥
	PlanID     string           `json:"planId,omitempty"`
	HWID       string           `json:"hwid,omitempty"`
	ResellerID string           `json:"resellerId,omitempty"`
	OccurredAt time.Time        `json:"occurredAt"`
}
