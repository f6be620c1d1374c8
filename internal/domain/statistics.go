package domain

import "time"

// SystemStatistics 管理后台聚合统计
type SystemStatistics struct {
	TotalKeys         int       `json:"totalKeys"`
	ActiveKeys        int       `json:"activeKeys"`
	ExpiredKeys       int       `json:"expiredKeys"`
	RevokedKeys       int       `json:"revokedKeys"`
	TotalActivations  int       `json:"totalActivations"`
	ActiveActivations int       `json:"activeActivations"`
	TotalResellers    int       `json:"totalResellers"`
	TotalUsers        int       `json:"totalUsers"`
	GeneratedAt       time.Time `json:"generatedAt"`
}

// LicenseSummary 面向用户/客户端的密钥摘要
//
// daysRemaining 为 nil 表示永久授权；activeDevices 为当前占用槽位数。
type LicenseSummary struct {
	Key           string     `json:"key"`
	PlanName      string     `json:"planName"`
	Status        KeyStatus  `json:"status"`
	CreatedAt     time.Time  `json:"createdAt"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
	DaysRemaining *int       `json:"daysRemaining,omitempty"`
	ActiveDevices int        `json:"activeDevices"`
	MaxDevices    int        `json:"maxDevices"`
}
