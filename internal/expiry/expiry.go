// Package expiry 实现授权到期时间的纯函数计算。
//
// 所有函数都不读取系统时钟，now 由调用方注入，保证可测试性
// 和结果的确定性。
package expiry

import (
	"errors"
	"time"

	"licensegate/backend/internal/domain"
)

// ErrInvalidDuration 时长策略参数无效
var ErrInvalidDuration = errors.New("invalid duration policy")

// Calculate 根据时长策略和签发时间计算到期时间
//
// DAYS: issuedAt + n*24h。
// MONTHS: issuedAt + n 个自然月，月末收敛——目标月份没有对应日期时
// 取该月最后一天（1月31日 + 1 个月 = 2月28/29日，绝不滚入 3 月）。
// LIFETIME: 返回 nil，表示永不过期。
func Calculate(durationType domain.DurationType, durationValue int, issuedAt time.Time) (*time.Time, error) {
	switch durationType {
	case domain.DurationLifetime:
		return nil, nil
	case domain.DurationDays:
		if durationValue <= 0 {
			return nil, ErrInvalidDuration
		}
		t := issuedAt.Add(time.Duration(durationValue) * 24 * time.Hour)
		return &t, nil
	case domain.DurationMonths:
		if durationValue <= 0 {
			return nil, ErrInvalidDuration
		}
		t := addMonthsClamped(issuedAt, durationValue)
		return &t, nil
	default:
		return nil, ErrInvalidDuration
	}
}

// addMonthsClamped 加 n 个自然月并做月末收敛
//
// 不使用 time.AddDate：它在目标月份缺少对应日期时会向后滚动
// （1月31日 AddDate 1 个月得到 3月2/3日），与授权语义不符。
func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()

	// 归一化目标年月
	m := int(month) - 1 + months
	targetYear := year + m/12
	targetMonth := time.Month(m%12 + 1)

	// 目标月份最后一天：下月 0 日
	lastDay := time.Date(targetYear, targetMonth+1, 0, 0, 0, 0, 0, t.Location()).Day()
	if day > lastDay {
		day = lastDay
	}

	hour, min, sec := t.Clock()
	return time.Date(targetYear, targetMonth, day, hour, min, sec, t.Nanosecond(), t.Location())
}

// DaysRemaining 计算剩余天数
//
// expiresAt 为 nil（永久授权）时返回 nil；其余情况按不足一天
// 向上取整，到期后恒为 0，永不为负。
func DaysRemaining(expiresAt *time.Time, now time.Time) *int {
	if expiresAt == nil {
		return nil
	}

	remaining := expiresAt.Sub(now)
	if remaining <= 0 {
		zero := 0
		return &zero
	}

	days := int((remaining + 24*time.Hour - 1) / (24 * time.Hour))
	return &days
}
