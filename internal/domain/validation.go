package domain

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// ErrHWIDInvalid HWID 格式无效
	ErrHWIDInvalid = errors.New("invalid hwid")
	// ErrDeviceNameTooLong 设备名称过长
	ErrDeviceNameTooLong = errors.New("device name too long")
	// ErrPlanInvalid 套餐参数无效
	ErrPlanInvalid = errors.New("invalid plan parameters")
)

// hwidRegex HWID 允许字母、数字、连字符和冒号（常见指纹格式）
var hwidRegex = regexp.MustCompile(`^[A-Za-z0-9:\-]{8,128}$`)

const maxDeviceNameLength = 100

// ValidateHWID 校验设备指纹格式
//
// HWID 对本服务是不透明字符串，这里只做长度和字符集的
// 结构性约束，防止注入异常数据。
func ValidateHWID(hwid string) error {
	if !hwidRegex.MatchString(hwid) {
		return ErrHWIDInvalid
	}
	return nil
}

// SanitizeDeviceName 清理设备名称
//
// 去除首尾空白与控制字符；超长时返回错误而不是静默截断。
func SanitizeDeviceName(name string) (string, error) {
	cleaned := strings.TrimSpace(name)
	cleaned = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, cleaned)

	if utf8.RuneCountInString(cleaned) > maxDeviceNameLength {
		return "", ErrDeviceNameTooLong
	}
	return cleaned, nil
}

// ValidatePlan 校验套餐参数
func ValidatePlan(p *Plan) error {
	if p.Name == "" {
		return ErrPlanInvalid
	}
	if p.MaxDevices < 1 {
		return ErrPlanInvalid
	}
	switch p.DurationType {
	case DurationLifetime:
		return nil
	case DurationDays, DurationMonths:
		if p.DurationValue <= 0 {
			return ErrPlanInvalid
		}
		return nil
	default:
		return ErrPlanInvalid
	}
}
