// Package keycodec 负责授权密钥字符串的生成、规范化与结构校验。
//
// 密钥格式固定为 4 组、每组 5 个字符、以连字符分隔，例如
// "7K3NF-X9WQB-MPD4H-T2RVJ"。字符表为大写字母和数字，
// 去掉了易混淆的 0/O/1/I。本包只处理字符串结构，
// 不关心密钥是否存在或是否有效。
package keycodec

import (
	"crypto/rand"
	"fmt"
	"regexp"
	"strings"
)

const (
	// alphabet 密钥字符表（32 个字符，排除 0/O/1/I）
	alphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

	// BlockCount 分组数量
	BlockCount = 4
	// BlockLength 每组字符数
	BlockLength = 5
	// Delimiter 分组分隔符
	Delimiter = "-"

	// EncodedLength 规范密钥的总长度（含分隔符）
	EncodedLength = BlockCount*BlockLength + BlockCount - 1
)

var keyRegex = regexp.MustCompile(`^[` + alphabet + `]{5}(-[` + alphabet + `]{5}){3}$`)

// Generate 生成一个新的随机密钥字符串
//
// 使用 crypto/rand 保证不可预测性。调用方负责对已存在的密钥
// 做碰撞检查并在碰撞时重新生成（本地可重试的非致命情况）。
func Generate() (string, error) {
	raw := make([]byte, BlockCount*BlockLength)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}

	var b strings.Builder
	b.Grow(EncodedLength)
	for i, by := range raw {
		if i > 0 && i%BlockLength == 0 {
			b.WriteString(Delimiter)
		}
		b.WriteByte(alphabet[int(by)%len(alphabet)])
	}
	return b.String(), nil
}

// Normalize 将用户输入规范化为标准密钥格式
//
// 去除所有空白和分隔符、转为大写，再按固定分组重新插入分隔符。
// 输入字符数不等于 20 时原样返回大写结果，交由 IsValidFormat 拒绝。
func Normalize(input string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n', '-', '_':
			return -1
		}
		return r
	}, input)
	cleaned = strings.ToUpper(cleaned)

	if len(cleaned) != BlockCount*BlockLength {
		return cleaned
	}

	var b strings.Builder
	b.Grow(EncodedLength)
	for i := 0; i < BlockCount; i++ {
		if i > 0 {
			b.WriteString(Delimiter)
		}
		b.WriteString(cleaned[i*BlockLength : (i+1)*BlockLength])
	}
	return b.String()
}

// IsValidFormat 校验密钥的结构合法性
//
// 只做长度、字符表和分隔符位置的检查，不查询存储。
func IsValidFormat(key string) bool {
	if len(key) != EncodedLength {
		return false
	}
	return keyRegex.MatchString(key)
}
