package keycodec

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerate(t *testing.T) {
	t.Run("生成的密钥符合标准格式", func(t *testing.T) {
		for i := 0; i < 100; i++ {
			key, err := Generate()
			assert.NoError(t, err)
			assert.Len(t, key, EncodedLength)
			assert.True(t, IsValidFormat(key), "generated key %q should be valid", key)
		}
	})

	t.Run("生成的密钥不包含易混淆字符", func(t *testing.T) {
		for i := 0; i < 50; i++ {
			key, err := Generate()
			assert.NoError(t, err)
			assert.NotContains(t, key, "0")
			assert.NotContains(t, key, "O")
			assert.NotContains(t, key, "1")
			assert.NotContains(t, key, "I")
		}
	})

	t.Run("连续生成的密钥互不相同", func(t *testing.T) {
		seen := make(map[string]bool)
		for i := 0; i < 100; i++ {
			key, err := Generate()
			assert.NoError(t, err)
			assert.False(t, seen[key], "duplicate key generated: %s", key)
			seen[key] = true
		}
	})
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"小写转大写", "7k3nf-x9wqb-mpd4h-t2rvj", "7K3NF-X9WQB-MPD4H-T2RVJ"},
		{"去除首尾空白", "  7K3NF-X9WQB-MPD4H-T2RVJ ", "7K3NF-X9WQB-MPD4H-T2RVJ"},
		{"无分隔符输入重新分组", "7K3NFX9WQBMPD4HT2RVJ", "7K3NF-X9WQB-MPD4H-T2RVJ"},
		{"下划线视为分隔符", "7K3NF_X9WQB_MPD4H_T2RVJ", "7K3NF-X9WQB-MPD4H-T2RVJ"},
		{"内部空白全部去除", "7K3NF X9WQB MPD4H T2RVJ", "7K3NF-X9WQB-MPD4H-T2RVJ"},
		{"长度不符时不重新分组", "abc-def", "ABCDEF"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.input))
		})
	}
}

func TestIsValidFormat(t *testing.T) {
	t.Run("标准格式通过", func(t *testing.T) {
		assert.True(t, IsValidFormat("7K3NF-X9WQB-MPD4H-T2RVJ"))
	})

	t.Run("非法输入被拒绝", func(t *testing.T) {
		invalid := []string{
			"",
			"ABCDEF",
			"abcde-fghjk-mnpqr-stuvw",    // 小写
			"7K3NF-X9WQB-MPD4H",          // 缺一组
			"7K3NF-X9WQB-MPD4H-T2RVJ-AB", // 多余内容
			"7K3N-FX9WQB-MPD4H-T2RVJ",    // 分隔符位置错误
			"7K3NO-X9WQB-MPD4H-T2RVJ",    // 含易混淆字符 O
			"7K3N0-X9WQB-MPD4H-T2RVJ",    // 含易混淆字符 0
			strings.Repeat("A", EncodedLength),
		}
		for _, key := range invalid {
			assert.False(t, IsValidFormat(key), "key %q should be rejected", key)
		}
	})

	t.Run("规范化后的脏输入仍被拒绝", func(t *testing.T) {
		normalized := Normalize("  abc-def ")
		assert.False(t, IsValidFormat(normalized))
	})

	t.Run("规范化加校验的组合路径", func(t *testing.T) {
		key, err := Generate()
		assert.NoError(t, err)

		messy := " " + strings.ToLower(strings.ReplaceAll(key, "-", " ")) + "\n"
		assert.Equal(t, key, Normalize(messy))
		assert.True(t, IsValidFormat(Normalize(messy)))
	})
}
