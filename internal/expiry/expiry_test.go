package expiry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licensegate/backend/internal/domain"
)

func TestCalculate_Days(t *testing.T) {
	issuedAt := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)

	t.Run("固定天数直接累加", func(t *testing.T) {
		expiresAt, err := Calculate(domain.DurationDays, 30, issuedAt)
		require.NoError(t, err)
		require.NotNil(t, expiresAt)
		assert.Equal(t, issuedAt.Add(30*24*time.Hour), *expiresAt)
	})

	t.Run("非法天数返回错误", func(t *testing.T) {
		_, err := Calculate(domain.DurationDays, 0, issuedAt)
		assert.ErrorIs(t, err, ErrInvalidDuration)

		_, err = Calculate(domain.DurationDays, -5, issuedAt)
		assert.ErrorIs(t, err, ErrInvalidDuration)
	})
}

func TestCalculate_Months(t *testing.T) {
	t.Run("普通月份累加", func(t *testing.T) {
		issuedAt := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
		expiresAt, err := Calculate(domain.DurationMonths, 2, issuedAt)
		require.NoError(t, err)
		require.NotNil(t, expiresAt)
		assert.Equal(t, time.Date(2025, 5, 10, 8, 0, 0, 0, time.UTC), *expiresAt)
	})

	t.Run("1月31日加1个月收敛到2月末", func(t *testing.T) {
		// 2025 年不是闰年
		issuedAt := time.Date(2025, 1, 31, 12, 0, 0, 0, time.UTC)
		expiresAt, err := Calculate(domain.DurationMonths, 1, issuedAt)
		require.NoError(t, err)
		require.NotNil(t, expiresAt)
		assert.Equal(t, time.Date(2025, 2, 28, 12, 0, 0, 0, time.UTC), *expiresAt)
	})

	t.Run("闰年1月31日加1个月得到2月29日", func(t *testing.T) {
		issuedAt := time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC)
		expiresAt, err := Calculate(domain.DurationMonths, 1, issuedAt)
		require.NoError(t, err)
		require.NotNil(t, expiresAt)
		assert.Equal(t, time.Date(2024, 2, 29, 12, 0, 0, 0, time.UTC), *expiresAt)
	})

	t.Run("跨年累加", func(t *testing.T) {
		issuedAt := time.Date(2025, 11, 30, 0, 0, 0, 0, time.UTC)
		expiresAt, err := Calculate(domain.DurationMonths, 3, issuedAt)
		require.NoError(t, err)
		require.NotNil(t, expiresAt)
		assert.Equal(t, time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC), *expiresAt)
	})

	t.Run("12个月整加", func(t *testing.T) {
		issuedAt := time.Date(2025, 5, 31, 0, 0, 0, 0, time.UTC)
		expiresAt, err := Calculate(domain.DurationMonths, 12, issuedAt)
		require.NoError(t, err)
		require.NotNil(t, expiresAt)
		assert.Equal(t, time.Date(2026, 5, 31, 0, 0, 0, 0, time.UTC), *expiresAt)
	})
}

func TestCalculate_Lifetime(t *testing.T) {
	t.Run("永久授权返回nil", func(t *testing.T) {
		issuedAt := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		expiresAt, err := Calculate(domain.DurationLifetime, 0, issuedAt)
		assert.NoError(t, err)
		assert.Nil(t, expiresAt)
	})

	t.Run("未知策略类型返回错误", func(t *testing.T) {
		_, err := Calculate(domain.DurationType("WEEKS"), 1, time.Now())
		assert.ErrorIs(t, err, ErrInvalidDuration)
	})
}

func TestDaysRemaining(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	t.Run("永久授权返回nil", func(t *testing.T) {
		assert.Nil(t, DaysRemaining(nil, now))
	})

	t.Run("不足一天向上取整", func(t *testing.T) {
		expiresAt := now.Add(1 * time.Hour)
		days := DaysRemaining(&expiresAt, now)
		require.NotNil(t, days)
		assert.Equal(t, 1, *days)
	})

	t.Run("整天数", func(t *testing.T) {
		expiresAt := now.Add(7 * 24 * time.Hour)
		days := DaysRemaining(&expiresAt, now)
		require.NotNil(t, days)
		assert.Equal(t, 7, *days)
	})

	t.Run("已过期恒为零不为负", func(t *testing.T) {
		expiresAt := now.Add(-48 * time.Hour)
		days := DaysRemaining(&expiresAt, now)
		require.NotNil(t, days)
		assert.Equal(t, 0, *days)
	})

	t.Run("剩余天数随时间单调不增", func(t *testing.T) {
		expiresAt := now.Add(10 * 24 * time.Hour)
		prev := DaysRemaining(&expiresAt, now)
		require.NotNil(t, prev)

		for offset := time.Hour; offset <= 15*24*time.Hour; offset += 6 * time.Hour {
			cur := DaysRemaining(&expiresAt, now.Add(offset))
			require.NotNil(t, cur)
			assert.LessOrEqual(t, *cur, *prev)
			assert.GreaterOrEqual(t, *cur, 0)
			prev = cur
		}

		// 过期之后保持为 0
		after := DaysRemaining(&expiresAt, now.Add(20*24*time.Hour))
		require.NotNil(t, after)
		assert.Equal(t, 0, *after)
	})
}
