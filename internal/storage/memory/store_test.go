package memory

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licensegate/backend/internal/domain"
	"licensegate/backend/internal/storage"
)

func newTestKey(key string) *domain.LicenseKey {
	return &domain.LicenseKey{
		ID:        uuid.New().String(),
		Key:       key,
		PlanID:    "plan-1",
		Status:    domain.KeyStatusActive,
		CreatedAt: time.Now(),
	}
}

func newTestActivation(keyID, hwid string) *domain.Activation {
	now := time.Now()
	return &domain.Activation{
		ID:           uuid.New().String(),
		LicenseKeyID: keyID,
		HWID:         hwid,
		Status:       domain.ActivationStatusActive,
		ActivatedAt:  now,
		LastSeenAt:   now,
	}
}

func TestLicenseKeyRepository(t *testing.T) {
	t.Run("保存并按密钥字符串查询", func(t *testing.T) {
		store := NewStore()
		key := newTestKey("AAAAA-BBBBB-CCCCC-DDDDD")
		require.NoError(t, store.SaveLicenseKey(key))

		got, err := store.GetLicenseKeyByKey("AAAAA-BBBBB-CCCCC-DDDDD")
		require.NoError(t, err)
		assert.Equal(t, key.ID, got.ID)

		exists, err := store.KeyExists("AAAAA-BBBBB-CCCCC-DDDDD")
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("密钥字符串冲突返回错误", func(t *testing.T) {
		store := NewStore()
		require.NoError(t, store.SaveLicenseKey(newTestKey("AAAAA-BBBBB-CCCCC-DDDDD")))

		err := store.SaveLicenseKey(newTestKey("AAAAA-BBBBB-CCCCC-DDDDD"))
		assert.ErrorIs(t, err, storage.ErrKeyExists)
	})

	t.Run("未找到返回 ErrKeyNotFound", func(t *testing.T) {
		store := NewStore()
		_, err := store.GetLicenseKeyByKey("AAAAA-BBBBB-CCCCC-DDDDD")
		assert.ErrorIs(t, err, storage.ErrKeyNotFound)
	})

	t.Run("返回副本不泄漏内部状态", func(t *testing.T) {
		store := NewStore()
		key := newTestKey("AAAAA-BBBBB-CCCCC-DDDDD")
		require.NoError(t, store.SaveLicenseKey(key))

		got, err := store.GetLicenseKeyByID(key.ID)
		require.NoError(t, err)
		got.Status = domain.KeyStatusRevoked

		again, err := store.GetLicenseKeyByID(key.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.KeyStatusActive, again.Status)
	})

	t.Run("认领密钥幂等且拒绝二次认领", func(t *testing.T) {
		store := NewStore()
		key := newTestKey("AAAAA-BBBBB-CCCCC-DDDDD")
		require.NoError(t, store.SaveLicenseKey(key))

		require.NoError(t, store.ClaimLicenseKey(key.Key, "user-1"))
		require.NoError(t, store.ClaimLicenseKey(key.Key, "user-1")) // 重复认领自己的密钥

		err := store.ClaimLicenseKey(key.Key, "user-2")
		assert.ErrorIs(t, err, storage.ErrKeyAlreadyClaimed)

		keys, err := store.ListLicenseKeysByUserID("user-1")
		require.NoError(t, err)
		assert.Len(t, keys, 1)
	})

	t.Run("刷新过期密钥的缓存状态", func(t *testing.T) {
		store := NewStore()
		past := time.Now().Add(-time.Hour)
		expired := newTestKey("AAAAA-BBBBB-CCCCC-DDDDD")
		expired.ExpiresAt = &past
		require.NoError(t, store.SaveLicenseKey(expired))
		require.NoError(t, store.SaveLicenseKey(newTestKey("EEEEE-FFFFF-GGGGG-HHHHH")))

		count, err := store.MarkExpiredKeys(time.Now())
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		got, err := store.GetLicenseKeyByID(expired.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.KeyStatusExpired, got.Status)
	})

	t.Run("分页与状态过滤", func(t *testing.T) {
		store := NewStore()
		for i := 0; i < 5; i++ {
			key := newTestKey(fmt.Sprintf("AAAAA-BBBBB-CCCCC-DDDD%d", i))
			key.CreatedAt = time.Now().Add(time.Duration(i) * time.Second)
			require.NoError(t, store.SaveLicenseKey(key))
		}

		page1, total, err := store.ListLicenseKeys(1, 2, nil)
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		require.Len(t, page1, 2)
		// 倒序：最新的排在前面
		assert.True(t, page1[0].CreatedAt.After(page1[1].CreatedAt))

		active := domain.KeyStatusActive
		_, total, err = store.ListLicenseKeys(1, 10, &active)
		require.NoError(t, err)
		assert.Equal(t, 5, total)
	})
}

func TestActivationRepository(t *testing.T) {
	t.Run("配额内创建激活记录", func(t *testing.T) {
		store := NewStore()
		act := newTestActivation("key-1", "hwid-1")
		require.NoError(t, store.CreateActivationIfBelowLimit(act, 3))

		count, err := store.CountActiveActivations("key-1")
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("配额满时拒绝且不产生写入", func(t *testing.T) {
		store := NewStore()
		require.NoError(t, store.CreateActivationIfBelowLimit(newTestActivation("key-1", "hwid-1"), 1))

		err := store.CreateActivationIfBelowLimit(newTestActivation("key-1", "hwid-2"), 1)
		assert.ErrorIs(t, err, storage.ErrDeviceLimitReached)

		count, err := store.CountActiveActivations("key-1")
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		all, err := store.ListActivations("key-1")
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("重复激活是幂等刷新不占新槽位", func(t *testing.T) {
		store := NewStore()
		first := newTestActivation("key-1", "hwid-1")
		require.NoError(t, store.CreateActivationIfBelowLimit(first, 1))

		second := newTestActivation("key-1", "hwid-1")
		second.LastSeenAt = time.Now().Add(time.Minute)
		second.LastSeenIP = "10.0.0.2"
		require.NoError(t, store.CreateActivationIfBelowLimit(second, 1))

		// 返回的是既有记录
		assert.Equal(t, first.ID, second.ID)

		got, err := store.GetActiveActivation("key-1", "hwid-1")
		require.NoError(t, err)
		assert.Equal(t, "10.0.0.2", got.LastSeenIP)

		count, err := store.CountActiveActivations("key-1")
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("解绑释放槽位且幂等", func(t *testing.T) {
		store := NewStore()
		require.NoError(t, store.CreateActivationIfBelowLimit(newTestActivation("key-1", "hwid-1"), 1))

		now := time.Now()
		require.NoError(t, store.DeactivateActivation("key-1", "hwid-1", now))
		require.NoError(t, store.DeactivateActivation("key-1", "hwid-1", now)) // 幂等
		require.NoError(t, store.DeactivateActivation("key-1", "hwid-9", now)) // 不存在也不报错

		count, err := store.CountActiveActivations("key-1")
		require.NoError(t, err)
		assert.Equal(t, 0, count)

		// 槽位释放后可重新激活
		require.NoError(t, store.CreateActivationIfBelowLimit(newTestActivation("key-1", "hwid-2"), 1))

		// 审计记录保留
		all, err := store.ListActivations("key-1")
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("并发争抢槽位时激活数不超过配额", func(t *testing.T) {
		store := NewStore()
		const maxDevices = 3
		const attempts = 20

		var wg sync.WaitGroup
		errs := make([]error, attempts)
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = store.CreateActivationIfBelowLimit(
					newTestActivation("key-1", fmt.Sprintf("hwid-%d", i)), maxDevices)
			}(i)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
			} else {
				assert.ErrorIs(t, err, storage.ErrDeviceLimitReached)
			}
		}
		assert.Equal(t, maxDevices, succeeded)

		count, err := store.CountActiveActivations("key-1")
		require.NoError(t, err)
		assert.Equal(t, maxDevices, count)
	})
}

func TestResellerRepository(t *testing.T) {
	newReseller := func(quota int) *domain.Reseller {
		return &domain.Reseller{
			ID:           uuid.New().String(),
			BusinessName: "测试经销商",
			APIKeyHash:   uuid.New().String(),
			Status:       domain.ResellerStatusApproved,
			Quota:        quota,
			CreatedAt:    time.Now(),
		}
	}

	t.Run("按 API 密钥哈希查询", func(t *testing.T) {
		store := NewStore()
		reseller := newReseller(10)
		require.NoError(t, store.CreateReseller(reseller))

		got, err := store.GetResellerByAPIKeyHash(reseller.APIKeyHash)
		require.NoError(t, err)
		assert.Equal(t, reseller.ID, got.ID)

		_, err = store.GetResellerByAPIKeyHash("no-such-hash")
		assert.ErrorIs(t, err, storage.ErrResellerNotFound)
	})

	t.Run("签发密钥消耗配额", func(t *testing.T) {
		store := NewStore()
		reseller := newReseller(2)
		require.NoError(t, store.CreateReseller(reseller))

		key1 := newTestKey("AAAAA-BBBBB-CCCCC-DDDDD")
		key1.IssuedByResellerID = &reseller.ID
		require.NoError(t, store.IssueLicenseKey(reseller.ID, key1))

		got, err := store.GetReseller(reseller.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.QuotaUsed)

		issued, err := store.CountKeysByReseller(reseller.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, issued)
	})

	t.Run("配额耗尽拒绝签发", func(t *testing.T) {
		store := NewStore()
		reseller := newReseller(1)
		require.NoError(t, store.CreateReseller(reseller))

		require.NoError(t, store.IssueLicenseKey(reseller.ID, newTestKey("AAAAA-BBBBB-CCCCC-DDDDD")))

		err := store.IssueLicenseKey(reseller.ID, newTestKey("EEEEE-FFFFF-GGGGG-HHHHH"))
		assert.ErrorIs(t, err, storage.ErrQuotaExceeded)

		got, err := store.GetReseller(reseller.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.QuotaUsed)
	})

	t.Run("密钥创建失败不消耗配额", func(t *testing.T) {
		store := NewStore()
		reseller := newReseller(10)
		require.NoError(t, store.CreateReseller(reseller))
		require.NoError(t, store.SaveLicenseKey(newTestKey("AAAAA-BBBBB-CCCCC-DDDDD")))

		// 密钥字符串冲突导致签发失败
		err := store.IssueLicenseKey(reseller.ID, newTestKey("AAAAA-BBBBB-CCCCC-DDDDD"))
		assert.ErrorIs(t, err, storage.ErrKeyExists)

		got, err := store.GetReseller(reseller.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, got.QuotaUsed)
	})

	t.Run("并发签发不超发", func(t *testing.T) {
		store := NewStore()
		const quota = 5
		const attempts = 20
		reseller := newReseller(quota)
		require.NoError(t, store.CreateReseller(reseller))

		var wg sync.WaitGroup
		errs := make([]error, attempts)
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				key := newTestKey(fmt.Sprintf("AAAAA-BBBBB-CCCCC-DDD%02d", i))
				key.IssuedByResellerID = &reseller.ID
				errs[i] = store.IssueLicenseKey(reseller.ID, key)
			}(i)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
			}
		}
		assert.Equal(t, quota, succeeded)

		got, err := store.GetReseller(reseller.ID)
		require.NoError(t, err)
		assert.Equal(t, quota, got.QuotaUsed)

		issued, err := store.CountKeysByReseller(reseller.ID)
		require.NoError(t, err)
		assert.Equal(t, quota, issued)
	})
}

func TestUserRepository(t *testing.T) {
	t.Run("邮箱唯一且大小写不敏感", func(t *testing.T) {
		store := NewStore()
		user := &domain.User{
			ID:    uuid.New().String(),
			Email: "Alice@Example.com",
			Role:  domain.RoleUser,
		}
		require.NoError(t, store.CreateUser(user))

		dup := &domain.User{ID: uuid.New().String(), Email: "alice@example.com"}
		assert.ErrorIs(t, store.CreateUser(dup), storage.ErrEmailExists)

		got, err := store.GetUserByEmail("ALICE@EXAMPLE.COM")
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
	})

	t.Run("更新最后登录时间", func(t *testing.T) {
		store := NewStore()
		user := &domain.User{ID: uuid.New().String(), Email: "bob@example.com"}
		require.NoError(t, store.CreateUser(user))

		require.NoError(t, store.UpdateLastLogin(user.ID))
		got, err := store.GetUserByID(user.ID)
		require.NoError(t, err)
		assert.NotNil(t, got.LastLoginAt)
	})
}

func TestSystemStatistics(t *testing.T) {
	store := NewStore()

	past := time.Now().Add(-time.Hour)
	expired := newTestKey("AAAAA-BBBBB-CCCCC-DDDDD")
	expired.ExpiresAt = &past
	require.NoError(t, store.SaveLicenseKey(expired))
	require.NoError(t, store.SaveLicenseKey(newTestKey("EEEEE-FFFFF-GGGGG-HHHHH")))

	require.NoError(t, store.CreateActivationIfBelowLimit(newTestActivation("key-1", "hwid-1"), 5))
	require.NoError(t, store.CreateActivationIfBelowLimit(newTestActivation("key-1", "hwid-2"), 5))
	require.NoError(t, store.DeactivateActivation("key-1", "hwid-2", time.Now()))

	stats, err := store.GetSystemStatistics(time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalKeys)
	assert.Equal(t, 1, stats.ActiveKeys)
	assert.Equal(t, 1, stats.ExpiredKeys)
	assert.Equal(t, 2, stats.TotalActivations)
	assert.Equal(t, 1, stats.ActiveActivations)
}

func TestRateLimit(t *testing.T) {
	store := NewStore()

	count, err := store.IncrementRateLimit("ip:1.2.3.4", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	count, err = store.IncrementRateLimit("ip:1.2.3.4", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	got, err := store.GetRateLimit("ip:1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got)

	got, err = store.GetRateLimit("ip:9.9.9.9")
	require.NoError(t, err)
	assert.Equal(t, int64(0), got)
}
