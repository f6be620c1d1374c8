package service

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"licensegate/backend/internal/domain"
	"licensegate/backend/internal/keycodec"
	"licensegate/backend/internal/storage"
	"licensegate/backend/internal/storage/memory"
)

type licenseFixture struct {
	store    *memory.Store
	plans    *PlanService
	licenses *LicenseService
	plan     *domain.Plan
	clock    *fakeClock
}

// fakeClock 可拨动的测试时钟
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newLicenseFixture(t *testing.T, durationType domain.DurationType, durationValue, maxDevices int) *licenseFixture {
	t.Helper()

	store := memory.NewStore()
	plans := NewPlanService(store)
	clock := &fakeClock{now: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)}

	licenses := NewLicenseService(store, plans, NopEvents(), zap.NewNop())
	licenses.now = clock.Now

	plan, err := plans.Create(CreatePlanInput{
		Name:          "测试套餐",
		DurationType:  durationType,
		DurationValue: durationValue,
		MaxDevices:    maxDevices,
	})
	require.NoError(t, err)

	return &licenseFixture{
		store:    store,
		plans:    plans,
		licenses: licenses,
		plan:     plan,
		clock:    clock,
	}
}

func (f *licenseFixture) issueKey(t *testing.T) *domain.LicenseKey {
	t.Helper()
	key, err := f.licenses.Issue(IssueKeyInput{PlanID: f.plan.ID})
	require.NoError(t, err)
	return key
}

func TestIssue(t *testing.T) {
	t.Run("签发天数套餐密钥", func(t *testing.T) {
		f := newLicenseFixture(t, domain.DurationDays, 30, 3)

		key := f.issueKey(t)

		assert.True(t, keycodec.IsValidFormat(key.Key))
		assert.Equal(t, domain.KeyStatusActive, key.Status)
		require.NotNil(t, key.ExpiresAt)
		assert.Equal(t, f.clock.now.AddDate(0, 0, 30), *key.ExpiresAt)
	})

	t.Run("签发永久套餐密钥无过期时间", func(t *testing.T) {
		f := newLicenseFixture(t, domain.DurationLifetime, 0, 1)

		key := f.issueKey(t)

		assert.Nil(t, key.ExpiresAt)
	})

	t.Run("套餐不存在失败", func(t *testing.T) {
		f := newLicenseFixture(t, domain.DurationDays, 30, 3)

		_, err := f.licenses.Issue(IssueKeyInput{PlanID: "no-such-plan"})
		assert.ErrorIs(t, err, ErrPlanNotFound)
	})

	t.Run("下架套餐不能签发", func(t *testing.T) {
		f := newLicenseFixture(t, domain.DurationDays, 30, 3)
		_, err := f.plans.SetActive(f.plan.ID, false)
		require.NoError(t, err)

		_, err = f.licenses.Issue(IssueKeyInput{PlanID: f.plan.ID})
		assert.ErrorIs(t, err, ErrPlanInactive)
	})

	t.Run("两次签发的密钥互不相同", func(t *testing.T) {
		f := newLicenseFixture(t, domain.DurationDays, 30, 3)

		first := f.issueKey(t)
		second := f.issueKey(t)

		assert.NotEqual(t, first.Key, second.Key)
	})
}

func TestActivate(t *testing.T) {
	t.Run("激活成功", func(t *testing.T) {
		f := newLicenseFixture(t, domain.DurationDays, 30, 3)
		key := f.issueKey(t)

		result, err := f.licenses.Activate(ActivateInput{
			Key:        key.Key,
			HWID:       "machine-001",
			DeviceName: "办公电脑",
			IPAddress:  "203.0.113.10",
		})

		require.NoError(t, err)
		assert.Equal(t, "machine-001", result.Activation.HWID)
		assert.Equal(t, domain.ActivationStatusActive, result.Activation.Status)
		assert.Equal(t, 1, result.License.ActiveDevices)
		assert.Equal(t, 3, result.License.MaxDevices)
		require.NotNil(t, result.License.DaysRemaining)
		assert.Equal(t, 30, *result.License.DaysRemaining)
	})

	t.Run("宽松输入的密钥被归一化", func(t *testing.T) {
		f := newLicenseFixture(t, domain.DurationDays, 30, 3)
		key := f.issueKey(t)

		// 小写、去掉连字符、带空白的输入也能激活
		loose := "  " + strings.ToLower(strings.ReplaceAll(key.Key, "-", " ")) + "  "
		_, err := f.licenses.Activate(ActivateInput{Key: loose, HWID: "machine-001"})
		require.NoError(t, err)
	})

	t.Run("格式非法的密钥失败", func(t *testing.T) {
		f := newLicenseFixture(t, domain.DurationDays, 30, 3)

		_, err := f.licenses.Activate(ActivateInput{Key: "ABCDE-10000", HWID: "machine-001"})
		assert.ErrorIs(t, err, ErrInvalidKeyFormat)
	})

	t.Run("缺少参数失败", func(t *testing.T) {
		f := newLicenseFixture(t, domain.DurationDays, 30, 3)

		_, err := f.licenses.Activate(ActivateInput{Key: "", HWID: "machine-001"})
		assert.ErrorIs(t, err, ErrMissingParams)

		_, err = f.licenses.Activate(ActivateInput{Key: "AAAAA-BBBBB-CCCCC-DDDDD", HWID: ""})
		assert.ErrorIs(t, err, ErrMissingParams)
	})

	t.Run("不存在的密钥失败", func(t *testing.T) {
		f := newLicenseFixture(t, domain.DurationDays, 30, 3)

		_, err := f.licenses.Activate(ActivateInput{Key: "AAAAA-BBBBB-CCCCC-DDDDD", HWID: "machine-001"})
		assert.ErrorIs(t, err, storage.ErrKeyNotFound)
	})

	t.Run("过期密钥失败", func(t *testing.T) {
		f := newLicenseFixture(t, domain.DurationDays, 30, 3)
		key := f.issueKey(t)

		f.clock.Advance(31 * 24 * time.Hour)

		_, err := f.licenses.Activate(ActivateInput{Key: key.Key, HWID: "machine-001"})
		assert.ErrorIs(t, err, ErrKeyExpired)
	})

	t.Run("吊销密钥失败", func(t *testing.T) {
		f := newLicenseFixture(t, domain.DurationDays, 30, 3)
		key := f.issueKey(t)
		require.NoError(t, f.licenses.Revoke(key.ID))

		_, err := f.licenses.Activate(ActivateInput{Key: key.Key, HWID: "machine-001"})
		assert.ErrorIs(t, err, ErrKeyRevoked)
	})

	t.Run("重复激活同一设备是幂等刷新", func(t *testing.T) {
		f := newLicenseFixture(t, domain.DurationDays, 30, 1)
		key := f.issueKey(t)

		first, err := f.licenses.Activate(ActivateInput{Key: key.Key, HWID: "machine-001"})
		require.NoError(t, err)

		f.clock.Advance(time.Hour)
		second, err := f.licenses.Activate(ActivateInput{Key: key.Key, HWID: "machine-001", IPAddress: "198.51.100.7"})
		require.NoError(t, err)

		// 不占用新槽位，刷新的是同一条记录
		assert.Equal(t, first.Activation.ID, second.Activation.ID)
		assert.Equal(t, 1, second.License.ActiveDevices)
		assert.Equal(t, "198.51.100.7", second.Activation.LastSeenIP)
	})

	t.Run("设备数达到上限失败", func(t *testing.T) {
		f := newLicenseFixture(t, domain.DurationDays, 30, 2)
		key := f.issueKey(t)

		_, err := f.licenses.Activate(ActivateInput{Key: key.Key, HWID: "machine-001"})
		require.NoError(t, err)
		_, err = f.licenses.Activate(ActivateInput{Key: key.Key, HWID: "machine-002"})
		require.NoError(t, err)

		_, err = f.licenses.Activate(ActivateInput{Key: key.Key, HWID: "machine-003"})
		assert.ErrorIs(t, err, storage.ErrDeviceLimitReached)
	})
}

func TestHeartbeat(t *testing.T) {
	t.Run("心跳刷新在线时间", func(t *testing.T) {
		f := newLicenseFixture(t, domain.DurationDays, 30, 3)
		key := f.issueKey(t)
		result, err := f.licenses.Activate(ActivateInput{Key: key.Key, HWID: "machine-001"})
		require.NoError(t, err)

		f.clock.Advance(10 * time.Minute)
		summary, err := f.licenses.Heartbeat(HeartbeatInput{Key: key.Key, HWID: "machine-001", IPAddress: "203.0.113.20"})
		require.NoError(t, err)
		assert.Equal(t, domain.KeyStatusActive, summary.Status)

		act, err := f.store.GetActiveActivation(key.ID, "machine-001")
		require.NoError(t, err)
		assert.True(t, act.LastSeenAt.After(result.Activation.ActivatedAt))
		assert.Equal(t, "203.0.113.20", act.LastSeenIP)
	})

	t.Run("未激活设备的心跳失败", func(t *testing.T) {
		f := newLicenseFixture(t, domain.DurationDays, 30, 3)
		key := f.issueKey(t)

		_, err := f.licenses.Heartbeat(HeartbeatInput{Key: key.Key, HWID: "machine-001"})
		assert.ErrorIs(t, err, ErrNotActivated)
	})

	t.Run("过期密钥的心跳失败且不刷新在线时间", func(t *testing.T) {
		f := newLicenseFixture(t, domain.DurationDays, 30, 3)
		key := f.issueKey(t)
		_, err := f.licenses.Activate(ActivateInput{Key: key.Key, HWID: "machine-001"})
		require.NoError(t, err)

		before, err := f.store.GetActiveActivation(key.ID, "machine-001")
		require.NoError(t, err)

		f.clock.Advance(31 * 24 * time.Hour)
		_, err = f.licenses.Heartbeat(HeartbeatInput{Key: key.Key, HWID: "machine-001"})
		assert.ErrorIs(t, err, ErrKeyExpired)

		// 失败的心跳不算设备在线
		after, err := f.store.GetActiveActivation(key.ID, "machine-001")
		require.NoError(t, err)
		assert.Equal(t, before.LastSeenAt, after.LastSeenAt)
	})

	t.Run("吊销密钥的心跳失败", func(t *testing.T) {
		f := newLicenseFixture(t, domain.DurationDays, 30, 3)
		key := f.issueKey(t)
		_, err := f.licenses.Activate(ActivateInput{Key: key.Key, HWID: "machine-001"})
		require.NoError(t, err)

		require.NoError(t, f.licenses.Revoke(key.ID))

		_, err = f.licenses.Heartbeat(HeartbeatInput{Key: key.Key, HWID: "machine-001"})
		assert.ErrorIs(t, err, ErrKeyRevoked)
	})
}

func TestDeactivate(t *testing.T) {
	t.Run("解绑释放槽位", func(t *testing.T) {
		f := newLicenseFixture(t, domain.DurationDays, 30, 1)
		key := f.issueKey(t)
		_, err := f.licenses.Activate(ActivateInput{Key: key.Key, HWID: "machine-001"})
		require.NoError(t, err)

		require.NoError(t, f.licenses.Deactivate(key.Key, "machine-001"))

		// 槽位释放后新设备可以激活
		_, err = f.licenses.Activate(ActivateInput{Key: key.Key, HWID: "machine-002"})
		require.NoError(t, err)
	})

	t.Run("重复解绑是幂等操作", func(t *testing.T) {
		f := newLicenseFixture(t, domain.DurationDays, 30, 1)
		key := f.issueKey(t)
		_, err := f.licenses.Activate(ActivateInput{Key: key.Key, HWID: "machine-001"})
		require.NoError(t, err)

		require.NoError(t, f.licenses.Deactivate(key.Key, "machine-001"))
		require.NoError(t, f.licenses.Deactivate(key.Key, "machine-001"))
		require.NoError(t, f.licenses.Deactivate(key.Key, "never-activated"))
	})

	t.Run("过期密钥也允许解绑", func(t *testing.T) {
		f := newLicenseFixture(t, domain.DurationDays, 30, 1)
		key := f.issueKey(t)
		_, err := f.licenses.Activate(ActivateInput{Key: key.Key, HWID: "machine-001"})
		require.NoError(t, err)

		f.clock.Advance(31 * 24 * time.Hour)
		assert.NoError(t, f.licenses.Deactivate(key.Key, "machine-001"))
	})
}

func TestCheck(t *testing.T) {
	t.Run("查询正常密钥", func(t *testing.T) {
		f := newLicenseFixture(t, domain.DurationDays, 30, 3)
		key := f.issueKey(t)

		summary, err := f.licenses.Check(key.Key)

		require.NoError(t, err)
		assert.Equal(t, domain.KeyStatusActive, summary.Status)
		assert.Equal(t, "测试套餐", summary.PlanName)
		assert.Equal(t, 0, summary.ActiveDevices)
	})

	t.Run("过期密钥状态惰性派生", func(t *testing.T) {
		f := newLicenseFixture(t, domain.DurationDays, 30, 3)
		key := f.issueKey(t)

		// 不运行任何后台扫描，直接拨动时钟
		f.clock.Advance(31 * 24 * time.Hour)

		summary, err := f.licenses.Check(key.Key)
		require.NoError(t, err)
		assert.Equal(t, domain.KeyStatusExpired, summary.Status)
	})

	t.Run("永久密钥剩余天数为空", func(t *testing.T) {
		f := newLicenseFixture(t, domain.DurationLifetime, 0, 3)
		key := f.issueKey(t)

		summary, err := f.licenses.Check(key.Key)
		require.NoError(t, err)
		assert.Nil(t, summary.ExpiresAt)
		assert.Nil(t, summary.DaysRemaining)
	})
}

func TestClaim(t *testing.T) {
	t.Run("认领与重复认领", func(t *testing.T) {
		f := newLicenseFixture(t, domain.DurationDays, 30, 3)
		key := f.issueKey(t)

		require.NoError(t, f.licenses.Claim(key.Key, "user-1"))
		// 重复认领自己的密钥是幂等操作
		require.NoError(t, f.licenses.Claim(key.Key, "user-1"))
		// 他人认领失败
		assert.ErrorIs(t, f.licenses.Claim(key.Key, "user-2"), storage.ErrKeyAlreadyClaimed)
	})

	t.Run("认领后出现在用户列表", func(t *testing.T) {
		f := newLicenseFixture(t, domain.DurationDays, 30, 3)
		key := f.issueKey(t)
		require.NoError(t, f.licenses.Claim(key.Key, "user-1"))

		summaries, err := f.licenses.ListForUser("user-1")
		require.NoError(t, err)
		require.Len(t, summaries, 1)
		assert.Equal(t, key.Key, summaries[0].Key)
	})
}

func TestRevoke(t *testing.T) {
	t.Run("吊销立即生效且幂等", func(t *testing.T) {
		f := newLicenseFixture(t, domain.DurationDays, 30, 3)
		key := f.issueKey(t)

		require.NoError(t, f.licenses.Revoke(key.ID))
		require.NoError(t, f.licenses.Revoke(key.ID))

		record, err := f.store.GetLicenseKeyByID(key.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.KeyStatusRevoked, record.Status)
		assert.NotNil(t, record.RevokedAt)
	})

	t.Run("吊销不存在的密钥失败", func(t *testing.T) {
		f := newLicenseFixture(t, domain.DurationDays, 30, 3)
		assert.ErrorIs(t, f.licenses.Revoke("no-such-id"), storage.ErrKeyNotFound)
	})
}

func TestSweepExpired(t *testing.T) {
	f := newLicenseFixture(t, domain.DurationDays, 30, 3)
	expired := f.issueKey(t)

	f.clock.Advance(31 * 24 * time.Hour)
	fresh := f.issueKey(t)

	count, err := f.licenses.SweepExpired()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	expiredRecord, err := f.store.GetLicenseKeyByID(expired.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.KeyStatusExpired, expiredRecord.Status)

	freshRecord, err := f.store.GetLicenseKeyByID(fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.KeyStatusActive, freshRecord.Status)
}

func TestExpiryBoundary(t *testing.T) {
	// 惰性判定与后台扫描遵循同一约定：到期瞬间仍可用，之后才过期
	f := newLicenseFixture(t, domain.DurationDays, 30, 3)
	key := f.issueKey(t)
	require.NotNil(t, key.ExpiresAt)

	f.clock.Advance(30 * 24 * time.Hour)

	summary, err := f.licenses.Check(key.Key)
	require.NoError(t, err)
	assert.Equal(t, domain.KeyStatusActive, summary.Status)

	count, err := f.licenses.SweepExpired()
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	f.clock.Advance(time.Second)

	summary, err = f.licenses.Check(key.Key)
	require.NoError(t, err)
	assert.Equal(t, domain.KeyStatusExpired, summary.Status)

	count, err = f.licenses.SweepExpired()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
