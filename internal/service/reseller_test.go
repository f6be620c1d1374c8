package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"licensegate/backend/internal/domain"
	"licensegate/backend/internal/keycodec"
	"licensegate/backend/internal/storage"
	"licensegate/backend/internal/storage/memory"
)

type resellerFixture struct {
	store     *memory.Store
	plans     *PlanService
	resellers *ResellerService
	plan      *domain.Plan
}

func newResellerFixture(t *testing.T) *resellerFixture {
	t.Helper()

	store := memory.NewStore()
	plans := NewPlanService(store)
	resellers := NewResellerService(store, plans, NopEvents(), zap.NewNop(), 100)

	plan, err := plans.Create(CreatePlanInput{
		Name:          "经销商套餐",
		DurationType:  domain.DurationMonths,
		DurationValue: 12,
		MaxDevices:    5,
	})
	require.NoError(t, err)

	return &resellerFixture{
		store:     store,
		plans:     plans,
		resellers: resellers,
		plan:      plan,
	}
}

// newApprovedReseller 创建并审批通过一个经销商，返回实体和明文密钥
func (f *resellerFixture) newApprovedReseller(t *testing.T, quota int) (*domain.Reseller, string) {
	t.Helper()

	result, err := f.resellers.Create(CreateResellerInput{
		BusinessName: "测试经销商",
		ContactEmail: "partner@example.com",
		Quota:        quota,
	})
	require.NoError(t, err)

	reseller, err := f.resellers.Approve(result.Reseller.ID)
	require.NoError(t, err)
	return reseller, result.APIKey
}

func TestCreateReseller(t *testing.T) {
	t.Run("创建成功且明文密钥只返回一次", func(t *testing.T) {
		f := newResellerFixture(t)

		result, err := f.resellers.Create(CreateResellerInput{
			BusinessName: "测试经销商",
			Quota:        50,
		})

		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(result.APIKey, "lgr_"))
		assert.Equal(t, domain.ResellerStatusPending, result.Reseller.Status)
		assert.Equal(t, 50, result.Reseller.Quota)
		// 实体中只有哈希和前缀，没有明文
		assert.NotContains(t, result.Reseller.APIKeyHash, result.APIKey)
		assert.True(t, strings.HasPrefix(result.APIKey, result.Reseller.KeyPrefix))
	})

	t.Run("配额缺省使用系统默认值", func(t *testing.T) {
		f := newResellerFixture(t)

		result, err := f.resellers.Create(CreateResellerInput{BusinessName: "测试经销商"})
		require.NoError(t, err)
		assert.Equal(t, 100, result.Reseller.Quota)
	})

	t.Run("缺少名称失败", func(t *testing.T) {
		f := newResellerFixture(t)

		_, err := f.resellers.Create(CreateResellerInput{})
		assert.ErrorIs(t, err, ErrMissingParams)
	})
}

func TestAuthenticateReseller(t *testing.T) {
	t.Run("审批通过的经销商认证成功", func(t *testing.T) {
		f := newResellerFixture(t)
		reseller, apiKey := f.newApprovedReseller(t, 10)

		authed, err := f.resellers.Authenticate(apiKey)
		require.NoError(t, err)
		assert.Equal(t, reseller.ID, authed.ID)
	})

	t.Run("待审核的经销商认证失败", func(t *testing.T) {
		f := newResellerFixture(t)
		result, err := f.resellers.Create(CreateResellerInput{BusinessName: "测试经销商"})
		require.NoError(t, err)

		_, err = f.resellers.Authenticate(result.APIKey)
		assert.ErrorIs(t, err, ErrInvalidAPIKey)
	})

	t.Run("已停用的经销商认证失败", func(t *testing.T) {
		f := newResellerFixture(t)
		reseller, apiKey := f.newApprovedReseller(t, 10)
		_, err := f.resellers.Suspend(reseller.ID)
		require.NoError(t, err)

		_, err = f.resellers.Authenticate(apiKey)
		assert.ErrorIs(t, err, ErrResellerSuspended)
	})

	t.Run("错误密钥认证失败", func(t *testing.T) {
		f := newResellerFixture(t)
		f.newApprovedReseller(t, 10)

		_, err := f.resellers.Authenticate("lgr_deadbeef")
		assert.ErrorIs(t, err, ErrInvalidAPIKey)

		_, err = f.resellers.Authenticate("")
		assert.ErrorIs(t, err, ErrInvalidAPIKey)
	})
}

func TestResellerIssueKey(t *testing.T) {
	t.Run("签发成功并消耗配额", func(t *testing.T) {
		f := newResellerFixture(t)
		reseller, _ := f.newApprovedReseller(t, 10)

		key, err := f.resellers.IssueKey(reseller.ID, f.plan.ID)

		require.NoError(t, err)
		assert.True(t, keycodec.IsValidFormat(key.Key))
		require.NotNil(t, key.IssuedByResellerID)
		assert.Equal(t, reseller.ID, *key.IssuedByResellerID)
		assert.Nil(t, key.OwnerUserID) // 经销商签发的密钥未认领

		stats, err := f.resellers.Stats(reseller.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.QuotaUsed)
		assert.Equal(t, 9, stats.Remaining)
		assert.Equal(t, 1, stats.Issued)
	})

	t.Run("配额耗尽失败", func(t *testing.T) {
		f := newResellerFixture(t)
		reseller, _ := f.newApprovedReseller(t, 2)

		_, err := f.resellers.IssueKey(reseller.ID, f.plan.ID)
		require.NoError(t, err)
		_, err = f.resellers.IssueKey(reseller.ID, f.plan.ID)
		require.NoError(t, err)

		_, err = f.resellers.IssueKey(reseller.ID, f.plan.ID)
		assert.ErrorIs(t, err, storage.ErrQuotaExceeded)

		// 失败的签发不消耗配额
		stats, err := f.resellers.Stats(reseller.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, stats.QuotaUsed)
	})

	t.Run("未审批的经销商不能签发", func(t *testing.T) {
		f := newResellerFixture(t)
		result, err := f.resellers.Create(CreateResellerInput{BusinessName: "测试经销商"})
		require.NoError(t, err)

		_, err = f.resellers.IssueKey(result.Reseller.ID, f.plan.ID)
		assert.ErrorIs(t, err, ErrInvalidAPIKey)
	})

	t.Run("下架套餐不能签发", func(t *testing.T) {
		f := newResellerFixture(t)
		reseller, _ := f.newApprovedReseller(t, 10)
		_, err := f.plans.SetActive(f.plan.ID, false)
		require.NoError(t, err)

		_, err = f.resellers.IssueKey(reseller.ID, f.plan.ID)
		assert.ErrorIs(t, err, ErrPlanInactive)
	})
}

func TestSetQuota(t *testing.T) {
	t.Run("上调配额恢复签发能力", func(t *testing.T) {
		f := newResellerFixture(t)
		reseller, _ := f.newApprovedReseller(t, 1)

		_, err := f.resellers.IssueKey(reseller.ID, f.plan.ID)
		require.NoError(t, err)
		_, err = f.resellers.IssueKey(reseller.ID, f.plan.ID)
		assert.ErrorIs(t, err, storage.ErrQuotaExceeded)

		_, err = f.resellers.SetQuota(reseller.ID, 5)
		require.NoError(t, err)

		_, err = f.resellers.IssueKey(reseller.ID, f.plan.ID)
		assert.NoError(t, err)
	})

	t.Run("配额允许低于已用量", func(t *testing.T) {
		f := newResellerFixture(t)
		reseller, _ := f.newApprovedReseller(t, 10)
		_, err := f.resellers.IssueKey(reseller.ID, f.plan.ID)
		require.NoError(t, err)

		updated, err := f.resellers.SetQuota(reseller.ID, 0)
		require.NoError(t, err)
		assert.Equal(t, 0, updated.QuotaRemaining())

		_, err = f.resellers.IssueKey(reseller.ID, f.plan.ID)
		assert.ErrorIs(t, err, storage.ErrQuotaExceeded)
	})

	t.Run("负数配额失败", func(t *testing.T) {
		f := newResellerFixture(t)
		reseller, _ := f.newApprovedReseller(t, 10)

		_, err := f.resellers.SetQuota(reseller.ID, -1)
		assert.Error(t, err)
	})
}
