package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"licensegate/backend/internal/domain"
	"licensegate/backend/internal/storage"
)

func newAdminFixture(t *testing.T) (*AdminService, *licenseFixture) {
	t.Helper()
	f := newLicenseFixture(t, domain.DurationDays, 30, 3)
	admin := NewAdminService(f.store, f.licenses, zap.NewNop())
	admin.now = f.clock.Now
	return admin, f
}

func TestAdminStatistics(t *testing.T) {
	admin, f := newAdminFixture(t)

	key := f.issueKey(t)
	f.issueKey(t)
	_, err := f.licenses.Activate(ActivateInput{Key: key.Key, HWID: "machine-001"})
	require.NoError(t, err)

	stats, err := admin.Statistics()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalKeys)
	assert.Equal(t, 2, stats.ActiveKeys)
	assert.Equal(t, 1, stats.ActiveActivations)

	// 统计的过期判定必须跟随注入时钟，而不是真实墙钟
	f.clock.Advance(31 * 24 * time.Hour)

	stats, err = admin.Statistics()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.ActiveKeys)
	assert.Equal(t, 2, stats.ExpiredKeys)
}

func TestAdminListKeys(t *testing.T) {
	t.Run("分页列出密钥", func(t *testing.T) {
		admin, f := newAdminFixture(t)
		for i := 0; i < 5; i++ {
			f.issueKey(t)
		}

		page, err := admin.ListKeys(1, 2, nil)
		require.NoError(t, err)
		assert.Equal(t, 5, page.Total)
		assert.Len(t, page.Keys, 2)

		last, err := admin.ListKeys(3, 2, nil)
		require.NoError(t, err)
		assert.Len(t, last.Keys, 1)
	})

	t.Run("按状态过滤", func(t *testing.T) {
		admin, f := newAdminFixture(t)
		key := f.issueKey(t)
		f.issueKey(t)
		require.NoError(t, f.licenses.Revoke(key.ID))

		revoked := domain.KeyStatusRevoked
		page, err := admin.ListKeys(1, 20, &revoked)
		require.NoError(t, err)
		assert.Equal(t, 1, page.Total)
	})

	t.Run("非法分页参数回落默认值", func(t *testing.T) {
		admin, f := newAdminFixture(t)
		f.issueKey(t)

		page, err := admin.ListKeys(0, -5, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, page.Page)
		assert.Equal(t, 20, page.PageSize)
	})
}

func TestAdminGetKey(t *testing.T) {
	admin, f := newAdminFixture(t)
	key := f.issueKey(t)
	_, err := f.licenses.Activate(ActivateInput{Key: key.Key, HWID: "machine-001"})
	require.NoError(t, err)
	require.NoError(t, f.licenses.Deactivate(key.Key, "machine-001"))

	detail, err := admin.GetKey(key.ID)
	require.NoError(t, err)
	assert.Equal(t, key.Key, detail.Key.Key)
	// 解绑记录保留审计
	require.Len(t, detail.Activations, 1)
	assert.Equal(t, domain.ActivationStatusDeactivated, detail.Activations[0].Status)

	_, err = admin.GetKey("no-such-id")
	assert.ErrorIs(t, err, storage.ErrKeyNotFound)
}
