package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licensegate/backend/internal/domain"
	"licensegate/backend/internal/storage/memory"
)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	return NewService(store), store
}

func TestRegister(t *testing.T) {
	t.Run("注册成功", func(t *testing.T) {
		svc, _ := newTestService(t)

		user, err := svc.Register(RegisterInput{
			Email:    "alice@example.com",
			Password: "password123",
			Username: "alice",
		})

		require.NoError(t, err)
		assert.NotEmpty(t, user.ID)
		assert.Equal(t, "alice@example.com", user.Email)
		assert.Equal(t, domain.RoleUser, user.Role)
		assert.True(t, user.IsActive)
		// 密码不以明文存储
		assert.NotEqual(t, "password123", user.PasswordHash)
		assert.True(t, CheckPassword("password123", user.PasswordHash))
	})

	t.Run("邮箱转小写", func(t *testing.T) {
		svc, _ := newTestService(t)

		user, err := svc.Register(RegisterInput{
			Email:    "Bob@Example.COM",
			Password: "password123",
		})

		require.NoError(t, err)
		assert.Equal(t, "bob@example.com", user.Email)
	})

	t.Run("无效邮箱格式失败", func(t *testing.T) {
		svc, _ := newTestService(t)

		_, err := svc.Register(RegisterInput{
			Email:    "not-an-email",
			Password: "password123",
		})

		assert.ErrorIs(t, err, ErrInvalidEmail)
	})

	t.Run("密码太短失败", func(t *testing.T) {
		svc, _ := newTestService(t)

		_, err := svc.Register(RegisterInput{
			Email:    "alice@example.com",
			Password: "short",
		})

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "at least 8 characters")
	})

	t.Run("重复邮箱失败", func(t *testing.T) {
		svc, _ := newTestService(t)

		_, err := svc.Register(RegisterInput{Email: "alice@example.com", Password: "password123"})
		require.NoError(t, err)

		_, err = svc.Register(RegisterInput{Email: "alice@example.com", Password: "password456"})
		assert.ErrorIs(t, err, ErrEmailExists)
	})

	t.Run("重复用户名失败", func(t *testing.T) {
		svc, _ := newTestService(t)

		_, err := svc.Register(RegisterInput{Email: "a@example.com", Password: "password123", Username: "dup"})
		require.NoError(t, err)

		_, err = svc.Register(RegisterInput{Email: "b@example.com", Password: "password123", Username: "dup"})
		assert.ErrorIs(t, err, ErrUsernameExists)
	})
}

func TestLogin(t *testing.T) {
	t.Run("邮箱登录成功", func(t *testing.T) {
		svc, _ := newTestService(t)
		registered, err := svc.Register(RegisterInput{
			Email:    "alice@example.com",
			Password: "password123",
			Username: "alice",
		})
		require.NoError(t, err)

		user, err := svc.Login(LoginInput{Identifier: "alice@example.com", Password: "password123"})

		require.NoError(t, err)
		assert.Equal(t, registered.ID, user.ID)
	})

	t.Run("用户名登录成功", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.Register(RegisterInput{
			Email:    "alice@example.com",
			Password: "password123",
			Username: "alice",
		})
		require.NoError(t, err)

		user, err := svc.Login(LoginInput{Identifier: "alice", Password: "password123"})

		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", user.Email)
	})

	t.Run("错误密码失败", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.Register(RegisterInput{Email: "alice@example.com", Password: "password123"})
		require.NoError(t, err)

		_, err = svc.Login(LoginInput{Identifier: "alice@example.com", Password: "wrong-password"})
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("不存在的用户失败", func(t *testing.T) {
		svc, _ := newTestService(t)

		_, err := svc.Login(LoginInput{Identifier: "ghost@example.com", Password: "password123"})
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("禁用用户失败", func(t *testing.T) {
		svc, store := newTestService(t)
		user, err := svc.Register(RegisterInput{Email: "alice@example.com", Password: "password123"})
		require.NoError(t, err)

		user.IsActive = false
		require.NoError(t, store.UpdateUser(user))

		_, err = svc.Login(LoginInput{Identifier: "alice@example.com", Password: "password123"})
		assert.ErrorIs(t, err, ErrUserInactive)
	})

	t.Run("登录刷新最后登录时间", func(t *testing.T) {
		svc, store := newTestService(t)
		registered, err := svc.Register(RegisterInput{Email: "alice@example.com", Password: "password123"})
		require.NoError(t, err)

		_, err = svc.Login(LoginInput{Identifier: "alice@example.com", Password: "password123"})
		require.NoError(t, err)

		user, err := store.GetUserByID(registered.ID)
		require.NoError(t, err)
		assert.NotNil(t, user.LastLoginAt)
	})
}

func TestChangePassword(t *testing.T) {
	t.Run("修改密码成功", func(t *testing.T) {
		svc, _ := newTestService(t)
		user, err := svc.Register(RegisterInput{Email: "alice@example.com", Password: "password123"})
		require.NoError(t, err)

		err = svc.ChangePassword(user.ID, "password123", "new-password-456")
		require.NoError(t, err)

		// 新密码生效，旧密码失效
		_, err = svc.Login(LoginInput{Identifier: "alice@example.com", Password: "new-password-456"})
		assert.NoError(t, err)
		_, err = svc.Login(LoginInput{Identifier: "alice@example.com", Password: "password123"})
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("旧密码错误失败", func(t *testing.T) {
		svc, _ := newTestService(t)
		user, err := svc.Register(RegisterInput{Email: "alice@example.com", Password: "password123"})
		require.NoError(t, err)

		err = svc.ChangePassword(user.ID, "wrong-old", "new-password-456")
		assert.Error(t, err)
	})

	t.Run("用户不存在失败", func(t *testing.T) {
		svc, _ := newTestService(t)
		err := svc.ChangePassword("no-such-user", "a", "b")
		assert.ErrorIs(t, err, ErrUserNotFound)
	})
}

func TestValidateEmail(t *testing.T) {
	assert.True(t, ValidateEmail("user@example.com"))
	assert.True(t, ValidateEmail("user.name+tag@sub.example.org"))
	assert.False(t, ValidateEmail("invalid"))
	assert.False(t, ValidateEmail("@example.com"))
	assert.False(t, ValidateEmail("user@"))
}
