package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licensegate/backend/internal/config"
)

func newTestJWTManager() *JWTManager {
	return NewJWTManager(&config.JWTConfig{
		Secret:        "test-secret-key-32-characters-long-minimum",
		Issuer:        "licensegate-test",
		AccessExpiry:  15 * time.Minute,
		RefreshExpiry: 7 * 24 * time.Hour,
	})
}

func TestJWTManager(t *testing.T) {
	t.Run("生成并验证令牌", func(t *testing.T) {
		manager := newTestJWTManager()

		tokens, err := manager.GenerateTokens("user-123", "admin")
		require.NoError(t, err)
		assert.NotEmpty(t, tokens.AccessToken)
		assert.NotEmpty(t, tokens.RefreshToken)
		assert.Equal(t, "Bearer", tokens.TokenType)
		assert.Equal(t, int64(900), tokens.ExpiresIn)

		claims, err := manager.ValidateToken(tokens.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, "user-123", claims.UserID)
		assert.Equal(t, "admin", claims.Role)
		assert.NotEmpty(t, claims.JTI)
	})

	t.Run("访问令牌与刷新令牌的 jti 不同", func(t *testing.T) {
		manager := newTestJWTManager()

		tokens, err := manager.GenerateTokens("user-123", "user")
		require.NoError(t, err)

		access, err := manager.ValidateToken(tokens.AccessToken)
		require.NoError(t, err)
		refresh, err := manager.ValidateToken(tokens.RefreshToken)
		require.NoError(t, err)

		assert.NotEqual(t, access.JTI, refresh.JTI)
	})

	t.Run("篡改的令牌验证失败", func(t *testing.T) {
		manager := newTestJWTManager()

		tokens, err := manager.GenerateTokens("user-123", "user")
		require.NoError(t, err)

		_, err = manager.ValidateToken(tokens.AccessToken + "tampered")
		assert.Error(t, err)
	})

	t.Run("错误密钥签发的令牌验证失败", func(t *testing.T) {
		manager := newTestJWTManager()
		other := NewJWTManager(&config.JWTConfig{
			Secret:        "another-secret-key-32-characters-long-xx",
			Issuer:        "licensegate-test",
			AccessExpiry:  15 * time.Minute,
			RefreshExpiry: 7 * 24 * time.Hour,
		})

		tokens, err := other.GenerateTokens("user-123", "user")
		require.NoError(t, err)

		_, err = manager.ValidateToken(tokens.AccessToken)
		assert.Error(t, err)
	})

	t.Run("刷新令牌换发新令牌对", func(t *testing.T) {
		manager := newTestJWTManager()

		tokens, err := manager.GenerateTokens("user-123", "user")
		require.NoError(t, err)

		refreshed, err := manager.RefreshToken(tokens.RefreshToken)
		require.NoError(t, err)
		assert.NotEmpty(t, refreshed.AccessToken)

		claims, err := manager.ValidateToken(refreshed.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, "user-123", claims.UserID)
		assert.Equal(t, "user", claims.Role)
	})
}
