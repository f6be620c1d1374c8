package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"licensegate/backend/internal/auth"
	"licensegate/backend/internal/domain"
)

// AdminAuth 管理员权限中间件
//
// 必须排在 JWTAuth.RequireAuth 之后，依赖上下文中的 userID。
// 角色以数据库中的当前值为准，不信任令牌中的角色声明。
type AdminAuth struct {
	authService *auth.AuthService
}

// NewAdminAuth 创建管理员权限中间件
func NewAdminAuth(authService *auth.AuthService) *AdminAuth {
	return &AdminAuth{
		authService: authService,
	}
}

// RequireAdmin 要求管理员权限（Admin或Super）
func (a *AdminAuth) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := a.loadUser(c)
		if !ok {
			return
		}

		if !user.IsAdmin() {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			c.Abort()
			return
		}

		c.Set("user", user)
		c.Set("role", user.Role)
		c.Next()
	}
}

// RequireSuper 要求超级管理员权限
func (a *AdminAuth) RequireSuper() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := a.loadUser(c)
		if !ok {
			return
		}

		if !user.IsSuper() {
			c.JSON(http.StatusForbidden, gin.H{"error": "super admin access required"})
			c.Abort()
			return
		}

		c.Set("user", user)
		c.Set("role", user.Role)
		c.Next()
	}
}

// RequireRole 要求特定角色
func (a *AdminAuth) RequireRole(allowedRoles ...domain.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := a.loadUser(c)
		if !ok {
			return
		}

		allowed := false
		for _, role := range allowedRoles {
			if user.Role == role {
				allowed = true
				break
			}
		}

		if !allowed {
			c.JSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
			c.Abort()
			return
		}

		c.Set("user", user)
		c.Set("role", user.Role)
		c.Next()
	}
}

// loadUser 从上下文取 userID 并加载用户，失败时写响应并中止
func (a *AdminAuth) loadUser(c *gin.Context) (*domain.User, bool) {
	userIDVal, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		c.Abort()
		return nil, false
	}

	userID, ok := userIDVal.(string)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user context"})
		c.Abort()
		return nil, false
	}

	user, err := a.authService.GetUserByID(userID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		c.Abort()
		return nil, false
	}

	return user, true
}
