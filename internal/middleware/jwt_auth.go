package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"licensegate/backend/internal/auth"
	"licensegate/backend/internal/storage"
)

// JWTAuth JWT认证中间件
//
// 验证通过后检查 jti 是否在黑名单（登出即拉黑），再把用户
// 信息写入请求上下文。
type JWTAuth struct {
	jwtManager *auth.JWTManager
	blacklist  storage.BlacklistRepository
	log        *zap.Logger
}

// NewJWTAuth 创建JWT认证中间件
func NewJWTAuth(jwtManager *auth.JWTManager, blacklist storage.BlacklistRepository, log *zap.Logger) *JWTAuth {
	return &JWTAuth{
		jwtManager: jwtManager,
		blacklist:  blacklist,
		log:        log,
	}
}

// RequireAuth 要求JWT认证
func (ja *JWTAuth) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ja.extractToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "authentication required",
			})
			c.Abort()
			return
		}

		claims, err := ja.jwtManager.ValidateToken(token)
		if err != nil {
			ja.log.Warn("invalid token",
				zap.String("error", err.Error()),
				zap.String("ip", c.ClientIP()),
			)
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or expired token",
			})
			c.Abort()
			return
		}

		// 已登出的令牌拒绝访问
		blacklisted, err := ja.blacklist.IsBlacklisted(claims.JTI)
		if err != nil {
			ja.log.Error("blacklist check failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "internal server error",
			})
			c.Abort()
			return
		}
		if blacklisted {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "token has been revoked",
			})
			c.Abort()
			return
		}

		c.Set("userID", claims.UserID)
		c.Set("role", claims.Role)
		c.Set("jti", claims.JTI)

		c.Next()
	}
}

// OptionalAuth 可选的JWT认证
//
// 令牌缺失或无效时放行为匿名请求，不写入用户上下文。
func (ja *JWTAuth) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ja.extractToken(c)
		if token == "" {
			c.Next()
			return
		}

		claims, err := ja.jwtManager.ValidateToken(token)
		if err == nil {
			if blacklisted, berr := ja.blacklist.IsBlacklisted(claims.JTI); berr == nil && !blacklisted {
				c.Set("userID", claims.UserID)
				c.Set("role", claims.Role)
				c.Set("jti", claims.JTI)
				c.Set("authenticated", true)
			}
		}

		c.Next()
	}
}

// extractToken 从请求中提取JWT token
func (ja *JWTAuth) extractToken(c *gin.Context) string {
	// 1. 从 Authorization header 提取
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
	}

	// 2. 从 cookie 提取
	token, err := c.Cookie("access_token")
	if err == nil && token != "" {
		return token
	}

	return ""
}
