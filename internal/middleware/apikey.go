package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"licensegate/backend/internal/service"
)

// ResellerAuth 经销商 API 密钥认证中间件
//
// 密钥通过 X-API-Key 头或 Authorization: Bearer 传递。
// 认证结果只存经销商 ID，签发时再按 ID 重新加载，避免
// 中间件与业务层之间传递过期的配额快照。
type ResellerAuth struct {
	resellers *service.ResellerService
	log       *zap.Logger
}

// NewResellerAuth 创建经销商认证中间件
func NewResellerAuth(resellers *service.ResellerService, log *zap.Logger) *ResellerAuth {
	return &ResellerAuth{
		resellers: resellers,
		log:       log,
	}
}

// RequireAPIKey 要求有效的经销商 API 密钥
//
// 失败响应只使用机器可读错误码。密钥缺失、不存在、待审批、已停用
// 一律返回同一个 401 INVALID_API_KEY，不向探测方泄漏账户状态。
func (ra *ResellerAuth) RequireAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := ra.extractAPIKey(c)
		if apiKey == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "INVALID_API_KEY",
			})
			c.Abort()
			return
		}

		reseller, err := ra.resellers.Authenticate(apiKey)
		if err != nil {
			if errors.Is(err, service.ErrInvalidAPIKey) || errors.Is(err, service.ErrResellerSuspended) {
				ra.log.Warn("reseller authentication failed",
					zap.String("ip", c.ClientIP()),
					zap.Error(err),
				)
				c.JSON(http.StatusUnauthorized, gin.H{
					"success": false,
					"error":   "INVALID_API_KEY",
				})
				c.Abort()
				return
			}

			ra.log.Error("reseller authentication error",
				zap.String("ip", c.ClientIP()),
				zap.Error(err),
			)
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error":   "SERVER_ERROR",
			})
			c.Abort()
			return
		}

		c.Set("resellerID", reseller.ID)
		c.Set("resellerName", reseller.BusinessName)

		c.Next()
	}
}

// extractAPIKey 从请求中提取 API 密钥
func (ra *ResellerAuth) extractAPIKey(c *gin.Context) string {
	if key := c.GetHeader("X-API-Key"); key != "" {
		return key
	}

	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
	}

	return ""
}
