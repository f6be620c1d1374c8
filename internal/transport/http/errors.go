package httptransport

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"licensegate/backend/internal/domain"
	"licensegate/backend/internal/service"
	"licensegate/backend/internal/storage"
)

// clientResponse 客户端校验接口的响应信封
//
// 面向打包进第三方软件的激活 SDK：valid 为快速判定位，
// error 只出现 domain.ErrorCode 中定义的稳定取值。
type clientResponse struct {
	Valid bool             `json:"valid"`
	Data  interface{}      `json:"data,omitempty"`
	Error domain.ErrorCode `json:"error,omitempty"`
}

// clientOK 客户端接口成功响应
func clientOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, clientResponse{
		Valid: true,
		Data:  data,
	})
}

// clientFail 客户端接口失败响应
func clientFail(c *gin.Context, status int, code domain.ErrorCode) {
	c.JSON(status, clientResponse{
		Valid: false,
		Error: code,
	})
}

// classifyClientError 将业务错误归入对外错误码
//
// 吊销与过期对客户端统一呈现为 KEY_EXPIRED，避免把管理
// 侧的处置动作暴露给终端软件；未匹配的错误一律 SERVER_ERROR。
func classifyClientError(err error) (int, domain.ErrorCode) {
	switch {
	case errors.Is(err, service.ErrMissingParams):
		return http.StatusBadRequest, domain.CodeMissingParams
	case errors.Is(err, service.ErrInvalidKeyFormat),
		errors.Is(err, domain.ErrHWIDInvalid),
		errors.Is(err, domain.ErrDeviceNameTooLong):
		return http.StatusBadRequest, domain.CodeInvalidFormat
	case errors.Is(err, storage.ErrKeyNotFound):
		return http.StatusNotFound, domain.CodeKeyNotFound
	case errors.Is(err, service.ErrKeyExpired),
		errors.Is(err, service.ErrKeyRevoked):
		return http.StatusForbidden, domain.CodeKeyExpired
	case errors.Is(err, storage.ErrDeviceLimitReached):
		return http.StatusConflict, domain.CodeDeviceLimitReached
	case errors.Is(err, service.ErrNotActivated):
		return http.StatusNotFound, domain.CodeNotActivated
	case errors.Is(err, storage.ErrQuotaExceeded):
		return http.StatusForbidden, domain.CodeQuotaExceeded
	case errors.Is(err, service.ErrInvalidAPIKey):
		return http.StatusUnauthorized, domain.CodeInvalidAPIKey
	default:
		return http.StatusInternalServerError, domain.CodeServerError
	}
}

// 管理接口的通用错误消息
const (
	// 请求相关
	MsgInvalidRequest = "请求参数格式错误"

	// 认证相关
	MsgAuthRequired       = "需要登录认证"
	MsgInvalidCredentials = "用户名或密码错误"
	MsgTokenExpired       = "登录已过期，请重新登录"
	MsgTokenInvalid       = "无效的访问令牌"

	// 用户相关
	MsgUserNotFound  = "用户不存在"
	MsgUserGetFailed = "获取用户信息失败"

	// 套餐相关
	MsgPlanNotFound     = "套餐不存在"
	MsgPlanInactive     = "套餐已下架"
	MsgPlanCreateFailed = "创建套餐失败"
	MsgPlanListFailed   = "获取套餐列表失败"

	// 密钥相关
	MsgKeyNotFound       = "授权密钥不存在"
	MsgKeyIssueFailed    = "签发密钥失败"
	MsgKeyRevokeFailed   = "吊销密钥失败"
	MsgKeyListFailed     = "获取密钥列表失败"
	MsgKeyClaimed        = "该密钥已被其他用户认领"
	MsgLicenseListFailed = "获取授权列表失败"

	// 经销商相关
	MsgResellerNotFound     = "经销商不存在"
	MsgResellerCreateFailed = "创建经销商失败"
	MsgResellerListFailed   = "获取经销商列表失败"
	MsgResellerUpdateFailed = "更新经销商失败"
	MsgQuotaInvalid         = "配额必须为非负整数"

	// 统计相关
	MsgStatisticsGetFailed = "获取统计数据失败"

	// 服务器错误
	MsgInternalError = "服务器内部错误，请稍后重试"
)
