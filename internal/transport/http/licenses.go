package httptransport

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"licensegate/backend/internal/monitoring"
	"licensegate/backend/internal/service"
	"licensegate/backend/internal/storage"
)

// LicenseHandler 处理已登录用户的授权管理请求
type LicenseHandler struct {
	licenses *service.LicenseService
	metrics  *monitoring.Metrics
	log      *zap.Logger
}

// NewLicenseHandler 创建用户授权处理器
func NewLicenseHandler(licenses *service.LicenseService, metrics *monitoring.Metrics, log *zap.Logger) *LicenseHandler {
	return &LicenseHandler{
		licenses: licenses,
		metrics:  metrics,
		log:      log,
	}
}

type claimRequest struct {
	Key string `json:"key" binding:"required"`
}

type licenseListResponse struct {
	Items interface{} `json:"items"`
	Count int         `json:"count"`
}

// Claim 认领密钥
// @Summary 认领授权密钥
// @Description 将未绑定的密钥绑定到当前账户；重复认领自己的密钥是幂等操作
// @Tags 授权
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body claimRequest true "密钥"
// @Success 200 {object} Response "认领成功"
// @Failure 400 {object} Response "密钥格式错误"
// @Failure 404 {object} Response "密钥不存在"
// @Failure 409 {object} Response "密钥已被其他用户认领"
// @Router /v1/licenses/claim [post]
func (h *LicenseHandler) Claim(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		Unauthorized(c, MsgAuthRequired)
		return
	}

	var req claimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	if err := h.licenses.Claim(req.Key, userID.(string)); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidKeyFormat), errors.Is(err, service.ErrMissingParams):
			BadRequest(c, MsgInvalidRequest)
		case errors.Is(err, storage.ErrKeyNotFound):
			NotFound(c, MsgKeyNotFound)
		case errors.Is(err, storage.ErrKeyAlreadyClaimed):
			Conflict(c, MsgKeyClaimed)
		default:
			h.log.Error("failed to claim key", zap.Error(err))
			InternalError(c, MsgInternalError)
		}
		return
	}

	h.metrics.RecordKeyClaimed()
	Success(c, nil)
}

// List 列出当前用户的授权
// @Summary 获取我的授权列表
// @Description 返回当前用户名下全部密钥的状态摘要，按创建时间倒序
// @Tags 授权
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=licenseListResponse} "授权列表"
// @Failure 401 {object} Response "未认证"
// @Router /v1/licenses [get]
func (h *LicenseHandler) List(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		Unauthorized(c, MsgAuthRequired)
		return
	}

	summaries, err := h.licenses.ListForUser(userID.(string))
	if err != nil {
		h.log.Error("failed to list licenses", zap.Error(err))
		InternalError(c, MsgLicenseListFailed)
		return
	}

	Success(c, licenseListResponse{
		Items: summaries,
		Count: len(summaries),
	})
}
