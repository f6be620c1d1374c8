package httptransport

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"licensegate/backend/internal/monitoring"
	"licensegate/backend/internal/service"
	"licensegate/backend/internal/storage"
)

// ResellerHandler 处理经销商 API 请求
//
// 经销商身份由 ResellerAuth 中间件写入上下文，这里只取 ID，
// 配额判定交给业务层在签发事务内完成。
type ResellerHandler struct {
	resellers *service.ResellerService
	admin     *service.AdminService
	metrics   *monitoring.Metrics
	log       *zap.Logger
}

// NewResellerHandler 创建经销商处理器
func NewResellerHandler(resellers *service.ResellerService, admin *service.AdminService, metrics *monitoring.Metrics, log *zap.Logger) *ResellerHandler {
	return &ResellerHandler{
		resellers: resellers,
		admin:     admin,
		metrics:   metrics,
		log:       log,
	}
}

type resellerIssueRequest struct {
	PlanID string `json:"planId" binding:"required"`
}

// resellerIssueResponse 签发结果
//
// error 字段为机器可读错误码，便于经销商系统对接。
type resellerIssueResponse struct {
	Success   bool       `json:"success"`
	Key       string     `json:"key,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// IssueKey 经销商签发密钥
// @Summary 签发授权密钥
// @Description 消耗一个配额签发新密钥；配额检查与签发在同一事务内原子完成
// @Tags 经销商
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param request body resellerIssueRequest true "签发参数"
// @Success 201 {object} resellerIssueResponse "签发成功"
// @Failure 400 {object} resellerIssueResponse "参数错误或套餐不可用"
// @Failure 403 {object} resellerIssueResponse "配额耗尽"
// @Router /v1/reseller/keys [post]
func (h *ResellerHandler) IssueKey(c *gin.Context) {
	resellerID := c.GetString("resellerID")

	var req resellerIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, resellerIssueResponse{
			Success: false,
			Error:   "MISSING_PARAMS",
		})
		return
	}

	key, err := h.resellers.IssueKey(resellerID, req.PlanID)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrQuotaExceeded):
			h.metrics.RecordResellerQuotaDenied()
			c.JSON(http.StatusForbidden, resellerIssueResponse{
				Success: false,
				Error:   "QUOTA_EXCEEDED",
			})
		case errors.Is(err, service.ErrPlanNotFound), errors.Is(err, service.ErrPlanInactive):
			c.JSON(http.StatusBadRequest, resellerIssueResponse{
				Success: false,
				Error:   "PLAN_UNAVAILABLE",
			})
		case errors.Is(err, service.ErrInvalidAPIKey):
			c.JSON(http.StatusForbidden, resellerIssueResponse{
				Success: false,
				Error:   "INVALID_API_KEY",
			})
		default:
			h.log.Error("reseller key issue failed",
				zap.String("reseller_id", resellerID),
				zap.Error(err),
			)
			c.JSON(http.StatusInternalServerError, resellerIssueResponse{
				Success: false,
				Error:   "SERVER_ERROR",
			})
		}
		return
	}

	h.metrics.RecordKeyIssued("reseller")
	h.metrics.RecordResellerKeyIssued(resellerID)

	c.JSON(http.StatusCreated, resellerIssueResponse{
		Success:   true,
		Key:       key.Key,
		ExpiresAt: key.ExpiresAt,
	})
}

// ListKeys 列出经销商签发的密钥
// @Summary 获取已签发密钥列表
// @Description 返回当前经销商签发的全部密钥，按创建时间倒序
// @Tags 经销商
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} Response "密钥列表"
// @Router /v1/reseller/keys [get]
func (h *ResellerHandler) ListKeys(c *gin.Context) {
	resellerID := c.GetString("resellerID")

	keys, err := h.admin.KeysForReseller(resellerID)
	if err != nil {
		h.log.Error("failed to list reseller keys",
			zap.String("reseller_id", resellerID),
			zap.Error(err),
		)
		InternalError(c, MsgKeyListFailed)
		return
	}

	Success(c, gin.H{
		"items": keys,
		"count": len(keys),
	})
}

// Stats 经销商配额统计
// @Summary 获取配额统计
// @Description 返回已签发数量、配额总数、已用配额和剩余配额
// @Tags 经销商
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} Response{data=domain.ResellerStats} "配额统计"
// @Router /v1/reseller/stats [get]
func (h *ResellerHandler) Stats(c *gin.Context) {
	resellerID := c.GetString("resellerID")

	stats, err := h.resellers.Stats(resellerID)
	if err != nil {
		h.log.Error("failed to get reseller stats",
			zap.String("reseller_id", resellerID),
			zap.Error(err),
		)
		InternalError(c, MsgInternalError)
		return
	}

	Success(c, stats)
}
