package httptransport

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"licensegate/backend/internal/domain"
	"licensegate/backend/internal/monitoring"
	"licensegate/backend/internal/service"
	"licensegate/backend/internal/storage"
)

// 单次批量签发的上限，防止一个请求长时间占用写路径
const maxBatchIssueCount = 100

// AdminHandler 处理管理后台的 HTTP 请求
type AdminHandler struct {
	admin     *service.AdminService
	licenses  *service.LicenseService
	plans     *service.PlanService
	resellers *service.ResellerService
	alerts    *monitoring.AlertManager
	health    *monitoring.HealthChecker
	metrics   *monitoring.Metrics
	log       *zap.Logger
}

// NewAdminHandler 创建管理处理器
func NewAdminHandler(
	admin *service.AdminService,
	licenses *service.LicenseService,
	plans *service.PlanService,
	resellers *service.ResellerService,
	alerts *monitoring.AlertManager,
	health *monitoring.HealthChecker,
	metrics *monitoring.Metrics,
	log *zap.Logger,
) *AdminHandler {
	return &AdminHandler{
		admin:     admin,
		licenses:  licenses,
		plans:     plans,
		resellers: resellers,
		alerts:    alerts,
		health:    health,
		metrics:   metrics,
		log:       log,
	}
}

// ========== 套餐管理 ==========

type createPlanRequest struct {
	Name          string `json:"name" binding:"required"`
	DurationType  string `json:"durationType" binding:"required"`
	DurationValue int    `json:"durationValue"`
	MaxDevices    int    `json:"maxDevices" binding:"required"`
}

type setPlanActiveRequest struct {
	IsActive bool `json:"isActive"`
}

// CreatePlan 创建套餐
// @Summary 创建授权套餐
// @Description 创建新套餐，时长策略支持 DAYS/MONTHS/LIFETIME
// @Tags 管理
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body createPlanRequest true "套餐参数"
// @Success 201 {object} Response{data=domain.Plan} "创建成功"
// @Failure 400 {object} Response "套餐参数无效"
// @Router /v1/admin/plans [post]
func (h *AdminHandler) CreatePlan(c *gin.Context) {
	var req createPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	plan, err := h.plans.Create(service.CreatePlanInput{
		Name:          req.Name,
		DurationType:  domain.DurationType(req.DurationType),
		DurationValue: req.DurationValue,
		MaxDevices:    req.MaxDevices,
	})
	if err != nil {
		if errors.Is(err, domain.ErrPlanInvalid) {
			BadRequest(c, "套餐参数无效")
			return
		}
		h.log.Error("failed to create plan", zap.Error(err))
		InternalError(c, MsgPlanCreateFailed)
		return
	}

	Created(c, plan)
}

// ListPlans 列出全部套餐
// @Summary 获取套餐列表
// @Tags 管理
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response "套餐列表"
// @Router /v1/admin/plans [get]
func (h *AdminHandler) ListPlans(c *gin.Context) {
	plans, err := h.plans.List()
	if err != nil {
		h.log.Error("failed to list plans", zap.Error(err))
		InternalError(c, MsgPlanListFailed)
		return
	}

	Success(c, gin.H{
		"items": plans,
		"count": len(plans),
	})
}

// SetPlanActive 上架/下架套餐
// @Summary 切换套餐上架状态
// @Description 下架只影响后续签发，已签发的密钥不受影响
// @Tags 管理
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "套餐ID"
// @Param request body setPlanActiveRequest true "状态"
// @Success 200 {object} Response{data=domain.Plan} "更新成功"
// @Failure 404 {object} Response "套餐不存在"
// @Router /v1/admin/plans/{id}/active [patch]
func (h *AdminHandler) SetPlanActive(c *gin.Context) {
	var req setPlanActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	plan, err := h.plans.SetActive(c.Param("id"), req.IsActive)
	if err != nil {
		if errors.Is(err, service.ErrPlanNotFound) {
			NotFound(c, MsgPlanNotFound)
			return
		}
		h.log.Error("failed to update plan", zap.Error(err))
		InternalError(c, MsgInternalError)
		return
	}

	Success(c, plan)
}

// ========== 密钥管理 ==========

type issueKeysRequest struct {
	PlanID      string  `json:"planId" binding:"required"`
	Count       int     `json:"count"`       // 默认 1
	OwnerUserID *string `json:"ownerUserId"` // 可选：直接绑定用户
}

// IssueKeys 批量签发密钥
// @Summary 签发授权密钥
// @Description 按套餐签发一个或多个密钥，可选直接绑定用户
// @Tags 管理
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body issueKeysRequest true "签发参数"
// @Success 201 {object} Response "签发的密钥列表"
// @Failure 400 {object} Response "套餐不可用或参数错误"
// @Router /v1/admin/keys [post]
func (h *AdminHandler) IssueKeys(c *gin.Context) {
	var req issueKeysRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	count := req.Count
	if count < 1 {
		count = 1
	}
	if count > maxBatchIssueCount {
		BadRequest(c, "单次最多签发 100 个密钥")
		return
	}

	keys := make([]domain.LicenseKey, 0, count)
	for i := 0; i < count; i++ {
		key, err := h.licenses.Issue(service.IssueKeyInput{
			PlanID:      req.PlanID,
			OwnerUserID: req.OwnerUserID,
		})
		if err != nil {
			switch {
			case errors.Is(err, service.ErrPlanNotFound):
				NotFound(c, MsgPlanNotFound)
			case errors.Is(err, service.ErrPlanInactive):
				BadRequest(c, MsgPlanInactive)
			default:
				h.log.Error("failed to issue key", zap.Error(err))
				InternalError(c, MsgKeyIssueFailed)
			}
			return
		}
		h.metrics.RecordKeyIssued("admin")
		keys = append(keys, *key)
	}

	Created(c, gin.H{
		"items": keys,
		"count": len(keys),
	})
}

// ListKeys 分页列出密钥
// @Summary 获取密钥列表
// @Description 分页列出全部密钥，可按状态过滤（ACTIVE/REVOKED/EXPIRED）
// @Tags 管理
// @Produce json
// @Security BearerAuth
// @Param page query int false "页码（默认1）"
// @Param pageSize query int false "每页数量（默认20，最大100）"
// @Param status query string false "状态过滤"
// @Success 200 {object} Response{data=service.KeyPage} "密钥分页"
// @Router /v1/admin/keys [get]
func (h *AdminHandler) ListKeys(c *gin.Context) {
	var query struct {
		Page     int    `form:"page"`
		PageSize int    `form:"pageSize"`
		Status   string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	var status *domain.KeyStatus
	if query.Status != "" {
		s := domain.KeyStatus(query.Status)
		status = &s
	}

	page, err := h.admin.ListKeys(query.Page, query.PageSize, status)
	if err != nil {
		h.log.Error("failed to list keys", zap.Error(err))
		InternalError(c, MsgKeyListFailed)
		return
	}

	Success(c, page)
}

// GetKey 获取密钥详情
// @Summary 获取密钥详情
// @Description 返回密钥及其全部激活记录（含已解绑的审计记录）
// @Tags 管理
// @Produce json
// @Security BearerAuth
// @Param id path string true "密钥ID"
// @Success 200 {object} Response{data=service.KeyDetail} "密钥详情"
// @Failure 404 {object} Response "密钥不存在"
// @Router /v1/admin/keys/{id} [get]
func (h *AdminHandler) GetKey(c *gin.Context) {
	detail, err := h.admin.GetKey(c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			NotFound(c, MsgKeyNotFound)
			return
		}
		h.log.Error("failed to get key", zap.Error(err))
		InternalError(c, MsgInternalError)
		return
	}

	Success(c, detail)
}

// RevokeKey 吊销密钥
// @Summary 吊销授权密钥
// @Description 吊销立即生效，已激活设备的下一次心跳即失败；重复吊销是幂等操作
// @Tags 管理
// @Produce json
// @Security BearerAuth
// @Param id path string true "密钥ID"
// @Success 200 {object} Response "吊销成功"
// @Failure 404 {object} Response "密钥不存在"
// @Router /v1/admin/keys/{id}/revoke [post]
func (h *AdminHandler) RevokeKey(c *gin.Context) {
	if err := h.licenses.Revoke(c.Param("id")); err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			NotFound(c, MsgKeyNotFound)
			return
		}
		h.log.Error("failed to revoke key", zap.Error(err))
		InternalError(c, MsgKeyRevokeFailed)
		return
	}

	h.metrics.RecordKeyRevoked()
	Success(c, nil)
}

// ReissueKey 重新签发密钥
// @Summary 换发授权密钥
// @Description 吊销旧密钥并按同一套餐为同一所有者签发新密钥，用于密钥泄漏后的换发
// @Tags 管理
// @Produce json
// @Security BearerAuth
// @Param id path string true "旧密钥ID"
// @Success 201 {object} Response{data=domain.LicenseKey} "新密钥"
// @Failure 404 {object} Response "密钥不存在"
// @Router /v1/admin/keys/{id}/reissue [post]
func (h *AdminHandler) ReissueKey(c *gin.Context) {
	keyID := c.Param("id")

	detail, err := h.admin.GetKey(keyID)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			NotFound(c, MsgKeyNotFound)
			return
		}
		h.log.Error("failed to load key for reissue", zap.Error(err))
		InternalError(c, MsgInternalError)
		return
	}

	if err := h.licenses.Revoke(keyID); err != nil {
		h.log.Error("failed to revoke key for reissue", zap.Error(err))
		InternalError(c, MsgKeyRevokeFailed)
		return
	}
	h.metrics.RecordKeyRevoked()

	newKey, err := h.licenses.Issue(service.IssueKeyInput{
		PlanID:             detail.Key.PlanID,
		OwnerUserID:        detail.Key.OwnerUserID,
		IssuedByResellerID: detail.Key.IssuedByResellerID,
	})
	if err != nil {
		// 旧密钥已吊销但新密钥签发失败，留给管理员人工补发
		h.log.Error("reissue: old key revoked but new issue failed",
			zap.String("key_id", keyID),
			zap.Error(err),
		)
		InternalError(c, MsgKeyIssueFailed)
		return
	}

	h.metrics.RecordKeyIssued("admin")
	Created(c, newKey)
}

// ========== 经销商管理 ==========

type createResellerRequest struct {
	BusinessName string `json:"businessName" binding:"required"`
	ContactEmail string `json:"contactEmail"`
	Quota        int    `json:"quota"` // 0 使用系统默认配额
}

type setQuotaRequest struct {
	Quota int `json:"quota" binding:"min=0"`
}

// CreateReseller 创建经销商
// @Summary 创建经销商账户
// @Description 创建经销商并生成 API 密钥，明文密钥只在本次响应中返回一次
// @Tags 管理
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body createResellerRequest true "经销商信息"
// @Success 201 {object} Response{data=service.CreateResellerResult} "创建成功"
// @Failure 400 {object} Response "参数错误"
// @Router /v1/admin/resellers [post]
func (h *AdminHandler) CreateReseller(c *gin.Context) {
	var req createResellerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	result, err := h.resellers.Create(service.CreateResellerInput{
		BusinessName: req.BusinessName,
		ContactEmail: req.ContactEmail,
		Quota:        req.Quota,
	})
	if err != nil {
		if errors.Is(err, service.ErrMissingParams) {
			BadRequest(c, MsgInvalidRequest)
			return
		}
		h.log.Error("failed to create reseller", zap.Error(err))
		InternalError(c, MsgResellerCreateFailed)
		return
	}

	Created(c, result)
}

// ListResellers 列出全部经销商
// @Summary 获取经销商列表
// @Tags 管理
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response "经销商列表"
// @Router /v1/admin/resellers [get]
func (h *AdminHandler) ListResellers(c *gin.Context) {
	resellers, err := h.resellers.List()
	if err != nil {
		h.log.Error("failed to list resellers", zap.Error(err))
		InternalError(c, MsgResellerListFailed)
		return
	}

	Success(c, gin.H{
		"items": resellers,
		"count": len(resellers),
	})
}

// GetReseller 获取经销商详情
// @Summary 获取经销商详情
// @Tags 管理
// @Produce json
// @Security BearerAuth
// @Param id path string true "经销商ID"
// @Success 200 {object} Response{data=domain.Reseller} "经销商详情"
// @Failure 404 {object} Response "经销商不存在"
// @Router /v1/admin/resellers/{id} [get]
func (h *AdminHandler) GetReseller(c *gin.Context) {
	reseller, err := h.resellers.Get(c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrResellerNotFound) {
			NotFound(c, MsgResellerNotFound)
			return
		}
		h.log.Error("failed to get reseller", zap.Error(err))
		InternalError(c, MsgInternalError)
		return
	}

	Success(c, reseller)
}

// GetResellerKeys 列出经销商签发的密钥
// @Summary 获取经销商签发的密钥
// @Tags 管理
// @Produce json
// @Security BearerAuth
// @Param id path string true "经销商ID"
// @Success 200 {object} Response "密钥列表"
// @Failure 404 {object} Response "经销商不存在"
// @Router /v1/admin/resellers/{id}/keys [get]
func (h *AdminHandler) GetResellerKeys(c *gin.Context) {
	keys, err := h.admin.KeysForReseller(c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrResellerNotFound) {
			NotFound(c, MsgResellerNotFound)
			return
		}
		h.log.Error("failed to list reseller keys", zap.Error(err))
		InternalError(c, MsgKeyListFailed)
		return
	}

	Success(c, gin.H{
		"items": keys,
		"count": len(keys),
	})
}

// ApproveReseller 审批通过经销商
// @Summary 审批通过经销商
// @Description 经销商由 PENDING 转为 APPROVED，此后可以签发密钥
// @Tags 管理
// @Produce json
// @Security BearerAuth
// @Param id path string true "经销商ID"
// @Success 200 {object} Response{data=domain.Reseller} "审批成功"
// @Failure 404 {object} Response "经销商不存在"
// @Router /v1/admin/resellers/{id}/approve [post]
func (h *AdminHandler) ApproveReseller(c *gin.Context) {
	h.setResellerStatus(c, h.resellers.Approve)
}

// SuspendReseller 停用经销商
// @Summary 停用经销商
// @Description 停用后无法签发新密钥，已签发的密钥不受影响
// @Tags 管理
// @Produce json
// @Security BearerAuth
// @Param id path string true "经销商ID"
// @Success 200 {object} Response{data=domain.Reseller} "停用成功"
// @Failure 404 {object} Response "经销商不存在"
// @Router /v1/admin/resellers/{id}/suspend [post]
func (h *AdminHandler) SuspendReseller(c *gin.Context) {
	h.setResellerStatus(c, h.resellers.Suspend)
}

func (h *AdminHandler) setResellerStatus(c *gin.Context, op func(string) (*domain.Reseller, error)) {
	reseller, err := op(c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrResellerNotFound) {
			NotFound(c, MsgResellerNotFound)
			return
		}
		h.log.Error("failed to update reseller status", zap.Error(err))
		InternalError(c, MsgResellerUpdateFailed)
		return
	}

	Success(c, reseller)
}

// SetResellerQuota 调整经销商配额
// @Summary 调整经销商配额
// @Description 新配额允许低于已用量，此时经销商暂停签发直到配额上调
// @Tags 管理
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "经销商ID"
// @Param request body setQuotaRequest true "新配额"
// @Success 200 {object} Response{data=domain.Reseller} "更新成功"
// @Failure 400 {object} Response "配额无效"
// @Failure 404 {object} Response "经销商不存在"
// @Router /v1/admin/resellers/{id}/quota [put]
func (h *AdminHandler) SetResellerQuota(c *gin.Context) {
	var req setQuotaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgQuotaInvalid)
		return
	}

	reseller, err := h.resellers.SetQuota(c.Param("id"), req.Quota)
	if err != nil {
		if errors.Is(err, storage.ErrResellerNotFound) {
			NotFound(c, MsgResellerNotFound)
			return
		}
		h.log.Error("failed to set reseller quota", zap.Error(err))
		InternalError(c, MsgResellerUpdateFailed)
		return
	}

	Success(c, reseller)
}

// ========== 系统运维 ==========

// GetStatistics 系统统计
// @Summary 获取系统统计
// @Description 返回密钥、激活、经销商和用户的聚合统计
// @Tags 管理
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=domain.SystemStatistics} "系统统计"
// @Router /v1/admin/statistics [get]
func (h *AdminHandler) GetStatistics(c *gin.Context) {
	stats, err := h.admin.Statistics()
	if err != nil {
		h.log.Error("failed to get statistics", zap.Error(err))
		InternalError(c, MsgStatisticsGetFailed)
		return
	}

	// 统计顺带刷新活跃量仪表
	h.metrics.UpdateKeysActive(stats.ActiveKeys)
	h.metrics.UpdateDevicesActive(stats.ActiveActivations)

	Success(c, stats)
}

// GetAlerts 获取告警列表
// @Summary 获取告警
// @Description 返回全部告警，active=true 时只返回未恢复的告警
// @Tags 管理
// @Produce json
// @Security BearerAuth
// @Param active query bool false "只看未恢复告警"
// @Success 200 {object} Response "告警列表"
// @Router /v1/admin/alerts [get]
func (h *AdminHandler) GetAlerts(c *gin.Context) {
	var alerts []monitoring.Alert
	if c.Query("active") == "true" {
		alerts = h.alerts.GetActiveAlerts()
	} else {
		alerts = h.alerts.GetAlerts()
	}

	Success(c, gin.H{
		"items": alerts,
		"count": len(alerts),
	})
}

// GetHealthReport 获取健康报告
// @Summary 获取系统健康报告
// @Description 返回存储、缓存、内存和协程的详细检查结果
// @Tags 管理
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=monitoring.HealthReport} "健康报告"
// @Router /v1/admin/health [get]
func (h *AdminHandler) GetHealthReport(c *gin.Context) {
	Success(c, h.health.CheckHealth())
}
