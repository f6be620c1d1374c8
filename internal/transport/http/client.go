package httptransport

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"licensegate/backend/internal/domain"
	"licensegate/backend/internal/monitoring"
	"licensegate/backend/internal/service"
)

// ClientHandler 处理打包进终端软件的激活 SDK 请求
//
// 这组端点是公开的（密钥本身就是凭证），响应使用
// {valid, data, error} 信封，错误码只出现稳定取值。
type ClientHandler struct {
	licenses *service.LicenseService
	metrics  *monitoring.Metrics
	log      *zap.Logger
}

// NewClientHandler 创建客户端接口处理器
func NewClientHandler(licenses *service.LicenseService, metrics *monitoring.Metrics, log *zap.Logger) *ClientHandler {
	return &ClientHandler{
		licenses: licenses,
		metrics:  metrics,
		log:      log,
	}
}

type activateRequest struct {
	Key        string `json:"key" binding:"required"`
	HWID       string `json:"hwid" binding:"required"`
	DeviceName string `json:"deviceName"`
}

type heartbeatRequest struct {
	Key  string `json:"key" binding:"required"`
	HWID string `json:"hwid" binding:"required"`
}

type checkRequest struct {
	Key string `json:"key" binding:"required"`
}

// Activate godoc
// @Summary 激活设备
// @Description 将设备绑定到授权密钥，占用一个设备槽位；同一设备重复激活是幂等刷新
// @Tags 客户端
// @Accept json
// @Produce json
// @Param request body activateRequest true "激活参数"
// @Success 200 {object} clientResponse
// @Failure 400 {object} clientResponse "参数缺失或格式错误"
// @Failure 403 {object} clientResponse "密钥已过期或已吊销"
// @Failure 404 {object} clientResponse "密钥不存在"
// @Failure 409 {object} clientResponse "设备配额已满"
// @Router /v1/client/activate [post]
func (h *ClientHandler) Activate(c *gin.Context) {
	var req activateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		clientFail(c, 400, domain.CodeMissingParams)
		return
	}

	result, err := h.licenses.Activate(service.ActivateInput{
		Key:        req.Key,
		HWID:       req.HWID,
		DeviceName: req.DeviceName,
		IPAddress:  c.ClientIP(),
	})
	if err != nil {
		status, code := classifyClientError(err)
		h.metrics.RecordActivationDenied(string(code))
		if code == domain.CodeServerError {
			h.log.Error("activation failed", zap.Error(err))
		}
		clientFail(c, status, code)
		return
	}

	h.metrics.RecordActivation()
	clientOK(c, result)
}

// Heartbeat godoc
// @Summary 心跳校验
// @Description 已激活设备定期校验授权有效性并刷新在线时间；失败的心跳不刷新 lastSeenAt
// @Tags 客户端
// @Accept json
// @Produce json
// @Param request body heartbeatRequest true "心跳参数"
// @Success 200 {object} clientResponse
// @Failure 403 {object} clientResponse "密钥已过期或已吊销"
// @Failure 404 {object} clientResponse "密钥不存在或设备未激活"
// @Router /v1/client/heartbeat [post]
func (h *ClientHandler) Heartbeat(c *gin.Context) {
	var req heartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		clientFail(c, 400, domain.CodeMissingParams)
		return
	}

	summary, err := h.licenses.Heartbeat(service.HeartbeatInput{
		Key:       req.Key,
		HWID:      req.HWID,
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		status, code := classifyClientError(err)
		h.metrics.RecordHeartbeat("failure")
		if code == domain.CodeServerError {
			h.log.Error("heartbeat failed", zap.Error(err))
		}
		clientFail(c, status, code)
		return
	}

	h.metrics.RecordHeartbeat("success")
	clientOK(c, summary)
}

// Deactivate godoc
// @Summary 解绑设备
// @Description 释放设备占用的槽位；对未激活的组合是幂等空操作，过期/吊销的密钥也允许解绑
// @Tags 客户端
// @Accept json
// @Produce json
// @Param request body heartbeatRequest true "解绑参数"
// @Success 200 {object} clientResponse
// @Failure 404 {object} clientResponse "密钥不存在"
// @Router /v1/client/deactivate [post]
func (h *ClientHandler) Deactivate(c *gin.Context) {
	var req heartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		clientFail(c, 400, domain.CodeMissingParams)
		return
	}

	if err := h.licenses.Deactivate(req.Key, req.HWID); err != nil {
		status, code := classifyClientError(err)
		if code == domain.CodeServerError {
			h.log.Error("deactivation failed", zap.Error(err))
		}
		clientFail(c, status, code)
		return
	}

	h.metrics.RecordDeactivation()
	clientOK(c, nil)
}

// Check godoc
// @Summary 查询密钥状态
// @Description 校验密钥有效性并返回状态摘要，不占用设备槽位、不要求已激活
// @Tags 客户端
// @Accept json
// @Produce json
// @Param request body checkRequest true "查询参数"
// @Success 200 {object} clientResponse
// @Failure 403 {object} clientResponse "密钥已过期或已吊销"
// @Failure 404 {object} clientResponse "密钥不存在"
// @Router /v1/client/check [post]
func (h *ClientHandler) Check(c *gin.Context) {
	var req checkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		clientFail(c, 400, domain.CodeMissingParams)
		return
	}

	summary, err := h.licenses.Check(req.Key)
	if err != nil {
		status, code := classifyClientError(err)
		if code == domain.CodeServerError {
			h.log.Error("key check failed", zap.Error(err))
		}
		clientFail(c, status, code)
		return
	}

	// 过期/吊销的密钥同样返回摘要，status 字段反映真实状态
	clientOK(c, summary)
}
