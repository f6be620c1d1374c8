package httptransport

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"licensegate/backend/internal/auth"
	"licensegate/backend/internal/domain"
	"licensegate/backend/internal/monitoring"
	"licensegate/backend/internal/storage"
)

// AuthHandler 处理用户账户相关的 HTTP 请求
type AuthHandler struct {
	authService  *auth.AuthService
	blacklist    storage.BlacklistRepository
	metrics      *monitoring.Metrics
	accessExpiry time.Duration // 登出拉黑的 TTL 上界
	log          *zap.Logger
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(authService *auth.AuthService, blacklist storage.BlacklistRepository, metrics *monitoring.Metrics, accessExpiry time.Duration, log *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService:  authService,
		blacklist:    blacklist,
		metrics:      metrics,
		accessExpiry: accessExpiry,
		log:          log,
	}
}

type registerRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Username string `json:"username"`
}

type loginRequest struct {
	Identifier string `json:"identifier" binding:"required"` // 邮箱或用户名
	Password   string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required"`
}

type userResponse struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Username  string     `json:"username,omitempty"`
	Role      string     `json:"role"`
	IsActive  bool       `json:"isActive"`
	CreatedAt time.Time  `json:"createdAt"`
	LastLogin *time.Time `json:"lastLoginAt,omitempty"`
}

type authResponse struct {
	User         userResponse `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	TokenType    string       `json:"tokenType"`
	ExpiresIn    int64        `json:"expiresIn"`
}

func toUserResponse(user *domain.User) userResponse {
	return userResponse{
		ID:        user.ID,
		Email:     user.Email,
		Username:  user.Username,
		Role:      string(user.Role),
		IsActive:  user.IsActive,
		CreatedAt: user.CreatedAt,
		LastLogin: user.LastLoginAt,
	}
}

// Register 处理用户注册请求
// @Summary 用户注册
// @Description 创建新用户账户，返回用户信息和认证令牌
// @Tags 认证
// @Accept json
// @Produce json
// @Param request body registerRequest true "注册信息"
// @Success 201 {object} authResponse "注册成功"
// @Failure 400 {object} Response "请求参数错误"
// @Failure 409 {object} Response "邮箱或用户名已存在"
// @Failure 500 {object} Response "服务器内部错误"
// @Router /v1/auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	result, err := h.authService.Register(auth.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Username: req.Username,
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidEmail):
			BadRequest(c, "邮箱格式无效")
		case errors.Is(err, auth.ErrInvalidPassword):
			BadRequest(c, "密码强度不足："+err.Error())
		case errors.Is(err, auth.ErrEmailExists):
			Conflict(c, "该邮箱已被注册")
		case errors.Is(err, auth.ErrUsernameExists):
			Conflict(c, "该用户名已被占用")
		default:
			h.log.Error("failed to register user", zap.Error(err))
			InternalError(c, "注册失败，请稍后重试")
		}
		return
	}

	h.metrics.RecordUserRegistered()
	h.log.Info("user registered",
		zap.String("user_id", result.User.ID),
		zap.String("email", result.User.Email),
	)

	Created(c, authResponse{
		User:         toUserResponse(result.User),
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		TokenType:    result.TokenType,
		ExpiresIn:    result.ExpiresIn,
	})
}

// Login 处理用户登录请求
// @Summary 用户登录
// @Description 使用邮箱或用户名登录，成功后返回认证令牌
// @Tags 认证
// @Accept json
// @Produce json
// @Param request body loginRequest true "登录凭证"
// @Success 200 {object} authResponse "登录成功"
// @Failure 400 {object} Response "请求参数错误"
// @Failure 401 {object} Response "用户名或密码错误"
// @Failure 403 {object} Response "账户已被禁用"
// @Failure 500 {object} Response "服务器内部错误"
// @Router /v1/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	result, err := h.authService.Login(auth.LoginInput{
		Identifier: req.Identifier,
		Password:   req.Password,
	})
	if err != nil {
		switch err {
		case auth.ErrInvalidCredentials:
			Unauthorized(c, MsgInvalidCredentials)
		case auth.ErrUserInactive:
			Forbidden(c, "账户已被禁用")
		default:
			h.log.Error("failed to login", zap.Error(err))
			InternalError(c, "登录失败，请稍后重试")
		}
		return
	}

	h.log.Info("user logged in",
		zap.String("user_id", result.User.ID),
		zap.String("email", result.User.Email),
	)

	Success(c, authResponse{
		User:         toUserResponse(result.User),
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		TokenType:    result.TokenType,
		ExpiresIn:    result.ExpiresIn,
	})
}

// Refresh 刷新访问令牌
// @Summary 刷新访问令牌
// @Description 使用刷新令牌换取新的令牌对，避免重新登录
// @Tags 认证
// @Accept json
// @Produce json
// @Param request body refreshRequest true "包含刷新令牌的请求"
// @Success 200 {object} auth.TokenResponse "新的令牌对"
// @Failure 400 {object} Response "请求参数错误"
// @Failure 401 {object} Response "刷新令牌无效或已过期"
// @Router /v1/auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	tokens, err := h.authService.RefreshToken(req.RefreshToken)
	if err != nil {
		Unauthorized(c, MsgTokenExpired)
		return
	}

	Success(c, tokens)
}

// Logout 登出，将当前令牌拉入黑名单
// @Summary 用户登出
// @Description 当前访问令牌立即失效（jti 拉黑，TTL 与令牌剩余有效期同阶）
// @Tags 认证
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response "登出成功"
// @Failure 401 {object} Response "未认证"
// @Failure 500 {object} Response "服务器内部错误"
// @Router /v1/auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	jtiVal, exists := c.Get("jti")
	if !exists {
		Unauthorized(c, MsgAuthRequired)
		return
	}

	// 不解析剩余有效期，按访问令牌全长拉黑，宁长勿短
	if err := h.blacklist.AddToBlacklist(jtiVal.(string), h.accessExpiry); err != nil {
		h.log.Error("failed to blacklist token", zap.Error(err))
		InternalError(c, MsgInternalError)
		return
	}

	Success(c, nil)
}

// Me 获取当前用户信息
// @Summary 获取当前用户信息
// @Description 返回已认证用户的详细信息
// @Tags 认证
// @Produce json
// @Security BearerAuth
// @Success 200 {object} userResponse "用户信息"
// @Failure 401 {object} Response "未认证或令牌无效"
// @Failure 404 {object} Response "用户不存在"
// @Router /v1/auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		Unauthorized(c, MsgAuthRequired)
		return
	}

	user, err := h.authService.GetUserByID(userID.(string))
	if err != nil {
		if err == auth.ErrUserNotFound {
			NotFound(c, MsgUserNotFound)
			return
		}
		h.log.Error("failed to get user", zap.Error(err))
		InternalError(c, MsgUserGetFailed)
		return
	}

	Success(c, toUserResponse(user))
}

// ChangePassword 修改密码
// @Summary 修改密码
// @Description 校验旧密码后更新为新密码
// @Tags 认证
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body changePasswordRequest true "新旧密码"
// @Success 200 {object} Response "修改成功"
// @Failure 400 {object} Response "旧密码错误或新密码强度不足"
// @Failure 401 {object} Response "未认证"
// @Router /v1/auth/password [put]
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		Unauthorized(c, MsgAuthRequired)
		return
	}

	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	if err := h.authService.ChangePassword(userID.(string), req.OldPassword, req.NewPassword); err != nil {
		if err == auth.ErrUserNotFound {
			NotFound(c, MsgUserNotFound)
			return
		}
		BadRequest(c, "修改密码失败，请检查旧密码和新密码强度")
		return
	}

	Success(c, nil)
}
