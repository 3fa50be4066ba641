package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mplazax/software-engineering-agh-sub000/internal/dto"
	"github.com/mplazax/software-engineering-agh-sub000/pkg/response"
)

// TokenRevoker Token 黑名单存储，*redis.Client 满足该接口
type TokenRevoker interface {
	BlacklistToken(ctx context.Context, jti string, ttl time.Duration) error
}

// AuthHandler 认证模块 HTTP 处理器
// Token 由外部身份系统签发，这里只负责注销与身份查询
type AuthHandler struct {
	revoker TokenRevoker
	logger  *zap.Logger
	now     func() time.Time
}

// NewAuthHandler 创建 AuthHandler，revoker 为 nil 时注销不可用
func NewAuthHandler(revoker TokenRevoker, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{revoker: revoker, logger: logger, now: time.Now}
}

// Logout 注销当前 Access Token
// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	if _, ok := MustGetUserID(c); !ok {
		return
	}
	if h.revoker == nil {
		response.ServiceUnavailable(c, 20301, "Token 黑名单未启用")
		return
	}

	jti := c.GetString("token_jti")
	ttl := tokenExpiry(c).Sub(h.now())
	if jti == "" || ttl <= 0 {
		// 已过期或无 jti 的 Token 无需拉黑
		response.OK(c, nil)
		return
	}

	if err := h.revoker.BlacklistToken(c.Request.Context(), jti, ttl); err != nil {
		h.logger.Error("写入 Token 黑名单失败", zap.String("jti", jti), zap.Error(err))
		response.ServiceUnavailable(c, 20301, "Token 注销失败，请稍后重试")
		return
	}
	response.OK(c, nil)
}

// Me 当前 Token 对应的身份
// GET /api/v1/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}
	role, ok := MustGetRole(c)
	if !ok {
		return
	}

	resp := dto.CurrentUserResponse{UserID: userID, Role: role}
	if exp := tokenExpiry(c); !exp.IsZero() {
		resp.ExpiresAt = exp.UTC().Format(time.RFC3339)
	}
	response.OK(c, resp)
}
