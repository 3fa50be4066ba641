package handler

import (
	"context"
	"errors"
	"io"

	"github.com/gin-gonic/gin"

	"github.com/mplazax/software-engineering-agh-sub000/internal/dto"
	"github.com/mplazax/software-engineering-agh-sub000/internal/service"
	"github.com/mplazax/software-engineering-agh-sub000/pkg/response"
)

// NegotiationHandler 调课协商模块 HTTP 处理器
type NegotiationHandler struct {
	svc service.NegotiationService
}

// NewNegotiationHandler 创建 NegotiationHandler
func NewNegotiationHandler(svc service.NegotiationService) *NegotiationHandler {
	return &NegotiationHandler{svc: svc}
}

// ── 调课申请 ──

// CreateChangeRequest 发起调课申请
// POST /api/v1/change-requests
func (h *NegotiationHandler) CreateChangeRequest(c *gin.Context) {
	var req dto.CreateChangeRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.svc.CreateChangeRequest(c.Request.Context(), &req, userID)
	if err != nil {
		handleNegotiationError(c, err)
		return
	}
	response.Created(c, result)
}

// ListChangeRequests 调课申请列表
// GET /api/v1/change-requests?status=PENDING&mine=true&page=1&page_size=20
func (h *NegotiationHandler) ListChangeRequests(c *gin.Context) {
	var req dto.ChangeRequestListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}
	role, ok := MustGetRole(c)
	if !ok {
		return
	}

	list, total, err := h.svc.ListChangeRequests(c.Request.Context(), &req, userID, role)
	if err != nil {
		handleNegotiationError(c, err)
		return
	}
	response.OKPage(c, list, total, req.GetPage(), req.GetPageSize())
}

// GetChangeRequest 调课申请详情（含推荐方案与当前结果）
// GET /api/v1/change-requests/:id
func (h *NegotiationHandler) GetChangeRequest(c *gin.Context) {
	id, userID, role, ok := readCaller(c)
	if !ok {
		return
	}

	result, err := h.svc.GetChangeRequest(c.Request.Context(), id, userID, role)
	if err != nil {
		handleNegotiationError(c, err)
		return
	}
	response.OK(c, result)
}

// ListLogs 调课申请操作日志
// GET /api/v1/change-requests/:id/logs
func (h *NegotiationHandler) ListLogs(c *gin.Context) {
	var page dto.PaginationRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}
	id, userID, role, ok := readCaller(c)
	if !ok {
		return
	}

	list, total, err := h.svc.ListLogs(c.Request.Context(), id, userID, role, page.GetPage(), page.GetPageSize())
	if err != nil {
		handleNegotiationError(c, err)
		return
	}
	response.OKPage(c, list, total, page.GetPage(), page.GetPageSize())
}

// Stats 管理端统计
// GET /api/v1/change-requests/stats
func (h *NegotiationHandler) Stats(c *gin.Context) {
	role, ok := MustGetRole(c)
	if !ok {
		return
	}

	result, err := h.svc.Stats(c.Request.Context(), role)
	if err != nil {
		handleNegotiationError(c, err)
		return
	}
	response.OK(c, result)
}

// RejectRequest 拒绝整个调课申请
// POST /api/v1/change-requests/:id/reject
func (h *NegotiationHandler) RejectRequest(c *gin.Context) {
	h.terminate(c, h.svc.RejectRequest)
}

// CancelRequest 发起人撤销调课申请
// POST /api/v1/change-requests/:id/cancel
func (h *NegotiationHandler) CancelRequest(c *gin.Context) {
	h.terminate(c, h.svc.CancelRequest)
}

// terminate 请求体可省略
func (h *NegotiationHandler) terminate(
	c *gin.Context,
	fn func(ctx context.Context, id, callerID string, req *dto.ChangeRequestActionRequest) (*dto.NegotiationStateResponse, error),
) {
	id, ok := MustGetPathID(c)
	if !ok {
		return
	}
	var req dto.ChangeRequestActionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := fn(c.Request.Context(), id, userID, &req)
	if err != nil {
		handleNegotiationError(c, err)
		return
	}
	response.OK(c, result)
}

// ── 可用时间 ──

// SubmitAvailability 提交（或重新提交）一方的可用时间
// POST /api/v1/availability
func (h *NegotiationHandler) SubmitAvailability(c *gin.Context) {
	var req dto.SubmitAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.svc.SubmitAvailability(c.Request.Context(), &req, userID)
	if err != nil {
		handleNegotiationError(c, err)
		return
	}
	response.OK(c, result)
}

// ListProposals 查看双方当前的可用时间
// GET /api/v1/availability/:id
func (h *NegotiationHandler) ListProposals(c *gin.Context) {
	id, userID, role, ok := readCaller(c)
	if !ok {
		return
	}

	result, err := h.svc.ListProposals(c.Request.Context(), id, userID, role)
	if err != nil {
		handleNegotiationError(c, err)
		return
	}
	response.OK(c, result)
}

// ── 推荐方案 ──

// GenerateRecommendations 为调课申请生成推荐方案，已存在时原样返回
// POST /api/v1/recommendations/:id
func (h *NegotiationHandler) GenerateRecommendations(c *gin.Context) {
	id, ok := MustGetPathID(c)
	if !ok {
		return
	}
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.svc.GenerateRecommendations(c.Request.Context(), id, userID)
	if err != nil {
		handleNegotiationError(c, err)
		return
	}
	response.OK(c, result)
}

// ListRecommendations 查看调课申请的推荐方案
// GET /api/v1/recommendations/:id
func (h *NegotiationHandler) ListRecommendations(c *gin.Context) {
	id, userID, role, ok := readCaller(c)
	if !ok {
		return
	}

	result, err := h.svc.ListRecommendations(c.Request.Context(), id, userID, role)
	if err != nil {
		handleNegotiationError(c, err)
		return
	}
	response.OK(c, result)
}

// AcceptRecommendation 接受推荐方案
// POST /api/v1/recommendations/:id/accept
func (h *NegotiationHandler) AcceptRecommendation(c *gin.Context) {
	h.decide(c, h.svc.AcceptRecommendation)
}

// RejectRecommendation 拒绝推荐方案
// POST /api/v1/recommendations/:id/reject
func (h *NegotiationHandler) RejectRecommendation(c *gin.Context) {
	h.decide(c, h.svc.RejectRecommendation)
}

func (h *NegotiationHandler) decide(
	c *gin.Context,
	fn func(ctx context.Context, recommendationID, callerID string) (*dto.NegotiationStateResponse, error),
) {
	id, ok := MustGetPathID(c)
	if !ok {
		return
	}
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := fn(c.Request.Context(), id, userID)
	if err != nil {
		handleNegotiationError(c, err)
		return
	}
	response.OK(c, result)
}

// readCaller 只读接口的公共前置：路径 ID、用户与角色
func readCaller(c *gin.Context) (id, userID, role string, ok bool) {
	if id, ok = MustGetPathID(c); !ok {
		return
	}
	if userID, ok = MustGetUserID(c); !ok {
		return
	}
	role, ok = MustGetRole(c)
	return
}
