package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/mplazax/software-engineering-agh-sub000/internal/dto"
	"github.com/mplazax/software-engineering-agh-sub000/internal/service"
	"github.com/mplazax/software-engineering-agh-sub000/pkg/response"
)

// CatalogHandler 时间段与教室只读目录
type CatalogHandler struct {
	svc service.CatalogService
}

// NewCatalogHandler 创建 CatalogHandler
func NewCatalogHandler(svc service.CatalogService) *CatalogHandler {
	return &CatalogHandler{svc: svc}
}

// ListTimeSlots 时间段列表
// GET /api/v1/time-slots
func (h *CatalogHandler) ListTimeSlots(c *gin.Context) {
	list, err := h.svc.ListTimeSlots(c.Request.Context())
	if err != nil {
		handleNegotiationError(c, err)
		return
	}
	response.OK(c, list)
}

// ListRooms 教室列表
// GET /api/v1/rooms?min_capacity=30&equipment=projector
func (h *CatalogHandler) ListRooms(c *gin.Context) {
	var req dto.RoomListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	list, err := h.svc.ListRooms(c.Request.Context(), &req)
	if err != nil {
		handleNegotiationError(c, err)
		return
	}
	response.OK(c, list)
}
