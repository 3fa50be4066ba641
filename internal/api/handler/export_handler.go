package handler

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/mplazax/software-engineering-agh-sub000/internal/service"
	"github.com/mplazax/software-engineering-agh-sub000/pkg/response"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExportHandler 导出模块 HTTP 处理器
type ExportHandler struct {
	exportSvc service.ExportService
}

// NewExportHandler 创建 ExportHandler
func NewExportHandler(exportSvc service.ExportService) *ExportHandler {
	return &ExportHandler{exportSvc: exportSvc}
}

// ExportChangeRequest 导出调课申请的协商记录
// GET /api/v1/export/change-requests/:id
func (h *ExportHandler) ExportChangeRequest(c *gin.Context) {
	id, userID, role, ok := readCaller(c)
	if !ok {
		return
	}

	buf, filename, err := h.exportSvc.ExportNegotiation(c.Request.Context(), id, userID, role)
	if err != nil {
		if errors.Is(err, service.ErrExportGenerateFail) {
			_ = c.Error(err)
			response.InternalError(c)
			return
		}
		handleNegotiationError(c, err)
		return
	}

	// 设置下载响应头
	encodedFilename := url.QueryEscape(filename)
	c.Header("Content-Description", "File Transfer")
	c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+encodedFilename)
	c.Header("Content-Type", xlsxContentType)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
