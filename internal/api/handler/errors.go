package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mplazax/software-engineering-agh-sub000/internal/negotiation"
	"github.com/mplazax/software-engineering-agh-sub000/internal/service"
	"github.com/mplazax/software-engineering-agh-sub000/pkg/response"
)

// handleNegotiationError 将协商模块业务错误映射为 HTTP 响应
func handleNegotiationError(c *gin.Context, err error) {
	var ve *negotiation.ValidationError
	switch {
	case errors.As(err, &ve):
		response.ErrorWithDetails(c, http.StatusBadRequest, 20001, "参数校验失败", ve.Error())
	case errors.Is(err, negotiation.ErrEmptyProposalSet):
		response.BadRequest(c, 20002, negotiation.ErrEmptyProposalSet.Error())
	case errors.Is(err, negotiation.ErrInvalidRequestState):
		response.Conflict(c, 20101, negotiation.ErrInvalidRequestState.Error())
	case errors.Is(err, negotiation.ErrAlreadyDecided):
		response.Conflict(c, 20102, negotiation.ErrAlreadyDecided.Error())
	case errors.Is(err, negotiation.ErrNotParty):
		response.Forbidden(c, 20103, negotiation.ErrNotParty.Error())
	case errors.Is(err, service.ErrNotInitiator):
		response.Forbidden(c, 20104, service.ErrNotInitiator.Error())
	case errors.Is(err, service.ErrActiveRequestExists):
		response.Conflict(c, 20105, service.ErrActiveRequestExists.Error())
	case errors.Is(err, service.ErrPrivilegedOnly):
		response.Forbidden(c, 20107, service.ErrPrivilegedOnly.Error())
	case errors.Is(err, negotiation.ErrPlacementUnavailable):
		response.Conflict(c, 20106, negotiation.ErrPlacementUnavailable.Error())
	case errors.Is(err, service.ErrChangeRequestNotFound):
		response.NotFound(c, 20201, service.ErrChangeRequestNotFound.Error())
	case errors.Is(err, service.ErrRecommendationNotFound):
		response.NotFound(c, 20202, service.ErrRecommendationNotFound.Error())
	case errors.Is(err, service.ErrCourseEventNotFound), errors.Is(err, negotiation.ErrEventNotFound):
		response.NotFound(c, 20203, service.ErrCourseEventNotFound.Error())
	case errors.Is(err, negotiation.ErrDependencyUnavailable):
		response.ServiceUnavailable(c, 20301, negotiation.ErrDependencyUnavailable.Error())
	default:
		_ = c.Error(err)
		response.InternalError(c)
	}
}
