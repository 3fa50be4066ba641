package handler

import (
	"go.uber.org/zap"

	"github.com/mplazax/software-engineering-agh-sub000/internal/service"
	"github.com/mplazax/software-engineering-agh-sub000/pkg/redis"
)

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Auth        *AuthHandler
	Negotiation *NegotiationHandler
	Catalog     *CatalogHandler
	Export      *ExportHandler
}

// NewHandler 创建 Handler 聚合
func NewHandler(svc *service.Service, rdb *redis.Client, logger *zap.Logger) *Handler {
	var revoker TokenRevoker
	if rdb != nil {
		revoker = rdb
	}
	return &Handler{
		Auth:        NewAuthHandler(revoker, logger),
		Negotiation: NewNegotiationHandler(svc.Negotiation),
		Catalog:     NewCatalogHandler(svc.Catalog),
		Export:      NewExportHandler(svc.Export),
	}
}
