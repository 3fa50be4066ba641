package service

import (
	"go.uber.org/zap"

	"github.com/mplazax/software-engineering-agh-sub000/config"
	"github.com/mplazax/software-engineering-agh-sub000/internal/negotiation"
	"github.com/mplazax/software-engineering-agh-sub000/internal/repository"
	"github.com/mplazax/software-engineering-agh-sub000/pkg/redis"
)

// Service 所有 Service 的聚合入口
type Service struct {
	Negotiation NegotiationService
	Catalog     CatalogService
	Export      ExportService
}

// NewService 创建 Service 聚合
// rdb 为 nil 时只使用进程内锁
func NewService(
	cfg *config.Config,
	repo *repository.Repository,
	rdb *redis.Client,
	metrics *negotiation.Metrics,
	logger *zap.Logger,
) *Service {
	return &Service{
		Negotiation: NewNegotiationService(repo, NegotiationOptionsFromConfig(&cfg.Negotiation, rdb, metrics, logger), logger),
		Catalog:     NewCatalogService(repo, logger),
		Export:      NewExportService(repo, logger),
	}
}

// NegotiationOptionsFromConfig 由配置构建协商服务参数
func NegotiationOptionsFromConfig(cfg *config.NegotiationConfig, rdb *redis.Client, metrics *negotiation.Metrics, logger *zap.Logger) NegotiationOptions {
	policy, err := negotiation.ParseRoomPolicy(cfg.RoomPolicy)
	if err != nil {
		logger.Warn("教室选择策略无效，使用默认策略", zap.String("room_policy", cfg.RoomPolicy), zap.Error(err))
		policy = negotiation.PolicySmallestFit
	}
	opts := NegotiationOptions{
		DependencyTimeout:       cfg.DependencyTimeout,
		LockWait:                cfg.LockWait,
		Location:                cfg.Location(),
		RoomPolicy:              policy,
		RequireNonEmptyProposal: cfg.RequireNonEmptyProposal,
		Metrics:                 metrics,
	}
	if rdb != nil {
		opts.Locker = NewRedisRequestLocker(rdb, cfg.LockTTL, cfg.LockWait, logger)
	}
	return opts
}
