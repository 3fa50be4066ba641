package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/mplazax/software-engineering-agh-sub000/internal/model"
)

// ChangeRequestLogRepository 操作日志数据访问接口（只追加）
type ChangeRequestLogRepository interface {
	Create(ctx context.Context, log *model.ChangeRequestLog) error
	ListByRequest(ctx context.Context, changeRequestID string, page, pageSize int) ([]model.ChangeRequestLog, int64, error)
	// Latest 最近一条日志
	Latest(ctx context.Context, changeRequestID string) (*model.ChangeRequestLog, error)
}

type changeRequestLogRepo struct {
	db *gorm.DB
}

// NewChangeRequestLogRepo 创建 ChangeRequestLogRepository 实例
func NewChangeRequestLogRepo(db *gorm.DB) ChangeRequestLogRepository {
	return &changeRequestLogRepo{db: db}
}

func (r *changeRequestLogRepo) Create(ctx context.Context, log *model.ChangeRequestLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *changeRequestLogRepo) ListByRequest(ctx context.Context, changeRequestID string, page, pageSize int) ([]model.ChangeRequestLog, int64, error) {
	q := r.db.WithContext(ctx).
		Model(&model.ChangeRequestLog{}).
		Where("change_request_id = ?", changeRequestID)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var logs []model.ChangeRequestLog
	err := q.
		Order("created_at ASC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&logs).Error
	return logs, total, err
}

func (r *changeRequestLogRepo) Latest(ctx context.Context, changeRequestID string) (*model.ChangeRequestLog, error) {
	var log model.ChangeRequestLog
	err := r.db.WithContext(ctx).
		Where("change_request_id = ?", changeRequestID).
		Order("created_at DESC, log_id DESC").
		First(&log).Error
	if err != nil {
		return nil, err
	}
	return &log, nil
}
