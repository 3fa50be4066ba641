package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/mplazax/software-engineering-agh-sub000/internal/model"
	pkgerrors "github.com/mplazax/software-engineering-agh-sub000/pkg/errors"
)

// RecommendationRepository 推荐方案数据访问接口
type RecommendationRepository interface {
	// ListByRequest 当前有效的推荐方案，按日期、时间段升序
	ListByRequest(ctx context.Context, changeRequestID string) ([]model.Recommendation, error)
	GetByID(ctx context.Context, id string) (*model.Recommendation, error)
	CreateBatch(ctx context.Context, recs []model.Recommendation) error
	// UpdateFlags 只更新决策标记（乐观锁），日期、时间段、教室不可变
	UpdateFlags(ctx context.Context, rec *model.Recommendation) error
	// Supersede 将单个方案标记为已取代，决策标记保持不变
	Supersede(ctx context.Context, id, updatedBy string) error
	// SupersedeOthers 将 winnerID 以外的方案标记为已取代
	SupersedeOthers(ctx context.Context, changeRequestID, winnerID, updatedBy string) error
	// ClearByRequest 软删除该申请当前全部方案，标记保留供审计
	ClearByRequest(ctx context.Context, changeRequestID, deletedBy string) error
}

type recommendationRepo struct {
	db *gorm.DB
}

// NewRecommendationRepo 创建 RecommendationRepository 实例
func NewRecommendationRepo(db *gorm.DB) RecommendationRepository {
	return &recommendationRepo{db: db}
}

func (r *recommendationRepo) ListByRequest(ctx context.Context, changeRequestID string) ([]model.Recommendation, error) {
	var list []model.Recommendation
	err := r.db.WithContext(ctx).
		Preload("Room").
		Where("change_request_id = ?", changeRequestID).
		Order("day ASC, time_slot_id ASC").
		Find(&list).Error
	return list, err
}

func (r *recommendationRepo) GetByID(ctx context.Context, id string) (*model.Recommendation, error) {
	var rec model.Recommendation
	err := r.db.WithContext(ctx).Where("recommendation_id = ?", id).First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *recommendationRepo) CreateBatch(ctx context.Context, recs []model.Recommendation) error {
	if len(recs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&recs).Error
}

func (r *recommendationRepo) UpdateFlags(ctx context.Context, rec *model.Recommendation) error {
	oldVersion := rec.Version
	result := r.db.WithContext(ctx).
		Model(&model.Recommendation{}).
		Where("recommendation_id = ? AND version = ?", rec.RecommendationID, oldVersion).
		Updates(map[string]interface{}{
			"accepted_by_teacher": rec.AcceptedByTeacher,
			"accepted_by_leader":  rec.AcceptedByLeader,
			"rejected_by_teacher": rec.RejectedByTeacher,
			"rejected_by_leader":  rec.RejectedByLeader,
			"updated_by":          rec.UpdatedBy,
			"updated_at":          gorm.Expr("NOW()"),
			"version":             oldVersion + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	rec.Version = oldVersion + 1
	return nil
}

func (r *recommendationRepo) SupersedeOthers(ctx context.Context, changeRequestID, winnerID, updatedBy string) error {
	return r.db.WithContext(ctx).
		Model(&model.Recommendation{}).
		Where("change_request_id = ? AND recommendation_id <> ?", changeRequestID, winnerID).
		Updates(map[string]interface{}{
			"superseded": true,
			"updated_by": updatedBy,
			"updated_at": gorm.Expr("NOW()"),
			"version":    gorm.Expr("version + 1"),
		}).Error
}

func (r *recommendationRepo) ClearByRequest(ctx context.Context, changeRequestID, deletedBy string) error {
	return r.db.WithContext(ctx).
		Model(&model.Recommendation{}).
		Where("change_request_id = ?", changeRequestID).
		Updates(map[string]interface{}{
			"deleted_by": deletedBy,
			"deleted_at": gorm.Expr("NOW()"),
		}).Error
}

func (r *recommendationRepo) Supersede(ctx context.Context, id, updatedBy string) error {
	return r.db.WithContext(ctx).
		Model(&model.Recommendation{}).
		Where("recommendation_id = ?", id).
		Updates(map[string]interface{}{
			"superseded": true,
			"updated_by": updatedBy,
			"updated_at": gorm.Expr("NOW()"),
			"version":    gorm.Expr("version + 1"),
		}).Error
}
