package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mplazax/software-engineering-agh-sub000/internal/model"
	pkgerrors "github.com/mplazax/software-engineering-agh-sub000/pkg/errors"
)

// ChangeRequestFilter 调课申请列表过滤条件
type ChangeRequestFilter struct {
	Status   string
	PartyID  string // 非空时只返回该用户作为发起人、教师或组长参与的申请
	Page     int
	PageSize int
}

// ChangeRequestRepository 调课申请数据访问接口
type ChangeRequestRepository interface {
	Create(ctx context.Context, cr *model.ChangeRequest) error
	GetByID(ctx context.Context, id string) (*model.ChangeRequest, error)
	// GetByIDForUpdate 使用 SELECT ... FOR UPDATE 行级锁查询，须在事务中调用
	GetByIDForUpdate(ctx context.Context, id string) (*model.ChangeRequest, error)
	List(ctx context.Context, filter ChangeRequestFilter) ([]model.ChangeRequest, int64, error)
	ExistsPendingForEvent(ctx context.Context, eventID string) (bool, error)
	// Update 按版本号更新状态与处理结果（乐观锁）
	Update(ctx context.Context, cr *model.ChangeRequest) error
	// CountByStatus 按状态统计申请数量
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

type changeRequestRepo struct {
	db *gorm.DB
}

// NewChangeRequestRepo 创建 ChangeRequestRepository 实例
func NewChangeRequestRepo(db *gorm.DB) ChangeRequestRepository {
	return &changeRequestRepo{db: db}
}

func (r *changeRequestRepo) Create(ctx context.Context, cr *model.ChangeRequest) error {
	return r.db.WithContext(ctx).Create(cr).Error
}

func (r *changeRequestRepo) GetByID(ctx context.Context, id string) (*model.ChangeRequest, error) {
	var cr model.ChangeRequest
	err := r.db.WithContext(ctx).
		Preload("CourseEvent").
		Where("change_request_id = ?", id).
		First(&cr).Error
	if err != nil {
		return nil, err
	}
	return &cr, nil
}

func (r *changeRequestRepo) GetByIDForUpdate(ctx context.Context, id string) (*model.ChangeRequest, error) {
	var cr model.ChangeRequest
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("change_request_id = ?", id).
		First(&cr).Error
	if err != nil {
		return nil, err
	}
	return &cr, nil
}

func (r *changeRequestRepo) List(ctx context.Context, filter ChangeRequestFilter) ([]model.ChangeRequest, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.ChangeRequest{})
	if filter.Status != "" {
		q = q.Where("change_requests.status = ?", filter.Status)
	}
	if filter.PartyID != "" {
		q = q.
			Joins("JOIN course_events ON course_events.event_id = change_requests.course_event_id").
			Joins("JOIN courses ON courses.course_id = course_events.course_id").
			Joins("LEFT JOIN groups ON groups.group_id = courses.group_id").
			Where("change_requests.initiator_id = ? OR courses.teacher_id = ? OR groups.leader_id = ?",
				filter.PartyID, filter.PartyID, filter.PartyID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var list []model.ChangeRequest
	offset := (filter.Page - 1) * filter.PageSize
	err := q.
		Preload("CourseEvent").
		Order("change_requests.created_at DESC").
		Offset(offset).Limit(filter.PageSize).
		Find(&list).Error
	return list, total, err
}

func (r *changeRequestRepo) ExistsPendingForEvent(ctx context.Context, eventID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.ChangeRequest{}).
		Where("course_event_id = ? AND status = ?", eventID, "PENDING").
		Count(&count).Error
	return count > 0, err
}

func (r *changeRequestRepo) Update(ctx context.Context, cr *model.ChangeRequest) error {
	oldVersion := cr.Version
	result := r.db.WithContext(ctx).
		Model(&model.ChangeRequest{}).
		Where("change_request_id = ? AND version = ?", cr.ChangeRequestID, oldVersion).
		Updates(map[string]interface{}{
			"status":                     cr.Status,
			"accepted_recommendation_id": cr.AcceptedRecommendationID,
			"resolved_by":                cr.ResolvedBy,
			"resolved_at":                cr.ResolvedAt,
			"updated_by":                 cr.UpdatedBy,
			"updated_at":                 gorm.Expr("NOW()"),
			"version":                    oldVersion + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	cr.Version = oldVersion + 1
	return nil
}

func (r *changeRequestRepo) CountByStatus(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		Total  int64
	}
	err := r.db.WithContext(ctx).
		Model(&model.ChangeRequest{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}
