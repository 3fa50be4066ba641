package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/mplazax/software-engineering-agh-sub000/internal/model"
	pkgerrors "github.com/mplazax/software-engineering-agh-sub000/pkg/errors"
)

const dateLayout = "2006-01-02"

// CourseEventRepository 课程事件台账访问接口
type CourseEventRepository interface {
	GetByID(ctx context.Context, id string) (*model.CourseEvent, error)
	// ListOccurrences 同课程、同星期、同时间段且未取消的事件，日期在 [from, to] 内
	ListOccurrences(ctx context.Context, courseID string, slotID int, weekday time.Weekday, from, to time.Time) ([]model.CourseEvent, error)
	// ListConflicts 占用 roomID 在 (day, slotID) 的未取消事件，排除 excludeIDs
	ListConflicts(ctx context.Context, roomID string, day time.Time, slotID int, excludeIDs []string) ([]model.CourseEvent, error)
	// UpdatePlacement 改写事件的日期、时间段、教室（乐观锁）
	UpdatePlacement(ctx context.Context, event *model.CourseEvent) error
	// CountOnDay 当天未取消的事件数
	CountOnDay(ctx context.Context, day time.Time) (int64, error)
}

type courseEventRepo struct {
	db *gorm.DB
}

// NewCourseEventRepo 创建 CourseEventRepository 实例
func NewCourseEventRepo(db *gorm.DB) CourseEventRepository {
	return &courseEventRepo{db: db}
}

func (r *courseEventRepo) GetByID(ctx context.Context, id string) (*model.CourseEvent, error) {
	var event model.CourseEvent
	err := r.db.WithContext(ctx).
		Where("event_id = ?", id).
		First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *courseEventRepo) ListOccurrences(ctx context.Context, courseID string, slotID int, weekday time.Weekday, from, to time.Time) ([]model.CourseEvent, error) {
	var events []model.CourseEvent
	err := r.db.WithContext(ctx).
		Where("course_id = ? AND time_slot_id = ? AND canceled = ?", courseID, slotID, false).
		Where("EXTRACT(DOW FROM day) = ?", int(weekday)).
		Where("day BETWEEN ? AND ?", from.Format(dateLayout), to.Format(dateLayout)).
		Order("day ASC").
		Find(&events).Error
	return events, err
}

func (r *courseEventRepo) ListConflicts(ctx context.Context, roomID string, day time.Time, slotID int, excludeIDs []string) ([]model.CourseEvent, error) {
	var events []model.CourseEvent
	q := r.db.WithContext(ctx).
		Where("room_id = ? AND day = ? AND time_slot_id = ? AND canceled = ?", roomID, day.Format(dateLayout), slotID, false)
	if len(excludeIDs) > 0 {
		q = q.Where("event_id NOT IN ?", excludeIDs)
	}
	err := q.Find(&events).Error
	return events, err
}

func (r *courseEventRepo) UpdatePlacement(ctx context.Context, event *model.CourseEvent) error {
	oldVersion := event.Version
	result := r.db.WithContext(ctx).
		Model(&model.CourseEvent{}).
		Where("event_id = ? AND version = ?", event.EventID, oldVersion).
		Updates(map[string]interface{}{
			"day":          event.Day.Format(dateLayout),
			"time_slot_id": event.TimeSlotID,
			"room_id":      event.RoomID,
			"version":      oldVersion + 1,
			"updated_at":   gorm.Expr("NOW()"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	event.Version = oldVersion + 1
	return nil
}

func (r *courseEventRepo) CountOnDay(ctx context.Context, day time.Time) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&model.CourseEvent{}).
		Where("day = ? AND canceled = ?", day.Format(dateLayout), false).
		Count(&total).Error
	return total, err
}
