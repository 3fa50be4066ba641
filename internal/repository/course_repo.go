package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/mplazax/software-engineering-agh-sub000/internal/model"
)

// CourseRepository 课程只读访问接口
type CourseRepository interface {
	// GetWithGroup 查询课程并预加载学生组，用于推导调课双方
	GetWithGroup(ctx context.Context, id string) (*model.Course, error)
}

type courseRepo struct {
	db *gorm.DB
}

// NewCourseRepo 创建 CourseRepository 实例
func NewCourseRepo(db *gorm.DB) CourseRepository {
	return &courseRepo{db: db}
}

func (r *courseRepo) GetWithGroup(ctx context.Context, id string) (*model.Course, error) {
	var course model.Course
	err := r.db.WithContext(ctx).
		Preload("Group").
		Where("course_id = ?", id).
		First(&course).Error
	if err != nil {
		return nil, err
	}
	return &course, nil
}
