package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repository 所有 Repository 的聚合入口
type Repository struct {
	db *gorm.DB

	User               UserRepository
	Course             CourseRepository
	CourseEvent        CourseEventRepository
	Room               RoomRepository
	RoomUnavailability RoomUnavailabilityRepository
	TimeSlot           TimeSlotRepository
	ChangeRequest      ChangeRequestRepository
	Proposal           ProposalRepository
	Recommendation     RecommendationRepository
	ChangeRequestLog   ChangeRequestLogRepository
}

// NewRepository 创建 Repository 聚合
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		db:                 db,
		User:               NewUserRepo(db),
		Course:             NewCourseRepo(db),
		CourseEvent:        NewCourseEventRepo(db),
		Room:               NewRoomRepo(db),
		RoomUnavailability: NewRoomUnavailabilityRepo(db),
		TimeSlot:           NewTimeSlotRepo(db),
		ChangeRequest:      NewChangeRequestRepo(db),
		Proposal:           NewProposalRepo(db),
		Recommendation:     NewRecommendationRepo(db),
		ChangeRequestLog:   NewChangeRequestLogRepo(db),
	}
}

// BeginTx 开启事务；未连接数据库（单元测试中的 mock 聚合）时返回 nil
func (r *Repository) BeginTx(ctx context.Context) (*gorm.DB, error) {
	if r.db == nil {
		return nil, nil
	}
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	return tx, nil
}

// WithTx 返回绑定到 tx 的 Repository 聚合；tx 为 nil 时返回自身
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return NewRepository(tx)
}

// Savepoint 在当前事务内设置保存点后执行 fn，fn 失败时只回滚到保存点，事务仍可继续使用
// 须在 WithTx 返回的聚合上调用；未连接数据库时直接执行 fn
func (r *Repository) Savepoint(name string, fn func() error) error {
	if r.db == nil {
		return fn()
	}
	if err := r.db.SavePoint(name).Error; err != nil {
		return err
	}
	if err := fn(); err != nil {
		if rbErr := r.db.RollbackTo(name).Error; rbErr != nil {
			return rbErr
		}
		return err
	}
	return nil
}

// Ping 数据库健康检查
func (r *Repository) Ping(ctx context.Context) error {
	if r.db == nil {
		return nil
	}
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
