package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/mplazax/software-engineering-agh-sub000/internal/model"
)

// ProposalRepository 可用时间数据访问接口
type ProposalRepository interface {
	ListByRequest(ctx context.Context, changeRequestID string) ([]model.AvailabilityProposal, error)
	// ReplaceForParty 在一个事务内作废该方的旧集合并写入新集合
	ReplaceForParty(ctx context.Context, changeRequestID, userID string, proposals []model.AvailabilityProposal) error
	// SoftDeleteByRequest 申请离开 PENDING 时作废全部可用时间
	SoftDeleteByRequest(ctx context.Context, changeRequestID, deletedBy string) error
}

type proposalRepo struct {
	db *gorm.DB
}

// NewProposalRepo 创建 ProposalRepository 实例
func NewProposalRepo(db *gorm.DB) ProposalRepository {
	return &proposalRepo{db: db}
}

func (r *proposalRepo) ListByRequest(ctx context.Context, changeRequestID string) ([]model.AvailabilityProposal, error) {
	var list []model.AvailabilityProposal
	err := r.db.WithContext(ctx).
		Where("change_request_id = ?", changeRequestID).
		Order("user_id ASC, day ASC, time_slot_id ASC").
		Find(&list).Error
	return list, err
}

func (r *proposalRepo) ReplaceForParty(ctx context.Context, changeRequestID, userID string, proposals []model.AvailabilityProposal) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.AvailabilityProposal{}).
			Where("change_request_id = ? AND user_id = ?", changeRequestID, userID).
			Updates(map[string]interface{}{
				"deleted_by": userID,
				"deleted_at": gorm.Expr("NOW()"),
			}).Error; err != nil {
			return err
		}

		if len(proposals) == 0 {
			return nil
		}
		return tx.Create(&proposals).Error
	})
}

func (r *proposalRepo) SoftDeleteByRequest(ctx context.Context, changeRequestID, deletedBy string) error {
	return r.db.WithContext(ctx).
		Model(&model.AvailabilityProposal{}).
		Where("change_request_id = ?", changeRequestID).
		Updates(map[string]interface{}{
			"deleted_by": deletedBy,
			"deleted_at": gorm.Expr("NOW()"),
		}).Error
}
