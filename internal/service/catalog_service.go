package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/mplazax/software-engineering-agh-sub000/internal/dto"
	"github.com/mplazax/software-engineering-agh-sub000/internal/model"
	"github.com/mplazax/software-engineering-agh-sub000/internal/repository"
)

// CatalogService 时间段与教室的只读目录，供参与方填写可用时间
type CatalogService interface {
	ListTimeSlots(ctx context.Context) ([]dto.TimeSlotResponse, error)
	ListRooms(ctx context.Context, req *dto.RoomListRequest) ([]dto.RoomResponse, error)
}

type catalogService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewCatalogService 创建 CatalogService 实例
func NewCatalogService(repo *repository.Repository, logger *zap.Logger) CatalogService {
	return &catalogService{repo: repo, logger: logger}
}

func (s *catalogService) ListTimeSlots(ctx context.Context) ([]dto.TimeSlotResponse, error) {
	slots, err := s.repo.TimeSlot.List(ctx)
	if err != nil {
		s.logger.Error("列出时间段失败", zap.Error(err))
		return nil, err
	}

	result := make([]dto.TimeSlotResponse, 0, len(slots))
	for _, ts := range slots {
		result = append(result, dto.TimeSlotResponse{
			ID:        ts.TimeSlotID,
			StartTime: clock(ts.StartTime),
			EndTime:   clock(ts.EndTime),
		})
	}
	return result, nil
}

func (s *catalogService) ListRooms(ctx context.Context, req *dto.RoomListRequest) ([]dto.RoomResponse, error) {
	var (
		rooms []model.Room
		err   error
	)
	equipment := normalizeEquipment(req.Equipment)
	if req.MinCapacity > 0 || len(equipment) > 0 {
		rooms, err = s.repo.Room.ListEligible(ctx, req.MinCapacity, equipment)
	} else {
		rooms, err = s.repo.Room.List(ctx)
	}
	if err != nil {
		s.logger.Error("列出教室失败", zap.Error(err))
		return nil, err
	}

	result := make([]dto.RoomResponse, 0, len(rooms))
	for i := range rooms {
		r := &rooms[i]
		result = append(result, dto.RoomResponse{
			ID:        r.RoomID,
			Name:      r.Name,
			Capacity:  r.Capacity,
			Type:      r.Type,
			IsActive:  r.IsActive,
			Equipment: r.EquipmentNames(),
		})
	}
	return result, nil
}
