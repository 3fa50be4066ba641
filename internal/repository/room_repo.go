package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/mplazax/software-engineering-agh-sub000/internal/model"
)

// RoomRepository 教室目录只读访问接口
type RoomRepository interface {
	GetByID(ctx context.Context, id string) (*model.Room, error)
	// ListEligible 容量不小于 minCapacity、设备包含 equipment 全部名称的启用教室
	ListEligible(ctx context.Context, minCapacity int, equipment []string) ([]model.Room, error)
	List(ctx context.Context) ([]model.Room, error)
}

type roomRepo struct {
	db *gorm.DB
}

// NewRoomRepo 创建 RoomRepository 实例
func NewRoomRepo(db *gorm.DB) RoomRepository {
	return &roomRepo{db: db}
}

func (r *roomRepo) GetByID(ctx context.Context, id string) (*model.Room, error) {
	var room model.Room
	err := r.db.WithContext(ctx).
		Preload("Equipment").
		Where("room_id = ?", id).
		First(&room).Error
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *roomRepo) ListEligible(ctx context.Context, minCapacity int, equipment []string) ([]model.Room, error) {
	var rooms []model.Room
	q := r.db.WithContext(ctx).
		Preload("Equipment").
		Where("is_active = ? AND capacity >= ?", true, minCapacity)
	if len(equipment) > 0 {
		sub := r.db.
			Table("room_equipment").
			Select("room_equipment.room_id").
			Joins("JOIN equipment ON equipment.equipment_id = room_equipment.equipment_id").
			Where("equipment.name IN ?", equipment).
			Group("room_equipment.room_id").
			Having("COUNT(DISTINCT equipment.name) = ?", len(uniqueNames(equipment)))
		q = q.Where("room_id IN (?)", sub)
	}
	err := q.Order("capacity ASC, room_id ASC").Find(&rooms).Error
	return rooms, err
}

func (r *roomRepo) List(ctx context.Context) ([]model.Room, error) {
	var rooms []model.Room
	err := r.db.WithContext(ctx).
		Preload("Equipment").
		Order("name ASC").
		Find(&rooms).Error
	return rooms, err
}

func uniqueNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// RoomUnavailabilityRepository 教室不可用时段只读访问接口
type RoomUnavailabilityRepository interface {
	// ListOverlapping 与 [from, to) 相交的不可用区间
	ListOverlapping(ctx context.Context, roomID string, from, to time.Time) ([]model.RoomUnavailability, error)
}

type roomUnavailabilityRepo struct {
	db *gorm.DB
}

// NewRoomUnavailabilityRepo 创建 RoomUnavailabilityRepository 实例
func NewRoomUnavailabilityRepo(db *gorm.DB) RoomUnavailabilityRepository {
	return &roomUnavailabilityRepo{db: db}
}

func (r *roomUnavailabilityRepo) ListOverlapping(ctx context.Context, roomID string, from, to time.Time) ([]model.RoomUnavailability, error) {
	var blocks []model.RoomUnavailability
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND start_at < ? AND end_at > ?", roomID, to, from).
		Order("start_at ASC").
		Find(&blocks).Error
	return blocks, err
}
