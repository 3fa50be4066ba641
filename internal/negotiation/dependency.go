package negotiation

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RoomCatalog 教室目录（只读）
type RoomCatalog interface {
	GetRoom(ctx context.Context, id string) (*Room, error)
	ListEligibleRooms(ctx context.Context, minCapacity int, requiredEquipment []string) ([]Room, error)
	ListUnavailability(ctx context.Context, roomID string, from, to time.Time) ([]Unavailability, error)
}

// EventLedger 课程事件台账
type EventLedger interface {
	GetEvent(ctx context.Context, id string) (*Event, error)
	// ListOccurrences 返回与 anchor 同课程、同星期、同时间段且未取消的事件，日期在 [from, to] 内
	ListOccurrences(ctx context.Context, anchor Event, from, to time.Time) ([]Event, error)
	// ListConflicts 返回占用 roomID 在 (day, slotID) 的未取消事件，排除 excludeEventIDs
	ListConflicts(ctx context.Context, roomID string, day time.Time, slotID int, excludeEventIDs []string) ([]Event, error)
	CommitReschedule(ctx context.Context, moves []EventMove) error
}

// TimeSlotSource 时间段配置
type TimeSlotSource interface {
	ListTimeSlots(ctx context.Context) ([]TimeSlot, error)
}

// Dependency 标签，用于指标
const (
	DepRoomCatalog = "room_catalog"
	DepEventLedger = "event_ledger"
	DepTimeSlots   = "time_slots"
)

// CallDependency 以有界超时调用外部依赖
// 超时或读取失败统一包装为 ErrDependencyUnavailable；领域内的 not found 原样返回
func CallDependency(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	err := fn(callCtx)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrEventNotFound) || errors.Is(err, ErrRoomNotFound) || errors.Is(err, ErrDependencyUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
}

// TimeSlotIndex 按 id 建立索引
func TimeSlotIndex(slots []TimeSlot) map[int]TimeSlot {
	idx := make(map[int]TimeSlot, len(slots))
	for _, s := range slots {
		idx[s.ID] = s
	}
	return idx
}
