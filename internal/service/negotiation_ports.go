package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/mplazax/software-engineering-agh-sub000/internal/model"
	"github.com/mplazax/software-engineering-agh-sub000/internal/negotiation"
	"github.com/mplazax/software-engineering-agh-sub000/internal/repository"
)

// ────────────────────── Repository → negotiation 端口适配 ──────────────────────

// roomCatalog 以 rooms / room_unavailability 表实现教室目录
type roomCatalog struct {
	repo *repository.Repository
}

func (c roomCatalog) GetRoom(ctx context.Context, id string) (*negotiation.Room, error) {
	room, err := c.repo.Room.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, negotiation.ErrRoomNotFound
		}
		return nil, err
	}
	r := toNegotiationRoom(room)
	return &r, nil
}

func (c roomCatalog) ListEligibleRooms(ctx context.Context, minCapacity int, requiredEquipment []string) ([]negotiation.Room, error) {
	rooms, err := c.repo.Room.ListEligible(ctx, minCapacity, requiredEquipment)
	if err != nil {
		return nil, err
	}
	out := make([]negotiation.Room, 0, len(rooms))
	for i := range rooms {
		out = append(out, toNegotiationRoom(&rooms[i]))
	}
	return out, nil
}

func (c roomCatalog) ListUnavailability(ctx context.Context, roomID string, from, to time.Time) ([]negotiation.Unavailability, error) {
	blocks, err := c.repo.RoomUnavailability.ListOverlapping(ctx, roomID, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]negotiation.Unavailability, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, negotiation.Unavailability{RoomID: b.RoomID, Start: b.StartAt, End: b.EndAt})
	}
	return out, nil
}

// eventLedger 以 course_events 表实现课程台账
type eventLedger struct {
	repo *repository.Repository
}

func (l eventLedger) GetEvent(ctx context.Context, id string) (*negotiation.Event, error) {
	event, err := l.repo.CourseEvent.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, negotiation.ErrEventNotFound
		}
		return nil, err
	}
	e := toNegotiationEvent(event)
	return &e, nil
}

func (l eventLedger) ListOccurrences(ctx context.Context, anchor negotiation.Event, from, to time.Time) ([]negotiation.Event, error) {
	events, err := l.repo.CourseEvent.ListOccurrences(ctx, anchor.CourseID, anchor.SlotID, negotiation.DateOf(anchor.Day).Weekday(), from, to)
	if err != nil {
		return nil, err
	}
	return toNegotiationEvents(events), nil
}

func (l eventLedger) ListConflicts(ctx context.Context, roomID string, day time.Time, slotID int, excludeEventIDs []string) ([]negotiation.Event, error) {
	events, err := l.repo.CourseEvent.ListConflicts(ctx, roomID, day, slotID, excludeEventIDs)
	if err != nil {
		return nil, err
	}
	return toNegotiationEvents(events), nil
}

// CommitReschedule 改写全部事件；须使用绑定事务的 Repository 调用
// 按平移方向排序写入，保证每个目标位置在写入前已被同组事件腾空
func (l eventLedger) CommitReschedule(ctx context.Context, moves []negotiation.EventMove) error {
	events := make([]*model.CourseEvent, 0, len(moves))
	for _, m := range moves {
		event, err := l.repo.CourseEvent.GetByID(ctx, m.EventID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return negotiation.ErrEventNotFound
			}
			return err
		}
		events = append(events, event)
	}

	order := make([]int, len(moves))
	for i := range order {
		order[i] = i
	}
	forward := len(moves) > 0 && negotiation.DateOf(moves[0].Day).After(negotiation.DateOf(events[0].Day))
	sort.SliceStable(order, func(a, b int) bool {
		da, db := moves[order[a]].Day, moves[order[b]].Day
		if forward {
			return da.After(db)
		}
		return da.Before(db)
	})

	for _, i := range order {
		event, m := events[i], moves[i]
		event.Day = negotiation.DateOf(m.Day)
		event.TimeSlotID = m.SlotID
		event.RoomID = m.RoomID
		if err := l.repo.CourseEvent.UpdatePlacement(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// timeSlotSource 以 time_slots 表实现时间段配置
type timeSlotSource struct {
	repo *repository.Repository
}

func (s timeSlotSource) ListTimeSlots(ctx context.Context) ([]negotiation.TimeSlot, error) {
	slots, err := s.repo.TimeSlot.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]negotiation.TimeSlot, 0, len(slots))
	for _, ts := range slots {
		out = append(out, negotiation.TimeSlot{ID: ts.TimeSlotID, Start: ts.StartTime, End: ts.EndTime})
	}
	return out, nil
}

// ── 转换 ──

func toNegotiationRoom(r *model.Room) negotiation.Room {
	return negotiation.Room{
		ID:        r.RoomID,
		Name:      r.Name,
		Capacity:  r.Capacity,
		Equipment: r.EquipmentNames(),
		Active:    r.IsActive,
	}
}

func toNegotiationEvent(e *model.CourseEvent) negotiation.Event {
	return negotiation.Event{
		ID:       e.EventID,
		CourseID: e.CourseID,
		RoomID:   e.RoomID,
		Day:      negotiation.DateOf(e.Day),
		SlotID:   e.TimeSlotID,
		Canceled: e.Canceled,
	}
}

func toNegotiationEvents(events []model.CourseEvent) []negotiation.Event {
	out := make([]negotiation.Event, 0, len(events))
	for i := range events {
		out = append(out, toNegotiationEvent(&events[i]))
	}
	return out
}

// loadEventWithCourse 查询课程事件并挂上课程及学生组，用于推导调课双方
func loadEventWithCourse(ctx context.Context, repo *repository.Repository, eventID string) (*model.CourseEvent, error) {
	event, err := repo.CourseEvent.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	course, err := repo.Course.GetWithGroup(ctx, event.CourseID)
	if err != nil {
		return nil, err
	}
	event.Course = course
	return event, nil
}

// partiesOf 由课程归属推导双方；组未设置组长时 LeaderID 为空
func partiesOf(event *model.CourseEvent) negotiation.Parties {
	var p negotiation.Parties
	if event.Course == nil {
		return p
	}
	p.TeacherID = event.Course.TeacherID
	if event.Course.Group != nil && event.Course.Group.LeaderID != nil {
		p.LeaderID = *event.Course.Group.LeaderID
	}
	return p
}
