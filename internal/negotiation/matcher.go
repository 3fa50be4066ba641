package negotiation

import (
	"context"
	"errors"
	"sort"
	"time"
)

// MatcherOptions 匹配器配置
type MatcherOptions struct {
	Policy   RoomPolicy
	Timeout  time.Duration  // 每次外部读取的超时
	Location *time.Location // 时间段换算真实时间所用时区
	Metrics  *Metrics
}

// Matcher 求双方可用时间交集，并为每个交集时间段分配一间教室
type Matcher struct {
	rooms  RoomCatalog
	ledger EventLedger
	slots  TimeSlotSource
	opts   MatcherOptions
}

// NewMatcher 创建匹配器
func NewMatcher(rooms RoomCatalog, ledger EventLedger, slots TimeSlotSource, opts MatcherOptions) *Matcher {
	if opts.Policy == "" {
		opts.Policy = PolicySmallestFit
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Matcher{rooms: rooms, ledger: ledger, slots: slots, opts: opts}
}

// Policy 当前教室选择策略
func (m *Matcher) Policy() RoomPolicy { return m.opts.Policy }

// matchPlan 一次匹配过程中复用的只读数据
type matchPlan struct {
	req      Request
	slots    map[int]TimeSlot
	targets  []Event
	exclude  []string
	rooms    []Room
	from, to time.Time
	blocks   map[string][]Unavailability
}

// Generate 计算推荐方案，按日期、时间段升序
// 交集为空时不访问任何外部依赖，直接返回空结果
func (m *Matcher) Generate(ctx context.Context, req Request, teacher, leader []DaySlot) ([]Placement, error) {
	started := time.Now()
	candidates := Intersect(teacher, leader)
	if len(candidates) == 0 {
		m.opts.Metrics.observeGeneration(0, time.Since(started))
		return nil, nil
	}

	plan, err := m.prepare(ctx, req, candidates)
	if err != nil {
		return nil, err
	}
	if plan.rooms, err = m.eligibleRooms(ctx, req); err != nil {
		return nil, err
	}

	var out []Placement
	for _, c := range candidates {
		if _, ok := plan.slots[c.SlotID]; !ok {
			continue
		}
		for _, room := range plan.rooms {
			free, err := m.roomFree(ctx, plan, room.ID, c)
			if err != nil {
				return nil, err
			}
			if free {
				out = append(out, Placement{DaySlot: c, RoomID: room.ID})
				break
			}
		}
	}

	m.opts.Metrics.observeGeneration(len(out), time.Since(started))
	return out, nil
}

// Plan 在提交前重新校验方案，返回需写入台账的改期列表
// 原课程事件已取消或已被改动、教室已不满足条件或已被占用时返回 ErrPlacementUnavailable
func (m *Matcher) Plan(ctx context.Context, req Request, p Placement) ([]EventMove, error) {
	var anchor *Event
	if err := m.call(ctx, DepEventLedger, func(ctx context.Context) error {
		var err error
		anchor, err = m.ledger.GetEvent(ctx, req.Anchor.ID)
		return err
	}); err != nil {
		if errors.Is(err, ErrEventNotFound) {
			return nil, ErrPlacementUnavailable
		}
		return nil, err
	}
	if anchor.Canceled || anchor.SlotID != req.Anchor.SlotID || !DateOf(anchor.Day).Equal(DateOf(req.Anchor.Day)) {
		return nil, ErrPlacementUnavailable
	}

	var room *Room
	if err := m.call(ctx, DepRoomCatalog, func(ctx context.Context) error {
		var err error
		room, err = m.rooms.GetRoom(ctx, p.RoomID)
		return err
	}); err != nil {
		if errors.Is(err, ErrRoomNotFound) {
			return nil, ErrPlacementUnavailable
		}
		return nil, err
	}
	if !fits(*room, req) {
		return nil, ErrPlacementUnavailable
	}

	c := NewDaySlot(p.Day, p.SlotID)
	plan, err := m.prepare(ctx, req, []DaySlot{c})
	if err != nil {
		return nil, err
	}
	if _, ok := plan.slots[c.SlotID]; !ok {
		return nil, ErrPlacementUnavailable
	}

	free, err := m.roomFree(ctx, plan, p.RoomID, c)
	if err != nil {
		return nil, err
	}
	if !free {
		return nil, ErrPlacementUnavailable
	}

	offset := dayOffset(req.Anchor.Day, c.Day)
	moves := make([]EventMove, 0, len(plan.targets))
	for _, t := range plan.targets {
		moves = append(moves, EventMove{
			EventID: t.ID,
			Day:     DateOf(t.Day).AddDate(0, 0, offset),
			SlotID:  c.SlotID,
			RoomID:  p.RoomID,
		})
	}
	return moves, nil
}

func (m *Matcher) prepare(ctx context.Context, req Request, candidates []DaySlot) (*matchPlan, error) {
	plan := &matchPlan{req: req, blocks: make(map[string][]Unavailability)}

	var slots []TimeSlot
	if err := m.call(ctx, DepTimeSlots, func(ctx context.Context) error {
		var err error
		slots, err = m.slots.ListTimeSlots(ctx)
		return err
	}); err != nil {
		return nil, err
	}
	plan.slots = TimeSlotIndex(slots)

	targets, err := m.targets(ctx, req)
	if err != nil {
		return nil, err
	}
	plan.targets = targets
	for _, t := range targets {
		plan.exclude = append(plan.exclude, t.ID)
	}

	// 不可用区间的查询范围覆盖所有候选时间段在所有目标事件上的平移
	first := true
	for _, c := range candidates {
		slot, ok := plan.slots[c.SlotID]
		if !ok {
			continue
		}
		offset := dayOffset(req.Anchor.Day, c.Day)
		for _, t := range targets {
			start, end, err := slot.Window(DateOf(t.Day).AddDate(0, 0, offset), m.opts.Location)
			if err != nil {
				return nil, err
			}
			if first || start.Before(plan.from) {
				plan.from = start
			}
			if first || end.After(plan.to) {
				plan.to = end
			}
			first = false
		}
	}
	return plan, nil
}

// eligibleRooms 按当前策略排序的可选教室
func (m *Matcher) eligibleRooms(ctx context.Context, req Request) ([]Room, error) {
	var rooms []Room
	if err := m.call(ctx, DepRoomCatalog, func(ctx context.Context) error {
		var err error
		rooms, err = m.rooms.ListEligibleRooms(ctx, req.MinCapacity, req.RequiredEquipment)
		return err
	}); err != nil {
		return nil, err
	}
	eligible := make([]Room, 0, len(rooms))
	for _, r := range rooms {
		if fits(r, req) {
			eligible = append(eligible, r)
		}
	}
	return OrderRooms(eligible, m.opts.Policy), nil
}

// targets 非周期性申请只搬移 anchor；周期性申请搬移范围内全部后续事件
func (m *Matcher) targets(ctx context.Context, req Request) ([]Event, error) {
	if !req.Cyclical {
		return []Event{req.Anchor}, nil
	}

	from, to := RecurrenceRange(req)
	var occ []Event
	if err := m.call(ctx, DepEventLedger, func(ctx context.Context) error {
		var err error
		occ, err = m.ledger.ListOccurrences(ctx, req.Anchor, from, to)
		return err
	}); err != nil {
		return nil, err
	}

	out := make([]Event, 0, len(occ)+1)
	hasAnchor := false
	for _, e := range occ {
		if e.Canceled {
			continue
		}
		if e.ID == req.Anchor.ID {
			hasAnchor = true
		}
		out = append(out, e)
	}
	if !hasAnchor {
		out = append(out, req.Anchor)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out, nil
}

// roomFree 教室在候选时间段平移到每个目标事件后都没有不可用区间与占用
func (m *Matcher) roomFree(ctx context.Context, plan *matchPlan, roomID string, c DaySlot) (bool, error) {
	slot := plan.slots[c.SlotID]

	blocks, ok := plan.blocks[roomID]
	if !ok {
		if err := m.call(ctx, DepRoomCatalog, func(ctx context.Context) error {
			var err error
			blocks, err = m.rooms.ListUnavailability(ctx, roomID, plan.from, plan.to)
			return err
		}); err != nil {
			return false, err
		}
		plan.blocks[roomID] = blocks
	}

	offset := dayOffset(plan.req.Anchor.Day, c.Day)
	for _, t := range plan.targets {
		day := DateOf(t.Day).AddDate(0, 0, offset)
		start, end, err := slot.Window(day, m.opts.Location)
		if err != nil {
			return false, err
		}
		for _, b := range blocks {
			if b.Overlaps(start, end) {
				return false, nil
			}
		}

		var conflicts []Event
		if err := m.call(ctx, DepEventLedger, func(ctx context.Context) error {
			var err error
			conflicts, err = m.ledger.ListConflicts(ctx, roomID, day, c.SlotID, plan.exclude)
			return err
		}); err != nil {
			return false, err
		}
		if len(conflicts) > 0 {
			return false, nil
		}
	}
	return true, nil
}

func (m *Matcher) call(ctx context.Context, dep string, fn func(context.Context) error) error {
	err := CallDependency(ctx, m.opts.Timeout, fn)
	if err != nil {
		m.opts.Metrics.observeDependencyError(dep)
	}
	return err
}
