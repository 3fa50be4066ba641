package negotiation

import "time"

// NormalizeProposals 校验并去重一方提交的可用时间，结果有序
// 未知时间段或早于 today 的日期返回 ValidationError
func NormalizeProposals(in []DaySlot, knownSlots map[int]TimeSlot, today time.Time) ([]DaySlot, error) {
	today = DateOf(today)
	seen := make(map[string]struct{}, len(in))
	out := make([]DaySlot, 0, len(in))
	for i, p := range in {
		ds := NewDaySlot(p.Day, p.SlotID)
		if _, ok := knownSlots[ds.SlotID]; !ok {
			return nil, invalid("slots", "第 %d 项时间段 %d 不存在", i+1, ds.SlotID)
		}
		if ds.Day.Before(today) {
			return nil, invalid("slots", "第 %d 项日期 %s 早于今天", i+1, ds.Day.Format(DayLayout))
		}
		if _, dup := seen[ds.Key()]; dup {
			continue
		}
		seen[ds.Key()] = struct{}{}
		out = append(out, ds)
	}
	SortDaySlots(out)
	return out, nil
}

// Intersect 计算双方可用时间的交集，按日期、时间段升序
func Intersect(teacher, leader []DaySlot) []DaySlot {
	if len(teacher) == 0 || len(leader) == 0 {
		return nil
	}
	index := make(map[string]struct{}, len(leader))
	for _, p := range leader {
		index[NewDaySlot(p.Day, p.SlotID).Key()] = struct{}{}
	}
	seen := make(map[string]struct{})
	var out []DaySlot
	for _, p := range teacher {
		ds := NewDaySlot(p.Day, p.SlotID)
		if _, ok := index[ds.Key()]; !ok {
			continue
		}
		if _, dup := seen[ds.Key()]; dup {
			continue
		}
		seen[ds.Key()] = struct{}{}
		out = append(out, ds)
	}
	SortDaySlots(out)
	return out
}

// ValidateRecurrence 校验周期性申请的日期范围
// 周期性申请必须给出起止日期，且 anchor 所在日期落在范围内
func ValidateRecurrence(cyclical bool, anchor time.Time, start, end *time.Time) error {
	if !cyclical {
		if start != nil || end != nil {
			return invalid("cyclical", "非周期性申请不能设置日期范围")
		}
		return nil
	}
	if start == nil || end == nil {
		return invalid("end_date", "周期性申请必须同时设置 start_date 与 end_date")
	}
	s, e, a := DateOf(*start), DateOf(*end), DateOf(anchor)
	if s.After(e) {
		return invalid("start_date", "不能晚于 end_date")
	}
	if a.Before(s) || a.After(e) {
		return invalid("start_date", "课程事件日期 %s 不在周期范围内", a.Format(DayLayout))
	}
	return nil
}

// RecurrenceRange 返回周期性申请需要搬移的事件所在区间 [max(anchor, start), end]
func RecurrenceRange(req Request) (time.Time, time.Time) {
	from := DateOf(req.Anchor.Day)
	to := from
	if req.StartDate != nil && DateOf(*req.StartDate).After(from) {
		from = DateOf(*req.StartDate)
	}
	if req.EndDate != nil {
		to = DateOf(*req.EndDate)
	}
	return from, to
}

func dayOffset(from, to time.Time) int {
	return int(DateOf(to).Sub(DateOf(from)).Hours() / 24)
}
