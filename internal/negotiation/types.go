package negotiation

import (
	"fmt"
	"sort"
	"time"
)

// DayLayout 日期的统一文本格式
const DayLayout = "2006-01-02"

// DateOf 截取日期部分，统一为 UTC 零点
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay 解析 YYYY-MM-DD
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DayLayout, s)
	if err != nil {
		return time.Time{}, invalid("day", "日期格式应为 YYYY-MM-DD: %q", s)
	}
	return t, nil
}

// DaySlot 某一天的某个时间段
type DaySlot struct {
	Day    time.Time
	SlotID int
}

// NewDaySlot 构造 DaySlot，Day 只保留日期部分
func NewDaySlot(day time.Time, slotID int) DaySlot {
	return DaySlot{Day: DateOf(day), SlotID: slotID}
}

// Key 用于集合运算的唯一键
func (d DaySlot) Key() string {
	return fmt.Sprintf("%s#%d", d.Day.Format(DayLayout), d.SlotID)
}

func (d DaySlot) String() string { return d.Key() }

// Before 按日期升序、再按时间段升序
func (d DaySlot) Before(o DaySlot) bool {
	if !d.Day.Equal(o.Day) {
		return d.Day.Before(o.Day)
	}
	return d.SlotID < o.SlotID
}

// SortDaySlots 原地排序
func SortDaySlots(s []DaySlot) {
	sort.Slice(s, func(i, j int) bool { return s[i].Before(s[j]) })
}

// TimeSlot 每日固定时间段，Start/End 为 "15:04" 或 "15:04:05"
type TimeSlot struct {
	ID    int
	Start string
	End   string
}

// Window 返回该时间段在指定日期、时区下的真实时间窗口 [start, end)
func (s TimeSlot) Window(day time.Time, loc *time.Location) (time.Time, time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	sh, sm, err := parseClock(s.Start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	eh, em, err := parseClock(s.End)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, sh, sm, 0, 0, loc), time.Date(y, m, d, eh, em, 0, 0, loc), nil
}

func parseClock(v string) (int, int, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.Hour(), t.Minute(), nil
		}
	}
	return 0, 0, fmt.Errorf("无法解析时间 %q", v)
}

// Room 教室目录中的一间教室
type Room struct {
	ID        string
	Name      string
	Capacity  int
	Equipment []string
	Active    bool
}

// HasEquipment 判断教室设备是否包含全部要求的设备
func (r Room) HasEquipment(required []string) bool {
	if len(required) == 0 {
		return true
	}
	have := make(map[string]struct{}, len(r.Equipment))
	for _, e := range r.Equipment {
		have[e] = struct{}{}
	}
	for _, e := range required {
		if _, ok := have[e]; !ok {
			return false
		}
	}
	return true
}

// Unavailability 教室不可用区间 [Start, End)
type Unavailability struct {
	RoomID string
	Start  time.Time
	End    time.Time
}

// Overlaps 判断是否与 [from, to) 相交
func (u Unavailability) Overlaps(from, to time.Time) bool {
	return u.Start.Before(to) && u.End.After(from)
}

// Event 课程台账中的一次课程安排
type Event struct {
	ID       string
	CourseID string
	RoomID   string
	Day      time.Time
	SlotID   int
	Canceled bool
}

// EventMove 一次改期写入
type EventMove struct {
	EventID string
	Day     time.Time
	SlotID  int
	RoomID  string
}

// Placement 匹配结果：日期、时间段、教室
type Placement struct {
	DaySlot
	RoomID string
}

// Request 参与匹配的调课申请
type Request struct {
	ID                string
	Anchor            Event
	MinCapacity       int
	RequiredEquipment []string
	Cyclical          bool
	StartDate         *time.Time
	EndDate           *time.Time
}
