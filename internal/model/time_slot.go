package model

// TimeSlot 每日固定时间段 — 对应 time_slots，TimeSlotID 即当天序号
type TimeSlot struct {
	TimeSlotID int    `gorm:"type:smallint;primaryKey;autoIncrement:false" json:"time_slot_id"`
	StartTime  string `gorm:"type:time;not null"                           json:"start_time"`
	EndTime    string `gorm:"type:time;not null"                           json:"end_time"`
}

// TableName 指定表名
func (TimeSlot) TableName() string { return "time_slots" }
