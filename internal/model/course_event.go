package model

import "time"

// CourseEvent 课程事件（单次上课安排）— 对应 course_events
type CourseEvent struct {
	EventID    string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"event_id"`
	CourseID   string    `gorm:"type:uuid;not null"                             json:"course_id"`
	RoomID     string    `gorm:"type:uuid;not null"                             json:"room_id"`
	Day        time.Time `gorm:"type:date;not null"                             json:"day"`
	TimeSlotID int       `gorm:"type:smallint;not null"                         json:"time_slot_id"`
	Canceled   bool      `gorm:"not null;default:false"                         json:"canceled"`
	Version    int       `gorm:"not null;default:1"                             json:"version"`
	ReferenceModel

	// 关联
	Course *Course `gorm:"foreignKey:CourseID;references:CourseID" json:"course,omitempty"`
	Room   *Room   `gorm:"foreignKey:RoomID;references:RoomID"     json:"room,omitempty"`
}

// TableName 指定表名
func (CourseEvent) TableName() string { return "course_events" }
