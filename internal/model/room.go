package model

import "time"

// Room 教室表 — 对应 rooms
type Room struct {
	RoomID   string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"room_id"`
	Name     string `gorm:"type:varchar(100);not null"                     json:"name"`
	Capacity int    `gorm:"not null"                                       json:"capacity"`
	Type     string `gorm:"type:varchar(30);not null;default:'lecture'"    json:"type"` // lecture | lab | seminar
	IsActive bool   `gorm:"not null;default:true"                          json:"is_active"`
	ReferenceModel

	// 关联
	Equipment []Equipment `gorm:"many2many:room_equipment;foreignKey:RoomID;joinForeignKey:RoomID;references:EquipmentID;joinReferences:EquipmentID" json:"equipment,omitempty"`
}

// TableName 指定表名
func (Room) TableName() string { return "rooms" }

// EquipmentNames 返回教室设备名称列表
func (r *Room) EquipmentNames() []string {
	names := make([]string, 0, len(r.Equipment))
	for _, e := range r.Equipment {
		names = append(names, e.Name)
	}
	return names
}

// Equipment 设备表 — 对应 equipment
type Equipment struct {
	EquipmentID string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"equipment_id"`
	Name        string `gorm:"type:varchar(100);not null;uniqueIndex"         json:"name"`
}

// TableName 指定表名
func (Equipment) TableName() string { return "equipment" }

// RoomUnavailability 教室不可用时段 — 对应 room_unavailability
type RoomUnavailability struct {
	UnavailabilityID string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"unavailability_id"`
	RoomID           string    `gorm:"type:uuid;not null"                             json:"room_id"`
	StartAt          time.Time `gorm:"not null"                                       json:"start_at"`
	EndAt            time.Time `gorm:"not null"                                       json:"end_at"`
	Reason           string    `gorm:"type:varchar(200)"                              json:"reason,omitempty"`
	CreatedAt        time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"             json:"created_at"`
}

// TableName 指定表名
func (RoomUnavailability) TableName() string { return "room_unavailability" }
