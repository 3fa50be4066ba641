package model

import "time"

// ChangeRequest 调课申请 — 对应 change_requests
type ChangeRequest struct {
	ChangeRequestID          string      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"change_request_id"`
	CourseEventID            string      `gorm:"type:uuid;not null"                             json:"course_event_id"`
	InitiatorID              string      `gorm:"type:uuid;not null"                             json:"initiator_id"`
	Reason                   string      `gorm:"type:varchar(500);not null;default:''"          json:"reason"`
	MinCapacity              int         `gorm:"not null;default:0"                             json:"min_capacity"`
	RequiredEquipment        StringArray `gorm:"type:text[];not null;default:'{}'"              json:"required_equipment"`
	Cyclical                 bool        `gorm:"not null;default:false"                         json:"cyclical"`
	StartDate                *time.Time  `gorm:"type:date"                                      json:"start_date,omitempty"`
	EndDate                  *time.Time  `gorm:"type:date"                                      json:"end_date,omitempty"`
	Status                   string      `gorm:"type:varchar(20);not null;default:'PENDING'"    json:"status"` // PENDING | ACCEPTED | REJECTED | CANCELLED
	AcceptedRecommendationID *string     `gorm:"type:uuid"                                      json:"accepted_recommendation_id,omitempty"`
	ResolvedBy               *string     `gorm:"type:uuid"                                      json:"resolved_by,omitempty"`
	ResolvedAt               *time.Time  `json:"resolved_at,omitempty"`
	VersionedModel

	// 关联
	CourseEvent *CourseEvent `gorm:"foreignKey:CourseEventID;references:EventID" json:"course_event,omitempty"`
}

// TableName 指定表名
func (ChangeRequest) TableName() string { return "change_requests" }

// AvailabilityProposal 单方提交的可用时间 — 对应 availability_proposals
type AvailabilityProposal struct {
	ProposalID      string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"proposal_id"`
	ChangeRequestID string    `gorm:"type:uuid;not null"                             json:"change_request_id"`
	UserID          string    `gorm:"type:uuid;not null"                             json:"user_id"`
	Day             time.Time `gorm:"type:date;not null"                             json:"day"`
	TimeSlotID      int       `gorm:"type:smallint;not null"                         json:"time_slot_id"`
	SoftDeleteModel
}

// TableName 指定表名
func (AvailabilityProposal) TableName() string { return "availability_proposals" }

// Recommendation 匹配生成的候选安排 — 对应 recommendations
// (Day, TimeSlotID, RoomID) 创建后不可变，只有决策标记会变化
type Recommendation struct {
	RecommendationID  string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"recommendation_id"`
	ChangeRequestID   string    `gorm:"type:uuid;not null"                             json:"change_request_id"`
	Day               time.Time `gorm:"type:date;not null"                             json:"day"`
	TimeSlotID        int       `gorm:"type:smallint;not null"                         json:"time_slot_id"`
	RoomID            string    `gorm:"type:uuid;not null"                             json:"room_id"`
	AcceptedByTeacher bool      `gorm:"not null;default:false"                         json:"accepted_by_teacher"`
	AcceptedByLeader  bool      `gorm:"not null;default:false"                         json:"accepted_by_leader"`
	RejectedByTeacher bool      `gorm:"not null;default:false"                         json:"rejected_by_teacher"`
	RejectedByLeader  bool      `gorm:"not null;default:false"                         json:"rejected_by_leader"`
	Superseded        bool      `gorm:"not null;default:false"                         json:"superseded"`
	VersionedModel

	// 关联
	Room *Room `gorm:"foreignKey:RoomID;references:RoomID" json:"room,omitempty"`
}

// TableName 指定表名
func (Recommendation) TableName() string { return "recommendations" }

// ChangeRequestLog 调课申请操作日志 — 对应 change_request_logs（纯审计日志）
type ChangeRequestLog struct {
	LogID            string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"log_id"`
	ChangeRequestID  string    `gorm:"type:uuid;not null"                             json:"change_request_id"`
	ActorID          string    `gorm:"type:uuid;not null"                             json:"actor_id"`
	Role             string    `gorm:"type:varchar(20);not null;default:''"           json:"role"`
	Action           string    `gorm:"type:varchar(30);not null"                      json:"action"` // create | submit | generate | accept | reject | exhausted | placement_unavailable | commit | reject_request | cancel
	FromStatus       string    `gorm:"type:varchar(20);not null;default:''"           json:"from_status"`
	ToStatus         string    `gorm:"type:varchar(20);not null;default:''"           json:"to_status"`
	RecommendationID *string   `gorm:"type:uuid"                                      json:"recommendation_id,omitempty"`
	Detail           string    `gorm:"type:varchar(500);not null;default:''"          json:"detail"`
	CreatedAt        time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"             json:"created_at"`
}

// TableName 指定表名
func (ChangeRequestLog) TableName() string { return "change_request_logs" }
