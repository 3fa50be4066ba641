package dto

// ── 调课协商模块 DTO ──

// CreateChangeRequestRequest 发起调课申请
type CreateChangeRequestRequest struct {
	CourseEventID     string   `json:"course_event_id"    binding:"required,uuid"`
	Reason            string   `json:"reason"             binding:"max=500"`
	MinCapacity       int      `json:"min_capacity"       binding:"min=0"`
	RequiredEquipment []string `json:"required_equipment" binding:"omitempty,max=20,dive,min=1,max=100"`
	Cyclical          bool     `json:"cyclical"`
	StartDate         *string  `json:"start_date"         binding:"omitempty,dateonly"`
	EndDate           *string  `json:"end_date"           binding:"omitempty,dateonly"`
}

// ChangeRequestListRequest 调课申请列表查询参数
type ChangeRequestListRequest struct {
	Status string `form:"status" binding:"omitempty,oneof=PENDING ACCEPTED REJECTED CANCELLED"`
	Mine   bool   `form:"mine"`
	PaginationRequest
}

// DaySlotInput 单个可用时间
type DaySlotInput struct {
	Day        string `json:"day"          binding:"required,dateonly"`
	TimeSlotID int    `json:"time_slot_id" binding:"required,min=1"`
}

// SubmitAvailabilityRequest 提交一方完整的可用时间集合
type SubmitAvailabilityRequest struct {
	ChangeRequestID string         `json:"change_request_id" binding:"required,uuid"`
	Slots           []DaySlotInput `json:"slots"             binding:"max=200,dive"`
}

// ChangeRequestActionRequest 拒绝 / 撤销整个申请
type ChangeRequestActionRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

// ── 响应 ──

// CourseEventBrief 课程事件简要信息
type CourseEventBrief struct {
	ID         string `json:"id"`
	CourseID   string `json:"course_id"`
	CourseName string `json:"course_name,omitempty"`
	RoomID     string `json:"room_id"`
	Day        string `json:"day"`
	TimeSlotID int    `json:"time_slot_id"`
}

// ChangeRequestResponse 调课申请
type ChangeRequestResponse struct {
	ID                       string            `json:"id"`
	CourseEventID            string            `json:"course_event_id"`
	CourseEvent              *CourseEventBrief `json:"course_event,omitempty"`
	InitiatorID              string            `json:"initiator_id"`
	Reason                   string            `json:"reason"`
	MinCapacity              int               `json:"min_capacity"`
	RequiredEquipment        []string          `json:"required_equipment"`
	Cyclical                 bool              `json:"cyclical"`
	StartDate                *string           `json:"start_date,omitempty"`
	EndDate                  *string           `json:"end_date,omitempty"`
	Status                   string            `json:"status"`
	AcceptedRecommendationID *string           `json:"accepted_recommendation_id,omitempty"`
	ResolvedBy               *string           `json:"resolved_by,omitempty"`
	ResolvedAt               *string           `json:"resolved_at,omitempty"`
	CreatedAt                string            `json:"created_at"`
	UpdatedAt                string            `json:"updated_at"`
}

// RoomBrief 教室简要信息
type RoomBrief struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Capacity int    `json:"capacity"`
}

// RecommendationResponse 推荐方案及双方决策标记
type RecommendationResponse struct {
	ID                string     `json:"id"`
	ChangeRequestID   string     `json:"change_request_id"`
	Day               string     `json:"day"`
	TimeSlotID        int        `json:"time_slot_id"`
	RoomID            string     `json:"room_id"`
	Room              *RoomBrief `json:"room,omitempty"`
	AcceptedByTeacher bool       `json:"accepted_by_teacher"`
	AcceptedByLeader  bool       `json:"accepted_by_leader"`
	RejectedByTeacher bool       `json:"rejected_by_teacher"`
	RejectedByLeader  bool       `json:"rejected_by_leader"`
	Superseded        bool       `json:"superseded"`
}

// NegotiationStateResponse 每个写操作都返回的协商当前状态
type NegotiationStateResponse struct {
	ChangeRequest   ChangeRequestResponse    `json:"change_request"`
	Recommendations []RecommendationResponse `json:"recommendations"`
	Outcome         string                   `json:"outcome"` // open | committed | exhausted | no_eligible_match | awaiting_proposals | rejected | cancelled
	Role            string                   `json:"role,omitempty"`
	BothProposed    bool                     `json:"both_proposed"` // 双方当前都有非空的可用时间集合
}

// NegotiationStatsResponse 管理端统计（GET /change-requests/stats）
type NegotiationStatsResponse struct {
	Pending     int64            `json:"pending"`
	ByStatus    map[string]int64 `json:"by_status"`
	ActiveRooms int64            `json:"active_rooms"`
	EventsToday int64            `json:"events_today"`
	Day         string           `json:"day"`
}

// DaySlotOutput 单个可用时间
type DaySlotOutput struct {
	Day        string `json:"day"`
	TimeSlotID int    `json:"time_slot_id"`
}

// ProposalSetResponse 双方当前的可用时间
type ProposalSetResponse struct {
	ChangeRequestID string          `json:"change_request_id"`
	Teacher         []DaySlotOutput `json:"teacher"`
	Leader          []DaySlotOutput `json:"leader"`
	BothProposed    bool            `json:"both_proposed"`
}

// ChangeRequestLogResponse 操作日志
type ChangeRequestLogResponse struct {
	ID               string  `json:"id"`
	ActorID          string  `json:"actor_id"`
	Role             string  `json:"role"`
	Action           string  `json:"action"`
	FromStatus       string  `json:"from_status,omitempty"`
	ToStatus         string  `json:"to_status,omitempty"`
	RecommendationID *string `json:"recommendation_id,omitempty"`
	Detail           string  `json:"detail,omitempty"`
	CreatedAt        string  `json:"created_at"`
}

// ── 只读目录 ──

// TimeSlotResponse 时间段
type TimeSlotResponse struct {
	ID        int    `json:"id"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// RoomResponse 教室
type RoomResponse struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Capacity  int      `json:"capacity"`
	Type      string   `json:"type"`
	IsActive  bool     `json:"is_active"`
	Equipment []string `json:"equipment"`
}

// RoomListRequest 教室列表查询参数，给出条件时只返回满足条件的启用教室
type RoomListRequest struct {
	MinCapacity int      `form:"min_capacity" binding:"min=0"`
	Equipment   []string `form:"equipment"    binding:"omitempty,max=20,dive,min=1,max=100"`
}
