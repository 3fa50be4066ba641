package model

// User 用户表 — 对应 users（由外部认证服务维护，本服务只读）
type User struct {
	UserID string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"user_id"`
	Name   string `gorm:"type:varchar(100);not null"                     json:"name"`
	Email  string `gorm:"type:varchar(255);not null"                     json:"email"`
	Role   string `gorm:"type:varchar(20);not null;default:'teacher'"    json:"role"` // admin | coordinator | teacher | leader
	ReferenceModel
}

// TableName 指定表名
func (User) TableName() string { return "users" }

// Group 学生组表 — 对应 groups
type Group struct {
	GroupID  string  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"group_id"`
	Name     string  `gorm:"type:varchar(100);not null"                     json:"name"`
	Year     int     `gorm:"type:smallint;not null;default:1"               json:"year"`
	LeaderID *string `gorm:"type:uuid"                                      json:"leader_id,omitempty"`
	ReferenceModel

	// 关联
	Leader *User `gorm:"foreignKey:LeaderID;references:UserID" json:"leader,omitempty"`
}

// TableName 指定表名
func (Group) TableName() string { return "groups" }

// Course 课程表 — 对应 courses
type Course struct {
	CourseID  string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"course_id"`
	Name      string `gorm:"type:varchar(200);not null"                     json:"name"`
	TeacherID string `gorm:"type:uuid;not null"                             json:"teacher_id"`
	GroupID   string `gorm:"type:uuid;not null"                             json:"group_id"`
	ReferenceModel

	// 关联
	Teacher *User  `gorm:"foreignKey:TeacherID;references:UserID" json:"teacher,omitempty"`
	Group   *Group `gorm:"foreignKey:GroupID;references:GroupID"  json:"group,omitempty"`
}

// TableName 指定表名
func (Course) TableName() string { return "courses" }
