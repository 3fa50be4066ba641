package negotiation

// Role 参与方角色，由课程归属推导，不落库
type Role string

const (
	RoleTeacher Role = "teacher" // 发起侧：课程教师
	RoleLeader  Role = "leader"  // 对应侧：学生组负责人
)

// Parties 一个调课申请的双方
type Parties struct {
	TeacherID string
	LeaderID  string
}

// ResolveRole 按课程归属推导 userID 的角色，与提交顺序无关
// 教师与组长为同一人时按教师处理
func ResolveRole(p Parties, userID string) (Role, error) {
	switch {
	case userID == "":
		return "", ErrNotParty
	case userID == p.TeacherID:
		return RoleTeacher, nil
	case userID == p.LeaderID:
		return RoleLeader, nil
	}
	return "", ErrNotParty
}

// Other 返回对方角色
func (r Role) Other() Role {
	if r == RoleTeacher {
		return RoleLeader
	}
	return RoleTeacher
}

// PartyID 返回该角色对应的用户
func (p Parties) PartyID(r Role) string {
	if r == RoleTeacher {
		return p.TeacherID
	}
	return p.LeaderID
}
