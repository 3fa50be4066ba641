package negotiation

// Decision 单方对某个推荐方案的决定
type Decision string

const (
	DecisionAccept Decision = "accept"
	DecisionReject Decision = "reject"
)

// Flags 推荐方案的四个决策标记及是否已被取代
type Flags struct {
	AcceptedByTeacher bool
	AcceptedByLeader  bool
	RejectedByTeacher bool
	RejectedByLeader  bool
	Superseded        bool
}

// Decided 该角色是否已做出决定
func (f Flags) Decided(r Role) bool {
	if r == RoleTeacher {
		return f.AcceptedByTeacher || f.RejectedByTeacher
	}
	return f.AcceptedByLeader || f.RejectedByLeader
}

// BothAccepted 双方均已接受
func (f Flags) BothAccepted() bool {
	return f.AcceptedByTeacher && f.AcceptedByLeader
}

// Rejected 至少一方拒绝
func (f Flags) Rejected() bool {
	return f.RejectedByTeacher || f.RejectedByLeader
}

// Consistent 同一方的接受与拒绝互斥
func (f Flags) Consistent() bool {
	return !(f.AcceptedByTeacher && f.RejectedByTeacher) && !(f.AcceptedByLeader && f.RejectedByLeader)
}

// Decide 执行单向迁移 UNDECIDED → ACCEPTED / REJECTED，返回新标记
func Decide(f Flags, r Role, d Decision) (Flags, error) {
	if f.Superseded {
		return f, ErrInvalidRequestState
	}
	if f.Decided(r) {
		return f, ErrAlreadyDecided
	}
	switch {
	case r == RoleTeacher && d == DecisionAccept:
		f.AcceptedByTeacher = true
	case r == RoleTeacher && d == DecisionReject:
		f.RejectedByTeacher = true
	case r == RoleLeader && d == DecisionAccept:
		f.AcceptedByLeader = true
	case r == RoleLeader && d == DecisionReject:
		f.RejectedByLeader = true
	default:
		return f, invalid("decision", "未知的角色或决定: %s/%s", r, d)
	}
	return f, nil
}

// Outcome 协商的阶段性结果
type Outcome string

const (
	OutcomeOpen              Outcome = "open"               // 仍有待决定的方案
	OutcomeCommitted         Outcome = "committed"          // 双方接受同一方案，申请已完成
	OutcomeExhausted         Outcome = "exhausted"          // 所有方案都被拒绝，等待重新提交可用时间
	OutcomeNoEligibleMatch   Outcome = "no_eligible_match"  // 双方都已提交，但没有可用的时间与教室
	OutcomeAwaitingProposals Outcome = "awaiting_proposals" // 还有一方未提交
	OutcomeRejected          Outcome = "rejected"
	OutcomeCancelled         Outcome = "cancelled"
)

// LedgerEntry 参与评估的推荐方案
type LedgerEntry struct {
	ID string
	Flags
}

// Resolution Evaluate 的结果，Outcome 为 committed 时 WinnerID 有效
type Resolution struct {
	Outcome  Outcome
	WinnerID string
}

// Evaluate 每次标记变化后调用的规则函数
//   - 任一方案双方接受 ⇒ committed
//   - 所有方案至少一方拒绝 ⇒ exhausted
//   - 否则 open
func Evaluate(entries []LedgerEntry) Resolution {
	live := 0
	allRejected := true
	for _, e := range entries {
		if e.Superseded {
			continue
		}
		live++
		if e.BothAccepted() {
			return Resolution{Outcome: OutcomeCommitted, WinnerID: e.ID}
		}
		if !e.Rejected() {
			allRejected = false
		}
	}
	if live > 0 && allRejected {
		return Resolution{Outcome: OutcomeExhausted}
	}
	return Resolution{Outcome: OutcomeOpen}
}
