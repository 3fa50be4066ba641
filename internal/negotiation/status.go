package negotiation

// RequestStatus 调课申请状态
type RequestStatus string

const (
	StatusPending   RequestStatus = "PENDING"
	StatusAccepted  RequestStatus = "ACCEPTED"
	StatusRejected  RequestStatus = "REJECTED"
	StatusCancelled RequestStatus = "CANCELLED"
)

// Valid 是否为已知状态
func (s RequestStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// Terminal 终态不再接受任何变更
func (s RequestStatus) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected || s == StatusCancelled
}

// Transition 校验状态迁移：只允许 PENDING → 终态
func Transition(from, to RequestStatus) error {
	if from != StatusPending || !to.Terminal() {
		return ErrInvalidRequestState
	}
	return nil
}

// RequirePending 非 PENDING 即报错
func RequirePending(s RequestStatus) error {
	if s != StatusPending {
		return ErrInvalidRequestState
	}
	return nil
}
