package negotiation

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequestState   = errors.New("调课申请当前状态不允许该操作")
	ErrAlreadyDecided        = errors.New("已对该推荐方案做出决定，不可更改")
	ErrDependencyUnavailable = errors.New("教室目录或课程台账暂不可用")
	ErrEmptyProposalSet      = errors.New("可用时间不能为空")
	ErrNotParty              = errors.New("当前用户不是该调课申请的参与方")
	ErrPlacementUnavailable  = errors.New("推荐方案的教室已不再可用")
	ErrEventNotFound         = errors.New("课程事件不存在")
	ErrRoomNotFound          = errors.New("教室不存在")
)

// ErrRequestNotPending 与 ErrInvalidRequestState 为同一错误
var ErrRequestNotPending = ErrInvalidRequestState

// ValidationError 输入校验失败，在任何写操作之前返回
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "参数校验失败: " + e.Reason
	}
	return fmt.Sprintf("参数校验失败: %s %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidation 判断 err 是否为 ValidationError
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
