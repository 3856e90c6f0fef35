package payout

import (
	"errors"
	"fmt"
)

// Kind 通道错误分类
type Kind string

const (
	KindValidation      Kind = "VALIDATION"
	KindNoLinkedAccount Kind = "NO_LINKED_ACCOUNT"
	KindRailDeclined    Kind = "RAIL_DECLINED"
	KindRailUnavailable Kind = "RAIL_UNAVAILABLE"
	KindAlreadySettled  Kind = "ALREADY_SETTLED"
)

var (
	// ErrUnknownRail 未注册的通道
	ErrUnknownRail = errors.New("unknown payout rail")
	// ErrNoRails 未配置任何通道
	ErrNoRails = errors.New("no payout rail configured")
)

// Error 分类后的通道错误
type Error struct {
	Kind    Kind
	Code    string // 通道原始错误码
	Message string
	Err     error
}

// Error 实现 error 接口
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("%s(%s): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap 返回底层错误
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewError 构造分类错误
func NewError(kind Kind, code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

// KindOf 返回错误分类，未分类错误视为通道不可用
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var railErr *Error
	if errors.As(err, &railErr) {
		return railErr.Kind
	}
	return KindRailUnavailable
}

// IsRetryable 判断错误是否可以由重试调度器再次尝试
func IsRetryable(err error) bool {
	return KindOf(err) == KindRailUnavailable
}

// IsSettled 判断错误是否表示此前已成功结算
func IsSettled(err error) bool {
	return KindOf(err) == KindAlreadySettled
}
