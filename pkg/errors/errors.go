package errors

import (
	"errors"
	"fmt"
)

// ErrOptimisticLock 乐观锁冲突：记录已被其他操作修改
var ErrOptimisticLock = errors.New("数据已被其他操作修改，请刷新后重试")

// Kind 错误分类，调用方据此判断被拒绝的具体原因
type Kind string

const (
	KindValidation   Kind = "validation"    // 输入不合法：日期格式错误、重复 lead 等
	KindConflict     Kind = "conflict"      // 状态已存在：已有生效中的延期窗口等
	KindNotFound     Kind = "not_found"     // 引用的工单/排班日/员工不存在
	KindInvalidState Kind = "invalid_state" // 当前生命周期状态下不允许该操作
)

// 分类哨兵：errors.Is(err, ErrConflict) 对任意 Conflict 类错误成立
var (
	ErrValidation   = &Error{Kind: KindValidation, Message: "参数校验失败"}
	ErrConflict     = &Error{Kind: KindConflict, Message: "状态冲突"}
	ErrNotFound     = &Error{Kind: KindNotFound, Message: "资源不存在"}
	ErrInvalidState = &Error{Kind: KindInvalidState, Message: "当前状态不允许该操作"}
)

// Error 带分类的业务错误
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is 同一分类的哨兵视为匹配；具体的模块哨兵仍按指针相等匹配
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e == t {
		return true
	}
	return isKindSentinel(t) && e.Kind == t.Kind
}

func isKindSentinel(e *Error) bool {
	return e == ErrValidation || e == ErrConflict || e == ErrNotFound || e == ErrInvalidState
}

// ── 构造函数 ──

func Validation(msg string) *Error   { return &Error{Kind: KindValidation, Message: msg} }
func Conflict(msg string) *Error     { return &Error{Kind: KindConflict, Message: msg} }
func NotFound(msg string) *Error     { return &Error{Kind: KindNotFound, Message: msg} }
func InvalidState(msg string) *Error { return &Error{Kind: KindInvalidState, Message: msg} }

// Wrap 为已有错误附加分类与上下文；base 为模块哨兵时仍可通过 errors.Is 命中
func Wrap(base *Error, err error) *Error {
	return &Error{Kind: base.Kind, Message: base.Message, Err: joinSentinel{base: base, err: err}}
}

// joinSentinel 让 Wrap 后的错误同时匹配 base 哨兵与底层错误
type joinSentinel struct {
	base *Error
	err  error
}

func (j joinSentinel) Error() string {
	if j.err == nil {
		return ""
	}
	return j.err.Error()
}

func (j joinSentinel) Unwrap() []error {
	if j.err == nil {
		return []error{j.base}
	}
	return []error{j.base, j.err}
}

// KindOf 返回错误链上第一个业务错误的分类；非业务错误返回空串
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// MessageOf 返回错误链上第一个业务错误的提示信息
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return ""
}
