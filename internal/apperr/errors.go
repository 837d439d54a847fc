package apperr

import (
	"errors"
	"fmt"
)

// Kind 错误类别
type Kind string

const (
	KindValidation    Kind = "VALIDATION_ERROR"    // 输入缺失或非法
	KindNotFound      Kind = "NOT_FOUND_ERROR"     // 文档或分块不存在
	KindConflict      Kind = "CONFLICT_ERROR"      // 文档已生成过嵌入
	KindUpstream      Kind = "UPSTREAM_ERROR"      // 嵌入/生成服务调用失败
	KindConfiguration Kind = "CONFIGURATION_ERROR" // 缺少密钥或端点
)

// Error 业务错误，携带类别和可选的底层错误
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error 实现error接口
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap 返回底层错误
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Validation 创建输入验证错误
func Validation(message string) *Error {
	return newError(KindValidation, message, nil)
}

// NotFound 创建资源不存在错误
func NotFound(message string) *Error {
	return newError(KindNotFound, message, nil)
}

// Conflict 创建冲突错误
func Conflict(message string) *Error {
	return newError(KindConflict, message, nil)
}

// Upstream 创建上游服务错误，保留原始错误信息
func Upstream(message string, err error) *Error {
	return newError(KindUpstream, message, err)
}

// Configuration 创建配置错误
func Configuration(message string) *Error {
	return newError(KindConfiguration, message, nil)
}

// KindOf 返回错误链中第一个业务错误的类别，没有则返回空字符串
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

// Is 判断错误链中是否包含指定类别的业务错误
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
