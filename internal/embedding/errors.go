package embedding

import (
	"fmt"

	"github.com/fyerfyer/doc-rag/internal/apperr"
)

// EmbeddingError 嵌入错误类型
type EmbeddingError struct {
	Code    int    // 错误码
	Message string // 错误消息
}

// Error 实现error接口
func (e EmbeddingError) Error() string {
	return fmt.Sprintf("embedding error (code=%d): %s", e.Code, e.Message)
}

// 错误码常量
const (
	ErrCodeInvalidAPIKey  = 1001 // 无效的API密钥
	ErrCodeInvalidRequest = 1002 // 无效的请求
	ErrCodeNetworkError   = 1003 // 网络连接错误
	ErrCodeRateLimited    = 1004 // 请求频率超限
	ErrCodeServerError    = 1005 // 服务器错误
	ErrCodeTimeout        = 1006 // 请求超时
	ErrCodeEmptyInput     = 1007 // 输入为空
	ErrCodeRejected       = 1008 // 上游拒绝请求
	ErrCodeBadResponse    = 1009 // 上游响应格式错误
	ErrCodeInvalidConfig  = 1010 // 客户端配置错误
)

// 错误消息常量
const (
	ErrMsgInvalidAPIKey = "embedding API key is not configured"
	ErrMsgRateLimited   = "too many requests, rate limit exceeded"
	ErrMsgServerError   = "server error occurred"
	ErrMsgTimeout       = "request timed out"
	ErrMsgEmptyInput    = "input text cannot be empty"
	ErrMsgNetworkError  = "network connection error"
)

// newError 创建嵌入错误，并按错误码归入业务错误类别
func newError(code int, message string) error {
	e := EmbeddingError{Code: code, Message: message}
	switch code {
	case ErrCodeInvalidAPIKey, ErrCodeInvalidConfig:
		return &apperr.Error{Kind: apperr.KindConfiguration, Message: message, Err: e}
	case ErrCodeEmptyInput, ErrCodeInvalidRequest:
		return &apperr.Error{Kind: apperr.KindValidation, Message: message, Err: e}
	default:
		return apperr.Upstream("embedding request failed", e)
	}
}
