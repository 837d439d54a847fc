package llm

import (
	"fmt"

	"github.com/fyerfyer/doc-rag/internal/apperr"
)

// LLMError 大模型调用错误类型
type LLMError struct {
	Code    int    // 错误码
	Message string // 错误消息
}

// Error 实现error接口
func (e LLMError) Error() string {
	return fmt.Sprintf("llm error (code=%d): %s", e.Code, e.Message)
}

// 错误码常量
const (
	ErrCodeInvalidAPIKey  = 1001 // 无效的API密钥
	ErrCodeInvalidRequest = 1002 // 无效的请求
	ErrCodeNetworkError   = 1003 // 网络连接错误
	ErrCodeRateLimited    = 1004 // 请求频率超限
	ErrCodeServerError    = 1005 // 服务器错误
	ErrCodeTimeout        = 1006 // 请求超时
	ErrCodeEmptyPrompt    = 1007 // 提示词为空
	ErrCodeRejected       = 1008 // 上游拒绝请求
	ErrCodeEmptyResponse  = 1009 // 响应中没有候选回答
	ErrCodeInvalidConfig  = 1010 // 客户端配置错误
)

// 错误消息常量
const (
	ErrMsgInvalidAPIKey = "llm API key is not configured"
	ErrMsgRateLimited   = "too many requests, rate limit exceeded"
	ErrMsgServerError   = "server error occurred"
	ErrMsgTimeout       = "request timed out"
	ErrMsgEmptyPrompt   = "prompt cannot be empty"
	ErrMsgNetworkError  = "network connection error"
)

// newError 创建大模型错误，并按错误码归入业务错误类别
func newError(code int, message string) error {
	e := LLMError{Code: code, Message: message}
	switch code {
	case ErrCodeInvalidAPIKey, ErrCodeInvalidConfig:
		return &apperr.Error{Kind: apperr.KindConfiguration, Message: message, Err: e}
	case ErrCodeEmptyPrompt, ErrCodeInvalidRequest:
		return &apperr.Error{Kind: apperr.KindValidation, Message: message, Err: e}
	default:
		return apperr.Upstream("generation request failed", e)
	}
}
