package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAIClient OpenAI对话补全客户端
type OpenAIClient struct {
	client *openai.Client // OpenAI API客户端
	config *Config        // 客户端配置
}

// NewOpenAIClient 创建一个新的OpenAI对话客户端
func NewOpenAIClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)

	if cfg.APIKey == "" {
		return nil, newError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)
	}
	if cfg.Model == "" {
		return nil, newError(ErrCodeInvalidConfig, "llm model is not configured")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientConfig),
		config: cfg,
	}, nil
}

// Name 返回模型名称
func (c *OpenAIClient) Name() string {
	return c.config.Model
}

// Chat 发送对话补全请求
func (c *OpenAIClient) Chat(ctx context.Context, messages []Message, options ...ChatOption) (*Response, error) {
	if len(messages) == 0 {
		return nil, newError(ErrCodeEmptyPrompt, ErrMsgEmptyPrompt)
	}

	opts := &ChatOptions{}
	for _, opt := range options {
		opt(opts)
	}

	req := openai.ChatCompletionRequest{
		Model:       c.config.Model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	if opts.Temperature != nil {
		req.Temperature = *opts.Temperature
	}
	if opts.MaxTokens != nil {
		req.MaxTokens = *opts.MaxTokens
	}
	if opts.TopP != nil {
		req.TopP = *opts.TopP
	}

	resp, err := c.sendRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, newError(ErrCodeEmptyResponse, "no choices returned")
	}

	return &Response{
		Text:         resp.Choices[0].Message.Content,
		TokenCount:   resp.Usage.TotalTokens,
		ModelName:    resp.Model,
		FinishReason: string(resp.Choices[0].FinishReason),
		FinishTime:   time.Now(),
	}, nil
}

// sendRequest 发送请求，429和5xx响应按指数退避重试
func (c *OpenAIClient) sendRequest(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			// 指数退避重试
			select {
			case <-ctx.Done():
				return openai.ChatCompletionResponse{}, newError(ErrCodeTimeout, ctx.Err().Error())
			case <-time.After(time.Duration(1<<attempt) * c.config.RetryBaseDelay):
			}
		}

		timeoutCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
		resp, err := c.client.CreateChatCompletion(timeoutCtx, req)
		cancel()

		if err == nil {
			return resp, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return openai.ChatCompletionResponse{}, newError(ErrCodeTimeout, ctx.Err().Error())
		}
		if !isRetryable(err) {
			break
		}
	}

	return openai.ChatCompletionResponse{}, classifyError(lastErr)
}

// statusCode 提取上游返回的HTTP状态码，网络错误返回0
func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

// isRetryable 限流、服务端错误和网络错误可以重试
func isRetryable(err error) bool {
	code := statusCode(err)
	return code == 0 || code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// classifyError 将最后一次失败转换为大模型错误
func classifyError(err error) error {
	code := statusCode(err)
	switch {
	case code == 0 && errors.Is(err, context.DeadlineExceeded):
		return newError(ErrCodeTimeout, fmt.Sprintf("%s: %v", ErrMsgTimeout, err))
	case code == 0:
		return newError(ErrCodeNetworkError, fmt.Sprintf("%s: %v", ErrMsgNetworkError, err))
	case code == http.StatusTooManyRequests:
		return newError(ErrCodeRateLimited, fmt.Sprintf("%s: %v", ErrMsgRateLimited, err))
	case code >= http.StatusInternalServerError:
		return newError(ErrCodeServerError, fmt.Sprintf("%s: %v", ErrMsgServerError, err))
	default:
		return newError(ErrCodeRejected, fmt.Sprintf("llm API error (status %d): %v", code, err))
	}
}

// 在包初始化时注册OpenAI客户端
func init() {
	RegisterClient("openai", NewOpenAIClient)
}
