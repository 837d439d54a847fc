package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// OpenAIClient OpenAI嵌入向量客户端
// 兼容任何实现了OpenAI embeddings接口的服务
type OpenAIClient struct {
	client  *openai.Client // OpenAI API客户端
	config  *Config        // 客户端配置
	limiter *rate.Limiter  // 请求速率限制，未配置时为nil
}

// NewOpenAIClient 创建一个新的OpenAI嵌入客户端
func NewOpenAIClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)

	if cfg.APIKey == "" {
		return nil, newError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)
	}
	if cfg.Model == "" {
		return nil, newError(ErrCodeInvalidConfig, "embedding model is not configured")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	c := &OpenAIClient{
		client: openai.NewClientWithConfig(clientConfig),
		config: cfg,
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return c, nil
}

// Name 返回模型名称
func (c *OpenAIClient) Name() string {
	return c.config.Model
}

// Dimensions 返回配置的向量维度
func (c *OpenAIClient) Dimensions() int {
	return c.config.Dimensions
}

// Embed 对单个文本生成嵌入向量
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, newError(ErrCodeEmptyInput, ErrMsgEmptyInput)
	}

	vectors, err := c.embedRequest(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch 对多个文本生成嵌入向量
// 超过MaxBatchItems的输入会拆分为多个顺序执行的请求
func (c *OpenAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, newError(ErrCodeEmptyInput, fmt.Sprintf("text at index %d is empty", i))
		}
	}
	return embedInBatches(ctx, texts, c.config.MaxBatchItems, c.embedRequest)
}

// embedRequest 发送一次嵌入请求，429和5xx响应按指数退避重试
func (c *OpenAIClient) embedRequest(ctx context.Context, texts []string) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(c.config.Model),
	}
	// 只有text-embedding-3系列支持指定维度
	if strings.HasPrefix(c.config.Model, "text-embedding-3") && c.config.Dimensions > 0 {
		req.Dimensions = c.config.Dimensions
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			// 指数退避重试
			select {
			case <-ctx.Done():
				return nil, newError(ErrCodeTimeout, ctx.Err().Error())
			case <-time.After(time.Duration(1<<attempt) * c.config.RetryBaseDelay):
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, newError(ErrCodeTimeout, err.Error())
			}
		}

		timeoutCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
		resp, err := c.client.CreateEmbeddings(timeoutCtx, req)
		cancel()

		if err == nil {
			return collectEmbeddings(resp, len(texts))
		}

		lastErr = err
		if ctx.Err() != nil {
			return nil, newError(ErrCodeTimeout, ctx.Err().Error())
		}
		if !isRetryable(err) {
			break
		}
	}

	return nil, classifyError(lastErr)
}

// collectEmbeddings 按响应中的Index还原输入顺序
func collectEmbeddings(resp openai.EmbeddingResponse, expected int) ([][]float32, error) {
	if len(resp.Data) != expected {
		return nil, newError(ErrCodeBadResponse,
			fmt.Sprintf("expected %d embeddings, got %d", expected, len(resp.Data)))
	}

	result := make([][]float32, expected)
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= expected || result[item.Index] != nil {
			return nil, newError(ErrCodeBadResponse, fmt.Sprintf("invalid embedding index %d", item.Index))
		}
		result[item.Index] = item.Embedding
	}
	return result, nil
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

// classifyError 将最后一次失败转换为嵌入错误
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
		return newError(ErrCodeRejected, fmt.Sprintf("embedding API error (status %d): %v", code, err))
	}
}

// 在包初始化时注册OpenAI客户端
func init() {
	RegisterClient("openai", NewOpenAIClient)
}
