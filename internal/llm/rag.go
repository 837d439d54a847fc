package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// DefaultSystemPrompt 默认系统提示词，要求模型只依据检索到的上下文作答
const DefaultSystemPrompt = `You are a helpful assistant answering questions about the uploaded documents.
Use only the provided context to answer. If the answer isn't in the context, say so.`

// NoContextMarker 没有检索到任何上下文时放入提示词的标记
const NoContextMarker = "No relevant context was found."

// BuildRAGMessages 构建检索增强的对话消息
// 用户消息由系统提示词、以换行连接的上下文和用户问题组成
func BuildRAGMessages(systemPrompt, question string, contexts []string) []Message {
	joined := strings.Join(contexts, "\n")
	if len(contexts) == 0 {
		joined = NoContextMarker
	}

	prompt := fmt.Sprintf("%s\n\n%s\n\nUser query: %s", systemPrompt, joined, question)

	return []Message{
		{Role: RoleSystem, Content: systemPrompt},
		{Role: RoleUser, Content: prompt},
	}
}

// RAGConfig 检索增强生成配置
type RAGConfig struct {
	// 系统提示词
	SystemPrompt string
	// 最大Token数，0表示使用客户端配置
	MaxTokens int
	// 温度参数
	Temperature float32
	// 超时时间
	Timeout time.Duration
}

// DefaultRAGConfig 默认RAG配置
func DefaultRAGConfig() *RAGConfig {
	return &RAGConfig{
		SystemPrompt: DefaultSystemPrompt,
		Temperature:  0.7,
		Timeout:      60 * time.Second,
	}
}

// RAGResponse RAG响应结构
type RAGResponse struct {
	Answer     string // 回答内容
	ModelName  string // 使用的模型名称
	TokenCount int    // 使用的token数
}

// RAGService 实现检索增强生成服务
type RAGService struct {
	Client Client       // 大模型客户端
	config *RAGConfig   // 配置
	mu     sync.RWMutex // 配置互斥锁
}

// RAGOption RAG配置选项函数类型
type RAGOption func(*RAGConfig)

// WithSystemPrompt 设置系统提示词
func WithSystemPrompt(prompt string) RAGOption {
	return func(c *RAGConfig) {
		c.SystemPrompt = prompt
	}
}

// WithRAGMaxTokens 设置最大Token数
func WithRAGMaxTokens(tokens int) RAGOption {
	return func(c *RAGConfig) {
		c.MaxTokens = tokens
	}
}

// WithRAGTemperature 设置温度参数
func WithRAGTemperature(temp float32) RAGOption {
	return func(c *RAGConfig) {
		c.Temperature = temp
	}
}

// WithRAGTimeout 设置请求超时时间
func WithRAGTimeout(timeout time.Duration) RAGOption {
	return func(c *RAGConfig) {
		c.Timeout = timeout
	}
}

// NewRAG 创建新的检索增强生成服务
func NewRAG(client Client, opts ...RAGOption) *RAGService {
	cfg := DefaultRAGConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	return &RAGService{
		Client: client,
		config: cfg,
	}
}

// Answer 根据上下文和问题生成回答
// 没有上下文时仍然调用模型，由模型说明无法回答
func (r *RAGService) Answer(ctx context.Context, question string, contexts []string) (*RAGResponse, error) {
	if strings.TrimSpace(question) == "" {
		return nil, newError(ErrCodeEmptyPrompt, "question cannot be empty")
	}
	if r.Client == nil {
		return nil, newError(ErrCodeInvalidConfig, "llm client is not configured")
	}

	r.mu.RLock()
	cfg := *r.config
	r.mu.RUnlock()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	options := []ChatOption{WithChatTemperature(cfg.Temperature)}
	if cfg.MaxTokens > 0 {
		options = append(options, WithChatMaxTokens(cfg.MaxTokens))
	}

	response, err := r.Client.Chat(ctxWithTimeout, BuildRAGMessages(cfg.SystemPrompt, question, contexts), options...)
	if err != nil {
		return nil, err
	}

	return &RAGResponse{
		Answer:     response.Text,
		ModelName:  response.ModelName,
		TokenCount: response.TokenCount,
	}, nil
}

// SetSystemPrompt 设置自定义系统提示词
func (r *RAGService) SetSystemPrompt(prompt string) *RAGService {
	r.mu.Lock()
	r.config.SystemPrompt = prompt
	r.mu.Unlock()
	return r
}
