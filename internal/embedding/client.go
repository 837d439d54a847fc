package embedding

import (
	"context"
	"time"
)

// MaxBatchItems 单次嵌入请求允许的最大文本数量
const MaxBatchItems = 2048

// Client 嵌入模型客户端接口
// 负责将文本转换为向量表示
type Client interface {
	// Embed 生成单条文本的向量表示
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch 批量生成多条文本的向量表示
	// 返回的向量与输入一一对应，顺序一致；任一子批次失败时不返回部分结果
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Name 返回模型名称
	Name() string

	// Dimensions 返回配置的向量维度
	Dimensions() int
}

// Config 嵌入客户端配置
type Config struct {
	APIKey            string        // API密钥
	BaseURL           string        // API基础URL，为空时使用OpenAI官方地址
	Model             string        // 模型名称
	Dimensions        int           // 向量维度
	MaxBatchItems     int           // 单次请求的最大文本数量
	Timeout           time.Duration // 单次请求超时时间
	MaxRetries        int           // 最大重试次数
	RetryBaseDelay    time.Duration // 重试退避的基础间隔
	RequestsPerSecond float64       // 每秒请求数上限，0表示不限制
}

// Option 客户端配置选项函数类型
type Option func(*Config)

// WithAPIKey 设置API密钥
func WithAPIKey(apiKey string) Option {
	return func(c *Config) {
		c.APIKey = apiKey
	}
}

// WithBaseURL 设置API基础URL
func WithBaseURL(url string) Option {
	return func(c *Config) {
		c.BaseURL = url
	}
}

// WithModel 设置模型名称
func WithModel(model string) Option {
	return func(c *Config) {
		c.Model = model
	}
}

// WithTimeout 设置请求超时时间
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// WithMaxRetries 设置最大重试次数
func WithMaxRetries(retries int) Option {
	return func(c *Config) {
		c.MaxRetries = retries
	}
}

// WithRetryBaseDelay 设置重试退避的基础间隔
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(c *Config) {
		c.RetryBaseDelay = delay
	}
}

// WithDimensions 设置向量维度
func WithDimensions(dimensions int) Option {
	return func(c *Config) {
		c.Dimensions = dimensions
	}
}

// WithMaxBatchItems 设置单次请求的最大文本数量，超过上限时按上限处理
func WithMaxBatchItems(size int) Option {
	return func(c *Config) {
		c.MaxBatchItems = size
	}
}

// WithRequestsPerSecond 设置请求速率上限
func WithRequestsPerSecond(rps float64) Option {
	return func(c *Config) {
		c.RequestsPerSecond = rps
	}
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Model:          "text-embedding-3-small",
		Dimensions:     1536,
		MaxBatchItems:  MaxBatchItems,
		Timeout:        30 * time.Second,
		MaxRetries:     3,
		RetryBaseDelay: 100 * time.Millisecond,
	}
}

// NewConfig 创建一个新的配置并应用选项
func NewConfig(opts ...Option) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.MaxBatchItems <= 0 || cfg.MaxBatchItems > MaxBatchItems {
		cfg.MaxBatchItems = MaxBatchItems
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return cfg
}

// Factory 嵌入客户端工厂函数类型
type Factory func(opts ...Option) (Client, error)

// 全局注册的嵌入客户端工厂函数
var clientFactories = make(map[string]Factory)

// RegisterClient 注册嵌入客户端工厂函数
func RegisterClient(name string, factory Factory) {
	clientFactories[name] = factory
}

// NewClient 根据名称创建嵌入客户端
func NewClient(name string, opts ...Option) (Client, error) {
	factory, exists := clientFactories[name]
	if !exists {
		return nil, newError(ErrCodeInvalidConfig, "embedding client type not registered: "+name)
	}
	return factory(opts...)
}
