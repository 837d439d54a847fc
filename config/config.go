package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 应用程序配置结构体
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Document DocumentConfig `mapstructure:"document"`
	Embed    EmbedConfig    `mapstructure:"embed"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Search   SearchConfig   `mapstructure:"search"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Queue    QueueConfig    `mapstructure:"queue"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host         string        `mapstructure:"host"`                                     // 服务器主机
	Port         int           `mapstructure:"port" validate:"gt=0,lte=65535"`           // 服务器端口
	Mode         string        `mapstructure:"mode" validate:"oneof=debug release test"` // gin运行模式
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`                             // 读取超时
	WriteTimeout time.Duration `mapstructure:"write_timeout"`                            // 写入超时
	MaxUploadMB  int           `mapstructure:"max_upload_mb" validate:"gt=0"`            // 上传文件大小上限（MB）
	TempDir      string        `mapstructure:"temp_dir"`                                 // 上传临时目录，为空时使用系统临时目录
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=debug info warn error"` // 日志级别
	Format     string `mapstructure:"format" validate:"oneof=json text"`            // 输出格式
	File       string `mapstructure:"file"`                                         // 日志文件，为空时只输出到标准输出
	MaxSizeMB  int    `mapstructure:"max_size_mb" validate:"gte=0"`                 // 单个日志文件大小上限
	MaxBackups int    `mapstructure:"max_backups" validate:"gte=0"`                 // 保留的旧文件数量
	MaxAgeDays int    `mapstructure:"max_age_days" validate:"gte=0"`                // 旧文件保留天数
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Type         string `mapstructure:"type" validate:"oneof=sqlite postgres"` // 数据库类型
	DSN          string `mapstructure:"dsn" validate:"required"`               // 数据源名称
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"gte=0"`       // 最大打开连接数
	MaxIdleConns int    `mapstructure:"max_idle_conns" validate:"gte=0"`       // 最大空闲连接数
}

// StorageConfig 原始文件归档配置
type StorageConfig struct {
	Type      string `mapstructure:"type" validate:"oneof=none local minio"` // 存储类型
	Path      string `mapstructure:"path"`                                   // 本地存储路径
	Bucket    string `mapstructure:"bucket"`                                 // MinIO桶名称
	Endpoint  string `mapstructure:"endpoint"`                               // MinIO端点
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"` // 是否使用SSL
}

// DocumentConfig 文档分块配置
type DocumentConfig struct {
	ChunkSize    int    `mapstructure:"chunk_size" validate:"gt=0"`                            // 分块大小（字符）
	ChunkOverlap int    `mapstructure:"chunk_overlap" validate:"gte=0"`                        // 分块重叠（字符）
	Strategy     string `mapstructure:"strategy" validate:"oneof=boundary_aware fixed_window"` // 分块策略
}

// EmbedConfig 向量嵌入模型配置
type EmbedConfig struct {
	Model             string        `mapstructure:"model" validate:"required"`                // 模型名称
	APIKey            string        `mapstructure:"api_key"`                                  // API密钥
	BaseURL           string        `mapstructure:"base_url"`                                 // API端点，为空时使用OpenAI官方地址
	Dimensions        int           `mapstructure:"dimensions" validate:"gt=0"`               // 向量维度
	MaxBatchItems     int           `mapstructure:"max_batch_items" validate:"gt=0,lte=2048"` // 单次请求最大文本数
	Timeout           time.Duration `mapstructure:"timeout" validate:"gt=0"`                  // 单次请求超时
	MaxRetries        int           `mapstructure:"max_retries" validate:"gte=0"`             // 最大重试次数
	RequestsPerSecond float64       `mapstructure:"requests_per_second" validate:"gte=0"`     // 请求速率上限
}

// LLMConfig 大语言模型配置
type LLMConfig struct {
	Model       string        `mapstructure:"model" validate:"required"`          // 模型名称
	APIKey      string        `mapstructure:"api_key"`                            // API密钥
	BaseURL     string        `mapstructure:"base_url"`                           // API端点
	MaxTokens   int           `mapstructure:"max_tokens" validate:"gte=0"`        // 最大生成token数量
	Temperature float32       `mapstructure:"temperature" validate:"gte=0,lte=2"` // 采样温度
	Timeout     time.Duration `mapstructure:"timeout" validate:"gt=0"`            // 请求超时
	MaxRetries  int           `mapstructure:"max_retries" validate:"gte=0"`       // 最大重试次数
}

// SearchConfig 检索配置
type SearchConfig struct {
	TopK   int    `mapstructure:"top_k" validate:"gt=0"`                 // 返回的分块数
	Metric string `mapstructure:"metric" validate:"oneof=cosine dot l2"` // 相似度度量
}

// CacheConfig 文档锁缓存配置
type CacheConfig struct {
	Type     string        `mapstructure:"type" validate:"oneof=memory redis"` // 缓存类型
	Address  string        `mapstructure:"address"`                            // Redis地址
	Password string        `mapstructure:"password"`                           // Redis密码
	DB       int           `mapstructure:"db"`                                 // Redis数据库
	LockTTL  time.Duration `mapstructure:"lock_ttl" validate:"gt=0"`           // 锁的过期时间
}

// QueueConfig 任务队列配置
type QueueConfig struct {
	Enable        bool          `mapstructure:"enable"`                       // 是否启用任务队列
	Type          string        `mapstructure:"type" validate:"oneof=redis"`  // 队列类型
	RedisAddr     string        `mapstructure:"redis_addr"`                   // Redis地址
	RedisPassword string        `mapstructure:"redis_password"`               // Redis密码
	RedisDB       int           `mapstructure:"redis_db"`                     // Redis数据库编号
	Concurrency   int           `mapstructure:"concurrency" validate:"gt=0"`  // 任务处理并发数
	RetryLimit    int           `mapstructure:"retry_limit" validate:"gte=0"` // 任务最大重试次数
	RetryDelay    time.Duration `mapstructure:"retry_delay"`                  // 重试延迟
	TaskExpiry    time.Duration `mapstructure:"task_expiry"`                  // 任务记录保留时间
}

// legacyEnv 兼容旧部署使用的扁平环境变量名
var legacyEnv = map[string][]string{
	"server.port":            {"PORT"},
	"server.max_upload_mb":   {"MAX_FILE_SIZE_MB"},
	"server.temp_dir":        {"UPLOAD_DIR"},
	"document.chunk_size":    {"CHUNK_SIZE"},
	"document.chunk_overlap": {"CHUNK_OVERLAP"},
	"embed.model":            {"EMBEDDING_MODEL"},
	"embed.api_key":          {"OPENAI_API_KEY"},
	"llm.api_key":            {"OPENAI_API_KEY"},
	"llm.model":              {"LLM_MODEL"},
	"database.dsn":           {"DATABASE_URL"},
	"cache.address":          {"REDIS_ADDR"},
	"queue.redis_addr":       {"REDIS_ADDR"},
}

// Load 从.env、配置文件和环境变量加载配置
// 配置文件不存在时使用默认值
func Load(configPath string) (*Config, error) {
	// .env 只补充未设置的环境变量
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if configPath == "" {
		configPath = "config.yaml"
	}
	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	// 支持环境变量覆盖，例如 EMBED_DIMENSIONS 覆盖 embed.dimensions
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range legacyEnv {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(append([]string{key, envKey}, names...)...); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	expandEnvironmentVariables(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New()

// Validate 检查配置取值范围
// 不检查API密钥：缺少密钥时只有嵌入和问答不可用
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed '%s' (value: %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Storage.Type == "minio" && (c.Storage.Endpoint == "" || c.Storage.Bucket == "") {
		return errors.New("invalid config: minio storage requires endpoint and bucket")
	}
	return nil
}

// MaxUploadBytes 上传文件大小上限（字节）
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Server.MaxUploadMB) << 20
}

// expandEnvironmentVariables 展开 ${VAR} 形式的取值
func expandEnvironmentVariables(cfg *Config) {
	for _, field := range []*string{
		&cfg.Embed.APIKey,
		&cfg.Embed.BaseURL,
		&cfg.LLM.APIKey,
		&cfg.LLM.BaseURL,
		&cfg.Database.DSN,
		&cfg.Storage.AccessKey,
		&cfg.Storage.SecretKey,
		&cfg.Cache.Password,
		&cfg.Queue.RedisPassword,
	} {
		if strings.Contains(*field, "${") {
			*field = os.ExpandEnv(*field)
		}
	}
}

// setDefaults 设置配置的默认值
func setDefaults(v *viper.Viper) {
	// 服务器默认配置
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", "60s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.max_upload_mb", 10)
	v.SetDefault("server.temp_dir", "")

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)

	// 数据库默认配置
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "data/rag.db")
	v.SetDefault("database.max_open_conns", 0)
	v.SetDefault("database.max_idle_conns", 0)

	// 归档默认不保存原始文件
	v.SetDefault("storage.type", "none")
	v.SetDefault("storage.path", "./data/uploads")
	v.SetDefault("storage.bucket", "doc-rag")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.access_key", "")
	v.SetDefault("storage.secret_key", "")
	v.SetDefault("storage.use_ssl", false)

	// 分块默认配置
	v.SetDefault("document.chunk_size", 2400)
	v.SetDefault("document.chunk_overlap", 480)
	v.SetDefault("document.strategy", "boundary_aware")

	// Embedding默认配置
	v.SetDefault("embed.model", "text-embedding-3-small")
	v.SetDefault("embed.api_key", "")
	v.SetDefault("embed.base_url", "")
	v.SetDefault("embed.dimensions", 1536)
	v.SetDefault("embed.max_batch_items", 2048)
	v.SetDefault("embed.timeout", "30s")
	v.SetDefault("embed.max_retries", 3)
	v.SetDefault("embed.requests_per_second", 0)

	// LLM默认配置
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.max_tokens", 0)
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.max_retries", 3)

	// 检索默认配置
	v.SetDefault("search.top_k", 5)
	v.SetDefault("search.metric", "cosine")

	// 缓存默认配置
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.address", "localhost:6379")
	v.SetDefault("cache.password", "")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.lock_ttl", "10m")

	// 队列默认配置
	v.SetDefault("queue.enable", false)
	v.SetDefault("queue.type", "redis")
	v.SetDefault("queue.redis_addr", "localhost:6379")
	v.SetDefault("queue.redis_password", "")
	v.SetDefault("queue.redis_db", 0)
	v.SetDefault("queue.concurrency", 4)
	v.SetDefault("queue.retry_limit", 3)
	v.SetDefault("queue.retry_delay", "30s")
	v.SetDefault("queue.task_expiry", "168h")
}
