package cache

import (
	"time"

	"github.com/google/uuid"
)

// Cache 缓存接口
// 只用于保存短期状态（例如文档级的处理锁），不缓存向量或查询结果
type Cache interface {
	Get(key string) (value string, found bool, err error)
	Set(key string, value string, ttl time.Duration) error
	// SetNX 仅当键不存在时写入，返回是否写入成功
	SetNX(key string, value string, ttl time.Duration) (bool, error)
	// DeleteIfEquals 仅当键的当前值等于value时删除
	DeleteIfEquals(key string, value string) (bool, error)
	Delete(key string) error
	Clear() error
}

// Factory 缓存工厂函数类型
type Factory func(config Config) (Cache, error)

// 注册的缓存实现
var registry = make(map[string]Factory)

// RegisterCache 注册缓存实现
func RegisterCache(name string, factory Factory) {
	registry[name] = factory
}

// NewCache 创建缓存实例
func NewCache(config Config) (Cache, error) {
	if factory, ok := registry[config.Type]; ok {
		return factory(config)
	}
	// 默认使用内存缓存
	return NewMemoryCache(config)
}

// Config 缓存配置
type Config struct {
	// 缓存类型: "memory", "redis" 等
	Type string
	// Redis连接地址 (仅Redis缓存使用)
	RedisAddr string
	// Redis密码 (仅Redis缓存使用)
	RedisPassword string
	// Redis数据库编号 (仅Redis缓存使用)
	RedisDB int
	// 默认缓存过期时间
	DefaultTTL time.Duration
	// 锁的过期时间
	LockTTL time.Duration
	// 自动清理间隔时间 (仅内存缓存使用)
	CleanupInterval time.Duration
}

// DefaultConfig 返回默认缓存配置
func DefaultConfig() Config {
	return Config{
		Type:            "memory",
		DefaultTTL:      time.Hour * 24,
		LockTTL:         time.Minute * 10,
		CleanupInterval: time.Minute * 10,
	}
}

// GenerateCacheKey 生成标准化的缓存键
// 可以基于不同参数生成一致的键
func GenerateCacheKey(prefix string, parts ...string) string {
	if len(parts) == 0 {
		return prefix
	}

	key := prefix
	for _, part := range parts {
		key += ":" + part
	}
	return key
}

// AcquireLock 尝试获取一个带过期时间的锁
// 获取成功时返回释放函数；锁已被他人持有时ok为false
func AcquireLock(c Cache, key string, ttl time.Duration) (release func() error, ok bool, err error) {
	token := uuid.New().String()
	ok, err = c.SetNX(key, token, ttl)
	if err != nil || !ok {
		return nil, false, err
	}

	release = func() error {
		// 只释放自己持有的锁，过期后被他人获取的锁保持不变
		_, err := c.DeleteIfEquals(key, token)
		return err
	}
	return release, true, nil
}
