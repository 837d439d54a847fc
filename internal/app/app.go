// Package app 根据配置组装存储、模型客户端和业务服务
// HTTP服务和命令行工具共用同一套组装逻辑
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyerfyer/doc-rag/config"
	"github.com/fyerfyer/doc-rag/internal/cache"
	"github.com/fyerfyer/doc-rag/internal/database"
	"github.com/fyerfyer/doc-rag/internal/document"
	"github.com/fyerfyer/doc-rag/internal/embedding"
	"github.com/fyerfyer/doc-rag/internal/llm"
	"github.com/fyerfyer/doc-rag/internal/repository"
	"github.com/fyerfyer/doc-rag/internal/services"
	"github.com/fyerfyer/doc-rag/internal/vectordb"
	"github.com/fyerfyer/doc-rag/pkg/storage"
	"github.com/fyerfyer/doc-rag/pkg/taskqueue"
	"github.com/sirupsen/logrus"
)

// 模型客户端的注册名称
const providerOpenAI = "openai"

// App 组装完成的服务集合
type App struct {
	Config    *config.Config
	Logger    *logrus.Logger
	Repo      repository.DocumentRepository
	Storage   storage.Storage
	Queue     taskqueue.Queue
	Ingestion *services.IngestionService
	Embedding *services.EmbeddingService
	Retrieval *services.RetrievalService
	Query     *services.QueryService

	closers []func() error
}

// New 按配置创建全部依赖
// 未配置API密钥时对应的客户端为空，调用相关操作时返回配置错误
func New(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	if err := database.Setup(&database.Config{
		Type:         cfg.Database.Type,
		DSN:          cfg.Database.DSN,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	}, logger); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a.closers = append(a.closers, database.Close)

	if err := a.build(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config

	fileStorage, err := storage.New(ctx, storage.Config{
		Type:  cfg.Storage.Type,
		Local: storage.LocalConfig{Path: cfg.Storage.Path},
		Minio: storage.MinioConfig{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
			Bucket:    cfg.Storage.Bucket,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.Storage = fileStorage

	embedder, err := a.setupEmbedding()
	if err != nil {
		return err
	}
	llmClient, err := a.setupLLM()
	if err != nil {
		return err
	}

	locks, err := cache.NewCache(cache.Config{
		Type:            cfg.Cache.Type,
		RedisAddr:       cfg.Cache.Address,
		RedisPassword:   cfg.Cache.Password,
		RedisDB:         cfg.Cache.DB,
		DefaultTTL:      cache.DefaultConfig().DefaultTTL,
		LockTTL:         cfg.Cache.LockTTL,
		CleanupInterval: cache.DefaultConfig().CleanupInterval,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}

	if cfg.Queue.Enable {
		queue, err := taskqueue.NewQueue(cfg.Queue.Type, a.queueConfig())
		if err != nil {
			return fmt.Errorf("failed to initialize task queue: %w", err)
		}
		a.Queue = queue
		a.closers = append(a.closers, queue.Close)
		a.Repo = repository.NewDocumentRepositoryWithQueue(database.MustDB(), queue)
	} else {
		a.Repo = repository.NewDocumentRepository()
	}

	chunker, err := document.NewChunker(document.ChunkerConfig{
		ChunkSize: cfg.Document.ChunkSize,
		Overlap:   cfg.Document.ChunkOverlap,
		Strategy:  document.Strategy(cfg.Document.Strategy),
	})
	if err != nil {
		return err
	}

	a.Ingestion = services.NewIngestionService(a.Repo, document.NewPDFExtractor(), chunker,
		services.WithStorage(fileStorage),
		services.WithTempDir(cfg.Server.TempDir),
		services.WithMaxFileSize(cfg.MaxUploadBytes()),
		services.WithIngestionLogger(a.Logger),
	)

	embedOpts := []services.EmbeddingOption{
		services.WithLockTTL(cfg.Cache.LockTTL),
		services.WithDimensions(cfg.Embed.Dimensions),
		services.WithEmbeddingLogger(a.Logger),
	}
	if a.Queue != nil {
		embedOpts = append(embedOpts, services.WithTaskQueue(a.Queue))
	}
	a.Embedding = services.NewEmbeddingService(a.Repo, embedder, locks, embedOpts...)

	metric, err := vectordb.ParseDistanceType(cfg.Search.Metric)
	if err != nil {
		return err
	}
	a.Retrieval = services.NewRetrievalService(a.Repo, embedder,
		services.WithTopK(cfg.Search.TopK),
		services.WithRetrievalDimensions(cfg.Embed.Dimensions),
		services.WithMetric(metric),
		services.WithRetrievalLogger(a.Logger),
	)

	var rag *llm.RAGService
	if llmClient != nil {
		rag = llm.NewRAG(llmClient,
			llm.WithRAGMaxTokens(cfg.LLM.MaxTokens),
			llm.WithRAGTemperature(cfg.LLM.Temperature),
			llm.WithRAGTimeout(cfg.LLM.Timeout),
		)
	}
	a.Query = services.NewQueryService(a.Retrieval, rag, services.WithQueryLogger(a.Logger))
	return nil
}

// setupEmbedding 创建嵌入模型客户端
func (a *App) setupEmbedding() (embedding.Client, error) {
	cfg := a.Config.Embed
	if cfg.APIKey == "" {
		a.Logger.Warn("Embedding API key is not set, embedding and retrieval are disabled")
		return nil, nil
	}

	client, err := embedding.NewClient(providerOpenAI,
		embedding.WithAPIKey(cfg.APIKey),
		embedding.WithBaseURL(cfg.BaseURL),
		embedding.WithModel(cfg.Model),
		embedding.WithDimensions(cfg.Dimensions),
		embedding.WithMaxBatchItems(cfg.MaxBatchItems),
		embedding.WithTimeout(cfg.Timeout),
		embedding.WithMaxRetries(cfg.MaxRetries),
		embedding.WithRequestsPerSecond(cfg.RequestsPerSecond),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding client: %w", err)
	}
	return client, nil
}

// setupLLM 创建大语言模型客户端
func (a *App) setupLLM() (llm.Client, error) {
	cfg := a.Config.LLM
	if cfg.APIKey == "" {
		a.Logger.Warn("LLM API key is not set, question answering is disabled")
		return nil, nil
	}

	client, err := llm.NewClient(providerOpenAI,
		llm.WithAPIKey(cfg.APIKey),
		llm.WithBaseURL(cfg.BaseURL),
		llm.WithModel(cfg.Model),
		llm.WithMaxTokens(cfg.MaxTokens),
		llm.WithTemperature(cfg.Temperature),
		llm.WithTimeout(cfg.Timeout),
		llm.WithMaxRetries(cfg.MaxRetries),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize llm client: %w", err)
	}
	return client, nil
}

func (a *App) queueConfig() *taskqueue.Config {
	cfg := a.Config.Queue
	qcfg := taskqueue.DefaultConfig()
	qcfg.RedisAddr = cfg.RedisAddr
	qcfg.RedisPassword = cfg.RedisPassword
	qcfg.RedisDB = cfg.RedisDB
	qcfg.Concurrency = cfg.Concurrency
	qcfg.RetryLimit = cfg.RetryLimit
	if cfg.RetryDelay > 0 {
		qcfg.RetryDelay = cfg.RetryDelay
	}
	if cfg.TaskExpiry > 0 {
		qcfg.TaskExpiry = cfg.TaskExpiry
	}
	qcfg.Logger = a.Logger
	return qcfg
}

// StartWorker 启动处理异步向量生成的工作者
// 未启用队列时返回nil
func (a *App) StartWorker() (*taskqueue.RedisWorker, error) {
	if a.Queue == nil {
		return nil, nil
	}
	redisQueue, ok := a.Queue.(*taskqueue.RedisQueue)
	if !ok {
		return nil, fmt.Errorf("unsupported queue implementation: %T", a.Queue)
	}

	worker := taskqueue.NewRedisWorker(redisQueue, a.queueConfig())
	worker.RegisterHandler(a.Embedding.TaskHandler())
	if err := worker.Start(); err != nil {
		return nil, fmt.Errorf("failed to start task worker: %w", err)
	}
	return worker, nil
}

// Close 按创建的逆序释放资源
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
