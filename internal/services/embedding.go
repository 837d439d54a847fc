package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyerfyer/doc-rag/internal/apperr"
	"github.com/fyerfyer/doc-rag/internal/cache"
	"github.com/fyerfyer/doc-rag/internal/embedding"
	"github.com/fyerfyer/doc-rag/internal/models"
	"github.com/fyerfyer/doc-rag/internal/repository"
	"github.com/fyerfyer/doc-rag/pkg/taskqueue"
	"github.com/sirupsen/logrus"
)

// 嵌入已存在时返回给调用方的提示
const reuploadHint = "embeddings already exist for this document; delete and re-upload the document to regenerate embeddings"

// EmbedResult 向量生成结果
type EmbedResult struct {
	DocumentID      string `json:"documentId"`          // 文档ID
	Title           string `json:"title"`               // 文档标题
	ChunksProcessed int    `json:"chunksProcessed"`     // 写入向量的分块数
	Dimensions      int    `json:"embeddingDimensions"` // 向量维度
}

// EmbeddingService 向量生成服务
// 每个文档只生成一次向量：进程间用缓存锁互斥，数据库用条件更新兜底
type EmbeddingService struct {
	repo       repository.DocumentRepository // 文档仓储
	embedder   embedding.Client              // 嵌入模型客户端，未配置时为空
	locks      cache.Cache                   // 文档锁
	lockTTL    time.Duration                 // 锁的过期时间
	dimensions int                           // 期望的向量维度
	taskQueue  taskqueue.Queue               // 任务队列，可为空
	logger     *logrus.Logger                // 日志记录器
}

// EmbeddingOption 向量生成服务配置选项
type EmbeddingOption func(*EmbeddingService)

// NewEmbeddingService 创建向量生成服务
// embedder为空时服务仍可创建，调用Generate时返回配置错误
func NewEmbeddingService(
	repo repository.DocumentRepository,
	embedder embedding.Client,
	locks cache.Cache,
	opts ...EmbeddingOption,
) *EmbeddingService {
	srv := &EmbeddingService{
		repo:       repo,
		embedder:   embedder,
		locks:      locks,
		lockTTL:    cache.DefaultConfig().LockTTL,
		dimensions: embedding.DefaultConfig().Dimensions,
		logger:     logrus.New(),
	}

	for _, opt := range opts {
		opt(srv)
	}
	return srv
}

// WithLockTTL 设置文档锁的过期时间
func WithLockTTL(ttl time.Duration) EmbeddingOption {
	return func(s *EmbeddingService) {
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

// WithDimensions 设置期望的向量维度
func WithDimensions(dimensions int) EmbeddingOption {
	return func(s *EmbeddingService) {
		if dimensions > 0 {
			s.dimensions = dimensions
		}
	}
}

// WithTaskQueue 设置任务队列，启用异步生成
func WithTaskQueue(queue taskqueue.Queue) EmbeddingOption {
	return func(s *EmbeddingService) {
		s.taskQueue = queue
	}
}

// WithEmbeddingLogger 设置日志记录器
func WithEmbeddingLogger(logger *logrus.Logger) EmbeddingOption {
	return func(s *EmbeddingService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Generate 为文档的全部分块生成并保存向量
func (s *EmbeddingService) Generate(ctx context.Context, documentID string) (*EmbedResult, error) {
	if strings.TrimSpace(documentID) == "" {
		return nil, apperr.Validation("document ID is required")
	}
	if s.embedder == nil {
		return nil, apperr.Configuration("embedding client is not configured")
	}

	log := s.logger.WithField("document_id", documentID)

	release, err := s.lock(documentID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := release(); err != nil {
			log.WithError(err).Warn("Failed to release embedding lock")
		}
	}()

	doc, err := s.repo.GetWithChunks(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.AnyEmbedded() {
		return nil, apperr.Conflict(reuploadHint)
	}

	result := &EmbedResult{DocumentID: doc.ID, Title: doc.Title}
	if len(doc.Chunks) == 0 {
		log.Info("Document has no chunks, nothing to embed")
		return result, nil
	}

	texts := make([]string, len(doc.Chunks))
	for i := range doc.Chunks {
		texts[i] = doc.Chunks[i].Content
	}

	log.WithField("chunk_count", len(texts)).Info("Generating embeddings")
	start := time.Now()

	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		log.WithError(err).Error("Failed to generate embeddings")
		return nil, err
	}
	if len(vectors) != len(doc.Chunks) {
		return nil, apperr.Upstream("failed to generate embeddings",
			fmt.Errorf("expected %d embeddings, got %d", len(doc.Chunks), len(vectors)))
	}

	updates := make([]models.ChunkVector, len(vectors))
	for i, vec := range vectors {
		if len(vec) != s.dimensions {
			return nil, apperr.Upstream("failed to generate embeddings",
				fmt.Errorf("embedding %d has dimension %d, expected %d", i, len(vec), s.dimensions))
		}
		updates[i] = models.ChunkVector{ChunkID: doc.Chunks[i].ID, Vector: vec}
	}

	if err := s.repo.StoreEmbeddings(ctx, doc.ID, updates); err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			return nil, apperr.Conflict(reuploadHint)
		}
		log.WithError(err).Error("Failed to store embeddings")
		return nil, err
	}

	result.ChunksProcessed = len(vectors)
	result.Dimensions = len(vectors[0])

	log.WithFields(logrus.Fields{
		"chunks_processed": result.ChunksProcessed,
		"dimensions":       result.Dimensions,
		"duration":         time.Since(start),
	}).Info("Embeddings stored")

	return result, nil
}

// lock 获取文档级的生成锁，锁被占用时返回冲突错误
func (s *EmbeddingService) lock(documentID string) (func() error, error) {
	if s.locks == nil {
		return func() error { return nil }, nil
	}

	key := cache.GenerateCacheKey("embed_lock", documentID)
	release, ok, err := cache.AcquireLock(s.locks, key, s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire embedding lock: %w", err)
	}
	if !ok {
		return nil, apperr.Conflict("embedding generation is already in progress for this document")
	}
	return release, nil
}

// Enqueue 把向量生成任务放入队列，返回任务ID
func (s *EmbeddingService) Enqueue(ctx context.Context, documentID string) (string, error) {
	if s.taskQueue == nil {
		return "", apperr.Validation("asynchronous embedding is not enabled")
	}
	if s.embedder == nil {
		return "", apperr.Configuration("embedding client is not configured")
	}

	doc, err := s.repo.GetWithChunks(ctx, documentID)
	if err != nil {
		return "", err
	}
	if doc.AnyEmbedded() {
		return "", apperr.Conflict(reuploadHint)
	}

	taskID, err := s.taskQueue.Enqueue(ctx, taskqueue.TaskEmbedDocument, documentID,
		taskqueue.EmbedDocumentPayload{DocumentID: documentID})
	if err != nil {
		return "", fmt.Errorf("failed to enqueue embedding task: %w", err)
	}
	return taskID, nil
}

// GetTask 查询异步任务
func (s *EmbeddingService) GetTask(ctx context.Context, taskID string) (*taskqueue.Task, error) {
	if s.taskQueue == nil {
		return nil, apperr.Validation("asynchronous embedding is not enabled")
	}
	task, err := s.taskQueue.GetTask(ctx, taskID)
	if errors.Is(err, taskqueue.ErrTaskNotFound) {
		return nil, apperr.NotFound(fmt.Sprintf("task not found: %s", taskID))
	}
	return task, err
}

// HandleEmbedTask 队列处理函数，执行Generate并把结果作为任务结果
// 只有上游错误会重试，其余错误直接标记失败
func (s *EmbeddingService) HandleEmbedTask(ctx context.Context, task *taskqueue.Task) (interface{}, error) {
	var payload taskqueue.EmbedDocumentPayload
	if err := taskqueue.UnmarshalPayload(task.Payload, &payload); err != nil {
		return nil, fmt.Errorf("%v: %w", err, taskqueue.ErrSkipRetry)
	}

	result, err := s.Generate(ctx, payload.DocumentID)
	if err != nil {
		if apperr.Is(err, apperr.KindUpstream) {
			return nil, err
		}
		return nil, fmt.Errorf("%v: %w", err, taskqueue.ErrSkipRetry)
	}

	return taskqueue.EmbedDocumentResult{
		DocumentID:      result.DocumentID,
		Title:           result.Title,
		ChunksProcessed: result.ChunksProcessed,
		Dimensions:      result.Dimensions,
	}, nil
}

// TaskHandler 返回注册到工作者的处理器
func (s *EmbeddingService) TaskHandler() taskqueue.Handler {
	return taskqueue.NewHandler(s.HandleEmbedTask, taskqueue.TaskEmbedDocument)
}
