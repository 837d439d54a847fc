package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fyerfyer/doc-rag/internal/apperr"
	"github.com/fyerfyer/doc-rag/internal/database"
	"github.com/fyerfyer/doc-rag/internal/models"
	"github.com/fyerfyer/doc-rag/pkg/taskqueue"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// 批量插入分块的批次大小
	chunkInsertBatch = 500
	// 单条UPDATE语句最多写入的向量数
	embeddingUpdateBatch = 500
)

// docRepository 文档仓储实现
type docRepository struct {
	db        *gorm.DB        // 数据库连接
	taskQueue taskqueue.Queue // 任务队列，删除文档时清理相关任务
}

// NewDocumentRepository 使用全局数据库连接创建文档仓储实例
func NewDocumentRepository() DocumentRepository {
	return &docRepository{
		db: database.MustDB(),
	}
}

// NewDocumentRepositoryWithDB 使用指定的数据库连接创建文档仓储实例
func NewDocumentRepositoryWithDB(db *gorm.DB) DocumentRepository {
	if db == nil {
		db = database.MustDB()
	}
	return &docRepository{
		db: db,
	}
}

// NewDocumentRepositoryWithQueue 使用指定的数据库连接和任务队列创建文档仓储实例
func NewDocumentRepositoryWithQueue(db *gorm.DB, queue taskqueue.Queue) DocumentRepository {
	if db == nil {
		db = database.MustDB()
	}
	return &docRepository{
		db:        db,
		taskQueue: queue,
	}
}

// CreateWithChunks 创建文档记录和分块
func (r *docRepository) CreateWithChunks(ctx context.Context, doc *models.Document, drafts []models.ChunkDraft) error {
	if doc.ID == "" {
		return errors.New("document ID cannot be empty")
	}

	chunks := make([]models.Chunk, 0, len(drafts))
	for _, d := range drafts {
		chunks = append(chunks, d.ToChunk(doc.ID))
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(doc).Error; err != nil {
			return fmt.Errorf("failed to create document: %w", err)
		}
		if len(chunks) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(&chunks, chunkInsertBatch).Error; err != nil {
			return fmt.Errorf("failed to create chunks: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	doc.Chunks = chunks
	return nil
}

// GetWithChunks 根据ID获取文档及其分块
func (r *docRepository) GetWithChunks(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document
	err := r.db.WithContext(ctx).
		Preload("Chunks", orderByChunkIndex).
		Where("id = ?", id).
		First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound(fmt.Sprintf("document not found: %s", id))
		}
		return nil, err
	}
	return &doc, nil
}

// List 列出文档
func (r *docRepository) List(ctx context.Context) ([]models.Document, error) {
	docs := []models.Document{}
	err := r.db.WithContext(ctx).
		Preload("Chunks", orderByChunkIndex).
		Order("uploaded_at DESC").
		Find(&docs).Error
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// StoreEmbeddings 批量写入向量
// 使用 UPDATE ... CASE id WHEN ... 按批写入，WHERE条件要求embedding为NULL，
// 并发写入同一文档时只有一个事务能更新全部行
func (r *docRepository) StoreEmbeddings(ctx context.Context, documentID string, vectors []models.ChunkVector) error {
	if len(vectors) == 0 {
		return nil
	}

	seen := make(map[uint]struct{}, len(vectors))
	for _, v := range vectors {
		if _, dup := seen[v.ChunkID]; dup {
			return apperr.Validation(fmt.Sprintf("duplicate chunk id %d", v.ChunkID))
		}
		seen[v.ChunkID] = struct{}{}
	}

	// PostgreSQL需要显式转换参数类型，SQLite按文本存储
	cast := ""
	if r.db.Dialector.Name() == "postgres" {
		cast = "::vector"
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var affected int64
		for start := 0; start < len(vectors); start += embeddingUpdateBatch {
			batch := vectors[start:min(start+embeddingUpdateBatch, len(vectors))]

			var sb strings.Builder
			args := make([]interface{}, 0, len(batch)*2+2)
			ids := make([]uint, 0, len(batch))

			sb.WriteString("UPDATE chunks SET embedding = CASE id")
			for _, v := range batch {
				sb.WriteString(" WHEN ? THEN ?" + cast)
				args = append(args, v.ChunkID, pgvector.NewVector(v.Vector))
				ids = append(ids, v.ChunkID)
			}
			sb.WriteString(" END WHERE document_id = ? AND id IN ? AND embedding IS NULL")
			args = append(args, documentID, ids)

			result := tx.Exec(sb.String(), args...)
			if result.Error != nil {
				return fmt.Errorf("failed to store embeddings: %w", result.Error)
			}
			affected += result.RowsAffected
		}

		if affected != int64(len(vectors)) {
			return apperr.Conflict(fmt.Sprintf(
				"embeddings already exist for document %s, delete and re-upload to regenerate", documentID))
		}
		return nil
	})
}

// HasEmbeddings 检查文档是否有已嵌入的分块
func (r *docRepository) HasEmbeddings(ctx context.Context, documentID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Chunk{}).
		Where("document_id = ? AND embedding IS NOT NULL", documentID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListEmbeddedChunks 列出已嵌入的分块，按分块ID排序
func (r *docRepository) ListEmbeddedChunks(ctx context.Context, filter ChunkFilter) ([]ChunkWithTitle, error) {
	rows := []ChunkWithTitle{}

	query := r.db.WithContext(ctx).
		Table("chunks").
		Select("chunks.*, documents.title AS document_title").
		Joins("JOIN documents ON documents.id = chunks.document_id").
		Where("chunks.embedding IS NOT NULL")
	if len(filter.DocumentIDs) > 0 {
		query = query.Where("chunks.document_id IN ?", filter.DocumentIDs)
	}

	if err := query.Order("chunks.id ASC").Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Delete 删除文档记录
func (r *docRepository) Delete(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. 删除文档分块
		if err := tx.Where("document_id = ?", id).Delete(&models.Chunk{}).Error; err != nil {
			return err
		}

		// 2. 删除文档记录
		result := tx.Where("id = ?", id).Delete(&models.Document{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return apperr.NotFound(fmt.Sprintf("document not found: %s", id))
		}
		return nil
	})
	if err != nil {
		return err
	}

	// 3. 如果任务队列已初始化，删除相关任务记录
	if r.taskQueue != nil {
		tasks, err := r.taskQueue.GetTasksByDocument(ctx, id)
		if err == nil {
			for _, task := range tasks {
				// 忽略错误，因为任务可能已经被删除
				_ = r.taskQueue.DeleteTask(ctx, task.ID)
			}
		}
	}
	return nil
}

func orderByChunkIndex(db *gorm.DB) *gorm.DB {
	return db.Order("chunk_index ASC")
}
