package repository

import (
	"context"

	"github.com/fyerfyer/doc-rag/internal/models"
)

// ChunkFilter 已嵌入分块的查询条件
type ChunkFilter struct {
	DocumentIDs []string // 限定文档范围，为空表示全部文档
}

// ChunkWithTitle 带所属文档标题的分块
type ChunkWithTitle struct {
	models.Chunk
	DocumentTitle string
}

// DocumentRepository 文档仓储接口
// 负责文档及其分块的存储和检索
type DocumentRepository interface {
	// CreateWithChunks 在同一事务中创建文档和分块，分块的向量为空
	CreateWithChunks(ctx context.Context, doc *models.Document, drafts []models.ChunkDraft) error

	// GetWithChunks 获取文档及按chunk_index排序的分块
	GetWithChunks(ctx context.Context, id string) (*models.Document, error)

	// List 列出所有文档，按上传时间倒序
	List(ctx context.Context) ([]models.Document, error)

	// StoreEmbeddings 为尚未嵌入的分块写入向量
	// 只要有一个分块已有向量或不属于该文档，整个写入回滚并返回冲突错误
	StoreEmbeddings(ctx context.Context, documentID string, vectors []models.ChunkVector) error

	// HasEmbeddings 文档是否存在已嵌入的分块
	HasEmbeddings(ctx context.Context, documentID string) (bool, error)

	// ListEmbeddedChunks 按存储顺序列出已嵌入的分块
	ListEmbeddedChunks(ctx context.Context, filter ChunkFilter) ([]ChunkWithTitle, error)

	// Delete 删除文档及其分块
	Delete(ctx context.Context, id string) error
}
