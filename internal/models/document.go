package models

import (
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Document 文档数据模型
// 一个上传的PDF对应一个文档，持有按chunk_index排序的分块
type Document struct {
	ID         string         `gorm:"primaryKey;size:36"`                                // 文档ID，主键
	Title      string         `gorm:"not null"`                                          // 标题
	FileName   string         `gorm:"not null"`                                          // 原始文件名
	FilePath   string         `gorm:"size:512"`                                          // 归档路径，未归档时为空
	FileSize   int64          `gorm:"not null;default:0"`                                // 文件大小（字节）
	PageCount  int            `gorm:"not null;default:0"`                                // 页数
	Metadata   datatypes.JSON `gorm:"type:json"`                                         // 抽取得到的元数据
	UploadedAt time.Time      `gorm:"not null;index"`                                    // 上传时间
	UpdatedAt  time.Time      `gorm:"not null"`                                          // 更新时间
	Chunks     []Chunk        `gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE"` // 文档分块
}

// BeforeCreate GORM的钩子函数，创建记录前自动设置时间
func (d *Document) BeforeCreate(tx *gorm.DB) (err error) {
	if d.UploadedAt.IsZero() {
		d.UploadedAt = time.Now()
	}
	d.UpdatedAt = time.Now()
	return nil
}

// BeforeUpdate GORM的钩子函数，更新记录前自动设置更新时间
func (d *Document) BeforeUpdate(tx *gorm.DB) (err error) {
	d.UpdatedAt = time.Now()
	return nil
}

// TableName 明确指定表名
func (Document) TableName() string {
	return "documents"
}

// EmbeddingsGenerated 文档的所有分块是否都已生成向量
// 没有分块的文档返回false
func (d *Document) EmbeddingsGenerated() bool {
	if len(d.Chunks) == 0 {
		return false
	}
	for i := range d.Chunks {
		if !d.Chunks[i].IsEmbedded() {
			return false
		}
	}
	return true
}

// AnyEmbedded 是否存在已生成向量的分块
func (d *Document) AnyEmbedded() bool {
	for i := range d.Chunks {
		if d.Chunks[i].IsEmbedded() {
			return true
		}
	}
	return false
}

// Chunk 文档分块数据模型
// ID自增，表示存储顺序；Embedding在生成向量前为NULL，之后只写一次
type Chunk struct {
	ID         uint             `gorm:"primaryKey;autoIncrement"`
	DocumentID string           `gorm:"not null;size:36;uniqueIndex:idx_chunk_doc_index"`
	Content    string           `gorm:"type:text;not null"`
	PageNumber int              `gorm:"not null"`
	ChunkIndex int              `gorm:"not null;uniqueIndex:idx_chunk_doc_index"`
	Embedding  *pgvector.Vector `gorm:"type:vector(1536)"`
	CreatedAt  time.Time        `gorm:"not null"`
}

// TableName 明确指定表名
func (Chunk) TableName() string {
	return "chunks"
}

// IsEmbedded 是否已生成向量
func (c *Chunk) IsEmbedded() bool {
	_, ok := c.State().(EmbeddedChunk)
	return ok
}

// Vector 返回向量数据，未生成时返回nil
func (c *Chunk) Vector() []float32 {
	if c.Embedding == nil {
		return nil
	}
	return c.Embedding.Slice()
}

// State 将数据库行转换为显式的分块状态
func (c *Chunk) State() ChunkState {
	base := UnembeddedChunk{
		Content:    c.Content,
		PageNumber: c.PageNumber,
		ChunkIndex: c.ChunkIndex,
	}
	if c.Embedding == nil {
		return base
	}
	return EmbeddedChunk{UnembeddedChunk: base, Vector: c.Embedding.Slice()}
}

// ChunkDraft 分块器输出，尚未持久化
type ChunkDraft struct {
	Content    string
	PageNumber int
	ChunkIndex int
}

// ToChunk 构造待插入的分块行
func (d ChunkDraft) ToChunk(documentID string) Chunk {
	return Chunk{
		DocumentID: documentID,
		Content:    d.Content,
		PageNumber: d.PageNumber,
		ChunkIndex: d.ChunkIndex,
	}
}

// ChunkState 分块的两种状态：UnembeddedChunk 或 EmbeddedChunk
type ChunkState interface {
	Draft() ChunkDraft
	isChunkState()
}

// UnembeddedChunk 尚未生成向量的分块
type UnembeddedChunk struct {
	Content    string
	PageNumber int
	ChunkIndex int
}

// Draft 返回分块的内容部分
func (u UnembeddedChunk) Draft() ChunkDraft {
	return ChunkDraft{Content: u.Content, PageNumber: u.PageNumber, ChunkIndex: u.ChunkIndex}
}

func (UnembeddedChunk) isChunkState() {}

// EmbeddedChunk 已生成向量的分块
type EmbeddedChunk struct {
	UnembeddedChunk
	Vector []float32
}

func (EmbeddedChunk) isChunkState() {}

// ChunkVector 待写入的分块向量
type ChunkVector struct {
	ChunkID uint
	Vector  []float32
}
