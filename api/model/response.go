package model

import (
	"encoding/json"
	"time"

	"github.com/fyerfyer/doc-rag/internal/models"
)

// Response 通用响应结构
type Response struct {
	Code      int         `json:"code"`                 // 响应状态码，0表示成功
	Message   string      `json:"message"`              // 响应消息
	ErrorType string      `json:"error_type,omitempty"` // 错误类别，仅错误响应携带
	Data      interface{} `json:"data,omitempty"`       // 响应数据，可能为空
	TraceID   string      `json:"trace_id,omitempty"`   // 调用链追踪ID
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string) *Response {
	return &Response{
		Code:    code,
		Message: message,
	}
}

// ChunkInfo 文档分块信息
type ChunkInfo struct {
	ID           uint   `json:"id"`
	Content      string `json:"content"`
	ChunkIndex   int    `json:"chunkIndex"`
	PageNumber   int    `json:"pageNumber"`
	HasEmbedding bool   `json:"hasEmbedding"`
}

// DocumentResponse 文档详情响应
type DocumentResponse struct {
	ID                  string                 `json:"id"`
	Title               string                 `json:"title"`
	FileName            string                 `json:"filename"`
	FilePath            string                 `json:"filepath,omitempty"`
	FileSize            int64                  `json:"fileSize"`
	PageCount           int                    `json:"pageCount"`
	Metadata            map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt           time.Time              `json:"createdAt"`
	EmbeddingsGenerated bool                   `json:"embeddingsGenerated"`
	ChunkCount          int                    `json:"chunkCount"`
	Chunks              []ChunkInfo            `json:"chunks,omitempty"`
}

// NewDocumentResponse 把文档模型转换为响应，withChunks为false时只返回分块数量
func NewDocumentResponse(doc *models.Document, withChunks bool) DocumentResponse {
	resp := DocumentResponse{
		ID:                  doc.ID,
		Title:               doc.Title,
		FileName:            doc.FileName,
		FilePath:            doc.FilePath,
		FileSize:            doc.FileSize,
		PageCount:           doc.PageCount,
		CreatedAt:           doc.UploadedAt,
		EmbeddingsGenerated: doc.EmbeddingsGenerated(),
		ChunkCount:          len(doc.Chunks),
	}

	if len(doc.Metadata) > 0 {
		var meta map[string]interface{}
		if err := json.Unmarshal(doc.Metadata, &meta); err == nil {
			resp.Metadata = meta
		}
	}

	if withChunks {
		resp.Chunks = make([]ChunkInfo, len(doc.Chunks))
		for i := range doc.Chunks {
			c := &doc.Chunks[i]
			resp.Chunks[i] = ChunkInfo{
				ID:           c.ID,
				Content:      c.Content,
				ChunkIndex:   c.ChunkIndex,
				PageNumber:   c.PageNumber,
				HasEmbedding: c.IsEmbedded(),
			}
		}
	}
	return resp
}

// DocumentListResponse 文档列表响应
type DocumentListResponse struct {
	Total     int                `json:"total"`     // 总数量
	Documents []DocumentResponse `json:"documents"` // 文档列表
}

// DocumentDeleteResponse 文档删除响应
type DocumentDeleteResponse struct {
	Success bool   `json:"success"` // 是否成功
	ID      string `json:"id"`      // 文档ID
}

// EmbedTaskResponse 异步生成任务响应
type EmbedTaskResponse struct {
	TaskID     string `json:"taskId"`
	DocumentID string `json:"documentId"`
}

// SearchResponse 检索响应
type SearchResponse struct {
	Query   string      `json:"query"`
	Results interface{} `json:"results"`
}
