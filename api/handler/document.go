package handler

import (
	"errors"
	"net/http"

	"github.com/fyerfyer/doc-rag/api/middleware"
	"github.com/fyerfyer/doc-rag/api/model"
	"github.com/fyerfyer/doc-rag/internal/apperr"
	"github.com/fyerfyer/doc-rag/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// multipart表单除文件外允许的额外字节数
const formOverhead = 1 << 20

// DocumentHandler 处理文档相关的API请求
type DocumentHandler struct {
	ingestion   *services.IngestionService // 文档导入服务
	embedding   *services.EmbeddingService // 向量生成服务
	maxFileSize int64                      // 上传文件大小上限
	logger      *logrus.Logger             // 日志记录器
}

// NewDocumentHandler 创建新的文档处理器
func NewDocumentHandler(ingestion *services.IngestionService, embedding *services.EmbeddingService, maxFileSize int64) *DocumentHandler {
	if maxFileSize <= 0 {
		maxFileSize = services.DefaultMaxFileSize
	}
	return &DocumentHandler{
		ingestion:   ingestion,
		embedding:   embedding,
		maxFileSize: maxFileSize,
		logger:      middleware.GetLogger(),
	}
}

// UploadDocument 处理文档上传请求
// POST /api/documents/upload
func (h *DocumentHandler) UploadDocument(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxFileSize+formOverhead)

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.HandleError(c, apperr.Validation("file exceeds the maximum upload size"))
			return
		}
		middleware.HandleError(c, apperr.Validation("no file uploaded"))
		return
	}

	file, err := header.Open()
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"error":    err.Error(),
			"filename": header.Filename,
		}).Error("Failed to open uploaded file")
		middleware.HandleError(c, err)
		return
	}
	defer file.Close()

	doc, err := h.ingestion.Ingest(c.Request.Context(), services.UploadInput{
		FileName: header.Filename,
		Size:     header.Size,
		Reader:   file,
	})
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, model.NewSuccessResponse(model.NewDocumentResponse(doc, true)))
}

// ListDocuments 获取文档列表
// GET /api/documents
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	docs, err := h.ingestion.List(c.Request.Context())
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	resp := model.DocumentListResponse{
		Total:     len(docs),
		Documents: make([]model.DocumentResponse, len(docs)),
	}
	for i := range docs {
		resp.Documents[i] = model.NewDocumentResponse(&docs[i], false)
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// GetDocument 获取文档详情和分块
// GET /api/documents/:id
func (h *DocumentHandler) GetDocument(c *gin.Context) {
	var req model.DocumentIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleError(c, apperr.Validation("invalid document ID"))
		return
	}

	doc, err := h.ingestion.Get(c.Request.Context(), req.ID)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.NewDocumentResponse(doc, true)))
}

// DeleteDocument 删除文档
// DELETE /api/documents/:id
func (h *DocumentHandler) DeleteDocument(c *gin.Context) {
	var req model.DocumentIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleError(c, apperr.Validation("invalid document ID"))
		return
	}

	if err := h.ingestion.Delete(c.Request.Context(), req.ID); err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.DocumentDeleteResponse{
		Success: true,
		ID:      req.ID,
	}))
}

// GenerateEmbeddings 同步生成文档向量
// POST /api/documents/:id/embed
func (h *DocumentHandler) GenerateEmbeddings(c *gin.Context) {
	var req model.DocumentIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleError(c, apperr.Validation("invalid document ID"))
		return
	}

	result, err := h.embedding.Generate(c.Request.Context(), req.ID)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(result))
}

// EnqueueEmbeddings 把向量生成放入任务队列
// POST /api/documents/:id/embed/async
func (h *DocumentHandler) EnqueueEmbeddings(c *gin.Context) {
	var req model.DocumentIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleError(c, apperr.Validation("invalid document ID"))
		return
	}

	taskID, err := h.embedding.Enqueue(c.Request.Context(), req.ID)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"document_id": req.ID,
		"task_id":     taskID,
	}).Info("Embedding task enqueued")

	c.JSON(http.StatusAccepted, model.NewSuccessResponse(model.EmbedTaskResponse{
		TaskID:     taskID,
		DocumentID: req.ID,
	}))
}
