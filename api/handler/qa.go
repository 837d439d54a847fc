package handler

import (
	"net/http"

	"github.com/fyerfyer/doc-rag/api/middleware"
	"github.com/fyerfyer/doc-rag/api/model"
	"github.com/fyerfyer/doc-rag/internal/apperr"
	"github.com/fyerfyer/doc-rag/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// QAHandler 处理问答和检索请求
type QAHandler struct {
	queryService     *services.QueryService     // 问答服务
	retrievalService *services.RetrievalService // 检索服务
	logger           *logrus.Logger             // 日志记录器
}

// NewQAHandler 创建新的问答处理器
func NewQAHandler(queryService *services.QueryService, retrievalService *services.RetrievalService) *QAHandler {
	return &QAHandler{
		queryService:     queryService,
		retrievalService: retrievalService,
		logger:           middleware.GetLogger(),
	}
}

// AnswerQuestion 处理问答请求
// POST /api/rag/query
func (h *QAHandler) AnswerQuestion(c *gin.Context) {
	req, ok := h.bindQuery(c)
	if !ok {
		return
	}

	answer, err := h.queryService.Answer(c.Request.Context(), req.Query, services.RetrieveOptions{
		TopK:        req.TopK,
		DocumentIDs: req.DocumentIDs,
	})
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(answer))
}

// Search 只做向量检索，不调用大模型
// POST /api/rag/search
func (h *QAHandler) Search(c *gin.Context) {
	req, ok := h.bindQuery(c)
	if !ok {
		return
	}

	matches, err := h.retrievalService.Retrieve(c.Request.Context(), req.Query, services.RetrieveOptions{
		TopK:        req.TopK,
		DocumentIDs: req.DocumentIDs,
	})
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.SearchResponse{
		Query:   req.Query,
		Results: matches,
	}))
}

func (h *QAHandler) bindQuery(c *gin.Context) (model.QueryRequest, bool) {
	var req model.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Warn("Invalid query request")
		middleware.HandleError(c, apperr.Validation("query is required"))
		return req, false
	}
	return req, true
}
