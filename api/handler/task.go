package handler

import (
	"net/http"

	"github.com/fyerfyer/doc-rag/api/middleware"
	"github.com/fyerfyer/doc-rag/api/model"
	"github.com/fyerfyer/doc-rag/internal/apperr"
	"github.com/fyerfyer/doc-rag/internal/services"
	"github.com/fyerfyer/doc-rag/pkg/taskqueue"
	"github.com/gin-gonic/gin"
)

// TaskHandler 处理异步任务查询
type TaskHandler struct {
	embedding *services.EmbeddingService // 向量生成服务
}

// NewTaskHandler 创建新的任务处理器
func NewTaskHandler(embedding *services.EmbeddingService) *TaskHandler {
	return &TaskHandler{embedding: embedding}
}

// GetTaskStatus 获取任务状态
// GET /api/tasks/:id
func (h *TaskHandler) GetTaskStatus(c *gin.Context) {
	var req model.TaskIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleError(c, apperr.Validation("invalid task ID"))
		return
	}

	task, err := h.embedding.GetTask(c.Request.Context(), req.ID)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(taskqueue.NewTaskInfo(task)))
}
