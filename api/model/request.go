package model

// DocumentIDRequest 路径中的文档ID
type DocumentIDRequest struct {
	ID string `uri:"id" binding:"required"` // 文档ID
}

// TaskIDRequest 路径中的任务ID
type TaskIDRequest struct {
	ID string `uri:"id" binding:"required"` // 任务ID
}

// QueryRequest 问答和检索请求
type QueryRequest struct {
	Query       string   `json:"query" binding:"required"`                      // 问题内容
	TopK        int      `json:"topK" binding:"omitempty,min=1,max=50"`         // 返回的分块数，为空时使用默认值
	DocumentIDs []string `json:"documentIds" binding:"omitempty,dive,required"` // 限定文档范围
}
