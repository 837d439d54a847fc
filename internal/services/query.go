package services

import (
	"context"
	"strings"

	"github.com/fyerfyer/doc-rag/internal/apperr"
	"github.com/fyerfyer/doc-rag/internal/llm"
	"github.com/sirupsen/logrus"
)

// Answer 问答结果
type Answer struct {
	Query   string  `json:"query"`
	Answer  string  `json:"answer"`
	Model   string  `json:"model,omitempty"`
	Sources []Match `json:"sources"`
}

// QueryService 问答服务
// 负责协调向量检索和大模型生成答案
type QueryService struct {
	retriever *RetrievalService // 检索服务
	rag       *llm.RAGService   // RAG服务
	logger    *logrus.Logger    // 日志记录器
}

// QueryOption 问答服务配置选项
type QueryOption func(*QueryService)

// WithQueryLogger 设置日志记录器
func WithQueryLogger(logger *logrus.Logger) QueryOption {
	return func(s *QueryService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewQueryService 创建问答服务实例
func NewQueryService(retriever *RetrievalService, rag *llm.RAGService, opts ...QueryOption) *QueryService {
	srv := &QueryService{
		retriever: retriever,
		rag:       rag,
		logger:    logrus.New(),
	}

	for _, opt := range opts {
		opt(srv)
	}
	return srv
}

// Answer 检索相关分块并只根据这些分块生成回答
// 没有检索到分块时仍调用模型，由模型说明文档中没有答案
func (s *QueryService) Answer(ctx context.Context, query string, opts RetrieveOptions) (*Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.Validation("query cannot be empty")
	}
	if s.rag == nil {
		return nil, apperr.Configuration("llm client is not configured")
	}

	matches, err := s.retriever.Retrieve(ctx, query, opts)
	if err != nil {
		return nil, err
	}

	contexts := make([]string, len(matches))
	for i, m := range matches {
		contexts[i] = m.Content
	}

	resp, err := s.rag.Answer(ctx, query, contexts)
	if err != nil {
		s.logger.WithError(err).Error("Failed to generate answer")
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"sources": len(matches),
		"model":   resp.ModelName,
		"tokens":  resp.TokenCount,
	}).Info("Query answered")

	return &Answer{
		Query:   query,
		Answer:  resp.Answer,
		Model:   resp.ModelName,
		Sources: matches,
	}, nil
}
