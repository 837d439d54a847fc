package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyerfyer/doc-rag/internal/apperr"
	"github.com/fyerfyer/doc-rag/internal/embedding"
	"github.com/fyerfyer/doc-rag/internal/repository"
	"github.com/fyerfyer/doc-rag/internal/vectordb"
	"github.com/sirupsen/logrus"
)

// DefaultTopK 默认返回的分块数
const DefaultTopK = 5

// RetrieveOptions 检索选项
type RetrieveOptions struct {
	TopK        int      // 返回的分块数，<=0时使用服务默认值
	DocumentIDs []string // 限定文档范围，为空表示全部文档
}

// Match 检索命中的分块
type Match struct {
	ChunkID       uint    `json:"chunkId"`
	DocumentID    string  `json:"documentId"`
	DocumentTitle string  `json:"documentTitle"`
	Content       string  `json:"content"`
	PageNumber    int     `json:"pageNumber"`
	ChunkIndex    int     `json:"chunkIndex"`
	Score         float32 `json:"similarity"`
}

// RetrievalService 向量检索服务
// 每次查询都重新计算查询向量并扫描已嵌入的分块，不做缓存
type RetrievalService struct {
	repo       repository.DocumentRepository // 文档仓储
	embedder   embedding.Client              // 嵌入模型客户端，未配置时为空
	topK       int                           // 默认返回数量
	dimensions int                           // 期望的向量维度，为0时使用客户端的维度
	metric     vectordb.DistanceType         // 相似度度量
	logger     *logrus.Logger                // 日志记录器
}

// RetrievalOption 检索服务配置选项
type RetrievalOption func(*RetrievalService)

// NewRetrievalService 创建检索服务
func NewRetrievalService(repo repository.DocumentRepository, embedder embedding.Client, opts ...RetrievalOption) *RetrievalService {
	srv := &RetrievalService{
		repo:     repo,
		embedder: embedder,
		topK:     DefaultTopK,
		metric:   vectordb.Cosine,
		logger:   logrus.New(),
	}

	for _, opt := range opts {
		opt(srv)
	}
	return srv
}

// WithTopK 设置默认返回数量
func WithTopK(k int) RetrievalOption {
	return func(s *RetrievalService) {
		if k > 0 {
			s.topK = k
		}
	}
}

// WithRetrievalDimensions 设置查询向量的期望维度
func WithRetrievalDimensions(dimensions int) RetrievalOption {
	return func(s *RetrievalService) {
		if dimensions > 0 {
			s.dimensions = dimensions
		}
	}
}

// WithMetric 设置相似度度量
func WithMetric(metric vectordb.DistanceType) RetrievalOption {
	return func(s *RetrievalService) {
		if metric != "" {
			s.metric = metric
		}
	}
}

// WithRetrievalLogger 设置日志记录器
func WithRetrievalLogger(logger *logrus.Logger) RetrievalOption {
	return func(s *RetrievalService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Retrieve 嵌入查询文本并对所有已嵌入分块打分，没有已嵌入的分块时返回空列表
func (s *RetrievalService) Retrieve(ctx context.Context, query string, opts RetrieveOptions) ([]Match, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.Validation("query cannot be empty")
	}
	if s.embedder == nil {
		return nil, apperr.Configuration("embedding client is not configured")
	}

	k := opts.TopK
	if k <= 0 {
		k = s.topK
	}

	queryVector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	dims := s.dimensions
	if dims == 0 {
		dims = s.embedder.Dimensions()
	}
	if err := vectordb.ValidateVector(queryVector, dims); err != nil {
		return nil, apperr.Upstream("failed to embed query", err)
	}

	chunks, err := s.repo.ListEmbeddedChunks(ctx, repository.ChunkFilter{DocumentIDs: opts.DocumentIDs})
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded chunks: %w", err)
	}
	if len(chunks) == 0 {
		return []Match{}, nil
	}

	candidates := make([]vectordb.Candidate, 0, len(chunks))
	for _, c := range chunks {
		candidates = append(candidates, vectordb.Candidate{
			ChunkID:       c.ID,
			DocumentID:    c.DocumentID,
			DocumentTitle: c.DocumentTitle,
			Content:       c.Content,
			PageNumber:    c.PageNumber,
			ChunkIndex:    c.ChunkIndex,
			Vector:        c.Vector(),
		})
	}

	results, err := vectordb.Rank(queryVector, candidates, k, s.metric)
	if err != nil {
		return nil, fmt.Errorf("failed to rank chunks: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, Match{
			ChunkID:       r.Candidate.ChunkID,
			DocumentID:    r.Candidate.DocumentID,
			DocumentTitle: r.Candidate.DocumentTitle,
			Content:       r.Candidate.Content,
			PageNumber:    r.Candidate.PageNumber,
			ChunkIndex:    r.Candidate.ChunkIndex,
			Score:         r.Score,
		})
	}

	s.logger.WithFields(logrus.Fields{
		"candidates": len(candidates),
		"matches":    len(matches),
		"top_k":      k,
	}).Debug("Retrieved chunks")

	return matches, nil
}
