package vectordb

import (
	"errors"
)

// 常用错误定义
var (
	ErrEmptyVector      = errors.New("empty vector")
	ErrInvalidDimension = errors.New("vector dimension mismatch")
)

// DistanceType 向量距离计算方法
type DistanceType string

const (
	// Cosine 余弦相似度
	Cosine DistanceType = "cosine"
	// DotProduct 点积
	DotProduct DistanceType = "dot"
	// Euclidean 欧几里得距离
	Euclidean DistanceType = "l2"
)

// ParseDistanceType 解析配置中的距离类型，为空时使用余弦
func ParseDistanceType(s string) (DistanceType, error) {
	switch DistanceType(s) {
	case "", Cosine:
		return Cosine, nil
	case DotProduct, Euclidean:
		return DistanceType(s), nil
	default:
		return "", errors.New("unsupported distance type: " + s)
	}
}

// Candidate 参与排序的已嵌入分块
type Candidate struct {
	ChunkID       uint      // 分块ID，决定存储顺序
	DocumentID    string    // 所属文档ID
	DocumentTitle string    // 所属文档标题
	Content       string    // 分块文本
	PageNumber    int       // 页码
	ChunkIndex    int       // 文档内分块序号
	Vector        []float32 // 向量表示
}

// SearchResult 搜索结果
type SearchResult struct {
	Candidate Candidate // 命中的分块
	Score     float32   // 相似度得分，余弦度量下即余弦相似度
	Distance  float32   // 计算的距离
}
