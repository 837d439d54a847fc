package vectordb

import (
	"fmt"
	"sort"
)

// Rank 计算查询向量与所有候选分块的相似度，返回得分最高的k个结果
// 得分相同的结果保持候选分块的输入顺序；k<=0时返回全部
func Rank(query []float32, candidates []Candidate, k int, distType DistanceType) ([]SearchResult, error) {
	if err := ValidateVector(query, 0); err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(candidates))
	for _, c := range candidates {
		distance, err := ComputeDistance(query, c.Vector, distType)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", c.ChunkID, err)
		}
		results = append(results, SearchResult{
			Candidate: c,
			Score:     DistanceToScore(distance, distType),
			Distance:  distance,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}
