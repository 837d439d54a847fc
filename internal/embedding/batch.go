package embedding

import (
	"context"
	"fmt"
)

// SplitBatches 将文本列表按顺序分割成多个批次，每批最多batchSize条
func SplitBatches(texts []string, batchSize int) [][]string {
	if batchSize <= 0 {
		batchSize = 1
	}

	batches := make([][]string, 0, (len(texts)+batchSize-1)/batchSize)
	for i := 0; i < len(texts); i += batchSize {
		end := i + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batches = append(batches, texts[i:end])
	}
	return batches
}

// batchFunc 处理单个子批次，返回的向量与输入一一对应
type batchFunc func(ctx context.Context, batch []string) ([][]float32, error)

// embedInBatches 按顺序逐批处理文本并拼接结果
// 子批次依次执行，任一批次失败立即返回错误，不返回部分结果
func embedInBatches(ctx context.Context, texts []string, batchSize int, fn batchFunc) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, 0, len(texts))
	for i, batch := range SplitBatches(texts, batchSize) {
		if err := ctx.Err(); err != nil {
			return nil, newError(ErrCodeTimeout, err.Error())
		}

		vectors, err := fn(ctx, batch)
		if err != nil {
			return nil, err
		}
		if len(vectors) != len(batch) {
			return nil, newError(ErrCodeBadResponse,
				fmt.Sprintf("batch %d: expected %d embeddings, got %d", i, len(batch), len(vectors)))
		}
		results = append(results, vectors...)
	}
	return results, nil
}
