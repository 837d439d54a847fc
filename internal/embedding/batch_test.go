package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/fyerfyer/doc-rag/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitBatches(t *testing.T) {
	texts := []string{"a", "b", "c", "d", "e"}

	batches := SplitBatches(texts, 2)
	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}}, batches)

	assert.Len(t, SplitBatches(texts, 10), 1)
	assert.Empty(t, SplitBatches(nil, 10))
	assert.Len(t, SplitBatches(texts, 0), 5)
}

func TestEmbedInBatches(t *testing.T) {
	echo := func(_ context.Context, batch []string) ([][]float32, error) {
		out := make([][]float32, len(batch))
		for i, text := range batch {
			out[i] = []float32{float32(len(text))}
		}
		return out, nil
	}

	t.Run("concatenates in order", func(t *testing.T) {
		vectors, err := embedInBatches(context.Background(), []string{"a", "bb", "ccc"}, 2, echo)
		require.NoError(t, err)
		assert.Equal(t, [][]float32{{1}, {2}, {3}}, vectors)
	})

	t.Run("failure discards earlier batches", func(t *testing.T) {
		calls := 0
		failing := func(ctx context.Context, batch []string) ([][]float32, error) {
			calls++
			if calls == 2 {
				return nil, errors.New("boom")
			}
			return echo(ctx, batch)
		}

		vectors, err := embedInBatches(context.Background(), []string{"a", "b", "c"}, 1, failing)
		require.EqualError(t, err, "boom")
		assert.Nil(t, vectors)
		assert.Equal(t, 2, calls)
	})

	t.Run("short batch result", func(t *testing.T) {
		short := func(_ context.Context, batch []string) ([][]float32, error) {
			return [][]float32{{1}}, nil
		}
		_, err := embedInBatches(context.Background(), []string{"a", "b"}, 2, short)
		assert.True(t, apperr.Is(err, apperr.KindUpstream))
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := embedInBatches(ctx, []string{"a"}, 1, echo)
		assert.True(t, apperr.Is(err, apperr.KindUpstream))
	})
}
