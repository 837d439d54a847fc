package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fyerfyer/doc-rag/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestBuildRAGMessages(t *testing.T) {
	contexts := []string{"Parking permits cost $40.", "Permits renew every year."}
	messages := BuildRAGMessages(DefaultSystemPrompt, "How much is a permit?", contexts)

	require.Len(t, messages, 2)
	assert.Equal(t, RoleSystem, messages[0].Role)
	assert.Equal(t, DefaultSystemPrompt, messages[0].Content)
	assert.Contains(t, messages[0].Content, "Use only the provided context to answer. If the answer isn't in the context, say so.")

	assert.Equal(t, RoleUser, messages[1].Role)
	user := messages[1].Content
	assert.True(t, strings.HasPrefix(user, DefaultSystemPrompt))
	assert.Contains(t, user, "Parking permits cost $40.\nPermits renew every year.")
	assert.True(t, strings.HasSuffix(user, "User query: How much is a permit?"))
	assert.NotContains(t, user, NoContextMarker)
}

func TestBuildRAGMessagesWithoutContext(t *testing.T) {
	messages := BuildRAGMessages(DefaultSystemPrompt, "Anything?", nil)
	require.Len(t, messages, 2)
	assert.Contains(t, messages[1].Content, NoContextMarker)
	assert.True(t, strings.HasSuffix(messages[1].Content, "User query: Anything?"))
}

// TestRAGAnswer 测试RAG的基本功能
func TestRAGAnswer(t *testing.T) {
	mockClient := NewMockClient(t)

	question := "What is the speed limit near schools?"
	contexts := []string{"The speed limit in school zones is 20 mph."}

	mockClient.EXPECT().
		Chat(mock.Anything, mock.MatchedBy(func(messages []Message) bool {
			return len(messages) == 2 &&
				strings.Contains(messages[1].Content, contexts[0]) &&
				strings.Contains(messages[1].Content, "User query: "+question)
		}), mock.Anything).
		Run(func(ctx context.Context, _ []Message, options ...ChatOption) {
			// 请求在超时上下文中执行
			_, hasDeadline := ctx.Deadline()
			assert.True(t, hasDeadline)

			opts := &ChatOptions{}
			for _, opt := range options {
				opt(opts)
			}
			require.NotNil(t, opts.Temperature)
			assert.InDelta(t, 0.7, *opts.Temperature, 1e-6)
		}).
		Return(&Response{Text: "20 mph.", ModelName: "gpt-4o-mini", TokenCount: 42, FinishTime: time.Now()}, nil)

	rag := NewRAG(mockClient)
	resp, err := rag.Answer(context.Background(), question, contexts)
	require.NoError(t, err)
	assert.Equal(t, "20 mph.", resp.Answer)
	assert.Equal(t, "gpt-4o-mini", resp.ModelName)
	assert.Equal(t, 42, resp.TokenCount)
}

func TestRAGAnswerMaxTokens(t *testing.T) {
	mockClient := NewMockClient(t)
	mockClient.EXPECT().
		Chat(mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(_ context.Context, _ []Message, options ...ChatOption) {
			opts := &ChatOptions{}
			for _, opt := range options {
				opt(opts)
			}
			require.NotNil(t, opts.MaxTokens)
			assert.Equal(t, 256, *opts.MaxTokens)
		}).
		Return(&Response{Text: "ok"}, nil)

	rag := NewRAG(mockClient, WithRAGMaxTokens(256), WithRAGTemperature(0.2))
	_, err := rag.Answer(context.Background(), "q", []string{"c"})
	require.NoError(t, err)
}

func TestRAGAnswerErrors(t *testing.T) {
	t.Run("empty question", func(t *testing.T) {
		rag := NewRAG(NewMockClient(t))
		_, err := rag.Answer(context.Background(), "  ", nil)
		assert.True(t, apperr.Is(err, apperr.KindValidation))
	})

	t.Run("no client", func(t *testing.T) {
		rag := NewRAG(nil)
		_, err := rag.Answer(context.Background(), "q", nil)
		assert.True(t, apperr.Is(err, apperr.KindConfiguration))
	})

	t.Run("upstream failure", func(t *testing.T) {
		mockClient := NewMockClient(t)
		upstream := apperr.Upstream("generation request failed", errors.New("boom"))
		mockClient.EXPECT().Chat(mock.Anything, mock.Anything, mock.Anything).Return(nil, upstream)

		_, err := NewRAG(mockClient).Answer(context.Background(), "q", []string{"c"})
		assert.True(t, apperr.Is(err, apperr.KindUpstream))
	})
}

func TestRAGSetSystemPrompt(t *testing.T) {
	mockClient := NewMockClient(t)
	mockClient.EXPECT().
		Chat(mock.Anything, mock.MatchedBy(func(messages []Message) bool {
			return messages[0].Content == "Answer tersely."
		}), mock.Anything).
		Return(&Response{Text: "ok"}, nil)

	rag := NewRAG(mockClient).SetSystemPrompt("Answer tersely.")
	_, err := rag.Answer(context.Background(), "q", nil)
	require.NoError(t, err)
}
