package api

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/fyerfyer/doc-rag/internal/apperr"
	"github.com/fyerfyer/doc-rag/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRAGQuery(t *testing.T) {
	env := setupTestEnv(t, envOptions{})
	id := env.uploadDocument(t, "water.pdf", "Water bills are due on the fifteenth of each month.")
	w := env.doJSON(t, http.MethodPost, "/api/documents/"+id+"/embed", nil)
	require.Equal(t, http.StatusOK, w.Code)

	env.LLM.EXPECT().
		Chat(mock.Anything, mock.MatchedBy(func(messages []llm.Message) bool {
			for _, m := range messages {
				if m.Role == llm.RoleUser && strings.Contains(m.Content, "fifteenth of each month") {
					return true
				}
			}
			return false
		}), mock.Anything).
		Return(&llm.Response{Text: "On the fifteenth.", ModelName: "mock-model"}, nil).
		Once()

	w = env.doJSON(t, http.MethodPost, "/api/rag/query", map[string]interface{}{
		"query": "When are water bills due?",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	data := decodeData(t, w)
	assert.Equal(t, "On the fifteenth.", data["answer"])
	sources := data["sources"].([]interface{})
	require.Len(t, sources, 1)
	source := sources[0].(map[string]interface{})
	assert.Equal(t, id, source["documentId"])
	assert.Equal(t, "water", source["documentTitle"])
	assert.EqualValues(t, 1, source["pageNumber"])
	assert.InDelta(t, 1.0, source["similarity"], 1e-5)
}

func TestRAGSearch(t *testing.T) {
	env := setupTestEnv(t, envOptions{})

	// 没有已嵌入的分块时返回空结果
	w := env.doJSON(t, http.MethodPost, "/api/rag/search", map[string]interface{}{"query": "anything"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	results, ok := decodeData(t, w)["results"].([]interface{})
	require.True(t, ok)
	assert.Empty(t, results)

	id := env.uploadDocument(t, "roads.pdf", "Potholes can be reported online.")
	env.doJSON(t, http.MethodPost, "/api/documents/"+id+"/embed", nil)

	w = env.doJSON(t, http.MethodPost, "/api/rag/search", map[string]interface{}{
		"query":       "potholes",
		"topK":        3,
		"documentIds": []string{id},
	})
	require.Equal(t, http.StatusOK, w.Code)
	results = decodeData(t, w)["results"].([]interface{})
	require.Len(t, results, 1)
	assert.Contains(t, results[0].(map[string]interface{})["content"], "Potholes")
}

func TestRAGQueryErrors(t *testing.T) {
	t.Run("missing query", func(t *testing.T) {
		env := setupTestEnv(t, envOptions{})
		w := env.doJSON(t, http.MethodPost, "/api/rag/query", map[string]interface{}{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, string(apperr.KindValidation), decodeResponse(t, w).ErrorType)
	})

	t.Run("invalid top k", func(t *testing.T) {
		env := setupTestEnv(t, envOptions{})
		w := env.doJSON(t, http.MethodPost, "/api/rag/search", map[string]interface{}{"query": "x", "topK": -1})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("llm not configured", func(t *testing.T) {
		env := setupTestEnv(t, envOptions{withoutLLM: true})
		w := env.doJSON(t, http.MethodPost, "/api/rag/query", map[string]interface{}{"query": "question"})
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, string(apperr.KindConfiguration), decodeResponse(t, w).ErrorType)
	})

	t.Run("llm upstream failure", func(t *testing.T) {
		env := setupTestEnv(t, envOptions{})
		env.LLM.EXPECT().Chat(mock.Anything, mock.Anything, mock.Anything).
			Return(nil, apperr.Upstream("generation request failed", errors.New("502"))).
			Once()

		w := env.doJSON(t, http.MethodPost, "/api/rag/query", map[string]interface{}{"query": "question"})
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, string(apperr.KindUpstream), decodeResponse(t, w).ErrorType)
	})
}
