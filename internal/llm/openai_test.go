package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fyerfyer/doc-rag/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chatRequest struct {
	Model       string  `json:"model"`
	Temperature float32 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

// newChatServer 模拟OpenAI兼容的对话补全接口
func newChatServer(t *testing.T, handle func(call int32, req chatRequest, w http.ResponseWriter)) (*httptest.Server, *int32) {
	t.Helper()

	var calls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		handle(atomic.AddInt32(&calls, 1), req, w)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &calls
}

func writeCompletion(w http.ResponseWriter, model, content string) {
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   model,
		"choices": []map[string]interface{}{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]int{"prompt_tokens": 12, "completion_tokens": 5, "total_tokens": 17},
	})
}

func writeChatError(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{"message": message, "type": "server_error"},
	})
}

func newChatClient(t *testing.T, server *httptest.Server, opts ...Option) Client {
	t.Helper()

	base := []Option{
		WithAPIKey("test-key"),
		WithBaseURL(server.URL + "/v1"),
		WithTimeout(2 * time.Second),
		WithRetryBaseDelay(time.Millisecond),
	}
	client, err := NewClient("openai", append(base, opts...)...)
	require.NoError(t, err)
	return client
}

func TestNewOpenAIClient(t *testing.T) {
	t.Run("missing api key", func(t *testing.T) {
		_, err := NewOpenAIClient()
		require.Error(t, err)
		assert.True(t, apperr.Is(err, apperr.KindConfiguration))
	})

	t.Run("unknown client type", func(t *testing.T) {
		_, err := NewClient("unknown", WithAPIKey("k"))
		assert.True(t, apperr.Is(err, apperr.KindConfiguration))
	})

	t.Run("defaults", func(t *testing.T) {
		client, err := NewOpenAIClient(WithAPIKey("k"))
		require.NoError(t, err)
		assert.Equal(t, ModelGPT4oMini, client.Name())

		cfg := DefaultConfig()
		assert.Equal(t, 60*time.Second, cfg.Timeout)
		assert.Equal(t, 3, cfg.MaxRetries)
		assert.InDelta(t, 0.7, cfg.Temperature, 1e-6)
	})
}

func TestOpenAIChat(t *testing.T) {
	server, calls := newChatServer(t, func(_ int32, req chatRequest, w http.ResponseWriter) {
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "user", req.Messages[1].Role)
		assert.InDelta(t, 0.3, req.Temperature, 1e-6)
		assert.Equal(t, 64, req.MaxTokens)
		writeCompletion(w, req.Model, "The answer is 42.")
	})

	client := newChatClient(t, server)
	resp, err := client.Chat(context.Background(), []Message{
		{Role: RoleSystem, Content: "Be brief."},
		{Role: RoleUser, Content: "What is the answer?"},
	}, WithChatTemperature(0.3), WithChatMaxTokens(64))

	require.NoError(t, err)
	assert.Equal(t, "The answer is 42.", resp.Text)
	assert.Equal(t, ModelGPT4oMini, resp.ModelName)
	assert.Equal(t, 17, resp.TokenCount)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.EqualValues(t, 1, atomic.LoadInt32(calls))
}

func TestOpenAIChatEmptyMessages(t *testing.T) {
	client, err := NewOpenAIClient(WithAPIKey("k"))
	require.NoError(t, err)

	_, err = client.Chat(context.Background(), nil)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestOpenAIChatRetries(t *testing.T) {
	t.Run("rate limited then success", func(t *testing.T) {
		server, calls := newChatServer(t, func(call int32, req chatRequest, w http.ResponseWriter) {
			if call <= 2 {
				writeChatError(w, http.StatusTooManyRequests, "slow down")
				return
			}
			writeCompletion(w, req.Model, "ok")
		})

		resp, err := newChatClient(t, server).Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
		require.NoError(t, err)
		assert.Equal(t, "ok", resp.Text)
		assert.EqualValues(t, 3, atomic.LoadInt32(calls))
	})

	t.Run("server errors exhaust retries", func(t *testing.T) {
		server, calls := newChatServer(t, func(_ int32, _ chatRequest, w http.ResponseWriter) {
			writeChatError(w, http.StatusBadGateway, "upstream down")
		})

		_, err := newChatClient(t, server, WithMaxRetries(2)).Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
		require.Error(t, err)
		assert.True(t, apperr.Is(err, apperr.KindUpstream))
		assert.EqualValues(t, 3, atomic.LoadInt32(calls))
	})

	t.Run("client errors are not retried", func(t *testing.T) {
		server, calls := newChatServer(t, func(_ int32, _ chatRequest, w http.ResponseWriter) {
			writeChatError(w, http.StatusBadRequest, "bad prompt")
		})

		_, err := newChatClient(t, server).Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
		require.Error(t, err)
		assert.True(t, apperr.Is(err, apperr.KindUpstream))
		assert.EqualValues(t, 1, atomic.LoadInt32(calls))
	})
}

func TestOpenAIChatTimeout(t *testing.T) {
	server, _ := newChatServer(t, func(_ int32, req chatRequest, w http.ResponseWriter) {
		time.Sleep(200 * time.Millisecond)
		writeCompletion(w, req.Model, "late")
	})

	client := newChatClient(t, server, WithTimeout(20*time.Millisecond), WithMaxRetries(0))
	_, err := client.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindUpstream))
}

func TestOpenAIChatNoChoices(t *testing.T) {
	server, _ := newChatServer(t, func(_ int32, req chatRequest, w http.ResponseWriter) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id": "x", "object": "chat.completion", "model": req.Model, "choices": []interface{}{},
		})
	})

	_, err := newChatClient(t, server).Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	assert.True(t, apperr.Is(err, apperr.KindUpstream))
}
